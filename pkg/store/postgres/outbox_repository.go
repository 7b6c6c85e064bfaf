package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/prodflow/prodflow/pkg/model"
	"github.com/prodflow/prodflow/pkg/tenant"
)

type OutboxRepository struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

func (r *OutboxRepository) ListPending(ctx context.Context, limit int) ([]model.ProductionEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var events []model.ProductionEvent
	err := r.db.WithContext(ctx).
		Where("status = ?", model.OutboxStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

func (r *OutboxRepository) MarkPublished(ctx context.Context, eventID uuid.UUID, publishedAt time.Time) error {
	return r.mark(ctx, eventID, map[string]interface{}{
		"status":       model.OutboxStatusPublished,
		"published_at": publishedAt,
	})
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, eventID uuid.UUID) error {
	return r.mark(ctx, eventID, map[string]interface{}{
		"status": model.OutboxStatusFailed,
	})
}

func (r *OutboxRepository) mark(ctx context.Context, eventID uuid.UUID, updates map[string]interface{}) error {
	return r.db.WithContext(ctx).
		Model(&model.ProductionEvent{}).
		Where("event_id = ?", eventID).
		Updates(updates).Error
}

// ForEntity returns the events recorded for one entity within scope, oldest
// first.
func (r *OutboxRepository) ForEntity(ctx context.Context, scope tenant.Scope, entityID uuid.UUID) ([]model.ProductionEvent, error) {
	var events []model.ProductionEvent
	err := r.db.WithContext(ctx).
		Scopes(scope.Gorm("")).
		Where("entity_id = ?", entityID).
		Order("created_at ASC").
		Find(&events).Error
	return events, err
}
