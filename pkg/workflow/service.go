package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prodflow/prodflow/pkg/eventbus"
	"github.com/prodflow/prodflow/pkg/metrics"
	"github.com/prodflow/prodflow/pkg/model"
	"github.com/prodflow/prodflow/pkg/sequence"
	"github.com/prodflow/prodflow/pkg/softdelete"
	"github.com/prodflow/prodflow/pkg/store"
	"github.com/prodflow/prodflow/pkg/uniqueness"
)

const (
	entityPlan   = "production_plan"
	entityOrder  = "production_order"
	entityStage  = "production_stage"
	entityCheck  = "quality_check"
	entityOutput = "production_output"
)

type Service struct {
	db        store.Database
	unique    *uniqueness.Enforcer
	seq       *sequence.Sequencer
	deleter   *softdelete.Coordinator
	publisher eventbus.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(db store.Database, deleter *softdelete.Coordinator, publisher eventbus.Publisher, logger *zap.Logger) *Service {
	if publisher == nil {
		publisher = eventbus.Nop{}
	}
	return &Service{
		db:        db,
		unique:    uniqueness.NewEnforcer(db),
		seq:       sequence.New(db),
		deleter:   deleter,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// recordStep writes the outbox row for a change as part of the change's unit.
func recordStep(event *model.ProductionEvent) store.Step {
	return store.Step{
		Name: "record event",
		Do: func(ctx context.Context, s store.Store) error {
			return s.Insert(ctx, event)
		},
	}
}

func transitionEvent(eventType, entity string, companyID, id uuid.UUID, from, to string, extra model.JSONB) *model.ProductionEvent {
	payload := model.JSONB{"from": from, "to": to}
	for k, v := range extra {
		payload[k] = v
	}
	return model.NewProductionEvent(companyID, eventType, entity, id, payload)
}

// published runs after a unit succeeded. Publication is best effort; the
// outbox row remains the durable record.
func (s *Service) published(ctx context.Context, event *model.ProductionEvent) {
	if from, ok := event.Payload["from"].(string); ok {
		to, _ := event.Payload["to"].(string)
		metrics.TransitionsTotal.WithLabelValues(event.EntityType, from, to).Inc()
	}
	if err := s.publisher.PublishProductionEvent(ctx, event); err != nil {
		s.logger.Warn("failed to publish production event",
			zap.Error(err),
			zap.String("event_type", event.EventType),
			zap.String("entity_id", event.EntityID.String()),
		)
	}
}

func (s *Service) updateStep(name string, m interface{}, q store.Query, patch map[string]interface{}) store.Step {
	return store.Step{
		Name: name,
		Do: func(ctx context.Context, st store.Store) error {
			_, err := st.Update(ctx, m, q, patch)
			return err
		},
	}
}

func (s *Service) stamp(patch map[string]interface{}, actor string) map[string]interface{} {
	patch["updated_by"] = actor
	patch["updated_at"] = s.now()
	return patch
}
