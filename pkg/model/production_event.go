package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	OutboxStatusPending   = "pending"
	OutboxStatusPublished = "published"
	OutboxStatusFailed    = "failed"
)

const (
	EventPlanTransitioned  = "production_plan.transitioned"
	EventOrderTransitioned = "production_order.transitioned"
	EventStageTransitioned = "production_stage.transitioned"
	EventQualityRecorded   = "quality_check.recorded"
	EventOutputRecorded    = "production_output.recorded"
)

// ProductionEvent is an outbox row written in the same unit of work as the
// change it describes and later relayed to kafka.
type ProductionEvent struct {
	EventID     uuid.UUID  `gorm:"type:uuid;primaryKey" json:"event_id"`
	CompanyID   uuid.UUID  `gorm:"type:uuid;not null;index" json:"company_id"`
	EventType   string     `gorm:"size:100;not null" json:"event_type"`
	EntityType  string     `gorm:"size:50;not null" json:"entity_type"`
	EntityID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"entity_id"`
	Payload     JSONB      `gorm:"not null" json:"payload"`
	Status      string     `gorm:"size:20;not null;index" json:"status"`
	CreatedAt   time.Time  `gorm:"autoCreateTime;not null" json:"created_at"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

func (ProductionEvent) TableName() string {
	return TableProductionEvents
}

func (e *ProductionEvent) BeforeCreate(tx *gorm.DB) error {
	if e.EventID == uuid.Nil {
		e.EventID = uuid.New()
	}
	if e.Status == "" {
		e.Status = OutboxStatusPending
	}
	return nil
}

// NewProductionEvent builds a pending outbox row for entity.
func NewProductionEvent(companyID uuid.UUID, eventType, entityType string, entityID uuid.UUID, payload JSONB) *ProductionEvent {
	return &ProductionEvent{
		EventID:    uuid.New(),
		CompanyID:  companyID,
		EventType:  eventType,
		EntityType: entityType,
		EntityID:   entityID,
		Payload:    payload,
		Status:     OutboxStatusPending,
	}
}
