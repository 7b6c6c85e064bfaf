package eventbus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/prodflow/prodflow/pkg/model"
)

type Event struct {
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// ProductionChange is the body of every production event.
type ProductionChange struct {
	EventID    string      `json:"event_id"`
	CompanyID  string      `json:"company_id"`
	EntityType string      `json:"entity_type"`
	EntityID   string      `json:"entity_id"`
	Payload    model.JSONB `json:"payload"`
}

const ChannelProduction = "pf:events:production"

// CompanyChannel is the per-tenant channel subscribers use to follow one
// company's production floor.
func CompanyChannel(companyID string) string {
	return ChannelProduction + ":" + companyID
}

// Publisher receives production events after their unit of work succeeded.
type Publisher interface {
	PublishProductionEvent(ctx context.Context, event *model.ProductionEvent) error
}

type Bus struct {
	client redis.UniversalClient
}

var _ Publisher = (*Bus)(nil)

func NewBus(client redis.UniversalClient) *Bus {
	return &Bus{client: client}
}

func NewEvent(eventType string, payload interface{}) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		Type:      eventType,
		Timestamp: time.Now().Unix(),
		Data:      data,
	}, nil
}

func (b *Bus) Publish(ctx context.Context, channel string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, channel, payload).Err()
}

func (b *Bus) PublishProductionEvent(ctx context.Context, pe *model.ProductionEvent) error {
	event, err := NewEvent(pe.EventType, ChangeOf(pe))
	if err != nil {
		return err
	}
	if err := b.Publish(ctx, ChannelProduction, event); err != nil {
		return err
	}
	return b.Publish(ctx, CompanyChannel(pe.CompanyID.String()), event)
}

func ChangeOf(pe *model.ProductionEvent) ProductionChange {
	return ProductionChange{
		EventID:    pe.EventID.String(),
		CompanyID:  pe.CompanyID.String(),
		EntityType: pe.EntityType,
		EntityID:   pe.EntityID.String(),
		Payload:    pe.Payload,
	}
}

// Nop discards events. Used when redis is disabled.
type Nop struct{}

func (Nop) PublishProductionEvent(context.Context, *model.ProductionEvent) error { return nil }
