package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/prodflow/prodflow/pkg/metrics"
	"github.com/prodflow/prodflow/pkg/model"
)

type Repository interface {
	ListPending(ctx context.Context, limit int) ([]model.ProductionEvent, error)
	MarkPublished(ctx context.Context, eventID uuid.UUID, publishedAt time.Time) error
	MarkFailed(ctx context.Context, eventID uuid.UUID) error
}

type Producer interface {
	PublishEvent(ctx context.Context, key, value []byte, headers ...kafka.Header) error
	PublishDLQ(ctx context.Context, key, value []byte, headers ...kafka.Header) error
}

type Relay struct {
	repo         Repository
	producer     Producer
	logger       *zap.Logger
	pollInterval time.Duration
	batchSize    int
}

type Message struct {
	EventID    string      `json:"event_id"`
	EventType  string      `json:"event_type"`
	CompanyID  string      `json:"company_id"`
	EntityType string      `json:"entity_type"`
	EntityID   string      `json:"entity_id"`
	Payload    model.JSONB `json:"payload"`
	CreatedAt  time.Time   `json:"created_at"`
}

type DLQMessage struct {
	Event    Message   `json:"event"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

func NewRelay(repo Repository, producer Producer, logger *zap.Logger, pollInterval time.Duration, batchSize int) *Relay {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Relay{
		repo:         repo,
		producer:     producer,
		logger:       logger,
		pollInterval: pollInterval,
		batchSize:    batchSize,
	}
}

func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info("outbox relay starting",
		zap.Duration("poll_interval", r.pollInterval),
		zap.Int("batch_size", r.batchSize),
	)

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	r.ProcessPending(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay shutting down")
			return ctx.Err()
		case <-ticker.C:
			r.ProcessPending(ctx)
		}
	}
}

// ProcessPending relays one batch and returns how many events were published.
func (r *Relay) ProcessPending(ctx context.Context) int {
	events, err := r.repo.ListPending(ctx, r.batchSize)
	if err != nil {
		r.logger.Warn("failed to list pending outbox events", zap.Error(err))
		return 0
	}

	published := 0
	for _, event := range events {
		if err := r.publishEvent(ctx, event); err != nil {
			r.logger.Warn("failed to publish outbox event", zap.Error(err), zap.String("event_id", event.EventID.String()))
			continue
		}
		published++
	}
	return published
}

func messageOf(event model.ProductionEvent) Message {
	return Message{
		EventID:    event.EventID.String(),
		EventType:  event.EventType,
		CompanyID:  event.CompanyID.String(),
		EntityType: event.EntityType,
		EntityID:   event.EntityID.String(),
		Payload:    event.Payload,
		CreatedAt:  event.CreatedAt,
	}
}

func (r *Relay) publishEvent(ctx context.Context, event model.ProductionEvent) error {
	message := messageOf(event)
	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}

	// Keyed by entity so every change to one order or stage lands on the same
	// partition in order.
	key := []byte(event.EntityID.String())
	headers := []kafka.Header{
		{Key: headerEventID, Value: []byte(message.EventID)},
		{Key: headerCompanyID, Value: []byte(message.CompanyID)},
		{Key: headerEventType, Value: []byte(message.EventType)},
	}

	if err := r.producer.PublishEvent(ctx, key, payload, headers...); err != nil {
		r.logger.Warn("failed to publish to kafka, sending to DLQ", zap.Error(err), zap.String("event_id", message.EventID))
		return r.publishDLQ(ctx, key, message, err, event.EventID)
	}

	if err := r.repo.MarkPublished(ctx, event.EventID, time.Now()); err != nil {
		r.logger.Warn("failed to mark event published", zap.Error(err), zap.String("event_id", message.EventID))
		return err
	}

	metrics.OutboxPublishedTotal.WithLabelValues("published").Inc()
	return nil
}

func (r *Relay) publishDLQ(ctx context.Context, key []byte, message Message, publishErr error, eventID uuid.UUID) error {
	dlq := DLQMessage{
		Event:    message,
		Error:    publishErr.Error(),
		FailedAt: time.Now(),
	}

	payload, err := json.Marshal(dlq)
	if err != nil {
		return err
	}

	if err := r.producer.PublishDLQ(ctx, key, payload, kafka.Header{Key: headerDLQError, Value: []byte(publishErr.Error())}); err != nil {
		return err
	}

	if err := r.repo.MarkFailed(ctx, eventID); err != nil {
		r.logger.Warn("failed to mark event failed", zap.Error(err), zap.String("event_id", eventID.String()))
		return err
	}

	metrics.OutboxPublishedTotal.WithLabelValues("dead_lettered").Inc()
	return publishErr
}
