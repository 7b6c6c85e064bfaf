package outbox_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/prodflow/prodflow/pkg/model"
	"github.com/prodflow/prodflow/pkg/outbox"
	"github.com/prodflow/prodflow/pkg/store/postgres"
	"github.com/prodflow/prodflow/pkg/store/storetest"
	"github.com/prodflow/prodflow/pkg/tenant"
)

type sent struct {
	key     string
	value   []byte
	headers []kafka.Header
}

type fakeProducer struct {
	failEvents bool
	events     []sent
	dlq        []sent
}

func (p *fakeProducer) PublishEvent(_ context.Context, key, value []byte, headers ...kafka.Header) error {
	if p.failEvents {
		return errors.New("broker unavailable")
	}
	p.events = append(p.events, sent{string(key), value, headers})
	return nil
}

func (p *fakeProducer) PublishDLQ(_ context.Context, key, value []byte, headers ...kafka.Header) error {
	p.dlq = append(p.dlq, sent{string(key), value, headers})
	return nil
}

func seedEvent(t *testing.T, repo *postgres.Store) *model.ProductionEvent {
	t.Helper()
	pe := model.NewProductionEvent(uuid.New(), model.EventOrderTransitioned, "production_order", uuid.New(),
		model.JSONB{"from": "draft", "to": "pending"})
	require.NoError(t, repo.Insert(context.Background(), pe))
	return pe
}

func ownerScope(pe *model.ProductionEvent) tenant.Scope {
	return tenant.For(tenant.Actor{ID: "u1", CompanyID: pe.CompanyID, Roles: []tenant.Role{tenant.RoleUser}})
}

func TestRelayPublishesAndMarks(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	pe := seedEvent(t, s)
	repo := postgres.NewOutboxRepository(s.DB())
	producer := &fakeProducer{}

	relay := outbox.NewRelay(repo, producer, zaptest.NewLogger(t), 0, 10)
	assert.Equal(t, 1, relay.ProcessPending(ctx))

	require.Len(t, producer.events, 1)
	assert.Equal(t, pe.EntityID.String(), producer.events[0].key)

	var msg outbox.Message
	require.NoError(t, json.Unmarshal(producer.events[0].value, &msg))
	assert.Equal(t, model.EventOrderTransitioned, msg.EventType)
	assert.Equal(t, "pending", msg.Payload["to"])

	pending, err := repo.ListPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	history, err := repo.ForEntity(ctx, ownerScope(pe), pe.EntityID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, model.OutboxStatusPublished, history[0].Status)
	assert.NotNil(t, history[0].PublishedAt)
}

func TestEntityHistoryIsScoped(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	pe := seedEvent(t, s)
	repo := postgres.NewOutboxRepository(s.DB())

	other := tenant.For(tenant.Actor{ID: "u2", CompanyID: uuid.New(), Roles: []tenant.Role{tenant.RoleUser}})
	history, err := repo.ForEntity(ctx, other, pe.EntityID)
	require.NoError(t, err)
	assert.Empty(t, history)

	history, err = repo.ForEntity(ctx, ownerScope(pe), pe.EntityID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestRelaySendsFailuresToDLQ(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	pe := seedEvent(t, s)
	repo := postgres.NewOutboxRepository(s.DB())
	producer := &fakeProducer{failEvents: true}

	relay := outbox.NewRelay(repo, producer, zaptest.NewLogger(t), 0, 10)
	assert.Equal(t, 0, relay.ProcessPending(ctx))
	require.Len(t, producer.dlq, 1)

	var dlq outbox.DLQMessage
	require.NoError(t, json.Unmarshal(producer.dlq[0].value, &dlq))
	assert.Equal(t, "broker unavailable", dlq.Error)

	history, err := repo.ForEntity(ctx, ownerScope(pe), pe.EntityID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, model.OutboxStatusFailed, history[0].Status)
}
