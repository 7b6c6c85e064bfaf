package eventbus

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prodflow/prodflow/pkg/model"
)

func TestNewEventCarriesChange(t *testing.T) {
	company := uuid.New()
	stage := uuid.New()
	pe := model.NewProductionEvent(company, model.EventStageTransitioned, "production_stage", stage,
		model.JSONB{"from": "pending", "to": "in_progress"})

	event, err := NewEvent(pe.EventType, ChangeOf(pe))
	require.NoError(t, err)
	assert.Equal(t, model.EventStageTransitioned, event.Type)

	var change ProductionChange
	require.NoError(t, json.Unmarshal(event.Data, &change))
	assert.Equal(t, stage.String(), change.EntityID)
	assert.Equal(t, "in_progress", change.Payload["to"])
}

func TestCompanyChannel(t *testing.T) {
	assert.Equal(t, "pf:events:production:abc", CompanyChannel("abc"))
}
