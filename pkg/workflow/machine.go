// Package workflow implements the production lifecycle: plans, orders,
// stages, quality checks and outputs, and the gates between them.
package workflow

import (
	"github.com/prodflow/prodflow/pkg/apperr"
	"github.com/prodflow/prodflow/pkg/metrics"
	"github.com/prodflow/prodflow/pkg/model"
)

// Machine is a transition table for one status type.
type Machine[S ~string] struct {
	entity string
	edges  map[S][]S
}

func (m Machine[S]) Can(from, to S) bool {
	for _, next := range m.edges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Check fails with InvalidState carrying both states when from cannot move to to.
func (m Machine[S]) Check(from, to S) error {
	if m.Can(from, to) {
		return nil
	}
	metrics.RejectedTransitionsTotal.WithLabelValues(m.entity, "invalid_state").Inc()
	return apperr.InvalidState(m.entity, string(from), string(to))
}

func (m Machine[S]) Valid(s S) bool {
	_, ok := m.edges[s]
	return ok
}

var PlanMachine = Machine[model.PlanStatus]{
	entity: "production plan",
	edges: map[model.PlanStatus][]model.PlanStatus{
		model.PlanDraft:     {model.PlanActive, model.PlanCancelled},
		model.PlanActive:    {model.PlanCompleted, model.PlanCancelled},
		model.PlanCompleted: nil,
		model.PlanCancelled: nil,
	},
}

var OrderMachine = Machine[model.OrderStatus]{
	entity: "production order",
	edges: map[model.OrderStatus][]model.OrderStatus{
		model.OrderDraft:      {model.OrderPending, model.OrderCancelled},
		model.OrderPending:    {model.OrderInProgress, model.OrderCancelled},
		model.OrderInProgress: {model.OrderCompleted, model.OrderCancelled},
		model.OrderCompleted:  nil,
		model.OrderCancelled:  nil,
	},
}

var StageMachine = Machine[model.StageStatus]{
	entity: "production stage",
	edges: map[model.StageStatus][]model.StageStatus{
		model.StagePending:    {model.StageInProgress, model.StageCancelled},
		model.StageInProgress: {model.StageCompleted, model.StageCancelled},
		model.StageCompleted:  nil,
		model.StageCancelled:  nil,
	},
}
