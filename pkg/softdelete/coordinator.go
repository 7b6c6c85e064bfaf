// Package softdelete guards deletions with application-level referential
// checks and flips status instead of removing rows.
package softdelete

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prodflow/prodflow/pkg/apperr"
	"github.com/prodflow/prodflow/pkg/metrics"
	"github.com/prodflow/prodflow/pkg/store"
	"github.com/prodflow/prodflow/pkg/tenant"
)

type Result struct {
	Kind    Kind      `json:"kind"`
	ID      uuid.UUID `json:"id"`
	Message string    `json:"message"`
}

type Coordinator struct {
	db       store.Database
	registry *Registry
	logger   *zap.Logger
}

func NewCoordinator(db store.Database, registry *Registry, logger *zap.Logger) *Coordinator {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Coordinator{db: db, registry: registry, logger: logger}
}

func (c *Coordinator) entity(kind Kind) (Entity, error) {
	e, ok := c.registry.Lookup(kind)
	if !ok {
		return Entity{}, apperr.Validation("unknown entity kind %q", kind)
	}
	return e, nil
}

// load returns the live row's company. Rows that are already soft-deleted are
// reported as not found.
func (c *Coordinator) load(ctx context.Context, scope tenant.Scope, e Entity, id uuid.UUID) (uuid.UUID, error) {
	row := e.New()
	if err := store.Get(ctx, c.db, scope, row, id, e.Label); err != nil {
		return uuid.Nil, err
	}
	h := row.Header()
	if !h.Status {
		return uuid.Nil, apperr.NotFound(e.Label)
	}
	return h.CompanyID, nil
}

// CheckDependencies runs every blocking relation of the entity in registry
// order and fails with Conflict on the first one that has live rows.
func (c *Coordinator) CheckDependencies(ctx context.Context, scope tenant.Scope, kind Kind, id uuid.UUID) error {
	e, err := c.entity(kind)
	if err != nil {
		return err
	}
	companyID, err := c.load(ctx, scope, e, id)
	if err != nil {
		return err
	}
	return c.checkBlocking(ctx, scope, e, id, companyID)
}

func (c *Coordinator) checkBlocking(ctx context.Context, scope tenant.Scope, e Entity, id, companyID uuid.UUID) error {
	for _, rel := range e.blocking() {
		used, err := store.Exists(ctx, c.db, rel.Table, store.Query{
			Scope:    scope,
			LiveOnly: true,
			Where: []store.Cond{
				store.Eq("company_id", companyID),
				store.Eq(rel.Column, id),
			},
		})
		if err != nil {
			return err
		}
		if used {
			metrics.ConflictsTotal.WithLabelValues("dependency", rel.Table).Inc()
			return apperr.Conflict("%s", rel.Message)
		}
	}
	return nil
}

// Delete soft-deletes the entity after its dependency checks pass. Cascading
// children are flipped first, then the entity itself, each as its own step.
func (c *Coordinator) Delete(ctx context.Context, scope tenant.Scope, kind Kind, id uuid.UUID) (*Result, error) {
	e, err := c.entity(kind)
	if err != nil {
		return nil, err
	}
	companyID, err := c.load(ctx, scope, e, id)
	if err != nil {
		return nil, err
	}
	if err := scope.AuthorizeWrite(companyID); err != nil {
		return nil, err
	}
	if err := c.checkBlocking(ctx, scope, e, id, companyID); err != nil {
		return nil, err
	}

	patch := func() map[string]interface{} {
		return map[string]interface{}{
			"status":     false,
			"updated_by": scope.ActorID(),
			"updated_at": time.Now(),
		}
	}

	var steps []store.Step
	for _, rel := range e.cascading() {
		rel := rel
		steps = append(steps, store.Step{
			Name: "cascade " + rel.Table,
			Do: func(ctx context.Context, s store.Store) error {
				_, err := s.Update(ctx, nil, store.Query{
					Table:    rel.Table,
					Scope:    scope,
					LiveOnly: true,
					Where: []store.Cond{
						store.Eq("company_id", companyID),
						store.Eq(rel.Column, id),
					},
				}, patch())
				return err
			},
		})
	}
	steps = append(steps, store.Step{
		Name: "delete " + e.Table,
		Do: func(ctx context.Context, s store.Store) error {
			n, err := s.Update(ctx, nil, store.Query{
				Table: e.Table,
				Scope: scope,
				Where: []store.Cond{store.Eq("id", id)},
			}, patch())
			if err != nil {
				return err
			}
			if n == 0 {
				return apperr.NotFound(e.Label)
			}
			return nil
		},
	})

	unit := store.Unit{Name: fmt.Sprintf("softdelete.%s", kind), Entity: string(kind), ID: id, CompanyID: companyID}
	if err := c.db.Run(ctx, unit, steps...); err != nil {
		return nil, err
	}

	metrics.SoftDeletesTotal.WithLabelValues(string(kind)).Inc()
	c.logger.Info("entity soft-deleted",
		zap.String("entity", string(kind)),
		zap.String("id", id.String()),
		zap.String("company_id", companyID.String()),
		zap.String("actor", scope.ActorID()),
	)

	return &Result{Kind: kind, ID: id, Message: fmt.Sprintf("%s deleted successfully", e.Label)}, nil
}
