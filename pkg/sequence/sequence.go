// Package sequence hands out sparse ordering keys for child rows.
package sequence

import (
	"context"

	"github.com/google/uuid"

	"github.com/prodflow/prodflow/pkg/apperr"
	"github.com/prodflow/prodflow/pkg/model"
	"github.com/prodflow/prodflow/pkg/store"
	"github.com/prodflow/prodflow/pkg/tenant"
)

const Step = 10

// Collection is an ordered set of children under one parent column.
type Collection struct {
	Table        string
	ParentColumn string
	Column       string
}

var (
	RecipeDetails    = Collection{Table: model.TableRecipeDetails, ParentColumn: "recipe_id", Column: "sequence"}
	SpecDetails      = Collection{Table: model.TableSpecDetails, ParentColumn: "spec_id", Column: "sequence"}
	ProductionStages = Collection{Table: model.TableProductionStages, ParentColumn: "production_order_id", Column: "sequence_number"}
)

type maxRow struct {
	Value int
}

type Sequencer struct {
	store store.Store
}

func New(s store.Store) *Sequencer {
	return &Sequencer{store: s}
}

// Next returns the highest key among live children of parentID plus Step, or
// Step when the parent has none. Existing siblings are never renumbered.
func (s *Sequencer) Next(ctx context.Context, scope tenant.Scope, c Collection, parentID uuid.UUID) (int, error) {
	var rows []maxRow
	err := s.store.Find(ctx, &rows, store.Query{
		Table:    c.Table,
		Select:   c.Column + " AS value",
		Where:    []store.Cond{store.Eq(c.ParentColumn, parentID)},
		Scope:    scope,
		LiveOnly: true,
		Order:    c.Column + " DESC",
		Limit:    1,
	})
	if err != nil {
		return 0, apperr.Store(err)
	}
	if len(rows) == 0 {
		return Step, nil
	}
	return rows[0].Value + Step, nil
}

// Taken reports whether a live child of parentID already uses value.
func (s *Sequencer) Taken(ctx context.Context, scope tenant.Scope, c Collection, parentID uuid.UUID, value int) (bool, error) {
	return store.Exists(ctx, s.store, c.Table, store.Query{
		Scope:    scope,
		LiveOnly: true,
		Where:    []store.Cond{store.Eq(c.ParentColumn, parentID), store.Eq(c.Column, value)},
	})
}
