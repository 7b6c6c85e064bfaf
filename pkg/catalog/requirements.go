package catalog

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/prodflow/prodflow/pkg/apperr"
	"github.com/prodflow/prodflow/pkg/model"
	"github.com/prodflow/prodflow/pkg/store"
	"github.com/prodflow/prodflow/pkg/tenant"
)

// Requirement is the amount of one raw material a production run consumes.
type Requirement struct {
	RawMaterialID uuid.UUID       `json:"raw_material_id"`
	Quantity      decimal.Decimal `json:"quantity"`
	Unit          string          `json:"unit"`
}

type requirementKey struct {
	id   uuid.UUID
	unit string
}

type explosion struct {
	svc    *Service
	scope  tenant.Scope
	path   map[uuid.UUID]bool
	totals map[requirementKey]*Requirement
	order  []requirementKey
}

// MaterialRequirements expands recipeID scaled to quantity units of output
// into raw material totals. A semi-product ingredient expands through the
// live recipe that produces it, first by code when there are several.
// Totals keep the order in which each material is first reached.
func (s *Service) MaterialRequirements(ctx context.Context, scope tenant.Scope, recipeID uuid.UUID, quantity decimal.Decimal) ([]Requirement, error) {
	if !quantity.IsPositive() {
		return nil, apperr.Validation("quantity must be greater than zero")
	}
	recipe, err := s.GetRecipe(ctx, scope, recipeID)
	if err != nil {
		return nil, err
	}
	x := &explosion{
		svc:    s,
		scope:  scope,
		path:   map[uuid.UUID]bool{},
		totals: map[requirementKey]*Requirement{},
	}
	if err := x.expand(ctx, recipe, quantity); err != nil {
		return nil, err
	}

	out := make([]Requirement, 0, len(x.order))
	for _, k := range x.order {
		out = append(out, *x.totals[k])
	}
	return out, nil
}

func (x *explosion) expand(ctx context.Context, recipe *model.Recipe, quantity decimal.Decimal) error {
	if x.path[recipe.ID] {
		return apperr.Precondition("recipe %s consumes its own output", recipe.Code)
	}
	if !recipe.OutputQuantity.IsPositive() {
		return apperr.Precondition("recipe %s has no output quantity", recipe.Code)
	}
	x.path[recipe.ID] = true
	defer delete(x.path, recipe.ID)

	factor := quantity.Div(recipe.OutputQuantity)
	for _, d := range recipe.Details {
		need := d.Quantity.Mul(factor)
		ing, err := d.Ingredient()
		if err != nil {
			return err
		}
		ref := ing.Ref()
		if ref.Kind == model.ItemRawMaterial {
			x.add(ref.ID, d.Unit, need)
			continue
		}
		sub, err := x.producer(ctx, ref)
		if err != nil {
			return err
		}
		if err := x.expand(ctx, sub, need); err != nil {
			return err
		}
	}
	return nil
}

func (x *explosion) producer(ctx context.Context, ref model.ItemRef) (*model.Recipe, error) {
	recipes, err := x.svc.ListRecipes(ctx, x.scope, ref, store.ListOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(recipes) == 0 {
		return nil, apperr.Precondition("no recipe produces semi-product %s", ref.ID)
	}
	return x.svc.GetRecipe(ctx, x.scope, recipes[0].ID)
}

func (x *explosion) add(id uuid.UUID, unit string, qty decimal.Decimal) {
	k := requirementKey{id: id, unit: unit}
	if r, ok := x.totals[k]; ok {
		r.Quantity = r.Quantity.Add(qty)
		return
	}
	x.totals[k] = &Requirement{RawMaterialID: id, Quantity: qty, Unit: unit}
	x.order = append(x.order, k)
}
