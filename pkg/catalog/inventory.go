package catalog

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/prodflow/prodflow/pkg/apperr"
	"github.com/prodflow/prodflow/pkg/model"
	"github.com/prodflow/prodflow/pkg/store"
	"github.com/prodflow/prodflow/pkg/tenant"
	"github.com/prodflow/prodflow/pkg/uniqueness"
)

// InventoryInput stocks exactly one of a product, raw material or
// semi-product in a warehouse.
type InventoryInput struct {
	WarehouseID   uuid.UUID       `json:"warehouse_id" binding:"required"`
	ProductID     *uuid.UUID      `json:"product_id"`
	RawMaterialID *uuid.UUID      `json:"raw_material_id"`
	SemiProductID *uuid.UUID      `json:"semi_product_id"`
	Quantity      decimal.Decimal `json:"quantity"`
	Unit          string          `json:"unit" binding:"required"`
}

type InventoryPatch struct {
	Quantity *decimal.Decimal `json:"quantity"`
	Unit     *string          `json:"unit"`
}

type InventoryFilter struct {
	WarehouseID *uuid.UUID
	Item        model.ItemRef
}

func (s *Service) CreateInventory(ctx context.Context, scope tenant.Scope, in InventoryInput) (*model.Inventory, error) {
	if in.Quantity.IsNegative() {
		return nil, apperr.Validation("quantity must not be negative")
	}
	if strings.TrimSpace(in.Unit) == "" {
		return nil, apperr.Validation("unit is required")
	}
	item, err := model.StockItemFromColumns(in.ProductID, in.RawMaterialID, in.SemiProductID)
	if err != nil {
		return nil, err
	}

	var wh model.Warehouse
	if err := store.LoadOwner(ctx, s.db, scope, &wh, in.WarehouseID, "warehouse"); err != nil {
		return nil, err
	}
	ref := item.Ref()
	if err := store.LoadParent(ctx, s.db, scope, ref.Kind.NewRow(), ref.ID, ref.Kind.Label(), wh.CompanyID); err != nil {
		return nil, err
	}
	rule := uniqueness.Rule{
		Table:     model.TableInventories,
		Fields:    []uniqueness.Field{{Column: "warehouse_id", Value: wh.ID}, {Column: ref.Kind.Column(), Value: ref.ID}},
		CompanyID: wh.CompanyID,
		Message:   "inventory for this " + ref.Kind.Label() + " already exists in the warehouse",
	}
	if err := s.unique.Ensure(ctx, scope, rule); err != nil {
		return nil, err
	}

	inv := &model.Inventory{
		Base:        model.NewBase(wh.CompanyID, scope.ActorID()),
		WarehouseID: wh.ID,
		Quantity:    in.Quantity,
		Unit:        in.Unit,
	}
	inv.SetItem(item)
	if err := s.db.Insert(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *Service) GetInventory(ctx context.Context, scope tenant.Scope, id uuid.UUID, opts ...store.ReadOptions) (*model.Inventory, error) {
	return get[model.Inventory](ctx, s.db, scope, id, "inventory", opts)
}

func (s *Service) ListInventory(ctx context.Context, scope tenant.Scope, f InventoryFilter, opts store.ListOptions) ([]model.Inventory, error) {
	var conds []store.Cond
	if f.WarehouseID != nil {
		conds = append(conds, store.Eq("warehouse_id", *f.WarehouseID))
	}
	if !f.Item.IsZero() {
		conds = append(conds, store.Eq(f.Item.Kind.Column(), f.Item.ID))
	}
	return list[model.Inventory](ctx, s.db, opts.Query(scope, "created_at ASC", conds...))
}

// UpdateInventory sets the counted quantity. The stocked item and warehouse
// are fixed once created.
func (s *Service) UpdateInventory(ctx context.Context, scope tenant.Scope, id uuid.UUID, p InventoryPatch) (*model.Inventory, error) {
	var inv model.Inventory
	if err := store.LoadTarget(ctx, s.db, scope, &inv, id, "inventory"); err != nil {
		return nil, err
	}
	patch := map[string]interface{}{}
	if p.Quantity != nil {
		if p.Quantity.IsNegative() {
			return nil, apperr.Validation("quantity must not be negative")
		}
		patch["quantity"] = *p.Quantity
	}
	if err := setString(patch, "unit", p.Unit); err != nil {
		return nil, err
	}
	if err := s.update(ctx, scope, &model.Inventory{}, id, patch); err != nil {
		return nil, err
	}
	return s.GetInventory(ctx, scope, id)
}

// BelowMinimum lists raw material stock rows whose quantity is under the
// material's minimum stock level.
func (s *Service) BelowMinimum(ctx context.Context, scope tenant.Scope) ([]model.Inventory, error) {
	rows, err := list[model.Inventory](ctx, s.db, store.Query{
		Scope:    scope,
		LiveOnly: true,
		Where:    []store.Cond{store.NotNull("raw_material_id")},
	})
	if err != nil {
		return nil, err
	}
	materials, err := list[model.RawMaterial](ctx, s.db, store.Query{Scope: scope, LiveOnly: true})
	if err != nil {
		return nil, err
	}
	minimum := make(map[uuid.UUID]decimal.Decimal, len(materials))
	for _, m := range materials {
		minimum[m.ID] = m.MinStock
	}
	low := []model.Inventory{}
	for _, inv := range rows {
		if inv.RawMaterialID == nil {
			continue
		}
		if floor, ok := minimum[*inv.RawMaterialID]; ok && inv.Quantity.LessThan(floor) {
			low = append(low, inv)
		}
	}
	return low, nil
}
