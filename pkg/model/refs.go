package model

import (
	"strings"

	"github.com/google/uuid"

	"github.com/prodflow/prodflow/pkg/apperr"
)

type ItemKind string

const (
	ItemProduct     ItemKind = "product"
	ItemRawMaterial ItemKind = "raw_material"
	ItemSemiProduct ItemKind = "semi_product"
)

func (k ItemKind) Table() string {
	switch k {
	case ItemProduct:
		return TableProducts
	case ItemRawMaterial:
		return TableRawMaterials
	case ItemSemiProduct:
		return TableSemiProducts
	}
	return ""
}

func (k ItemKind) Label() string {
	return strings.ReplaceAll(string(k), "_", " ")
}

func (k ItemKind) Column() string {
	return string(k) + "_id"
}

// ItemRef points at exactly one catalog row.
type ItemRef struct {
	Kind ItemKind  `json:"kind"`
	ID   uuid.UUID `json:"id"`
}

func (r ItemRef) IsZero() bool {
	return r.Kind == "" || r.ID == uuid.Nil
}

type column struct {
	kind ItemKind
	id   *uuid.UUID
}

// oneOf returns the single populated column, or a ValidationError naming the
// accepted fields when none or several are set.
func oneOf(columns ...column) (ItemRef, error) {
	var (
		found ItemRef
		count int
		names = make([]string, 0, len(columns))
	)
	for _, c := range columns {
		names = append(names, c.kind.Column())
		if c.id != nil && *c.id != uuid.Nil {
			found = ItemRef{Kind: c.kind, ID: *c.id}
			count++
		}
	}
	if count != 1 {
		return ItemRef{}, apperr.Validation("exactly one of %s must be set", strings.Join(names, ", "))
	}
	return found, nil
}

func idFor(ref ItemRef, kind ItemKind) *uuid.UUID {
	if ref.Kind != kind || ref.ID == uuid.Nil {
		return nil
	}
	id := ref.ID
	return &id
}

// Produced is the output of an order or recipe: a product or a semi-product.
type Produced struct{ ref ItemRef }

func ProducedFromColumns(productID, semiProductID *uuid.UUID) (Produced, error) {
	ref, err := oneOf(column{ItemProduct, productID}, column{ItemSemiProduct, semiProductID})
	return Produced{ref}, err
}

func (p Produced) Ref() ItemRef { return p.ref }

func (p Produced) Columns() (productID, semiProductID *uuid.UUID) {
	return idFor(p.ref, ItemProduct), idFor(p.ref, ItemSemiProduct)
}

// Ingredient is a recipe input: a raw material or a semi-product.
type Ingredient struct{ ref ItemRef }

func IngredientFromColumns(rawMaterialID, semiProductID *uuid.UUID) (Ingredient, error) {
	ref, err := oneOf(column{ItemRawMaterial, rawMaterialID}, column{ItemSemiProduct, semiProductID})
	return Ingredient{ref}, err
}

func (i Ingredient) Ref() ItemRef { return i.ref }

func (i Ingredient) Columns() (rawMaterialID, semiProductID *uuid.UUID) {
	return idFor(i.ref, ItemRawMaterial), idFor(i.ref, ItemSemiProduct)
}

// SpecTarget is the subject of a spec parameter: a raw material or a semi-product.
type SpecTarget struct{ ref ItemRef }

func SpecTargetFromColumns(rawMaterialID, semiProductID *uuid.UUID) (SpecTarget, error) {
	ref, err := oneOf(column{ItemRawMaterial, rawMaterialID}, column{ItemSemiProduct, semiProductID})
	return SpecTarget{ref}, err
}

func (t SpecTarget) Ref() ItemRef { return t.ref }

func (t SpecTarget) Columns() (rawMaterialID, semiProductID *uuid.UUID) {
	return idFor(t.ref, ItemRawMaterial), idFor(t.ref, ItemSemiProduct)
}

// StockItem is what an inventory row counts.
type StockItem struct{ ref ItemRef }

func StockItemFromColumns(productID, rawMaterialID, semiProductID *uuid.UUID) (StockItem, error) {
	ref, err := oneOf(
		column{ItemProduct, productID},
		column{ItemRawMaterial, rawMaterialID},
		column{ItemSemiProduct, semiProductID},
	)
	return StockItem{ref}, err
}

func (s StockItem) Ref() ItemRef { return s.ref }

func (s StockItem) Columns() (productID, rawMaterialID, semiProductID *uuid.UUID) {
	return idFor(s.ref, ItemProduct), idFor(s.ref, ItemRawMaterial), idFor(s.ref, ItemSemiProduct)
}

// NewRow returns an empty row of the referenced table.
func (k ItemKind) NewRow() interface{ Header() *Base } {
	switch k {
	case ItemProduct:
		return &Product{}
	case ItemRawMaterial:
		return &RawMaterial{}
	case ItemSemiProduct:
		return &SemiProduct{}
	}
	return nil
}
