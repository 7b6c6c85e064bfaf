package model

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Recipe struct {
	Base
	Code           string          `gorm:"size:50;not null;index" json:"code"`
	Name           string          `gorm:"size:200;not null" json:"name"`
	Description    string          `gorm:"type:text" json:"description"`
	ProductID      *uuid.UUID      `gorm:"type:uuid;index" json:"product_id,omitempty"`
	SemiProductID  *uuid.UUID      `gorm:"type:uuid;index" json:"semi_product_id,omitempty"`
	OutputQuantity decimal.Decimal `gorm:"type:decimal(14,4);not null" json:"output_quantity"`
	Unit           string          `gorm:"size:20;not null" json:"unit"`
	Details        []RecipeDetail  `gorm:"foreignKey:RecipeID" json:"details,omitempty"`
}

func (Recipe) TableName() string { return TableRecipes }

func (r *Recipe) Produced() (Produced, error) {
	return ProducedFromColumns(r.ProductID, r.SemiProductID)
}

func (r *Recipe) SetProduced(p Produced) {
	r.ProductID, r.SemiProductID = p.Columns()
}

// RecipeDetail is one ingredient line. Sequence only orders lines for display
// and processing.
type RecipeDetail struct {
	Base
	RecipeID      uuid.UUID       `gorm:"type:uuid;not null;index" json:"recipe_id"`
	RawMaterialID *uuid.UUID      `gorm:"type:uuid;index" json:"raw_material_id,omitempty"`
	SemiProductID *uuid.UUID      `gorm:"type:uuid;index" json:"semi_product_id,omitempty"`
	Quantity      decimal.Decimal `gorm:"type:decimal(14,4);not null" json:"quantity"`
	Unit          string          `gorm:"size:20;not null" json:"unit"`
	Sequence      int             `gorm:"not null;default:0" json:"sequence"`
	Notes         string          `gorm:"type:text" json:"notes"`
}

func (RecipeDetail) TableName() string { return TableRecipeDetails }

func (d *RecipeDetail) Ingredient() (Ingredient, error) {
	return IngredientFromColumns(d.RawMaterialID, d.SemiProductID)
}

func (d *RecipeDetail) SetIngredient(i Ingredient) {
	d.RawMaterialID, d.SemiProductID = i.Columns()
}

type Spec struct {
	Base
	Code        string       `gorm:"size:50;not null;index" json:"code"`
	Name        string       `gorm:"size:200;not null" json:"name"`
	Description string       `gorm:"type:text" json:"description"`
	Version     string       `gorm:"size:20" json:"version"`
	Details     []SpecDetail `gorm:"foreignKey:SpecID" json:"details,omitempty"`
}

func (Spec) TableName() string { return TableSpecs }

type SpecDetail struct {
	Base
	SpecID        uuid.UUID  `gorm:"type:uuid;not null;index" json:"spec_id"`
	RawMaterialID *uuid.UUID `gorm:"type:uuid;index" json:"raw_material_id,omitempty"`
	SemiProductID *uuid.UUID `gorm:"type:uuid;index" json:"semi_product_id,omitempty"`
	Parameter     string     `gorm:"size:100;not null" json:"parameter"`
	ExpectedValue string     `gorm:"size:100" json:"expected_value"`
	MinValue      *float64   `json:"min_value,omitempty"`
	MaxValue      *float64   `json:"max_value,omitempty"`
	Unit          string     `gorm:"size:20" json:"unit"`
	Sequence      int        `gorm:"not null;default:0" json:"sequence"`
}

func (SpecDetail) TableName() string { return TableSpecDetails }

func (d *SpecDetail) Target() (SpecTarget, error) {
	return SpecTargetFromColumns(d.RawMaterialID, d.SemiProductID)
}

func (d *SpecDetail) SetTarget(t SpecTarget) {
	d.RawMaterialID, d.SemiProductID = t.Columns()
}
