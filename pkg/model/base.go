package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base is embedded by every tenant-owned row. Status=false marks the row as
// soft-deleted; rows are never physically removed.
type Base struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CompanyID uuid.UUID `gorm:"type:uuid;not null;index" json:"company_id"`
	Status    bool      `gorm:"not null;index" json:"status"`
	CreatedBy string    `gorm:"size:64" json:"created_by"`
	UpdatedBy string    `gorm:"size:64" json:"updated_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// NewBase returns a live row header owned by companyID and stamped with actor.
func NewBase(companyID uuid.UUID, actor string) Base {
	return Base{
		ID:        uuid.New(),
		CompanyID: companyID,
		Status:    true,
		CreatedBy: actor,
		UpdatedBy: actor,
	}
}

const (
	TableCompanies           = "companies"
	TableGroups              = "groups"
	TableRoles               = "roles"
	TableUserInGroups        = "user_in_groups"
	TableGroupInRoles        = "group_in_roles"
	TableProducts            = "products"
	TableCustomers           = "customers"
	TableProductCustomers    = "product_customers"
	TableRawMaterials        = "raw_materials"
	TableSemiProducts        = "semi_products"
	TableWarehouses          = "warehouses"
	TableInventories         = "inventories"
	TableRecipes             = "recipes"
	TableRecipeDetails       = "recipe_details"
	TableSpecs               = "specs"
	TableSpecDetails         = "spec_details"
	TableProductionPlans     = "production_plans"
	TableProductionOrders    = "production_orders"
	TableProductionStages    = "production_stages"
	TableStageResources      = "stage_resources"
	TableQualityChecks       = "quality_checks"
	TableQualityCheckItems   = "quality_check_items"
	TableProductionOutputs   = "production_outputs"
	TableOutputQualityChecks = "output_quality_checks"
	TableProductionEvents    = "production_events"
)

// All lists every persisted model in migration order.
func All() []interface{} {
	return []interface{}{
		&Company{},
		&Group{},
		&Role{},
		&UserInGroup{},
		&GroupInRole{},
		&Product{},
		&Customer{},
		&ProductCustomer{},
		&RawMaterial{},
		&SemiProduct{},
		&Warehouse{},
		&Inventory{},
		&Recipe{},
		&RecipeDetail{},
		&Spec{},
		&SpecDetail{},
		&ProductionPlan{},
		&ProductionOrder{},
		&ProductionStage{},
		&StageResource{},
		&QualityCheck{},
		&QualityCheckItem{},
		&ProductionOutput{},
		&OutputQualityCheck{},
		&ProductionEvent{},
	}
}

// Header exposes the embedded Base of any tenant-owned row.
func (b *Base) Header() *Base {
	return b
}
