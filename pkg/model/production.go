package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PlanStatus string

const (
	PlanDraft     PlanStatus = "draft"
	PlanActive    PlanStatus = "active"
	PlanCompleted PlanStatus = "completed"
	PlanCancelled PlanStatus = "cancelled"
)

func (s PlanStatus) Terminal() bool {
	return s == PlanCompleted || s == PlanCancelled
}

type OrderStatus string

const (
	OrderDraft      OrderStatus = "draft"
	OrderPending    OrderStatus = "pending"
	OrderInProgress OrderStatus = "in_progress"
	OrderCompleted  OrderStatus = "completed"
	OrderCancelled  OrderStatus = "cancelled"
)

func (s OrderStatus) Terminal() bool {
	return s == OrderCompleted || s == OrderCancelled
}

type StageStatus string

const (
	StagePending    StageStatus = "pending"
	StageInProgress StageStatus = "in_progress"
	StageCompleted  StageStatus = "completed"
	StageCancelled  StageStatus = "cancelled"
)

func (s StageStatus) Terminal() bool {
	return s == StageCompleted || s == StageCancelled
}

type ProductionPlan struct {
	Base
	Code       string     `gorm:"size:50;not null;index" json:"code"`
	Name       string     `gorm:"size:200;not null" json:"name"`
	StartDate  *time.Time `json:"start_date,omitempty"`
	EndDate    *time.Time `json:"end_date,omitempty"`
	PlanStatus PlanStatus `gorm:"type:varchar(20);not null;index" json:"plan_status"`
	Priority   int        `gorm:"not null;default:0" json:"priority"`
	Notes      string     `gorm:"type:text" json:"notes"`
}

func (ProductionPlan) TableName() string { return TableProductionPlans }

type ProductionOrder struct {
	Base
	Code          string            `gorm:"size:50;not null;index" json:"code"`
	PlanID        *uuid.UUID        `gorm:"type:uuid;index" json:"plan_id,omitempty"`
	ProductID     *uuid.UUID        `gorm:"type:uuid;index" json:"product_id,omitempty"`
	SemiProductID *uuid.UUID        `gorm:"type:uuid;index" json:"semi_product_id,omitempty"`
	RecipeID      uuid.UUID         `gorm:"type:uuid;not null;index" json:"recipe_id"`
	Quantity      decimal.Decimal   `gorm:"type:decimal(14,4);not null" json:"quantity"`
	StartDate     *time.Time        `json:"start_date,omitempty"`
	EndDate       *time.Time        `json:"end_date,omitempty"`
	OrderStatus   OrderStatus       `gorm:"type:varchar(20);not null;index" json:"order_status"`
	Progress      int               `gorm:"not null;default:0" json:"progress"`
	StartedAt     *time.Time        `json:"started_at,omitempty"`
	FinishedAt    *time.Time        `json:"finished_at,omitempty"`
	Notes         string            `gorm:"type:text" json:"notes"`
	Stages        []ProductionStage `gorm:"foreignKey:ProductionOrderID" json:"stages,omitempty"`
}

func (ProductionOrder) TableName() string { return TableProductionOrders }

func (o *ProductionOrder) Produced() (Produced, error) {
	return ProducedFromColumns(o.ProductID, o.SemiProductID)
}

func (o *ProductionOrder) SetProduced(p Produced) {
	o.ProductID, o.SemiProductID = p.Columns()
}

// ProductionStage is one step of an order. QualityApproved is written only by
// quality check results.
type ProductionStage struct {
	Base
	ProductionOrderID    uuid.UUID       `gorm:"type:uuid;not null;index" json:"production_order_id"`
	SequenceNumber       int             `gorm:"not null" json:"sequence_number"`
	Name                 string          `gorm:"size:200;not null" json:"name"`
	Description          string          `gorm:"type:text" json:"description"`
	StageStatus          StageStatus     `gorm:"type:varchar(20);not null;index" json:"stage_status"`
	QualityCheckRequired bool            `gorm:"not null" json:"quality_check_required"`
	QualityApproved      bool            `gorm:"not null" json:"quality_approved"`
	StartedAt            *time.Time      `json:"started_at,omitempty"`
	CompletedAt          *time.Time      `json:"completed_at,omitempty"`
	Resources            []StageResource `gorm:"foreignKey:ProductionStageID" json:"resources,omitempty"`
}

func (ProductionStage) TableName() string { return TableProductionStages }

// StageResource names a machine, operator or tool assigned to a stage.
type StageResource struct {
	Base
	ProductionStageID uuid.UUID `gorm:"type:uuid;not null;index" json:"production_stage_id"`
	ResourceType      string    `gorm:"size:50;not null" json:"resource_type"`
	ResourceName      string    `gorm:"size:200;not null" json:"resource_name"`
	Notes             string    `gorm:"type:text" json:"notes"`
}

func (StageResource) TableName() string { return TableStageResources }

type QualityCheck struct {
	Base
	ProductionStageID uuid.UUID          `gorm:"type:uuid;not null;index" json:"production_stage_id"`
	Passed            bool               `gorm:"not null" json:"passed"`
	Notes             string             `gorm:"type:text" json:"notes"`
	CheckDate         time.Time          `gorm:"not null" json:"check_date"`
	CheckedBy         string             `gorm:"size:64" json:"checked_by"`
	Items             []QualityCheckItem `gorm:"foreignKey:QualityCheckID" json:"items,omitempty"`
}

func (QualityCheck) TableName() string { return TableQualityChecks }

type QualityCheckItem struct {
	Base
	QualityCheckID uuid.UUID `gorm:"type:uuid;not null;index" json:"quality_check_id"`
	Parameter      string    `gorm:"size:100;not null" json:"parameter"`
	ExpectedValue  string    `gorm:"size:100" json:"expected_value"`
	ActualValue    string    `gorm:"size:100" json:"actual_value"`
	Unit           string    `gorm:"size:20" json:"unit"`
	Passed         bool      `gorm:"not null" json:"passed"`
}

func (QualityCheckItem) TableName() string { return TableQualityCheckItems }

type ProductionOutput struct {
	Base
	ProductionOrderID uuid.UUID       `gorm:"type:uuid;not null;index" json:"production_order_id"`
	Quantity          decimal.Decimal `gorm:"type:decimal(14,4);not null" json:"quantity"`
	Unit              string          `gorm:"size:20;not null" json:"unit"`
	WarehouseID       *uuid.UUID      `gorm:"type:uuid;index" json:"warehouse_id,omitempty"`
	OutputDate        time.Time       `gorm:"not null" json:"output_date"`
	QualityStatus     string          `gorm:"size:50" json:"quality_status"`
	LotNumbers        StringList      `json:"lot_numbers"`
	Notes             string          `gorm:"type:text" json:"notes"`
}

func (ProductionOutput) TableName() string { return TableProductionOutputs }

type OutputQualityCheck struct {
	Base
	ProductionOutputID uuid.UUID `gorm:"type:uuid;not null;index" json:"production_output_id"`
	QualityCheckID     uuid.UUID `gorm:"type:uuid;not null;index" json:"quality_check_id"`
}

func (OutputQualityCheck) TableName() string { return TableOutputQualityChecks }
