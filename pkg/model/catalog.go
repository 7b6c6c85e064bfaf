package model

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Product struct {
	Base
	Code        string `gorm:"size:50;not null;index" json:"code"`
	Name        string `gorm:"size:200;not null" json:"name"`
	Unit        string `gorm:"size:20;not null;default:pcs" json:"unit"`
	Description string `gorm:"type:text" json:"description"`
}

func (Product) TableName() string { return TableProducts }

type Customer struct {
	Base
	Name    string `gorm:"size:200;not null" json:"name"`
	Email   string `gorm:"size:200" json:"email"`
	Phone   string `gorm:"size:50" json:"phone"`
	Address string `gorm:"type:text" json:"address"`
}

func (Customer) TableName() string { return TableCustomers }

type ProductCustomer struct {
	Base
	ProductID  uuid.UUID `gorm:"type:uuid;not null;index" json:"product_id"`
	CustomerID uuid.UUID `gorm:"type:uuid;not null;index" json:"customer_id"`
}

func (ProductCustomer) TableName() string { return TableProductCustomers }

type RawMaterial struct {
	Base
	Code        string          `gorm:"size:50;not null;index" json:"code"`
	Name        string          `gorm:"size:200;not null" json:"name"`
	Unit        string          `gorm:"size:20;not null" json:"unit"`
	MinStock    decimal.Decimal `gorm:"type:decimal(14,4);not null" json:"min_stock"`
	Description string          `gorm:"type:text" json:"description"`
}

func (RawMaterial) TableName() string { return TableRawMaterials }

type SemiProduct struct {
	Base
	Code        string `gorm:"size:50;not null;index" json:"code"`
	Name        string `gorm:"size:200;not null" json:"name"`
	Unit        string `gorm:"size:20;not null" json:"unit"`
	Description string `gorm:"type:text" json:"description"`
}

func (SemiProduct) TableName() string { return TableSemiProducts }

type Warehouse struct {
	Base
	Code     string `gorm:"size:50;not null;index" json:"code"`
	Name     string `gorm:"size:200;not null" json:"name"`
	Location string `gorm:"size:255" json:"location"`
}

func (Warehouse) TableName() string { return TableWarehouses }

type Inventory struct {
	Base
	WarehouseID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"warehouse_id"`
	ProductID     *uuid.UUID      `gorm:"type:uuid;index" json:"product_id,omitempty"`
	RawMaterialID *uuid.UUID      `gorm:"type:uuid;index" json:"raw_material_id,omitempty"`
	SemiProductID *uuid.UUID      `gorm:"type:uuid;index" json:"semi_product_id,omitempty"`
	Quantity      decimal.Decimal `gorm:"type:decimal(14,4);not null" json:"quantity"`
	Unit          string          `gorm:"size:20;not null" json:"unit"`
}

func (Inventory) TableName() string { return TableInventories }

func (i *Inventory) Item() (StockItem, error) {
	return StockItemFromColumns(i.ProductID, i.RawMaterialID, i.SemiProductID)
}

func (i *Inventory) SetItem(item StockItem) {
	i.ProductID, i.RawMaterialID, i.SemiProductID = item.Columns()
}
