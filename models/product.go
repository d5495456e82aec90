package models

import "github.com/shopspring/decimal"

// Product represents a row of the Products table.
// SupplierID and CategoryID are opaque: no Supplier or Category table exists
// and neither column is referentially enforced.
type Product struct {
	ProductID       uint            `gorm:"column:ProductID;primaryKey;autoIncrement" json:"ProductID"`
	ProductName     string          `gorm:"column:ProductName" json:"ProductName"`
	SupplierID      *int            `gorm:"column:SupplierID" json:"SupplierID"`
	CategoryID      *int            `gorm:"column:CategoryID" json:"CategoryID"`
	QuantityPerUnit string          `gorm:"column:QuantityPerUnit" json:"QuantityPerUnit"`
	UnitPrice       decimal.Decimal `gorm:"column:UnitPrice;type:REAL" json:"UnitPrice"`
	UnitsInStock    int             `gorm:"column:UnitsInStock" json:"UnitsInStock"`
	UnitsOnOrder    int             `gorm:"column:UnitsOnOrder" json:"UnitsOnOrder"`
	ReorderLevel    int             `gorm:"column:ReorderLevel" json:"ReorderLevel"`
	Discontinued    bool            `gorm:"column:Discontinued" json:"Discontinued"`
}

// TableName specifies the table name for the Product model
func (Product) TableName() string {
	return "Products"
}

// NeedsReorder reports whether stock plus incoming units has fallen to the reorder level
func (p Product) NeedsReorder() bool {
	return !p.Discontinued && p.UnitsInStock+p.UnitsOnOrder <= p.ReorderLevel
}
