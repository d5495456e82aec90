package models

import "github.com/shopspring/decimal"

// OrderDetail is a line item of an order. UnitPrice is the price at the time
// of sale and is independent of the product's current price.
type OrderDetail struct {
	OrderID   uint            `gorm:"column:OrderID;primaryKey;autoIncrement:false" json:"OrderID"`
	ProductID uint            `gorm:"column:ProductID;primaryKey;autoIncrement:false" json:"ProductID"`
	UnitPrice decimal.Decimal `gorm:"column:UnitPrice;type:REAL" json:"UnitPrice"`
	Quantity  int             `gorm:"column:Quantity" json:"Quantity"`
	Discount  decimal.Decimal `gorm:"column:Discount;type:REAL" json:"Discount"`
	Product   *Product        `gorm:"foreignKey:ProductID;references:ProductID" json:"Product,omitempty"`
}

// TableName specifies the table name for the OrderDetail model
func (OrderDetail) TableName() string {
	return "Order Details"
}

// LineTotal returns UnitPrice * Quantity * (1 - Discount)
func (d OrderDetail) LineTotal() decimal.Decimal {
	return d.UnitPrice.
		Mul(decimal.NewFromInt(int64(d.Quantity))).
		Mul(decimal.NewFromInt(1).Sub(d.Discount))
}
