package models

import "github.com/shopspring/decimal"

// Order represents a row of the Orders table. The ship-to fields are a
// snapshot taken when the order was placed.
type Order struct {
	OrderID        uint            `gorm:"column:OrderID;primaryKey;autoIncrement" json:"OrderID"`
	CustomerID     *string         `gorm:"column:CustomerID" json:"CustomerID"` // nullable, order may have no known customer
	EmployeeID     *uint           `gorm:"column:EmployeeID" json:"EmployeeID"` // nullable, order may have no salesperson
	OrderDate      string          `gorm:"column:OrderDate" json:"OrderDate"`
	RequiredDate   string          `gorm:"column:RequiredDate" json:"RequiredDate"`
	ShippedDate    *string         `gorm:"column:ShippedDate" json:"ShippedDate"` // nullable until shipped
	ShipVia        *int            `gorm:"column:ShipVia" json:"ShipVia"`
	Freight        decimal.Decimal `gorm:"column:Freight;type:REAL" json:"Freight"`
	ShipName       string          `gorm:"column:ShipName" json:"ShipName"`
	ShipAddress    string          `gorm:"column:ShipAddress" json:"ShipAddress"`
	ShipCity       string          `gorm:"column:ShipCity" json:"ShipCity"`
	ShipRegion     string          `gorm:"column:ShipRegion" json:"ShipRegion"`
	ShipPostalCode string          `gorm:"column:ShipPostalCode" json:"ShipPostalCode"`
	ShipCountry    string          `gorm:"column:ShipCountry" json:"ShipCountry"`
	Customer       *Customer       `gorm:"foreignKey:CustomerID;references:CustomerID" json:"Customer,omitempty"`
	Employee       *Employee       `gorm:"foreignKey:EmployeeID;references:EmployeeID" json:"Employee,omitempty"`
	Details        []OrderDetail   `gorm:"foreignKey:OrderID;references:OrderID" json:"Details,omitempty"`
}

// TableName specifies the table name for the Order model
func (Order) TableName() string {
	return "Orders"
}

// IsShipped reports whether a shipment date has been recorded
func (o Order) IsShipped() bool {
	return o.ShippedDate != nil && *o.ShippedDate != ""
}
