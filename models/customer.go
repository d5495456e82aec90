package models

// Customer represents a row of the Customers table. CustomerID is an opaque
// caller-assigned key.
type Customer struct {
	CustomerID   string `gorm:"column:CustomerID;primaryKey" json:"CustomerID"`
	CompanyName  string `gorm:"column:CompanyName" json:"CompanyName"`
	ContactName  string `gorm:"column:ContactName" json:"ContactName"`
	ContactTitle string `gorm:"column:ContactTitle" json:"ContactTitle"`
	Address      string `gorm:"column:Address" json:"Address"`
	City         string `gorm:"column:City" json:"City"`
	Region       string `gorm:"column:Region" json:"Region"`
	PostalCode   string `gorm:"column:PostalCode" json:"PostalCode"`
	Country      string `gorm:"column:Country" json:"Country"`
	Phone        string `gorm:"column:Phone" json:"Phone"`
	Fax          string `gorm:"column:Fax" json:"Fax"`
}

// TableName specifies the table name for the Customer model
func (Customer) TableName() string {
	return "Customers"
}
