package models

// Employee represents a row of the Employees table.
//
// ReportsTo holds the manager's EmployeeID only. It is resolved by lookup
// (see ResolveManager) and never loaded as an owning link, since the
// supervision graph may contain cycles.
type Employee struct {
	EmployeeID      uint   `gorm:"column:EmployeeID;primaryKey;autoIncrement" json:"EmployeeID"`
	LastName        string `gorm:"column:LastName" json:"LastName"`
	FirstName       string `gorm:"column:FirstName" json:"FirstName"`
	Title           string `gorm:"column:Title" json:"Title"`
	TitleOfCourtesy string `gorm:"column:TitleOfCourtesy" json:"TitleOfCourtesy"`
	BirthDate       string `gorm:"column:BirthDate" json:"BirthDate"`
	HireDate        string `gorm:"column:HireDate" json:"HireDate"`
	Address         string `gorm:"column:Address" json:"Address"`
	City            string `gorm:"column:City" json:"City"`
	Region          string `gorm:"column:Region" json:"Region"`
	PostalCode      string `gorm:"column:PostalCode" json:"PostalCode"`
	Country         string `gorm:"column:Country" json:"Country"`
	HomePhone       string `gorm:"column:HomePhone" json:"HomePhone"`
	Extension       string `gorm:"column:Extension" json:"Extension"`
	Notes           string `gorm:"column:Notes" json:"Notes"`
	ReportsTo       *uint  `gorm:"column:ReportsTo" json:"ReportsTo"` // nullable, EmployeeID of the manager
}

// TableName specifies the table name for the Employee model
func (Employee) TableName() string {
	return "Employees"
}

// FullName returns "FirstName LastName"
func (e Employee) FullName() string {
	switch {
	case e.FirstName == "":
		return e.LastName
	case e.LastName == "":
		return e.FirstName
	}
	return e.FirstName + " " + e.LastName
}
