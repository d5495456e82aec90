package models

import (
	"context"
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// SchemaDDL is the Northwind schema exactly as it is created in the store and
// as it is shown to the SQL translator.
//
//go:embed northwind.sql
var SchemaDDL string

// TableNames lists the five Northwind tables in creation order
var TableNames = []string{"Customers", "Employees", "Products", "Orders", "Order Details"}

// All returns one zero value per Northwind model, in creation order
func All() []interface{} {
	return []interface{}{&Customer{}, &Employee{}, &Product{}, &Order{}, &OrderDetail{}}
}

// Migrate creates any missing Northwind tables. Existing tables and rows are
// left untouched.
func Migrate(ctx context.Context, db *gorm.DB) error {
	for _, stmt := range strings.Split(SchemaDDL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if err := db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// Column describes one column of the catalog
type Column struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	PrimaryKey bool   `json:"primary_key"`
}

// Table describes one table of the catalog
type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// Catalog is the fixed allow-list of tables and columns. Lookups are
// case-insensitive, matching SQLite identifier resolution.
type Catalog struct {
	Tables  []Table `json:"tables"`
	tables  map[string]*Table
	columns map[string][]string // lower(column) -> tables owning it
}

var (
	catalogOnce sync.Once
	catalog     *Catalog
	catalogErr  error
)

// GetCatalog returns the catalog parsed from the Northwind models
func GetCatalog() (*Catalog, error) {
	catalogOnce.Do(func() {
		catalog, catalogErr = buildCatalog()
	})
	return catalog, catalogErr
}

// MustCatalog is GetCatalog for callers that cannot proceed without it
func MustCatalog() *Catalog {
	c, err := GetCatalog()
	if err != nil {
		panic(err)
	}
	return c
}

func buildCatalog() (*Catalog, error) {
	cache := &sync.Map{}
	c := &Catalog{
		tables:  make(map[string]*Table),
		columns: make(map[string][]string),
	}

	for _, model := range All() {
		s, err := schema.Parse(model, cache, schema.NamingStrategy{})
		if err != nil {
			return nil, fmt.Errorf("failed to parse model %T: %w", model, err)
		}

		table := Table{Name: s.Table}
		for _, name := range s.DBNames {
			field := s.FieldsByDBName[name]
			table.Columns = append(table.Columns, Column{
				Name:       name,
				Type:       sqliteType(field),
				PrimaryKey: field.PrimaryKey,
			})
		}
		c.Tables = append(c.Tables, table)
	}

	for i := range c.Tables {
		t := &c.Tables[i]
		c.tables[strings.ToLower(t.Name)] = t
		for _, col := range t.Columns {
			key := strings.ToLower(col.Name)
			c.columns[key] = append(c.columns[key], t.Name)
		}
	}
	return c, nil
}

func sqliteType(f *schema.Field) string {
	switch f.DataType {
	case schema.String:
		return "TEXT"
	case schema.Int, schema.Uint, schema.Bool:
		return "INTEGER"
	case schema.Float:
		return "REAL"
	}
	return strings.ToUpper(string(f.DataType))
}

// HasTable reports whether name is one of the Northwind tables
func (c *Catalog) HasTable(name string) bool {
	_, ok := c.tables[strings.ToLower(name)]
	return ok
}

// Table returns the table called name
func (c *Catalog) Table(name string) (Table, bool) {
	t, ok := c.tables[strings.ToLower(name)]
	if !ok {
		return Table{}, false
	}
	return *t, true
}

// HasColumn reports whether any Northwind table has a column called name
func (c *Catalog) HasColumn(name string) bool {
	_, ok := c.columns[strings.ToLower(name)]
	return ok
}

// TableHasColumn reports whether table has a column called column
func (c *Catalog) TableHasColumn(table, column string) bool {
	t, ok := c.tables[strings.ToLower(table)]
	if !ok {
		return false
	}
	for _, col := range t.Columns {
		if strings.EqualFold(col.Name, column) {
			return true
		}
	}
	return false
}

// TablesWithColumn returns the tables that have a column called name, sorted
func (c *Catalog) TablesWithColumn(name string) []string {
	out := append([]string(nil), c.columns[strings.ToLower(name)]...)
	sort.Strings(out)
	return out
}
