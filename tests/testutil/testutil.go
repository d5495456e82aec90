package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/sudharshan-ks/dev-postmark-challenge/config"
	"github.com/sudharshan-ks/dev-postmark-challenge/models"
	"gorm.io/gorm"
)

// RequireTestEnvironment ensures that tests are running in the test environment.
// This prevents accidental execution of tests against a production store.
// It will fail the test immediately if GO_ENV is not set to "test".
func RequireTestEnvironment(t *testing.T) {
	t.Helper()

	env := os.Getenv("GO_ENV")
	if env != "test" {
		t.Fatalf("SAFETY CHECK FAILED: Tests must run with GO_ENV=test to prevent data loss. Current GO_ENV=%q. Set GO_ENV=test before running tests.", env)
	}
}

// MustSetTestEnvironment sets GO_ENV to test and fails if it cannot be set.
// Use this in TestMain or suite setup functions.
func MustSetTestEnvironment(t *testing.T) {
	t.Helper()

	if err := os.Setenv("GO_ENV", "test"); err != nil {
		t.Fatalf("Failed to set GO_ENV=test: %v", err)
	}

	// Verify it was set
	if os.Getenv("GO_ENV") != "test" {
		t.Fatal("Failed to verify GO_ENV=test")
	}
}

// OpenTestStore opens a migrated Northwind store in a temporary directory
// with foreign keys enforced. The store is closed when the test ends.
func OpenTestStore(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := config.OpenDatabase(filepath.Join(t.TempDir(), "northwind.db"), true)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	require.NoError(t, models.Migrate(context.Background(), db))
	return db
}

// Fixture holds the ids of the rows SeedNorthwind creates
type Fixture struct {
	CustomerID string
	ProductID  uint
	OrderID    uint
	ManagerID  uint
	EmployeeID uint
}

// SeedNorthwind loads a small data set: customer CUST1, a manager and a
// report, the Widget product at 9.99 and one order for three of them
func SeedNorthwind(t *testing.T, db *gorm.DB) Fixture {
	t.Helper()
	ctx := context.Background()
	f := Fixture{CustomerID: "CUST1"}

	require.NoError(t, models.CreateCustomer(ctx, db, &models.Customer{
		CustomerID: f.CustomerID, CompanyName: "Acme Co", City: "Phoenix", Country: "USA",
	}))

	manager := models.Employee{LastName: "Fuller", FirstName: "Andrew", Title: "Vice President, Sales"}
	require.NoError(t, models.CreateEmployee(ctx, db, &manager))
	report := models.Employee{LastName: "Davolio", FirstName: "Nancy", ReportsTo: &manager.EmployeeID}
	require.NoError(t, models.CreateEmployee(ctx, db, &report))
	f.ManagerID, f.EmployeeID = manager.EmployeeID, report.EmployeeID

	product := models.Product{ProductName: "Widget", UnitPrice: decimal.RequireFromString("9.99"), UnitsInStock: 10}
	require.NoError(t, models.CreateProduct(ctx, db, &product))
	f.ProductID = product.ProductID

	order := models.Order{
		CustomerID: &f.CustomerID,
		EmployeeID: &report.EmployeeID,
		OrderDate:  "1996-07-04",
		Details: []models.OrderDetail{
			{ProductID: product.ProductID, UnitPrice: decimal.RequireFromString("9.99"), Quantity: 3, Discount: decimal.Zero},
		},
	}
	require.NoError(t, models.CreateOrder(ctx, db, &order))
	f.OrderID = order.OrderID
	return f
}

// PrintEnvironmentInfo prints the current test environment configuration.
// Useful for debugging test environment issues.
func PrintEnvironmentInfo() {
	fmt.Printf("Test Environment Info:\n")
	fmt.Printf("  GO_ENV: %s\n", os.Getenv("GO_ENV"))
	fmt.Printf("  DATABASE_PATH: %s\n", os.Getenv("DATABASE_PATH"))
	fmt.Printf("  REDIS_ADDRESS: %s\n", maskAddress(os.Getenv("REDIS_ADDRESS")))
}

// maskAddress hides credentials embedded in a connection address
func maskAddress(addr string) string {
	if addr == "" {
		return "(not set)"
	}
	if at := strings.LastIndexByte(addr, '@'); at >= 0 {
		return "***" + addr[at:]
	}
	return addr
}
