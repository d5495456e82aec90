package services

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/sudharshan-ks/dev-postmark-challenge/config"
	"github.com/sudharshan-ks/dev-postmark-challenge/models"
	"gorm.io/gorm"
)

func strPtr(s string) *string { return &s }

// setupNorthwind opens a migrated store in a temp dir with foreign keys on
// and the reference scenario loaded: customer CUST1, product 1 at 9.99 and
// order 1 with three units of it.
func setupNorthwind(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()
	db := openEmptyStore(t)

	require.NoError(t, models.CreateCustomer(ctx, db, &models.Customer{
		CustomerID: "CUST1", CompanyName: "Acme Co", ContactName: "Wile E.", City: "Phoenix", Country: "USA",
	}))
	product := models.Product{ProductName: "Widget", UnitPrice: decimal.RequireFromString("9.99"), UnitsInStock: 10}
	require.NoError(t, models.CreateProduct(ctx, db, &product))
	require.NoError(t, models.CreateOrder(ctx, db, &models.Order{
		CustomerID: strPtr("CUST1"),
		OrderDate:  "1996-07-04",
		Details: []models.OrderDetail{
			{ProductID: product.ProductID, UnitPrice: decimal.RequireFromString("9.99"), Quantity: 3, Discount: decimal.Zero},
		},
	}))
	return db
}

// openEmptyStore opens a migrated store with no rows
func openEmptyStore(t *testing.T) *gorm.DB {
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

func newTestExecutor(t *testing.T, db *gorm.DB, opts ExecutorOptions) *Executor {
	t.Helper()
	executor, err := NewExecutor(db, models.MustCatalog(), opts)
	require.NoError(t, err)
	return executor
}
