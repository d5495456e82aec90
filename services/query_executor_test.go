package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sudharshan-ks/dev-postmark-challenge/models"
)

func TestExecuteSelect(t *testing.T) {
	db := setupNorthwind(t)
	executor := newTestExecutor(t, db, ExecutorOptions{})

	result, err := executor.Execute(context.Background(),
		"SELECT CustomerID, CompanyName FROM Customers WHERE Country = 'USA'")
	require.NoError(t, err)

	assert.Equal(t, "SELECT", result.Verb)
	assert.False(t, result.Mutation)
	assert.Equal(t, []string{"CustomerID", "CompanyName"}, result.Columns)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "CUST1", result.Rows[0]["CustomerID"])
	assert.Equal(t, "Acme Co", result.Rows[0]["CompanyName"])
	assert.Equal(t, []interface{}{"CUST1", "Acme Co"}, result.Records[0])
	assert.Equal(t, int64(1), result.RowCount())
	assert.False(t, result.Truncated)
}

func TestExecuteRevenue(t *testing.T) {
	db := setupNorthwind(t)
	executor := newTestExecutor(t, db, ExecutorOptions{})

	result, err := executor.Execute(context.Background(), `
		SELECT o.OrderID, SUM(od.UnitPrice * od.Quantity * (1 - od.Discount)) AS revenue
		FROM Orders o
		JOIN [Order Details] od ON od.OrderID = o.OrderID
		GROUP BY o.OrderID`)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)

	assert.Equal(t, int64(1), result.Rows[0]["OrderID"])
	revenue, ok := result.Rows[0]["revenue"].(float64)
	require.True(t, ok, "revenue should be a REAL, got %T", result.Rows[0]["revenue"])
	assert.InDelta(t, 29.97, revenue, 1e-9)
}

func TestExecuteNullCustomer(t *testing.T) {
	db := setupNorthwind(t)
	require.NoError(t, models.CreateOrder(context.Background(), db, &models.Order{OrderDate: "1996-07-05"}))
	executor := newTestExecutor(t, db, ExecutorOptions{})

	result, err := executor.Execute(context.Background(), "SELECT OrderID, CustomerID FROM Orders WHERE OrderID = 2")
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)

	value, present := result.Rows[0]["CustomerID"]
	assert.True(t, present)
	assert.Nil(t, value)
}

func TestExecuteMutations(t *testing.T) {
	db := setupNorthwind(t)
	executor := newTestExecutor(t, db, ExecutorOptions{})
	ctx := context.Background()

	inserted, err := executor.Execute(ctx,
		"INSERT INTO Products (ProductName, UnitPrice, UnitsInStock) VALUES ('Gadget', 20, 4)")
	require.NoError(t, err)
	assert.True(t, inserted.Mutation)
	assert.Equal(t, int64(1), inserted.RowsAffected)
	assert.Equal(t, int64(2), inserted.LastInsertID)
	assert.Equal(t, int64(1), inserted.RowCount())

	updated, err := executor.Execute(ctx, "UPDATE Products SET UnitsInStock = UnitsInStock + 1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.RowsAffected)
	assert.Zero(t, updated.LastInsertID)

	returning, err := executor.Execute(ctx, "DELETE FROM Products WHERE ProductID = 2 RETURNING ProductName")
	require.NoError(t, err)
	assert.True(t, returning.Mutation)
	require.Len(t, returning.Rows, 1)
	assert.Equal(t, "Gadget", returning.Rows[0]["ProductName"])
	assert.Equal(t, int64(1), returning.RowsAffected)

	cteUpdate, err := executor.Execute(ctx,
		"WITH bump AS (SELECT 1 AS n) UPDATE Products SET UnitsInStock = UnitsInStock + (SELECT n FROM bump)")
	require.NoError(t, err)
	assert.Equal(t, "WITH", cteUpdate.Verb)
	assert.Equal(t, int64(1), cteUpdate.RowsAffected)
	assert.Zero(t, cteUpdate.LastInsertID, "an update reports no inserted row")

	cteInsert, err := executor.Execute(ctx,
		"WITH src AS (SELECT 'Gizmo' AS name) INSERT INTO Products (ProductName) SELECT name FROM src")
	require.NoError(t, err)
	gizmo, err := executor.Execute(ctx, "SELECT ProductID FROM Products WHERE ProductName = 'Gizmo'")
	require.NoError(t, err)
	require.Len(t, gizmo.Rows, 1)
	assert.Equal(t, gizmo.Rows[0]["ProductID"], cteInsert.LastInsertID)
}

func TestExecuteCannotReachInternalTables(t *testing.T) {
	db := setupNorthwind(t)
	executor := newTestExecutor(t, db, ExecutorOptions{})
	ctx := context.Background()

	sequences := func() []map[string]interface{} {
		var rows []map[string]interface{}
		require.NoError(t, db.Raw("SELECT name, seq FROM sqlite_sequence ORDER BY name").Scan(&rows).Error)
		return rows
	}
	before := sequences()

	for _, statement := range []string{
		"SELECT 1 AS sqlite_master, * FROM sqlite_master",
		"SELECT 1 AS pragma_table_info, * FROM pragma_table_info('Orders')",
		"SELECT 1 AS sqlite_sequence, * FROM sqlite_sequence",
		"WITH x AS (SELECT 1 AS sqlite_sequence, 1 AS seq) UPDATE sqlite_sequence SET seq = 0",
	} {
		result, err := executor.Execute(ctx, statement)
		assert.Nil(t, result, statement)
		assert.True(t, errors.Is(err, ErrSchemaMismatch), "%s: got %v", statement, err)
	}
	assert.Equal(t, before, sequences())
}

func TestExecuteClassifiesFailures(t *testing.T) {
	db := setupNorthwind(t)
	executor := newTestExecutor(t, db, ExecutorOptions{})

	tests := []struct {
		name      string
		statement string
		want      error
	}{
		{
			name:      "unknown table",
			statement: "SELECT * FROM Supplier",
			want:      ErrSchemaMismatch,
		},
		{
			name:      "unknown column",
			statement: "SELECT SupplierName FROM Products",
			want:      ErrSchemaMismatch,
		},
		{
			name:      "detail for missing order",
			statement: "INSERT INTO [Order Details] (OrderID, ProductID, UnitPrice, Quantity, Discount) VALUES (999, 1, 9.99, 1, 0)",
			want:      ErrConstraintViolation,
		},
		{
			name:      "duplicate order line",
			statement: "INSERT INTO [Order Details] (OrderID, ProductID, UnitPrice, Quantity, Discount) VALUES (1, 1, 9.99, 1, 0)",
			want:      ErrConstraintViolation,
		},
		{
			name:      "order for unknown customer",
			statement: "INSERT INTO Orders (CustomerID, OrderDate) VALUES ('NOBODY', '1996-07-04')",
			want:      ErrConstraintViolation,
		},
		{
			name:      "misspelled keyword",
			statement: "SELEC * FROM Customers",
			want:      ErrSyntax,
		},
		{
			name:      "malformed select",
			statement: "SELECT FROM WHERE",
			want:      ErrSyntax,
		},
		{
			name:      "two statements",
			statement: "SELECT * FROM Customers; DELETE FROM Customers",
			want:      ErrSyntax,
		},
		{
			name:      "schema change",
			statement: "DROP TABLE Customers",
			want:      ErrStatementNotAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := executor.Execute(context.Background(), tt.statement)
			require.Error(t, err)
			assert.Nil(t, result)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)

			var qe *QueryError
			require.True(t, errors.As(err, &qe))
			assert.False(t, qe.Fatal())
		})
	}

	var count int64
	require.NoError(t, db.Model(&models.Customer{}).Count(&count).Error)
	assert.Equal(t, int64(1), count, "rejected statements must not touch the store")
}

func TestExecuteTimeout(t *testing.T) {
	db := setupNorthwind(t)
	require.NoError(t, db.Exec(`
		INSERT INTO Customers (CustomerID, CompanyName)
		WITH RECURSIVE n(i) AS (SELECT 1 UNION ALL SELECT i + 1 FROM n WHERE i < 200)
		SELECT 'C' || i, 'Company ' || i FROM n`).Error)

	executor := newTestExecutor(t, db, ExecutorOptions{Timeout: 50 * time.Millisecond})

	start := time.Now()
	_, err := executor.Execute(context.Background(),
		"SELECT COUNT(*) FROM Customers a, Customers b, Customers c, Customers d")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExecutionTimeout), "got %v", err)
	assert.Less(t, time.Since(start), 5*time.Second)

	// the connection is usable afterwards
	result, err := executor.Execute(context.Background(), "SELECT COUNT(*) AS n FROM Customers")
	require.NoError(t, err)
	assert.Equal(t, int64(201), result.Rows[0]["n"])
}

func TestExecuteReadOnly(t *testing.T) {
	db := setupNorthwind(t)
	executor := newTestExecutor(t, db, ExecutorOptions{ReadOnly: true})
	ctx := context.Background()

	_, err := executor.Execute(ctx, "DELETE FROM [Order Details]")
	assert.True(t, errors.Is(err, ErrStatementNotAllowed), "got %v", err)

	_, err = executor.Execute(ctx, "WITH doomed AS (SELECT OrderID FROM Orders) DELETE FROM [Order Details] WHERE OrderID IN (SELECT OrderID FROM doomed)")
	assert.True(t, errors.Is(err, ErrStatementNotAllowed), "got %v", err)

	result, err := executor.Execute(ctx, "SELECT COUNT(*) AS lines FROM [Order Details]")
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Rows[0]["lines"])
}

func TestExecuteTruncatesAtRowCap(t *testing.T) {
	db := setupNorthwind(t)
	executor := newTestExecutor(t, db, ExecutorOptions{MaxRows: 2})

	result, err := executor.Execute(context.Background(),
		"WITH RECURSIVE n(i) AS (SELECT 1 UNION ALL SELECT i + 1 FROM n WHERE i < 5) SELECT i FROM n")
	require.NoError(t, err)
	assert.Len(t, result.Rows, 2)
	assert.True(t, result.Truncated)
}

func TestExecuteHonoursCallerContext(t *testing.T) {
	db := setupNorthwind(t)
	executor := newTestExecutor(t, db, ExecutorOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := executor.Execute(ctx, "SELECT * FROM Customers")
	assert.True(t, errors.Is(err, ErrExecutionTimeout), "got %v", err)
}
