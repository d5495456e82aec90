package services

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sudharshan-ks/dev-postmark-challenge/models"
	"github.com/xuri/excelize/v2"
)

func TestBuildWorkbook(t *testing.T) {
	result := resultOf([]string{"CustomerID", "CompanyName", "Freight"},
		[]interface{}{"CUST1", "Acme Co", 12.5},
		[]interface{}{nil, "Walk-in", int64(3)},
	)

	data, err := BuildWorkbook(result)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{ResultSheet}, f.GetSheetList())
	rows, err := f.GetRows(ResultSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"CustomerID", "CompanyName", "Freight"}, rows[0])
	assert.Equal(t, []string{"CUST1", "Acme Co", "12.5"}, rows[1])
	assert.Equal(t, []string{"", "Walk-in", "3"}, rows[2])
}

func TestBuildWorkbookNeedsColumns(t *testing.T) {
	_, err := BuildWorkbook(&QueryResult{Mutation: true, RowsAffected: 2})
	assert.Error(t, err)
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	source := setupNorthwind(t)

	data, err := ExportTables(ctx, source)
	require.NoError(t, err)

	target := openEmptyStore(t)
	reports, err := ImportWorkbook(ctx, target, bytes.NewReader(data))
	require.NoError(t, err)

	counts := map[string]int{}
	for _, r := range reports {
		counts[r.Table] = r.Rows
	}
	assert.Equal(t, map[string]int{
		"Customers": 1, "Employees": 0, "Products": 1, "Orders": 1, "Order Details": 1,
	}, counts)

	total, err := models.OrderTotal(ctx, target, 1)
	require.NoError(t, err)
	assert.Equal(t, "29.97", total.String())

	order, err := models.FindOrder(ctx, target, 1)
	require.NoError(t, err)
	require.NotNil(t, order.CustomerID)
	assert.Equal(t, "CUST1", *order.CustomerID)
	assert.Nil(t, order.EmployeeID)
}

func TestImportResolvesForwardReferences(t *testing.T) {
	ctx := context.Background()
	db := openEmptyStore(t)

	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName("Sheet1", "Employees"))
	require.NoError(t, f.SetSheetRow("Employees", "A1", &[]interface{}{"EmployeeID", "LastName", "ReportsTo"}))
	require.NoError(t, f.SetSheetRow("Employees", "A2", &[]interface{}{1, "Davolio", 2}))
	require.NoError(t, f.SetSheetRow("Employees", "A3", &[]interface{}{2, "Fuller", nil}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	reports, err := ImportWorkbook(ctx, db, buf)
	require.NoError(t, err)
	assert.Equal(t, []ImportReport{{Table: "Employees", Rows: 2}}, reports)

	chain, cyclic, err := models.ReportingChain(ctx, db, 1, 10)
	require.NoError(t, err)
	assert.False(t, cyclic)
	require.Len(t, chain, 1)
	assert.Equal(t, "Fuller", chain[0].LastName)
}

func TestImportRejectsDanglingReference(t *testing.T) {
	ctx := context.Background()
	db := openEmptyStore(t)

	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName("Sheet1", "Orders"))
	require.NoError(t, f.SetSheetRow("Orders", "A1", &[]interface{}{"OrderID", "CustomerID"}))
	require.NoError(t, f.SetSheetRow("Orders", "A2", &[]interface{}{10248, "NOBODY"}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	_, err = ImportWorkbook(ctx, db, buf)
	require.Error(t, err)

	var count int64
	require.NoError(t, db.Model(&models.Order{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestImportRejectsUnknownColumn(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName("Sheet1", "Customers"))
	require.NoError(t, f.SetSheetRow("Customers", "A1", &[]interface{}{"CustomerID", "Email"}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	_, err = ImportWorkbook(context.Background(), openEmptyStore(t), buf)
	assert.ErrorContains(t, err, `unknown column "Email"`)
}
