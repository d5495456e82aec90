package services

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resultOf(columns []string, records ...[]interface{}) *QueryResult {
	result := &QueryResult{Columns: columns, Records: records}
	for _, rec := range records {
		row := Row{}
		for i, c := range columns {
			row[c] = rec[i]
		}
		result.Rows = append(result.Rows, row)
	}
	return result
}

func TestChartKind(t *testing.T) {
	renderer := NewChartRenderer()

	tests := []struct {
		name   string
		result *QueryResult
		want   string
	}{
		{
			name:   "label and number",
			result: resultOf([]string{"Country", "orders"}, []interface{}{"USA", int64(3)}, []interface{}{"UK", int64(1)}),
			want:   ChartKindBar,
		},
		{
			name:   "number first",
			result: resultOf([]string{"revenue", "ShipCountry"}, []interface{}{29.97, "USA"}),
			want:   ChartKindBar,
		},
		{
			name:   "null values",
			result: resultOf([]string{"CustomerID", "Freight"}, []interface{}{nil, 12.5}, []interface{}{"CUST1", nil}),
			want:   ChartKindBar,
		},
		{
			name:   "no numbers",
			result: resultOf([]string{"CompanyName", "City"}, []interface{}{"Acme Co", "Phoenix"}),
			want:   ChartKindTable,
		},
		{
			name:   "single value",
			result: resultOf([]string{"COUNT(*)"}, []interface{}{int64(91)}),
			want:   ChartKindTable,
		},
		{
			name:   "wide result",
			result: resultOf([]string{"OrderID", "CustomerID", "Freight"}, []interface{}{int64(1), "CUST1", 3.5}),
			want:   ChartKindTable,
		},
		{
			name:   "no rows",
			result: resultOf([]string{"OrderID"}),
			want:   "",
		},
		{
			name:   "mutation",
			result: &QueryResult{Mutation: true, RowsAffected: 3},
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, renderer.ChartKind(tt.result))
		})
	}
}

func TestRenderProducesPNG(t *testing.T) {
	renderer := NewChartRenderer()

	tests := []struct {
		name   string
		result *QueryResult
		width  int
	}{
		{
			name: "bar chart",
			result: resultOf([]string{"ShipCountry", "revenue"},
				[]interface{}{"USA", 29.97}, []interface{}{"Germany", -4.5}, []interface{}{"France", nil}),
			width: chartWidth,
		},
		{
			name:   "table",
			result: resultOf([]string{"CompanyName", "City"}, []interface{}{"Acme Co", "Phoenix"}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := renderer.Render(context.Background(), "Revenue by country?", tt.result)
			require.NoError(t, err)

			img, err := imaging.Decode(bytes.NewReader(data))
			require.NoError(t, err)
			if tt.width > 0 {
				assert.Equal(t, tt.width, img.Bounds().Dx())
			}
			assert.Greater(t, img.Bounds().Dy(), chartTop)
		})
	}
}

func TestRenderTableTruncates(t *testing.T) {
	renderer := &ChartRenderer{MaxBars: 30, MaxTableRows: 2}
	result := resultOf([]string{"CompanyName", "City"},
		[]interface{}{"A", "x"}, []interface{}{"B", "y"}, []interface{}{"C", "z"})

	data, err := renderer.Render(context.Background(), "All customers", result)
	require.NoError(t, err)
	img, err := imaging.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, chartTop+3*tableRowHeight+tableRowHeight+chartMargin, img.Bounds().Dy())
}

func TestRenderEmptyResult(t *testing.T) {
	_, err := NewChartRenderer().Render(context.Background(), "Nothing", resultOf([]string{"OrderID"}))
	assert.True(t, errors.Is(err, ErrRenderFailure))
}

func TestFormatCell(t *testing.T) {
	assert.Equal(t, "NULL", formatCell(nil))
	assert.Equal(t, "42", formatCell(int64(42)))
	assert.Equal(t, "29.97", formatCell(29.970000000000002))
	assert.Equal(t, "Acme", formatCell("Acme"))
	assert.Equal(t, "abcd...", truncate("abcdefghij", 7))
	assert.Equal(t, "short", truncate("short", 7))
}

func TestRenderNonFiniteValues(t *testing.T) {
	renderer := NewChartRenderer()
	result := resultOf([]string{"ProductName", "v"},
		[]interface{}{"Widget", math.Inf(1)}, []interface{}{"Gadget", 2.5}, []interface{}{"Gizmo", math.NaN()})

	assert.Equal(t, ChartKindTable, renderer.ChartKind(result), "overflowed values cannot be scaled into bars")

	data, err := renderer.Render(context.Background(), "Overflow", result)
	require.NoError(t, err)
	_, err = imaging.Decode(bytes.NewReader(data))
	assert.NoError(t, err)

	assert.Equal(t, "+Inf", formatCell(math.Inf(1)))
	assert.Equal(t, "-Inf", formatCell(math.Inf(-1)))
	assert.Equal(t, "NaN", formatCell(math.NaN()))
}
