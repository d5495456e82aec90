package services

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"strconv"

	"github.com/disintegration/imaging"
	"github.com/shopspring/decimal"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Visualizer renders a query result as a PNG image
type Visualizer interface {
	Render(ctx context.Context, question string, result *QueryResult) ([]byte, error)
}

// Chart kinds produced by ChartRenderer
const (
	ChartKindBar   = "bar chart"
	ChartKindTable = "table"
)

const (
	chartWidth     = 800
	chartMargin    = 16
	chartTop       = 48
	barRowHeight   = 22
	tableRowHeight = 18
	glyphWidth     = 7 // basicfont.Face7x13 advance
	maxLabelChars  = 24
	maxCellChars   = 24
	maxTableCols   = 12
)

var (
	colorText   = color.NRGBA{R: 0x22, G: 0x22, B: 0x22, A: 0xff}
	colorMuted  = color.NRGBA{R: 0x77, G: 0x77, B: 0x77, A: 0xff}
	colorBar    = color.NRGBA{R: 0x3b, G: 0x75, B: 0xaf, A: 0xff}
	colorGrid   = color.NRGBA{R: 0xcc, G: 0xcc, B: 0xcc, A: 0xff}
	colorHeader = color.NRGBA{R: 0xee, G: 0xee, B: 0xee, A: 0xff}
)

// ChartRenderer draws bar charts and table images locally
type ChartRenderer struct {
	MaxBars      int
	MaxTableRows int
}

var visualizerInstance Visualizer

// NewChartRenderer creates a renderer with the default limits
func NewChartRenderer() *ChartRenderer {
	return &ChartRenderer{MaxBars: 30, MaxTableRows: 30}
}

// InitVisualizer sets the global visualizer to a local renderer
func InitVisualizer() Visualizer {
	visualizerInstance = NewChartRenderer()
	return visualizerInstance
}

// GetVisualizer returns the global visualizer
func GetVisualizer() Visualizer {
	return visualizerInstance
}

// SetVisualizer sets the global visualizer (primarily for testing)
func SetVisualizer(v Visualizer) {
	visualizerInstance = v
}

// ChartKind reports what Render draws for result, or "" when nothing can be drawn
func (r *ChartRenderer) ChartKind(result *QueryResult) string {
	if result == nil || len(result.Columns) == 0 || len(result.Records) == 0 {
		return ""
	}
	if _, _, ok := r.barColumns(result); ok {
		return ChartKindBar
	}
	return ChartKindTable
}

// Render draws result. Results without rows are a RenderFailure.
func (r *ChartRenderer) Render(ctx context.Context, question string, result *QueryResult) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, newQueryError(KindRenderFailure, "rendering was cancelled", err)
	}

	var img *image.NRGBA
	switch r.ChartKind(result) {
	case ChartKindBar:
		label, value, _ := r.barColumns(result)
		img = r.drawBars(question, result, label, value)
	case ChartKindTable:
		img = r.drawTable(question, result)
	default:
		return nil, newQueryError(KindRenderFailure, "the result has no rows to draw", nil)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, newQueryError(KindRenderFailure, "failed to encode chart", err)
	}
	return buf.Bytes(), nil
}

// barColumns picks the label and value columns of a two-column result whose
// second (or else first) column is numeric
func (r *ChartRenderer) barColumns(result *QueryResult) (label, value int, ok bool) {
	if len(result.Columns) != 2 || len(result.Records) > r.MaxBars {
		return 0, 0, false
	}
	switch {
	case numericColumn(result.Records, 1):
		return 0, 1, true
	case numericColumn(result.Records, 0):
		return 1, 0, true
	}
	return 0, 0, false
}

func numericColumn(records [][]interface{}, col int) bool {
	seen := false
	for _, rec := range records {
		switch rec[col].(type) {
		case nil:
		case int64:
			seen = true
		case float64:
			if !isFinite(rec[col].(float64)) {
				return false
			}
			seen = true
		default:
			return false
		}
	}
	return seen
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case int64:
		return float64(n)
	case float64:
		return n
	}
	return 0
}

func (r *ChartRenderer) drawBars(question string, result *QueryResult, label, value int) *image.NRGBA {
	rows := len(result.Records)
	labelChars := 0
	minV, maxV := 0.0, 0.0
	for _, rec := range result.Records {
		labelChars = max(labelChars, len(truncate(formatCell(rec[label]), maxLabelChars)))
		v := toFloat(rec[value])
		minV = math.Min(minV, v)
		maxV = math.Max(maxV, v)
	}
	span := maxV - minV
	if span == 0 {
		span = 1
	}

	height := chartTop + rows*barRowHeight + chartMargin
	img := imaging.New(chartWidth, height, color.White)
	drawTitle(img, question, fmt.Sprintf("%s by %s", result.Columns[value], result.Columns[label]))

	x0 := chartMargin + labelChars*glyphWidth + 8
	x1 := chartWidth - chartMargin - 14*glyphWidth
	scale := func(v float64) int {
		return x0 + int(math.Round((v-minV)/span*float64(x1-x0)))
	}
	zero := scale(0)
	fillRect(img, image.Rect(zero, chartTop-4, zero+1, chartTop+rows*barRowHeight), colorGrid)

	for i, rec := range result.Records {
		y := chartTop + i*barRowHeight
		drawText(img, chartMargin, y+15, truncate(formatCell(rec[label]), maxLabelChars), colorText)

		if rec[value] == nil {
			drawText(img, zero+4, y+15, "NULL", colorMuted)
			continue
		}
		end := scale(toFloat(rec[value]))
		left, right := min(zero, end), max(zero, end)
		if right-left < 1 {
			right = left + 1
		}
		fillRect(img, image.Rect(left, y+3, right, y+barRowHeight-3), colorBar)
		drawText(img, right+4, y+15, formatCell(rec[value]), colorText)
	}
	return img
}

func (r *ChartRenderer) drawTable(question string, result *QueryResult) *image.NRGBA {
	cols := min(len(result.Columns), maxTableCols)
	shown := min(len(result.Records), r.MaxTableRows)

	widths := make([]int, cols)
	for c := 0; c < cols; c++ {
		chars := len(truncate(result.Columns[c], maxCellChars))
		for _, rec := range result.Records[:shown] {
			chars = max(chars, len(truncate(formatCell(rec[c]), maxCellChars)))
		}
		widths[c] = max(chars, 3)*glyphWidth + 12
	}

	width := 2 * chartMargin
	for _, w := range widths {
		width += w
	}
	width = max(width, chartWidth/2)
	footer := 0
	if shown < len(result.Records) || cols < len(result.Columns) {
		footer = tableRowHeight
	}
	height := chartTop + (shown+1)*tableRowHeight + footer + chartMargin

	img := imaging.New(width, height, color.White)
	drawTitle(img, question, fmt.Sprintf("%d row(s)", len(result.Records)))

	right := width - chartMargin
	fillRect(img, image.Rect(chartMargin, chartTop, right, chartTop+tableRowHeight), colorHeader)
	for i := 0; i <= shown+1; i++ {
		y := chartTop + i*tableRowHeight
		fillRect(img, image.Rect(chartMargin, y, right, y+1), colorGrid)
	}

	x := chartMargin
	for c := 0; c < cols; c++ {
		drawText(img, x+6, chartTop+13, truncate(result.Columns[c], maxCellChars), colorText)
		for i, rec := range result.Records[:shown] {
			drawText(img, x+6, chartTop+(i+1)*tableRowHeight+13, truncate(formatCell(rec[c]), maxCellChars), colorText)
		}
		x += widths[c]
	}

	if footer > 0 {
		note := fmt.Sprintf("showing %d of %d rows and %d of %d columns", shown, len(result.Records), cols, len(result.Columns))
		drawText(img, chartMargin, height-chartMargin-2, note, colorMuted)
	}
	return img
}

func drawTitle(img *image.NRGBA, question, subtitle string) {
	maxChars := (img.Bounds().Dx() - 2*chartMargin) / glyphWidth
	drawText(img, chartMargin, 20, truncate(question, maxChars), colorText)
	drawText(img, chartMargin, 36, truncate(subtitle, maxChars), colorMuted)
}

func drawText(img *image.NRGBA, x, y int, s string, c color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

func fillRect(img *image.NRGBA, rect image.Rectangle, c color.Color) {
	draw.Draw(img, rect, image.NewUniform(c), image.Point{}, draw.Src)
}

// formatCell renders a result value as text
func formatCell(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		if !isFinite(val) {
			return strconv.FormatFloat(val, 'g', -1, 64)
		}
		return decimal.NewFromFloat(val).Round(2).String()
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	}
	return fmt.Sprint(v)
}

func isFinite(f float64) bool {
	return !math.IsInf(f, 0) && !math.IsNaN(f)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 3 {
		return string(runes[:n])
	}
	return string(runes[:n-3]) + "..."
}
