package services

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/sudharshan-ks/dev-postmark-challenge/models"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// ResultSheet is the sheet name of a result workbook
const ResultSheet = "Result"

// WorkbookContentType is the MIME type of .xlsx attachments
const WorkbookContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// BuildWorkbook writes every row of result to a single-sheet workbook
func BuildWorkbook(result *QueryResult) ([]byte, error) {
	if result == nil || len(result.Columns) == 0 {
		return nil, fmt.Errorf("result has no columns")
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ResultSheet); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}
	if err := writeSheet(f, ResultSheet, result.Columns, result.Records); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, sheet string, columns []string, records [][]interface{}) error {
	header := make([]interface{}, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	if err := f.SetRowStyle(sheet, 1, 1, bold); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	for i, rec := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := make([]interface{}, len(rec))
		for j, v := range rec {
			row[j] = finiteValue(v)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}
	return nil
}

// ExportTables writes each Northwind table to a sheet of the same name
func ExportTables(ctx context.Context, db *gorm.DB) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	for i, name := range models.TableNames {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				return nil, err
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return nil, err
		}

		table, _ := models.MustCatalog().Table(name)
		columns := make([]string, len(table.Columns))
		for j, c := range table.Columns {
			columns[j] = c.Name
		}

		records, err := readTable(ctx, db, name, len(columns))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		if err := writeSheet(f, name, columns, records); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func readTable(ctx context.Context, db *gorm.DB, table string, width int) ([][]interface{}, error) {
	rows, err := db.WithContext(ctx).Table(table).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records [][]interface{}
	for rows.Next() {
		values := make([]interface{}, width)
		ptrs := make([]interface{}, width)
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range values {
			values[i] = normalizeValue(v)
		}
		records = append(records, values)
	}
	return records, rows.Err()
}

// ImportReport counts the rows loaded into one table
type ImportReport struct {
	Table string
	Rows  int
}

// ImportWorkbook loads rows from sheets named after Northwind tables. The
// first row of each sheet names the columns; empty cells are NULL. All sheets
// load in one transaction with foreign keys checked at commit, so rows may
// reference rows later in the workbook.
func ImportWorkbook(ctx context.Context, db *gorm.DB, r io.Reader) ([]ImportReport, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	catalog := models.MustCatalog()
	var reports []ImportReport

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("PRAGMA defer_foreign_keys = ON").Error; err != nil {
			return err
		}

		for _, table := range catalog.Tables {
			if idx, err := f.GetSheetIndex(table.Name); err != nil || idx < 0 {
				continue
			}
			rows, err := f.GetRows(table.Name)
			if err != nil {
				return fmt.Errorf("unable to read sheet %s: %w", table.Name, err)
			}
			if len(rows) == 0 {
				continue
			}

			header := make([]string, len(rows[0]))
			for i, name := range rows[0] {
				col, ok := columnByName(table, name)
				if !ok {
					return fmt.Errorf("sheet %s: unknown column %q", table.Name, name)
				}
				header[i] = col
			}

			report := ImportReport{Table: table.Name}
			for i, row := range rows[1:] {
				record := make(map[string]interface{}, len(header))
				empty := true
				for c, col := range header {
					if c < len(row) && row[c] != "" {
						record[col] = row[c]
						empty = false
					} else {
						record[col] = nil
					}
				}
				if empty {
					continue
				}
				if err := tx.Table(table.Name).Create(record).Error; err != nil {
					return fmt.Errorf("sheet %s row %d: %w", table.Name, i+2, err)
				}
				report.Rows++
			}
			reports = append(reports, report)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reports, nil
}

func columnByName(table models.Table, name string) (string, bool) {
	for _, c := range table.Columns {
		if strings.EqualFold(c.Name, strings.TrimSpace(name)) {
			return c.Name, true
		}
	}
	return "", false
}
