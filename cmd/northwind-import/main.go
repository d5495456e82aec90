package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/sudharshan-ks/dev-postmark-challenge/config"
	"github.com/sudharshan-ks/dev-postmark-challenge/models"
	"github.com/sudharshan-ks/dev-postmark-challenge/services"
)

func main() {
	_ = godotenv.Load()

	dbPath := flag.String("db", envOr("DATABASE_PATH", "northwind.db"), "Path of the Northwind sqlite store")
	importPath := flag.String("import", "", "Workbook (.xlsx) to load; one sheet per table")
	exportPath := flag.String("export", "", "Write every table to this workbook (.xlsx)")
	foreignKeys := flag.Bool("foreign-keys", true, "Enforce foreign keys while importing")
	flag.Parse()

	if strings.TrimSpace(*importPath) == "" && strings.TrimSpace(*exportPath) == "" {
		fmt.Fprintln(os.Stderr, "one of --import or --export is required")
		os.Exit(1)
	}

	logger := config.GetLogger()
	ctx := context.Background()

	db, err := config.OpenDatabase(*dbPath, *foreignKeys)
	if err != nil {
		logger.Fatalf("Failed to open database: %v", err)
	}
	if err := models.Migrate(ctx, db); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}

	if *importPath != "" {
		f, err := os.Open(*importPath)
		if err != nil {
			logger.Fatalf("Failed to open workbook: %v", err)
		}
		reports, err := services.ImportWorkbook(ctx, db, f)
		_ = f.Close()
		if err != nil {
			logger.Fatalf("Import failed, nothing was loaded: %v", err)
		}

		total := 0
		for _, r := range reports {
			logger.WithFields(logrus.Fields{"table": r.Table, "rows": r.Rows}).Info("Imported sheet")
			total += r.Rows
		}
		logger.WithFields(logrus.Fields{"file": *importPath, "rows": total}).Info("Import completed")
	}

	if *exportPath != "" {
		data, err := services.ExportTables(ctx, db)
		if err != nil {
			logger.Fatalf("Export failed: %v", err)
		}
		if err := os.WriteFile(*exportPath, data, 0644); err != nil {
			logger.Fatalf("Failed to write workbook: %v", err)
		}
		logger.WithFields(logrus.Fields{"file": *exportPath, "bytes": len(data)}).Info("Export completed")
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
