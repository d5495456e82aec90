package config

import (
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// ConnectDatabase opens the Northwind store file and sets the global DB
func ConnectDatabase(cfg *Config) error {
	db, err := OpenDatabase(cfg.DatabasePath, cfg.ForeignKeys)
	if err != nil {
		return err
	}
	DB = db

	GetLogger().WithField("path", cfg.DatabasePath).Info("Database connection established successfully")
	return nil
}

// OpenDatabase opens a sqlite store at path. Foreign keys are enforced per
// connection when foreignKeys is set; WAL mode lets readers proceed while a
// writer holds the lock and the busy timeout serialises competing writers.
func OpenDatabase(path string, foreignKeys bool) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(DSN(path, foreignKeys)), &gorm.Config{
		Logger: logger.New(GetLogger(), logger.Config{
			LogLevel:                  logger.Error,
			SlowThreshold:             time.Second,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	if path == ":memory:" {
		// every connection to :memory: is a separate database
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// DSN builds the go-sqlite3 connection string for a store file
func DSN(path string, foreignKeys bool) string {
	fk := 0
	if foreignKeys {
		fk = 1
	}
	if path == ":memory:" {
		return fmt.Sprintf("file::memory:?_foreign_keys=%d", fk)
	}
	return fmt.Sprintf("file:%s?_foreign_keys=%d&_journal_mode=WAL&_busy_timeout=5000", path, fk)
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}

// SetDB sets the database instance (primarily for testing)
func SetDB(db *gorm.DB) {
	DB = db
}
