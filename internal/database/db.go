package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/postgres" // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3"              // SQLite driver

	"frycast/internal/models"
)

// Supported drivers
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Open opens a gorm connection. SQLite databases get their parent directory created
// and a single connection, since the store serializes writes itself.
func Open(driver, dsn string) (*gorm.DB, error) {
	switch driver {
	case "", DriverSQLite:
		driver = DriverSQLite
		if dsn == "" {
			dsn = ":memory:"
		}
		if !strings.HasPrefix(dsn, ":memory:") && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	case DriverPostgres:
		if dsn == "" {
			return nil, fmt.Errorf("postgres driver requires a dsn")
		}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	if driver == DriverSQLite {
		db.DB().SetMaxOpenConns(1)
	}
	db.LogMode(false)
	return db, nil
}

// Migrate creates or updates the durable tables
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.MetricPoint{}, &models.RecommendationRecord{}).Error; err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// OpenAndMigrate opens the database and migrates it, closing it again on failure
func OpenAndMigrate(driver, dsn string) (*gorm.DB, error) {
	db, err := Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
