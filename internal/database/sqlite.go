package database

import (
	"fmt"
	"log"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ConnectSQLite opens a single-node store at path.
func ConnectSQLite(path string) (*gorm.DB, error) {
	return openSQLite(path, &gorm.Config{})
}

// ConnectSQLiteQuiet is ConnectSQLite with gorm's logger silenced, for tests.
func ConnectSQLiteQuiet(path string) (*gorm.DB, error) {
	return openSQLite(path, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
}

func openSQLite(path string, gcfg *gorm.Config) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"), gcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	// SQLite works best with a single writer; cap the pool accordingly.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	if err := Migrate(db); err != nil {
		return nil, err
	}

	log.Printf("Database ready (sqlite %s)", path)
	return db, nil
}
