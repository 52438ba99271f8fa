package database

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/actionsum/nudge/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	defaultDBName = "nudge.db"
	defaultDBDir  = ".config/nudge"
)

type DB struct {
	*gorm.DB
}

func GetDefaultDBPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	return filepath.Join(homeDir, defaultDBDir, defaultDBName), nil
}

// Connect opens (creating if needed) the SQLite database at dbPath. An empty
// path means the default under the user's config directory.
func Connect(dbPath string) (*DB, error) {
	if dbPath == "" {
		var err error
		dbPath, err = GetDefaultDBPath()
		if err != nil {
			return nil, err
		}
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &DB{db}, nil
}

func (db *DB) Initialize() error {
	err := db.AutoMigrate(&models.Detection{}, &models.ErrorLog{}, &models.Capability{})
	if err != nil {
		return fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return nil
}

func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// Open connects and migrates in one step.
func Open(dbPath string) (*DB, error) {
	db, err := Connect(dbPath)
	if err != nil {
		return nil, err
	}
	if err := db.Initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
