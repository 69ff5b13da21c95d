package database

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Config describes a SQLite database.
type Config struct {
	// Path is the database file. ":memory:" or a "file:" URI are passed
	// to the driver unchanged.
	Path        string
	BusyTimeout int
	EnableWAL   bool
	Logger      *slog.Logger
}

// DBManager owns a gorm connection to a SQLite database.
type DBManager struct {
	cfg    Config
	db     *gorm.DB
	logger *slog.Logger
}

func NewDBManager(cfg Config) *DBManager {
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5000
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &DBManager{cfg: cfg, logger: cfg.Logger}
}

// Connect opens the database and applies connection pragmas.
func (dm *DBManager) Connect() (*gorm.DB, error) {
	if dm.db != nil {
		return dm.db, nil
	}

	if dir := filepath.Dir(dm.cfg.Path); isFilePath(dm.cfg.Path) && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dm.cfg.Path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", dm.cfg.Path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	// A single writer keeps SQLite from returning SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)

	pragmas := []string{fmt.Sprintf("PRAGMA busy_timeout = %d", dm.cfg.BusyTimeout)}
	if dm.cfg.EnableWAL && isFilePath(dm.cfg.Path) {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL", "PRAGMA synchronous = NORMAL")
	}
	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	dm.db = db
	dm.logger.Debug("Database connected", slog.String("path", dm.cfg.Path))
	return db, nil
}

// Migrate creates or updates the tables for models.
func (dm *DBManager) Migrate(models ...any) error {
	db, err := dm.Connect()
	if err != nil {
		return err
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		return tx.AutoMigrate(models...)
	})
	if err != nil {
		dm.logger.Error("Failed to auto-migrate database", slog.Any("error", err))
		return err
	}
	return nil
}

// GetConnection returns the open connection, or nil before Connect.
func (dm *DBManager) GetConnection() *gorm.DB {
	return dm.db
}

// Close releases the connection.
func (dm *DBManager) Close() error {
	if dm.db == nil {
		return nil
	}
	sqlDB, err := dm.db.DB()
	if err != nil {
		return err
	}
	dm.db = nil
	return sqlDB.Close()
}

func isFilePath(path string) bool {
	return path != ":memory:" && !strings.HasPrefix(path, "file:")
}
