// Package db provides a GORM-based relational store for LangQuest.
// Every syncable entity has a local table (device-authored, never
// auto-deleted) and a synced table (mirrored by the sync engine).
// It uses the pure-Go SQLite driver.
package db

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/genesis-ai-dev/langquest-sub009/internal/models"
)

// DB wraps the GORM database connection with LangQuest-specific operations.
type DB struct {
	*gorm.DB
	path string
	cfg  Config

	// reopenMu serializes Close/Reopen around file-level restores.
	reopenMu *sync.Mutex
}

// Config holds database configuration options.
type Config struct {
	Path        string
	Debug       bool
	MaxIdleConn int
	MaxOpenConn int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(path string) Config {
	return Config{
		Path:        path,
		Debug:       false,
		MaxIdleConn: 1,
		MaxOpenConn: 1,
	}
}

// Open opens the database without touching the schema. Schema changes go
// through the migrator so they can be bracketed by a backup.
func Open(cfg Config) (*DB, error) {
	gdb, err := openGorm(cfg)
	if err != nil {
		return nil, err
	}
	return &DB{DB: gdb, path: cfg.Path, cfg: cfg, reopenMu: &sync.Mutex{}}, nil
}

// New opens the database and brings the schema up to the current models.
// Used by tools and tests that do not need backup-bracketed migrations.
func New(cfg Config) (*DB, error) {
	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func openGorm(cfg Config) (*gorm.DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	logLevel := logger.Silent
	if cfg.Debug {
		logLevel = logger.Info
	}

	// DELETE journal mode keeps the database a single file, so a plain file
	// copy is a complete snapshot between transactions.
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(DELETE)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)", cfg.Path)

	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 logger.Default.LogMode(logLevel),
		SkipDefaultTransaction: true,
		// Timestamps are compared as text by SQLite, so keep them in one zone.
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConn)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConn)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return gdb, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Close closes the database connection.
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Reopen closes the current connection (if still open) and opens a fresh
// one on the same file. Holders of this *DB see the new connection.
func (db *DB) Reopen() error {
	db.reopenMu.Lock()
	defer db.reopenMu.Unlock()

	_ = db.Close()
	gdb, err := openGorm(db.cfg)
	if err != nil {
		return fmt.Errorf("reopen database: %w", err)
	}
	db.DB = gdb
	return nil
}

// Transaction executes a function within a database transaction.
// The callback receives a *DB wrapper that uses the transaction.
// If the callback returns an error, the transaction is rolled back.
// If the callback returns nil, the transaction is committed.
func (db *DB) Transaction(fc func(tx *DB) error) error {
	return db.DB.Transaction(func(tx *gorm.DB) error {
		wrappedTx := &DB{DB: tx, path: db.path, cfg: db.cfg, reopenMu: db.reopenMu}
		return fc(wrappedTx)
	})
}

// Stats is a row count summary used by status reporting.
type Stats struct {
	LocalQuests  int64
	SyncedQuests int64
	LocalAssets  int64
	SyncedAssets int64
	Attachments  map[models.AttachmentState]int64
	SizeBytes    int64
}

// GetStats returns aggregate statistics about the database.
func (db *DB) GetStats() (*Stats, error) {
	stats := &Stats{Attachments: make(map[models.AttachmentState]int64)}

	counts := []struct {
		model interface{}
		dst   *int64
	}{
		{&models.LocalQuest{}, &stats.LocalQuests},
		{&models.SyncedQuest{}, &stats.SyncedQuests},
		{&models.LocalAsset{}, &stats.LocalAssets},
		{&models.SyncedAsset{}, &stats.SyncedAssets},
	}
	for _, c := range counts {
		if err := db.Model(c.model).Count(c.dst).Error; err != nil {
			return nil, fmt.Errorf("count rows: %w", err)
		}
	}

	var rows []struct {
		State models.AttachmentState
		N     int64
	}
	if err := db.Model(&models.Attachment{}).
		Select("state, COUNT(*) AS n").
		Where("tombstoned = ?", false).
		Group("state").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("count attachments: %w", err)
	}
	for _, r := range rows {
		stats.Attachments[r.State] = r.N
	}

	if info, err := os.Stat(db.path); err == nil {
		stats.SizeBytes = info.Size()
	}

	return stats, nil
}
