// Package migration applies versioned schema changes to the relational
// store. Every run with pending steps is bracketed by a backup: on
// failure the database and local store are restored before the error is
// returned.
package migration

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"gorm.io/gorm"

	"github.com/genesis-ai-dev/langquest-sub009/internal/apperr"
	"github.com/genesis-ai-dev/langquest-sub009/internal/backup"
	"github.com/genesis-ai-dev/langquest-sub009/internal/db"
	"github.com/genesis-ai-dev/langquest-sub009/internal/log"
)

// Step is one schema version.
type Step struct {
	Version     int
	Description string
	Up          func(tx *gorm.DB) error
}

// Backups is the backup service as used by the migrator.
type Backups interface {
	Backup(ctx context.Context, from, to int) (*backup.Info, error)
	Restore(ctx context.Context, info *backup.Info) (*backup.RestoreResult, error)
	Delete(ctx context.Context, info *backup.Info) error
}

// Result tracks what was done during migration.
type Result struct {
	FromVersion int
	ToVersion   int
	Applied     int
	// BackupID is set when a backup was taken and kept, i.e. on failure.
	BackupID string
}

// Migrator runs schema steps against a database.
type Migrator struct {
	db      *db.DB
	backups Backups
	steps   []Step
}

// New creates a migrator. Steps are applied in version order.
func New(database *db.DB, backups Backups, steps []Step) *Migrator {
	sorted := append([]Step(nil), steps...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })
	return &Migrator{db: database, backups: backups, steps: sorted}
}

// CurrentVersion returns the schema version recorded in the database.
func (m *Migrator) CurrentVersion() (int, error) {
	return m.db.SchemaVersion()
}

// LatestVersion returns the highest known step version.
func (m *Migrator) LatestVersion() int {
	if len(m.steps) == 0 {
		return 0
	}
	return m.steps[len(m.steps)-1].Version
}

// Pending returns the steps newer than the current version.
func (m *Migrator) Pending() ([]Step, error) {
	current, err := m.CurrentVersion()
	if err != nil {
		return nil, err
	}
	var pending []Step
	for _, s := range m.steps {
		if s.Version > current {
			pending = append(pending, s)
		}
	}
	return pending, nil
}

// Up applies all pending steps. Running it with nothing pending is a
// no-op and takes no backup.
func (m *Migrator) Up(ctx context.Context) (*Result, error) {
	current, err := m.CurrentVersion()
	if err != nil {
		return nil, apperr.Wrap(apperr.StorageFailure, "read schema version", err)
	}
	pending, err := m.Pending()
	if err != nil {
		return nil, apperr.Wrap(apperr.StorageFailure, "list pending migrations", err)
	}

	result := &Result{FromVersion: current, ToVersion: current}
	if len(pending) == 0 {
		return result, nil
	}
	target := pending[len(pending)-1].Version

	info, err := m.backups.Backup(ctx, current, target)
	if err != nil {
		if info == nil || info.DBError != "" {
			return result, apperr.Wrap(apperr.BackupFailure, "refusing to migrate without a database backup", err)
		}
		log.Warnf("[Migrate] continuing with partial backup %s: %v", info.ID, err)
	}

	for _, step := range pending {
		if err := ctx.Err(); err != nil {
			return result, m.rollback(ctx, info, result, step, err)
		}

		log.Infof("[Migrate] applying v%d: %s", step.Version, step.Description)
		err := m.db.Transaction(func(tx *db.DB) error {
			if err := step.Up(tx.DB); err != nil {
				return err
			}
			return tx.SetSchemaVersion(step.Version)
		})
		if err != nil {
			return result, m.rollback(ctx, info, result, step, err)
		}
		result.ToVersion = step.Version
		result.Applied++
	}

	log.Infof("[Migrate] schema at v%d (%d steps applied)", result.ToVersion, result.Applied)
	if info != nil {
		if err := m.backups.Delete(ctx, info); err != nil {
			log.Warnf("[Migrate] failed to delete backup %s: %v", info.ID, err)
		}
	}
	return result, nil
}

// rollback restores the pre-migration state and returns the step error,
// joined with anything that went wrong while restoring.
func (m *Migrator) rollback(ctx context.Context, info *backup.Info, result *Result, step Step, stepErr error) error {
	log.Errorf("[Migrate] v%d failed: %v", step.Version, stepErr)

	errs := []error{stepErr}
	if info == nil {
		return apperr.Wrap(apperr.StorageFailure, fmt.Sprintf("migration to v%d failed", step.Version), stepErr)
	}
	result.BackupID = info.ID

	if err := m.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}

	// The restore runs even if the migration context was cancelled.
	restored, err := m.backups.Restore(context.WithoutCancel(ctx), info)
	if err != nil {
		errs = append(errs, err)
	}
	if err := m.db.Reopen(); err != nil {
		errs = append(errs, err)
	}

	if restored != nil && restored.DatabaseRestored {
		result.ToVersion = result.FromVersion
		result.Applied = 0
	}
	return apperr.Wrap(apperr.StorageFailure, fmt.Sprintf("migration to v%d failed", step.Version), errors.Join(errs...))
}
