// Package backup snapshots the relational store file and the local store
// before a schema migration and restores them if the migration fails.
// Backups accumulate in the backup directory until explicitly deleted.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/genesis-ai-dev/langquest-sub009/internal/apperr"
	"github.com/genesis-ai-dev/langquest-sub009/internal/hash"
	"github.com/genesis-ai-dev/langquest-sub009/internal/log"
	"github.com/genesis-ai-dev/langquest-sub009/internal/storage"
	"github.com/genesis-ai-dev/langquest-sub009/pkg/version"
)

const manifestSuffix = ".manifest.json"

// LocalStore is the part of the local store the service needs.
type LocalStore interface {
	Snapshot() ([]byte, error)
	Restore(data []byte) error
}

// Info describes one backup.
type Info struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	FromVersion int       `json:"from_version"`
	ToVersion   int       `json:"to_version"`
	// DBBackupPath is nil when the database half was skipped or failed.
	DBBackupPath *string `json:"db_backup_path"`
	// LocalStoreBackupPath is nil when the local store half was kept
	// inline or failed.
	LocalStoreBackupPath *string `json:"local_store_backup_path"`
	// LocalStoreData holds the snapshot when there is no filesystem to
	// write it to.
	LocalStoreData  []byte `json:"local_store_data,omitempty"`
	AppVersion      string `json:"app_version"`
	DBChecksum      string `json:"db_checksum,omitempty"`
	DBError         string `json:"db_error,omitempty"`
	LocalStoreError string `json:"local_store_error,omitempty"`
}

// Partial reports whether either half failed.
func (i *Info) Partial() bool {
	return i.DBError != "" || i.LocalStoreError != ""
}

// HasLocalStore reports whether the backup carries a local store snapshot.
func (i *Info) HasLocalStore() bool {
	return i.LocalStoreBackupPath != nil || len(i.LocalStoreData) > 0
}

// RestoreResult reports which halves were restored.
type RestoreResult struct {
	DatabaseRestored   bool
	LocalStoreRestored bool
	// Partial is true when the backup lacked a half that failed at
	// backup time.
	Partial bool
}

// Service creates and restores backups.
type Service struct {
	store  storage.Adapter
	dbPath string
	dir    string
	local  LocalStore
}

// New creates a backup service. dbPath is the live database file and dir
// the backup directory.
func New(store storage.Adapter, dbPath, dir string, local LocalStore) *Service {
	return &Service{store: store, dbPath: dbPath, dir: dir, local: local}
}

// Dir returns the backup directory.
func (s *Service) Dir() string {
	return s.dir
}

func backupID(created time.Time, from, to int) string {
	return fmt.Sprintf("%s_v%d_v%d", created.Format("20060102T150405.000000000Z"), from, to)
}

// Backup snapshots the database file and the local store. The halves are
// independent: a failure in one does not stop the other. When either
// fails, the returned Info records which half succeeded and the error is
// a BackupFailure.
func (s *Service) Backup(ctx context.Context, from, to int) (*Info, error) {
	created := time.Now().UTC()
	info := &Info{
		ID:          backupID(created, from, to),
		CreatedAt:   created,
		FromVersion: from,
		ToVersion:   to,
		AppVersion:  version.Short(),
	}

	var reasons []string
	if err := s.backupDatabase(ctx, info); err != nil {
		info.DBError = err.Error()
		reasons = append(reasons, "database: "+err.Error())
		log.Errorf("[Backup] database half failed: %v", err)
	}
	if err := s.backupLocalStore(ctx, info); err != nil {
		info.LocalStoreError = err.Error()
		reasons = append(reasons, "local store: "+err.Error())
		log.Errorf("[Backup] local store half failed: %v", err)
	}

	if s.store.Addressable() {
		if err := s.writeManifest(ctx, info); err != nil {
			reasons = append(reasons, "manifest: "+err.Error())
			log.Errorf("[Backup] manifest write failed: %v", err)
		}
	}

	if len(reasons) > 0 {
		return info, &apperr.AppError{
			Code:    apperr.BackupFailure,
			Message: fmt.Sprintf("backup %s incomplete", info.ID),
			Reasons: reasons,
		}
	}

	log.Infof("[Backup] created %s (v%d -> v%d)", info.ID, from, to)
	return info, nil
}

func (s *Service) backupDatabase(ctx context.Context, info *Info) error {
	if !s.store.Addressable() {
		log.Infof("[Backup] no addressable filesystem, skipping database copy")
		return nil
	}

	data, err := s.store.ReadFile(ctx, s.dbPath, storage.EncodingBinary)
	if errors.Is(err, storage.ErrNotFound) {
		// Nothing to back up yet.
		return nil
	}
	if err != nil {
		return fmt.Errorf("read database: %w", err)
	}

	dst := filepath.Join(s.dir, info.ID+".db")
	if err := s.store.WriteFile(ctx, dst, data, storage.EncodingBinary); err != nil {
		return fmt.Errorf("write database copy: %w", err)
	}
	info.DBBackupPath = &dst
	info.DBChecksum = hash.SHA256Bytes(data)
	return nil
}

func (s *Service) backupLocalStore(ctx context.Context, info *Info) error {
	if s.local == nil {
		return nil
	}
	data, err := s.local.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot local store: %w", err)
	}

	if !s.store.Addressable() {
		info.LocalStoreData = data
		return nil
	}

	dst := filepath.Join(s.dir, info.ID+"_localstore.json")
	if err := s.store.WriteFile(ctx, dst, data, storage.EncodingUTF8); err != nil {
		return fmt.Errorf("write local store copy: %w", err)
	}
	info.LocalStoreBackupPath = &dst
	return nil
}

func (s *Service) manifestPath(id string) string {
	return filepath.Join(s.dir, id+manifestSuffix)
}

func (s *Service) writeManifest(ctx context.Context, info *Info) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	return s.store.WriteFile(ctx, s.manifestPath(info.ID), data, storage.EncodingUTF8)
}

// Restore overwrites the live database file and the local store from a
// backup. The database must be closed by the caller first. Each present
// half is restored even if the other fails.
func (s *Service) Restore(ctx context.Context, info *Info) (*RestoreResult, error) {
	result := &RestoreResult{Partial: info.Partial()}
	if result.Partial {
		log.Warnf("[Backup] restoring from partial backup %s", info.ID)
	}
	if version.WrittenByNewer(info.AppVersion) {
		log.Warnf("[Backup] backup %s was written by newer app version %s", info.ID, info.AppVersion)
	}

	var reasons []string
	if info.DBBackupPath != nil {
		if err := s.restoreDatabase(ctx, info); err != nil {
			reasons = append(reasons, "database: "+err.Error())
			log.Errorf("[Backup] database restore failed: %v", err)
		} else {
			result.DatabaseRestored = true
		}
	}

	if info.HasLocalStore() && s.local != nil {
		if err := s.restoreLocalStore(ctx, info); err != nil {
			reasons = append(reasons, "local store: "+err.Error())
			log.Errorf("[Backup] local store restore failed: %v", err)
		} else {
			result.LocalStoreRestored = true
		}
	}

	if len(reasons) > 0 {
		return result, &apperr.AppError{
			Code:    apperr.RestoreFailure,
			Message: fmt.Sprintf("restore from %s incomplete", info.ID),
			Reasons: reasons,
		}
	}

	log.Infof("[Backup] restored %s (database=%v, local store=%v)", info.ID, result.DatabaseRestored, result.LocalStoreRestored)
	return result, nil
}

func (s *Service) restoreDatabase(ctx context.Context, info *Info) error {
	data, err := s.store.ReadFile(ctx, *info.DBBackupPath, storage.EncodingBinary)
	if err != nil {
		return fmt.Errorf("read database copy: %w", err)
	}
	if info.DBChecksum != "" && hash.SHA256Bytes(data) != info.DBChecksum {
		return fmt.Errorf("database copy %s is corrupt (checksum mismatch)", *info.DBBackupPath)
	}

	// A rollback journal left by the failed run would be replayed over
	// the restored file.
	if err := s.store.DeleteFile(ctx, s.dbPath+"-journal"); err != nil {
		return fmt.Errorf("remove stale journal: %w", err)
	}
	if err := s.store.WriteFile(ctx, s.dbPath, data, storage.EncodingBinary); err != nil {
		return fmt.Errorf("write database: %w", err)
	}
	return nil
}

func (s *Service) restoreLocalStore(ctx context.Context, info *Info) error {
	data := info.LocalStoreData
	if info.LocalStoreBackupPath != nil {
		var err error
		data, err = s.store.ReadFile(ctx, *info.LocalStoreBackupPath, storage.EncodingUTF8)
		if err != nil {
			return fmt.Errorf("read local store copy: %w", err)
		}
	}
	return s.local.Restore(data)
}

// List returns the backups found in the backup directory, newest first.
func (s *Service) List(ctx context.Context) ([]*Info, error) {
	if !s.store.Addressable() {
		return nil, nil
	}

	paths, err := filepath.Glob(filepath.Join(s.dir, "*"+manifestSuffix))
	if err != nil {
		return nil, err
	}

	infos := make([]*Info, 0, len(paths))
	for _, p := range paths {
		data, err := s.store.ReadFile(ctx, p, storage.EncodingUTF8)
		if err != nil {
			log.Warnf("[Backup] skipping unreadable manifest %s: %v", filepath.Base(p), err)
			continue
		}
		var info Info
		if err := json.Unmarshal(data, &info); err != nil {
			log.Warnf("[Backup] skipping corrupt manifest %s: %v", filepath.Base(p), err)
			continue
		}
		if info.ID == "" {
			info.ID = strings.TrimSuffix(filepath.Base(p), manifestSuffix)
		}
		infos = append(infos, &info)
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.After(infos[j].CreatedAt)
	})
	return infos, nil
}

// Get returns the backup with the given id.
func (s *Service) Get(ctx context.Context, id string) (*Info, error) {
	infos, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		if info.ID == id {
			return info, nil
		}
	}
	return nil, apperr.Newf(apperr.NotFound, "backup %s not found", id)
}

// Delete removes a backup's files and manifest.
func (s *Service) Delete(ctx context.Context, info *Info) error {
	var errs []error
	for _, p := range []*string{info.DBBackupPath, info.LocalStoreBackupPath} {
		if p == nil {
			continue
		}
		if err := s.store.DeleteFile(ctx, *p); err != nil {
			errs = append(errs, err)
		}
	}
	if s.store.Addressable() {
		if err := s.store.DeleteFile(ctx, s.manifestPath(info.ID)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("delete backup %s: %w", info.ID, err)
	}
	log.Debugf("[Backup] deleted %s", info.ID)
	return nil
}

// Clear deletes every backup and returns how many were removed.
func (s *Service) Clear(ctx context.Context) (int, error) {
	infos, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, info := range infos {
		if err := s.Delete(ctx, info); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
