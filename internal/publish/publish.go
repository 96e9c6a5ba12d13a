// Package publish copies a validated local quest graph into the synced
// tables. Local rows are never changed; the Sync Engine picks up the new
// synced rows in the background.
package publish

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/genesis-ai-dev/langquest-sub009/internal/apperr"
	"github.com/genesis-ai-dev/langquest-sub009/internal/db"
	"github.com/genesis-ai-dev/langquest-sub009/internal/log"
	"github.com/genesis-ai-dev/langquest-sub009/internal/models"
	"github.com/genesis-ai-dev/langquest-sub009/internal/storage"
)

// SyncEngine replicates synced tables with the remote database.
type SyncEngine interface {
	Init(ctx context.Context) error
	// NotifyPending tells the engine that the named synced tables have
	// rows to upload.
	NotifyPending(ctx context.Context, tables []string) error
}

// PublishedRecord describes the outcome of a publish.
type PublishedRecord struct {
	ID              string
	Hash            string
	AssetCount      int
	AttachmentCount int
	// NoOp is true when the synced copy already matched.
	NoOp        bool
	PublishedAt time.Time
}

// Pipeline publishes quests.
type Pipeline struct {
	db     *db.DB
	store  storage.Adapter
	engine SyncEngine

	mu         sync.Mutex
	locks      map[string]*identityLock
	publishing map[string]bool
}

type identityLock struct {
	mu   sync.Mutex
	refs int
}

// New creates a pipeline. engine may be nil.
func New(database *db.DB, store storage.Adapter, engine SyncEngine) *Pipeline {
	return &Pipeline{
		db:         database,
		store:      store,
		engine:     engine,
		locks:      make(map[string]*identityLock),
		publishing: make(map[string]bool),
	}
}

// IsPublishing reports whether a publish of id is in progress.
func (p *Pipeline) IsPublishing(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.publishing[id]
}

// lock serializes publishes of one identity and returns the unlock func.
func (p *Pipeline) lock(id string) func() {
	p.mu.Lock()
	l, ok := p.locks[id]
	if !ok {
		l = &identityLock{}
		p.locks[id] = l
	}
	l.refs++
	p.mu.Unlock()

	l.mu.Lock()

	p.mu.Lock()
	p.publishing[id] = true
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.publishing, id)
		l.refs--
		if l.refs == 0 {
			delete(p.locks, id)
		}
		p.mu.Unlock()
		l.mu.Unlock()
	}
}

// Publish copies the local quest and its assets into the synced tables in
// one transaction. Preconditions are checked before anything is written.
func (p *Pipeline) Publish(ctx context.Context, questID string) (*PublishedRecord, error) {
	unlock := p.lock(questID)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	local, err := p.db.LoadLocalQuestGraph(questID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.Newf(apperr.NotFound, "local quest %s not found", questID)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.StorageFailure, "load local quest", err)
	}

	localHash, err := local.Hash()
	if err != nil {
		return nil, apperr.Wrap(apperr.StorageFailure, "hash local quest", err)
	}

	attachmentIDs := local.AttachmentIDs()
	if err := p.validate(ctx, local, attachmentIDs); err != nil {
		return nil, err
	}

	// The conflict check and the write share one transaction so a Sync
	// Engine write cannot land between them.
	var noop bool
	publishedAt := time.Now().UTC()
	err = p.db.Transaction(func(tx *db.DB) error {
		matched, err := checkConflict(tx, questID, localHash)
		if err != nil {
			return err
		}
		if matched {
			noop = true
			return nil
		}
		return writeSynced(tx, local, attachmentIDs, publishedAt)
	})
	if err != nil {
		var appErr *apperr.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, apperr.Wrap(apperr.StorageFailure, "commit publish", err)
	}
	if noop {
		log.Debugf("[Publish] %s unchanged since last publish", questID)
		return &PublishedRecord{
			ID:              questID,
			Hash:            localHash,
			AssetCount:      len(local.Assets),
			AttachmentCount: len(attachmentIDs),
			NoOp:            true,
		}, nil
	}

	log.Infof("[Publish] published quest %s (%d assets, %d attachments)", questID, len(local.Assets), len(attachmentIDs))
	p.notify(ctx)

	return &PublishedRecord{
		ID:              questID,
		Hash:            localHash,
		AssetCount:      len(local.Assets),
		AttachmentCount: len(attachmentIDs),
		PublishedAt:     publishedAt,
	}, nil
}

// validate collects every reason the graph cannot be published.
func (p *Pipeline) validate(ctx context.Context, g *models.QuestGraph, attachmentIDs []string) error {
	var reasons []string

	if g.Quest.Name == "" {
		reasons = append(reasons, "quest name is required")
	}
	if g.Quest.ProjectID == "" {
		reasons = append(reasons, "quest project_id is required")
	}
	for _, a := range g.Assets {
		if a.Name == "" {
			reasons = append(reasons, fmt.Sprintf("asset %s name is required", a.ID))
		}
	}

	attachments, err := p.db.GetAttachments(attachmentIDs)
	if err != nil {
		return apperr.Wrap(apperr.StorageFailure, "load attachments", err)
	}
	for _, id := range attachmentIDs {
		a, ok := attachments[id]
		switch {
		case !ok || a.Tombstoned:
			reasons = append(reasons, fmt.Sprintf("attachment %s is missing", id))
		case a.Confirmed():
		case a.State == models.StateDownloaded:
			if !p.presentLocally(ctx, a) {
				reasons = append(reasons, fmt.Sprintf("attachment %s is downloaded but its local file is missing", id))
			}
		default:
			reasons = append(reasons, fmt.Sprintf("attachment %s is %s", id, a.State))
		}
	}

	if len(reasons) > 0 {
		return apperr.Validation(fmt.Sprintf("quest %s cannot be published", g.Quest.ID), reasons...)
	}
	return nil
}

func (p *Pipeline) presentLocally(ctx context.Context, a *models.Attachment) bool {
	if a.LocalURI == nil || *a.LocalURI == "" {
		return false
	}
	ok, err := p.store.FileExists(ctx, *a.LocalURI)
	if err != nil {
		log.Warnf("[Publish] check local file for %s: %v", a.ID, err)
		return false
	}
	return ok
}

// checkConflict compares the current synced graph with the local one.
// It returns true when they already match.
func checkConflict(tx *db.DB, questID, localHash string) (bool, error) {
	synced, row, err := tx.LoadSyncedQuestGraph(questID)
	if errors.Is(err, db.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, apperr.Wrap(apperr.StorageFailure, "load synced quest", err)
	}

	syncedHash, err := synced.Hash()
	if err != nil {
		return false, apperr.Wrap(apperr.StorageFailure, "hash synced quest", err)
	}
	if syncedHash == localHash {
		return true, nil
	}
	if syncedHash != row.PublishedHash {
		// Changed remotely since our last publish, or never published
		// from this device.
		return false, apperr.Newf(apperr.ConflictDetected,
			"synced quest %s has changes not made by this device", questID)
	}
	return false, nil
}

func writeSynced(tx *db.DB, g *models.QuestGraph, attachmentIDs []string, publishedAt time.Time) error {
	quest := &models.SyncedQuest{QuestFields: g.Quest}
	if err := tx.UpsertSyncedQuest(quest); err != nil {
		return fmt.Errorf("upsert synced quest: %w", err)
	}

	if len(g.Assets) > 0 {
		assets := make([]models.SyncedAsset, 0, len(g.Assets))
		for _, a := range g.Assets {
			assets = append(assets, models.SyncedAsset{AssetFields: a})
		}
		if err := tx.UpsertSyncedAssets(assets); err != nil {
			return fmt.Errorf("upsert synced assets: %w", err)
		}
	}

	refs := make([]models.AttachmentRef, 0, len(g.Refs))
	for _, r := range g.Refs {
		refs = append(refs, models.AttachmentRef{
			RecordTable:  models.SyncedTableFor(r.RecordTable),
			RecordID:     r.RecordID,
			AttachmentID: r.AttachmentID,
		})
	}
	if err := tx.UpsertAttachmentRefs(refs); err != nil {
		return fmt.Errorf("upsert synced refs: %w", err)
	}

	// Overwrite, not merge: rows the local graph dropped leave the synced copy.
	assetIDs := make([]string, 0, len(g.Assets))
	for _, a := range g.Assets {
		assetIDs = append(assetIDs, a.ID)
	}
	if err := tx.PruneSyncedGraph(g.Quest.ID, assetIDs, refs); err != nil {
		return fmt.Errorf("prune synced graph: %w", err)
	}

	if err := tx.MoveAttachmentsToQueue(attachmentIDs, models.QueuePermanent); err != nil {
		return fmt.Errorf("promote attachments: %w", err)
	}

	// Record the hash of what is now in the synced tables, so a later
	// change by the Sync Engine shows up as a difference.
	synced, _, err := tx.LoadSyncedQuestGraph(g.Quest.ID)
	if err != nil {
		return fmt.Errorf("reload synced quest: %w", err)
	}
	syncedHash, err := synced.Hash()
	if err != nil {
		return err
	}
	if err := tx.SetPublishedHash(g.Quest.ID, syncedHash); err != nil {
		return fmt.Errorf("record published hash: %w", err)
	}

	return tx.SetSyncMeta(models.SyncMetaLastPublishAt, publishedAt.Format(time.RFC3339))
}

func (p *Pipeline) notify(ctx context.Context) {
	if p.engine == nil {
		return
	}
	tables := []string{models.TableQuestSynced, models.TableAssetSynced, "attachment_refs"}
	if err := p.engine.NotifyPending(ctx, tables); err != nil {
		log.Warnf("[Publish] sync engine notify failed: %v", err)
	}
}
