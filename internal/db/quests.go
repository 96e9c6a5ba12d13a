package db

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/genesis-ai-dev/langquest-sub009/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("record not found")

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// CreateLocalQuest inserts a quest authored on this device.
// An ID is generated if empty.
func (db *DB) CreateLocalQuest(q *models.LocalQuest) error {
	if q.ID == "" {
		q.ID = uuid.New().String()
	}
	return db.Create(q).Error
}

// UpdateLocalQuest saves changes to a local quest.
func (db *DB) UpdateLocalQuest(q *models.LocalQuest) error {
	return db.Save(q).Error
}

// GetLocalQuest retrieves a local quest by ID.
func (db *DB) GetLocalQuest(id string) (*models.LocalQuest, error) {
	var q models.LocalQuest
	if err := db.First(&q, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &q, nil
}

// GetSyncedQuest retrieves a synced quest by ID.
func (db *DB) GetSyncedQuest(id string) (*models.SyncedQuest, error) {
	var q models.SyncedQuest
	if err := db.First(&q, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &q, nil
}

// UpsertSyncedQuest inserts or overwrites the synced copy of a quest.
func (db *DB) UpsertSyncedQuest(q *models.SyncedQuest) error {
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(q).Error
}

// SetPublishedHash records the graph hash written by a publish.
func (db *DB) SetPublishedHash(questID, hash string) error {
	return db.Model(&models.SyncedQuest{}).
		Where("id = ?", questID).
		Updates(map[string]interface{}{
			"published_hash":    hash,
			"last_published_at": time.Now().UTC(),
		}).Error
}

// ListQuests returns the quests of a project from both table sets.
// A quest present in both is returned once, tagged local, since the local
// row carries the device's latest edits.
func (db *DB) ListQuests(projectID string) ([]models.Quest, error) {
	var local []models.LocalQuest
	if err := db.Where("project_id = ?", projectID).Order("name").Find(&local).Error; err != nil {
		return nil, fmt.Errorf("list local quests: %w", err)
	}
	var synced []models.SyncedQuest
	if err := db.Where("project_id = ?", projectID).Order("name").Find(&synced).Error; err != nil {
		return nil, fmt.Errorf("list synced quests: %w", err)
	}

	seen := make(map[string]bool, len(local))
	out := make([]models.Quest, 0, len(local)+len(synced))
	for _, q := range local {
		seen[q.ID] = true
		out = append(out, models.Quest{QuestFields: q.QuestFields, Source: models.SourceLocal})
	}
	for _, q := range synced {
		if !seen[q.ID] {
			out = append(out, models.Quest{QuestFields: q.QuestFields, Source: models.SourceSynced})
		}
	}
	return out, nil
}

// LoadLocalQuestGraph loads a local quest with its local assets and the
// attachment refs of both.
func (db *DB) LoadLocalQuestGraph(questID string) (*models.QuestGraph, error) {
	q, err := db.GetLocalQuest(questID)
	if err != nil {
		return nil, err
	}
	assets, err := db.ListLocalAssets(questID)
	if err != nil {
		return nil, err
	}

	g := &models.QuestGraph{Quest: q.QuestFields}
	assetIDs := make([]string, 0, len(assets))
	for _, a := range assets {
		g.Assets = append(g.Assets, a.AssetFields)
		assetIDs = append(assetIDs, a.ID)
	}

	if g.Refs, err = db.refsForGraph(models.TableQuestLocal, models.TableAssetLocal, questID, assetIDs); err != nil {
		return nil, err
	}
	return g, nil
}

// LoadSyncedQuestGraph loads a synced quest with its synced assets and
// refs. Returns ErrNotFound when the quest has never been synced.
func (db *DB) LoadSyncedQuestGraph(questID string) (*models.QuestGraph, *models.SyncedQuest, error) {
	q, err := db.GetSyncedQuest(questID)
	if err != nil {
		return nil, nil, err
	}
	assets, err := db.ListSyncedAssets(questID)
	if err != nil {
		return nil, nil, err
	}

	g := &models.QuestGraph{Quest: q.QuestFields}
	assetIDs := make([]string, 0, len(assets))
	for _, a := range assets {
		g.Assets = append(g.Assets, a.AssetFields)
		assetIDs = append(assetIDs, a.ID)
	}

	if g.Refs, err = db.refsForGraph(models.TableQuestSynced, models.TableAssetSynced, questID, assetIDs); err != nil {
		return nil, nil, err
	}
	return g, q, nil
}

func (db *DB) refsForGraph(questTable, assetTable, questID string, assetIDs []string) ([]models.AttachmentRef, error) {
	var refs []models.AttachmentRef
	query := db.Where("record_table = ? AND record_id = ?", questTable, questID)
	if len(assetIDs) > 0 {
		query = query.Or("record_table = ? AND record_id IN ?", assetTable, assetIDs)
	}
	if err := query.Order("record_id, attachment_id").Find(&refs).Error; err != nil {
		return nil, fmt.Errorf("load attachment refs: %w", err)
	}
	return refs, nil
}

// PruneSyncedGraph removes the synced rows of a quest's graph that a
// publish no longer carries: synced assets of questID not in assetIDs, and
// synced refs of the quest or its assets not in refs. Local rows are not
// touched.
func (db *DB) PruneSyncedGraph(questID string, assetIDs []string, refs []models.AttachmentRef) error {
	current, err := db.ListSyncedAssets(questID)
	if err != nil {
		return fmt.Errorf("list synced assets: %w", err)
	}

	keepAsset := make(map[string]bool, len(assetIDs))
	for _, id := range assetIDs {
		keepAsset[id] = true
	}
	allIDs := make([]string, 0, len(current))
	var stale []string
	for _, a := range current {
		allIDs = append(allIDs, a.ID)
		if !keepAsset[a.ID] {
			stale = append(stale, a.ID)
		}
	}

	existing, err := db.refsForGraph(models.TableQuestSynced, models.TableAssetSynced, questID, allIDs)
	if err != nil {
		return err
	}
	keepRef := make(map[models.AttachmentRef]bool, len(refs))
	for _, r := range refs {
		keepRef[models.AttachmentRef{RecordTable: r.RecordTable, RecordID: r.RecordID, AttachmentID: r.AttachmentID}] = true
	}
	for _, r := range existing {
		key := models.AttachmentRef{RecordTable: r.RecordTable, RecordID: r.RecordID, AttachmentID: r.AttachmentID}
		if keepRef[key] {
			continue
		}
		if err := db.RemoveAttachmentRef(r.RecordTable, r.RecordID, r.AttachmentID); err != nil {
			return fmt.Errorf("remove synced ref: %w", err)
		}
	}

	if len(stale) > 0 {
		if err := db.Where("id IN ?", stale).Delete(&models.SyncedAsset{}).Error; err != nil {
			return fmt.Errorf("delete synced assets: %w", err)
		}
	}
	return nil
}
