package db

import (
	"github.com/google/uuid"
	"gorm.io/gorm/clause"

	"github.com/genesis-ai-dev/langquest-sub009/internal/models"
)

// CreateLocalAsset inserts an asset authored on this device.
func (db *DB) CreateLocalAsset(a *models.LocalAsset) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return db.Create(a).Error
}

// UpdateLocalAsset saves changes to a local asset.
func (db *DB) UpdateLocalAsset(a *models.LocalAsset) error {
	return db.Save(a).Error
}

// GetLocalAsset retrieves a local asset by ID.
func (db *DB) GetLocalAsset(id string) (*models.LocalAsset, error) {
	var a models.LocalAsset
	if err := db.First(&a, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

// ListLocalAssets returns a quest's local assets in display order.
func (db *DB) ListLocalAssets(questID string) ([]models.LocalAsset, error) {
	var assets []models.LocalAsset
	err := db.Where("quest_id = ?", questID).
		Order("order_index, id").
		Find(&assets).Error
	return assets, err
}

// ListSyncedAssets returns a quest's synced assets in display order.
func (db *DB) ListSyncedAssets(questID string) ([]models.SyncedAsset, error) {
	var assets []models.SyncedAsset
	err := db.Where("quest_id = ?", questID).
		Order("order_index, id").
		Find(&assets).Error
	return assets, err
}

// UpsertSyncedAssets inserts or overwrites synced asset rows.
func (db *DB) UpsertSyncedAssets(assets []models.SyncedAsset) error {
	if len(assets) == 0 {
		return nil
	}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&assets).Error
}

// ListAssets returns a quest's assets from both table sets, preferring the
// local row when an asset exists in both.
func (db *DB) ListAssets(questID string) ([]models.Asset, error) {
	local, err := db.ListLocalAssets(questID)
	if err != nil {
		return nil, err
	}
	synced, err := db.ListSyncedAssets(questID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(local))
	out := make([]models.Asset, 0, len(local)+len(synced))
	for _, a := range local {
		seen[a.ID] = true
		out = append(out, models.Asset{AssetFields: a.AssetFields, Source: models.SourceLocal})
	}
	for _, a := range synced {
		if !seen[a.ID] {
			out = append(out, models.Asset{AssetFields: a.AssetFields, Source: models.SourceSynced})
		}
	}
	return out, nil
}
