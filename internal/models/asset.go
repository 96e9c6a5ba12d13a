package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AssetFields is the content shared by the local and synced asset tables.
// A quest owns its assets for publish purposes.
type AssetFields struct {
	ID         string         `gorm:"primaryKey;size:36" json:"id"`
	QuestID    string         `gorm:"size:36;index" json:"quest_id"`
	Name       string         `gorm:"size:255" json:"name"`
	Content    string         `gorm:"type:text" json:"content"`
	OrderIndex int            `gorm:"default:0" json:"order_index"`
	Metadata   datatypes.JSON `json:"metadata"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// BeforeSave stores empty metadata as an empty object rather than NULL.
func (a *AssetFields) BeforeSave(tx *gorm.DB) error {
	if len(a.Metadata) == 0 {
		a.Metadata = datatypes.JSON("{}")
	}
	return nil
}

// LocalAsset is an asset authored on this device.
type LocalAsset struct {
	AssetFields
}

// TableName specifies the table name for GORM.
func (LocalAsset) TableName() string {
	return TableAssetLocal
}

// SyncedAsset mirrors the remote asset table.
type SyncedAsset struct {
	AssetFields
}

// TableName specifies the table name for GORM.
func (SyncedAsset) TableName() string {
	return TableAssetSynced
}

// Asset is a read model tagged with the table it came from.
type Asset struct {
	AssetFields
	Source Source `json:"source"`
}

// AssetContent is the hashed payload of an asset.
type AssetContent struct {
	ID         string `json:"id"`
	QuestID    string `json:"quest_id"`
	Name       string `json:"name"`
	Content    string `json:"content"`
	OrderIndex int    `json:"order_index"`
	Metadata   string `json:"metadata"`
}

// HashContent returns the hashed payload.
func (a AssetFields) HashContent() AssetContent {
	return AssetContent{
		ID:         a.ID,
		QuestID:    a.QuestID,
		Name:       a.Name,
		Content:    a.Content,
		OrderIndex: a.OrderIndex,
		Metadata:   string(a.Metadata),
	}
}
