package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Source tags which table a record row lives in.
type Source string

const (
	SourceLocal  Source = "local"
	SourceSynced Source = "synced"
)

// Table names for the dual local/synced layout.
const (
	TableQuestLocal  = "quest_local"
	TableQuestSynced = "quest_synced"
	TableAssetLocal  = "asset_local"
	TableAssetSynced = "asset_synced"
)

// QuestFields is the content shared by the local and synced quest tables.
// The ID is identical across both representations.
type QuestFields struct {
	ID          string         `gorm:"primaryKey;size:36" json:"id"`
	ProjectID   string         `gorm:"size:36;index" json:"project_id"`
	Name        string         `gorm:"size:255" json:"name"`
	Description string         `gorm:"type:text" json:"description"`
	Metadata    datatypes.JSON `json:"metadata"`
	CreatorID   string         `gorm:"size:36" json:"creator_id"`
	Visible     bool           `json:"visible"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// BeforeSave stores empty metadata as an empty object rather than NULL.
func (q *QuestFields) BeforeSave(tx *gorm.DB) error {
	if len(q.Metadata) == 0 {
		q.Metadata = datatypes.JSON("{}")
	}
	return nil
}

// LocalQuest is a quest authored on this device. Publish never deletes
// or mutates it.
type LocalQuest struct {
	QuestFields
}

// TableName specifies the table name for GORM.
func (LocalQuest) TableName() string {
	return TableQuestLocal
}

// SyncedQuest mirrors the remote source of truth.
type SyncedQuest struct {
	QuestFields

	// PublishedHash is the graph hash of the synced rows as written by the
	// last publish from this device. A different current hash means the
	// Sync Engine has since brought in remote changes.
	PublishedHash   string     `gorm:"size:64" json:"published_hash"`
	LastPublishedAt *time.Time `json:"last_published_at"`
}

// TableName specifies the table name for GORM.
func (SyncedQuest) TableName() string {
	return TableQuestSynced
}

// Quest is a read model tagged with the table it came from.
type Quest struct {
	QuestFields
	Source Source `json:"source"`
}

// QuestContent is the hashed payload of a quest. Timestamps are excluded so
// a copy compares equal to its origin.
type QuestContent struct {
	ID          string `json:"id"`
	ProjectID   string `json:"project_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Metadata    string `json:"metadata"`
	CreatorID   string `json:"creator_id"`
	Visible     bool   `json:"visible"`
}

// HashContent returns the hashed payload.
func (q QuestFields) HashContent() QuestContent {
	return QuestContent{
		ID:          q.ID,
		ProjectID:   q.ProjectID,
		Name:        q.Name,
		Description: q.Description,
		Metadata:    string(q.Metadata),
		CreatorID:   q.CreatorID,
		Visible:     q.Visible,
	}
}
