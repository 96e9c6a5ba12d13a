package models

import "time"

// AttachmentRef is the weak reference from a record row to an attachment.
// Deleting the record does not own the attachment's lifecycle; the queue
// sweep reports attachments no ref points at.
type AttachmentRef struct {
	RecordTable  string    `gorm:"primaryKey;size:64" json:"record_table"`
	RecordID     string    `gorm:"primaryKey;size:36" json:"record_id"`
	AttachmentID string    `gorm:"primaryKey;size:36;index" json:"attachment_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM.
func (AttachmentRef) TableName() string {
	return "attachment_refs"
}

// SyncedTableFor maps a local record table to its synced counterpart.
func SyncedTableFor(localTable string) string {
	switch localTable {
	case TableQuestLocal:
		return TableQuestSynced
	case TableAssetLocal:
		return TableAssetSynced
	default:
		return localTable
	}
}
