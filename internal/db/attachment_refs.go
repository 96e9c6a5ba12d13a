package db

import (
	"time"

	"gorm.io/gorm/clause"

	"github.com/genesis-ai-dev/langquest-sub009/internal/models"
)

// AddAttachmentRef records that a record row references an attachment.
// Adding an existing ref is a no-op.
func (db *DB) AddAttachmentRef(recordTable, recordID, attachmentID string) error {
	ref := models.AttachmentRef{
		RecordTable:  recordTable,
		RecordID:     recordID,
		AttachmentID: attachmentID,
	}
	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&ref).Error
}

// RemoveAttachmentRef deletes one ref.
func (db *DB) RemoveAttachmentRef(recordTable, recordID, attachmentID string) error {
	return db.Where("record_table = ? AND record_id = ? AND attachment_id = ?",
		recordTable, recordID, attachmentID).
		Delete(&models.AttachmentRef{}).Error
}

// UpsertAttachmentRefs inserts refs, ignoring ones that already exist.
func (db *DB) UpsertAttachmentRefs(refs []models.AttachmentRef) error {
	if len(refs) == 0 {
		return nil
	}
	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&refs).Error
}

// ListRefsForAttachment returns every ref pointing at an attachment.
func (db *DB) ListRefsForAttachment(attachmentID string) ([]models.AttachmentRef, error) {
	var refs []models.AttachmentRef
	err := db.Where("attachment_id = ?", attachmentID).Find(&refs).Error
	return refs, err
}

// ListOrphanAttachments returns live attachments of a queue that no ref
// points at and that have not changed since before cutoff. A zero cutoff
// matches all.
func (db *DB) ListOrphanAttachments(queue models.QueueName, cutoff time.Time) ([]models.Attachment, error) {
	var rows []models.Attachment
	query := db.Where("queue = ? AND tombstoned = ?", queue, false).
		Where("NOT EXISTS (SELECT 1 FROM attachment_refs r WHERE r.attachment_id = attachments.id)")
	if !cutoff.IsZero() {
		query = query.Where("updated_at < ?", cutoff)
	}
	err := query.Order("created_at, id").Find(&rows).Error
	return rows, err
}

// ListDanglingRefs returns refs whose attachment is missing or tombstoned.
func (db *DB) ListDanglingRefs() ([]models.AttachmentRef, error) {
	var refs []models.AttachmentRef
	err := db.Where(`NOT EXISTS (
			SELECT 1 FROM attachments a
			WHERE a.id = attachment_refs.attachment_id AND a.tombstoned = ?
		)`, false).
		Order("record_table, record_id, attachment_id").
		Find(&refs).Error
	return refs, err
}
