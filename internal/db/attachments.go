package db

import (
	"time"

	"gorm.io/gorm/clause"

	"github.com/genesis-ai-dev/langquest-sub009/internal/models"
)

// CreateAttachment inserts a new attachment row.
func (db *DB) CreateAttachment(a *models.Attachment) error {
	return db.Create(a).Error
}

// GetAttachment retrieves an attachment by ID, including tombstoned rows.
func (db *DB) GetAttachment(id string) (*models.Attachment, error) {
	var a models.Attachment
	if err := db.First(&a, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

// GetAttachments retrieves attachments by ID. Missing IDs are absent from
// the result map.
func (db *DB) GetAttachments(ids []string) (map[string]*models.Attachment, error) {
	out := make(map[string]*models.Attachment, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Attachment
	if err := db.Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		out[rows[i].ID] = &rows[i]
	}
	return out, nil
}

// ListAttachments returns the live attachments of a queue, oldest first.
func (db *DB) ListAttachments(queue models.QueueName) ([]models.Attachment, error) {
	var rows []models.Attachment
	err := db.Where("queue = ? AND tombstoned = ?", queue, false).
		Order("created_at, id").
		Find(&rows).Error
	return rows, err
}

// ListReadyAttachments returns queued attachments whose next attempt is due.
func (db *DB) ListReadyAttachments(queue models.QueueName, now time.Time, limit int) ([]models.Attachment, error) {
	var rows []models.Attachment
	query := db.Where("queue = ? AND tombstoned = ? AND state IN ? AND next_attempt_at <= ?",
		queue, false,
		[]models.AttachmentState{models.StateQueuedUpload, models.StateQueuedDownload},
		now).
		Order("next_attempt_at, created_at, id")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&rows).Error
	return rows, err
}

// UpdateAttachment applies column updates to one attachment row.
func (db *DB) UpdateAttachment(id string, updates map[string]interface{}) error {
	res := db.Model(&models.Attachment{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetInterrupted moves attachments left mid-transfer back to their
// queued state so the next pass attempts them afresh. Returns the number
// of rows reset.
func (db *DB) ResetInterrupted(queue models.QueueName) (int64, error) {
	var total int64
	pairs := []struct {
		from, to models.AttachmentState
	}{
		{models.StateUploading, models.StateQueuedUpload},
		{models.StateDownloading, models.StateQueuedDownload},
	}
	for _, p := range pairs {
		res := db.Model(&models.Attachment{}).
			Where("queue = ? AND state = ?", queue, p.from).
			Updates(map[string]interface{}{
				"state":           p.to,
				"next_attempt_at": time.Now().UTC(),
			})
		if res.Error != nil {
			return total, res.Error
		}
		total += res.RowsAffected
	}
	return total, nil
}

// MoveAttachmentsToQueue reassigns attachments to another queue instance.
// State is left untouched.
func (db *DB) MoveAttachmentsToQueue(ids []string, queue models.QueueName) error {
	if len(ids) == 0 {
		return nil
	}
	return db.Model(&models.Attachment{}).
		Where("id IN ?", ids).
		Update("queue", queue).Error
}

// UpsertAttachment inserts or replaces an attachment row.
func (db *DB) UpsertAttachment(a *models.Attachment) error {
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(a).Error
}
