package models

import "time"

// AttachmentState is a position in the transfer state machine.
type AttachmentState string

const (
	StateQueuedUpload   AttachmentState = "queued_upload"
	StateUploading      AttachmentState = "uploading"
	StateUploaded       AttachmentState = "uploaded"
	StateQueuedDownload AttachmentState = "queued_download"
	StateDownloading    AttachmentState = "downloading"
	StateDownloaded     AttachmentState = "downloaded"
	StateError          AttachmentState = "error"
	StateCancelled      AttachmentState = "cancelled"
)

// InFlight reports whether a transfer is running in this state.
func (s AttachmentState) InFlight() bool {
	return s == StateUploading || s == StateDownloading
}

// Queued reports whether the state waits for a transfer slot.
func (s AttachmentState) Queued() bool {
	return s == StateQueuedUpload || s == StateQueuedDownload
}

// Direction is the transfer direction of an attachment.
type Direction string

const (
	DirectionUpload   Direction = "upload"
	DirectionDownload Direction = "download"
)

// QueueName names one of the two attachment queue instances.
type QueueName string

const (
	// QueueTemporary holds in-progress recordings; abandoned ones are cleaned up.
	QueueTemporary QueueName = "temporary"
	// QueuePermanent holds media attached to published content.
	QueuePermanent QueueName = "permanent"
)

// Attachment is a binary media file tracked through its transfer lifecycle.
// Only the attachment queue changes State.
type Attachment struct {
	ID            string          `gorm:"primaryKey;size:36" json:"id"`
	Queue         QueueName       `gorm:"size:16;index" json:"queue"`
	State         AttachmentState `gorm:"size:20;index" json:"state"`
	Direction     Direction       `gorm:"size:10" json:"direction"`
	LocalURI      *string         `gorm:"size:1024" json:"local_uri"`
	RemoteKey     string          `gorm:"size:512" json:"remote_key"`
	MediaType     string          `gorm:"size:100" json:"media_type"`
	Size          int64           `gorm:"default:0" json:"size"`
	RetryCount    int             `gorm:"default:0" json:"retry_count"`
	NextAttemptAt time.Time       `gorm:"index" json:"next_attempt_at"`
	LastError     string          `gorm:"type:text" json:"last_error"`
	Tombstoned    bool            `gorm:"default:false;index" json:"tombstoned"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// TableName specifies the table name for GORM.
func (Attachment) TableName() string {
	return "attachments"
}

// Confirmed reports whether the attachment is safe to reference from
// published content without further local verification.
func (a *Attachment) Confirmed() bool {
	return !a.Tombstoned && a.State == StateUploaded
}
