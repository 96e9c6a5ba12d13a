package attachment

import (
	"context"
	"time"

	"github.com/genesis-ai-dev/langquest-sub009/internal/apperr"
	"github.com/genesis-ai-dev/langquest-sub009/internal/log"
	"github.com/genesis-ai-dev/langquest-sub009/internal/models"
)

// SweepReport lists references that no longer line up.
type SweepReport struct {
	// Orphans are live attachments of the queue that no record refers to.
	Orphans []models.Attachment
	// Dangling are refs whose attachment is missing or tombstoned.
	Dangling []models.AttachmentRef
}

// Sweep reconciles attachment rows against record refs. It only reports;
// removal is left to CleanupAbandoned or an explicit Delete.
func (q *Queue) Sweep(ctx context.Context) (*SweepReport, error) {
	orphans, err := q.db.ListOrphanAttachments(q.cfg.Name, time.Time{})
	if err != nil {
		return nil, apperr.Wrap(apperr.StorageFailure, "list orphan attachments", err)
	}
	dangling, err := q.db.ListDanglingRefs()
	if err != nil {
		return nil, apperr.Wrap(apperr.StorageFailure, "list dangling refs", err)
	}

	if err := q.db.SetSyncMeta(models.SyncMetaLastSweepAt, now().Format(time.RFC3339)); err != nil {
		log.Warnf("[Queue:%s] failed to record sweep time: %v", q.cfg.Name, err)
	}
	if len(orphans) > 0 || len(dangling) > 0 {
		log.Infof("[Queue:%s] sweep found %d orphans, %d dangling refs", q.cfg.Name, len(orphans), len(dangling))
	}
	return &SweepReport{Orphans: orphans, Dangling: dangling}, nil
}

// CleanupAbandoned tombstones temporary attachments that no record refers
// to and that have not changed for olderThan, deleting their local files.
// A zero olderThan uses the configured abandon window. Permanent
// attachments are never cleaned up automatically.
func (q *Queue) CleanupAbandoned(ctx context.Context, olderThan time.Duration) (int, error) {
	if q.cfg.Name != models.QueueTemporary {
		return 0, apperr.Newf(apperr.Unsupported, "cleanup is not available on the %s queue", q.cfg.Name)
	}
	if olderThan <= 0 {
		olderThan = q.cfg.AbandonAfter
	}

	rows, err := q.db.ListOrphanAttachments(q.cfg.Name, now().Add(-olderThan))
	if err != nil {
		return 0, apperr.Wrap(apperr.StorageFailure, "list abandoned attachments", err)
	}

	removed := 0
	for i := range rows {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if err := q.Delete(ctx, rows[i].ID); err != nil {
			log.Warnf("[Queue:%s] cleanup %s: %v", q.cfg.Name, rows[i].ID, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		log.Infof("[Queue:%s] cleaned up %d abandoned attachments", q.cfg.Name, removed)
	}
	return removed, nil
}
