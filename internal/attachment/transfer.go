package attachment

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/genesis-ai-dev/langquest-sub009/internal/apperr"
	"github.com/genesis-ai-dev/langquest-sub009/internal/log"
	"github.com/genesis-ai-dev/langquest-sub009/internal/models"
	"github.com/genesis-ai-dev/langquest-sub009/internal/storage"
)

// RunOnce dispatches every attachment whose next attempt is due, waits for
// the transfers to finish, and returns how many were dispatched. Nothing
// is dispatched while the network is offline.
func (q *Queue) RunOnce(ctx context.Context) (int, error) {
	var wg sync.WaitGroup
	n, err := q.dispatch(ctx, &wg)
	wg.Wait()
	return n, err
}

// dispatch starts transfers for due attachments without waiting for them.
// With a nil wg it only fills free slots, leaving the rest for a later
// pass; otherwise it blocks for slots and adds each transfer to wg.
func (q *Queue) dispatch(ctx context.Context, wg *sync.WaitGroup) (int, error) {
	if !q.net.Online() {
		return 0, nil
	}

	rows, err := q.db.ListReadyAttachments(q.cfg.Name, now(), 0)
	if err != nil {
		return 0, apperr.Wrap(apperr.StorageFailure, "list ready attachments", err)
	}

	dispatched := 0
	for i := range rows {
		if wg == nil {
			if !q.sem.TryAcquire(1) {
				break
			}
		} else if err := q.sem.Acquire(ctx, 1); err != nil {
			break
		}

		a, tctx, ok := q.begin(ctx, rows[i].ID)
		if !ok {
			q.sem.Release(1)
			continue
		}

		dispatched++
		if wg != nil {
			wg.Add(1)
		}
		go func(a *models.Attachment, tctx context.Context) {
			defer q.transfers.Done()
			if wg != nil {
				defer wg.Done()
			}

			size, err := q.transfer(tctx, a)
			q.sem.Release(1)
			q.finish(ctx, a, size, err)
			q.Wake()
		}(a, tctx)
	}

	return dispatched, nil
}

// begin moves a queued attachment to its in-flight state. It returns
// false if the row is no longer eligible, e.g. it was cancelled after
// being listed, or the queue is closing.
func (q *Queue) begin(ctx context.Context, id string) (*models.Attachment, context.Context, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closing {
		return nil, nil, false
	}
	if _, running := q.inflight[id]; running {
		return nil, nil, false
	}
	a, err := q.db.GetAttachment(id)
	if err != nil {
		log.Warnf("[Queue:%s] load %s: %v", q.cfg.Name, id, err)
		return nil, nil, false
	}
	if a.Tombstoned || a.Queue != q.cfg.Name || !a.State.Queued() {
		return nil, nil, false
	}

	from := a.State
	to := activeState(a.Direction)
	if err := q.db.UpdateAttachment(id, map[string]interface{}{"state": to}); err != nil {
		log.Warnf("[Queue:%s] start %s: %v", q.cfg.Name, id, err)
		return nil, nil, false
	}
	a.State = to

	tctx, cancel := context.WithCancel(ctx)
	q.inflight[id] = cancel
	q.transfers.Add(1)
	q.emit(Event{ID: id, From: from, To: to})
	return a, tctx, true
}

// transfer performs the upload or download and returns the byte size.
func (q *Queue) transfer(ctx context.Context, a *models.Attachment) (int64, error) {
	if a.Direction == models.DirectionDownload {
		return q.download(ctx, a)
	}
	return q.upload(ctx, a)
}

func (q *Queue) upload(ctx context.Context, a *models.Attachment) (int64, error) {
	if a.LocalURI == nil || *a.LocalURI == "" {
		return 0, errors.New("no local file to upload")
	}
	data, err := q.store.ReadFile(ctx, *a.LocalURI, storage.EncodingBinary)
	if err != nil {
		return 0, fmt.Errorf("read local file: %w", err)
	}
	if err := q.store.UploadFile(ctx, a.RemoteKey, data, storage.UploadOptions{MediaType: a.MediaType}); err != nil {
		return 0, fmt.Errorf("upload: %w", err)
	}
	return int64(len(data)), nil
}

func (q *Queue) download(ctx context.Context, a *models.Attachment) (int64, error) {
	uri := LocalURIFor(a.ID, a.MediaType)
	if a.LocalURI != nil && *a.LocalURI != "" {
		uri = *a.LocalURI
	}

	exists, err := q.store.FileExists(ctx, uri)
	if err != nil {
		return 0, fmt.Errorf("check local file: %w", err)
	}
	if exists {
		return a.Size, nil
	}

	data, err := q.store.DownloadFile(ctx, a.RemoteKey)
	if err != nil {
		return 0, fmt.Errorf("download: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := q.store.WriteFile(ctx, uri, data, storage.EncodingBinary); err != nil {
		return 0, fmt.Errorf("write local file: %w", err)
	}
	return int64(len(data)), nil
}

// finish records the outcome of a transfer. A result for an attachment
// that left its in-flight state meanwhile (cancelled or deleted) is
// discarded. A transfer cut short by shutdown goes back to its queued
// state with its retry count unchanged.
func (q *Queue) finish(ctx context.Context, a *models.Attachment, size int64, transferErr error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if cancel, ok := q.inflight[a.ID]; ok {
		cancel()
		delete(q.inflight, a.ID)
	}

	cur, err := q.db.GetAttachment(a.ID)
	if err != nil {
		log.Warnf("[Queue:%s] reload %s: %v", q.cfg.Name, a.ID, err)
		return
	}
	if cur.State != a.State || cur.Tombstoned {
		log.Debugf("[Queue:%s] discarding result for %s (now %s)", q.cfg.Name, a.ID, cur.State)
		return
	}

	if transferErr == nil {
		to := doneState(a.Direction)
		updates := map[string]interface{}{
			"state":      to,
			"size":       size,
			"last_error": "",
		}
		if err := q.db.UpdateAttachment(a.ID, updates); err != nil {
			log.Errorf("[Queue:%s] record success for %s: %v", q.cfg.Name, a.ID, err)
			return
		}
		log.Debugf("[Queue:%s] %s %s (%d bytes)", q.cfg.Name, to, a.ID, size)
		q.emit(Event{ID: a.ID, From: cur.State, To: to})
		return
	}

	if q.closing || ctx.Err() != nil {
		to := queuedState(a.Direction)
		if err := q.db.UpdateAttachment(a.ID, map[string]interface{}{"state": to}); err != nil {
			log.Errorf("[Queue:%s] requeue %s: %v", q.cfg.Name, a.ID, err)
			return
		}
		log.Debugf("[Queue:%s] %s interrupted by shutdown, requeued", q.cfg.Name, a.ID)
		q.emit(Event{ID: a.ID, From: cur.State, To: to})
		return
	}

	retries := cur.RetryCount + 1
	msg := transferErr.Error()
	updates := map[string]interface{}{
		"retry_count": retries,
		"last_error":  msg,
	}

	var to models.AttachmentState
	if retries >= q.cfg.MaxRetries {
		to = models.StateError
		log.Warnf("[Queue:%s] %s failed after %d attempts: %s", q.cfg.Name, a.ID, retries, msg)
	} else {
		to = queuedState(a.Direction)
		delay := q.backoff(retries)
		updates["next_attempt_at"] = now().Add(delay)
		log.Infof("[Queue:%s] %s attempt %d failed, retrying in %s: %s", q.cfg.Name, a.ID, retries, delay, msg)
	}
	updates["state"] = to

	if err := q.db.UpdateAttachment(a.ID, updates); err != nil {
		log.Errorf("[Queue:%s] record failure for %s: %v", q.cfg.Name, a.ID, err)
		return
	}
	q.emit(Event{ID: a.ID, From: cur.State, To: to, Err: msg})
}
