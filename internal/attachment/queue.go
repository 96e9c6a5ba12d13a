// Package attachment moves binary media between device storage and the
// remote object store. A Queue owns every state transition of the
// attachments assigned to it; two instances run side by side, one for
// in-progress recordings (temporary) and one for media attached to
// published content (permanent).
package attachment

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/genesis-ai-dev/langquest-sub009/internal/apperr"
	"github.com/genesis-ai-dev/langquest-sub009/internal/config"
	"github.com/genesis-ai-dev/langquest-sub009/internal/db"
	"github.com/genesis-ai-dev/langquest-sub009/internal/log"
	"github.com/genesis-ai-dev/langquest-sub009/internal/models"
	"github.com/genesis-ai-dev/langquest-sub009/internal/netstatus"
	"github.com/genesis-ai-dev/langquest-sub009/internal/storage"
)

// Config tunes one queue instance.
type Config struct {
	Name         models.QueueName
	MaxRetries   int
	Concurrency  int
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
	PollInterval time.Duration
	// AbandonAfter applies to the temporary queue only.
	AbandonAfter  time.Duration
	SweepInterval time.Duration
}

// NewConfig builds a queue Config from application settings.
func NewConfig(name models.QueueName, qc config.QueueConfig) Config {
	return Config{
		Name:          name,
		MaxRetries:    qc.MaxRetries,
		Concurrency:   qc.Concurrency,
		BaseBackoff:   qc.BaseBackoff,
		MaxBackoff:    qc.MaxBackoff,
		PollInterval:  qc.PollInterval,
		AbandonAfter:  qc.AbandonAfter,
		SweepInterval: qc.SweepInterval,
	}
}

func (c *Config) applyDefaults() {
	d := config.DefaultQueueConfig()
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = d.BaseBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.AbandonAfter <= 0 {
		c.AbandonAfter = d.AbandonAfter
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = d.SweepInterval
	}
}

// Event reports one state transition.
type Event struct {
	ID   string
	From models.AttachmentState
	To   models.AttachmentState
	// Err is the transfer error that caused the transition, if any.
	Err string
}

// Queue is one attachment queue instance.
type Queue struct {
	cfg   Config
	db    *db.DB
	store storage.Adapter
	net   netstatus.Provider
	sem   *semaphore.Weighted

	// mu serializes every state transition and guards inflight and
	// closing.
	mu       sync.Mutex
	inflight map[string]context.CancelFunc
	closing  bool
	// transfers counts running transfer goroutines. Add happens under mu
	// while closing is false.
	transfers sync.WaitGroup

	subMu  sync.Mutex
	subs   map[int]chan Event
	nextID int

	startOnce  sync.Once
	wake       chan struct{}
	cancelLoop context.CancelFunc
	done       chan struct{}
}

// New creates a queue. Init must be called before transfers run.
func New(cfg Config, database *db.DB, store storage.Adapter, net netstatus.Provider) *Queue {
	cfg.applyDefaults()
	return &Queue{
		cfg:      cfg,
		db:       database,
		store:    store,
		net:      net,
		sem:      semaphore.NewWeighted(int64(cfg.Concurrency)),
		inflight: make(map[string]context.CancelFunc),
		subs:     make(map[int]chan Event),
		wake:     make(chan struct{}, 1),
	}
}

// Name returns the queue instance name.
func (q *Queue) Name() models.QueueName {
	return q.cfg.Name
}

func now() time.Time {
	return time.Now().UTC()
}

// Init resets transfers interrupted by a previous run and starts the
// coordinating loop. The loop runs until ctx is done or Close is called.
// Calling Init again is a no-op.
func (q *Queue) Init(ctx context.Context) error {
	var err error
	q.startOnce.Do(func() {
		q.mu.Lock()
		n, resetErr := q.db.ResetInterrupted(q.cfg.Name)
		q.mu.Unlock()
		if resetErr != nil {
			err = apperr.Wrap(apperr.StorageFailure, "reset interrupted transfers", resetErr)
			return
		}
		if n > 0 {
			log.Infof("[Queue:%s] re-queued %d interrupted transfers", q.cfg.Name, n)
		}

		loopCtx, cancel := context.WithCancel(ctx)
		q.cancelLoop = cancel
		q.done = make(chan struct{})
		go q.loop(loopCtx)
	})
	return err
}

func (q *Queue) loop(ctx context.Context) {
	defer close(q.done)

	netCh, unsubscribe := q.net.Subscribe()
	defer unsubscribe()

	ticker := time.NewTicker(q.cfg.PollInterval)
	defer ticker.Stop()
	sweepTicker := time.NewTicker(q.cfg.SweepInterval)
	defer sweepTicker.Stop()

	for {
		// Transfers finish on their own and wake the loop, so a slow one
		// never holds up the rows behind it.
		if _, err := q.dispatch(ctx, nil); err != nil && ctx.Err() == nil {
			log.Warnf("[Queue:%s] pass failed: %v", q.cfg.Name, err)
		}

		select {
		case <-ctx.Done():
			return
		case <-sweepTicker.C:
			if _, err := q.Sweep(ctx); err != nil {
				log.Warnf("[Queue:%s] sweep failed: %v", q.cfg.Name, err)
			}
		case <-ticker.C:
		case <-q.wake:
		case <-netCh:
		}
	}
}

// Wake asks the loop to run a pass now.
func (q *Queue) Wake() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Close stops the loop and cancels running transfers. Interrupted
// transfers go back to their queued state without using up a retry.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closing = true
	for _, cancel := range q.inflight {
		cancel()
	}
	q.mu.Unlock()

	if q.cancelLoop != nil {
		q.cancelLoop()
		<-q.done
	}
	q.transfers.Wait()

	q.subMu.Lock()
	for id, ch := range q.subs {
		close(ch)
		delete(q.subs, id)
	}
	q.subMu.Unlock()
}

// Subscribe returns a channel of state transitions and a function that
// ends the subscription. Events are dropped for subscribers that fall
// more than a buffer behind.
func (q *Queue) Subscribe() (<-chan Event, func()) {
	q.subMu.Lock()
	defer q.subMu.Unlock()

	id := q.nextID
	q.nextID++
	ch := make(chan Event, 64)
	q.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			q.subMu.Lock()
			if c, ok := q.subs[id]; ok {
				close(c)
				delete(q.subs, id)
			}
			q.subMu.Unlock()
		})
	}
}

func (q *Queue) emit(ev Event) {
	q.subMu.Lock()
	defer q.subMu.Unlock()
	for _, ch := range q.subs {
		select {
		case ch <- ev:
		default:
			log.Debugf("[Queue:%s] dropped event for %s", q.cfg.Name, ev.ID)
		}
	}
}

// RemoteKeyFor returns the object key for an attachment. It depends only
// on the id and media type.
func RemoteKeyFor(id, mediaType string) string {
	return "attachments/" + id + extensionFor(mediaType)
}

// LocalURIFor returns the default device path of a downloaded attachment,
// relative to the storage root.
func LocalURIFor(id, mediaType string) string {
	return id + extensionFor(mediaType)
}

func extensionFor(mediaType string) string {
	switch mediaType {
	case "":
		return ""
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return ".m4a"
	case "audio/mpeg":
		return ".mp3"
	case "audio/wav", "audio/x-wav":
		return ".wav"
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	}
	if exts, err := mime.ExtensionsByType(mediaType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}

// QueueUpload registers a local file for upload and returns the new row.
func (q *Queue) QueueUpload(ctx context.Context, localURI, mediaType string) (*models.Attachment, error) {
	if localURI == "" {
		return nil, apperr.Validation("cannot queue upload", "local uri is required")
	}
	exists, err := q.store.FileExists(ctx, localURI)
	if err != nil {
		return nil, apperr.Wrap(apperr.StorageFailure, "check local file", err)
	}
	if !exists {
		return nil, apperr.Validation("cannot queue upload", fmt.Sprintf("local file %s does not exist", localURI))
	}

	id := uuid.New().String()
	uri := localURI
	a := &models.Attachment{
		ID:            id,
		Queue:         q.cfg.Name,
		State:         models.StateQueuedUpload,
		Direction:     models.DirectionUpload,
		LocalURI:      &uri,
		RemoteKey:     RemoteKeyFor(id, mediaType),
		MediaType:     mediaType,
		NextAttemptAt: now(),
	}
	if err := q.db.CreateAttachment(a); err != nil {
		return nil, apperr.Wrap(apperr.StorageFailure, "create attachment", err)
	}

	log.Debugf("[Queue:%s] queued upload %s (%s)", q.cfg.Name, id, path.Base(localURI))
	q.emit(Event{ID: id, To: a.State})
	q.Wake()
	return a, nil
}

// QueueDownload registers a remote attachment for download. If the local
// file is already present the row is marked downloaded without a
// transfer. Queueing an id that already has a live row returns that row.
func (q *Queue) QueueDownload(ctx context.Context, id, remoteKey, mediaType string) (*models.Attachment, error) {
	if id == "" {
		return nil, apperr.Validation("cannot queue download", "attachment id is required")
	}
	if existing, err := q.db.GetAttachment(id); err == nil && !existing.Tombstoned {
		return existing, nil
	} else if err != nil && !errors.Is(err, db.ErrNotFound) {
		return nil, apperr.Wrap(apperr.StorageFailure, "load attachment", err)
	}

	if remoteKey == "" {
		remoteKey = RemoteKeyFor(id, mediaType)
	}
	uri := LocalURIFor(id, mediaType)
	a := &models.Attachment{
		ID:            id,
		Queue:         q.cfg.Name,
		State:         models.StateQueuedDownload,
		Direction:     models.DirectionDownload,
		LocalURI:      &uri,
		RemoteKey:     remoteKey,
		MediaType:     mediaType,
		NextAttemptAt: now(),
	}

	exists, err := q.store.FileExists(ctx, uri)
	if err != nil {
		return nil, apperr.Wrap(apperr.StorageFailure, "check local file", err)
	}
	if exists {
		a.State = models.StateDownloaded
	}

	if err := q.db.UpsertAttachment(a); err != nil {
		return nil, apperr.Wrap(apperr.StorageFailure, "create attachment", err)
	}
	q.emit(Event{ID: id, To: a.State})
	if !exists {
		q.Wake()
	}
	return a, nil
}

// Get returns one attachment row.
func (q *Queue) Get(id string) (*models.Attachment, error) {
	a, err := q.db.GetAttachment(id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.Newf(apperr.NotFound, "attachment %s not found", id)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.StorageFailure, "load attachment", err)
	}
	return a, nil
}

// List returns the live attachments of this queue.
func (q *Queue) List() ([]models.Attachment, error) {
	rows, err := q.db.ListAttachments(q.cfg.Name)
	if err != nil {
		return nil, apperr.Wrap(apperr.StorageFailure, "list attachments", err)
	}
	return rows, nil
}

// Retry moves an attachment in error or cancelled back to its queued
// state with a fresh retry budget.
func (q *Queue) Retry(ctx context.Context, id string) error {
	q.mu.Lock()
	a, err := q.Get(id)
	if err != nil {
		q.mu.Unlock()
		return err
	}
	if a.State != models.StateError && a.State != models.StateCancelled {
		q.mu.Unlock()
		return apperr.Newf(apperr.InvalidTransition, "cannot retry attachment %s in state %s", id, a.State)
	}

	to := queuedState(a.Direction)
	err = q.db.UpdateAttachment(id, map[string]interface{}{
		"state":           to,
		"retry_count":     0,
		"last_error":      "",
		"next_attempt_at": now(),
	})
	q.mu.Unlock()
	if err != nil {
		return apperr.Wrap(apperr.StorageFailure, "retry attachment", err)
	}

	log.Infof("[Queue:%s] retrying %s", q.cfg.Name, id)
	q.emit(Event{ID: id, From: a.State, To: to})
	q.Wake()
	return nil
}

// Cancel stops an attachment from transferring. A running transfer is
// interrupted and its result discarded. Attachments already in a
// terminal state are left as they are.
func (q *Queue) Cancel(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cancelLocked(id)
}

func (q *Queue) cancelLocked(id string) error {
	a, err := q.Get(id)
	if err != nil {
		return err
	}
	if !a.State.Queued() && !a.State.InFlight() {
		return nil
	}

	if cancel, ok := q.inflight[id]; ok {
		cancel()
		delete(q.inflight, id)
	}
	if err := q.db.UpdateAttachment(id, map[string]interface{}{"state": models.StateCancelled}); err != nil {
		return apperr.Wrap(apperr.StorageFailure, "cancel attachment", err)
	}

	log.Infof("[Queue:%s] cancelled %s (was %s)", q.cfg.Name, id, a.State)
	q.emit(Event{ID: id, From: a.State, To: models.StateCancelled})
	return nil
}

// Delete cancels any transfer, removes the local file (best effort) and
// tombstones the row. The remote object is left alone.
func (q *Queue) Delete(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.cancelLocked(id); err != nil {
		return err
	}
	a, err := q.Get(id)
	if err != nil {
		return err
	}
	q.removeLocalFile(ctx, a)

	if err := q.db.UpdateAttachment(id, map[string]interface{}{"tombstoned": true}); err != nil {
		return apperr.Wrap(apperr.StorageFailure, "tombstone attachment", err)
	}
	log.Infof("[Queue:%s] deleted %s", q.cfg.Name, id)
	return nil
}

func (q *Queue) removeLocalFile(ctx context.Context, a *models.Attachment) {
	if a.LocalURI == nil || *a.LocalURI == "" {
		return
	}
	if err := q.store.DeleteFile(ctx, *a.LocalURI); err != nil {
		log.Warnf("[Queue:%s] failed to delete local file for %s: %v", q.cfg.Name, a.ID, err)
	}
}

func queuedState(d models.Direction) models.AttachmentState {
	if d == models.DirectionDownload {
		return models.StateQueuedDownload
	}
	return models.StateQueuedUpload
}

func activeState(d models.Direction) models.AttachmentState {
	if d == models.DirectionDownload {
		return models.StateDownloading
	}
	return models.StateUploading
}

func doneState(d models.Direction) models.AttachmentState {
	if d == models.DirectionDownload {
		return models.StateDownloaded
	}
	return models.StateUploaded
}

// backoff returns the delay before the next attempt after retry failures.
func (q *Queue) backoff(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	d := q.cfg.BaseBackoff
	for i := 1; i < retry; i++ {
		d *= 2
		if d >= q.cfg.MaxBackoff {
			return q.cfg.MaxBackoff
		}
	}
	if d > q.cfg.MaxBackoff {
		return q.cfg.MaxBackoff
	}
	return d
}
