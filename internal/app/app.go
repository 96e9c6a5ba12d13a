// Package app owns the LangQuest core components and their lifetimes.
// There is no global state: every caller works through an *App.
package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/genesis-ai-dev/langquest-sub009/internal/attachment"
	"github.com/genesis-ai-dev/langquest-sub009/internal/backup"
	"github.com/genesis-ai-dev/langquest-sub009/internal/config"
	"github.com/genesis-ai-dev/langquest-sub009/internal/db"
	"github.com/genesis-ai-dev/langquest-sub009/internal/hybrid"
	"github.com/genesis-ai-dev/langquest-sub009/internal/localstore"
	"github.com/genesis-ai-dev/langquest-sub009/internal/log"
	"github.com/genesis-ai-dev/langquest-sub009/internal/migration"
	"github.com/genesis-ai-dev/langquest-sub009/internal/models"
	"github.com/genesis-ai-dev/langquest-sub009/internal/netstatus"
	"github.com/genesis-ai-dev/langquest-sub009/internal/publish"
	"github.com/genesis-ai-dev/langquest-sub009/internal/remote"
	"github.com/genesis-ai-dev/langquest-sub009/internal/storage"
)

// Option customizes Open.
type Option func(*options)

type options struct {
	engine  publish.SyncEngine
	store   storage.Adapter
	net     netstatus.Provider
	steps   []migration.Step
	noProbe bool
}

// WithSyncEngine sets the engine notified after each publish.
func WithSyncEngine(e publish.SyncEngine) Option {
	return func(o *options) { o.engine = e }
}

// WithStorage replaces the default disk adapter.
func WithStorage(s storage.Adapter) Option {
	return func(o *options) { o.store = s }
}

// WithNetwork replaces the default monitor and prober.
func WithNetwork(p netstatus.Provider) Option {
	return func(o *options) {
		o.net = p
		o.noProbe = true
	}
}

// WithMigrations replaces the default schema steps.
func WithMigrations(steps []migration.Step) Option {
	return func(o *options) { o.steps = steps }
}

// App is the explicitly owned context holding every core component.
type App struct {
	Config *config.Config
	Paths  config.Paths

	DB         *db.DB
	LocalStore *localstore.Store
	Storage    storage.Adapter
	Network    netstatus.Provider

	Backups   *backup.Service
	Migrator  *migration.Migrator
	Migration *migration.Result

	Temporary *attachment.Queue
	Permanent *attachment.Queue
	Publisher *publish.Pipeline

	Query *hybrid.Client
	API   *remote.Client

	engine publish.SyncEngine
	prober *netstatus.Prober

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Open builds every component and brings the schema up to date. Nothing
// runs in the background until Start.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	o := &options{steps: migration.DefaultSteps()}
	for _, opt := range opts {
		opt(o)
	}

	paths := config.GetPaths(cfg)
	a := &App{Config: cfg, Paths: paths, engine: o.engine}

	a.LocalStore = localstore.NewStore(paths.LocalStore)
	if err := a.LocalStore.Load(); err != nil {
		return nil, fmt.Errorf("load local store: %w", err)
	}

	if o.store != nil {
		a.Storage = o.store
	} else {
		store, err := newDiskStorage(cfg, paths)
		if err != nil {
			return nil, err
		}
		a.Storage = store
	}

	if o.net != nil {
		a.Network = o.net
	} else {
		// Without a health URL there is nothing to probe; assume connected.
		monitor := netstatus.NewMonitor(cfg.Network.HealthURL == "")
		a.Network = monitor
		if cfg.Network.HealthURL != "" && !o.noProbe {
			a.prober = netstatus.NewProber(cfg.Network.HealthURL, cfg.Network.ProbeInterval, monitor)
		}
	}

	dbCfg := db.DefaultConfig(paths.Database)
	dbCfg.Debug = cfg.Debug
	database, err := db.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.DB = database

	a.Backups = backup.New(a.Storage, paths.Database, paths.Backups, a.LocalStore)
	a.Migrator = migration.New(database, a.Backups, o.steps)
	res, err := a.Migrator.Up(ctx)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	a.Migration = res

	a.Temporary = attachment.New(attachment.NewConfig(models.QueueTemporary, cfg.Queue), database, a.Storage, a.Network)
	a.Permanent = attachment.New(attachment.NewConfig(models.QueuePermanent, cfg.Queue), database, a.Storage, a.Network)
	a.Publisher = publish.New(database, a.Storage, a.engine)

	a.API, err = remote.NewClient(remote.Config{
		URL:       cfg.API.URL,
		Token:     cfg.API.Token,
		RateLimit: cfg.API.RateLimit,
		Timeout:   cfg.API.Timeout,
	})
	if err != nil {
		_ = database.Close()
		return nil, err
	}
	a.Query = hybrid.NewClient(a.Network)

	return a, nil
}

func newDiskStorage(cfg *config.Config, paths config.Paths) (storage.Adapter, error) {
	if cfg.Storage.URL == "" {
		return storage.NewDisk(paths.Attachments, storage.NewDirRemote(paths.RemoteMirror)), nil
	}
	r, err := storage.NewHTTPRemote(storage.HTTPConfig{
		BaseURL:   cfg.Storage.URL,
		Token:     cfg.Storage.Token,
		RateLimit: cfg.Storage.RateLimit,
	})
	if err != nil {
		return nil, err
	}
	return storage.NewDisk(paths.Attachments, r), nil
}

// Start initializes the sync engine, resumes both attachment queues and
// begins connectivity probing.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	if a.prober != nil {
		a.prober.Probe(ctx)
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.prober.Run(runCtx)
		}()
	}

	if a.engine != nil {
		if err := a.engine.Init(ctx); err != nil {
			// Publishing still commits locally; the engine is poked again later.
			log.Warnf("[App] sync engine init failed: %v", err)
		}
	}

	for _, q := range a.Queues() {
		if err := q.Init(runCtx); err != nil {
			cancel()
			a.wg.Wait()
			return fmt.Errorf("init %s queue: %w", q.Name(), err)
		}
	}

	a.cancel = cancel
	a.started = true
	log.Infof("[App] started (online=%v)", a.Network.Online())
	return nil
}

// Queues returns the temporary and permanent queues.
func (a *App) Queues() []*attachment.Queue {
	return []*attachment.Queue{a.Temporary, a.Permanent}
}

// Queue returns the queue with the given name.
func (a *App) Queue(name models.QueueName) (*attachment.Queue, error) {
	switch name {
	case models.QueueTemporary:
		return a.Temporary, nil
	case models.QueuePermanent:
		return a.Permanent, nil
	default:
		return nil, fmt.Errorf("unknown queue %q", name)
	}
}

// Close stops background work and closes the database.
func (a *App) Close() error {
	a.mu.Lock()
	if a.cancel != nil {
		a.cancel()
	}
	a.mu.Unlock()

	for _, q := range a.Queues() {
		q.Close()
	}
	a.wg.Wait()
	return a.DB.Close()
}

// QuestsQuery returns the hybrid query for a project's quests. Offline it
// reads the local database with local rows preferred over synced ones.
func (a *App) QuestsQuery(projectID string) hybrid.Options[models.Quest] {
	return hybrid.Options[models.Quest]{
		DataType: "quests",
		Key:      []any{projectID},
		OfflineQuery: func(ctx context.Context) ([]models.Quest, error) {
			return a.DB.ListQuests(projectID)
		},
		OnlineQuery: func(ctx context.Context) ([]models.Quest, error) {
			return a.API.ListQuests(ctx, projectID)
		},
		EnableOffline: true,
		EnableOnline:  a.API.Configured(),
		GetItemID:     func(q models.Quest) string { return q.ID },
	}
}

// AssetsQuery returns the hybrid query for a quest's assets.
func (a *App) AssetsQuery(questID string) hybrid.Options[models.Asset] {
	return hybrid.Options[models.Asset]{
		DataType: "assets",
		Key:      []any{questID},
		OfflineQuery: func(ctx context.Context) ([]models.Asset, error) {
			return a.DB.ListAssets(questID)
		},
		OnlineQuery: func(ctx context.Context) ([]models.Asset, error) {
			return a.API.ListAssets(ctx, questID)
		},
		EnableOffline: true,
		EnableOnline:  a.API.Configured(),
		GetItemID:     func(x models.Asset) string { return x.ID },
	}
}
