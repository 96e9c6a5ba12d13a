package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genesis-ai-dev/langquest-sub009/internal/config"
	"github.com/genesis-ai-dev/langquest-sub009/internal/hybrid"
	"github.com/genesis-ai-dev/langquest-sub009/internal/migration"
	"github.com/genesis-ai-dev/langquest-sub009/internal/models"
	"github.com/genesis-ai-dev/langquest-sub009/internal/netstatus"
	"github.com/genesis-ai-dev/langquest-sub009/internal/storage"
)

type recordingEngine struct {
	mu      sync.Mutex
	inits   int
	pending [][]string
}

func (e *recordingEngine) Init(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inits++
	return nil
}

func (e *recordingEngine) NotifyPending(ctx context.Context, tables []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = append(e.pending, tables)
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.BaseDir = t.TempDir()
	cfg.Queue.PollInterval = 10 * time.Millisecond
	return cfg
}

func openApp(t *testing.T, cfg *config.Config, opts ...Option) *App {
	t.Helper()
	a, err := Open(context.Background(), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestOpen_MigratesFreshDatabase(t *testing.T) {
	a := openApp(t, testConfig(t))

	latest := a.Migrator.LatestVersion()
	assert.Equal(t, 0, a.Migration.FromVersion)
	assert.Equal(t, latest, a.Migration.ToVersion)
	assert.Equal(t, len(migration.DefaultSteps()), a.Migration.Applied)

	v, err := a.DB.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, latest, v)

	backups, err := a.Backups.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, backups, "successful migration removes its backup")
}

func TestOpen_SecondOpenHasNothingPending(t *testing.T) {
	cfg := testConfig(t)
	a, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	b := openApp(t, cfg)
	assert.Equal(t, 0, b.Migration.Applied)
}

func TestOpen_DefaultNetworkWithoutHealthURL(t *testing.T) {
	a := openApp(t, testConfig(t))
	assert.True(t, a.Network.Online())
	assert.Nil(t, a.prober)
	assert.False(t, a.API.Configured())
}

func TestQueue_ByName(t *testing.T) {
	a := openApp(t, testConfig(t))

	q, err := a.Queue(models.QueuePermanent)
	require.NoError(t, err)
	assert.Same(t, a.Permanent, q)

	_, err = a.Queue("bogus")
	assert.Error(t, err)
}

func TestApp_RecordUploadPublishFlow(t *testing.T) {
	cfg := testConfig(t)
	engine := &recordingEngine{}
	net := netstatus.NewMonitor(true)
	a := openApp(t, cfg, WithSyncEngine(engine), WithNetwork(net))
	ctx := context.Background()

	require.NoError(t, a.Start(ctx))
	require.NoError(t, a.Start(ctx), "second start is a no-op")
	engine.mu.Lock()
	assert.Equal(t, 1, engine.inits)
	engine.mu.Unlock()

	require.NoError(t, a.DB.CreateLocalQuest(&models.LocalQuest{QuestFields: models.QuestFields{
		ID: "q1", ProjectID: "p1", Name: "Mark 1", Visible: true,
	}}))
	require.NoError(t, a.DB.CreateLocalAsset(&models.LocalAsset{AssetFields: models.AssetFields{
		ID: "a1", QuestID: "q1", Name: "Verse 1",
	}}))

	require.NoError(t, a.Storage.WriteFile(ctx, "rec.m4a", []byte("audio"), storage.EncodingBinary))
	att, err := a.Temporary.QueueUpload(ctx, "rec.m4a", "audio/mp4")
	require.NoError(t, err)
	require.NoError(t, a.DB.AddAttachmentRef(models.TableAssetLocal, "a1", att.ID))
	a.Temporary.Wake()

	require.Eventually(t, func() bool {
		got, err := a.Temporary.Get(att.ID)
		return err == nil && got.State == models.StateUploaded
	}, 5*time.Second, 10*time.Millisecond)

	rec, err := a.Publisher.Publish(ctx, "q1")
	require.NoError(t, err)
	assert.False(t, rec.NoOp)
	assert.Equal(t, 1, rec.AssetCount)

	moved, err := a.Permanent.Get(att.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueuePermanent, moved.Queue)

	engine.mu.Lock()
	assert.Len(t, engine.pending, 1)
	engine.mu.Unlock()

	// Offline, the quest list comes from the local database.
	net.Set(false)
	s, err := hybrid.Fetch(ctx, a.Query, a.QuestsQuery("p1"))
	require.NoError(t, err)
	assert.Equal(t, hybrid.SourceOffline, s.Source)
	require.Len(t, s.Data, 1)
	assert.Equal(t, models.SourceLocal, s.Data[0].Source)
}

func TestAssetsQuery_Offline(t *testing.T) {
	a := openApp(t, testConfig(t), WithNetwork(netstatus.NewMonitor(false)))
	require.NoError(t, a.DB.CreateLocalAsset(&models.LocalAsset{AssetFields: models.AssetFields{
		ID: "a1", QuestID: "q1", Name: "Verse 1",
	}}))

	s, err := hybrid.Fetch(context.Background(), a.Query, a.AssetsQuery("q1"))
	require.NoError(t, err)
	require.Len(t, s.Data, 1)
	assert.Equal(t, "Verse 1", s.Data[0].Name)
}
