package db

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/genesis-ai-dev/langquest-sub009/internal/models"
)

// testDB creates a temporary test database.
func testDB(t *testing.T) *DB {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	db, err := New(Config{
		Path:        dbPath,
		Debug:       false,
		MaxIdleConn: 1,
		MaxOpenConn: 1,
	})
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Failed to close test database: %v", err)
		}
	})

	return db
}

func TestNew(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "nested", "langquest.db")

	db, err := New(DefaultConfig(dbPath))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	_, err = os.Stat(dbPath)
	require.NoError(t, err, "database file was not created")
	assert.Equal(t, dbPath, db.Path())

	for _, table := range []string{
		models.TableQuestLocal, models.TableQuestSynced,
		models.TableAssetLocal, models.TableAssetSynced,
		"attachments", "attachment_refs", "sync_meta",
	} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
}

func TestOpen_NoSchema(t *testing.T) {
	db, err := Open(DefaultConfig(filepath.Join(t.TempDir(), "bare.db")))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	assert.False(t, db.Migrator().HasTable(models.TableQuestLocal))

	v, err := db.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, 0, v)
}

func TestReopen(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.CreateLocalQuest(&models.LocalQuest{QuestFields: models.QuestFields{ID: "q1", ProjectID: "p1", Name: "Luke 1"}}))

	require.NoError(t, db.Close())
	require.NoError(t, db.Reopen())

	q, err := db.GetLocalQuest("q1")
	require.NoError(t, err)
	assert.Equal(t, "Luke 1", q.Name)
}

func TestSchemaVersion_RoundTrip(t *testing.T) {
	db := testDB(t)

	v, err := db.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, 0, v)

	require.NoError(t, db.SetSchemaVersion(3))
	v, err = db.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestSyncMeta(t *testing.T) {
	db := testDB(t)

	require.NoError(t, db.SetSyncMeta("k", "v1"))
	require.NoError(t, db.SetSyncMeta("k", "v2"))

	v, err := db.GetSyncMeta("k")
	require.NoError(t, err)
	assert.Equal(t, "v2", v)

	all, err := db.GetAllSyncMeta()
	require.NoError(t, err)
	assert.Equal(t, "v2", all["k"])

	require.NoError(t, db.DeleteSyncMeta("k"))
	v, err = db.GetSyncMeta("k")
	require.NoError(t, err)
	assert.Empty(t, v)
}

// --- Quest Tests ---

func TestLocalQuestCRUD(t *testing.T) {
	db := testDB(t)

	q := &models.LocalQuest{QuestFields: models.QuestFields{
		ProjectID: "p1",
		Name:      "Genesis 1",
		Metadata:  datatypes.JSON(`{"book":"gen"}`),
	}}
	require.NoError(t, db.CreateLocalQuest(q))
	assert.NotEmpty(t, q.ID)

	got, err := db.GetLocalQuest(q.ID)
	require.NoError(t, err)
	assert.Equal(t, "Genesis 1", got.Name)
	assert.JSONEq(t, `{"book":"gen"}`, string(got.Metadata))
	assert.False(t, got.Visible)

	got.Description = "Creation"
	require.NoError(t, db.UpdateLocalQuest(got))

	again, err := db.GetLocalQuest(q.ID)
	require.NoError(t, err)
	assert.Equal(t, "Creation", again.Description)

	_, err = db.GetLocalQuest("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestQuest_EmptyMetadataStoredAsObject(t *testing.T) {
	db := testDB(t)

	q := &models.LocalQuest{QuestFields: models.QuestFields{ID: "q1", ProjectID: "p1", Name: "n"}}
	require.NoError(t, db.CreateLocalQuest(q))

	got, err := db.GetLocalQuest("q1")
	require.NoError(t, err)
	assert.Equal(t, "{}", string(got.Metadata))
}

func TestListQuests_PrefersLocal(t *testing.T) {
	db := testDB(t)

	require.NoError(t, db.CreateLocalQuest(&models.LocalQuest{QuestFields: models.QuestFields{ID: "both", ProjectID: "p1", Name: "local edit"}}))
	require.NoError(t, db.CreateLocalQuest(&models.LocalQuest{QuestFields: models.QuestFields{ID: "local-only", ProjectID: "p1", Name: "draft"}}))
	require.NoError(t, db.UpsertSyncedQuest(&models.SyncedQuest{QuestFields: models.QuestFields{ID: "both", ProjectID: "p1", Name: "remote"}}))
	require.NoError(t, db.UpsertSyncedQuest(&models.SyncedQuest{QuestFields: models.QuestFields{ID: "synced-only", ProjectID: "p1", Name: "from server"}}))
	require.NoError(t, db.UpsertSyncedQuest(&models.SyncedQuest{QuestFields: models.QuestFields{ID: "other", ProjectID: "p2", Name: "elsewhere"}}))

	quests, err := db.ListQuests("p1")
	require.NoError(t, err)
	require.Len(t, quests, 3)

	bySource := map[string]models.Source{}
	byName := map[string]string{}
	for _, q := range quests {
		bySource[q.ID] = q.Source
		byName[q.ID] = q.Name
	}
	assert.Equal(t, models.SourceLocal, bySource["both"])
	assert.Equal(t, "local edit", byName["both"])
	assert.Equal(t, models.SourceLocal, bySource["local-only"])
	assert.Equal(t, models.SourceSynced, bySource["synced-only"])
}

func TestUpsertSyncedQuest_Overwrites(t *testing.T) {
	db := testDB(t)

	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	q := &models.SyncedQuest{QuestFields: models.QuestFields{ID: "q1", ProjectID: "p1", Name: "v1", CreatedAt: created, UpdatedAt: created}}
	require.NoError(t, db.UpsertSyncedQuest(q))

	q2 := &models.SyncedQuest{QuestFields: models.QuestFields{ID: "q1", ProjectID: "p1", Name: "v2", CreatedAt: created, UpdatedAt: created.Add(time.Hour)}}
	require.NoError(t, db.UpsertSyncedQuest(q2))

	got, err := db.GetSyncedQuest("q1")
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Name)

	var count int64
	require.NoError(t, db.Model(&models.SyncedQuest{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSetPublishedHash(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.UpsertSyncedQuest(&models.SyncedQuest{QuestFields: models.QuestFields{ID: "q1", ProjectID: "p1", Name: "n"}}))

	require.NoError(t, db.SetPublishedHash("q1", "abc"))

	got, err := db.GetSyncedQuest("q1")
	require.NoError(t, err)
	assert.Equal(t, "abc", got.PublishedHash)
	require.NotNil(t, got.LastPublishedAt)
}

// --- Graph Tests ---

func seedLocalGraph(t *testing.T, db *DB) {
	t.Helper()
	require.NoError(t, db.CreateLocalQuest(&models.LocalQuest{QuestFields: models.QuestFields{ID: "q1", ProjectID: "p1", Name: "Mark 1"}}))
	require.NoError(t, db.CreateLocalAsset(&models.LocalAsset{AssetFields: models.AssetFields{ID: "a2", QuestID: "q1", Name: "v2", OrderIndex: 2}}))
	require.NoError(t, db.CreateLocalAsset(&models.LocalAsset{AssetFields: models.AssetFields{ID: "a1", QuestID: "q1", Name: "v1", OrderIndex: 1}}))
	require.NoError(t, db.CreateLocalAsset(&models.LocalAsset{AssetFields: models.AssetFields{ID: "x", QuestID: "other", Name: "unrelated"}}))
	require.NoError(t, db.AddAttachmentRef(models.TableAssetLocal, "a1", "att-1"))
	require.NoError(t, db.AddAttachmentRef(models.TableQuestLocal, "q1", "att-cover"))
	require.NoError(t, db.AddAttachmentRef(models.TableAssetLocal, "x", "att-x"))
}

func TestLoadLocalQuestGraph(t *testing.T) {
	db := testDB(t)
	seedLocalGraph(t, db)

	g, err := db.LoadLocalQuestGraph("q1")
	require.NoError(t, err)

	assert.Equal(t, "Mark 1", g.Quest.Name)
	require.Len(t, g.Assets, 2)
	assert.Equal(t, "a1", g.Assets[0].ID)
	assert.Equal(t, []string{"att-1", "att-cover"}, g.AttachmentIDs())

	_, err = db.LoadLocalQuestGraph("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadSyncedQuestGraph_NotFound(t *testing.T) {
	db := testDB(t)

	_, _, err := db.LoadSyncedQuestGraph("q1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPruneSyncedGraph(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.UpsertSyncedAssets([]models.SyncedAsset{
		{AssetFields: models.AssetFields{ID: "a1", QuestID: "q1", Name: "v1"}},
		{AssetFields: models.AssetFields{ID: "a2", QuestID: "q1", Name: "v2"}},
		{AssetFields: models.AssetFields{ID: "b1", QuestID: "q2", Name: "other quest"}},
	}))
	require.NoError(t, db.AddAttachmentRef(models.TableAssetSynced, "a1", "att-1"))
	require.NoError(t, db.AddAttachmentRef(models.TableAssetSynced, "a1", "att-old"))
	require.NoError(t, db.AddAttachmentRef(models.TableAssetSynced, "a2", "att-2"))
	require.NoError(t, db.AddAttachmentRef(models.TableQuestSynced, "q1", "att-cover"))
	require.NoError(t, db.AddAttachmentRef(models.TableAssetSynced, "b1", "att-b"))
	require.NoError(t, db.AddAttachmentRef(models.TableAssetLocal, "a2", "att-2"))

	keep := []models.AttachmentRef{{RecordTable: models.TableAssetSynced, RecordID: "a1", AttachmentID: "att-1"}}
	require.NoError(t, db.PruneSyncedGraph("q1", []string{"a1"}, keep))

	assets, err := db.ListSyncedAssets("q1")
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, "a1", assets[0].ID)

	others, err := db.ListSyncedAssets("q2")
	require.NoError(t, err)
	assert.Len(t, others, 1)

	var refs []models.AttachmentRef
	require.NoError(t, db.Order("record_table, record_id, attachment_id").Find(&refs).Error)
	got := make([]string, 0, len(refs))
	for _, r := range refs {
		got = append(got, r.RecordTable+"/"+r.RecordID+"/"+r.AttachmentID)
	}
	assert.Equal(t, []string{
		models.TableAssetLocal + "/a2/att-2",
		models.TableAssetSynced + "/a1/att-1",
		models.TableAssetSynced + "/b1/att-b",
	}, got)
}

func TestListAssets_PrefersLocal(t *testing.T) {
	db := testDB(t)
	seedLocalGraph(t, db)
	require.NoError(t, db.UpsertSyncedAssets([]models.SyncedAsset{
		{AssetFields: models.AssetFields{ID: "a1", QuestID: "q1", Name: "old"}},
		{AssetFields: models.AssetFields{ID: "a9", QuestID: "q1", Name: "remote only", OrderIndex: 9}},
	}))

	assets, err := db.ListAssets("q1")
	require.NoError(t, err)
	require.Len(t, assets, 3)
	assert.Equal(t, models.SourceLocal, assets[0].Source)
	assert.Equal(t, "v1", assets[0].Name)
	assert.Equal(t, models.SourceSynced, assets[2].Source)
}

// --- Attachment Tests ---

func newAttachment(id string, queue models.QueueName, state models.AttachmentState) *models.Attachment {
	return &models.Attachment{
		ID:            id,
		Queue:         queue,
		State:         state,
		Direction:     models.DirectionUpload,
		RemoteKey:     "attachments/" + id + ".m4a",
		MediaType:     "audio/mp4",
		NextAttemptAt: time.Now().UTC().Add(-time.Second),
	}
}

func TestListReadyAttachments(t *testing.T) {
	db := testDB(t)

	require.NoError(t, db.CreateAttachment(newAttachment("ready", models.QueueTemporary, models.StateQueuedUpload)))
	later := newAttachment("later", models.QueueTemporary, models.StateQueuedUpload)
	later.NextAttemptAt = time.Now().UTC().Add(time.Hour)
	require.NoError(t, db.CreateAttachment(later))
	require.NoError(t, db.CreateAttachment(newAttachment("done", models.QueueTemporary, models.StateUploaded)))
	require.NoError(t, db.CreateAttachment(newAttachment("perm", models.QueuePermanent, models.StateQueuedUpload)))
	gone := newAttachment("gone", models.QueueTemporary, models.StateQueuedUpload)
	gone.Tombstoned = true
	require.NoError(t, db.CreateAttachment(gone))

	rows, err := db.ListReadyAttachments(models.QueueTemporary, time.Now().UTC(), 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "ready", rows[0].ID)
}

func TestResetInterrupted(t *testing.T) {
	db := testDB(t)

	require.NoError(t, db.CreateAttachment(newAttachment("up", models.QueueTemporary, models.StateUploading)))
	down := newAttachment("down", models.QueueTemporary, models.StateDownloading)
	down.Direction = models.DirectionDownload
	require.NoError(t, db.CreateAttachment(down))
	require.NoError(t, db.CreateAttachment(newAttachment("other", models.QueuePermanent, models.StateUploading)))

	n, err := db.ResetInterrupted(models.QueueTemporary)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	up, err := db.GetAttachment("up")
	require.NoError(t, err)
	assert.Equal(t, models.StateQueuedUpload, up.State)

	dn, err := db.GetAttachment("down")
	require.NoError(t, err)
	assert.Equal(t, models.StateQueuedDownload, dn.State)

	other, err := db.GetAttachment("other")
	require.NoError(t, err)
	assert.Equal(t, models.StateUploading, other.State)
}

func TestUpdateAttachment_NotFound(t *testing.T) {
	db := testDB(t)
	err := db.UpdateAttachment("nope", map[string]interface{}{"state": models.StateError})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMoveAttachmentsToQueue(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.CreateAttachment(newAttachment("a", models.QueueTemporary, models.StateUploaded)))

	require.NoError(t, db.MoveAttachmentsToQueue([]string{"a"}, models.QueuePermanent))

	got, err := db.GetAttachment("a")
	require.NoError(t, err)
	assert.Equal(t, models.QueuePermanent, got.Queue)
	assert.Equal(t, models.StateUploaded, got.State)
}

func TestOrphansAndDanglingRefs(t *testing.T) {
	db := testDB(t)

	require.NoError(t, db.CreateAttachment(newAttachment("referenced", models.QueueTemporary, models.StateUploaded)))
	require.NoError(t, db.CreateAttachment(newAttachment("orphan", models.QueueTemporary, models.StateUploaded)))
	require.NoError(t, db.AddAttachmentRef(models.TableAssetLocal, "a1", "referenced"))
	require.NoError(t, db.AddAttachmentRef(models.TableAssetLocal, "a1", "referenced")) // idempotent
	require.NoError(t, db.AddAttachmentRef(models.TableAssetLocal, "a2", "missing"))

	orphans, err := db.ListOrphanAttachments(models.QueueTemporary, time.Time{})
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, "orphan", orphans[0].ID)

	dangling, err := db.ListDanglingRefs()
	require.NoError(t, err)
	require.Len(t, dangling, 1)
	assert.Equal(t, "missing", dangling[0].AttachmentID)

	refs, err := db.ListRefsForAttachment("referenced")
	require.NoError(t, err)
	assert.Len(t, refs, 1)
}

func TestGetStats(t *testing.T) {
	db := testDB(t)
	seedLocalGraph(t, db)
	require.NoError(t, db.CreateAttachment(newAttachment("a", models.QueueTemporary, models.StateQueuedUpload)))

	stats, err := db.GetStats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.LocalQuests)
	assert.Equal(t, int64(3), stats.LocalAssets)
	assert.Equal(t, int64(1), stats.Attachments[models.StateQueuedUpload])
	assert.Greater(t, stats.SizeBytes, int64(0))
}
