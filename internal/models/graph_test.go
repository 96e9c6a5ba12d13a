package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func sampleGraph() *QuestGraph {
	return &QuestGraph{
		Quest: QuestFields{ID: "q1", ProjectID: "p1", Name: "Genesis 1", Metadata: datatypes.JSON(`{"book":"gen"}`), Visible: true},
		Assets: []AssetFields{
			{ID: "a2", QuestID: "q1", Name: "verse 2", OrderIndex: 2},
			{ID: "a1", QuestID: "q1", Name: "verse 1", OrderIndex: 1},
		},
		Refs: []AttachmentRef{
			{RecordTable: TableAssetLocal, RecordID: "a1", AttachmentID: "att-1"},
			{RecordTable: TableAssetLocal, RecordID: "a2", AttachmentID: "att-2"},
		},
	}
}

func TestQuestGraph_Hash_OrderAndTableIndependent(t *testing.T) {
	local := sampleGraph()

	synced := sampleGraph()
	synced.Assets[0], synced.Assets[1] = synced.Assets[1], synced.Assets[0]
	for i := range synced.Refs {
		synced.Refs[i].RecordTable = SyncedTableFor(synced.Refs[i].RecordTable)
	}

	h1, err := local.Hash()
	require.NoError(t, err)
	h2, err := synced.Hash()
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestQuestGraph_Hash_ChangesWithContent(t *testing.T) {
	g := sampleGraph()
	before, err := g.Hash()
	require.NoError(t, err)

	g.Assets[0].Content = "In the beginning"
	after, err := g.Hash()
	require.NoError(t, err)

	assert.NotEqual(t, before, after)
}

func TestQuestGraph_AttachmentIDs(t *testing.T) {
	g := sampleGraph()
	g.Refs = append(g.Refs, AttachmentRef{RecordTable: TableQuestLocal, RecordID: "q1", AttachmentID: "att-1"})

	assert.Equal(t, []string{"att-1", "att-2"}, g.AttachmentIDs())
}

func TestAttachmentState_Predicates(t *testing.T) {
	assert.True(t, StateUploading.InFlight())
	assert.True(t, StateDownloading.InFlight())
	assert.False(t, StateQueuedUpload.InFlight())
	assert.True(t, StateQueuedDownload.Queued())
	assert.False(t, StateError.Queued())
}

func TestAttachment_Confirmed(t *testing.T) {
	assert.True(t, (&Attachment{State: StateUploaded}).Confirmed())
	assert.False(t, (&Attachment{State: StateUploaded, Tombstoned: true}).Confirmed())
	assert.False(t, (&Attachment{State: StateQueuedUpload}).Confirmed())
}

func TestSyncedTableFor(t *testing.T) {
	assert.Equal(t, TableQuestSynced, SyncedTableFor(TableQuestLocal))
	assert.Equal(t, TableAssetSynced, SyncedTableFor(TableAssetLocal))
	assert.Equal(t, "other", SyncedTableFor("other"))
}
