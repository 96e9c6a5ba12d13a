package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genesis-ai-dev/langquest-sub009/internal/apperr"
)

// run executes the root command against a fresh data directory.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		attachmentsQueue = ""
	})
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func tempHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("LANGQUEST_HOME", home)
	t.Setenv("LANGQUEST_HEALTH_URL", "")
	t.Setenv("LANGQUEST_API_URL", "")
	t.Setenv("LANGQUEST_STORAGE_URL", "")
	return home
}

func TestRootCmd_Structure(t *testing.T) {
	assert.Equal(t, "langquest", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)

	var names []string
	for _, cmd := range rootCmd.Commands() {
		names = append(names, cmd.Name())
	}
	for _, want := range []string{"status", "migrate", "backup", "publish", "attachments", "prefs", "quests", "version"} {
		assert.Contains(t, names, want)
	}
}

func TestHintFor(t *testing.T) {
	tests := []struct {
		err      error
		contains string
	}{
		{apperr.Validation("quest not publishable", "name is required"), "Fix the listed problems"},
		{apperr.New(apperr.ConflictDetected, "synced copy changed"), "Pull remote changes"},
		{apperr.New(apperr.NotFound, "quest q1 not found"), "Check the id"},
		{errors.New("plain"), ""},
	}
	for _, tt := range tests {
		hint := hintFor(tt.err)
		if tt.contains == "" {
			assert.Empty(t, hint)
			continue
		}
		assert.Contains(t, hint, tt.contains)
	}
}

func TestParseValue(t *testing.T) {
	assert.Equal(t, "hello world", parseValue("hello world"))
	assert.Equal(t, json.RawMessage(`true`), parseValue("true"))
	assert.Equal(t, json.RawMessage(`{"a": 1}`), parseValue(`{"a": 1}`))
}

func TestPrefs_SetGetListDelete(t *testing.T) {
	tempHome(t)

	_, err := run(t, "prefs", "set", "ui_language_id", "eng")
	require.NoError(t, err)
	_, err = run(t, "prefs", "set", "terms_accepted", "true")
	require.NoError(t, err)

	out, err := run(t, "prefs", "get", "ui_language_id")
	require.NoError(t, err)
	assert.Equal(t, "\"eng\"\n", out)

	out, err = run(t, "prefs", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "terms_accepted = true")
	assert.Contains(t, out, `ui_language_id = "eng"`)

	_, err = run(t, "prefs", "delete", "ui_language_id")
	require.NoError(t, err)
	_, err = run(t, "prefs", "get", "ui_language_id")
	assert.Error(t, err)
}

func TestStatus_FreshHome(t *testing.T) {
	tempHome(t)

	out, err := run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Schema:")
	assert.Contains(t, out, "Quests:  0 local, 0 synced")
}

func TestMigrate_SecondRunIsUpToDate(t *testing.T) {
	tempHome(t)

	out, err := run(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Migrated")

	out, err = run(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Schema is up to date")
}

func TestBackup_CreateListRestoreClear(t *testing.T) {
	tempHome(t)

	out, err := run(t, "backup", "create")
	require.NoError(t, err)
	assert.Contains(t, out, "complete")
	id := strings.Fields(out)[0]

	out, err = run(t, "backup", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "BACKUPS (1)")
	assert.Contains(t, out, id)

	out, err = run(t, "backup", "restore", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Restored")

	out, err = run(t, "backup", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted 1 backups.")
}

func TestBackup_RestoreUnknownID(t *testing.T) {
	tempHome(t)

	_, err := run(t, "backup", "restore", "nope")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.NotFound))
	assert.Contains(t, err.Error(), "Check the id")
}

func TestPublish_UnknownQuest(t *testing.T) {
	tempHome(t)

	_, err := run(t, "publish", "missing")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.NotFound))
}

func TestAttachments_ListEmptyAndBadQueue(t *testing.T) {
	tempHome(t)

	out, err := run(t, "attachments", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "temporary (0)")
	assert.Contains(t, out, "permanent (0)")

	_, err = run(t, "attachments", "list", "--queue", "bogus")
	assert.Error(t, err)
}

func TestQuests_OfflineFromLocalDatabase(t *testing.T) {
	tempHome(t)

	out, err := run(t, "quests", "p1")
	require.NoError(t, err)
	assert.Contains(t, out, "QUESTS (0, offline)")

	// The project id is remembered.
	out, err = run(t, "quests")
	require.NoError(t, err)
	assert.Contains(t, out, "QUESTS (0, offline)")
}
