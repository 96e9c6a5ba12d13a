package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genesis-ai-dev/langquest-sub009/internal/testutil"
)

func TestHTTPRemote_LiveBucket(t *testing.T) {
	url := testutil.RequireEnv(t, "LANGQUEST_TEST_STORAGE_URL")

	r, err := NewHTTPRemote(HTTPConfig{
		BaseURL: url,
		Token:   os.Getenv("LANGQUEST_TEST_STORAGE_TOKEN"),
		Timeout: 30 * time.Second,
	})
	require.NoError(t, err)

	ctx := context.Background()
	key := "test/" + uuid.NewString() + ".txt"
	require.NoError(t, r.Put(ctx, key, []byte("live"), "text/plain"))
	t.Cleanup(func() { _ = r.Delete(context.Background(), key) })

	data, err := r.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "live", string(data))

	require.NoError(t, r.Delete(ctx, key))
	_, err = r.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
}
