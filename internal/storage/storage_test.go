package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisk_ReadWriteEncodings(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	d := NewDisk(root, nil)

	require.NoError(t, d.WriteFile(ctx, "a/b.txt", []byte("hello"), EncodingUTF8))

	got, err := d.ReadFile(ctx, "a/b.txt", EncodingUTF8)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	b64, err := d.ReadFile(ctx, "file://"+filepath.Join(root, "a", "b.txt"), EncodingBase64)
	require.NoError(t, err)
	assert.Equal(t, "aGVsbG8=", string(b64))

	require.NoError(t, d.WriteFile(ctx, "c.bin", []byte("aGVsbG8="), EncodingBase64))
	raw, err := os.ReadFile(filepath.Join(root, "c.bin"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(raw))
}

func TestDisk_ExistsAndDelete(t *testing.T) {
	ctx := context.Background()
	d := NewDisk(t.TempDir(), nil)

	ok, err := d.FileExists(ctx, "x.m4a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, d.WriteFile(ctx, "x.m4a", []byte{1, 2, 3}, EncodingBinary))
	ok, err = d.FileExists(ctx, "x.m4a")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, d.DeleteFile(ctx, "x.m4a"))
	require.NoError(t, d.DeleteFile(ctx, "x.m4a"))

	_, err = d.ReadFile(ctx, "x.m4a", EncodingBinary)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDisk_TransfersThroughRemote(t *testing.T) {
	ctx := context.Background()
	bucket := t.TempDir()
	d := NewDisk(t.TempDir(), NewDirRemote(bucket))

	require.NoError(t, d.UploadFile(ctx, "attachments/1.m4a", []byte("audio"), UploadOptions{MediaType: "audio/mp4"}))

	data, err := d.DownloadFile(ctx, "attachments/1.m4a")
	require.NoError(t, err)
	assert.Equal(t, "audio", string(data))

	_, err = d.DownloadFile(ctx, "attachments/missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDisk_NoRemote(t *testing.T) {
	d := NewDisk(t.TempDir(), nil)
	assert.Error(t, d.UploadFile(context.Background(), "k", nil, UploadOptions{}))
}

func TestNoop(t *testing.T) {
	ctx := context.Background()
	n := NewNoop(nil)

	assert.False(t, n.Addressable())
	ok, err := n.FileExists(ctx, "anything")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, n.DeleteFile(ctx, "anything"))

	_, err = n.ReadFile(ctx, "x", EncodingBinary)
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.ErrorIs(t, n.WriteFile(ctx, "x", nil, EncodingBinary), ErrUnsupported)
	assert.ErrorIs(t, n.UploadFile(ctx, "k", nil, UploadOptions{}), ErrUnsupported)
}

func TestDirRemote_RejectsTraversal(t *testing.T) {
	r := NewDirRemote(t.TempDir())
	assert.Error(t, r.Put(context.Background(), "../escape", []byte("x"), ""))
	assert.Error(t, r.Put(context.Background(), "", []byte("x"), ""))
}

// fakeObjectStore is an in-memory object store behind httptest.
type fakeObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	auth    []string
}

func (f *fakeObjectStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.auth = append(f.auth, r.Header.Get("Authorization"))
	key := strings.TrimPrefix(r.URL.Path, "/bucket/")
	switch r.Method {
	case http.MethodPut:
		data, _ := io.ReadAll(r.Body)
		f.objects[key] = data
		f.types[key] = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		data, ok := f.objects[key]
		if !ok {
			http.Error(w, "NoSuchKey", http.StatusNotFound)
			return
		}
		_, _ = w.Write(data)
	case http.MethodDelete:
		delete(f.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestHTTPRemote_RoundTrip(t *testing.T) {
	store := &fakeObjectStore{objects: map[string][]byte{}, types: map[string]string{}}
	srv := httptest.NewServer(store)
	defer srv.Close()

	r, err := NewHTTPRemote(HTTPConfig{BaseURL: srv.URL + "/bucket/", Token: "secret"})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, r.Put(ctx, "attachments/a.m4a", []byte("audio"), "audio/mp4"))
	assert.Equal(t, "audio/mp4", store.types["attachments/a.m4a"])

	data, err := r.Get(ctx, "attachments/a.m4a")
	require.NoError(t, err)
	assert.Equal(t, "audio", string(data))

	require.NoError(t, r.Delete(ctx, "attachments/a.m4a"))
	_, err = r.Get(ctx, "attachments/a.m4a")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NotEmpty(t, store.auth)
	assert.Equal(t, "Bearer secret", store.auth[0])
}

func TestHTTPRemote_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	r, err := NewHTTPRemote(HTTPConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	err = r.Put(context.Background(), "k", []byte("x"), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestNewHTTPRemote_InvalidURL(t *testing.T) {
	_, err := NewHTTPRemote(HTTPConfig{BaseURL: "not-a-url"})
	assert.Error(t, err)
}
