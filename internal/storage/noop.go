package storage

import (
	"context"
	"fmt"
)

// Noop is an Adapter for platforms with no addressable filesystem.
// Local file operations are unsupported; transfers go to the optional
// remote.
type Noop struct {
	remote Remote
}

// NewNoop creates a Noop adapter. remote may be nil.
func NewNoop(remote Remote) *Noop {
	return &Noop{remote: remote}
}

// Addressable implements Adapter.
func (n *Noop) Addressable() bool { return false }

// UploadFile implements Adapter.
func (n *Noop) UploadFile(ctx context.Context, key string, data []byte, opts UploadOptions) error {
	if n.remote == nil {
		return fmt.Errorf("upload %s: %w", key, ErrUnsupported)
	}
	return n.remote.Put(ctx, key, data, opts.MediaType)
}

// DownloadFile implements Adapter.
func (n *Noop) DownloadFile(ctx context.Context, key string) ([]byte, error) {
	if n.remote == nil {
		return nil, fmt.Errorf("download %s: %w", key, ErrUnsupported)
	}
	return n.remote.Get(ctx, key)
}

// FileExists always reports false.
func (n *Noop) FileExists(ctx context.Context, uri string) (bool, error) {
	return false, nil
}

// DeleteFile is a no-op.
func (n *Noop) DeleteFile(ctx context.Context, uri string) error {
	return nil
}

// ReadFile implements Adapter.
func (n *Noop) ReadFile(ctx context.Context, uri string, enc Encoding) ([]byte, error) {
	return nil, ErrUnsupported
}

// WriteFile implements Adapter.
func (n *Noop) WriteFile(ctx context.Context, uri string, data []byte, enc Encoding) error {
	return ErrUnsupported
}
