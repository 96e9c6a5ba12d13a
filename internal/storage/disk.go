package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Disk is an Adapter backed by the local filesystem and a Remote.
// Relative URIs resolve under root; file:// prefixes are accepted.
type Disk struct {
	root   string
	remote Remote
}

// NewDisk creates a disk adapter rooted at root.
func NewDisk(root string, remote Remote) *Disk {
	return &Disk{root: root, remote: remote}
}

// Root returns the directory relative URIs resolve under.
func (d *Disk) Root() string {
	return d.root
}

// Addressable implements Adapter.
func (d *Disk) Addressable() bool { return true }

func (d *Disk) resolve(uri string) (string, error) {
	p := strings.TrimPrefix(uri, "file://")
	if p == "" {
		return "", fmt.Errorf("empty file uri")
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(d.root, p)
	}
	return filepath.Clean(p), nil
}

// UploadFile implements Adapter.
func (d *Disk) UploadFile(ctx context.Context, key string, data []byte, opts UploadOptions) error {
	if d.remote == nil {
		return fmt.Errorf("upload %s: no remote configured", key)
	}
	return d.remote.Put(ctx, key, data, opts.MediaType)
}

// DownloadFile implements Adapter.
func (d *Disk) DownloadFile(ctx context.Context, key string) ([]byte, error) {
	if d.remote == nil {
		return nil, fmt.Errorf("download %s: no remote configured", key)
	}
	return d.remote.Get(ctx, key)
}

// FileExists implements Adapter.
func (d *Disk) FileExists(ctx context.Context, uri string) (bool, error) {
	p, err := d.resolve(uri)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}

// DeleteFile implements Adapter. Deleting a missing file is not an error.
func (d *Disk) DeleteFile(ctx context.Context, uri string) error {
	p, err := d.resolve(uri)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// ReadFile implements Adapter.
func (d *Disk) ReadFile(ctx context.Context, uri string, enc Encoding) ([]byte, error) {
	p, err := d.resolve(uri)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", uri, ErrNotFound)
		}
		return nil, err
	}
	return encode(raw, enc)
}

// WriteFile implements Adapter. The write is atomic (temp file + rename).
func (d *Disk) WriteFile(ctx context.Context, uri string, data []byte, enc Encoding) error {
	p, err := d.resolve(uri)
	if err != nil {
		return err
	}
	raw, err := decode(data, enc)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return err
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, p)
}
