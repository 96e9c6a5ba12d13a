// Package storage provides the object storage adapter used by the
// attachment queues and the backup service. An Adapter combines local file
// access with a remote object store; platforms without an addressable
// filesystem use Noop.
package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
)

var (
	// ErrUnsupported is returned for local file operations on adapters
	// without an addressable filesystem.
	ErrUnsupported = errors.New("operation not supported by storage adapter")
	// ErrNotFound is returned when a file or object does not exist.
	ErrNotFound = errors.New("object not found")
)

// Encoding selects how ReadFile/WriteFile treat file contents.
type Encoding string

const (
	EncodingBinary Encoding = "binary"
	EncodingUTF8   Encoding = "utf8"
	EncodingBase64 Encoding = "base64"
)

// UploadOptions carries per-upload metadata.
type UploadOptions struct {
	MediaType string
}

// Adapter is the storage capability interface.
type Adapter interface {
	UploadFile(ctx context.Context, key string, data []byte, opts UploadOptions) error
	DownloadFile(ctx context.Context, key string) ([]byte, error)
	FileExists(ctx context.Context, uri string) (bool, error)
	DeleteFile(ctx context.Context, uri string) error
	ReadFile(ctx context.Context, uri string, enc Encoding) ([]byte, error)
	WriteFile(ctx context.Context, uri string, data []byte, enc Encoding) error
	// Addressable reports whether local file operations are available.
	Addressable() bool
}

// Remote is a remote object store addressed by key.
type Remote interface {
	Put(ctx context.Context, key string, data []byte, mediaType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// encode converts raw file bytes for a reader asking for enc.
func encode(raw []byte, enc Encoding) ([]byte, error) {
	switch enc {
	case "", EncodingBinary, EncodingUTF8:
		return raw, nil
	case EncodingBase64:
		out := make([]byte, base64.StdEncoding.EncodedLen(len(raw)))
		base64.StdEncoding.Encode(out, raw)
		return out, nil
	default:
		return nil, fmt.Errorf("unknown encoding %q", enc)
	}
}

// decode converts data supplied in enc to raw file bytes.
func decode(data []byte, enc Encoding) ([]byte, error) {
	switch enc {
	case "", EncodingBinary, EncodingUTF8:
		return data, nil
	case EncodingBase64:
		out := make([]byte, base64.StdEncoding.DecodedLen(len(data)))
		n, err := base64.StdEncoding.Decode(out, data)
		if err != nil {
			return nil, fmt.Errorf("decode base64: %w", err)
		}
		return out[:n], nil
	default:
		return nil, fmt.Errorf("unknown encoding %q", enc)
	}
}
