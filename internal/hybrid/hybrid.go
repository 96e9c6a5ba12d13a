// Package hybrid serves reads from either the local relational store or
// the remote API depending on connectivity, and keeps the last good result
// visible while a new fetch is in flight.
package hybrid

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/genesis-ai-dev/langquest-sub009/internal/netstatus"
)

// Source names where a result came from.
type Source string

const (
	SourceOnline  Source = "online"
	SourceOffline Source = "offline"
	SourceNone    Source = "none"
)

// QueryFunc loads a result set.
type QueryFunc[T any] func(ctx context.Context) ([]T, error)

// Options describes one query. It is built per call site and not
// persisted.
type Options[T any] struct {
	DataType     string
	Key          []any
	OfflineQuery QueryFunc[T]
	OnlineQuery  QueryFunc[T]
	// EnableOffline is false for data types with no local mirror.
	EnableOffline bool
	EnableOnline  bool
	GetItemID     func(T) string
}

func (o Options[T]) cacheKey() string {
	parts := make([]string, 0, len(o.Key)+1)
	parts = append(parts, o.DataType)
	for _, k := range o.Key {
		b, err := json.Marshal(k)
		if err != nil {
			b = []byte(fmt.Sprint(k))
		}
		parts = append(parts, string(b))
	}
	return strings.Join(parts, "|")
}

// State is one emitted result.
type State[T any] struct {
	Data      []T
	IsLoading bool
	Error     error
	Source    Source
	UpdatedAt time.Time
}

type entry struct {
	data   any
	source Source
	at     time.Time
}

// Client holds the per-key result cache shared by all queries.
type Client struct {
	net   netstatus.Provider
	mu    sync.RWMutex
	cache map[string]entry
	group singleflight.Group
}

// NewClient creates a client that selects sources using net.
func NewClient(net netstatus.Provider) *Client {
	return &Client{net: net, cache: make(map[string]entry)}
}

// Online reports the current connectivity.
func (c *Client) Online() bool {
	return c.net.Online()
}

// Invalidate drops cached results whose key starts with dataType.
func (c *Client) Invalidate(dataType string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.cache {
		if k == dataType || strings.HasPrefix(k, dataType+"|") {
			delete(c.cache, k)
		}
	}
}

func cached[T any](c *Client, key string) (State[T], bool) {
	c.mu.RLock()
	e, ok := c.cache[key]
	c.mu.RUnlock()
	if !ok {
		return State[T]{}, false
	}
	data, ok := e.data.([]T)
	if !ok {
		return State[T]{}, false
	}
	return State[T]{Data: data, Source: e.source, UpdatedAt: e.at}, true
}

func store[T any](c *Client, key string, s State[T]) {
	c.mu.Lock()
	c.cache[key] = entry{data: s.Data, source: s.Source, at: s.UpdatedAt}
	c.mu.Unlock()
}

// selectSource applies the selection rule: online when connected and
// enabled, otherwise offline when enabled, otherwise nothing.
func selectSource[T any](c *Client, opts Options[T]) Source {
	if opts.EnableOnline && opts.OnlineQuery != nil && c.net.Online() {
		return SourceOnline
	}
	if opts.EnableOffline && opts.OfflineQuery != nil {
		return SourceOffline
	}
	return SourceNone
}

// Fetch runs the query once against the selected source. On error the
// returned state carries the last cached data alongside the error.
func Fetch[T any](ctx context.Context, c *Client, opts Options[T]) (State[T], error) {
	key := opts.cacheKey()
	source := selectSource(c, opts)

	var (
		data []T
		err  error
	)
	switch source {
	case SourceOnline:
		// Identical online fetches in flight share one request.
		var v any
		v, err, _ = c.group.Do(string(SourceOnline)+":"+key, func() (any, error) {
			return opts.OnlineQuery(ctx)
		})
		if err == nil {
			data, _ = v.([]T)
		}
	case SourceOffline:
		data, err = opts.OfflineQuery(ctx)
	default:
		return State[T]{Data: []T{}, Source: SourceNone, UpdatedAt: time.Now()}, nil
	}

	if err != nil {
		prev, _ := cached[T](c, key)
		prev.Error = err
		return prev, fmt.Errorf("%s %s query: %w", opts.DataType, source, err)
	}
	if data == nil {
		data = []T{}
	}

	s := State[T]{Data: data, Source: source, UpdatedAt: time.Now()}
	store(c, key, s)
	return s, nil
}

// Merge returns base with items from extra replacing those with the same
// id, and new items from extra appended in order.
func Merge[T any](base, extra []T, id func(T) string) []T {
	out := make([]T, len(base), len(base)+len(extra))
	copy(out, base)

	pos := make(map[string]int, len(out))
	for i, item := range out {
		pos[id(item)] = i
	}
	for _, item := range extra {
		if i, ok := pos[id(item)]; ok {
			out[i] = item
			continue
		}
		pos[id(item)] = len(out)
		out = append(out, item)
	}
	return out
}
