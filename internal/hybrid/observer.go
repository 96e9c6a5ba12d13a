package hybrid

import (
	"context"
	"sync"

	"github.com/genesis-ai-dev/langquest-sub009/internal/log"
)

// Observer keeps a query's state current across refetches and
// connectivity changes.
type Observer[T any] struct {
	c    *Client
	opts Options[T]

	mu         sync.Mutex
	state      State[T]
	gen        int
	optimistic []T
	closed     bool
	updates    chan State[T]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Observe starts observing a query. The first fetch starts immediately;
// until it completes the state holds any cached result for the same key.
func Observe[T any](ctx context.Context, c *Client, opts Options[T]) *Observer[T] {
	octx, cancel := context.WithCancel(ctx)
	o := &Observer[T]{
		c:       c,
		opts:    opts,
		updates: make(chan State[T], 1),
		ctx:     octx,
		cancel:  cancel,
	}
	if prev, ok := cached[T](c, opts.cacheKey()); ok {
		o.state = prev
	}

	netCh, unsubscribe := c.net.Subscribe()
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer unsubscribe()
		for {
			select {
			case <-octx.Done():
				return
			case online := <-netCh:
				log.Debugf("[Hybrid] %s refetching after connectivity change (online=%v)", opts.DataType, online)
				o.Refetch()
			}
		}
	}()

	o.Refetch()
	return o
}

// Updates returns a channel carrying the latest state. A slow reader only
// sees the most recent state.
func (o *Observer[T]) Updates() <-chan State[T] {
	return o.updates
}

// Current returns the current state.
func (o *Observer[T]) Current() State[T] {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// publishLocked sends the current state, replacing an unread one.
// Caller must hold o.mu.
func (o *Observer[T]) publishLocked() {
	if o.closed {
		return
	}
	select {
	case <-o.updates:
	default:
	}
	o.updates <- o.state
}

// Refetch starts a new fetch. The current data stays in place, marked
// loading, until the fetch completes. Results of superseded fetches are
// dropped.
func (o *Observer[T]) Refetch() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.gen++
	gen := o.gen
	o.state.IsLoading = true
	o.publishLocked()
	o.wg.Add(1)
	o.mu.Unlock()

	go func() {
		defer o.wg.Done()
		s, err := Fetch(o.ctx, o.c, o.opts)
		o.complete(gen, s, err)
	}()
}

func (o *Observer[T]) complete(gen int, s State[T], err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed || gen != o.gen {
		return
	}
	if err != nil {
		o.state.IsLoading = false
		o.state.Error = err
		o.publishLocked()
		return
	}

	data := s.Data
	if len(o.optimistic) > 0 && o.opts.GetItemID != nil {
		fetched := make(map[string]bool, len(data))
		for _, item := range data {
			fetched[o.opts.GetItemID(item)] = true
		}
		var still []T
		for _, item := range o.optimistic {
			if !fetched[o.opts.GetItemID(item)] {
				still = append(still, item)
			}
		}
		o.optimistic = still
		data = Merge(data, still, o.opts.GetItemID)
	}

	o.state = State[T]{Data: data, Source: s.Source, UpdatedAt: s.UpdatedAt}
	o.publishLocked()
}

// Upsert merges item into the current data by id ahead of the next fetch.
// The next fetch result that contains the same id replaces it.
func (o *Observer[T]) Upsert(item T) {
	if o.opts.GetItemID == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	o.optimistic = Merge(o.optimistic, []T{item}, o.opts.GetItemID)
	o.state.Data = Merge(o.state.Data, []T{item}, o.opts.GetItemID)
	o.publishLocked()
}

// Close stops the observer and waits for its goroutines.
func (o *Observer[T]) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.mu.Unlock()

	o.cancel()
	o.wg.Wait()
	close(o.updates)
}
