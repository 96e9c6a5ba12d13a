// Package netstatus reports connectivity to the rest of the core. The
// provider is injected; Monitor is the settable implementation and Prober
// drives a Monitor from a health endpoint.
package netstatus

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/genesis-ai-dev/langquest-sub009/internal/log"
)

// Provider reports whether the network is reachable.
type Provider interface {
	Online() bool
	// Subscribe returns a channel that receives the new status on every
	// change, and a function that ends the subscription.
	Subscribe() (<-chan bool, func())
}

// Monitor is a Provider whose status is set explicitly.
type Monitor struct {
	mu     sync.Mutex
	online bool
	subs   map[int]chan bool
	nextID int
}

// NewMonitor creates a Monitor with the given initial status.
func NewMonitor(online bool) *Monitor {
	return &Monitor{online: online, subs: make(map[int]chan bool)}
}

// Online implements Provider.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Set updates the status and notifies subscribers if it changed.
func (m *Monitor) Set(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.online == online {
		return
	}
	m.online = online
	for _, ch := range m.subs {
		// Latest value wins; a slow subscriber only needs the current state.
		select {
		case <-ch:
		default:
		}
		ch <- online
	}
}

// Subscribe implements Provider.
func (m *Monitor) Subscribe() (<-chan bool, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	ch := make(chan bool, 1)
	m.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}

// Prober polls a health URL and updates a Monitor.
type Prober struct {
	url      string
	interval time.Duration
	client   *http.Client
	monitor  *Monitor
}

// NewProber creates a Prober that reports into monitor.
func NewProber(url string, interval time.Duration, monitor *Monitor) *Prober {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Prober{
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: 5 * time.Second},
		monitor:  monitor,
	}
}

// Probe checks the health URL once and records the result.
func (p *Prober) Probe(ctx context.Context) bool {
	online := p.check(ctx)
	if online != p.monitor.Online() {
		log.Infof("[Network] status changed: online=%v", online)
	}
	p.monitor.Set(online)
	return online
}

func (p *Prober) check(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}

// Run probes until ctx is cancelled.
func (p *Prober) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Probe(ctx)
		}
	}
}
