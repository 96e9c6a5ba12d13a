package netstatus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_SubscribeReceivesChanges(t *testing.T) {
	m := NewMonitor(false)
	ch, cancel := m.Subscribe()
	defer cancel()

	m.Set(false) // unchanged, no event
	m.Set(true)

	select {
	case v := <-ch:
		assert.True(t, v)
	case <-time.After(time.Second):
		t.Fatal("expected status event")
	}
	assert.True(t, m.Online())
}

func TestMonitor_LatestValueWins(t *testing.T) {
	m := NewMonitor(false)
	ch, cancel := m.Subscribe()
	defer cancel()

	m.Set(true)
	m.Set(false)
	m.Set(true)

	assert.True(t, <-ch)
	select {
	case <-ch:
		t.Fatal("expected a single buffered event")
	default:
	}
}

func TestMonitor_Unsubscribe(t *testing.T) {
	m := NewMonitor(true)
	ch, cancel := m.Subscribe()
	cancel()
	cancel()

	m.Set(false)
	select {
	case <-ch:
		t.Fatal("unsubscribed channel received an event")
	default:
	}
}

func TestProber_Probe(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if healthy.Load() {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	m := NewMonitor(false)
	p := NewProber(srv.URL, time.Hour, m)

	require.True(t, p.Probe(context.Background()))
	assert.True(t, m.Online())

	healthy.Store(false)
	assert.False(t, p.Probe(context.Background()))
	assert.False(t, m.Online())
}

func TestProber_Unreachable(t *testing.T) {
	m := NewMonitor(true)
	p := NewProber("http://127.0.0.1:1", time.Hour, m)

	assert.False(t, p.Probe(context.Background()))
	assert.False(t, m.Online())
}
