package netmon

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tillsync/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedProber struct {
	errs []error
	i    int
}

func (p *scriptedProber) Probe(ctx context.Context) error {
	if p.i >= len(p.errs) {
		return nil
	}
	err := p.errs[p.i]
	p.i++
	return err
}

func testNetmonConfig() config.NetmonConfig {
	return config.NetmonConfig{
		ProbeInterval: 10 * time.Millisecond,
		ProbeTimeout:  5 * time.Millisecond,
		DebounceCount: 2,
	}
}

func newTestMonitor(cfg config.NetmonConfig) *Monitor {
	logger := zerolog.Nop()
	return NewMonitor(&scriptedProber{}, cfg, &logger)
}

func TestMonitorStartsOnline(t *testing.T) {
	m := newTestMonitor(testNetmonConfig())
	assert.True(t, m.Online())
}

func TestMonitorDebouncesBlips(t *testing.T) {
	m := newTestMonitor(testNetmonConfig())

	flips := 0
	m.Subscribe(func(bool) { flips++ })

	// One bad probe is a blip; the verdict must not change.
	m.Observe(false)
	assert.True(t, m.Online())
	assert.Zero(t, flips)

	// A good probe in between resets the streak.
	m.Observe(true)
	m.Observe(false)
	assert.True(t, m.Online())
	assert.Zero(t, flips)

	// Two consecutive bad probes flip the verdict.
	m.Observe(false)
	assert.False(t, m.Online())
	assert.Equal(t, 1, flips)
}

func TestMonitorReportsRecovery(t *testing.T) {
	m := newTestMonitor(testNetmonConfig())

	var last bool
	m.Subscribe(func(online bool) { last = online })

	m.Observe(false)
	m.Observe(false)
	require.False(t, m.Online())
	require.False(t, last)

	m.Observe(true)
	m.Observe(true)
	assert.True(t, m.Online())
	assert.True(t, last)
}

func TestMonitorUnsubscribe(t *testing.T) {
	m := newTestMonitor(testNetmonConfig())

	calls := 0
	unsub := m.Subscribe(func(bool) { calls++ })
	unsub()

	m.Observe(false)
	m.Observe(false)
	assert.Zero(t, calls)
}

func TestHTTPProber(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer broken.Close()

	cfg := testNetmonConfig()
	cfg.ProbeTimeout = time.Second

	cfg.ProbeURL = healthy.URL
	assert.NoError(t, NewHTTPProber(cfg).Probe(context.Background()))

	cfg.ProbeURL = broken.URL
	assert.Error(t, NewHTTPProber(cfg).Probe(context.Background()))
}

func TestMonitorStartStopsOnContextCancel(t *testing.T) {
	cfg := testNetmonConfig()
	logger := zerolog.Nop()
	m := NewMonitor(&scriptedProber{errs: []error{errors.New("down")}}, cfg, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
}
