package netmon

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"tillsync/internal/config"
	"tillsync/internal/metrics"

	"github.com/rs/zerolog"
)

// Prober answers whether the backend is reachable right now.
type Prober interface {
	Probe(ctx context.Context) error
}

// HTTPProber probes a health endpoint on the venue backend.
type HTTPProber struct {
	url  string
	http *http.Client
}

func NewHTTPProber(cfg config.NetmonConfig) *HTTPProber {
	return &HTTPProber{
		url:  cfg.ProbeURL,
		http: &http.Client{Timeout: cfg.ProbeTimeout},
	}
}

func (p *HTTPProber) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return err
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("health endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// Monitor tracks backend reachability. A flip is reported only after
// DebounceCount consecutive probes agree, so brief blips never surface.
type Monitor struct {
	prober Prober
	cfg    config.NetmonConfig
	logger *zerolog.Logger

	mu          sync.Mutex
	online      bool
	streak      int // consecutive probes disagreeing with the current state
	subscribers map[int]func(bool)
	nextSubID   int
}

func NewMonitor(prober Prober, cfg config.NetmonConfig, logger *zerolog.Logger) *Monitor {
	return &Monitor{
		prober:      prober,
		cfg:         cfg,
		logger:      logger,
		online:      true, // assume reachable until a probe says otherwise
		subscribers: make(map[int]func(bool)),
	}
}

// Online returns the current debounced reachability verdict.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe registers a callback for reachability flips and returns an
// unsubscribe handle. Unsubscribing during delivery is safe.
func (m *Monitor) Subscribe(fn func(online bool)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSubID
	m.nextSubID++
	m.subscribers[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subscribers, id)
	}
}

// Start probes on the configured interval until ctx is done.
func (m *Monitor) Start(ctx context.Context) {
	m.logger.Info().Str("url", m.cfg.ProbeURL).Dur("interval", m.cfg.ProbeInterval).
		Msg("reachability monitor started")

	ticker := time.NewTicker(m.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probeOnce(ctx)
		}
	}
}

func (m *Monitor) probeOnce(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	err := m.prober.Probe(probeCtx)
	cancel()
	m.Observe(err == nil)
}

// Observe feeds one probe result into the debounce window.
func (m *Monitor) Observe(reachable bool) {
	m.mu.Lock()
	if reachable == m.online {
		m.streak = 0
		m.mu.Unlock()
		return
	}

	m.streak++
	if m.streak < m.cfg.DebounceCount {
		m.mu.Unlock()
		return
	}

	m.online = reachable
	m.streak = 0
	subs := make([]func(bool), 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	m.logger.Info().Bool("online", reachable).Msg("reachability changed")
	metrics.SetOnline(reachable)
	for _, fn := range subs {
		fn(reachable)
	}
}
