package queue

import (
	"context"
	"fmt"
	"sync"

	"tillsync/internal/config"
	"tillsync/internal/metrics"
	"tillsync/internal/models"
	"tillsync/internal/remote"
	"tillsync/internal/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// OnlineSource reports backend reachability and flips. *netmon.Monitor
// satisfies it.
type OnlineSource interface {
	Online() bool
	Subscribe(func(online bool)) func()
}

// Manager owns the order queue for one POS session: it accepts orders,
// persists them before acknowledging, drives the per-order state machine
// through its sync worker, and fans out state changes to the UI.
type Manager struct {
	cfg       config.QueueConfig
	policy    RetryPolicy
	store     store.Store
	submitter remote.Submitter
	net       OnlineSource
	logger    zerolog.Logger
	clock     Clock

	mu     sync.Mutex
	orders []models.QueuedOrder
	online bool
	closed bool

	stateListeners   *registry[StateListener]
	syncListeners    *registry[SyncListener]
	paymentListeners *registry[PaymentErrorListener]

	kick     chan struct{}
	cancel   context.CancelFunc
	unsubNet func()
	wg       sync.WaitGroup
	once     sync.Once
}

// Option tweaks manager construction; used by tests to inject a clock.
type Option func(*Manager)

func WithClock(c Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// NewManager loads the persisted queue, subscribes to reachability flips and
// starts the sync worker. Orders already synced in a previous session are
// archived on load.
func NewManager(st store.Store, submitter remote.Submitter, net OnlineSource,
	cfg config.QueueConfig, logger *zerolog.Logger, opts ...Option) (*Manager, error) {

	m := &Manager{
		cfg:              cfg,
		policy:           PolicyFromConfig(cfg),
		store:            st,
		submitter:        submitter,
		net:              net,
		logger:           logger.With().Str("component", "order-queue").Logger(),
		clock:            systemClock{},
		stateListeners:   newRegistry[StateListener](),
		syncListeners:    newRegistry[SyncListener](),
		paymentListeners: newRegistry[PaymentErrorListener](),
		kick:             make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}

	loaded, err := st.Load(context.Background())
	if err != nil {
		return nil, fmt.Errorf("load order queue: %w", err)
	}
	for _, o := range loaded {
		if o.Status == models.StatusSynced {
			continue
		}
		// A crash mid-attempt leaves an order stuck in syncing; the outcome
		// is unknown, so it re-enters as pending under the same LocalID.
		if o.Status == models.StatusSyncing {
			o.Status = models.StatusPending
		}
		m.orders = append(m.orders, o)
	}

	m.online = net.Online()
	m.unsubNet = net.Subscribe(m.onReachabilityChange)

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.runWorker(ctx)
	}()

	m.logger.Info().Int("restored", len(m.orders)).Bool("online", m.online).
		Msg("order queue manager started")
	m.updateMetrics()
	m.kickWorker()

	return m, nil
}

// EnqueueInput is everything the till captures for a new order.
type EnqueueInput struct {
	Items         []models.OrderItem
	TotalCents    int64
	PaymentMethod models.PaymentMethod
	ReceiptData   *models.ReceiptData
	GratisInfo    *models.GratisInfo
}

// Enqueue records a new order durably and signals the worker. It never
// touches the network; if the store write fails the order was not queued.
func (m *Manager) Enqueue(ctx context.Context, in EnqueueInput) (models.QueuedOrder, error) {
	if len(in.Items) == 0 {
		return models.QueuedOrder{}, ErrNoItems
	}
	if !models.ValidPaymentMethod(in.PaymentMethod) {
		return models.QueuedOrder{}, ErrBadPayment
	}
	if in.TotalCents < 0 {
		return models.QueuedOrder{}, ErrBadTotal
	}

	order := models.QueuedOrder{
		LocalID:       uuid.NewString(),
		Items:         in.Items,
		TotalCents:    in.TotalCents,
		PaymentMethod: in.PaymentMethod,
		ReceiptData:   in.ReceiptData,
		GratisInfo:    in.GratisInfo,
		Status:        models.StatusPending,
		CreatedAt:     m.clock.Now(),
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return models.QueuedOrder{}, ErrClosed
	}
	m.orders = append(m.orders, order)
	if err := m.store.Save(ctx, m.orders); err != nil {
		// Not durably recorded, so not queued.
		m.orders = m.orders[:len(m.orders)-1]
		m.mu.Unlock()
		return models.QueuedOrder{}, fmt.Errorf("persist order: %w", err)
	}
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.logger.Info().Str("local_id", order.LocalID).Int64("total_cents", order.TotalCents).
		Str("method", string(order.PaymentMethod)).Msg("order enqueued")
	m.fanOutState(snap)
	m.kickWorker()
	return order, nil
}

// Retry moves a failed order back to pending. The attempt counter is not
// reset; it keeps counting across manual retries.
func (m *Manager) Retry(ctx context.Context, localID string) error {
	m.mu.Lock()
	idx := m.indexLocked(localID)
	if idx < 0 {
		m.mu.Unlock()
		return ErrNotFound
	}
	if m.orders[idx].Status != models.StatusFailed {
		m.mu.Unlock()
		return ErrNotFailed
	}
	m.orders[idx].Status = models.StatusPending
	if err := m.store.Save(ctx, m.orders); err != nil {
		m.orders[idx].Status = models.StatusFailed
		m.mu.Unlock()
		return fmt.Errorf("persist retry: %w", err)
	}
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.logger.Info().Str("local_id", localID).Msg("manual retry")
	m.fanOutState(snap)
	m.kickWorker()
	return nil
}

// Delete removes an order. Refused while an attempt is in flight, because a
// submission that may already have been accepted cannot be abandoned.
func (m *Manager) Delete(ctx context.Context, localID string) error {
	m.mu.Lock()
	idx := m.indexLocked(localID)
	if idx < 0 {
		m.mu.Unlock()
		return ErrNotFound
	}
	if m.orders[idx].Status == models.StatusSyncing {
		m.mu.Unlock()
		return ErrSyncInFlight
	}
	prev := m.orders
	kept := make([]models.QueuedOrder, 0, len(m.orders)-1)
	kept = append(kept, m.orders[:idx]...)
	kept = append(kept, m.orders[idx+1:]...)
	m.orders = kept
	if err := m.store.Save(ctx, m.orders); err != nil {
		m.orders = prev
		m.mu.Unlock()
		return fmt.Errorf("persist delete: %w", err)
	}
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.logger.Info().Str("local_id", localID).Msg("order deleted")
	m.fanOutState(snap)
	return nil
}

// ChangePaymentMethod swaps the tender on a pre-submission order. Items and
// total are untouched, the attempt counter keeps its value and the LocalID
// (and with it the idempotency key) stays the same.
func (m *Manager) ChangePaymentMethod(ctx context.Context, localID string, method models.PaymentMethod, gratis *models.GratisInfo) error {
	if !models.ValidPaymentMethod(method) {
		return ErrBadPayment
	}

	m.mu.Lock()
	idx := m.indexLocked(localID)
	if idx < 0 {
		m.mu.Unlock()
		return ErrNotFound
	}
	if !m.orders[idx].Mutable() {
		m.mu.Unlock()
		return ErrNotMutable
	}
	prevMethod, prevGratis := m.orders[idx].PaymentMethod, m.orders[idx].GratisInfo
	m.orders[idx].PaymentMethod = method
	m.orders[idx].GratisInfo = gratis
	if err := m.store.Save(ctx, m.orders); err != nil {
		m.orders[idx].PaymentMethod = prevMethod
		m.orders[idx].GratisInfo = prevGratis
		m.mu.Unlock()
		return fmt.Errorf("persist payment change: %w", err)
	}
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.logger.Info().Str("local_id", localID).Str("method", string(method)).
		Msg("payment method changed")
	m.fanOutState(snap)
	return nil
}

// ArchiveSynced drops synced orders from the queue once the UI is done with
// them (receipt printed, ticket confirmed).
func (m *Manager) ArchiveSynced(ctx context.Context) error {
	m.mu.Lock()
	kept := m.orders[:0:0]
	for _, o := range m.orders {
		if o.Status != models.StatusSynced {
			kept = append(kept, o)
		}
	}
	if len(kept) == len(m.orders) {
		m.mu.Unlock()
		return nil
	}
	prev := m.orders
	m.orders = kept
	if err := m.store.Save(ctx, m.orders); err != nil {
		m.orders = prev
		m.mu.Unlock()
		return fmt.Errorf("persist archive: %w", err)
	}
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.fanOutState(snap)
	return nil
}

// Order returns a copy of one order by its local id.
func (m *Manager) Order(localID string) (models.QueuedOrder, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.indexLocked(localID)
	if idx < 0 {
		return models.QueuedOrder{}, false
	}
	return m.orders[idx], true
}

// State returns the current snapshot: all orders plus the reachability flag.
func (m *Manager) State() StateSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// OnStateChange subscribes to queue snapshots. The current state is
// delivered immediately, then once per mutation.
func (m *Manager) OnStateChange(fn StateListener) func() {
	unsub := m.stateListeners.add(fn)
	fn(m.State())
	return unsub
}

// OnSync subscribes to terminal sync events, one per order.
func (m *Manager) OnSync(fn SyncListener) func() {
	return m.syncListeners.add(fn)
}

// OnPaymentError subscribes to payment-specific failures.
func (m *Manager) OnPaymentError(fn PaymentErrorListener) func() {
	return m.paymentListeners.add(fn)
}

// Close stops the worker and releases all subscriptions. Idempotent. An
// attempt already in flight is abandoned client-side; its order re-enters
// as pending on the next boot under the same idempotency key.
func (m *Manager) Close() error {
	m.once.Do(func() {
		m.mu.Lock()
		m.closed = true
		m.mu.Unlock()

		m.cancel()
		m.wg.Wait()
		if m.unsubNet != nil {
			m.unsubNet()
		}
		m.stateListeners.clear()
		m.syncListeners.clear()
		m.paymentListeners.clear()
		m.logger.Info().Msg("order queue manager stopped")
	})
	return nil
}

func (m *Manager) onReachabilityChange(online bool) {
	m.mu.Lock()
	m.online = online
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.fanOutState(snap)
	// Wake the worker either way: to start draining after a reconnect, or
	// to park an in-progress drain when the link drops.
	m.kickWorker()
}

func (m *Manager) indexLocked(localID string) int {
	for i := range m.orders {
		if m.orders[i].LocalID == localID {
			return i
		}
	}
	return -1
}

func (m *Manager) snapshotLocked() StateSnapshot {
	orders := make([]models.QueuedOrder, len(m.orders))
	copy(orders, m.orders)
	return StateSnapshot{Orders: orders, Online: m.online}
}

func (m *Manager) fanOutState(snap StateSnapshot) {
	m.updateMetricsFrom(snap)
	for _, fn := range m.stateListeners.snapshot() {
		fn(snap)
	}
}

func (m *Manager) updateMetrics() {
	m.mu.Lock()
	snap := m.snapshotLocked()
	m.mu.Unlock()
	m.updateMetricsFrom(snap)
}

func (m *Manager) updateMetricsFrom(snap StateSnapshot) {
	counts := map[models.OrderStatus]int{}
	for i := range snap.Orders {
		counts[snap.Orders[i].Status]++
	}
	for _, s := range []models.OrderStatus{models.StatusPending, models.StatusSyncing, models.StatusSynced, models.StatusFailed} {
		metrics.SetQueueDepth(string(s), counts[s])
	}
}

func (m *Manager) kickWorker() {
	select {
	case m.kick <- struct{}{}:
	default:
	}
}
