package queue

import (
	"sync"

	"tillsync/internal/models"
)

// StateSnapshot is the full queue view handed to state listeners on every
// mutation. Listeners receive a copy and must not mutate it.
type StateSnapshot struct {
	Orders []models.QueuedOrder
	Online bool
}

// PendingCount counts orders still on their way out (pending or syncing).
func (s StateSnapshot) PendingCount() int {
	n := 0
	for i := range s.Orders {
		if s.Orders[i].Status == models.StatusPending || s.Orders[i].Status == models.StatusSyncing {
			n++
		}
	}
	return n
}

// FailedCount counts orders waiting on a manual decision.
func (s StateSnapshot) FailedCount() int {
	n := 0
	for i := range s.Orders {
		if s.Orders[i].Status == models.StatusFailed {
			n++
		}
	}
	return n
}

type (
	// StateListener observes every queue mutation.
	StateListener func(StateSnapshot)
	// SyncListener fires when an order transitions into synced, once per
	// session. Delivery is at-least-once across sessions: if the write
	// persisting the synced state is lost to a crash, the order re-enters
	// as pending on the next boot and the listener fires again after the
	// idempotent re-submission confirms it.
	SyncListener func(models.QueuedOrder)
	// PaymentErrorListener fires when an attempt fails for a
	// payment-specific reason, with the backend's code and message.
	PaymentErrorListener func(order models.QueuedOrder, code, message string)
)

// registry is an observer list with per-subscription unsubscribe handles.
// Delivery iterates over a copy, so unsubscribing mid-delivery is safe.
type registry[T any] struct {
	mu     sync.Mutex
	nextID int
	fns    map[int]T
}

func newRegistry[T any]() *registry[T] {
	return &registry[T]{fns: make(map[int]T)}
}

func (r *registry[T]) add(fn T) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.fns[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.fns, id)
	}
}

func (r *registry[T]) snapshot() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]T, 0, len(r.fns))
	for _, fn := range r.fns {
		out = append(out, fn)
	}
	return out
}

func (r *registry[T]) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fns = make(map[int]T)
}
