package queue

import (
	"context"
	"time"

	"tillsync/internal/metrics"
	"tillsync/internal/models"
	"tillsync/internal/remote"
)

// runWorker is the single drain loop: at most one order is ever in flight,
// which keeps idempotency reasoning simple. It wakes on enqueue, manual
// retry, reachability flips and a periodic safety-net timer.
func (m *Manager) runWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.kick:
		case <-m.clock.After(m.cfg.SyncInterval):
		}
		m.drain(ctx)
	}
}

// drain submits pending orders strictly in creation order. The head of the
// queue waits out its own backoff; later orders never overtake it, so
// kitchen tickets keep the sequence staff created them in.
func (m *Manager) drain(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		m.mu.Lock()
		online := m.online
		localID, wait, ok := m.headPendingLocked()
		m.mu.Unlock()

		if !online || !ok {
			return
		}

		if wait > 0 {
			select {
			case <-ctx.Done():
				return
			case <-m.clock.After(wait):
			case <-m.kick:
				// Re-evaluate: a flip or manual action changed the queue.
			}
			continue
		}

		if !m.attempt(ctx, localID) {
			// The syncing transition could not be persisted. Retry on a
			// delay so a full disk does not turn the worker into a busy
			// loop against the failing store.
			delay := m.policy.InitialDelay
			if delay <= 0 {
				delay = time.Second
			}
			select {
			case <-ctx.Done():
				return
			case <-m.clock.After(delay):
			case <-m.kick:
			}
		}
	}
}

// headPendingLocked finds the earliest pending order and how long its
// backoff still has to run. Failed orders wait for staff and do not block
// the queue; synced orders are done.
func (m *Manager) headPendingLocked() (string, time.Duration, bool) {
	for i := range m.orders {
		o := &m.orders[i]
		if o.Status != models.StatusPending {
			continue
		}
		if o.AttemptCount > 0 && o.LastAttemptAt != nil {
			readyAt := o.LastAttemptAt.Add(m.policy.NextDelay(o.AttemptCount))
			if wait := readyAt.Sub(m.clock.Now()); wait > 0 {
				return o.LocalID, wait, true
			}
		}
		return o.LocalID, 0, true
	}
	return "", 0, false
}

// attempt runs one submission for one order: pending -> syncing -> synced,
// or back to pending/failed depending on the outcome and the retry budget.
// Returns false when the syncing transition could not be persisted, so the
// caller can back off before touching the store again.
func (m *Manager) attempt(ctx context.Context, localID string) bool {
	m.mu.Lock()
	idx := m.indexLocked(localID)
	if idx < 0 || m.orders[idx].Status != models.StatusPending {
		m.mu.Unlock()
		return true
	}
	m.orders[idx].Status = models.StatusSyncing
	if err := m.store.Save(ctx, m.orders); err != nil {
		m.orders[idx].Status = models.StatusPending
		m.mu.Unlock()
		m.logger.Error().Err(err).Str("local_id", localID).Msg("persist syncing state")
		return false
	}
	order := m.orders[idx]
	snap := m.snapshotLocked()
	m.mu.Unlock()
	m.fanOutState(snap)

	start := m.clock.Now()
	result, err := m.submitter.Submit(ctx, order)
	metrics.ObserveSubmission(m.clock.Now().Sub(start).Seconds())

	if ctx.Err() != nil {
		// Shutdown mid-attempt: the outcome is unknown and must not count
		// against the budget. The order re-enters as pending on next boot.
		m.revertToPending(localID)
		return true
	}

	if err == nil {
		m.markSynced(ctx, localID, result.ServerID)
		return true
	}
	m.markAttemptFailed(ctx, localID, result.ServerID, err)
	return true
}

func (m *Manager) revertToPending(localID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.indexLocked(localID)
	if idx >= 0 && m.orders[idx].Status == models.StatusSyncing {
		m.orders[idx].Status = models.StatusPending
	}
}

func (m *Manager) markSynced(ctx context.Context, localID, serverID string) {
	m.mu.Lock()
	idx := m.indexLocked(localID)
	if idx < 0 {
		m.mu.Unlock()
		return
	}
	m.orders[idx].Status = models.StatusSynced
	m.orders[idx].ServerID = serverID
	m.orders[idx].LastError = ""
	if err := m.store.Save(ctx, m.orders); err != nil {
		// The backend accepted the order. A stale local marker is recovered
		// on the next attempt through the idempotency key, so log loudly
		// but keep the transition.
		m.logger.Error().Err(err).Str("local_id", localID).Msg("persist synced state")
	}
	order := m.orders[idx]
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.logger.Info().Str("local_id", localID).Str("server_id", serverID).
		Int("attempts", order.AttemptCount+1).Msg("order synced")
	metrics.IncAttempt("synced")
	m.fanOutState(snap)
	for _, fn := range m.syncListeners.snapshot() {
		fn(order)
	}
}

func (m *Manager) markAttemptFailed(ctx context.Context, localID, serverID string, cause error) {
	se, classified := remote.AsSubmitError(cause)

	m.mu.Lock()
	idx := m.indexLocked(localID)
	if idx < 0 {
		m.mu.Unlock()
		return
	}
	o := &m.orders[idx]
	o.AttemptCount++
	now := m.clock.Now()
	o.LastAttemptAt = &now
	o.LastError = cause.Error()
	if serverID != "" {
		// Order creation went through; only payment confirmation is left.
		o.ServerID = serverID
	}

	permanent := classified && se.Permanent
	if permanent && o.AttemptCount < m.policy.MaxAttempts {
		// No point burning the remaining budget on a permanent decline.
		o.AttemptCount = m.policy.MaxAttempts
	}
	if o.AttemptCount >= m.policy.MaxAttempts {
		o.Status = models.StatusFailed
	} else {
		o.Status = models.StatusPending
	}
	if err := m.store.Save(ctx, m.orders); err != nil {
		m.logger.Error().Err(err).Str("local_id", localID).Msg("persist attempt failure")
	}
	order := m.orders[idx]
	snap := m.snapshotLocked()
	m.mu.Unlock()

	outcome := "transport_error"
	if classified {
		switch se.Kind {
		case remote.KindRejected:
			outcome = "rejected"
		case remote.KindPayment:
			outcome = "payment_error"
		}
	}
	metrics.IncAttempt(outcome)

	evt := m.logger.Warn().Str("local_id", localID).Int("attempts", order.AttemptCount).
		Str("outcome", outcome).Err(cause)
	if order.Status == models.StatusFailed {
		evt.Msg("order failed, manual action required")
	} else {
		evt.Msg("submission attempt failed, will retry")
	}

	m.fanOutState(snap)
	if classified && se.Kind == remote.KindPayment {
		for _, fn := range m.paymentListeners.snapshot() {
			fn(order, se.Code, se.Message)
		}
	}
}
