package notify

import (
	"sync"
	"testing"

	"tillsync/internal/models"
	"tillsync/internal/queue"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
}

func (s *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		s.sent = append(s.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func (s *fakeSender) messages() []tgbotapi.MessageConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]tgbotapi.MessageConfig(nil), s.sent...)
}

type fakeStateSource struct {
	listener queue.StateListener
}

func (s *fakeStateSource) OnStateChange(l queue.StateListener) func() {
	s.listener = l
	return func() { s.listener = nil }
}

func (s *fakeStateSource) emit(snap queue.StateSnapshot) {
	if s.listener != nil {
		s.listener(snap)
	}
}

func failedOrder(id string) models.QueuedOrder {
	return models.QueuedOrder{
		LocalID:       id,
		Items:         []models.OrderItem{{ProductID: "p1", Name: "Raclette", Quantity: 1, UnitCents: 900}},
		TotalCents:    900,
		PaymentMethod: models.PaymentCard,
		Status:        models.StatusFailed,
		AttemptCount:  5,
		LastError:     "backend unavailable",
	}
}

func newNotifier(t *testing.T) (*StuckOrderNotifier, *fakeSender, *fakeStateSource) {
	t.Helper()
	sender := &fakeSender{}
	src := &fakeStateSource{}
	logger := zerolog.Nop()
	n := NewStuckOrderNotifier(sender, 42, &logger)
	n.Attach(src)
	t.Cleanup(n.Stop)
	return n, sender, src
}

func TestAlertsOncePerFailedOrder(t *testing.T) {
	_, sender, src := newNotifier(t)

	order := failedOrder("order-1")
	src.emit(queue.StateSnapshot{Orders: []models.QueuedOrder{order}})
	src.emit(queue.StateSnapshot{Orders: []models.QueuedOrder{order}})

	msgs := sender.messages()
	require.Len(t, msgs, 1, "a stuck order alerts exactly once")
	assert.EqualValues(t, 42, msgs[0].ChatID)
	assert.Contains(t, msgs[0].Text, "stuck after 5 attempts")
	assert.Contains(t, msgs[0].Text, "CHF 9.00")
	assert.Contains(t, msgs[0].Text, "backend unavailable")
}

func TestReAlertsAfterRetryFailsAgain(t *testing.T) {
	_, sender, src := newNotifier(t)

	order := failedOrder("order-2")
	src.emit(queue.StateSnapshot{Orders: []models.QueuedOrder{order}})

	// Staff hit retry: the order goes back to pending, then fails again.
	retried := order
	retried.Status = models.StatusPending
	src.emit(queue.StateSnapshot{Orders: []models.QueuedOrder{retried}})

	failedAgain := order
	failedAgain.AttemptCount = 6
	src.emit(queue.StateSnapshot{Orders: []models.QueuedOrder{failedAgain}})

	msgs := sender.messages()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1].Text, "stuck after 6 attempts")
}

func TestIgnoresHealthyOrders(t *testing.T) {
	_, sender, src := newNotifier(t)

	pending := failedOrder("order-3")
	pending.Status = models.StatusPending
	synced := failedOrder("order-4")
	synced.Status = models.StatusSynced

	src.emit(queue.StateSnapshot{Orders: []models.QueuedOrder{pending, synced}})
	assert.Empty(t, sender.messages())
}

func TestGratisTypeAppearsInAlert(t *testing.T) {
	_, sender, src := newNotifier(t)

	order := failedOrder("order-5")
	order.GratisInfo = &models.GratisInfo{Type: models.GratisVIP}
	src.emit(queue.StateSnapshot{Orders: []models.QueuedOrder{order}})

	msgs := sender.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Text, "Gratis: "+models.GratisVIP)
}

func TestStopDetaches(t *testing.T) {
	n, sender, src := newNotifier(t)
	n.Stop()

	src.emit(queue.StateSnapshot{Orders: []models.QueuedOrder{failedOrder("order-6")}})
	assert.Empty(t, sender.messages())
}
