package notify

import (
	"fmt"
	"strings"
	"sync"

	"tillsync/internal/models"
	"tillsync/internal/queue"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Sender is the slice of the Telegram bot API the notifier needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// StateSource is the slice of the queue manager the notifier observes.
type StateSource interface {
	OnStateChange(queue.StateListener) func()
}

// StuckOrderNotifier pings the venue-manager chat when an order exhausts its
// retry budget and is waiting on a manual decision. One alert per order;
// an order that is retried and fails again alerts again.
type StuckOrderNotifier struct {
	sender Sender
	chatID int64
	logger zerolog.Logger

	mu      sync.Mutex
	alerted map[string]bool
	unsub   func()
}

func NewStuckOrderNotifier(sender Sender, chatID int64, logger *zerolog.Logger) *StuckOrderNotifier {
	return &StuckOrderNotifier{
		sender:  sender,
		chatID:  chatID,
		logger:  logger.With().Str("component", "stuck-order-notifier").Logger(),
		alerted: make(map[string]bool),
	}
}

// Attach subscribes to queue state changes. Call Stop to detach.
func (n *StuckOrderNotifier) Attach(src StateSource) {
	n.unsub = src.OnStateChange(n.handleState)
}

func (n *StuckOrderNotifier) Stop() {
	if n.unsub != nil {
		n.unsub()
		n.unsub = nil
	}
}

func (n *StuckOrderNotifier) handleState(snap queue.StateSnapshot) {
	failed := make(map[string]models.QueuedOrder)
	for _, o := range snap.Orders {
		if o.Status == models.StatusFailed {
			failed[o.LocalID] = o
		}
	}

	n.mu.Lock()
	// Forget orders that left the failed state so a later failure re-alerts.
	for id := range n.alerted {
		if _, still := failed[id]; !still {
			delete(n.alerted, id)
		}
	}
	var fresh []models.QueuedOrder
	for id, o := range failed {
		if !n.alerted[id] {
			n.alerted[id] = true
			fresh = append(fresh, o)
		}
	}
	n.mu.Unlock()

	for _, o := range fresh {
		msg := tgbotapi.NewMessage(n.chatID, formatStuckOrder(o))
		if _, err := n.sender.Send(msg); err != nil {
			n.logger.Error().Err(err).Str("local_id", o.LocalID).Msg("failed to send stuck-order alert")
		}
	}
}

func formatStuckOrder(o models.QueuedOrder) string {
	var b strings.Builder
	fmt.Fprintf(&b, "POS order stuck after %d attempts\n", o.AttemptCount)
	fmt.Fprintf(&b, "Order: %s\n", shortID(o.LocalID))
	fmt.Fprintf(&b, "Amount: CHF %.2f (%s)\n", float64(o.TotalCents)/100, o.PaymentMethod)
	fmt.Fprintf(&b, "Items: %d\n", len(o.Items))
	if o.GratisInfo != nil {
		fmt.Fprintf(&b, "Gratis: %s\n", o.GratisInfo.Type)
	}
	if o.LastError != "" {
		fmt.Fprintf(&b, "Last error: %s\n", o.LastError)
	}
	b.WriteString("Retry or delete it from the till.")
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
