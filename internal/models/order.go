package models

import "time"

// PaymentMethod is the tender selected at the till.
type PaymentMethod string

const (
	PaymentCash  PaymentMethod = "cash"
	PaymentCard  PaymentMethod = "card"
	PaymentTwint PaymentMethod = "twint"
)

// ValidPaymentMethod reports whether m is a known tender.
func ValidPaymentMethod(m PaymentMethod) bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentTwint:
		return true
	}
	return false
}

// OrderStatus is the sync state of a queued order.
type OrderStatus string

const (
	StatusPending OrderStatus = "pending"
	StatusSyncing OrderStatus = "syncing"
	StatusSynced  OrderStatus = "synced"
	StatusFailed  OrderStatus = "failed"
)

// OrderItem is one line of an order as entered at the till.
type OrderItem struct {
	ProductID string            `json:"product_id"`
	Name      string            `json:"name"`
	Quantity  int               `json:"quantity"`
	UnitCents int64             `json:"unit_cents"`
	Options   map[string]string `json:"options,omitempty"`
}

// GratisInfo tags a zero-charge order with the reason it is free.
// Carried to the receipt and to reporting.
type GratisInfo struct {
	Type         string `json:"type"` // guest, vip, staff, 100club
	MemberID     string `json:"member_id,omitempty"`
	MemberName   string `json:"member_name,omitempty"`
	FreeQuantity int    `json:"free_quantity,omitempty"`
}

// ReceiptItem is a denormalized receipt line captured at enqueue time.
type ReceiptItem struct {
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
	PriceCents int64  `json:"price_cents"`
}

// ReceiptData is a snapshot taken when the order is queued so a receipt
// can be printed even while the backend is unreachable.
type ReceiptData struct {
	Items          []ReceiptItem `json:"items"`
	PickupCode     string        `json:"pickup_code,omitempty"`
	OrderTimestamp time.Time     `json:"order_timestamp"`
}

// QueuedOrder is the unit of work in the sync queue. LocalID doubles as
// the idempotency key for remote submission and is never regenerated.
type QueuedOrder struct {
	LocalID       string         `json:"local_id"`
	ServerID      string         `json:"server_id,omitempty"`
	Items         []OrderItem    `json:"items"`
	TotalCents    int64          `json:"total_cents"`
	PaymentMethod PaymentMethod  `json:"payment_method"`
	GratisInfo    *GratisInfo    `json:"gratis_info,omitempty"`
	ReceiptData   *ReceiptData   `json:"receipt_data,omitempty"`
	Status        OrderStatus    `json:"status"`
	AttemptCount  int            `json:"attempt_count"`
	LastError     string         `json:"last_error,omitempty"`
	LastAttemptAt *time.Time     `json:"last_attempt_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Mutable reports whether payment details may still be changed.
func (o *QueuedOrder) Mutable() bool {
	return o.Status == StatusPending || o.Status == StatusFailed
}
