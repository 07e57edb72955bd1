package queue

import "errors"

var (
	ErrNotFound     = errors.New("order not found")
	ErrNotFailed    = errors.New("order is not in failed state")
	ErrSyncInFlight = errors.New("submission attempt is in flight")
	ErrNotMutable   = errors.New("order can no longer be modified")
	ErrClosed       = errors.New("queue manager is closed")
	ErrNoItems      = errors.New("order has no items")
	ErrBadPayment   = errors.New("unknown payment method")
	ErrBadTotal     = errors.New("total must not be negative")
)
