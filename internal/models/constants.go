package models

import "time"

const (
	// MaxSyncAttempts is the retry budget before an order needs manual action.
	MaxSyncAttempts = 5

	// InitialRetryDelay seeds the exponential backoff between attempts.
	InitialRetryDelay = 2 * time.Second

	// MaxRetryDelay caps the backoff.
	MaxRetryDelay = 32 * time.Second

	// SyncInterval is the safety-net timer for missed sync triggers.
	SyncInterval = 30 * time.Second
)

const (
	GratisGuest   = "guest"
	GratisVIP     = "vip"
	GratisStaff   = "staff"
	Gratis100Club = "100club"
)
