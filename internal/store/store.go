package store

import (
	"context"

	"tillsync/internal/models"
)

// Store is the durable home of the order queue. Load and Save are the only
// operations; the queue manager owns all querying and mutation.
type Store interface {
	// Load returns the persisted queue in creation order.
	Load(ctx context.Context) ([]models.QueuedOrder, error)
	// Save replaces the persisted queue atomically. A crash mid-save must
	// leave either the old list or the new one, never a torn mix.
	Save(ctx context.Context, orders []models.QueuedOrder) error
	Close() error
}
