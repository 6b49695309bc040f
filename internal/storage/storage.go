// Package storage persists collection entries. Entries are append-only: there is no update
// or delete, and each collection keeps its insertion order.
package storage

import (
	"context"

	"github.com/Marvins20/ai-ethics-multiagents/internal/models"
)

// Storage defines entry persistence operations.
type Storage interface {
	// InsertEntries appends entries to a collection in one transaction.
	InsertEntries(ctx context.Context, collection string, entries []models.Entry) error
	// ListEntries returns a collection's entries in insertion order.
	ListEntries(ctx context.Context, collection string) ([]models.Entry, error)
	CountEntries(ctx context.Context, collection string) (int, error)
	Collections(ctx context.Context) ([]string, error)

	Close() error
}
