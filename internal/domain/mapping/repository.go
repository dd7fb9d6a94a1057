package mapping

import (
	"context"
)

// EntryRepository loads dictionary entries from the mapping-configuration
// store. Entries are versioned and append-only.
type EntryRepository interface {
	Save(ctx context.Context, entry *Entry) error
	FindByScope(ctx context.Context, scope Scope) ([]Entry, error)
	// LoadSnapshot loads all active entries for a scope and compiles them
	// into an immutable dictionary.
	LoadSnapshot(ctx context.Context, scope Scope) (*Dictionary, error)
}
