// Package lock provides mutual exclusion for ingestion scopes. Two files
// touching the same (platform, account, domain) must never ingest
// concurrently; coarser exclusion than that is not required.
package lock

import (
	"context"
	"fmt"
	"sync"

	"github.com/timberdayz/datahub/internal/domain/catalog"
	"github.com/timberdayz/datahub/internal/domain/shared"
)

// ScopeKey identifies one ingestion mutual-exclusion scope.
type ScopeKey struct {
	Platform catalog.Platform
	Account  string
	Domain   catalog.DataDomain
}

// String renders the key for lock names and logs
func (k ScopeKey) String() string {
	return fmt.Sprintf("%s:%s:%s", k.Platform, k.Account, k.Domain)
}

// ScopeLocker acquires and releases ingestion scope locks. Acquire fails
// fast with a SCOPE_LOCKED domain error when the scope is held; callers
// surface that to operators rather than queueing.
type ScopeLocker interface {
	Acquire(ctx context.Context, key ScopeKey) (release func(), err error)
}

// MemoryLocker is the single-process implementation.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[ScopeKey]struct{}
}

// NewMemoryLocker creates a new in-process scope locker
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[ScopeKey]struct{})}
}

var _ ScopeLocker = (*MemoryLocker)(nil)

// Acquire takes the scope lock or fails fast if it is held
func (l *MemoryLocker) Acquire(_ context.Context, key ScopeKey) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[key]; ok {
		return nil, shared.NewDomainErrorf(shared.CodeScopeLocked,
			"Ingestion scope %s is already being processed", key)
	}
	l.held[key] = struct{}{}

	var once sync.Once
	release := func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}
	return release, nil
}
