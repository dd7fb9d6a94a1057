package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/timberdayz/datahub/internal/domain/catalog"
)

// RowRepository persists canonical rows and metric facts. Writes are
// upserts on the natural key, never insert-only.
type RowRepository interface {
	// UpsertBatch writes rows and facts in one transaction and, when sync
	// is non-nil, saves the advanced sync point inside the same
	// transaction. A crash before commit leaves the sync point untouched.
	UpsertBatch(ctx context.Context, rows []*CanonicalRow, facts []*MetricFact, sync *SyncPoint) error
	FindByKey(ctx context.Context, key NaturalKey) (*CanonicalRow, error)
	// RowsByCatalogFile answers lineage queries: which rows a file produced.
	RowsByCatalogFile(ctx context.Context, sourceCatalogID uuid.UUID) ([]CanonicalRow, error)
	FactsByKey(ctx context.Context, key NaturalKey) ([]MetricFact, error)
	CountByScope(ctx context.Context, platform catalog.Platform, account string, domain catalog.DataDomain) (int64, error)
	// ReconcilePendingParents clears parent_pending on variant rows whose
	// product-level parent now exists; returns how many were cleared.
	ReconcilePendingParents(ctx context.Context, platform catalog.Platform, account string) (int64, error)
}

// QuarantineRepository persists rejected rows.
type QuarantineRepository interface {
	Save(ctx context.Context, record *QuarantineRecord) error
	SaveBatch(ctx context.Context, records []*QuarantineRecord) error
	FindByCatalogFile(ctx context.Context, sourceCatalogID uuid.UUID) ([]QuarantineRecord, error)
	CountOpenByCatalogFile(ctx context.Context, sourceCatalogID uuid.UUID) (int64, error)
	// ResolveOpenByCatalogFile closes every open record of one file with
	// the given note; returns how many were closed. Used when a re-ingest
	// supersedes the run that produced them.
	ResolveOpenByCatalogFile(ctx context.Context, sourceCatalogID uuid.UUID, note string) (int64, error)
	FindByID(ctx context.Context, id uuid.UUID) (*QuarantineRecord, error)
	Update(ctx context.Context, record *QuarantineRecord) error
}

// SyncPointRepository persists incremental-collection bookmarks.
type SyncPointRepository interface {
	Find(ctx context.Context, platform catalog.Platform, account string, domain catalog.DataDomain) (*SyncPoint, error)
	Save(ctx context.Context, point *SyncPoint) error
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production clock.
type SystemClock struct{}

// Now returns the current time
func (SystemClock) Now() time.Time { return time.Now() }
