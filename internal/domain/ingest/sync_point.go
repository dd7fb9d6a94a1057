package ingest

import (
	"time"

	"github.com/timberdayz/datahub/internal/domain/catalog"
	"github.com/timberdayz/datahub/internal/domain/shared"
)

// SyncPoint is the bookmark marking how far incremental collection has
// progressed for one (platform, account, domain). It advances only after
// a batch is durably committed; a crash mid-batch leaves it at the prior
// value so the next run re-covers the same window (at-least-once,
// deduplicated by the natural-key upsert).
type SyncPoint struct {
	shared.BaseEntity
	Platform    catalog.Platform   `gorm:"not null;uniqueIndex:uq_sync_scope"`
	Account     string             `gorm:"not null;uniqueIndex:uq_sync_scope"`
	Domain      catalog.DataDomain `gorm:"not null;uniqueIndex:uq_sync_scope"`
	LastSyncAt  *time.Time
	LastValue   string // domain-specific watermark (e.g. max order date seen)
	RecordCount int64  `gorm:"not null;default:0"`
	BatchCount  int64  `gorm:"not null;default:0"`
}

// TableName returns the database table name
func (SyncPoint) TableName() string {
	return "sync_points"
}

// NewSyncPoint creates the bookmark for one scope.
func NewSyncPoint(platform catalog.Platform, account string, domain catalog.DataDomain) (*SyncPoint, error) {
	if platform == "" || account == "" {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Sync-point scope is incomplete")
	}
	if !domain.IsValid() {
		return nil, shared.NewDomainErrorf(shared.CodeInvalidInput, "Invalid data domain: %s", domain)
	}
	return &SyncPoint{
		BaseEntity: shared.NewBaseEntity(),
		Platform:   platform,
		Account:    account,
		Domain:     domain,
	}, nil
}

// Advance moves the bookmark forward after a committed batch. The
// watermark never moves backwards.
func (s *SyncPoint) Advance(syncedAt time.Time, watermark string, records int64) error {
	if records < 0 {
		return shared.NewDomainError(shared.CodeInvalidInput, "Record count cannot be negative")
	}
	if s.LastSyncAt != nil && syncedAt.Before(*s.LastSyncAt) {
		return shared.NewDomainError(shared.CodeInvalidState, "Sync point cannot move backwards")
	}
	s.LastSyncAt = &syncedAt
	// Ingesting an older file after a newer one must not regress the
	// watermark; watermarks are date strings, so the comparison is lexical.
	if watermark != "" && watermark > s.LastValue {
		s.LastValue = watermark
	}
	s.RecordCount += records
	s.BatchCount++
	s.UpdatedAt = time.Now()
	return nil
}

// WindowStart returns the lower bound for the next incremental fetch.
// Zero time means a full fetch.
func (s *SyncPoint) WindowStart() time.Time {
	if s.LastSyncAt == nil {
		return time.Time{}
	}
	return *s.LastSyncAt
}
