package persistence

import (
	"context"

	"github.com/timberdayz/datahub/internal/domain/mapping"
	"gorm.io/gorm"
)

// GormMappingRepository implements mapping.EntryRepository using GORM
type GormMappingRepository struct {
	db *gorm.DB
}

// NewGormMappingRepository creates a new GormMappingRepository
func NewGormMappingRepository(db *gorm.DB) *GormMappingRepository {
	return &GormMappingRepository{db: db}
}

var _ mapping.EntryRepository = (*GormMappingRepository)(nil)

// Save persists a dictionary entry. Entries are append-only; corrections
// arrive as new versions.
func (r *GormMappingRepository) Save(ctx context.Context, entry *mapping.Entry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// FindByScope returns all entries for a scope, stable declaration order
func (r *GormMappingRepository) FindByScope(ctx context.Context, scope mapping.Scope) ([]mapping.Entry, error) {
	var entries []mapping.Entry
	if err := r.db.WithContext(ctx).
		Where("platform = ? AND domain = ? AND sub_domain = ?", scope.Platform, scope.Domain, scope.SubDomain).
		Order("version ASC, position ASC, created_at ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// LoadSnapshot loads and compiles the active entries for a scope into an
// immutable dictionary. Conflicting rules surface here as configuration
// errors, before any ingestion starts.
func (r *GormMappingRepository) LoadSnapshot(ctx context.Context, scope mapping.Scope) (*mapping.Dictionary, error) {
	entries, err := r.FindByScope(ctx, scope)
	if err != nil {
		return nil, err
	}
	return mapping.LoadDictionary(scope, entries)
}
