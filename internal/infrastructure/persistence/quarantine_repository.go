package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/timberdayz/datahub/internal/domain/ingest"
	"github.com/timberdayz/datahub/internal/domain/shared"
	"gorm.io/gorm"
)

// GormQuarantineRepository implements ingest.QuarantineRepository using GORM
type GormQuarantineRepository struct {
	db *gorm.DB
}

// NewGormQuarantineRepository creates a new GormQuarantineRepository
func NewGormQuarantineRepository(db *gorm.DB) *GormQuarantineRepository {
	return &GormQuarantineRepository{db: db}
}

var _ ingest.QuarantineRepository = (*GormQuarantineRepository)(nil)

// Save persists one quarantine record
func (r *GormQuarantineRepository) Save(ctx context.Context, record *ingest.QuarantineRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// SaveBatch persists quarantine records in one transaction
func (r *GormQuarantineRepository) SaveBatch(ctx context.Context, records []*ingest.QuarantineRecord) error {
	if len(records) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(records, 200).Error
}

// FindByCatalogFile returns all quarantine records for one file, in row order
func (r *GormQuarantineRepository) FindByCatalogFile(ctx context.Context, sourceCatalogID uuid.UUID) ([]ingest.QuarantineRecord, error) {
	var records []ingest.QuarantineRecord
	if err := r.db.WithContext(ctx).
		Where("source_catalog_id = ?", sourceCatalogID).
		Order("row_number ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// CountOpenByCatalogFile counts unresolved quarantine records for one file
func (r *GormQuarantineRepository) CountOpenByCatalogFile(ctx context.Context, sourceCatalogID uuid.UUID) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&ingest.QuarantineRecord{}).
		Where("source_catalog_id = ? AND resolution = ?", sourceCatalogID, ingest.ResolutionOpen).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// ResolveOpenByCatalogFile closes all open records of one file in a
// single update, stamping the note and resolution time
func (r *GormQuarantineRepository) ResolveOpenByCatalogFile(ctx context.Context, sourceCatalogID uuid.UUID, note string) (int64, error) {
	now := time.Now()
	res := r.db.WithContext(ctx).
		Model(&ingest.QuarantineRecord{}).
		Where("source_catalog_id = ? AND resolution = ?", sourceCatalogID, ingest.ResolutionOpen).
		Updates(map[string]any{
			"resolution":      ingest.ResolutionResolved,
			"resolution_note": note,
			"resolved_at":     now,
			"updated_at":      now,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// FindByID finds one quarantine record
func (r *GormQuarantineRepository) FindByID(ctx context.Context, id uuid.UUID) (*ingest.QuarantineRecord, error) {
	var record ingest.QuarantineRecord
	if err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

// Update persists resolution changes
func (r *GormQuarantineRepository) Update(ctx context.Context, record *ingest.QuarantineRecord) error {
	return r.db.WithContext(ctx).Save(record).Error
}
