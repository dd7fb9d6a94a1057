package persistence

import (
	"context"
	"errors"

	"github.com/timberdayz/datahub/internal/domain/catalog"
	"github.com/timberdayz/datahub/internal/domain/ingest"
	"github.com/timberdayz/datahub/internal/domain/shared"
	"gorm.io/gorm"
)

// GormSyncPointRepository implements ingest.SyncPointRepository using GORM
type GormSyncPointRepository struct {
	db *gorm.DB
}

// NewGormSyncPointRepository creates a new GormSyncPointRepository
func NewGormSyncPointRepository(db *gorm.DB) *GormSyncPointRepository {
	return &GormSyncPointRepository{db: db}
}

var _ ingest.SyncPointRepository = (*GormSyncPointRepository)(nil)

// Find returns the sync point for one scope
func (r *GormSyncPointRepository) Find(ctx context.Context, platform catalog.Platform, account string, domain catalog.DataDomain) (*ingest.SyncPoint, error) {
	var point ingest.SyncPoint
	if err := r.db.WithContext(ctx).
		Where("platform = ? AND account = ? AND domain = ?", platform, account, domain).
		First(&point).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &point, nil
}

// Save persists a sync point. Note the orchestrator normally saves sync
// points through RowRepository.UpsertBatch so advancement commits
// atomically with the batch; this standalone save exists for seeding.
func (r *GormSyncPointRepository) Save(ctx context.Context, point *ingest.SyncPoint) error {
	return r.db.WithContext(ctx).Save(point).Error
}
