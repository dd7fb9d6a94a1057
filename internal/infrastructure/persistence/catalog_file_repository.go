package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/timberdayz/datahub/internal/domain/catalog"
	"github.com/timberdayz/datahub/internal/domain/shared"
	"gorm.io/gorm"
)

// GormFileRepository implements catalog.FileRepository using GORM
type GormFileRepository struct {
	db *gorm.DB
}

// NewGormFileRepository creates a new GormFileRepository
func NewGormFileRepository(db *gorm.DB) *GormFileRepository {
	return &GormFileRepository{db: db}
}

var _ catalog.FileRepository = (*GormFileRepository)(nil)

// Save persists a catalog file
func (r *GormFileRepository) Save(ctx context.Context, file *catalog.CatalogFile) error {
	return r.db.WithContext(ctx).Save(file).Error
}

// FindByID finds a catalog file by its ID
func (r *GormFileRepository) FindByID(ctx context.Context, id uuid.UUID) (*catalog.CatalogFile, error) {
	var file catalog.CatalogFile
	if err := r.db.WithContext(ctx).First(&file, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &file, nil
}

// FindByPath finds the most recent catalog file for a path
func (r *GormFileRepository) FindByPath(ctx context.Context, path string) (*catalog.CatalogFile, error) {
	var file catalog.CatalogFile
	if err := r.db.WithContext(ctx).
		Where("path = ?", path).
		Order("created_at DESC").
		First(&file).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &file, nil
}

// FindByStatus finds files in the given status, oldest first
func (r *GormFileRepository) FindByStatus(ctx context.Context, status catalog.FileStatus, limit int) ([]catalog.CatalogFile, error) {
	var files []catalog.CatalogFile
	q := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&files).Error; err != nil {
		return nil, err
	}
	return files, nil
}

// FindByScope finds files for one (platform, account, domain), newest first
func (r *GormFileRepository) FindByScope(ctx context.Context, platform catalog.Platform, account string, domain catalog.DataDomain, limit int) ([]catalog.CatalogFile, error) {
	var files []catalog.CatalogFile
	q := r.db.WithContext(ctx).
		Where("platform = ? AND account = ? AND domain = ?", platform, account, domain).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&files).Error; err != nil {
		return nil, err
	}
	return files, nil
}
