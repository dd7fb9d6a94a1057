package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/timberdayz/datahub/internal/domain/shared"
	"github.com/timberdayz/datahub/internal/domain/views"
	"gorm.io/gorm"
)

// GormRefreshLogRepository implements views.RefreshLogRepository using GORM
type GormRefreshLogRepository struct {
	db *gorm.DB
}

// NewGormRefreshLogRepository creates a new GormRefreshLogRepository
func NewGormRefreshLogRepository(db *gorm.DB) *GormRefreshLogRepository {
	return &GormRefreshLogRepository{db: db}
}

var _ views.RefreshLogRepository = (*GormRefreshLogRepository)(nil)

// Save appends a refresh log entry
func (r *GormRefreshLogRepository) Save(ctx context.Context, log *views.RefreshLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

// Update persists status changes to a running entry
func (r *GormRefreshLogRepository) Update(ctx context.Context, log *views.RefreshLog) error {
	return r.db.WithContext(ctx).Save(log).Error
}

// LastSuccess returns the most recent successful refresh for a view
func (r *GormRefreshLogRepository) LastSuccess(ctx context.Context, viewName string) (*views.RefreshLog, error) {
	return r.findLast(ctx, viewName, string(views.RefreshSuccess))
}

// Last returns the most recent refresh attempt for a view
func (r *GormRefreshLogRepository) Last(ctx context.Context, viewName string) (*views.RefreshLog, error) {
	return r.findLast(ctx, viewName, "")
}

func (r *GormRefreshLogRepository) findLast(ctx context.Context, viewName, status string) (*views.RefreshLog, error) {
	var log views.RefreshLog
	q := r.db.WithContext(ctx).Where("view_name = ?", viewName)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Order("started_at DESC").First(&log).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &log, nil
}

// FindByView returns the refresh history for a view, newest first
func (r *GormRefreshLogRepository) FindByView(ctx context.Context, viewName string, limit int) ([]views.RefreshLog, error) {
	var logs []views.RefreshLog
	q := r.db.WithContext(ctx).
		Where("view_name = ?", viewName).
		Order("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

// Freshness answers the staleness query for one view
func (r *GormRefreshLogRepository) Freshness(ctx context.Context, viewName string, now time.Time) (*views.Freshness, error) {
	f := &views.Freshness{ViewName: viewName}

	last, err := r.Last(ctx, viewName)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			f.NeverRefreshed = true
			return f, nil
		}
		return nil, err
	}
	f.LastStatus = last.Status
	f.LastError = last.Error

	success, err := r.LastSuccess(ctx, viewName)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			f.NeverRefreshed = true
			return f, nil
		}
		return nil, err
	}
	completed := success.CompletedAt
	f.LastSuccessAt = completed
	f.LastRowCount = success.RowCount
	if completed != nil {
		f.StalenessMins = now.Sub(*completed).Minutes()
	}
	return f, nil
}
