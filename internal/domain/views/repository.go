package views

import (
	"context"
	"time"
)

// RefreshLogRepository persists the refresh audit trail.
type RefreshLogRepository interface {
	Save(ctx context.Context, log *RefreshLog) error
	Update(ctx context.Context, log *RefreshLog) error
	LastSuccess(ctx context.Context, viewName string) (*RefreshLog, error)
	Last(ctx context.Context, viewName string) (*RefreshLog, error)
	FindByView(ctx context.Context, viewName string, limit int) ([]RefreshLog, error)
	Freshness(ctx context.Context, viewName string, now time.Time) (*Freshness, error)
}
