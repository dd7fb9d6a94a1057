package persistence

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Aggregate view names served by the rebuilder.
const (
	ViewDailyMetrics = "agg_daily_metrics"
	ViewSKUActivity  = "agg_sku_activity"
)

// ViewRebuilder recomputes the aggregate tables from canonical data.
// Each rebuild is a delete-plus-insert inside one transaction, so readers
// either see the old snapshot or the new one, never a partial rebuild.
type ViewRebuilder struct {
	db *gorm.DB
}

// NewViewRebuilder creates the aggregate rebuilder
func NewViewRebuilder(db *gorm.DB) *ViewRebuilder {
	return &ViewRebuilder{db: db}
}

// RebuildDailyMetrics recomputes the per-day metric rollup from the
// narrow fact table.
func (r *ViewRebuilder) RebuildDailyMetrics(ctx context.Context) (int64, error) {
	var rows int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM agg_daily_metrics").Error; err != nil {
			return fmt.Errorf("failed to clear daily metrics: %w", err)
		}
		res := tx.Exec(`
			INSERT INTO agg_daily_metrics
				(platform, account, metric_date, metric_type, status,
				 amount_base_total, amount_original_total, fact_count, refreshed_at)
			SELECT platform, account, metric_date, metric_type, status,
			       SUM(COALESCE(amount_base, 0)),
			       SUM(amount_original),
			       COUNT(*),
			       ?
			FROM metric_facts
			GROUP BY platform, account, metric_date, metric_type, status`,
			time.Now().UTC())
		if res.Error != nil {
			return fmt.Errorf("failed to rebuild daily metrics: %w", res.Error)
		}
		rows = res.RowsAffected
		return nil
	})
	return rows, err
}

// RebuildSKUActivity recomputes the per-SKU activity summary from the
// canonical row table.
func (r *ViewRebuilder) RebuildSKUActivity(ctx context.Context) (int64, error) {
	var rows int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM agg_sku_activity").Error; err != nil {
			return fmt.Errorf("failed to clear sku activity: %w", err)
		}
		res := tx.Exec(`
			INSERT INTO agg_sku_activity
				(platform, account, entity_key, sku_scope,
				 row_count, first_metric_date, last_metric_date, refreshed_at)
			SELECT platform, account, entity_key, sku_scope,
			       COUNT(*),
			       MIN(metric_date),
			       MAX(metric_date),
			       ?
			FROM canonical_rows
			GROUP BY platform, account, entity_key, sku_scope`,
			time.Now().UTC())
		if res.Error != nil {
			return fmt.Errorf("failed to rebuild sku activity: %w", res.Error)
		}
		rows = res.RowsAffected
		return nil
	})
	return rows, err
}
