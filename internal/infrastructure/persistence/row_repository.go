package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/timberdayz/datahub/internal/domain/catalog"
	"github.com/timberdayz/datahub/internal/domain/ingest"
	"github.com/timberdayz/datahub/internal/domain/shared"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// canonicalKeyColumns is the natural key the upsert conflicts on. Insert-only
// writes would duplicate facts on re-ingest; the key keeps them idempotent.
var canonicalKeyColumns = []clause.Column{
	{Name: "platform"},
	{Name: "account"},
	{Name: "entity_key"},
	{Name: "metric_date"},
	{Name: "granularity"},
	{Name: "sku_scope"},
}

var metricFactKeyColumns = []clause.Column{
	{Name: "platform"},
	{Name: "account"},
	{Name: "entity_key"},
	{Name: "metric_date"},
	{Name: "granularity"},
	{Name: "sku_scope"},
	{Name: "metric_type"},
	{Name: "status"},
}

// GormRowRepository implements ingest.RowRepository using GORM
type GormRowRepository struct {
	db *gorm.DB
}

// NewGormRowRepository creates a new GormRowRepository
func NewGormRowRepository(db *gorm.DB) *GormRowRepository {
	return &GormRowRepository{db: db}
}

var _ ingest.RowRepository = (*GormRowRepository)(nil)

// UpsertBatch writes canonical rows and metric facts in one transaction,
// upserting on the natural keys. The sync point, when given, is saved in
// the same transaction so it never advances ahead of the batch commit.
func (r *GormRowRepository) UpsertBatch(ctx context.Context, rows []*ingest.CanonicalRow, facts []*ingest.MetricFact, sync *ingest.SyncPoint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(rows) > 0 {
			if err := tx.Clauses(clause.OnConflict{
				Columns: canonicalKeyColumns,
				DoUpdates: clause.AssignmentColumns([]string{
					"domain", "parent_sku", "parent_pending",
					"fields", "attributes",
					"source_catalog_id", "source_row_number", "updated_at",
				}),
			}).Create(rows).Error; err != nil {
				return err
			}
		}
		if len(facts) > 0 {
			if err := tx.Clauses(clause.OnConflict{
				Columns: metricFactKeyColumns,
				DoUpdates: clause.AssignmentColumns([]string{
					"currency_original", "amount_original", "amount_base", "rate_used",
					"source_catalog_id", "source_row_number", "updated_at",
				}),
			}).Create(facts).Error; err != nil {
				return err
			}
		}
		if sync != nil {
			if err := tx.Save(sync).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// FindByKey finds the canonical row for one natural key
func (r *GormRowRepository) FindByKey(ctx context.Context, key ingest.NaturalKey) (*ingest.CanonicalRow, error) {
	var row ingest.CanonicalRow
	if err := r.scopeKey(r.db.WithContext(ctx), key).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &row, nil
}

// RowsByCatalogFile returns the rows a file produced (lineage query)
func (r *GormRowRepository) RowsByCatalogFile(ctx context.Context, sourceCatalogID uuid.UUID) ([]ingest.CanonicalRow, error) {
	var rows []ingest.CanonicalRow
	if err := r.db.WithContext(ctx).
		Where("source_catalog_id = ?", sourceCatalogID).
		Order("source_row_number ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// FactsByKey returns the metric facts attached to one natural key
func (r *GormRowRepository) FactsByKey(ctx context.Context, key ingest.NaturalKey) ([]ingest.MetricFact, error) {
	var facts []ingest.MetricFact
	if err := r.scopeKey(r.db.WithContext(ctx).Model(&ingest.MetricFact{}), key).
		Order("metric_type ASC, status ASC").
		Find(&facts).Error; err != nil {
		return nil, err
	}
	return facts, nil
}

// CountByScope counts canonical rows for one (platform, account, domain)
func (r *GormRowRepository) CountByScope(ctx context.Context, platform catalog.Platform, account string, domain catalog.DataDomain) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&ingest.CanonicalRow{}).
		Where("platform = ? AND account = ? AND domain = ?", platform, account, domain).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// ReconcilePendingParents clears parent_pending on variant rows whose
// product-level parent row now exists.
func (r *GormRowRepository) ReconcilePendingParents(ctx context.Context, platform catalog.Platform, account string) (int64, error) {
	result := r.db.WithContext(ctx).Exec(`
		UPDATE canonical_rows
		SET parent_pending = ?, updated_at = ?
		WHERE platform = ? AND account = ?
		  AND sku_scope = ? AND parent_pending = ?
		  AND parent_sku IS NOT NULL
		  AND EXISTS (
			SELECT 1 FROM canonical_rows p
			WHERE p.platform = canonical_rows.platform
			  AND p.account = canonical_rows.account
			  AND p.entity_key = canonical_rows.parent_sku
			  AND p.sku_scope = ?
		  )`,
		false, time.Now(),
		platform, account,
		ingest.ScopeVariant, true,
		ingest.ScopeProduct,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *GormRowRepository) scopeKey(q *gorm.DB, key ingest.NaturalKey) *gorm.DB {
	return q.Where(
		"platform = ? AND account = ? AND entity_key = ? AND metric_date = ? AND granularity = ? AND sku_scope = ?",
		key.Platform, key.Account, key.EntityKey, key.MetricDate, key.Granularity, key.SkuScope,
	)
}
