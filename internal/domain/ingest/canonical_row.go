package ingest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/timberdayz/datahub/internal/domain/catalog"
	"github.com/timberdayz/datahub/internal/domain/shared"
	"github.com/timberdayz/datahub/internal/domain/shared/valueobject"
)

// SKUScope distinguishes product-level from variant-level records of the
// same nominal SKU. It is part of the natural key, so the two never
// collide; downstream aggregation decides whether variants roll up.
type SKUScope string

const (
	ScopeProduct SKUScope = "product"
	ScopeVariant SKUScope = "variant"
)

// NaturalKey is the business-meaningful tuple identifying one fact.
type NaturalKey struct {
	Platform    catalog.Platform
	Account     string
	EntityKey   string
	MetricDate  time.Time
	Granularity catalog.Granularity
	SkuScope    SKUScope
}

// String renders the key for logs and lock names
func (k NaturalKey) String() string {
	return fmt.Sprintf("%s/%s/%s/%s/%s/%s",
		k.Platform, k.Account, k.EntityKey,
		k.MetricDate.Format("2006-01-02"), k.Granularity, k.SkuScope)
}

// CanonicalRow is the normalized output of one source row. Exactly one
// non-quarantined canonical row exists per natural key; re-ingestion
// upserts by key rather than appending.
type CanonicalRow struct {
	shared.BaseEntity
	Platform    catalog.Platform    `gorm:"not null;uniqueIndex:uq_canonical_key"`
	Account     string              `gorm:"not null;uniqueIndex:uq_canonical_key"`
	Domain      catalog.DataDomain  `gorm:"not null;index"`
	EntityKey   string              `gorm:"not null;uniqueIndex:uq_canonical_key"`
	MetricDate  time.Time           `gorm:"not null;uniqueIndex:uq_canonical_key;type:date"`
	Granularity catalog.Granularity `gorm:"not null;uniqueIndex:uq_canonical_key"`
	SkuScope    SKUScope            `gorm:"not null;uniqueIndex:uq_canonical_key"`

	ParentSKU     *string `gorm:"index"`
	ParentPending bool    `gorm:"not null;default:false;index"`

	// Canonical target columns keyed by target_column name.
	FieldsJSON string `gorm:"column:fields;type:text"`
	// Unmapped headers are preserved here, never dropped.
	AttributesJSON string `gorm:"column:attributes;type:text"`

	// Provenance: the file this row came from. Re-running ingestion for a
	// corrected file supersedes rows for the same key.
	SourceCatalogID uuid.UUID `gorm:"type:uuid;not null;index"`
	SourceRowNumber int       `gorm:"not null;default:0"`
}

// TableName returns the database table name
func (CanonicalRow) TableName() string {
	return "canonical_rows"
}

// NewCanonicalRow creates a canonical row for a natural key.
func NewCanonicalRow(key NaturalKey, domain catalog.DataDomain, sourceCatalogID uuid.UUID, sourceRow int) (*CanonicalRow, error) {
	if key.Platform == "" || key.Account == "" || key.EntityKey == "" {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Natural key is incomplete")
	}
	if key.SkuScope == "" {
		key.SkuScope = ScopeProduct
	}
	return &CanonicalRow{
		BaseEntity:      shared.NewBaseEntity(),
		Platform:        key.Platform,
		Account:         key.Account,
		Domain:          domain,
		EntityKey:       key.EntityKey,
		MetricDate:      key.MetricDate,
		Granularity:     key.Granularity,
		SkuScope:        key.SkuScope,
		SourceCatalogID: sourceCatalogID,
		SourceRowNumber: sourceRow,
	}, nil
}

// Key returns the row's natural key
func (r *CanonicalRow) Key() NaturalKey {
	return NaturalKey{
		Platform:    r.Platform,
		Account:     r.Account,
		EntityKey:   r.EntityKey,
		MetricDate:  r.MetricDate,
		Granularity: r.Granularity,
		SkuScope:    r.SkuScope,
	}
}

// SetFields stores the canonical column values
func (r *CanonicalRow) SetFields(fields map[string]any) error {
	if len(fields) == 0 {
		r.FieldsJSON = ""
		return nil
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to marshal canonical fields: %w", err)
	}
	r.FieldsJSON = string(data)
	return nil
}

// Fields returns the canonical column values
func (r *CanonicalRow) Fields() (map[string]any, error) {
	if r.FieldsJSON == "" {
		return map[string]any{}, nil
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(r.FieldsJSON), &fields); err != nil {
		return nil, fmt.Errorf("failed to unmarshal canonical fields: %w", err)
	}
	return fields, nil
}

// SetAttributes stores the unmapped header values
func (r *CanonicalRow) SetAttributes(attrs map[string]string) error {
	if len(attrs) == 0 {
		r.AttributesJSON = ""
		return nil
	}
	data, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("failed to marshal attributes: %w", err)
	}
	r.AttributesJSON = string(data)
	return nil
}

// Attributes returns the unmapped header values
func (r *CanonicalRow) Attributes() (map[string]string, error) {
	if r.AttributesJSON == "" {
		return map[string]string{}, nil
	}
	var attrs map[string]string
	if err := json.Unmarshal([]byte(r.AttributesJSON), &attrs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal attributes: %w", err)
	}
	return attrs, nil
}

// AttachParent links a variant-level row to its parent SKU. The parent is
// a nullable natural-key reference, not a hard dependency: pending marks
// rows whose product-level parent has not arrived yet.
func (r *CanonicalRow) AttachParent(parentSKU string, pending bool) {
	r.ParentSKU = &parentSKU
	r.ParentPending = pending
}

// MetricFact is one narrow-format fact extracted from a wide composite
// header by a dimension pattern rule. New metric/currency/status
// combinations become rows here instead of columns anywhere.
type MetricFact struct {
	shared.BaseEntity
	Platform    catalog.Platform    `gorm:"not null;uniqueIndex:uq_metric_fact_key"`
	Account     string              `gorm:"not null;uniqueIndex:uq_metric_fact_key"`
	EntityKey   string              `gorm:"not null;uniqueIndex:uq_metric_fact_key"`
	MetricDate  time.Time           `gorm:"not null;uniqueIndex:uq_metric_fact_key;type:date"`
	Granularity catalog.Granularity `gorm:"not null;uniqueIndex:uq_metric_fact_key"`
	SkuScope    SKUScope            `gorm:"not null;uniqueIndex:uq_metric_fact_key"`
	MetricType  string              `gorm:"not null;uniqueIndex:uq_metric_fact_key"`
	Status      string              `gorm:"not null;default:'';uniqueIndex:uq_metric_fact_key"`

	CurrencyOriginal valueobject.Currency `gorm:"not null;default:''"`
	AmountOriginal   decimal.Decimal      `gorm:"not null;type:numeric(20,6)"`
	AmountBase       decimal.NullDecimal  `gorm:"type:numeric(20,6)"`
	RateUsed         decimal.NullDecimal  `gorm:"type:numeric(20,8)"`

	SourceCatalogID uuid.UUID `gorm:"type:uuid;not null;index"`
	SourceRowNumber int       `gorm:"not null;default:0"`
}

// TableName returns the database table name
func (MetricFact) TableName() string {
	return "metric_facts"
}
