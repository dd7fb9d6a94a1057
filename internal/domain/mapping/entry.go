package mapping

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/timberdayz/datahub/internal/domain/catalog"
	"github.com/timberdayz/datahub/internal/domain/shared"
)

// EntryStatus is the lifecycle state of a dictionary rule. Entries are
// versioned and never overwritten; a new version with active status
// supersedes older ones.
type EntryStatus string

const (
	EntryStatusDraft      EntryStatus = "draft"
	EntryStatusActive     EntryStatus = "active"
	EntryStatusDeprecated EntryStatus = "deprecated"
)

// ValueType is the canonical type a mapped column coerces into.
type ValueType string

const (
	TypeString  ValueType = "string"
	TypeDecimal ValueType = "decimal"
	TypeInt     ValueType = "int"
	TypeDate    ValueType = "date"
	TypeBool    ValueType = "bool"
	TypeRatio   ValueType = "ratio"
)

// IsValid checks if the value type is known
func (t ValueType) IsValid() bool {
	switch t {
	case TypeString, TypeDecimal, TypeInt, TypeDate, TypeBool, TypeRatio:
		return true
	}
	return false
}

// IsNumeric reports whether values of this type are numeric
func (t ValueType) IsNumeric() bool {
	return t == TypeDecimal || t == TypeInt || t == TypeRatio
}

// CurrencyPolicy controls how monetary values of a column are normalized.
type CurrencyPolicy string

const (
	// PolicyConvert converts the amount into the base currency using the
	// rate table for the row's metric date.
	PolicyConvert CurrencyPolicy = "convert"
	// PolicyNone marks the metric as intrinsically currency-less
	// (unit counts, ratios); no conversion is attempted.
	PolicyNone CurrencyPolicy = "none"
)

// Default named capture groups a dimension pattern is expected to use.
const (
	GroupMetric   = "metric"
	GroupCurrency = "currency"
	GroupStatus   = "status"
)

// Entry is one mapping-dictionary rule: a literal raw header, or a regex
// pattern with named capture groups, resolving to a canonical field.
type Entry struct {
	shared.BaseEntity
	Platform       catalog.Platform   `gorm:"not null;index:idx_mapping_scope" validate:"required"`
	Domain         catalog.DataDomain `gorm:"not null;index:idx_mapping_scope" validate:"required"`
	SubDomain      string             `gorm:"index:idx_mapping_scope"`
	Version        int                `gorm:"not null;default:1" validate:"gte=1"`
	Status         EntryStatus        `gorm:"not null;default:'active'" validate:"oneof=draft active deprecated"`
	Header         string             `gorm:"index"`
	Pattern        string
	TargetTable    string         `gorm:"not null" validate:"required"`
	TargetColumn   string
	ValueType      ValueType      `gorm:"not null;default:'string'" validate:"omitempty,oneof=string decimal int date bool ratio"`
	Required       bool           `gorm:"not null;default:false"`
	MVDisplay      bool           `gorm:"not null;default:false"`
	CurrencyPolicy CurrencyPolicy `gorm:"not null;default:'none'" validate:"oneof=convert none"`
	EnumValues     string         // comma-separated allowed values, empty = unconstrained
	MinValue       string         // inclusive numeric lower bound, empty = unbounded
	MaxValue       string         // inclusive numeric upper bound, empty = unbounded
	NotAfterColumn string         // target column this date must not exceed (e.g. start vs end)
	DateFormat     string         // Go layout for date columns, empty = 2006-01-02
	MetricGroup    string         // named group overrides for dimension patterns
	CurrencyGroup  string
	StatusGroup    string
	SourcePriority string // comma-separated source list, most authoritative first
	Position       int    `gorm:"not null;default:0"` // declaration order inside one version
}

// TableName returns the database table name
func (Entry) TableName() string {
	return "mapping_dictionary_entries"
}

// IsLiteral reports whether the entry matches a header by exact text.
func (e *Entry) IsLiteral() bool {
	return e.Header != ""
}

// IsPattern reports whether the entry matches headers by regex.
func (e *Entry) IsPattern() bool {
	return e.Header == "" && e.Pattern != ""
}

// EnumSet parses the comma-separated enum constraint into a set.
func (e *Entry) EnumSet() map[string]struct{} {
	if e.EnumValues == "" {
		return nil
	}
	set := make(map[string]struct{})
	for _, v := range strings.Split(e.EnumValues, ",") {
		v = strings.TrimSpace(v)
		if v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}

// Range parses the declared numeric bounds. Nil means unbounded on that
// side; malformed bounds are configuration errors caught at load time.
func (e *Entry) Range() (min, max *decimal.Decimal, err error) {
	if e.MinValue != "" {
		d, perr := decimal.NewFromString(e.MinValue)
		if perr != nil {
			return nil, nil, fmt.Errorf("invalid min value %q: %w", e.MinValue, perr)
		}
		min = &d
	}
	if e.MaxValue != "" {
		d, perr := decimal.NewFromString(e.MaxValue)
		if perr != nil {
			return nil, nil, fmt.Errorf("invalid max value %q: %w", e.MaxValue, perr)
		}
		max = &d
	}
	if min != nil && max != nil && min.GreaterThan(*max) {
		return nil, nil, fmt.Errorf("min value %s exceeds max value %s", e.MinValue, e.MaxValue)
	}
	return min, max, nil
}

// Sources parses the source-priority list.
func (e *Entry) Sources() []string {
	if e.SourcePriority == "" {
		return nil
	}
	parts := strings.Split(e.SourcePriority, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// groupNames returns the capture group names this entry extracts
// dimensions from, falling back to the conventional names.
func (e *Entry) groupNames() (metric, currency, status string) {
	metric, currency, status = GroupMetric, GroupCurrency, GroupStatus
	if e.MetricGroup != "" {
		metric = e.MetricGroup
	}
	if e.CurrencyGroup != "" {
		currency = e.CurrencyGroup
	}
	if e.StatusGroup != "" {
		status = e.StatusGroup
	}
	return metric, currency, status
}
