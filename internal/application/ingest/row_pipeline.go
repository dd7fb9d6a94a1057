package ingestapp

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/timberdayz/datahub/internal/domain/catalog"
	"github.com/timberdayz/datahub/internal/domain/exchange"
	"github.com/timberdayz/datahub/internal/domain/ingest"
	"github.com/timberdayz/datahub/internal/domain/mapping"
	"github.com/timberdayz/datahub/internal/domain/shared"
	"github.com/timberdayz/datahub/internal/domain/shared/valueobject"
	"github.com/timberdayz/datahub/internal/infrastructure/fileparse"
)

// Canonical column names with pipeline-level meaning. These are
// target_column names assigned by mapping rules.
const (
	fieldMetricDate = "metric_date"
	fieldCurrency   = "currency"
)

// defaultDateLayout parses date columns when the rule declares no layout.
const defaultDateLayout = "2006-01-02"

// fallbackDateLayouts are tried after the declared layout; platforms are
// not consistent about date formats even within one export.
var fallbackDateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"2006-01-02 15:04:05",
}

// RowOutcome is the result of processing one source row. Exactly one of
// Row or Quarantine is set: a row is either accepted in full or rejected
// in full, never silently dropped.
type RowOutcome struct {
	Row        *ingest.CanonicalRow
	Facts      []*ingest.MetricFact
	Quarantine *ingest.QuarantineRecord
	MetricDate time.Time
}

// Accepted reports whether the row passed the pipeline
func (o *RowOutcome) Accepted() bool {
	return o.Row != nil
}

// RowProcessor runs one file's rows through canonicalization: required
// checks, type coercion, enum constraints, currency normalization, and
// SKU hierarchy resolution. It is read-only after construction and safe
// to share across concurrent workers.
type RowProcessor struct {
	file      *catalog.CatalogFile
	columns   *mapping.ColumnMapping
	converter *exchange.Converter
	clock     ingest.Clock
}

// NewRowProcessor creates a processor bound to one file and its resolved
// column mapping.
func NewRowProcessor(file *catalog.CatalogFile, columns *mapping.ColumnMapping, converter *exchange.Converter, clock ingest.Clock) *RowProcessor {
	if clock == nil {
		clock = ingest.SystemClock{}
	}
	return &RowProcessor{
		file:      file,
		columns:   columns,
		converter: converter,
		clock:     clock,
	}
}

// rowReject carries a row-level rejection through the pipeline.
type rowReject struct {
	errorType string
	column    string
	message   string
}

func (r *rowReject) Error() string {
	if r.column != "" {
		return fmt.Sprintf("column %q: %s", r.column, r.message)
	}
	return r.message
}

func reject(errorType, column, format string, args ...any) *rowReject {
	return &rowReject{errorType: errorType, column: column, message: fmt.Sprintf(format, args...)}
}

// Process canonicalizes one row. Rejections become quarantine records
// carrying the verbatim raw payload; only marshaling failures surface as
// errors.
func (p *RowProcessor) Process(row *fileparse.Row) (*RowOutcome, error) {
	out, rej := p.process(row)
	if rej == nil {
		return out, nil
	}

	record, err := ingest.NewQuarantineRecord(
		p.file.ID, row.LineNumber, row.Data,
		rej.errorType, rej.column, rej.message,
	)
	if err != nil {
		return nil, err
	}
	return &RowOutcome{Quarantine: record}, nil
}

func (p *RowProcessor) process(row *fileparse.Row) (*RowOutcome, *rowReject) {
	fields := make(map[string]any)
	attrs := make(map[string]string)
	dates := make(map[string]time.Time)
	var dimensionCols []mapping.ResolvedColumn
	var ordered []mapping.ResolvedColumn
	metricDate := time.Time{}

	for _, col := range p.columns.Columns {
		raw := strings.TrimSpace(row.Get(col.Header))

		switch col.Kind {
		case mapping.ColumnUnmapped:
			// Unmapped headers are preserved, never dropped.
			if raw != "" {
				attrs[col.Header] = raw
			}

		case mapping.ColumnDimension:
			// Dimension values are coerced later, once the row's metric
			// date is known.
			if raw != "" {
				dimensionCols = append(dimensionCols, col)
			}

		case mapping.ColumnCanonical:
			entry := col.Entry
			if raw == "" {
				if entry.Required {
					return nil, reject(shared.CodeValidationError, col.Header,
						"required column %q is empty", col.Header)
				}
				continue
			}
			if set := entry.EnumSet(); set != nil {
				if _, ok := set[raw]; !ok {
					return nil, reject(shared.CodeValidationError, col.Header,
						"value %q is not one of the allowed values (%s)", raw, entry.EnumValues)
				}
			}
			value, rej := coerceValue(raw, entry, col.Header)
			if rej != nil {
				return nil, rej
			}
			if rej := checkRange(value, entry, col.Header); rej != nil {
				return nil, rej
			}
			if t, ok := value.(time.Time); ok {
				if entry.TargetColumn == fieldMetricDate {
					metricDate = t
				}
				dates[entry.TargetColumn] = t
				if entry.NotAfterColumn != "" {
					ordered = append(ordered, col)
				}
				value = t.Format(defaultDateLayout)
			}
			fields[entry.TargetColumn] = value
		}
	}

	for _, col := range ordered {
		entry := col.Entry
		bound, ok := dates[entry.NotAfterColumn]
		if !ok {
			continue
		}
		if dates[entry.TargetColumn].After(bound) {
			return nil, reject(shared.CodeValidationError, col.Header,
				"date %s exceeds %s (%s)",
				dates[entry.TargetColumn].Format(defaultDateLayout),
				entry.NotAfterColumn, bound.Format(defaultDateLayout))
		}
	}

	if metricDate.IsZero() {
		// Snapshot files carry no per-row date; everything else must.
		if p.file.Granularity != catalog.GranularitySnapshot {
			return nil, reject(shared.CodeValidationError, fieldMetricDate,
				"row has no metric date and file granularity is %s", p.file.Granularity)
		}
		now := p.clock.Now().UTC()
		metricDate = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}

	hierarchy := ingest.ResolveHierarchy(fields)
	if hierarchy.EntityKey == "" {
		return nil, reject(shared.CodeValidationError, ingest.FieldSKU,
			"row has no SKU or variant identifier")
	}

	if rej := p.convertCanonicalAmounts(fields); rej != nil {
		return nil, rej
	}

	key := ingest.NaturalKey{
		Platform:    p.file.Platform,
		Account:     p.file.Account,
		EntityKey:   hierarchy.EntityKey,
		MetricDate:  metricDate,
		Granularity: p.file.Granularity,
		SkuScope:    hierarchy.Scope,
	}

	canonical, err := ingest.NewCanonicalRow(key, p.file.Domain, p.file.ID, row.LineNumber)
	if err != nil {
		return nil, reject(shared.CodeValidationError, "", "%s", err.Error())
	}
	if hierarchy.Scope == ingest.ScopeVariant {
		// The parent may arrive in a later file; pending marks the gap.
		canonical.AttachParent(hierarchy.ParentSKU, hierarchy.ParentSKU != "")
	}
	if err := canonical.SetFields(fields); err != nil {
		return nil, reject(shared.CodeValidationError, "", "%s", err.Error())
	}
	if err := canonical.SetAttributes(attrs); err != nil {
		return nil, reject(shared.CodeValidationError, "", "%s", err.Error())
	}

	facts, rej := p.buildFacts(row, key, dimensionCols)
	if rej != nil {
		return nil, rej
	}

	return &RowOutcome{Row: canonical, Facts: facts, MetricDate: metricDate}, nil
}

// convertCanonicalAmounts normalizes canonical monetary columns whose
// rule asks for conversion. The row's currency comes from the canonical
// currency column; a convertible amount with no resolvable currency is
// a rejection, never an unconverted pass-through.
func (p *RowProcessor) convertCanonicalAmounts(fields map[string]any) *rowReject {
	currencyStr, _ := fields[fieldCurrency].(string)
	if currencyStr == "" {
		for _, col := range p.columns.Columns {
			if col.Kind != mapping.ColumnCanonical {
				continue
			}
			entry := col.Entry
			if entry.CurrencyPolicy != mapping.PolicyConvert || entry.ValueType != mapping.TypeDecimal {
				continue
			}
			if _, ok := fields[entry.TargetColumn].(decimal.Decimal); ok {
				return reject(shared.CodeRateNotFound, col.Header,
					"column %q requires currency conversion but the row has no currency", col.Header)
			}
		}
		return nil
	}
	currencyStr = strings.ToUpper(currencyStr)
	if !valueobject.IsValidCurrencyCode(currencyStr) {
		return reject(shared.CodeValidationError, fieldCurrency,
			"invalid currency code %q", currencyStr)
	}
	currency := valueobject.Currency(currencyStr)
	fields[fieldCurrency] = currencyStr

	metricDate := p.fieldDate(fields)
	for _, col := range p.columns.Columns {
		if col.Kind != mapping.ColumnCanonical {
			continue
		}
		entry := col.Entry
		if entry.CurrencyPolicy != mapping.PolicyConvert || entry.ValueType != mapping.TypeDecimal {
			continue
		}
		amount, ok := fields[entry.TargetColumn].(decimal.Decimal)
		if !ok {
			continue
		}
		conv, err := p.converter.Convert(amount, currency, metricDate)
		if err != nil {
			if shared.IsCode(err, shared.CodeRateNotFound) {
				return reject(shared.CodeRateNotFound, col.Header, "%s", err.Error())
			}
			return reject(shared.CodeValidationError, col.Header, "%s", err.Error())
		}
		fields[entry.TargetColumn+"_base"] = conv.Amount.Rounded().Amount()
	}
	return nil
}

func (p *RowProcessor) fieldDate(fields map[string]any) time.Time {
	s, _ := fields[fieldMetricDate].(string)
	if s != "" {
		if t, err := time.Parse(defaultDateLayout, s); err == nil {
			return t
		}
	}
	return p.clock.Now().UTC()
}

// buildFacts coerces the row's dimension columns into narrow metric
// facts, converting monetary ones into the base currency.
func (p *RowProcessor) buildFacts(row *fileparse.Row, key ingest.NaturalKey, cols []mapping.ResolvedColumn) ([]*ingest.MetricFact, *rowReject) {
	if len(cols) == 0 {
		return nil, nil
	}

	facts := make([]*ingest.MetricFact, 0, len(cols))
	for _, col := range cols {
		raw := strings.TrimSpace(row.Get(col.Header))
		entry := col.Entry

		amount, err := parseDecimal(raw)
		if err != nil {
			return nil, reject(shared.CodeValidationError, col.Header,
				"value %q is not a valid number", raw)
		}

		metricType := col.Dimensions.MetricType
		if metricType == "" {
			metricType = strings.ToLower(col.Header)
		}

		fact := &ingest.MetricFact{
			BaseEntity:      shared.NewBaseEntity(),
			Platform:        key.Platform,
			Account:         key.Account,
			EntityKey:       key.EntityKey,
			MetricDate:      key.MetricDate,
			Granularity:     key.Granularity,
			SkuScope:        key.SkuScope,
			MetricType:      metricType,
			Status:          col.Dimensions.Status,
			AmountOriginal:  amount,
			SourceCatalogID: p.file.ID,
			SourceRowNumber: row.LineNumber,
		}

		if cc := col.Dimensions.Currency; cc != "" {
			if !valueobject.IsValidCurrencyCode(cc) {
				return nil, reject(shared.CodeValidationError, col.Header,
					"invalid currency code %q extracted from header", cc)
			}
			fact.CurrencyOriginal = valueobject.Currency(cc)
			if entry.CurrencyPolicy == mapping.PolicyConvert {
				conv, err := p.converter.Convert(amount, fact.CurrencyOriginal, key.MetricDate)
				if err != nil {
					if shared.IsCode(err, shared.CodeRateNotFound) {
						return nil, reject(shared.CodeRateNotFound, col.Header, "%s", err.Error())
					}
					return nil, reject(shared.CodeValidationError, col.Header, "%s", err.Error())
				}
				fact.AmountBase = decimal.NullDecimal{Decimal: conv.Amount.Rounded().Amount(), Valid: true}
				fact.RateUsed = decimal.NullDecimal{Decimal: conv.Rate, Valid: true}
			}
		}

		facts = append(facts, fact)
	}
	return facts, nil
}

// checkRange enforces the rule's declared numeric bounds on a coerced
// value. Bounds were validated at dictionary load, so Range cannot fail
// here.
func checkRange(value any, entry *mapping.Entry, header string) *rowReject {
	if entry.MinValue == "" && entry.MaxValue == "" {
		return nil
	}
	var d decimal.Decimal
	switch v := value.(type) {
	case decimal.Decimal:
		d = v
	case int64:
		d = decimal.NewFromInt(v)
	default:
		return nil
	}
	min, max, err := entry.Range()
	if err != nil {
		return reject(shared.CodeValidationError, header, "%s", err.Error())
	}
	if min != nil && d.LessThan(*min) {
		return reject(shared.CodeValidationError, header,
			"value %s is below the minimum %s", d, *min)
	}
	if max != nil && d.GreaterThan(*max) {
		return reject(shared.CodeValidationError, header,
			"value %s is above the maximum %s", d, *max)
	}
	return nil
}

// coerceValue converts a raw cell into the rule's canonical type.
func coerceValue(raw string, entry *mapping.Entry, header string) (any, *rowReject) {
	switch entry.ValueType {
	case mapping.TypeString, "":
		return raw, nil

	case mapping.TypeDecimal:
		d, err := parseDecimal(raw)
		if err != nil {
			return nil, reject(shared.CodeValidationError, header,
				"value %q is not a valid decimal", raw)
		}
		return d, nil

	case mapping.TypeInt:
		n, err := strconv.ParseInt(strings.ReplaceAll(raw, ",", ""), 10, 64)
		if err != nil {
			return nil, reject(shared.CodeValidationError, header,
				"value %q is not a valid integer", raw)
		}
		return n, nil

	case mapping.TypeRatio:
		s := raw
		percent := strings.HasSuffix(s, "%")
		if percent {
			s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
		}
		d, err := parseDecimal(s)
		if err != nil {
			return nil, reject(shared.CodeValidationError, header,
				"value %q is not a valid ratio", raw)
		}
		if percent {
			d = d.Div(decimal.NewFromInt(100))
		}
		return valueobject.RoundRatio(d), nil

	case mapping.TypeDate:
		t, err := parseDate(raw, entry.DateFormat)
		if err != nil {
			return nil, reject(shared.CodeValidationError, header,
				"value %q is not a valid date", raw)
		}
		return t, nil

	case mapping.TypeBool:
		switch strings.ToLower(raw) {
		case "true", "yes", "y", "1":
			return true, nil
		case "false", "no", "n", "0":
			return false, nil
		}
		return nil, reject(shared.CodeValidationError, header,
			"value %q is not a valid boolean", raw)
	}

	return nil, reject(shared.CodeValidationError, header,
		"unknown value type %q", entry.ValueType)
}

// parseDecimal parses a number allowing thousands separators.
func parseDecimal(raw string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.ReplaceAll(raw, ",", ""))
}

// parseDate tries the rule's declared layout first, then common fallbacks.
// Dates are normalized to midnight UTC so they compare as calendar days.
func parseDate(raw, layout string) (time.Time, error) {
	layouts := fallbackDateLayouts
	if layout != "" {
		layouts = append([]string{layout}, fallbackDateLayouts...)
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, raw); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", raw)
}
