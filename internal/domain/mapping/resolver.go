package mapping

import (
	"strings"
)

// ColumnKind says how a raw column was resolved.
type ColumnKind string

const (
	// ColumnCanonical maps straight onto a canonical-field column.
	ColumnCanonical ColumnKind = "canonical"
	// ColumnDimension matched a pattern rule; its value lands in the
	// narrow metric-fact table with the extracted dimensions, so new
	// metric/currency/status combinations never grow the schema.
	ColumnDimension ColumnKind = "dimension"
	// ColumnUnmapped has no rule; the value is preserved in the row's
	// attributes container, never dropped.
	ColumnUnmapped ColumnKind = "unmapped"
)

// Dimensions are the secondary facts a pattern rule extracts from a
// composite wide-format header such as "GMV_USD_refunded".
type Dimensions struct {
	MetricType string
	Currency   string
	Status     string
}

// ResolvedColumn is the resolution of one raw header.
type ResolvedColumn struct {
	Header     string
	Kind       ColumnKind
	Entry      *Entry // nil for unmapped columns
	Dimensions Dimensions
}

// IsMapped reports whether the column resolved to a rule.
func (c ResolvedColumn) IsMapped() bool {
	return c.Kind != ColumnUnmapped
}

// ColumnMapping is the full resolution of a file's header row.
type ColumnMapping struct {
	Scope   Scope
	Columns []ResolvedColumn
}

// MappedCount returns how many headers resolved to a rule
func (m *ColumnMapping) MappedCount() int {
	n := 0
	for _, c := range m.Columns {
		if c.IsMapped() {
			n++
		}
	}
	return n
}

// Column returns the resolution for a header, if present.
func (m *ColumnMapping) Column(header string) (ResolvedColumn, bool) {
	for _, c := range m.Columns {
		if c.Header == header {
			return c, true
		}
	}
	return ResolvedColumn{}, false
}

// Resolve maps every raw header to a canonical field, a dimension
// extraction, or the unmapped bucket. Exact literal matches win over
// pattern matches; pattern precedence was fixed at load time.
func (d *Dictionary) Resolve(headers []string) *ColumnMapping {
	m := &ColumnMapping{
		Scope:   d.scope,
		Columns: make([]ResolvedColumn, 0, len(headers)),
	}

	for _, header := range headers {
		m.Columns = append(m.Columns, d.resolveHeader(header))
	}
	return m
}

func (d *Dictionary) resolveHeader(header string) ResolvedColumn {
	if ce, ok := d.literals[header]; ok {
		entry := ce.entry
		return ResolvedColumn{Header: header, Kind: ColumnCanonical, Entry: &entry}
	}

	for _, ce := range d.patterns {
		match := ce.re.FindStringSubmatch(header)
		if match == nil {
			continue
		}
		entry := ce.entry
		return ResolvedColumn{
			Header:     header,
			Kind:       ColumnDimension,
			Entry:      &entry,
			Dimensions: extractDimensions(&entry, ce.re.SubexpNames(), match),
		}
	}

	return ResolvedColumn{Header: header, Kind: ColumnUnmapped}
}

// extractDimensions pulls the named capture groups out of a pattern match
// and normalizes them: metric types and statuses are lowercased, currency
// codes uppercased.
func extractDimensions(e *Entry, names []string, match []string) Dimensions {
	metricGroup, currencyGroup, statusGroup := e.groupNames()

	var dims Dimensions
	for i, name := range names {
		if i == 0 || name == "" || i >= len(match) {
			continue
		}
		switch name {
		case metricGroup:
			dims.MetricType = strings.ToLower(match[i])
		case currencyGroup:
			dims.Currency = strings.ToUpper(match[i])
		case statusGroup:
			dims.Status = strings.ToLower(match[i])
		}
	}
	return dims
}
