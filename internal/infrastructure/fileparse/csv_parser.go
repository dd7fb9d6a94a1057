package fileparse

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// Parser reads one export file into header-indexed rows. The header row
// index comes from the file descriptor: some platforms prepend report
// metadata lines before the real header.
type Parser struct {
	delimiter rune
	headerRow int // 1-indexed position of the header row
	headers   []string
	headerMap map[string]int
	reader    *csv.Reader
	lineNum   int // current physical line, 1-indexed
}

// Option is a functional option for Parser configuration
type Option func(*Parser)

// WithDelimiter sets the field delimiter (default comma)
func WithDelimiter(d rune) Option {
	return func(p *Parser) {
		p.delimiter = d
	}
}

// WithHeaderRow sets the 1-indexed header row position (default 1)
func WithHeaderRow(n int) Option {
	return func(p *Parser) {
		if n >= 1 {
			p.headerRow = n
		}
	}
}

// NewParser decodes the raw bytes (honoring the encoding hint) and
// positions the parser at the header row. Encoding and header problems
// are structural: the caller quarantines the whole file.
func NewParser(data []byte, encodingHint string, opts ...Option) (*Parser, error) {
	decoded, err := DecodeToUTF8(data, encodingHint)
	if err != nil {
		return nil, err
	}

	p := &Parser{
		delimiter: ',',
		headerRow: 1,
		headerMap: make(map[string]int),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.reader = csv.NewReader(bytes.NewReader(decoded))
	p.reader.Comma = p.delimiter
	p.reader.LazyQuotes = true
	p.reader.TrimLeadingSpace = true
	p.reader.FieldsPerRecord = -1

	if err := p.parseHeader(); err != nil {
		return nil, err
	}
	return p, nil
}

// parseHeader skips preamble lines and reads the header row.
func (p *Parser) parseHeader() error {
	var record []string
	for p.lineNum < p.headerRow {
		rec, err := p.reader.Read()
		if err == io.EOF {
			return ErrMissingHeader
		}
		if err != nil {
			return fmt.Errorf("failed to read header: %w", err)
		}
		p.lineNum++
		record = rec
	}

	nonEmpty := 0
	p.headers = make([]string, len(record))
	for i, h := range record {
		h = strings.TrimSpace(h)
		p.headers[i] = h
		if h != "" {
			nonEmpty++
			p.headerMap[h] = i
		}
	}
	if nonEmpty == 0 {
		return ErrMissingHeader
	}
	return nil
}

// Headers returns the parsed header names
func (p *Parser) Headers() []string {
	return p.headers
}

// HasHeader checks if a header exists
func (p *Parser) HasHeader(name string) bool {
	_, ok := p.headerMap[name]
	return ok
}

// Row is one parsed data row with its physical line number.
type Row struct {
	LineNumber int
	Data       map[string]string
}

// Get returns the value for a column by header name
func (r *Row) Get(header string) string {
	return r.Data[header]
}

// IsEmpty returns true if the row has no non-empty values
func (r *Row) IsEmpty() bool {
	for _, v := range r.Data {
		if v != "" {
			return false
		}
	}
	return true
}

// ReadRow reads the next data row. io.EOF signals the end.
func (p *Parser) ReadRow() (*Row, error) {
	record, err := p.reader.Read()
	if err == io.EOF {
		return nil, io.EOF
	}
	p.lineNum++
	if err != nil {
		return nil, fmt.Errorf("error reading row at line %d: %w", p.lineNum, err)
	}

	row := &Row{
		LineNumber: p.lineNum,
		Data:       make(map[string]string, len(p.headers)),
	}
	for i, header := range p.headers {
		if header == "" {
			continue
		}
		if i < len(record) {
			row.Data[header] = strings.TrimSpace(record[i])
		} else {
			row.Data[header] = ""
		}
	}
	return row, nil
}

// ReadAll reads every remaining non-empty data row. A file with headers
// but no data rows is a structural error.
func (p *Parser) ReadAll() ([]*Row, error) {
	var rows []*Row
	for {
		row, err := p.ReadRow()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if row.IsEmpty() {
			continue
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, ErrNoDataRows
	}
	return rows, nil
}
