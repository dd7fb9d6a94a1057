package ingest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/timberdayz/datahub/internal/domain/shared"
)

// ResolutionStatus is the review state of a quarantine record.
type ResolutionStatus string

const (
	ResolutionOpen     ResolutionStatus = "open"
	ResolutionResolved ResolutionStatus = "resolved"
	ResolutionIgnored  ResolutionStatus = "ignored"
)

// QuarantineRecord holds one rejected row. The raw payload is preserved
// verbatim so the mapping or the source file can be corrected and the
// file safely re-ingested. Records are immutable once created except for
// the resolution fields.
type QuarantineRecord struct {
	shared.BaseEntity
	SourceCatalogID uuid.UUID        `gorm:"type:uuid;not null;index"`
	RowNumber       int              `gorm:"not null"`
	RawRowJSON      string           `gorm:"column:row_data;type:text;not null"`
	ErrorType       string           `gorm:"not null;index"` // VALIDATION_ERROR, RATE_NOT_FOUND, STRUCTURAL_FILE_ERROR
	ErrorColumn     string
	ErrorMessage    string           `gorm:"not null"`
	Resolution      ResolutionStatus `gorm:"not null;default:'open';index"`
	ResolutionNote  string
	ResolvedAt      *time.Time
}

// TableName returns the database table name
func (QuarantineRecord) TableName() string {
	return "quarantine_records"
}

// NewQuarantineRecord captures a rejected row with its verbatim payload.
func NewQuarantineRecord(sourceCatalogID uuid.UUID, rowNumber int, rawRow map[string]string, errorType, errorColumn, message string) (*QuarantineRecord, error) {
	if errorType == "" {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Error classification cannot be empty")
	}
	payload, err := json.Marshal(rawRow)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal raw row: %w", err)
	}
	return &QuarantineRecord{
		BaseEntity:      shared.NewBaseEntity(),
		SourceCatalogID: sourceCatalogID,
		RowNumber:       rowNumber,
		RawRowJSON:      string(payload),
		ErrorType:       errorType,
		ErrorColumn:     errorColumn,
		ErrorMessage:    message,
		Resolution:      ResolutionOpen,
	}, nil
}

// RawRow returns the verbatim raw values of the rejected row.
func (q *QuarantineRecord) RawRow() (map[string]string, error) {
	var row map[string]string
	if err := json.Unmarshal([]byte(q.RawRowJSON), &row); err != nil {
		return nil, fmt.Errorf("failed to unmarshal raw row: %w", err)
	}
	return row, nil
}

// Resolve marks the record as corrected.
func (q *QuarantineRecord) Resolve(note string) error {
	return q.transition(ResolutionResolved, note)
}

// Ignore marks the record as reviewed and intentionally skipped.
func (q *QuarantineRecord) Ignore(note string) error {
	return q.transition(ResolutionIgnored, note)
}

func (q *QuarantineRecord) transition(to ResolutionStatus, note string) error {
	if q.Resolution != ResolutionOpen {
		return shared.NewDomainErrorf(shared.CodeInvalidState, "Quarantine record already %s", q.Resolution)
	}
	q.Resolution = to
	q.ResolutionNote = note
	now := time.Now()
	q.ResolvedAt = &now
	q.UpdatedAt = now
	return nil
}
