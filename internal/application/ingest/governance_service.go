package ingestapp

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/timberdayz/datahub/internal/domain/catalog"
	"github.com/timberdayz/datahub/internal/domain/ingest"
)

// LineageReport traces one catalog file to the governed data it produced.
type LineageReport struct {
	File            *catalog.CatalogFile      `json:"file"`
	Rows            []ingest.CanonicalRow     `json:"rows"`
	Quarantined     []ingest.QuarantineRecord `json:"quarantined"`
	OpenQuarantines int64                     `json:"open_quarantines"`
}

// GovernanceService covers the review-side operations: quarantine
// resolution, lineage queries, and re-ingestion of corrected files.
type GovernanceService struct {
	files      catalog.FileRepository
	rows       ingest.RowRepository
	quarantine ingest.QuarantineRepository
	logger     *zap.Logger
}

// NewGovernanceService creates the governance service
func NewGovernanceService(files catalog.FileRepository, rows ingest.RowRepository, quarantine ingest.QuarantineRepository, logger *zap.Logger) *GovernanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GovernanceService{
		files:      files,
		rows:       rows,
		quarantine: quarantine,
		logger:     logger,
	}
}

// ResolveQuarantine marks a rejected row as corrected. The fix lands via
// re-ingestion of the corrected file, not by editing the record.
func (s *GovernanceService) ResolveQuarantine(ctx context.Context, recordID uuid.UUID, note string) (*ingest.QuarantineRecord, error) {
	record, err := s.quarantine.FindByID(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if err := record.Resolve(note); err != nil {
		return nil, err
	}
	if err := s.quarantine.Update(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to update quarantine record: %w", err)
	}
	s.logger.Info("quarantine record resolved",
		zap.String("record_id", recordID.String()),
		zap.Int("row", record.RowNumber))
	return record, nil
}

// IgnoreQuarantine marks a rejected row as reviewed and intentionally
// skipped.
func (s *GovernanceService) IgnoreQuarantine(ctx context.Context, recordID uuid.UUID, note string) (*ingest.QuarantineRecord, error) {
	record, err := s.quarantine.FindByID(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if err := record.Ignore(note); err != nil {
		return nil, err
	}
	if err := s.quarantine.Update(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to update quarantine record: %w", err)
	}
	return record, nil
}

// Lineage answers "where did this file's data go": the canonical rows it
// produced and the rows it failed to produce.
func (s *GovernanceService) Lineage(ctx context.Context, fileID uuid.UUID) (*LineageReport, error) {
	file, err := s.files.FindByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	rows, err := s.rows.RowsByCatalogFile(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to load lineage rows: %w", err)
	}
	quarantined, err := s.quarantine.FindByCatalogFile(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to load quarantine records: %w", err)
	}
	open, err := s.quarantine.CountOpenByCatalogFile(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to count open quarantines: %w", err)
	}
	return &LineageReport{
		File:            file,
		Rows:            rows,
		Quarantined:     quarantined,
		OpenQuarantines: open,
	}, nil
}
