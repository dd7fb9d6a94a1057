package ingestapp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/timberdayz/datahub/internal/domain/catalog"
	"github.com/timberdayz/datahub/internal/domain/exchange"
	"github.com/timberdayz/datahub/internal/domain/ingest"
	"github.com/timberdayz/datahub/internal/domain/mapping"
	"github.com/timberdayz/datahub/internal/domain/shared"
	"github.com/timberdayz/datahub/internal/domain/shared/valueobject"
	"github.com/timberdayz/datahub/internal/infrastructure/fileparse"
	"github.com/timberdayz/datahub/internal/infrastructure/filestore"
	"github.com/timberdayz/datahub/internal/infrastructure/lock"
)

// defaultIssueLimit caps how many row issues are copied onto the catalog
// file; the full detail lives in the quarantine table.
const defaultIssueLimit = 50

// IngestResult summarizes one file ingestion run.
type IngestResult struct {
	FileID       uuid.UUID          `json:"file_id"`
	Status       catalog.FileStatus `json:"status"`
	TotalRows    int                `json:"total_rows"`
	AcceptedRows int                `json:"accepted_rows"`
	RejectedRows int                `json:"rejected_rows"`
	FactCount    int                `json:"fact_count"`
	QualityScore float64            `json:"quality_score"`
	Duration     time.Duration      `json:"-"`
}

// Orchestrator drives a catalog file through the full ingestion pipeline:
// scope locking, parsing, header resolution, row canonicalization,
// currency normalization, quarantine routing, and the idempotent
// natural-key upsert with sync-point advancement.
type Orchestrator struct {
	files      catalog.FileRepository
	entries    mapping.EntryRepository
	rates      exchange.RateRepository
	rows       ingest.RowRepository
	quarantine ingest.QuarantineRepository
	syncPoints ingest.SyncPointRepository
	store      filestore.FileStore
	locker     lock.ScopeLocker
	clock      ingest.Clock
	logger     *zap.Logger
	tracer     trace.Tracer

	baseCurrency valueobject.Currency
	lookbackDays int
	rowWorkers   int
	issueLimit   int

	// onIngested runs after a batch commits; the refresh coordinator
	// hooks in here.
	onIngested func(ctx context.Context)
}

// OrchestratorDeps bundles the orchestrator's collaborators.
type OrchestratorDeps struct {
	Files      catalog.FileRepository
	Entries    mapping.EntryRepository
	Rates      exchange.RateRepository
	Rows       ingest.RowRepository
	Quarantine ingest.QuarantineRepository
	SyncPoints ingest.SyncPointRepository
	Store      filestore.FileStore
	Locker     lock.ScopeLocker
	Clock      ingest.Clock
	Logger     *zap.Logger
}

// OrchestratorOption is a functional option for Orchestrator configuration
type OrchestratorOption func(*Orchestrator)

// WithBaseCurrency sets the normalization target currency
func WithBaseCurrency(c valueobject.Currency) OrchestratorOption {
	return func(o *Orchestrator) {
		if c != "" {
			o.baseCurrency = c
		}
	}
}

// WithLookbackDays sets the rate lookback window
func WithLookbackDays(days int) OrchestratorOption {
	return func(o *Orchestrator) {
		if days > 0 {
			o.lookbackDays = days
		}
	}
}

// WithRowWorkers sets the row-processing concurrency
func WithRowWorkers(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n >= 1 {
			o.rowWorkers = n
		}
	}
}

// WithIssueLimit caps how many row issues are recorded on the file itself
func WithIssueLimit(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n >= 1 {
			o.issueLimit = n
		}
	}
}

// WithIngestedHook registers a callback invoked after a successful batch
func WithIngestedHook(fn func(ctx context.Context)) OrchestratorOption {
	return func(o *Orchestrator) {
		o.onIngested = fn
	}
}

// NewOrchestrator creates the ingestion orchestrator
func NewOrchestrator(deps OrchestratorDeps, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		files:        deps.Files,
		entries:      deps.Entries,
		rates:        deps.Rates,
		rows:         deps.Rows,
		quarantine:   deps.Quarantine,
		syncPoints:   deps.SyncPoints,
		store:        deps.Store,
		locker:       deps.Locker,
		clock:        deps.Clock,
		logger:       deps.Logger,
		tracer:       otel.Tracer("datahub/ingest"),
		baseCurrency: valueobject.DefaultBaseCurrency,
		lookbackDays: exchange.DefaultLookbackDays,
		rowWorkers:   4,
		issueLimit:   defaultIssueLimit,
	}
	if o.clock == nil {
		o.clock = ingest.SystemClock{}
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RegisterFile catalogs a newly discovered export file in the raw layer.
// Registering the same path again creates a new catalog entry; the old
// one stays as history.
func (o *Orchestrator) RegisterFile(ctx context.Context, path string, platform catalog.Platform, account string, domain catalog.DataDomain, subDomain string, granularity catalog.Granularity) (*catalog.CatalogFile, error) {
	file, err := catalog.NewCatalogFile(path, platform, account, domain, subDomain, granularity)
	if err != nil {
		return nil, err
	}
	if err := o.files.Save(ctx, file); err != nil {
		return nil, fmt.Errorf("failed to register catalog file: %w", err)
	}
	o.logger.Info("catalog file registered",
		zap.String("file_id", file.ID.String()),
		zap.String("path", path),
		zap.String("platform", string(platform)),
		zap.String("domain", string(domain)))
	return file, nil
}

// IngestFile runs the full pipeline for one pending catalog file.
func (o *Orchestrator) IngestFile(ctx context.Context, fileID uuid.UUID) (*IngestResult, error) {
	ctx, span := o.tracer.Start(ctx, "ingest.file",
		trace.WithAttributes(attribute.String("file.id", fileID.String())))
	defer span.End()

	started := o.clock.Now()

	file, err := o.files.FindByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file.Status != catalog.StatusPending {
		return nil, shared.NewDomainErrorf(shared.CodeInvalidState,
			"File %s is %s, not pending; reset it for re-ingestion first", fileID, file.Status)
	}

	release, err := o.locker.Acquire(ctx, lock.ScopeKey{
		Platform: file.Platform,
		Account:  file.Account,
		Domain:   file.Domain,
	})
	if err != nil {
		return nil, err
	}
	defer release()

	log := o.logger.With(
		zap.String("file_id", file.ID.String()),
		zap.String("path", file.Path),
		zap.String("platform", string(file.Platform)),
		zap.String("account", file.Account),
		zap.String("domain", string(file.Domain)))

	result, err := o.ingestLocked(ctx, file, log)
	if err != nil {
		return nil, err
	}
	result.Duration = o.clock.Now().Sub(started)

	span.SetAttributes(
		attribute.String("file.status", string(result.Status)),
		attribute.Int("rows.total", result.TotalRows),
		attribute.Int("rows.accepted", result.AcceptedRows),
		attribute.Int("rows.rejected", result.RejectedRows),
	)
	log.Info("file ingestion finished",
		zap.String("status", string(result.Status)),
		zap.Int("total_rows", result.TotalRows),
		zap.Int("accepted_rows", result.AcceptedRows),
		zap.Int("rejected_rows", result.RejectedRows),
		zap.Float64("quality_score", result.QualityScore),
		zap.Duration("duration", result.Duration))
	return result, nil
}

func (o *Orchestrator) ingestLocked(ctx context.Context, file *catalog.CatalogFile, log *zap.Logger) (*IngestResult, error) {
	data, err := o.store.Fetch(ctx, file.Path)
	if err != nil {
		if shared.IsCode(err, shared.CodeNotFound) {
			return o.quarantineFile(ctx, file, log, "export file is missing from the file store")
		}
		return nil, fmt.Errorf("failed to fetch file bytes: %w", err)
	}

	// Configuration errors abort before the file changes state: a broken
	// dictionary must not burn files.
	dict, err := o.entries.LoadSnapshot(ctx, mapping.Scope{
		Platform:  file.Platform,
		Domain:    file.Domain,
		SubDomain: file.SubDomain,
	})
	if err != nil {
		return nil, err
	}
	if dict.Len() == 0 {
		return nil, shared.NewDomainErrorf(shared.CodeConfigurationError,
			"No active mapping rules for scope %s/%s/%s", file.Platform, file.Domain, file.SubDomain)
	}

	parser, err := fileparse.NewParser(data, file.EncodingHint, fileparse.WithHeaderRow(file.HeaderRow))
	if err != nil {
		if isStructural(err) {
			return o.quarantineFile(ctx, file, log, err.Error())
		}
		return nil, err
	}

	rows, err := parser.ReadAll()
	if err != nil {
		if isStructural(err) {
			return o.quarantineFile(ctx, file, log, err.Error())
		}
		return nil, err
	}

	if missing := dict.MissingRequiredHeaders(parser.Headers()); len(missing) > 0 {
		issues := make([]catalog.ValidationIssue, 0, len(missing))
		for _, h := range missing {
			issues = append(issues, catalog.ValidationIssue{
				Column:  h,
				Code:    shared.CodeValidationError,
				Message: fmt.Sprintf("required column %q is missing from the file header", h),
			})
		}
		if err := file.FailValidation(issues); err != nil {
			return nil, err
		}
		if err := o.files.Save(ctx, file); err != nil {
			return nil, fmt.Errorf("failed to save failed file: %w", err)
		}
		log.Warn("file failed header validation", zap.Strings("missing_headers", missing))
		return &IngestResult{FileID: file.ID, Status: file.Status}, nil
	}

	if err := file.MarkValidated(); err != nil {
		return nil, err
	}
	if err := o.files.Save(ctx, file); err != nil {
		return nil, fmt.Errorf("failed to save validated file: %w", err)
	}

	columns := dict.Resolve(parser.Headers())
	log.Debug("headers resolved",
		zap.Int("headers", len(parser.Headers())),
		zap.Int("mapped", columns.MappedCount()))

	converter, err := o.buildConverter(ctx, columns, rows)
	if err != nil {
		return nil, err
	}

	processor := NewRowProcessor(file, columns, converter, o.clock)
	outcomes, err := o.processRows(ctx, processor, rows)
	if err != nil {
		return nil, err
	}

	return o.commitBatch(ctx, file, outcomes, log)
}

// processRows fans the rows out over a bounded worker pool. Each worker
// writes its own slot, so no locking is needed on the result slice.
func (o *Orchestrator) processRows(ctx context.Context, processor *RowProcessor, rows []*fileparse.Row) ([]*RowOutcome, error) {
	outcomes := make([]*RowOutcome, len(rows))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.rowWorkers)
	for i, row := range rows {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out, err := processor.Process(row)
			if err != nil {
				return err
			}
			outcomes[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// commitBatch partitions the outcomes, writes quarantines, and commits
// accepted rows plus the advanced sync point in one transaction.
func (o *Orchestrator) commitBatch(ctx context.Context, file *catalog.CatalogFile, outcomes []*RowOutcome, log *zap.Logger) (*IngestResult, error) {
	var (
		accepted    []*ingest.CanonicalRow
		facts       []*ingest.MetricFact
		quarantines []*ingest.QuarantineRecord
		issues      []catalog.ValidationIssue
		maxDate     time.Time
	)

	// Later occurrences of a natural key supersede earlier ones within
	// the same file, mirroring what the upsert would do across files.
	rowIndex := make(map[string]int)
	factIndex := make(map[string]int)

	for _, out := range outcomes {
		if !out.Accepted() {
			quarantines = append(quarantines, out.Quarantine)
			if len(issues) < o.issueLimit {
				issues = append(issues, catalog.ValidationIssue{
					Row:     out.Quarantine.RowNumber,
					Column:  out.Quarantine.ErrorColumn,
					Code:    out.Quarantine.ErrorType,
					Message: out.Quarantine.ErrorMessage,
				})
			}
			continue
		}

		key := out.Row.Key().String()
		if i, ok := rowIndex[key]; ok {
			accepted[i] = out.Row
		} else {
			rowIndex[key] = len(accepted)
			accepted = append(accepted, out.Row)
		}

		for _, fact := range out.Facts {
			fk := fmt.Sprintf("%s/%s/%s/%s/%s/%s/%s/%s",
				fact.Platform, fact.Account, fact.EntityKey,
				fact.MetricDate.Format("2006-01-02"), fact.Granularity,
				fact.SkuScope, fact.MetricType, fact.Status)
			if i, ok := factIndex[fk]; ok {
				facts[i] = fact
			} else {
				factIndex[fk] = len(facts)
				facts = append(facts, fact)
			}
		}

		if out.MetricDate.After(maxDate) {
			maxDate = out.MetricDate
		}
	}

	if len(quarantines) > 0 {
		if err := o.quarantine.SaveBatch(ctx, quarantines); err != nil {
			return nil, fmt.Errorf("failed to save quarantine records: %w", err)
		}
	}

	if len(accepted) > 0 {
		sync, err := o.advanceSyncPoint(ctx, file, maxDate, int64(len(accepted)))
		if err != nil {
			return nil, err
		}
		if err := o.rows.UpsertBatch(ctx, accepted, facts, sync); err != nil {
			return nil, fmt.Errorf("failed to commit batch: %w", err)
		}

		if cleared, err := o.rows.ReconcilePendingParents(ctx, file.Platform, file.Account); err != nil {
			log.Warn("parent reconciliation failed", zap.Error(err))
		} else if cleared > 0 {
			log.Info("pending variant parents reconciled", zap.Int64("cleared", cleared))
		}
	}

	acceptedCount := len(outcomes) - len(quarantines)
	if err := file.CompleteIngestion(acceptedCount, len(outcomes), issues); err != nil {
		return nil, err
	}
	if err := o.files.Save(ctx, file); err != nil {
		return nil, fmt.Errorf("failed to save ingested file: %w", err)
	}

	if o.onIngested != nil && acceptedCount > 0 {
		go o.onIngested(context.WithoutCancel(ctx))
	}

	return &IngestResult{
		FileID:       file.ID,
		Status:       file.Status,
		TotalRows:    file.TotalRows,
		AcceptedRows: file.AcceptedRows,
		RejectedRows: file.RejectedRows,
		FactCount:    len(facts),
		QualityScore: file.QualityScore,
	}, nil
}

// advanceSyncPoint loads (or creates) the scope's bookmark and advances
// it in memory. The repository persists it inside the batch transaction,
// so a crash before commit leaves the stored bookmark untouched.
func (o *Orchestrator) advanceSyncPoint(ctx context.Context, file *catalog.CatalogFile, maxDate time.Time, records int64) (*ingest.SyncPoint, error) {
	sync, err := o.syncPoints.Find(ctx, file.Platform, file.Account, file.Domain)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) && !shared.IsCode(err, shared.CodeNotFound) {
			return nil, fmt.Errorf("failed to load sync point: %w", err)
		}
		sync, err = ingest.NewSyncPoint(file.Platform, file.Account, file.Domain)
		if err != nil {
			return nil, err
		}
	}

	watermark := ""
	if !maxDate.IsZero() {
		watermark = maxDate.Format("2006-01-02")
	}
	if err := sync.Advance(o.clock.Now(), watermark, records); err != nil {
		return nil, err
	}
	return sync, nil
}

// quarantineFile moves a structurally unreadable file to the quarantine
// layer; no row-level processing happens.
func (o *Orchestrator) quarantineFile(ctx context.Context, file *catalog.CatalogFile, log *zap.Logger, reason string) (*IngestResult, error) {
	if err := file.Quarantine(reason); err != nil {
		return nil, err
	}
	if err := o.files.Save(ctx, file); err != nil {
		return nil, fmt.Errorf("failed to save quarantined file: %w", err)
	}
	log.Warn("file quarantined", zap.String("reason", reason))
	return &IngestResult{FileID: file.ID, Status: file.Status}, nil
}

// Reingest resets a terminal file and runs the pipeline again. The
// natural-key upsert makes this safe: corrected rows supersede, clean
// re-runs converge to the same state. Open quarantine records from the
// prior run are closed first so the file's quarantine count reflects
// only the new run.
func (o *Orchestrator) Reingest(ctx context.Context, fileID uuid.UUID) (*IngestResult, error) {
	file, err := o.files.FindByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if err := file.ResetForReingest(); err != nil {
		return nil, err
	}
	if err := o.files.Save(ctx, file); err != nil {
		return nil, fmt.Errorf("failed to reset file: %w", err)
	}
	superseded, err := o.quarantine.ResolveOpenByCatalogFile(ctx, fileID, "superseded by re-ingest")
	if err != nil {
		return nil, fmt.Errorf("failed to close prior quarantine records: %w", err)
	}
	if superseded > 0 {
		o.logger.Info("prior quarantine records superseded",
			zap.String("file_id", fileID.String()),
			zap.Int64("records", superseded))
	}
	return o.IngestFile(ctx, fileID)
}

// ProcessPending ingests every pending catalog file, oldest first.
// Failures are logged per file and do not stop the sweep; scope-locked
// files are skipped and picked up next round.
func (o *Orchestrator) ProcessPending(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 50
	}
	pending, err := o.files.FindByStatus(ctx, catalog.StatusPending, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending files: %w", err)
	}

	processed := 0
	for i := range pending {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		file := &pending[i]
		if _, err := o.IngestFile(ctx, file.ID); err != nil {
			if shared.IsCode(err, shared.CodeScopeLocked) {
				o.logger.Debug("scope busy, skipping file", zap.String("file_id", file.ID.String()))
				continue
			}
			o.logger.Error("file ingestion failed",
				zap.String("file_id", file.ID.String()),
				zap.String("path", file.Path),
				zap.Error(err))
			continue
		}
		processed++
	}
	return processed, nil
}

// buildConverter loads the rate quotes covering the file's metric-date
// range (plus the lookback margin) into an immutable converter. Files
// with no convertible columns get an empty converter that only handles
// base-currency amounts.
func (o *Orchestrator) buildConverter(ctx context.Context, columns *mapping.ColumnMapping, rows []*fileparse.Row) (*exchange.Converter, error) {
	if !needsConversion(columns) {
		return exchange.NewConverter(o.baseCurrency, nil, o.lookbackDays), nil
	}

	minDate, maxDate := metricDateRange(columns, rows, o.clock.Now())
	from := minDate.AddDate(0, 0, -o.lookbackDays)
	quotes, err := o.rates.FindWindow(ctx, o.baseCurrency, from, maxDate)
	if err != nil {
		return nil, fmt.Errorf("failed to load exchange rates: %w", err)
	}
	return exchange.NewConverter(o.baseCurrency, quotes, o.lookbackDays), nil
}

func needsConversion(columns *mapping.ColumnMapping) bool {
	for _, col := range columns.Columns {
		if col.Entry != nil && col.Entry.CurrencyPolicy == mapping.PolicyConvert {
			return true
		}
	}
	return false
}

// metricDateRange scans the raw metric-date column to bound the rate
// window. Unparseable or absent dates fall back to today.
func metricDateRange(columns *mapping.ColumnMapping, rows []*fileparse.Row, now time.Time) (time.Time, time.Time) {
	var dateCol *mapping.ResolvedColumn
	var layout string
	for i := range columns.Columns {
		col := &columns.Columns[i]
		if col.Kind == mapping.ColumnCanonical && col.Entry.TargetColumn == fieldMetricDate {
			dateCol = col
			layout = col.Entry.DateFormat
			break
		}
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if dateCol == nil {
		return today, today
	}

	var minDate, maxDate time.Time
	for _, row := range rows {
		raw := row.Get(dateCol.Header)
		if raw == "" {
			continue
		}
		t, err := parseDate(raw, layout)
		if err != nil {
			continue
		}
		if minDate.IsZero() || t.Before(minDate) {
			minDate = t
		}
		if t.After(maxDate) {
			maxDate = t
		}
	}
	if minDate.IsZero() {
		return today, today
	}
	return minDate, maxDate
}

// isStructural classifies parser failures that condemn the whole file.
func isStructural(err error) bool {
	return errors.Is(err, fileparse.ErrEmptyFile) ||
		errors.Is(err, fileparse.ErrInvalidEncoding) ||
		errors.Is(err, fileparse.ErrUnsupportedEncoding) ||
		errors.Is(err, fileparse.ErrMissingHeader) ||
		errors.Is(err, fileparse.ErrNoDataRows)
}
