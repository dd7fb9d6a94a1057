package ingestapp

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timberdayz/datahub/internal/domain/catalog"
	"github.com/timberdayz/datahub/internal/domain/exchange"
	"github.com/timberdayz/datahub/internal/domain/ingest"
	"github.com/timberdayz/datahub/internal/domain/mapping"
	"github.com/timberdayz/datahub/internal/domain/shared"
	"github.com/timberdayz/datahub/internal/domain/shared/valueobject"
	"github.com/timberdayz/datahub/internal/infrastructure/filestore"
	"github.com/timberdayz/datahub/internal/infrastructure/lock"
	"github.com/timberdayz/datahub/internal/infrastructure/persistence"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const happyCSV = `SKU,Order Date,Amount,Currency,Qty,Conv Rate,Status,Variant ID,GMV_USD_refunded,Note
SKU-1,2026-08-15,10.00,usd,5,2.5%,paid,,12.3456,gift
SKU-2,2026-08-15,20.00,usd,3,1%,paid,,8.00,
`

type orchestratorHarness struct {
	orchestrator *Orchestrator
	db           *gorm.DB
	root         string
	locker       *lock.MemoryLocker
	files        *persistence.GormFileRepository
	rows         *persistence.GormRowRepository
	quarantine   *persistence.GormQuarantineRepository
	syncPoints   *persistence.GormSyncPointRepository
}

func newOrchestratorHarness(t *testing.T, opts ...OrchestratorOption) *orchestratorHarness {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&catalog.CatalogFile{}, &mapping.Entry{}, &exchange.Rate{},
		&ingest.CanonicalRow{}, &ingest.MetricFact{},
		&ingest.QuarantineRecord{}, &ingest.SyncPoint{},
	))

	root := t.TempDir()
	store, err := filestore.NewLocalStore(root)
	require.NoError(t, err)

	h := &orchestratorHarness{
		db:         db,
		root:       root,
		locker:     lock.NewMemoryLocker(),
		files:      persistence.NewGormFileRepository(db),
		rows:       persistence.NewGormRowRepository(db),
		quarantine: persistence.NewGormQuarantineRepository(db),
		syncPoints: persistence.NewGormSyncPointRepository(db),
	}
	h.orchestrator = NewOrchestrator(OrchestratorDeps{
		Files:      h.files,
		Entries:    persistence.NewGormMappingRepository(db),
		Rates:      persistence.NewGormRateRepository(db),
		Rows:       h.rows,
		Quarantine: h.quarantine,
		SyncPoints: h.syncPoints,
		Store:      store,
		Locker:     h.locker,
		Clock:      testClock,
	}, append([]OrchestratorOption{WithRowWorkers(2)}, opts...)...)
	return h
}

func (h *orchestratorHarness) seedMapping(t *testing.T) {
	t.Helper()
	entries := testEntries()
	require.NoError(t, h.db.Create(&entries).Error)
}

func (h *orchestratorHarness) seedRate(t *testing.T) {
	t.Helper()
	rate, err := exchange.NewRate(valueobject.USD, valueobject.CNY, testDay,
		decimal.RequireFromString("7.00"), "test", 0)
	require.NoError(t, err)
	require.NoError(t, h.db.Create(rate).Error)
}

func (h *orchestratorHarness) registerFile(t *testing.T, name, content string) *catalog.CatalogFile {
	t.Helper()
	if content != "" {
		require.NoError(t, os.WriteFile(filepath.Join(h.root, name), []byte(content), 0o644))
	}
	file, err := h.orchestrator.RegisterFile(context.Background(), name,
		catalog.PlatformShopee, "acct-1", catalog.DomainOrders, "", catalog.GranularityDaily)
	require.NoError(t, err)
	return file
}

func TestOrchestrator_IngestFile(t *testing.T) {
	ctx := context.Background()

	t.Run("ingests a clean file end to end", func(t *testing.T) {
		h := newOrchestratorHarness(t)
		h.seedMapping(t)
		h.seedRate(t)
		file := h.registerFile(t, "orders.csv", happyCSV)

		result, err := h.orchestrator.IngestFile(ctx, file.ID)
		require.NoError(t, err)
		assert.Equal(t, catalog.StatusIngested, result.Status)
		assert.Equal(t, 2, result.TotalRows)
		assert.Equal(t, 2, result.AcceptedRows)
		assert.Equal(t, 0, result.RejectedRows)
		assert.Equal(t, 2, result.FactCount)
		assert.InDelta(t, 100, result.QualityScore, 0.001)

		rows, err := h.rows.RowsByCatalogFile(ctx, file.ID)
		require.NoError(t, err)
		require.Len(t, rows, 2)

		attrs, err := rows[0].Attributes()
		require.NoError(t, err)
		assert.Equal(t, "gift", attrs["Note"])

		facts, err := h.rows.FactsByKey(ctx, rows[0].Key())
		require.NoError(t, err)
		require.Len(t, facts, 1)
		assert.Equal(t, "gmv", facts[0].MetricType)
		assert.Equal(t, "refunded", facts[0].Status)
		require.True(t, facts[0].AmountBase.Valid)
		assert.True(t, facts[0].AmountBase.Decimal.Equal(decimal.RequireFromString("86.42")))

		sp, err := h.syncPoints.Find(ctx, catalog.PlatformShopee, "acct-1", catalog.DomainOrders)
		require.NoError(t, err)
		assert.Equal(t, "2026-08-15", sp.LastValue)
		assert.Equal(t, int64(2), sp.RecordCount)
		assert.Equal(t, int64(1), sp.BatchCount)
	})

	t.Run("re-ingesting the same file converges to the same state", func(t *testing.T) {
		h := newOrchestratorHarness(t)
		h.seedMapping(t)
		h.seedRate(t)
		file := h.registerFile(t, "orders.csv", happyCSV)

		_, err := h.orchestrator.IngestFile(ctx, file.ID)
		require.NoError(t, err)

		result, err := h.orchestrator.Reingest(ctx, file.ID)
		require.NoError(t, err)
		assert.Equal(t, catalog.StatusIngested, result.Status)

		var rowCount, factCount int64
		require.NoError(t, h.db.Model(&ingest.CanonicalRow{}).Count(&rowCount).Error)
		require.NoError(t, h.db.Model(&ingest.MetricFact{}).Count(&factCount).Error)
		assert.Equal(t, int64(2), rowCount)
		assert.Equal(t, int64(2), factCount)

		sp, err := h.syncPoints.Find(ctx, catalog.PlatformShopee, "acct-1", catalog.DomainOrders)
		require.NoError(t, err)
		assert.Equal(t, int64(2), sp.BatchCount)
	})

	t.Run("correcting a bad row closes its quarantine on re-ingest", func(t *testing.T) {
		h := newOrchestratorHarness(t)
		h.seedMapping(t)
		h.seedRate(t)
		broken := "SKU,Order Date,Amount,Currency\n" +
			"SKU-1,2026-08-15,10.00,usd\n" +
			"SKU-2,2026-08-15,notanumber,usd\n"
		file := h.registerFile(t, "orders.csv", broken)

		result, err := h.orchestrator.IngestFile(ctx, file.ID)
		require.NoError(t, err)
		assert.InDelta(t, 50, result.QualityScore, 0.001)

		open, err := h.quarantine.CountOpenByCatalogFile(ctx, file.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), open)

		corrected := "SKU,Order Date,Amount,Currency\n" +
			"SKU-1,2026-08-15,10.00,usd\n" +
			"SKU-2,2026-08-15,20.00,usd\n"
		require.NoError(t, os.WriteFile(filepath.Join(h.root, "orders.csv"), []byte(corrected), 0o644))

		result, err = h.orchestrator.Reingest(ctx, file.ID)
		require.NoError(t, err)
		assert.Equal(t, catalog.StatusIngested, result.Status)
		assert.InDelta(t, 100, result.QualityScore, 0.001)

		open, err = h.quarantine.CountOpenByCatalogFile(ctx, file.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), open)

		records, err := h.quarantine.FindByCatalogFile(ctx, file.ID)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, ingest.ResolutionResolved, records[0].Resolution)
		assert.Equal(t, "superseded by re-ingest", records[0].ResolutionNote)
	})

	t.Run("bad rows are quarantined without losing the good ones", func(t *testing.T) {
		h := newOrchestratorHarness(t)
		h.seedMapping(t)
		h.seedRate(t)
		csv := "SKU,Order Date,Amount,Currency\n" +
			"SKU-1,2026-08-15,10.00,usd\n" +
			"SKU-2,2026-08-15,notanumber,usd\n"
		file := h.registerFile(t, "orders.csv", csv)

		result, err := h.orchestrator.IngestFile(ctx, file.ID)
		require.NoError(t, err)
		assert.Equal(t, catalog.StatusPartialSuccess, result.Status)
		assert.Equal(t, 1, result.AcceptedRows)
		assert.Equal(t, 1, result.RejectedRows)
		assert.InDelta(t, 50, result.QualityScore, 0.001)

		records, err := h.quarantine.FindByCatalogFile(ctx, file.ID)
		require.NoError(t, err)
		require.Len(t, records, 1)
		raw, err := records[0].RawRow()
		require.NoError(t, err)
		assert.Equal(t, "notanumber", raw["Amount"])
		assert.Equal(t, "SKU-2", raw["SKU"])
	})

	t.Run("the issue limit caps recorded issues, not quarantines", func(t *testing.T) {
		h := newOrchestratorHarness(t, WithIssueLimit(1))
		h.seedMapping(t)
		h.seedRate(t)
		csv := "SKU,Order Date,Amount,Currency\n" +
			"SKU-1,2026-08-15,bad,usd\n" +
			"SKU-2,2026-08-15,worse,usd\n"
		file := h.registerFile(t, "orders.csv", csv)

		result, err := h.orchestrator.IngestFile(ctx, file.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, result.RejectedRows)

		stored, err := h.files.FindByID(ctx, file.ID)
		require.NoError(t, err)
		issues, err := stored.Issues()
		require.NoError(t, err)
		assert.Len(t, issues, 1)

		records, err := h.quarantine.FindByCatalogFile(ctx, file.ID)
		require.NoError(t, err)
		assert.Len(t, records, 2)
	})

	t.Run("a file with only bad rows fails without advancing the sync point", func(t *testing.T) {
		h := newOrchestratorHarness(t)
		h.seedMapping(t)
		h.seedRate(t)
		csv := "SKU,Order Date,Amount,Currency\n,2026-08-15,10.00,usd\n"
		file := h.registerFile(t, "orders.csv", csv)

		result, err := h.orchestrator.IngestFile(ctx, file.ID)
		require.NoError(t, err)
		assert.Equal(t, catalog.StatusFailed, result.Status)

		_, err = h.syncPoints.Find(ctx, catalog.PlatformShopee, "acct-1", catalog.DomainOrders)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("rows outside the rate window are quarantined as rate-not-found", func(t *testing.T) {
		h := newOrchestratorHarness(t)
		h.seedMapping(t)
		h.seedRate(t)
		csv := "SKU,Order Date,Amount,Currency\nSKU-1,2026-08-01,10.00,usd\n"
		file := h.registerFile(t, "orders.csv", csv)

		result, err := h.orchestrator.IngestFile(ctx, file.ID)
		require.NoError(t, err)
		assert.Equal(t, catalog.StatusFailed, result.Status)

		records, err := h.quarantine.FindByCatalogFile(ctx, file.ID)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, shared.CodeRateNotFound, records[0].ErrorType)
	})

	t.Run("an empty file is quarantined whole", func(t *testing.T) {
		h := newOrchestratorHarness(t)
		h.seedMapping(t)
		require.NoError(t, os.WriteFile(filepath.Join(h.root, "empty.csv"), nil, 0o644))
		file := h.registerFile(t, "empty.csv", "")

		result, err := h.orchestrator.IngestFile(ctx, file.ID)
		require.NoError(t, err)
		assert.Equal(t, catalog.StatusQuarantined, result.Status)

		stored, err := h.files.FindByID(ctx, file.ID)
		require.NoError(t, err)
		assert.Equal(t, catalog.LayerQuarantine, stored.Layer)
	})

	t.Run("a vanished file is quarantined, not errored", func(t *testing.T) {
		h := newOrchestratorHarness(t)
		h.seedMapping(t)
		file := h.registerFile(t, "ghost.csv", "")

		result, err := h.orchestrator.IngestFile(ctx, file.ID)
		require.NoError(t, err)
		assert.Equal(t, catalog.StatusQuarantined, result.Status)
	})

	t.Run("missing required headers fail validation before row processing", func(t *testing.T) {
		h := newOrchestratorHarness(t)
		h.seedMapping(t)
		csv := "Product,Order Date\nSKU-1,2026-08-15\n"
		file := h.registerFile(t, "orders.csv", csv)

		result, err := h.orchestrator.IngestFile(ctx, file.ID)
		require.NoError(t, err)
		assert.Equal(t, catalog.StatusFailed, result.Status)

		stored, err := h.files.FindByID(ctx, file.ID)
		require.NoError(t, err)
		issues, err := stored.Issues()
		require.NoError(t, err)
		require.NotEmpty(t, issues)
		assert.Equal(t, "SKU", issues[0].Column)
	})

	t.Run("an empty mapping dictionary aborts without burning the file", func(t *testing.T) {
		h := newOrchestratorHarness(t)
		file := h.registerFile(t, "orders.csv", happyCSV)

		_, err := h.orchestrator.IngestFile(ctx, file.ID)
		assert.True(t, shared.IsCode(err, shared.CodeConfigurationError))

		stored, err := h.files.FindByID(ctx, file.ID)
		require.NoError(t, err)
		assert.Equal(t, catalog.StatusPending, stored.Status)
	})

	t.Run("non-pending files are rejected", func(t *testing.T) {
		h := newOrchestratorHarness(t)
		h.seedMapping(t)
		h.seedRate(t)
		file := h.registerFile(t, "orders.csv", happyCSV)

		_, err := h.orchestrator.IngestFile(ctx, file.ID)
		require.NoError(t, err)

		_, err = h.orchestrator.IngestFile(ctx, file.ID)
		assert.True(t, shared.IsCode(err, shared.CodeInvalidState))
	})

	t.Run("a held scope lock fails fast", func(t *testing.T) {
		h := newOrchestratorHarness(t)
		h.seedMapping(t)
		file := h.registerFile(t, "orders.csv", happyCSV)

		release, err := h.locker.Acquire(ctx, lock.ScopeKey{
			Platform: catalog.PlatformShopee, Account: "acct-1", Domain: catalog.DomainOrders,
		})
		require.NoError(t, err)
		defer release()

		_, err = h.orchestrator.IngestFile(ctx, file.ID)
		assert.True(t, shared.IsCode(err, shared.CodeScopeLocked))
	})

	t.Run("the ingested hook fires after a committed batch", func(t *testing.T) {
		done := make(chan struct{}, 1)
		h := newOrchestratorHarness(t, WithIngestedHook(func(context.Context) {
			done <- struct{}{}
		}))
		h.seedMapping(t)
		h.seedRate(t)
		file := h.registerFile(t, "orders.csv", happyCSV)

		_, err := h.orchestrator.IngestFile(ctx, file.ID)
		require.NoError(t, err)

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("ingested hook did not fire")
		}
	})
}

func TestOrchestrator_ProcessPending(t *testing.T) {
	ctx := context.Background()
	h := newOrchestratorHarness(t)
	h.seedMapping(t)
	h.seedRate(t)

	h.registerFile(t, "a.csv", happyCSV)
	broken := "SKU,Order Date,Amount,Currency\n,2026-08-15,1.00,usd\n"
	h.registerFile(t, "b.csv", broken)

	processed, err := h.orchestrator.ProcessPending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, processed)

	pending, err := h.files.FindByStatus(ctx, catalog.StatusPending, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestGovernanceService(t *testing.T) {
	ctx := context.Background()
	h := newOrchestratorHarness(t)
	h.seedMapping(t)
	h.seedRate(t)

	csv := "SKU,Order Date,Amount,Currency\n" +
		"SKU-1,2026-08-15,10.00,usd\n" +
		"SKU-2,2026-08-15,oops,usd\n"
	file := h.registerFile(t, "orders.csv", csv)
	_, err := h.orchestrator.IngestFile(ctx, file.ID)
	require.NoError(t, err)

	svc := NewGovernanceService(h.files, h.rows, h.quarantine, nil)

	t.Run("lineage traces rows and quarantines back to the file", func(t *testing.T) {
		report, err := svc.Lineage(ctx, file.ID)
		require.NoError(t, err)
		assert.Equal(t, catalog.StatusPartialSuccess, report.File.Status)
		assert.Len(t, report.Rows, 1)
		assert.Len(t, report.Quarantined, 1)
		assert.Equal(t, int64(1), report.OpenQuarantines)
	})

	t.Run("resolving a quarantine closes it", func(t *testing.T) {
		records, err := h.quarantine.FindByCatalogFile(ctx, file.ID)
		require.NoError(t, err)

		resolved, err := svc.ResolveQuarantine(ctx, records[0].ID, "source corrected upstream")
		require.NoError(t, err)
		assert.Equal(t, ingest.ResolutionResolved, resolved.Resolution)

		report, err := svc.Lineage(ctx, file.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), report.OpenQuarantines)
	})

	t.Run("ignoring an already-resolved record is rejected", func(t *testing.T) {
		records, err := h.quarantine.FindByCatalogFile(ctx, file.ID)
		require.NoError(t, err)

		_, err = svc.IgnoreQuarantine(ctx, records[0].ID, "sandbox row")
		assert.True(t, shared.IsCode(err, shared.CodeInvalidState))
	})
}
