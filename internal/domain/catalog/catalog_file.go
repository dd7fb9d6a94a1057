package catalog

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/timberdayz/datahub/internal/domain/shared"
)

// Platform identifies the marketplace a file was exported from.
type Platform string

const (
	PlatformAmazon  Platform = "amazon"
	PlatformShopee  Platform = "shopee"
	PlatformLazada  Platform = "lazada"
	PlatformTikTok  Platform = "tiktok"
	PlatformTemu    Platform = "temu"
	PlatformGeneric Platform = "generic"
)

// DataDomain is the business domain a file's rows belong to.
type DataDomain string

const (
	DomainOrders    DataDomain = "orders"
	DomainProducts  DataDomain = "products"
	DomainTraffic   DataDomain = "traffic"
	DomainServices  DataDomain = "services"
	DomainInventory DataDomain = "inventory"
)

// IsValid checks if the data domain is one of the known domains
func (d DataDomain) IsValid() bool {
	switch d {
	case DomainOrders, DomainProducts, DomainTraffic, DomainServices, DomainInventory:
		return true
	}
	return false
}

// Granularity is the time grain of the rows in a file.
type Granularity string

const (
	GranularityDaily    Granularity = "daily"
	GranularityWeekly   Granularity = "weekly"
	GranularityMonthly  Granularity = "monthly"
	GranularitySnapshot Granularity = "snapshot"
)

// IsValid checks if the granularity is valid
func (g Granularity) IsValid() bool {
	switch g {
	case GranularityDaily, GranularityWeekly, GranularityMonthly, GranularitySnapshot:
		return true
	}
	return false
}

// StorageLayer is the lifecycle layer a file currently lives in.
type StorageLayer string

const (
	LayerRaw        StorageLayer = "raw"
	LayerStaging    StorageLayer = "staging"
	LayerCurated    StorageLayer = "curated"
	LayerQuarantine StorageLayer = "quarantine"
)

// FileStatus is the ingestion state of a catalog file.
type FileStatus string

const (
	StatusPending        FileStatus = "pending"
	StatusValidated      FileStatus = "validated"
	StatusIngested       FileStatus = "ingested"
	StatusPartialSuccess FileStatus = "partial_success"
	StatusFailed         FileStatus = "failed"
	StatusQuarantined    FileStatus = "quarantined"
)

// IsValid checks if the status is valid
func (s FileStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusValidated, StatusIngested,
		StatusPartialSuccess, StatusFailed, StatusQuarantined:
		return true
	}
	return false
}

// IsTerminal returns true if no further processing happens in this state
func (s FileStatus) IsTerminal() bool {
	switch s {
	case StatusIngested, StatusPartialSuccess, StatusFailed, StatusQuarantined:
		return true
	}
	return false
}

// ValidationIssue is one recorded problem with a file's contents or structure.
type ValidationIssue struct {
	Row     int    `json:"row,omitempty"`
	Column  string `json:"column,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CatalogFile is one physical export file and its journey from raw bytes
// to governed data. Files are never deleted, only superseded.
type CatalogFile struct {
	shared.BaseAggregateRoot
	Path          string       `gorm:"not null;index"`
	Platform      Platform     `gorm:"not null;index:idx_catalog_scope"`
	Account       string       `gorm:"not null;index:idx_catalog_scope"`
	Domain        DataDomain   `gorm:"not null;index:idx_catalog_scope"`
	SubDomain     string       `gorm:"index"`
	Granularity   Granularity  `gorm:"not null;default:'daily'"`
	Layer         StorageLayer `gorm:"not null;default:'raw'"`
	Status        FileStatus   `gorm:"not null;default:'pending';index"`
	QualityScore  float64      `gorm:"not null;default:0"`
	TotalRows     int          `gorm:"not null;default:0"`
	AcceptedRows  int          `gorm:"not null;default:0"`
	RejectedRows  int          `gorm:"not null;default:0"`
	IssuesJSON    string       `gorm:"column:issues;type:text"`
	MetadataPath  string
	HeaderRow     int    `gorm:"not null;default:1"`
	SheetHint     string
	EncodingHint  string
	IngestedAt    *time.Time
	QuarantinedAt *time.Time
}

// TableName returns the database table name
func (CatalogFile) TableName() string {
	return "catalog_files"
}

// NewCatalogFile registers a newly discovered export file in the raw layer.
func NewCatalogFile(path string, platform Platform, account string, domain DataDomain, subDomain string, granularity Granularity) (*CatalogFile, error) {
	if path == "" {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "File path cannot be empty")
	}
	if platform == "" {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Platform cannot be empty")
	}
	if account == "" {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Account cannot be empty")
	}
	if !domain.IsValid() {
		return nil, shared.NewDomainErrorf(shared.CodeInvalidInput, "Invalid data domain: %s", domain)
	}
	if granularity == "" {
		granularity = GranularityDaily
	}
	if !granularity.IsValid() {
		return nil, shared.NewDomainErrorf(shared.CodeInvalidInput, "Invalid granularity: %s", granularity)
	}

	return &CatalogFile{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Path:              path,
		Platform:          platform,
		Account:           account,
		Domain:            domain,
		SubDomain:         subDomain,
		Granularity:       granularity,
		Layer:             LayerRaw,
		Status:            StatusPending,
		HeaderRow:         1,
	}, nil
}

// MarkValidated records that the file's headers were resolved against the
// mapping dictionary. Only reachable from pending.
func (f *CatalogFile) MarkValidated() error {
	if f.Status != StatusPending {
		return shared.NewDomainErrorf(shared.CodeInvalidState, "Cannot validate file in state %s", f.Status)
	}
	f.Status = StatusValidated
	f.Layer = LayerStaging
	f.UpdatedAt = time.Now()
	f.IncrementVersion()
	return nil
}

// CompleteIngestion finalizes row processing. The quality score is always
// recomputed from the batch totals, never patched incrementally.
func (f *CatalogFile) CompleteIngestion(accepted, total int, issues []ValidationIssue) error {
	if f.Status != StatusValidated {
		return shared.NewDomainErrorf(shared.CodeInvalidState, "Cannot complete ingestion from state %s", f.Status)
	}
	if total < 0 || accepted < 0 || accepted > total {
		return shared.NewDomainError(shared.CodeInvalidInput, "Invalid row counts")
	}

	f.TotalRows = total
	f.AcceptedRows = accepted
	f.RejectedRows = total - accepted
	f.QualityScore = computeQualityScore(accepted, total)

	switch {
	case total > 0 && accepted == 0:
		f.Status = StatusFailed
	case accepted < total:
		f.Status = StatusPartialSuccess
		f.Layer = LayerCurated
	default:
		f.Status = StatusIngested
		f.Layer = LayerCurated
	}

	if err := f.setIssues(issues); err != nil {
		return err
	}

	now := time.Now()
	f.IngestedAt = &now
	f.UpdatedAt = now
	f.IncrementVersion()
	return nil
}

// FailValidation marks a pending file as failed because its headers could
// not be confirmed against the mapping dictionary (e.g. required columns
// are absent). No row-level processing happens for such files.
func (f *CatalogFile) FailValidation(issues []ValidationIssue) error {
	if f.Status != StatusPending {
		return shared.NewDomainErrorf(shared.CodeInvalidState, "Cannot fail validation from state %s", f.Status)
	}
	f.Status = StatusFailed
	f.QualityScore = 0
	if err := f.setIssues(issues); err != nil {
		return err
	}
	f.UpdatedAt = time.Now()
	f.IncrementVersion()
	return nil
}

// Quarantine moves the whole file to the quarantine layer. Reachable from
// any non-terminal state; used when the file itself is structurally
// unreadable and no row-level processing is possible.
func (f *CatalogFile) Quarantine(reason string) error {
	if f.Status.IsTerminal() {
		return shared.NewDomainErrorf(shared.CodeInvalidState, "Cannot quarantine file in terminal state %s", f.Status)
	}
	f.Status = StatusQuarantined
	f.Layer = LayerQuarantine
	f.QualityScore = 0
	if err := f.setIssues([]ValidationIssue{{
		Code:    shared.CodeStructuralFileError,
		Message: reason,
	}}); err != nil {
		return err
	}
	now := time.Now()
	f.QuarantinedAt = &now
	f.UpdatedAt = now
	f.IncrementVersion()
	return nil
}

// ResetForReingest returns a terminal file to pending so a corrected
// version of the same file can be processed again. Counters are cleared;
// the quality score is recomputed by the next batch.
func (f *CatalogFile) ResetForReingest() error {
	if !f.Status.IsTerminal() {
		return shared.NewDomainErrorf(shared.CodeInvalidState, "Cannot reset file in state %s", f.Status)
	}
	f.Status = StatusPending
	f.Layer = LayerRaw
	f.TotalRows = 0
	f.AcceptedRows = 0
	f.RejectedRows = 0
	f.QualityScore = 0
	f.IssuesJSON = ""
	f.IngestedAt = nil
	f.QuarantinedAt = nil
	f.UpdatedAt = time.Now()
	f.IncrementVersion()
	return nil
}

// Issues returns the recorded validation issues
func (f *CatalogFile) Issues() ([]ValidationIssue, error) {
	if f.IssuesJSON == "" || f.IssuesJSON == "[]" {
		return nil, nil
	}
	var issues []ValidationIssue
	if err := json.Unmarshal([]byte(f.IssuesJSON), &issues); err != nil {
		return nil, fmt.Errorf("failed to unmarshal validation issues: %w", err)
	}
	return issues, nil
}

func (f *CatalogFile) setIssues(issues []ValidationIssue) error {
	if len(issues) == 0 {
		f.IssuesJSON = ""
		return nil
	}
	data, err := json.Marshal(issues)
	if err != nil {
		return fmt.Errorf("failed to marshal validation issues: %w", err)
	}
	f.IssuesJSON = string(data)
	return nil
}

// computeQualityScore is 100 * accepted / total, 0 for empty files.
func computeQualityScore(accepted, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(accepted) / float64(total) * 100
}
