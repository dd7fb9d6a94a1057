package views

import (
	"time"

	"github.com/timberdayz/datahub/internal/domain/shared"
)

// RefreshStatus is the state of one aggregate-view refresh attempt.
type RefreshStatus string

const (
	RefreshRunning RefreshStatus = "running"
	RefreshSuccess RefreshStatus = "success"
	RefreshFailed  RefreshStatus = "failed"
)

// RefreshLog is one row per refresh attempt per view. The table is an
// append-only audit trail; completion is observable here, which gives
// callers a poll-able signal without a cancellation contract.
type RefreshLog struct {
	shared.BaseEntity
	ViewName    string        `gorm:"not null;index"`
	Status      RefreshStatus `gorm:"not null;index"`
	StartedAt   time.Time     `gorm:"not null"`
	CompletedAt *time.Time
	DurationMS  int64  `gorm:"not null;default:0"`
	RowCount    int64  `gorm:"not null;default:0"`
	Error       string
	TriggeredBy string `gorm:"not null;default:'schedule'"` // schedule | ingest | manual
}

// TableName returns the database table name
func (RefreshLog) TableName() string {
	return "refresh_logs"
}

// NewRefreshLog opens a running log entry for one attempt.
func NewRefreshLog(viewName, triggeredBy string, startedAt time.Time) (*RefreshLog, error) {
	if viewName == "" {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "View name cannot be empty")
	}
	if triggeredBy == "" {
		triggeredBy = "schedule"
	}
	return &RefreshLog{
		BaseEntity:  shared.NewBaseEntity(),
		ViewName:    viewName,
		Status:      RefreshRunning,
		StartedAt:   startedAt,
		TriggeredBy: triggeredBy,
	}, nil
}

// Succeed closes the attempt as successful.
func (l *RefreshLog) Succeed(completedAt time.Time, rowCount int64) error {
	if l.Status != RefreshRunning {
		return shared.NewDomainErrorf(shared.CodeInvalidState, "Refresh log already %s", l.Status)
	}
	l.Status = RefreshSuccess
	l.CompletedAt = &completedAt
	l.DurationMS = completedAt.Sub(l.StartedAt).Milliseconds()
	l.RowCount = rowCount
	l.UpdatedAt = completedAt
	return nil
}

// Fail closes the attempt as failed; the previous materialized snapshot
// remains authoritative.
func (l *RefreshLog) Fail(completedAt time.Time, errMsg string) error {
	if l.Status != RefreshRunning {
		return shared.NewDomainErrorf(shared.CodeInvalidState, "Refresh log already %s", l.Status)
	}
	if errMsg == "" {
		errMsg = "unknown refresh failure"
	}
	l.Status = RefreshFailed
	l.CompletedAt = &completedAt
	l.DurationMS = completedAt.Sub(l.StartedAt).Milliseconds()
	l.Error = errMsg
	l.UpdatedAt = completedAt
	return nil
}

// Freshness describes how current one view is.
type Freshness struct {
	ViewName       string
	LastSuccessAt  *time.Time
	LastRowCount   int64
	StalenessMins  float64
	LastStatus     RefreshStatus
	LastError      string
	NeverRefreshed bool
}
