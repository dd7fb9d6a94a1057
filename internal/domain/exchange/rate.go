package exchange

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/timberdayz/datahub/internal/domain/shared"
	"github.com/timberdayz/datahub/internal/domain/shared/valueobject"
)

// Rate is one exchange-rate quote: (from, to, date) -> rate. Multiple
// providers may quote the same day-pair; ascending priority decides
// which wins (lower = more authoritative).
type Rate struct {
	shared.BaseEntity
	FromCurrency valueobject.Currency `gorm:"not null;index:idx_rate_pair_date"`
	ToCurrency   valueobject.Currency `gorm:"not null;index:idx_rate_pair_date"`
	RateDate     time.Time            `gorm:"not null;index:idx_rate_pair_date;type:date"`
	Value        decimal.Decimal      `gorm:"not null;type:numeric(20,8)"`
	Source       string               `gorm:"not null;default:''"`
	Priority     int                  `gorm:"not null;default:100"`
}

// TableName returns the database table name
func (Rate) TableName() string {
	return "exchange_rates"
}

// NewRate creates a rate quote for one day-pair.
func NewRate(from, to valueobject.Currency, rateDate time.Time, value decimal.Decimal, source string, priority int) (*Rate, error) {
	if from == "" || to == "" {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Currency pair cannot be empty")
	}
	if from == to {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Currency pair must differ")
	}
	if !value.IsPositive() {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Exchange rate must be positive")
	}
	return &Rate{
		BaseEntity:   shared.NewBaseEntity(),
		FromCurrency: from,
		ToCurrency:   to,
		RateDate:     truncateToDay(rateDate),
		Value:        value,
		Source:       source,
		Priority:     priority,
	}, nil
}

// RateRepository loads exchange rates from the rate table.
type RateRepository interface {
	Save(ctx context.Context, rate *Rate) error
	// FindWindow returns all quotes converting into or out of the base
	// currency with rate_date in [from, to], newest first.
	FindWindow(ctx context.Context, base valueobject.Currency, from, to time.Time) ([]Rate, error)
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
