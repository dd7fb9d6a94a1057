package exchange

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/timberdayz/datahub/internal/domain/shared"
	"github.com/timberdayz/datahub/internal/domain/shared/valueobject"
)

// DefaultLookbackDays bounds how far back the converter searches for a
// rate when the exact as-of date has no quote.
const DefaultLookbackDays = 7

// Conversion is the outcome of one currency normalization: the converted
// amount in the base currency plus the rate actually used, for
// auditability.
type Conversion struct {
	Amount   valueobject.Money
	Rate     decimal.Decimal
	RateDate time.Time
	Source   string
	Inverse  bool // true when derived from the reciprocal of a base->from quote
}

// Converter normalizes amounts into one base currency from an immutable
// set of rate quotes. It is read-only after construction and safe to
// share across concurrent row workers.
type Converter struct {
	base         valueobject.Currency
	lookbackDays int
	// (from, date) -> winning direct quote into base
	direct map[rateKey]Rate
	// (to, date) -> winning quote out of base, for inverse fallback
	reverse map[rateKey]Rate
}

type rateKey struct {
	currency valueobject.Currency
	date     time.Time
}

// NewConverter builds a converter for the base currency from the given
// quotes. Quotes not involving the base currency are ignored. Day-pair
// duplicates resolve by ascending priority, ties by latest insertion.
func NewConverter(base valueobject.Currency, quotes []Rate, lookbackDays int) *Converter {
	if lookbackDays <= 0 {
		lookbackDays = DefaultLookbackDays
	}
	c := &Converter{
		base:         base,
		lookbackDays: lookbackDays,
		direct:       make(map[rateKey]Rate),
		reverse:      make(map[rateKey]Rate),
	}

	for _, q := range quotes {
		q.RateDate = truncateToDay(q.RateDate)
		switch {
		case q.ToCurrency == base:
			key := rateKey{q.FromCurrency, q.RateDate}
			if winner, ok := c.direct[key]; !ok || beats(q, winner) {
				c.direct[key] = q
			}
		case q.FromCurrency == base:
			key := rateKey{q.ToCurrency, q.RateDate}
			if winner, ok := c.reverse[key]; !ok || beats(q, winner) {
				c.reverse[key] = q
			}
		}
	}
	return c
}

// beats reports whether a should replace b as the winning quote for a
// day-pair: lower priority value wins, then most recently inserted.
func beats(a, b Rate) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.CreatedAt.After(b.CreatedAt)
}

// Base returns the base currency
func (c *Converter) Base() valueobject.Currency {
	return c.base
}

// Convert normalizes amount from the given currency into the base
// currency as of asOf. Exact-date quotes win; otherwise the most recent
// prior date inside the lookback window is used; a direct from->base
// quote always beats an inverse base->from one for the same search.
// Returns a RATE_NOT_FOUND domain error when no usable quote exists.
func (c *Converter) Convert(amount decimal.Decimal, from valueobject.Currency, asOf time.Time) (Conversion, error) {
	if from == c.base {
		converted, err := valueobject.NewMoney(amount, c.base)
		if err != nil {
			return Conversion{}, err
		}
		return Conversion{
			Amount:   converted,
			Rate:     decimal.NewFromInt(1),
			RateDate: truncateToDay(asOf),
		}, nil
	}

	day := truncateToDay(asOf)
	for i := 0; i <= c.lookbackDays; i++ {
		date := day.AddDate(0, 0, -i)
		if q, ok := c.direct[rateKey{from, date}]; ok {
			converted, err := valueobject.NewMoney(amount.Mul(q.Value), c.base)
			if err != nil {
				return Conversion{}, err
			}
			return Conversion{
				Amount:   converted,
				Rate:     q.Value,
				RateDate: q.RateDate,
				Source:   q.Source,
			}, nil
		}
	}
	// Inverse fallback only after the whole window has no direct quote.
	for i := 0; i <= c.lookbackDays; i++ {
		date := day.AddDate(0, 0, -i)
		if q, ok := c.reverse[rateKey{from, date}]; ok {
			inverse := decimal.NewFromInt(1).DivRound(q.Value, 12)
			converted, err := valueobject.NewMoney(amount.Mul(inverse), c.base)
			if err != nil {
				return Conversion{}, err
			}
			return Conversion{
				Amount:   converted,
				Rate:     inverse,
				RateDate: q.RateDate,
				Source:   q.Source,
				Inverse:  true,
			}, nil
		}
	}

	return Conversion{}, shared.NewDomainErrorf(shared.CodeRateNotFound,
		"No %s->%s rate within %d days of %s", from, c.base, c.lookbackDays, day.Format("2006-01-02"))
}
