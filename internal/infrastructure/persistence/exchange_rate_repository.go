package persistence

import (
	"context"
	"time"

	"github.com/timberdayz/datahub/internal/domain/exchange"
	"github.com/timberdayz/datahub/internal/domain/shared/valueobject"
	"gorm.io/gorm"
)

// GormRateRepository implements exchange.RateRepository using GORM
type GormRateRepository struct {
	db *gorm.DB
}

// NewGormRateRepository creates a new GormRateRepository
func NewGormRateRepository(db *gorm.DB) *GormRateRepository {
	return &GormRateRepository{db: db}
}

var _ exchange.RateRepository = (*GormRateRepository)(nil)

// Save persists a rate quote
func (r *GormRateRepository) Save(ctx context.Context, rate *exchange.Rate) error {
	return r.db.WithContext(ctx).Create(rate).Error
}

// FindWindow returns quotes into or out of the base currency within the
// date window, newest first
func (r *GormRateRepository) FindWindow(ctx context.Context, base valueobject.Currency, from, to time.Time) ([]exchange.Rate, error) {
	var rates []exchange.Rate
	if err := r.db.WithContext(ctx).
		Where("(to_currency = ? OR from_currency = ?) AND rate_date >= ? AND rate_date <= ?",
			base, base, from, to).
		Order("rate_date DESC, priority ASC, created_at DESC").
		Find(&rates).Error; err != nil {
		return nil, err
	}
	return rates, nil
}
