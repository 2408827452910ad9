package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/domain"
	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/pub"
	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	feeRulesNamespace  = "fee_rules"
	platformPercentKey = "platform_percent"
	taxRatesNamespace  = "tax_rates"
)

var hundred = decimal.NewFromInt(100)

// FeeSchedule returns the platform fee percent charged on transfers.
type FeeSchedule interface {
	PlatformPercent(ctx context.Context) (decimal.Decimal, error)
}

// TaxTable returns the withholding rate, in percent, of a jurisdiction.
// Unknown jurisdictions have a zero rate.
type TaxTable interface {
	Rate(ctx context.Context, jurisdiction string) (decimal.Decimal, error)
}

// CachedFeeSchedule reads an operator override from redis and falls back to
// the configured default.
type CachedFeeSchedule struct {
	cache  *pub.Cache
	def    decimal.Decimal
	logger *zap.Logger
}

func NewCachedFeeSchedule(cache *pub.Cache, def decimal.Decimal, logger *zap.Logger) *CachedFeeSchedule {
	return &CachedFeeSchedule{cache: cache, def: def, logger: logger}
}

func (f *CachedFeeSchedule) PlatformPercent(ctx context.Context) (decimal.Decimal, error) {
	if f.cache == nil {
		return f.def, nil
	}
	raw, err := f.cache.Get(ctx, feeRulesNamespace, platformPercentKey)
	if err != nil {
		if !errors.Is(err, pub.ErrCacheMiss) {
			f.logger.Warn("fee rule lookup failed, using default", zap.Error(err))
		}
		return f.def, nil
	}
	pct, err := decimal.NewFromString(raw)
	if err != nil {
		f.logger.Warn("invalid fee rule in cache, using default", zap.String("value", raw))
		return f.def, nil
	}
	return pct, nil
}

// SetPlatformPercent stores an override that applies to new transfers.
func (f *CachedFeeSchedule) SetPlatformPercent(ctx context.Context, pct decimal.Decimal) error {
	if pct.IsNegative() || pct.GreaterThan(hundred) {
		return fmt.Errorf("%w: fee percent must be within 0..100", domain.ErrInvalidRequest)
	}
	if f.cache == nil {
		return fmt.Errorf("%w: no fee rule cache configured", domain.ErrInvalidRequest)
	}
	return f.cache.Set(ctx, feeRulesNamespace, platformPercentKey, pct.String(), 0)
}

// ClearPlatformPercent removes the override.
func (f *CachedFeeSchedule) ClearPlatformPercent(ctx context.Context) error {
	if f.cache == nil {
		return nil
	}
	return f.cache.Delete(ctx, feeRulesNamespace, platformPercentKey)
}

// StoreTaxTable reads tax settings from the ledger store through a redis cache.
type StoreTaxTable struct {
	repo   repository.PayrollRepository
	cache  *pub.Cache
	ttl    time.Duration
	logger *zap.Logger
}

func NewStoreTaxTable(repo repository.PayrollRepository, cache *pub.Cache, ttl time.Duration, logger *zap.Logger) *StoreTaxTable {
	return &StoreTaxTable{repo: repo, cache: cache, ttl: ttl, logger: logger}
}

func normalizeJurisdiction(j string) string {
	return strings.ToUpper(strings.TrimSpace(j))
}

func (t *StoreTaxTable) Rate(ctx context.Context, jurisdiction string) (decimal.Decimal, error) {
	j := normalizeJurisdiction(jurisdiction)
	if j == "" {
		return decimal.Zero, nil
	}

	if t.cache != nil {
		if raw, err := t.cache.Get(ctx, taxRatesNamespace, j); err == nil {
			if rate, perr := decimal.NewFromString(raw); perr == nil {
				return rate, nil
			}
		}
	}

	rate := decimal.Zero
	s, err := t.repo.GetTaxSetting(ctx, j)
	switch {
	case err == nil:
		rate = s.Rate
	case errors.Is(err, domain.ErrNotFound):
	default:
		return decimal.Zero, fmt.Errorf("tax rate for %s: %w", j, err)
	}

	if t.cache != nil {
		if err := t.cache.Set(ctx, taxRatesNamespace, j, rate.String(), t.ttl); err != nil {
			t.logger.Warn("tax rate cache write failed", zap.String("jurisdiction", j), zap.Error(err))
		}
	}
	return rate, nil
}

// Upsert stores a jurisdiction rate and drops its cached value.
func (t *StoreTaxTable) Upsert(ctx context.Context, jurisdiction string, rate decimal.Decimal) (*domain.TaxSetting, error) {
	j := normalizeJurisdiction(jurisdiction)
	if j == "" {
		return nil, fmt.Errorf("%w: jurisdiction is required", domain.ErrInvalidRequest)
	}
	if rate.IsNegative() || rate.GreaterThan(hundred) {
		return nil, fmt.Errorf("%w: tax rate must be within 0..100", domain.ErrInvalidRequest)
	}
	s := &domain.TaxSetting{Jurisdiction: j, Rate: rate}
	if err := t.repo.UpsertTaxSetting(ctx, s); err != nil {
		return nil, err
	}
	if t.cache != nil {
		if err := t.cache.Delete(ctx, taxRatesNamespace, j); err != nil {
			t.logger.Warn("tax rate cache delete failed", zap.String("jurisdiction", j), zap.Error(err))
		}
	}
	return s, nil
}
