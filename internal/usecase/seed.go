package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/domain"

	"go.uber.org/zap"
)

// Seeder provisions the system wallets and the default tax table on boot.
// Running it again changes nothing.
type Seeder struct {
	*Ledger
}

func NewSeeder(ledger *Ledger) *Seeder {
	return &Seeder{Ledger: ledger}
}

func (s *Seeder) Seed(ctx context.Context) error {
	s.logger.Info("seeding system wallets and tax settings")

	for _, owner := range []string{s.cfg.PlatformOwnerID, s.cfg.WithholdingOwnerID, s.cfg.EscrowOwnerID} {
		if owner == "" {
			continue
		}
		if _, err := s.Wallet(ctx, owner); err != nil {
			return fmt.Errorf("seed wallet %s: %w", owner, err)
		}
	}

	codes := make([]string, 0, len(s.cfg.DefaultTaxRates))
	for code := range s.cfg.DefaultTaxRates {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	seeded := 0
	for _, code := range codes {
		jurisdiction := normalizeJurisdiction(code)
		_, err := s.store.GetTaxSetting(ctx, jurisdiction)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("seed tax setting %s: %w", jurisdiction, err)
		}
		rate := s.cfg.DefaultTaxRates[code]
		if rate.IsNegative() || rate.GreaterThan(hundred) {
			return fmt.Errorf("seed tax setting %s: %w: rate %s", jurisdiction, domain.ErrInvalidRequest, rate)
		}
		if err := s.store.UpsertTaxSetting(ctx, &domain.TaxSetting{Jurisdiction: jurisdiction, Rate: rate}); err != nil {
			return fmt.Errorf("seed tax setting %s: %w", jurisdiction, err)
		}
		seeded++
	}

	s.logger.Info("system seeding completed", zap.Int("tax_settings_seeded", seeded))
	return nil
}
