package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/config"
	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/domain"
	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/pub"
	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/repository/memory"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newCache(t *testing.T) (*miniredis.Miniredis, *pub.Cache) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, pub.NewCache(rdb)
}

func TestFeeSchedule_OverrideAndClear(t *testing.T) {
	ctx := context.Background()
	_, cache := newCache(t)
	fees := NewCachedFeeSchedule(cache, dec("10"), zap.NewNop())

	pct, err := fees.PlatformPercent(ctx)
	require.NoError(t, err)
	assert.True(t, pct.Equal(dec("10")))

	require.NoError(t, fees.SetPlatformPercent(ctx, dec("7.5")))
	pct, err = fees.PlatformPercent(ctx)
	require.NoError(t, err)
	assert.True(t, pct.Equal(dec("7.5")))

	assert.ErrorIs(t, fees.SetPlatformPercent(ctx, dec("101")), domain.ErrInvalidRequest)

	require.NoError(t, fees.ClearPlatformPercent(ctx))
	pct, err = fees.PlatformPercent(ctx)
	require.NoError(t, err)
	assert.True(t, pct.Equal(dec("10")))
}

func TestFeeSchedule_UnreachableCacheFallsBack(t *testing.T) {
	mr, cache := newCache(t)
	fees := NewCachedFeeSchedule(cache, dec("10"), zap.NewNop())
	mr.Close()

	pct, err := fees.PlatformPercent(context.Background())
	require.NoError(t, err)
	assert.True(t, pct.Equal(dec("10")))
}

func TestTaxTable_CachesUntilUpsert(t *testing.T) {
	ctx := context.Background()
	mr, cache := newCache(t)
	store := memory.NewStore()
	taxes := NewStoreTaxTable(store, cache, time.Minute, zap.NewNop())

	rate, err := taxes.Rate(ctx, "ke")
	require.NoError(t, err)
	assert.True(t, rate.IsZero())

	// written behind the cache's back
	require.NoError(t, store.UpsertTaxSetting(ctx, &domain.TaxSetting{Jurisdiction: "KE", Rate: dec("16")}))
	rate, err = taxes.Rate(ctx, "KE")
	require.NoError(t, err)
	assert.True(t, rate.IsZero(), "cached rate is served")

	mr.FastForward(2 * time.Minute)
	rate, err = taxes.Rate(ctx, "KE")
	require.NoError(t, err)
	assert.True(t, rate.Equal(dec("16")))

	_, err = taxes.Upsert(ctx, " ke ", dec("18"))
	require.NoError(t, err)
	rate, err = taxes.Rate(ctx, "KE")
	require.NoError(t, err)
	assert.True(t, rate.Equal(dec("18")))

	_, err = taxes.Upsert(ctx, "KE", dec("-1"))
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	_, err = taxes.Upsert(ctx, "", dec("1"))
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestTransfer_UsesFeeOverride(t *testing.T) {
	f := newFixture(t)
	_, cache := newCache(t)
	fees := NewCachedFeeSchedule(cache, f.cfg.PlatformFeePercent, zap.NewNop())
	transfers := NewTransferUsecase(f.ledger, f.engine, fees, NewStoreTaxTable(f.store, nil, 0, zap.NewNop()))
	require.NoError(t, fees.SetPlatformPercent(f.ctx, dec("2")))
	f.fund(t, "client", "100")

	res, err := transfers.Transfer(f.ctx, TransferRequest{
		FromUserID: "client", ToUserID: "freelancer", Amount: dec("100"), ReferenceID: "job-1",
	})
	require.NoError(t, err)
	assert.True(t, res.FeeAmount.Equal(dec("2")))
	f.assertBalance(t, "freelancer", "98")
}

func TestSeeder_IsIdempotent(t *testing.T) {
	f := newFixture(t, func(c *config.LedgerConfig) {
		c.DefaultTaxRates = map[string]decimal.Decimal{"us": dec("10"), "GB": dec("20")}
	})
	require.NoError(t, f.store.UpsertTaxSetting(f.ctx, &domain.TaxSetting{Jurisdiction: "GB", Rate: dec("25")}))

	seeder := NewSeeder(f.ledger)
	require.NoError(t, seeder.Seed(f.ctx))
	require.NoError(t, seeder.Seed(f.ctx))

	us, err := f.store.GetTaxSetting(f.ctx, "US")
	require.NoError(t, err)
	assert.True(t, us.Rate.Equal(dec("10")))

	gb, err := f.store.GetTaxSetting(f.ctx, "GB")
	require.NoError(t, err)
	assert.True(t, gb.Rate.Equal(dec("25")), "operator rate is kept")

	p1 := f.wallet(t, platformOwner)
	require.NoError(t, seeder.Seed(f.ctx))
	assert.Equal(t, p1.ID, f.wallet(t, platformOwner).ID)
	f.wallet(t, withholdingOwner)
}

func TestSeeder_RejectsBadRate(t *testing.T) {
	f := newFixture(t, func(c *config.LedgerConfig) {
		c.DefaultTaxRates = map[string]decimal.Decimal{"US": dec("120")}
	})
	assert.ErrorIs(t, NewSeeder(f.ledger).Seed(f.ctx), domain.ErrInvalidRequest)
}
