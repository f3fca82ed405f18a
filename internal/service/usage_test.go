package service

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelflifeapp/shelflife/internal/domain"
	domainerrors "github.com/shelflifeapp/shelflife/internal/errors"
	"github.com/shelflifeapp/shelflife/internal/mirror"
)

func TestUsageService_FirstUsageOpensProduct(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	p := env.createProduct(t, CreateProductRequest{PeriodAfterOpening: "12M"})
	env.mirror.reset()

	entry, err := env.usage.RecordUsage(ctx, p.ID, "", 10, "morning")
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultUsageType, entry.Type)
	assert.Equal(t, "morning", entry.Notes)

	got, err := env.products.Get(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got.OpenDate)
	assert.True(t, got.OpenDate.Equal(env.clock.Now()))
	assert.Equal(t, 90.0, got.RemainingAmount)
	assert.Equal(t, 1, got.TimesUsed)
	assert.True(t, got.ExpiryDate.Equal(date(2025, 3, 1).Add(10*time.Hour)))

	_, ok := env.reminders.get(p.ID)
	assert.True(t, ok)

	assert.Equal(t, []domain.JourneyEventType{domain.JourneyPurchase, domain.JourneyOpen}, env.journeyTypes(t, p.ID))

	muts := env.mirror.all()
	require.Len(t, muts, 3)
	assert.IsType(t, mirror.UsageAppended{}, muts[0])
	patch := muts[1].(mirror.ProductPatched).Patch
	require.NotNil(t, patch.OpenDate)
	require.NotNil(t, patch.RemainingAmount)
	assert.Equal(t, 90.0, *patch.RemainingAmount)
	assert.IsType(t, mirror.JourneyAppended{}, muts[2])

	env.clock.Set(env.clock.Now().Add(time.Hour))
	_, err = env.usage.RecordUsage(ctx, p.ID, "", 10, "")
	require.NoError(t, err)
	assert.Equal(t, 1, env.countEvents(t, p.ID, domain.JourneyOpen), "second usage must not reopen")
}

func TestUsageService_WishlistProductRejected(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	p := env.createProduct(t, CreateProductRequest{Wishlist: true})
	env.mirror.reset()

	_, err := env.usage.RecordUsage(ctx, p.ID, "", 10, "")
	assert.ErrorIs(t, err, domainerrors.ErrConflict)

	got, err := env.products.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateWishlist, got.State())
	assert.Nil(t, got.OpenDate)
	assert.Zero(t, got.TimesUsed)
	assert.Empty(t, env.journeyTypes(t, p.ID))
	assert.Empty(t, env.mirror.all())

	entries, err := env.usage.EntriesFor(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUsageService_HalfEmptyOnce(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	p := env.createProduct(t, CreateProductRequest{})

	for _, amount := range []float64{30, 30, -40, 30} {
		_, err := env.usage.RecordUsage(ctx, p.ID, "", amount, "")
		require.NoError(t, err)
	}

	assert.Equal(t, 1, env.countEvents(t, p.ID, domain.JourneyHalfEmpty))
}

func TestUsageService_NegativeAmountCapsAtFull(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	p := env.createProduct(t, CreateProductRequest{})
	_, err := env.usage.RecordUsage(ctx, p.ID, "refill", -50, "")
	require.NoError(t, err)

	got, err := env.products.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.FullAmount, got.RemainingAmount)
}

func TestUsageService_InvariantsHoldOverRandomSequences(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	rng := rand.New(rand.NewPCG(1, 2))

	for range 5 {
		p := env.createProduct(t, CreateProductRequest{})
		for range 15 {
			amount := rng.Float64()*60 - 10
			_, err := env.usage.RecordUsage(ctx, p.ID, "", amount, "")
			require.NoError(t, err)

			got, err := env.products.Get(ctx, p.ID)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, got.RemainingAmount, 0.0)
			assert.LessOrEqual(t, got.RemainingAmount, domain.FullAmount)
			if got.IsFinished {
				assert.Zero(t, got.RemainingAmount)
			}
		}
		assert.LessOrEqual(t, env.countEvents(t, p.ID, domain.JourneyFinished), 1)
		assert.LessOrEqual(t, env.countEvents(t, p.ID, domain.JourneyHalfEmpty), 1)
	}
}

func TestUsageService_UsageAfterFinish(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	p := env.createProduct(t, CreateProductRequest{})
	_, err := env.products.MarkFinished(ctx, p.ID)
	require.NoError(t, err)

	_, err = env.usage.RecordUsage(ctx, p.ID, "", -20, "")
	require.NoError(t, err)

	got, err := env.products.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.IsFinished)
	assert.Zero(t, got.RemainingAmount)
	assert.Equal(t, 1, env.countEvents(t, p.ID, domain.JourneyFinished))
}

func TestUsageService_EntriesFor(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	p := env.createProduct(t, CreateProductRequest{})
	for i := range 3 {
		env.clock.Set(env.clock.Now().Add(time.Minute))
		_, err := env.usage.RecordUsage(ctx, p.ID, "", float64(i+1), "")
		require.NoError(t, err)
	}

	entries, err := env.usage.EntriesFor(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, 3.0, entries[0].Amount, "newest first")
	assert.Equal(t, 1.0, entries[2].Amount)

	_, err = env.usage.EntriesFor(ctx, "prd-missing")
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)

	_, err = env.usage.RecordUsage(ctx, "prd-missing", "", 1, "")
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}
