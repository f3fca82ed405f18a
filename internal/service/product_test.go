package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelflifeapp/shelflife/internal/domain"
	domainerrors "github.com/shelflifeapp/shelflife/internal/errors"
	"github.com/shelflifeapp/shelflife/internal/mirror"
)

func TestProductService_Create(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	purchased := date(2024, 2, 20)
	p, err := env.products.Create(ctx, CreateProductRequest{
		Name:         "Sunscreen",
		Brand:        "Acme",
		PurchaseDate: &purchased,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StatePurchased, p.State())
	assert.Equal(t, testUserID, p.UserID)
	assert.Equal(t, domain.FullAmount, p.RemainingAmount)
	assert.Nil(t, p.ExpiryDate)

	events, err := env.journey.Timeline(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.JourneyPurchase, events[0].Type)
	assert.True(t, events[0].CreatedAt.Equal(purchased))

	muts := env.mirror.all()
	require.Len(t, muts, 2)
	assert.IsType(t, mirror.ProductCreated{}, muts[0])
	assert.IsType(t, mirror.JourneyAppended{}, muts[1])
}

func TestProductService_CreateWishlist(t *testing.T) {
	env := setupTestEnv(t)

	p := env.createProduct(t, CreateProductRequest{Wishlist: true})

	assert.Equal(t, domain.StateWishlist, p.State())
	assert.Empty(t, env.journeyTypes(t, p.ID))
}

func TestProductService_CreateValidation(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	spf := 120

	tests := []struct {
		name string
		req  CreateProductRequest
	}{
		{"missing name", CreateProductRequest{}},
		{"spf out of range", CreateProductRequest{Name: "x", SPF: &spf}},
		{"bad currency", CreateProductRequest{Name: "x", Currency: "EURO"}},
		{"opened wishlist", CreateProductRequest{Name: "x", Wishlist: true, OpenDate: &time.Time{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.products.Create(ctx, tt.req)
			assert.ErrorIs(t, err, domainerrors.ErrValidation)
		})
	}
}

func TestProductService_ScenarioExpiryAndFinish(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	p := env.createProduct(t, CreateProductRequest{Barcode: "123", PeriodAfterOpening: "6M"})

	opened, err := env.products.MarkOpened(ctx, p.ID, date(2024, 3, 1))
	require.NoError(t, err)
	require.NotNil(t, opened.ExpiryDate)
	assert.True(t, opened.ExpiryDate.Equal(date(2024, 9, 1)), "expiry %v", opened.ExpiryDate)

	due, ok := env.reminders.get(p.ID)
	require.True(t, ok)
	assert.True(t, due.Equal(date(2024, 9, 1)))

	_, err = env.usage.RecordUsage(ctx, p.ID, "", 100, "")
	require.NoError(t, err)

	got, err := env.products.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.IsFinished)
	assert.Zero(t, got.RemainingAmount)
	assert.Equal(t, 1, env.countEvents(t, p.ID, domain.JourneyFinished))

	_, ok = env.reminders.get(p.ID)
	assert.False(t, ok, "reminder should be cancelled once finished")
}

func TestProductService_MarkOpened(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	p := env.createProduct(t, CreateProductRequest{PeriodAfterOpening: "12M"})

	_, err := env.products.MarkOpened(ctx, p.ID, date(2024, 1, 10))
	require.NoError(t, err)

	t.Run("same date is a no-op", func(t *testing.T) {
		env.mirror.reset()
		_, err := env.products.MarkOpened(ctx, p.ID, date(2024, 1, 10))
		require.NoError(t, err)
		assert.Equal(t, 1, env.countEvents(t, p.ID, domain.JourneyOpen))
		assert.Empty(t, env.mirror.all())
	})

	t.Run("new date reschedules", func(t *testing.T) {
		got, err := env.products.MarkOpened(ctx, p.ID, date(2024, 2, 1))
		require.NoError(t, err)
		assert.True(t, got.ExpiryDate.Equal(date(2025, 2, 1)))
		assert.Equal(t, 2, env.countEvents(t, p.ID, domain.JourneyOpen))

		due, ok := env.reminders.get(p.ID)
		require.True(t, ok)
		assert.True(t, due.Equal(date(2025, 2, 1)))

		patches := env.mirror.patches()
		require.NotEmpty(t, patches)
		last := patches[len(patches)-1]
		require.NotNil(t, last.OpenDate)
		require.NotNil(t, last.ExpiryDate)
	})

	t.Run("wishlist cannot be opened", func(t *testing.T) {
		w := env.createProduct(t, CreateProductRequest{Wishlist: true})
		_, err := env.products.MarkOpened(ctx, w.ID, date(2024, 1, 1))
		assert.ErrorIs(t, err, domainerrors.ErrConflict)
	})
}

func TestProductService_MarkOpenedWithoutPeriod(t *testing.T) {
	env := setupTestEnv(t)

	p := env.createProduct(t, CreateProductRequest{PeriodAfterOpening: "M"})
	got, err := env.products.MarkOpened(context.Background(), p.ID, date(2024, 1, 10))
	require.NoError(t, err)

	assert.Nil(t, got.ExpiryDate)
	_, ok := env.reminders.get(p.ID)
	assert.False(t, ok)
}

func TestProductService_MarkFinishedTwice(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	p := env.createProduct(t, CreateProductRequest{})
	env.mirror.reset()

	for range 2 {
		got, err := env.products.MarkFinished(ctx, p.ID)
		require.NoError(t, err)
		assert.True(t, got.IsFinished)
	}

	assert.Equal(t, 1, env.countEvents(t, p.ID, domain.JourneyFinished))
	assert.Equal(t, 1, env.mirror.count("product.patched"))
}

func TestProductService_MarkPurchased(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	p := env.createProduct(t, CreateProductRequest{Wishlist: true})
	when := date(2024, 4, 2)

	got, err := env.products.MarkPurchased(ctx, p.ID, &when)
	require.NoError(t, err)
	assert.Equal(t, domain.StatePurchased, got.State())

	_, err = env.products.MarkPurchased(ctx, p.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, []domain.JourneyEventType{domain.JourneyPurchase}, env.journeyTypes(t, p.ID))
}

func TestProductService_EditDetails(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	p := env.createProduct(t, CreateProductRequest{})

	got, err := env.products.EditDetails(ctx, p.ID, domain.DetailsMutation{
		Name:               strPtr("Night Cream"),
		OpenDate:           &[]time.Time{date(2024, 1, 31)}[0],
		PeriodAfterOpening: strPtr("1M"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Night Cream", got.Name)
	require.NotNil(t, got.ExpiryDate)
	assert.True(t, got.ExpiryDate.Equal(date(2024, 2, 29)), "clamped to month end, got %v", got.ExpiryDate)
	assert.Equal(t, 1, env.countEvents(t, p.ID, domain.JourneyOpen))

	_, ok := env.reminders.get(p.ID)
	assert.True(t, ok)

	got, err = env.products.EditDetails(ctx, p.ID, domain.DetailsMutation{ClearOpenDate: true})
	require.NoError(t, err)
	assert.Nil(t, got.OpenDate)
	assert.Nil(t, got.ExpiryDate)
	_, ok = env.reminders.get(p.ID)
	assert.False(t, ok)

	_, err = env.products.EditDetails(ctx, p.ID, domain.DetailsMutation{Name: strPtr("")})
	assert.ErrorIs(t, err, domainerrors.ErrValidation)
}

func TestProductService_EditDetailsPurchasesWishlist(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	p := env.createProduct(t, CreateProductRequest{Wishlist: true})
	bought := date(2024, 2, 1)

	got, err := env.products.EditDetails(ctx, p.ID, domain.DetailsMutation{PurchaseDate: &bought})
	require.NoError(t, err)
	assert.Equal(t, domain.StatePurchased, got.State())
	assert.Equal(t, []domain.JourneyEventType{domain.JourneyPurchase}, env.journeyTypes(t, p.ID))

	later := date(2024, 2, 5)
	_, err = env.products.EditDetails(ctx, p.ID, domain.DetailsMutation{PurchaseDate: &later})
	require.NoError(t, err)
	assert.Equal(t, 1, env.countEvents(t, p.ID, domain.JourneyPurchase), "correcting the date is not a second purchase")
}

func TestProductService_EditDetailsCannotOpenWishlist(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	p := env.createProduct(t, CreateProductRequest{Wishlist: true})
	opened := date(2024, 2, 1)

	_, err := env.products.EditDetails(ctx, p.ID, domain.DetailsMutation{OpenDate: &opened})
	assert.ErrorIs(t, err, domainerrors.ErrConflict)

	got, err := env.products.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateWishlist, got.State())
	assert.Empty(t, env.journeyTypes(t, p.ID))
}

func TestProductService_Favorite(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	p := env.createProduct(t, CreateProductRequest{})

	got, err := env.products.ToggleFavorite(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.IsFavorite)

	env.mirror.reset()
	got, err = env.products.SetFavorite(ctx, p.ID, true)
	require.NoError(t, err)
	assert.True(t, got.IsFavorite)
	assert.Empty(t, env.mirror.all(), "unchanged flag should not mirror")

	favs, err := env.products.List(ctx, ListFilter{FavoritesOnly: true})
	require.NoError(t, err)
	assert.Len(t, favs, 1)
}

func TestProductService_DeleteCascades(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	p := env.createProduct(t, CreateProductRequest{})
	_, err := env.usage.RecordUsage(ctx, p.ID, "", 10, "")
	require.NoError(t, err)

	require.NoError(t, env.products.Delete(ctx, p.ID))

	_, err = env.usage.EntriesFor(ctx, p.ID)
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
	_, err = env.journey.Timeline(ctx, p.ID)
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
	_, err = env.products.Get(ctx, p.ID)
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)

	assert.Equal(t, 1, env.mirror.count("product.deleted"))
	assert.ErrorIs(t, env.products.Delete(ctx, p.ID), domainerrors.ErrNotFound)
}

func TestProductService_OtherUsersProductsAreHidden(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	p := env.createProduct(t, CreateProductRequest{})

	other := NewProductService(Deps{Store: env.store, Identity: staticIdentity("user-2")})
	_, err := other.Get(ctx, p.ID)
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)

	list, err := other.List(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestProductService_ListFailureReturnsEmpty(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	env.createProduct(t, CreateProductRequest{})
	require.NoError(t, env.store.Close())

	list, err := env.products.List(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

type fakeSearcher struct {
	ids []string
}

func (f fakeSearcher) Search(context.Context, string, string, int) ([]string, error) {
	return f.ids, nil
}

func TestProductService_SearchKeepsRanking(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	a := env.createProduct(t, CreateProductRequest{Name: "Alpha"})
	b := env.createProduct(t, CreateProductRequest{Name: "Beta"})

	svc := NewProductService(Deps{
		Store:    env.store,
		Identity: staticIdentity(testUserID),
		Searcher: fakeSearcher{ids: []string{b.ID, "prd-gone", a.ID}},
	})

	got, err := svc.Search(ctx, "a", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, b.ID, got[0].ID)
	assert.Equal(t, a.ID, got[1].ID)
}
