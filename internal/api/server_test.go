package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelflifeapp/shelflife/internal/auth"
	domainerrors "github.com/shelflifeapp/shelflife/internal/errors"
	"github.com/shelflifeapp/shelflife/internal/mirror"
	"github.com/shelflifeapp/shelflife/internal/service"
	"github.com/shelflifeapp/shelflife/internal/sse"
	"github.com/shelflifeapp/shelflife/internal/store/sqlite"
)

const testUserID = "user-1"

type testServer struct {
	*Server
	api        humatest.TestAPI
	sseManager *sse.Manager
	refresher  *stubRefresher
}

type stubRefresher struct {
	result mirror.RefreshResult
	err    error
}

func (r *stubRefresher) BulkRefresh(context.Context) (mirror.RefreshResult, error) {
	return r.result, r.err
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)

	st, err := sqlite.Open(filepath.Join(t.TempDir(), "shelflife.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	sseManager := sse.NewManager(logger)
	st.SetEmitter(sseManager)

	identity := auth.NewIdentity(nil, testUserID)
	deps := service.Deps{
		Store:    st,
		Identity: identity,
		Logger:   logger,
	}
	refresher := &stubRefresher{}
	services := &Services{
		Products:    service.NewProductService(deps),
		Usage:       service.NewUsageService(deps),
		Journey:     service.NewJourneyService(deps),
		Collections: service.NewCollectionService(deps),
		Refresher:   refresher,
	}

	server := NewServer(st, services, sseManager, identity, Options{}, logger)
	t.Cleanup(server.Close)

	return &testServer{
		Server:     server,
		api:        humatest.Wrap(t, server.api),
		sseManager: sseManager,
		refresher:  refresher,
	}
}

// bearerFor returns an Authorization header naming userID.
func bearerFor(t *testing.T, userID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: userID})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return "Authorization: Bearer " + signed
}

func decode[T any](t *testing.T, body []byte) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(body, &out))
	return out
}

func (ts *testServer) createProduct(t *testing.T, body map[string]any) ProductResponse {
	t.Helper()
	resp := ts.api.Post("/api/v1/products", body)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	return decode[ProductResponse](t, resp.Body.Bytes())
}

func TestCreateAndGetProduct(t *testing.T) {
	ts := setupTestServer(t)

	created := ts.createProduct(t, map[string]any{
		"name":                 "Hydrating Serum",
		"brand":                "Acme",
		"price":                "24.90",
		"currency":             "EUR",
		"period_after_opening": "12M",
	})
	assert.Equal(t, "purchased", created.State)
	assert.Equal(t, float64(100), created.RemainingAmount)
	require.NotNil(t, created.Price)
	assert.Equal(t, "24.9", *created.Price)
	assert.Nil(t, created.ExpiryDate)

	resp := ts.api.Get("/api/v1/products/" + created.ID)
	require.Equal(t, http.StatusOK, resp.Code)
	got := decode[ProductResponse](t, resp.Body.Bytes())
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "Acme", got.Brand)
}

func TestCreateProduct_Validation(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Post("/api/v1/products", map[string]any{"name": "Cream", "price": "cheap"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	apiErr := decode[APIError](t, resp.Body.Bytes())
	assert.Equal(t, string(domainerrors.CodeValidation), apiErr.Code)

	resp = ts.api.Post("/api/v1/products", map[string]any{"brand": "Acme"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	apiErr = decode[APIError](t, resp.Body.Bytes())
	assert.Equal(t, string(domainerrors.CodeValidation), apiErr.Code)
}

func TestGetProduct_NotFound(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Get("/api/v1/products/prd-missing")
	assert.Equal(t, http.StatusNotFound, resp.Code)
	apiErr := decode[APIError](t, resp.Body.Bytes())
	assert.Equal(t, string(domainerrors.CodeNotFound), apiErr.Code)
}

func TestProductLifecycle(t *testing.T) {
	ts := setupTestServer(t)

	p := ts.createProduct(t, map[string]any{
		"name":                 "Sunscreen",
		"wishlist":             true,
		"period_after_opening": "6M",
	})
	assert.Equal(t, "wishlist", p.State)

	// A wishlist product cannot be opened.
	resp := ts.api.Post("/api/v1/products/"+p.ID+"/open", map[string]any{})
	assert.Equal(t, http.StatusConflict, resp.Code)

	resp = ts.api.Post("/api/v1/products/"+p.ID+"/purchase", map[string]any{})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, "purchased", decode[ProductResponse](t, resp.Body.Bytes()).State)

	openedAt := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	resp = ts.api.Post("/api/v1/products/"+p.ID+"/open", map[string]any{"date": openedAt})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	opened := decode[ProductResponse](t, resp.Body.Bytes())
	assert.Equal(t, "opened", opened.State)
	require.NotNil(t, opened.ExpiryDate)
	assert.True(t, opened.ExpiryDate.Equal(time.Date(2024, 7, 15, 9, 0, 0, 0, time.UTC)))

	resp = ts.api.Post("/api/v1/products/"+p.ID+"/finish")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	finished := decode[ProductResponse](t, resp.Body.Bytes())
	assert.Equal(t, "finished", finished.State)
	assert.Equal(t, float64(0), finished.RemainingAmount)

	resp = ts.api.Get("/api/v1/products/" + p.ID + "/journey")
	require.Equal(t, http.StatusOK, resp.Code)
	journey := decode[struct {
		Events []JourneyEventResponse `json:"events"`
	}](t, resp.Body.Bytes())
	types := make([]string, 0, len(journey.Events))
	for _, e := range journey.Events {
		types = append(types, e.Type)
	}
	assert.Equal(t, []string{"purchase", "open", "finished"}, types)
}

func TestUpdateProduct_RecomputesExpiry(t *testing.T) {
	ts := setupTestServer(t)

	p := ts.createProduct(t, map[string]any{
		"name":                 "Toner",
		"open_date":            time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		"period_after_opening": "3M",
	})
	require.NotNil(t, p.ExpiryDate)

	resp := ts.api.Patch("/api/v1/products/"+p.ID, map[string]any{"period_after_opening": "12M"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	updated := decode[ProductResponse](t, resp.Body.Bytes())
	require.NotNil(t, updated.ExpiryDate)
	assert.True(t, updated.ExpiryDate.Equal(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)))

	resp = ts.api.Patch("/api/v1/products/"+p.ID, map[string]any{"clear_open_date": true})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	cleared := decode[ProductResponse](t, resp.Body.Bytes())
	assert.Nil(t, cleared.OpenDate)
	assert.Nil(t, cleared.ExpiryDate)
}

func TestFavoriteToggle(t *testing.T) {
	ts := setupTestServer(t)
	p := ts.createProduct(t, map[string]any{"name": "Lip Balm"})

	resp := ts.api.Post("/api/v1/products/"+p.ID+"/favorite", map[string]any{})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.True(t, decode[ProductResponse](t, resp.Body.Bytes()).IsFavorite)

	resp = ts.api.Post("/api/v1/products/"+p.ID+"/favorite", map[string]any{"favorite": true})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.True(t, decode[ProductResponse](t, resp.Body.Bytes()).IsFavorite)

	resp = ts.api.Get("/api/v1/products?favorites=true")
	require.Equal(t, http.StatusOK, resp.Code)
	list := decode[ProductListResponse](t, resp.Body.Bytes())
	assert.Equal(t, 1, list.Total)
}

func TestRecordUsage(t *testing.T) {
	ts := setupTestServer(t)
	p := ts.createProduct(t, map[string]any{"name": "Body Lotion"})

	resp := ts.api.Post("/api/v1/products/"+p.ID+"/usage", map[string]any{"amount": 60, "notes": "after shower"})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	entry := decode[UsageEntryResponse](t, resp.Body.Bytes())
	assert.Equal(t, "check_in", entry.Type)
	assert.Equal(t, float64(60), entry.Amount)

	resp = ts.api.Get("/api/v1/products/" + p.ID)
	require.Equal(t, http.StatusOK, resp.Code)
	got := decode[ProductResponse](t, resp.Body.Bytes())
	assert.Equal(t, "opened", got.State)
	assert.Equal(t, float64(40), got.RemainingAmount)
	assert.Equal(t, 1, got.TimesUsed)

	resp = ts.api.Get("/api/v1/products/" + p.ID + "/usage")
	require.Equal(t, http.StatusOK, resp.Code)
	entries := decode[struct {
		Entries []UsageEntryResponse `json:"entries"`
	}](t, resp.Body.Bytes())
	assert.Len(t, entries.Entries, 1)
}

func TestJourneyThoughtsAndReviews(t *testing.T) {
	ts := setupTestServer(t)
	p := ts.createProduct(t, map[string]any{"name": "Mascara"})

	resp := ts.api.Post("/api/v1/products/"+p.ID+"/thoughts", map[string]any{"text": "clumps a bit"})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	resp = ts.api.Post("/api/v1/products/"+p.ID+"/reviews", map[string]any{"title": "Fine", "rating": 6})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = ts.api.Post("/api/v1/products/"+p.ID+"/reviews", map[string]any{"title": "Fine", "rating": 4})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	review := decode[JourneyEventResponse](t, resp.Body.Bytes())
	assert.Equal(t, "review", review.Type)
	assert.Equal(t, 4, review.Rating)

	resp = ts.api.Get("/api/v1/products/" + p.ID + "/journey?latest=1")
	require.Equal(t, http.StatusOK, resp.Code)
	latest := decode[struct {
		Events []JourneyEventResponse `json:"events"`
	}](t, resp.Body.Bytes())
	require.Len(t, latest.Events, 1)
	assert.Equal(t, review.ID, latest.Events[0].ID)
}

func TestBagsAndTags(t *testing.T) {
	ts := setupTestServer(t)
	p := ts.createProduct(t, map[string]any{"name": "Dry Shampoo", "brand": "Acme", "size": "200ml"})

	resp := ts.api.Post("/api/v1/bags", map[string]any{"name": "Travel"})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	bag := decode[GroupingResponse](t, resp.Body.Bytes())

	resp = ts.api.Put("/api/v1/bags/" + bag.ID + "/products/" + p.ID)
	require.Equal(t, http.StatusNoContent, resp.Code, resp.Body.String())

	resp = ts.api.Get("/api/v1/bags/" + bag.ID + "/products")
	require.Equal(t, http.StatusOK, resp.Code)
	inBag := decode[ProductListResponse](t, resp.Body.Bytes())
	require.Len(t, inBag.Products, 1)
	assert.Equal(t, p.ID, inBag.Products[0].ID)

	resp = ts.api.Post("/api/v1/tags", map[string]any{"name": "Holy grail", "color": "#ff0000"})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	tag := decode[GroupingResponse](t, resp.Body.Bytes())

	resp = ts.api.Put("/api/v1/tags/" + tag.ID + "/products/" + p.ID)
	require.Equal(t, http.StatusNoContent, resp.Code)

	resp = ts.api.Get("/api/v1/tags")
	require.Equal(t, http.StatusOK, resp.Code)
	tags := decode[struct {
		Items []GroupingResponse `json:"items"`
	}](t, resp.Body.Bytes())
	require.Len(t, tags.Items, 1)
	assert.Equal(t, "#ff0000", tags.Items[0].Color)

	resp = ts.api.Delete("/api/v1/bags/" + bag.ID + "/products/" + p.ID)
	require.Equal(t, http.StatusNoContent, resp.Code)

	resp = ts.api.Get("/api/v1/bags/" + bag.ID + "/products")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Empty(t, decode[ProductListResponse](t, resp.Body.Bytes()).Products)

	resp = ts.api.Delete("/api/v1/tags/" + tag.ID)
	require.Equal(t, http.StatusNoContent, resp.Code)

	resp = ts.api.Get("/api/v1/products/count?name=Dry%20Shampoo&brand=Acme&size=200ml")
	require.Equal(t, http.StatusOK, resp.Code)
	count := decode[struct {
		Count int `json:"count"`
	}](t, resp.Body.Bytes())
	assert.Equal(t, 1, count.Count)
}

func TestCountProducts_EmptyFilterMatchesEmptyField(t *testing.T) {
	ts := setupTestServer(t)
	ts.createProduct(t, map[string]any{"name": "Lip Balm"})
	ts.createProduct(t, map[string]any{"name": "Lip Balm", "brand": "Acme"})

	countFor := func(query string) int {
		resp := ts.api.Get("/api/v1/products/count?" + query)
		require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
		return decode[struct {
			Count int `json:"count"`
		}](t, resp.Body.Bytes()).Count
	}

	assert.Equal(t, 2, countFor("name=Lip%20Balm"), "absent brand is not a filter")
	assert.Equal(t, 1, countFor("name=Lip%20Balm&brand="), "empty brand matches the unbranded product")
	assert.Equal(t, 1, countFor("name=Lip%20Balm&brand=Acme"))
	assert.Equal(t, 0, countFor("name=Lip%20Balm&brand=Other"))
}

func TestDeleteProduct(t *testing.T) {
	ts := setupTestServer(t)
	p := ts.createProduct(t, map[string]any{"name": "Eye Cream"})

	resp := ts.api.Delete("/api/v1/products/" + p.ID)
	require.Equal(t, http.StatusNoContent, resp.Code)

	resp = ts.api.Get("/api/v1/products/" + p.ID)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestBearerTokenScopesUser(t *testing.T) {
	ts := setupTestServer(t)
	p := ts.createProduct(t, map[string]any{"name": "Night Cream"})

	resp := ts.api.Get("/api/v1/products/"+p.ID, bearerFor(t, "user-2"))
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = ts.api.Get("/api/v1/products/"+p.ID, bearerFor(t, testUserID))
	assert.Equal(t, http.StatusOK, resp.Code)

	resp = ts.api.Get("/api/v1/products", bearerFor(t, "user-2"))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Empty(t, decode[ProductListResponse](t, resp.Body.Bytes()).Products)
}

func TestRefresh(t *testing.T) {
	ts := setupTestServer(t)

	ts.refresher.result = mirror.RefreshResult{Fetched: 3, Inserted: 2, Updated: 1}
	resp := ts.api.Post("/api/v1/sync/refresh")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	out := decode[mirror.RefreshResult](t, resp.Body.Bytes())
	assert.Equal(t, 3, out.Fetched)
	assert.Equal(t, 2, out.Inserted)

	ts.refresher.err = domainerrors.RemoteSync(nil, "remote unavailable")
	resp = ts.api.Post("/api/v1/sync/refresh")
	assert.Equal(t, http.StatusBadGateway, resp.Code)
	apiErr := decode[APIError](t, resp.Body.Bytes())
	assert.Equal(t, string(domainerrors.CodeRemoteSyncFailure), apiErr.Code)
}

func TestHealthCheck(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Get("/health")
	require.Equal(t, http.StatusOK, resp.Code)
	health := decode[HealthResponse](t, resp.Body.Bytes())
	assert.Equal(t, "healthy", health.Components["database"].Status)
	assert.Equal(t, "healthy", health.Components["sse"].Status)
	assert.Equal(t, "degraded", health.Components["search"].Status)
	assert.Equal(t, "degraded", health.Status)
}

func TestRateLimitMiddleware(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	st, err := sqlite.Open(filepath.Join(t.TempDir(), "shelflife.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	deps := service.Deps{Store: st, Identity: auth.NewIdentity(nil, testUserID), Logger: logger}
	services := &Services{
		Products:    service.NewProductService(deps),
		Usage:       service.NewUsageService(deps),
		Journey:     service.NewJourneyService(deps),
		Collections: service.NewCollectionService(deps),
	}
	server := NewServer(st, services, nil, nil, Options{RPS: 0.001, Burst: 2}, logger)
	t.Cleanup(server.Close)
	api := humatest.Wrap(t, server.api)

	assert.Equal(t, http.StatusOK, api.Get("/health").Code)
	assert.Equal(t, http.StatusOK, api.Get("/health").Code)
	assert.Equal(t, http.StatusTooManyRequests, api.Get("/health").Code)
}
