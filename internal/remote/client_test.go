package remote

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelflifeapp/shelflife/internal/auth"
	"github.com/shelflifeapp/shelflife/internal/domain"
)

type recordedRequest struct {
	Method    string
	Path      string
	Auth      string
	RequestID string
	Body      map[string]any
}

type fakeRemote struct {
	mu       sync.Mutex
	requests []recordedRequest
}

func (f *fakeRemote) record(r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, recordedRequest{
		Method:    r.Method,
		Path:      r.URL.Path,
		Auth:      r.Header.Get("Authorization"),
		RequestID: r.Header.Get("X-Request-ID"),
		Body:      body,
	})
}

func (f *fakeRemote) last() recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func newTestClient(t *testing.T, routes func(r chi.Router, f *fakeRemote)) (*Client, *fakeRemote) {
	t.Helper()

	f := &fakeRemote{}
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			f.record(req)
			next.ServeHTTP(w, req)
		})
	})
	routes(r, f)

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	client, err := New(Options{BaseURL: server.URL + "/api", RPS: 1000, Burst: 1000},
		auth.StaticTokenSource("test-token"), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client, f
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestClient_CreateProduct(t *testing.T) {
	client, f := newTestClient(t, func(r chi.Router, _ *fakeRemote) {
		r.Post("/api/users/{userID}/products", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusCreated, map[string]string{"id": "remote-1"})
		})
	})

	p := &domain.Product{Name: "Sunscreen", Brand: "Acme", RemainingAmount: 100}
	remoteID, err := client.CreateProduct(context.Background(), "user-1", p)
	require.NoError(t, err)
	assert.Equal(t, "remote-1", remoteID)

	req := f.last()
	assert.Equal(t, "/api/users/user-1/products", req.Path)
	assert.Equal(t, "Bearer test-token", req.Auth)
	assert.NotEmpty(t, req.RequestID)
	assert.Equal(t, "Sunscreen", req.Body["name"])
	assert.Equal(t, 100.0, req.Body["remainingAmount"])
}

func TestClient_PatchProductSendsExplicitNulls(t *testing.T) {
	client, f := newTestClient(t, func(r chi.Router, _ *fakeRemote) {
		r.Put("/api/users/{userID}/products/{productID}", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
	})

	fav := true
	err := client.PatchProduct(context.Background(), "user-1", "remote-1", domain.ProductPatch{
		IsFavorite:    &fav,
		ClearOpenDate: true,
		ClearExpiry:   true,
	})
	require.NoError(t, err)

	req := f.last()
	assert.Equal(t, http.MethodPut, req.Method)
	assert.Equal(t, "/api/users/user-1/products/remote-1", req.Path)
	assert.Equal(t, true, req.Body["isFavorite"])
	v, ok := req.Body["openDate"]
	assert.True(t, ok)
	assert.Nil(t, v)
	v, ok = req.Body["expiryDate"]
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestClient_AppendUsageFallsBack(t *testing.T) {
	client, f := newTestClient(t, func(r chi.Router, _ *fakeRemote) {
		r.Post("/api/users/{userID}/products/{productID}/usage", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusCreated)
		})
	})

	err := client.AppendUsage(context.Background(), "user-1", "remote-1", &domain.UsageEntry{
		ID: "use-1", Type: domain.DefaultUsageType, Amount: 5, CreatedAt: time.Now(),
	})
	require.NoError(t, err)

	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.requests, 2)
	assert.Equal(t, "/api/users/user-1/products/remote-1/usage-entries", f.requests[0].Path)
	assert.Equal(t, "/api/users/user-1/products/remote-1/usage", f.requests[1].Path)
	assert.Equal(t, "use-1", f.requests[1].Body["clientId"])
}

func TestClient_AppendJourneyEvent(t *testing.T) {
	client, f := newTestClient(t, func(r chi.Router, _ *fakeRemote) {
		r.Post("/api/users/{userID}/products/{productID}/journey-events", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusCreated)
		})
	})

	err := client.AppendJourneyEvent(context.Background(), "user-1", "remote-1", &domain.JourneyEvent{
		ID: "jev-1", Type: domain.JourneyReview, Title: "Great", Rating: 0, CreatedAt: time.Now(),
	})
	require.NoError(t, err)

	body := f.last().Body
	assert.Equal(t, "review", body["type"])
	assert.Equal(t, 0.0, body["rating"], "a zero rating is still sent for reviews")
}

func TestClient_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusNotFound, ErrNotFound},
		{http.StatusTooManyRequests, ErrRateLimited},
		{http.StatusBadRequest, ErrBadRequest},
		{http.StatusInternalServerError, ErrServer},
		{http.StatusBadGateway, ErrServer},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			client, _ := newTestClient(t, func(r chi.Router, _ *fakeRemote) {
				r.Delete("/api/users/{userID}/products/{productID}", func(w http.ResponseWriter, _ *http.Request) {
					w.WriteHeader(tt.status)
				})
			})

			err := client.DeleteProduct(context.Background(), "user-1", "remote-1")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var remoteErr *Error
			require.True(t, errors.As(err, &remoteErr))
			assert.Equal(t, tt.status, remoteErr.Status)
			assert.Equal(t, "deleteProduct", remoteErr.Op)
		})
	}
}

func TestClient_FetchProducts(t *testing.T) {
	client, _ := newTestClient(t, func(r chi.Router, _ *fakeRemote) {
		r.Get("/api/users/{userID}/products", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, []map[string]any{
				{"id": "remote-1", "name": "Lip Balm", "barcode": "123", "remainingAmount": 40, "openDate": "2024-03-01T00:00:00Z"},
				{"name": "no id, skipped"},
			})
		})
	})

	products, err := client.FetchProducts(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, products, 1)
	p := products[0]
	require.NotNil(t, p.RemoteID)
	assert.Equal(t, "remote-1", *p.RemoteID)
	assert.Equal(t, "user-1", p.UserID)
	assert.Equal(t, 40.0, p.RemainingAmount)
	require.NotNil(t, p.OpenDate)
}

func TestClient_MissingToken(t *testing.T) {
	f := &fakeRemote{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
	}))
	defer server.Close()

	client, err := New(Options{BaseURL: server.URL}, auth.StaticTokenSource(""), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	defer client.Close()

	err = client.DeleteProduct(context.Background(), "user-1", "remote-1")
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Empty(t, f.requests, "no request is sent without a token")
}

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := New(Options{}, nil, slog.New(slog.DiscardHandler))
	assert.ErrorIs(t, err, ErrDisabled)
}
