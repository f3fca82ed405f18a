// Package remote is the HTTP client for the remote system of record.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shelflifeapp/shelflife/internal/auth"
	"github.com/shelflifeapp/shelflife/internal/domain"
	"github.com/shelflifeapp/shelflife/internal/ratelimit"
)

const (
	defaultRPS     = 5.0
	defaultBurst   = 10
	defaultTimeout = 15 * time.Second

	// maxErrorBody caps how much of an error response is kept for logs.
	maxErrorBody = 512
)

// Options configures a Client.
type Options struct {
	BaseURL string
	Timeout time.Duration
	RPS     float64
	Burst   int
}

// Client is a rate-limited remote API client. Requests are limited per user.
type Client struct {
	base    *url.URL
	http    *http.Client
	limiter *ratelimit.KeyedRateLimiter
	tokens  auth.TokenSource
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a remote client.
func New(opts Options, tokens auth.TokenSource, logger *slog.Logger) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, ErrDisabled
	}
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse remote base url: %w", err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RPS <= 0 {
		opts.RPS = defaultRPS
	}
	if opts.Burst <= 0 {
		opts.Burst = defaultBurst
	}
	if tokens == nil {
		tokens = auth.StaticTokenSource("")
	}

	return &Client{
		base:    base,
		http:    &http.Client{Timeout: opts.Timeout},
		limiter: ratelimit.New(opts.RPS, opts.Burst),
		tokens:  tokens,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Close releases resources held by the client.
func (c *Client) Close() {
	c.limiter.Stop()
}

// CreateProduct creates a product remotely and returns its remote id.
func (c *Client) CreateProduct(ctx context.Context, userID string, p *domain.Product) (string, error) {
	var out createdResponse
	err := c.do(ctx, "createProduct", userID, http.MethodPost, productsPath(userID), productBodyFrom(p), &out)
	if err != nil {
		return "", err
	}
	return out.ID, nil
}

// PatchProduct sends a partial update.
func (c *Client) PatchProduct(ctx context.Context, userID, remoteProductID string, patch domain.ProductPatch) error {
	return c.do(ctx, "patchProduct", userID, http.MethodPut, productPath(userID, remoteProductID), patch, nil)
}

// AppendUsage posts a usage entry. Servers without the usage-entries route
// answer 404 and get the entry on the older usage route.
func (c *Client) AppendUsage(ctx context.Context, userID, remoteProductID string, e *domain.UsageEntry) error {
	body := usageBody{ID: e.ID, Type: e.Type, Amount: e.Amount, Notes: e.Notes, CreatedAt: e.CreatedAt}

	base := productPath(userID, remoteProductID)
	err := c.do(ctx, "appendUsage", userID, http.MethodPost, base+"/usage-entries", body, nil)
	if errors.Is(err, ErrNotFound) {
		c.logger.Debug("usage-entries route missing, falling back", "product", remoteProductID)
		err = c.do(ctx, "appendUsage", userID, http.MethodPost, base+"/usage", body, nil)
	}
	return err
}

// AppendJourneyEvent posts a journey event.
func (c *Client) AppendJourneyEvent(ctx context.Context, userID, remoteProductID string, e *domain.JourneyEvent) error {
	body := journeyBody{ID: e.ID, Type: string(e.Type), Text: e.Text, Title: e.Title, CreatedAt: e.CreatedAt}
	if e.Type == domain.JourneyReview {
		rating := e.Rating
		body.Rating = &rating
	}
	return c.do(ctx, "appendJourneyEvent", userID, http.MethodPost,
		productPath(userID, remoteProductID)+"/journey-events", body, nil)
}

// DeleteProduct deletes a product remotely.
func (c *Client) DeleteProduct(ctx context.Context, userID, remoteProductID string) error {
	return c.do(ctx, "deleteProduct", userID, http.MethodDelete, productPath(userID, remoteProductID), nil, nil)
}

// CreateBag creates a bag remotely and returns its remote id.
func (c *Client) CreateBag(ctx context.Context, userID string, b *domain.Bag) (string, error) {
	var out createdResponse
	path := "/users/" + url.PathEscape(userID) + "/bags"
	if err := c.do(ctx, "createBag", userID, http.MethodPost, path, groupingBodyFrom(&b.Grouping), &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// CreateTag creates a tag remotely and returns its remote id.
func (c *Client) CreateTag(ctx context.Context, userID string, t *domain.Tag) (string, error) {
	var out createdResponse
	path := "/users/" + url.PathEscape(userID) + "/tags"
	if err := c.do(ctx, "createTag", userID, http.MethodPost, path, groupingBodyFrom(&t.Grouping), &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// FetchProducts lists the user's remote products. Each has RemoteID set.
func (c *Client) FetchProducts(ctx context.Context, userID string) ([]*domain.Product, error) {
	var bodies []productBody
	if err := c.do(ctx, "fetchProducts", userID, http.MethodGet, productsPath(userID), nil, &bodies); err != nil {
		return nil, err
	}

	products := make([]*domain.Product, 0, len(bodies))
	for _, b := range bodies {
		if b.ID == "" {
			continue
		}
		products = append(products, b.toDomain(userID))
	}
	return products, nil
}

func productsPath(userID string) string {
	return "/users/" + url.PathEscape(userID) + "/products"
}

func productPath(userID, remoteProductID string) string {
	return productsPath(userID) + "/" + url.PathEscape(remoteProductID)
}

// do executes one JSON request with rate limiting and status mapping.
func (c *Client) do(ctx context.Context, op, userID, method, path string, body, out any) error {
	wrap := func(status int, err error) error {
		return &Error{Op: op, Method: method, Path: path, Status: status, Err: err}
	}

	// Wait for rate limit
	if err := c.limiter.Wait(ctx, userID); err != nil {
		return wrap(0, fmt.Errorf("rate limit wait: %w", err))
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return wrap(0, fmt.Errorf("%w: %v", ErrUnauthorized, err))
	}
	if auth.Expired(token, c.now()) {
		return wrap(0, fmt.Errorf("%w: access token expired", ErrUnauthorized))
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return wrap(0, fmt.Errorf("encode request: %w", err))
		}
		reader = bytes.NewReader(payload)
	}

	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return wrap(0, fmt.Errorf("create request: %w", err))
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", "Shelflife/1.0")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("remote request",
		"op", op,
		"method", method,
		"path", path,
		"request_id", requestID,
	)

	resp, err := c.http.Do(req)
	if err != nil {
		return wrap(0, fmt.Errorf("execute request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || resp.StatusCode == http.StatusNoContent {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return wrap(resp.StatusCode, fmt.Errorf("decode response: %w", err))
		}
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return wrap(resp.StatusCode, ErrUnauthorized)
	case http.StatusNotFound:
		return wrap(resp.StatusCode, ErrNotFound)
	case http.StatusTooManyRequests:
		return wrap(resp.StatusCode, ErrRateLimited)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return wrap(resp.StatusCode, fmt.Errorf("%w: %s", ErrBadRequest, bytes.TrimSpace(snippet)))
	default:
		if resp.StatusCode >= 500 {
			return wrap(resp.StatusCode, ErrServer)
		}
		return wrap(resp.StatusCode, fmt.Errorf("unexpected status: %s", bytes.TrimSpace(snippet)))
	}
}
