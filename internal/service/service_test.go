package service

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shelflifeapp/shelflife/internal/domain"
	"github.com/shelflifeapp/shelflife/internal/mirror"
	"github.com/shelflifeapp/shelflife/internal/store"
	"github.com/shelflifeapp/shelflife/internal/store/sqlite"
)

const testUserID = "user-1"

type staticIdentity string

func (s staticIdentity) CurrentUserID(context.Context) (string, error) { return string(s), nil }

type recordingMirror struct {
	mu        sync.Mutex
	mutations []mirror.Mutation
}

func (m *recordingMirror) Mirror(mut mirror.Mutation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mutations = append(m.mutations, mut)
}

func (m *recordingMirror) all() []mirror.Mutation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mirror.Mutation(nil), m.mutations...)
}

func (m *recordingMirror) count(kind string) int {
	n := 0
	for _, mut := range m.all() {
		if mut.Kind() == kind {
			n++
		}
	}
	return n
}

func (m *recordingMirror) patches() []domain.ProductPatch {
	var out []domain.ProductPatch
	for _, mut := range m.all() {
		if p, ok := mut.(mirror.ProductPatched); ok {
			out = append(out, p.Patch)
		}
	}
	return out
}

func (m *recordingMirror) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mutations = nil
}

type recordingReminders struct {
	mu        sync.Mutex
	scheduled map[string]time.Time
	cancels   int
}

func newRecordingReminders() *recordingReminders {
	return &recordingReminders{scheduled: make(map[string]time.Time)}
}

func (r *recordingReminders) Schedule(_ context.Context, productID, _ string, expiry time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scheduled[productID] = expiry
	return nil
}

func (r *recordingReminders) Cancel(_ context.Context, productID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.scheduled, productID)
	r.cancels++
	return nil
}

func (r *recordingReminders) get(productID string) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.scheduled[productID]
	return t, ok
}

// testClock is a settable clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type testEnv struct {
	store      *sqlite.Store
	mirror     *recordingMirror
	reminders  *recordingReminders
	clock      *testClock
	products   *ProductService
	usage      *UsageService
	journey    *JourneyService
	collection *CollectionService
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "shelflife.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	env := &testEnv{
		store:     s,
		mirror:    &recordingMirror{},
		reminders: newRecordingReminders(),
		clock:     &testClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)},
	}
	deps := Deps{
		Store:     s,
		Mirror:    env.mirror,
		Reminders: env.reminders,
		Identity:  staticIdentity(testUserID),
		Logger:    logger,
		Now:       env.clock.Now,
	}
	env.products = NewProductService(deps)
	env.usage = NewUsageService(deps)
	env.journey = NewJourneyService(deps)
	env.collection = NewCollectionService(deps)
	return env
}

func (e *testEnv) createProduct(t *testing.T, req CreateProductRequest) *domain.Product {
	t.Helper()
	if req.Name == "" {
		req.Name = "Lip Balm"
	}
	p, err := e.products.Create(context.Background(), req)
	require.NoError(t, err)
	return p
}

func (e *testEnv) journeyTypes(t *testing.T, productID string) []domain.JourneyEventType {
	t.Helper()
	events, err := e.journey.Timeline(context.Background(), productID)
	require.NoError(t, err)
	types := make([]domain.JourneyEventType, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	return types
}

func (e *testEnv) countEvents(t *testing.T, productID string, eventType domain.JourneyEventType) int {
	t.Helper()
	var n int
	err := e.store.Read(context.Background(), func(tx store.Session) error {
		var err error
		n, err = tx.CountJourneyEvents(context.Background(), productID, eventType)
		return err
	})
	require.NoError(t, err)
	return n
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func strPtr(s string) *string { return &s }
