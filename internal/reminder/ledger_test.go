package reminder

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestLedger(t *testing.T, lead time.Duration) *Ledger {
	t.Helper()
	l, err := Open(t.TempDir(), lead, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestLedger_ScheduleReplaces(t *testing.T) {
	l := setupTestLedger(t, 24*time.Hour)
	ctx := context.Background()

	first := time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)
	second := time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, l.Schedule(ctx, "prd-1", "user-1", first))
	require.NoError(t, l.Schedule(ctx, "prd-1", "user-1", second))

	r, err := l.Get(ctx, "prd-1")
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.True(t, r.ExpiresAt.Equal(second))
	assert.True(t, r.RemindAt.Equal(second.Add(-24*time.Hour)))

	all, err := l.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1, "the old due entry is gone")
}

func TestLedger_Cancel(t *testing.T) {
	l := setupTestLedger(t, 0)
	ctx := context.Background()

	require.NoError(t, l.Cancel(ctx, "missing"))
	require.NoError(t, l.Schedule(ctx, "prd-1", "user-1", time.Now()))
	require.NoError(t, l.Cancel(ctx, "prd-1"))

	r, err := l.Get(ctx, "prd-1")
	require.NoError(t, err)
	assert.Nil(t, r)

	due, err := l.Due(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestLedger_Clear(t *testing.T) {
	l := setupTestLedger(t, 24*time.Hour)
	ctx := context.Background()

	expiry := time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, l.Schedule(ctx, "prd-1", "user-1", expiry))
	require.NoError(t, l.Schedule(ctx, "prd-2", "user-1", expiry))

	require.NoError(t, l.Clear(ctx))

	all, err := l.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	due, err := l.Due(ctx, expiry)
	require.NoError(t, err)
	assert.Empty(t, due)

	require.NoError(t, l.Schedule(ctx, "prd-1", "user-1", expiry), "ledger stays usable")
	all, err = l.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestLedger_DueOrdering(t *testing.T) {
	l := setupTestLedger(t, 0)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, l.Schedule(ctx, "prd-late", "u", base.Add(48*time.Hour)))
	require.NoError(t, l.Schedule(ctx, "prd-early", "u", base))
	require.NoError(t, l.Schedule(ctx, "prd-future", "u", base.Add(30*24*time.Hour)))

	due, err := l.Due(ctx, base.Add(48*time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "prd-early", due[0].ProductID)
	assert.Equal(t, "prd-late", due[1].ProductID)
}

func TestLedger_FireAcksDelivered(t *testing.T) {
	l := setupTestLedger(t, 0)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, l.Schedule(ctx, "prd-ok", "u", base))
	require.NoError(t, l.Schedule(ctx, "prd-fail", "u", base))

	var seen []string
	notifier := NotifierFunc(func(_ context.Context, r *Reminder) error {
		seen = append(seen, r.ProductID)
		if r.ProductID == "prd-fail" {
			return errors.New("offline")
		}
		return nil
	})

	n, err := l.Fire(ctx, base, notifier)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.ElementsMatch(t, []string{"prd-ok", "prd-fail"}, seen)

	due, err := l.Due(ctx, base)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "prd-fail", due[0].ProductID, "failed deliveries stay scheduled")
}

func TestLedger_AckSkipsRescheduled(t *testing.T) {
	l := setupTestLedger(t, 0)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, l.Schedule(ctx, "prd-1", "u", base))
	due, err := l.Due(ctx, base)
	require.NoError(t, err)
	require.Len(t, due, 1)

	require.NoError(t, l.Schedule(ctx, "prd-1", "u", base.AddDate(0, 1, 0)))
	require.NoError(t, l.Ack(ctx, due[0]))

	r, err := l.Get(ctx, "prd-1")
	require.NoError(t, err)
	require.NotNil(t, r, "a rescheduled reminder survives the stale ack")
}

func TestLedger_RunStopsOnCancel(t *testing.T) {
	l, err := OpenInMemory(0, nil)
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.Schedule(context.Background(), "prd-1", "u", time.Now().Add(-time.Minute)))

	delivered := make(chan string, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx, 10*time.Millisecond, NotifierFunc(func(_ context.Context, r *Reminder) error {
			delivered <- r.ProductID
			return nil
		}))
		close(done)
	}()

	select {
	case id := <-delivered:
		assert.Equal(t, "prd-1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("reminder was not delivered")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}
