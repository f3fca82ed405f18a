package reminder

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Notifier delivers a due reminder. Delivery mechanics live outside this
// package.
type Notifier interface {
	NotifyReminder(ctx context.Context, r *Reminder) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, r *Reminder) error

// NotifyReminder calls f.
func (f NotifierFunc) NotifyReminder(ctx context.Context, r *Reminder) error { return f(ctx, r) }

// Ack removes a delivered reminder unless it was rescheduled meanwhile.
func (l *Ledger) Ack(ctx context.Context, r *Reminder) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.db.Update(func(txn *badger.Txn) error {
		current, err := getIn(txn, r.ProductID)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if !current.RemindAt.Equal(r.RemindAt) {
			return nil
		}
		return deleteIn(txn, r.ProductID)
	})
}

// Fire delivers every reminder due at now and acks the delivered ones.
// A reminder whose delivery fails stays in the ledger for the next pass.
func (l *Ledger) Fire(ctx context.Context, now time.Time, notifier Notifier) (int, error) {
	due, err := l.Due(ctx, now)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, r := range due {
		if err := notifier.NotifyReminder(ctx, r); err != nil {
			l.logWarn("reminder delivery failed", "product_id", r.ProductID, "error", err)
			continue
		}
		if err := l.Ack(ctx, r); err != nil {
			return delivered, err
		}
		delivered++
	}
	return delivered, nil
}

// Run fires due reminders every interval until ctx is cancelled.
func (l *Ledger) Run(ctx context.Context, interval time.Duration, notifier Notifier) {
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if n, err := l.Fire(ctx, time.Now(), notifier); err != nil {
			if ctx.Err() != nil {
				return
			}
			l.logWarn("reminder pass failed", "error", err)
		} else if n > 0 && l.logger != nil {
			l.logger.Info("reminders delivered", "count", n)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (l *Ledger) logWarn(msg string, args ...any) {
	if l.logger != nil {
		l.logger.Warn(msg, args...)
	}
}

// LogNotifier logs due reminders.
func LogNotifier(logger *slog.Logger) Notifier {
	return NotifierFunc(func(_ context.Context, r *Reminder) error {
		logger.Info("product expiring soon",
			"product_id", r.ProductID,
			"user_id", r.UserID,
			"expires_at", r.ExpiresAt,
		)
		return nil
	})
}
