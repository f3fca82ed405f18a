// Package reminder keeps the expiry reminder ledger.
//
// A reminder is stored per product and fires once, LeadTime before the
// product expires. Scheduling again replaces the previous reminder.
package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const (
	reminderPrefix = "reminder:"
	duePrefix      = "reminder_due:"

	// DefaultLeadTime is how long before expiry a reminder fires.
	DefaultLeadTime = 7 * 24 * time.Hour
)

// dueTimeLayout is fixed width so keys sort chronologically.
const dueTimeLayout = "20060102T150405.000000000Z"

// Reminder is one scheduled expiry reminder.
type Reminder struct {
	ProductID string    `json:"product_id"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	RemindAt  time.Time `json:"remind_at"`
}

// Ledger is a badger-backed reminder ledger.
type Ledger struct {
	db       *badger.DB
	leadTime time.Duration
	logger   *slog.Logger
}

// Open opens (or creates) the ledger at path.
func Open(path string, leadTime time.Duration, logger *slog.Logger) (*Ledger, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	opts.SyncWrites = true
	opts.CompactL0OnClose = true

	return open(opts, leadTime, logger)
}

// OpenInMemory opens a ledger that lives only in memory.
func OpenInMemory(leadTime time.Duration, logger *slog.Logger) (*Ledger, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return open(opts, leadTime, logger)
}

func open(opts badger.Options, leadTime time.Duration, logger *slog.Logger) (*Ledger, error) {
	if leadTime < 0 {
		return nil, fmt.Errorf("negative reminder lead time %s", leadTime)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open reminder ledger: %w", err)
	}
	if logger != nil {
		logger.Info("reminder ledger opened", "path", opts.Dir, "lead_time", leadTime)
	}
	return &Ledger{db: db, leadTime: leadTime, logger: logger}, nil
}

// Close closes the ledger.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Clear drops every scheduled reminder. Used when the products they refer to
// no longer exist, such as after the local store was recreated.
func (l *Ledger) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := l.db.DropAll(); err != nil {
		return fmt.Errorf("failed to clear reminder ledger: %w", err)
	}
	return nil
}

func reminderKey(productID string) []byte {
	return []byte(reminderPrefix + productID)
}

func dueKey(r *Reminder) []byte {
	return []byte(duePrefix + r.RemindAt.UTC().Format(dueTimeLayout) + ":" + r.ProductID)
}

// Schedule replaces the product's reminder with one for expiry.
func (l *Ledger) Schedule(ctx context.Context, productID, userID string, expiry time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if productID == "" {
		return errors.New("product id is required")
	}

	r := &Reminder{
		ProductID: productID,
		UserID:    userID,
		ExpiresAt: expiry.UTC(),
		RemindAt:  expiry.Add(-l.leadTime).UTC(),
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal reminder: %w", err)
	}

	return l.db.Update(func(txn *badger.Txn) error {
		if err := deleteIn(txn, productID); err != nil {
			return err
		}
		if err := txn.Set(reminderKey(productID), data); err != nil {
			return err
		}
		return txn.Set(dueKey(r), []byte{})
	})
}

// Cancel removes the product's reminder. Cancelling nothing is not an error.
func (l *Ledger) Cancel(ctx context.Context, productID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.db.Update(func(txn *badger.Txn) error {
		return deleteIn(txn, productID)
	})
}

// deleteIn removes the reminder and its due index entry inside txn.
func deleteIn(txn *badger.Txn, productID string) error {
	existing, err := getIn(txn, productID)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := txn.Delete(reminderKey(productID)); err != nil {
		return err
	}
	return txn.Delete(dueKey(existing))
}

func getIn(txn *badger.Txn, productID string) (*Reminder, error) {
	item, err := txn.Get(reminderKey(productID))
	if err != nil {
		return nil, err
	}
	var r Reminder
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &r)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decode reminder %s: %w", productID, err)
	}
	return &r, nil
}

// Get returns the product's reminder, or nil when none is scheduled.
func (l *Ledger) Get(ctx context.Context, productID string) (*Reminder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var r *Reminder
	err := l.db.View(func(txn *badger.Txn) error {
		var err error
		r, err = getIn(txn, productID)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
	return r, err
}

// Due returns reminders whose remind time is at or before now, earliest first.
func (l *Ledger) Due(ctx context.Context, now time.Time) ([]*Reminder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	upper := []byte(duePrefix + now.UTC().Format(dueTimeLayout) + ";")
	prefix := []byte(duePrefix)

	var due []*Reminder
	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			if string(key) > string(upper) {
				break
			}
			productID := productIDFromDueKey(key)
			r, err := getIn(txn, productID)
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			due = append(due, r)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list due reminders: %w", err)
	}
	return due, nil
}

// All returns every scheduled reminder, earliest first.
func (l *Ledger) All(ctx context.Context) ([]*Reminder, error) {
	return l.Due(ctx, time.Unix(1<<40, 0))
}

func productIDFromDueKey(key []byte) string {
	rest := string(key[len(duePrefix):])
	// The time part is fixed width.
	return rest[len(dueTimeLayout)+1:]
}
