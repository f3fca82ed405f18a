package sqlite

import (
	"context"
	"fmt"

	"github.com/shelflifeapp/shelflife/internal/domain"
	"github.com/shelflifeapp/shelflife/internal/store"
)

// AppendUsage inserts an immutable usage entry.
func (s *session) AppendUsage(ctx context.Context, e *domain.UsageEntry) error {
	if err := s.mutable(); err != nil {
		return err
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO usage_entries (id, product_id, user_id, type, amount, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		e.ProductID,
		e.UserID,
		e.Type,
		e.Amount,
		e.Notes,
		formatTime(e.CreatedAt),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return store.ErrNotFound
		}
		return fmt.Errorf("insert usage entry: %w", err)
	}

	entry := *e
	s.record(store.Change{
		Kind:      store.ChangeUsageRecorded,
		UserID:    e.UserID,
		EntityID:  e.ID,
		ProductID: e.ProductID,
		Data:      &entry,
	})
	return nil
}

// ListUsage returns a product's usage entries, newest first.
func (s *session) ListUsage(ctx context.Context, productID string) ([]*domain.UsageEntry, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, product_id, user_id, type, amount, notes, created_at
		FROM usage_entries
		WHERE product_id = ?
		ORDER BY created_at DESC, rowid DESC`, productID)
	if err != nil {
		return nil, fmt.Errorf("list usage entries: %w", err)
	}
	defer rows.Close()

	var entries []*domain.UsageEntry
	for rows.Next() {
		var (
			e         domain.UsageEntry
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.ProductID, &e.UserID, &e.Type, &e.Amount, &e.Notes, &createdAt); err != nil {
			return nil, err
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
