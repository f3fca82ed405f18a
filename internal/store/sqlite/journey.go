package sqlite

import (
	"context"
	"fmt"

	"github.com/shelflifeapp/shelflife/internal/domain"
	"github.com/shelflifeapp/shelflife/internal/store"
)

const journeyColumns = `id, product_id, user_id, type, text, title, rating, created_at`

// AppendJourneyEvent inserts an immutable journey event.
func (s *session) AppendJourneyEvent(ctx context.Context, e *domain.JourneyEvent) error {
	if err := s.mutable(); err != nil {
		return err
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO journey_events (`+journeyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		e.ProductID,
		e.UserID,
		string(e.Type),
		e.Text,
		e.Title,
		e.Rating,
		formatTime(e.CreatedAt),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return store.ErrNotFound
		}
		return fmt.Errorf("insert journey event: %w", err)
	}

	event := *e
	s.record(store.Change{
		Kind:      store.ChangeJourneyAppended,
		UserID:    e.UserID,
		EntityID:  e.ID,
		ProductID: e.ProductID,
		Data:      &event,
	})
	return nil
}

// ListJourneyEvents returns a product's events in timestamp order.
// Events sharing a timestamp keep insertion order.
func (s *session) ListJourneyEvents(ctx context.Context, productID string, newestFirst bool, limit int) ([]*domain.JourneyEvent, error) {
	order := "created_at ASC, rowid ASC"
	if newestFirst {
		order = "created_at DESC, rowid DESC"
	}
	query := `SELECT ` + journeyColumns + ` FROM journey_events WHERE product_id = ? ORDER BY ` + order
	args := []any{productID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list journey events: %w", err)
	}
	defer rows.Close()

	var events []*domain.JourneyEvent
	for rows.Next() {
		var (
			e         domain.JourneyEvent
			eventType string
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.ProductID, &e.UserID, &eventType, &e.Text, &e.Title, &e.Rating, &createdAt); err != nil {
			return nil, err
		}
		e.Type = domain.JourneyEventType(eventType)
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

// CountJourneyEvents counts a product's events of one type.
func (s *session) CountJourneyEvents(ctx context.Context, productID string, eventType domain.JourneyEventType) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM journey_events WHERE product_id = ? AND type = ?`,
		productID, string(eventType)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count journey events: %w", err)
	}
	return n, nil
}
