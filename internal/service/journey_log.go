package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shelflifeapp/shelflife/internal/domain"
	"github.com/shelflifeapp/shelflife/internal/id"
	"github.com/shelflifeapp/shelflife/internal/mirror"
	"github.com/shelflifeapp/shelflife/internal/store"
)

// journeyEntry is the variable part of an appended journey event.
type journeyEntry struct {
	Type   domain.JourneyEventType
	Text   string
	Title  string
	Rating int
	At     time.Time
}

// appendJourney is the single path by which journey events enter the log.
// The event is mirrored once the session commits.
func (c *core) appendJourney(ctx context.Context, tx store.Session, p *domain.Product, entry journeyEntry) (*domain.JourneyEvent, error) {
	eventID, err := id.Generate(id.PrefixJourney)
	if err != nil {
		return nil, fmt.Errorf("generate journey event id: %w", err)
	}

	event := &domain.JourneyEvent{
		CreatedAt: entry.At,
		ID:        eventID,
		ProductID: p.ID,
		UserID:    p.UserID,
		Type:      entry.Type,
		Text:      entry.Text,
		Title:     entry.Title,
		Rating:    entry.Rating,
	}
	if err := tx.AppendJourneyEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("append %s event: %w", entry.Type, err)
	}

	snapshot := *event
	tx.AfterCommit(func() {
		c.mirror.Mirror(mirror.JourneyAppended{UserID: snapshot.UserID, Event: &snapshot})
	})
	return event, nil
}

// recordHalfEmpty appends a half_empty event unless one already exists.
func (c *core) recordHalfEmpty(ctx context.Context, tx store.Session, p *domain.Product, at time.Time) error {
	n, err := tx.CountJourneyEvents(ctx, p.ID, domain.JourneyHalfEmpty)
	if err != nil {
		return fmt.Errorf("count half_empty events: %w", err)
	}
	if n > 0 {
		return nil
	}
	_, err = c.appendJourney(ctx, tx, p, journeyEntry{Type: domain.JourneyHalfEmpty, At: at})
	return err
}
