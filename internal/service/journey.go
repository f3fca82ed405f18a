package service

import (
	"context"
	"strings"

	"github.com/shelflifeapp/shelflife/internal/domain"
	domainerrors "github.com/shelflifeapp/shelflife/internal/errors"
	"github.com/shelflifeapp/shelflife/internal/store"
)

// defaultLatestLimit is used by Latest when no limit is given.
const defaultLatestLimit = 10

// JourneyService exposes a product's journey log. Lifecycle events are
// appended by ProductService and UsageService; this service adds the
// user-authored ones.
type JourneyService struct {
	core
}

// NewJourneyService creates a new journey service.
func NewJourneyService(deps Deps) *JourneyService {
	return &JourneyService{core: newCore(deps)}
}

// ReviewRequest contains a product review.
type ReviewRequest struct {
	Title  string `json:"title" validate:"max=200"`
	Text   string `json:"text" validate:"max=5000"`
	Rating int    `json:"rating" validate:"min=0,max=5"`
}

// AddThought appends a free-text thought.
func (s *JourneyService) AddThought(ctx context.Context, productID, text string) (*domain.JourneyEvent, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, domainerrors.Validation("text is required")
	}
	if len(text) > 5000 {
		return nil, domainerrors.Validation("text exceeds maximum of 5000")
	}
	return s.appendUserEvent(ctx, productID, journeyEntry{Type: domain.JourneyThought, Text: text})
}

// AddReview appends a rated review.
func (s *JourneyService) AddReview(ctx context.Context, productID string, req ReviewRequest) (*domain.JourneyEvent, error) {
	if req.Rating < domain.MinRating || req.Rating > domain.MaxRating {
		return nil, domainerrors.Validationf("rating must be between %d and %d", domain.MinRating, domain.MaxRating)
	}
	if err := validate.Validate(req); err != nil {
		return nil, err
	}
	return s.appendUserEvent(ctx, productID, journeyEntry{
		Type:   domain.JourneyReview,
		Title:  strings.TrimSpace(req.Title),
		Text:   strings.TrimSpace(req.Text),
		Rating: req.Rating,
	})
}

func (s *JourneyService) appendUserEvent(ctx context.Context, productID string, entry journeyEntry) (*domain.JourneyEvent, error) {
	userID, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}

	var event *domain.JourneyEvent
	err = s.store.Write(ctx, func(tx store.Session) error {
		p, err := ownedProduct(ctx, tx, userID, productID)
		if err != nil {
			return err
		}
		entry.At = s.now()
		event, err = s.appendJourney(ctx, tx, p, entry)
		return err
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}

// Timeline returns a product's journey oldest first.
func (s *JourneyService) Timeline(ctx context.Context, productID string) ([]*domain.JourneyEvent, error) {
	return s.list(ctx, productID, false, 0)
}

// Latest returns up to limit of a product's most recent events, newest first.
func (s *JourneyService) Latest(ctx context.Context, productID string, limit int) ([]*domain.JourneyEvent, error) {
	if limit <= 0 {
		limit = defaultLatestLimit
	}
	return s.list(ctx, productID, true, limit)
}

func (s *JourneyService) list(ctx context.Context, productID string, newestFirst bool, limit int) ([]*domain.JourneyEvent, error) {
	userID, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}

	var events []*domain.JourneyEvent
	err = s.store.Read(ctx, func(tx store.Session) error {
		if _, err := ownedProduct(ctx, tx, userID, productID); err != nil {
			return err
		}
		var err error
		events, err = tx.ListJourneyEvents(ctx, productID, newestFirst, limit)
		return err
	})
	if err != nil {
		if isNotFound(err) {
			return nil, err
		}
		s.logReadFailure("list journey events", err, "product_id", productID)
		return []*domain.JourneyEvent{}, nil
	}
	if events == nil {
		events = []*domain.JourneyEvent{}
	}
	return events, nil
}
