package domain

import "time"

// JourneyEventType tags a journey event.
type JourneyEventType string

// Journey event types.
const (
	JourneyPurchase  JourneyEventType = "purchase"
	JourneyOpen      JourneyEventType = "open"
	JourneyThought   JourneyEventType = "thought"
	JourneyReview    JourneyEventType = "review"
	JourneyHalfEmpty JourneyEventType = "half_empty"
	JourneyFinished  JourneyEventType = "finished"
)

// Valid reports whether t is a known type.
func (t JourneyEventType) Valid() bool {
	switch t {
	case JourneyPurchase, JourneyOpen, JourneyThought, JourneyReview, JourneyHalfEmpty, JourneyFinished:
		return true
	}
	return false
}

// Rating bounds for reviews.
const (
	MinRating = 0
	MaxRating = 5
)

// JourneyEvent is an append-only narrative record attached to a product.
type JourneyEvent struct {
	CreatedAt time.Time        `json:"created_at"`
	ID        string           `json:"id"`
	ProductID string           `json:"product_id"`
	UserID    string           `json:"user_id"`
	Type      JourneyEventType `json:"type"`
	Text      string           `json:"text,omitempty"`
	Title     string           `json:"title,omitempty"`
	Rating    int              `json:"rating"`
}
