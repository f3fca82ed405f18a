package domain

import "time"

// DefaultUsageType tags a usage entry recorded without an explicit type.
const DefaultUsageType = "check_in"

// UsageEntry is one immutable consumption record.
type UsageEntry struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	UserID    string    `json:"user_id"`
	Type      string    `json:"type"`
	Notes     string    `json:"notes,omitempty"`
	Amount    float64   `json:"amount"`
}
