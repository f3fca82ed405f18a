package domain

import "time"

// Syncable provides common fields for entities mirrored to the remote system of record.
// RemoteID stays nil until the remote acknowledges the entity and the reconciler binds it.
type Syncable struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	RemoteID  *string   `json:"remote_id,omitempty"`
	ID        string    `json:"id"`
}

// Touch updates the UpdatedAt timestamp.
// Call this whenever the underlying entity changes.
func (s *Syncable) Touch(now time.Time) {
	s.UpdatedAt = now
}

// InitTimestamps sets both CreatedAt and UpdatedAt.
// Call this when creating a new entity.
func (s *Syncable) InitTimestamps(now time.Time) {
	s.CreatedAt = now
	s.UpdatedAt = now
}

// IsBound reports whether a remote identifier has been bound.
func (s *Syncable) IsBound() bool {
	return s.RemoteID != nil && *s.RemoteID != ""
}

// EntityKind names a mirrored entity type.
type EntityKind string

// Entity kinds that carry a remote identifier.
const (
	KindProduct EntityKind = "product"
	KindBag     EntityKind = "bag"
	KindTag     EntityKind = "tag"
)

// Valid reports whether k is a known kind.
func (k EntityKind) Valid() bool {
	switch k {
	case KindProduct, KindBag, KindTag:
		return true
	}
	return false
}
