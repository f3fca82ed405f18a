package store

// ChangeKind names a committed change.
type ChangeKind string

// Committed change kinds.
const (
	ChangeProductCreated     ChangeKind = "product.created"
	ChangeProductUpdated     ChangeKind = "product.updated"
	ChangeProductDeleted     ChangeKind = "product.deleted"
	ChangeUsageRecorded      ChangeKind = "usage.recorded"
	ChangeJourneyAppended    ChangeKind = "journey.appended"
	ChangeBagCreated         ChangeKind = "bag.created"
	ChangeBagDeleted         ChangeKind = "bag.deleted"
	ChangeTagCreated         ChangeKind = "tag.created"
	ChangeTagDeleted         ChangeKind = "tag.deleted"
	ChangeAssociationAdded   ChangeKind = "association.added"
	ChangeAssociationRemoved ChangeKind = "association.removed"
)

// Change describes one committed mutation. Data holds a snapshot of the
// affected entity (*domain.Product, *domain.UsageEntry, ...) or nil for deletes.
type Change struct {
	Kind      ChangeKind
	UserID    string
	EntityID  string
	ProductID string
	Data      any
}

// EventEmitter receives committed changes. Store uses this to broadcast
// changes without depending on the SSE implementation.
type EventEmitter interface {
	Emit(event any)
}

// NoopEmitter is a no-op implementation of EventEmitter for testing.
type NoopEmitter struct{}

// Emit implements EventEmitter.Emit as a no-op.
func (NoopEmitter) Emit(_ any) {}
