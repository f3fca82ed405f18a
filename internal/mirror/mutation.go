package mirror

import (
	"github.com/shelflifeapp/shelflife/internal/domain"
)

// Mutation is one committed local change to propagate to the remote.
// Mutations for the same entity run in the order they were submitted.
type Mutation interface {
	// Lane returns the key of the FIFO lane the mutation runs on.
	Lane() string
	// Kind names the mutation for logging.
	Kind() string
}

func productLane(productID string) string { return "product:" + productID }

// ProductCreated asks the remote for an id for a new local product.
type ProductCreated struct {
	UserID  string
	Product *domain.Product
}

func (m ProductCreated) Lane() string { return productLane(m.Product.ID) }
func (m ProductCreated) Kind() string { return "product.created" }

// ProductPatched sends a partial update of a bound product.
type ProductPatched struct {
	UserID    string
	ProductID string
	Patch     domain.ProductPatch
}

func (m ProductPatched) Lane() string { return productLane(m.ProductID) }
func (m ProductPatched) Kind() string { return "product.patched" }

// UsageAppended mirrors one usage entry.
type UsageAppended struct {
	UserID string
	Entry  *domain.UsageEntry
}

func (m UsageAppended) Lane() string { return productLane(m.Entry.ProductID) }
func (m UsageAppended) Kind() string { return "usage.appended" }

// JourneyAppended mirrors one journey event.
type JourneyAppended struct {
	UserID string
	Event  *domain.JourneyEvent
}

func (m JourneyAppended) Lane() string { return productLane(m.Event.ProductID) }
func (m JourneyAppended) Kind() string { return "journey.appended" }

// ProductDeleted deletes a product remotely. RemoteID is captured before the
// local row goes away; when empty the lane falls back to an id learned by an
// earlier create on the same lane.
type ProductDeleted struct {
	UserID    string
	ProductID string
	RemoteID  string
}

func (m ProductDeleted) Lane() string { return productLane(m.ProductID) }
func (m ProductDeleted) Kind() string { return "product.deleted" }

// AssociationChanged adds or removes a product's bag or tag link remotely.
type AssociationChanged struct {
	UserID     string
	ProductID  string
	GroupingID string
	Grouping   domain.EntityKind
	Added      bool
}

func (m AssociationChanged) Lane() string { return productLane(m.ProductID) }
func (m AssociationChanged) Kind() string { return "association.changed" }

// BagCreated asks the remote for an id for a new local bag.
type BagCreated struct {
	UserID string
	Bag    *domain.Bag
}

func (m BagCreated) Lane() string { return "bag:" + m.Bag.ID }
func (m BagCreated) Kind() string { return "bag.created" }

// TagCreated asks the remote for an id for a new local tag.
type TagCreated struct {
	UserID string
	Tag    *domain.Tag
}

func (m TagCreated) Lane() string { return "tag:" + m.Tag.ID }
func (m TagCreated) Kind() string { return "tag.created" }
