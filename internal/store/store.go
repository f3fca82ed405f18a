// Package store defines the session-scoped persistence API of the shelflife core.
//
// All reads and writes happen inside a Session obtained from Store.Read or
// Store.Write. Write sessions are serialized on a single writer; read
// sessions run concurrently against a consistent snapshot.
package store

import (
	"context"

	"github.com/shelflifeapp/shelflife/internal/domain"
)

// Store is the session entry point implemented by the sqlite package.
type Store interface {
	// Write runs fn inside one write transaction. Write sessions never overlap.
	// fn must not call Write or Read on the same store.
	Write(ctx context.Context, fn func(Session) error) error

	// Read runs fn inside a read-only snapshot. Mutating calls fail with
	// ErrReadOnlySession.
	Read(ctx context.Context, fn func(Session) error) error

	// WasReset reports whether Open had to destroy and recreate the store.
	WasReset() bool
}

// Session is one scoped unit of work.
type Session interface {
	// AfterCommit registers fn to run once the session commits. Hooks run in
	// registration order and never run when the session rolls back.
	// Hooks must not block on the store.
	AfterCommit(fn func())

	Products
	Usage
	Journey
	Groupings
	RemoteIDs
}

// Products persists product records.
type Products interface {
	CreateProduct(ctx context.Context, p *domain.Product) error
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	UpdateProduct(ctx context.Context, p *domain.Product) error
	// DeleteProduct removes the product with its usage entries, journey
	// events and associations.
	DeleteProduct(ctx context.Context, id string) error
	ListProducts(ctx context.Context, filter ProductFilter) ([]*domain.Product, error)
	CountProducts(ctx context.Context, criteria ProductCriteria) (int, error)
	FindProductByRemoteID(ctx context.Context, userID, remoteID string) (*domain.Product, error)
	FindProductByBarcode(ctx context.Context, userID, barcode string) (*domain.Product, error)
}

// Usage persists the append-only usage ledger.
type Usage interface {
	AppendUsage(ctx context.Context, e *domain.UsageEntry) error
	// ListUsage returns entries newest first.
	ListUsage(ctx context.Context, productID string) ([]*domain.UsageEntry, error)
}

// Journey persists the append-only journey log.
type Journey interface {
	AppendJourneyEvent(ctx context.Context, e *domain.JourneyEvent) error
	// ListJourneyEvents returns events oldest first, or newest first when
	// newestFirst is set. A limit of zero means no limit.
	ListJourneyEvents(ctx context.Context, productID string, newestFirst bool, limit int) ([]*domain.JourneyEvent, error)
	CountJourneyEvents(ctx context.Context, productID string, eventType domain.JourneyEventType) (int, error)
}

// Groupings persists bags, tags and their product associations.
type Groupings interface {
	CreateBag(ctx context.Context, b *domain.Bag) error
	GetBag(ctx context.Context, id string) (*domain.Bag, error)
	ListBags(ctx context.Context, userID string) ([]*domain.Bag, error)
	DeleteBag(ctx context.Context, id string) error

	CreateTag(ctx context.Context, t *domain.Tag) error
	GetTag(ctx context.Context, id string) (*domain.Tag, error)
	ListTags(ctx context.Context, userID string) ([]*domain.Tag, error)
	DeleteTag(ctx context.Context, id string) error

	// AddAssociation links a product to a bag or tag and reports whether a
	// link was created. Linking twice is a no-op.
	AddAssociation(ctx context.Context, kind domain.EntityKind, productID, groupingID string) (bool, error)
	// RemoveAssociation unlinks and reports whether a link existed.
	RemoveAssociation(ctx context.Context, kind domain.EntityKind, productID, groupingID string) (bool, error)
	ListAssociatedProducts(ctx context.Context, kind domain.EntityKind, groupingID string) ([]*domain.Product, error)
	ListAssociationIDs(ctx context.Context, kind domain.EntityKind, productID string) ([]string, error)
}

// RemoteIDs binds and resolves remote identifiers.
type RemoteIDs interface {
	// BindRemoteID records the remote id of a local entity. Binding the same
	// id again is a no-op; binding a different id fails with ErrRemoteIDBound.
	BindRemoteID(ctx context.Context, kind domain.EntityKind, localID, remoteID string) error
	// RemoteID returns the bound remote id, or "" when unbound.
	RemoteID(ctx context.Context, kind domain.EntityKind, localID string) (string, error)
}

// ProductFilter narrows ListProducts. UserID is required.
type ProductFilter struct {
	UserID          string
	State           domain.LifecycleState
	FavoritesOnly   bool
	IncludeFinished bool
	IDs             []string
	Limit           int
	Offset          int
}

// ProductCriteria is an exact-match count filter. Nil fields are ignored and
// the rest are ANDed. Finished products are excluded unless IncludeFinished.
type ProductCriteria struct {
	UserID          string
	Name            *string
	Brand           *string
	Size            *string
	IncludeFinished bool
}

// ProductIndexer keeps an external product index in step with commits.
type ProductIndexer interface {
	IndexProduct(ctx context.Context, p *domain.Product) error
	DeleteProduct(ctx context.Context, productID string) error
}

// NoopProductIndexer is a no-op implementation for tests.
type NoopProductIndexer struct{}

// IndexProduct is a no-op.
func (NoopProductIndexer) IndexProduct(context.Context, *domain.Product) error { return nil }

// DeleteProduct is a no-op.
func (NoopProductIndexer) DeleteProduct(context.Context, string) error { return nil }
