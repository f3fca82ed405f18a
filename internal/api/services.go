package api

import (
	"context"

	"github.com/shelflifeapp/shelflife/internal/mirror"
	"github.com/shelflifeapp/shelflife/internal/service"
)

// Refresher pulls remote state into the local store. Implemented by
// mirror.Reconciler.
type Refresher interface {
	BulkRefresh(ctx context.Context) (mirror.RefreshResult, error)
}

// DocumentCounter reports the size of the search index.
type DocumentCounter interface {
	DocumentCount() (uint64, error)
}

// Services groups the services used by handlers. Refresher and Search may be nil.
type Services struct {
	Products    *service.ProductService
	Usage       *service.UsageService
	Journey     *service.JourneyService
	Collections *service.CollectionService
	Refresher   Refresher
	Search      DocumentCounter
}
