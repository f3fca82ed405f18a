// Package di provides dependency injection configuration for the Shelflife core.
package di

import (
	"github.com/samber/do/v2"

	"github.com/shelflifeapp/shelflife/internal/api"
	"github.com/shelflifeapp/shelflife/internal/auth"
	"github.com/shelflifeapp/shelflife/internal/config"
	"github.com/shelflifeapp/shelflife/internal/di/providers"
	"github.com/shelflifeapp/shelflife/internal/logger"
	"github.com/shelflifeapp/shelflife/internal/service"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideIdentity)

	// Storage layer
	do.Provide(injector, providers.ProvideSSEManager)
	do.Provide(injector, providers.ProvideStore)
	do.Provide(injector, providers.ProvideSearchIndex)
	do.Provide(injector, providers.ProvideReminderLedger)

	// Remote mirror
	do.Provide(injector, providers.ProvideRemoteClient)
	do.Provide(injector, providers.ProvideReconciler)

	// Business services
	do.Provide(injector, providers.ProvideServiceDeps)
	do.Provide(injector, providers.ProvideProductService)
	do.Provide(injector, providers.ProvideUsageService)
	do.Provide(injector, providers.ProvideJourneyService)
	do.Provide(injector, providers.ProvideCollectionService)
	do.Provide(injector, providers.ProvideAPIServices)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services.
// This triggers lazy initialization of all core services.
func Bootstrap(injector *do.RootScope) error {
	_ = do.MustInvoke[*config.Config](injector)
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[*auth.Identity](injector)
	_ = do.MustInvoke[*providers.SSEManagerHandle](injector)
	_ = do.MustInvoke[*providers.StoreHandle](injector)
	_ = do.MustInvoke[*providers.SearchIndexHandle](injector)
	_ = do.MustInvoke[*providers.ReminderLedgerHandle](injector)
	_ = do.MustInvoke[*providers.RemoteClientHandle](injector)
	_ = do.MustInvoke[*providers.ReconcilerHandle](injector)

	// Business services
	_ = do.MustInvoke[*service.ProductService](injector)
	_ = do.MustInvoke[*service.UsageService](injector)
	_ = do.MustInvoke[*service.JourneyService](injector)
	_ = do.MustInvoke[*service.CollectionService](injector)
	_ = do.MustInvoke[*api.Services](injector)

	// Server
	_ = do.MustInvoke[*providers.HTTPServerHandle](injector)

	providers.NotifyStoreReset(injector)
	providers.TriggerSearchReindexIfNeeded(injector)
	go providers.RunInitialRefresh(injector)

	return nil
}
