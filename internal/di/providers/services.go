package providers

import (
	"github.com/samber/do/v2"

	"github.com/shelflifeapp/shelflife/internal/api"
	"github.com/shelflifeapp/shelflife/internal/auth"
	"github.com/shelflifeapp/shelflife/internal/logger"
	"github.com/shelflifeapp/shelflife/internal/service"
)

// ProvideServiceDeps assembles the collaborators shared by every service.
// Optional components are left nil rather than set to typed nil pointers.
func ProvideServiceDeps(i do.Injector) (service.Deps, error) {
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	reconciler := do.MustInvoke[*ReconcilerHandle](i)
	reminders := do.MustInvoke[*ReminderLedgerHandle](i)
	searchHandle := do.MustInvoke[*SearchIndexHandle](i)
	identity := do.MustInvoke[*auth.Identity](i)

	deps := service.Deps{
		Store:    storeHandle.Store,
		Mirror:   reconciler.Reconciler,
		Identity: identity,
		Logger:   log.Component("service"),
	}
	if reminders.Ledger != nil {
		deps.Reminders = reminders.Ledger
	}
	if searchHandle.SearchIndex != nil {
		deps.Searcher = searchHandle.SearchIndex
	}
	return deps, nil
}

// ProvideProductService provides the product lifecycle service.
func ProvideProductService(i do.Injector) (*service.ProductService, error) {
	return service.NewProductService(do.MustInvoke[service.Deps](i)), nil
}

// ProvideUsageService provides the usage ledger service.
func ProvideUsageService(i do.Injector) (*service.UsageService, error) {
	return service.NewUsageService(do.MustInvoke[service.Deps](i)), nil
}

// ProvideJourneyService provides the journey log service.
func ProvideJourneyService(i do.Injector) (*service.JourneyService, error) {
	return service.NewJourneyService(do.MustInvoke[service.Deps](i)), nil
}

// ProvideCollectionService provides the bag and tag service.
func ProvideCollectionService(i do.Injector) (*service.CollectionService, error) {
	return service.NewCollectionService(do.MustInvoke[service.Deps](i)), nil
}

// ProvideAPIServices groups the services exposed over HTTP.
func ProvideAPIServices(i do.Injector) (*api.Services, error) {
	reconciler := do.MustInvoke[*ReconcilerHandle](i)
	clientHandle := do.MustInvoke[*RemoteClientHandle](i)
	searchHandle := do.MustInvoke[*SearchIndexHandle](i)

	services := &api.Services{
		Products:    do.MustInvoke[*service.ProductService](i),
		Usage:       do.MustInvoke[*service.UsageService](i),
		Journey:     do.MustInvoke[*service.JourneyService](i),
		Collections: do.MustInvoke[*service.CollectionService](i),
	}
	if clientHandle.Client != nil {
		services.Refresher = reconciler.Reconciler
	}
	if searchHandle.SearchIndex != nil {
		services.Search = searchHandle.SearchIndex
	}
	return services, nil
}
