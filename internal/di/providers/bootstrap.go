package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/shelflifeapp/shelflife/internal/auth"
	"github.com/shelflifeapp/shelflife/internal/logger"
	"github.com/shelflifeapp/shelflife/internal/sse"
)

// NotifyStoreReset tells connected clients that local data was wiped, so they
// drop cached state.
func NotifyStoreReset(i do.Injector) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)

	if storeHandle.WasReset() {
		sseHandle.Emit(sse.NewStoreResetEvent())
	}
}

// RunInitialRefresh pulls the current user's products from the remote.
// Failures are logged; the local store stays usable offline.
func RunInitialRefresh(i do.Injector) {
	log := do.MustInvoke[*logger.Logger](i)
	clientHandle := do.MustInvoke[*RemoteClientHandle](i)
	reconciler := do.MustInvoke[*ReconcilerHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	identity := do.MustInvoke[*auth.Identity](i)

	if clientHandle.Client == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	userID, err := identity.CurrentUserID(ctx)
	if err != nil {
		log.Info("Skipping initial refresh: no current user")
		return
	}

	result, err := reconciler.BulkRefresh(ctx)
	if err != nil {
		log.Warn("Initial refresh from remote failed", "error", err)
		return
	}

	log.Info("Initial refresh from remote completed",
		"fetched", result.Fetched,
		"inserted", result.Inserted,
		"updated", result.Updated,
		"bound", result.Bound,
	)
	sseHandle.Emit(sse.NewRefreshCompleteEvent(userID, result))
}
