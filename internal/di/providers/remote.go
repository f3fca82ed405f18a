package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/shelflifeapp/shelflife/internal/auth"
	"github.com/shelflifeapp/shelflife/internal/config"
	"github.com/shelflifeapp/shelflife/internal/logger"
	"github.com/shelflifeapp/shelflife/internal/mirror"
	"github.com/shelflifeapp/shelflife/internal/remote"
)

// ProvideIdentity resolves the current user from the configured token.
func ProvideIdentity(i do.Injector) (*auth.Identity, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	tokens := auth.StaticTokenSource(cfg.Auth.Token)
	identity := auth.NewIdentity(tokens, cfg.Auth.UserID)

	if userID, err := identity.CurrentUserID(context.Background()); err != nil {
		log.Warn("No default user configured; requests must carry a bearer token")
	} else {
		log.Info("Identity configured", "user_id", userID)
	}

	return identity, nil
}

// RemoteClientHandle wraps the remote client with shutdown capability.
// Client is nil when no remote is configured.
type RemoteClientHandle struct {
	*remote.Client
}

// Shutdown implements do.Shutdownable.
func (h *RemoteClientHandle) Shutdown() error {
	if h.Client != nil {
		h.Client.Close()
	}
	return nil
}

// ProvideRemoteClient provides the remote system-of-record client.
func ProvideRemoteClient(i do.Injector) (*RemoteClientHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if !cfg.Remote.Enabled() {
		log.Info("Remote sync disabled: no base URL configured")
		return &RemoteClientHandle{}, nil
	}

	client, err := remote.New(remote.Options{
		BaseURL: cfg.Remote.BaseURL,
		Timeout: cfg.Remote.Timeout,
		RPS:     cfg.Remote.RPS,
		Burst:   cfg.Remote.Burst,
	}, auth.StaticTokenSource(cfg.Auth.Token), log.Component("remote"))
	if err != nil {
		return nil, err
	}

	log.Info("Remote client initialized", "base_url", cfg.Remote.BaseURL)
	return &RemoteClientHandle{Client: client}, nil
}

// ReconcilerHandle wraps the mirror reconciler with shutdown capability.
type ReconcilerHandle struct {
	*mirror.Reconciler
}

// Shutdown implements do.Shutdownable.
func (h *ReconcilerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Reconciler.Shutdown(ctx)
}

// ProvideReconciler provides the background mirror to the remote.
func ProvideReconciler(i do.Injector) (*ReconcilerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	clientHandle := do.MustInvoke[*RemoteClientHandle](i)
	identity := do.MustInvoke[*auth.Identity](i)
	reminders := do.MustInvoke[*ReminderLedgerHandle](i)

	// A typed nil *remote.Client would not compare equal to nil inside the
	// reconciler.
	var rc mirror.Remote
	if clientHandle.Client != nil {
		rc = clientHandle.Client
	}
	var scheduler mirror.ReminderScheduler
	if reminders.Ledger != nil {
		scheduler = reminders.Ledger
	}

	r := mirror.New(storeHandle.Store, rc, identity, log.Component("mirror"), mirror.Options{
		MaxInFlight: cfg.Remote.MaxInFlight,
		CallTimeout: cfg.Remote.Timeout,
		Reminders:   scheduler,
	})
	return &ReconcilerHandle{Reconciler: r}, nil
}
