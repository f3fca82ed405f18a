package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/shelflifeapp/shelflife/internal/config"
	"github.com/shelflifeapp/shelflife/internal/logger"
	"github.com/shelflifeapp/shelflife/internal/sse"
	"github.com/shelflifeapp/shelflife/internal/store/sqlite"
)

// SSEManagerHandle wraps the SSE manager with its context for lifecycle management.
type SSEManagerHandle struct {
	*sse.Manager
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *SSEManagerHandle) Shutdown() error {
	h.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Manager.Shutdown(ctx)
}

// ProvideSSEManager provides the server-sent events manager.
func ProvideSSEManager(i do.Injector) (*SSEManagerHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)

	manager := sse.NewManager(log.Component("sse"))

	ctx, cancel := context.WithCancel(context.Background())
	go manager.Start(ctx)

	log.Info("SSE manager started")

	return &SSEManagerHandle{
		Manager: manager,
		cancel:  cancel,
	}, nil
}

// StoreHandle wraps the store with shutdown capability.
type StoreHandle struct {
	*sqlite.Store
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore opens the SQLite store and routes committed changes to SSE.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)

	db, err := sqlite.Open(cfg.Store.DatabasePath(), log.Component("store"))
	if err != nil {
		return nil, err
	}
	db.SetEmitter(sseHandle.Manager)

	if db.WasReset() {
		log.Warn("Local store was reset; local data will be repopulated from the remote",
			"path", db.Path(),
		)
	} else {
		log.Info("Database initialized", "path", db.Path())
	}

	return &StoreHandle{Store: db}, nil
}
