package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/shelflifeapp/shelflife/internal/config"
	"github.com/shelflifeapp/shelflife/internal/logger"
	"github.com/shelflifeapp/shelflife/internal/reminder"
	"github.com/shelflifeapp/shelflife/internal/sse"
)

// ReminderLedgerHandle wraps the reminder ledger and its delivery loop.
// Ledger is nil when reminders are disabled.
type ReminderLedgerHandle struct {
	*reminder.Ledger
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *ReminderLedgerHandle) Shutdown() error {
	if h.Ledger == nil {
		return nil
	}
	h.cancel()
	return h.Close()
}

// ProvideReminderLedger opens the badger reminder ledger and starts delivering
// due reminders as SSE events. A reset store starts with an empty ledger.
func ProvideReminderLedger(i do.Injector) (*ReminderLedgerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)

	if !cfg.Reminder.Enabled {
		log.Info("Expiry reminders disabled by configuration")
		return &ReminderLedgerHandle{cancel: func() {}}, nil
	}

	ledger, err := reminder.Open(cfg.Store.RemindersPath(), cfg.Reminder.LeadTime, log.Component("reminder"))
	if err != nil {
		return nil, err
	}

	// Reminders are keyed by local product ids, which a reset invalidates.
	if storeHandle.WasReset() {
		if err := ledger.Clear(context.Background()); err != nil {
			_ = ledger.Close()
			return nil, err
		}
		log.Warn("Cleared reminder ledger after store reset")
	}

	logNotifier := reminder.LogNotifier(log.Component("reminder"))
	notifier := reminder.NotifierFunc(func(ctx context.Context, r *reminder.Reminder) error {
		sseHandle.Emit(sse.NewReminderDueEvent(r.UserID, r.ProductID, r.ExpiresAt))
		return logNotifier.NotifyReminder(ctx, r)
	})

	ctx, cancel := context.WithCancel(context.Background())
	go ledger.Run(ctx, cfg.Reminder.PollInterval, notifier)

	log.Info("Reminder ledger started",
		"lead_time", cfg.Reminder.LeadTime,
		"poll_interval", cfg.Reminder.PollInterval,
	)

	return &ReminderLedgerHandle{Ledger: ledger, cancel: cancel}, nil
}
