// Package service implements the product lifecycle, usage ledger, journey log
// and collection graph on top of store sessions.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shelflifeapp/shelflife/internal/domain"
	domainerrors "github.com/shelflifeapp/shelflife/internal/errors"
	"github.com/shelflifeapp/shelflife/internal/mirror"
	"github.com/shelflifeapp/shelflife/internal/store"
	"github.com/shelflifeapp/shelflife/internal/validation"
)

// validate checks request structs for every service.
var validate = validation.New()

// Mirrorer accepts committed mutations for background propagation.
// Implemented by mirror.Reconciler.
type Mirrorer interface {
	Mirror(m mirror.Mutation)
}

// ReminderScheduler tracks expiry reminders. Implemented by reminder.Ledger.
type ReminderScheduler interface {
	Schedule(ctx context.Context, productID, userID string, expiry time.Time) error
	Cancel(ctx context.Context, productID string) error
}

// Identity resolves the user on whose behalf a call runs.
type Identity interface {
	CurrentUserID(ctx context.Context) (string, error)
}

// ProductSearcher returns product ids matching a free-text query, best first.
type ProductSearcher interface {
	Search(ctx context.Context, userID, query string, limit int) ([]string, error)
}

// Deps are the collaborators shared by the services.
type Deps struct {
	Store     store.Store
	Mirror    Mirrorer
	Reminders ReminderScheduler
	Identity  Identity
	Searcher  ProductSearcher
	Logger    *slog.Logger
	Now       func() time.Time
}

type noopMirror struct{}

func (noopMirror) Mirror(mirror.Mutation) {}

type noopReminders struct{}

func (noopReminders) Schedule(context.Context, string, string, time.Time) error { return nil }
func (noopReminders) Cancel(context.Context, string) error                      { return nil }

// reminderTimeout bounds ledger calls made from after-commit hooks.
const reminderTimeout = 5 * time.Second

// core carries the dependencies and helpers every service uses.
type core struct {
	store     store.Store
	mirror    Mirrorer
	reminders ReminderScheduler
	identity  Identity
	searcher  ProductSearcher
	logger    *slog.Logger
	now       func() time.Time
}

func newCore(d Deps) core {
	c := core{
		store:     d.Store,
		mirror:    d.Mirror,
		reminders: d.Reminders,
		identity:  d.Identity,
		searcher:  d.Searcher,
		logger:    d.Logger,
		now:       d.Now,
	}
	if c.mirror == nil {
		c.mirror = noopMirror{}
	}
	if c.reminders == nil {
		c.reminders = noopReminders{}
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// currentUser resolves the calling user.
func (c *core) currentUser(ctx context.Context) (string, error) {
	if c.identity == nil {
		return "", domainerrors.Unauthorized("no identity configured")
	}
	userID, err := c.identity.CurrentUserID(ctx)
	if err != nil {
		return "", err
	}
	if userID == "" {
		return "", domainerrors.Unauthorized("no current user")
	}
	return userID, nil
}

// ownedProduct loads a product and hides it from other users.
func ownedProduct(ctx context.Context, tx store.Session, userID, productID string) (*domain.Product, error) {
	p, err := tx.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domainerrors.NotFoundf("product %s not found", productID)
		}
		return nil, err
	}
	if p.UserID != userID {
		return nil, domainerrors.NotFoundf("product %s not found", productID)
	}
	return p, nil
}

// scheduleReminder replaces any reminder for p with one at its expiry.
// It runs from after-commit hooks, so failures are logged only.
func (c *core) scheduleReminder(p *domain.Product) {
	ctx, cancel := context.WithTimeout(context.Background(), reminderTimeout)
	defer cancel()

	if err := c.reminders.Cancel(ctx, p.ID); err != nil {
		c.logger.Warn("failed to cancel reminder", "product_id", p.ID, "error", err)
	}
	if p.ExpiryDate == nil || p.IsFinished {
		return
	}
	if err := c.reminders.Schedule(ctx, p.ID, p.UserID, *p.ExpiryDate); err != nil {
		c.logger.Warn("failed to schedule reminder", "product_id", p.ID, "error", err)
	}
}

func (c *core) cancelReminder(productID string) {
	ctx, cancel := context.WithTimeout(context.Background(), reminderTimeout)
	defer cancel()

	if err := c.reminders.Cancel(ctx, productID); err != nil {
		c.logger.Warn("failed to cancel reminder", "product_id", productID, "error", err)
	}
}

// logReadFailure records a read-path failure that is reported as an empty result.
func (c *core) logReadFailure(op string, err error, args ...any) {
	c.logger.Error(op+" failed, returning empty result", append(args, "error", err)...)
}
