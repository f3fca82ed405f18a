package mirror

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shelflifeapp/shelflife/internal/domain"
	domainerrors "github.com/shelflifeapp/shelflife/internal/errors"
	"github.com/shelflifeapp/shelflife/internal/id"
	"github.com/shelflifeapp/shelflife/internal/store"
)

// RefreshResult counts what a bulk refresh did.
type RefreshResult struct {
	Fetched  int `json:"fetched"`
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Bound    int `json:"bound"`
}

// BulkRefresh pulls the current user's products from the remote and upserts
// them locally. A remote product matches a local one by remote id, then by
// barcode among unbound products; otherwise it is inserted.
func (r *Reconciler) BulkRefresh(ctx context.Context) (RefreshResult, error) {
	var result RefreshResult
	if r.remote == nil {
		return result, nil
	}
	if r.identity == nil {
		return result, domainerrors.Unauthorized("no identity configured")
	}

	userID, err := r.identity.CurrentUserID(ctx)
	if err != nil {
		return result, err
	}

	remoteProducts, err := r.remote.FetchProducts(ctx, userID)
	if err != nil {
		return result, domainerrors.RemoteSync(err, "fetch remote products")
	}
	result.Fetched = len(remoteProducts)

	now := time.Now()
	err = r.store.Write(ctx, func(tx store.Session) error {
		var touched []domain.Product
		for _, rp := range remoteProducts {
			local, outcome, err := upsertRemote(ctx, tx, userID, rp, now)
			if err != nil {
				return fmt.Errorf("upsert remote product %s: %w", *rp.RemoteID, err)
			}
			touched = append(touched, *local)
			switch outcome {
			case upsertInserted:
				result.Inserted++
			case upsertBound:
				result.Bound++
			case upsertUpdated:
				result.Updated++
			}
		}
		tx.AfterCommit(func() { r.syncReminders(touched) })
		return nil
	})
	if err != nil {
		return RefreshResult{Fetched: result.Fetched}, err
	}

	r.logger.Info("bulk refresh complete",
		"user_id", userID,
		"fetched", result.Fetched,
		"inserted", result.Inserted,
		"updated", result.Updated,
		"bound", result.Bound,
	)
	return result, nil
}

type upsertOutcome int

const (
	upsertUpdated upsertOutcome = iota
	upsertBound
	upsertInserted
)

func upsertRemote(ctx context.Context, tx store.Session, userID string, rp *domain.Product, now time.Time) (*domain.Product, upsertOutcome, error) {
	remoteID := *rp.RemoteID

	local, err := tx.FindProductByRemoteID(ctx, userID, remoteID)
	if err == nil {
		adoptRemote(local, rp, now)
		return local, upsertUpdated, tx.UpdateProduct(ctx, local)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, 0, err
	}

	local, err = tx.FindProductByBarcode(ctx, userID, rp.Barcode)
	if err == nil && !local.IsBound() {
		if err := tx.BindRemoteID(ctx, domain.KindProduct, local.ID, remoteID); err != nil {
			return nil, 0, err
		}
		adoptRemote(local, rp, now)
		return local, upsertBound, tx.UpdateProduct(ctx, local)
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, 0, err
	}

	localID, err := id.Generate(id.PrefixProduct)
	if err != nil {
		return nil, 0, err
	}
	p := &domain.Product{UserID: userID}
	p.ID = localID
	p.RemoteID = &remoteID
	p.CreatedAt = rp.CreatedAt
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	adoptRemote(p, rp, now)
	return p, upsertInserted, tx.CreateProduct(ctx, p)
}

// adoptRemote copies the remote's fields onto a local product, keeping the
// local id and restoring the quantity invariants. Expiry is derived locally
// from the open date and period after opening; the remote's value is ignored.
func adoptRemote(local, rp *domain.Product, now time.Time) {
	local.Barcode = rp.Barcode
	local.Name = rp.Name
	local.Brand = rp.Brand
	local.Shade = rp.Shade
	local.Size = rp.Size
	local.SPF = rp.SPF
	local.Price = rp.Price
	local.Currency = rp.Currency
	local.PurchaseDate = rp.PurchaseDate
	local.OpenDate = rp.OpenDate
	local.PeriodAfterOpening = rp.PeriodAfterOpening
	local.RecomputeExpiry()
	local.RemainingAmount = min(max(rp.RemainingAmount, 0), domain.FullAmount)
	local.TimesUsed = max(rp.TimesUsed, 0)
	local.IsFavorite = rp.IsFavorite
	local.IsFinished = rp.IsFinished
	local.FinishDate = rp.FinishDate
	if local.IsFinished {
		local.RemainingAmount = 0
	}
	local.Touch(now)
}

// syncReminders replaces the reminders of refreshed products. It runs after
// commit, so failures are logged only.
func (r *Reconciler) syncReminders(products []domain.Product) {
	if r.reminders == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	for _, p := range products {
		if err := r.reminders.Cancel(ctx, p.ID); err != nil {
			r.logger.Warn("failed to cancel reminder", "product_id", p.ID, "error", err)
		}
		if p.ExpiryDate == nil || p.IsFinished {
			continue
		}
		if err := r.reminders.Schedule(ctx, p.ID, p.UserID, *p.ExpiryDate); err != nil {
			r.logger.Warn("failed to schedule reminder", "product_id", p.ID, "error", err)
		}
	}
}
