package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shelflifeapp/shelflife/internal/domain"
	domainerrors "github.com/shelflifeapp/shelflife/internal/errors"
	"github.com/shelflifeapp/shelflife/internal/id"
	"github.com/shelflifeapp/shelflife/internal/mirror"
	"github.com/shelflifeapp/shelflife/internal/store"
)

// UsageService records consumption against products.
type UsageService struct {
	core
}

// NewUsageService creates a new usage service.
func NewUsageService(deps Deps) *UsageService {
	return &UsageService{core: newCore(deps)}
}

// RecordUsage appends a usage entry and applies its lifecycle effects: the
// first usage of an unopened product opens it, crossing half the remaining
// amount appends a half_empty event, and reaching zero finishes it.
//
// Amount is not validated. A negative amount refills, capped at full.
// Wishlist products cannot be used.
func (s *UsageService) RecordUsage(ctx context.Context, productID, usageType string, amount float64, notes string) (*domain.UsageEntry, error) {
	userID, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}

	usageType = strings.TrimSpace(usageType)
	if usageType == "" {
		usageType = domain.DefaultUsageType
	}

	entryID, err := id.Generate(id.PrefixUsage)
	if err != nil {
		return nil, fmt.Errorf("generate usage id: %w", err)
	}

	var entry *domain.UsageEntry
	var outcome domain.UsageOutcome
	err = s.store.Write(ctx, func(tx store.Session) error {
		p, err := ownedProduct(ctx, tx, userID, productID)
		if err != nil {
			return err
		}
		if p.State() == domain.StateWishlist {
			return domainerrors.Conflictf("product %s has not been purchased", productID)
		}

		now := s.now()
		entry = &domain.UsageEntry{
			CreatedAt: now,
			ID:        entryID,
			ProductID: p.ID,
			UserID:    userID,
			Type:      usageType,
			Notes:     notes,
			Amount:    amount,
		}
		if err := tx.AppendUsage(ctx, entry); err != nil {
			return fmt.Errorf("append usage: %w", err)
		}

		outcome = p.ApplyUsage(amount, now)
		p.Touch(now)
		if err := tx.UpdateProduct(ctx, p); err != nil {
			return fmt.Errorf("update product: %w", err)
		}

		mirrored := *entry
		tx.AfterCommit(func() {
			s.mirror.Mirror(mirror.UsageAppended{UserID: userID, Entry: &mirrored})
		})

		patch := domain.QuantityPatch(p)
		if outcome.ImplicitOpen {
			patch = domain.OpenMutation{OpenDate: now}.Patch(p).Merge(patch)
			s.rescheduleAfterCommit(tx, p)
		}
		s.mirrorPatch(tx, p, patch)

		if outcome.ImplicitOpen {
			if _, err := s.appendJourney(ctx, tx, p, journeyEntry{Type: domain.JourneyOpen, At: now}); err != nil {
				return err
			}
		}
		if outcome.CrossedHalf {
			if err := s.recordHalfEmpty(ctx, tx, p, now); err != nil {
				return err
			}
		}
		if outcome.Finished {
			tx.AfterCommit(func() { s.cancelReminder(productID) })
			if _, err := s.appendJourney(ctx, tx, p, journeyEntry{Type: domain.JourneyFinished, At: now}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("usage recorded",
		"product_id", productID,
		"amount", amount,
		"remaining", outcome.Remaining,
		"finished", outcome.Finished,
	)
	return entry, nil
}

// EntriesFor returns a product's usage entries, newest first.
// It fails with NotFound when the product does not exist; other storage
// failures are logged and reported as no entries.
func (s *UsageService) EntriesFor(ctx context.Context, productID string) ([]*domain.UsageEntry, error) {
	userID, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}

	var entries []*domain.UsageEntry
	err = s.store.Read(ctx, func(tx store.Session) error {
		if _, err := ownedProduct(ctx, tx, userID, productID); err != nil {
			return err
		}
		var err error
		entries, err = tx.ListUsage(ctx, productID)
		return err
	})
	if err != nil {
		if isNotFound(err) {
			return nil, err
		}
		s.logReadFailure("list usage", err, "product_id", productID)
		return []*domain.UsageEntry{}, nil
	}
	if entries == nil {
		entries = []*domain.UsageEntry{}
	}
	return entries, nil
}
