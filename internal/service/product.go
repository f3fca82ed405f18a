package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shelflifeapp/shelflife/internal/domain"
	domainerrors "github.com/shelflifeapp/shelflife/internal/errors"
	"github.com/shelflifeapp/shelflife/internal/id"
	"github.com/shelflifeapp/shelflife/internal/mirror"
	"github.com/shelflifeapp/shelflife/internal/store"
)

// defaultSearchLimit caps Search when no limit is given.
const defaultSearchLimit = 50

// ProductService manages the product lifecycle.
type ProductService struct {
	core
}

// NewProductService creates a new product service.
func NewProductService(deps Deps) *ProductService {
	return &ProductService{core: newCore(deps)}
}

// CreateProductRequest contains the data for a new product.
type CreateProductRequest struct {
	Name               string           `json:"name" validate:"required,max=200"`
	Brand              string           `json:"brand" validate:"max=200"`
	Barcode            string           `json:"barcode" validate:"max=64"`
	Shade              string           `json:"shade" validate:"max=100"`
	Size               string           `json:"size" validate:"max=50"`
	SPF                *int             `json:"spf" validate:"omitempty,min=0,max=100"`
	Price              *decimal.Decimal `json:"price"`
	Currency           string           `json:"currency" validate:"omitempty,len=3"`
	PurchaseDate       *time.Time       `json:"purchase_date"`
	OpenDate           *time.Time       `json:"open_date"`
	PeriodAfterOpening string           `json:"period_after_opening" validate:"max=32"`
	Wishlist           bool             `json:"wishlist"`
	IsFavorite         bool             `json:"is_favorite"`
}

// ListFilter narrows List.
type ListFilter struct {
	State           domain.LifecycleState
	FavoritesOnly   bool
	IncludeFinished bool
	Limit           int
	Offset          int
}

// Create adds a product for the current user. A purchased product gets one
// purchase event at its purchase date; a wishlist product gets none.
func (s *ProductService) Create(ctx context.Context, req CreateProductRequest) (*domain.Product, error) {
	if err := validate.Validate(req); err != nil {
		return nil, err
	}
	if req.Price != nil && req.Price.IsNegative() {
		return nil, domainerrors.Validation("price must not be negative")
	}
	if req.Wishlist && req.OpenDate != nil {
		return nil, domainerrors.Validation("a wishlist product cannot have an open date")
	}

	userID, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}

	productID, err := id.Generate(id.PrefixProduct)
	if err != nil {
		return nil, fmt.Errorf("generate product id: %w", err)
	}

	now := s.now()
	p := &domain.Product{
		UserID:             userID,
		Barcode:            req.Barcode,
		Name:               req.Name,
		Brand:              req.Brand,
		Shade:              req.Shade,
		Size:               req.Size,
		SPF:                req.SPF,
		Price:              req.Price,
		Currency:           req.Currency,
		PeriodAfterOpening: req.PeriodAfterOpening,
		RemainingAmount:    domain.FullAmount,
		IsFavorite:         req.IsFavorite,
	}
	p.ID = productID
	p.InitTimestamps(now)

	if !req.Wishlist {
		purchased := now
		if req.PurchaseDate != nil {
			purchased = *req.PurchaseDate
		}
		p.PurchaseDate = &purchased
	}
	if req.OpenDate != nil {
		p.SetOpenDate(req.OpenDate)
	}

	err = s.store.Write(ctx, func(tx store.Session) error {
		if err := tx.CreateProduct(ctx, p); err != nil {
			return fmt.Errorf("create product: %w", err)
		}

		created := *p
		tx.AfterCommit(func() {
			s.mirror.Mirror(mirror.ProductCreated{UserID: userID, Product: &created})
			if created.ExpiryDate != nil {
				s.scheduleReminder(&created)
			}
		})

		if p.PurchaseDate != nil {
			if _, err := s.appendJourney(ctx, tx, p, journeyEntry{Type: domain.JourneyPurchase, At: *p.PurchaseDate}); err != nil {
				return err
			}
		}
		if p.OpenDate != nil {
			if _, err := s.appendJourney(ctx, tx, p, journeyEntry{Type: domain.JourneyOpen, At: *p.OpenDate}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("product created",
		"product_id", p.ID,
		"user_id", userID,
		"state", p.State(),
	)
	return p, nil
}

// MarkPurchased moves a wishlist product to purchased. A product that is
// already past the wishlist is returned unchanged.
func (s *ProductService) MarkPurchased(ctx context.Context, productID string, date *time.Time) (*domain.Product, error) {
	userID, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}

	var result *domain.Product
	err = s.store.Write(ctx, func(tx store.Session) error {
		p, err := ownedProduct(ctx, tx, userID, productID)
		if err != nil {
			return err
		}
		result = p
		if p.State() != domain.StateWishlist {
			return nil
		}

		now := s.now()
		purchased := now
		if date != nil {
			purchased = *date
		}
		p.PurchaseDate = &purchased
		p.Touch(now)

		if err := tx.UpdateProduct(ctx, p); err != nil {
			return fmt.Errorf("update product: %w", err)
		}
		s.mirrorPatch(tx, p, domain.ProductPatch{PurchaseDate: &purchased})
		_, err = s.appendJourney(ctx, tx, p, journeyEntry{Type: domain.JourneyPurchase, At: purchased})
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// MarkOpened sets the open date and recomputes expiry. Calling it again with
// a different date moves the open date and reschedules the reminder; the same
// date is a no-op.
func (s *ProductService) MarkOpened(ctx context.Context, productID string, openDate time.Time) (*domain.Product, error) {
	userID, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}

	var result *domain.Product
	err = s.store.Write(ctx, func(tx store.Session) error {
		p, err := ownedProduct(ctx, tx, userID, productID)
		if err != nil {
			return err
		}
		result = p

		if p.IsFinished {
			return domainerrors.Conflictf("product %s is finished", productID)
		}
		if p.PurchaseDate == nil {
			return domainerrors.Conflictf("product %s has not been purchased", productID)
		}

		m := domain.OpenMutation{OpenDate: openDate}
		openChanged, expiryChanged := m.Apply(p)
		if !openChanged {
			return nil
		}
		p.Touch(s.now())

		if err := tx.UpdateProduct(ctx, p); err != nil {
			return fmt.Errorf("update product: %w", err)
		}
		s.mirrorPatch(tx, p, m.Patch(p))
		if expiryChanged {
			s.rescheduleAfterCommit(tx, p)
		}
		_, err = s.appendJourney(ctx, tx, p, journeyEntry{Type: domain.JourneyOpen, At: openDate})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("product opened", "product_id", productID, "open_date", openDate)
	return result, nil
}

// MarkFinished forces the finished state. Finishing twice is a no-op: no
// second event and no second mirror.
func (s *ProductService) MarkFinished(ctx context.Context, productID string) (*domain.Product, error) {
	userID, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}

	var result *domain.Product
	err = s.store.Write(ctx, func(tx store.Session) error {
		p, err := ownedProduct(ctx, tx, userID, productID)
		if err != nil {
			return err
		}
		result = p

		now := s.now()
		m := domain.FinishMutation{FinishDate: now}
		if !m.Apply(p) {
			return nil
		}
		p.Touch(now)

		if err := tx.UpdateProduct(ctx, p); err != nil {
			return fmt.Errorf("update product: %w", err)
		}
		s.mirrorPatch(tx, p, m.Patch())
		tx.AfterCommit(func() { s.cancelReminder(productID) })
		_, err = s.appendJourney(ctx, tx, p, journeyEntry{Type: domain.JourneyFinished, At: now})
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// EditDetails applies a typed edit. Expiry follows open date and period
// changes and the reminder follows expiry. Giving a wishlist product a
// purchase date purchases it; opening one that stays unpurchased is a Conflict.
func (s *ProductService) EditDetails(ctx context.Context, productID string, m domain.DetailsMutation) (*domain.Product, error) {
	if m.Name != nil && *m.Name == "" {
		return nil, domainerrors.Validation("name is required")
	}
	if m.SPF != nil && (*m.SPF < 0 || *m.SPF > 100) {
		return nil, domainerrors.Validation("spf must be between 0 and 100")
	}
	if m.Price != nil && m.Price.IsNegative() {
		return nil, domainerrors.Validation("price must not be negative")
	}

	userID, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}

	var result *domain.Product
	err = s.store.Write(ctx, func(tx store.Session) error {
		p, err := ownedProduct(ctx, tx, userID, productID)
		if err != nil {
			return err
		}
		result = p

		wasWishlist := p.State() == domain.StateWishlist
		wasOpen := p.OpenDate != nil
		out := m.Apply(p)
		if wasWishlist && p.PurchaseDate == nil && p.OpenDate != nil {
			return domainerrors.Conflictf("product %s has not been purchased", productID)
		}
		patch := m.Patch(p, out)
		if patch.IsEmpty() {
			return nil
		}
		p.Touch(s.now())

		if err := tx.UpdateProduct(ctx, p); err != nil {
			return fmt.Errorf("update product: %w", err)
		}
		s.mirrorPatch(tx, p, patch)
		if out.ExpiryChanged {
			s.rescheduleAfterCommit(tx, p)
		}
		if wasWishlist && p.PurchaseDate != nil {
			if _, err := s.appendJourney(ctx, tx, p, journeyEntry{Type: domain.JourneyPurchase, At: *p.PurchaseDate}); err != nil {
				return err
			}
		}
		if !wasOpen && p.OpenDate != nil {
			_, err = s.appendJourney(ctx, tx, p, journeyEntry{Type: domain.JourneyOpen, At: *p.OpenDate})
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SetFavorite sets the favorite flag.
func (s *ProductService) SetFavorite(ctx context.Context, productID string, favorite bool) (*domain.Product, error) {
	return s.updateFavorite(ctx, productID, func(*domain.Product) bool { return favorite })
}

// ToggleFavorite flips the favorite flag.
func (s *ProductService) ToggleFavorite(ctx context.Context, productID string) (*domain.Product, error) {
	return s.updateFavorite(ctx, productID, func(p *domain.Product) bool { return !p.IsFavorite })
}

func (s *ProductService) updateFavorite(ctx context.Context, productID string, next func(*domain.Product) bool) (*domain.Product, error) {
	userID, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}

	var result *domain.Product
	err = s.store.Write(ctx, func(tx store.Session) error {
		p, err := ownedProduct(ctx, tx, userID, productID)
		if err != nil {
			return err
		}
		result = p

		m := domain.FavoriteMutation{IsFavorite: next(p)}
		if !m.Apply(p) {
			return nil
		}
		p.Touch(s.now())

		if err := tx.UpdateProduct(ctx, p); err != nil {
			return fmt.Errorf("update product: %w", err)
		}
		s.mirrorPatch(tx, p, m.Patch())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Delete removes a product with its usage entries, journey events and
// bag/tag links, and deletes it remotely.
func (s *ProductService) Delete(ctx context.Context, productID string) error {
	userID, err := s.currentUser(ctx)
	if err != nil {
		return err
	}

	err = s.store.Write(ctx, func(tx store.Session) error {
		p, err := ownedProduct(ctx, tx, userID, productID)
		if err != nil {
			return err
		}
		remoteID := ""
		if p.RemoteID != nil {
			remoteID = *p.RemoteID
		}

		if err := tx.DeleteProduct(ctx, productID); err != nil {
			return fmt.Errorf("delete product: %w", err)
		}
		tx.AfterCommit(func() {
			s.mirror.Mirror(mirror.ProductDeleted{UserID: userID, ProductID: productID, RemoteID: remoteID})
			s.cancelReminder(productID)
		})
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("product deleted", "product_id", productID, "user_id", userID)
	return nil
}

// Get returns one of the current user's products.
func (s *ProductService) Get(ctx context.Context, productID string) (*domain.Product, error) {
	userID, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}

	var p *domain.Product
	err = s.store.Read(ctx, func(tx store.Session) error {
		var err error
		p, err = ownedProduct(ctx, tx, userID, productID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// List returns the current user's products, newest first. Storage failures
// are logged and reported as an empty list.
func (s *ProductService) List(ctx context.Context, filter ListFilter) ([]*domain.Product, error) {
	userID, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}

	var products []*domain.Product
	err = s.store.Read(ctx, func(tx store.Session) error {
		var err error
		products, err = tx.ListProducts(ctx, store.ProductFilter{
			UserID:          userID,
			State:           filter.State,
			FavoritesOnly:   filter.FavoritesOnly,
			IncludeFinished: filter.IncludeFinished,
			Limit:           filter.Limit,
			Offset:          filter.Offset,
		})
		return err
	})
	if err != nil {
		s.logReadFailure("list products", err, "user_id", userID)
		return []*domain.Product{}, nil
	}
	if products == nil {
		products = []*domain.Product{}
	}
	return products, nil
}

// Search returns the current user's products matching query, best match first.
// Finished products are included. Failures are logged and reported as no matches.
func (s *ProductService) Search(ctx context.Context, query string, limit int) ([]*domain.Product, error) {
	userID, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}
	if query == "" || s.searcher == nil {
		return []*domain.Product{}, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	ids, err := s.searcher.Search(ctx, userID, query, limit)
	if err != nil {
		s.logReadFailure("search products", err, "user_id", userID, "query", query)
		return []*domain.Product{}, nil
	}
	if len(ids) == 0 {
		return []*domain.Product{}, nil
	}

	var found []*domain.Product
	err = s.store.Read(ctx, func(tx store.Session) error {
		var err error
		found, err = tx.ListProducts(ctx, store.ProductFilter{
			UserID:          userID,
			IncludeFinished: true,
			IDs:             ids,
		})
		return err
	})
	if err != nil {
		s.logReadFailure("load search hits", err, "user_id", userID)
		return []*domain.Product{}, nil
	}

	// Keep the index's ranking; drop hits the store no longer has.
	byID := make(map[string]*domain.Product, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}
	products := make([]*domain.Product, 0, len(found))
	for _, productID := range ids {
		if p, ok := byID[productID]; ok {
			products = append(products, p)
		}
	}
	return products, nil
}

// mirrorPatch mirrors a product patch once the session commits.
func (c *core) mirrorPatch(tx store.Session, p *domain.Product, patch domain.ProductPatch) {
	if patch.IsEmpty() {
		return
	}
	userID, productID := p.UserID, p.ID
	tx.AfterCommit(func() {
		c.mirror.Mirror(mirror.ProductPatched{UserID: userID, ProductID: productID, Patch: patch})
	})
}

// rescheduleAfterCommit moves p's reminder to its current expiry once the
// session commits, or cancels it when expiry is unset.
func (c *core) rescheduleAfterCommit(tx store.Session, p *domain.Product) {
	snapshot := *p
	tx.AfterCommit(func() { c.scheduleReminder(&snapshot) })
}

// isNotFound reports whether err is a not-found error from any layer.
func isNotFound(err error) bool {
	return errors.Is(err, domainerrors.ErrNotFound)
}
