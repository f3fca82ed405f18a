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

// CollectionService manages bags, tags and their product links.
type CollectionService struct {
	core
}

// NewCollectionService creates a new collection service.
func NewCollectionService(deps Deps) *CollectionService {
	return &CollectionService{core: newCore(deps)}
}

// GroupingRequest contains the data for a new bag or tag.
type GroupingRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Color       string `json:"color" validate:"max=32"`
	Icon        string `json:"icon" validate:"max=64"`
	Description string `json:"description" validate:"max=1000"`
	ImageURL    string `json:"image_url" validate:"omitempty,url"`
	IsPrivate   bool   `json:"is_private"`
}

// CountCriteria selects products by exact field values. Nil fields are ignored.
type CountCriteria struct {
	Name            *string
	Brand           *string
	Size            *string
	IncludeFinished bool
}

func (s *CollectionService) newGrouping(ctx context.Context, req GroupingRequest, prefix string) (domain.Grouping, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := validate.Validate(req); err != nil {
		return domain.Grouping{}, err
	}

	userID, err := s.currentUser(ctx)
	if err != nil {
		return domain.Grouping{}, err
	}

	groupingID, err := id.Generate(prefix)
	if err != nil {
		return domain.Grouping{}, fmt.Errorf("generate %s id: %w", prefix, err)
	}

	g := domain.Grouping{
		UserID:      userID,
		Name:        req.Name,
		Color:       req.Color,
		Icon:        req.Icon,
		Description: req.Description,
		ImageURL:    req.ImageURL,
		IsPrivate:   req.IsPrivate,
	}
	g.ID = groupingID
	g.InitTimestamps(s.now())
	return g, nil
}

// CreateBag commits a bag locally and returns at once. The remote id is
// requested in the background and bound when it arrives.
func (s *CollectionService) CreateBag(ctx context.Context, req GroupingRequest) (*domain.Bag, error) {
	g, err := s.newGrouping(ctx, req, id.PrefixBag)
	if err != nil {
		return nil, err
	}
	bag := &domain.Bag{Grouping: g}

	err = s.store.Write(ctx, func(tx store.Session) error {
		if err := tx.CreateBag(ctx, bag); err != nil {
			return fmt.Errorf("create bag: %w", err)
		}
		mirrored := *bag
		tx.AfterCommit(func() {
			s.mirror.Mirror(mirror.BagCreated{UserID: mirrored.UserID, Bag: &mirrored})
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("bag created", "bag_id", bag.ID, "user_id", bag.UserID)
	return bag, nil
}

// CreateTag commits a tag locally and returns at once. The remote id is
// requested in the background and bound when it arrives.
func (s *CollectionService) CreateTag(ctx context.Context, req GroupingRequest) (*domain.Tag, error) {
	g, err := s.newGrouping(ctx, req, id.PrefixTag)
	if err != nil {
		return nil, err
	}
	tag := &domain.Tag{Grouping: g}

	err = s.store.Write(ctx, func(tx store.Session) error {
		if err := tx.CreateTag(ctx, tag); err != nil {
			return fmt.Errorf("create tag: %w", err)
		}
		mirrored := *tag
		tx.AfterCommit(func() {
			s.mirror.Mirror(mirror.TagCreated{UserID: mirrored.UserID, Tag: &mirrored})
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("tag created", "tag_id", tag.ID, "user_id", tag.UserID)
	return tag, nil
}

// ListBags returns the current user's bags by name.
func (s *CollectionService) ListBags(ctx context.Context) ([]*domain.Bag, error) {
	userID, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}

	var bags []*domain.Bag
	err = s.store.Read(ctx, func(tx store.Session) error {
		var err error
		bags, err = tx.ListBags(ctx, userID)
		return err
	})
	if err != nil {
		s.logReadFailure("list bags", err, "user_id", userID)
		return []*domain.Bag{}, nil
	}
	if bags == nil {
		bags = []*domain.Bag{}
	}
	return bags, nil
}

// ListTags returns the current user's tags by name.
func (s *CollectionService) ListTags(ctx context.Context) ([]*domain.Tag, error) {
	userID, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}

	var tags []*domain.Tag
	err = s.store.Read(ctx, func(tx store.Session) error {
		var err error
		tags, err = tx.ListTags(ctx, userID)
		return err
	})
	if err != nil {
		s.logReadFailure("list tags", err, "user_id", userID)
		return []*domain.Tag{}, nil
	}
	if tags == nil {
		tags = []*domain.Tag{}
	}
	return tags, nil
}

// DeleteBag deletes a bag and its product links. Products are kept.
func (s *CollectionService) DeleteBag(ctx context.Context, bagID string) error {
	return s.deleteGrouping(ctx, domain.KindBag, bagID)
}

// DeleteTag deletes a tag and its product links. Products are kept.
func (s *CollectionService) DeleteTag(ctx context.Context, tagID string) error {
	return s.deleteGrouping(ctx, domain.KindTag, tagID)
}

func (s *CollectionService) deleteGrouping(ctx context.Context, kind domain.EntityKind, groupingID string) error {
	userID, err := s.currentUser(ctx)
	if err != nil {
		return err
	}

	err = s.store.Write(ctx, func(tx store.Session) error {
		if _, err := ownedGrouping(ctx, tx, kind, userID, groupingID); err != nil {
			return err
		}
		if kind == domain.KindBag {
			return tx.DeleteBag(ctx, groupingID)
		}
		return tx.DeleteTag(ctx, groupingID)
	})
	if err != nil {
		return err
	}

	s.logger.Info("grouping deleted", "kind", kind, "id", groupingID, "user_id", userID)
	return nil
}

// AddToBag puts a product in a bag. Adding twice is a no-op.
func (s *CollectionService) AddToBag(ctx context.Context, productID, bagID string) error {
	return s.link(ctx, domain.KindBag, productID, bagID, true)
}

// RemoveFromBag takes a product out of a bag. Removing a missing link is a no-op.
func (s *CollectionService) RemoveFromBag(ctx context.Context, productID, bagID string) error {
	return s.link(ctx, domain.KindBag, productID, bagID, false)
}

// AddTag tags a product. Tagging twice is a no-op.
func (s *CollectionService) AddTag(ctx context.Context, productID, tagID string) error {
	return s.link(ctx, domain.KindTag, productID, tagID, true)
}

// RemoveTag untags a product. Removing a missing tag is a no-op.
func (s *CollectionService) RemoveTag(ctx context.Context, productID, tagID string) error {
	return s.link(ctx, domain.KindTag, productID, tagID, false)
}

// link adds or removes one association. Only an actual change is mirrored.
func (s *CollectionService) link(ctx context.Context, kind domain.EntityKind, productID, groupingID string, add bool) error {
	userID, err := s.currentUser(ctx)
	if err != nil {
		return err
	}

	return s.store.Write(ctx, func(tx store.Session) error {
		// 1. Both sides must exist and belong to the caller.
		if _, err := ownedProduct(ctx, tx, userID, productID); err != nil {
			return err
		}
		if _, err := ownedGrouping(ctx, tx, kind, userID, groupingID); err != nil {
			return err
		}

		// 2. Link or unlink (idempotent).
		var changed bool
		if add {
			changed, err = tx.AddAssociation(ctx, kind, productID, groupingID)
		} else {
			changed, err = tx.RemoveAssociation(ctx, kind, productID, groupingID)
		}
		if err != nil {
			return fmt.Errorf("update %s link: %w", kind, err)
		}
		if !changed {
			return nil
		}

		// 3. Mirror the change.
		tx.AfterCommit(func() {
			s.mirror.Mirror(mirror.AssociationChanged{
				UserID:     userID,
				ProductID:  productID,
				GroupingID: groupingID,
				Grouping:   kind,
				Added:      add,
			})
		})
		return nil
	})
}

// ProductsInBag returns the products in a bag.
func (s *CollectionService) ProductsInBag(ctx context.Context, bagID string) ([]*domain.Product, error) {
	return s.associated(ctx, domain.KindBag, bagID)
}

// ProductsWithTag returns the products carrying a tag.
func (s *CollectionService) ProductsWithTag(ctx context.Context, tagID string) ([]*domain.Product, error) {
	return s.associated(ctx, domain.KindTag, tagID)
}

func (s *CollectionService) associated(ctx context.Context, kind domain.EntityKind, groupingID string) ([]*domain.Product, error) {
	userID, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}

	var products []*domain.Product
	err = s.store.Read(ctx, func(tx store.Session) error {
		if _, err := ownedGrouping(ctx, tx, kind, userID, groupingID); err != nil {
			return err
		}
		var err error
		products, err = tx.ListAssociatedProducts(ctx, kind, groupingID)
		return err
	})
	if err != nil {
		if isNotFound(err) {
			return nil, err
		}
		s.logReadFailure("list associated products", err, "kind", kind, "id", groupingID)
		return []*domain.Product{}, nil
	}
	if products == nil {
		products = []*domain.Product{}
	}
	return products, nil
}

// CountMatching counts the current user's products whose fields equal every
// set criterion. Finished products are excluded unless IncludeFinished.
// Failures are logged and reported as zero.
func (s *CollectionService) CountMatching(ctx context.Context, c CountCriteria) (int, error) {
	userID, err := s.currentUser(ctx)
	if err != nil {
		return 0, err
	}

	var n int
	err = s.store.Read(ctx, func(tx store.Session) error {
		var err error
		n, err = tx.CountProducts(ctx, store.ProductCriteria{
			UserID:          userID,
			Name:            c.Name,
			Brand:           c.Brand,
			Size:            c.Size,
			IncludeFinished: c.IncludeFinished,
		})
		return err
	})
	if err != nil {
		s.logReadFailure("count products", err, "user_id", userID)
		return 0, nil
	}
	return n, nil
}

// ownedGrouping checks that a bag or tag exists and belongs to userID.
func ownedGrouping(ctx context.Context, tx store.Session, kind domain.EntityKind, userID, groupingID string) (*domain.Grouping, error) {
	var (
		g   *domain.Grouping
		err error
	)
	switch kind {
	case domain.KindBag:
		var b *domain.Bag
		if b, err = tx.GetBag(ctx, groupingID); err == nil {
			g = &b.Grouping
		}
	case domain.KindTag:
		var t *domain.Tag
		if t, err = tx.GetTag(ctx, groupingID); err == nil {
			g = &t.Grouping
		}
	default:
		return nil, domainerrors.Validationf("unknown grouping kind %q", kind)
	}
	if err != nil {
		if isNotFound(err) {
			return nil, domainerrors.NotFoundf("%s %s not found", kind, groupingID)
		}
		return nil, err
	}
	if g.UserID != userID {
		return nil, domainerrors.NotFoundf("%s %s not found", kind, groupingID)
	}
	return g, nil
}
