package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/shelflifeapp/shelflife/internal/domain"
	"github.com/shelflifeapp/shelflife/internal/service"
)

// Bags and tags share one shape, so both route families are registered from
// the same table.
type groupingRoutes struct {
	kind     string
	plural   string
	tag      string
	create   func(context.Context, service.GroupingRequest) (*domain.Grouping, error)
	list     func(context.Context) ([]*domain.Grouping, error)
	remove   func(context.Context, string) error
	link     func(ctx context.Context, productID, groupingID string) error
	unlink   func(ctx context.Context, productID, groupingID string) error
	products func(context.Context, string) ([]*domain.Product, error)
}

func (s *Server) registerCollectionRoutes() {
	c := s.services.Collections

	bags := groupingRoutes{
		kind:   "Bag",
		plural: "bags",
		tag:    "Bags",
		create: func(ctx context.Context, req service.GroupingRequest) (*domain.Grouping, error) {
			b, err := c.CreateBag(ctx, req)
			if err != nil {
				return nil, err
			}
			return &b.Grouping, nil
		},
		list: func(ctx context.Context) ([]*domain.Grouping, error) {
			bags, err := c.ListBags(ctx)
			out := make([]*domain.Grouping, 0, len(bags))
			for _, b := range bags {
				out = append(out, &b.Grouping)
			}
			return out, err
		},
		remove:   c.DeleteBag,
		link:     c.AddToBag,
		unlink:   c.RemoveFromBag,
		products: c.ProductsInBag,
	}

	tags := groupingRoutes{
		kind:   "Tag",
		plural: "tags",
		tag:    "Tags",
		create: func(ctx context.Context, req service.GroupingRequest) (*domain.Grouping, error) {
			t, err := c.CreateTag(ctx, req)
			if err != nil {
				return nil, err
			}
			return &t.Grouping, nil
		},
		list: func(ctx context.Context) ([]*domain.Grouping, error) {
			tags, err := c.ListTags(ctx)
			out := make([]*domain.Grouping, 0, len(tags))
			for _, t := range tags {
				out = append(out, &t.Grouping)
			}
			return out, err
		},
		remove:   c.DeleteTag,
		link:     c.AddTag,
		unlink:   c.RemoveTag,
		products: c.ProductsWithTag,
	}

	s.registerGroupingRoutes(bags)
	s.registerGroupingRoutes(tags)
}

func (s *Server) registerGroupingRoutes(g groupingRoutes) {
	base := "/api/v1/" + g.plural
	security := []map[string][]string{{"bearer": {}}}

	huma.Register(s.api, huma.Operation{
		OperationID: "list" + g.kind + "s",
		Method:      http.MethodGet,
		Path:        base,
		Summary:     "List " + g.plural,
		Tags:        []string{g.tag},
		Security:    security,
	}, func(ctx context.Context, _ *struct{}) (*GroupingListOutput, error) {
		items, err := g.list(ctx)
		if err != nil {
			return nil, toAPIError(err)
		}
		out := &GroupingListOutput{}
		out.Body.Items = make([]GroupingResponse, 0, len(items))
		for _, item := range items {
			out.Body.Items = append(out.Body.Items, toGroupingResponse(item))
		}
		return out, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "create" + g.kind,
		Method:        http.MethodPost,
		Path:          base,
		Summary:       "Create " + g.plural[:len(g.plural)-1],
		Tags:          []string{g.tag},
		DefaultStatus: http.StatusCreated,
		Security:      security,
	}, func(ctx context.Context, input *CreateGroupingInput) (*GroupingOutput, error) {
		item, err := g.create(ctx, service.GroupingRequest{
			Name:        input.Body.Name,
			Color:       input.Body.Color,
			Icon:        input.Body.Icon,
			Description: input.Body.Description,
			ImageURL:    input.Body.ImageURL,
			IsPrivate:   input.Body.IsPrivate,
		})
		if err != nil {
			return nil, toAPIError(err)
		}
		return &GroupingOutput{Body: toGroupingResponse(item)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "delete" + g.kind,
		Method:        http.MethodDelete,
		Path:          base + "/{id}",
		Summary:       "Delete " + g.plural[:len(g.plural)-1],
		Description:   "Deletes locally and drops its product associations",
		Tags:          []string{g.tag},
		DefaultStatus: http.StatusNoContent,
		Security:      security,
	}, func(ctx context.Context, input *GroupingIDInput) (*struct{}, error) {
		if err := g.remove(ctx, input.ID); err != nil {
			return nil, toAPIError(err)
		}
		return nil, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list" + g.kind + "Products",
		Method:      http.MethodGet,
		Path:        base + "/{id}/products",
		Summary:     "List products in " + g.plural[:len(g.plural)-1],
		Tags:        []string{g.tag},
		Security:    security,
	}, func(ctx context.Context, input *GroupingIDInput) (*ProductListOutput, error) {
		products, err := g.products(ctx, input.ID)
		if err != nil {
			return nil, toAPIError(err)
		}
		items := toProductResponses(products)
		return &ProductListOutput{Body: ProductListResponse{Products: items, Total: len(items)}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "add" + g.kind + "Product",
		Method:        http.MethodPut,
		Path:          base + "/{id}/products/{productID}",
		Summary:       "Associate product",
		Tags:          []string{g.tag},
		DefaultStatus: http.StatusNoContent,
		Security:      security,
	}, func(ctx context.Context, input *AssociationInput) (*struct{}, error) {
		if err := g.link(ctx, input.ProductID, input.ID); err != nil {
			return nil, toAPIError(err)
		}
		return nil, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "remove" + g.kind + "Product",
		Method:        http.MethodDelete,
		Path:          base + "/{id}/products/{productID}",
		Summary:       "Dissociate product",
		Tags:          []string{g.tag},
		DefaultStatus: http.StatusNoContent,
		Security:      security,
	}, func(ctx context.Context, input *AssociationInput) (*struct{}, error) {
		if err := g.unlink(ctx, input.ProductID, input.ID); err != nil {
			return nil, toAPIError(err)
		}
		return nil, nil
	})
}

// GroupingResponse is the wire form of a bag or tag.
type GroupingResponse struct {
	ID          string    `json:"id" doc:"ID"`
	RemoteID    string    `json:"remote_id,omitempty" doc:"Identifier assigned by the remote system"`
	Name        string    `json:"name" doc:"Name"`
	Color       string    `json:"color,omitempty" doc:"Display color"`
	Icon        string    `json:"icon,omitempty" doc:"Icon name"`
	Description string    `json:"description,omitempty" doc:"Description"`
	ImageURL    string    `json:"image_url,omitempty" doc:"Image URL"`
	IsPrivate   bool      `json:"is_private" doc:"Hidden from shared views"`
	CreatedAt   time.Time `json:"created_at" doc:"Creation time"`
	UpdatedAt   time.Time `json:"updated_at" doc:"Last update time"`
}

func toGroupingResponse(g *domain.Grouping) GroupingResponse {
	resp := GroupingResponse{
		ID:          g.ID,
		Name:        g.Name,
		Color:       g.Color,
		Icon:        g.Icon,
		Description: g.Description,
		ImageURL:    g.ImageURL,
		IsPrivate:   g.IsPrivate,
		CreatedAt:   g.CreatedAt,
		UpdatedAt:   g.UpdatedAt,
	}
	if g.RemoteID != nil {
		resp.RemoteID = *g.RemoteID
	}
	return resp
}

// CreateGroupingInput is the request for creating a bag or tag.
type CreateGroupingInput struct {
	Authorization string `header:"Authorization"`
	Body          struct {
		Name        string `json:"name" minLength:"1" maxLength:"100" doc:"Name"`
		Color       string `json:"color,omitempty" maxLength:"32" doc:"Display color"`
		Icon        string `json:"icon,omitempty" maxLength:"64" doc:"Icon name"`
		Description string `json:"description,omitempty" maxLength:"1000" doc:"Description"`
		ImageURL    string `json:"image_url,omitempty" doc:"Image URL"`
		IsPrivate   bool   `json:"is_private,omitempty" doc:"Hidden from shared views"`
	}
}

// GroupingIDInput identifies a bag or tag by path.
type GroupingIDInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Bag or tag ID"`
}

// AssociationInput identifies a grouping and a product.
type AssociationInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Bag or tag ID"`
	ProductID     string `path:"productID" doc:"Product ID"`
}

// GroupingOutput wraps one bag or tag.
type GroupingOutput struct {
	Body GroupingResponse
}

// GroupingListOutput wraps a list of bags or tags.
type GroupingListOutput struct {
	Body struct {
		Items []GroupingResponse `json:"items" doc:"Bags or tags"`
	}
}
