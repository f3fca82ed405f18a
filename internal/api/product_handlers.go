package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shopspring/decimal"

	"github.com/shelflifeapp/shelflife/internal/domain"
	domainerrors "github.com/shelflifeapp/shelflife/internal/errors"
	"github.com/shelflifeapp/shelflife/internal/service"
)

func (s *Server) registerProductRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listProducts",
		Method:      http.MethodGet,
		Path:        "/api/v1/products",
		Summary:     "List products",
		Description: "Lists the current user's products, newest first",
		Tags:        []string{"Products"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListProducts)

	huma.Register(s.api, huma.Operation{
		OperationID:   "createProduct",
		Method:        http.MethodPost,
		Path:          "/api/v1/products",
		Summary:       "Create product",
		Description:   "Adds a product to the shelf or to the wishlist",
		Tags:          []string{"Products"},
		DefaultStatus: http.StatusCreated,
		Security:      []map[string][]string{{"bearer": {}}},
	}, s.handleCreateProduct)

	huma.Register(s.api, huma.Operation{
		OperationID: "countProducts",
		Method:      http.MethodGet,
		Path:        "/api/v1/products/count",
		Summary:     "Count matching products",
		Description: "Counts products whose name, brand and size match exactly",
		Tags:        []string{"Products"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleCountProducts)

	huma.Register(s.api, huma.Operation{
		OperationID: "searchProducts",
		Method:      http.MethodGet,
		Path:        "/api/v1/products/search",
		Summary:     "Search products",
		Description: "Full-text search over name, brand, shade and barcode",
		Tags:        []string{"Products"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleSearchProducts)

	huma.Register(s.api, huma.Operation{
		OperationID: "getProduct",
		Method:      http.MethodGet,
		Path:        "/api/v1/products/{id}",
		Summary:     "Get product",
		Tags:        []string{"Products"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetProduct)

	huma.Register(s.api, huma.Operation{
		OperationID: "updateProduct",
		Method:      http.MethodPatch,
		Path:        "/api/v1/products/{id}",
		Summary:     "Edit product details",
		Description: "Changes descriptive fields. Changing the open date or period after opening recomputes expiry",
		Tags:        []string{"Products"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleUpdateProduct)

	huma.Register(s.api, huma.Operation{
		OperationID:   "deleteProduct",
		Method:        http.MethodDelete,
		Path:          "/api/v1/products/{id}",
		Summary:       "Delete product",
		Description:   "Deletes a product with its usage history, journey and associations",
		Tags:          []string{"Products"},
		DefaultStatus: http.StatusNoContent,
		Security:      []map[string][]string{{"bearer": {}}},
	}, s.handleDeleteProduct)

	huma.Register(s.api, huma.Operation{
		OperationID: "purchaseProduct",
		Method:      http.MethodPost,
		Path:        "/api/v1/products/{id}/purchase",
		Summary:     "Mark purchased",
		Description: "Moves a wishlist product onto the shelf",
		Tags:        []string{"Products"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handlePurchaseProduct)

	huma.Register(s.api, huma.Operation{
		OperationID: "openProduct",
		Method:      http.MethodPost,
		Path:        "/api/v1/products/{id}/open",
		Summary:     "Mark opened",
		Description: "Sets the open date and starts the period after opening",
		Tags:        []string{"Products"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleOpenProduct)

	huma.Register(s.api, huma.Operation{
		OperationID: "finishProduct",
		Method:      http.MethodPost,
		Path:        "/api/v1/products/{id}/finish",
		Summary:     "Mark finished",
		Tags:        []string{"Products"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleFinishProduct)

	huma.Register(s.api, huma.Operation{
		OperationID: "favoriteProduct",
		Method:      http.MethodPost,
		Path:        "/api/v1/products/{id}/favorite",
		Summary:     "Set or toggle favorite",
		Description: "Sets the favorite flag, or toggles it when no value is given",
		Tags:        []string{"Products"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleFavoriteProduct)
}

// === DTOs ===

// ProductResponse is the wire form of a product.
type ProductResponse struct {
	ID                 string     `json:"id" doc:"Product ID"`
	RemoteID           string     `json:"remote_id,omitempty" doc:"Identifier assigned by the remote system"`
	Name               string     `json:"name" doc:"Product name"`
	Brand              string     `json:"brand,omitempty" doc:"Brand"`
	Barcode            string     `json:"barcode,omitempty" doc:"Barcode"`
	Shade              string     `json:"shade,omitempty" doc:"Shade"`
	Size               string     `json:"size,omitempty" doc:"Size"`
	SPF                *int       `json:"spf,omitempty" doc:"Sun protection factor"`
	Price              *string    `json:"price,omitempty" doc:"Price as a decimal string"`
	Currency           string     `json:"currency,omitempty" doc:"ISO 4217 currency code"`
	State              string     `json:"state" doc:"Lifecycle state" enum:"wishlist,purchased,opened,finished"`
	PurchaseDate       *time.Time `json:"purchase_date,omitempty" doc:"Purchase date"`
	OpenDate           *time.Time `json:"open_date,omitempty" doc:"Open date"`
	PeriodAfterOpening string     `json:"period_after_opening,omitempty" doc:"Period after opening, e.g. 12M"`
	ExpiryDate         *time.Time `json:"expiry_date,omitempty" doc:"Derived expiry date"`
	RemainingAmount    float64    `json:"remaining_amount" doc:"Remaining amount, 0 to 100"`
	IsFinished         bool       `json:"is_finished" doc:"Whether the product is finished"`
	FinishDate         *time.Time `json:"finish_date,omitempty" doc:"Finish date"`
	IsFavorite         bool       `json:"is_favorite" doc:"Favorite flag"`
	TimesUsed          int        `json:"times_used" doc:"Number of recorded usages"`
	CreatedAt          time.Time  `json:"created_at" doc:"Creation time"`
	UpdatedAt          time.Time  `json:"updated_at" doc:"Last update time"`
}

func toProductResponse(p *domain.Product) ProductResponse {
	resp := ProductResponse{
		ID:                 p.ID,
		Name:               p.Name,
		Brand:              p.Brand,
		Barcode:            p.Barcode,
		Shade:              p.Shade,
		Size:               p.Size,
		SPF:                p.SPF,
		Currency:           p.Currency,
		State:              string(p.State()),
		PurchaseDate:       p.PurchaseDate,
		OpenDate:           p.OpenDate,
		PeriodAfterOpening: p.PeriodAfterOpening,
		ExpiryDate:         p.ExpiryDate,
		RemainingAmount:    p.RemainingAmount,
		IsFinished:         p.IsFinished,
		FinishDate:         p.FinishDate,
		IsFavorite:         p.IsFavorite,
		TimesUsed:          p.TimesUsed,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}
	if p.RemoteID != nil {
		resp.RemoteID = *p.RemoteID
	}
	if p.Price != nil {
		price := p.Price.String()
		resp.Price = &price
	}
	return resp
}

func toProductResponses(products []*domain.Product) []ProductResponse {
	out := make([]ProductResponse, 0, len(products))
	for _, p := range products {
		out = append(out, toProductResponse(p))
	}
	return out
}

// ProductOutput wraps a single product.
type ProductOutput struct {
	Body ProductResponse
}

// ProductListResponse is a page of products.
type ProductListResponse struct {
	Products []ProductResponse `json:"products" doc:"Products"`
	Total    int               `json:"total" doc:"Number of products returned"`
}

// ProductListOutput wraps a product list.
type ProductListOutput struct {
	Body ProductListResponse
}

// ListProductsInput contains query parameters for listing products.
type ListProductsInput struct {
	Authorization   string `header:"Authorization"`
	State           string `query:"state" doc:"Only products in this state: wishlist, purchased, opened or finished"`
	Favorites       bool   `query:"favorites" doc:"Only favorites"`
	IncludeFinished bool   `query:"include_finished" doc:"Include finished products"`
	Limit           int    `query:"limit" minimum:"0" maximum:"500" doc:"Maximum results"`
	Offset          int    `query:"offset" minimum:"0" doc:"Results to skip"`
}

// CreateProductRequest is the request body for creating a product.
type CreateProductRequest struct {
	Name               string     `json:"name" minLength:"1" maxLength:"200" doc:"Product name"`
	Brand              string     `json:"brand,omitempty" maxLength:"200" doc:"Brand"`
	Barcode            string     `json:"barcode,omitempty" maxLength:"64" doc:"Barcode"`
	Shade              string     `json:"shade,omitempty" maxLength:"100" doc:"Shade"`
	Size               string     `json:"size,omitempty" maxLength:"50" doc:"Size"`
	SPF                *int       `json:"spf,omitempty" minimum:"0" maximum:"100" doc:"Sun protection factor"`
	Price              *string    `json:"price,omitempty" doc:"Price as a decimal string"`
	Currency           string     `json:"currency,omitempty" doc:"ISO 4217 currency code"`
	PurchaseDate       *time.Time `json:"purchase_date,omitempty" doc:"Purchase date, defaults to now"`
	OpenDate           *time.Time `json:"open_date,omitempty" doc:"Open date when created already opened"`
	PeriodAfterOpening string     `json:"period_after_opening,omitempty" doc:"Period after opening, e.g. 12M"`
	Wishlist           bool       `json:"wishlist,omitempty" doc:"Create on the wishlist instead of the shelf"`
	IsFavorite         bool       `json:"is_favorite,omitempty" doc:"Favorite flag"`
}

// CreateProductInput wraps the create request.
type CreateProductInput struct {
	Authorization string `header:"Authorization"`
	Body          CreateProductRequest
}

// ProductIDInput identifies a product by path.
type ProductIDInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Product ID"`
}

// UpdateProductRequest edits product details. Absent fields are unchanged.
type UpdateProductRequest struct {
	Name               *string    `json:"name,omitempty" minLength:"1" maxLength:"200" doc:"Product name"`
	Brand              *string    `json:"brand,omitempty" maxLength:"200" doc:"Brand"`
	Barcode            *string    `json:"barcode,omitempty" maxLength:"64" doc:"Barcode"`
	Shade              *string    `json:"shade,omitempty" maxLength:"100" doc:"Shade"`
	Size               *string    `json:"size,omitempty" maxLength:"50" doc:"Size"`
	SPF                *int       `json:"spf,omitempty" minimum:"0" maximum:"100" doc:"Sun protection factor"`
	Price              *string    `json:"price,omitempty" doc:"Price as a decimal string"`
	Currency           *string    `json:"currency,omitempty" doc:"ISO 4217 currency code"`
	PurchaseDate       *time.Time `json:"purchase_date,omitempty" doc:"Purchase date"`
	OpenDate           *time.Time `json:"open_date,omitempty" doc:"Open date"`
	ClearOpenDate      bool       `json:"clear_open_date,omitempty" doc:"Remove the open date"`
	PeriodAfterOpening *string    `json:"period_after_opening,omitempty" doc:"Period after opening, e.g. 12M"`
}

// UpdateProductInput wraps the update request.
type UpdateProductInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Product ID"`
	Body          UpdateProductRequest
}

// DateRequest carries an optional event date.
type DateRequest struct {
	Date *time.Time `json:"date,omitempty" doc:"Event date, defaults to now"`
}

// DateInput identifies a product and an optional date. The body may be omitted.
type DateInput struct {
	Authorization string       `header:"Authorization"`
	ID            string       `path:"id" doc:"Product ID"`
	Body          *DateRequest `required:"false"`
}

func (in *DateInput) date() *time.Time {
	if in.Body == nil {
		return nil
	}
	return in.Body.Date
}

// FavoriteRequest sets the favorite flag.
type FavoriteRequest struct {
	Favorite *bool `json:"favorite,omitempty" doc:"New value; omitted toggles"`
}

// FavoriteProductInput sets or toggles the favorite flag.
type FavoriteProductInput struct {
	Authorization string           `header:"Authorization"`
	ID            string           `path:"id" doc:"Product ID"`
	Body          *FavoriteRequest `required:"false"`
}

// CountProductsInput selects products by exact field values. A parameter
// that is present but empty matches products whose field is empty.
type CountProductsInput struct {
	Authorization   string `header:"Authorization"`
	Name            string `query:"name" doc:"Exact name"`
	Brand           string `query:"brand" doc:"Exact brand"`
	Size            string `query:"size" doc:"Exact size"`
	IncludeFinished bool   `query:"include_finished" doc:"Count finished products too"`

	sent url.Values
}

// Resolve keeps the raw query so absent and empty filters can be told apart.
func (i *CountProductsInput) Resolve(ctx huma.Context) []error {
	u := ctx.URL()
	i.sent = u.Query()
	return nil
}

// filter returns value when the named parameter was sent, nil otherwise.
func (i *CountProductsInput) filter(name, value string) *string {
	if !i.sent.Has(name) {
		return nil
	}
	return &value
}

// CountOutput returns a count.
type CountOutput struct {
	Body struct {
		Count int `json:"count" doc:"Number of matching products"`
	}
}

// SearchProductsInput is a free-text query.
type SearchProductsInput struct {
	Authorization string `header:"Authorization"`
	Query         string `query:"q" doc:"Search text"`
	Limit         int    `query:"limit" minimum:"0" maximum:"200" doc:"Maximum results"`
}

// === Handlers ===

func (s *Server) handleListProducts(ctx context.Context, input *ListProductsInput) (*ProductListOutput, error) {
	products, err := s.services.Products.List(ctx, service.ListFilter{
		State:           domain.LifecycleState(input.State),
		FavoritesOnly:   input.Favorites,
		IncludeFinished: input.IncludeFinished,
		Limit:           input.Limit,
		Offset:          input.Offset,
	})
	if err != nil {
		return nil, toAPIError(err)
	}
	items := toProductResponses(products)
	return &ProductListOutput{Body: ProductListResponse{Products: items, Total: len(items)}}, nil
}

func (s *Server) handleCreateProduct(ctx context.Context, input *CreateProductInput) (*ProductOutput, error) {
	price, err := parsePrice(input.Body.Price)
	if err != nil {
		return nil, toAPIError(err)
	}

	p, err := s.services.Products.Create(ctx, service.CreateProductRequest{
		Name:               input.Body.Name,
		Brand:              input.Body.Brand,
		Barcode:            input.Body.Barcode,
		Shade:              input.Body.Shade,
		Size:               input.Body.Size,
		SPF:                input.Body.SPF,
		Price:              price,
		Currency:           input.Body.Currency,
		PurchaseDate:       input.Body.PurchaseDate,
		OpenDate:           input.Body.OpenDate,
		PeriodAfterOpening: input.Body.PeriodAfterOpening,
		Wishlist:           input.Body.Wishlist,
		IsFavorite:         input.Body.IsFavorite,
	})
	if err != nil {
		return nil, toAPIError(err)
	}
	return &ProductOutput{Body: toProductResponse(p)}, nil
}

func (s *Server) handleGetProduct(ctx context.Context, input *ProductIDInput) (*ProductOutput, error) {
	p, err := s.services.Products.Get(ctx, input.ID)
	if err != nil {
		return nil, toAPIError(err)
	}
	return &ProductOutput{Body: toProductResponse(p)}, nil
}

func (s *Server) handleUpdateProduct(ctx context.Context, input *UpdateProductInput) (*ProductOutput, error) {
	price, err := parsePrice(input.Body.Price)
	if err != nil {
		return nil, toAPIError(err)
	}

	p, err := s.services.Products.EditDetails(ctx, input.ID, domain.DetailsMutation{
		Barcode:            input.Body.Barcode,
		Name:               input.Body.Name,
		Brand:              input.Body.Brand,
		Shade:              input.Body.Shade,
		Size:               input.Body.Size,
		SPF:                input.Body.SPF,
		Price:              price,
		Currency:           input.Body.Currency,
		PurchaseDate:       input.Body.PurchaseDate,
		OpenDate:           input.Body.OpenDate,
		ClearOpenDate:      input.Body.ClearOpenDate,
		PeriodAfterOpening: input.Body.PeriodAfterOpening,
	})
	if err != nil {
		return nil, toAPIError(err)
	}
	return &ProductOutput{Body: toProductResponse(p)}, nil
}

func (s *Server) handleDeleteProduct(ctx context.Context, input *ProductIDInput) (*struct{}, error) {
	if err := s.services.Products.Delete(ctx, input.ID); err != nil {
		return nil, toAPIError(err)
	}
	return nil, nil
}

func (s *Server) handlePurchaseProduct(ctx context.Context, input *DateInput) (*ProductOutput, error) {
	p, err := s.services.Products.MarkPurchased(ctx, input.ID, input.date())
	if err != nil {
		return nil, toAPIError(err)
	}
	return &ProductOutput{Body: toProductResponse(p)}, nil
}

func (s *Server) handleOpenProduct(ctx context.Context, input *DateInput) (*ProductOutput, error) {
	at := time.Now()
	if d := input.date(); d != nil {
		at = *d
	}
	p, err := s.services.Products.MarkOpened(ctx, input.ID, at)
	if err != nil {
		return nil, toAPIError(err)
	}
	return &ProductOutput{Body: toProductResponse(p)}, nil
}

func (s *Server) handleFinishProduct(ctx context.Context, input *ProductIDInput) (*ProductOutput, error) {
	p, err := s.services.Products.MarkFinished(ctx, input.ID)
	if err != nil {
		return nil, toAPIError(err)
	}
	return &ProductOutput{Body: toProductResponse(p)}, nil
}

func (s *Server) handleFavoriteProduct(ctx context.Context, input *FavoriteProductInput) (*ProductOutput, error) {
	var (
		p   *domain.Product
		err error
	)
	if input.Body == nil || input.Body.Favorite == nil {
		p, err = s.services.Products.ToggleFavorite(ctx, input.ID)
	} else {
		p, err = s.services.Products.SetFavorite(ctx, input.ID, *input.Body.Favorite)
	}
	if err != nil {
		return nil, toAPIError(err)
	}
	return &ProductOutput{Body: toProductResponse(p)}, nil
}

func (s *Server) handleCountProducts(ctx context.Context, input *CountProductsInput) (*CountOutput, error) {
	n, err := s.services.Collections.CountMatching(ctx, service.CountCriteria{
		Name:            input.filter("name", input.Name),
		Brand:           input.filter("brand", input.Brand),
		Size:            input.filter("size", input.Size),
		IncludeFinished: input.IncludeFinished,
	})
	if err != nil {
		return nil, toAPIError(err)
	}
	out := &CountOutput{}
	out.Body.Count = n
	return out, nil
}

func (s *Server) handleSearchProducts(ctx context.Context, input *SearchProductsInput) (*ProductListOutput, error) {
	products, err := s.services.Products.Search(ctx, input.Query, input.Limit)
	if err != nil {
		return nil, toAPIError(err)
	}
	items := toProductResponses(products)
	return &ProductListOutput{Body: ProductListResponse{Products: items, Total: len(items)}}, nil
}

// === Helpers ===

func parsePrice(raw *string) (*decimal.Decimal, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(*raw))
	if err != nil {
		return nil, domainerrors.Validationf("price %q is not a decimal number", *raw)
	}
	return &d, nil
}
