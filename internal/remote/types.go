package remote

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/shelflifeapp/shelflife/internal/domain"
)

// Wire types. The remote speaks camelCase JSON.

type createdResponse struct {
	ID string `json:"id"`
}

// productBody is the remote representation of a product.
type productBody struct {
	ID                 string           `json:"id,omitempty"`
	Barcode            string           `json:"barcode,omitempty"`
	Name               string           `json:"name"`
	Brand              string           `json:"brand,omitempty"`
	Shade              string           `json:"shade,omitempty"`
	Size               string           `json:"size,omitempty"`
	SPF                *int             `json:"spf,omitempty"`
	Price              *decimal.Decimal `json:"price,omitempty"`
	Currency           string           `json:"currency,omitempty"`
	PurchaseDate       *time.Time       `json:"purchaseDate,omitempty"`
	OpenDate           *time.Time       `json:"openDate,omitempty"`
	PeriodAfterOpening string           `json:"periodAfterOpening,omitempty"`
	ExpiryDate         *time.Time       `json:"expiryDate,omitempty"`
	RemainingAmount    float64          `json:"remainingAmount"`
	TimesUsed          int              `json:"timesUsed"`
	IsFavorite         bool             `json:"isFavorite"`
	IsFinished         bool             `json:"isFinished"`
	FinishDate         *time.Time       `json:"finishDate,omitempty"`
	CreatedAt          *time.Time       `json:"createdAt,omitempty"`
	UpdatedAt          *time.Time       `json:"updatedAt,omitempty"`
}

func productBodyFrom(p *domain.Product) productBody {
	created, updated := p.CreatedAt, p.UpdatedAt
	return productBody{
		Barcode:            p.Barcode,
		Name:               p.Name,
		Brand:              p.Brand,
		Shade:              p.Shade,
		Size:               p.Size,
		SPF:                p.SPF,
		Price:              p.Price,
		Currency:           p.Currency,
		PurchaseDate:       p.PurchaseDate,
		OpenDate:           p.OpenDate,
		PeriodAfterOpening: p.PeriodAfterOpening,
		ExpiryDate:         p.ExpiryDate,
		RemainingAmount:    p.RemainingAmount,
		TimesUsed:          p.TimesUsed,
		IsFavorite:         p.IsFavorite,
		IsFinished:         p.IsFinished,
		FinishDate:         p.FinishDate,
		CreatedAt:          &created,
		UpdatedAt:          &updated,
	}
}

// toDomain converts a fetched product. The remote id is set; the local id is not.
func (b productBody) toDomain(userID string) *domain.Product {
	remoteID := b.ID
	p := &domain.Product{
		UserID:             userID,
		Barcode:            b.Barcode,
		Name:               b.Name,
		Brand:              b.Brand,
		Shade:              b.Shade,
		Size:               b.Size,
		SPF:                b.SPF,
		Price:              b.Price,
		Currency:           b.Currency,
		PurchaseDate:       b.PurchaseDate,
		OpenDate:           b.OpenDate,
		PeriodAfterOpening: b.PeriodAfterOpening,
		ExpiryDate:         b.ExpiryDate,
		RemainingAmount:    b.RemainingAmount,
		TimesUsed:          b.TimesUsed,
		IsFavorite:         b.IsFavorite,
		IsFinished:         b.IsFinished,
		FinishDate:         b.FinishDate,
	}
	p.RemoteID = &remoteID
	if b.CreatedAt != nil {
		p.CreatedAt = *b.CreatedAt
	}
	if b.UpdatedAt != nil {
		p.UpdatedAt = *b.UpdatedAt
	}
	return p
}

type usageBody struct {
	ID        string    `json:"clientId"`
	Type      string    `json:"type"`
	Amount    float64   `json:"amount"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type journeyBody struct {
	ID        string    `json:"clientId"`
	Type      string    `json:"type"`
	Text      string    `json:"text,omitempty"`
	Title     string    `json:"title,omitempty"`
	Rating    *int      `json:"rating,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type groupingBody struct {
	Name        string    `json:"name"`
	Color       string    `json:"color,omitempty"`
	Icon        string    `json:"icon,omitempty"`
	Description string    `json:"description,omitempty"`
	ImageURL    string    `json:"imageUrl,omitempty"`
	IsPrivate   bool      `json:"isPrivate"`
	CreatedAt   time.Time `json:"createdAt"`
}

func groupingBodyFrom(g *domain.Grouping) groupingBody {
	return groupingBody{
		Name:        g.Name,
		Color:       g.Color,
		Icon:        g.Icon,
		Description: g.Description,
		ImageURL:    g.ImageURL,
		IsPrivate:   g.IsPrivate,
		CreatedAt:   g.CreatedAt,
	}
}
