package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// ProductPatch is a partial product update as sent to the remote.
// Nil fields are omitted. ClearOpenDate and ClearExpiry send explicit nulls.
type ProductPatch struct {
	Barcode            *string
	Name               *string
	Brand              *string
	Shade              *string
	Size               *string
	SPF                *int
	Price              *decimal.Decimal
	Currency           *string
	PurchaseDate       *time.Time
	OpenDate           *time.Time
	PeriodAfterOpening *string
	ExpiryDate         *time.Time
	RemainingAmount    *float64
	TimesUsed          *int
	IsFavorite         *bool
	IsFinished         *bool
	FinishDate         *time.Time

	AddToBagID      *string
	RemoveFromBagID *string
	AddTagID        *string
	RemoveTagID     *string

	ClearOpenDate bool
	ClearExpiry   bool
}

// IsEmpty reports whether the patch changes nothing.
func (p ProductPatch) IsEmpty() bool {
	b, _ := json.Marshal(p)
	return string(b) == "{}"
}

// Merge overlays other onto p. Fields set in other win.
func (p ProductPatch) Merge(other ProductPatch) ProductPatch {
	out := p
	setIf(&out.Barcode, other.Barcode)
	setIf(&out.Name, other.Name)
	setIf(&out.Brand, other.Brand)
	setIf(&out.Shade, other.Shade)
	setIf(&out.Size, other.Size)
	setIf(&out.SPF, other.SPF)
	setIf(&out.Price, other.Price)
	setIf(&out.Currency, other.Currency)
	setIf(&out.PurchaseDate, other.PurchaseDate)
	setIf(&out.OpenDate, other.OpenDate)
	setIf(&out.PeriodAfterOpening, other.PeriodAfterOpening)
	setIf(&out.ExpiryDate, other.ExpiryDate)
	setIf(&out.RemainingAmount, other.RemainingAmount)
	setIf(&out.TimesUsed, other.TimesUsed)
	setIf(&out.IsFavorite, other.IsFavorite)
	setIf(&out.IsFinished, other.IsFinished)
	setIf(&out.FinishDate, other.FinishDate)
	setIf(&out.AddToBagID, other.AddToBagID)
	setIf(&out.RemoveFromBagID, other.RemoveFromBagID)
	setIf(&out.AddTagID, other.AddTagID)
	setIf(&out.RemoveTagID, other.RemoveTagID)
	if other.OpenDate != nil {
		out.ClearOpenDate = false
	}
	if other.ExpiryDate != nil {
		out.ClearExpiry = false
	}
	out.ClearOpenDate = out.ClearOpenDate || other.ClearOpenDate
	out.ClearExpiry = out.ClearExpiry || other.ClearExpiry
	return out
}

func setIf[T any](dst **T, src *T) {
	if src != nil {
		*dst = src
	}
}

// MarshalJSON renders the remote's camelCase partial-update body.
func (p ProductPatch) MarshalJSON() ([]byte, error) {
	m := make(map[string]any)
	put := func(key string, set bool, v any) {
		if set {
			m[key] = v
		}
	}
	put("barcode", p.Barcode != nil, p.Barcode)
	put("name", p.Name != nil, p.Name)
	put("brand", p.Brand != nil, p.Brand)
	put("shade", p.Shade != nil, p.Shade)
	put("size", p.Size != nil, p.Size)
	put("spf", p.SPF != nil, p.SPF)
	put("price", p.Price != nil, p.Price)
	put("currency", p.Currency != nil, p.Currency)
	put("purchaseDate", p.PurchaseDate != nil, p.PurchaseDate)
	put("openDate", p.OpenDate != nil, p.OpenDate)
	put("periodAfterOpening", p.PeriodAfterOpening != nil, p.PeriodAfterOpening)
	put("expiryDate", p.ExpiryDate != nil, p.ExpiryDate)
	put("remainingAmount", p.RemainingAmount != nil, p.RemainingAmount)
	put("timesUsed", p.TimesUsed != nil, p.TimesUsed)
	put("isFavorite", p.IsFavorite != nil, p.IsFavorite)
	put("isFinished", p.IsFinished != nil, p.IsFinished)
	put("finishDate", p.FinishDate != nil, p.FinishDate)
	put("addToBagId", p.AddToBagID != nil, p.AddToBagID)
	put("removeFromBagId", p.RemoveFromBagID != nil, p.RemoveFromBagID)
	put("addTagId", p.AddTagID != nil, p.AddTagID)
	put("removeTagId", p.RemoveTagID != nil, p.RemoveTagID)
	if p.ClearOpenDate && p.OpenDate == nil {
		m["openDate"] = nil
	}
	if p.ClearExpiry && p.ExpiryDate == nil {
		m["expiryDate"] = nil
	}
	return json.Marshal(m)
}

// ExpiryPatch describes the current expiry as a patch, clearing it when unset.
func ExpiryPatch(p *Product) ProductPatch {
	if p.ExpiryDate == nil {
		return ProductPatch{ClearExpiry: true}
	}
	return ProductPatch{ExpiryDate: ptr(*p.ExpiryDate)}
}

// QuantityPatch describes the usage-driven counters and finish state.
func QuantityPatch(p *Product) ProductPatch {
	patch := ProductPatch{
		RemainingAmount: ptr(p.RemainingAmount),
		TimesUsed:       ptr(p.TimesUsed),
	}
	if p.IsFinished {
		patch.IsFinished = ptr(true)
		patch.FinishDate = p.FinishDate
	}
	return patch
}

// OpenMutation opens a product at OpenDate.
type OpenMutation struct {
	OpenDate time.Time
}

// Apply sets the open date and recomputes expiry.
func (m OpenMutation) Apply(p *Product) (openChanged, expiryChanged bool) {
	return p.SetOpenDate(&m.OpenDate)
}

// Patch renders the mutation's remote form against the mutated product.
func (m OpenMutation) Patch(p *Product) ProductPatch {
	return ProductPatch{OpenDate: ptr(m.OpenDate)}.Merge(ExpiryPatch(p))
}

// FinishMutation finishes a product at FinishDate.
type FinishMutation struct {
	FinishDate time.Time
}

// Apply finishes the product and reports whether anything changed.
func (m FinishMutation) Apply(p *Product) bool {
	return p.Finish(m.FinishDate)
}

// Patch renders the mutation's remote form.
func (m FinishMutation) Patch() ProductPatch {
	return ProductPatch{
		IsFinished:      ptr(true),
		FinishDate:      ptr(m.FinishDate),
		RemainingAmount: ptr(0.0),
	}
}

// FavoriteMutation sets the favorite flag.
type FavoriteMutation struct {
	IsFavorite bool
}

// Apply sets the flag and reports whether it changed.
func (m FavoriteMutation) Apply(p *Product) bool {
	if p.IsFavorite == m.IsFavorite {
		return false
	}
	p.IsFavorite = m.IsFavorite
	return true
}

// Patch renders the mutation's remote form.
func (m FavoriteMutation) Patch() ProductPatch {
	return ProductPatch{IsFavorite: ptr(m.IsFavorite)}
}

// DetailsMutation edits descriptive and expiry-driving fields. Nil fields are
// left untouched; ClearOpenDate removes the open date.
type DetailsMutation struct {
	Barcode            *string
	Name               *string
	Brand              *string
	Shade              *string
	Size               *string
	SPF                *int
	Price              *decimal.Decimal
	Currency           *string
	PurchaseDate       *time.Time
	OpenDate           *time.Time
	ClearOpenDate      bool
	PeriodAfterOpening *string
}

// DetailsOutcome reports what a DetailsMutation changed.
type DetailsOutcome struct {
	OpenChanged   bool
	ExpiryChanged bool
}

// Apply writes the set fields onto p.
func (m DetailsMutation) Apply(p *Product) DetailsOutcome {
	var out DetailsOutcome
	setVal(&p.Barcode, m.Barcode)
	setVal(&p.Name, m.Name)
	setVal(&p.Brand, m.Brand)
	setVal(&p.Shade, m.Shade)
	setVal(&p.Size, m.Size)
	setVal(&p.Currency, m.Currency)
	if m.SPF != nil {
		p.SPF = ptr(*m.SPF)
	}
	if m.Price != nil {
		p.Price = ptr(*m.Price)
	}
	if m.PurchaseDate != nil {
		p.PurchaseDate = ptr(*m.PurchaseDate)
	}

	switch {
	case m.ClearOpenDate:
		out.OpenChanged, out.ExpiryChanged = p.SetOpenDate(nil)
	case m.OpenDate != nil:
		out.OpenChanged, out.ExpiryChanged = p.SetOpenDate(m.OpenDate)
	}
	if m.PeriodAfterOpening != nil && *m.PeriodAfterOpening != p.PeriodAfterOpening {
		if p.SetPeriodAfterOpening(*m.PeriodAfterOpening) {
			out.ExpiryChanged = true
		}
	}
	return out
}

// Patch renders the mutation's remote form against the mutated product.
func (m DetailsMutation) Patch(p *Product, out DetailsOutcome) ProductPatch {
	patch := ProductPatch{
		Barcode:            m.Barcode,
		Name:               m.Name,
		Brand:              m.Brand,
		Shade:              m.Shade,
		Size:               m.Size,
		SPF:                m.SPF,
		Price:              m.Price,
		Currency:           m.Currency,
		PurchaseDate:       m.PurchaseDate,
		PeriodAfterOpening: m.PeriodAfterOpening,
	}
	if out.OpenChanged {
		if p.OpenDate == nil {
			patch.ClearOpenDate = true
		} else {
			patch.OpenDate = ptr(*p.OpenDate)
		}
	}
	if out.ExpiryChanged {
		patch = patch.Merge(ExpiryPatch(p))
	}
	return patch
}

func setVal[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func ptr[T any](v T) *T {
	return &v
}
