package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Remaining amount scale.
const (
	FullAmount         = 100.0
	HalfEmptyThreshold = 50.0
)

// LifecycleState is the derived position of a product in its lifecycle.
type LifecycleState string

// Lifecycle states.
const (
	StateWishlist  LifecycleState = "wishlist"
	StatePurchased LifecycleState = "purchased"
	StateOpened    LifecycleState = "opened"
	StateFinished  LifecycleState = "finished"
)

// Product is one consumable item owned by a user.
//
// State is never stored; it falls out of PurchaseDate, OpenDate and IsFinished.
// ExpiryDate is derived from OpenDate and PeriodAfterOpening and must only be
// changed through RecomputeExpiry.
type Product struct {
	Syncable
	UserID string `json:"user_id"`

	Barcode  string           `json:"barcode,omitempty"`
	Name     string           `json:"name"`
	Brand    string           `json:"brand,omitempty"`
	Shade    string           `json:"shade,omitempty"`
	Size     string           `json:"size,omitempty"`
	SPF      *int             `json:"spf,omitempty"`
	Price    *decimal.Decimal `json:"price,omitempty"`
	Currency string           `json:"currency,omitempty"`

	PurchaseDate       *time.Time `json:"purchase_date,omitempty"`
	OpenDate           *time.Time `json:"open_date,omitempty"`
	PeriodAfterOpening string     `json:"period_after_opening,omitempty"`
	ExpiryDate         *time.Time `json:"expiry_date,omitempty"`

	RemainingAmount float64    `json:"remaining_amount"`
	IsFinished      bool       `json:"is_finished"`
	FinishDate      *time.Time `json:"finish_date,omitempty"`
	IsFavorite      bool       `json:"is_favorite"`
	TimesUsed       int        `json:"times_used"`
}

// State derives the lifecycle state.
func (p *Product) State() LifecycleState {
	switch {
	case p.IsFinished:
		return StateFinished
	case p.OpenDate != nil:
		return StateOpened
	case p.PurchaseDate == nil:
		return StateWishlist
	default:
		return StatePurchased
	}
}

// RecomputeExpiry refreshes ExpiryDate from OpenDate and PeriodAfterOpening
// and reports whether the value changed.
func (p *Product) RecomputeExpiry() bool {
	next := ComputeExpiry(p.OpenDate, p.PeriodAfterOpening)
	changed := !sameTime(p.ExpiryDate, next)
	p.ExpiryDate = next
	return changed
}

// SetOpenDate sets the open date and recomputes expiry.
// It reports whether the open date changed; a nil date clears it.
func (p *Product) SetOpenDate(at *time.Time) (openChanged, expiryChanged bool) {
	if sameTime(p.OpenDate, at) {
		return false, false
	}
	if at == nil {
		p.OpenDate = nil
	} else {
		t := *at
		p.OpenDate = &t
	}
	return true, p.RecomputeExpiry()
}

// SetPeriodAfterOpening replaces the descriptor and reports whether expiry changed.
func (p *Product) SetPeriodAfterOpening(descriptor string) bool {
	p.PeriodAfterOpening = descriptor
	return p.RecomputeExpiry()
}

// Finish forces the finished state. It returns false, changing nothing, when
// the product is already finished.
func (p *Product) Finish(at time.Time) bool {
	if p.IsFinished {
		return false
	}
	p.IsFinished = true
	p.RemainingAmount = 0
	p.FinishDate = &at
	return true
}

// UsageOutcome describes the lifecycle effects of one usage.
type UsageOutcome struct {
	Previous     float64
	Remaining    float64
	ImplicitOpen bool
	CrossedHalf  bool
	Finished     bool
}

// ApplyUsage consumes amount from the remaining quantity, clamped to
// [0, FullAmount], and bumps TimesUsed. The first usage of a purchased,
// unopened product opens it at now. Reaching zero finishes the product.
func (p *Product) ApplyUsage(amount float64, now time.Time) UsageOutcome {
	out := UsageOutcome{Previous: p.RemainingAmount}

	if p.TimesUsed == 0 && p.State() == StatePurchased {
		p.SetOpenDate(&now)
		out.ImplicitOpen = true
	}
	p.TimesUsed++

	remaining := p.RemainingAmount - amount
	if remaining < 0 {
		remaining = 0
	}
	if remaining > FullAmount {
		remaining = FullAmount
	}
	if p.IsFinished {
		remaining = 0
	}
	p.RemainingAmount = remaining
	out.Remaining = remaining

	out.CrossedHalf = out.Previous > HalfEmptyThreshold && remaining <= HalfEmptyThreshold
	if remaining == 0 {
		out.Finished = p.Finish(now)
	}
	return out
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
