// Package search provides product full-text search using Bleve.
// It matches on name, brand and shade with fuzzy and prefix matching, and
// on exact barcode.
package search

import (
	"github.com/shelflifeapp/shelflife/internal/domain"
)

// ProductDocument is the indexed form of a product.
//
// Documents are scoped by user; every query filters on UserID.
type ProductDocument struct {
	ID      string `json:"id"`
	UserID  string `json:"user_id"`
	Name    string `json:"name"`
	Brand   string `json:"brand,omitempty"`
	Shade   string `json:"shade,omitempty"`
	Barcode string `json:"barcode,omitempty"`
	State   string `json:"state"`

	IsFavorite bool `json:"is_favorite"`

	// Timestamps for sorting
	CreatedAt int64 `json:"created_at"` // Unix millis
	UpdatedAt int64 `json:"updated_at"` // Unix millis
}

// ToMap converts the document to a map with the field names of the index
// mapping.
func (d *ProductDocument) ToMap() map[string]any {
	m := map[string]any{
		"id":          d.ID,
		"user_id":     d.UserID,
		"name":        d.Name,
		"state":       d.State,
		"is_favorite": d.IsFavorite,
		"created_at":  d.CreatedAt,
		"updated_at":  d.UpdatedAt,
	}
	if d.Brand != "" {
		m["brand"] = d.Brand
	}
	if d.Shade != "" {
		m["shade"] = d.Shade
	}
	if d.Barcode != "" {
		m["barcode"] = d.Barcode
	}
	return m
}

// ProductToDocument converts a product to its search document.
func ProductToDocument(p *domain.Product) *ProductDocument {
	return &ProductDocument{
		ID:         p.ID,
		UserID:     p.UserID,
		Name:       p.Name,
		Brand:      p.Brand,
		Shade:      p.Shade,
		Barcode:    p.Barcode,
		State:      string(p.State()),
		IsFavorite: p.IsFavorite,
		CreatedAt:  p.CreatedAt.UnixMilli(),
		UpdatedAt:  p.UpdatedAt.UnixMilli(),
	}
}
