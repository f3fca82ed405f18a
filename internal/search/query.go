package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

const (
	defaultLimit = 20
	maxLimit     = 200
)

// Hit is one matching product.
type Hit struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
	Name  string  `json:"name"`
	Brand string  `json:"brand,omitempty"`
	Shade string  `json:"shade,omitempty"`
	State string  `json:"state,omitempty"`
}

// Search returns the ids of the user's products matching q, best first.
func (s *SearchIndex) Search(ctx context.Context, userID, q string, limit int) ([]string, error) {
	hits, err := s.SearchProducts(ctx, userID, q, limit)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	return ids, nil
}

// SearchProducts returns the user's products matching q, best first.
// An empty query matches nothing.
func (s *SearchIndex) SearchProducts(ctx context.Context, userID, q string, limit int) ([]Hit, error) {
	q = strings.TrimSpace(q)
	if q == "" || userID == "" {
		return []Hit{}, nil
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	limit = min(limit, maxLimit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	req := bleve.NewSearchRequestOptions(buildProductQuery(userID, q), limit, 0, false)
	req.SortBy([]string{"-_score", "-updated_at"})
	req.Fields = []string{"name", "brand", "shade", "state"}

	res, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("execute search: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hit := Hit{ID: h.ID, Score: h.Score}
		if v, ok := h.Fields["name"].(string); ok {
			hit.Name = v
		}
		if v, ok := h.Fields["brand"].(string); ok {
			hit.Brand = v
		}
		if v, ok := h.Fields["shade"].(string); ok {
			hit.Shade = v
		}
		if v, ok := h.Fields["state"].(string); ok {
			hit.State = v
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// buildProductQuery matches q against the text fields (with typo and prefix
// tolerance on name) or the exact barcode, restricted to userID.
func buildProductQuery(userID, q string) query.Query {
	nameMatch := bleve.NewMatchQuery(q)
	nameMatch.SetField("name")
	nameMatch.SetBoost(3.0)

	brandMatch := bleve.NewMatchQuery(q)
	brandMatch.SetField("brand")
	brandMatch.SetBoost(2.0)

	shadeMatch := bleve.NewMatchQuery(q)
	shadeMatch.SetField("shade")
	shadeMatch.SetBoost(1.5)

	barcode := bleve.NewTermQuery(q)
	barcode.SetField("barcode")
	barcode.SetBoost(5.0)

	fuzzy := bleve.NewFuzzyQuery(strings.ToLower(q))
	fuzzy.SetFuzziness(1)
	fuzzy.SetField("name")
	fuzzy.SetBoost(0.8)

	text := []query.Query{nameMatch, brandMatch, shadeMatch, barcode, fuzzy}

	// Prefix query for autocomplete (minimum 2 chars)
	if len(q) >= 2 {
		prefix := bleve.NewPrefixQuery(strings.ToLower(q))
		prefix.SetField("name")
		prefix.SetBoost(0.5)
		text = append(text, prefix)
	}

	owner := bleve.NewTermQuery(userID)
	owner.SetField("user_id")

	return bleve.NewConjunctionQuery(owner, bleve.NewDisjunctionQuery(text...))
}
