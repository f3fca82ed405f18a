package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/shelflifeapp/shelflife/internal/domain"
)

func (s *Server) registerUsageRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listUsage",
		Method:      http.MethodGet,
		Path:        "/api/v1/products/{id}/usage",
		Summary:     "List usage entries",
		Description: "Returns the usage ledger of a product, oldest first",
		Tags:        []string{"Usage"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListUsage)

	huma.Register(s.api, huma.Operation{
		OperationID:   "recordUsage",
		Method:        http.MethodPost,
		Path:          "/api/v1/products/{id}/usage",
		Summary:       "Record usage",
		Description:   "Records one use and consumes the given amount. Opens the product on first use and finishes it when nothing remains",
		Tags:          []string{"Usage"},
		DefaultStatus: http.StatusCreated,
		Security:      []map[string][]string{{"bearer": {}}},
	}, s.handleRecordUsage)
}

// UsageEntryResponse is the wire form of a usage entry.
type UsageEntryResponse struct {
	ID        string    `json:"id" doc:"Entry ID"`
	ProductID string    `json:"product_id" doc:"Product ID"`
	Type      string    `json:"type" doc:"Usage type"`
	Amount    float64   `json:"amount" doc:"Amount consumed"`
	Notes     string    `json:"notes,omitempty" doc:"Free-form notes"`
	CreatedAt time.Time `json:"created_at" doc:"When the usage happened"`
}

func toUsageEntryResponse(e *domain.UsageEntry) UsageEntryResponse {
	return UsageEntryResponse{
		ID:        e.ID,
		ProductID: e.ProductID,
		Type:      e.Type,
		Amount:    e.Amount,
		Notes:     e.Notes,
		CreatedAt: e.CreatedAt,
	}
}

// RecordUsageRequest is the request body for recording usage.
type RecordUsageRequest struct {
	Type   string  `json:"type,omitempty" maxLength:"64" doc:"Usage type, defaults to check_in"`
	Amount float64 `json:"amount,omitempty" doc:"Amount consumed on the 0 to 100 scale"`
	Notes  string  `json:"notes,omitempty" maxLength:"2000" doc:"Free-form notes"`
}

// RecordUsageInput wraps the record request.
type RecordUsageInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Product ID"`
	Body          RecordUsageRequest
}

// UsageEntryOutput wraps a usage entry.
type UsageEntryOutput struct {
	Body UsageEntryResponse
}

// UsageListOutput wraps the ledger.
type UsageListOutput struct {
	Body struct {
		Entries []UsageEntryResponse `json:"entries" doc:"Usage entries"`
	}
}

func (s *Server) handleRecordUsage(ctx context.Context, input *RecordUsageInput) (*UsageEntryOutput, error) {
	entry, err := s.services.Usage.RecordUsage(ctx, input.ID, input.Body.Type, input.Body.Amount, input.Body.Notes)
	if err != nil {
		return nil, toAPIError(err)
	}
	return &UsageEntryOutput{Body: toUsageEntryResponse(entry)}, nil
}

func (s *Server) handleListUsage(ctx context.Context, input *ProductIDInput) (*UsageListOutput, error) {
	entries, err := s.services.Usage.EntriesFor(ctx, input.ID)
	if err != nil {
		return nil, toAPIError(err)
	}
	out := &UsageListOutput{}
	out.Body.Entries = make([]UsageEntryResponse, 0, len(entries))
	for _, e := range entries {
		out.Body.Entries = append(out.Body.Entries, toUsageEntryResponse(e))
	}
	return out, nil
}
