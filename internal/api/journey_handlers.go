package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/shelflifeapp/shelflife/internal/domain"
	"github.com/shelflifeapp/shelflife/internal/service"
)

func (s *Server) registerJourneyRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getJourney",
		Method:      http.MethodGet,
		Path:        "/api/v1/products/{id}/journey",
		Summary:     "Get product journey",
		Description: "Returns the journey timeline, oldest first, or the latest events when latest is set",
		Tags:        []string{"Journey"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetJourney)

	huma.Register(s.api, huma.Operation{
		OperationID:   "addThought",
		Method:        http.MethodPost,
		Path:          "/api/v1/products/{id}/thoughts",
		Summary:       "Add thought",
		Tags:          []string{"Journey"},
		DefaultStatus: http.StatusCreated,
		Security:      []map[string][]string{{"bearer": {}}},
	}, s.handleAddThought)

	huma.Register(s.api, huma.Operation{
		OperationID:   "addReview",
		Method:        http.MethodPost,
		Path:          "/api/v1/products/{id}/reviews",
		Summary:       "Add review",
		Description:   "Adds a rated review. Rating runs from 0 to 5",
		Tags:          []string{"Journey"},
		DefaultStatus: http.StatusCreated,
		Security:      []map[string][]string{{"bearer": {}}},
	}, s.handleAddReview)
}

// JourneyEventResponse is the wire form of a journey event.
type JourneyEventResponse struct {
	ID        string    `json:"id" doc:"Event ID"`
	ProductID string    `json:"product_id" doc:"Product ID"`
	Type      string    `json:"type" doc:"Event type" enum:"purchase,open,thought,review,half_empty,finished"`
	Text      string    `json:"text,omitempty" doc:"Free text"`
	Title     string    `json:"title,omitempty" doc:"Review title"`
	Rating    int       `json:"rating" doc:"Review rating"`
	CreatedAt time.Time `json:"created_at" doc:"When the event happened"`
}

func toJourneyEventResponse(e *domain.JourneyEvent) JourneyEventResponse {
	return JourneyEventResponse{
		ID:        e.ID,
		ProductID: e.ProductID,
		Type:      string(e.Type),
		Text:      e.Text,
		Title:     e.Title,
		Rating:    e.Rating,
		CreatedAt: e.CreatedAt,
	}
}

// GetJourneyInput selects a product's timeline.
type GetJourneyInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Product ID"`
	Latest        int    `query:"latest" minimum:"0" maximum:"100" doc:"Return only the N newest events, newest first"`
}

// JourneyOutput wraps a timeline.
type JourneyOutput struct {
	Body struct {
		Events []JourneyEventResponse `json:"events" doc:"Journey events"`
	}
}

// AddThoughtInput wraps a thought.
type AddThoughtInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Product ID"`
	Body          struct {
		Text string `json:"text" minLength:"1" maxLength:"5000" doc:"Thought text"`
	}
}

// AddReviewInput wraps a review.
type AddReviewInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Product ID"`
	Body          struct {
		Title  string `json:"title,omitempty" maxLength:"200" doc:"Review title"`
		Text   string `json:"text,omitempty" maxLength:"5000" doc:"Review text"`
		Rating int    `json:"rating" doc:"Rating from 0 to 5"`
	}
}

// JourneyEventOutput wraps one event.
type JourneyEventOutput struct {
	Body JourneyEventResponse
}

func (s *Server) handleGetJourney(ctx context.Context, input *GetJourneyInput) (*JourneyOutput, error) {
	var (
		events []*domain.JourneyEvent
		err    error
	)
	if input.Latest > 0 {
		events, err = s.services.Journey.Latest(ctx, input.ID, input.Latest)
	} else {
		events, err = s.services.Journey.Timeline(ctx, input.ID)
	}
	if err != nil {
		return nil, toAPIError(err)
	}

	out := &JourneyOutput{}
	out.Body.Events = make([]JourneyEventResponse, 0, len(events))
	for _, e := range events {
		out.Body.Events = append(out.Body.Events, toJourneyEventResponse(e))
	}
	return out, nil
}

func (s *Server) handleAddThought(ctx context.Context, input *AddThoughtInput) (*JourneyEventOutput, error) {
	event, err := s.services.Journey.AddThought(ctx, input.ID, input.Body.Text)
	if err != nil {
		return nil, toAPIError(err)
	}
	return &JourneyEventOutput{Body: toJourneyEventResponse(event)}, nil
}

func (s *Server) handleAddReview(ctx context.Context, input *AddReviewInput) (*JourneyEventOutput, error) {
	event, err := s.services.Journey.AddReview(ctx, input.ID, service.ReviewRequest{
		Title:  input.Body.Title,
		Text:   input.Body.Text,
		Rating: input.Body.Rating,
	})
	if err != nil {
		return nil, toAPIError(err)
	}
	return &JourneyEventOutput{Body: toJourneyEventResponse(event)}, nil
}
