package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/shelflifeapp/shelflife/internal/store"
)

const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

// severity orders statuses so the overall status is the worst component's.
var severity = map[string]int{statusHealthy: 0, statusDegraded: 1, statusUnhealthy: 2}

func (s *Server) registerHealthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "healthCheck",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Reports whether the local shelf, its search index and the event stream are usable",
		Tags:        []string{"Health"},
	}, s.handleHealthCheck)
}

// ComponentHealth is the status of one backing component.
type ComponentHealth struct {
	Status  string `json:"status" doc:"healthy, degraded or unhealthy"`
	Latency string `json:"latency,omitempty" doc:"Time the check took"`
	Message string `json:"message,omitempty" doc:"Detail about the status"`
}

// HealthResponse is the worst component status plus each component's own.
type HealthResponse struct {
	Status     string                     `json:"status" doc:"Worst component status"`
	Components map[string]ComponentHealth `json:"components" doc:"Status per component"`
}

// HealthOutput is the huma response for the health check.
type HealthOutput struct {
	Body HealthResponse
}

func (s *Server) handleHealthCheck(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	resp := HealthResponse{
		Status: statusHealthy,
		Components: map[string]ComponentHealth{
			"database": s.shelfHealth(ctx),
			"search":   s.searchHealth(),
			"sse":      s.streamHealth(),
		},
	}
	for _, c := range resp.Components {
		if severity[c.Status] > severity[resp.Status] {
			resp.Status = c.Status
		}
	}
	return &HealthOutput{Body: resp}, nil
}

// shelfHealth runs a count inside a read session.
func (s *Server) shelfHealth(ctx context.Context) ComponentHealth {
	if s.store == nil {
		return ComponentHealth{Status: statusDegraded, Message: "no local store"}
	}

	began := time.Now()
	err := s.store.Read(ctx, func(tx store.Session) error {
		_, err := tx.CountProducts(ctx, store.ProductCriteria{IncludeFinished: true})
		return err
	})
	took := time.Since(began).String()

	if err != nil {
		return ComponentHealth{Status: statusUnhealthy, Latency: took, Message: "local store unreadable"}
	}
	return ComponentHealth{Status: statusHealthy, Latency: took}
}

func (s *Server) searchHealth() ComponentHealth {
	if s.services == nil || s.services.Search == nil {
		return ComponentHealth{Status: statusDegraded, Message: "search disabled"}
	}

	began := time.Now()
	docs, err := s.services.Search.DocumentCount()
	took := time.Since(began).String()

	if err != nil {
		return ComponentHealth{Status: statusUnhealthy, Latency: took, Message: "search index unreadable"}
	}
	return ComponentHealth{Status: statusHealthy, Latency: took, Message: plural(int(docs), "indexed product")}
}

func (s *Server) streamHealth() ComponentHealth {
	if s.sseManager == nil {
		return ComponentHealth{Status: statusDegraded, Message: "event stream disabled"}
	}
	return ComponentHealth{Status: statusHealthy, Message: plural(s.sseManager.ClientCount(), "open stream")}
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
