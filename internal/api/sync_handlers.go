package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	domainerrors "github.com/shelflifeapp/shelflife/internal/errors"
)

func (s *Server) registerSyncRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "refreshFromRemote",
		Method:      http.MethodPost,
		Path:        "/api/v1/sync/refresh",
		Summary:     "Refresh from remote",
		Description: "Pulls the user's products from the remote system of record and merges them into the local store",
		Tags:        []string{"Sync"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleRefresh)
}

// RefreshOutput reports what a refresh changed.
type RefreshOutput struct {
	Body struct {
		Fetched  int `json:"fetched" doc:"Products returned by the remote"`
		Inserted int `json:"inserted" doc:"New local products"`
		Updated  int `json:"updated" doc:"Existing local products overwritten"`
		Bound    int `json:"bound" doc:"Local products newly bound to a remote id"`
	}
}

func (s *Server) handleRefresh(ctx context.Context, _ *struct{}) (*RefreshOutput, error) {
	if s.services.Refresher == nil {
		return nil, toAPIError(domainerrors.RemoteSync(nil, "remote sync is not configured"))
	}

	result, err := s.services.Refresher.BulkRefresh(ctx)
	if err != nil {
		return nil, toAPIError(err)
	}

	out := &RefreshOutput{}
	out.Body.Fetched = result.Fetched
	out.Body.Inserted = result.Inserted
	out.Body.Updated = result.Updated
	out.Body.Bound = result.Bound
	return out, nil
}
