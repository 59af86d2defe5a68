package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/coversync/coversync-server/internal/domain"
	domainerrors "github.com/coversync/coversync-server/internal/errors"
	"github.com/coversync/coversync-server/internal/store"
)

func (s *Server) registerRegistryRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listUnmatched",
		Method:      http.MethodGet,
		Path:        "/api/v1/unmatched",
		Summary:     "List unmatched artwork",
		Tags:        []string{"Registry"},
	}, s.handleListUnmatched)

	huma.Register(s.api, huma.Operation{
		OperationID: "listHistory",
		Method:      http.MethodGet,
		Path:        "/api/v1/history/{entryID}",
		Summary:     "List replaced artwork of a library entry",
		Tags:        []string{"Registry"},
	}, s.handleListHistory)
}

// UnmatchedInput pages through the registry in key order.
type UnmatchedInput struct {
	Cursor string `query:"cursor" doc:"Opaque cursor from a previous page"`
	Limit  int    `query:"limit" minimum:"0" maximum:"1000" doc:"Entries per page (default 100)"`
}

// UnmatchedResponse lists one page of the unmatched registry. Count is the
// registry size.
type UnmatchedResponse struct {
	Count      int                     `json:"count"`
	Entries    []domain.UnmatchedEntry `json:"entries"`
	NextCursor string                  `json:"next_cursor,omitempty"`
	HasMore    bool                    `json:"has_more"`
}

// UnmatchedOutput wraps the unmatched listing for Huma.
type UnmatchedOutput struct {
	Body UnmatchedResponse
}

func (s *Server) handleListUnmatched(ctx context.Context, input *UnmatchedInput) (*UnmatchedOutput, error) {
	entries, err := s.registry.ListUnmatched(ctx)
	if err != nil {
		return nil, err
	}

	page, err := store.Paginate(entries, store.PaginationParams{Limit: input.Limit, Cursor: input.Cursor},
		func(e domain.UnmatchedEntry) string { return e.Key })
	if err != nil {
		return nil, domainerrors.Validation(err.Error())
	}

	return &UnmatchedOutput{Body: UnmatchedResponse{
		Count:      page.Total,
		Entries:    page.Items,
		NextCursor: page.NextCursor,
		HasMore:    page.HasMore,
	}}, nil
}

// HistoryInput selects a library entry.
type HistoryInput struct {
	EntryID string `path:"entryID" minLength:"1" doc:"Library entry id"`
}

// HistoryResponse lists history records oldest first.
type HistoryResponse struct {
	EntryID string                 `json:"entry_id"`
	Records []domain.HistoryRecord `json:"records"`
}

// HistoryOutput wraps the history listing for Huma.
type HistoryOutput struct {
	Body HistoryResponse
}

func (s *Server) handleListHistory(ctx context.Context, input *HistoryInput) (*HistoryOutput, error) {
	records, err := s.registry.ListHistory(ctx, input.EntryID)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []domain.HistoryRecord{}
	}
	return &HistoryOutput{Body: HistoryResponse{EntryID: input.EntryID, Records: records}}, nil
}
