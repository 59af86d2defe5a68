package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

// SetQueue accepts mediux set links for download.
type SetQueue interface {
	Enqueue(link string) error
}

func (s *Server) registerSetRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "queueSet",
		Method:        http.MethodPost,
		Path:          "/api/v1/mediux/sets",
		Summary:       "Queue a mediux set",
		Description:   "Adds a mediux set link to the download queue. The set is downloaded into pending-intake as one archive on the next queue run.",
		Tags:          []string{"Sets"},
		DefaultStatus: http.StatusAccepted,
		Errors:        []int{http.StatusBadRequest},
	}, s.handleQueueSet)
}

// QueueSetInput is the body of a set request.
type QueueSetInput struct {
	Body struct {
		URL string `json:"url" minLength:"1" doc:"Set page link, e.g. https://mediux.pro/sets/12345"`
	}
}

// QueueSetOutput confirms a queued set.
type QueueSetOutput struct {
	Body struct {
		Status string `json:"status" enum:"queued"`
	}
}

func (s *Server) handleQueueSet(_ context.Context, in *QueueSetInput) (*QueueSetOutput, error) {
	if err := s.opts.Sets.Enqueue(in.Body.URL); err != nil {
		return nil, err
	}
	s.logger.Info("set queued over api", "url", in.Body.URL)
	out := &QueueSetOutput{}
	out.Body.Status = "queued"
	return out, nil
}
