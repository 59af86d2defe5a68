package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/coversync/coversync-server/internal/domain"
	domainerrors "github.com/coversync/coversync-server/internal/errors"
	"github.com/coversync/coversync-server/internal/reconcile"
)

func (s *Server) registerPassRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "triggerPass",
		Method:        http.MethodPost,
		Path:          "/api/v1/trigger",
		Summary:       "Request a pass",
		Description:   "Starts a reconciliation pass, or queues one behind the running pass. Requests beyond one queued pass are coalesced.",
		Tags:          []string{"Passes"},
		DefaultStatus: http.StatusAccepted,
		Errors:        []int{http.StatusForbidden},
	}, s.handleTrigger)

	huma.Register(s.api, huma.Operation{
		OperationID: "getStatus",
		Method:      http.MethodGet,
		Path:        "/api/v1/status",
		Summary:     "Get sync status",
		Description: "Returns the reconciliation state and the last pass report",
		Tags:        []string{"Passes"},
	}, s.handleStatus)
}

// TriggerResponse is the body of a trigger request.
type TriggerResponse struct {
	Status string `json:"status" enum:"accepted,queued,busy" doc:"What happened to the request"`
}

// TriggerOutput wraps the trigger response. Status is 202 for accepted and
// queued requests and 409 when the request was coalesced.
type TriggerOutput struct {
	Status int
	Body   TriggerResponse
}

func (s *Server) handleTrigger(_ context.Context, _ *struct{}) (*TriggerOutput, error) {
	if !s.opts.TriggerEnabled {
		return nil, domainerrors.Forbidden("pass trigger is disabled")
	}

	res := s.loop.Request(domain.TriggerAPI)
	status := http.StatusAccepted
	if res == reconcile.Busy {
		status = http.StatusConflict
	}
	s.logger.Info("pass requested over api", "result", res)

	return &TriggerOutput{
		Status: status,
		Body:   TriggerResponse{Status: string(res)},
	}, nil
}

// StatusResponse describes the reconciliation loop.
type StatusResponse struct {
	State          domain.PassState `json:"state" doc:"Current pipeline state"`
	Running        bool             `json:"running"`
	Pending        bool             `json:"pending" doc:"A re-run is queued behind the running pass"`
	PassID         string           `json:"pass_id,omitempty"`
	TriggerEnabled bool             `json:"trigger_enabled"`
	LastReport     *domain.Report   `json:"last_report,omitempty"`
	LastError      string           `json:"last_error,omitempty" doc:"Why the last pass aborted"`
}

// StatusOutput wraps the status response for Huma.
type StatusOutput struct {
	Body StatusResponse
}

func (s *Server) handleStatus(_ context.Context, _ *struct{}) (*StatusOutput, error) {
	st := s.loop.Status()
	return &StatusOutput{
		Body: StatusResponse{
			State:          st.State,
			Running:        st.Running,
			Pending:        st.Pending,
			PassID:         st.PassID,
			TriggerEnabled: s.opts.TriggerEnabled,
			LastReport:     st.LastReport,
			LastError:      st.LastError,
		},
	}, nil
}
