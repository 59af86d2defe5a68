package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coversync/coversync-server/internal/domain"
)

func TestObserveReport(t *testing.T) {
	m := NewManager()
	start := time.Now()
	m.ObserveReport(&domain.Report{
		Trigger:     domain.TriggerWatch,
		StartedAt:   start,
		CompletedAt: start.Add(2 * time.Second),
		CatalogSize: 120,
		Matched:     3,
		Unmatched:   2,
		Ambiguous:   1,
		Archived:    1,
		Errors:      []domain.ReferenceError{{Path: "x"}},
	}, 4)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.passes.WithLabelValues("watch", "ok")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.outcomes.WithLabelValues("matched")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.outcomes.WithLabelValues("unmatched")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outcomes.WithLabelValues("ambiguous")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.archived))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.refErrors))
	assert.Equal(t, 120.0, testutil.ToFloat64(m.catalogSize))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.unmatched))
}

func TestObserveAbortAndRequest(t *testing.T) {
	m := NewManager()
	m.ObserveAbort(domain.TriggerStartup)
	m.ObserveRequest(domain.TriggerAPI, "busy")
	m.ObserveRequest(domain.TriggerAPI, "busy")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.passes.WithLabelValues("startup", "aborted")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("api", "busy")))
}

func TestHandler(t *testing.T) {
	m := NewManager()
	m.ObserveRequest(domain.TriggerSchedule, "accepted")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `coversync_pass_requests_total{result="accepted",trigger="schedule"} 1`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
	assert.NotNil(t, m.Registry())
}
