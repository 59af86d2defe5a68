// Package reconcile runs the reconciliation state machine: one pass at a
// time, with at most one coalesced re-run queued behind it.
package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/coversync/coversync-server/internal/domain"
)

// RequestResult tells a caller what happened to its pass request.
type RequestResult string

// Request results.
const (
	// Accepted: the loop was idle and a pass starts now.
	Accepted RequestResult = "accepted"
	// Queued: a pass is running; one re-run will follow it.
	Queued RequestResult = "queued"
	// Busy: a pass is running and a re-run is already queued; the request
	// was coalesced into it.
	Busy RequestResult = "busy"
)

// Status is a point-in-time view of the loop.
type Status struct {
	State      domain.PassState `json:"state"`
	Running    bool             `json:"running"`
	Pending    bool             `json:"pending"`
	PassID     string           `json:"pass_id,omitempty"`
	LastReport *domain.Report   `json:"last_report,omitempty"`
	LastError  string           `json:"last_error,omitempty"`
}

// Observer receives loop events. Implemented by the metrics manager.
type Observer interface {
	ObserveReport(r *domain.Report, registrySize int)
	ObserveAbort(trigger domain.Trigger)
	ObserveRequest(trigger domain.Trigger, result string)
}

// Loop serializes passes. All entry points converge on Request; Run owns
// the single run slot.
type Loop struct {
	pass   *Pass
	logger *slog.Logger
	obs    Observer

	wake chan domain.Trigger

	mu             sync.Mutex
	running        bool
	pending        bool
	pendingTrigger domain.Trigger
	state          domain.PassState
	passID         string
	last           *domain.Report
	lastErr        string
	done           chan struct{}
}

// NewLoop creates a loop around pass. obs may be nil.
func NewLoop(pass *Pass, obs Observer, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loop{
		pass:   pass,
		logger: logger,
		obs:    obs,
		wake:   make(chan domain.Trigger, 1),
		state:  domain.StateIdle,
	}
	pass.onState = l.setState
	return l
}

// Restore loads the last persisted report so Status has something to show
// before the first pass.
func (l *Loop) Restore(ctx context.Context) {
	r, err := l.pass.deps.Registry.LastReport(ctx)
	if err != nil {
		l.logger.Warn("could not load last report", "error", err)
		return
	}
	l.mu.Lock()
	l.last = r
	l.mu.Unlock()
}

// Request asks for a pass. It never blocks.
func (l *Loop) Request(trigger domain.Trigger) RequestResult {
	l.mu.Lock()
	var res RequestResult
	switch {
	case !l.running:
		l.running = true
		l.done = make(chan struct{})
		l.wake <- trigger
		res = Accepted
	case !l.pending:
		l.pending = true
		l.pendingTrigger = trigger
		res = Queued
	default:
		res = Busy
	}
	l.mu.Unlock()

	l.logger.Debug("pass requested", "trigger", trigger, "result", res)
	if l.obs != nil {
		l.obs.ObserveRequest(trigger, string(res))
	}
	return res
}

// Run executes requested passes until ctx is cancelled. A pass in flight
// when ctx is cancelled stops at its next context check.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case trigger := <-l.wake:
			l.drain(ctx, trigger)
		}
	}
}

// drain runs trigger's pass and then the queued re-run, if any.
func (l *Loop) drain(ctx context.Context, trigger domain.Trigger) {
	for {
		l.runOne(ctx, trigger)

		l.mu.Lock()
		if l.pending && ctx.Err() == nil {
			trigger = l.pendingTrigger
			l.pending = false
			l.mu.Unlock()
			continue
		}
		l.pending = false
		l.running = false
		l.state = domain.StateIdle
		l.passID = ""
		close(l.done)
		l.mu.Unlock()
		return
	}
}

func (l *Loop) runOne(ctx context.Context, trigger domain.Trigger) {
	start := time.Now()
	report, err := l.pass.Execute(ctx, trigger, func(id string) {
		l.mu.Lock()
		l.passID = id
		l.mu.Unlock()
	})

	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil {
		l.lastErr = err.Error()
		l.logger.Error("pass aborted", "trigger", trigger, "error", err, "duration", time.Since(start))
		if l.obs != nil {
			l.obs.ObserveAbort(trigger)
		}
		return
	}
	l.lastErr = ""
	l.last = report
	if l.obs != nil {
		l.obs.ObserveReport(report, len(report.UnmatchedKeys))
	}
}

// Wait blocks until the loop is idle or ctx is done.
func (l *Loop) Wait(ctx context.Context) error {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return nil
	}
	done := l.done
	l.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns the current state and the last report.
func (l *Loop) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Status{
		State:      l.state,
		Running:    l.running,
		Pending:    l.pending,
		PassID:     l.passID,
		LastReport: l.last,
		LastError:  l.lastErr,
	}
}

func (l *Loop) setState(s domain.PassState) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}
