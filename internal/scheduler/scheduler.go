// Package scheduler requests passes at fixed times of day and whenever the
// catalog summary reports changes.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/coversync/coversync-server/internal/detector"
	"github.com/coversync/coversync-server/internal/domain"
	"github.com/coversync/coversync-server/internal/reconcile"
)

// Requester accepts pass requests. Implemented by reconcile.Loop.
type Requester interface {
	Request(trigger domain.Trigger) reconcile.RequestResult
}

// Checker reports catalog changes since the last committed pass.
type Checker interface {
	Check(ctx context.Context) (*detector.Diff, error)
}

// Options configures a Scheduler.
type Options struct {
	// Times are HH:MM entries in Location.
	Times               []string
	ChangeCheckInterval time.Duration
	Location            *time.Location
}

// Scheduler owns the cron entries and the change-check ticker.
type Scheduler struct {
	cron     *cron.Cron
	req      Requester
	checker  Checker
	interval time.Duration
	logger   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// CronSpec turns "HH:MM" into a daily cron spec.
func CronSpec(hhmm string) (string, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(hhmm), ":")
	if !ok {
		return "", fmt.Errorf("scheduled time %q: want HH:MM", hhmm)
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("scheduled time %q: bad hour", hhmm)
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 || len(m) != 2 {
		return "", fmt.Errorf("scheduled time %q: bad minute", hhmm)
	}
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}

// New creates a scheduler. checker may be nil, which disables change checks.
func New(req Requester, checker Checker, opts Options, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	s := &Scheduler{
		cron:     cron.New(cron.WithLocation(loc)),
		req:      req,
		checker:  checker,
		interval: opts.ChangeCheckInterval,
		logger:   logger,
	}
	for _, t := range opts.Times {
		spec, err := CronSpec(t)
		if err != nil {
			return nil, err
		}
		if _, err := s.cron.AddFunc(spec, s.scheduled); err != nil {
			return nil, fmt.Errorf("add schedule %q: %w", t, err)
		}
	}
	return s, nil
}

// Entries returns the number of scheduled times.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// Start starts the cron runner and the change-check ticker.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()

	if s.checker == nil || s.interval <= 0 {
		s.logger.Info("scheduler started", "times", s.Entries())
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.CheckChanges(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
	s.logger.Info("scheduler started", "times", s.Entries(), "change_check_interval", s.interval)
}

// Stop stops both runners and waits for running jobs.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.cron.Stop().Done()
	s.wg.Wait()
}

func (s *Scheduler) scheduled() {
	res := s.req.Request(domain.TriggerSchedule)
	s.logger.Info("scheduled pass requested", "result", res)
}

// CheckChanges runs one change check and requests a pass when the catalog
// moved. It reports whether a pass was requested.
func (s *Scheduler) CheckChanges(ctx context.Context) bool {
	diff, err := s.checker.Check(ctx)
	if err != nil {
		s.logger.Warn("change check failed", "error", err)
		return false
	}
	if !diff.Dirty() {
		return false
	}
	res := s.req.Request(domain.TriggerChange)
	s.logger.Info("catalog changed",
		"added", len(diff.Added),
		"removed", len(diff.Removed),
		"changed", len(diff.Changed),
		"result", res,
	)
	return true
}
