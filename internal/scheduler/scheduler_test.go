package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coversync/coversync-server/internal/detector"
	"github.com/coversync/coversync-server/internal/domain"
	"github.com/coversync/coversync-server/internal/reconcile"
)

type fakeRequester struct {
	mu       sync.Mutex
	triggers []domain.Trigger
}

func (f *fakeRequester) Request(trigger domain.Trigger) reconcile.RequestResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggers = append(f.triggers, trigger)
	return reconcile.Accepted
}

func (f *fakeRequester) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.triggers)
}

type fakeChecker struct {
	diff *detector.Diff
	err  error
}

func (f *fakeChecker) Check(context.Context) (*detector.Diff, error) {
	return f.diff, f.err
}

func TestCronSpec(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "03:00", want: "0 3 * * *"},
		{in: "23:45", want: "45 23 * * *"},
		{in: " 7:05 ", want: "5 7 * * *"},
		{in: "24:00", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "12:5", wantErr: true},
		{in: "noon", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := CronSpec(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_Entries(t *testing.T) {
	s, err := New(&fakeRequester{}, nil, Options{Times: []string{"03:00", "15:30"}, Location: time.UTC}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Entries())

	_, err = New(&fakeRequester{}, nil, Options{Times: []string{"3pm"}}, nil)
	assert.Error(t, err)
}

func TestScheduledEntryRequestsPass(t *testing.T) {
	req := &fakeRequester{}
	s, err := New(req, nil, Options{Times: []string{"03:00"}, Location: time.UTC}, nil)
	require.NoError(t, err)

	entries := s.cron.Entries()
	require.Len(t, entries, 1)
	entries[0].Job.Run()

	assert.Equal(t, []domain.Trigger{domain.TriggerSchedule}, req.triggers)
	next := entries[0].Schedule.Next(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC), next)
}

func TestCheckChanges(t *testing.T) {
	tests := []struct {
		name    string
		checker *fakeChecker
		want    bool
	}{
		{name: "dirty", checker: &fakeChecker{diff: &detector.Diff{Changed: []string{"m1"}}}, want: true},
		{name: "clean", checker: &fakeChecker{diff: &detector.Diff{}}, want: false},
		{name: "error", checker: &fakeChecker{err: errors.New("timeout")}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &fakeRequester{}
			s, err := New(req, tt.checker, Options{}, nil)
			require.NoError(t, err)

			assert.Equal(t, tt.want, s.CheckChanges(context.Background()))
			if tt.want {
				assert.Equal(t, []domain.Trigger{domain.TriggerChange}, req.triggers)
			} else {
				assert.Empty(t, req.triggers)
			}
		})
	}
}

func TestStart_TickerChecksChanges(t *testing.T) {
	req := &fakeRequester{}
	checker := &fakeChecker{diff: &detector.Diff{Added: []string{"m1"}}}
	s, err := New(req, checker, Options{ChangeCheckInterval: 5 * time.Millisecond}, nil)
	require.NoError(t, err)

	s.Start(context.Background())
	require.Eventually(t, func() bool { return req.count() > 0 }, 5*time.Second, 5*time.Millisecond)
	s.Stop()

	n := req.count()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, req.count())
}
