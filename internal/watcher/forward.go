package watcher

import (
	"context"
	"log/slog"

	"github.com/coversync/coversync-server/internal/domain"
	"github.com/coversync/coversync-server/internal/reconcile"
)

// Requester accepts pass requests. Implemented by reconcile.Loop.
type Requester interface {
	Request(trigger domain.Trigger) reconcile.RequestResult
}

// Forward turns settled additions and modifications into watch pass
// requests until ctx is done or events is closed. Removals are ignored;
// the loop coalesces bursts.
func Forward(ctx context.Context, events <-chan Event, errs <-chan error, req Requester, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Type == EventRemoved {
				continue
			}
			res := req.Request(domain.TriggerWatch)
			logger.Debug("drop settled", "path", ev.Path, "type", ev.Type, "result", res)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logger.Warn("file watcher error", "error", err)
		}
	}
}
