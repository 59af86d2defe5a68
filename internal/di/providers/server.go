package providers

import (
	"context"
	"net/http"

	"github.com/samber/do/v2"

	"github.com/coversync/coversync-server/internal/api"
	"github.com/coversync/coversync-server/internal/config"
	"github.com/coversync/coversync-server/internal/logger"
	"github.com/coversync/coversync-server/internal/metrics"
)

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Server.Shutdown(ctx)
}

// ProvideHTTPServer provides the HTTP server.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	loopHandle := do.MustInvoke[*LoopHandle](i)
	mgr := do.MustInvoke[*metrics.Manager](i)
	sets := do.MustInvoke[*SetDownloaderHandle](i)

	opts := api.Options{
		Version:        Version,
		TriggerEnabled: cfg.Server.TriggerEnabled,
		Metrics:        mgr.Handler(),
	}
	if sets.Downloader != nil {
		opts.Sets = sets.Downloader
	}
	handler := api.NewServer(loopHandle.Loop, storeHandle.Store, opts, log.Component("api").Logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start in background
	go func() {
		log.Info("HTTP server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", "error", err)
		}
	}()

	return &HTTPServerHandle{Server: srv}, nil
}
