package providers

import (
	"context"
	"errors"
	"time"

	"github.com/samber/do/v2"
	"github.com/spf13/afero"

	"github.com/coversync/coversync-server/internal/config"
	"github.com/coversync/coversync-server/internal/detector"
	"github.com/coversync/coversync-server/internal/domain"
	"github.com/coversync/coversync-server/internal/logger"
	"github.com/coversync/coversync-server/internal/mediux"
	"github.com/coversync/coversync-server/internal/metrics"
	"github.com/coversync/coversync-server/internal/reconcile"
	"github.com/coversync/coversync-server/internal/scheduler"
	"github.com/coversync/coversync-server/internal/watcher"
)

// LoopHandle wraps the pass loop with its context for lifecycle management.
type LoopHandle struct {
	*reconcile.Loop
	cancel context.CancelFunc
	done   chan struct{}
}

// Shutdown implements do.Shutdownable. A pass in flight stops at its next
// context check.
func (h *LoopHandle) Shutdown() error {
	h.cancel()
	select {
	case <-h.done:
		return nil
	case <-time.After(shutdownTimeout):
		return errors.New("pass loop did not stop in time")
	}
}

// ProvideLoop provides the pass loop and starts it in the background.
func ProvideLoop(i do.Injector) (*LoopHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)
	pass := do.MustInvoke[*reconcile.Pass](i)
	mgr := do.MustInvoke[*metrics.Manager](i)

	loop := reconcile.NewLoop(pass, mgr, log.Component("loop").Logger)

	ctx, cancel := context.WithCancel(context.Background())
	loop.Restore(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loop.Run(ctx)
	}()

	log.Info("Pass loop started")

	return &LoopHandle{Loop: loop, cancel: cancel, done: done}, nil
}

// SchedulerHandle wraps the scheduler with shutdown capability.
type SchedulerHandle struct {
	*scheduler.Scheduler
}

// Shutdown implements do.Shutdownable.
func (h *SchedulerHandle) Shutdown() error {
	h.Stop()
	return nil
}

// ProvideScheduler provides the scheduled and change-check triggers.
func ProvideScheduler(i do.Injector) (*SchedulerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	loopHandle := do.MustInvoke[*LoopHandle](i)
	det := do.MustInvoke[*detector.Detector](i)

	s, err := scheduler.New(loopHandle.Loop, det, scheduler.Options{
		Times:               cfg.Schedule.Times,
		ChangeCheckInterval: cfg.Schedule.ChangeCheckInterval,
		Location:            time.Local,
	}, log.Component("scheduler").Logger)
	if err != nil {
		return nil, err
	}

	s.Start(context.Background())

	return &SchedulerHandle{Scheduler: s}, nil
}

// FileWatcherHandle wraps the file watcher with shutdown capability.
type FileWatcherHandle struct {
	*watcher.Watcher
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *FileWatcherHandle) Shutdown() error {
	h.cancel()
	if h.Watcher == nil {
		return nil
	}
	return h.Watcher.Stop()
}

// ProvideFileWatcher provides the drop watcher over pending-intake. The
// no-match area is only written by passes and is rescanned by each of them.
func ProvideFileWatcher(i do.Injector) (*FileWatcherHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	loopHandle := do.MustInvoke[*LoopHandle](i)

	if !cfg.Watch.Enabled {
		log.Info("File watcher disabled by configuration")
		return &FileWatcherHandle{cancel: func() {}}, nil
	}

	w, err := watcher.New(log.Component("watcher").Logger, watcher.Options{
		SettleDelay: cfg.Watch.SettleDelay,
	})
	if err != nil {
		return nil, err
	}

	if err := w.Watch(cfg.Dirs.Pending); err != nil {
		_ = w.Stop()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		if err := w.Start(ctx); err != nil {
			log.Error("File watcher error", "error", err)
		}
	}()
	go watcher.Forward(ctx, w.Events(), w.Errors(), loopHandle.Loop, log.Component("watcher").Logger)

	log.Info("File watcher started", "path", cfg.Dirs.Pending)

	return &FileWatcherHandle{Watcher: w, cancel: cancel}, nil
}

// RequestStartupPass queues the initial pass once every trigger is wired.
func RequestStartupPass(i do.Injector) {
	log := do.MustInvoke[*logger.Logger](i)
	loopHandle := do.MustInvoke[*LoopHandle](i)

	res := loopHandle.Request(domain.TriggerStartup)
	log.Info("Startup pass requested", "result", res)
}

// SetDownloaderHandle wraps the mediux set downloader. Downloader is nil
// when the downloader is disabled.
type SetDownloaderHandle struct {
	Downloader *mediux.Downloader
	client     *mediux.Client
}

// Shutdown implements do.Shutdownable.
func (h *SetDownloaderHandle) Shutdown() error {
	if h.Downloader == nil {
		return nil
	}
	h.Downloader.Stop()
	h.client.Close()
	return nil
}

// ProvideSetDownloader provides the mediux set downloader and starts polling
// its queue file. Downloaded archives land in pending-intake; when the
// watcher is off a pass is requested directly.
func ProvideSetDownloader(i do.Injector) (*SetDownloaderHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	fsys := do.MustInvoke[afero.Fs](i)
	loopHandle := do.MustInvoke[*LoopHandle](i)

	if !cfg.Mediux.Enabled {
		log.Info("Set downloader disabled by configuration")
		return &SetDownloaderHandle{}, nil
	}

	client := mediux.New(mediux.Config{
		SiteURL:  cfg.Mediux.SiteURL,
		AssetURL: cfg.Mediux.AssetURL,
		Timeout:  cfg.Mediux.Timeout,
	}, log.Component("mediux").Logger)

	dl := mediux.NewDownloader(fsys, client, mediux.Options{
		QueueFile:    cfg.Mediux.QueueFile,
		Pending:      cfg.Dirs.Pending,
		Workers:      cfg.Pass.Workers,
		PollInterval: cfg.Mediux.PollInterval,
	}, log.Component("mediux").Logger)
	if !cfg.Watch.Enabled {
		dl.OnDownloaded(func(int) {
			res := loopHandle.Request(domain.TriggerDownload)
			log.Info("Pass requested after set download", "result", res)
		})
	}
	dl.Start(context.Background())

	return &SetDownloaderHandle{Downloader: dl, client: client}, nil
}
