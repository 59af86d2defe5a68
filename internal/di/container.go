// Package di provides dependency injection configuration for the coversync server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/coversync/coversync-server/internal/catalog"
	"github.com/coversync/coversync-server/internal/config"
	"github.com/coversync/coversync-server/internal/detector"
	"github.com/coversync/coversync-server/internal/di/providers"
	"github.com/coversync/coversync-server/internal/intake"
	"github.com/coversync/coversync-server/internal/jellyfin"
	"github.com/coversync/coversync-server/internal/logger"
	"github.com/coversync/coversync-server/internal/matcher"
	"github.com/coversync/coversync-server/internal/metrics"
	"github.com/coversync/coversync-server/internal/mutator"
	"github.com/coversync/coversync-server/internal/reconcile"
	"github.com/coversync/coversync-server/internal/report"
	"github.com/coversync/coversync-server/internal/resolver"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideFs)
	do.Provide(injector, providers.ProvideMetrics)

	// Database layer
	do.Provide(injector, providers.ProvideDataLock)
	do.Provide(injector, providers.ProvideStore)

	// Collaborators
	do.Provide(injector, providers.ProvideJellyfinClient)
	do.Provide(injector, providers.ProvideResolver)

	// Pipeline
	do.Provide(injector, providers.ProvideCatalog)
	do.Provide(injector, providers.ProvideDetector)
	do.Provide(injector, providers.ProvideMatcher)
	do.Provide(injector, providers.ProvideMutator)
	do.Provide(injector, providers.ProvideIntakeScanner)
	do.Provide(injector, providers.ProvideReportWriter)
	do.Provide(injector, providers.ProvidePass)

	// Workers
	do.Provide(injector, providers.ProvideLoop)
	do.Provide(injector, providers.ProvideScheduler)
	do.Provide(injector, providers.ProvideFileWatcher)
	do.Provide(injector, providers.ProvideSetDownloader)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services and starts the triggers.
// This triggers lazy initialization of all core services.
func Bootstrap(injector *do.RootScope) error {
	// Invoke core services to trigger initialization
	_ = do.MustInvoke[*config.Config](injector)
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[*metrics.Manager](injector)
	_ = do.MustInvoke[*providers.DataLockHandle](injector)
	_ = do.MustInvoke[*providers.StoreHandle](injector)
	_ = do.MustInvoke[*jellyfin.Client](injector)
	_ = do.MustInvoke[*resolver.Resolver](injector)
	_ = do.MustInvoke[*catalog.Index](injector)
	_ = do.MustInvoke[*detector.Detector](injector)
	_ = do.MustInvoke[*matcher.Matcher](injector)
	_ = do.MustInvoke[*mutator.Mutator](injector)
	_ = do.MustInvoke[*intake.Scanner](injector)
	_ = do.MustInvoke[*report.Writer](injector)
	_ = do.MustInvoke[*reconcile.Pass](injector)

	// Workers
	_ = do.MustInvoke[*providers.LoopHandle](injector)
	_ = do.MustInvoke[*providers.SchedulerHandle](injector)
	_ = do.MustInvoke[*providers.FileWatcherHandle](injector)
	_ = do.MustInvoke[*providers.SetDownloaderHandle](injector)

	// Server
	_ = do.MustInvoke[*providers.HTTPServerHandle](injector)

	providers.RequestStartupPass(injector)

	return nil
}
