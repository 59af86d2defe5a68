package providers

import (
	"path/filepath"
	"time"

	"github.com/samber/do/v2"
	"github.com/spf13/afero"

	"github.com/coversync/coversync-server/internal/catalog"
	"github.com/coversync/coversync-server/internal/config"
	"github.com/coversync/coversync-server/internal/detector"
	"github.com/coversync/coversync-server/internal/intake"
	"github.com/coversync/coversync-server/internal/jellyfin"
	"github.com/coversync/coversync-server/internal/logger"
	"github.com/coversync/coversync-server/internal/matcher"
	"github.com/coversync/coversync-server/internal/metrics"
	"github.com/coversync/coversync-server/internal/mutator"
	"github.com/coversync/coversync-server/internal/reconcile"
	"github.com/coversync/coversync-server/internal/report"
	"github.com/coversync/coversync-server/internal/resolver"
	"github.com/coversync/coversync-server/internal/tmdb"
)

const catalogRetryDelay = 2 * time.Second

// ProvideFs provides the filesystem the pipeline works on.
func ProvideFs(i do.Injector) (afero.Fs, error) {
	return afero.NewOsFs(), nil
}

// ProvideJellyfinClient provides the catalog collaborator client.
func ProvideJellyfinClient(i do.Injector) (*jellyfin.Client, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	return jellyfin.New(jellyfin.Config{
		BaseURL:         cfg.Jellyfin.URL,
		APIKey:          cfg.Jellyfin.APIKey,
		Timeout:         cfg.Jellyfin.Timeout,
		IncludeEpisodes: cfg.Jellyfin.IncludeEpisodes,
	}, log.Component("jellyfin").Logger), nil
}

// ProvideResolver provides the alternate title resolver. Without a TMDB key
// the resolver is disabled and matching uses primary titles only.
func ProvideResolver(i do.Injector) (*resolver.Resolver, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)

	var lookup resolver.Lookup
	if cfg.TitleLookupActive() {
		lookup = tmdb.New(tmdb.Config{
			BaseURL:   cfg.TMDB.BaseURL,
			APIKey:    cfg.TMDB.APIKey,
			Languages: cfg.TMDB.Languages,
			Timeout:   cfg.TMDB.Timeout,
		}, log.Component("tmdb").Logger)
		log.Info("Title lookup enabled", "languages", cfg.TMDB.Languages)
	} else {
		log.Info("Title lookup disabled")
	}

	return resolver.New(lookup, storeHandle.Store, cfg.TMDB.CacheTTL, log.Component("resolver").Logger), nil
}

// ProvideCatalog provides the catalog index.
func ProvideCatalog(i do.Injector) (*catalog.Index, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	client := do.MustInvoke[*jellyfin.Client](i)

	return catalog.New(client, catalog.Options{
		ChunkSize:  cfg.Jellyfin.ChunkSize,
		RetryDelay: catalogRetryDelay,
	}, log.Component("catalog").Logger), nil
}

// ProvideDetector provides the catalog change detector.
func ProvideDetector(i do.Injector) (*detector.Detector, error) {
	log := do.MustInvoke[*logger.Logger](i)
	client := do.MustInvoke[*jellyfin.Client](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)

	return detector.New(client, storeHandle.Store, log.Component("detector").Logger), nil
}

// ProvideMatcher provides the matcher with its blacklist.
func ProvideMatcher(i do.Injector) (*matcher.Matcher, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	fsys := do.MustInvoke[afero.Fs](i)

	var bl *matcher.Blacklist
	if cfg.Match.BlacklistEnabled {
		loaded, err := matcher.LoadBlacklist(fsys, cfg.Match.BlacklistPath)
		if err != nil {
			return nil, err
		}
		bl = loaded
		log.Info("Blacklist loaded", "path", cfg.Match.BlacklistPath)
	}

	return matcher.New(bl, matcher.Options{
		TieBreak:    cfg.Match.TieBreak,
		AutoResolve: cfg.Match.AutoResolve,
	}), nil
}

// ProvideMutator provides the cover mutator and creates the lifecycle
// directories.
func ProvideMutator(i do.Injector) (*mutator.Mutator, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	fsys := do.MustInvoke[afero.Fs](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)

	layout := mutator.Layout{
		Pending:  cfg.Dirs.Pending,
		Cover:    cfg.Dirs.Cover,
		NoMatch:  cfg.Dirs.NoMatch,
		Consumed: cfg.Dirs.Consumed,
		Replaced: cfg.Dirs.Replaced,
	}
	if err := layout.Ensure(fsys); err != nil {
		return nil, err
	}

	log.Info("Lifecycle directories ready", "root", cfg.Dirs.Root)
	return mutator.New(fsys, layout, storeHandle.Store, log.Component("mutator").Logger), nil
}

// ProvideIntakeScanner provides the intake scanner.
func ProvideIntakeScanner(i do.Injector) (*intake.Scanner, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	fsys := do.MustInvoke[afero.Fs](i)
	mut := do.MustInvoke[*mutator.Mutator](i)

	return intake.New(fsys, mut.Layout(), mut, intake.Options{
		ConvertToJPEG: cfg.Pass.ConvertToJPEG,
	}, log.Component("intake").Logger), nil
}

// ProvideReportWriter provides the report writer.
func ProvideReportWriter(i do.Injector) (*report.Writer, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	fsys := do.MustInvoke[afero.Fs](i)

	return report.NewWriter(fsys, filepath.Join(cfg.Data.BasePath, "reports"), log.Component("report").Logger), nil
}

// ProvideMetrics provides the Prometheus metrics manager.
func ProvideMetrics(i do.Injector) (*metrics.Manager, error) {
	return metrics.NewManager(), nil
}

// ProvidePass provides the reconciliation pass.
func ProvidePass(i do.Injector) (*reconcile.Pass, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	client := do.MustInvoke[*jellyfin.Client](i)

	deps := reconcile.Deps{
		Fs:        do.MustInvoke[afero.Fs](i),
		Index:     do.MustInvoke[*catalog.Index](i),
		Detector:  do.MustInvoke[*detector.Detector](i),
		Scanner:   do.MustInvoke[*intake.Scanner](i),
		Resolver:  do.MustInvoke[*resolver.Resolver](i),
		Matcher:   do.MustInvoke[*matcher.Matcher](i),
		Mutator:   do.MustInvoke[*mutator.Mutator](i),
		Reports:   do.MustInvoke[*report.Writer](i),
		Registry:  storeHandle.Store,
		Publisher: client,
	}

	return reconcile.NewPass(deps, reconcile.Options{
		Workers: cfg.Pass.Workers,
		Publish: cfg.Pass.Publish,
	}, log.Component("reconcile").Logger), nil
}
