package reconcile

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/coversync/coversync-server/internal/catalog"
	"github.com/coversync/coversync-server/internal/detector"
	"github.com/coversync/coversync-server/internal/domain"
	domainerrors "github.com/coversync/coversync-server/internal/errors"
	"github.com/coversync/coversync-server/internal/intake"
	"github.com/coversync/coversync-server/internal/matcher"
	"github.com/coversync/coversync-server/internal/media/images"
	"github.com/coversync/coversync-server/internal/mutator"
	"github.com/coversync/coversync-server/internal/parser"
	"github.com/coversync/coversync-server/internal/report"
	"github.com/coversync/coversync-server/internal/resolver"
)

// Registry persists the unmatched registry and the last report.
type Registry interface {
	RecordUnmatched(ctx context.Context, key string, ref domain.CoverReference, reason string, candidates []string, now time.Time) (*domain.UnmatchedEntry, error)
	ClearUnmatched(ctx context.Context, key string) error
	ListUnmatched(ctx context.Context) ([]domain.UnmatchedEntry, error)
	PruneUnmatched(ctx context.Context, keep map[string]bool) (int, error)
	SaveLastReport(ctx context.Context, r *domain.Report) error
	LastReport(ctx context.Context) (*domain.Report, error)
}

// Publisher uploads placed artwork to the media server.
type Publisher interface {
	UploadImage(ctx context.Context, itemID, imageType, contentType string, data []byte) error
}

// Deps are the collaborators of a pass. Detector and Publisher are optional.
type Deps struct {
	Fs        afero.Fs
	Index     *catalog.Index
	Detector  *detector.Detector
	Scanner   *intake.Scanner
	Resolver  *resolver.Resolver
	Matcher   *matcher.Matcher
	Mutator   *mutator.Mutator
	Reports   *report.Writer
	Registry  Registry
	Publisher Publisher
}

// Options tunes a pass.
type Options struct {
	Workers int
	Publish bool
}

// Pass runs one reconciliation from Scanning to Reporting.
type Pass struct {
	deps    Deps
	opts    Options
	logger  *slog.Logger
	now     func() time.Time
	onState func(domain.PassState)
}

// NewPass creates a pass runner.
func NewPass(deps Deps, opts Options, logger *slog.Logger) *Pass {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pass{deps: deps, opts: opts, logger: logger, now: time.Now, onState: func(domain.PassState) {}}
}

// item carries one drop through the pipeline.
type item struct {
	drop       intake.Drop
	ref        domain.CoverReference
	parseErr   *parser.ParseError
	alternates []string
	result     domain.MatchResult
	target     *domain.LibraryEntry
}

func (it *item) key() string {
	if it.parseErr != nil && it.ref.Title == "" {
		return "unparsed|" + it.drop.RelPath
	}
	return it.ref.Key()
}

// run is the mutable state of one pass.
type run struct {
	id      string
	trigger domain.Trigger
	snap    *catalog.Snapshot
	fresh   bool
	diff    *detector.Diff
	items   []*item
	report  *domain.Report
	keep    map[string]bool

	mu sync.Mutex
}

func (r *run) addError(path string, code domainerrors.Code, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report.Errors = append(r.report.Errors, domain.ReferenceError{Path: path, Code: string(code), Message: msg})
}

// Execute runs a full pass. It fails only when no catalog data is
// available or the intake area cannot be read; per-file failures end up in
// the report.
func (p *Pass) Execute(ctx context.Context, trigger domain.Trigger, started func(id string)) (*domain.Report, error) {
	r := &run{
		id:      uuid.NewString(),
		trigger: trigger,
		keep:    make(map[string]bool),
	}
	r.report = &domain.Report{PassID: r.id, Trigger: trigger, StartedAt: p.now()}
	if started != nil {
		started(r.id)
	}
	log := p.logger.With("pass_id", r.id, "trigger", trigger)
	log.Info("pass started")

	defer p.onState(domain.StateIdle)

	p.onState(domain.StateScanning)
	if err := p.scan(ctx, r, log); err != nil {
		return nil, err
	}

	p.onState(domain.StateParsing)
	if err := p.parse(ctx, r); err != nil {
		return nil, err
	}

	p.onState(domain.StateResolving)
	if err := p.resolve(ctx, r); err != nil {
		return nil, err
	}

	p.onState(domain.StateMatching)
	p.match(r)

	p.onState(domain.StateMutating)
	p.mutate(ctx, r, log)

	p.onState(domain.StateReporting)
	if err := p.finish(ctx, r, log); err != nil {
		return nil, err
	}

	log.Info("pass complete",
		"matched", r.report.Matched,
		"unmatched", r.report.Unmatched,
		"ambiguous", r.report.Ambiguous,
		"archived", r.report.Archived,
		"errors", len(r.report.Errors),
		"duration", r.report.Duration(),
	)
	return r.report, nil
}

// scan refreshes the catalog, diffs signatures and collects drops.
func (p *Pass) scan(ctx context.Context, r *run, log *slog.Logger) error {
	snap, err := p.deps.Index.Refresh(ctx)
	if err != nil {
		snap = p.deps.Index.Current()
		if snap == nil {
			return fmt.Errorf("no catalog available: %w", err)
		}
		log.Warn("catalog refresh failed, using previous snapshot", "error", err, "entries", snap.Len())
		r.addError("", domainerrors.CodeCatalogRefresh, err.Error())
	} else {
		r.fresh = true
	}
	r.snap = snap
	r.report.CatalogSize = snap.Len()

	if p.deps.Detector != nil && r.fresh {
		summary := make(map[string]string, snap.Len())
		for _, s := range snap.Summary() {
			summary[s.ID] = s.Signature
		}
		diff, err := p.deps.Detector.Compare(ctx, summary)
		if err != nil {
			log.Warn("change detection skipped", "error", err)
		} else {
			r.diff = diff
			r.report.DirtyEntries = diff.Count()
		}
	}

	res, err := p.deps.Scanner.Scan(ctx)
	if err != nil {
		return fmt.Errorf("scan intake: %w", err)
	}
	r.report.Errors = append(r.report.Errors, res.Errors...)
	r.items = make([]*item, len(res.Drops))
	for i, d := range res.Drops {
		r.items[i] = &item{drop: d}
	}
	return nil
}

func (p *Pass) parse(ctx context.Context, r *run) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)
	for _, it := range r.items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ref, err := parser.Parse(it.drop.RelPath)
			it.ref = ref
			it.ref.SourcePath = it.drop.AbsPath
			var perr *parser.ParseError
			if errors.As(err, &perr) {
				it.parseErr = perr
			} else if err != nil {
				it.parseErr = &parser.ParseError{Path: it.drop.RelPath, Reason: err.Error()}
			}
			return nil
		})
	}
	return g.Wait()
}

// resolve fetches alternate titles for references the primary title does
// not find. A failed lookup is reported and the drop matches on its primary
// title alone.
func (p *Pass) resolve(ctx context.Context, r *run) error {
	if !p.deps.Resolver.Enabled() {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)
	for _, it := range r.items {
		if it.parseErr != nil || !p.deps.Matcher.NeedsAlternates(r.snap, it.ref) {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			alts, err := p.deps.Resolver.Resolve(gctx, it.ref)
			if err != nil {
				r.addError(it.drop.AbsPath, domainerrors.CodeLookupFailure, err.Error())
			}
			it.alternates = alts
			return nil
		})
	}
	return g.Wait()
}

func (p *Pass) match(r *run) {
	for _, it := range r.items {
		if it.parseErr != nil {
			reason := domain.ReasonUnrecognized
			if it.parseErr.Reason == parser.ReasonMissingYear {
				reason = domain.ReasonMissingYear
			}
			it.result = domain.MatchResult{Reference: it.ref, Reason: reason}
			r.addError(it.drop.AbsPath, domainerrors.CodeParse, it.parseErr.Error())
			continue
		}
		it.result = p.deps.Matcher.Match(r.snap, it.ref, it.alternates)
		it.target = p.deps.Matcher.Target(r.snap, it.result)
	}
}

// mutate places matched drops. Drops sharing a destination folder run in
// order on one worker; different folders run concurrently.
func (p *Pass) mutate(ctx context.Context, r *run, log *slog.Logger) {
	if saved, err := p.deps.Mutator.RetryHistory(ctx); err != nil {
		log.Warn("history records still unsaved", "error", err)
		r.addError("", domainerrors.CodeHistoryRecord, err.Error())
	} else if saved > 0 {
		log.Info("saved queued history records", "count", saved)
	}

	groups := make(map[string][]*item)
	var order []string
	for _, it := range r.items {
		if it.target == nil {
			p.unmatched(ctx, r, it, log)
			continue
		}
		folder := filepath.Dir(mutator.Slot(*it.target, it.ref, it.drop.AbsPath))
		if _, ok := groups[folder]; !ok {
			order = append(order, folder)
		}
		groups[folder] = append(groups[folder], it)
	}
	slices.Sort(order)

	wp := pool.New().WithMaxGoroutines(p.opts.Workers)
	for _, folder := range order {
		batch := groups[folder]
		wp.Go(func() {
			for _, it := range batch {
				p.place(ctx, r, it, log)
			}
		})
	}
	wp.Wait()
}

func (p *Pass) place(ctx context.Context, r *run, it *item, log *slog.Logger) {
	placement, err := p.deps.Mutator.Apply(ctx, *it.target, it.ref, it.drop.AbsPath)
	if err != nil {
		code := domainerrors.CodeInternal
		switch {
		case errors.Is(err, domainerrors.ErrMutationConflict):
			code = domainerrors.CodeMutationConflict
		case errors.Is(err, domainerrors.ErrHistoryRecord):
			// The artwork is placed; only its History Record waits for a retry.
			code = domainerrors.CodeHistoryRecord
		}
		log.Warn("placement failed", "path", it.drop.AbsPath, "entry_id", it.target.ID, "error", err)
		r.addError(it.drop.AbsPath, code, err.Error())
		if placement == nil {
			// Archive drops would be lost with the extraction area.
			if it.drop.Origin == intake.OriginArchive {
				if _, herr := p.deps.Mutator.Hold(it.drop.AbsPath, it.drop.RelPath); herr != nil {
					log.Warn("could not hold drop", "path", it.drop.AbsPath, "error", herr)
				}
			}
			return
		}
	}

	r.mu.Lock()
	r.report.Matched++
	r.report.Archived += len(placement.History)
	r.mu.Unlock()

	if err := p.deps.Registry.ClearUnmatched(ctx, it.key()); err != nil {
		log.Warn("could not clear registry entry", "key", it.key(), "error", err)
	}

	if p.opts.Publish && p.deps.Publisher != nil && !placement.Unchanged {
		p.publish(ctx, r, it, placement, log)
	}
}

// publish uploads a placed image when the target entry owns that image.
// A show standing in for a missing season or episode is skipped.
func (p *Pass) publish(ctx context.Context, r *run, it *item, placement *mutator.Placement, log *slog.Logger) {
	if (it.ref.Kind == domain.KindSeason || it.ref.Kind == domain.KindEpisode) && it.target.Kind != it.ref.Kind {
		return
	}
	imageType := "Primary"
	if it.ref.Kind == domain.KindBackdrop {
		imageType = "Backdrop"
	}
	data, err := afero.ReadFile(p.deps.Fs, placement.Dest)
	if err != nil {
		r.addError(placement.Dest, domainerrors.CodeInternal, err.Error())
		return
	}
	if err := p.deps.Publisher.UploadImage(ctx, it.target.ID, imageType, images.ContentType(data), data); err != nil {
		log.Warn("publish failed", "entry_id", it.target.ID, "error", err)
		r.addError(placement.Dest, domainerrors.CodeLookupFailure, err.Error())
		return
	}
	r.mu.Lock()
	r.report.Published++
	r.mu.Unlock()
}

// unmatched records a drop that will not be placed. Loose drops stay where
// they are; archive entries move to no-match.
func (p *Pass) unmatched(ctx context.Context, r *run, it *item, log *slog.Logger) {
	res := it.result
	switch res.Outcome {
	case domain.OutcomeAmbiguous:
		r.report.Ambiguous++
	default:
		r.report.Unmatched++
	}

	ref := it.ref
	if it.drop.Origin == intake.OriginArchive {
		held, err := p.deps.Mutator.Hold(it.drop.AbsPath, it.drop.RelPath)
		if err != nil {
			log.Warn("could not hold unmatched drop", "path", it.drop.AbsPath, "error", err)
			r.addError(it.drop.AbsPath, domainerrors.CodeInternal, err.Error())
		} else {
			ref.SourcePath = held
		}
	}

	candidates := make([]string, 0, len(res.Candidates))
	for _, c := range res.Candidates {
		candidates = append(candidates, c.ID)
	}
	key := it.key()
	r.keep[key] = true
	if _, err := p.deps.Registry.RecordUnmatched(ctx, key, ref, res.Reason, candidates, p.now()); err != nil {
		log.Warn("could not record unmatched drop", "key", key, "error", err)
	}
	log.Debug("drop not placed", "path", it.drop.RelPath, "outcome", res.Outcome, "reason", res.Reason)
}

func (p *Pass) finish(ctx context.Context, r *run, log *slog.Logger) error {
	if _, err := p.deps.Registry.PruneUnmatched(ctx, r.keep); err != nil {
		log.Warn("could not prune registry", "error", err)
	}
	registry, err := p.deps.Registry.ListUnmatched(ctx)
	if err != nil {
		return fmt.Errorf("list unmatched: %w", err)
	}

	for key := range r.keep {
		r.report.UnmatchedKeys = append(r.report.UnmatchedKeys, key)
	}
	slices.Sort(r.report.UnmatchedKeys)

	layout := p.deps.Mutator.Layout()
	expected := r.snap.ExpectedFolders()
	if r.report.MissingFolders, err = report.MissingFolders(p.deps.Fs, layout.Cover, expected); err != nil {
		return fmt.Errorf("missing folders: %w", err)
	}
	if r.report.UnusedFolders, err = report.UnusedFolders(p.deps.Fs, layout.Cover, expected); err != nil {
		return fmt.Errorf("unused folders: %w", err)
	}
	slices.SortFunc(r.report.Errors, func(a, b domain.ReferenceError) int {
		return cmp.Or(cmp.Compare(a.Path, b.Path), cmp.Compare(a.Code, b.Code))
	})

	if err := p.deps.Scanner.Cleanup(ctx); err != nil {
		log.Warn("intake cleanup failed", "error", err)
	}

	r.report.CompletedAt = p.now()

	if err := p.deps.Reports.Write(r.report, registry); err != nil {
		log.Warn("could not write report files", "error", err)
	}
	if err := p.deps.Registry.SaveLastReport(ctx, r.report); err != nil {
		log.Warn("could not persist report", "error", err)
	}
	if r.diff != nil && p.deps.Detector != nil {
		if err := p.deps.Detector.Commit(ctx, r.diff.Summary); err != nil {
			log.Warn("could not commit signatures", "error", err)
		}
	}
	return nil
}
