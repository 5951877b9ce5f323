package organizer

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"gitlab.com/tozd/go/errors"

	"github.com/tendant/photo-organizer/internal/classify"
	"github.com/tendant/photo-organizer/internal/config"
	"github.com/tendant/photo-organizer/internal/dedupe"
	"github.com/tendant/photo-organizer/internal/fsx"
	"github.com/tendant/photo-organizer/internal/ledger"
	"github.com/tendant/photo-organizer/internal/media"
	"github.com/tendant/photo-organizer/internal/scan"
)

// engine holds the per-run state shared by every mode.
type engine struct {
	opts Options
	mode Mode
	cfg  config.Config
	fs   afero.Fs

	dates DateResolver
	rules *classify.Classifier
	dupes *dedupe.Resolver

	// ledger is nil in dry runs.
	ledger  *ledger.Ledger
	summary Summary
}

func newEngine(ctx context.Context, mode Mode, opts Options, cfg config.Config) *engine {
	dates := opts.Dates
	if dates == nil {
		dates = media.NewResolver(ctx, opts.Fs, cfg)
	}
	measure := opts.Measure
	if measure == nil {
		measure = func(path string) (int, int, error) {
			return media.Dimensions(opts.Fs, path)
		}
	}
	return &engine{
		opts:    opts,
		mode:    mode,
		cfg:     cfg,
		fs:      opts.Fs,
		dates:   dates,
		rules:   classify.New(cfg, measure),
		dupes:   dedupe.New(opts.Fs),
		summary: newSummary(mode, opts.RunID, opts.DryRun, opts.Now()),
	}
}

// =============================================================================
// Setup
// =============================================================================

func normalizeConfig(ctx context.Context, cfg config.Config) config.Config {
	cfg, warnings := cfg.Normalize()
	for _, w := range warnings {
		zerolog.Ctx(ctx).Warn().Msg(w)
	}
	return cfg
}

// ledgerConfig returns the configuration a continued run works under: the
// ledger's own config row, with the runtime source and destination filling in
// only what the row leaves empty.
func ledgerConfig(ctx context.Context, l *ledger.Ledger, runtime config.Config) config.Config {
	logger := zerolog.Ctx(ctx)
	if !l.HasConfig() {
		logger.Warn().Str("ledger", l.Path()).Msg("ledger has no config row, using the runtime config")
		return normalizeConfig(ctx, runtime)
	}

	// only the directories are compared, the rest of the runtime config is ignored
	runtime, _ = runtime.Normalize()
	cfg := l.Config()
	if cfg.SourceDir == "" {
		cfg.SourceDir = runtime.SourceDir
	} else if runtime.SourceDir != "" && runtime.SourceDir != cfg.SourceDir {
		logger.Warn().Str("ledger_source", cfg.SourceDir).Str("source", runtime.SourceDir).Msg("using the source directory recorded in the ledger")
	}
	if cfg.DestDir == "" {
		cfg.DestDir = runtime.DestDir
	} else if runtime.DestDir != "" && runtime.DestDir != cfg.DestDir {
		logger.Warn().Str("ledger_dest", cfg.DestDir).Str("dest", runtime.DestDir).Msg("using the destination directory recorded in the ledger")
	}
	return normalizeConfig(ctx, cfg)
}

// prepareDirs checks the source tree and creates the destination. A dry run
// only checks that an existing destination is a directory.
func prepareDirs(fs afero.Fs, cfg config.Config, dryRun bool) error {
	if cfg.SourceDir == "" {
		return errors.Errorf("%w: no source directory configured", ErrSourceMissing)
	}
	if err := fsx.RequireDir(fs, cfg.SourceDir); err != nil {
		return errors.Errorf("%w: %s", ErrSourceMissing, err.Error())
	}
	if cfg.DestDir == "" {
		return errors.Errorf("%w: no destination directory configured", ErrDestUnusable)
	}

	if dryRun {
		exists, err := fsx.Exists(fs, cfg.DestDir)
		if err != nil {
			return errors.Errorf("%w: %s", ErrDestUnusable, err.Error())
		}
		if !exists {
			return nil
		}
		if err := fsx.RequireDir(fs, cfg.DestDir); err != nil {
			return errors.Errorf("%w: %s", ErrDestUnusable, err.Error())
		}
		return nil
	}
	if err := fsx.EnsureDir(fs, cfg.DestDir); err != nil {
		return errors.Errorf("%w: %s", ErrDestUnusable, err.Error())
	}
	return nil
}

func openLedger(ctx context.Context, fs afero.Fs, path string) (*ledger.Ledger, error) {
	l, err := ledger.Open(ctx, fs, path)
	if err != nil {
		return nil, errors.Errorf("%w: %s", ErrLedgerOpen, err.Error())
	}
	return l, nil
}

func (e *engine) enumerate(ctx context.Context) ([]scan.Entry, error) {
	entries, err := scan.New(e.fs, e.cfg, e.cfg.DestDir).Scan(ctx)
	if err != nil {
		if ierr := interrupted(ctx); ierr != nil {
			return nil, ierr
		}
		return nil, errors.Errorf("%w: %s", ErrSourceMissing, err.Error())
	}
	return entries, nil
}

// =============================================================================
// Per-file work
// =============================================================================

func (e *engine) newRecord(source string) ledger.Record {
	return ledger.Record{
		RunID:      e.opts.RunID,
		Mode:       string(e.mode),
		SourcePath: source,
	}
}

// analyze runs the full pipeline for one scanned file: date, classifier,
// duplicate check and copy. It returns the row and the bytes copied.
func (e *engine) analyze(ctx context.Context, path string) (ledger.Record, int64) {
	rec := e.newRecord(path)

	fi, err := e.fs.Stat(path)
	if err != nil {
		fail(&rec, "source unreadable", err)
		return rec, 0
	}
	rec.SizeBytes = fi.Size()

	cand := classify.Candidate{Path: path, Size: fi.Size()}
	var capture media.Capture
	if !e.rules.IsSystemPath(path) {
		capture = e.dates.DateFor(ctx, path, fi.ModTime())
		cand.HasMetadata = capture.Source.IsMetadata()
		rec.CaptureTime = capture.Time
		rec.DateSource = string(capture.Source)
	}

	res := e.rules.Classify(ctx, cand)
	switch res.Decision {
	case classify.SkipSystem:
		rec.Verdict = ledger.SkippedSystemPath
		rec.Reason = res.Reason
		return rec, 0
	case classify.SkipSmall:
		rec.Verdict = ledger.SkippedTooSmall
		rec.Reason = res.Reason
		return rec, 0
	case classify.SkipUnreadable:
		fail(&rec, res.Reason, res.Err)
		return rec, 0
	}

	dest := Destination(e.cfg, path, capture.Time)
	n := e.place(ctx, &rec, capture.Time, dest, res.Reason)
	return rec, n
}

// force places a flagged ledger row without consulting the classifier.
func (e *engine) force(ctx context.Context, row ledger.Record) (ledger.Record, int64) {
	rec := e.newRecord(row.SourcePath)

	fi, err := e.fs.Stat(row.SourcePath)
	if err != nil {
		fail(&rec, "source unreadable", err)
		return rec, 0
	}
	if fi.IsDir() {
		fail(&rec, "source unreadable", &fsx.PathTypeConflictError{Path: row.SourcePath, Want: "file", Got: "directory"})
		return rec, 0
	}
	rec.SizeBytes = fi.Size()

	captured, source := row.CaptureTime, row.DateSource
	if captured.IsZero() {
		c := e.dates.DateFor(ctx, row.SourcePath, fi.ModTime())
		captured, source = c.Time, string(c.Source)
	}
	rec.CaptureTime = captured
	rec.DateSource = source

	dest := row.DestPath
	if dest == "" {
		dest = Destination(e.cfg, row.SourcePath, captured)
	}
	n := e.place(ctx, &rec, captured, dest, "copy_anyway set on ledger line "+strconv.Itoa(row.Line))
	return rec, n
}

// place resolves collisions at dest and copies the source there.
func (e *engine) place(ctx context.Context, rec *ledger.Record, captured time.Time, dest, reason string) int64 {
	res, err := e.dupes.Resolve(ctx, dest, rec.SourcePath, captured)
	if err != nil {
		fail(rec, "duplicate check failed", err)
		return 0
	}
	rec.Hash = res.SourceHash

	if res.Action == dedupe.SkipIdentical {
		rec.Verdict = ledger.SkippedDuplicateIdentical
		rec.DestPath = res.Path
		rec.Reason = "identical file already at destination"
		return 0
	}

	if res.Action == dedupe.WriteRenamed {
		reason += ", renamed to avoid a name collision"
	}
	if e.opts.DryRun {
		rec.Verdict = ledger.Copied
		rec.DestPath = res.Path
		rec.Reason = reason + " (dry run)"
		return rec.SizeBytes
	}

	n, err := fsx.CopyNoOverwrite(e.fs, rec.SourcePath, res.Path)
	if err != nil {
		fail(rec, "copy failed", err)
		return 0
	}
	rec.Verdict = ledger.Copied
	rec.DestPath = res.Path
	rec.Reason = reason
	return n
}

func fail(rec *ledger.Record, reason string, err error) {
	rec.Verdict = ledger.SkippedError
	rec.Reason = reason
	rec.ErrorMessage = err.Error()
	rec.DestPath = ""
}

// commit appends rec to the ledger and reports it. A ledger that can no longer
// be written ends the run.
func (e *engine) commit(ctx context.Context, rec ledger.Record, copied int64) error {
	rec.Timestamp = e.opts.Now()
	if e.ledger != nil {
		if err := e.ledger.Append(rec); err != nil {
			return errors.Errorf("recording %s: %w", rec.SourcePath, err)
		}
	}
	e.summary.add(rec, copied)
	logRecord(ctx, rec)
	e.opts.Observer.OnFile(ctx, rec, e.summary)
	return nil
}

func logRecord(ctx context.Context, rec ledger.Record) {
	logger := zerolog.Ctx(ctx)
	var ev *zerolog.Event
	switch rec.Verdict {
	case ledger.Copied:
		ev = logger.Info()
	case ledger.SkippedError:
		ev = logger.Warn().Str("error", rec.ErrorMessage)
	default:
		ev = logger.Debug()
	}
	ev.Str("source", rec.SourcePath).
		Str("dest", rec.DestPath).
		Str("verdict", string(rec.Verdict)).
		Str("reason", rec.Reason).
		Int64("size", rec.SizeBytes).
		Str("date_source", rec.DateSource).
		Msg("file processed")
}

// =============================================================================
// Run loop
// =============================================================================

// runEntries processes scanned files in order. done reports sources a
// previous run already recorded.
func (e *engine) runEntries(ctx context.Context, entries []scan.Entry, done func(string) bool) (Summary, error) {
	e.summary.Total = len(entries)
	e.opts.Observer.OnStart(ctx, e.mode, len(entries))

	var err error
	for _, entry := range entries {
		if err = interrupted(ctx); err != nil {
			break
		}
		if done != nil && done(entry.Path) {
			e.summary.AlreadyDone++
			continue
		}
		rec, n := e.analyze(ctx, entry.Path)
		if err = e.commit(ctx, rec, n); err != nil {
			break
		}
	}
	return e.finish(ctx, err)
}

// runRows forces each flagged ledger row in order.
func (e *engine) runRows(ctx context.Context, rows []ledger.Record) (Summary, error) {
	e.summary.Total = len(rows)
	e.opts.Observer.OnStart(ctx, e.mode, len(rows))

	var err error
	for _, row := range rows {
		if err = interrupted(ctx); err != nil {
			break
		}
		rec, n := e.force(ctx, row)
		if err = e.commit(ctx, rec, n); err != nil {
			break
		}
	}
	return e.finish(ctx, err)
}

func interrupted(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.Errorf("run interrupted: %w", err)
	}
	return nil
}

func (e *engine) finish(ctx context.Context, err error) (Summary, error) {
	if e.ledger != nil {
		if cerr := e.ledger.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	e.summary.Finished = e.opts.Now()

	logger := zerolog.Ctx(ctx)
	logger.Info().
		Str("mode", string(e.mode)).
		Str("run_id", e.summary.RunID).
		Bool("dry_run", e.summary.DryRun).
		Int("processed", e.summary.Processed).
		Int("copied", e.summary.Copied).
		Int("skipped", e.summary.SkippedTotal()).
		Int("errors", e.summary.Errors).
		Int64("bytes", e.summary.Bytes).
		Dur("elapsed", e.summary.Elapsed()).
		Msg("run finished")

	e.opts.Observer.OnDone(ctx, e.summary)
	return e.summary, err
}
