package organizer

import (
	"context"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/tendant/photo-organizer/internal/fsx"
	"github.com/tendant/photo-organizer/internal/ledger"
)

// =============================================================================
// Normal
// =============================================================================

type normalRunner struct {
	opts Options
}

func (r *normalRunner) Mode() Mode { return Normal }

// Process refuses to touch an existing ledger, then scans the source tree and
// records every file in a new one.
func (r *normalRunner) Process(ctx context.Context) (Summary, error) {
	fs := r.opts.Fs
	cfg := normalizeConfig(ctx, r.opts.Config)

	exists, err := fsx.Exists(fs, r.opts.LedgerPath)
	if err != nil {
		return Summary{}, errors.Errorf("%w: %s", ErrLedgerOpen, err.Error())
	}
	if exists {
		return Summary{}, errors.Errorf("%w: %s (use resume or manual mode)", ErrLedgerExists, r.opts.LedgerPath)
	}
	if err := prepareDirs(fs, cfg, r.opts.DryRun); err != nil {
		return Summary{}, err
	}

	e := newEngine(ctx, Normal, r.opts, cfg)
	entries, err := e.enumerate(ctx)
	if err != nil {
		return Summary{}, err
	}

	if !r.opts.DryRun {
		l, err := ledger.Create(ctx, fs, r.opts.LedgerPath, cfg)
		if err != nil {
			if errors.Is(err, ledger.ErrExists) {
				return Summary{}, errors.Errorf("%w: %s", ErrLedgerExists, r.opts.LedgerPath)
			}
			return Summary{}, errors.Errorf("%w: %s", ErrLedgerOpen, err.Error())
		}
		e.ledger = l
	}
	return e.runEntries(ctx, entries, nil)
}

// =============================================================================
// Resume
// =============================================================================

type resumeRunner struct {
	opts Options
}

func (r *resumeRunner) Mode() Mode { return Resume }

// Process continues an interrupted run: files the ledger already records are
// left alone, the rest are processed as in normal mode and appended.
func (r *resumeRunner) Process(ctx context.Context) (Summary, error) {
	fs := r.opts.Fs
	l, err := openLedger(ctx, fs, r.opts.LedgerPath)
	if err != nil {
		return Summary{}, err
	}
	cfg := ledgerConfig(ctx, l, r.opts.Config)
	if err := prepareDirs(fs, cfg, r.opts.DryRun); err != nil {
		return Summary{}, err
	}

	e := newEngine(ctx, Resume, r.opts, cfg)
	entries, err := e.enumerate(ctx)
	if err != nil {
		return Summary{}, err
	}

	if !r.opts.DryRun {
		if err := l.BeginAppend(ctx, cfg); err != nil {
			return Summary{}, errors.Errorf("%w: %s", ErrLedgerOpen, err.Error())
		}
		e.ledger = l
	}
	zerolog.Ctx(ctx).Info().Int("recorded", len(l.Records())).Int("found", len(entries)).Msg("resuming")
	return e.runEntries(ctx, entries, l.Has)
}

// =============================================================================
// Manual
// =============================================================================

type manualRunner struct {
	opts Options
}

func (r *manualRunner) Mode() Mode { return Manual }

// Process copies every row a user flagged with copy_anyway, in ledger order,
// regardless of what the classifier decided for it.
func (r *manualRunner) Process(ctx context.Context) (Summary, error) {
	fs := r.opts.Fs
	l, err := openLedger(ctx, fs, r.opts.LedgerPath)
	if err != nil {
		return Summary{}, err
	}
	cfg := ledgerConfig(ctx, l, r.opts.Config)
	if err := prepareDirs(fs, cfg, r.opts.DryRun); err != nil {
		return Summary{}, err
	}

	rows := Flagged(l.Records())
	e := newEngine(ctx, Manual, r.opts, cfg)
	if !r.opts.DryRun {
		if err := l.BeginAppend(ctx, cfg); err != nil {
			return Summary{}, errors.Errorf("%w: %s", ErrLedgerOpen, err.Error())
		}
		e.ledger = l
	}
	zerolog.Ctx(ctx).Info().Int("flagged", len(rows)).Msg("processing copy_anyway rows")
	return e.runRows(ctx, rows)
}

// Flagged returns the rows manual mode acts on: copy_anyway set, not written
// by manual mode itself, first occurrence of each source only. The mode cell
// may have been retyped in a spreadsheet, so it is matched in any case.
func Flagged(records []ledger.Record) []ledger.Record {
	var rows []ledger.Record
	seen := map[string]bool{}
	for _, rec := range records {
		if !rec.CopyAnyway || seen[rec.SourcePath] {
			continue
		}
		if m, err := ParseMode(rec.Mode); err == nil && m == Manual {
			continue
		}
		seen[rec.SourcePath] = true
		rows = append(rows, rec)
	}
	return rows
}
