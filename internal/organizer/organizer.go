// Package organizer runs one pass of the photo organizer in one of three
// modes.
//
//   - Normal starts a fresh ledger and processes every candidate under the
//     source tree.
//   - Resume continues a ledger, skipping sources it already records.
//   - Manual replays the rows a user flagged with copy_anyway, bypassing the
//     classifier.
//
// Per-file failures become skipped_error rows and never stop the run. Setup
// failures (missing source, unusable destination, unreadable ledger) are
// returned before any file is touched.
package organizer

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"gitlab.com/tozd/go/errors"

	"github.com/tendant/photo-organizer/internal/classify"
	"github.com/tendant/photo-organizer/internal/config"
	"github.com/tendant/photo-organizer/internal/media"
)

// Mode selects the run variant. It is fixed for the whole run.
type Mode string

const (
	Normal Mode = "normal"
	Manual Mode = "manual"
	Resume Mode = "resume"
)

// ParseMode accepts a mode name in any case.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case Normal, Manual, Resume:
		return m, nil
	default:
		return "", errors.Errorf("unknown mode %q", s)
	}
}

var (
	ErrSourceMissing = errors.New("source directory missing")
	ErrDestUnusable  = errors.New("destination directory unusable")
	ErrLedgerExists  = errors.New("ledger already exists")
	ErrLedgerOpen    = errors.New("cannot open ledger")
)

// DateResolver supplies the date that places a file in the destination tree.
// *media.Resolver is the production implementation.
type DateResolver interface {
	DateFor(ctx context.Context, path string, modTime time.Time) media.Capture
}

// Options configure a run.
type Options struct {
	Fs afero.Fs

	// Config is the runtime configuration. Normal mode uses it as is; resume
	// and manual mode take the ledger's config cell and only fall back to
	// Config for an unset source or destination.
	Config     config.Config
	LedgerPath string

	// DryRun evaluates every file without copying or touching the ledger.
	DryRun bool

	Observer Observer

	// Optional collaborators, defaulted from Fs and the effective config.
	Dates   DateResolver
	Measure classify.MeasureFunc
	Now     func() time.Time
	RunID   string
}

// Runner is one mode's implementation.
type Runner interface {
	Mode() Mode
	Process(ctx context.Context) (Summary, error)
}

// New returns the Runner for mode.
func New(mode Mode, opts Options) (Runner, error) {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Observer == nil {
		opts.Observer = NopObserver{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.LedgerPath == "" {
		return nil, errors.New("ledger path is required")
	}

	switch mode {
	case Normal:
		return &normalRunner{opts: opts}, nil
	case Resume:
		return &resumeRunner{opts: opts}, nil
	case Manual:
		return &manualRunner{opts: opts}, nil
	default:
		return nil, errors.Errorf("unknown mode %q", mode)
	}
}

// Run is a convenience for New followed by Process.
func Run(ctx context.Context, mode Mode, opts Options) (Summary, error) {
	r, err := New(mode, opts)
	if err != nil {
		return Summary{}, err
	}
	return r.Process(ctx)
}
