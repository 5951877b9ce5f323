package organizer

import (
	"context"
	"time"

	"github.com/tendant/photo-organizer/internal/ledger"
)

// Summary reports what a run did. Skipped excludes skipped_error, which is
// counted in Errors.
type Summary struct {
	Mode   Mode
	RunID  string
	DryRun bool

	// Total is the number of candidates the run considered: files found by
	// the scan, or flagged rows in manual mode.
	Total       int
	Processed   int
	AlreadyDone int

	Copied  int
	Skipped map[ledger.Verdict]int
	Errors  int
	Bytes   int64

	Started  time.Time
	Finished time.Time
}

func newSummary(mode Mode, runID string, dryRun bool, started time.Time) Summary {
	return Summary{
		Mode:    mode,
		RunID:   runID,
		DryRun:  dryRun,
		Skipped: map[ledger.Verdict]int{},
		Started: started,
	}
}

// Elapsed is the wall time of the run, zero until it has finished.
func (s Summary) Elapsed() time.Duration {
	if s.Finished.IsZero() {
		return 0
	}
	return s.Finished.Sub(s.Started)
}

// SkippedTotal sums every skipped_* verdict except skipped_error.
func (s Summary) SkippedTotal() int {
	n := 0
	for _, c := range s.Skipped {
		n += c
	}
	return n
}

func (s *Summary) add(rec ledger.Record, copied int64) {
	s.Processed++
	switch rec.Verdict {
	case ledger.Copied:
		s.Copied++
		s.Bytes += copied
	case ledger.SkippedError:
		s.Errors++
	default:
		s.Skipped[rec.Verdict]++
	}
}

// =============================================================================
// Observer
// =============================================================================

// Observer receives progress events. Calls happen on the run's goroutine, in
// order: OnStart once, OnFile per processed file, OnDone once.
type Observer interface {
	OnStart(ctx context.Context, mode Mode, total int)
	OnFile(ctx context.Context, rec ledger.Record, progress Summary)
	OnDone(ctx context.Context, summary Summary)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) OnStart(context.Context, Mode, int) {}
func (NopObserver) OnFile(context.Context, ledger.Record, Summary) {}
func (NopObserver) OnDone(context.Context, Summary) {}
