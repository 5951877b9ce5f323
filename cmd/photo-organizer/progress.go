package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/pterm/pterm"

	"github.com/tendant/photo-organizer/internal/ledger"
	"github.com/tendant/photo-organizer/internal/organizer"
)

// progress renders run events: a pterm progress bar while files are processed
// and a coloured summary at the end.
type progress struct {
	out  io.Writer
	show bool
	bar  *pterm.ProgressbarPrinter
}

func newProgress(out io.Writer, show bool) *progress {
	return &progress{out: out, show: show}
}

func (p *progress) OnStart(_ context.Context, mode organizer.Mode, total int) {
	if !p.show || total == 0 {
		return
	}
	bar, err := pterm.DefaultProgressbar.
		WithTotal(total).
		WithTitle(string(mode)).
		WithWriter(p.out).
		WithRemoveWhenDone(true).
		Start()
	if err != nil {
		return
	}
	p.bar = bar
}

func (p *progress) OnFile(_ context.Context, rec ledger.Record, s organizer.Summary) {
	if p.bar == nil {
		return
	}
	p.bar.UpdateTitle(filepath.Base(rec.SourcePath))
	if n := s.Processed + s.AlreadyDone - p.bar.Current; n > 0 {
		p.bar.Add(n)
	}
}

func (p *progress) OnDone(_ context.Context, s organizer.Summary) {
	if p.bar != nil {
		_, _ = p.bar.Stop()
		p.bar = nil
	}
	printSummary(p.out, s)
}

// =============================================================================
// Summary
// =============================================================================

var (
	headerColor = color.New(color.Bold)
	copiedColor = color.New(color.FgGreen)
	skipColor   = color.New(color.FgYellow)
	errorColor  = color.New(color.FgRed, color.Bold)
	noteColor   = color.New(color.FgCyan)
)

func printSummary(w io.Writer, s organizer.Summary) {
	fmt.Fprintln(w)
	headerColor.Fprintf(w, "%s run %s\n", s.Mode, s.RunID)

	line := func(c *color.Color, label string, value any) {
		fmt.Fprintf(w, "  %-28s ", label)
		c.Fprintln(w, value)
	}
	plain := color.New(color.Reset)

	line(plain, "considered", s.Total)
	if s.AlreadyDone > 0 {
		line(plain, "already in ledger", s.AlreadyDone)
	}
	line(plain, "processed", s.Processed)
	line(copiedColor, string(ledger.Copied), s.Copied)
	for _, v := range ledger.Verdicts {
		if !v.IsSkip() || v == ledger.SkippedError {
			continue
		}
		line(skipColor, string(v), s.Skipped[v])
	}
	if s.Errors > 0 {
		line(errorColor, string(ledger.SkippedError), s.Errors)
	} else {
		line(plain, string(ledger.SkippedError), 0)
	}
	line(plain, "bytes copied", formatBytes(s.Bytes))
	line(plain, "elapsed", s.Elapsed().Round(time.Millisecond))

	if s.DryRun {
		noteColor.Fprintln(w, "dry run: nothing was copied and the ledger was not written")
	}
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
