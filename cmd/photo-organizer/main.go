// Photo Organizer - classify, deduplicate and copy photos into a
// date-partitioned library.
//
// Every decision is written to a CSV ledger that can be edited in a
// spreadsheet. A run can be resumed from the ledger after an interruption,
// and rows flagged with copy_anyway can be copied in a manual pass.
//
// Usage:
//
//	photo-organizer init ~/Photos               # Incoming/, Originals/ and a config file
//	photo-organizer run --dry-run               # preview
//	photo-organizer run                         # classify and copy, new ledger
//	photo-organizer resume                      # continue an interrupted run
//	photo-organizer manual                      # copy rows flagged copy_anyway
//	photo-organizer config show                 # print the effective config
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/afero"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(afero.NewOsFs(), os.Stdout, os.Stderr)
	err := a.command().ExecuteContext(ctx)
	a.close()
	if err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
