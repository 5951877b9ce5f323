package main

import (
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/tendant/photo-organizer/internal/organizer"
)

type modeSpec struct {
	mode  organizer.Mode
	use   string
	short string
	long  string
}

var (
	modeRun = modeSpec{
		mode:  organizer.Normal,
		use:   "run",
		short: "Classify and copy every photo under the source into a new ledger",
		long: `run scans the source tree, classifies each supported file, copies accepted
files to dest/YYYY/MM/DD and records every decision in a new ledger.
It refuses to overwrite an existing ledger; use resume or manual instead.`,
	}
	modeResume = modeSpec{
		mode:  organizer.Resume,
		use:   "resume",
		short: "Continue a run, skipping files the ledger already records",
		long: `resume reads the ledger's config row, scans the same source tree and
processes only files the ledger has no row for, appending to the same ledger.`,
	}
	modeManual = modeSpec{
		mode:  organizer.Manual,
		use:   "manual",
		short: "Copy the ledger rows flagged with copy_anyway",
		long: `manual copies every ledger row whose copy_anyway cell is set (yes, y, 1,
true or x), in ledger order, regardless of the original verdict. Each copy is
appended as a new row; the flagged rows are left untouched.`,
	}
)

func (a *app) modeCommand(spec modeSpec) *cobra.Command {
	return &cobra.Command{
		Use:   spec.use,
		Short: spec.short,
		Long:  spec.long,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			_, err := organizer.Run(ctx, spec.mode, organizer.Options{
				Fs:         a.fs,
				Config:     a.cfg,
				LedgerPath: a.ledgerPath,
				DryRun:     a.dryRun,
				Observer:   newProgress(a.stdout, !a.quiet),
			})
			if err != nil {
				return errors.Errorf("%s: %w", spec.use, err)
			}
			return nil
		},
	}
}
