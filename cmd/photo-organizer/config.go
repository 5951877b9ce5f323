package main

import (
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/tendant/photo-organizer/internal/config"
	"github.com/tendant/photo-organizer/internal/ledger"
)

func (a *app) configCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	var fromLedger bool
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Long: `show prints the configuration a run would use, after the config file,
PHOTO_ORGANIZER_* environment variables and flags are applied. With
--from-ledger it prints the config row stored in the ledger instead, which is
what resume and manual runs use.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg
			if fromLedger {
				l, err := ledger.Open(cmd.Context(), a.fs, a.ledgerPath)
				if err != nil {
					return err
				}
				cfg = l.Config()
			}
			b, err := config.MarshalProfile(cfg)
			if err != nil {
				return err
			}
			if _, err := a.stdout.Write(b); err != nil {
				return errors.Errorf("writing config: %w", err)
			}
			return nil
		},
	}
	show.Flags().BoolVar(&fromLedger, "from-ledger", false, "show the config stored in the ledger")

	cmd.AddCommand(show)
	return cmd
}
