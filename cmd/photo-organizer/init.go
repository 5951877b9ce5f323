package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/tendant/photo-organizer/internal/config"
	"github.com/tendant/photo-organizer/internal/fsx"
)

// Library layout created by init.
const (
	incomingDir  = "Incoming"
	originalsDir = "Originals"
)

func (a *app) initCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init [dir]",
		Short: "Create a photo library with Incoming/, Originals/ and a config file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := ""
			if len(args) == 1 {
				target = args[0]
			} else {
				wd, err := os.Getwd()
				if err != nil {
					return errors.Errorf("getting current directory: %w", err)
				}
				target = wd
			}
			return a.initLibrary(target)
		},
	}
}

// initLibrary creates the library folders under target and writes a config
// file pointing the source at Incoming/ and the destination at Originals/.
// Existing folders and an existing config file are left alone.
func (a *app) initLibrary(target string) error {
	dirs := []struct {
		path string
		desc string
	}{
		{filepath.Join(target, incomingDir), "drop new photos here"},
		{filepath.Join(target, originalsDir), "organized photos (YYYY/MM/DD/)"},
	}

	done := color.New(color.FgGreen)
	skip := color.New(color.FgYellow)
	fmt.Fprintf(a.stdout, "Initializing photo library at: %s\n\n", target)

	for _, dir := range dirs {
		exists, err := fsx.Exists(a.fs, dir.path)
		if err != nil {
			return err
		}
		if exists {
			if err := fsx.RequireDir(a.fs, dir.path); err != nil {
				return err
			}
			skip.Fprintf(a.stdout, "⊘ %s/ (already exists)\n", filepath.Base(dir.path))
			continue
		}
		if err := fsx.EnsureDir(a.fs, dir.path); err != nil {
			return err
		}
		done.Fprintf(a.stdout, "✓ %s/ - %s\n", filepath.Base(dir.path), dir.desc)
	}

	profile := filepath.Join(target, defaultConfigFile)
	exists, err := fsx.Exists(a.fs, profile)
	if err != nil {
		return err
	}
	if exists {
		skip.Fprintf(a.stdout, "⊘ %s (already exists)\n", defaultConfigFile)
	} else {
		cfg := a.cfg.Clone()
		cfg.SourceDir = filepath.Join(target, incomingDir)
		cfg.DestDir = filepath.Join(target, originalsDir)
		if err := config.WriteProfile(a.fs, profile, cfg); err != nil {
			return err
		}
		done.Fprintf(a.stdout, "✓ %s - thresholds, system paths and layout\n", defaultConfigFile)
	}

	fmt.Fprintln(a.stdout, "\nPhoto library is ready!")
	fmt.Fprintln(a.stdout, "Next steps:")
	fmt.Fprintf(a.stdout, "  1. Copy photos to %s/\n", incomingDir)
	fmt.Fprintln(a.stdout, "  2. Run: photo-organizer run --dry-run (preview)")
	fmt.Fprintln(a.stdout, "  3. Run: photo-organizer run (organize)")
	return nil
}
