package main

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gitlab.com/tozd/go/errors"

	"github.com/tendant/photo-organizer/internal/config"
)

const (
	defaultConfigFile = "photo-organizer.yaml"
	defaultLedger     = "photo_organizer.csv"
)

// flagKeys maps persistent flags onto config keys.
var flagKeys = map[string]string{
	"source":        "source_dir",
	"dest":          "dest_dir",
	"min-width":     "min_width",
	"min-height":    "min_height",
	"min-size":      "min_size_bytes",
	"layout":        "folder_layout",
	"prefix-parent": "prefix_parent_dir",
	"exiftool":      "exiftool_path",
	"ignore":        "ignore_patterns",
}

// app holds what every command shares: the filesystem, output streams, the
// parsed flags and, once PersistentPreRunE has run, the resolved config.
type app struct {
	fs     afero.Fs
	stdout io.Writer
	stderr io.Writer

	configFile string
	ledgerPath string
	logFile    string
	debug      bool
	dryRun     bool
	quiet      bool

	cfg     config.Config
	logSink io.Closer
}

func newApp(fs afero.Fs, stdout, stderr io.Writer) *app {
	return &app{fs: fs, stdout: stdout, stderr: stderr}
}

func (a *app) command() *cobra.Command {
	root := &cobra.Command{
		Use:   "photo-organizer",
		Short: "Organize photos into a date-partitioned library",
		Long: `photo-organizer copies photos from an unstructured source tree into
dest/YYYY/MM/DD, skipping system folders, small images and identical copies.
Every decision is recorded in a CSV ledger that can be resumed or edited.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configFile, "config", "c", defaultConfigFile, "config file path")
	pf.StringVarP(&a.ledgerPath, "ledger", "l", defaultLedger, "ledger CSV path")
	pf.StringVar(&a.logFile, "log-file", "", "also write JSON logs to this file")
	pf.BoolVarP(&a.debug, "debug", "d", false, "enable debug logging")
	pf.BoolVarP(&a.dryRun, "dry-run", "n", false, "evaluate files without copying or writing the ledger")
	pf.BoolVarP(&a.quiet, "quiet", "q", false, "hide the progress bar")

	d := config.Defaults()
	pf.StringP("source", "s", "", "source directory to scan")
	pf.StringP("dest", "o", "", "destination library root")
	pf.Int("min-width", d.MinWidth, "minimum width for images without metadata")
	pf.Int("min-height", d.MinHeight, "minimum height for images without metadata")
	pf.Int64("min-size", d.MinSizeBytes, "minimum file size in bytes for images without metadata")
	pf.String("layout", d.FolderLayout, "destination folder layout (Go time format)")
	pf.Bool("prefix-parent", d.PrefixParentDir, "prefix file names with their parent folder")
	pf.String("exiftool", d.ExiftoolPath, "exiftool executable, empty to disable")
	pf.StringSlice("ignore", nil, "doublestar patterns to leave out of the scan")

	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		logger, err := a.setupLogging()
		if err != nil {
			return err
		}
		cmd.SetContext(logger.WithContext(cmd.Context()))
		return a.loadConfig(cmd, pf)
	}

	root.AddCommand(
		a.modeCommand(modeRun),
		a.modeCommand(modeResume),
		a.modeCommand(modeManual),
		a.initCommand(),
		a.configCommand(),
	)
	return root
}

// setupLogging builds a console logger on stderr and, with --log-file, a JSON
// logger on the file as well.
func (a *app) setupLogging() (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if a.debug {
		level = zerolog.DebugLevel
	}

	var out io.Writer = zerolog.ConsoleWriter{Out: a.stderr, TimeFormat: time.Kitchen}
	if a.logFile != "" {
		f, err := a.fs.OpenFile(a.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Logger{}, errors.Errorf("opening log file %s: %w", a.logFile, err)
		}
		a.logSink = f
		out = zerolog.MultiLevelWriter(out, f)
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}

// loadConfig layers defaults, the config file, PHOTO_ORGANIZER_* env vars and
// flags.
func (a *app) loadConfig(cmd *cobra.Command, pf *pflag.FlagSet) error {
	v := config.NewViper(a.fs)
	for flag, key := range flagKeys {
		if err := v.BindPFlag(key, pf.Lookup(flag)); err != nil {
			return errors.Errorf("binding flag %s: %w", flag, err)
		}
	}
	if err := config.ReadFile(a.fs, v, a.configFile, cmd.Flags().Changed("config")); err != nil {
		return err
	}

	cfg, warnings, err := config.Load(v)
	if err != nil {
		return err
	}
	logger := zerolog.Ctx(cmd.Context())
	for _, w := range warnings {
		logger.Warn().Msg(w)
	}
	logger.Debug().Str("source", cfg.SourceDir).Str("dest", cfg.DestDir).Msg("config loaded")
	a.cfg = cfg
	return nil
}

func (a *app) close() {
	if a.logSink != nil {
		_ = a.logSink.Close()
		a.logSink = nil
	}
}
