// Package ledger reads and writes the CSV ledger: a spreadsheet-friendly file
// recording the run configuration and one row per file decision.
//
// Layout:
//
//	row 1   column headers
//	row 2   CONFIG {"schema_version":2,...}   (single cell, rest empty)
//	row 3+  one Record per row
//
// Reading is tolerant. Missing columns read as empty, unknown columns are
// ignored, ragged rows are accepted and a missing or damaged config cell
// resolves to defaults. Historical rows are never rewritten: when the header
// or config cell must change, the data rows are copied byte for byte.
package ledger

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"gitlab.com/tozd/go/errors"

	"github.com/tendant/photo-organizer/internal/config"
	"github.com/tendant/photo-organizer/internal/fsx"
)

var (
	ErrExists  = errors.New("ledger already exists")
	ErrNotOpen = errors.New("ledger not open for appending")
)

var utf8BOM = []byte{0xef, 0xbb, 0xbf}

// Ledger is an open ledger file.
type Ledger struct {
	fs   afero.Fs
	path string

	header        []string
	cols          map[string]int // canonical column -> index in header
	headerMissing bool

	cfg       config.Config
	cellRaw   []string // config row as read, nil when absent
	records   []Record
	sources   map[string]bool
	warnings  []string
	dataBytes []byte // rows 3+ exactly as on disk

	f afero.File
	w *csv.Writer
}

// Create writes a new ledger holding only the header and cfg's cell, and opens
// it for appending. It fails with ErrExists if path is taken.
func Create(ctx context.Context, fs afero.Fs, path string, cfg config.Config) (*Ledger, error) {
	exists, err := fsx.Exists(fs, path)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, errors.Errorf("%w: %s", ErrExists, path)
	}
	if err := fsx.EnsureDir(fs, filepath.Dir(path)); err != nil {
		return nil, err
	}

	l := &Ledger{
		fs:      fs,
		path:    path,
		header:  append([]string(nil), Columns...),
		cfg:     cfg,
		sources: map[string]bool{},
	}
	l.cols = columnIndex(l.header)
	if err := l.write(cfg); err != nil {
		return nil, err
	}
	if err := l.openAppend(); err != nil {
		return nil, err
	}
	zerolog.Ctx(ctx).Info().Str("ledger", path).Msg("ledger created")
	return l, nil
}

// Open reads an existing ledger. Structural problems are reported through
// Warnings and logged, never returned as errors; only an unreadable file is.
func Open(ctx context.Context, fs afero.Fs, path string) (*Ledger, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Errorf("reading ledger %s: %w", path, err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	l := &Ledger{fs: fs, path: path, sources: map[string]bool{}}
	l.parse(data)

	logger := zerolog.Ctx(ctx)
	for _, w := range l.warnings {
		logger.Warn().Str("ledger", path).Msg(w)
	}
	logger.Debug().Str("ledger", path).Int("records", len(l.records)).Msg("ledger loaded")
	return l, nil
}

func (l *Ledger) parse(data []byte) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	var (
		row        []string
		err        error
		dataOffset int64
		sawConfig  bool
	)

	readRow := func() bool {
		for {
			row, err = r.Read()
			if err == io.EOF {
				return false
			}
			if err != nil && row == nil {
				l.warn("skipping malformed row: %s", err.Error())
				continue
			}
			return true
		}
	}

	if !readRow() {
		l.warn("ledger is empty, using default header and config")
		l.headerMissing = true
		l.header = append([]string(nil), Columns...)
		l.cols = columnIndex(l.header)
		l.cfg = config.Defaults()
		return
	}

	if isHeader(row) {
		l.header = row
		dataOffset = r.InputOffset()
		if !readRow() {
			row = nil
		}
	} else {
		l.warn("ledger has no header row, assuming the current layout")
		l.headerMissing = true
		l.header = append([]string(nil), Columns...)
	}
	l.cols = columnIndex(l.header)

	var cfgWarnings []string
	if row != nil && len(row) > 0 && config.IsCell(row[0]) {
		sawConfig = true
		l.cellRaw = row
		l.cfg, cfgWarnings = config.DecodeCell(row)
		dataOffset = r.InputOffset()
		if !readRow() {
			row = nil
		}
	} else {
		l.cfg, cfgWarnings = config.DecodeCell(nil)
	}
	for _, w := range cfgWarnings {
		l.warn("%s", w)
	}

	// everything from here on is data, kept verbatim for rewrites
	if !sawConfig && l.headerMissing {
		dataOffset = 0
	}
	l.dataBytes = data[dataOffset:]

	for row != nil {
		line, _ := r.FieldPos(0)
		l.addRow(row, line)
		if !readRow() {
			break
		}
	}
}

func (l *Ledger) addRow(row []string, line int) {
	if len(row) > 0 && config.IsCell(row[0]) {
		l.warn("ignoring extra config row on line %d", line)
		return
	}
	rec := parseRecord(l.cols, row, line)
	if rec.SourcePath == "" {
		return
	}
	l.records = append(l.records, rec)
	l.sources[rec.SourcePath] = true
}

func (l *Ledger) warn(format string, args ...any) {
	l.warnings = append(l.warnings, fmt.Sprintf(format, args...))
}

// isHeader reports whether row names at least the source path column.
func isHeader(row []string) bool {
	for _, c := range row {
		if canonicalColumn(c) == "source_path" {
			return true
		}
	}
	return false
}

func columnIndex(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		c := canonicalColumn(h)
		if _, dup := cols[c]; !dup {
			cols[c] = i
		}
	}
	return cols
}

// Path returns the ledger file path.
func (l *Ledger) Path() string { return l.path }

// Config returns the configuration decoded from the config cell.
func (l *Ledger) Config() config.Config { return l.cfg.Clone() }

// HasConfig reports whether the file carried a config row.
func (l *Ledger) HasConfig() bool { return l.cellRaw != nil }

// Records returns the data rows in file order.
func (l *Ledger) Records() []Record { return l.records }

// Warnings describes every structural problem found while reading.
func (l *Ledger) Warnings() []string { return l.warnings }

// Has reports whether source already has a row.
func (l *Ledger) Has(source string) bool { return l.sources[source] }

// Header returns the column headers in file order.
func (l *Ledger) Header() []string { return append([]string(nil), l.header...) }

// BeginAppend prepares the ledger for new rows under cfg. If the stored
// header lacks known columns, or the config cell differs from cfg's encoding,
// the first two rows are rewritten (through a temp file and rename) while the
// data rows are carried over unchanged.
func (l *Ledger) BeginAppend(ctx context.Context, cfg config.Config) error {
	if l.f != nil {
		return nil
	}

	cell, err := config.EncodeCell(cfg)
	if err != nil {
		return err
	}

	rewrite := l.headerMissing || !l.cellMatches(cell)
	for _, col := range Columns {
		if _, ok := l.cols[col]; !ok {
			l.header = append(l.header, col)
			rewrite = true
		}
	}
	l.cols = columnIndex(l.header)
	l.cfg = cfg

	if rewrite {
		if err := l.write(cfg); err != nil {
			return err
		}
		l.headerMissing = false
		zerolog.Ctx(ctx).Info().Str("ledger", l.path).Msg("ledger header and config rewritten")
	}
	return l.openAppend()
}

func (l *Ledger) cellMatches(cell string) bool {
	if len(l.cellRaw) == 0 || strings.TrimSpace(l.cellRaw[0]) != cell {
		return false
	}
	for _, c := range l.cellRaw[1:] {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// write replaces the file with header, config row and the preserved data.
func (l *Ledger) write(cfg config.Config) error {
	cell, err := config.EncodeCell(cfg)
	if err != nil {
		return err
	}
	cfgRow := make([]string, len(l.header))
	cfgRow[0] = cell

	err = fsx.ReplaceFile(l.fs, l.path, func(out io.Writer) error {
		w := csv.NewWriter(out)
		if err := w.Write(l.header); err != nil {
			return err
		}
		if err := w.Write(cfgRow); err != nil {
			return err
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return err
		}
		_, err := out.Write(l.dataBytes)
		return err
	})
	if err != nil {
		return errors.Errorf("writing ledger %s: %w", l.path, err)
	}
	l.cellRaw = cfgRow
	return nil
}

func (l *Ledger) openAppend() error {
	newline, err := l.endsWithNewline()
	if err != nil {
		return err
	}
	f, err := l.fs.OpenFile(l.path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Errorf("opening ledger %s for append: %w", l.path, err)
	}
	if !newline {
		if _, err := f.Write([]byte("\n")); err != nil {
			_ = f.Close()
			return errors.Errorf("appending to ledger %s: %w", l.path, err)
		}
	}
	l.f = f
	l.w = csv.NewWriter(f)
	return nil
}

func (l *Ledger) endsWithNewline() (bool, error) {
	f, err := l.fs.Open(l.path)
	if err != nil {
		return false, errors.Errorf("opening ledger %s: %w", l.path, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return false, errors.Errorf("stat ledger %s: %w", l.path, err)
	}
	if fi.Size() == 0 {
		return true, nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, fi.Size()-1); err != nil && err != io.EOF {
		return false, errors.Errorf("reading ledger %s: %w", l.path, err)
	}
	return last[0] == '\n', nil
}

// Append writes rec in the file's column order and syncs it to disk before
// returning.
func (l *Ledger) Append(rec Record) error {
	if l.w == nil {
		return ErrNotOpen
	}
	row := make([]string, len(l.header))
	for i, h := range l.header {
		row[i] = rec.value(canonicalColumn(h))
	}
	if err := l.w.Write(row); err != nil {
		return errors.Errorf("writing ledger row: %w", err)
	}
	l.w.Flush()
	if err := l.w.Error(); err != nil {
		return errors.Errorf("flushing ledger: %w", err)
	}
	if err := l.f.Sync(); err != nil {
		return errors.Errorf("syncing ledger: %w", err)
	}
	l.records = append(l.records, rec)
	l.sources[rec.SourcePath] = true
	return nil
}

// Close releases the append handle. Safe to call more than once.
func (l *Ledger) Close() error {
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f, l.w = nil, nil
	if err != nil {
		return errors.Errorf("closing ledger %s: %w", l.path, err)
	}
	return nil
}
