// Package scan enumerates the candidate images under a source tree.
package scan

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"gitlab.com/tozd/go/errors"

	"github.com/tendant/photo-organizer/internal/config"
)

// housekeepingDirs hold sync, indexing and camera bookkeeping data, never
// user photos.
var housekeepingDirs = map[string]bool{
	".stfolder":       true, // Syncthing
	".fseventsd":      true, // macOS filesystem events
	".Trashes":        true, // macOS trash
	".Spotlight-V100": true, // macOS Spotlight index
	"AVF_INFO":        true, // Sony AVCHD info
	"THMBNL":          true, // Sony thumbnails
}

// Entry is one candidate file.
type Entry struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// Scanner walks cfg.SourceDir.
type Scanner struct {
	fs      afero.Fs
	cfg     config.Config
	exclude map[string]bool
}

// New returns a Scanner for cfg. Directories listed in exclude (typically the
// destination when it lives inside the source) are not entered.
func New(fs afero.Fs, cfg config.Config, exclude ...string) *Scanner {
	ex := make(map[string]bool, len(exclude))
	for _, dir := range exclude {
		if dir != "" {
			ex[filepath.Clean(dir)] = true
		}
	}
	return &Scanner{fs: fs, cfg: cfg, exclude: ex}
}

// Scan returns every regular file under the source root whose extension is
// configured and which no ignore pattern matches, sorted by path. Unreadable
// subdirectories are logged and skipped; an unreadable root is an error.
func (s *Scanner) Scan(ctx context.Context) ([]Entry, error) {
	logger := zerolog.Ctx(ctx)
	root := filepath.Clean(s.cfg.SourceDir)

	var entries []Entry
	err := afero.Walk(s.fs, root, func(path string, info os.FileInfo, err error) error {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if err != nil {
			if path == root {
				return errors.Errorf("reading source %s: %w", root, err)
			}
			logger.Warn().Err(err).Str("path", path).Msg("skipping unreadable path")
			return nil
		}

		if info.IsDir() {
			if path == root {
				return nil
			}
			if s.exclude[path] || housekeepingDirs[info.Name()] || s.ignored(ctx, root, path) {
				logger.Debug().Str("dir", path).Msg("not entering directory")
				return filepath.SkipDir
			}
			return nil
		}

		if !info.Mode().IsRegular() {
			return nil
		}
		if !s.cfg.SupportsExt(filepath.Ext(path)) {
			return nil
		}
		if s.ignored(ctx, root, path) {
			return nil
		}

		entries = append(entries, Entry{Path: path, Size: info.Size(), ModTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

// ignored matches the root-relative, slash-separated path against the
// configured ignore patterns.
func (s *Scanner) ignored(ctx context.Context, root, path string) bool {
	if len(s.cfg.IgnorePatterns) == 0 {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	rel = filepath.ToSlash(rel)

	for _, pattern := range s.cfg.IgnorePatterns {
		matched, err := doublestar.Match(pattern, rel)
		if err != nil {
			zerolog.Ctx(ctx).Debug().Str("pattern", pattern).Str("path", rel).Err(err).Msg("error matching pattern")
			continue
		}
		if matched {
			zerolog.Ctx(ctx).Debug().Str("path", rel).Str("pattern", pattern).Msg("path ignored by pattern")
			return true
		}
	}
	return false
}
