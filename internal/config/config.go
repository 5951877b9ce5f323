// Package config holds the heuristic thresholds and layout settings that drive a
// run. A Config is built once (from defaults, a profile file, env and flags, or
// from a ledger's config cell) and passed by value to every component.
package config

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// SchemaVersion is the version written into new ledger config cells.
//
//	1: KEY=VALUE;KEY=VALUE cell (SOURCE_DIR, DEST_DIR, MIN_WIDTH, ...)
//	2: single-line JSON object, adds allow/ignore/layout/exiftool settings
const SchemaVersion = 2

// =============================================================================
// Defaults
// =============================================================================

const (
	DefaultMinWidth     = 600
	DefaultMinHeight    = 600
	DefaultMinSizeBytes = 51200 // 50KB
	DefaultFolderLayout = "2006/01/02"
	DefaultExiftool     = "exiftool"
)

// defaultExtensions are the image formats considered for organizing.
var defaultExtensions = []string{
	".jpg", ".jpeg", ".png",
	".cr2", ".nef", ".arw", // Canon / Nikon / Sony RAW
	".tif", ".tiff",
	".rw2", ".orf", ".dng", // Panasonic / Olympus / Adobe RAW
	".heic", ".heif",
}

// defaultSystemPaths are path fragments that mark operating system or
// application content rather than personal photos.
var defaultSystemPaths = []string{
	"windows", "program files", "appdata", "cache", "thumbnails",
	"tmp", "temp", "icons", "banners", "ads", "browser",
}

// defaultAllowPaths exempt a path from the system-path rule: old Windows
// installs hold user profiles, and photo software keeps real libraries
// inside application folders.
var defaultAllowPaths = []string{
	"windows.old",
	"lightroom", "adobe", "capture one", "luminar", "on1", "dxo", "acdsee",
	"zoner", "darktable", "rawtherapee", "photolab", "affinity", "corel",
	"skylum", "apple photos", "google photos", "picasa", "faststone",
	"xnview", "irfanview", "photodirector", "paintshop", "aftershot",
	"photoimpact", "photoplus", "photoscape", "photostudio", "photosuite",
	"photopad", "photodiva", "photoworks",
}

// =============================================================================
// Config
// =============================================================================

// Config is the complete set of settings for one run.
type Config struct {
	SchemaVersion int `json:"schema_version" yaml:"schema_version" mapstructure:"schema_version"`

	SourceDir string `json:"source_dir" yaml:"source_dir" mapstructure:"source_dir"`
	DestDir   string `json:"dest_dir" yaml:"dest_dir" mapstructure:"dest_dir"`

	MinWidth     int   `json:"min_width" yaml:"min_width" mapstructure:"min_width"`
	MinHeight    int   `json:"min_height" yaml:"min_height" mapstructure:"min_height"`
	MinSizeBytes int64 `json:"min_size_bytes" yaml:"min_size_bytes" mapstructure:"min_size_bytes"`

	SystemPaths    []string `json:"system_paths" yaml:"system_paths" mapstructure:"system_paths"`
	AllowPaths     []string `json:"allow_paths" yaml:"allow_paths" mapstructure:"allow_paths"`
	Extensions     []string `json:"extensions" yaml:"extensions" mapstructure:"extensions"`
	IgnorePatterns []string `json:"ignore_patterns" yaml:"ignore_patterns" mapstructure:"ignore_patterns"`

	FolderLayout    string `json:"folder_layout" yaml:"folder_layout" mapstructure:"folder_layout"`
	PrefixParentDir bool   `json:"prefix_parent_dir" yaml:"prefix_parent_dir" mapstructure:"prefix_parent_dir"`

	// ExiftoolPath is the secondary metadata reader; empty disables it.
	ExiftoolPath string `json:"exiftool_path" yaml:"exiftool_path" mapstructure:"exiftool_path"`
}

// Defaults returns a fresh Config with every field at its documented default.
func Defaults() Config {
	return Config{
		SchemaVersion:   SchemaVersion,
		MinWidth:        DefaultMinWidth,
		MinHeight:       DefaultMinHeight,
		MinSizeBytes:    DefaultMinSizeBytes,
		SystemPaths:     clone(defaultSystemPaths),
		AllowPaths:      clone(defaultAllowPaths),
		Extensions:      clone(defaultExtensions),
		IgnorePatterns:  []string{},
		FolderLayout:    DefaultFolderLayout,
		PrefixParentDir: true,
		ExiftoolPath:    DefaultExiftool,
	}
}

// Clone returns a deep copy so callers can never alias another run's slices.
func (c Config) Clone() Config {
	c.SystemPaths = clone(c.SystemPaths)
	c.AllowPaths = clone(c.AllowPaths)
	c.Extensions = clone(c.Extensions)
	c.IgnorePatterns = clone(c.IgnorePatterns)
	return c
}

// MinArea is the pixel count an image without metadata must reach.
func (c Config) MinArea() int64 {
	return int64(c.MinWidth) * int64(c.MinHeight)
}

// SupportsExt reports whether ext (with or without the dot, any case) is in
// the configured extension list.
func (c Config) SupportsExt(ext string) bool {
	ext = normalizeExt(ext)
	for _, e := range c.Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

// Normalize returns a canonical copy: absolute directories, lower-cased,
// de-duplicated lists, dotted extensions, valid ignore patterns only and defaults for values that
// cannot be used. The returned warnings describe every substitution.
func (c Config) Normalize() (Config, []string) {
	var warnings []string
	d := Defaults()

	c = c.Clone()
	c.SchemaVersion = SchemaVersion
	c.SourceDir = cleanDir(c.SourceDir)
	c.DestDir = cleanDir(c.DestDir)

	if c.MinWidth < 0 {
		warnings = append(warnings, "min_width is negative, using default")
		c.MinWidth = d.MinWidth
	}
	if c.MinHeight < 0 {
		warnings = append(warnings, "min_height is negative, using default")
		c.MinHeight = d.MinHeight
	}
	if c.MinSizeBytes < 0 {
		warnings = append(warnings, "min_size_bytes is negative, using default")
		c.MinSizeBytes = d.MinSizeBytes
	}

	c.SystemPaths = normalizeList(c.SystemPaths, strings.ToLower)
	c.AllowPaths = normalizeList(c.AllowPaths, strings.ToLower)
	c.Extensions = normalizeList(c.Extensions, normalizeExt)
	if len(c.Extensions) == 0 {
		warnings = append(warnings, "extensions is empty, using defaults")
		c.Extensions = d.Extensions
	}

	patterns := normalizeList(c.IgnorePatterns, filepath.ToSlash)
	c.IgnorePatterns = patterns[:0]
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			warnings = append(warnings, "dropping invalid ignore pattern "+p)
			continue
		}
		c.IgnorePatterns = append(c.IgnorePatterns, p)
	}

	c.FolderLayout = strings.Trim(filepath.ToSlash(strings.TrimSpace(c.FolderLayout)), "/")
	if c.FolderLayout == "" {
		c.FolderLayout = d.FolderLayout
	}
	c.ExiftoolPath = strings.TrimSpace(c.ExiftoolPath)

	return c, warnings
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

func normalizeList(in []string, f func(string) string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		s = f(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// cleanDir makes dir absolute against the working directory so recorded
// paths stay valid when a later run starts somewhere else.
func cleanDir(dir string) string {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return ""
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return filepath.Clean(dir)
	}
	return abs
}

func clone(in []string) []string {
	if in == nil {
		return []string{}
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
