package config

import (
	"encoding/json"
	"strconv"
	"strings"

	"gitlab.com/tozd/go/errors"
)

// CellMarker starts the config cell in row 2 of a ledger.
const CellMarker = "CONFIG"

// wireConfig mirrors Config with pointer fields so a decoded cell tells us
// exactly which keys were present and well-typed.
type wireConfig struct {
	SchemaVersion   *int      `json:"schema_version"`
	SourceDir       *string   `json:"source_dir"`
	DestDir         *string   `json:"dest_dir"`
	MinWidth        *int      `json:"min_width"`
	MinHeight       *int      `json:"min_height"`
	MinSizeBytes    *int64    `json:"min_size_bytes"`
	SystemPaths     *[]string `json:"system_paths"`
	AllowPaths      *[]string `json:"allow_paths"`
	Extensions      *[]string `json:"extensions"`
	IgnorePatterns  *[]string `json:"ignore_patterns"`
	FolderLayout    *string   `json:"folder_layout"`
	PrefixParentDir *bool     `json:"prefix_parent_dir"`
	ExiftoolPath    *string   `json:"exiftool_path"`
}

// EncodeCell serializes c into the single ledger cell form
// `CONFIG {"schema_version":2,...}`. The output is deterministic.
func EncodeCell(c Config) (string, error) {
	c, _ = c.Normalize()
	b, err := json.Marshal(c)
	if err != nil {
		return "", errors.Errorf("encoding config cell: %w", err)
	}
	return CellMarker + " " + string(b), nil
}

// IsCell reports whether the first cell of a row is a config cell.
func IsCell(first string) bool {
	first = strings.TrimSpace(first)
	return first == CellMarker || strings.HasPrefix(first, CellMarker+" ")
}

// DecodeCell restores a Config from the cells of a ledger config row.
//
// Decoding never fails: anything missing, null, mistyped or unparsable
// resolves to its default and is reported in the returned warnings. Both the
// JSON form and the original KEY=VALUE;... form are understood.
func DecodeCell(cells []string) (Config, []string) {
	if len(cells) == 0 || !IsCell(cells[0]) {
		return Defaults(), []string{"config cell missing, using defaults"}
	}

	first := strings.TrimSpace(cells[0])
	payload := strings.TrimSpace(strings.TrimPrefix(first, CellMarker))
	if payload == "" && len(cells) > 1 {
		// legacy layout: CONFIG in the first cell, payload in the second
		payload = strings.TrimSpace(cells[1])
	}
	if payload == "" {
		return Defaults(), []string{"config cell empty, using defaults"}
	}

	var (
		cfg      Config
		warnings []string
	)
	if strings.HasPrefix(payload, "{") {
		cfg, warnings = decodeJSON(payload)
	} else {
		cfg, warnings = decodeLegacy(payload)
	}

	cfg, more := cfg.Normalize()
	return cfg, append(warnings, more...)
}

func decodeJSON(payload string) (Config, []string) {
	cfg := Defaults()
	var warnings []string

	var w wireConfig
	if err := json.Unmarshal([]byte(payload), &w); err != nil {
		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &typeErr) {
			return cfg, []string{"config cell unreadable, using defaults: " + err.Error()}
		}
		// mistyped fields are left nil, the rest are usable
		warnings = append(warnings, "config cell has mistyped field "+typeErr.Field+", using default")
	}

	if w.SchemaVersion != nil && *w.SchemaVersion > SchemaVersion {
		warnings = append(warnings, "config cell written by a newer schema "+strconv.Itoa(*w.SchemaVersion))
	}
	if w.SourceDir != nil {
		cfg.SourceDir = *w.SourceDir
	}
	if w.DestDir != nil {
		cfg.DestDir = *w.DestDir
	}
	if w.MinWidth != nil {
		cfg.MinWidth = *w.MinWidth
	}
	if w.MinHeight != nil {
		cfg.MinHeight = *w.MinHeight
	}
	if w.MinSizeBytes != nil {
		cfg.MinSizeBytes = *w.MinSizeBytes
	}
	if w.SystemPaths != nil {
		cfg.SystemPaths = *w.SystemPaths
	}
	if w.AllowPaths != nil {
		cfg.AllowPaths = *w.AllowPaths
	}
	if w.Extensions != nil {
		cfg.Extensions = *w.Extensions
	}
	if w.IgnorePatterns != nil {
		cfg.IgnorePatterns = *w.IgnorePatterns
	}
	if w.FolderLayout != nil {
		cfg.FolderLayout = *w.FolderLayout
	}
	if w.PrefixParentDir != nil {
		cfg.PrefixParentDir = *w.PrefixParentDir
	}
	if w.ExiftoolPath != nil {
		cfg.ExiftoolPath = *w.ExiftoolPath
	}
	return cfg, warnings
}

// decodeLegacy reads the schema 1 cell: KEY=VALUE pairs separated by ';',
// list values separated by ','.
func decodeLegacy(payload string) (Config, []string) {
	cfg := Defaults()
	var warnings []string

	for _, item := range strings.Split(payload, ";") {
		k, v, ok := strings.Cut(item, "=")
		if !ok {
			continue
		}
		k = strings.ToUpper(strings.TrimSpace(k))
		v = strings.TrimSpace(v)

		switch k {
		case "SOURCE_DIR":
			cfg.SourceDir = v
		case "DEST_DIR":
			cfg.DestDir = v
		case "MIN_WIDTH":
			if n, ok := legacyInt(v, k, &warnings); ok {
				cfg.MinWidth = int(n)
			}
		case "MIN_HEIGHT":
			if n, ok := legacyInt(v, k, &warnings); ok {
				cfg.MinHeight = int(n)
			}
		case "MIN_FILESIZE":
			if n, ok := legacyInt(v, k, &warnings); ok {
				cfg.MinSizeBytes = n
			}
		case "SUPPORTED_EXTENSIONS":
			cfg.Extensions = strings.Split(v, ",")
		case "SYSTEM_FOLDERS":
			cfg.SystemPaths = strings.Split(v, ",")
		}
	}
	return cfg, warnings
}

// legacyInt parses a schema 1 threshold. The original tool treated values
// below 1 as unset.
func legacyInt(v, key string, warnings *[]string) (int64, bool) {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		*warnings = append(*warnings, key+" is not a number, using default")
		return 0, false
	}
	if n < 1 {
		return 0, false
	}
	return n, true
}
