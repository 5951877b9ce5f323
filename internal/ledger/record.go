package ledger

import (
	"strconv"
	"strings"
	"time"
)

// Verdict is the terminal outcome recorded for a file.
type Verdict string

const (
	Copied                    Verdict = "copied"
	SkippedSystemPath         Verdict = "skipped_system_path"
	SkippedTooSmall           Verdict = "skipped_too_small"
	SkippedDuplicateIdentical Verdict = "skipped_duplicate_identical"
	SkippedError              Verdict = "skipped_error"
)

// Verdicts lists every verdict in reporting order.
var Verdicts = []Verdict{Copied, SkippedSystemPath, SkippedTooSmall, SkippedDuplicateIdentical, SkippedError}

// IsSkip reports whether v is one of the skipped_* verdicts.
func (v Verdict) IsSkip() bool {
	return strings.HasPrefix(string(v), "skipped_")
}

// UnknownTime is written in capture_time when no date could be resolved.
const UnknownTime = "unknown"

// Columns is the header of a new ledger, in order.
var Columns = []string{
	"timestamp",
	"run_id",
	"mode",
	"source_path",
	"dest_path",
	"capture_time",
	"date_source",
	"verdict",
	"reason",
	"size_bytes",
	"hash",
	"copy_anyway",
	"error_message",
}

// columnAliases maps header names written by the first version of the tool
// to their current column.
var columnAliases = map[string]string{
	"src_path":  "source_path",
	"file_size": "size_bytes",
	"action":    "verdict",
}

func canonicalColumn(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if c, ok := columnAliases[name]; ok {
		return c
	}
	return name
}

// Record is one ledger row.
type Record struct {
	Timestamp    time.Time
	RunID        string
	Mode         string
	SourcePath   string
	DestPath     string
	CaptureTime  time.Time // zero when unknown
	DateSource   string
	Verdict      Verdict
	Reason       string
	SizeBytes    int64
	Hash         string
	CopyAnyway   bool
	ErrorMessage string

	// Line is the line the row starts on in the file; zero for rows not read
	// from disk.
	Line int
}

// value renders the field for a canonical column name. Unknown columns are
// left empty.
func (r Record) value(col string) string {
	switch col {
	case "timestamp":
		if r.Timestamp.IsZero() {
			return ""
		}
		return r.Timestamp.Format(time.RFC3339)
	case "run_id":
		return r.RunID
	case "mode":
		return r.Mode
	case "source_path":
		return r.SourcePath
	case "dest_path":
		return r.DestPath
	case "capture_time":
		if r.CaptureTime.IsZero() {
			return UnknownTime
		}
		return r.CaptureTime.Format(time.RFC3339)
	case "date_source":
		return r.DateSource
	case "verdict":
		return string(r.Verdict)
	case "reason":
		return r.Reason
	case "size_bytes":
		return strconv.FormatInt(r.SizeBytes, 10)
	case "hash":
		return r.Hash
	case "copy_anyway":
		if r.CopyAnyway {
			return "yes"
		}
		return ""
	case "error_message":
		return r.ErrorMessage
	default:
		return ""
	}
}

// truthy values a user may type into copy_anyway.
var truthy = map[string]bool{"yes": true, "y": true, "1": true, "true": true, "x": true}

// ParseFlag reports whether a copy_anyway cell is set.
func ParseFlag(s string) bool {
	return truthy[strings.ToLower(strings.TrimSpace(s))]
}

// timeLayouts are accepted in capture_time and timestamp cells. Spreadsheets
// like to reformat dates on save.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006:01:02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02 15:04:05",
	"2006-01-02",
}

// ParseTime parses a time cell. Empty and "unknown" give the zero time.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, UnknownTime) {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// legacyVerdict maps the first version's action/reason pair onto a verdict.
func legacyVerdict(action, reason string) Verdict {
	reason = strings.ToLower(reason)
	switch strings.ToLower(strings.TrimSpace(action)) {
	case "copied":
		return Copied
	case "error":
		return SkippedError
	case "skipped":
		switch {
		case strings.Contains(reason, "system"):
			return SkippedSystemPath
		case strings.Contains(reason, "identical"):
			return SkippedDuplicateIdentical
		case strings.Contains(reason, "small"), strings.Contains(reason, "cannot open"):
			return SkippedTooSmall
		default:
			return SkippedError
		}
	}
	return Verdict(strings.TrimSpace(action))
}

// parseRecord builds a Record from a data row using the column index of the
// file's header.
func parseRecord(cols map[string]int, row []string, line int) Record {
	get := func(col string) string {
		i, ok := cols[col]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	rec := Record{
		RunID:        get("run_id"),
		Mode:         strings.TrimSpace(get("mode")),
		SourcePath:   strings.TrimSpace(get("source_path")),
		DestPath:     strings.TrimSpace(get("dest_path")),
		DateSource:   strings.TrimSpace(get("date_source")),
		Reason:       get("reason"),
		Hash:         strings.TrimSpace(get("hash")),
		CopyAnyway:   ParseFlag(get("copy_anyway")),
		ErrorMessage: get("error_message"),
		Line:         line,
	}
	rec.Timestamp, _ = ParseTime(get("timestamp"))
	rec.CaptureTime, _ = ParseTime(get("capture_time"))
	if n, err := strconv.ParseInt(strings.TrimSpace(get("size_bytes")), 10, 64); err == nil {
		rec.SizeBytes = n
	}

	raw := strings.TrimSpace(get("verdict"))
	switch Verdict(raw) {
	case Copied, SkippedSystemPath, SkippedTooSmall, SkippedDuplicateIdentical, SkippedError:
		rec.Verdict = Verdict(raw)
	default:
		rec.Verdict = legacyVerdict(raw, rec.Reason)
	}
	return rec
}
