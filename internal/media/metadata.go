// Package media answers two questions about an image file: when was it
// captured, and how large is it in pixels.
//
// Capture time comes from a chain of readers. Embedded EXIF (goexif) is tried
// first, then the external exiftool binary. Any reader failure counts as
// "no metadata" and is never fatal. When metadata is absent the caller can fall
// back to a date parsed from the filename and finally the file's modification
// time, which always exists.
package media

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/spf13/afero"
	"gitlab.com/tozd/go/errors"

	"github.com/tendant/photo-organizer/internal/config"
)

// =============================================================================
// Types
// =============================================================================

// DateSource names where a capture date came from.
type DateSource string

const (
	SourceNone     DateSource = ""
	SourceEXIF     DateSource = "exif"
	SourceExiftool DateSource = "exiftool"
	SourceFilename DateSource = "filename"
	SourceModTime  DateSource = "mtime"
)

// IsMetadata reports whether the date came from real capture metadata rather
// than a filesystem fallback.
func (s DateSource) IsMetadata() bool {
	return s == SourceEXIF || s == SourceExiftool
}

// Capture is a resolved date and its provenance.
type Capture struct {
	Time   time.Time
	Source DateSource
}

// Reader is one tier of metadata extraction.
type Reader interface {
	Source() DateSource
	ReadCapture(ctx context.Context, path string) (time.Time, error)
}

var (
	ErrUnsupported = errors.New("format not supported by reader")
	ErrNoDate      = errors.New("no capture date in metadata")
)

// exifExts are the formats goexif can decode: JPEG and TIFF-based containers,
// which includes most camera RAW files.
var exifExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".tif":  true,
	".tiff": true,
	".dng":  true, // Adobe Digital Negative
	".nef":  true, // Nikon RAW
	".cr2":  true, // Canon RAW
	".arw":  true, // Sony RAW
	".orf":  true, // Olympus RAW
	".rw2":  true, // Panasonic RAW
}

// =============================================================================
// Resolver
// =============================================================================

// Resolver runs the configured readers in order.
type Resolver struct {
	readers []Reader
}

// NewResolver builds the standard two-tier chain for cfg: goexif over fs,
// then exiftool if cfg.ExiftoolPath names an executable that can be found.
func NewResolver(ctx context.Context, fs afero.Fs, cfg config.Config) *Resolver {
	readers := []Reader{NewEXIFReader(fs)}
	if et, err := NewExiftoolReader(cfg.ExiftoolPath); err == nil {
		readers = append(readers, et)
	} else if cfg.ExiftoolPath != "" {
		zerolog.Ctx(ctx).Debug().Err(err).Str("exiftool", cfg.ExiftoolPath).Msg("secondary metadata reader disabled")
	}
	return NewResolverWithReaders(readers...)
}

// NewResolverWithReaders builds a resolver from an explicit chain.
func NewResolverWithReaders(readers ...Reader) *Resolver {
	return &Resolver{readers: readers}
}

// Resolve returns the first capture date any reader finds. ok is false when
// no reader produced a date.
func (r *Resolver) Resolve(ctx context.Context, path string) (Capture, bool) {
	for _, rd := range r.readers {
		t, err := rd.ReadCapture(ctx, path)
		if err != nil {
			if !errors.Is(err, ErrUnsupported) {
				zerolog.Ctx(ctx).Debug().Err(err).Str("source", path).Str("reader", string(rd.Source())).Msg("metadata not found")
			}
			continue
		}
		if t.IsZero() {
			continue
		}
		return Capture{Time: t, Source: rd.Source()}, true
	}
	return Capture{}, false
}

// DateFor picks the date that places a file in the destination tree:
// metadata when any reader has it, otherwise FallbackDate. The returned
// Source tells the caller whether real metadata was found.
func (r *Resolver) DateFor(ctx context.Context, path string, modTime time.Time) Capture {
	if c, ok := r.Resolve(ctx, path); ok {
		return c
	}
	return FallbackDate(path, modTime)
}

// FallbackDate is used when Resolve finds nothing: a date in the filename,
// otherwise the modification time.
func FallbackDate(path string, modTime time.Time) Capture {
	if t, ok := DateFromFilename(filepath.Base(path)); ok {
		return Capture{Time: t, Source: SourceFilename}
	}
	return Capture{Time: modTime, Source: SourceModTime}
}

// =============================================================================
// EXIF reader
// =============================================================================

type exifReader struct {
	fs afero.Fs
}

// NewEXIFReader reads DateTimeOriginal (falling back to DateTime) with goexif.
func NewEXIFReader(fs afero.Fs) Reader {
	return exifReader{fs: fs}
}

func (exifReader) Source() DateSource { return SourceEXIF }

func (r exifReader) ReadCapture(ctx context.Context, path string) (time.Time, error) {
	if !exifExts[strings.ToLower(filepath.Ext(path))] {
		return time.Time{}, ErrUnsupported
	}

	f, err := r.fs.Open(path)
	if err != nil {
		return time.Time{}, errors.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil && (x == nil || exif.IsCriticalError(err)) {
		return time.Time{}, errors.Errorf("decoding exif: %w", err)
	}

	t, err := x.DateTime()
	if err != nil {
		return time.Time{}, errors.Errorf("%w: %s", ErrNoDate, err.Error())
	}
	if !plausible(t) {
		return time.Time{}, ErrNoDate
	}
	return t, nil
}

// =============================================================================
// Date parsing
// =============================================================================

const exifLayout = "2006:01:02 15:04:05"

// ParseExifTime parses the EXIF "YYYY:MM:DD HH:MM:SS" form. Sub-second and
// zone suffixes written by exiftool are ignored, as is the all-zero date
// cameras write when their clock was never set.
func ParseExifTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) < len(exifLayout) {
		return time.Time{}, errors.Errorf("%w: %q", ErrNoDate, s)
	}
	t, err := time.ParseInLocation(exifLayout, s[:len(exifLayout)], time.Local)
	if err != nil {
		return time.Time{}, errors.Errorf("%w: %q", ErrNoDate, s)
	}
	if !plausible(t) {
		return time.Time{}, errors.Errorf("%w: %q", ErrNoDate, s)
	}
	return t, nil
}

func plausible(t time.Time) bool {
	return !t.IsZero() && t.Year() > 1800
}
