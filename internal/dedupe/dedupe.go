// Package dedupe decides what to do when a destination name is already taken.
package dedupe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"gitlab.com/tozd/go/errors"

	"github.com/tendant/photo-organizer/internal/fsx"
)

// MaxAttempts bounds the rename search.
const MaxAttempts = 10000

// stampLayout is the capture time suffix: IMG_0001_20210615_103000.jpg.
const stampLayout = "20060102_150405"

var ErrTooManyCollisions = errors.New("no free destination name")

// Action is what the caller should do with the source file.
type Action int

const (
	WriteHere Action = iota
	SkipIdentical
	WriteRenamed
)

func (a Action) String() string {
	switch a {
	case WriteHere:
		return "write_here"
	case SkipIdentical:
		return "skip_identical"
	case WriteRenamed:
		return "write_renamed"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// Resolution is the answer for one source. Path is where to write for
// WriteHere and WriteRenamed, and the identical existing file for
// SkipIdentical. SourceHash is set once a collision has been examined.
type Resolution struct {
	Action     Action
	Path       string
	SourceHash string
}

// Resolver checks candidate destinations on fs.
type Resolver struct {
	fs afero.Fs
}

func New(fs afero.Fs) *Resolver {
	return &Resolver{fs: fs}
}

// Resolve finds a destination for source starting at candidate. When the
// candidate is taken by a different file, names of the form
// <base>_<YYYYMMDD_HHMMSS><ext>, then <base>_<YYYYMMDD_HHMMSS>_2<ext>, _3 and
// so on are tried. Every existing name on the way is compared to the source,
// so rerunning over an already archived file yields SkipIdentical. A returned
// WriteRenamed path did not exist at resolution time.
func (r *Resolver) Resolve(ctx context.Context, candidate, source string, captured time.Time) (Resolution, error) {
	c := &collision{fs: r.fs, source: source}

	free, same, err := c.check(candidate)
	if err != nil {
		return Resolution{}, err
	}
	if free {
		return Resolution{Action: WriteHere, Path: candidate}, nil
	}
	if same {
		return Resolution{Action: SkipIdentical, Path: candidate, SourceHash: c.sourceHash}, nil
	}

	ext := filepath.Ext(candidate)
	base := strings.TrimSuffix(candidate, ext)
	if !captured.IsZero() {
		base += "_" + captured.Format(stampLayout)
	}

	// without a stamp the bare base is the taken candidate itself
	first := 1
	if captured.IsZero() {
		first = 2
	}
	for n := first; n < first+MaxAttempts; n++ {
		if err := ctx.Err(); err != nil {
			return Resolution{}, err
		}
		next := fmt.Sprintf("%s_%d%s", base, n, ext)
		if n == 1 {
			next = base + ext
		}

		free, same, err := c.check(next)
		if err != nil {
			return Resolution{}, err
		}
		if free {
			zerolog.Ctx(ctx).Debug().Str("source", source).Str("taken", candidate).Str("dest", next).Msg("destination renamed")
			return Resolution{Action: WriteRenamed, Path: next, SourceHash: c.sourceHash}, nil
		}
		if same {
			return Resolution{Action: SkipIdentical, Path: next, SourceHash: c.sourceHash}, nil
		}
	}
	return Resolution{}, errors.Errorf("%w for %s after %d attempts", ErrTooManyCollisions, candidate, MaxAttempts)
}

// collision hashes the source at most once per Resolve.
type collision struct {
	fs         afero.Fs
	source     string
	sourceSize int64
	sourceHash string
}

// check reports whether path is free, and if not, whether it holds the same
// content as the source.
func (c *collision) check(path string) (free, same bool, err error) {
	fi, err := c.fs.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return true, false, nil
	}
	if err != nil {
		return false, false, errors.Errorf("stat %s: %w", path, err)
	}
	if fi.IsDir() {
		// a directory squatting on the name is just another taken name
		return false, false, nil
	}

	if c.sourceHash == "" {
		si, err := c.fs.Stat(c.source)
		if err != nil {
			return false, false, errors.Errorf("stat %s: %w", c.source, err)
		}
		c.sourceSize = si.Size()
		if c.sourceHash, err = fsx.HashFile(c.fs, c.source); err != nil {
			return false, false, err
		}
	}
	if fi.Size() != c.sourceSize {
		return false, false, nil
	}

	h, err := fsx.HashFile(c.fs, path)
	if err != nil {
		return false, false, err
	}
	return false, h == c.sourceHash, nil
}
