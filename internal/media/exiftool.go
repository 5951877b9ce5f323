package media

import (
	"context"
	"encoding/json"
	"os/exec"
	"time"

	"gitlab.com/tozd/go/errors"
)

// exiftoolTags are read in order; the first parsable one wins.
var exiftoolTags = []string{"DateTimeOriginal", "CreateDate"}

// runFunc executes the exiftool binary and returns its stdout.
type runFunc func(ctx context.Context, bin string, args ...string) ([]byte, error)

type exiftoolReader struct {
	bin string
	run runFunc
}

// NewExiftoolReader returns a Reader backed by the exiftool binary. It fails
// when bin is empty or cannot be found on PATH.
func NewExiftoolReader(bin string) (Reader, error) {
	if bin == "" {
		return nil, errors.New("exiftool disabled")
	}
	resolved, err := exec.LookPath(bin)
	if err != nil {
		return nil, errors.Errorf("locating exiftool: %w", err)
	}
	return newExiftoolReader(resolved, runCommand), nil
}

func newExiftoolReader(bin string, run runFunc) Reader {
	return exiftoolReader{bin: bin, run: run}
}

func runCommand(ctx context.Context, bin string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, bin, args...).Output()
}

func (exiftoolReader) Source() DateSource { return SourceExiftool }

func (r exiftoolReader) ReadCapture(ctx context.Context, path string) (time.Time, error) {
	args := []string{"-j", "-n"}
	for _, tag := range exiftoolTags {
		args = append(args, "-"+tag)
	}
	args = append(args, path)

	out, err := r.run(ctx, r.bin, args...)
	if err != nil {
		return time.Time{}, errors.Errorf("running exiftool: %w", err)
	}
	return parseExiftoolJSON(out)
}

// parseExiftoolJSON reads `exiftool -j` output: an array with one object per
// file, keyed by tag name.
func parseExiftoolJSON(out []byte) (time.Time, error) {
	var entries []map[string]any
	if err := json.Unmarshal(out, &entries); err != nil {
		return time.Time{}, errors.Errorf("decoding exiftool output: %w", err)
	}
	if len(entries) == 0 {
		return time.Time{}, ErrNoDate
	}
	for _, tag := range exiftoolTags {
		s, ok := entries[0][tag].(string)
		if !ok {
			continue
		}
		if t, err := ParseExifTime(s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrNoDate
}
