// Package classify decides whether a file is a genuine photo worth keeping.
//
// Rules are applied in order and the first match wins:
//
//  1. a system or application path is skipped, unless an allow-list entry
//     also matches (old Windows installs, photo software libraries)
//  2. a file with capture metadata is accepted whatever its size
//  3. otherwise the file is accepted if its pixel area or its byte size meets
//     the configured minimum
//  4. everything else is skipped as too small
//
// A file that cannot be read while measuring it is not judged at all and is
// reported as SkipUnreadable.
package classify

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/tendant/photo-organizer/internal/config"
	"github.com/tendant/photo-organizer/internal/media"
)

// Decision is the outcome of classifying one file.
type Decision int

const (
	Accept Decision = iota
	SkipSystem
	SkipSmall
	SkipUnreadable
)

func (d Decision) String() string {
	switch d {
	case Accept:
		return "accept"
	case SkipSystem:
		return "skip_system"
	case SkipSmall:
		return "skip_small"
	case SkipUnreadable:
		return "skip_unreadable"
	default:
		return fmt.Sprintf("Decision(%d)", int(d))
	}
}

// Candidate is what the classifier needs to know about a file.
type Candidate struct {
	Path        string
	Size        int64
	HasMetadata bool
}

// Result carries the decision with a human readable reason. Width and Height
// are only set when the rule needed them. Err is set for SkipUnreadable.
type Result struct {
	Decision Decision
	Reason   string
	Width    int
	Height   int
	Err      error
}

// MeasureFunc returns the pixel dimensions of the image at path. An error
// wrapping media.ErrUnreadable means the file itself could not be read; any
// other error means its format cannot be measured.
type MeasureFunc func(path string) (width, height int, err error)

// Classifier applies the rules for one Config.
type Classifier struct {
	cfg     config.Config
	measure MeasureFunc
}

// New returns a Classifier. measure is only called when rule 3 needs the
// dimensions.
func New(cfg config.Config, measure MeasureFunc) *Classifier {
	return &Classifier{cfg: cfg, measure: measure}
}

// SystemMatch returns the system-path fragment that marks path, or "" when
// the path is not a system path or an allow-list entry exempts it. The path is
// matched relative to the source root, lower-cased and with '/' separators
// regardless of the platform it was recorded on.
func (c *Classifier) SystemMatch(path string) string {
	p := c.normalize(path)
	for _, allow := range c.cfg.AllowPaths {
		if strings.Contains(p, allow) {
			return ""
		}
	}
	for _, sys := range c.cfg.SystemPaths {
		if strings.Contains(p, sys) {
			return sys
		}
	}
	return ""
}

// IsSystemPath reports whether rule 1 skips path.
func (c *Classifier) IsSystemPath(path string) bool {
	return c.SystemMatch(path) != ""
}

func (c *Classifier) normalize(path string) string {
	p := strings.ToLower(strings.ReplaceAll(path, `\`, "/"))
	root := strings.ToLower(strings.ReplaceAll(c.cfg.SourceDir, `\`, "/"))
	root = strings.TrimSuffix(root, "/")
	if root != "" && strings.HasPrefix(p, root+"/") {
		p = p[len(root):]
	}
	return p
}

// Classify runs the rules against cand.
func (c *Classifier) Classify(ctx context.Context, cand Candidate) Result {
	if sys := c.SystemMatch(cand.Path); sys != "" {
		return Result{Decision: SkipSystem, Reason: "system/app folder (" + sys + ")"}
	}

	if cand.HasMetadata {
		return Result{Decision: Accept, Reason: "capture metadata present"}
	}

	if cand.Size >= c.cfg.MinSizeBytes {
		return Result{Decision: Accept, Reason: fmt.Sprintf("file size %d meets minimum", cand.Size)}
	}

	w, h, err := c.measure(cand.Path)
	if errors.Is(err, media.ErrUnreadable) {
		return Result{Decision: SkipUnreadable, Reason: "source unreadable", Err: err}
	}
	if err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Str("source", cand.Path).Msg("dimensions unavailable")
		return Result{Decision: SkipSmall, Reason: fmt.Sprintf("file too small (%d bytes), dimensions unreadable", cand.Size)}
	}
	if int64(w)*int64(h) >= c.cfg.MinArea() {
		return Result{Decision: Accept, Reason: fmt.Sprintf("resolution %dx%d meets minimum", w, h), Width: w, Height: h}
	}
	return Result{Decision: SkipSmall, Reason: fmt.Sprintf("resolution too small (%dx%d)", w, h), Width: w, Height: h}
}
