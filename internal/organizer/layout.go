package organizer

import (
	"path/filepath"
	"time"

	"github.com/tendant/photo-organizer/internal/config"
)

// unknownDateDir holds files placed without any date.
const unknownDateDir = "unknown"

// Destination builds the target path for src captured at t:
// dest/<t formatted with FolderLayout>/[parent_]name.
func Destination(cfg config.Config, src string, t time.Time) string {
	name := filepath.Base(src)
	if cfg.PrefixParentDir {
		parent := filepath.Base(filepath.Dir(src))
		if parent != "." && parent != string(filepath.Separator) && parent != "" {
			name = parent + "_" + name
		}
	}

	dir := unknownDateDir
	if !t.IsZero() {
		dir = filepath.FromSlash(t.Format(cfg.FolderLayout))
	}
	return filepath.Join(cfg.DestDir, dir, name)
}
