package media

import (
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"

	"github.com/spf13/afero"
	"gitlab.com/tozd/go/errors"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrUnreadable marks a file that could not be opened or read, as opposed to
// one whose format has no decoder.
var ErrUnreadable = errors.New("image unreadable")

// Dimensions returns the pixel size of the image at path by decoding only its
// header. Formats without a registered decoder (HEIC and most RAWs) return an
// error; callers treat that as 0x0. Open and read failures wrap ErrUnreadable.
func Dimensions(afs afero.Fs, path string) (int, int, error) {
	f, err := afs.Open(path)
	if err != nil {
		return 0, 0, errors.Errorf("%w: %s", ErrUnreadable, err.Error())
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			return 0, 0, errors.Errorf("%w: %s", ErrUnreadable, err.Error())
		}
		return 0, 0, errors.Errorf("reading dimensions of %s: %w", path, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return 0, 0, errors.Errorf("%s header reports %dx%d", format, cfg.Width, cfg.Height)
	}
	return cfg.Width, cfg.Height, nil
}
