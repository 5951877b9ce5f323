// Package fsx holds the filesystem primitives the organizer relies on, all
// expressed over afero.Fs so the whole engine runs against memory in tests.
//
// Writes into the destination tree never replace an existing file: copies
// land in a hidden temp file next to the target and are renamed into place
// only after the data is synced.
package fsx

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"gitlab.com/tozd/go/errors"
)

// ErrDestExists is returned when a copy target is already taken.
var ErrDestExists = errors.New("destination already exists")

// PathTypeConflictError reports a path that exists with the wrong type, for
// example a directory where a file is expected.
type PathTypeConflictError struct {
	Path string
	Want string
	Got  string
}

func (e *PathTypeConflictError) Error() string {
	return "path " + e.Path + " is a " + e.Got + ", expected a " + e.Want
}

// Exists reports whether anything exists at path.
func Exists(fs afero.Fs, path string) (bool, error) {
	_, err := fs.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, errors.Errorf("stat %s: %w", path, err)
}

// RequireDir fails unless path exists and is a directory.
func RequireDir(fs afero.Fs, path string) error {
	fi, err := fs.Stat(path)
	if err != nil {
		return errors.Errorf("stat %s: %w", path, err)
	}
	if !fi.IsDir() {
		return &PathTypeConflictError{Path: path, Want: "directory", Got: "file"}
	}
	return nil
}

// EnsureDir creates path and its parents if needed.
func EnsureDir(fs afero.Fs, path string) error {
	if err := fs.MkdirAll(path, 0o755); err != nil {
		return errors.Errorf("creating directory %s: %w", path, err)
	}
	return RequireDir(fs, path)
}

// HashFile returns the hex SHA-256 of the full content of path.
func HashFile(fs afero.Fs, path string) (string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return "", errors.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// CopyNoOverwrite copies src to dst, creating parent directories. It returns
// ErrDestExists if dst is taken and never leaves a partial file at dst. The
// source modification time is carried over. The number of bytes copied is
// returned.
func CopyNoOverwrite(fs afero.Fs, src, dst string) (int64, error) {
	if err := checkFree(fs, dst); err != nil {
		return 0, err
	}

	in, err := fs.Open(src)
	if err != nil {
		return 0, errors.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	srcInfo, err := in.Stat()
	if err != nil {
		return 0, errors.Errorf("stat %s: %w", src, err)
	}

	dir := filepath.Dir(dst)
	if err := EnsureDir(fs, dir); err != nil {
		return 0, err
	}

	var n int64
	err = writeTemp(fs, dir, filepath.Base(dst), func(tmp afero.File) error {
		var err error
		n, err = io.Copy(tmp, in)
		if err != nil {
			return errors.Errorf("copying %s: %w", src, err)
		}
		return nil
	}, func(tmpName string) error {
		// mtime is best effort
		_ = fs.Chtimes(tmpName, srcInfo.ModTime(), srcInfo.ModTime())
		if err := checkFree(fs, dst); err != nil {
			return err
		}
		return rename(fs, tmpName, dst)
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// ReplaceFile atomically replaces path with whatever write produces.
func ReplaceFile(fs afero.Fs, path string, write func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	return writeTemp(fs, dir, filepath.Base(path), func(tmp afero.File) error {
		return write(tmp)
	}, func(tmpName string) error {
		return rename(fs, tmpName, path)
	})
}

// writeTemp creates a hidden temp file in dir, fills it, syncs and closes it,
// then hands its name to commit. The temp file is removed on any failure.
func writeTemp(fs afero.Fs, dir, name string, fill func(afero.File) error, commit func(tmpName string) error) error {
	tmp, err := afero.TempFile(fs, dir, "."+name+".tmp-*")
	if err != nil {
		return errors.Errorf("creating temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	closed, committed := false, false
	defer func() {
		if !closed {
			_ = tmp.Close()
		}
		if !committed {
			_ = fs.Remove(tmpName)
		}
	}()

	if err := fill(tmp); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return errors.Errorf("syncing %s: %w", tmpName, err)
	}
	closed = true
	if err := tmp.Close(); err != nil {
		return errors.Errorf("closing %s: %w", tmpName, err)
	}
	if err := commit(tmpName); err != nil {
		return err
	}
	committed = true
	return nil
}

func checkFree(fs afero.Fs, dst string) error {
	fi, err := fs.Stat(dst)
	if err == nil {
		if fi.IsDir() {
			return &PathTypeConflictError{Path: dst, Want: "file", Got: "directory"}
		}
		return errors.Errorf("%w: %s", ErrDestExists, dst)
	}
	if !errors.Is(err, os.ErrNotExist) {
		return errors.Errorf("stat %s: %w", dst, err)
	}
	return nil
}

func rename(fs afero.Fs, from, to string) error {
	if err := fs.Rename(from, to); err != nil {
		return errors.Errorf("renaming %s to %s: %w", from, to, err)
	}
	return nil
}
