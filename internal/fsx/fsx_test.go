package fsx

import (
	"io"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"
)

func TestHashFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/a.txt", []byte("abc"), 0o644))

	got, err := HashFile(fs, "/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", got)

	_, err = HashFile(fs, "/missing.txt")
	assert.Error(t, err)
}

func TestCopyNoOverwrite(t *testing.T) {
	fs := afero.NewMemMapFs()
	mtime := time.Date(2015, 5, 5, 12, 0, 0, 0, time.UTC)
	require.NoError(t, afero.WriteFile(fs, "/src/a.jpg", []byte("photo bytes"), 0o644))
	require.NoError(t, fs.Chtimes("/src/a.jpg", mtime, mtime))

	n, err := CopyNoOverwrite(fs, "/src/a.jpg", "/dst/2015/05/05/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, int64(len("photo bytes")), n)

	b, err := afero.ReadFile(fs, "/dst/2015/05/05/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "photo bytes", string(b))

	fi, err := fs.Stat("/dst/2015/05/05/a.jpg")
	require.NoError(t, err)
	assert.True(t, fi.ModTime().Equal(mtime))

	// no temp files are left behind
	entries, err := afero.ReadDir(fs, "/dst/2015/05/05")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCopyNoOverwriteRefusesExisting(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/src/a.jpg", []byte("new"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/dst/a.jpg", []byte("old"), 0o644))
	require.NoError(t, fs.MkdirAll("/dst/dir.jpg", 0o755))

	_, err := CopyNoOverwrite(fs, "/src/a.jpg", "/dst/a.jpg")
	assert.True(t, errors.Is(err, ErrDestExists))

	b, err := afero.ReadFile(fs, "/dst/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "old", string(b))

	_, err = CopyNoOverwrite(fs, "/src/a.jpg", "/dst/dir.jpg")
	var conflict *PathTypeConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "directory", conflict.Got)

	_, err = CopyNoOverwrite(fs, "/src/missing.jpg", "/dst/b.jpg")
	assert.Error(t, err)
	exists, err := Exists(fs, "/dst/b.jpg")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCopyNoOverwriteReadOnlyDest(t *testing.T) {
	base := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(base, "/src/a.jpg", []byte("x"), 0o644))

	_, err := CopyNoOverwrite(afero.NewReadOnlyFs(base), "/src/a.jpg", "/dst/a.jpg")
	assert.Error(t, err)
}

func TestReplaceFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/work/ledger.csv", []byte("old"), 0o644))

	err := ReplaceFile(fs, "/work/ledger.csv", func(w io.Writer) error {
		_, err := io.WriteString(w, "new content")
		return err
	})
	require.NoError(t, err)

	b, err := afero.ReadFile(fs, "/work/ledger.csv")
	require.NoError(t, err)
	assert.Equal(t, "new content", string(b))

	// a failing writer leaves the original untouched
	err = ReplaceFile(fs, "/work/ledger.csv", func(io.Writer) error {
		return errors.New("boom")
	})
	assert.Error(t, err)
	b, err = afero.ReadFile(fs, "/work/ledger.csv")
	require.NoError(t, err)
	assert.Equal(t, "new content", string(b))

	entries, err := afero.ReadDir(fs, "/work")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDirs(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/file", []byte("x"), 0o644))

	assert.NoError(t, EnsureDir(fs, "/a/b/c"))
	assert.NoError(t, RequireDir(fs, "/a/b"))
	assert.Error(t, RequireDir(fs, "/nope"))
	var conflict *PathTypeConflictError
	assert.True(t, errors.As(RequireDir(fs, "/file"), &conflict))

	ok, err := Exists(fs, "/a/b/c")
	require.NoError(t, err)
	assert.True(t, ok)
}
