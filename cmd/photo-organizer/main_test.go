package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"

	"github.com/tendant/photo-organizer/internal/ledger"
	"github.com/tendant/photo-organizer/internal/organizer"
)

func execute(t *testing.T, fs afero.Fs, args ...string) (string, error) {
	t.Helper()
	color.NoColor = true

	var stdout, stderr bytes.Buffer
	a := newApp(fs, &stdout, &stderr)
	cmd := a.command()
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	a.close()
	t.Log(stderr.String())
	return stdout.String(), err
}

// libraryFlags points a command at the library created by init.
var libraryFlags = []string{
	"--config", "/lib/photo-organizer.yaml",
	"--ledger", "/lib/ledger.csv",
	"--exiftool", "",
	"--quiet",
}

func withLibrary(args ...string) []string {
	return append(args, libraryFlags...)
}

func TestInitCreatesLibrary(t *testing.T) {
	fs := afero.NewMemMapFs()

	out, err := execute(t, fs, "init", "/lib")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Incoming/")
	assert.Contains(t, out, "✓ Originals/")

	for _, dir := range []string{"/lib/Incoming", "/lib/Originals"} {
		ok, err := afero.DirExists(fs, dir)
		require.NoError(t, err)
		assert.True(t, ok, dir)
	}
	profile, err := afero.ReadFile(fs, "/lib/photo-organizer.yaml")
	require.NoError(t, err)
	assert.Contains(t, string(profile), "source_dir: /lib/Incoming")
	assert.Contains(t, string(profile), "dest_dir: /lib/Originals")

	out, err = execute(t, fs, "init", "/lib")
	require.NoError(t, err)
	assert.Contains(t, out, "⊘ Incoming/ (already exists)")
	assert.Contains(t, out, "⊘ photo-organizer.yaml (already exists)")
}

func TestRunResumeAndShow(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := execute(t, fs, "init", "/lib")
	require.NoError(t, err)

	require.NoError(t, afero.WriteFile(fs, "/lib/Incoming/trip/big.jpg", bytes.Repeat([]byte("x"), 60000), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/lib/Incoming/trip/small.jpg", []byte("tiny"), 0o644))

	out, err := execute(t, fs, withLibrary("run", "--log-file", "/lib/run.log")...)
	require.NoError(t, err)
	assert.Contains(t, out, "normal run")
	assert.Regexp(t, `copied\s+1`, out)
	assert.Regexp(t, `skipped_too_small\s+1`, out)

	l, err := ledger.Open(context.Background(), fs, "/lib/ledger.csv")
	require.NoError(t, err)
	records := l.Records()
	require.Len(t, records, 2)
	assert.Equal(t, ledger.Copied, records[0].Verdict)
	assert.True(t, strings.HasPrefix(records[0].DestPath, "/lib/Originals/"))
	assert.True(t, strings.HasSuffix(records[0].DestPath, "/trip_big.jpg"))

	logs, err := afero.ReadFile(fs, "/lib/run.log")
	require.NoError(t, err)
	assert.Contains(t, string(logs), `"message":"file processed"`)

	out, err = execute(t, fs, withLibrary("resume")...)
	require.NoError(t, err)
	assert.Regexp(t, `already in ledger\s+2`, out)
	assert.Regexp(t, `processed\s+0`, out)

	out, err = execute(t, fs, withLibrary("config", "show", "--from-ledger")...)
	require.NoError(t, err)
	assert.Contains(t, out, "source_dir: /lib/Incoming")
}

func TestRunRefusesExistingLedger(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := execute(t, fs, "init", "/lib")
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, "/lib/ledger.csv", []byte("x\n"), 0o644))

	_, err = execute(t, fs, withLibrary("run")...)
	assert.True(t, errors.Is(err, organizer.ErrLedgerExists))
}

func TestRunMissingSource(t *testing.T) {
	_, err := execute(t, afero.NewMemMapFs(), "run", "--source", "/nope", "--dest", "/out", "--ledger", "/l.csv", "--quiet")
	assert.True(t, errors.Is(err, organizer.ErrSourceMissing))
}

func TestConfigShowAppliesFlags(t *testing.T) {
	out, err := execute(t, afero.NewMemMapFs(), "config", "show", "--min-width", "1024", "--ignore", "**/.git/**")
	require.NoError(t, err)
	assert.Contains(t, out, "min_width: 1024")
	assert.Contains(t, out, "min_height: 600")
	assert.Contains(t, out, "**/.git/**")
}

func TestMissingConfigFileIsAnErrorOnlyWhenNamed(t *testing.T) {
	_, err := execute(t, afero.NewMemMapFs(), "config", "show")
	require.NoError(t, err)

	_, err = execute(t, afero.NewMemMapFs(), "config", "show", "--config", "/missing.yaml")
	assert.Error(t, err)
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KiB", formatBytes(1536))
	assert.Equal(t, "3.0 MiB", formatBytes(3*1024*1024))
}
