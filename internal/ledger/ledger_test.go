package ledger

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"

	"github.com/tendant/photo-organizer/internal/config"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	return zerolog.New(zerolog.NewTestWriter(t)).WithContext(context.Background())
}

func testConfig() config.Config {
	c := config.Defaults()
	c.SourceDir = "/src"
	c.DestDir = "/dst"
	return c
}

func sampleRecord(source string) Record {
	return Record{
		Timestamp:   time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC),
		RunID:       "run-1",
		Mode:        "normal",
		SourcePath:  source,
		DestPath:    "/dst/2022/01/01/src_" + source[strings.LastIndex(source, "/")+1:],
		CaptureTime: time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC),
		DateSource:  "exif",
		Verdict:     Copied,
		Reason:      "capture metadata present",
		SizeBytes:   2048,
	}
}

func read(t *testing.T, fs afero.Fs, path string) string {
	t.Helper()
	b, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	return string(b)
}

func TestCreateAppendReopen(t *testing.T) {
	ctx := testContext(t)
	fs := afero.NewMemMapFs()

	l, err := Create(ctx, fs, "/work/ledger.csv", testConfig())
	require.NoError(t, err)

	rec := sampleRecord("/src/a.jpg")
	require.NoError(t, l.Append(rec))
	skipped := Record{
		Timestamp:    rec.Timestamp,
		RunID:        "run-1",
		Mode:         "normal",
		SourcePath:   "/src/b, with comma.jpg",
		Verdict:      SkippedError,
		Reason:       "copy failed",
		ErrorMessage: "permission denied",
	}
	require.NoError(t, l.Append(skipped))
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	content := read(t, fs, "/work/ledger.csv")
	lines := strings.Split(strings.TrimSuffix(content, "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, strings.Join(Columns, ","), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], `"CONFIG {`))

	reopened, err := Open(ctx, fs, "/work/ledger.csv")
	require.NoError(t, err)
	assert.Empty(t, reopened.Warnings())

	want, _ := testConfig().Normalize()
	assert.Equal(t, want, reopened.Config())

	records := reopened.Records()
	require.Len(t, records, 2)
	got := records[0]
	assert.Equal(t, "/src/a.jpg", got.SourcePath)
	assert.Equal(t, rec.DestPath, got.DestPath)
	assert.Equal(t, Copied, got.Verdict)
	assert.Equal(t, int64(2048), got.SizeBytes)
	assert.True(t, got.CaptureTime.Equal(rec.CaptureTime))
	assert.True(t, got.Timestamp.Equal(rec.Timestamp))
	assert.Equal(t, 3, got.Line)

	assert.Equal(t, "/src/b, with comma.jpg", records[1].SourcePath)
	assert.True(t, records[1].CaptureTime.IsZero())
	assert.Equal(t, "permission denied", records[1].ErrorMessage)

	assert.True(t, reopened.Has("/src/a.jpg"))
	assert.False(t, reopened.Has("/src/c.jpg"))
}

func TestCreateRefusesExisting(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/work/ledger.csv", []byte("x"), 0o644))

	_, err := Create(testContext(t), fs, "/work/ledger.csv", testConfig())
	assert.True(t, errors.Is(err, ErrExists))
	assert.Equal(t, "x", read(t, fs, "/work/ledger.csv"))
}

func TestOpenMissing(t *testing.T) {
	_, err := Open(testContext(t), afero.NewMemMapFs(), "/nope.csv")
	assert.Error(t, err)
}

func TestAppendBeforeBegin(t *testing.T) {
	fs := afero.NewMemMapFs()
	l, err := Create(testContext(t), fs, "/l.csv", testConfig())
	require.NoError(t, err)
	require.NoError(t, l.Close())

	reopened, err := Open(testContext(t), fs, "/l.csv")
	require.NoError(t, err)
	assert.True(t, errors.Is(reopened.Append(sampleRecord("/src/a.jpg")), ErrNotOpen))
}

const legacyHeader = "timestamp,action,reason,src_path,dest_path,file_size,copy_anyway\r\n"

const legacyConfig = `CONFIG,"SOURCE_DIR=/old;DEST_DIR=/new;MIN_WIDTH=800;MIN_HEIGHT=600;MIN_FILESIZE=51200;` +
	`SUPPORTED_EXTENSIONS=.jpg,.png;SYSTEM_FOLDERS=windows,cache"` + "\r\n"

const legacyData = "2024-01-02T10:00:00.123456,copied,success,/old/a.jpg,/new/2023/05/01/old_a.jpg,123456,\r\n" +
	"2024-01-02T10:00:01.000001,skipped,system/app folder,/old/windows/b.jpg,,0,\r\n" +
	"2024-01-02T10:00:02.5,skipped,resolution too small (500x500),/old/c.jpg,,0,yes\r\n"

func TestLegacyLedger(t *testing.T) {
	ctx := testContext(t)
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/l.csv", []byte(legacyHeader+legacyConfig+legacyData), 0o644))

	l, err := Open(ctx, fs, "/l.csv")
	require.NoError(t, err)

	cfg := l.Config()
	assert.Equal(t, "/old", cfg.SourceDir)
	assert.Equal(t, "/new", cfg.DestDir)
	assert.Equal(t, 800, cfg.MinWidth)
	assert.Equal(t, []string{".jpg", ".png"}, cfg.Extensions)
	assert.Equal(t, config.DefaultFolderLayout, cfg.FolderLayout)

	records := l.Records()
	require.Len(t, records, 3)
	assert.Equal(t, Copied, records[0].Verdict)
	assert.Equal(t, "/new/2023/05/01/old_a.jpg", records[0].DestPath)
	assert.Equal(t, int64(123456), records[0].SizeBytes)
	assert.False(t, records[0].Timestamp.IsZero())
	assert.Equal(t, SkippedSystemPath, records[1].Verdict)
	assert.Equal(t, SkippedTooSmall, records[2].Verdict)
	assert.True(t, records[2].CopyAnyway)
	assert.False(t, records[1].CopyAnyway)

	require.NoError(t, l.BeginAppend(ctx, cfg))
	require.NoError(t, l.Append(Record{
		Timestamp:   time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC),
		RunID:       "r1",
		Mode:        "resume",
		SourcePath:  "/old/d.jpg",
		DestPath:    "/new/2022/01/01/old_d.jpg",
		CaptureTime: time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC),
		DateSource:  "exif",
		Verdict:     Copied,
		Reason:      "capture metadata present",
		SizeBytes:   10,
	}))
	require.NoError(t, l.Close())

	content := read(t, fs, "/l.csv")
	assert.True(t, strings.HasPrefix(content,
		"timestamp,action,reason,src_path,dest_path,file_size,copy_anyway,run_id,mode,capture_time,date_source,hash,error_message\n"))

	// historical rows are carried over byte for byte
	idx := strings.Index(content, legacyData)
	require.Greater(t, idx, 0)
	assert.Equal(t,
		"2024-03-04T05:06:07Z,copied,capture metadata present,/old/d.jpg,/new/2022/01/01/old_d.jpg,10,,r1,resume,2022-01-01T00:00:00Z,exif,,\n",
		content[idx+len(legacyData):])

	reopened, err := Open(ctx, fs, "/l.csv")
	require.NoError(t, err)
	assert.Empty(t, reopened.Warnings())
	assert.Equal(t, 800, reopened.Config().MinWidth)
	require.Len(t, reopened.Records(), 4)
	assert.Equal(t, "resume", reopened.Records()[3].Mode)
	assert.Equal(t, SkippedTooSmall, reopened.Records()[2].Verdict)
}

func TestBeginAppendWithoutChangesKeepsFile(t *testing.T) {
	ctx := testContext(t)
	fs := afero.NewMemMapFs()

	l, err := Create(ctx, fs, "/l.csv", testConfig())
	require.NoError(t, err)
	require.NoError(t, l.Append(sampleRecord("/src/a.jpg")))
	require.NoError(t, l.Close())
	before := read(t, fs, "/l.csv")

	reopened, err := Open(ctx, fs, "/l.csv")
	require.NoError(t, err)
	require.NoError(t, reopened.BeginAppend(ctx, reopened.Config()))
	require.NoError(t, reopened.Close())

	assert.Equal(t, before, read(t, fs, "/l.csv"))
}

func TestBeginAppendRewritesChangedConfig(t *testing.T) {
	ctx := testContext(t)
	fs := afero.NewMemMapFs()

	l, err := Create(ctx, fs, "/l.csv", testConfig())
	require.NoError(t, err)
	require.NoError(t, l.Append(sampleRecord("/src/a.jpg")))
	require.NoError(t, l.Close())
	before := read(t, fs, "/l.csv")
	firstData := before[strings.Index(before, "\n2024"):]

	reopened, err := Open(ctx, fs, "/l.csv")
	require.NoError(t, err)
	cfg := reopened.Config()
	cfg.DestDir = "/elsewhere"
	require.NoError(t, reopened.BeginAppend(ctx, cfg))
	require.NoError(t, reopened.Close())

	after := read(t, fs, "/l.csv")
	assert.Contains(t, after, `/elsewhere`)
	assert.True(t, strings.HasSuffix(after, firstData))

	again, err := Open(ctx, fs, "/l.csv")
	require.NoError(t, err)
	assert.Equal(t, "/elsewhere", again.Config().DestDir)
}

func TestAppendAfterMissingTrailingNewline(t *testing.T) {
	ctx := testContext(t)
	fs := afero.NewMemMapFs()

	l, err := Create(ctx, fs, "/l.csv", testConfig())
	require.NoError(t, err)
	require.NoError(t, l.Append(sampleRecord("/src/a.jpg")))
	require.NoError(t, l.Close())

	// a spreadsheet saved the file without the final newline
	content := read(t, fs, "/l.csv")
	require.NoError(t, afero.WriteFile(fs, "/l.csv", []byte(strings.TrimSuffix(content, "\n")), 0o644))

	reopened, err := Open(ctx, fs, "/l.csv")
	require.NoError(t, err)
	require.NoError(t, reopened.BeginAppend(ctx, reopened.Config()))
	require.NoError(t, reopened.Append(sampleRecord("/src/b.jpg")))
	require.NoError(t, reopened.Close())

	final, err := Open(ctx, fs, "/l.csv")
	require.NoError(t, err)
	require.Len(t, final.Records(), 2)
	assert.Equal(t, "/src/b.jpg", final.Records()[1].SourcePath)
}

func TestDamagedConfigAndBOM(t *testing.T) {
	ctx := testContext(t)
	fs := afero.NewMemMapFs()
	content := "\xef\xbb\xbfsource_path,verdict\nCONFIG {broken,\n/x/a.jpg,copied\n"
	require.NoError(t, afero.WriteFile(fs, "/l.csv", []byte(content), 0o644))

	l, err := Open(ctx, fs, "/l.csv")
	require.NoError(t, err)
	assert.NotEmpty(t, l.Warnings())
	assert.Equal(t, config.DefaultMinWidth, l.Config().MinWidth)
	require.Len(t, l.Records(), 1)
	assert.Equal(t, Copied, l.Records()[0].Verdict)
	assert.Equal(t, "source_path", l.Header()[0])
}

func TestMissingConfigRow(t *testing.T) {
	ctx := testContext(t)
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/l.csv", []byte("source_path,verdict\n/x/a.jpg,copied\n"), 0o644))

	l, err := Open(ctx, fs, "/l.csv")
	require.NoError(t, err)
	assert.NotEmpty(t, l.Warnings())
	require.Len(t, l.Records(), 1)

	require.NoError(t, l.BeginAppend(ctx, testConfig()))
	require.NoError(t, l.Close())

	content := read(t, fs, "/l.csv")
	assert.True(t, strings.HasSuffix(content, "\n/x/a.jpg,copied\n"))

	again, err := Open(ctx, fs, "/l.csv")
	require.NoError(t, err)
	assert.Empty(t, again.Warnings())
	assert.Equal(t, "/src", again.Config().SourceDir)
	require.Len(t, again.Records(), 1)
}

func TestUnknownColumnsAndRaggedRows(t *testing.T) {
	ctx := testContext(t)
	fs := afero.NewMemMapFs()
	content := "source_path,notes,verdict\nCONFIG {}\n/x/a.jpg,hello\n/x/b.jpg,,skipped_too_small,extra,cells\n"
	require.NoError(t, afero.WriteFile(fs, "/l.csv", []byte(content), 0o644))

	l, err := Open(ctx, fs, "/l.csv")
	require.NoError(t, err)
	assert.Empty(t, l.Warnings())
	require.Len(t, l.Records(), 2)
	assert.Equal(t, Verdict(""), l.Records()[0].Verdict)
	assert.Equal(t, SkippedTooSmall, l.Records()[1].Verdict)

	require.NoError(t, l.BeginAppend(ctx, l.Config()))
	require.NoError(t, l.Append(sampleRecord("/x/c.jpg")))
	require.NoError(t, l.Close())

	assert.Equal(t, []string{"source_path", "notes", "verdict", "timestamp"}, l.Header()[:4])

	again, err := Open(ctx, fs, "/l.csv")
	require.NoError(t, err)
	require.Len(t, again.Records(), 3)
	assert.Equal(t, Copied, again.Records()[2].Verdict)
	assert.Equal(t, "run-1", again.Records()[2].RunID)
}

func TestEmptyFile(t *testing.T) {
	ctx := testContext(t)
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/l.csv", nil, 0o644))

	l, err := Open(ctx, fs, "/l.csv")
	require.NoError(t, err)
	assert.NotEmpty(t, l.Warnings())
	assert.Empty(t, l.Records())

	require.NoError(t, l.BeginAppend(ctx, testConfig()))
	require.NoError(t, l.Append(sampleRecord("/src/a.jpg")))
	require.NoError(t, l.Close())

	again, err := Open(ctx, fs, "/l.csv")
	require.NoError(t, err)
	assert.Empty(t, again.Warnings())
	require.Len(t, again.Records(), 1)
}

func TestParseFlag(t *testing.T) {
	for _, s := range []string{"yes", "YES", " Yes ", "y", "1", "true", "TRUE", "x"} {
		assert.True(t, ParseFlag(s), s)
	}
	for _, s := range []string{"", "no", "0", "false", "maybe"} {
		assert.False(t, ParseFlag(s), s)
	}
}

func TestParseTime(t *testing.T) {
	_, ok := ParseTime("unknown")
	assert.False(t, ok)
	_, ok = ParseTime("")
	assert.False(t, ok)

	for _, s := range []string{
		"2021-06-15T10:30:00+02:00",
		"2021-06-15T10:30:00",
		"2021-06-15 10:30:00",
		"2021:06:15 10:30:00",
		"2021/06/15 10:30:00",
		"2021-06-15",
	} {
		got, ok := ParseTime(s)
		assert.True(t, ok, s)
		assert.Equal(t, 2021, got.Year(), s)
		assert.Equal(t, 15, got.Day(), s)
	}
}

func TestVerdictIsSkip(t *testing.T) {
	assert.False(t, Copied.IsSkip())
	for _, v := range Verdicts[1:] {
		assert.True(t, v.IsSkip(), string(v))
	}
}
