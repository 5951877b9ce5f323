package media

import (
	"regexp"
	"time"
)

// datePatterns extract a capture date from a file name. Patterns are tried in
// order; first match wins. The layout uses Go's reference time.
var datePatterns = []struct {
	regex  *regexp.Regexp
	layout string
}{
	// DJI drone: DJI_20250619224111_0001_D.JPG
	{regexp.MustCompile(`DJI_(\d{8})`), "20060102"},

	// Sony: 20250616_C0416.JPG
	{regexp.MustCompile(`^(\d{8})_C\d+`), "20060102"},

	// Phones and most cameras: IMG_20250619_123456.jpg, PXL_20250619_123456789.jpg
	{regexp.MustCompile(`(\d{8}_\d{6})`), "20060102_150405"},

	// WhatsApp and friends: IMG-20250619-WA0001.jpg
	{regexp.MustCompile(`-(\d{8})-`), "20060102"},

	// ISO date: 2025-06-19_photo.jpg
	{regexp.MustCompile(`(\d{4}-\d{2}-\d{2})`), "2006-01-02"},

	// Compact date: 20250619_photo.jpg (last resort, least specific)
	{regexp.MustCompile(`(\d{8})`), "20060102"},
}

// DateFromFilename returns the date encoded in name, if any. Matches that do
// not parse as a real calendar date, or fall before 1800, are ignored.
func DateFromFilename(name string) (time.Time, bool) {
	for _, p := range datePatterns {
		m := p.regex.FindStringSubmatch(name)
		if len(m) < 2 {
			continue
		}
		t, err := time.ParseInLocation(p.layout, m[1], time.Local)
		if err == nil && plausible(t) {
			return t, true
		}
	}
	return time.Time{}, false
}
