package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/FranksOps/eventradar/internal/sources"
	"github.com/FranksOps/eventradar/internal/storage"
)

// MaxFallbackEvents caps the drafts produced for one page without a model.
const MaxFallbackEvents = 20

var (
	dayMonthYear = regexp.MustCompile(`(?i)\b(\d{1,2})\s+(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+(\d{4})\b`)
	isoDate      = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	slashDate    = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)
)

var monthAbbr = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

// Fallback scans page lines for short non-URL lines that sit within two lines
// of a date and turns each into a minimal draft.
func Fallback(page storage.Page, ec Context) []storage.Event {
	platform := sources.Platform(page.URL)
	lines := strings.Split(page.Text, "\n")

	var events []storage.Event
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if n := len([]rune(line)); n < 5 || n > 200 || strings.HasPrefix(line, "http") {
			continue
		}

		window := strings.Join(lines[max(0, i-2):min(len(lines), i+3)], "\n")
		date, found := findDate(window)
		if !found {
			continue
		}
		if date.Before(ec.DateFrom) || !date.Before(ec.DateTo) {
			date = ec.DateFrom
		}

		name := line
		if r := []rune(name); len(r) > 100 {
			name = string(r[:100])
		}
		events = append(events, storage.Event{
			Name:           name,
			Date:           date,
			Setting:        storage.SettingUnknown,
			Genre:          "other",
			Segment:        "other",
			TargetAudience: "mainstream",
			SourceURL:      page.URL,
			SourcePlatform: platform,
			Description:    "Found on " + platform,
		})
		if len(events) == MaxFallbackEvents {
			break
		}
	}
	return events
}

// findDate reports whether text holds a date-shaped substring and returns the
// first one that is also a real calendar day. Slash dates are day/month/year.
func findDate(text string) (time.Time, bool) {
	found := false
	if m := dayMonthYear.FindStringSubmatch(text); m != nil {
		found = true
		if t, ok := mkdate(m[3], strconv.Itoa(int(monthAbbr[strings.ToLower(m[2])])), m[1]); ok {
			return t, true
		}
	}
	if m := isoDate.FindStringSubmatch(text); m != nil {
		found = true
		if t, ok := mkdate(m[1], m[2], m[3]); ok {
			return t, true
		}
	}
	if m := slashDate.FindStringSubmatch(text); m != nil {
		found = true
		if t, ok := mkdate(m[3], m[2], m[1]); ok {
			return t, true
		}
	}
	return time.Time{}, found
}

func mkdate(y, m, d string) (time.Time, bool) {
	year, _ := strconv.Atoi(y)
	month, _ := strconv.Atoi(m)
	day, _ := strconv.Atoi(d)
	if month < 1 || month > 12 || day < 1 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}
