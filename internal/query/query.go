// Package query builds the bounded set of search queries issued for a run.
package query

import (
	"strings"
	"time"

	"github.com/FranksOps/eventradar/internal/sources"
)

// Intent tags why a query was issued.
type Intent string

const (
	IntentGeneral          Intent = "general"
	IntentSegment          Intent = "segment"
	IntentGeneralLocalized Intent = "general_localized"
	IntentSegmentLocalized Intent = "segment_localized"
	IntentPlatform         Intent = "platform"
)

const (
	// MaxContent caps the non-platform queries kept after dedup.
	MaxContent = 12
	// MaxPlatform caps the site: queries kept after dedup.
	MaxPlatform = 9
)

// Query is one search to issue.
type Query struct {
	Text   string `json:"query"`
	Intent Intent `json:"intent"`
}

// Params describe the run the queries are built for. DateTo is exclusive.
type Params struct {
	City     string
	Country  string
	DateFrom time.Time
	DateTo   time.Time
	Segments []string
}

// Build returns the deduplicated, capped queries for p. It performs no I/O and
// is deterministic: content queries (general, segment, localized) come first
// in construction order, then platform queries.
func Build(p Params) []Query {
	months := Months(p.DateFrom, p.DateTo)
	segments := cleanSegments(p.Segments)

	var content []Query
	content = append(content, family(sources.English, p.City, months, segments, IntentGeneral, IntentSegment)...)
	if lang, ok := sources.LocalLanguage(p.Country); ok {
		content = append(content, family(lang, p.City, months, segments, IntentGeneralLocalized, IntentSegmentLocalized)...)
	}

	term := sources.English.PlatformTerm
	if lang, ok := sources.LocalLanguage(p.Country); ok {
		term = lang.PlatformTerm
	}
	var platform []Query
	for _, domain := range sources.PlatformDomainsFor(p.Country) {
		platform = append(platform, Query{
			Text:   sources.Render("site:"+domain+" {city} "+term, p.City, "", ""),
			Intent: IntentPlatform,
		})
	}

	seen := make(map[string]bool)
	content = dedup(content, seen)
	platform = dedup(platform, seen)

	if len(content) > MaxContent {
		content = content[:MaxContent]
	}
	if len(platform) > MaxPlatform {
		platform = platform[:MaxPlatform]
	}
	return append(content, platform...)
}

// family emits general queries template-major, so every month is covered
// before a template repeats, followed by segment queries.
func family(lang sources.Language, city string, months []time.Time, segments []string, general, segment Intent) []Query {
	var out []Query
	for _, tmpl := range lang.General {
		for _, m := range months {
			out = append(out, Query{Text: sources.Render(tmpl, city, lang.MonthName(m), ""), Intent: general})
		}
	}
	for _, seg := range segments {
		for _, m := range months {
			out = append(out, Query{Text: sources.Render(lang.Segment, city, lang.MonthName(m), seg), Intent: segment})
		}
	}
	return out
}

// Months returns the first day of every calendar month touched by [from, to).
func Months(from, to time.Time) []time.Time {
	if !from.Before(to) {
		return nil
	}
	var out []time.Time
	cur := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	for cur.Before(end) {
		out = append(out, cur)
		cur = cur.AddDate(0, 1, 0)
	}
	return out
}

func cleanSegments(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func dedup(qs []Query, seen map[string]bool) []Query {
	out := qs[:0]
	for _, q := range qs {
		if seen[q.Text] {
			continue
		}
		seen[q.Text] = true
		out = append(out, q)
	}
	return out
}
