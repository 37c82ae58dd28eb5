package storage

import (
	"net/url"
	"sort"
	"strings"
)

// QueryTrace records one issued search query.
type QueryTrace struct {
	Query       string `json:"query"`
	ResultCount int    `json:"result_count"`
	NewUnique   int    `json:"new_unique"`
	Intent      string `json:"intent"`
	Error       string `json:"error,omitempty"`
}

// ScrapeAttempt records one page fetch.
type ScrapeAttempt struct {
	URL     string `json:"url"`
	Domain  string `json:"domain"`
	Success bool   `json:"success"`
	Origin  Origin `json:"origin"`
}

// DomainCount pairs a domain with an occurrence count.
type DomainCount struct {
	Domain string `json:"domain"`
	Count  int    `json:"count"`
}

// Trace is the diagnostic record of every pipeline decision made for a Run.
// It is written only by the orchestrator goroutine.
type Trace struct {
	Queries            []QueryTrace    `json:"queries"`
	SearchResultsTotal int             `json:"search_results_total"`
	DirectFetches      int             `json:"direct_fetches"`
	ScrapeAttempts     []ScrapeAttempt `json:"scrape_attempts"`
	ScrapeSuccess      int             `json:"scrape_success"`
	ScrapeFail         int             `json:"scrape_fail"`
	AIInputPages       int             `json:"ai_input_pages"`
	EventsExtracted    int             `json:"events_extracted"`
	EventsBySource     map[string]int  `json:"events_by_source"`
	TopDomains         []DomainCount   `json:"top_domains"`
	Error              string          `json:"error,omitempty"`
}

// NewTrace returns an empty trace ready for accumulation.
func NewTrace() *Trace {
	return &Trace{EventsBySource: make(map[string]int)}
}

// AddAttempts appends fetch attempts and updates the success/fail totals.
func (t *Trace) AddAttempts(attempts []ScrapeAttempt) {
	for _, a := range attempts {
		t.ScrapeAttempts = append(t.ScrapeAttempts, a)
		if a.Success {
			t.ScrapeSuccess++
		} else {
			t.ScrapeFail++
		}
	}
}

// Domain returns the lower-cased host of rawURL without a leading "www.".
func Domain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// CountDomains tallies the domains of the given URLs and returns the top n by
// frequency, ties broken alphabetically. n <= 0 returns all.
func CountDomains(urls []string, n int) []DomainCount {
	counts := make(map[string]int)
	for _, u := range urls {
		if d := Domain(u); d != "" {
			counts[d]++
		}
	}
	out := make([]DomainCount, 0, len(counts))
	for d, c := range counts {
		out = append(out, DomainCount{Domain: d, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Domain < out[j].Domain
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
