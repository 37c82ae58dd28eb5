package pipeline

import (
	"fmt"
	"strings"

	"github.com/FranksOps/eventradar/internal/storage"
)

const (
	// DigestURL is the pseudo-URL of the search digest page.
	DigestURL = "google-search-results"
	// DigestMaxResults bounds how many search results the digest lists.
	DigestMaxResults = 30

	digestHeader   = "=== GOOGLE SEARCH RESULTS ===\n"
	digestMinChars = 50
)

// BuildDigest renders the top search results as one text page so titles and
// snippets reach the extractor even when the pages themselves cannot be
// fetched. ok is false when there is nothing worth sending.
func BuildDigest(results []storage.SearchResult) (storage.Page, bool) {
	if len(results) == 0 {
		return storage.Page{}, false
	}
	if len(results) > DigestMaxResults {
		results = results[:DigestMaxResults]
	}

	lines := []string{digestHeader}
	for i, r := range results {
		lines = append(lines, fmt.Sprintf("[%d] %s", i+1, r.Title))
		if r.Snippet != "" {
			lines = append(lines, "    "+r.Snippet)
		}
		if r.Link != "" {
			lines = append(lines, "    URL: "+r.Link)
		}
		lines = append(lines, "")
	}

	text := strings.Join(lines, "\n")
	if len(text) <= digestMinChars {
		return storage.Page{}, false
	}
	return storage.Page{URL: DigestURL, Text: text}, true
}
