package analyzer

import (
	"strings"

	"github.com/FranksOps/eventradar/internal/storage"
)

// BrandMatcher flags events that belong to the operator's own brand by
// case-insensitive substring match against a keyword list.
type BrandMatcher struct {
	keywords []string
}

// NewBrandMatcher lower-cases and trims keywords once. Blank keywords are dropped.
func NewBrandMatcher(keywords []string) *BrandMatcher {
	lower := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			lower = append(lower, k)
		}
	}
	return &BrandMatcher{keywords: lower}
}

// ParseKeywords splits a comma-separated keyword list.
func ParseKeywords(s string) []string {
	var out []string
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// Empty reports whether the matcher has no keywords and so never flags.
func (m *BrandMatcher) Empty() bool {
	return m == nil || len(m.keywords) == 0
}

// Match returns the first keyword found in text, if any.
func (m *BrandMatcher) Match(text string) (string, bool) {
	if m.Empty() {
		return "", false
	}
	lower := strings.ToLower(text)
	for _, k := range m.keywords {
		if strings.Contains(lower, k) {
			return k, true
		}
	}
	return "", false
}

// IsOwn reports whether the event's name, description or venue mention a keyword.
func (m *BrandMatcher) IsOwn(e *storage.Event) bool {
	_, ok := m.Match(e.Name + " " + e.Description + " " + e.VenueName)
	return ok
}

// Flag sets IsOwnEvent on each event in place. With no keywords the events
// are left untouched.
func (m *BrandMatcher) Flag(events []storage.Event) {
	if m.Empty() {
		return
	}
	for i := range events {
		events[i].IsOwnEvent = m.IsOwn(&events[i])
	}
}
