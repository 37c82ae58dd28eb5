package sources

import (
	"testing"
	"time"
)

func TestPlatform(t *testing.T) {
	tests := map[string]string{
		"https://ra.co/events/123":                 "Resident Advisor",
		"https://www.eventbrite.com.ar/e/fiesta-1": "Eventbrite",
		"https://feverup.com/m/1234":               "Fever",
		"https://www.DICE.fm/event/abc":            "DICE",
		"https://example.com/whatever":             DefaultPlatform,
	}
	for in, want := range tests {
		if got := Platform(in); got != want {
			t.Errorf("Platform(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNeedsRender(t *testing.T) {
	tests := map[string]bool{
		"https://ra.co/events/es/madrid":   true,
		"https://www.xceed.me/en/madrid":   true,
		"https://ultra.co/events":          false,
		"https://eventbrite.com/d/madrid/": false,
		"not a url at all %":               false,
	}
	for in, want := range tests {
		if got := NeedsRender(in); got != want {
			t.Errorf("NeedsRender(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNormalizeSegment(t *testing.T) {
	if got := NormalizeSegment(" Electronic "); got != "electronic" {
		t.Errorf("Expected electronic, got %q", got)
	}
	if got := NormalizeSegment("jazz"); got != "other" {
		t.Errorf("Expected other for unknown segment, got %q", got)
	}
}

func TestPlatformDomainsFor(t *testing.T) {
	if got := PlatformDomainsFor("es"); len(got) != len(PlatformDomains["ES"]) {
		t.Errorf("Expected ES platforms for lower-case code, got %v", got)
	}
	if got := PlatformDomainsFor("ZZ"); got[0] != PlatformDomains[DefaultCountry][0] {
		t.Errorf("Expected default platforms for unknown country, got %v", got)
	}
}

func TestFallbackURLs(t *testing.T) {
	got := FallbackURLs("Buenos Aires", "AR")
	if len(got) != 4 {
		t.Fatalf("Expected 3 default + 1 AR listings, got %d", len(got))
	}
	if got[0].URL != "https://ra.co/events/buenos-aires" {
		t.Errorf("Unexpected slug expansion: %s", got[0].URL)
	}
	if got[3].Name != "Passline" {
		t.Errorf("Expected country listings after defaults, got %s", got[3].Name)
	}
}

func TestLanguageMonthName(t *testing.T) {
	d := time.Date(2026, time.November, 3, 0, 0, 0, 0, time.UTC)
	if got := Spanish.MonthName(d); got != "noviembre 2026" {
		t.Errorf("Expected noviembre 2026, got %q", got)
	}
	if got := English.MonthName(d); got != "November 2026" {
		t.Errorf("Expected November 2026, got %q", got)
	}
}

func TestRender(t *testing.T) {
	got := Render("{segment} events {city} {month}", "Madrid", "June 2026", "techno")
	if got != "techno events Madrid June 2026" {
		t.Errorf("Unexpected render: %q", got)
	}
	if got := Render("concerts {city} {month}", "Madrid", "", ""); got != "concerts Madrid" {
		t.Errorf("Expected blank placeholders to collapse, got %q", got)
	}
}
