package storage

import (
	"testing"
)

func TestRunStatusTerminal(t *testing.T) {
	tests := []struct {
		status   RunStatus
		terminal bool
	}{
		{RunPending, false},
		{RunRunning, false},
		{RunCompleted, true},
		{RunFailed, true},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.terminal {
			t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.terminal)
		}
	}
}

func TestParseDay(t *testing.T) {
	d, err := ParseDay("2026-03-09")
	if err != nil {
		t.Fatalf("ParseDay failed: %v", err)
	}
	if d.Year() != 2026 || d.Month() != 3 || d.Day() != 9 || d.Hour() != 0 {
		t.Errorf("Unexpected day: %v", d)
	}
	if DayKey(d) != "2026-03-09" {
		t.Errorf("DayKey round trip failed: %s", DayKey(d))
	}
	if _, err := ParseDay("09/03/2026"); err == nil {
		t.Errorf("Expected error for non-ISO day")
	}
}

func TestDomain(t *testing.T) {
	tests := map[string]string{
		"https://www.Fever.co/madrid/events": "fever.co",
		"http://ra.co/events/es/madrid":      "ra.co",
		"::not a url":                        "",
	}
	for in, want := range tests {
		if got := Domain(in); got != want {
			t.Errorf("Domain(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCountDomains(t *testing.T) {
	urls := []string{
		"https://b.com/1",
		"https://a.com/1",
		"https://www.b.com/2",
		"https://c.com/1",
		"https://a.com/2",
		"https://b.com/3",
	}
	got := CountDomains(urls, 2)
	if len(got) != 2 {
		t.Fatalf("Expected 2 domains, got %d", len(got))
	}
	if got[0] != (DomainCount{Domain: "b.com", Count: 3}) {
		t.Errorf("Expected b.com first, got %+v", got[0])
	}
	if got[1] != (DomainCount{Domain: "a.com", Count: 2}) {
		t.Errorf("Expected a.com second, got %+v", got[1])
	}
}

func TestTraceAddAttempts(t *testing.T) {
	tr := NewTrace()
	tr.AddAttempts([]ScrapeAttempt{
		{URL: "https://a.com", Domain: "a.com", Success: true, Origin: OriginOrganic},
		{URL: "https://b.com", Domain: "b.com", Success: false, Origin: OriginDirect},
		{URL: "https://c.com", Domain: "c.com", Success: true, Origin: OriginFallback},
	})
	if tr.ScrapeSuccess != 2 || tr.ScrapeFail != 1 || len(tr.ScrapeAttempts) != 3 {
		t.Errorf("Unexpected totals: success=%d fail=%d attempts=%d", tr.ScrapeSuccess, tr.ScrapeFail, len(tr.ScrapeAttempts))
	}
}
