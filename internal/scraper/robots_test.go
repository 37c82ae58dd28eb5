package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestRobotsTxtAuditor_IsAllowed(t *testing.T) {
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(`
User-agent: *
Disallow: /admin/
Allow: /admin/public/

User-agent: BadBot
Disallow: /
`))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	auditor := NewRobotsTxtAuditor(newTestFetcher(t, FetchConfig{}), nil)
	ctx := context.Background()

	cases := []struct {
		path  string
		agent string
		want  bool
	}{
		{"/events", "GoodBot", true},
		{"/admin/secret", "GoodBot", false},
		{"/admin/public/index.html", "GoodBot", true},
		{"/events", "BadBot", false},
	}
	for _, c := range cases {
		got, err := auditor.IsAllowed(ctx, ts.URL+c.path, c.agent)
		if err != nil {
			t.Fatalf("%s as %s: unexpected error: %v", c.path, c.agent, err)
		}
		if got != c.want {
			t.Errorf("%s as %s: expected allowed=%v, got %v", c.path, c.agent, c.want, got)
		}
	}

	if n := hits.Load(); n != 1 {
		t.Errorf("expected robots.txt to be fetched once, got %d", n)
	}
}

func TestRobotsTxtAuditor_MissingRobots(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	auditor := NewRobotsTxtAuditor(newTestFetcher(t, FetchConfig{}), nil)
	allowed, err := auditor.IsAllowed(context.Background(), ts.URL+"/anything", "Bot")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed {
		t.Errorf("expected missing robots.txt to default to allowed")
	}
}
