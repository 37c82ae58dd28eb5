package proxy

import (
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPool_AddAndNext(t *testing.T) {
	pool := NewPool(Config{})

	err := pool.Add("127.0.0.1:8080", "http://127.0.0.1:8081", "socks5://127.0.0.1:9050")
	if err != nil {
		t.Fatalf("unexpected error adding proxies: %v", err)
	}

	want := []string{
		"http://127.0.0.1:8080",
		"http://127.0.0.1:8081",
		"socks5://127.0.0.1:9050",
		"http://127.0.0.1:8080", // wrap around
	}
	for i, w := range want {
		if u := pool.Next(); u == nil || u.String() != w {
			t.Errorf("call %d: expected %s, got %v", i, w, u)
		}
	}
}

func TestPool_AddRejectsBadScheme(t *testing.T) {
	pool := NewPool(Config{})
	if err := pool.Add("http://good:1", "ftp://bad:21"); err == nil {
		t.Fatalf("expected error for ftp proxy")
	}
	if pool.Len() != 0 {
		t.Errorf("expected failed Add to leave pool untouched, got %d", pool.Len())
	}
}

func TestPool_HealthTracking(t *testing.T) {
	pool := NewPool(Config{MaxFailures: 2, Cooldown: time.Minute})
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	pool.now = func() time.Time { return now }

	if err := pool.Add("http://a", "http://b"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	uA := pool.Next()
	if uA.String() != "http://a" {
		t.Fatalf("expected http://a, got %v", uA)
	}
	_ = pool.MarkFailure(uA)
	_ = pool.MarkFailure(uA)

	// a is benched, so b is served twice in a row
	for i := 0; i < 2; i++ {
		if u := pool.Next(); u == nil || u.String() != "http://b" {
			t.Errorf("expected http://b while a cools down, got %v", u)
		}
	}

	uB, _ := url.Parse("http://b")
	_ = pool.MarkFailure(uB)
	_ = pool.MarkFailure(uB)
	if u := pool.Next(); u != nil {
		t.Errorf("expected nil when all proxies disabled, got %v", u)
	}

	now = now.Add(2 * time.Minute)
	if u := pool.Next(); u == nil {
		t.Errorf("expected a proxy to revive after cooldown")
	}
}

func TestPool_SuccessForgivesFailure(t *testing.T) {
	pool := NewPool(Config{MaxFailures: 2})
	_ = pool.Add("http://a")
	u := pool.Next()

	_ = pool.MarkFailure(u)
	_ = pool.MarkSuccess(u)
	_ = pool.MarkFailure(u)

	if got := pool.Next(); got == nil {
		t.Errorf("expected proxy to stay enabled after a success offsets a failure")
	}
}

func TestPool_LoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "proxies.txt")

	content := `
# some comment
http://proxy1.com
proxy2.com:80

socks5://proxy3.com:1080
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write proxy file: %v", err)
	}

	pool := NewPool(Config{})
	if err := pool.LoadFile(path); err != nil {
		t.Fatalf("failed to load file: %v", err)
	}

	expected := []string{"http://proxy1.com", "http://proxy2.com:80", "socks5://proxy3.com:1080"}
	for i, e := range expected {
		u := pool.Next()
		if u == nil || u.String() != e {
			t.Errorf("proxy %d: expected %s, got %v", i, e, u)
		}
	}

	if err := pool.LoadFile(filepath.Join(dir, "missing.txt")); err == nil {
		t.Errorf("expected error for missing file")
	}
}

func TestPool_MarkUnknown(t *testing.T) {
	pool := NewPool(Config{})
	_ = pool.Add("http://a")

	uUnknown, _ := url.Parse("http://unknown")
	if err := pool.MarkSuccess(uUnknown); !errors.Is(err, ErrUnknownProxy) {
		t.Errorf("expected ErrUnknownProxy marking success, got %v", err)
	}
	if err := pool.MarkFailure(uUnknown); !errors.Is(err, ErrUnknownProxy) {
		t.Errorf("expected ErrUnknownProxy marking failure, got %v", err)
	}
	if err := pool.MarkFailure(nil); err == nil {
		t.Errorf("expected error for nil proxy")
	}
}

func TestPool_Empty(t *testing.T) {
	pool := NewPool(Config{})
	if u := pool.Next(); u != nil {
		t.Errorf("expected nil on empty pool, got %v", u)
	}
}
