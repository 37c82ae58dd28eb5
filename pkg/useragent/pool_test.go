package useragent

import (
	"sync"
	"testing"
)

func TestPool_GetSequential(t *testing.T) {
	p := NewPool([]string{"A", "B", "C"})

	for i, want := range []string{"A", "B", "C", "A"} {
		if got := p.GetSequential(); got != want {
			t.Errorf("call %d: expected %s, got %s", i, want, got)
		}
	}
}

func TestPool_Default(t *testing.T) {
	for _, in := range [][]string{nil, {}, {" ", ""}} {
		p := NewPool(in)
		if p.Len() != len(DefaultPool) {
			t.Errorf("expected pool length %d, got %d", len(DefaultPool), p.Len())
		}
		if got := p.GetSequential(); got != DefaultPool[0] {
			t.Errorf("expected %s, got %s", DefaultPool[0], got)
		}
	}
}

func TestPool_DropsBlank(t *testing.T) {
	p := NewPool([]string{"A", "  ", "B"})
	if got := p.GetAll(); len(got) != 2 || got[0] != "A" || got[1] != "B" {
		t.Errorf("expected [A B], got %v", got)
	}
}

func TestPool_GetRandom(t *testing.T) {
	p := NewPool([]string{"A", "B"})

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		got := p.GetRandom()
		if got != "A" && got != "B" {
			t.Fatalf("unexpected UA: %s", got)
		}
		seen[got] = true
	}
	if !seen["A"] || !seen["B"] {
		t.Errorf("expected to see both A and B randomly, got %v", seen)
	}
}

func TestPool_Concurrent(t *testing.T) {
	uas := []string{"X", "Y", "Z"}
	p := NewPool(uas)

	var wg sync.WaitGroup
	const routines = 50
	const iterations = 300

	var mu sync.Mutex
	counts := map[string]int{}

	for i := 0; i < routines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := map[string]int{}
			for j := 0; j < iterations; j++ {
				local[p.GetSequential()]++
			}
			mu.Lock()
			for k, v := range local {
				counts[k] += v
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	// routines*iterations is divisible by len(uas), so the split is exact.
	want := routines * iterations / len(uas)
	for _, k := range uas {
		if counts[k] != want {
			t.Errorf("expected %d hits for %s, got %d", want, k, counts[k])
		}
	}
}
