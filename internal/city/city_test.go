package city

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cities.yaml")
	content := `
cities:
  - id: buenos-aires
    name: Buenos Aires
    country: ar
    latitude: -34.6037
    longitude: -58.3816
    radius_km: 25
    known_sources: [passline.com, "https://venti.com.ar/eventos"]
  - id: madrid
    name: Madrid
    country: ES
    latitude: 40.4168
    longitude: -3.7038
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	dir, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	c, err := dir.Lookup(context.Background(), "buenos-aires")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if c.Name != "Buenos Aires" || c.Country != "AR" || c.RadiusKm != 25 {
		t.Errorf("unexpected city: %+v", c)
	}

	if got := len(dir.List()); got != 2 {
		t.Errorf("expected 2 cities, got %d", got)
	}
}

func TestLookup_NotFound(t *testing.T) {
	dir, _ := NewStatic(nil)
	if _, err := dir.Lookup(context.Background(), "atlantis"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestNewStatic_Validation(t *testing.T) {
	cases := map[string][]City{
		"missing id":   {{Name: "X", Country: "AR"}},
		"bad country":  {{ID: "x", Name: "X", Country: "ARG"}},
		"bad latitude": {{ID: "x", Name: "X", Country: "AR", Latitude: 91}},
		"duplicate":    {{ID: "x", Name: "X", Country: "AR"}, {ID: "x", Name: "Y", Country: "AR"}},
	}
	for name, cities := range cases {
		if _, err := NewStatic(cities); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestDirectURLs(t *testing.T) {
	c := City{
		Name:         "Buenos Aires",
		Country:      "AR",
		KnownSources: []string{"passline.com", " ", "https://www.eventbrite.com/d/buenos-aires/events/"},
	}
	want := []string{
		"https://www.eventbrite.com/d/buenos-aires/events/",
		"https://www.passline.com/eventos?ciudad=buenos-aires",
		"https://passline.com",
	}
	if got := c.DirectURLs(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestLookup_ReturnsCopy(t *testing.T) {
	dir, _ := NewStatic([]City{{ID: "x", Name: "X", Country: "AR", KnownSources: []string{"a.com"}}})
	c, _ := dir.Lookup(context.Background(), "x")
	c.KnownSources[0] = "mutated"
	again, _ := dir.Lookup(context.Background(), "x")
	if again.KnownSources[0] != "a.com" {
		t.Errorf("expected directory to be unaffected by caller mutation")
	}
}

func TestSeedFileLoads(t *testing.T) {
	dir, err := LoadFile(filepath.Join("..", "..", "configs", "cities.yaml"))
	if err != nil {
		t.Fatalf("seed file: %v", err)
	}
	if _, err := dir.Lookup(context.Background(), "buenos-aires"); err != nil {
		t.Errorf("expected buenos-aires in seed file: %v", err)
	}
}
