// Package city resolves city identifiers to coordinates and source hints.
package city

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/FranksOps/eventradar/internal/sources"
	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when a city ID is unknown.
var ErrNotFound = errors.New("city not found")

// City is a place runs can target.
type City struct {
	ID        string  `yaml:"id" json:"id"`
	Name      string  `yaml:"name" json:"name"`
	Country   string  `yaml:"country" json:"country"`
	Latitude  float64 `yaml:"latitude" json:"latitude"`
	Longitude float64 `yaml:"longitude" json:"longitude"`
	Timezone  string  `yaml:"timezone" json:"timezone"`
	RadiusKm  int     `yaml:"radius_km" json:"radius_km"`
	// KnownSources are listing domains fetched directly on every run.
	KnownSources []string `yaml:"known_sources" json:"known_sources"`
}

// DirectURLs returns the listing pages to fetch for c regardless of search
// results: the country's direct listings, then one homepage per known source.
func (c *City) DirectURLs() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(u string) {
		if !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	for _, l := range sources.DirectURLs(c.Name, c.Country) {
		add(l.URL)
	}
	for _, d := range c.KnownSources {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		if !strings.Contains(d, "://") {
			d = "https://" + d
		}
		add(d)
	}
	return out
}

func (c *City) validate() error {
	switch {
	case c.ID == "":
		return errors.New("missing id")
	case c.Name == "":
		return errors.New("missing name")
	case len(c.Country) != 2:
		return fmt.Errorf("country %q is not an ISO-2 code", c.Country)
	case c.Latitude < -90 || c.Latitude > 90:
		return fmt.Errorf("latitude %v out of range", c.Latitude)
	case c.Longitude < -180 || c.Longitude > 180:
		return fmt.Errorf("longitude %v out of range", c.Longitude)
	}
	return nil
}

// Directory looks cities up by ID.
type Directory interface {
	Lookup(ctx context.Context, id string) (*City, error)
}

// Static is an in-memory Directory.
type Static struct {
	byID map[string]*City
}

var _ Directory = (*Static)(nil)

// NewStatic builds a directory from cities. IDs must be unique.
func NewStatic(cities []City) (*Static, error) {
	s := &Static{byID: make(map[string]*City, len(cities))}
	for i := range cities {
		c := cities[i]
		c.Country = strings.ToUpper(c.Country)
		if err := c.validate(); err != nil {
			return nil, fmt.Errorf("city: entry %d: %w", i, err)
		}
		if _, dup := s.byID[c.ID]; dup {
			return nil, fmt.Errorf("city: duplicate id %q", c.ID)
		}
		s.byID[c.ID] = &c
	}
	return s, nil
}

type file struct {
	Cities []City `yaml:"cities"`
}

// LoadFile reads a YAML file with a top-level "cities" list.
func LoadFile(path string) (*Static, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("city: read %s: %w", path, err)
	}
	var f file
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("city: parse %s: %w", path, err)
	}
	return NewStatic(f.Cities)
}

// Lookup returns a copy of the city with the given ID.
func (s *Static) Lookup(_ context.Context, id string) (*City, error) {
	c, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	cp := *c
	cp.KnownSources = append([]string(nil), c.KnownSources...)
	return &cp, nil
}

// List returns every city sorted by ID.
func (s *Static) List() []City {
	out := make([]City, 0, len(s.byID))
	for _, c := range s.byID {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
