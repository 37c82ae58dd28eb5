// Package sources holds the static lookup tables that drive query building,
// direct-source fetching and platform labelling. Adding a country or a
// ticketing platform is a data edit here, not a code change elsewhere.
package sources

import (
	"net/url"
	"strings"
)

// DefaultCountry keys the fallback row of the per-country tables.
const DefaultCountry = "_default"

// Segments is the fixed event segment enumeration. Anything else maps to "other".
var Segments = []string{
	"electronic",
	"party/nightlife",
	"urban/hip-hop",
	"pop/commercial",
	"latin/reggaeton",
	"rock/indie",
	"live-music",
	"festival",
	"other",
}

// NormalizeSegment returns s lower-cased if it is a known segment and "other" otherwise.
func NormalizeSegment(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, known := range Segments {
		if s == known {
			return s
		}
	}
	return "other"
}

// PlatformDomains lists the ticketing platforms queried with site: per country.
var PlatformDomains = map[string][]string{
	"AR": {"ra.co", "passline.com", "eventbrite.com.ar", "livepass.com.ar", "venti.com.ar", "bomboapp.com", "all-access.com.ar"},
	"ES": {"ra.co", "fourvenues.com", "xceed.me", "fever.co", "dice.fm"},
	"US": {"ra.co", "eventbrite.com", "dice.fm", "shotgun.live"},
	"GB": {"ra.co", "skiddle.com", "dice.fm", "eventbrite.co.uk"},
	"BR": {"ra.co", "sympla.com.br", "shotgun.live"},
	"PE": {"ra.co", "joinnus.com"},
	"MX": {"ra.co", "boletia.com", "eventbrite.com.mx"},
	"NL": {"ra.co", "partyflock.nl", "shotgun.live"},
	"FR": {"ra.co", "shotgun.live", "dice.fm"},
	"DE": {"ra.co", "dice.fm", "eventbrite.de"},
	DefaultCountry: {"ra.co", "eventbrite.com", "dice.fm"},
}

// PlatformDomainsFor returns the platform list for country, or the default list.
func PlatformDomainsFor(country string) []string {
	if d, ok := PlatformDomains[strings.ToUpper(country)]; ok {
		return d
	}
	return PlatformDomains[DefaultCountry]
}

// JSHeavyDomains need a script-executing renderer to yield listing text.
var JSHeavyDomains = []string{
	"ra.co",
	"residentadvisor.net",
	"ffrfrr.com",
	"fever.co",
	"feverup.com",
	"fourvenues.com",
	"xceed.me",
	"dice.fm",
}

// NeedsRender reports whether rawURL belongs to a script-rendered listing site.
func NeedsRender(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, d := range JSHeavyDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

type platformLabel struct {
	match string
	label string
}

// platformLabels is matched in order against the URL; the first substring hit wins.
var platformLabels = []platformLabel{
	{"ra.co", "Resident Advisor"},
	{"residentadvisor.net", "Resident Advisor"},
	{"eventbrite.", "Eventbrite"},
	{"feverup.com", "Fever"},
	{"fever.co", "Fever"},
	{"ffrfrr.com", "Fever"},
	{"fourvenues.com", "Fourvenues"},
	{"xceed.me", "Xceed"},
	{"dice.fm", "DICE"},
	{"shotgun.live", "Shotgun"},
	{"passline.com", "Passline"},
	{"livepass.com", "LivePass"},
	{"venti.com.ar", "Venti"},
	{"bomboapp.com", "Bombo"},
	{"all-access.com.ar", "All Access"},
	{"skiddle.com", "Skiddle"},
	{"sympla.com.br", "Sympla"},
	{"joinnus.com", "Joinnus"},
	{"boletia.com", "Boletia"},
	{"partyflock.nl", "Partyflock"},
	{"ticketmaster.", "Ticketmaster"},
}

// DefaultPlatform labels URLs that match no known platform.
const DefaultPlatform = "Web"

// Platform returns the display label of the ticketing platform behind rawURL.
func Platform(rawURL string) string {
	lower := strings.ToLower(rawURL)
	for _, p := range platformLabels {
		if strings.Contains(lower, p.match) {
			return p.label
		}
	}
	return DefaultPlatform
}

// Listing is a known listing page, expressed as a URL template over the city slug.
type Listing struct {
	Name string
	URL  string
}

// FallbackListings are offered as search results when no search API is configured.
var FallbackListings = map[string][]Listing{
	"ES": {
		{"Fourvenues", "https://fourvenues.com/"},
		{"Xceed", "https://xceed.me/en/{slug}/events"},
	},
	"AR": {
		{"Passline", "https://www.passline.com/"},
	},
	DefaultCountry: {
		{"Resident Advisor", "https://ra.co/events/{slug}"},
		{"Eventbrite", "https://www.eventbrite.com/d/{slug}/events/"},
		{"Fever", "https://ffrfrr.com/en/{slug}/"},
	},
}

// DirectListings are fetched for every run regardless of search results.
var DirectListings = map[string][]Listing{
	"ES": {
		{"Xceed", "https://xceed.me/en/{slug}/events"},
		{"Fever", "https://feverup.com/en/{slug}"},
	},
	"AR": {
		{"Passline", "https://www.passline.com/eventos?ciudad={slug}"},
	},
	"GB": {
		{"Skiddle", "https://www.skiddle.com/whats-on/{slug}/"},
	},
	DefaultCountry: {
		{"Eventbrite", "https://www.eventbrite.com/d/{slug}/events/"},
	},
}

// Slug renders a city name the way listing sites put it in paths.
func Slug(city string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(city)), " ", "-")
}

// FallbackURLs returns the default listings followed by any country-specific ones.
func FallbackURLs(city, country string) []Listing {
	return expand(FallbackListings, city, country)
}

// DirectURLs returns the default direct listings followed by any country-specific ones.
func DirectURLs(city, country string) []Listing {
	return expand(DirectListings, city, country)
}

func expand(table map[string][]Listing, city, country string) []Listing {
	slug := Slug(city)
	rows := append([]Listing{}, table[DefaultCountry]...)
	rows = append(rows, table[strings.ToUpper(country)]...)

	out := make([]Listing, 0, len(rows))
	for _, l := range rows {
		out = append(out, Listing{Name: l.Name, URL: strings.ReplaceAll(l.URL, "{slug}", slug)})
	}
	return out
}
