package extract

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/FranksOps/eventradar/internal/sources"
	"github.com/FranksOps/eventradar/internal/storage"
)

// StripFences removes a markdown code fence around a model reply.
func StripFences(s string) string {
	if _, after, ok := strings.Cut(s, "```json"); ok {
		s, _, _ = strings.Cut(after, "```")
	} else if _, after, ok := strings.Cut(s, "```"); ok {
		s, _, _ = strings.Cut(after, "```")
	}
	return strings.TrimSpace(s)
}

// Parse decodes a model reply into events for sourceURL. Entries without a
// name or a YYYY-MM-DD date are dropped; a reply that is not a JSON array is
// an error.
func Parse(raw, sourceURL string) ([]storage.Event, error) {
	var items []map[string]any
	if err := json.Unmarshal([]byte(StripFences(raw)), &items); err != nil {
		return nil, fmt.Errorf("extract: decode model reply: %w", err)
	}

	platform := sources.Platform(sourceURL)
	events := make([]storage.Event, 0, len(items))
	for _, item := range items {
		name := str(item, "name")
		if name == "" {
			continue
		}
		date, err := storage.ParseDay(str(item, "date"))
		if err != nil {
			continue
		}

		events = append(events, storage.Event{
			Name:              name,
			Date:              date,
			Time:              str(item, "time"),
			VenueName:         str(item, "venue_name"),
			VenueAddress:      str(item, "venue_address"),
			Setting:           setting(item["is_indoor"]),
			Genre:             str(item, "genre"),
			Segment:           sources.NormalizeSegment(str(item, "segment")),
			TargetAudience:    str(item, "target_audience"),
			SourceURL:         sourceURL,
			SourcePlatform:    platform,
			PriceRange:        str(item, "price_range"),
			EstimatedCapacity: capacity(item["estimated_capacity"]),
			Description:       str(item, "description"),
		})
	}
	return events, nil
}

// str returns a string field, formatting numbers and treating null as empty.
func str(item map[string]any, key string) string {
	switch v := item[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}

func setting(v any) storage.Setting {
	switch v := v.(type) {
	case bool:
		if v {
			return storage.SettingIndoor
		}
		return storage.SettingOutdoor
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "indoor":
			return storage.SettingIndoor
		case "false", "outdoor":
			return storage.SettingOutdoor
		}
	}
	return storage.SettingUnknown
}

// capacity accepts a JSON number or a numeric string such as "1,200".
func capacity(v any) *int {
	var f float64
	switch v := v.(type) {
	case float64:
		f = v
	case string:
		s := strings.NewReplacer(",", "", "~", "", " ", "").Replace(v)
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) || f > math.MaxInt32 {
		return nil
	}
	n := int(math.Round(f))
	return &n
}
