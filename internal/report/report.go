package report

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/FranksOps/eventradar/internal/storage"
)

// Competition is how crowded a day is with other events.
type Competition string

const (
	CompetitionNone   Competition = "none"
	CompetitionLow    Competition = "low"
	CompetitionMedium Competition = "medium"
	CompetitionHigh   Competition = "high"
)

// CompetitionFor maps an event count to a competition level.
func CompetitionFor(n int) Competition {
	switch {
	case n <= 0:
		return CompetitionNone
	case n <= 2:
		return CompetitionLow
	case n <= 5:
		return CompetitionMedium
	default:
		return CompetitionHigh
	}
}

// Day is one calendar day of a run's results.
type Day struct {
	Date          string              `json:"date"`
	DayName       string              `json:"day_name"`
	Events        []storage.Event     `json:"events"`
	EventCount    int                 `json:"event_count"`
	Competition   Competition         `json:"competition"`
	SegmentCounts map[string]int      `json:"segment_counts"`
	Weather       *storage.WeatherDay `json:"weather,omitempty"`
	HasOwnEvent   bool                `json:"has_own_event"`
}

// BuildDays groups events and weather by calendar day. Every day that has
// either appears once, in date order.
func BuildDays(events []*storage.Event, weather []*storage.WeatherDay) []Day {
	byDay := make(map[string][]storage.Event)
	for _, e := range events {
		k := storage.DayKey(e.Date)
		byDay[k] = append(byDay[k], *e)
	}
	wxByDay := make(map[string]*storage.WeatherDay, len(weather))
	for _, w := range weather {
		wxByDay[storage.DayKey(w.Date)] = w
	}

	keys := make([]string, 0, len(byDay)+len(wxByDay))
	for k := range byDay {
		keys = append(keys, k)
	}
	for k := range wxByDay {
		if _, ok := byDay[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	days := make([]Day, 0, len(keys))
	for _, k := range keys {
		evs := byDay[k]
		d := Day{
			Date:          k,
			Events:        evs,
			EventCount:    len(evs),
			Competition:   CompetitionFor(len(evs)),
			SegmentCounts: make(map[string]int),
			Weather:       wxByDay[k],
		}
		if d.Events == nil {
			d.Events = []storage.Event{}
		}
		if t, err := storage.ParseDay(k); err == nil {
			d.DayName = t.Weekday().String()
		}
		for _, e := range evs {
			seg := e.Segment
			if seg == "" {
				seg = "other"
			}
			d.SegmentCounts[seg]++
			if e.IsOwnEvent {
				d.HasOwnEvent = true
			}
		}
		days = append(days, d)
	}
	return days
}

// Load reads a run's events and weather from backend and builds its days.
func Load(ctx context.Context, backend storage.Backend, runID string) ([]Day, error) {
	if _, err := backend.GetRun(ctx, runID); err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}
	events, err := backend.Events(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("report: events: %w", err)
	}
	weather, err := backend.WeatherDays(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("report: weather: %w", err)
	}
	return BuildDays(events, weather), nil
}

// WriteJSON writes days to w as indented JSON.
func WriteJSON(w io.Writer, days []Day) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(days); err != nil {
		return fmt.Errorf("report: json: %w", err)
	}
	return nil
}

var textFuncs = template.FuncMap{
	"upper": strings.ToUpper,
	"segments": func(m map[string]int) string {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+"="+strconv.Itoa(m[k]))
		}
		return strings.Join(parts, " ")
	},
}

const textTmpl = `{{range .}}{{.Date}} {{.DayName}}  competition={{.Competition}} events={{.EventCount}}{{if .HasOwnEvent}} [own event]{{end}}
{{- with .Weather}}
  weather: {{.Conditions}}, {{printf "%.0f" .TempMinC}}-{{printf "%.0f" .TempMaxC}}C, rain {{printf "%.0f" .PrecipProb}}%, score {{.OutdoorScore}} {{.Recommendation}} ({{.Source}})
{{- end}}
{{- if .EventCount}}
  segments: {{segments .SegmentCounts}}
{{- end}}
{{- range .Events}}
  - {{.Name}}{{if .VenueName}} @ {{.VenueName}}{{end}}{{if .Time}} {{.Time}}{{end}} [{{.Segment}}/{{.Setting}}] {{.SourcePlatform}}{{if .IsOwnEvent}} *{{end}}
{{- end}}

{{else}}No results.
{{end}}`

// WriteText writes a human-readable day-by-day listing to w.
func WriteText(w io.Writer, days []Day) error {
	t, err := template.New("days").Funcs(textFuncs).Parse(textTmpl)
	if err != nil {
		return fmt.Errorf("report: template: %w", err)
	}
	if err := t.Execute(w, days); err != nil {
		return fmt.Errorf("report: text: %w", err)
	}
	return nil
}

// csvHeaders defines the CSV column order. One row per event; days with no
// events get a single row with empty event columns.
var csvHeaders = []string{
	"date",
	"day_name",
	"competition",
	"event_count",
	"conditions",
	"outdoor_score",
	"recommendation",
	"weather_source",
	"event_name",
	"venue",
	"time",
	"segment",
	"setting",
	"platform",
	"source_url",
	"is_own_event",
}

// WriteCSV writes days to w, one row per event.
func WriteCSV(w io.Writer, days []Day) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeaders); err != nil {
		return fmt.Errorf("report: csv: %w", err)
	}
	for _, d := range days {
		dayCols := []string{d.Date, d.DayName, string(d.Competition), strconv.Itoa(d.EventCount), "", "", "", ""}
		if d.Weather != nil {
			dayCols[4] = d.Weather.Conditions
			dayCols[5] = strconv.Itoa(d.Weather.OutdoorScore)
			dayCols[6] = string(d.Weather.Recommendation)
			dayCols[7] = string(d.Weather.Source)
		}
		if len(d.Events) == 0 {
			row := append(dayCols, make([]string, 8)...)
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("report: csv: %w", err)
			}
			continue
		}
		for _, e := range d.Events {
			row := append(append([]string{}, dayCols...),
				e.Name,
				e.VenueName,
				e.Time,
				e.Segment,
				string(e.Setting),
				e.SourcePlatform,
				e.SourceURL,
				strconv.FormatBool(e.IsOwnEvent),
			)
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("report: csv: %w", err)
			}
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("report: csv: %w", err)
	}
	return nil
}

// Summary is a one-line overview of a run's days.
type Summary struct {
	Days        int
	Events      int
	BusiestDay  string
	OwnEventDay int
	Start, End  time.Time
}

// Summarize totals days. BusiestDay is the first day with the most events.
func Summarize(days []Day) Summary {
	var s Summary
	best := -1
	for _, d := range days {
		s.Days++
		s.Events += d.EventCount
		if d.EventCount > best {
			best = d.EventCount
			s.BusiestDay = d.Date
		}
		if d.HasOwnEvent {
			s.OwnEventDay++
		}
		t, err := storage.ParseDay(d.Date)
		if err != nil {
			continue
		}
		if s.Start.IsZero() || t.Before(s.Start) {
			s.Start = t
		}
		if t.After(s.End) {
			s.End = t
		}
	}
	return s
}
