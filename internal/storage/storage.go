package storage

import (
	"context"
	"errors"
	"time"
)

// DateLayout is the calendar-day format used for event and weather dates.
const DateLayout = "2006-01-02"

// ErrRunNotFound is returned when a run ID has no stored record.
var ErrRunNotFound = errors.New("run not found")

// RunStatus is the lifecycle state of a Run.
type RunStatus string

const (
	// RunPending is reserved for queued execution; runs are currently created running.
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Terminal reports whether no further transitions are allowed from s.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed
}

// Run is one discovery session for a city and date range. DateTo is exclusive.
type Run struct {
	ID        string    `json:"id"`
	CityID    string    `json:"city_id"`
	CityName  string    `json:"city_name"`
	Country   string    `json:"country"`
	DateFrom  time.Time `json:"date_from"`
	DateTo    time.Time `json:"date_to"`
	Segments  []string  `json:"segments"`
	RadiusKm  int       `json:"radius_km"`
	Status    RunStatus `json:"status"`
	Trace     *Trace    `json:"trace,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	// EventCount is populated by ListRuns only.
	EventCount int `json:"event_count,omitempty"`
}

// Origin tags where a search result came from.
type Origin string

const (
	OriginOrganic  Origin = "organic"
	OriginDirect   Origin = "direct"
	OriginFallback Origin = "fallback"
)

// SearchResult is a single hit returned by the search stage. Not persisted.
type SearchResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
	Origin  Origin `json:"origin"`
}

// Page is the extracted text of a fetched URL. Not persisted.
type Page struct {
	URL  string
	Text string
}

// Setting describes whether an event happens indoors.
type Setting string

const (
	SettingIndoor  Setting = "indoor"
	SettingOutdoor Setting = "outdoor"
	SettingUnknown Setting = "unknown"
)

// Event is a competing event discovered for a Run.
type Event struct {
	ID                int64     `json:"id,omitempty"`
	RunID             string    `json:"run_id,omitempty"`
	Name              string    `json:"name"`
	Date              time.Time `json:"date"`
	Time              string    `json:"time,omitempty"`
	VenueName         string    `json:"venue_name,omitempty"`
	VenueAddress      string    `json:"venue_address,omitempty"`
	Setting           Setting   `json:"setting"`
	Genre             string    `json:"genre,omitempty"`
	Segment           string    `json:"segment"`
	TargetAudience    string    `json:"target_audience,omitempty"`
	SourceURL         string    `json:"source_url"`
	SourcePlatform    string    `json:"source_platform"`
	PriceRange        string    `json:"price_range,omitempty"`
	EstimatedCapacity *int      `json:"estimated_capacity,omitempty"`
	Description       string    `json:"description,omitempty"`
	IsOwnEvent        bool      `json:"is_own_event"`
}

// Recommendation is the indoor/outdoor advice derived from an outdoor score.
type Recommendation string

const (
	RecommendOutdoor Recommendation = "OUTDOOR"
	RecommendEither  Recommendation = "EITHER"
	RecommendIndoor  Recommendation = "INDOOR"
)

// WeatherSource records how a WeatherDay was obtained.
type WeatherSource string

const (
	WeatherForecast   WeatherSource = "forecast"
	WeatherHistorical WeatherSource = "historical_avg"
	WeatherEstimate   WeatherSource = "estimate"
)

// WeatherDay is the weather outlook for one calendar day of a Run.
type WeatherDay struct {
	RunID          string         `json:"run_id,omitempty"`
	Date           time.Time      `json:"date"`
	TempMaxC       float64        `json:"temp_max_c"`
	TempMinC       float64        `json:"temp_min_c"`
	PrecipProb     float64        `json:"precip_prob"`
	WindKmh        float64        `json:"wind_kmh"`
	Conditions     string         `json:"conditions"`
	OutdoorScore   int            `json:"outdoor_score"`
	Recommendation Recommendation `json:"recommendation"`
	Source         WeatherSource  `json:"source"`
}

// RunFilter narrows ListRuns.
type RunFilter struct {
	Status RunStatus
	Limit  int
	Offset int
}

// Backend persists runs, their events, weather and traces. Implementations must
// ignore duplicate event inserts and upsert weather days on (run, date).
type Backend interface {
	CreateRun(ctx context.Context, run *Run) error
	UpdateRunStatus(ctx context.Context, runID string, status RunStatus) error
	SaveTrace(ctx context.Context, runID string, trace *Trace) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error)
	DeleteRun(ctx context.Context, runID string) error

	// InsertEvent reports whether a new row was written.
	InsertEvent(ctx context.Context, runID string, event *Event) (bool, error)
	UpsertWeatherDay(ctx context.Context, runID string, day *WeatherDay) error
	Events(ctx context.Context, runID string) ([]*Event, error)
	WeatherDays(ctx context.Context, runID string) ([]*WeatherDay, error)

	Close() error
}

// DayKey formats t as a calendar-day key.
func DayKey(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDay parses a calendar day in DateLayout as UTC midnight.
func ParseDay(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}
