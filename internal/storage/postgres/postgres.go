package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/FranksOps/eventradar/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ensure postgresBackend implements storage.Backend
var _ storage.Backend = (*postgresBackend)(nil)

type postgresBackend struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	city_id TEXT NOT NULL,
	city_name TEXT NOT NULL,
	country TEXT NOT NULL,
	date_from DATE NOT NULL,
	date_to DATE NOT NULL,
	segments TEXT[] NOT NULL DEFAULT '{}',
	radius_km INTEGER NOT NULL DEFAULT 20,
	status TEXT NOT NULL DEFAULT 'pending',
	trace JSONB,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
	id BIGSERIAL PRIMARY KEY,
	run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	date DATE NOT NULL,
	time TEXT NOT NULL DEFAULT '',
	venue_name TEXT NOT NULL DEFAULT '',
	venue_address TEXT NOT NULL DEFAULT '',
	setting TEXT NOT NULL DEFAULT 'unknown',
	genre TEXT NOT NULL DEFAULT '',
	segment TEXT NOT NULL DEFAULT 'other',
	target_audience TEXT NOT NULL DEFAULT '',
	source_url TEXT NOT NULL DEFAULT '',
	source_platform TEXT NOT NULL DEFAULT '',
	price_range TEXT NOT NULL DEFAULT '',
	estimated_capacity INTEGER,
	description TEXT NOT NULL DEFAULT '',
	is_own_event BOOLEAN NOT NULL DEFAULT FALSE,
	UNIQUE (run_id, name, date, venue_name)
);

CREATE TABLE IF NOT EXISTS weather_days (
	run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	date DATE NOT NULL,
	temp_max_c DOUBLE PRECISION NOT NULL,
	temp_min_c DOUBLE PRECISION NOT NULL,
	precip_prob DOUBLE PRECISION NOT NULL,
	wind_kmh DOUBLE PRECISION NOT NULL,
	conditions TEXT NOT NULL,
	outdoor_score INTEGER NOT NULL,
	recommendation TEXT NOT NULL,
	source TEXT NOT NULL,
	PRIMARY KEY (run_id, date)
);

CREATE INDEX IF NOT EXISTS idx_events_run_date ON events (run_id, date);
`

// New creates a new Postgres-backed storage.Backend.
func New(ctx context.Context, dsn string) (storage.Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: apply schema: %w", err)
	}

	return &postgresBackend{pool: pool}, nil
}

func (b *postgresBackend) CreateRun(ctx context.Context, run *storage.Run) error {
	segments := run.Segments
	if segments == nil {
		segments = []string{}
	}

	query := `
	INSERT INTO runs (
		id, city_id, city_name, country, date_from, date_to, segments, radius_km, status, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := b.pool.Exec(ctx, query,
		run.ID,
		run.CityID,
		run.CityName,
		run.Country,
		run.DateFrom,
		run.DateTo,
		segments,
		run.RadiusKm,
		string(run.Status),
		run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert run: %w", err)
	}
	return nil
}

func (b *postgresBackend) UpdateRunStatus(ctx context.Context, runID string, status storage.RunStatus) error {
	tag, err := b.pool.Exec(ctx, `UPDATE runs SET status = $1 WHERE id = $2`, string(status), runID)
	if err != nil {
		return fmt.Errorf("postgres: update status: %w", err)
	}
	return requireRow(tag, runID)
}

func (b *postgresBackend) SaveTrace(ctx context.Context, runID string, trace *storage.Trace) error {
	data, err := json.Marshal(trace)
	if err != nil {
		return fmt.Errorf("postgres: encode trace: %w", err)
	}
	tag, err := b.pool.Exec(ctx, `UPDATE runs SET trace = $1 WHERE id = $2`, data, runID)
	if err != nil {
		return fmt.Errorf("postgres: save trace: %w", err)
	}
	return requireRow(tag, runID)
}

const runColumns = `id, city_id, city_name, country, date_from, date_to, segments, radius_km, status, trace, created_at`

func (b *postgresBackend) GetRun(ctx context.Context, runID string) (*storage.Run, error) {
	row := b.pool.QueryRow(ctx, `SELECT `+runColumns+`, 0 FROM runs WHERE id = $1`, runID)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("postgres: %s: %w", runID, storage.ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get run: %w", err)
	}
	return run, nil
}

func (b *postgresBackend) ListRuns(ctx context.Context, filter storage.RunFilter) ([]*storage.Run, error) {
	query := `SELECT ` + runColumns + `, (SELECT COUNT(*) FROM events e WHERE e.run_id = runs.id) FROM runs WHERE 1=1`
	args := []any{}
	argID := 1

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argID)
		args = append(args, string(filter.Status))
		argID++
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argID)
		args = append(args, filter.Limit)
		argID++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argID)
		args = append(args, filter.Offset)
	}

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list runs: %w", err)
	}
	defer rows.Close()

	var runs []*storage.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list runs: %w", err)
	}
	return runs, nil
}

func (b *postgresBackend) DeleteRun(ctx context.Context, runID string) error {
	tag, err := b.pool.Exec(ctx, `DELETE FROM runs WHERE id = $1`, runID)
	if err != nil {
		return fmt.Errorf("postgres: delete run: %w", err)
	}
	return requireRow(tag, runID)
}

func (b *postgresBackend) InsertEvent(ctx context.Context, runID string, e *storage.Event) (bool, error) {
	query := `
	INSERT INTO events (
		run_id, name, date, time, venue_name, venue_address, setting, genre, segment,
		target_audience, source_url, source_platform, price_range, estimated_capacity,
		description, is_own_event
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	ON CONFLICT (run_id, name, date, venue_name) DO NOTHING
	`

	tag, err := b.pool.Exec(ctx, query,
		runID,
		e.Name,
		e.Date,
		e.Time,
		e.VenueName,
		e.VenueAddress,
		string(e.Setting),
		e.Genre,
		e.Segment,
		e.TargetAudience,
		e.SourceURL,
		e.SourcePlatform,
		e.PriceRange,
		e.EstimatedCapacity,
		e.Description,
		e.IsOwnEvent,
	)
	if err != nil {
		return false, fmt.Errorf("postgres: insert event: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (b *postgresBackend) UpsertWeatherDay(ctx context.Context, runID string, w *storage.WeatherDay) error {
	query := `
	INSERT INTO weather_days (
		run_id, date, temp_max_c, temp_min_c, precip_prob, wind_kmh, conditions,
		outdoor_score, recommendation, source
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (run_id, date) DO UPDATE SET
		temp_max_c = EXCLUDED.temp_max_c,
		temp_min_c = EXCLUDED.temp_min_c,
		precip_prob = EXCLUDED.precip_prob,
		wind_kmh = EXCLUDED.wind_kmh,
		conditions = EXCLUDED.conditions,
		outdoor_score = EXCLUDED.outdoor_score,
		recommendation = EXCLUDED.recommendation,
		source = EXCLUDED.source
	`

	_, err := b.pool.Exec(ctx, query,
		runID,
		w.Date,
		w.TempMaxC,
		w.TempMinC,
		w.PrecipProb,
		w.WindKmh,
		w.Conditions,
		w.OutdoorScore,
		string(w.Recommendation),
		string(w.Source),
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert weather: %w", err)
	}
	return nil
}

func (b *postgresBackend) Events(ctx context.Context, runID string) ([]*storage.Event, error) {
	query := `
	SELECT id, run_id, name, date, time, venue_name, venue_address, setting, genre, segment,
		target_audience, source_url, source_platform, price_range, estimated_capacity,
		description, is_own_event
	FROM events WHERE run_id = $1 ORDER BY date, time, id
	`
	rows, err := b.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("postgres: query events: %w", err)
	}
	defer rows.Close()

	var events []*storage.Event
	for rows.Next() {
		var e storage.Event
		var setting string
		var capacity *int32

		err := rows.Scan(
			&e.ID, &e.RunID, &e.Name, &e.Date, &e.Time, &e.VenueName, &e.VenueAddress,
			&setting, &e.Genre, &e.Segment, &e.TargetAudience, &e.SourceURL,
			&e.SourcePlatform, &e.PriceRange, &capacity, &e.Description, &e.IsOwnEvent,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		e.Setting = storage.Setting(setting)
		if capacity != nil {
			c := int(*capacity)
			e.EstimatedCapacity = &c
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: query events: %w", err)
	}
	return events, nil
}

func (b *postgresBackend) WeatherDays(ctx context.Context, runID string) ([]*storage.WeatherDay, error) {
	query := `
	SELECT run_id, date, temp_max_c, temp_min_c, precip_prob, wind_kmh, conditions,
		outdoor_score, recommendation, source
	FROM weather_days WHERE run_id = $1 ORDER BY date
	`
	rows, err := b.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("postgres: query weather: %w", err)
	}
	defer rows.Close()

	var days []*storage.WeatherDay
	for rows.Next() {
		var w storage.WeatherDay
		var rec, src string

		err := rows.Scan(
			&w.RunID, &w.Date, &w.TempMaxC, &w.TempMinC, &w.PrecipProb, &w.WindKmh,
			&w.Conditions, &w.OutdoorScore, &rec, &src,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan weather: %w", err)
		}
		w.Recommendation = storage.Recommendation(rec)
		w.Source = storage.WeatherSource(src)
		days = append(days, &w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: query weather: %w", err)
	}
	return days, nil
}

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}

func scanRun(row pgx.Row) (*storage.Run, error) {
	var r storage.Run
	var status string
	var trace []byte
	var count int64

	err := row.Scan(
		&r.ID, &r.CityID, &r.CityName, &r.Country, &r.DateFrom, &r.DateTo, &r.Segments,
		&r.RadiusKm, &status, &trace, &r.CreatedAt, &count,
	)
	if err != nil {
		return nil, err
	}
	r.Status = storage.RunStatus(status)
	r.EventCount = int(count)
	if len(trace) > 0 {
		var t storage.Trace
		if err := json.Unmarshal(trace, &t); err != nil {
			return nil, err
		}
		r.Trace = &t
	}
	r.CreatedAt = r.CreatedAt.UTC()
	return &r, nil
}

func requireRow(tag pgconn.CommandTag, runID string) error {
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: %s: %w", runID, storage.ErrRunNotFound)
	}
	return nil
}
