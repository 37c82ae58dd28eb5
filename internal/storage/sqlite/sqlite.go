package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/FranksOps/eventradar/internal/storage"
	_ "modernc.org/sqlite"
)

// ensure sqliteBackend implements storage.Backend
var _ storage.Backend = (*sqliteBackend)(nil)

type sqliteBackend struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	city_id TEXT NOT NULL,
	city_name TEXT NOT NULL,
	country TEXT NOT NULL,
	date_from TEXT NOT NULL,
	date_to TEXT NOT NULL,
	segments TEXT NOT NULL DEFAULT '[]',
	radius_km INTEGER NOT NULL DEFAULT 20,
	status TEXT NOT NULL DEFAULT 'pending',
	trace TEXT,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL REFERENCES runs(id),
	name TEXT NOT NULL,
	date TEXT NOT NULL,
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
	is_own_event BOOLEAN NOT NULL DEFAULT 0,
	UNIQUE(run_id, name, date, venue_name)
);

CREATE TABLE IF NOT EXISTS weather_days (
	run_id TEXT NOT NULL REFERENCES runs(id),
	date TEXT NOT NULL,
	temp_max_c REAL NOT NULL,
	temp_min_c REAL NOT NULL,
	precip_prob REAL NOT NULL,
	wind_kmh REAL NOT NULL,
	conditions TEXT NOT NULL,
	outdoor_score INTEGER NOT NULL,
	recommendation TEXT NOT NULL,
	source TEXT NOT NULL,
	PRIMARY KEY (run_id, date)
);
`

// New creates a new SQLite-backed storage.Backend.
func New(dsn string) (storage.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// A single connection keeps in-memory databases coherent and serialises writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}

	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) CreateRun(ctx context.Context, run *storage.Run) error {
	segments, err := json.Marshal(nonNil(run.Segments))
	if err != nil {
		return fmt.Errorf("sqlite: encode segments: %w", err)
	}

	query := `
	INSERT INTO runs (
		id, city_id, city_name, country, date_from, date_to, segments, radius_km, status, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = b.db.ExecContext(ctx, query,
		run.ID,
		run.CityID,
		run.CityName,
		run.Country,
		storage.DayKey(run.DateFrom),
		storage.DayKey(run.DateTo),
		string(segments),
		run.RadiusKm,
		string(run.Status),
		run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert run: %w", err)
	}
	return nil
}

func (b *sqliteBackend) UpdateRunStatus(ctx context.Context, runID string, status storage.RunStatus) error {
	res, err := b.db.ExecContext(ctx, `UPDATE runs SET status = ? WHERE id = ?`, string(status), runID)
	if err != nil {
		return fmt.Errorf("sqlite: update status: %w", err)
	}
	return requireRow(res, runID)
}

func (b *sqliteBackend) SaveTrace(ctx context.Context, runID string, trace *storage.Trace) error {
	data, err := json.Marshal(trace)
	if err != nil {
		return fmt.Errorf("sqlite: encode trace: %w", err)
	}
	res, err := b.db.ExecContext(ctx, `UPDATE runs SET trace = ? WHERE id = ?`, string(data), runID)
	if err != nil {
		return fmt.Errorf("sqlite: save trace: %w", err)
	}
	return requireRow(res, runID)
}

const runColumns = `id, city_id, city_name, country, date_from, date_to, segments, radius_km, status, trace, created_at`

func (b *sqliteBackend) GetRun(ctx context.Context, runID string) (*storage.Run, error) {
	row := b.db.QueryRowContext(ctx, `SELECT `+runColumns+`, 0 FROM runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sqlite: %s: %w", runID, storage.ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get run: %w", err)
	}
	return run, nil
}

func (b *sqliteBackend) ListRuns(ctx context.Context, filter storage.RunFilter) ([]*storage.Run, error) {
	query := `SELECT ` + runColumns + `, (SELECT COUNT(*) FROM events e WHERE e.run_id = runs.id) FROM runs WHERE 1=1`
	args := []any{}

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}

	query += ` ORDER BY created_at DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		if filter.Limit <= 0 {
			query += ` LIMIT -1`
		}
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list runs: %w", err)
	}
	defer rows.Close()

	var runs []*storage.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list runs: %w", err)
	}
	return runs, nil
}

func (b *sqliteBackend) DeleteRun(ctx context.Context, runID string) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range []string{
		`DELETE FROM weather_days WHERE run_id = ?`,
		`DELETE FROM events WHERE run_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, runID); err != nil {
			return fmt.Errorf("sqlite: delete run: %w", err)
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, runID)
	if err != nil {
		return fmt.Errorf("sqlite: delete run: %w", err)
	}
	if err := requireRow(res, runID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

func (b *sqliteBackend) InsertEvent(ctx context.Context, runID string, e *storage.Event) (bool, error) {
	query := `
	INSERT INTO events (
		run_id, name, date, time, venue_name, venue_address, setting, genre, segment,
		target_audience, source_url, source_platform, price_range, estimated_capacity,
		description, is_own_event
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id, name, date, venue_name) DO NOTHING
	`

	var capacity sql.NullInt64
	if e.EstimatedCapacity != nil {
		capacity = sql.NullInt64{Int64: int64(*e.EstimatedCapacity), Valid: true}
	}

	res, err := b.db.ExecContext(ctx, query,
		runID,
		e.Name,
		storage.DayKey(e.Date),
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
		capacity,
		e.Description,
		e.IsOwnEvent,
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: insert event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: insert event: %w", err)
	}
	return n > 0, nil
}

func (b *sqliteBackend) UpsertWeatherDay(ctx context.Context, runID string, w *storage.WeatherDay) error {
	query := `
	INSERT INTO weather_days (
		run_id, date, temp_max_c, temp_min_c, precip_prob, wind_kmh, conditions,
		outdoor_score, recommendation, source
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id, date) DO UPDATE SET
		temp_max_c = excluded.temp_max_c,
		temp_min_c = excluded.temp_min_c,
		precip_prob = excluded.precip_prob,
		wind_kmh = excluded.wind_kmh,
		conditions = excluded.conditions,
		outdoor_score = excluded.outdoor_score,
		recommendation = excluded.recommendation,
		source = excluded.source
	`

	_, err := b.db.ExecContext(ctx, query,
		runID,
		storage.DayKey(w.Date),
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
		return fmt.Errorf("sqlite: upsert weather: %w", err)
	}
	return nil
}

func (b *sqliteBackend) Events(ctx context.Context, runID string) ([]*storage.Event, error) {
	query := `
	SELECT id, run_id, name, date, time, venue_name, venue_address, setting, genre, segment,
		target_audience, source_url, source_platform, price_range, estimated_capacity,
		description, is_own_event
	FROM events WHERE run_id = ? ORDER BY date, time, id
	`
	rows, err := b.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query events: %w", err)
	}
	defer rows.Close()

	var events []*storage.Event
	for rows.Next() {
		var e storage.Event
		var date, setting string
		var capacity sql.NullInt64

		err := rows.Scan(
			&e.ID, &e.RunID, &e.Name, &date, &e.Time, &e.VenueName, &e.VenueAddress,
			&setting, &e.Genre, &e.Segment, &e.TargetAudience, &e.SourceURL,
			&e.SourcePlatform, &e.PriceRange, &capacity, &e.Description, &e.IsOwnEvent,
		)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan event: %w", err)
		}
		if e.Date, err = storage.ParseDay(date); err != nil {
			return nil, fmt.Errorf("sqlite: event date %q: %w", date, err)
		}
		e.Setting = storage.Setting(setting)
		if capacity.Valid {
			c := int(capacity.Int64)
			e.EstimatedCapacity = &c
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: query events: %w", err)
	}
	return events, nil
}

func (b *sqliteBackend) WeatherDays(ctx context.Context, runID string) ([]*storage.WeatherDay, error) {
	query := `
	SELECT run_id, date, temp_max_c, temp_min_c, precip_prob, wind_kmh, conditions,
		outdoor_score, recommendation, source
	FROM weather_days WHERE run_id = ? ORDER BY date
	`
	rows, err := b.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query weather: %w", err)
	}
	defer rows.Close()

	var days []*storage.WeatherDay
	for rows.Next() {
		var w storage.WeatherDay
		var date, rec, src string

		err := rows.Scan(
			&w.RunID, &date, &w.TempMaxC, &w.TempMinC, &w.PrecipProb, &w.WindKmh,
			&w.Conditions, &w.OutdoorScore, &rec, &src,
		)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan weather: %w", err)
		}
		if w.Date, err = storage.ParseDay(date); err != nil {
			return nil, fmt.Errorf("sqlite: weather date %q: %w", date, err)
		}
		w.Recommendation = storage.Recommendation(rec)
		w.Source = storage.WeatherSource(src)
		days = append(days, &w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: query weather: %w", err)
	}
	return days, nil
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*storage.Run, error) {
	var r storage.Run
	var from, to, segments, status string
	var trace sql.NullString

	err := s.Scan(
		&r.ID, &r.CityID, &r.CityName, &r.Country, &from, &to, &segments,
		&r.RadiusKm, &status, &trace, &r.CreatedAt, &r.EventCount,
	)
	if err != nil {
		return nil, err
	}
	if r.DateFrom, err = storage.ParseDay(from); err != nil {
		return nil, err
	}
	if r.DateTo, err = storage.ParseDay(to); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(segments), &r.Segments); err != nil {
		return nil, err
	}
	r.Status = storage.RunStatus(status)
	if trace.Valid && trace.String != "" {
		var t storage.Trace
		if err := json.Unmarshal([]byte(trace.String), &t); err != nil {
			return nil, err
		}
		r.Trace = &t
	}
	r.CreatedAt = r.CreatedAt.UTC()
	return &r, nil
}

func requireRow(res sql.Result, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("sqlite: %s: %w", runID, storage.ErrRunNotFound)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
