package database

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/digitaldrywood/stravaexport/internal/strava"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

const (
	FileName = "strava.db"

	stateLastStart = "last_start_date"
)

type DB struct {
	conn *sql.DB
}

func New(dataDir string) (*DB, error) {
	// Ensure data directory exists
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, FileName)
	conn, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite allows a single writer; the downloader writes from several goroutines
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}

	// Run migrations
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

func (db *DB) migrate() error {
	// Set up goose with embedded migrations
	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}

	// Run migrations from embedded files
	if err := goose.Up(db.conn, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

// Activity operations
func (db *DB) UpsertActivity(ctx context.Context, a strava.Activity) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode activity %d: %w", a.ID, err)
	}

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO activities (id, name, sport_type, start_date, start_date_local, timezone,
			distance, moving_time, elapsed_time, total_elevation_gain, average_speed, max_speed,
			average_heartrate, max_heartrate, raw, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			sport_type = excluded.sport_type,
			start_date = excluded.start_date,
			start_date_local = excluded.start_date_local,
			timezone = excluded.timezone,
			distance = excluded.distance,
			moving_time = excluded.moving_time,
			elapsed_time = excluded.elapsed_time,
			total_elevation_gain = excluded.total_elevation_gain,
			average_speed = excluded.average_speed,
			max_speed = excluded.max_speed,
			average_heartrate = excluded.average_heartrate,
			max_heartrate = excluded.max_heartrate,
			raw = excluded.raw,
			fetched_at = excluded.fetched_at
	`, a.ID, a.Name, sportType(a), formatTime(a.StartDate), formatTime(a.StartDateLocal), a.Timezone,
		a.Distance, a.MovingTime, a.ElapsedTime, a.TotalElevationGain, a.AverageSpeed, a.MaxSpeed,
		nullFloat(a.AverageHeartrate), nullFloat(a.MaxHeartrate), string(raw), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to save activity %d: %w", a.ID, err)
	}

	return nil
}

func (db *DB) GetActivity(ctx context.Context, id int64) (*strava.Activity, error) {
	var raw string
	err := db.conn.QueryRowContext(ctx, `SELECT raw FROM activities WHERE id = ?`, id).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var a strava.Activity
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return nil, fmt.Errorf("failed to decode activity %d: %w", id, err)
	}
	return &a, nil
}

// ListActivities returns stored activities ordered by start date. Zero
// bounds are open.
func (db *DB) ListActivities(ctx context.Context, after, before time.Time) ([]strava.Activity, error) {
	query := `SELECT raw FROM activities WHERE 1 = 1`
	var args []any
	if !after.IsZero() {
		query += ` AND start_date > ?`
		args = append(args, formatTime(after))
	}
	if !before.IsZero() {
		query += ` AND start_date < ?`
		args = append(args, formatTime(before))
	}
	query += ` ORDER BY start_date, id`

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query activities: %w", err)
	}
	defer rows.Close()

	var acts []strava.Activity
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var a strava.Activity
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return nil, fmt.Errorf("failed to decode activity: %w", err)
		}
		acts = append(acts, a)
	}
	return acts, rows.Err()
}

func (db *DB) CountActivities(ctx context.Context) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM activities`).Scan(&n)
	return n, err
}

// Stream operations

// ActivitiesWithoutStreams lists activity IDs whose streams were never fetched.
func (db *DB) ActivitiesWithoutStreams(ctx context.Context) ([]int64, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT a.id FROM activities a
		LEFT JOIN stream_fetches f ON f.activity_id = a.id
		WHERE f.activity_id IS NULL
		ORDER BY a.start_date, a.id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending streams: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SaveStreams replaces the stored streams of an activity and marks it as
// fetched. An empty set is valid: manual activities have no streams.
func (db *DB) SaveStreams(ctx context.Context, activityID int64, set strava.StreamSet) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM streams WHERE activity_id = ?`, activityID); err != nil {
		return fmt.Errorf("failed to clear streams for %d: %w", activityID, err)
	}

	for typ, st := range set {
		data, err := json.Marshal(st.Data)
		if err != nil {
			return fmt.Errorf("failed to encode %s stream: %w", typ, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO streams (activity_id, type, series_type, original_size, resolution, data)
			VALUES (?, ?, ?, ?, ?, ?)
		`, activityID, typ, st.SeriesType, st.OriginalSize, st.Resolution, string(data))
		if err != nil {
			return fmt.Errorf("failed to save %s stream for %d: %w", typ, activityID, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO stream_fetches (activity_id, fetched_at) VALUES (?, ?)
		ON CONFLICT(activity_id) DO UPDATE SET fetched_at = excluded.fetched_at
	`, activityID, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to mark streams fetched for %d: %w", activityID, err)
	}

	return tx.Commit()
}

func (db *DB) GetStreams(ctx context.Context, activityID int64) (strava.StreamSet, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT type, series_type, original_size, resolution, data
		FROM streams WHERE activity_id = ?
	`, activityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query streams: %w", err)
	}
	defer rows.Close()

	set := strava.StreamSet{}
	for rows.Next() {
		var st strava.Stream
		var data string
		if err := rows.Scan(&st.Type, &st.SeriesType, &st.OriginalSize, &st.Resolution, &data); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(data), &st.Data); err != nil {
			return nil, fmt.Errorf("failed to decode %s stream: %w", st.Type, err)
		}
		set[st.Type] = st
	}
	return set, rows.Err()
}

// Sync state

// LastStartDate is the start date of the newest activity seen by a previous
// sync, or the zero time.
func (db *DB) LastStartDate(ctx context.Context) (time.Time, error) {
	var v string
	err := db.conn.QueryRowContext(ctx, `SELECT value FROM sync_state WHERE key = ?`, stateLastStart).Scan(&v)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, v)
}

func (db *DB) SetLastStartDate(ctx context.Context, t time.Time) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO sync_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, stateLastStart, formatTime(t))
	return err
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func nullFloat(f float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: f, Valid: f != 0}
}

func sportType(a strava.Activity) string {
	if a.SportType != "" {
		return a.SportType
	}
	return a.Type
}
