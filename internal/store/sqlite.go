package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/i474232898/weather-tile-refresh/internal/weather"
)

const schema = `
CREATE TABLE IF NOT EXISTS outcomes (
  id            INTEGER PRIMARY KEY AUTOINCREMENT,
  cycle_id      TEXT    NOT NULL,
  latitude      REAL    NOT NULL,
  longitude     REAL    NOT NULL,
  ts            INTEGER NOT NULL,
  ok            INTEGER NOT NULL,
  location_name TEXT,
  temperature   TEXT,
  description   TEXT,
  icon_url      TEXT,
  reason        TEXT
);
CREATE INDEX IF NOT EXISTS idx_outcomes_ts ON outcomes(ts);
`

const selectColumns = `cycle_id, latitude, longitude, ts, ok, location_name, temperature, description, icon_url, reason`

// SQLiteStore persists refresh outcomes in a SQLite database.
type SQLiteStore struct {
	db        *sql.DB
	retention Retention
	now       func() time.Time
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func OpenSQLite(path string, retention Retention) (*SQLiteStore, error) {
	dsn, err := buildDSN(path)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writes.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db, retention: retention, now: time.Now}, nil
}

// Close releases the underlying database.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveOutcome inserts an outcome and enforces retention.
func (s *SQLiteStore) SaveOutcome(o weather.Outcome) error {
	var name, temp, desc, icon sql.NullString
	if o.Snapshot != nil {
		name = sql.NullString{String: o.Snapshot.LocationName, Valid: true}
		temp = sql.NullString{String: o.Snapshot.TemperatureText, Valid: true}
		desc = sql.NullString{String: o.Snapshot.Description, Valid: true}
		icon = sql.NullString{String: o.Snapshot.IconURL, Valid: o.Snapshot.IconURL != ""}
	}

	_, err := s.db.Exec(
		`INSERT INTO outcomes (`+selectColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.CycleID,
		o.Coordinate.Latitude,
		o.Coordinate.Longitude,
		o.Timestamp.UTC().UnixNano(),
		o.OK(),
		name, temp, desc, icon,
		sql.NullString{String: o.Reason, Valid: o.Reason != ""},
	)
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}

	if _, err := s.Prune(s.now()); err != nil {
		return err
	}
	return nil
}

// GetLatest returns the most recently saved outcome.
func (s *SQLiteStore) GetLatest() (weather.Outcome, error) {
	row := s.db.QueryRow(`SELECT ` + selectColumns + ` FROM outcomes ORDER BY id DESC LIMIT 1`)
	o, err := scanOutcome(row)
	if errors.Is(err, sql.ErrNoRows) {
		return weather.Outcome{}, ErrNotFound
	}
	if err != nil {
		return weather.Outcome{}, fmt.Errorf("get latest outcome: %w", err)
	}
	return o, nil
}

// GetRange returns outcomes between from and to (inclusive) in save order.
func (s *SQLiteStore) GetRange(from, to time.Time) ([]weather.Outcome, error) {
	rows, err := s.db.Query(
		`SELECT `+selectColumns+` FROM outcomes WHERE ts >= ? AND ts <= ? ORDER BY id`,
		from.UTC().UnixNano(), to.UTC().UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close outcome rows", "error", err)
		}
	}()

	var out []weather.Outcome
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

// Prune deletes outcomes outside the retention window and reports how many
// rows were removed.
func (s *SQLiteStore) Prune(now time.Time) (int, error) {
	var removed int64

	if s.retention.MaxHistory > 0 {
		res, err := s.db.Exec(
			`DELETE FROM outcomes WHERE id NOT IN (SELECT id FROM outcomes ORDER BY id DESC LIMIT ?)`,
			s.retention.MaxHistory,
		)
		if err != nil {
			return 0, fmt.Errorf("prune by count: %w", err)
		}
		n, _ := res.RowsAffected()
		removed += n
	}

	if s.retention.MaxAge > 0 {
		cutoff := now.Add(-s.retention.MaxAge).UTC().UnixNano()
		res, err := s.db.Exec(`DELETE FROM outcomes WHERE ts < ?`, cutoff)
		if err != nil {
			return int(removed), fmt.Errorf("prune by age: %w", err)
		}
		n, _ := res.RowsAffected()
		removed += n
	}

	return int(removed), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOutcome(sc scanner) (weather.Outcome, error) {
	var (
		o                           weather.Outcome
		ts                          int64
		ok                          bool
		name, temp, desc, icon, why sql.NullString
	)
	if err := sc.Scan(&o.CycleID, &o.Coordinate.Latitude, &o.Coordinate.Longitude, &ts, &ok, &name, &temp, &desc, &icon, &why); err != nil {
		return weather.Outcome{}, err
	}

	o.Timestamp = time.Unix(0, ts).UTC()
	o.Reason = why.String
	if ok {
		o.Snapshot = &weather.Snapshot{
			LocationName:    name.String,
			TemperatureText: temp.String,
			Description:     desc.String,
			IconURL:         icon.String,
		}
	}
	return o, nil
}

func buildDSN(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" || path == ":memory:" {
		return ":memory:", nil
	}
	if strings.HasPrefix(path, "file:") {
		return path, nil
	}

	// Ensure directory exists for file-backed sqlite db
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	return fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path), nil
}
