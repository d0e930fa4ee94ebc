// internal/store/store.go
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tamzrod/pump-monitor/internal/pump"
	"github.com/tamzrod/pump-monitor/internal/transition"
)

// TimeLayout is how timestamps are stored: UTC, second resolution,
// lexically ordered (the format of SQLite's CURRENT_TIMESTAMP).
const TimeLayout = "2006-01-02 15:04:05"

// MaxEvents caps one event query.
const MaxEvents = 500

const schema = `
CREATE TABLE IF NOT EXISTS trip_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id TEXT,
	pump_id INTEGER NOT NULL,
	pump_name TEXT NOT NULL,
	event_type TEXT NOT NULL,
	timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
	pressure REAL,
	pressure_setpoint REAL
);
CREATE INDEX IF NOT EXISTS trip_events_pump_ts ON trip_events (pump_id, timestamp);

CREATE TABLE IF NOT EXISTS pressure_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	pump_id INTEGER NOT NULL,
	pump_name TEXT NOT NULL,
	pressure REAL,
	pressure_setpoint REAL,
	status TEXT,
	timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS pressure_history_ts ON pressure_history (timestamp);
`

// Store is the append-only event and history store.
// It implements publish.EventSink and publish.HistorySink.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Open opens (or creates) the database at path. ":memory:" is accepted.
func Open(ctx context.Context, path string, log *slog.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("store: path required")
	}
	if log == nil {
		log = slog.Default()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// one writer; also keeps ":memory:" a single database
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	return &Store{db: db, log: log.With("component", "store", "path", path)}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) SinkName() string { return "store" }

// AppendEvent records one transition event.
func (s *Store) AppendEvent(ctx context.Context, e transition.Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trip_events (event_id, pump_id, pump_name, event_type, timestamp, pressure, pressure_setpoint)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.DeviceID, e.DeviceName, string(e.Kind), stamp(e.At), e.Pressure, e.Setpoint,
	)
	if err != nil {
		return fmt.Errorf("store: append event: %w", err)
	}
	return nil
}

// AppendHistory records every reading of snap as one row, in one transaction.
func (s *Store) AppendHistory(ctx context.Context, snap pump.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: append history: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO pressure_history (pump_id, pump_name, pressure, pressure_setpoint, status, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: append history: %w", err)
	}
	defer stmt.Close()

	ts := stamp(snap.At)
	for _, r := range snap.Readings {
		if _, err := stmt.ExecContext(ctx, r.ID, r.Name, r.Pressure, r.Setpoint, r.Status.String(), ts); err != nil {
			return fmt.Errorf("store: append history pump %d: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: append history: %w", err)
	}
	return nil
}

func stamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(TimeLayout)
}

func parseStamp(v string) time.Time {
	t, err := time.ParseInLocation(TimeLayout, v, time.UTC)
	if err != nil {
		// the driver hands DATETIME columns back as time.Time,
		// which database/sql renders as RFC 3339 for a string target
		t, _ = time.Parse(time.RFC3339Nano, v)
	}
	return t
}
