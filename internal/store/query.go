// internal/store/query.go
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/tamzrod/pump-monitor/internal/transition"
)

// EventFilter narrows an event query. Zero fields match everything.
type EventFilter struct {
	PumpID int
	From   time.Time
	To     time.Time
	Limit  int
}

func (f EventFilter) where(tripsOnly bool) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if tripsOnly {
		conds = append(conds, "event_type = ?")
		args = append(args, string(transition.KindTrip))
	}
	if f.PumpID != 0 {
		conds = append(conds, "pump_id = ?")
		args = append(args, f.PumpID)
	}
	if !f.From.IsZero() {
		conds = append(conds, "timestamp >= ?")
		args = append(args, stamp(f.From))
	}
	if !f.To.IsZero() {
		conds = append(conds, "timestamp <= ?")
		args = append(args, stamp(f.To))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// Events returns matching events, newest first, capped at MaxEvents.
func (s *Store) Events(ctx context.Context, f EventFilter) ([]transition.Event, error) {
	limit := f.Limit
	if limit <= 0 || limit > MaxEvents {
		limit = MaxEvents
	}

	where, args := f.where(false)
	rows, err := s.db.QueryContext(ctx,
		`SELECT COALESCE(event_id, ''), pump_id, pump_name, event_type, timestamp,
		        COALESCE(pressure, 0), COALESCE(pressure_setpoint, 0)
		 FROM trip_events`+where+` ORDER BY timestamp DESC, id DESC LIMIT ?`,
		append(args, limit)...,
	)
	if err != nil {
		return nil, fmt.Errorf("store: events: %w", err)
	}
	defer rows.Close()

	var out []transition.Event
	for rows.Next() {
		var (
			e    transition.Event
			kind string
			ts   string
		)
		if err := rows.Scan(&e.ID, &e.DeviceID, &e.DeviceName, &kind, &ts, &e.Pressure, &e.Setpoint); err != nil {
			return nil, fmt.Errorf("store: events: %w", err)
		}
		e.Kind = transition.Kind(kind)
		e.At = parseStamp(ts)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: events: %w", err)
	}
	return out, nil
}

// TripCount counts TRIP events matching f. Limit is ignored.
func (s *Store) TripCount(ctx context.Context, f EventFilter) (int, error) {
	where, args := f.where(true)
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trip_events`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: trip count: %w", err)
	}
	return n, nil
}

// HistoryRow is one stored point-in-time reading.
type HistoryRow struct {
	PumpID   int       `json:"pump_id"`
	PumpName string    `json:"pump_name"`
	Pressure float64   `json:"pressure"`
	Setpoint float64   `json:"pressure_setpoint"`
	Status   string    `json:"status"`
	At       time.Time `json:"timestamp"`
}

// History returns rows newer than since, newest first. pumpID 0 means all pumps.
func (s *Store) History(ctx context.Context, since time.Time, pumpID int) ([]HistoryRow, error) {
	q := `SELECT pump_id, pump_name, COALESCE(pressure, 0), COALESCE(pressure_setpoint, 0),
	             COALESCE(status, ''), timestamp
	      FROM pressure_history WHERE timestamp >= ?`
	args := []any{stamp(since)}
	if pumpID != 0 {
		q += ` AND pump_id = ?`
		args = append(args, pumpID)
	}
	q += ` ORDER BY timestamp DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: history: %w", err)
	}
	defer rows.Close()

	var out []HistoryRow
	for rows.Next() {
		var (
			r  HistoryRow
			ts string
		)
		if err := rows.Scan(&r.PumpID, &r.PumpName, &r.Pressure, &r.Setpoint, &r.Status, &ts); err != nil {
			return nil, fmt.Errorf("store: history: %w", err)
		}
		r.At = parseStamp(ts)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: history: %w", err)
	}
	return out, nil
}

// Health is the trip record of one pump.
type Health struct {
	PumpID    int
	TripCount int        // trips since the window start
	LastTrip  *time.Time // most recent trip ever, nil if none
}

// DeviceHealth returns trip statistics per pump id for the given ids.
func (s *Store) DeviceHealth(ctx context.Context, since time.Time, ids []int) (map[int]Health, error) {
	out := make(map[int]Health, len(ids))
	for _, id := range ids {
		h := Health{PumpID: id}

		if err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM trip_events WHERE pump_id = ? AND event_type = ? AND timestamp >= ?`,
			id, string(transition.KindTrip), stamp(since),
		).Scan(&h.TripCount); err != nil {
			return nil, fmt.Errorf("store: health pump %d: %w", id, err)
		}

		var ts string
		err := s.db.QueryRowContext(ctx,
			`SELECT timestamp FROM trip_events WHERE pump_id = ? AND event_type = ?
			 ORDER BY timestamp DESC, id DESC LIMIT 1`,
			id, string(transition.KindTrip),
		).Scan(&ts)
		switch {
		case err == sql.ErrNoRows:
		case err != nil:
			return nil, fmt.Errorf("store: health pump %d: %w", id, err)
		default:
			t := parseStamp(ts)
			h.LastTrip = &t
		}

		out[id] = h
	}
	return out, nil
}
