// internal/dashboard/server.go
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/tamzrod/pump-monitor/internal/metrics"
	"github.com/tamzrod/pump-monitor/internal/pump"
	"github.com/tamzrod/pump-monitor/internal/store"
	"github.com/tamzrod/pump-monitor/internal/transition"
)

const (
	dateLayout   = "2006-01-02"
	defaultHours = 24
	healthWindow = 24 * time.Hour
)

// Queries is the read side of the store.
type Queries interface {
	Events(ctx context.Context, f store.EventFilter) ([]transition.Event, error)
	TripCount(ctx context.Context, f store.EventFilter) (int, error)
	History(ctx context.Context, since time.Time, pumpID int) ([]store.HistoryRow, error)
	DeviceHealth(ctx context.Context, since time.Time, ids []int) (map[int]store.Health, error)
}

// LatestFunc returns the last published snapshot.
type LatestFunc func() (pump.Snapshot, bool)

type Options struct {
	Hub     *Hub
	Latest  LatestFunc
	Queries Queries // nil when the store is disabled
	Devices []pump.DeviceLayout
	Metrics *metrics.Metrics
	Log     *slog.Logger
}

// Server is the HTTP transport of the dashboard channel and the read-only queries.
type Server struct {
	opts     Options
	log      *slog.Logger
	started  time.Time
	now      func() time.Time
	upgrader websocket.Upgrader
}

func NewServer(opts Options) (*Server, error) {
	if opts.Hub == nil || opts.Latest == nil {
		return nil, errors.New("dashboard: hub and latest required")
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		opts:    opts,
		log:     log.With("component", "dashboard"),
		started: time.Now(),
		now:     time.Now,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// plant-floor screens load the page from other hosts
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}, nil
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLog)

	r.Get("/ws", s.handleWebSocket)
	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/trip-events", s.handleTripEvents)
		r.Get("/pressure-history", s.handlePressureHistory)
		r.Get("/pump-health", s.handlePumpHealth)
	})
	r.Method(http.MethodGet, "/metrics", s.opts.Metrics.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("dashboard: listen %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("dashboard: shutdown: %w", err)
	}
	return nil
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"dur", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// ---- handlers ----

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		s.log.Debug("websocket upgrade failed", "err", err)
		return
	}

	c := newClient(s.opts.Hub, conn)

	// a new screen gets the current state without waiting a cycle
	if snap, ok := s.opts.Latest(); ok {
		if b, err := json.Marshal(Message{Type: "snapshot", Payload: snap}); err == nil {
			c.send <- b
		}
	}

	if !s.opts.Hub.attach(c) {
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	snap, ok := s.opts.Latest()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, errors.New("no snapshot yet"))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type tripEventsResponse struct {
	Events     []transition.Event `json:"events"`
	TotalTrips int                `json:"total_trips"`
}

func (s *Server) handleTripEvents(w http.ResponseWriter, r *http.Request) {
	if s.opts.Queries == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("store disabled"))
		return
	}

	f, err := parseEventFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	events, err := s.opts.Queries.Events(r.Context(), f)
	if err != nil {
		s.internal(w, err)
		return
	}
	total, err := s.opts.Queries.TripCount(r.Context(), f)
	if err != nil {
		s.internal(w, err)
		return
	}

	if events == nil {
		events = []transition.Event{}
	}
	writeJSON(w, http.StatusOK, tripEventsResponse{Events: events, TotalTrips: total})
}

func (s *Server) handlePressureHistory(w http.ResponseWriter, r *http.Request) {
	if s.opts.Queries == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("store disabled"))
		return
	}

	q := r.URL.Query()
	hours, err := intParam(q.Get("hours"), defaultHours)
	if err != nil || hours <= 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("hours: must be a positive integer"))
		return
	}
	pumpID, err := pumpParam(q.Get("pump_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	rows, err := s.opts.Queries.History(r.Context(), s.now().Add(-time.Duration(hours)*time.Hour), pumpID)
	if err != nil {
		s.internal(w, err)
		return
	}
	if rows == nil {
		rows = []store.HistoryRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

type pumpHealth struct {
	PumpID       int         `json:"pump_id"`
	Name         string      `json:"name"`
	Pressure     float64     `json:"pressure"`
	Setpoint     float64     `json:"setpoint"`
	IsReady      bool        `json:"is_ready"`
	IsRunning    bool        `json:"is_running"`
	IsTrip       bool        `json:"is_trip"`
	Status       pump.Status `json:"status"`
	TripCount24h int         `json:"trip_count_24h"`
	LastTrip     *time.Time  `json:"last_trip"`
}

type pumpHealthResponse struct {
	Pumps     []pumpHealth `json:"pumps"`
	Uptime    string       `json:"uptime"`
	Connected bool         `json:"connected"`
}

// handlePumpHealth joins the live readings with the stored trip record.
// Live values come from the last published snapshot.
func (s *Server) handlePumpHealth(w http.ResponseWriter, r *http.Request) {
	snap, _ := s.opts.Latest()
	live := make(map[int]pump.Reading, len(snap.Readings))
	for _, rd := range snap.Readings {
		live[rd.ID] = rd
	}

	ids := make([]int, len(s.opts.Devices))
	for i, d := range s.opts.Devices {
		ids[i] = d.ID
	}

	var health map[int]store.Health
	if s.opts.Queries != nil {
		var err error
		health, err = s.opts.Queries.DeviceHealth(r.Context(), s.now().Add(-healthWindow), ids)
		if err != nil {
			s.internal(w, err)
			return
		}
	}

	resp := pumpHealthResponse{
		Pumps:     make([]pumpHealth, 0, len(s.opts.Devices)),
		Uptime:    uptime(s.now().Sub(s.started)),
		Connected: snap.OK(),
	}
	for _, d := range s.opts.Devices {
		rd, ok := live[d.ID]
		if !ok {
			rd = pump.Reading{Status: pump.StatusUnknown}
		}
		h := health[d.ID]
		resp.Pumps = append(resp.Pumps, pumpHealth{
			PumpID:       d.ID,
			Name:         d.Name,
			Pressure:     rd.Pressure,
			Setpoint:     rd.Setpoint,
			IsReady:      rd.Ready,
			IsRunning:    rd.Running,
			IsTrip:       rd.Trip,
			Status:       rd.Status,
			TripCount24h: h.TripCount,
			LastTrip:     h.LastTrip,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) internal(w http.ResponseWriter, err error) {
	s.log.Error("query failed", "err", err)
	writeError(w, http.StatusInternalServerError, err)
}

// ---- helpers ----

// parseEventFilter reads pump_id ("all" or an id), start_date and end_date
// (YYYY-MM-DD, UTC; end_date is inclusive).
func parseEventFilter(r *http.Request) (store.EventFilter, error) {
	q := r.URL.Query()
	var f store.EventFilter

	id, err := pumpParam(q.Get("pump_id"))
	if err != nil {
		return f, err
	}
	f.PumpID = id

	if v := q.Get("start_date"); v != "" {
		t, err := time.ParseInLocation(dateLayout, v, time.UTC)
		if err != nil {
			return f, fmt.Errorf("start_date: %w", err)
		}
		f.From = t
	}
	if v := q.Get("end_date"); v != "" {
		t, err := time.ParseInLocation(dateLayout, v, time.UTC)
		if err != nil {
			return f, fmt.Errorf("end_date: %w", err)
		}
		f.To = t.Add(24*time.Hour - time.Second)
	}
	return f, nil
}

func pumpParam(v string) (int, error) {
	if v == "" || v == "all" {
		return 0, nil
	}
	id, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("pump_id: %w", err)
	}
	return id, nil
}

func intParam(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func uptime(d time.Duration) string {
	d = d.Truncate(time.Minute)
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	return fmt.Sprintf("%dh %dm", h, m)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
