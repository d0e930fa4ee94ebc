// internal/plc/s7/client.go
package s7

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/robinson/gos7"

	"github.com/tamzrod/pump-monitor/internal/plc"
)

// Session implements plc.Session over ISO-on-TCP using gos7.
// This adapter is transport-only: it reads bytes and classifies failures.
type Session struct {
	handler   *gos7.TCPClientHandler
	client    gos7.Client
	connected bool
}

// Config is minimal transport config.
type Config struct {
	Address     string
	Rack        int
	Slot        int
	Timeout     time.Duration
	IdleTimeout time.Duration
}

// Dialer returns a plc.Dialer that opens one session per call.
func Dialer(cfg Config) plc.Dialer {
	return func(ctx context.Context) (plc.Session, error) {
		return Dial(ctx, cfg)
	}
}

// Dial opens a connected session.
func Dial(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.Address == "" {
		return nil, errors.New("s7: address required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h := gos7.NewTCPClientHandler(cfg.Address, cfg.Rack, cfg.Slot)
	h.Timeout = cfg.Timeout
	h.IdleTimeout = cfg.IdleTimeout

	if err := h.Connect(); err != nil {
		return nil, plc.LinkLost("connect", fmt.Errorf("s7: connect %s (rack=%d slot=%d): %w", cfg.Address, cfg.Rack, cfg.Slot, err))
	}

	return &Session{
		handler:   h,
		client:    gos7.NewClient(h),
		connected: true,
	}, nil
}

// ReadRange reads length bytes from data block `block`.
func (s *Session) ReadRange(block, offset, length int) ([]byte, error) {
	if s == nil || s.handler == nil || !s.connected {
		return nil, plc.LinkLost("db_read", plc.ErrNotConnected)
	}

	buf := make([]byte, length)
	if err := s.client.AGReadDB(block, offset, length, buf); err != nil {
		cerr := classify("db_read", err)
		if plc.KindOf(cerr) == plc.KindLinkLost {
			s.connected = false
		}
		return nil, cerr
	}
	return buf, nil
}

// Connected reports the last known transport state.
func (s *Session) Connected() bool {
	return s != nil && s.handler != nil && s.connected
}

// Close closes the TCP connection. Safe to call more than once.
func (s *Session) Close() error {
	if s == nil || s.handler == nil {
		return nil
	}
	s.connected = false
	return s.handler.Close()
}

// busyMarkers are CPU responses meaning "another job is still running".
var busyMarkers = []string{
	"job pending",
}

// linkMarkers are the transport failures gos7 reports as plain text
// (its ErrorText table and the tcp transporter), lower-cased.
var linkMarkers = []string{
	"tcp : connection timeout",
	"tcp : connection error",
	"tcp : data receive timeout",
	"tcp : error receiving data",
	"tcp : data send timeout",
	"tcp : error sending data",
	"tcp : connection reset by the peer",
	"tcp : unreachable host",
	"iso : connection error",
	"cli : client not connected",
	"errisoconnect",
	"broken pipe",
	"connection reset by peer",
}

// nullConn is the transporter's "Connection to address %s is null".
func nullConn(msg string) bool {
	return strings.HasPrefix(msg, "connection to address ") && strings.HasSuffix(msg, " is null")
}

// classify turns a driver error into a plc.ReadError.
// This is the only place that looks at driver error text.
func classify(op string, err error) error {
	var ne net.Error
	if errors.As(err, &ne) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return plc.LinkLost(op, err)
	}

	msg := strings.ToLower(err.Error())
	for _, m := range busyMarkers {
		if strings.Contains(msg, m) {
			return plc.Busy(op, err)
		}
	}
	if nullConn(msg) {
		return plc.LinkLost(op, err)
	}
	for _, m := range linkMarkers {
		if strings.Contains(msg, m) {
			return plc.LinkLost(op, err)
		}
	}
	return plc.Other(op, err)
}
