// Package channel owns the lifecycle of the push channel to the backend.
//
// The Manager is a finite-state machine driven by channel lifecycle events
// (open, message, error, close). All transitions run on the event loop.
package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tender-automation/dashboard/internal/eventloop"
	"github.com/tender-automation/dashboard/internal/logstore"
	"github.com/tender-automation/dashboard/internal/models"
	"github.com/tender-automation/dashboard/internal/protocol"
	"github.com/tender-automation/dashboard/internal/telemetry"
)

// DefaultReconnectDelay is the fixed wait between a close and the next connection attempt.
const DefaultReconnectDelay = 3 * time.Second

// FrameHandler consumes inbound frames in arrival order.
type FrameHandler interface {
	Route(frame protocol.Frame)
}

// HandlerFunc adapts a function to FrameHandler.
type HandlerFunc func(frame protocol.Frame)

// Route calls f(frame).
func (f HandlerFunc) Route(frame protocol.Frame) { f(frame) }

// Config configures the Manager.
type Config struct {
	URL            string
	ReconnectDelay time.Duration
}

// reconnectToken identifies the single outstanding reconnection attempt.
type reconnectToken struct {
	timer eventloop.Timer
}

// Manager connects to the push channel and reconnects after it closes.
type Manager struct {
	cfg     Config
	dialer  Dialer
	sched   eventloop.Scheduler
	logs    logstore.Appender
	handler FrameHandler
	logger  *slog.Logger

	state      models.ConnectionState
	conn       Conn
	gen        uint64
	pending    *reconnectToken
	dialCancel context.CancelFunc
	shutdown   bool
}

// NewManager creates a disconnected Manager.
func NewManager(cfg Config, dialer Dialer, sched eventloop.Scheduler, logs logstore.Appender, handler FrameHandler, logger *slog.Logger) *Manager {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:     cfg,
		dialer:  dialer,
		sched:   sched,
		logs:    logs,
		handler: handler,
		logger:  logger.With("component", "channel"),
		state:   models.ConnectionDisconnected,
	}
}

// State returns the current connectivity state.
func (m *Manager) State() models.ConnectionState {
	return m.state
}

// ReconnectPending reports whether a reconnection attempt is scheduled.
func (m *Manager) ReconnectPending() bool {
	return m.pending != nil
}

// Connect opens the channel. It does nothing while connecting, connected or after Disconnect.
func (m *Manager) Connect() {
	if m.shutdown || m.state != models.ConnectionDisconnected {
		return
	}
	if m.pending != nil {
		m.pending.timer.Stop()
		m.pending = nil
	}
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}

	m.gen++
	gen := m.gen
	m.setState(models.ConnectionConnecting)
	telemetry.ConnectAttempts.Inc()

	ctx, cancel := context.WithCancel(context.Background())
	m.dialCancel = cancel
	go func() {
		defer cancel()
		conn, err := m.dialer.Dial(ctx, m.cfg.URL)
		if err != nil {
			m.sched.Post(func() { m.onDialFailed(gen, err) })
			return
		}
		if !m.sched.Post(func() { m.onOpen(gen, conn) }) {
			conn.Close()
		}
	}()
}

// Disconnect closes the channel and cancels any pending reconnection. The Manager cannot be
// reconnected afterwards.
func (m *Manager) Disconnect() {
	m.shutdown = true
	m.gen++
	if m.pending != nil {
		m.pending.timer.Stop()
		m.pending = nil
	}
	if m.dialCancel != nil {
		m.dialCancel()
		m.dialCancel = nil
	}
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.setState(models.ConnectionDisconnected)
}

func (m *Manager) stale(gen uint64) bool {
	return m.shutdown || gen != m.gen
}

func (m *Manager) onOpen(gen uint64, conn Conn) {
	if m.stale(gen) {
		conn.Close()
		return
	}
	m.dialCancel = nil
	m.conn = conn
	m.setState(models.ConnectionConnected)
	m.logs.Append(models.LevelSuccess, "Connected to server")

	go m.readLoop(gen, conn)
}

func (m *Manager) onDialFailed(gen uint64, err error) {
	if m.stale(gen) {
		return
	}
	m.logger.Warn("dial failed", "url", m.cfg.URL, "error", err)
	m.onClose(gen)
}

func (m *Manager) onMessage(gen uint64, frame protocol.Frame) {
	if m.stale(gen) {
		return
	}
	m.handler.Route(frame)
}

// onError marks the channel down. Reconnection is left to the close event that follows.
func (m *Manager) onError(gen uint64, err error) {
	if m.stale(gen) {
		return
	}
	m.logger.Debug("channel error", "error", err)
	m.setState(models.ConnectionDisconnected)
}

func (m *Manager) onClose(gen uint64) {
	if m.stale(gen) {
		return
	}
	m.dialCancel = nil
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.setState(models.ConnectionDisconnected)
	m.scheduleReconnect()
}

func (m *Manager) scheduleReconnect() {
	if m.pending != nil {
		return
	}

	token := &reconnectToken{}
	token.timer = m.sched.After(m.cfg.ReconnectDelay, func() { m.onReconnectDue(token) })
	m.pending = token

	telemetry.ReconnectsScheduled.Inc()
	m.logs.Append(models.LevelWarning, fmt.Sprintf("Disconnected from server. Reconnecting in %s...", m.cfg.ReconnectDelay))
}

func (m *Manager) onReconnectDue(token *reconnectToken) {
	if m.shutdown || m.pending != token {
		return
	}
	m.pending = nil
	m.Connect()
}

func (m *Manager) readLoop(gen uint64, conn Conn) {
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				m.sched.Post(func() { m.onError(gen, err) })
			}
			m.sched.Post(func() { m.onClose(gen) })
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		frame := protocol.Frame{Binary: mt == websocket.BinaryMessage, Data: data}
		if !m.sched.Post(func() { m.onMessage(gen, frame) }) {
			conn.Close()
			return
		}
	}
}

func (m *Manager) setState(s models.ConnectionState) {
	if m.state == s {
		return
	}
	m.logger.Debug("connection state", "from", m.state, "to", s)
	m.state = s

	switch s {
	case models.ConnectionConnecting:
		telemetry.ConnectionState.Set(1)
	case models.ConnectionConnected:
		telemetry.ConnectionState.Set(2)
	default:
		telemetry.ConnectionState.Set(0)
	}
}
