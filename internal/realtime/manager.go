// Package realtime keeps a deal's chat channel open, decodes its events and
// reconnects with exponential backoff after transient failures.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"medius/internal/auth"
	"medius/internal/domain"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	// StateFailed is terminal: retries are exhausted until Start is called again.
	StateFailed State = "failed"
)

// Banner texts reported in Status.Err.
const (
	ErrTextConnection = "Chat connection error."
	ErrTextExhausted  = "Chat disconnected permanently. Refresh needed."
	ErrTextAuth       = "Auth required"
)

// Status is a connection state snapshot delivered to the EventHandler.
type Status struct {
	State   State         `json:"state"`
	Attempt int           `json:"attempt"`
	Err     string        `json:"error,omitempty"`
	RetryIn time.Duration `json:"retry_in,omitempty"`
}

// EventHandler receives channel events. Calls are serialized and ordered.
// Implementations must not call back into the Manager from a handler.
type EventHandler interface {
	HandleMessage(msg domain.ChatMessage)
	HandleDealUpdate(patch json.RawMessage)
	HandleServerError(msg string)
	HandleStatus(st Status)
}

// Dialer is satisfied by *websocket.Dialer.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// Timer is a pending reconnect.
type Timer interface {
	Stop() bool
}

// Scheduler creates reconnect timers.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type wallClock struct{}

func (wallClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type Config struct {
	URL          string
	DealID       string
	Policy       Policy
	WriteTimeout time.Duration
	// PingInterval enables keep-alive pings; zero disables them.
	PingInterval time.Duration
}

type Option func(*Manager)

func WithDialer(d Dialer) Option {
	return func(m *Manager) { m.dialer = d }
}

func WithScheduler(s Scheduler) Option {
	return func(m *Manager) { m.sched = s }
}

func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// Manager owns the realtime channel of one deal.
type Manager struct {
	cfg     Config
	session auth.Session
	handler EventHandler
	dialer  Dialer
	sched   Scheduler
	logger  *zap.Logger

	mu       sync.Mutex
	state    State
	attempts int
	epoch    uint64
	conn     *websocket.Conn
	timer    Timer
	cancel   context.CancelFunc
	runCtx   context.Context

	// dispatchMu orders handler calls; it is taken while mu is held and mu is
	// released before the handler runs.
	dispatchMu sync.Mutex
	writeMu    sync.Mutex
}

func NewManager(cfg Config, session auth.Session, handler EventHandler, opts ...Option) (*Manager, error) {
	if cfg.URL == "" {
		return nil, domain.ErrMissingEndpoint
	}
	if cfg.DealID == "" {
		return nil, domain.ErrMissingDealID
	}
	def := DefaultPolicy()
	if cfg.Policy.MaxAttempts <= 0 {
		cfg.Policy.MaxAttempts = def.MaxAttempts
	}
	if cfg.Policy.BaseDelay <= 0 {
		cfg.Policy.BaseDelay = def.BaseDelay
	}
	if cfg.Policy.MaxDelay <= 0 {
		cfg.Policy.MaxDelay = def.MaxDelay
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	m := &Manager{
		cfg:     cfg,
		session: session,
		handler: handler,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second, Proxy: http.ProxyFromEnvironment},
		sched:   wallClock{},
		logger:  zap.NewNop(),
		state:   StateDisconnected,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.Named("realtime").With(zap.String("deal_id", cfg.DealID))
	return m, nil
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Attempts is the number of dials made since the last successful open.
func (m *Manager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// Start opens the channel. It is a no-op while a connection cycle is active;
// from the disconnected or failed state it begins a fresh cycle with the
// attempt counter at zero. ctx bounds the manager's lifetime.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.state != StateDisconnected && m.state != StateFailed {
		m.mu.Unlock()
		return
	}
	m.epoch++
	epoch := m.epoch
	m.attempts = 0
	if m.cancel != nil {
		// left over from a cycle that failed; its epoch is already stale
		m.cancel()
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.runCtx, m.cancel = runCtx, cancel
	m.mu.Unlock()

	context.AfterFunc(runCtx, func() { m.closeEpoch(epoch) })
	go m.connect(epoch)
}

// Reconnect is the manual refresh offered once retries are exhausted.
func (m *Manager) Reconnect(ctx context.Context) {
	m.Start(ctx)
}

// Close tears the channel down with a normal closure. Any pending reconnect
// is canceled and the closure never schedules another.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closeLocked()
}

func (m *Manager) closeEpoch(epoch uint64) {
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return
	}
	m.closeLocked()
}

func (m *Manager) closeLocked() {
	m.epoch++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	conn := m.conn
	m.conn = nil
	prev := m.state
	m.state = StateDisconnected
	m.attempts = 0

	m.dispatchMu.Lock()
	m.mu.Unlock()
	defer m.dispatchMu.Unlock()

	if conn != nil {
		m.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client closing")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		m.writeMu.Unlock()
		_ = conn.Close()
		m.logger.Info("channel closed by client")
	}
	if prev != StateDisconnected {
		m.handler.HandleStatus(Status{State: StateDisconnected})
	}
}

// Send writes a frame. It fails with domain.ErrNotConnected unless the
// channel is open.
func (m *Manager) Send(ctx context.Context, frame any) error {
	m.mu.Lock()
	conn, state := m.conn, m.state
	m.mu.Unlock()
	if state != StateConnected || conn == nil {
		return domain.ErrNotConnected
	}

	deadline := time.Now().Add(m.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// SendChat sends a chat message to the counterparty.
func (m *Manager) SendChat(ctx context.Context, receiverID, text, tempID string) error {
	return m.Send(ctx, NewSendMessage(m.cfg.DealID, receiverID, text, tempID))
}

func (m *Manager) connect(epoch uint64) {
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	m.attempts++
	attempt := m.attempts
	ctx := m.runCtx
	m.state = StateConnecting
	m.unlockAndEmit(Status{State: StateConnecting, Attempt: attempt})

	m.logger.Info("connecting", zap.Int("attempt", attempt))

	token, err := m.session.Token(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrSignedOut) {
			m.giveUp(epoch, ErrTextAuth, err)
			return
		}
		m.fail(epoch, fmt.Errorf("get token: %w", err))
		return
	}

	target, err := m.dialURL(token)
	if err != nil {
		m.giveUp(epoch, ErrTextConnection, err)
		return
	}

	conn, resp, err := m.dialer.DialContext(ctx, target, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		m.fail(epoch, fmt.Errorf("dial: %w", err))
		return
	}

	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		_ = conn.Close()
		return
	}
	m.conn = conn
	m.attempts = 0
	m.state = StateConnected
	if m.cfg.PingInterval > 0 {
		m.startKeepAlive(epoch, conn)
	}
	go m.readLoop(epoch, conn)
	m.unlockAndEmit(Status{State: StateConnected})

	m.logger.Info("connected")
}

func (m *Manager) dialURL(token string) (string, error) {
	u, err := url.Parse(m.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parse websocket url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	q.Set("dealId", m.cfg.DealID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (m *Manager) readLoop(epoch uint64, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.handleClosed(epoch, conn, err)
			return
		}
		env, err := DecodeEnvelope(data)
		if err != nil {
			m.logger.Warn("dropping undecodable frame", zap.Error(err))
			continue
		}
		m.dispatch(epoch, env)
	}
}

func (m *Manager) dispatch(epoch uint64, env *Envelope) {
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return
	}
	m.dispatchMu.Lock()
	m.mu.Unlock()
	defer m.dispatchMu.Unlock()

	switch env.Type {
	case TypeNewMessage:
		if env.Message != nil {
			m.handler.HandleMessage(*env.Message)
		}
	case TypeDealStatusUpdate:
		if len(env.Deal) > 0 && string(env.Deal) != "null" {
			m.handler.HandleDealUpdate(env.Deal)
		}
	case TypeError:
		msg := env.Error
		if msg == "" {
			msg = "Unknown chat server error"
		}
		m.logger.Warn("server error", zap.String("error", msg))
		m.handler.HandleServerError(msg)
	default:
		m.logger.Debug("ignoring frame", zap.String("type", env.Type))
	}
}

func (m *Manager) handleClosed(epoch uint64, conn *websocket.Conn, err error) {
	m.mu.Lock()
	if m.epoch != epoch || m.conn != conn {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	_ = conn.Close()

	if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		m.state = StateDisconnected
		m.logger.Info("channel closed cleanly")
		m.unlockAndEmit(Status{State: StateDisconnected})
		return
	}
	m.failLocked(epoch, err)
}

func (m *Manager) fail(epoch uint64, err error) {
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return
	}
	m.failLocked(epoch, err)
}

// failLocked schedules the next attempt or enters the terminal state.
// It releases mu.
func (m *Manager) failLocked(epoch uint64, err error) {
	attempt := m.attempts
	if attempt < m.cfg.Policy.MaxAttempts {
		delay := m.cfg.Policy.Delay(attempt)
		m.state = StateReconnecting
		m.timer = m.sched.AfterFunc(delay, func() { m.connect(epoch) })
		m.logger.Warn("channel failed, retrying",
			zap.Error(err), zap.Int("attempt", attempt), zap.Duration("retry_in", delay))
		m.unlockAndEmit(Status{State: StateReconnecting, Attempt: attempt, Err: ErrTextConnection, RetryIn: delay})
		return
	}

	m.state = StateFailed
	m.logger.Error("giving up on channel", zap.Error(err), zap.Int("attempts", attempt))
	m.unlockAndEmit(Status{State: StateFailed, Attempt: attempt, Err: ErrTextExhausted})
}

func (m *Manager) giveUp(epoch uint64, text string, err error) {
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return
	}
	attempt := m.attempts
	m.state = StateFailed
	m.logger.Error("channel setup failed", zap.Error(err))
	m.unlockAndEmit(Status{State: StateFailed, Attempt: attempt, Err: text})
}

// unlockAndEmit releases mu and delivers st, keeping handler calls in the
// order the transitions were made.
func (m *Manager) unlockAndEmit(st Status) {
	m.dispatchMu.Lock()
	m.mu.Unlock()
	defer m.dispatchMu.Unlock()
	m.handler.HandleStatus(st)
}

func (m *Manager) startKeepAlive(epoch uint64, conn *websocket.Conn) {
	pongWait := 2 * m.cfg.PingInterval
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go func() {
		ticker := time.NewTicker(m.cfg.PingInterval)
		defer ticker.Stop()
		for range ticker.C {
			m.mu.Lock()
			current := m.epoch == epoch && m.conn == conn
			m.mu.Unlock()
			if !current {
				return
			}
			m.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(m.cfg.WriteTimeout))
			m.writeMu.Unlock()
			if err != nil {
				m.logger.Debug("ping failed", zap.Error(err))
				return
			}
		}
	}()
}
