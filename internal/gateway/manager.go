// ABOUTME: Gateway connection manager: hello/identify handshake, heartbeats, reconnect.
// ABOUTME: Owns the connection handle and sequence counter for its lifetime.

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// State of the connection loop, for logging and introspection.
type State string

const (
	StateDisconnected  State = "disconnected"
	StateConnecting    State = "connecting"
	StateAwaitingHello State = "awaiting_hello"
	StateIdentified    State = "identified"
)

// ErrMissingHello indicates the first frame was not a hello. Fatal for the
// attempt; the loop reconnects.
var ErrMissingHello = errors.New("gateway: first frame was not hello")

// errReconnectRequested flags a server-directed reconnect internally.
var errReconnectRequested = errors.New("gateway: server requested reconnect")

// Handler receives each dispatch frame's event type and payload.
type Handler func(ctx context.Context, eventType string, data json.RawMessage)

// Config wires a Manager.
type Config struct {
	// Resolve returns the gateway URL. Called before every connection
	// attempt; typically backed by the remote client's /gateway/bot call.
	Resolve func(ctx context.Context) (string, error)
	// Dial establishes the connection. Defaults to DialWebsocket.
	Dial Dialer
	// Identify is the authentication payload re-sent on every (re)identify.
	Identify Identify
	// Handler receives dispatch events.
	Handler Handler

	BackoffBase         time.Duration // default 1s
	BackoffCap          time.Duration // default 60s
	InvalidSessionDelay time.Duration // default 3s
	Logger              *slog.Logger
}

// Manager runs the connection loop. Create with NewManager, start with Run.
type Manager struct {
	cfg    Config
	logger *slog.Logger

	state    atomic.Value // State
	seq      atomic.Int64 // last seen sequence; -1 means none this connection
	lastAck  atomic.Int64 // unix nanos of the last heartbeat ack
	attempts int          // consecutive failed connections, loop-owned

	// Injection points for tests.
	sleep func(ctx context.Context, d time.Duration) error
	rand  func() float64
}

// NewManager creates a gateway manager.
func NewManager(cfg Config) *Manager {
	if cfg.Dial == nil {
		cfg.Dial = DialWebsocket
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = time.Minute
	}
	if cfg.InvalidSessionDelay <= 0 {
		cfg.InvalidSessionDelay = 3 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default().With("component", "gateway")
	}
	m := &Manager{
		cfg:    cfg,
		logger: cfg.Logger,
		rand:   rand.Float64,
	}
	m.state.Store(StateDisconnected)
	m.sleep = func(ctx context.Context, d time.Duration) error {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		}
	}
	return m
}

// State reports the current connection state.
func (m *Manager) State() State {
	return m.state.Load().(State)
}

// Sequence reports the last seen dispatch sequence, or -1 if none yet on the
// current connection.
func (m *Manager) Sequence() int64 { return m.seq.Load() }

// Run drives the connect/reconnect loop until ctx is done. Errors inside one
// connection never escape; they feed the backoff policy.
func (m *Manager) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			m.state.Store(StateDisconnected)
			return err
		}

		immediate, err := m.connectOnce(ctx)
		m.state.Store(StateDisconnected)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if immediate {
			// Server-directed reconnect: no backoff penalty.
			m.logger.Info("reconnecting immediately at server request")
			continue
		}

		delay := m.backoff(m.attempts)
		m.attempts++
		m.logger.Warn("gateway connection ended, backing off",
			"err", err, "attempt", m.attempts, "delay", delay)
		if serr := m.sleep(ctx, delay); serr != nil {
			return serr
		}
	}
}

// connectOnce resolves, dials, and services one connection to completion.
// Returns immediate=true when the server asked for an instant reconnect.
func (m *Manager) connectOnce(ctx context.Context) (bool, error) {
	m.state.Store(StateConnecting)

	url, err := m.cfg.Resolve(ctx)
	if err != nil {
		return false, fmt.Errorf("resolving gateway endpoint: %w", err)
	}

	conn, err := m.cfg.Dial(ctx, url)
	if err != nil {
		return false, fmt.Errorf("dialing gateway: %w", err)
	}

	// Unblock the read loop when ctx is canceled.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-watchDone:
		}
	}()
	defer conn.Close()

	err = m.serve(ctx, conn)
	if errors.Is(err, errReconnectRequested) {
		return true, nil
	}
	return false, err
}

// serve runs the handshake and read loop for one established connection.
func (m *Manager) serve(ctx context.Context, conn Conn) error {
	m.state.Store(StateAwaitingHello)
	m.seq.Store(-1) // sequence resets on every new connection

	first, err := conn.ReadFrame()
	if err != nil {
		return fmt.Errorf("reading hello: %w", err)
	}
	if first.Op != OpHello {
		return fmt.Errorf("%w: got op %d", ErrMissingHello, first.Op)
	}
	var hello helloData
	if err := json.Unmarshal(first.D, &hello); err != nil || hello.HeartbeatIntervalMS <= 0 {
		return fmt.Errorf("%w: bad hello payload", ErrMissingHello)
	}
	interval := time.Duration(hello.HeartbeatIntervalMS) * time.Millisecond

	if err := m.sendIdentify(conn); err != nil {
		return fmt.Errorf("sending identify: %w", err)
	}
	m.state.Store(StateIdentified)
	m.attempts = 0 // a successful connection resets the backoff counter
	m.logger.Info("gateway connected", "heartbeat_interval", interval)

	// Heartbeat child: starts immediately, always canceled and awaited
	// before the connection is released.
	hbCtx, cancelHB := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbErr := make(chan error, 1)
	hbWG.Add(1)
	go func() {
		defer hbWG.Done()
		if err := m.heartbeatLoop(hbCtx, conn, interval); err != nil {
			select {
			case hbErr <- err:
			default:
			}
		}
	}()
	defer func() {
		cancelHB()
		hbWG.Wait()
	}()

	for {
		select {
		case err := <-hbErr:
			return fmt.Errorf("heartbeat failed: %w", err)
		default:
		}

		frame, err := conn.ReadFrame()
		if err != nil {
			return fmt.Errorf("reading frame: %w", err)
		}

		switch frame.Op {
		case OpDispatch:
			if frame.S != nil {
				m.seq.Store(*frame.S)
			}
			if m.cfg.Handler != nil {
				m.cfg.Handler(ctx, frame.T, frame.D)
			}

		case OpHeartbeat:
			// Server asked for an immediate heartbeat.
			if err := m.sendHeartbeat(conn); err != nil {
				return fmt.Errorf("answering heartbeat request: %w", err)
			}

		case OpHeartbeatACK:
			m.lastAck.Store(time.Now().UnixNano())

		case OpReconnect:
			return errReconnectRequested

		case OpInvalidSession:
			m.logger.Warn("invalid session, re-identifying", "delay", m.cfg.InvalidSessionDelay)
			if err := m.sleep(ctx, m.cfg.InvalidSessionDelay); err != nil {
				return err
			}
			if err := m.sendIdentify(conn); err != nil {
				return fmt.Errorf("re-identifying: %w", err)
			}

		default:
			m.logger.Debug("ignoring unknown opcode", "op", frame.Op)
		}
	}
}

// heartbeatLoop sends a heartbeat carrying the last seen sequence every
// interval until canceled.
func (m *Manager) heartbeatLoop(ctx context.Context, conn Conn, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := m.sendHeartbeat(conn); err != nil {
				return err
			}
		}
	}
}

func (m *Manager) sendHeartbeat(conn Conn) error {
	payload := json.RawMessage("null")
	if seq := m.seq.Load(); seq >= 0 {
		payload = json.RawMessage(strconv.FormatInt(seq, 10))
	}
	return conn.WriteFrame(Frame{Op: OpHeartbeat, D: payload})
}

func (m *Manager) sendIdentify(conn Conn) error {
	d, err := json.Marshal(m.cfg.Identify)
	if err != nil {
		return err
	}
	return conn.WriteFrame(Frame{Op: OpIdentify, D: d})
}

// backoff computes the reconnect delay for the nth consecutive failure:
// base * 2^n scaled by jitter in [0.8, 1.2], capped.
func (m *Manager) backoff(n int) time.Duration {
	d := time.Duration(float64(m.cfg.BackoffBase) * math.Pow(2, float64(n)))
	if d > m.cfg.BackoffCap {
		d = m.cfg.BackoffCap
	}
	jitter := 0.8 + 0.4*m.rand()
	return time.Duration(float64(d) * jitter)
}
