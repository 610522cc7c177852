package connection

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/tradeline/internal/metrics"
)

// DialFunc opens a connected Client.
type DialFunc func(ctx context.Context) (Client, error)

// NewDialer returns a DialFunc that connects real WebSocket clients.
func NewDialer(cfg ClientConfig, logger *slog.Logger) DialFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context) (Client, error) {
		c := NewClient(cfg, logger)
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
		return c, nil
	}
}

// Manager owns the single event channel and its lifecycle.
//
// Every physical connection gets a generation number. Stop, loss of auth and
// Start all bump the generation, so dial results and read errors from an
// older connection are discarded when they arrive.
type Manager struct {
	cfg    ManagerConfig
	dial   DialFunc
	logger *slog.Logger

	out chan RawMessage

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	state    State
	authed   bool
	attempt  int
	gen      uint64
	client   Client
	timer    *time.Timer
	shutdown bool
}

// NewManager creates a Manager in the Idle state.
func NewManager(cfg ManagerConfig, dial DialFunc, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultManagerConfig()
	if cfg.ReconnectBaseDelay <= 0 {
		cfg.ReconnectBaseDelay = def.ReconnectBaseDelay
	}
	if cfg.ReconnectMaxDelay < cfg.ReconnectBaseDelay {
		cfg.ReconnectMaxDelay = cfg.ReconnectBaseDelay
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.MessageBufferSize <= 0 {
		cfg.MessageBufferSize = def.MessageBufferSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:    cfg,
		dial:   dial,
		logger: logger.With("component", "connection"),
		out:    make(chan RawMessage, cfg.MessageBufferSize),
		ctx:    ctx,
		cancel: cancel,
	}
	metrics.SetChannelState(PhaseIdle.String(), phaseNames)
	return m
}

// SetAuthenticated records whether a user is signed in. Losing auth closes
// the channel immediately, whatever its state.
func (m *Manager) SetAuthenticated(ok bool) {
	m.mu.Lock()
	m.authed = ok
	if ok {
		m.mu.Unlock()
		return
	}
	old := m.closeLocked()
	m.mu.Unlock()

	if old != nil {
		old.Close()
	}
}

// Start opens the channel. It is a no-op while connecting or open and
// returns ErrNotAuthenticated when no user is signed in. From any other
// state the reconnect budget is reset.
func (m *Manager) Start() error {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return ErrAlreadyClosed
	}
	if !m.authed {
		m.mu.Unlock()
		return ErrNotAuthenticated
	}
	switch m.state.Phase {
	case PhaseOpen, PhaseConnecting:
		m.mu.Unlock()
		return nil
	}

	m.stopTimerLocked()
	old := m.client
	m.client = nil
	m.attempt = 0
	m.connectLocked()
	m.mu.Unlock()

	if old != nil {
		old.Close()
	}
	return nil
}

// Stop closes the channel. A dial still in flight is discarded when it
// completes. Stop is a no-op while idle or closed.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.state.Active() {
		m.mu.Unlock()
		return
	}
	old := m.closeLocked()
	m.mu.Unlock()

	if old != nil {
		old.Close()
	}
}

// State returns the current channel state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsConnected reports whether the channel is open.
func (m *Manager) IsConnected() bool {
	return m.State().Phase == PhaseOpen
}

// Messages returns the frames read from the channel. It is closed by Shutdown.
func (m *Manager) Messages() <-chan RawMessage {
	return m.out
}

// Shutdown stops the channel, waits for internal goroutines and closes the
// Messages channel. The Manager cannot be restarted afterwards.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return
	}
	m.shutdown = true
	var old Client
	if m.state.Active() {
		old = m.closeLocked()
	}
	m.mu.Unlock()

	if old != nil {
		old.Close()
	}
	m.cancel()
	m.wg.Wait()
	close(m.out)
	m.logger.Info("connection manager stopped")
}

// connectLocked starts a dial under a fresh generation. Caller holds mu.
func (m *Manager) connectLocked() {
	m.gen++
	gen := m.gen
	m.setStateLocked(State{Phase: PhaseConnecting})

	m.wg.Add(1)
	go m.connect(gen)
}

// closeLocked moves to Closed and detaches the current client, which the
// caller must close after releasing mu.
func (m *Manager) closeLocked() Client {
	m.stopTimerLocked()
	m.gen++
	old := m.client
	m.client = nil
	m.attempt = 0
	if m.state.Phase != PhaseClosed {
		m.setStateLocked(State{Phase: PhaseClosed})
	}
	return old
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) setStateLocked(s State) {
	prev := m.state
	m.state = s
	metrics.SetChannelState(s.Phase.String(), phaseNames)
	m.logger.Debug("channel state", "from", prev.String(), "to", s.String())
}

// failLocked schedules the next reconnect or gives up. Caller holds mu.
func (m *Manager) failLocked(err error) {
	if m.attempt >= m.cfg.MaxAttempts {
		m.logger.Warn("giving up on event channel",
			"attempts", m.attempt,
			"error", err,
		)
		m.client = nil
		m.attempt = 0
		m.setStateLocked(State{Phase: PhaseClosed})
		return
	}

	m.attempt++
	delay := Backoff(m.attempt, m.cfg.ReconnectBaseDelay, m.cfg.ReconnectMaxDelay)
	m.setStateLocked(State{Phase: PhaseReconnecting, Attempt: m.attempt})
	metrics.ChannelReconnects.Inc()

	m.logger.Warn("event channel failed, reconnecting",
		"attempt", m.attempt,
		"delay", delay,
		"error", err,
	)

	gen := m.gen
	m.timer = time.AfterFunc(delay, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if gen != m.gen || m.state.Phase != PhaseReconnecting {
			return
		}
		m.timer = nil
		// Keep the attempt count; only a successful open resets it.
		m.gen++
		next := m.gen
		m.state = State{Phase: PhaseConnecting, Attempt: m.attempt}
		metrics.SetChannelState(PhaseConnecting.String(), phaseNames)
		m.wg.Add(1)
		go m.connect(next)
	})
}

// connect dials and, on success, installs the client if gen is still current.
func (m *Manager) connect(gen uint64) {
	defer m.wg.Done()

	c, err := m.dial(m.ctx)

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		if c != nil {
			c.Close()
		}
		m.logger.Debug("discarding stale dial result", "generation", gen)
		return
	}
	if err != nil {
		m.failLocked(err)
		m.mu.Unlock()
		return
	}

	m.client = c
	m.attempt = 0
	m.setStateLocked(State{Phase: PhaseOpen})
	m.wg.Add(1)
	m.mu.Unlock()

	m.logger.Info("event channel open")
	go m.pump(gen, c)
}

// pump forwards frames from c until it fails or is closed.
func (m *Manager) pump(gen uint64, c Client) {
	defer m.wg.Done()

	for {
		select {
		case <-c.Done():
			return

		case msg := <-c.Messages():
			metrics.ChannelMessages.Inc()
			raw := RawMessage{
				Data:       msg.Data,
				ReceivedAt: msg.ReceivedAt,
				Generation: gen,
			}
			select {
			case m.out <- raw:
			default:
				metrics.ChannelDropped.Inc()
				m.logger.Warn("message buffer full, dropping")
			}

		case err := <-c.Errors():
			m.mu.Lock()
			if gen != m.gen {
				m.mu.Unlock()
				return
			}
			m.client = nil
			m.failLocked(err)
			m.mu.Unlock()

			c.Close()
			return
		}
	}
}
