package whatsapp

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"whatsapp-api-gateway/types"
)

// ConnState is the session lifecycle state.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateAwaitingScan
	StateConnected
	StateLoggedOut
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateAwaitingScan:
		return "awaiting_scan"
	case StateConnected:
		return "connected"
	case StateLoggedOut:
		return "logged_out"
	}
	return "unknown"
}

// Status is the read-consistent view returned to callers.
type Status struct {
	State       ConnState
	Challenge   string
	SessionPath string
}

const maxReconnectAttempts = 10

// ConnectionManager owns the session lifecycle state machine. The Run loop
// is the only writer of state; Status readers take the lock per read so no
// attempt ever sees a torn state/challenge pair.
type ConnectionManager struct {
	transport Transport
	sink      EventSink
	log       zerolog.Logger

	mu        sync.RWMutex
	state     ConnState
	challenge string

	reconnecting atomic.Bool
	reconnectWG  sync.WaitGroup
}

func NewConnectionManager(t Transport, sink EventSink, log zerolog.Logger) *ConnectionManager {
	return &ConnectionManager{
		transport: t,
		sink:      sink,
		log:       log.With().Str("component", "connection").Logger(),
		state:     StateDisconnected,
	}
}

// Run consumes transport events until ctx is cancelled or the event channel
// closes.
func (m *ConnectionManager) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-m.transport.Events():
			if !ok {
				return
			}
			m.handle(ctx, evt)
		}
	}
}

func (m *ConnectionManager) handle(ctx context.Context, evt Event) {
	switch e := evt.(type) {
	case ChallengeEvent:
		m.setState(StateAwaitingScan, e.Code)
		m.log.Info().Msg("pairing challenge received, awaiting scan")

	case OpenEvent:
		m.setState(StateConnected, "")
		m.log.Info().Msg("session connected")
		m.sink.ConnectionStatus(true, "")

	case CloseEvent:
		if e.LoggedOut {
			m.setState(StateLoggedOut, "")
			m.log.Warn().Str("cause", e.Cause).Msg("session logged out, not reconnecting")
			return
		}
		m.setState(StateDisconnected, "")
		m.log.Warn().Str("cause", e.Cause).Msg("session closed, reconnecting")
		m.startReconnect(ctx)

	case InboundEvent:
		m.sink.MessageReceived(e.Message)
	}
}

// startReconnect runs the bounded reconnect on its own goroutine so the
// event loop keeps draining transport events while backoff sleeps elapse.
// At most one reconnect runs at a time; a Close arriving mid-reconnect
// folds into the one already in flight.
func (m *ConnectionManager) startReconnect(ctx context.Context) {
	if !m.reconnecting.CompareAndSwap(false, true) {
		return
	}
	m.reconnectWG.Add(1)
	go func() {
		defer m.reconnectWG.Done()
		defer m.reconnecting.Store(false)
		m.reconnect(ctx)
	}()
}

// reconnect re-initializes the transport with bounded exponential backoff.
// The loop stops early once the session leaves Disconnected (a scan or a
// successful dial raced it). On exhaustion the session stays Disconnected
// until the next transport event or an operator restart.
func (m *ConnectionManager) reconnect(ctx context.Context) {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxReconnectAttempts), ctx)

	err := backoff.Retry(func() error {
		if m.State() != StateDisconnected {
			return nil
		}
		return m.transport.Connect(ctx)
	}, policy)
	if err != nil {
		m.log.Error().Err(err).Msg("reconnect attempts exhausted")
		m.sink.ErrorOccurred("connection.reconnect.failed", err.Error(), map[string]any{
			"maxAttempts": maxReconnectAttempts,
		})
	}
}

func (m *ConnectionManager) setState(s ConnState, challenge string) {
	m.mu.Lock()
	m.state = s
	m.challenge = challenge
	m.mu.Unlock()
}

// State returns the current lifecycle state. Consulted by the dispatcher at
// the start of every attempt.
func (m *ConnectionManager) State() ConnState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *ConnectionManager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Status{
		State:       m.state,
		Challenge:   m.challenge,
		SessionPath: m.transport.SessionPath(),
	}
}

// Logout terminates the session and purges persisted credentials. Returns
// types.ErrNoSession when the session is already logged out.
func (m *ConnectionManager) Logout(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateLoggedOut {
		m.mu.Unlock()
		return types.ErrNoSession
	}
	m.mu.Unlock()

	if err := m.transport.Logout(ctx); err != nil {
		return fmt.Errorf("transport logout: %w", err)
	}
	m.setState(StateLoggedOut, "")
	m.log.Info().Msg("logged out, credentials purged")
	return nil
}
