package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/scribeflow/timeline-gateway/internal/metrics"
	"github.com/scribeflow/timeline-gateway/internal/session"
)

// Manager owns the one live push channel feeding a session store. Opening
// a new session id fully closes any prior channel — blocking until its
// read loop has exited — before the store is reset, so an event from one
// session can never be attributed to another.
type Manager struct {
	baseURL string
	dialer  *websocket.Dialer
	store   *session.Store
	hub     *Hub
	router  *Router

	// OnClosed, when set, is invoked asynchronously with the final session
	// snapshot each time an open channel closes (explicitly, remotely, or
	// via a done signal). At most one invocation per open channel.
	OnClosed func(snap session.Snapshot, reason string)

	// openMu serializes whole Open/Close bodies so concurrent callers
	// cannot interleave between teardown and dial; mu guards the frame
	// path and is never held across the dial or the readDone wait.
	openMu sync.Mutex

	mu       sync.Mutex
	conn     *websocket.Conn
	epoch    int
	readDone chan struct{}
}

// NewManager creates a connection manager bound to one store and hub.
// baseURL is the orchestrator's websocket origin, e.g. ws://orchestrator:9000.
func NewManager(baseURL string, store *session.Store, hub *Hub) *Manager {
	return &Manager{
		baseURL: baseURL,
		dialer:  websocket.DefaultDialer,
		store:   store,
		hub:     hub,
		router:  NewRouter(store, hub),
	}
}

// Open establishes the push channel for a session id. Any existing channel
// is torn down first. An empty id closes and clears without dialing.
func (m *Manager) Open(ctx context.Context, sessionID string) error {
	m.openMu.Lock()
	defer m.openMu.Unlock()

	m.closeCurrent("session_switch")

	if sessionID == "" {
		m.store.Reset("")
		return nil
	}

	m.store.Reset(sessionID)
	m.store.SetConnState(session.StateConnecting)

	conn, resp, err := m.dialer.DialContext(ctx, channelURL(m.baseURL, sessionID), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		m.store.SetConnState(session.StateError)
		metrics.ChannelFailures.Inc()
		return fmt.Errorf("open channel for %s: %w", sessionID, err)
	}

	m.mu.Lock()
	m.conn = conn
	m.epoch++
	epoch := m.epoch
	m.readDone = make(chan struct{})
	done := m.readDone
	m.mu.Unlock()

	m.store.SetConnState(session.StateOpen)
	metrics.SessionsActive.Inc()
	metrics.SessionsTotal.Inc()
	m.notifyConn(session.StateOpen, "opened")
	slog.Info("channel opened", "session_id", sessionID)

	go m.readLoop(conn, epoch, done)
	return nil
}

// Close tears down the current channel, if any, and waits for its read
// loop to exit. Safe to call when no channel is open.
func (m *Manager) Close() {
	m.openMu.Lock()
	defer m.openMu.Unlock()
	m.closeCurrent("client_close")
}

// State reports the channel state of the bound store.
func (m *Manager) State() session.ConnState {
	return m.store.ConnState()
}

func (m *Manager) closeCurrent(reason string) {
	m.mu.Lock()
	m.teardownLocked(session.StateClosed, reason)
	done := m.readDone
	m.readDone = nil
	m.mu.Unlock()
	if done != nil {
		<-done
	}
}

// readLoop hands every inbound frame to the router in strict arrival
// order. The manager performs no interpretation of payload content.
func (m *Manager) readLoop(conn *websocket.Conn, epoch int, done chan struct{}) {
	defer close(done)
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			m.finish(epoch, err)
			return
		}
		m.deliver(epoch, frame)
	}
}

func (m *Manager) deliver(epoch int, frame []byte) {
	m.mu.Lock()
	stale := epoch != m.epoch
	m.mu.Unlock()
	if stale {
		metrics.FramesDropped.WithLabelValues("stale").Inc()
		return
	}

	if terminal := m.router.Route(frame); terminal {
		m.mu.Lock()
		if epoch == m.epoch {
			m.teardownLocked(session.StateClosed, "done")
		}
		m.mu.Unlock()
	}
}

// finish handles the read loop's exit. The epoch guard ensures the close
// notification fires exactly once per open channel: a loop whose channel
// was already torn down (switch, explicit close, done signal) sees a
// stale epoch and exits silently.
func (m *Manager) finish(epoch int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if epoch != m.epoch {
		return
	}
	state := session.StateClosed
	reason := "remote_close"
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		state = session.StateError
		reason = "transport_error"
		metrics.ChannelFailures.Inc()
		slog.Warn("channel dropped", "session_id", m.store.ID(), "error", err)
	}
	m.teardownLocked(state, reason)
}

// teardownLocked closes the live connection and emits the single close
// notification. Caller holds m.mu. No-op when no channel is open.
func (m *Manager) teardownLocked(state session.ConnState, reason string) {
	if m.conn == nil {
		return
	}
	m.conn.Close()
	m.conn = nil
	m.epoch++
	m.store.SetConnState(state)
	metrics.SessionsActive.Dec()
	m.notifyConn(state, reason)
	slog.Info("channel closed", "session_id", m.store.ID(), "state", state, "reason", reason)
	if m.OnClosed != nil {
		snap := m.store.Snapshot()
		go m.OnClosed(snap, reason)
	}
}

func (m *Manager) notifyConn(state session.ConnState, reason string) {
	note, err := json.Marshal(map[string]any{
		"type":       "connection",
		"session_id": m.store.ID(),
		"state":      state,
		"reason":     reason,
	})
	if err != nil {
		return
	}
	m.hub.Broadcast(note)
}

func channelURL(base, sessionID string) string {
	return strings.TrimRight(base, "/") + "/ws/tasks/" + url.PathEscape(sessionID)
}
