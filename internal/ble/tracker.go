package ble

import (
	"fmt"
	"log/slog"
	"sync"
)

// Tracker owns the single tracked central connection.
// Link-layer events mutate it from the event loop; Current and Connected
// may be called from any goroutine.
type Tracker struct {
	log *slog.Logger

	mu        sync.RWMutex
	conn      Conn
	connected bool
	onChange  func(connected bool)
	onRelease []func()
}

// NewTracker creates an empty tracker. A nil logger uses slog.Default().
func NewTracker(logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{log: logger}
}

// SetCallback registers the connection-state callback.
func (t *Tracker) SetCallback(cb func(connected bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onChange = cb
}

// onReleased registers a hook run every time the tracked connection is released.
func (t *Tracker) onReleased(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onRelease = append(t.onRelease, fn)
}

// OnConnect handles a connect event. A non-zero status leaves the state
// untouched and does not invoke the callback. The first connection wins:
// while one is tracked, a new conn is not adopted.
func (t *Tracker) OnConnect(conn Conn, status uint8) error {
	if status != 0 {
		t.log.Warn("[BLE] failed to connect", "addr", addrOf(conn), "status", fmt.Sprintf("0x%02x", status))
		return fmt.Errorf("%w: %s: status 0x%02x", ErrConnectFailed, addrOf(conn), status)
	}
	if conn == nil {
		return fmt.Errorf("%w: connect event without connection", ErrInvalidArgument)
	}

	t.mu.Lock()
	adopted := t.conn == nil
	if adopted {
		t.conn = conn
	}
	t.connected = true
	cb := t.onChange
	t.mu.Unlock()

	if adopted {
		t.log.Info("[BLE] connected", "addr", conn.Addr())
	} else {
		// TODO: revisit once multi-link controllers are supported; the
		// second central stays connected but is never addressable here.
		t.log.Warn("[BLE] connection already tracked, ignoring new central", "addr", conn.Addr())
	}

	if cb != nil {
		cb(true)
	}
	return nil
}

// OnDisconnect releases the tracked connection unconditionally, clears the
// connected flag, runs the release hooks and reports false to the callback.
func (t *Tracker) OnDisconnect(conn Conn, reason uint8) {
	t.mu.Lock()
	prev := t.conn
	t.conn = nil
	t.connected = false
	hooks := t.onRelease
	cb := t.onChange
	t.mu.Unlock()

	t.log.Info("[BLE] disconnected", "addr", addrOf(conn), "reason", fmt.Sprintf("0x%02x", reason))
	if prev != nil && conn != nil && prev != conn {
		t.log.Warn("[BLE] disconnect for untracked central, released tracked one", "tracked", prev.Addr())
	}

	for _, fn := range hooks {
		fn()
	}
	if cb != nil {
		cb(false)
	}
}

// Current returns the tracked connection, if any.
func (t *Tracker) Current() (Conn, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.conn, t.conn != nil
}

// Connected reports whether a central is connected.
func (t *Tracker) Connected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected
}
