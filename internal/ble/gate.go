package ble

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Gate decides whether an outbound notification is permitted and sends it.
// It also forwards inbound writes to the application.
type Gate struct {
	tracker *Tracker
	stack   Stack
	log     *slog.Logger

	subscribed atomic.Bool

	mu     sync.RWMutex
	onData func(data []byte)
}

// NewGate creates a gate over tracker. The subscription is cleared every
// time the tracker releases its connection.
func NewGate(tracker *Tracker, stack Stack, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gate{tracker: tracker, stack: stack, log: logger}
	tracker.onReleased(func() { g.subscribed.Store(false) })
	return g
}

// SetDataCallback registers the callback for inbound writes.
func (g *Gate) SetDataCallback(cb func(data []byte)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onData = cb
}

// OnSubscriptionChanged records the CCC state written by the central.
func (g *Gate) OnSubscriptionChanged(enabled bool) {
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	g.log.Info("[BLE] notifications "+state, "char", OutCharUUID)
	g.subscribed.Store(enabled)
}

// Subscribed reports whether the central has enabled notifications.
func (g *Gate) Subscribed() bool {
	return g.subscribed.Load()
}

// Notify sends data as one notification frame. There is no outbound queue:
// flow control is left to the stack.
func (g *Gate) Notify(data []byte) error {
	if !g.tracker.Connected() {
		return ErrNotConnected
	}
	if !g.subscribed.Load() {
		return ErrNotSubscribed
	}
	if len(data) == 0 {
		g.log.Debug("[BLE] refusing empty notification")
		return fmt.Errorf("%w: empty payload", ErrInvalidArgument)
	}
	if err := g.stack.Notify(data); err != nil {
		return fmt.Errorf("ble: notify: %w", err)
	}
	return nil
}

// OnWriteReceived forwards an inbound write and reports it fully consumed.
// The offset is ignored: the inbound characteristic is write-without-response.
func (g *Gate) OnWriteReceived(data []byte, offset int) int {
	g.mu.RLock()
	cb := g.onData
	g.mu.RUnlock()

	if cb == nil {
		g.log.Debug("[BLE] data received but no callback registered", "len", len(data))
		return len(data)
	}
	cb(data)
	return len(data)
}
