package ble

import "fmt"

// EventType identifies a link-layer event.
type EventType int

const (
	// EventConnected reports a central connection attempt; Status is non-zero on failure.
	EventConnected EventType = iota
	// EventDisconnected reports the end of a connection with its Reason code.
	EventDisconnected
	// EventSubscriptionChanged reports a CCC write on the outbound characteristic.
	EventSubscriptionChanged
	// EventWriteReceived carries a write to the inbound characteristic.
	EventWriteReceived
)

func (t EventType) String() string {
	switch t {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventSubscriptionChanged:
		return "subscription_changed"
	case EventWriteReceived:
		return "write_received"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Event is produced by a Stack and consumed by the peripheral's event loop.
type Event struct {
	Type EventType
	Conn Conn

	Status  uint8 // EventConnected
	Reason  uint8 // EventDisconnected
	Enabled bool  // EventSubscriptionChanged

	Data   []byte // EventWriteReceived
	Offset int    // EventWriteReceived, ignored
}

// EventSink receives link-layer events. It may block while the event queue is full.
type EventSink func(Event)

func addrOf(conn Conn) string {
	if conn == nil {
		return "<none>"
	}
	return conn.Addr()
}
