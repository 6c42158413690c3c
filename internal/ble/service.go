// Package ble implements the Neuton GATT peripheral: it tracks the single
// connected central, gates notifications on the outbound characteristic by
// the client subscription, forwards inbound writes to the application and
// reads link RSSI through a synchronous HCI command exchange.
package ble

import "time"

// Neuton GATT identifiers. Existing centrals match on these, so they must not change.
const (
	ServiceUUID = "a5d4f351-9d11-419f-9f1b-3dcdf0a15f4d"
	OutCharUUID = "516a51c4-b1e1-47fa-8327-8acaeb3399eb" // notify, peripheral -> central
	InCharUUID  = "516a51c4-b1e1-47fa-8327-8acaeb3399ec" // write without response, central -> peripheral

	// AdvertisedUUID16 is the 16-bit service UUID carried in the advertising data.
	AdvertisedUUID16 uint16 = 0x180F
)

// Conn is a central connection as reported by the link layer.
// Implementations must be comparable: the tracker matches disconnect events
// against the tracked connection with ==.
type Conn interface {
	// Handle returns the controller connection handle addressed by HCI commands.
	Handle() (uint16, error)
	// Addr returns the peer address.
	Addr() string
}

// AdvertisementConfig describes the connectable advertisement.
type AdvertisementConfig struct {
	LocalName     string
	ServiceUUID16 uint16
	Interval      time.Duration
}

// Stack abstracts the link layer and GATT server below the peripheral.
type Stack interface {
	// Enable brings the stack up, registers the Neuton service and starts
	// delivering link-layer events to sink.
	Enable(sink EventSink) error
	// StartAdvertising starts connectable advertising.
	StartAdvertising(adv AdvertisementConfig) error
	// Notify sends a single notification frame on the outbound characteristic.
	Notify(data []byte) error
}

// Controller submits HCI commands below the GATT layer.
type Controller interface {
	// SendCommand submits one command and blocks until the controller
	// returns the matching Command Complete. It returns the command's return
	// parameters, starting with the status byte.
	SendCommand(opcode uint16, params []byte) ([]byte, error)
}
