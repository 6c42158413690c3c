package ble

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"tinygo.org/x/bluetooth"
)

// TinyGoStack runs the Neuton service on tinygo-org/bluetooth.
//
// The BlueZ and CoreBluetooth backends own the CCC descriptor themselves and
// drop notifications for centrals that have not subscribed, so the stack
// reports the subscription as enabled as soon as a central connects. They
// expose no HCI command channel, so SendCommand always fails.
type TinyGoStack struct {
	adapter *bluetooth.Adapter
	log     *slog.Logger

	mu  sync.Mutex
	out bluetooth.Characteristic
	adv *bluetooth.Advertisement
}

// NewTinyGoStack creates a stack on the default adapter. A nil logger uses slog.Default().
func NewTinyGoStack(logger *slog.Logger) *TinyGoStack {
	if logger == nil {
		logger = slog.Default()
	}
	return &TinyGoStack{adapter: bluetooth.DefaultAdapter, log: logger}
}

// Compile-time checks.
var (
	_ Stack      = (*TinyGoStack)(nil)
	_ Controller = (*TinyGoStack)(nil)
)

func (s *TinyGoStack) Enable(sink EventSink) error {
	if err := s.adapter.Enable(); err != nil {
		return fmt.Errorf("ble: enable adapter: %w", err)
	}

	s.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		conn := tinyGoConn{addr: device.Address.String()}
		s.log.Debug("[BLE] link event", "addr", conn.addr, "connected", connected)
		if !connected {
			sink(Event{Type: EventDisconnected, Conn: conn})
			return
		}
		sink(Event{Type: EventConnected, Conn: conn})
		sink(Event{Type: EventSubscriptionChanged, Conn: conn, Enabled: true})
	})

	svc, err := parseTinyGoUUID(ServiceUUID)
	if err != nil {
		return err
	}
	outUUID, err := parseTinyGoUUID(OutCharUUID)
	if err != nil {
		return err
	}
	inUUID, err := parseTinyGoUUID(InCharUUID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	err = s.adapter.AddService(&bluetooth.Service{
		UUID: svc,
		Characteristics: []bluetooth.CharacteristicConfig{
			{
				Handle: &s.out,
				UUID:   outUUID,
				Flags:  bluetooth.CharacteristicNotifyPermission,
			},
			{
				UUID:  inUUID,
				Flags: bluetooth.CharacteristicWriteWithoutResponsePermission,
				WriteEvent: func(client bluetooth.Connection, offset int, value []byte) {
					sink(Event{Type: EventWriteReceived, Data: value, Offset: offset})
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("ble: add service: %w", err)
	}
	return nil
}

func (s *TinyGoStack) StartAdvertising(cfg AdvertisementConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.adv == nil {
		s.adv = s.adapter.DefaultAdvertisement()
	}
	opts := bluetooth.AdvertisementOptions{
		LocalName:    cfg.LocalName,
		ServiceUUIDs: []bluetooth.UUID{bluetooth.New16BitUUID(cfg.ServiceUUID16)},
	}
	if cfg.Interval > 0 {
		opts.Interval = bluetooth.NewDuration(cfg.Interval)
	}
	if err := s.adv.Configure(opts); err != nil {
		return fmt.Errorf("ble: configure advertisement: %w", err)
	}
	return s.adv.Start()
}

func (s *TinyGoStack) Notify(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.out.Write(data)
	return err
}

// SendCommand is not available through tinygo-org/bluetooth.
func (s *TinyGoStack) SendCommand(opcode uint16, params []byte) ([]byte, error) {
	return nil, fmt.Errorf("%w: HCI command 0x%04x", ErrUnsupported, opcode)
}

// Close stops advertising.
func (s *TinyGoStack) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.adv == nil {
		return nil
	}
	return s.adv.Stop()
}

// tinyGoConn is comparable by address, so connect and disconnect events for
// the same central match in the tracker.
type tinyGoConn struct {
	addr string
}

func (c tinyGoConn) Handle() (uint16, error) {
	return 0, fmt.Errorf("%w: connection handle", ErrUnsupported)
}

func (c tinyGoConn) Addr() string { return c.addr }

func parseTinyGoUUID(s string) (bluetooth.UUID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return bluetooth.UUID{}, fmt.Errorf("ble: parse UUID %q: %w", s, err)
	}
	return bluetooth.NewUUID(u), nil
}
