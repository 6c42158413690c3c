//go:build linux

package ble

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	goble "github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	"github.com/go-ble/ble/linux/hci"
	"github.com/go-ble/ble/linux/hci/cmd"
	"github.com/go-ble/ble/linux/hci/evt"
)

// HCIOptions configures the HCI user-channel stack.
type HCIOptions struct {
	DeviceID            int // hciN
	AdvertisingInterval time.Duration
	Logger              *slog.Logger
}

var errStackNotEnabled = errors.New("ble: stack not enabled")

// HCIStack runs the Neuton service directly on a Linux HCI user channel via
// go-ble. It reports connection events from the controller, CCC writes as
// subscription changes, and passes raw HCI commands through for the bridge.
type HCIStack struct {
	opts HCIOptions
	log  *slog.Logger

	dev  *linux.Device
	sink EventSink

	mu       sync.Mutex
	peers    map[uint16]string // connection handle -> peer address
	notifier goble.Notifier
}

// NewHCIStack creates a stack for opts.DeviceID. Nothing touches the
// controller until Enable.
func NewHCIStack(opts HCIOptions) *HCIStack {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &HCIStack{
		opts:  opts,
		log:   opts.Logger,
		peers: make(map[uint16]string),
	}
}

// Compile-time checks.
var (
	_ Stack      = (*HCIStack)(nil)
	_ Controller = (*HCIStack)(nil)
)

func (s *HCIStack) Enable(sink EventSink) error {
	s.sink = sink

	opts := []goble.Option{
		goble.OptDeviceID(s.opts.DeviceID),
		goble.OptConnectHandler(s.onConnect),
		goble.OptDisconnectHandler(s.onDisconnect),
	}
	if s.opts.AdvertisingInterval > 0 {
		opts = append(opts, goble.OptAdvParams(advParams(s.opts.AdvertisingInterval)))
	}
	dev, err := linux.NewDevice(opts...)
	if err != nil {
		return fmt.Errorf("ble: open hci%d: %w", s.opts.DeviceID, err)
	}
	s.dev = dev

	svc := goble.NewService(goble.MustParse(ServiceUUID))

	out := svc.NewCharacteristic(goble.MustParse(OutCharUUID))
	out.HandleNotify(goble.NotifyHandlerFunc(s.serveNotify))

	in := svc.NewCharacteristic(goble.MustParse(InCharUUID))
	in.HandleWrite(goble.WriteHandlerFunc(func(req goble.Request, rsp goble.ResponseWriter) {
		sink(Event{
			Type:   EventWriteReceived,
			Conn:   s.connFor(req.Conn()),
			Data:   req.Data(),
			Offset: req.Offset(),
		})
	}))
	in.Property &^= goble.CharWrite

	if err := dev.AddService(svc); err != nil {
		_ = dev.Stop()
		return fmt.Errorf("ble: add service: %w", err)
	}
	return nil
}

func (s *HCIStack) onConnect(e evt.LEConnectionComplete) {
	conn := hciConn{handle: e.ConnectionHandle(), addr: formatHCIAddr(e.PeerAddress())}
	if e.Status() == 0 {
		s.mu.Lock()
		s.peers[conn.handle] = conn.addr
		s.mu.Unlock()
	}
	s.sink(Event{Type: EventConnected, Conn: conn, Status: e.Status()})
}

func (s *HCIStack) onDisconnect(e evt.DisconnectionComplete) {
	handle := e.ConnectionHandle()
	s.mu.Lock()
	addr := s.peers[handle]
	delete(s.peers, handle)
	s.mu.Unlock()
	s.sink(Event{Type: EventDisconnected, Conn: hciConn{handle: handle, addr: addr}, Reason: e.Reason()})
}

// serveNotify runs for as long as the central keeps notifications enabled.
func (s *HCIStack) serveNotify(req goble.Request, n goble.Notifier) {
	s.mu.Lock()
	s.notifier = n
	s.mu.Unlock()
	s.sink(Event{Type: EventSubscriptionChanged, Conn: s.connFor(req.Conn()), Enabled: true})

	<-n.Context().Done()

	s.mu.Lock()
	if s.notifier == n {
		s.notifier = nil
	}
	s.mu.Unlock()
	s.sink(Event{Type: EventSubscriptionChanged, Conn: s.connFor(req.Conn()), Enabled: false})
}

// connFor maps a go-ble connection back to the controller handle recorded
// at connect time.
func (s *HCIStack) connFor(c goble.Conn) Conn {
	if c == nil {
		return nil
	}
	addr := c.RemoteAddr().String()
	s.mu.Lock()
	defer s.mu.Unlock()
	for handle, a := range s.peers {
		if strings.EqualFold(a, addr) {
			return hciConn{handle: handle, addr: a}
		}
	}
	return nil
}

func (s *HCIStack) StartAdvertising(cfg AdvertisementConfig) error {
	if s.dev == nil {
		return errStackNotEnabled
	}
	if cfg.Interval > 0 && cfg.Interval != s.opts.AdvertisingInterval {
		s.log.Debug("[BLE] advertising interval is fixed when the device is opened", "interval", s.opts.AdvertisingInterval)
	}
	return s.dev.HCI.AdvertiseNameAndServices(cfg.LocalName, goble.UUID16(cfg.ServiceUUID16))
}

// advParams builds connectable undirected advertising parameters for the
// given interval. Units are 0.625 ms.
func advParams(d time.Duration) cmd.LESetAdvertisingParameters {
	units := uint16(d / (625 * time.Microsecond))
	return cmd.LESetAdvertisingParameters{
		AdvertisingIntervalMin:  units,
		AdvertisingIntervalMax:  units,
		AdvertisingType:         0x00, // ADV_IND
		OwnAddressType:          0x00,
		DirectAddressType:       0x00,
		AdvertisingChannelMap:   0x07,
		AdvertisingFilterPolicy: 0x00,
	}
}

func (s *HCIStack) Notify(data []byte) error {
	s.mu.Lock()
	n := s.notifier
	s.mu.Unlock()
	if n == nil {
		return ErrNotSubscribed
	}
	_, err := n.Write(data)
	return err
}

// SendCommand passes a raw command to the controller. A non-zero status is
// returned as a one-byte response so the caller can decode it.
func (s *HCIStack) SendCommand(opcode uint16, params []byte) ([]byte, error) {
	if s.dev == nil {
		return nil, errStackNotEnabled
	}
	var rp rawReturn
	err := s.dev.HCI.Send(rawCommand{opcode: opcode, params: params}, &rp)
	var status hci.ErrCommand
	if errors.As(err, &status) {
		return []byte{byte(status)}, nil
	}
	if err != nil {
		return nil, err
	}
	return rp.b, nil
}

// Close stops the device.
func (s *HCIStack) Close() error {
	if s.dev == nil {
		return nil
	}
	return s.dev.Stop()
}

// rawCommand satisfies hci.Command for an arbitrary opcode.
type rawCommand struct {
	opcode uint16
	params []byte
}

func (c rawCommand) OpCode() int { return int(c.opcode) }
func (c rawCommand) Len() int    { return len(c.params) }

func (c rawCommand) Marshal(b []byte) error {
	copy(b, c.params)
	return nil
}

// rawReturn satisfies hci.CommandRP and keeps a copy of the return parameters.
type rawReturn struct {
	b []byte
}

func (r *rawReturn) Unmarshal(b []byte) error {
	r.b = append(r.b[:0], b...)
	return nil
}

type hciConn struct {
	handle uint16
	addr   string
}

func (c hciConn) Handle() (uint16, error) { return c.handle, nil }
func (c hciConn) Addr() string            { return c.addr }

// formatHCIAddr renders a little-endian BD_ADDR as AA:BB:CC:DD:EE:FF.
func formatHCIAddr(a [6]byte) string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", a[5], a[4], a[3], a[2], a[1], a[0])
}
