package ble

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Options configures a Peripheral.
type Options struct {
	DeviceName          string
	AdvertisingInterval time.Duration
	AdvertiseOnInit     bool // start advertising as soon as the stack is up
	EventQueue          int  // link-layer event channel depth
	CommandBuffers      int  // HCI command buffer pool size
	Logger              *slog.Logger
}

// DefaultOptions returns the firmware defaults.
func DefaultOptions() Options {
	return Options{
		DeviceName:          "Neuton NRF RemoteControl",
		AdvertisingInterval: 60 * time.Millisecond,
		AdvertiseOnInit:     true,
		EventQueue:          32,
		CommandBuffers:      1,
	}
}

// Peripheral is the application-facing endpoint. Each instance owns its own
// connection state; there is no package-level state.
type Peripheral struct {
	stack Stack
	opts  Options
	log   *slog.Logger

	tracker *Tracker
	gate    *Gate
	bridge  *Bridge

	events    chan Event
	done      chan struct{}
	started   atomic.Bool
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewPeripheral wires the tracker, gate and command bridge over a stack and
// its controller.
func NewPeripheral(stack Stack, ctrl Controller, opts Options) *Peripheral {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.EventQueue <= 0 {
		opts.EventQueue = 32
	}
	tracker := NewTracker(opts.Logger)
	return &Peripheral{
		stack:   stack,
		opts:    opts,
		log:     opts.Logger,
		tracker: tracker,
		gate:    NewGate(tracker, stack, opts.Logger),
		bridge:  NewBridge(ctrl, BridgeOptions{Buffers: opts.CommandBuffers, Logger: opts.Logger}),
		events:  make(chan Event, opts.EventQueue),
		done:    make(chan struct{}),
	}
}

// Init registers the application callbacks, starts the event loop and
// brings the stack up. A bring-up failure is returned as ErrInitFailure and
// is not retried.
func (p *Peripheral) Init(onConn func(connected bool), onData func(data []byte)) error {
	if !p.started.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: already initialized", ErrInitFailure)
	}

	p.tracker.SetCallback(onConn)
	p.gate.SetDataCallback(onData)

	p.wg.Add(1)
	go p.loop()

	if err := p.stack.Enable(p.deliver); err != nil {
		p.log.Error("[BLE] bluetooth init failed", "error", err)
		return fmt.Errorf("%w: %w", ErrInitFailure, err)
	}
	p.log.Info("[BLE] bluetooth initialized")

	if p.opts.AdvertiseOnInit {
		if err := p.StartAdvertising(); err != nil {
			p.log.Error("[BLE] advertising failed to start", "error", err)
		} else {
			p.log.Info("[BLE] advertising started", "name", p.opts.DeviceName)
		}
	}
	return nil
}

// deliver is the EventSink handed to the stack. Write payloads are copied
// because stacks may reuse their receive buffers.
func (p *Peripheral) deliver(ev Event) {
	if ev.Type == EventWriteReceived && ev.Data != nil {
		ev.Data = append([]byte(nil), ev.Data...)
	}
	select {
	case p.events <- ev:
	case <-p.done:
	}
}

func (p *Peripheral) loop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		case ev := <-p.events:
			p.handle(ev)
		}
	}
}

func (p *Peripheral) handle(ev Event) {
	switch ev.Type {
	case EventConnected:
		// Failures are logged by the tracker; the application is not told.
		_ = p.tracker.OnConnect(ev.Conn, ev.Status)
	case EventDisconnected:
		p.tracker.OnDisconnect(ev.Conn, ev.Reason)
	case EventSubscriptionChanged:
		p.gate.OnSubscriptionChanged(ev.Enabled)
	case EventWriteReceived:
		p.gate.OnWriteReceived(ev.Data, ev.Offset)
	default:
		p.log.Warn("[BLE] unknown link-layer event", "type", ev.Type.String())
	}
}

// Send notifies the subscribed central with data.
func (p *Peripheral) Send(data []byte) error {
	return p.gate.Notify(data)
}

// StartAdvertising starts connectable advertising. It fails with
// ErrAlreadyConnected while a central is connected.
func (p *Peripheral) StartAdvertising() error {
	if p.tracker.Connected() {
		p.log.Warn("[BLE] cannot start advertising while connected")
		return ErrAlreadyConnected
	}
	adv := AdvertisementConfig{
		LocalName:     p.opts.DeviceName,
		ServiceUUID16: AdvertisedUUID16,
		Interval:      p.opts.AdvertisingInterval,
	}
	if err := p.stack.StartAdvertising(adv); err != nil {
		return fmt.Errorf("ble: start advertising: %w", err)
	}
	return nil
}

// RSSI reads the link RSSI of the connected central in dBm. It blocks on the
// controller and must not be called from a connection or data callback.
func (p *Peripheral) RSSI() (int8, error) {
	conn, ok := p.tracker.Current()
	if !ok {
		p.log.Debug("[BLE] no current connection")
		return 0, ErrNoConnection
	}
	rssi, err := p.bridge.ReadRSSI(conn)
	if err != nil {
		p.log.Warn("[BLE] failed to read RSSI", "error", err)
		return 0, err
	}
	return rssi, nil
}

// Connected reports whether a central is connected.
func (p *Peripheral) Connected() bool {
	return p.tracker.Connected()
}

// Subscribed reports whether the central has enabled notifications.
func (p *Peripheral) Subscribed() bool {
	return p.gate.Subscribed()
}

// Close stops the event loop and the command bridge, then closes the stack
// if it implements io.Closer.
func (p *Peripheral) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		p.bridge.Close()
		p.wg.Wait()
		if c, ok := p.stack.(io.Closer); ok {
			err = c.Close()
		}
	})
	return err
}
