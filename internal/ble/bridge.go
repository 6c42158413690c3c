package ble

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
)

// OpReadRSSI is the HCI Read RSSI opcode (OGF 0x05, OCF 0x0005).
const OpReadRSSI uint16 = 0x05<<10 | 0x0005

// RSSI bounds reported by controllers, in dBm. 127 means "not available".
const (
	MinRSSI int8 = -127
	MaxRSSI int8 = 20
)

// maxCommandParams is the largest HCI command parameter block.
const maxCommandParams = 255

// BridgeOptions configures the command bridge.
type BridgeOptions struct {
	Buffers int // command buffer pool size (default 1)
	Logger  *slog.Logger
}

// Bridge issues HCI commands one at a time. Requests are handed to a single
// worker goroutine; callers block until their response or a submission error.
type Bridge struct {
	ctrl Controller
	log  *slog.Logger

	bufs chan []byte
	reqs chan *pendingCommand

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// pendingCommand is the one in-flight request.
type pendingCommand struct {
	opcode uint16
	params []byte
	reply  chan commandResult
}

type commandResult struct {
	rsp []byte
	err error
}

// NewBridge starts the command worker. Call Close to stop it.
func NewBridge(ctrl Controller, opts BridgeOptions) *Bridge {
	if opts.Buffers <= 0 {
		opts.Buffers = 1
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	b := &Bridge{
		ctrl: ctrl,
		log:  opts.Logger,
		bufs: make(chan []byte, opts.Buffers),
		reqs: make(chan *pendingCommand),
		done: make(chan struct{}),
	}
	for i := 0; i < opts.Buffers; i++ {
		b.bufs <- make([]byte, maxCommandParams)
	}
	b.wg.Add(1)
	go b.run()
	return b
}

func (b *Bridge) run() {
	defer b.wg.Done()
	for {
		select {
		case <-b.done:
			return
		case cmd := <-b.reqs:
			rsp, err := b.ctrl.SendCommand(cmd.opcode, cmd.params)
			cmd.reply <- commandResult{rsp: rsp, err: err}
		}
	}
}

// Exchange submits one command and blocks until the controller answers.
// The parameters are copied into a pooled command buffer, which is returned
// to the pool on every exit path.
func (b *Bridge) Exchange(opcode uint16, params []byte) ([]byte, error) {
	if len(params) > maxCommandParams {
		return nil, fmt.Errorf("%w: %d parameter bytes", ErrInvalidArgument, len(params))
	}

	var buf []byte
	select {
	case buf = <-b.bufs:
	case <-b.done:
		return nil, fmt.Errorf("%w: bridge closed", ErrCommandFailed)
	}
	defer func() { b.bufs <- buf }()

	n := copy(buf, params)
	cmd := &pendingCommand{
		opcode: opcode,
		params: buf[:n],
		reply:  make(chan commandResult, 1),
	}

	select {
	case b.reqs <- cmd:
	case <-b.done:
		return nil, fmt.Errorf("%w: bridge closed", ErrCommandFailed)
	}

	// An accepted command is always answered, so buf is not released while
	// the controller may still be reading it.
	res := <-cmd.reply
	if res.err != nil {
		b.log.Warn("[BLE] HCI command failed", "opcode", fmt.Sprintf("0x%04x", opcode), "error", res.err)
		return nil, fmt.Errorf("%w: opcode 0x%04x: %w", ErrCommandFailed, opcode, res.err)
	}
	return res.rsp, nil
}

// ReadRSSI reads the signal strength of conn in dBm.
func (b *Bridge) ReadRSSI(conn Conn) (int8, error) {
	if conn == nil {
		return 0, ErrNoConnection
	}
	handle, err := conn.Handle()
	if err != nil {
		b.log.Warn("[BLE] failed to get HCI handle", "addr", conn.Addr(), "error", err)
		return 0, fmt.Errorf("%w: %w", ErrNoConnection, err)
	}

	var params [2]byte
	binary.LittleEndian.PutUint16(params[:], handle)
	rsp, err := b.Exchange(OpReadRSSI, params[:])
	if err != nil {
		return 0, err
	}
	return decodeReadRSSI(rsp, handle)
}

// decodeReadRSSI parses the Read RSSI return parameters:
// status (1), connection handle (2, little endian), RSSI (1, signed).
func decodeReadRSSI(rsp []byte, handle uint16) (int8, error) {
	if len(rsp) < 1 {
		return 0, fmt.Errorf("%w: empty Read RSSI response", ErrCommandFailed)
	}
	if rsp[0] != 0 {
		return 0, &StatusError{Opcode: OpReadRSSI, Status: rsp[0]}
	}
	if len(rsp) < 4 {
		return 0, fmt.Errorf("%w: Read RSSI response too short (%d bytes)", ErrCommandFailed, len(rsp))
	}
	if got := binary.LittleEndian.Uint16(rsp[1:3]) & 0x0fff; got != handle&0x0fff {
		return 0, fmt.Errorf("%w: Read RSSI response for handle 0x%03x, want 0x%03x", ErrCommandFailed, got, handle&0x0fff)
	}

	rssi := int8(rsp[3])
	if rssi < MinRSSI || rssi > MaxRSSI {
		return 0, fmt.Errorf("%w: RSSI %d out of range", ErrUnavailable, rssi)
	}
	return rssi, nil
}

// Close stops the worker. Commands already accepted are answered first.
func (b *Bridge) Close() {
	b.closeOnce.Do(func() { close(b.done) })
	b.wg.Wait()
}
