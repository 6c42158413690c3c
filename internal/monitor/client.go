package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chaz8081/neuton-ble/internal/ble"
	"github.com/chaz8081/neuton-ble/internal/ble/protocol"
)

// ErrClosed is returned by Connect after Close.
var ErrClosed = errors.New("monitor: client closed")

// PredictionHandler receives every decoded gesture prediction.
type PredictionHandler func(p protocol.Prediction)

// ClientOptions configures the monitor client.
type ClientOptions struct {
	QueueSize       int           // max queued payloads while disconnected
	ReconnectMax    int           // max reconnect backoff in seconds
	InterChunkDelay time.Duration // delay between write chunks
	MaxPayload      int           // bytes per write
	ConnectTimeout  time.Duration
	Logger          *slog.Logger
}

// DefaultClientOptions returns sensible defaults.
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		QueueSize:       64,
		ReconnectMax:    30,
		InterChunkDelay: 20 * time.Millisecond,
		MaxPayload:      protocol.DefaultMaxPayload,
		ConnectTimeout:  10 * time.Second,
	}
}

// Client manages the connection to a Neuton peripheral: it forwards
// predictions from the outbound characteristic and writes to the inbound one,
// reconnecting with backoff when the link drops.
type Client struct {
	adapter      Adapter
	deviceMAC    string
	onPrediction PredictionHandler
	log          *slog.Logger

	mu        sync.Mutex
	conn      Connection
	inChar    Characteristic
	connected bool
	queue     [][]byte

	reconnecting atomic.Bool
	done         chan struct{}
	closeOnce    sync.Once

	opts ClientOptions
}

// NewClient creates a client for the peripheral at deviceMAC. The handler
// may be nil.
func NewClient(adapter Adapter, deviceMAC string, handler PredictionHandler, opts ClientOptions) (*Client, error) {
	if deviceMAC == "" {
		return nil, errors.New("monitor: device address is required")
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.ReconnectMax <= 0 {
		opts.ReconnectMax = 30
	}
	if opts.InterChunkDelay < 0 {
		opts.InterChunkDelay = 0
	}
	if opts.MaxPayload <= 0 {
		opts.MaxPayload = protocol.DefaultMaxPayload
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		adapter:      adapter,
		deviceMAC:    deviceMAC,
		onPrediction: handler,
		log:          opts.Logger,
		done:         make(chan struct{}),
		opts:         opts,
	}, nil
}

// Send writes data to the peripheral's inbound characteristic. While
// disconnected the payload is queued for delivery on reconnect. Safe for
// concurrent use.
func (c *Client) Send(data []byte) error {
	if len(data) == 0 {
		return nil
	}

	c.mu.Lock()
	if !c.connected {
		c.enqueue(append([]byte(nil), data...))
		c.mu.Unlock()
		return nil
	}
	inChar := c.inChar
	c.mu.Unlock()

	return c.sendChunked(inChar, data)
}

// sendChunked splits data into frame-sized chunks and writes each.
func (c *Client) sendChunked(inChar Characteristic, data []byte) error {
	chunks := protocol.ChunkPayload(data, c.opts.MaxPayload)
	for i, chunk := range chunks {
		if err := inChar.Write(chunk); err != nil {
			return fmt.Errorf("monitor: write: %w", err)
		}
		if i < len(chunks)-1 && c.opts.InterChunkDelay > 0 {
			time.Sleep(c.opts.InterChunkDelay)
		}
	}
	return nil
}

// enqueue adds data to the send queue (caller must hold mu).
func (c *Client) enqueue(data []byte) {
	if len(c.queue) >= c.opts.QueueSize {
		c.log.Warn("[MON] queue full, dropping oldest payload")
		c.queue = c.queue[1:]
	}
	c.queue = append(c.queue, data)
}

// QueueLen returns the number of queued payloads.
func (c *Client) QueueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Connected reports whether the link is up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// handleNotification decodes one outbound notification.
func (c *Client) handleNotification(data []byte) {
	p, err := protocol.UnmarshalPrediction(data)
	if err != nil {
		c.log.Warn("[MON] dropping undecodable notification", "data", string(data), "error", err)
		return
	}
	c.log.Debug("[MON] prediction", "gesture", p.Gesture().String(), "probability", p.Probability)
	if c.onPrediction != nil {
		c.onPrediction(p)
	}
}

// setConnected discovers both characteristics and subscribes to
// predictions before marking the link up.
func (c *Client) setConnected(conn Connection) error {
	in, err := conn.DiscoverCharacteristic(ble.ServiceUUID, ble.InCharUUID)
	if err != nil {
		return fmt.Errorf("monitor: discover inbound characteristic: %w", err)
	}
	out, err := conn.DiscoverCharacteristic(ble.ServiceUUID, ble.OutCharUUID)
	if err != nil {
		return fmt.Errorf("monitor: discover outbound characteristic: %w", err)
	}
	if err := out.Subscribe(c.handleNotification); err != nil {
		return fmt.Errorf("monitor: subscribe to predictions: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
	c.inChar = in
	c.connected = true
	return nil
}

// setDisconnected marks the client as disconnected.
func (c *Client) setDisconnected() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.conn = nil
	c.inChar = nil
}

// flushQueue sends all queued payloads. Payloads that fail are logged and
// dropped.
func (c *Client) flushQueue() {
	c.mu.Lock()
	if !c.connected || len(c.queue) == 0 {
		c.mu.Unlock()
		return
	}
	queued := c.queue
	c.queue = nil
	inChar := c.inChar
	c.mu.Unlock()

	for _, data := range queued {
		if err := c.sendChunked(inChar, data); err != nil {
			c.log.Error("[MON] failed to flush queued payload", "error", err)
		}
	}
}

func (c *Client) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Connect enables the adapter and establishes the initial connection.
func (c *Client) Connect() error {
	if c.closed() {
		return ErrClosed
	}
	if err := c.adapter.Enable(); err != nil {
		return fmt.Errorf("monitor: enable adapter: %w", err)
	}
	if err := c.dial(); err != nil {
		return err
	}
	c.log.Info("[MON] connected", "mac", c.deviceMAC)
	c.flushQueue()
	return nil
}

// dial connects once and arms the disconnect handler.
func (c *Client) dial() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.ConnectTimeout)
	defer cancel()

	conn, err := c.adapter.Connect(ctx, c.deviceMAC)
	if err != nil {
		return fmt.Errorf("monitor: connect to %s: %w", c.deviceMAC, err)
	}
	if err := c.setConnected(conn); err != nil {
		_ = conn.Disconnect()
		return err
	}
	conn.OnDisconnect(c.handleDisconnect)
	return nil
}

// handleDisconnect starts at most one reconnect loop.
func (c *Client) handleDisconnect() {
	c.setDisconnected()
	if c.closed() {
		return
	}
	if !c.reconnecting.CompareAndSwap(false, true) {
		return
	}
	c.log.Warn("[MON] disconnected, reconnecting...", "mac", c.deviceMAC)
	go c.reconnectLoop()
}

// reconnectLoop retries with exponential backoff until connected or closed.
func (c *Client) reconnectLoop() {
	defer c.reconnecting.Store(false)

	for attempt := 0; ; attempt++ {
		// First attempt is immediate.
		if attempt > 0 {
			delay := backoffDelay(attempt-1, c.opts.ReconnectMax)
			c.log.Info("[MON] reconnect backoff", "attempt", attempt+1, "delay", delay)
			select {
			case <-c.done:
				return
			case <-time.After(delay):
			}
		}
		if c.closed() {
			return
		}

		if err := c.dial(); err != nil {
			c.log.Warn("[MON] reconnect failed", "error", err, "attempt", attempt+1)
			continue
		}
		c.log.Info("[MON] reconnected", "mac", c.deviceMAC)
		c.flushQueue()
		return
	}
}

// backoffDelay returns the reconnection delay for attempt n, capped at
// maxSeconds.
func backoffDelay(attempt int, maxSeconds int) time.Duration {
	max := time.Duration(maxSeconds) * time.Second
	if attempt >= 30 {
		return max
	}
	delay := time.Duration(1<<uint(attempt)) * time.Second
	if delay > max {
		return max
	}
	return delay
}

// Close stops any reconnect loop and disconnects.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })

	c.mu.Lock()
	conn := c.conn
	if len(c.queue) > 0 {
		c.log.Warn("[MON] closing with unsent payloads", "count", len(c.queue))
	}
	c.conn = nil
	c.inChar = nil
	c.connected = false
	c.mu.Unlock()

	if conn != nil {
		return conn.Disconnect()
	}
	return nil
}
