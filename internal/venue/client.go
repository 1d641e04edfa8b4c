package venue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	ErrNotReady      = errors.New("venue: not ready")
	ErrNotConnected  = errors.New("venue: not connected")
	ErrSendQueueFull = errors.New("venue: send queue full")
)

type State int

const (
	Disconnected State = iota
	Connecting
	Authenticating
	Ready
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Authenticating:
		return "authenticating"
	case Ready:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Handler receives decoded events in arrival order, from a single goroutine
// per connection.
type Handler func(Event)

type Options struct {
	URL          string
	Token        string
	Dialer       *websocket.Dialer
	WriteTimeout time.Duration
	PingInterval time.Duration
	SendBuffer   int
}

type Client struct {
	url          string
	token        string
	dialer       *websocket.Dialer
	writeTimeout time.Duration
	pingInterval time.Duration
	sendBuffer   int
	handler      Handler

	mu     sync.Mutex
	state  State
	gen    uint64
	conn   *websocket.Conn
	sendCh chan []byte
	cancel context.CancelFunc
}

func New(opts Options, handler Handler) *Client {
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	return &Client{
		url:          opts.URL,
		token:        opts.Token,
		dialer:       opts.Dialer,
		writeTimeout: opts.WriteTimeout,
		pingInterval: opts.PingInterval,
		sendBuffer:   opts.SendBuffer,
		handler:      handler,
	}
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect starts a new connection in the background. It is a no-op unless the
// client is Disconnected.
func (c *Client) Connect(ctx context.Context) {
	c.mu.Lock()
	if c.state != Disconnected {
		slog.Info("venue connect skipped", "state", c.state)
		c.mu.Unlock()
		return
	}
	c.gen++
	gen := c.gen
	connCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.state = Connecting
	c.mu.Unlock()

	go c.run(connCtx, gen)
}

// Disconnect closes the transport immediately. Frames still in flight on the
// old connection are discarded.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Disconnected {
		return
	}
	c.gen++
	c.closeLocked()
	slog.Info("venue disconnected", "reason", "requested")
}

func (c *Client) Send(frame Frame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", frame.Name(), err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if frame.Gated() && c.state != Ready {
		return fmt.Errorf("send %s in state %s: %w", frame.Name(), c.state, ErrNotReady)
	}
	return c.enqueueLocked(frame.Name(), payload)
}

func (c *Client) enqueueLocked(name string, payload []byte) error {
	if c.sendCh == nil {
		return fmt.Errorf("send %s: %w", name, ErrNotConnected)
	}
	select {
	case c.sendCh <- payload:
		slog.Debug("venue frame queued", "frame", name)
		return nil
	default:
		return fmt.Errorf("send %s: %w", name, ErrSendQueueFull)
	}
}

func (c *Client) run(ctx context.Context, gen uint64) {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("venue dial failed", "url", c.url, "error", err)
		}
		c.reset(gen)
		return
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	sendCh := make(chan []byte, c.sendBuffer)
	c.conn = conn
	c.sendCh = sendCh
	c.state = Authenticating
	c.mu.Unlock()
	slog.Info("venue connected", "url", c.url)

	go c.writePump(ctx, conn, sendCh)

	if err := c.sendInternal(gen, Authorize{Token: c.token}); err != nil {
		slog.Error("venue authorize send failed", "error", err)
	}

	c.readLoop(ctx, gen, conn)
}

func (c *Client) readLoop(ctx context.Context, gen uint64, conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				slog.Warn("venue connection lost", "error", err)
			}
			c.reset(gen)
			return
		}

		event, ok := Decode(raw)
		if !ok {
			continue
		}
		if !c.admit(gen, event) {
			continue
		}
		if c.handler != nil {
			c.handler(event)
		}
	}
}

// admit applies the connection state machine to one event and reports
// whether it should reach the handler.
func (c *Client) admit(gen uint64, event Event) bool {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return false
	}
	switch event.(type) {
	case Authorized:
		if c.state != Authenticating {
			c.mu.Unlock()
			slog.Debug("venue duplicate authorize ignored", "state", c.state)
			return false
		}
		c.state = Ready
		err := c.enqueueFrameLocked(SubscribeBalance{})
		c.mu.Unlock()
		slog.Info("venue ready")
		if err != nil {
			slog.Error("venue balance subscribe failed", "error", err)
		}
		return true
	default:
		ready := c.state == Ready
		state := c.state
		c.mu.Unlock()
		if !ready {
			slog.Debug("venue frame before ready ignored", "type", event.Type(), "state", state)
		}
		return ready
	}
}

func (c *Client) sendInternal(gen uint64, frame Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return ErrNotConnected
	}
	return c.enqueueFrameLocked(frame)
}

func (c *Client) enqueueFrameLocked(frame Frame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", frame.Name(), err)
	}
	return c.enqueueLocked(frame.Name(), payload)
}

func (c *Client) writePump(ctx context.Context, conn *websocket.Conn, sendCh <-chan []byte) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-sendCh:
			_ = conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				slog.Error("venue write failed", "error", err)
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				slog.Warn("venue ping failed", "error", err)
				_ = conn.Close()
				return
			}
		}
	}
}

func (c *Client) reset(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return
	}
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.sendCh = nil
	c.state = Disconnected
}
