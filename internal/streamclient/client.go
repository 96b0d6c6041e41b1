// Package streamclient keeps a console connected to the backend event
// stream and reconnects after unexpected drops.
package streamclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ent0n29/outreach/internal/protocol"
	"github.com/ent0n29/outreach/internal/reliability"
)

type State string

const (
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateClosing    State = "closing"
	StateClosed     State = "closed"
	StateError      State = "error"
)

const (
	DefaultEndpoint             = "ws://127.0.0.1:8000/ws"
	DefaultReconnectInterval    = 3 * time.Second
	DefaultMaxReconnectAttempts = 5

	writeTimeout = 10 * time.Second
)

var ErrNotOpen = reliability.New(reliability.KindNotOpen, "stream is not open")

type Options struct {
	Endpoint             string
	ReconnectInterval    time.Duration
	MaxReconnectAttempts int
	HandshakeTimeout     time.Duration
}

// Message is one inbound text frame. Data is nil when the frame is not JSON.
type Message struct {
	Raw        string
	Data       any
	Type       protocol.MessageType
	ReceivedAt time.Time
}

type Client struct {
	endpoint    string
	interval    time.Duration
	maxAttempts int
	handshake   time.Duration
	dialer      websocket.Dialer
	log         *zap.Logger

	mu             sync.Mutex
	state          State
	conn           *websocket.Conn
	gen            uint64
	manual         bool
	reconnectCount int
	lastErr        error
	timer          *time.Timer

	onMessage func(Message)
	onOpen    func()
	onClose   func(error)
	onError   func(error)

	writeMu sync.Mutex
}

func New(opts Options, log *zap.Logger) (*Client, error) {
	endpoint, err := normalizeEndpoint(opts.Endpoint)
	if err != nil {
		return nil, err
	}
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = DefaultReconnectInterval
	}
	if opts.MaxReconnectAttempts < 0 {
		opts.MaxReconnectAttempts = 0
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 4 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		endpoint:    endpoint,
		interval:    opts.ReconnectInterval,
		maxAttempts: opts.MaxReconnectAttempts,
		handshake:   opts.HandshakeTimeout,
		dialer: websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.HandshakeTimeout,
		},
		log:   log,
		state: StateClosed,
	}, nil
}

func normalizeEndpoint(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = DefaultEndpoint
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse stream endpoint: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(u.Scheme)) {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported stream endpoint scheme %q", u.Scheme)
	}
	return u.String(), nil
}

func (c *Client) Endpoint() string { return c.endpoint }

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) ReconnectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnectCount
}

func (c *Client) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// OnMessage registers the inbound frame handler. Frames are delivered one at
// a time in arrival order.
func (c *Client) OnMessage(fn func(Message)) {
	c.mu.Lock()
	c.onMessage = fn
	c.mu.Unlock()
}

func (c *Client) OnOpen(fn func()) {
	c.mu.Lock()
	c.onOpen = fn
	c.mu.Unlock()
}

// OnClose is called with nil after Disconnect and with the cause otherwise.
func (c *Client) OnClose(fn func(error)) {
	c.mu.Lock()
	c.onClose = fn
	c.mu.Unlock()
}

func (c *Client) OnError(fn func(error)) {
	c.mu.Lock()
	c.onError = fn
	c.mu.Unlock()
}

// Connect starts dialing in the background. It is a no-op while already
// connecting or open.
func (c *Client) Connect() {
	c.mu.Lock()
	if c.state == StateOpen || c.state == StateConnecting {
		c.mu.Unlock()
		return
	}
	c.manual = false
	c.stopTimerLocked()
	gen := c.beginConnectingLocked()
	c.mu.Unlock()

	go c.dial(gen)
}

// Reconnect clears the attempt counter and connects again.
func (c *Client) Reconnect() {
	c.mu.Lock()
	c.reconnectCount = 0
	c.mu.Unlock()
	c.Connect()
}

// Disconnect closes the stream without scheduling a reconnect. In-flight
// sends finish before the socket is closed.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.manual = true
	c.stopTimerLocked()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.gen++
	gen := c.gen
	conn := c.conn
	c.conn = nil
	c.state = StateClosing
	c.mu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		_ = conn.Close()
		c.writeMu.Unlock()
	}

	c.mu.Lock()
	if c.gen == gen {
		c.state = StateClosed
	}
	onClose := c.onClose
	c.mu.Unlock()
	if onClose != nil {
		onClose(nil)
	}
}

// Send writes v as a JSON text frame. It fails with ErrNotOpen unless the
// stream is open; nothing is queued.
func (c *Client) Send(v any) error {
	c.mu.Lock()
	conn := c.conn
	open := c.state == StateOpen
	c.mu.Unlock()
	if !open || conn == nil {
		return ErrNotOpen
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return reliability.Wrap(reliability.KindBadRequest, "encode stream message", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.mu.Lock()
	current := c.conn == conn && c.state == StateOpen
	c.mu.Unlock()
	if !current {
		return ErrNotOpen
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return reliability.Wrap(reliability.KindTransient, "stream write", err)
	}
	return nil
}

// Ping sends the liveness probe.
func (c *Client) Ping(message string) error {
	return c.Send(protocol.NewPing(message, time.Now()))
}

func (c *Client) beginConnectingLocked() uint64 {
	c.gen++
	c.state = StateConnecting
	return c.gen
}

func (c *Client) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Client) dial(gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), c.handshake)
	conn, resp, err := c.dialer.DialContext(ctx, c.endpoint, nil)
	cancel()
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("stream dial failed (%s): %w", resp.Status, err)
		} else {
			err = fmt.Errorf("stream dial failed: %w", err)
		}
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		c.lastErr = err
		c.state = StateError
		onError := c.onError
		c.mu.Unlock()
		c.log.Warn("stream connect failed", zap.String("endpoint", c.endpoint), zap.Error(err))
		if onError != nil {
			onError(err)
		}
		c.closed(gen, err)
		return
	}
	c.conn = conn
	c.state = StateOpen
	c.reconnectCount = 0
	c.lastErr = nil
	onOpen := c.onOpen
	c.mu.Unlock()

	c.log.Info("stream connected", zap.String("endpoint", c.endpoint))
	if onOpen != nil {
		onOpen()
	}
	go c.readLoop(gen, conn)
}

func (c *Client) readLoop(gen uint64, conn *websocket.Conn) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			stale := gen != c.gen
			if !stale {
				c.lastErr = err
			}
			onError := c.onError
			c.mu.Unlock()
			if stale {
				return
			}
			_ = conn.Close()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && onError != nil {
				onError(err)
			}
			c.closed(gen, err)
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		c.mu.Lock()
		handler := c.onMessage
		c.mu.Unlock()
		if handler != nil {
			handler(decode(data, time.Now()))
		}
	}
}

// closed records an unexpected close and schedules the next attempt while
// attempts remain.
func (c *Client) closed(gen uint64, cause error) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = StateClosed
	if !c.manual && c.reconnectCount < c.maxAttempts {
		c.timer = time.AfterFunc(c.interval, func() { c.attemptReconnect(gen) })
	} else if !c.manual {
		c.log.Warn("stream reconnect attempts exhausted",
			zap.String("endpoint", c.endpoint),
			zap.Int("attempts", c.reconnectCount))
	}
	onClose := c.onClose
	c.mu.Unlock()

	if onClose != nil {
		onClose(cause)
	}
}

func (c *Client) attemptReconnect(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.manual || c.state != StateClosed {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.reconnectCount++
	attempt := c.reconnectCount
	next := c.beginConnectingLocked()
	c.mu.Unlock()

	c.log.Info("stream reconnecting", zap.String("endpoint", c.endpoint), zap.Int("attempt", attempt))
	c.dial(next)
}

func decode(data []byte, now time.Time) Message {
	msg := Message{Raw: string(data), ReceivedAt: now}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return msg
	}
	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return msg
	}
	msg.Data = v
	if obj, ok := v.(map[string]any); ok {
		if t, ok := obj["type"].(string); ok {
			msg.Type = protocol.MessageType(t)
		}
	}
	return msg
}

// IsNotOpen reports whether err came from sending on a stream that was not open.
func IsNotOpen(err error) bool {
	return errors.Is(err, ErrNotOpen)
}
