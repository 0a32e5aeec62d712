package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"tradeslip/internal/observability"
)

const (
	methodSubscribeNewHeads = "chain_subscribeNewHeads"
	notificationNewHead     = "chain_newHead"

	headBuffer = 64
)

var errNotConnected = errors.New("websocket not connected")

// WSClientConfig configures WebSocket client behavior.
type WSClientConfig struct {
	// ReconnectDelay is the first wait after a dropped connection; it doubles per failed dial.
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	DialTimeout       time.Duration
	// PingInterval paces ping frames. A pong or any message extends the read deadline.
	PingInterval     time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	SubscribeTimeout time.Duration
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		ReconnectDelay:    time.Second,
		MaxReconnectDelay: 30 * time.Second,
		DialTimeout:       10 * time.Second,
		PingInterval:      20 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		SubscribeTimeout:  30 * time.Second,
	}
}

// WSClient delivers chain heads from one node subscription to any number of local
// channels. When the connection drops it redials with backoff and subscribes again,
// so channels outlive individual connections.
type WSClient struct {
	endpoint string
	cfg      WSClientConfig
	logger   *slog.Logger
	dialer   websocket.Dialer
	nextID   atomic.Uint64

	writeMu sync.Mutex // serializes data frames

	mu      sync.Mutex
	conn    *websocket.Conn
	session uint64
	subID   string
	sinks   []chan Head
	waiting map[uint64]chan *rpcMessage
	closed  bool

	done chan struct{}
	wg   sync.WaitGroup
}

var _ HeadSubscriber = (*WSClient)(nil)

// NewWSClient dials endpoint and keeps the connection alive until Close.
// The first dial must succeed; later ones are retried.
func NewWSClient(ctx context.Context, endpoint string, config *WSClientConfig) (*WSClient, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &WSClient{
		endpoint: endpoint,
		cfg:      cfg,
		logger:   logger.With("component", "ws", "endpoint", endpoint),
		dialer:   websocket.Dialer{HandshakeTimeout: cfg.DialTimeout},
		waiting:  make(map[uint64]chan *rpcMessage),
		done:     make(chan struct{}),
	}

	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	session, _, _ := c.install(conn)

	c.wg.Add(1)
	go c.run(conn, session, false)
	return c, nil
}

func (c *WSClient) dial(ctx context.Context) (*websocket.Conn, error) {
	if c.cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.DialTimeout)
		defer cancel()
	}
	conn, _, err := c.dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return conn, nil
}

// SubscribeNewHeads returns a channel receiving every head announced from now on.
// Delivery blocks on a full channel rather than dropping heads. While the client is
// between connections the channel is returned at once and fed after the redial.
func (c *WSClient) SubscribeNewHeads(ctx context.Context) (<-chan Head, error) {
	ch := make(chan Head, headBuffer)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.sinks = append(c.sinks, ch)
	session := c.session
	pending := c.conn != nil && c.subID == ""
	c.mu.Unlock()

	if !pending {
		return ch, nil
	}
	if err := c.subscribeSession(ctx, session); err != nil {
		c.mu.Lock()
		replaced := c.session != session && !c.closed
		c.mu.Unlock()
		if replaced {
			return ch, nil
		}
		c.removeSink(ch)
		return nil, err
	}
	return ch, nil
}

// Close stops the connection loop and closes every head channel.
func (c *WSClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		deadline := time.Now().Add(c.cfg.WriteTimeout)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		conn.Close()
	}
	c.wg.Wait()

	c.mu.Lock()
	for _, ch := range c.sinks {
		close(ch)
	}
	c.sinks = nil
	c.mu.Unlock()
	return nil
}

// install makes conn the current session. It reports whether heads must be
// resubscribed, and fails once the client is closed.
func (c *WSClient) install(conn *websocket.Conn) (session uint64, resubscribe, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, false, false
	}
	c.conn = conn
	c.subID = ""
	c.session++
	return c.session, len(c.sinks) > 0, true
}

// run serves one connection at a time until Close.
func (c *WSClient) run(conn *websocket.Conn, session uint64, resubscribe bool) {
	defer c.wg.Done()

	delays := newBackoff(c.cfg.ReconnectDelay, c.cfg.MaxReconnectDelay)
	for {
		err := c.serve(conn, session, resubscribe)
		if c.isClosed() {
			return
		}
		observability.RecordWSReconnect()
		c.logger.Warn("websocket connection lost", "error", err)

		if conn = c.redial(delays); conn == nil {
			return
		}
		var ok bool
		if session, resubscribe, ok = c.install(conn); !ok {
			conn.Close()
			return
		}
	}
}

// redial returns a fresh connection, or nil once the client is closed.
func (c *WSClient) redial(delays *backoff) *websocket.Conn {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		if err := sleep(ctx, delays.Next()); err != nil {
			return nil
		}
		conn, err := c.dial(ctx)
		if err == nil {
			delays.Reset()
			return conn
		}
		if ctx.Err() != nil {
			return nil
		}
		c.logger.Warn("websocket redial failed", "error", err)
	}
}

// serve reads from the session's connection until it fails.
func (c *WSClient) serve(conn *websocket.Conn, session uint64, resubscribe bool) error {
	stop := make(chan struct{})
	defer func() {
		close(stop)
		c.endSession(conn)
	}()

	extend := func() error { return conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout)) }
	conn.SetPongHandler(func(string) error { return extend() })
	go c.keepalive(conn, stop)

	if resubscribe {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.SubscribeTimeout)
			defer cancel()
			if err := c.subscribeSession(ctx, session); err != nil {
				c.logger.Warn("resubscribe new heads failed", "error", err)
				conn.Close()
			}
		}()
	}

	for {
		_ = extend()
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.dispatch(data)
	}
}

// endSession forgets conn and fails the requests waiting on it.
func (c *WSClient) endSession(conn *websocket.Conn) {
	conn.Close()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == conn {
		c.conn = nil
		c.subID = ""
	}
	for id, ch := range c.waiting {
		close(ch)
		delete(c.waiting, id)
	}
}

func (c *WSClient) keepalive(conn *websocket.Conn, stop <-chan struct{}) {
	if c.cfg.PingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			// A failed ping surfaces as a read error.
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout)); err != nil {
				return
			}
		}
	}
}

// subscribeSession subscribes on the given session and records the subscription ID
// unless the session has been replaced in the meantime.
func (c *WSClient) subscribeSession(ctx context.Context, session uint64) error {
	var subID string
	if err := c.request(ctx, methodSubscribeNewHeads, &subID); err != nil {
		return fmt.Errorf("subscribe new heads: %w", err)
	}
	if subID == "" {
		return errors.New("subscribe new heads: empty subscription id")
	}

	c.mu.Lock()
	if c.session == session {
		c.subID = subID
	}
	c.mu.Unlock()
	return nil
}

// request sends a call on the current connection and waits for its reply.
func (c *WSClient) request(ctx context.Context, method string, result interface{}, params ...interface{}) error {
	id := c.nextID.Add(1)
	reply := make(chan *rpcMessage, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return errNotConnected
	}
	c.waiting[id] = reply
	c.mu.Unlock()

	forget := func() {
		c.mu.Lock()
		delete(c.waiting, id)
		c.mu.Unlock()
	}

	c.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	err := conn.WriteJSON(newRequest(id, method, params...))
	c.writeMu.Unlock()
	if err != nil {
		forget()
		return fmt.Errorf("write %s: %w", method, err)
	}

	timer := time.NewTimer(c.cfg.SubscribeTimeout)
	defer timer.Stop()

	select {
	case msg, ok := <-reply:
		if !ok {
			if c.isClosed() {
				return ErrClosed
			}
			return errNotConnected
		}
		return msg.decodeResult(result)
	case <-timer.C:
		forget()
		return fmt.Errorf("%s: no reply after %s", method, c.cfg.SubscribeTimeout)
	case <-ctx.Done():
		forget()
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}
}

// dispatch routes a reply to its waiting request and a head to the sinks.
func (c *WSClient) dispatch(data []byte) {
	var msg rpcMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Debug("ignoring malformed message", "error", err)
		return
	}

	if msg.Method == "" {
		c.mu.Lock()
		reply, ok := c.waiting[msg.ID]
		delete(c.waiting, msg.ID)
		c.mu.Unlock()
		if ok {
			reply <- &msg
		}
		return
	}
	if msg.Method != notificationNewHead {
		return
	}

	var note headNotification
	if err := json.Unmarshal(msg.Params, &note); err != nil {
		c.logger.Warn("bad head notification", "error", err)
		return
	}
	number, err := parseBlockNumber(note.Result.Number)
	if err != nil {
		c.logger.Warn("bad head number", "number", note.Result.Number, "error", err)
		return
	}

	c.mu.Lock()
	if note.Subscription != c.subID {
		c.mu.Unlock()
		return
	}
	sinks := append([]chan Head(nil), c.sinks...)
	c.mu.Unlock()

	observability.RecordNewHead()
	head := Head{Number: number, Hash: note.Result.Hash}
	for _, ch := range sinks {
		select {
		case ch <- head:
		case <-c.done:
			return
		}
	}
}

func (c *WSClient) removeSink(ch chan Head) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, s := range c.sinks {
		if s == ch {
			c.sinks = append(c.sinks[:i], c.sinks[i+1:]...)
			return
		}
	}
}

func (c *WSClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// parseBlockNumber accepts hex ("0x1a") or decimal block numbers.
func parseBlockNumber(s string) (uint64, error) {
	if hex, ok := strings.CutPrefix(s, "0x"); ok {
		return strconv.ParseUint(hex, 16, 64)
	}
	return strconv.ParseUint(s, 10, 64)
}
