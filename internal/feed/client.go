package feed

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"golang.org/x/net/proxy"

	"github.com/supermancell/candle-relay/internal/common"
	"github.com/supermancell/candle-relay/internal/config"
	"github.com/supermancell/candle-relay/internal/logger"
)

// State is the connection state of the feed client.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Dialer opens WebSocket connections. *websocket.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// Client keeps a connection to the market-data feed alive and hands every
// inbound frame to its message handler.
type Client struct {
	url            string
	symbols        []string
	reconnectDelay time.Duration
	dialer         Dialer
	clock          clock.Clock
	msgHandler     common.MessageHandler
	onState        func(State)
	logger         logger.Logger

	mu    sync.Mutex
	conn  *websocket.Conn
	state atomic.Int32
}

type Option func(*Client)

// WithClock replaces the clock that drives the reconnect delay.
func WithClock(c clock.Clock) Option {
	return func(cl *Client) {
		cl.clock = c
	}
}

func WithDialer(d Dialer) Option {
	return func(cl *Client) {
		cl.dialer = d
	}
}

// WithStateHook registers fn to be called on every state change.
// fn runs on the Run goroutine and must not block.
func WithStateHook(fn func(State)) Option {
	return func(cl *Client) {
		cl.onState = fn
	}
}

// NewClient creates a feed client. Call Run to start it.
func NewClient(cfg config.FeedConfig, handler common.MessageHandler, log logger.Logger, opts ...Option) *Client {
	c := &Client{
		url:            cfg.URL,
		symbols:        append([]string(nil), cfg.Symbols...),
		reconnectDelay: cfg.ReconnectDelay,
		clock:          clock.New(),
		msgHandler:     handler,
		logger:         log.With("component", "feed"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dialer == nil {
		c.dialer = newDialer(cfg, c.logger)
	}
	return c
}

func newDialer(cfg config.FeedConfig, log logger.Logger) *websocket.Dialer {
	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: cfg.HandshakeTimeout,
	}

	// Configure SOCKS5 proxy if enabled
	if cfg.UseProxy && cfg.ProxyAddr != "" {
		log.Infof("using SOCKS5 proxy: %s", cfg.ProxyAddr)
		proxyAddr := cfg.ProxyAddr
		dialer.Proxy = nil
		dialer.NetDialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			proxyDialer, err := proxy.SOCKS5("tcp", proxyAddr, nil, proxy.Direct)
			if err != nil {
				return nil, fmt.Errorf("failed to create SOCKS5 proxy: %w", err)
			}
			if cd, ok := proxyDialer.(proxy.ContextDialer); ok {
				return cd.DialContext(ctx, network, addr)
			}
			return proxyDialer.Dial(network, addr)
		}
	}

	return dialer
}

// State returns the current connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Symbols returns the symbols requested on every connect.
func (c *Client) Symbols() []string {
	return append([]string(nil), c.symbols...)
}

func (c *Client) setState(s State) {
	if State(c.state.Swap(int32(s))) == s {
		return
	}
	c.logger.Debugf("feed state: %s", s)
	if c.onState != nil {
		c.onState(s)
	}
}

// Run connects, reads until the connection drops and reconnects after the
// fixed delay, forever. It returns only when ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	for {
		c.setState(StateConnecting)
		conn, err := c.connect(ctx)
		if err != nil {
			c.logger.Errorf("%s: can't connect to feed", err)
		} else {
			c.setState(StateConnected)
			c.readMessages(ctx, conn)
		}

		if ctx.Err() != nil {
			c.setState(StateDisconnected)
			return ctx.Err()
		}

		timer := c.clock.Timer(c.reconnectDelay)
		c.setState(StateDisconnected)
		c.logger.Infof("feed disconnected, reconnecting in %s", c.reconnectDelay)

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// connect dials the feed and sends the subscription request.
func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", c.url, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.logger.Infof("connected to feed %s", c.url)

	if err := c.subscribe(conn); err != nil {
		c.dropConn(conn)
		return nil, err
	}

	return conn, nil
}

func (c *Client) subscribe(conn *websocket.Conn) error {
	data, err := SubscribeFrame(c.symbols)
	if err != nil {
		return err
	}

	c.mu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	c.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to send subscribe message: %w", err)
	}

	c.logger.Infof("subscribed to symbols: %v", c.symbols)
	return nil
}

// readMessages reads frames until the connection fails or ctx is cancelled.
func (c *Client) readMessages(ctx context.Context, conn *websocket.Conn) {
	done := make(chan struct{})
	defer func() {
		close(done)
		c.dropConn(conn)
	}()

	go func() {
		select {
		case <-ctx.Done():
			c.closeConn(conn)
		case <-done:
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			switch {
			case ctx.Err() != nil:
				c.logger.Infof("feed connection closed on shutdown")
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				c.logger.Infof("feed closed the connection: %v", err)
			case errors.Is(err, net.ErrClosed):
				c.logger.Infof("feed connection closed locally")
			default:
				c.logger.Errorf("%s: can't read feed message", err)
			}
			return
		}

		if c.msgHandler != nil {
			if err := c.msgHandler(message); err != nil {
				c.logger.Warnf("%s: dropped feed message", err)
			}
		}
	}
}

// Disconnect closes the current connection. Run treats it like any other
// close and reconnects after the delay.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	return c.closeConn(conn)
}

// closeConn sends a normal closure frame and closes the socket, which
// unblocks the reader.
func (c *Client) closeConn(conn *websocket.Conn) error {
	err := conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		c.logger.Debugf("error sending close message: %v", err)
	}
	return conn.Close()
}

func (c *Client) dropConn(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	conn.Close()
}
