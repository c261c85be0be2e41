package wshub

/*
hub.go serves a local market-data feed over WebSocket. Clients connect, send
{"action":"subscribe","symbols":[...]} and receive {"candle":{...}} frames for
the symbols they asked for. It stands in for the real feed during development.
*/
import (
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"github.com/supermancell/candle-relay/internal/logger"
	"github.com/supermancell/candle-relay/internal/model"
)

// Actions accepted from clients
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
)

var codec = sonic.ConfigStd

// Request is a client control message
type Request struct {
	Action  string   `json:"action"`
	Symbols []string `json:"symbols"`
}

type candleFrame struct {
	Candle model.Candle `json:"candle"`
}

// Client represents a WebSocket client connection
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	subscribed map[string]bool
	mu         sync.RWMutex
}

// Hub manages WebSocket client connections and broadcasts
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	stop       chan struct{}
	mu         sync.RWMutex
	logger     logger.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(log logger.Logger) *Hub {
	return &Hub{
		logger:     log.With("component", "wshub"),
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stop:       make(chan struct{}),
	}
}

// Run starts the hub's main loop until Stop is called
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Infof("feed client connected (total: %d)", n)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Infof("feed client disconnected (total: %d)", n)

		case <-h.stop:
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Stop disconnects every client and ends Run
func (h *Hub) Stop() {
	close(h.stop)
}

// Symbols returns the union of symbols subscribed by connected clients
func (h *Hub) Symbols() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[string]bool)
	var symbols []string
	for client := range h.clients {
		client.mu.RLock()
		for s := range client.subscribed {
			if !seen[s] {
				seen[s] = true
				symbols = append(symbols, s)
			}
		}
		client.mu.RUnlock()
	}
	return symbols
}

// BroadcastCandle sends the candle to every client subscribed to its symbol
func (h *Hub) BroadcastCandle(candle model.Candle) {
	data, err := codec.Marshal(candleFrame{Candle: candle})
	if err != nil {
		h.logger.Errorf("%s: can't marshal candle frame", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if !client.isSubscribed(candle.Symbol) {
			continue
		}
		select {
		case client.send <- data:
		default:
			// Skip if send buffer is full
		}
	}
}

func (c *Client) isSubscribed(symbol string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subscribed[symbol]
}

func (c *Client) apply(req Request) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, s := range req.Symbols {
		switch req.Action {
		case ActionSubscribe:
			c.subscribed[s] = true
		case ActionUnsubscribe:
			delete(c.subscribed, s)
		}
	}
	c.hub.logger.Infof("feed client %s %v", req.Action, req.Symbols)
}

// readPump reads control messages from the client
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.stop:
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warnf("%s: feed client read error", err)
			}
			break
		}
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		var req Request
		if err := codec.Unmarshal(message, &req); err != nil {
			c.hub.logger.Warnf("%s: can't parse client message", err)
			continue
		}
		c.apply(req)
	}
}

// writePump writes queued frames and keeps the connection alive with pings
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs handles WebSocket upgrade and client management
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // local development feed
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorf("%s: websocket upgrade failed", err)
		return
	}

	client := &Client{
		hub:        h,
		conn:       conn,
		send:       make(chan []byte, 256),
		subscribed: make(map[string]bool),
	}

	select {
	case h.register <- client:
	case <-h.stop:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
