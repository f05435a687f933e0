// Package websocket streams finished calculation runs to subscribed clients.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rzzdr/quant-pricing-engine/pkg/models"
	"github.com/rzzdr/quant-pricing-engine/pkg/utils/logger"
)

// Message types sent to clients
const (
	TypeRunFinished  = "run_finished"
	TypeSubscribed   = "subscription_confirmed"
	TypeUnsubscribed = "unsubscription_confirmed"
	TypePong         = "pong"
	TypeError        = "error"
)

// Hub maintains the set of active clients and fans finished runs out to
// the ones subscribed to them. Client bookkeeping happens only on the Run
// goroutine.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan outbound
	reply      chan outbound
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	connected  atomic.Int64
	log        *logger.Logger
}

type outbound struct {
	client *Client
	runID  string
	data   []byte
}

// Client is a middleman between the websocket connection and the hub
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	id   string

	mu   sync.RWMutex
	runs map[string]bool
}

// Message represents a WebSocket message
type Message struct {
	Type  string      `json:"type"`
	RunID string      `json:"run_id,omitempty"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
	ID    string      `json:"id,omitempty"`
}

// SubscriptionMessage selects runs by id; "*" selects every run
type SubscriptionMessage struct {
	Type string   `json:"type"`
	Runs []string `json:"runs"`
	ID   string   `json:"id,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096

	outboundQueueSize = 256

	subscribeAllRuns = "*"
)

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan outbound, outboundQueueSize),
		reply:      make(chan outbound, outboundQueueSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        logger.GetLogger("websocket.hub"),
	}
}

// Run serves the hub until ctx is cancelled, then disconnects every client
func (h *Hub) Run(ctx context.Context) {
	h.log.Info("Starting WebSocket hub")
	defer func() {
		close(h.done)
		for client := range h.clients {
			h.drop(client)
		}
		h.log.Info("WebSocket hub shut down")
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.clients[client] = true
			h.connected.Add(1)
			h.log.Infof("Client %s registered", client.id)

		case client := <-h.unregister:
			if h.clients[client] {
				h.drop(client)
				h.log.Infof("Client %s unregistered", client.id)
			}

		case msg := <-h.reply:
			if h.clients[msg.client] {
				h.deliver(msg.client, msg.data)
			}

		case msg := <-h.broadcast:
			for client := range h.clients {
				if client.wants(msg.runID) {
					h.deliver(client, msg.data)
				}
			}
		}
	}
}

// deliver drops clients that cannot keep up
func (h *Hub) deliver(client *Client, data []byte) {
	select {
	case client.send <- data:
	default:
		h.log.Warnf("Client %s is too slow, disconnecting", client.id)
		h.drop(client)
	}
}

func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	close(client.send)
	h.connected.Add(-1)
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	return int(h.connected.Load())
}

// BroadcastRun sends a finished run to its subscribers. It never blocks
// on a stopped hub.
func (h *Hub) BroadcastRun(event models.RunEvent) {
	data, err := json.Marshal(Message{Type: TypeRunFinished, RunID: event.Run.ID, Data: event})
	if err != nil {
		h.log.Errorf("Failed to marshal run %s: %v", event.Run.ID, err)
		return
	}
	select {
	case h.broadcast <- outbound{runID: event.Run.ID, data: data}:
	case <-h.done:
	}
}

// HandleWebSocket upgrades the request and registers the client
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Errorf("WebSocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, outboundQueueSize),
		id:   uuid.NewString(),
		runs: make(map[string]bool),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (c *Client) wants(runID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.runs[subscribeAllRuns] || c.runs[runID]
}

// readPump pumps messages from the websocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, messageData, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Errorf("WebSocket error: %v", err)
			}
			break
		}

		c.handleMessage(messageData)
	}
}

// writePump pumps messages from the hub to the websocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage handles incoming messages from the client
func (c *Client) handleMessage(messageData []byte) {
	var msg SubscriptionMessage
	if err := json.Unmarshal(messageData, &msg); err != nil {
		c.sendError("Invalid message format", "")
		return
	}

	switch msg.Type {
	case "subscribe":
		c.mu.Lock()
		for _, run := range msg.Runs {
			c.runs[run] = true
		}
		c.mu.Unlock()
		c.sendMessage(Message{Type: TypeSubscribed, Data: map[string]interface{}{"runs": msg.Runs}, ID: msg.ID})
	case "unsubscribe":
		c.mu.Lock()
		for _, run := range msg.Runs {
			delete(c.runs, run)
		}
		c.mu.Unlock()
		c.sendMessage(Message{Type: TypeUnsubscribed, Data: map[string]interface{}{"runs": msg.Runs}, ID: msg.ID})
	case "ping":
		c.sendMessage(Message{Type: TypePong, ID: msg.ID})
	default:
		c.sendError("Unknown message type", msg.ID)
	}
}

// sendMessage queues a reply through the hub, which owns the send channel
func (c *Client) sendMessage(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.hub.log.Errorf("Failed to marshal message: %v", err)
		return
	}
	select {
	case c.hub.reply <- outbound{client: c, data: data}:
	case <-c.hub.done:
	}
}

func (c *Client) sendError(errorMsg, id string) {
	c.sendMessage(Message{Type: TypeError, Error: errorMsg, ID: id})
}
