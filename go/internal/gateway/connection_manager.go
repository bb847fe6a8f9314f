package gateway

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/lastround/go/internal/events"
)

// Peer identifies the owner of one connection. UserID is set when the peer
// presented a verified token.
type Peer struct {
	ID     string
	UserID string
	Name   string
}

// MessageHandler consumes decoded frames and connection teardown.
type MessageHandler interface {
	HandleMessage(ctx context.Context, peer Peer, env Envelope)
	Disconnect(peerID string)
}

// ConnectionManager owns the live websocket connections, keyed by peer id.
type ConnectionManager struct {
	connections map[string]*Connection
	mu          sync.RWMutex
	upgrader    websocket.Upgrader
	config      ConnectionConfig
	handler     MessageHandler
}

// Connection is a single websocket peer.
type Connection struct {
	Peer        Peer
	Conn        *websocket.Conn
	Send        chan []byte
	Manager     *ConnectionManager
	ConnectedAt time.Time

	lastPing atomic.Int64
	cancel   context.CancelFunc
}

type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBuffer      int
	CheckOrigin     func(r *http.Request) bool
}

func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  64 * 1024,
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		SendBuffer:      256,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]*Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
	}
}

// SetHandler installs the frame handler. It must be called before the first
// connection is upgraded.
func (cm *ConnectionManager) SetHandler(h MessageHandler) {
	cm.handler = h
}

// UpgradeConnection upgrades the request and starts the connection pumps.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, userID, name string) (*Connection, error) {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		Peer:        Peer{ID: uuid.New().String(), UserID: userID, Name: name},
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBuffer),
		Manager:     cm,
		ConnectedAt: time.Now(),
		cancel:      cancel,
	}
	c.lastPing.Store(time.Now().UnixNano())

	cm.register(c)

	go c.writePump()
	go c.readPump(ctx)

	log.Info().
		Str("peer_id", c.Peer.ID).
		Str("user_id", userID).
		Msg("WebSocket connection established")

	return c, nil
}

func (cm *ConnectionManager) register(c *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.connections[c.Peer.ID] = c
}

// unregister removes c and reports whether it was still registered.
func (cm *ConnectionManager) unregister(c *Connection) bool {
	cm.mu.Lock()
	current, ok := cm.connections[c.Peer.ID]
	if ok && current == c {
		delete(cm.connections, c.Peer.ID)
		close(c.Send)
	}
	cm.mu.Unlock()
	if !ok || current != c {
		return false
	}
	c.cancel()
	log.Info().
		Str("peer_id", c.Peer.ID).
		Dur("connected_for", time.Since(c.ConnectedAt)).
		Msg("WebSocket connection closed")
	return true
}

// SendToPeer queues one event for peerID. Unknown peers are ignored.
func (cm *ConnectionManager) SendToPeer(peerID, event string, data any) {
	msg, err := encode(event, data)
	if err != nil {
		log.Error().Err(err).Str("peer_id", peerID).Msg("Failed to encode event")
		return
	}
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	if c, ok := cm.connections[peerID]; ok {
		cm.enqueue(c, event, msg)
	}
}

// Broadcast queues the same event for every listed peer.
func (cm *ConnectionManager) Broadcast(peerIDs []string, event string, data any) {
	msg, err := encode(event, data)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("Failed to encode event")
		return
	}
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	for _, id := range peerIDs {
		if c, ok := cm.connections[id]; ok {
			cm.enqueue(c, event, msg)
		}
	}
}

// enqueue must be called with cm.mu held. A peer whose buffer is full is
// closed; its read pump performs the teardown.
func (cm *ConnectionManager) enqueue(c *Connection, event string, msg []byte) {
	select {
	case c.Send <- msg:
	default:
		log.Warn().
			Str("peer_id", c.Peer.ID).
			Str("event", event).
			Msg("Send buffer full, closing slow connection")
		go c.Conn.Close()
	}
}

func (cm *ConnectionManager) GetConnectionStats() map[string]int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	stats := map[string]int{"total_connections": len(cm.connections)}
	authenticated := 0
	for _, c := range cm.connections {
		if c.Peer.UserID != "" {
			authenticated++
		}
	}
	stats["authenticated_connections"] = authenticated
	return stats
}

// Close drops every connection.
func (cm *ConnectionManager) Close() {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.connections))
	for _, c := range cm.connections {
		conns = append(conns, c)
	}
	cm.mu.RUnlock()
	for _, c := range conns {
		c.Conn.Close()
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Str("peer_id", c.Peer.ID).Msg("Failed to write message")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("peer_id", c.Peer.ID).Msg("Failed to send ping")
				return
			}
		}
	}
}

func (c *Connection) readPump(ctx context.Context) {
	defer func() {
		c.Conn.Close()
		if c.Manager.unregister(c) && c.Manager.handler != nil {
			c.Manager.handler.Disconnect(c.Peer.ID)
		}
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.lastPing.Store(time.Now().UnixNano())
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Error().Err(err).Str("peer_id", c.Peer.ID).Msg("WebSocket error")
			}
			return
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))

		env, err := decode(raw)
		if err != nil {
			log.Debug().Err(err).Str("peer_id", c.Peer.ID).Msg("Dropping malformed frame")
			c.Manager.SendToPeer(c.Peer.ID, events.RoomError, errorPayload(reasonBadFrame, err))
			continue
		}
		if c.Manager.handler != nil {
			c.Manager.handler.HandleMessage(ctx, c.Peer, env)
		}
	}
}

// LastPing is the time of the last pong received from the peer.
func (c *Connection) LastPing() time.Time {
	return time.Unix(0, c.lastPing.Load())
}
