package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/WindowArranger/backend/internal/domain/orchestrator"
	"github.com/GriffinCanCode/WindowArranger/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/WindowArranger/backend/internal/shared/id"
)

const (
	sendBuffer   = 32
	writeTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // local control surface only
	},
}

type inbound struct {
	Type string `json:"type"`
}

type client struct {
	id   id.ClientID
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub fans orchestrator notifications out to UI WebSocket clients.
type Hub struct {
	logger  *zap.Logger
	metrics *monitoring.Metrics

	mu      sync.Mutex
	clients map[*client]struct{}
	last    map[string][]byte
}

// NewHub creates a notification hub
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger:  logger,
		clients: make(map[*client]struct{}),
		last:    make(map[string][]byte),
	}
}

// WithMetrics adds metrics tracking to the hub
func (h *Hub) WithMetrics(metrics *monitoring.Metrics) *Hub {
	h.metrics = metrics
	return h
}

// Notify broadcasts n to every client. Slow clients are dropped.
func (h *Hub) Notify(n orchestrator.Notification) {
	data, err := sonic.Marshal(n)
	if err != nil {
		h.logger.Error("Failed to encode notification", zap.String("type", n.Type), zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.last[n.Type] = data
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("Dropping slow event client")
			h.removeLocked(c)
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// HandleConnection upgrades the request and streams notifications until
// the client goes away.
func (h *Hub) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	cl := &client{id: id.NewClientID(), conn: conn, send: make(chan []byte, sendBuffer)}
	h.register(cl)
	h.logger.Debug("Event client connected", zap.String("client", cl.id.String()))

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writeLoop(cl)
	}()

	for {
		var msg inbound
		if err := conn.ReadJSON(&msg); err != nil {
			h.logger.Debug("Event client disconnected", zap.String("client", cl.id.String()), zap.Error(err))
			break
		}
		switch msg.Type {
		case "ping":
			h.enqueue(cl, map[string]interface{}{"type": "pong", "timestamp": time.Now().Unix()})
		default:
			h.enqueue(cl, map[string]interface{}{"type": "error", "message": "unknown message type"})
		}
	}

	h.unregister(cl)
	<-done
}

func (h *Hub) register(cl *client) {
	welcome, _ := sonic.Marshal(map[string]interface{}{
		"type":    "system",
		"message": "Connected to window arranger",
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	cl.send <- welcome
	for _, kind := range []string{orchestrator.NotifyRunningState, orchestrator.NotifyArrangement} {
		if data, ok := h.last[kind]; ok {
			cl.send <- data
		}
	}
	h.clients[cl] = struct{}{}
	if h.metrics != nil {
		h.metrics.IncWSConnections()
	}
}

func (h *Hub) unregister(cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(cl)
}

func (h *Hub) removeLocked(cl *client) {
	if _, ok := h.clients[cl]; !ok {
		return
	}
	delete(h.clients, cl)
	cl.close()
	if h.metrics != nil {
		h.metrics.DecWSConnections()
	}
}

func (h *Hub) enqueue(cl *client, v interface{}) {
	data, err := sonic.Marshal(v)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[cl]; !ok {
		return
	}
	select {
	case cl.send <- data:
	default:
	}
}

// writeLoop owns all writes to the connection. It closes the connection
// when the client is removed so the read loop ends too.
func (h *Hub) writeLoop(cl *client) {
	defer cl.conn.Close()
	for data := range cl.send {
		_ = cl.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := cl.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Debug("Event write failed", zap.Error(err))
			_ = cl.conn.Close()
			for range cl.send {
			}
			return
		}
	}
}
