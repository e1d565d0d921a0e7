package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/flybeeper/fsd-airspace/internal/metrics"
	"github.com/flybeeper/fsd-airspace/internal/models"
	"github.com/flybeeper/fsd-airspace/pkg/utils"
)

// StreamFormat формат кадров потока снапшотов
type StreamFormat string

const (
	FormatJSON  StreamFormat = "json"
	FormatProto StreamFormat = "proto"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	clientSendSize = 8
)

// SnapshotHub рассылает опубликованные снапшоты WebSocket клиентам.
// Снапшот кодируется один раз на формат. Медленный клиент теряет
// промежуточные кадры, но не тормозит остальных.
type SnapshotHub struct {
	upgrader websocket.Upgrader
	logger   *utils.Logger
	latest   func() *models.AirspaceAircraftSnapshot

	mu      sync.RWMutex
	clients map[*Client]struct{}

	pending chan *models.AirspaceAircraftSnapshot
}

// Client WebSocket подписчик
type Client struct {
	hub    *SnapshotHub
	conn   *websocket.Conn
	send   chan []byte
	format StreamFormat
}

// NewSnapshotHub создает хаб. latest отдает текущий снапшот новому клиенту.
func NewSnapshotHub(latest func() *models.AirspaceAircraftSnapshot, allowedOrigins []string, logger *utils.Logger) *SnapshotHub {
	return &SnapshotHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger:  logger.WithComponent("websocket"),
		latest:  latest,
		clients: make(map[*Client]struct{}),
		pending: make(chan *models.AirspaceAircraftSnapshot, 1),
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// Submit ставит снапшот на рассылку, более новый заменяет неразосланный
func (h *SnapshotHub) Submit(snap *models.AirspaceAircraftSnapshot) {
	if snap == nil {
		return
	}
	for {
		select {
		case h.pending <- snap:
			return
		default:
		}
		select {
		case <-h.pending:
		default:
		}
	}
}

// Run рассылает снапшоты до отмены контекста, затем закрывает клиентов
func (h *SnapshotHub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return nil
		case snap := <-h.pending:
			h.Broadcast(snap)
		}
	}
}

// Broadcast отправляет снапшот всем клиентам
func (h *SnapshotHub) Broadcast(snap *models.AirspaceAircraftSnapshot) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.clients) == 0 {
		return
	}

	frames := make(map[StreamFormat][]byte, 2)
	for c := range h.clients {
		frame, ok := frames[c.format]
		if !ok {
			var err error
			frame, err = encodeFrame(snap, c.format)
			if err != nil {
				h.logger.WithField("error", err).Error("Failed to encode snapshot frame")
				return
			}
			frames[c.format] = frame
		}
		c.enqueue(frame)
	}
}

func encodeFrame(snap *models.AirspaceAircraftSnapshot, format StreamFormat) ([]byte, error) {
	if format == FormatProto {
		return EncodeSnapshotFrame(snap), nil
	}
	return json.Marshal(snap)
}

// ClientCount число подключенных клиентов
func (h *SnapshotHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket GET /ws/v1/snapshots?format=json|proto
func (h *SnapshotHub) HandleWebSocket(c *gin.Context) {
	format := StreamFormat(c.DefaultQuery("format", string(FormatJSON)))
	if format != FormatJSON && format != FormatProto {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "invalid_format",
			"message": "format must be json or proto",
		})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithField("error", err).Error("Failed to upgrade to WebSocket")
		return
	}

	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, clientSendSize),
		format: format,
	}
	h.register(client)

	h.logger.WithFields(map[string]interface{}{
		"client_ip": c.ClientIP(),
		"format":    format,
	}).Info("WebSocket client connected")

	go client.writePump()
	go client.readPump()

	if snap := h.latest(); snap != nil {
		if frame, err := encodeFrame(snap, format); err == nil {
			h.sendTo(client, frame)
		}
	}
}

// sendTo отправляет кадр клиенту, если он еще зарегистрирован
func (h *SnapshotHub) sendTo(c *Client, frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; ok {
		c.enqueue(frame)
	}
}

func (h *SnapshotHub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	metrics.WebSocketConnections.Inc()
}

func (h *SnapshotHub) unregister(c *Client) {
	// канал закрывается под блокировкой: рассылка идет под RLock
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()

	if ok {
		metrics.WebSocketConnections.Dec()
		h.logger.Debug("WebSocket client disconnected")
	}
}

func (h *SnapshotHub) closeAll() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.unregister(c)
	}
}

// enqueue не блокирует: при полном буфере самый старый кадр выбрасывается.
// Вызывается только под блокировкой хаба.
func (c *Client) enqueue(frame []byte) {
	for {
		select {
		case c.send <- frame:
			return
		default:
		}
		select {
		case <-c.send:
			metrics.WebSocketErrors.Inc()
		default:
		}
	}
}

// readPump читает только управляющие кадры, входящие данные игнорируются
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.WithField("error", err).Warn("WebSocket read error")
			}
			return
		}
	}
}

// writePump отправляет кадры и ping
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	messageType := websocket.TextMessage
	if c.format == FormatProto {
		messageType = websocket.BinaryMessage
	}

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(messageType, frame); err != nil {
				c.hub.logger.WithField("error", err).Debug("WebSocket write error")
				metrics.WebSocketErrors.Inc()
				return
			}
			metrics.WebSocketMessagesOut.WithLabelValues(string(c.format)).Inc()

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				metrics.WebSocketErrors.Inc()
				return
			}
			metrics.WebSocketMessagesOut.WithLabelValues("ping").Inc()
		}
	}
}
