package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/gorilla/websocket"
	"github.com/san-kum/aquascan/server/models"
	"github.com/san-kum/aquascan/server/processor"
	"go.uber.org/zap"
)

const (
	wsReadLimit    = 16 * 1024 * 1024
	wsPongWait     = 60 * time.Second
	wsPingInterval = 54 * time.Second
	wsWriteWait    = 10 * time.Second
)

type WebSocketHandler struct {
	analyzer *processor.Analyzer
	logger   *zap.Logger
	upgrader websocket.Upgrader
	timeout  time.Duration
	pongWait time.Duration
}

type ClientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type ServerMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// wsConn serializes writes; gorilla connections allow one concurrent writer.
type wsConn struct {
	*websocket.Conn
	mu sync.Mutex
}

func (c *wsConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.WriteJSON(v)
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

func NewWebSocketHandler(analyzer *processor.Analyzer, allowedOrigins []string, timeout time.Duration, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		analyzer: analyzer,
		logger:   logger,
		timeout:  timeout,
		pongWait: wsPongWait,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return originAllowed(allowedOrigins, r.Header.Get("Origin"))
			},
		},
	}
}

// HandleWebSocket serves scans over a websocket, one at a time per connection.
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket connection", zap.Error(err))
		return
	}
	conn := &wsConn{Conn: raw}
	defer conn.Close()

	clientIP := c.ClientIP()
	h.logger.Info("WebSocket client connected", zap.String("client_ip", clientIP))

	conn.SetReadLimit(wsReadLimit)
	conn.SetReadDeadline(time.Now().Add(h.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go h.pingRoutine(conn, done)

	for {
		var message ClientMessage
		if err := conn.ReadJSON(&message); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("WebSocket read error", zap.Error(err), zap.String("client_ip", clientIP))
			}
			return
		}
		h.handleMessage(c.Request.Context(), conn, clientIP, &message)
		// A scan may outlast the read deadline; restart it once the reply is out.
		conn.SetReadDeadline(time.Now().Add(h.pongWait))
	}
}

func (h *WebSocketHandler) handleMessage(ctx context.Context, conn *wsConn, clientIP string, message *ClientMessage) {
	switch message.Type {
	case "analyze":
		h.processScan(ctx, conn, clientIP, message)
	case "ping":
		h.sendMessage(conn, "pong", map[string]any{"timestamp": time.Now().Unix()})
	default:
		h.logger.Warn("Unknown message type received", zap.String("type", message.Type))
		h.sendError(conn, "Unknown message type: "+message.Type)
	}
}

func (h *WebSocketHandler) processScan(ctx context.Context, conn *wsConn, clientIP string, message *ClientMessage) {
	var request models.AnalyzeRequest
	if err := json.Unmarshal(message.Data, &request); err != nil {
		h.sendError(conn, "Invalid request format")
		return
	}
	if err := binding.Validator.ValidateStruct(&request); err != nil {
		h.sendError(conn, "Invalid request format: "+err.Error())
		return
	}

	scan := toScanRequest(&request, clientIP)
	if scan.ImageErr != nil {
		h.logger.Warn("Undecodable image payload", zap.Error(scan.ImageErr), zap.String("client_ip", clientIP))
	}

	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	h.sendMessage(conn, "analysis_result", h.analyzer.Analyze(ctx, scan))
}

func (h *WebSocketHandler) sendMessage(conn *wsConn, messageType string, data any) {
	if err := conn.writeJSON(ServerMessage{Type: messageType, Data: data}); err != nil {
		h.logger.Error("Failed to send WebSocket message", zap.Error(err))
	}
}

func (h *WebSocketHandler) sendError(conn *wsConn, errorMsg string) {
	h.sendMessage(conn, "error", map[string]any{
		"message":   errorMsg,
		"timestamp": time.Now().Unix(),
	})
}

func (h *WebSocketHandler) pingRoutine(conn *wsConn, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				h.logger.Debug("Failed to send ping", zap.Error(err))
				return
			}
		case <-done:
			return
		}
	}
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" || len(allowed) == 0 {
		return true
	}
	for _, o := range allowed {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}
