package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/questforge/engine/cache"
	"github.com/questforge/engine/config"
	mw "github.com/questforge/engine/middleware"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 45 * time.Second
)

// Handler serves the operator event feed on GET /ws/feed. Each connection
// subscribes to the engine's pub/sub channels and streams the published
// JSON frames as text messages.
type Handler struct {
	pubsub   cache.PubSub
	sec      config.SecurityConfig
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a feed Handler.
// sec.AllowedOrigins controls which WebSocket origins are accepted.
// An empty slice permits all origins (development only).
func NewHandler(ps cache.PubSub, sec config.SecurityConfig, logger *zap.Logger) *Handler {
	h := &Handler{
		pubsub: ps,
		sec:    sec,
		logger: logger,
	}
	allowed := sec.AllowedOrigins
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true // dev mode: allow all
			}
			origin := r.Header.Get("Origin")
			for _, o := range allowed {
				if o == origin {
					return true
				}
			}
			return false
		},
	}
	return h
}

// ServeFeed handles GET /ws/feed?token=<jwt>.
func (h *Handler) ServeFeed(c *gin.Context) {
	tokenStr := c.Query("token")
	if tokenStr == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	claims, err := mw.ParseToken(tokenStr, h.sec.JWTSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	msgs, cancel, err := h.pubsub.Subscribe(c.Request.Context(), FeedChannel)
	if err != nil {
		h.logger.Error("feed subscribe failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "subscribe failed"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		cancel()
		h.logger.Error("ws upgrade failed", zap.Error(err))
		return
	}

	h.logger.Info("feed connected", zap.String("client_id", claims.ClientID))
	go h.writePump(conn, msgs, cancel, claims.ClientID)
	h.readPump(conn, cancel)
}

// writePump forwards pub/sub messages to the connection and keeps it alive
// with pings. It exits when the subscription or the connection closes.
func (h *Handler) writePump(conn *websocket.Conn, msgs <-chan *cache.Message, cancel func(), clientID string) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cancel()
		conn.Close()
		h.logger.Info("feed disconnected", zap.String("client_id", clientID))
	}()

	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound messages; the feed is one-way. It exists to
// process pongs and to notice the peer going away.
func (h *Handler) readPump(conn *websocket.Conn, cancel func()) {
	defer cancel()

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
