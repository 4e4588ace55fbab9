package notifications

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aura-erp/meeting-scheduler/internal/models"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 25 * time.Second
	writeWait    = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Subscriber delivers live notifications for one user.
type Subscriber interface {
	Subscribe(userID uuid.UUID, handler func(models.Notification)) (cancel func(), err error)
}

// wsMessage is the WebSocket message envelope.
type wsMessage struct {
	Event string              `json:"event"`
	Data  models.Notification `json:"data"`
}

// ServeWs handles GET /ws/notifications?token=... Browsers cannot set headers on the upgrade
// request, so the JWT travels in the query string.
func ServeWs(sub Subscriber, validate func(token string) (uuid.UUID, error), logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "token required"})
			return
		}
		userID, err := validate(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		send := make(chan models.Notification, 64)
		cancel, err := sub.Subscribe(userID, func(n models.Notification) {
			select {
			case send <- n:
			default:
				logger.Debug("dropping notification for slow client", zap.String("user_id", userID.String()))
			}
		})
		if err != nil {
			logger.Warn("notification subscribe failed", zap.Error(err))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscribe failed"))
			_ = conn.Close()
			return
		}

		done := make(chan struct{})
		go writePump(conn, send, done)
		readPump(conn)
		cancel()
		close(done)
	}
}

// readPump discards client frames and returns when the connection closes or stops answering pings.
func readPump(conn *websocket.Conn) {
	defer conn.Close()
	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writePump(conn *websocket.Conn, send <-chan models.Notification, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()
	for {
		select {
		case <-done:
			return
		case n := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(wsMessage{Event: "notification", Data: n}); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
