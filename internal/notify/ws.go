package notify

import (
	"net/http"
	"sync"
	"time"

	"civicreport/internal/auth"
	"civicreport/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const writeTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin policy is enforced at the edge; the handler itself requires a
	// verified access token before upgrading.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsConn adapts a gorilla connection to the hub's Conn interface.
// gorilla allows one concurrent writer, hence the mutex.
type wsConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *wsConn) Send(e Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(e)
}

func (c *wsConn) Close() error { return c.ws.Close() }

// Handler upgrades an authenticated request to a websocket and registers it
// with the hub. There are no client-to-server event types: the read loop
// exists only to detect the close.
func Handler(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, err := auth.UserID(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		role, _ := auth.Role(c.Request.Context())

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade already wrote the HTTP error response.
			logger.FromGin(c).Warn("websocket upgrade failed", "err", err)
			return
		}

		conn := &wsConn{ws: ws}
		hub.Register(conn, Identity{UserID: uid, Role: role})

		go func() {
			defer hub.Unregister(conn)
			defer func() { _ = conn.Close() }()
			for {
				if _, _, err := ws.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
}
