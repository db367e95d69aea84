package realtime

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/richxcame/ride-hailing/internal/platform/logger"
	"github.com/richxcame/ride-hailing/internal/platform/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler upgrades authenticated HTTP requests to websocket
// connections and joins them onto their requested channel.
type Handler struct {
	hub *Hub
}

// NewHandler builds a Handler over hub.
func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// Register wires the upgrade endpoint and read-only introspection
// routes onto group, which must already carry middleware.Auth.
func (h *Handler) Register(group *gin.RouterGroup) {
	group.GET("/ws", h.serveWS)
	group.GET("/ws/stats", h.stats)
}

func (h *Handler) serveWS(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{"code": "UNAUTHENTICATED", "message": "missing bearer token"}})
		return
	}
	role := middleware.Role(c)
	if role == "" {
		role = "rider"
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.WarnContext(c.Request.Context(), "websocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(userID.String(), role, conn, h.hub)
	h.hub.Register <- client

	go client.WritePump()
	go client.ReadPump()

	for _, channel := range requestedChannels(c, userID.String(), role) {
		h.hub.JoinChannel(client.ID, channel)
	}
}

// requestedChannels derives the channels a freshly connected client
// should join from its role and an optional ?channel= query param —
// driver:{id}, ride:{id}, or available-drivers[:vehicleType].
func requestedChannels(c *gin.Context, userID, role string) []string {
	channels := make([]string, 0, 2)
	if role == "driver" {
		channels = append(channels, "driver:"+userID)
	} else {
		channels = append(channels, "ride:"+userID)
	}
	if explicit := c.Query("channel"); explicit != "" {
		channels = append(channels, explicit)
	}
	return channels
}

func (h *Handler) stats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connected_clients": h.hub.ClientCount(),
	})
}
