package handler

import (
	"net/http"

	"livesync/internal/hub"
	"livesync/internal/orchestrator"
	"livesync/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // Viewers are served from a separate origin
	},
}

// WSHandler real-time endpoint shared by viewers and AI workers
type WSHandler struct {
	orchestrator *orchestrator.Orchestrator
}

// NewWSHandler creates a new websocket handler
func NewWSHandler(orch *orchestrator.Orchestrator) *WSHandler {
	return &WSHandler{orchestrator: orch}
}

// Serve upgrades the request and pumps frames into the orchestrator until
// the socket closes
// @Summary Real-time connection
// @Tags realtime
// @Router /ws [get]
func (h *WSHandler) Serve(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to upgrade to websocket: %v", err)
		return
	}

	conn := hub.NewWSConn(ws)
	ctx := logger.WithTrace(c.Request.Context(), conn.ID())
	if !h.orchestrator.Connect(conn) {
		logger.WarnCtx(ctx, "orchestrator stopped, refusing connection from %s", c.ClientIP())
		_ = conn.Close()
		return
	}
	logger.InfoCtx(ctx, "connection opened from %s", c.ClientIP())

	conn.ReadLoop(func(frame []byte) {
		h.orchestrator.HandleFrame(conn.ID(), frame)
	})

	h.orchestrator.Disconnect(conn.ID())
	logger.InfoCtx(ctx, "connection closed")
}
