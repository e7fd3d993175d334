package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gorillaws "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/thalassa-ai/thalassa/internal/common/logger"
	"github.com/thalassa-ai/thalassa/internal/events/bus"
	"github.com/thalassa-ai/thalassa/internal/manager"
	"github.com/thalassa-ai/thalassa/internal/store"
)

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The gateway binds to loopback by default; origin checks are
		// left to a fronting proxy.
		return true
	},
}

// Handler upgrades connections and gives clients access to the daemon's
// operations.
type Handler struct {
	hub      *Hub
	manager  *manager.Manager
	store    *store.Store // nil disables history frames
	eventBus bus.EventBus
	logger   *logger.Logger
}

func NewHandler(hub *Hub, mgr *manager.Manager, st *store.Store, eventBus bus.EventBus, log *logger.Logger) *Handler {
	return &Handler{
		hub:      hub,
		manager:  mgr,
		store:    st,
		eventBus: eventBus,
		logger:   log.WithFields(zap.String("component", "ws_handler")),
	}
}

// HandleConnection upgrades HTTP to WebSocket and runs the client pumps.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}

	clientID := uuid.New().String()
	h.logger.Debug("websocket connection established",
		zap.String("client_id", clientID),
		zap.String("remote_addr", c.Request.RemoteAddr),
	)

	client := NewClient(clientID, conn, h.hub, h, h.logger)
	h.hub.Register(client)

	go client.WritePump()
	client.ReadPump(c.Request.Context())
}
