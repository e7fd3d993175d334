package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/thalassa-ai/thalassa/internal/common/logger"
	"github.com/thalassa-ai/thalassa/internal/events/bus"
	"github.com/thalassa-ai/thalassa/internal/manager"
	"github.com/thalassa-ai/thalassa/internal/store"
)

// Gateway bundles the hub and handler for wiring into the HTTP server.
type Gateway struct {
	Hub     *Hub
	Handler *Handler
}

func NewGateway(mgr *manager.Manager, st *store.Store, eventBus bus.EventBus, log *logger.Logger) *Gateway {
	hub := NewHub(eventBus, log)
	return &Gateway{
		Hub:     hub,
		Handler: NewHandler(hub, mgr, st, eventBus, log),
	}
}

// SetupRoutes adds the gateway routes to the Gin engine.
func (g *Gateway) SetupRoutes(router *gin.Engine) {
	router.GET("/ws", g.Handler.HandleConnection)
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"clients": g.Hub.ClientCount(),
		})
	})
}
