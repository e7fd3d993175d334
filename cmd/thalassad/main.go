// Command thalassad runs the Thalassa coordination daemon: it bridges chat
// front-ends to per-project coding agents over an event bus, persists the
// conversation, and serves a WebSocket gateway.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/thalassa-ai/thalassa/internal/agent/bridge"
	"github.com/thalassa-ai/thalassa/internal/agent/runtime"
	"github.com/thalassa-ai/thalassa/internal/chat"
	"github.com/thalassa-ai/thalassa/internal/common/config"
	"github.com/thalassa-ai/thalassa/internal/common/logger"
	"github.com/thalassa-ai/thalassa/internal/events/bus"
	gateway "github.com/thalassa-ai/thalassa/internal/gateway/websocket"
	"github.com/thalassa-ai/thalassa/internal/manager"
	"github.com/thalassa-ai/thalassa/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to the config directory")
	flag.Parse()

	cfg, err := config.LoadWithPath(*configPath)
	if err != nil {
		logger.Default().Fatal("failed to load configuration", zap.Error(err))
	}

	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		logger.Default().Fatal("failed to initialize logger", zap.Error(err))
	}
	logger.SetDefault(log)
	defer func() {
		_ = log.Sync()
	}()

	log.Info("starting thalassad",
		zap.String("projects_root", cfg.Projects.Root),
		zap.Int("gateway_port", cfg.Gateway.Port))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ============================================
	// EVENT BUS
	// ============================================
	var eventBus bus.EventBus
	if cfg.NATS.URL != "" {
		natsBus, err := bus.NewNATSEventBus(cfg.NATS, log)
		if err != nil {
			log.Fatal("failed to connect to NATS", zap.Error(err))
		}
		eventBus = natsBus
		log.Info("using NATS event bus", zap.String("url", cfg.NATS.URL))
	} else {
		eventBus = bus.NewMemoryEventBus(log)
		log.Info("using in-memory event bus")
	}
	defer eventBus.Close()

	// ============================================
	// MESSAGE STORE
	// ============================================
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		log.Fatal("failed to open message store", zap.Error(err))
	}
	defer func() {
		_ = st.Close()
	}()

	// ============================================
	// AGENT RUNTIME AND MANAGER
	// ============================================
	rt, err := runtime.NewLocalRuntime(cfg.Projects.Root, log)
	if err != nil {
		log.Fatal("failed to initialize project runtime", zap.Error(err))
	}

	mgr := manager.New(eventBus, rt, bridge.Config{
		AgentCommand: cfg.Projects.AgentCommand,
		AgentCwd:     cfg.Projects.AgentCwd,
		CallTimeout:  cfg.Bridge.CallTimeoutDuration(),
		SingleFlight: cfg.Bridge.SingleFlight,
	}, log)

	// ============================================
	// GATEWAY (WebSocket + health endpoint)
	// ============================================
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	gw := gateway.NewGateway(mgr, st, eventBus, log)
	gw.SetupRoutes(router)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return gw.Hub.Run(gctx)
	})

	g.Go(func() error {
		return persistChatTraffic(gctx, eventBus, st, log)
	})

	g.Go(func() error {
		log.Info("gateway listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("gateway server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Error("daemon exited with error", zap.Error(err))
	}
	log.Info("thalassad stopped")
}

// persistChatTraffic tails the event bus and writes every chat message and
// its sender to the store. Persistence failures are logged, never fatal; the
// conversation keeps flowing without history.
func persistChatTraffic(ctx context.Context, eventBus bus.EventBus, st *store.Store, log *logger.Logger) error {
	sub, err := eventBus.Subscribe()
	if err != nil {
		return fmt.Errorf("subscribe for persistence: %w", err)
	}
	defer func() {
		_ = sub.Unsubscribe()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if event.Type != bus.EventChatMessage || event.Chat == nil {
				continue
			}
			msg := event.Chat
			if msg.ChatID == "" {
				msg.ChatID = msg.Metadata[chat.MetadataChatID]
			}
			if err := st.SaveMessage(ctx, msg); err != nil {
				log.Error("failed to persist message",
					zap.String("message_id", msg.ID), zap.Error(err))
				continue
			}
			if err := st.SaveUser(ctx, msg.Sender); err != nil {
				log.Error("failed to persist sender",
					zap.String("sender_id", msg.Sender.ID), zap.Error(err))
			}
		}
	}
}
