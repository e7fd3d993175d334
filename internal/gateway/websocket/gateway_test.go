package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thalassa-ai/thalassa/internal/agent/bridge"
	"github.com/thalassa-ai/thalassa/internal/agent/runtime"
	"github.com/thalassa-ai/thalassa/internal/chat"
	"github.com/thalassa-ai/thalassa/internal/common/logger"
	"github.com/thalassa-ai/thalassa/internal/entity"
	"github.com/thalassa-ai/thalassa/internal/events/bus"
	"github.com/thalassa-ai/thalassa/internal/manager"
	"github.com/thalassa-ai/thalassa/internal/store"
)

type listOnlyRuntime struct {
	projects []string
}

func (r *listOnlyRuntime) SpawnAgent(ctx context.Context, project, command string) (runtime.Process, error) {
	panic("not used in gateway tests")
}

func (r *listOnlyRuntime) Capture(ctx context.Context, project, command string) (string, error) {
	return "done\n", nil
}

func (r *listOnlyRuntime) ListProjects(ctx context.Context) ([]string, error) {
	return r.projects, nil
}

type gatewayHarness struct {
	conn *gorillaws.Conn
	bus  *bus.MemoryEventBus
	st   *store.Store
}

func startGateway(t *testing.T) *gatewayHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log, err := logger.NewLogger(logger.LoggingConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)

	eventBus := bus.NewMemoryEventBus(log)
	t.Cleanup(eventBus.Close)

	st, err := store.Open(filepath.Join(t.TempDir(), "gateway.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = st.Close()
	})

	mgr := manager.New(eventBus, &listOnlyRuntime{projects: []string{"seaside", "harbor"}},
		bridge.Config{AgentCommand: "noop"}, log)

	gw := NewGateway(mgr, st, eventBus, log)
	router := gin.New()
	gw.SetupRoutes(router)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		_ = gw.Hub.Run(ctx)
	}()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, resp, err := gorillaws.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		defer resp.Body.Close()
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})

	return &gatewayHarness{conn: conn, bus: eventBus, st: st}
}

func (h *gatewayHarness) send(t *testing.T, frameType, id string, payload any) {
	t.Helper()
	frame, err := newFrame(frameType, id, payload)
	require.NoError(t, err)
	require.NoError(t, h.conn.WriteJSON(frame))
}

// readFrame skips broadcast traffic until a frame of the wanted type arrives.
func (h *gatewayHarness) readFrame(t *testing.T, wantType string) *Frame {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		require.NoError(t, h.conn.SetReadDeadline(time.Now().Add(3*time.Second)))
		_, data, err := h.conn.ReadMessage()
		require.NoError(t, err)
		// The write pump batches frames newline-separated.
		for _, line := range strings.Split(string(data), "\n") {
			if line == "" {
				continue
			}
			var frame Frame
			require.NoError(t, json.Unmarshal([]byte(line), &frame))
			if frame.Type == wantType {
				return &frame
			}
		}
	}
	t.Fatalf("no %s frame received", wantType)
	return nil
}

func TestGatewayChatFramePublishesUserMessage(t *testing.T) {
	h := startGateway(t)

	sub, err := h.bus.Subscribe()
	require.NoError(t, err)
	defer sub.Unsubscribe()

	h.send(t, FrameChat, "req-1", ChatPayload{
		ChatID:   "42",
		UserID:   "u1",
		UserName: "Alice",
		Project:  "seaside",
		Content:  "hello agent",
	})

	ack := h.readFrame(t, FrameResult)
	assert.Equal(t, "req-1", ack.ID)

	select {
	case event := <-sub.Events():
		require.Equal(t, bus.EventChatMessage, event.Type)
		assert.Equal(t, entity.RoleUser, event.Chat.Sender.Role)
		assert.Equal(t, "hello agent", event.Chat.Content)
		assert.Equal(t, "seaside", event.Chat.Metadata[chat.MetadataProjectName])
		assert.Equal(t, "42", event.Chat.Metadata[chat.MetadataChatID])
	case <-time.After(2 * time.Second):
		t.Fatal("user message never reached the bus")
	}
}

func TestGatewayRelaysBusTraffic(t *testing.T) {
	h := startGateway(t)

	msg := chat.New(entity.Agent("seaside"), "[seaside]\nall done", nil)
	require.NoError(t, h.bus.Publish(context.Background(), bus.NewChatEvent(msg)))

	frame := h.readFrame(t, FrameMessage)
	var got chat.Message
	require.NoError(t, json.Unmarshal(frame.Payload, &got))
	assert.Equal(t, "[seaside]\nall done", got.Content)
	assert.Equal(t, entity.RoleAgent, got.Sender.Role)
}

func TestGatewayProjectsFrame(t *testing.T) {
	h := startGateway(t)

	h.send(t, FrameProjects, "req-2", struct{}{})
	frame := h.readFrame(t, FrameResult)
	require.Equal(t, "req-2", frame.ID)

	var result struct {
		Projects []string `json:"projects"`
	}
	require.NoError(t, json.Unmarshal(frame.Payload, &result))
	assert.Equal(t, []string{"seaside", "harbor"}, result.Projects)
}

func TestGatewayHistoryFrame(t *testing.T) {
	h := startGateway(t)

	saved := chat.New(entity.New("u1", "Alice", entity.RoleUser), "earlier", nil)
	saved.ChatID = "42"
	require.NoError(t, h.st.SaveMessage(context.Background(), saved))

	h.send(t, FrameHistory, "req-3", HistoryPayload{ChatID: "42"})
	frame := h.readFrame(t, FrameResult)

	var result struct {
		Messages []*chat.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(frame.Payload, &result))
	require.Len(t, result.Messages, 1)
	assert.Equal(t, "earlier", result.Messages[0].Content)
}

func TestGatewayRejectsMalformedFrames(t *testing.T) {
	h := startGateway(t)

	require.NoError(t, h.conn.WriteMessage(gorillaws.TextMessage, []byte("not json")))
	frame := h.readFrame(t, FrameError)

	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(frame.Payload, &payload))
	assert.Contains(t, payload.Message, "invalid frame")
}

func TestGatewayHealthz(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)

	eventBus := bus.NewMemoryEventBus(log)
	t.Cleanup(eventBus.Close)
	mgr := manager.New(eventBus, &listOnlyRuntime{}, bridge.Config{}, log)
	gw := NewGateway(mgr, nil, eventBus, log)

	router := gin.New()
	gw.SetupRoutes(router)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}
