package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/thalassa-ai/thalassa/internal/chat"
	"github.com/thalassa-ai/thalassa/internal/common/logger"
	"github.com/thalassa-ai/thalassa/internal/entity"
	"github.com/thalassa-ai/thalassa/internal/events/bus"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512 * 1024 // 512KB
)

// Client represents a single WebSocket connection.
type Client struct {
	ID      string
	conn    *websocket.Conn
	hub     *Hub
	handler *Handler
	send    chan []byte
	logger  *logger.Logger
}

func NewClient(id string, conn *websocket.Conn, hub *Hub, handler *Handler, log *logger.Logger) *Client {
	return &Client{
		ID:      id,
		conn:    conn,
		hub:     hub,
		handler: handler,
		send:    make(chan []byte, 256),
		logger:  log.WithFields(zap.String("client_id", id)),
	}
}

// ReadPump pumps frames from the connection into the daemon.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket read error", zap.Error(err))
			}
			break
		}

		var frame Frame
		if err := json.Unmarshal(message, &frame); err != nil {
			c.logger.Error("failed to parse frame", zap.Error(err))
			c.sendError("", "invalid frame format")
			continue
		}

		c.handleFrame(ctx, &frame)
	}
}

func (c *Client) handleFrame(ctx context.Context, frame *Frame) {
	c.logger.Debug("received frame",
		zap.String("type", frame.Type),
		zap.String("id", frame.ID))

	switch frame.Type {
	case FrameChat:
		c.handleChat(ctx, frame)
	case FrameHistory:
		c.handleHistory(ctx, frame)
	case FrameProjects:
		c.handleProjects(ctx, frame)
	case FrameLaunch:
		c.handleLaunch(ctx, frame)
	case FrameExec:
		c.handleExec(ctx, frame)
	default:
		c.sendError(frame.ID, "unknown frame type: "+frame.Type)
	}
}

// handleChat publishes the frame as a user message. The bridge for the named
// project picks it up from the bus; the reply comes back through the hub's
// relay like any other chat traffic.
func (c *Client) handleChat(ctx context.Context, frame *Frame) {
	var req ChatPayload
	if err := json.Unmarshal(frame.Payload, &req); err != nil {
		c.sendError(frame.ID, "invalid chat payload: "+err.Error())
		return
	}
	if req.Content == "" || req.Project == "" {
		c.sendError(frame.ID, "content and project are required")
		return
	}
	if req.UserID == "" {
		req.UserID = c.ID
	}
	if req.UserName == "" {
		req.UserName = req.UserID
	}

	sender := entity.New(req.UserID, req.UserName, entity.RoleUser)
	msg := chat.New(sender, req.Content, map[string]string{
		chat.MetadataProjectName: req.Project,
		chat.MetadataChatID:      req.ChatID,
	})
	msg.ChatID = req.ChatID

	if err := c.handler.eventBus.Publish(ctx, bus.NewChatEvent(msg)); err != nil {
		c.sendError(frame.ID, "failed to publish message")
		return
	}
	c.sendResult(frame.ID, map[string]any{"message_id": msg.ID})
}

func (c *Client) handleHistory(ctx context.Context, frame *Frame) {
	if c.handler.store == nil {
		c.sendError(frame.ID, "history is not available")
		return
	}
	var req HistoryPayload
	if err := json.Unmarshal(frame.Payload, &req); err != nil {
		c.sendError(frame.ID, "invalid history payload: "+err.Error())
		return
	}
	if req.ChatID == "" {
		c.sendError(frame.ID, "chat_id is required")
		return
	}

	messages, err := c.handler.store.ChatHistory(ctx, req.ChatID, req.Limit)
	if err != nil {
		c.logger.Error("history lookup failed", zap.Error(err))
		c.sendError(frame.ID, "history lookup failed")
		return
	}
	c.sendResult(frame.ID, map[string]any{"messages": messages})
}

func (c *Client) handleProjects(ctx context.Context, frame *Frame) {
	projects, err := c.handler.manager.ListProjects(ctx)
	if err != nil {
		c.sendError(frame.ID, "failed to list projects")
		return
	}
	c.sendResult(frame.ID, map[string]any{"projects": projects})
}

func (c *Client) handleLaunch(ctx context.Context, frame *Frame) {
	var req LaunchPayload
	if err := json.Unmarshal(frame.Payload, &req); err != nil {
		c.sendError(frame.ID, "invalid launch payload: "+err.Error())
		return
	}
	if req.Project == "" {
		c.sendError(frame.ID, "project is required")
		return
	}

	if err := c.handler.manager.LaunchProject(ctx, req.Project); err != nil {
		c.sendError(frame.ID, "launch failed: "+err.Error())
		return
	}
	c.sendResult(frame.ID, map[string]any{"project": req.Project, "launched": true})
}

func (c *Client) handleExec(ctx context.Context, frame *Frame) {
	var req ExecPayload
	if err := json.Unmarshal(frame.Payload, &req); err != nil {
		c.sendError(frame.ID, "invalid exec payload: "+err.Error())
		return
	}
	if req.Project == "" || req.Command == "" {
		c.sendError(frame.ID, "project and command are required")
		return
	}

	out, err := c.handler.manager.ExecCommand(ctx, req.Project, req.Command)
	if err != nil {
		c.sendError(frame.ID, "exec failed: "+err.Error())
		return
	}
	c.sendResult(frame.ID, map[string]any{"output": out})
}

func (c *Client) sendResult(id string, payload any) {
	frame, err := newFrame(FrameResult, id, payload)
	if err != nil {
		c.logger.Error("failed to encode result frame", zap.Error(err))
		return
	}
	c.sendFrame(frame)
}

func (c *Client) sendError(id, message string) {
	frame, err := newFrame(FrameError, id, ErrorPayload{Message: message})
	if err != nil {
		return
	}
	c.sendFrame(frame)
}

func (c *Client) sendFrame(frame *Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		c.logger.Error("failed to marshal frame", zap.Error(err))
		return
	}
	select {
	case c.send <- data:
	default:
		c.logger.Warn("client send buffer full")
	}
}

// WritePump pumps queued frames to the connection and keeps it alive with
// pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Batch additional queued frames
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
