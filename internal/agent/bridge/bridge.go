// Package bridge connects the event bus to a child agent process: it turns
// user chat messages into prompt turns on a protocol connection and turns
// the streamed reply chunks back into discrete chat messages.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/thalassa-ai/thalassa/internal/agent/acp"
	"github.com/thalassa-ai/thalassa/internal/agent/runtime"
	"github.com/thalassa-ai/thalassa/internal/chat"
	"github.com/thalassa-ai/thalassa/internal/common/logger"
	"github.com/thalassa-ai/thalassa/internal/entity"
	"github.com/thalassa-ai/thalassa/internal/events/bus"
	"github.com/thalassa-ai/thalassa/pkg/acp/jsonrpc"
)

// Config holds per-bridge settings.
type Config struct {
	// AgentCommand is spawned inside the project to start the agent.
	AgentCommand string

	// AgentCwd is the base working directory reported in session/new; the
	// project name is appended.
	AgentCwd string

	// CallTimeout bounds each protocol call. Zero disables the timeout.
	CallTimeout time.Duration

	// SingleFlight serializes prompt turns for this bridge's session
	// instead of trusting the agent to do so. Without it, overlapping
	// turns against the same session can interleave their streamed
	// chunks in the shared accumulator.
	SingleFlight bool
}

// Session bridges one project's conversation. It lives for the process
// lifetime once started.
type Session struct {
	projectName string
	bridgeID    string // informational; distinct from the agent's session id
	agentID     entity.ID
	eventBus    bus.EventBus
	rt          runtime.Runtime
	cfg         Config
	logger      *logger.Logger

	mu        sync.Mutex
	agent     *acp.Agent
	sessionID string // agent-issued; empty until session/new succeeds

	accMu       sync.Mutex
	accumulator strings.Builder

	metaMu       sync.Mutex
	turnMetadata map[string]string

	turnMu sync.Mutex // held across a whole turn when SingleFlight is set
}

// New creates a bridge for one project.
func New(projectName string, eventBus bus.EventBus, rt runtime.Runtime, cfg Config, log *logger.Logger) *Session {
	return &Session{
		projectName: projectName,
		bridgeID:    "ses_" + strings.ReplaceAll(uuid.New().String(), "-", ""),
		agentID:     entity.Agent(projectName),
		eventBus:    eventBus,
		rt:          rt,
		cfg:         cfg,
		logger:      log.WithProject(projectName).WithFields(zap.String("component", "agent-bridge")),
	}
}

// BridgeID returns the bridge's own identifier.
func (s *Session) BridgeID() string {
	return s.bridgeID
}

// SessionID returns the agent-issued protocol session id, or "" while the
// session is not ready.
func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Start spawns the agent, performs the initialize and session/new handshake,
// announces readiness, and launches the notification and bus consumption
// loops. A spawn or connection failure is fatal; handshake failures leave
// the bridge in a degraded state where prompts fail fast.
func (s *Session) Start(ctx context.Context) error {
	sub, err := s.eventBus.Subscribe()
	if err != nil {
		return fmt.Errorf("subscribe to event bus: %w", err)
	}

	s.logger.Info("starting agent session", zap.String("bridge_id", s.bridgeID))

	proc, err := s.rt.SpawnAgent(ctx, s.projectName, s.cfg.AgentCommand)
	if err != nil {
		_ = sub.Unsubscribe()
		return fmt.Errorf("spawn agent: %w", err)
	}

	var opts []jsonrpc.Option
	if s.cfg.CallTimeout > 0 {
		opts = append(opts, jsonrpc.WithCallTimeout(s.cfg.CallTimeout))
	}
	client, err := jsonrpc.NewClient(proc, s.logger, opts...)
	if err != nil {
		_ = sub.Unsubscribe()
		_ = proc.Kill()
		return fmt.Errorf("connect to agent: %w", err)
	}

	agent := acp.New(client, s.logger)
	s.mu.Lock()
	s.agent = agent
	s.mu.Unlock()

	if err := agent.Initialize(ctx); err != nil {
		// Degraded but not fatal: later turns will fail fast.
		s.logger.Error("agent initialize failed", zap.Error(err))
	}

	cwd := path.Join(s.cfg.AgentCwd, s.projectName)
	if sessionID, err := agent.NewSession(ctx, cwd); err != nil {
		s.logger.Error("failed to create agent session", zap.Error(err))
	} else {
		s.logger.Info("agent session created", zap.String("session_id", sessionID))
		s.mu.Lock()
		s.sessionID = sessionID
		s.mu.Unlock()
	}

	s.publishNotification(ctx, bus.LevelSuccess,
		fmt.Sprintf("Agent session %s started for %s", s.bridgeID, s.projectName))

	go s.consumeNotifications(ctx, client.Subscribe())
	go s.consumeBus(ctx, sub)

	return nil
}

// consumeNotifications accumulates agent_message_chunk updates. All other
// update kinds are ignored here.
func (s *Session) consumeNotifications(ctx context.Context, stream *jsonrpc.NotificationStream) {
	defer stream.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-stream.Notifications():
			if !ok {
				s.logger.Info("agent notification stream closed")
				return
			}
			if n.Method != jsonrpc.NotificationSessionUpdate {
				continue
			}

			var params jsonrpc.SessionUpdateParams
			if err := json.Unmarshal(n.Params, &params); err != nil {
				s.logger.Warn("malformed session/update params", zap.Error(err))
				continue
			}
			if params.Update.SessionUpdate != jsonrpc.UpdateAgentMessageChunk {
				continue
			}

			text := params.Update.Content.Text
			if text == "" {
				continue
			}

			s.accMu.Lock()
			s.accumulator.WriteString(text)
			total := s.accumulator.Len()
			s.accMu.Unlock()

			s.logger.Debug("accumulated chunk",
				zap.Int("chunk_len", len(text)),
				zap.Int("total_len", total))
		}
	}
}

// consumeBus watches for user chat messages and spawns one goroutine per
// prompt turn so a slow turn never blocks intake of the next bus event.
func (s *Session) consumeBus(ctx context.Context, sub bus.Subscription) {
	defer func() { _ = sub.Unsubscribe() }()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			if event.Type != bus.EventChatMessage || event.Chat == nil {
				continue
			}
			if event.Chat.Sender.Role != entity.RoleUser {
				continue
			}

			s.logger.Info("bridge received user message",
				zap.String("message_id", event.Chat.ID))
			go s.runTurn(ctx, event.Chat)
		}
	}
}

// runTurn executes one prompt turn: clear the accumulator, send the prompt,
// and publish whatever streamed in during the call.
func (s *Session) runTurn(ctx context.Context, msg *chat.Message) {
	if s.cfg.SingleFlight {
		s.turnMu.Lock()
		defer s.turnMu.Unlock()
	}

	s.accMu.Lock()
	s.accumulator.Reset()
	s.accMu.Unlock()

	metadata := make(map[string]string, len(msg.Metadata))
	for k, v := range msg.Metadata {
		metadata[k] = v
	}
	s.metaMu.Lock()
	s.turnMetadata = metadata
	s.metaMu.Unlock()

	s.mu.Lock()
	agent := s.agent
	sessionID := s.sessionID
	s.mu.Unlock()

	if sessionID == "" {
		s.logger.Error("cannot send prompt: agent session not ready")
		s.publishNotification(ctx, bus.LevelError, "Agent session not ready")
		return
	}

	resp, err := agent.Prompt(ctx, sessionID, msg.Content)
	if err != nil {
		s.logger.Error("agent prompt failed", zap.Error(err))
		s.publishNotification(ctx, bus.LevelError,
			fmt.Sprintf("Agent failed to reply: %v", err))
		return
	}

	s.accMu.Lock()
	accumulated := s.accumulator.String()
	s.accumulator.Reset()
	s.accMu.Unlock()

	if accumulated == "" {
		s.logger.Info("agent returned no content")
		if text, ok := acp.ResultText(resp.Result); ok {
			s.logger.Debug("prompt result carried unstreamed text",
				zap.Int("len", len(text)))
		}
		return
	}

	s.metaMu.Lock()
	turnMetadata := s.turnMetadata
	s.metaMu.Unlock()

	projectName := turnMetadata[chat.MetadataProjectName]
	if projectName == "" {
		projectName = s.projectName
	}

	trimmed := strings.TrimPrefix(accumulated, "\n")
	content := fmt.Sprintf("[%s]\n%s", projectName, trimmed)

	s.logger.Info("sending accumulated reply", zap.Int("len", len(accumulated)))

	reply := chat.New(s.agentID, content, turnMetadata)
	if err := s.eventBus.Publish(ctx, bus.NewChatEvent(reply)); err != nil {
		s.logger.Error("failed to publish reply", zap.Error(err))
	}
}

func (s *Session) publishNotification(ctx context.Context, level bus.NotificationLevel, message string) {
	if err := s.eventBus.Publish(ctx, bus.NewNotificationEvent(level, message, nil)); err != nil {
		s.logger.Error("failed to publish notification", zap.Error(err))
	}
}
