// Package acp provides the high-level ACP conversation surface over a
// JSON-RPC connection to a child agent process: the initialize handshake,
// session creation, and prompt turns.
package acp

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/thalassa-ai/thalassa/internal/common/logger"
	"github.com/thalassa-ai/thalassa/pkg/acp/jsonrpc"
)

// CallError is a failure the agent returned for a call, as opposed to a
// transport failure.
type CallError struct {
	Method  string
	Code    int
	Message string
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s failed: %s (code %d)", e.Method, e.Message, e.Code)
}

func callError(method string, obj *jsonrpc.ErrorObject) *CallError {
	return &CallError{Method: method, Code: obj.Code, Message: obj.Message}
}

// Agent wraps a protocol connection with the ACP method surface the bridge
// consumes.
type Agent struct {
	client *jsonrpc.Client
	logger *logger.Logger
}

// New wraps an established protocol connection.
func New(client *jsonrpc.Client, log *logger.Logger) *Agent {
	return &Agent{
		client: client,
		logger: log.WithFields(zap.String("component", "acp-agent")),
	}
}

// Client exposes the underlying connection for notification subscriptions.
func (a *Agent) Client() *jsonrpc.Client {
	return a.client
}

// Initialize performs the ACP initialize handshake.
func (a *Agent) Initialize(ctx context.Context) error {
	yes := true
	params := jsonrpc.InitializeParams{
		ProtocolVersion: 1,
		ClientCapabilities: jsonrpc.ClientCapabilities{
			Fs: &jsonrpc.FsCapabilities{
				ReadTextFile:  &yes,
				WriteTextFile: &yes,
			},
			Terminal: &yes,
		},
		ClientInfo: jsonrpc.ClientInfo{
			Name:    "thalassa",
			Title:   "Thalassa Coordinator",
			Version: "0.1.0",
		},
	}

	resp, err := a.client.Call(ctx, jsonrpc.MethodInitialize, params)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	if resp.Error != nil {
		return callError(jsonrpc.MethodInitialize, resp.Error)
	}

	a.logger.Info("agent initialized", zap.ByteString("result", resp.Result))
	return nil
}

// NewSession creates a protocol session rooted at cwd and returns the
// agent-issued session id.
func (a *Agent) NewSession(ctx context.Context, cwd string) (string, error) {
	params := jsonrpc.SessionNewParams{
		Cwd:        cwd,
		McpServers: []jsonrpc.McpServer{},
	}

	resp, err := a.client.Call(ctx, jsonrpc.MethodSessionNew, params)
	if err != nil {
		return "", fmt.Errorf("session/new: %w", err)
	}
	if resp.Error != nil {
		return "", callError(jsonrpc.MethodSessionNew, resp.Error)
	}

	sessionID, ok := SessionIDFromResult(resp.Result)
	if !ok {
		return "", fmt.Errorf("session/new: could not parse session id from result %s", resp.Result)
	}
	return sessionID, nil
}

// Prompt sends one user turn. The call completes when the turn is over;
// streamed content arrives as session/update notifications during the call.
func (a *Agent) Prompt(ctx context.Context, sessionID, content string) (*jsonrpc.Response, error) {
	params := jsonrpc.SessionPromptParams{
		SessionID: sessionID,
		Prompt:    []jsonrpc.ContentBlock{jsonrpc.TextBlock(content)},
	}

	resp, err := a.client.Call(ctx, jsonrpc.MethodSessionPrompt, params)
	if err != nil {
		return nil, fmt.Errorf("session/prompt: %w", err)
	}
	if resp.Error != nil {
		return nil, callError(jsonrpc.MethodSessionPrompt, resp.Error)
	}
	return resp, nil
}

// SessionIDFromResult pulls the session id out of a session/new result,
// accepting either an object carrying a sessionId field or a bare string.
func SessionIDFromResult(result json.RawMessage) (string, bool) {
	if len(result) == 0 {
		return "", false
	}

	var obj jsonrpc.SessionNewResult
	if err := json.Unmarshal(result, &obj); err == nil && obj.SessionID != "" {
		return obj.SessionID, true
	}

	var bare string
	if err := json.Unmarshal(result, &bare); err == nil && bare != "" {
		return bare, true
	}

	return "", false
}
