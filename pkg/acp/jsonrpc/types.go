// Package jsonrpc implements JSON-RPC 2.0 over line-delimited JSON on a
// child agent process's standard input/output, as used by the Agent Client
// Protocol (ACP).
package jsonrpc

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Version is the protocol version string carried in every message.
const Version = "2.0"

// Request represents a JSON-RPC 2.0 request. A request without an ID is a
// notification and expects no response.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response represents a JSON-RPC 2.0 response. Exactly one of Result and
// Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
}

// ErrorObject represents a JSON-RPC 2.0 error payload.
type ErrorObject struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Standard JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// ACP method surface used by the bridge.
const (
	MethodInitialize    = "initialize"
	MethodSessionNew    = "session/new"
	MethodSessionPrompt = "session/prompt"
	MethodSessionCancel = "session/cancel"

	// Agent -> client notification carrying streamed turn updates.
	NotificationSessionUpdate = "session/update"
)

// NormalizeID collapses a wire id (number or string) to its canonical string
// form so responses can be matched against pending calls regardless of the
// surface representation the agent echoes back.
func NormalizeID(id interface{}) string {
	switch v := id.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		// encoding/json decodes numbers into float64 by default
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return strings.Trim(string(b), `"`)
	}
}

// InitializeParams for the initialize method.
type InitializeParams struct {
	ProtocolVersion    int                `json:"protocolVersion"`
	ClientCapabilities ClientCapabilities `json:"clientCapabilities"`
	ClientInfo         ClientInfo         `json:"clientInfo"`
}

// ClientCapabilities describes what the client supports.
type ClientCapabilities struct {
	Fs       *FsCapabilities `json:"fs,omitempty"`
	Terminal *bool           `json:"terminal,omitempty"`
}

// FsCapabilities describes filesystem capabilities offered to the agent.
type FsCapabilities struct {
	ReadTextFile  *bool `json:"readTextFile,omitempty"`
	WriteTextFile *bool `json:"writeTextFile,omitempty"`
}

// ClientInfo identifies the client.
type ClientInfo struct {
	Name    string `json:"name"`
	Title   string `json:"title,omitempty"`
	Version string `json:"version"`
}

// SessionNewParams for the session/new method.
type SessionNewParams struct {
	Cwd        string      `json:"cwd"`
	McpServers []McpServer `json:"mcpServers"` // required, may be empty
}

// McpServer configures an MCP server offered to the agent. Stdio servers set
// Command/Args; remote servers set URL and Type ("http" or "sse").
type McpServer struct {
	Name    string   `json:"name"`
	Command string   `json:"command,omitempty"`
	Args    []string `json:"args,omitempty"`
	URL     string   `json:"url,omitempty"`
	Type    string   `json:"type,omitempty"`
}

// SessionNewResult from the session/new method.
type SessionNewResult struct {
	SessionID string `json:"sessionId"`
}

// ContentBlock is one element of a prompt. Only text blocks are sent today.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// TextBlock builds a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: "text", Text: text}
}

// SessionPromptParams for the session/prompt method. The call completes when
// the turn is over; streamed content arrives as session/update notifications
// in the meantime.
type SessionPromptParams struct {
	SessionID string         `json:"sessionId"`
	Prompt    []ContentBlock `json:"prompt"`
}

// SessionUpdateParams is the payload of a session/update notification.
type SessionUpdateParams struct {
	SessionID string        `json:"sessionId,omitempty"`
	Update    SessionUpdate `json:"update"`
}

// SessionUpdate carries one streamed update. SessionUpdate names the update
// kind; the bridge only consumes "agent_message_chunk".
type SessionUpdate struct {
	SessionUpdate string        `json:"sessionUpdate"`
	Content       UpdateContent `json:"content"`
}

// UpdateContent is the content of an agent_message_chunk update.
type UpdateContent struct {
	Type string `json:"type,omitempty"`
	Text string `json:"text"`
}

// UpdateAgentMessageChunk is the session/update kind carrying streamed
// assistant text.
const UpdateAgentMessageChunk = "agent_message_chunk"
