// Package main implements a mock agent binary that speaks the line-delimited
// JSON-RPC agent protocol over stdin/stdout. It generates simulated streamed
// replies for manual testing of the daemon without a real coding agent.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/thalassa-ai/thalassa/pkg/acp/jsonrpc"
)

// sessionID is unique per process; every bridge spawns its own mock agent.
var sessionID = fmt.Sprintf("mock-session-%d", os.Getpid())

func main() {
	scanner := bufio.NewScanner(os.Stdin)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	enc := json.NewEncoder(os.Stdout)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req jsonrpc.Request
		if err := json.Unmarshal(line, &req); err != nil {
			continue
		}

		switch req.Method {
		case jsonrpc.MethodInitialize:
			respond(enc, req.ID, `{"protocolVersion":1}`)
		case jsonrpc.MethodSessionNew:
			respond(enc, req.ID, fmt.Sprintf(`{"sessionId":%q}`, sessionID))
		case jsonrpc.MethodSessionPrompt:
			handlePrompt(enc, req)
		case jsonrpc.MethodSessionCancel:
			// Cancellation carries no reply.
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "mock-agent: scanner error: %v\n", err)
		os.Exit(1)
	}
}

func respond(enc *json.Encoder, id interface{}, result string) {
	_ = enc.Encode(&jsonrpc.Response{
		JSONRPC: jsonrpc.Version,
		ID:      id,
		Result:  json.RawMessage(result),
	})
}

func respondError(enc *json.Encoder, id interface{}, code int, message string) {
	_ = enc.Encode(&jsonrpc.Response{
		JSONRPC: jsonrpc.Version,
		ID:      id,
		Error:   &jsonrpc.ErrorObject{Code: code, Message: message},
	})
}

// handlePrompt streams a canned reply back as agent_message_chunk updates.
// The prompt text selects a scenario: "error" fails the call, "empty"
// completes without chunks, "slow" inserts delays between chunks.
func handlePrompt(enc *json.Encoder, req jsonrpc.Request) {
	var params jsonrpc.SessionPromptParams
	_ = json.Unmarshal(req.Params, &params)

	prompt := ""
	for _, block := range params.Prompt {
		if block.Type == "text" {
			prompt += block.Text
		}
	}

	switch {
	case strings.Contains(prompt, "error"):
		respondError(enc, req.ID, -32603, "mock agent failure")
		return
	case strings.Contains(prompt, "empty"):
		respond(enc, req.ID, `{"stopReason":"end_turn"}`)
		return
	}

	chunks := []string{"I looked at ", "your request:\n", prompt, "\nAll done."}
	delay := time.Duration(0)
	if strings.Contains(prompt, "slow") {
		delay = 500 * time.Millisecond
	}

	for _, chunk := range chunks {
		notify(enc, chunk)
		if delay > 0 {
			time.Sleep(delay)
		}
	}
	respond(enc, req.ID, `{"stopReason":"end_turn"}`)
}

func notify(enc *json.Encoder, text string) {
	params, _ := json.Marshal(jsonrpc.SessionUpdateParams{
		SessionID: sessionID,
		Update: jsonrpc.SessionUpdate{
			SessionUpdate: jsonrpc.UpdateAgentMessageChunk,
			Content:       jsonrpc.UpdateContent{Type: "text", Text: text},
		},
	})
	_ = enc.Encode(&jsonrpc.Request{
		JSONRPC: jsonrpc.Version,
		Method:  jsonrpc.NotificationSessionUpdate,
		Params:  params,
	})
}
