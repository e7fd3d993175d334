package websocket

import "encoding/json"

// Frame types exchanged with front-ends. Inbound frames carry an action in
// Type; outbound frames reuse the same envelope.
const (
	// Inbound.
	FrameChat     = "chat"
	FrameHistory  = "history"
	FrameProjects = "projects"
	FrameLaunch   = "launch"
	FrameExec     = "exec"

	// Outbound.
	FrameMessage      = "message"
	FrameNotification = "notification"
	FrameError        = "error"
	FrameResult       = "result"
)

// Frame is the wire envelope for gateway traffic.
type Frame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"` // client correlation id, echoed on replies
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ChatPayload is the payload of an inbound chat frame.
type ChatPayload struct {
	ChatID   string `json:"chat_id"`
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	Project  string `json:"project"`
	Content  string `json:"content"`
}

// HistoryPayload requests stored messages for a chat.
type HistoryPayload struct {
	ChatID string `json:"chat_id"`
	Limit  int    `json:"limit"`
}

// LaunchPayload starts an agent session for a project.
type LaunchPayload struct {
	Project string `json:"project"`
}

// ExecPayload runs a one-off command inside a project.
type ExecPayload struct {
	Project string `json:"project"`
	Command string `json:"command"`
}

// ErrorPayload is the payload of an outbound error frame.
type ErrorPayload struct {
	Message string `json:"message"`
}

func newFrame(frameType, id string, payload any) (*Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Frame{Type: frameType, ID: id, Payload: data}, nil
}
