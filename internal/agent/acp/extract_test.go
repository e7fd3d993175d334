package acp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResultText(t *testing.T) {
	tests := []struct {
		name   string
		result string
		want   string
		found  bool
	}{
		{
			name:   "content array",
			result: `{"content":[{"type":"text","text":"from array"}]}`,
			want:   "from array",
			found:  true,
		},
		{
			name:   "message content",
			result: `{"message":{"content":"from message"}}`,
			want:   "from message",
			found:  true,
		},
		{
			name:   "flat text field",
			result: `{"text":"flat"}`,
			want:   "flat",
			found:  true,
		},
		{
			name:   "bare string",
			result: `"just a string"`,
			want:   "just a string",
			found:  true,
		},
		{
			name: "content array wins over flat text",
			result: `{"content":[{"text":"first"}],"text":"second"}`,
			want:  "first",
			found: true,
		},
		{
			name:   "no text anywhere",
			result: `{"stopReason":"end_turn"}`,
			found:  false,
		},
		{
			name:   "empty result",
			result: ``,
			found:  false,
		},
		{
			name:   "empty content array",
			result: `{"content":[]}`,
			found:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := ResultText(json.RawMessage(tt.result))
			assert.Equal(t, tt.found, found)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSessionIDFromResult(t *testing.T) {
	if id, ok := SessionIDFromResult(json.RawMessage(`{"sessionId":"ses-1"}`)); !ok || id != "ses-1" {
		t.Errorf("object form: got %q, %v", id, ok)
	}
	if id, ok := SessionIDFromResult(json.RawMessage(`"ses-2"`)); !ok || id != "ses-2" {
		t.Errorf("bare string form: got %q, %v", id, ok)
	}
	if _, ok := SessionIDFromResult(json.RawMessage(`{"other":"x"}`)); ok {
		t.Error("expected no session id in unrelated object")
	}
	if _, ok := SessionIDFromResult(nil); ok {
		t.Error("expected no session id in empty result")
	}
}
