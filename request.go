package chatbridge

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ChatRequest is a decoded standard-protocol chat-completion request.
// Optional fields are kept raw so the resolver can apply loose defaults.
type ChatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"-"`
	Stream         json.RawMessage `json:"stream,omitempty"`
	ResponseFormat json.RawMessage `json:"response_format,omitempty"`
	Tools          json.RawMessage `json:"tools,omitempty"`
	ToolChoice     json.RawMessage `json:"tool_choice,omitempty"`
	RawMessages    json.RawMessage `json:"messages,omitempty"`
}

// DecodeRequest parses a request body. Only the envelope must be a JSON object; malformed
// optional fields are left for ResolveConfig to default. Messages that fail to decode are skipped.
func DecodeRequest(body []byte) (*ChatRequest, error) {
	var req ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	req.Messages = decodeMessages(req.RawMessages)
	return &req, nil
}

func decodeMessages(raw json.RawMessage) []Message {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil
	}
	var items []json.RawMessage
	if json.Unmarshal(raw, &items) != nil {
		return nil
	}
	msgs := make([]Message, 0, len(items))
	for _, item := range items {
		var m Message
		if json.Unmarshal(item, &m) != nil {
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs
}
