package chatbridge

import (
	"bytes"
	"encoding/json"
	"strings"
)

// ChatType is the provider conversation mode.
type ChatType string

// Provider chat types.
const (
	ChatTypeText      ChatType = "t2t"
	ChatTypeSearch    ChatType = "search"
	ChatTypeArtifacts ChatType = "artifacts"
)

// Response format types.
const (
	FormatText       = "text"
	FormatJSONSchema = "json_schema"
)

// Tool choice modes.
const (
	ToolChoiceAuto     = "auto"
	ToolChoiceNone     = "none"
	ToolChoiceRequired = "required"
	ToolChoiceFunction = "function"
)

// Features are the toggles decoded from model id suffixes.
type Features struct {
	Thinking  bool
	Searching bool
}

// JSONSchemaFormat is the json_schema member of a response_format descriptor.
type JSONSchemaFormat struct {
	Name        string          `json:"name,omitempty"`
	Description string          `json:"description,omitempty"`
	Schema      json.RawMessage `json:"schema,omitempty"`
	Strict      bool            `json:"strict,omitempty"`
}

// ResponseFormat is the desired response shape.
type ResponseFormat struct {
	Type       string            `json:"type"`
	JSONSchema *JSONSchemaFormat `json:"json_schema,omitempty"`
}

// ToolChoice is the tool-choice policy. Function is set only for Mode ToolChoiceFunction.
type ToolChoice struct {
	Mode     string
	Function string
}

// ChatConfig is the per-request configuration resolved from a ChatRequest.
// Exactly one of {len(Tools) == 0, IsToolCalling, IsToolCallingDone} holds.
type ChatConfig struct {
	ModelName         string
	Features          Features
	ResponseFormat    ResponseFormat
	ChatID            string // empty until the provider assigns a conversation
	ChatType          ChatType
	Stream            bool
	Tools             []Tool
	ToolChoice        ToolChoice
	IsToolCalling     bool
	IsToolCallingDone bool
}

// HasTools reports whether the request offered any tools.
func (c *ChatConfig) HasTools() bool { return len(c.Tools) > 0 }

// WantsJSON reports whether the response should be schema-constrained JSON.
func (c *ChatConfig) WantsJSON() bool { return c.ResponseFormat.Type == FormatJSONSchema }

// ResolveConfig decodes the compound model id and optional request flags into a ChatConfig.
// It never fails: absent or malformed optional fields take their defaults.
func ResolveConfig(req *ChatRequest, opts ...Option) *ChatConfig {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	cfg := &ChatConfig{
		ResponseFormat: decodeResponseFormat(req.ResponseFormat),
		Stream:         decodeBool(req.Stream),
		Tools:          decodeTools(req.Tools),
		ToolChoice:     decodeToolChoice(req.ToolChoice),
	}
	cfg.ModelName, cfg.Features = o.splitModel(req.Model)

	if cfg.HasTools() {
		hasResult := false
		for _, m := range req.Messages {
			if m.Role == RoleTool {
				hasResult = true
				break
			}
		}
		cfg.IsToolCalling = !hasResult
		cfg.IsToolCallingDone = hasResult
	}

	switch {
	case cfg.Features.Searching:
		cfg.ChatType = ChatTypeSearch
	case cfg.WantsJSON() || cfg.IsToolCalling:
		cfg.ChatType = ChatTypeArtifacts
	default:
		cfg.ChatType = ChatTypeText
	}
	return cfg
}

// splitModel strips the trailing run of allow-listed suffix tokens from id.
func (o *options) splitModel(id string) (string, Features) {
	var f Features
	tokens := strings.Split(id, o.separator)
	end := len(tokens)
	for end > 0 {
		switch tokens[end-1] {
		case o.thinkToken:
			f.Thinking = true
		case o.searchToken:
			f.Searching = true
		default:
			return strings.Join(tokens[:end], o.separator), f
		}
		end--
	}
	return "", f
}

func decodeBool(raw json.RawMessage) bool {
	var b bool
	if json.Unmarshal(raw, &b) != nil {
		return false
	}
	return b
}

func decodeResponseFormat(raw json.RawMessage) ResponseFormat {
	var rf ResponseFormat
	if json.Unmarshal(raw, &rf) != nil || rf.Type == "" {
		return ResponseFormat{Type: FormatText}
	}
	return rf
}

func decodeTools(raw json.RawMessage) []Tool {
	var tools []Tool
	if json.Unmarshal(raw, &tools) != nil {
		return nil
	}
	out := tools[:0]
	for _, t := range tools {
		if t.Function.Name == "" {
			continue
		}
		if t.Type == "" {
			t.Type = "function"
		}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func decodeToolChoice(raw json.RawMessage) ToolChoice {
	raw = bytes.TrimSpace(raw)
	var mode string
	if json.Unmarshal(raw, &mode) == nil && mode != "" {
		return ToolChoice{Mode: mode}
	}
	var obj struct {
		Type     string `json:"type"`
		Function struct {
			Name string `json:"name"`
		} `json:"function"`
	}
	if json.Unmarshal(raw, &obj) == nil && obj.Function.Name != "" {
		return ToolChoice{Mode: ToolChoiceFunction, Function: obj.Function.Name}
	}
	return ToolChoice{Mode: ToolChoiceAuto}
}
