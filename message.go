package chatbridge

import (
	"bytes"
	"encoding/json"
)

// Role is the message role in a chat (system, user, assistant, tool).
type Role string

// Chat message roles.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Content part types accepted in array-valued message content.
const (
	PartText     = "text"
	PartImageURL = "image_url"
	PartImage    = "image"
	PartFile     = "file"
)

// URLRef is the {"url": "..."} object used by image_url and file parts.
type URLRef struct {
	URL string `json:"url"`
}

// ContentPart is one element of array-valued message content.
type ContentPart struct {
	Type     string  `json:"type"`
	Text     string  `json:"text,omitempty"`
	ImageURL *URLRef `json:"image_url,omitempty"`
	FileURL  *URLRef `json:"file_url,omitempty"`
	// Image holds an uploaded attachment id (provider-side parts only).
	Image string `json:"image,omitempty"`
}

// Content is message content: either plain text or an ordered list of parts.
// The zero value is empty text.
type Content struct {
	Text  string
	Parts []ContentPart
	// IsParts reports that the wire form was an array (possibly empty).
	IsParts bool
}

// TextContent returns string content.
func TextContent(s string) Content { return Content{Text: s} }

// PartsContent returns array content.
func PartsContent(parts ...ContentPart) Content {
	return Content{Parts: parts, IsParts: true}
}

// String returns the text of plain content, or the concatenated text parts of array content.
func (c Content) String() string {
	if !c.IsParts {
		return c.Text
	}
	var b bytes.Buffer
	for _, p := range c.Parts {
		if p.Type == PartText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// MarshalJSON implements json.Marshaler.
func (c Content) MarshalJSON() ([]byte, error) {
	if c.IsParts {
		if c.Parts == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

// UnmarshalJSON accepts a string, an array of parts, or null. Array elements that are not
// objects are skipped rather than failing the whole message.
func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*c = Content{}
	switch {
	case len(data) == 0, bytes.Equal(data, []byte("null")):
		return nil
	case data[0] == '"':
		return json.Unmarshal(data, &c.Text)
	case data[0] == '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		c.IsParts = true
		c.Parts = make([]ContentPart, 0, len(raw))
		for _, r := range raw {
			var p ContentPart
			if json.Unmarshal(r, &p) != nil {
				continue
			}
			c.Parts = append(c.Parts, p)
		}
		return nil
	default:
		// Numbers, booleans and objects are kept verbatim as text.
		c.Text = string(data)
		return nil
	}
}

// FunctionCall is the function part of a tool call.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCall is a tool-call announcement in an assistant message, or an emitted tool call
// in a completion. Index is set only in streamed deltas.
type ToolCall struct {
	Index    *int         `json:"index,omitempty"`
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type,omitempty"`
	Function FunctionCall `json:"function"`
}

// Message is a standard-protocol conversation message.
type Message struct {
	Role       Role       `json:"role"`
	Content    Content    `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// FunctionDefinition describes a callable function offered to the model.
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"` // JSON Schema for parameters
	Strict      bool           `json:"strict,omitempty"`
}

// Tool is a standard-protocol tool definition. Only type "function" is meaningful.
type Tool struct {
	Type     string             `json:"type"`
	Function FunctionDefinition `json:"function"`
}

// ProviderMessage is one message of the provider payload.
type ProviderMessage struct {
	Role    Role    `json:"role"`
	Content Content `json:"content"`
}

// Attachment is an uploaded file or image reference returned by the provider.
type Attachment struct {
	ID   string `json:"id"`
	Type string `json:"type"` // "image" or "file"
	Name string `json:"name,omitempty"`
}

// ContentPart returns the provider content part referencing the attachment.
func (a Attachment) ContentPart() ContentPart {
	return ContentPart{Type: a.Type, Image: a.ID}
}

// PromptText concatenates the text of provider messages: string content as-is, text parts
// joined by newline. The provider receives this as its prompt; usage counting uses it too.
func PromptText(msgs []ProviderMessage) string {
	var b bytes.Buffer
	for _, m := range msgs {
		if !m.Content.IsParts {
			b.WriteString(m.Content.Text)
			continue
		}
		first := true
		for _, p := range m.Content.Parts {
			if p.Type != PartText {
				continue
			}
			if !first {
				b.WriteByte('\n')
			}
			b.WriteString(p.Text)
			first = false
		}
	}
	return b.String()
}

// FileURLs returns file and image URLs referenced by the last message, in order.
func FileURLs(msgs []Message) []string {
	if len(msgs) == 0 {
		return nil
	}
	last := msgs[len(msgs)-1]
	var out []string
	for _, p := range last.Content.Parts {
		switch {
		case p.Type == PartFile && p.FileURL != nil && p.FileURL.URL != "":
			out = append(out, p.FileURL.URL)
		case p.Type == PartImageURL && p.ImageURL != nil && p.ImageURL.URL != "":
			out = append(out, p.ImageURL.URL)
		}
	}
	return out
}
