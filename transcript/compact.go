// Package transcript folds a multi-role conversation into the single tagged transcript the
// provider accepts.
package transcript

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/skosovsky/chatbridge"
	"github.com/skosovsky/chatbridge/toolparse"
)

// NonTextPolicy decides how non-text parts of array content appear in the transcript.
type NonTextPolicy string

// Non-text part policies.
const (
	DropNonText        NonTextPolicy = "drop"
	PlaceholderNonText NonTextPolicy = "placeholder"
)

// ParseNonTextPolicy maps a configuration value to a policy. Unknown values drop.
func ParseNonTextPolicy(s string) NonTextPolicy {
	if NonTextPolicy(strings.ToLower(strings.TrimSpace(s))) == PlaceholderNonText {
		return PlaceholderNonText
	}
	return DropNonText
}

//go:embed tool_use.tmpl
var toolUseSource string

var toolUseTemplate = template.Must(template.New("tool_use").Funcs(funcMap()).Parse(toolUseSource))

// Option configures Compact (functional options pattern).
type Option func(*compactor)

// WithNonTextPolicy sets how image and file parts are rendered. Default is DropNonText.
func WithNonTextPolicy(p NonTextPolicy) Option {
	return func(c *compactor) {
		c.policy = p
	}
}

// WithToolTag sets the outer tag name taught to the provider and used in tool result lines.
func WithToolTag(tag string) Option {
	return func(c *compactor) {
		if tag != "" {
			c.toolTag = tag
		}
	}
}

type compactor struct {
	policy  NonTextPolicy
	toolTag string
}

// Compact returns the provider payload for one request: the system messages (forwarded, or
// one synthesized tool-use instruction when tools are offered and none exist) followed by
// exactly one user message carrying the tagged transcript and attachment parts.
// Compact never fails; unmatched tool results fall back to their raw tool_call_id.
func Compact(
	cfg *chatbridge.ChatConfig,
	msgs []chatbridge.Message,
	attachments []chatbridge.Attachment,
	opts ...Option,
) []chatbridge.ProviderMessage {
	c := compactor{policy: DropNonText, toolTag: toolparse.DefaultToolTag}
	for _, opt := range opts {
		opt(&c)
	}

	var out []chatbridge.ProviderMessage
	var rest []chatbridge.Message
	for _, m := range msgs {
		if m.Role == chatbridge.RoleSystem {
			out = append(out, chatbridge.ProviderMessage{Role: chatbridge.RoleSystem, Content: m.Content})
			continue
		}
		rest = append(rest, m)
	}
	if len(out) == 0 && cfg.HasTools() {
		out = append(out, chatbridge.ProviderMessage{
			Role:    chatbridge.RoleSystem,
			Content: chatbridge.TextContent(c.instruction(cfg.Tools)),
		})
	}

	text := c.transcript(rest)
	if cfg.WantsJSON() && !cfg.HasTools() {
		text += formatInstruction(cfg.ResponseFormat.JSONSchema)
	}
	parts := make([]chatbridge.ContentPart, 0, 1+len(attachments))
	parts = append(parts, chatbridge.ContentPart{Type: chatbridge.PartText, Text: text})
	for _, a := range attachments {
		parts = append(parts, a.ContentPart())
	}
	return append(out, chatbridge.ProviderMessage{
		Role:    chatbridge.RoleUser,
		Content: chatbridge.PartsContent(parts...),
	})
}

func (c *compactor) transcript(msgs []chatbridge.Message) string {
	var b strings.Builder
	names := make(map[string]string) // tool_call_id -> function name
	for _, m := range msgs {
		switch {
		case m.Role == chatbridge.RoleTool:
			name, ok := names[m.ToolCallID]
			if !ok {
				name = m.ToolCallID
			}
			writeTagged(&b, fmt.Sprintf("[%s for '%s'] Result:", c.toolTag, name), m.Content.String())
		case m.Role == chatbridge.RoleAssistant && len(m.ToolCalls) > 0:
			for _, tc := range m.ToolCalls {
				if tc.ID != "" && tc.Function.Name != "" {
					names[tc.ID] = tc.Function.Name
				}
			}
		case m.Content.IsParts:
			role := roleOf(m)
			for _, p := range m.Content.Parts {
				if p.Type == chatbridge.PartText {
					writeTagged(&b, role, p.Text)
					continue
				}
				if line, ok := c.placeholder(p); ok {
					writeTagged(&b, role, line)
				}
			}
		default:
			writeTagged(&b, roleOf(m), m.Content.Text)
		}
	}
	return b.String()
}

func (c *compactor) placeholder(p chatbridge.ContentPart) (string, bool) {
	if c.policy != PlaceholderNonText {
		return "", false
	}
	switch {
	case p.Type == chatbridge.PartImageURL && p.ImageURL != nil:
		return "[image: " + p.ImageURL.URL + "]", true
	case p.Type == chatbridge.PartFile && p.FileURL != nil:
		return "[file: " + p.FileURL.URL + "]", true
	case p.Type == chatbridge.PartImage && p.Image != "":
		return "[image: " + p.Image + "]", true
	default:
		return "", false
	}
}

func (c *compactor) instruction(tools []chatbridge.Tool) string {
	data := struct {
		ToolTag   string
		NameParam toolparse.ParamName
		ArgsParam toolparse.ParamName
		Tools     []chatbridge.Tool
	}{c.toolTag, toolparse.ParamToolName, toolparse.ParamArguments, tools}

	var buf bytes.Buffer
	if err := toolUseTemplate.Execute(&buf, data); err != nil {
		// Only a schema that cannot be marshaled gets here; list the names alone.
		buf.Reset()
		buf.WriteString("AVAILABLE TOOLS\n")
		for _, t := range tools {
			buf.WriteString("- " + t.Function.Name + "\n")
		}
	}
	return buf.String()
}

// formatInstruction asks for a fenced JSON answer, quoting the schema when one was given.
func formatInstruction(f *chatbridge.JSONSchemaFormat) string {
	var b strings.Builder
	b.WriteString("Reply with a single JSON value inside a ```json fenced code block and nothing else.")
	if f != nil && len(bytes.TrimSpace(f.Schema)) > 0 {
		var compact bytes.Buffer
		if json.Compact(&compact, f.Schema) == nil {
			b.WriteString(" The value must conform to this JSON Schema:\n")
			b.Write(compact.Bytes())
		}
	}
	var out strings.Builder
	writeTagged(&out, string(chatbridge.RoleSystem), b.String())
	return out.String()
}

func roleOf(m chatbridge.Message) string {
	if m.Role == "" {
		return string(chatbridge.RoleUser)
	}
	return string(m.Role)
}

func writeTagged(b *strings.Builder, head, body string) {
	b.WriteString("<message>")
	b.WriteString(head)
	b.WriteByte('\n')
	b.WriteString(body)
	b.WriteString("</message>\n")
}
