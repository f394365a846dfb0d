package shaper

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/skosovsky/chatbridge"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id%d", n)
	}
}

func newTestShaper(opts ...Option) *Shaper {
	base := []Option{
		WithIDGenerator(sequentialIDs()),
		WithClock(func() time.Time { return time.Unix(1700000000, 0) }),
	}
	return New(append(base, opts...)...)
}

func toolConfig() *chatbridge.ChatConfig {
	return &chatbridge.ChatConfig{
		ModelName: "deep_seek",
		Tools: []chatbridge.Tool{{Type: "function", Function: chatbridge.FunctionDefinition{
			Name: "lookup",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"q": map[string]any{"type": "string"}},
				"required":   []any{"q"},
			},
		}}},
		IsToolCalling: true,
	}
}

const toolReply = "Let me look.\n<use_function_tool>\n<tool_name>lookup</tool_name>\n<arguments>\n{\"q\": \"go\"}\n</arguments>\n</use_function_tool>"

func TestComplete_ToolCall(t *testing.T) {
	t.Parallel()
	c := newTestShaper().Complete(toolConfig(), "prompt", toolReply)
	assert.Equal(t, "chatcmpl-id1", c.ID)
	assert.Equal(t, chatbridge.ObjectCompletion, c.Object)
	assert.Equal(t, int64(1700000000), c.Created)
	assert.Equal(t, "deep_seek", c.Model)
	require.Len(t, c.Choices, 1)
	ch := c.Choices[0]
	assert.Equal(t, chatbridge.FinishToolCalls, ch.FinishReason)
	assert.Equal(t, chatbridge.RoleAssistant, ch.Message.Role)
	assert.Equal(t, "Let me look.\n", ch.Message.Content)
	require.Len(t, ch.Message.ToolCalls, 1)
	assert.Equal(t, chatbridge.ToolCall{
		ID:       "call_id2",
		Type:     "function",
		Function: chatbridge.FunctionCall{Name: "lookup", Arguments: `{"q": "go"}`},
	}, ch.Message.ToolCalls[0])
}

func TestComplete_UnterminatedToolDropped(t *testing.T) {
	t.Parallel()
	c := newTestShaper().Complete(toolConfig(), "", "ok <use_function_tool><tool_name>lookup</tool_name><arguments>{")
	assert.Equal(t, chatbridge.FinishStop, c.Choices[0].FinishReason)
	assert.Empty(t, c.Choices[0].Message.ToolCalls)
	assert.Equal(t, "ok ", c.Choices[0].Message.Content)
}

func TestComplete_PlainText(t *testing.T) {
	t.Parallel()
	text := "plain <use_function_tool> text is not parsed without tools"
	c := newTestShaper().Complete(&chatbridge.ChatConfig{ModelName: "m"}, "abcd", text)
	assert.Equal(t, text, c.Choices[0].Message.Content)
	assert.Equal(t, chatbridge.FinishStop, c.Choices[0].FinishReason)
	assert.Equal(t, 1, c.Usage.PromptTokens)
	assert.Positive(t, c.Usage.CompletionTokens)
	assert.Equal(t, c.Usage.PromptTokens+c.Usage.CompletionTokens, c.Usage.TotalTokens)
}

func TestComplete_SchemaExtraction(t *testing.T) {
	t.Parallel()
	cfg := &chatbridge.ChatConfig{ResponseFormat: chatbridge.ResponseFormat{Type: chatbridge.FormatJSONSchema}}
	tests := []struct {
		name string
		text string
		want string
	}{
		{"fenced with commentary", "Here you go:\n```json\n{\"x\":1}\n```\nThanks!", `{"x":1}`},
		{"whole text", "  { \"x\" : [1, 2] }\n", `{"x":[1,2]}`},
		{"not json", "not json at all", "not json at all"},
		{"broken fence", "```json\n{\"x\":\n```", "```json\n{\"x\":\n```"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := newTestShaper().Complete(cfg, "", tt.text)
			assert.Equal(t, tt.want, c.Choices[0].Message.Content)
		})
	}
}

func TestComplete_SchemaMismatchIsLogged(t *testing.T) {
	t.Parallel()
	core, logs := observer.New(zap.WarnLevel)
	cfg := &chatbridge.ChatConfig{ResponseFormat: chatbridge.ResponseFormat{
		Type: chatbridge.FormatJSONSchema,
		JSONSchema: &chatbridge.JSONSchemaFormat{
			Name:   "point",
			Schema: json.RawMessage(`{"type":"object","required":["y"]}`),
		},
	}}
	c := newTestShaper(WithLogger(zap.New(core))).Complete(cfg, "", `{"x":1}`)
	assert.Equal(t, `{"x":1}`, c.Choices[0].Message.Content, "mismatch never changes content")
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "structured output does not match schema", logs.All()[0].Message)
}

func TestComplete_ToolArgumentsMismatchIsLogged(t *testing.T) {
	t.Parallel()
	core, logs := observer.New(zap.WarnLevel)
	reply := "<use_function_tool><tool_name>lookup</tool_name><arguments>{}</arguments></use_function_tool>"
	c := newTestShaper(WithLogger(zap.New(core))).Complete(toolConfig(), "", reply)
	require.Len(t, c.Choices[0].Message.ToolCalls, 1)
	assert.Equal(t, 1, logs.FilterMessage("tool arguments do not match parameters").Len())
}

func TestExtractJSON(t *testing.T) {
	t.Parallel()
	got, ok := ExtractJSON("a ```json {\"x\":1} ``` b ```json [2] ```")
	require.True(t, ok)
	assert.Equal(t, `{"x":1}`, got, "first fence wins")

	_, ok = ExtractJSON("")
	assert.False(t, ok)
}

func TestValidator(t *testing.T) {
	t.Parallel()
	v := NewValidator()
	schema := map[string]any{"type": "object", "required": []any{"a"}}
	require.NoError(t, v.Validate(schema, `{"a":1}`))
	err := v.Validate(schema, `{}`)
	require.ErrorIs(t, err, ErrSchemaMismatch)
	assert.Contains(t, err.Error(), "a")

	require.NoError(t, v.Validate(`{"type":"string"}`, `"s"`))
	require.NoError(t, v.Validate(json.RawMessage(`{ "type" : "string" }`), `"s"`), "equivalent schema served from cache")

	err = v.Validate(`{not a schema`, `{}`)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSchemaMismatch)
}

func TestDumpErrors(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "a", dumpErrors([]string{"a"}))
	assert.Equal(t, "a; b; c; ... and 2 more", dumpErrors(strings.Split("a b c d e", " ")))
}
