package shaper

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skosovsky/chatbridge"
)

// collected is what a standard-protocol client reassembles from deltas.
type collected struct {
	content string
	names   map[int]string
	ids     map[int]string
	args    map[int]string
	finish  string
	usage   *chatbridge.Usage
	roles   int
}

func collect(t *testing.T, chunks []chatbridge.ChatCompletionChunk) collected {
	t.Helper()
	c := collected{names: map[int]string{}, ids: map[int]string{}, args: map[int]string{}}
	for _, ch := range chunks {
		require.Len(t, ch.Choices, 1)
		d := ch.Choices[0].Delta
		if d.Role != "" {
			c.roles++
		}
		c.content += d.Content
		for _, tc := range d.ToolCalls {
			require.NotNil(t, tc.Index)
			if tc.Function.Name != "" {
				c.names[*tc.Index] = tc.Function.Name
			}
			if prev, ok := c.ids[*tc.Index]; ok {
				require.Equal(t, prev, tc.ID, "tool call id changed between deltas")
			}
			c.ids[*tc.Index] = tc.ID
			c.args[*tc.Index] += tc.Function.Arguments
		}
		if ch.Choices[0].FinishReason != nil {
			c.finish = *ch.Choices[0].FinishReason
			c.usage = ch.Usage
		}
	}
	return c
}

func streamAll(st *Streamer, increments []string) []chatbridge.ChatCompletionChunk {
	var out []chatbridge.ChatCompletionChunk
	for _, inc := range increments {
		out = append(out, st.Feed(inc)...)
	}
	return append(out, st.Finish()...)
}

func TestStreamer_PlainPassthrough(t *testing.T) {
	t.Parallel()
	st := newTestShaper().NewStream(&chatbridge.ChatConfig{ModelName: "m"}, "abcd")
	chunks := streamAll(st, []string{"Hel", "lo <b>", ""})
	require.Len(t, chunks, 3)
	assert.Equal(t, chatbridge.RoleAssistant, chunks[0].Choices[0].Delta.Role)
	assert.Empty(t, chunks[1].Choices[0].Delta.Role)
	got := collect(t, chunks)
	assert.Equal(t, "Hello <b>", got.content)
	assert.Equal(t, chatbridge.FinishStop, got.finish)
	require.NotNil(t, got.usage)
	assert.Equal(t, 1, got.usage.PromptTokens)
	assert.Equal(t, 1, got.roles)
	for _, ch := range chunks {
		assert.Equal(t, st.ID(), ch.ID)
		assert.Equal(t, chatbridge.ObjectChunk, ch.Object)
		assert.Equal(t, "m", ch.Model)
	}
}

func TestStreamer_ToolCallDeltas(t *testing.T) {
	t.Parallel()
	st := newTestShaper().NewStream(toolConfig(), "")
	var chunks []chatbridge.ChatCompletionChunk

	chunks = append(chunks, st.Feed("Let me look.\n<use_func")...)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Let me look.\n", chunks[0].Choices[0].Delta.Content)

	next := st.Feed("tion_tool>\n<tool_name>lookup</tool_name>\n<arguments>\n{\"q\": ")
	require.Len(t, next, 2)
	announce := next[0].Choices[0].Delta.ToolCalls[0]
	assert.Equal(t, 0, *announce.Index)
	assert.Equal(t, "call_id2", announce.ID)
	assert.Equal(t, "function", announce.Type)
	assert.Equal(t, chatbridge.FunctionCall{Name: "lookup"}, announce.Function)
	args := next[1].Choices[0].Delta.ToolCalls[0]
	assert.Equal(t, "call_id2", args.ID)
	assert.Equal(t, `{"q":`, args.Function.Arguments)
	assert.Empty(t, args.Function.Name)
	chunks = append(chunks, next...)

	next = st.Feed("\"go\"}\n</arguments>\n</use_function_tool>")
	require.Len(t, next, 1)
	assert.Equal(t, ` "go"}`, next[0].Choices[0].Delta.ToolCalls[0].Function.Arguments)
	chunks = append(chunks, next...)

	chunks = append(chunks, st.Finish()...)
	got := collect(t, chunks)
	assert.Equal(t, "Let me look.\n", got.content)
	assert.Equal(t, map[int]string{0: "lookup"}, got.names)
	assert.Equal(t, map[int]string{0: `{"q": "go"}`}, got.args)
	assert.Equal(t, chatbridge.FinishToolCalls, got.finish)
	assert.Nil(t, st.Finish(), "finish is idempotent")
}

func TestStreamer_MatchesSingleShotAtEveryByteSplit(t *testing.T) {
	t.Parallel()
	reply := toolReply + "\nafter <x> done <use"
	want := newTestShaper().Complete(toolConfig(), "", reply).Choices[0]
	for i := 0; i <= len(reply); i++ {
		st := newTestShaper().NewStream(toolConfig(), "")
		got := collect(t, streamAll(st, []string{reply[:i], reply[i:]}))
		require.Equal(t, want.Message.Content, got.content, "split at %d", i)
		require.Equal(t, want.FinishReason, got.finish, "split at %d", i)
		require.Len(t, got.args, 1, "split at %d", i)
		require.Equal(t, want.Message.ToolCalls[0].Function.Arguments, got.args[0], "split at %d", i)
		require.Equal(t, want.Message.ToolCalls[0].Function.Name, got.names[0], "split at %d", i)
		require.Equal(t, 1, got.roles)
	}
}

func TestStreamer_ByteAtATimeArgumentsNeverResent(t *testing.T) {
	t.Parallel()
	st := newTestShaper().NewStream(toolConfig(), "")
	var increments []string
	for i := 0; i < len(toolReply); i++ {
		increments = append(increments, toolReply[i:i+1])
	}
	chunks := streamAll(st, increments)
	got := collect(t, chunks)
	assert.Equal(t, `{"q": "go"}`, got.args[0])
	raw, err := json.Marshal(chunks)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(raw), `"name":"lookup"`), "name is announced once")
}

func TestStreamer_SecondToolGetsNextIndex(t *testing.T) {
	t.Parallel()
	one := "<use_function_tool><tool_name>a</tool_name><arguments>{}</arguments></use_function_tool>"
	two := "<use_function_tool><tool_name>b</tool_name><arguments>[]</arguments></use_function_tool>"
	got := collect(t, streamAll(newTestShaper().NewStream(toolConfig(), ""), []string{one, two}))
	assert.Equal(t, map[int]string{0: "a", 1: "b"}, got.names)
	assert.Equal(t, map[int]string{0: "{}", 1: "[]"}, got.args)
	assert.NotEqual(t, got.ids[0], got.ids[1])
}

func TestStreamer_HeldPrefixReleasedOnFinish(t *testing.T) {
	t.Parallel()
	st := newTestShaper().NewStream(toolConfig(), "")
	first := st.Feed("a <use_")
	require.Len(t, first, 1)
	assert.Equal(t, "a ", first[0].Choices[0].Delta.Content, "tag prefix is held back")
	assert.Empty(t, st.Feed(""))
	got := collect(t, append(first, st.Finish()...))
	assert.Equal(t, "a <use_", got.content)
	assert.Equal(t, chatbridge.FinishStop, got.finish)
}

func TestStreamer_UnterminatedToolFinishesStop(t *testing.T) {
	t.Parallel()
	st := newTestShaper().NewStream(toolConfig(), "")
	got := collect(t, streamAll(st, []string{"<use_function_tool><tool_name>lookup</tool_name><arguments>{\"q\""}))
	assert.Equal(t, chatbridge.FinishStop, got.finish)
	assert.Equal(t, `{"q"`, got.args[0])
}

func TestStreamer_CitationsAndFail(t *testing.T) {
	t.Parallel()
	st := newTestShaper().NewStream(&chatbridge.ChatConfig{}, "")
	st.AddCitations(chatbridge.Citation{URL: "https://a", Title: "A"})
	st.AddCitations(chatbridge.Citation{URL: "https://b"})
	final := st.Finish()
	require.Len(t, final, 1)
	assert.Len(t, final[0].Citations, 2)

	failing := newTestShaper().NewStream(&chatbridge.ChatConfig{}, "")
	_ = failing.Feed("partial")
	c := failing.Fail(errors.New("upstream closed"))
	require.NotNil(t, c.Error)
	assert.Equal(t, "upstream closed", c.Error.Message)
	require.NotNil(t, c.Choices[0].FinishReason)
	assert.Nil(t, failing.Feed("more"))
	assert.Nil(t, failing.Finish())
}
