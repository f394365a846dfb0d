package shaper

import (
	"strings"

	"github.com/skosovsky/chatbridge"
	"github.com/skosovsky/chatbridge/toolparse"
)

type toolState struct {
	index     int
	id        string
	announced bool
	closed    bool
	argsSent  int
}

// Streamer converts provider increments of one response into delta chunks.
// It is not safe for concurrent use and must not be reused across responses.
type Streamer struct {
	s       *Shaper
	cfg     *chatbridge.ChatConfig
	prompt  string
	id      string
	created int64

	parser    *toolparse.Parser // nil when no tools were offered
	raw       strings.Builder
	textSent  map[int]int
	tools     map[int]*toolState
	nextTool  int
	called    bool
	roleSent  bool
	citations []chatbridge.Citation
	finished  bool
}

// NewStream starts shaping one streamed response. prompt only feeds usage.
func (s *Shaper) NewStream(cfg *chatbridge.ChatConfig, prompt string) *Streamer {
	st := &Streamer{
		s:        s,
		cfg:      cfg,
		prompt:   prompt,
		id:       s.completionID(),
		created:  s.now().Unix(),
		textSent: make(map[int]int),
		tools:    make(map[int]*toolState),
	}
	if cfg.HasTools() {
		st.parser = toolparse.New(s.parserOpts...)
	}
	return st
}

// ID returns the completion id shared by all chunks of the stream.
func (st *Streamer) ID() string { return st.id }

// AddCitations records search results to attach to the terminal chunk.
func (st *Streamer) AddCitations(cs ...chatbridge.Citation) {
	st.citations = append(st.citations, cs...)
}

// Feed consumes the next provider increment and returns the chunks it reveals, in order.
// Text that may still turn out to be a tag is held back until it is resolved.
func (st *Streamer) Feed(delta string) []chatbridge.ChatCompletionChunk {
	if st.finished || delta == "" {
		return nil
	}
	st.raw.WriteString(delta)
	if st.parser == nil {
		return []chatbridge.ChatCompletionChunk{st.chunk(chatbridge.Delta{Content: delta}, nil)}
	}
	st.parser.Write(delta)
	return st.diff(st.parser.Blocks())
}

// Finish ends the stream: any text released by end of input, then the terminal chunk with
// finish_reason, usage and citations. Later calls return nil.
func (st *Streamer) Finish() []chatbridge.ChatCompletionChunk {
	if st.finished {
		return nil
	}
	st.finished = true
	var out []chatbridge.ChatCompletionChunk
	if st.parser != nil {
		st.parser.Close()
		out = st.diff(st.parser.Blocks())
	}
	reason := chatbridge.FinishStop
	if st.called {
		reason = chatbridge.FinishToolCalls
	}
	usage := chatbridge.CountUsage(st.s.counter, st.prompt, st.raw.String())
	last := st.chunk(chatbridge.Delta{}, &reason)
	last.Usage = &usage
	last.Citations = st.citations
	return append(out, last)
}

// Fail returns a terminal chunk reporting err after streaming began.
func (st *Streamer) Fail(err error) chatbridge.ChatCompletionChunk {
	st.finished = true
	reason := chatbridge.FinishStop
	c := st.chunk(chatbridge.Delta{}, &reason)
	c.Error = &chatbridge.ChunkError{Message: err.Error(), Type: "provider_error"}
	return c
}

func (st *Streamer) diff(blocks []toolparse.Block) []chatbridge.ChatCompletionChunk {
	var out []chatbridge.ChatCompletionChunk
	for i, b := range blocks {
		switch b := b.(type) {
		case toolparse.TextBlock:
			sent := st.textSent[i]
			if len(b.Content) > sent {
				out = append(out, st.chunk(chatbridge.Delta{Content: b.Content[sent:]}, nil))
				st.textSent[i] = len(b.Content)
			}
		case toolparse.ToolUseBlock:
			out = append(out, st.diffTool(i, b)...)
		}
	}
	return out
}

func (st *Streamer) diffTool(i int, b toolparse.ToolUseBlock) []chatbridge.ChatCompletionChunk {
	ts, ok := st.tools[i]
	if !ok {
		ts = &toolState{}
		st.tools[i] = ts
	}
	var out []chatbridge.ChatCompletionChunk
	if !ts.announced {
		if b.Name == "" {
			return nil
		}
		ts.announced = true
		ts.index = st.nextTool
		ts.id = st.s.toolCallID()
		st.nextTool++
		out = append(out, st.toolChunk(ts, chatbridge.FunctionCall{Name: b.Name}))
	}
	// Trimming an open value never drops bytes the closed value keeps, so sent text stays a prefix.
	args := strings.TrimSpace(b.Arguments())
	if len(args) > ts.argsSent {
		out = append(out, st.toolChunk(ts, chatbridge.FunctionCall{Arguments: args[ts.argsSent:]}))
		ts.argsSent = len(args)
	}
	if !b.Partial && !ts.closed {
		ts.closed = true
		st.called = true
		st.s.checkArguments(st.cfg, b)
	}
	return out
}

func (st *Streamer) toolChunk(ts *toolState, fn chatbridge.FunctionCall) chatbridge.ChatCompletionChunk {
	idx := ts.index
	call := chatbridge.ToolCall{Index: &idx, ID: ts.id, Function: fn}
	if fn.Name != "" {
		call.Type = "function"
	}
	return st.chunk(chatbridge.Delta{ToolCalls: []chatbridge.ToolCall{call}}, nil)
}

func (st *Streamer) chunk(d chatbridge.Delta, finish *string) chatbridge.ChatCompletionChunk {
	if !st.roleSent {
		d.Role = chatbridge.RoleAssistant
		st.roleSent = true
	}
	return chatbridge.ChatCompletionChunk{
		ID:      st.id,
		Object:  chatbridge.ObjectChunk,
		Created: st.created,
		Model:   st.cfg.ModelName,
		Choices: []chatbridge.ChunkChoice{{Index: 0, Delta: d, FinishReason: finish}},
	}
}
