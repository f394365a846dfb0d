// Package toolparse incrementally recovers tag-delimited tool invocations from free-form
// model output.
//
// The grammar is plain text interspersed with an outer tag (use_function_tool by default)
// that contains inner parameter tags (tool_name, arguments). A Parser is a streaming scanner
// over one logical buffer: tags split across Write calls are recognized, and text is only
// released into a block once it can no longer be the start of a recognized tag, so text
// already revealed by Blocks is never altered by later input.
package toolparse

import (
	"maps"
	"strings"
)

type state int

const (
	stateText  state = iota // scanning plain text for an outer open tag
	stateTool               // inside an outer tag, between parameters
	stateParam              // inside a parameter tag
)

// Option configures a Parser (functional options pattern).
type Option func(*Parser)

// WithToolTags sets the recognized outer tag names. Empty names are ignored.
func WithToolTags(tags ...string) Option {
	return func(p *Parser) {
		var kept []string
		for _, t := range tags {
			if t != "" {
				kept = append(kept, t)
			}
		}
		if len(kept) > 0 {
			p.toolTags = kept
		}
	}
}

// WithParamNames sets the interpreted inner parameter names. Other inner tags are ignored.
func WithParamNames(names ...ParamName) Option {
	return func(p *Parser) {
		if len(names) > 0 {
			p.params = names
		}
	}
}

type node struct {
	tool    bool
	tag     string
	name    string
	text    strings.Builder
	params  map[ParamName]*strings.Builder
	closed  map[ParamName]string
	partial bool
}

// Parser is a per-response tool-use scanner. It is not safe for concurrent use and must not
// be reused across responses.
type Parser struct {
	toolTags []string
	params   []ParamName

	state state
	param ParamName
	pend  string // unconsumed input, starts with '<' when holding back a tag prefix
	nodes []*node
	text  *node // open text node, nil when none
	tool  *node // open tool node in stateTool/stateParam
	done  bool
}

// New returns a Parser with the default tag set.
func New(opts ...Option) *Parser {
	p := &Parser{
		toolTags: []string{DefaultToolTag},
		params:   []ParamName{ParamToolName, ParamArguments},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse runs a fresh Parser over complete text and returns the final blocks.
func Parse(text string, opts ...Option) []Block {
	p := New(opts...)
	p.Write(text)
	p.Close()
	return p.Blocks()
}

// Write feeds the next increment of model output. Writes after Close are ignored.
func (p *Parser) Write(s string) {
	if p.done || s == "" {
		return
	}
	p.pend += s
	p.scan()
}

// Close marks end of input. A held-back tag prefix is released as literal text and the
// trailing text block is completed; an unterminated tool block stays partial.
func (p *Parser) Close() {
	if p.done {
		return
	}
	p.done = true
	if p.pend != "" {
		p.consume(p.pend)
		p.pend = ""
	}
	if p.text != nil {
		p.text.partial = false
		p.text = nil
	}
}

// Blocks returns a copy of the current ordered block sequence. At most the last block is partial.
func (p *Parser) Blocks() []Block {
	out := make([]Block, 0, len(p.nodes))
	for _, n := range p.nodes {
		if !n.tool {
			out = append(out, TextBlock{Content: n.text.String(), Partial: n.partial})
			continue
		}
		params := make(map[ParamName]string, len(n.closed)+len(n.params))
		maps.Copy(params, n.closed)
		for name, b := range n.params {
			params[name] = b.String()
		}
		out = append(out, ToolUseBlock{Tag: n.tag, Name: n.name, Params: params, Partial: n.partial})
	}
	return out
}

func (p *Parser) scan() {
	for {
		i := strings.IndexByte(p.pend, '<')
		if i < 0 {
			p.consume(p.pend)
			p.pend = ""
			return
		}
		if i > 0 {
			p.consume(p.pend[:i])
			p.pend = p.pend[i:]
		}
		tag, ok, hold := p.match()
		if ok {
			p.pend = p.pend[len(tag):]
			p.transition(tag)
			continue
		}
		if hold {
			return
		}
		p.consume("<")
		p.pend = p.pend[1:]
	}
}

// match checks the candidates of the current state against pend, which starts with '<'.
// hold reports that pend is a proper prefix of some candidate.
func (p *Parser) match() (tag string, ok, hold bool) {
	for _, c := range p.candidates() {
		if strings.HasPrefix(p.pend, c) {
			return c, true, false
		}
		if len(p.pend) < len(c) && strings.HasPrefix(c, p.pend) {
			hold = true
		}
	}
	return "", false, hold
}

func (p *Parser) candidates() []string {
	switch p.state {
	case stateParam:
		return []string{closeTag(string(p.param))}
	case stateTool:
		c := make([]string, 0, len(p.params)+len(p.toolTags)+1)
		for _, name := range p.params {
			c = append(c, openTag(string(name)))
		}
		c = append(c, closeTag(p.tool.tag))
		for _, t := range p.toolTags {
			c = append(c, openTag(t))
		}
		return c
	default:
		c := make([]string, 0, len(p.toolTags))
		for _, t := range p.toolTags {
			c = append(c, openTag(t))
		}
		return c
	}
}

func (p *Parser) transition(tag string) {
	switch p.state {
	case stateText:
		p.openTool(tagName(tag))
	case stateParam:
		b := p.tool.params[p.param]
		delete(p.tool.params, p.param)
		v := strings.TrimSpace(b.String())
		p.tool.closed[p.param] = v
		if p.param == ParamToolName {
			p.tool.name = v
		}
		p.state = stateTool
	case stateTool:
		switch {
		case tag == closeTag(p.tool.tag):
			p.tool.partial = false
			p.tool = nil
			p.state = stateText
		case p.isToolOpen(tag):
			p.tool.partial = false
			p.openTool(tagName(tag))
		default:
			p.param = ParamName(tagName(tag))
			delete(p.tool.closed, p.param)
			p.tool.params[p.param] = &strings.Builder{}
			p.state = stateParam
		}
	}
}

func (p *Parser) openTool(tag string) {
	if p.text != nil {
		p.text.partial = false
		p.text = nil
	}
	n := &node{
		tool:    true,
		tag:     tag,
		params:  make(map[ParamName]*strings.Builder),
		closed:  make(map[ParamName]string),
		partial: true,
	}
	p.nodes = append(p.nodes, n)
	p.tool = n
	p.state = stateTool
}

// consume appends literal input to whatever the current state accumulates.
func (p *Parser) consume(s string) {
	if s == "" {
		return
	}
	switch p.state {
	case stateText:
		if p.text == nil {
			p.text = &node{partial: true}
			p.nodes = append(p.nodes, p.text)
		}
		p.text.text.WriteString(s)
	case stateParam:
		p.tool.params[p.param].WriteString(s)
	case stateTool:
		// Text between parameters and unknown tags is not part of the invocation.
	}
}

func (p *Parser) isToolOpen(tag string) bool {
	for _, t := range p.toolTags {
		if tag == openTag(t) {
			return true
		}
	}
	return false
}

func openTag(name string) string  { return "<" + name + ">" }
func closeTag(name string) string { return "</" + name + ">" }

func tagName(tag string) string {
	return strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(tag, "<"), "/"), ">")
}
