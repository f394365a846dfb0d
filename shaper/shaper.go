// Package shaper turns provider text into standard-protocol completions and delta chunks.
package shaper

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/skosovsky/chatbridge"
	"github.com/skosovsky/chatbridge/toolparse"
)

var fencedJSON = regexp.MustCompile("```json\\s*([\\s\\S]*?)\\s*```")

// Option configures a Shaper (functional options pattern).
type Option func(*Shaper)

// WithTokenCounter sets the counter used for usage. Default is chatbridge.ApproxCounter.
func WithTokenCounter(tc chatbridge.TokenCounter) Option {
	return func(s *Shaper) {
		if tc != nil {
			s.counter = tc
		}
	}
}

// WithLogger sets the logger for degraded results. Default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Shaper) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithValidator sets the schema validator used for log-only output checks.
func WithValidator(v *Validator) Option {
	return func(s *Shaper) {
		s.validator = v
	}
}

// WithIDGenerator replaces the generator of completion and tool-call ids.
func WithIDGenerator(gen func() string) Option {
	return func(s *Shaper) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// WithClock replaces the time source of the created field.
func WithClock(now func() time.Time) Option {
	return func(s *Shaper) {
		if now != nil {
			s.now = now
		}
	}
}

// WithParserOptions sets the options of the per-response tool-use parser.
func WithParserOptions(opts ...toolparse.Option) Option {
	return func(s *Shaper) {
		s.parserOpts = opts
	}
}

// Shaper builds completions. It holds no per-request state and is safe for concurrent use.
type Shaper struct {
	counter    chatbridge.TokenCounter
	logger     *zap.Logger
	validator  *Validator
	newID      func() string
	now        func() time.Time
	parserOpts []toolparse.Option
}

// New returns a Shaper.
func New(opts ...Option) *Shaper {
	s := &Shaper{
		counter:   &chatbridge.ApproxCounter{},
		logger:    zap.NewNop(),
		validator: NewValidator(),
		newID:     uuid.NewString,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Complete shapes a full provider reply. With tools offered, closed tool-use blocks become
// tool calls and text blocks form the content. Without tools, a json_schema request gets its
// JSON extracted when possible; otherwise the text passes through verbatim.
// prompt is the text sent to the provider and only feeds usage.
func (s *Shaper) Complete(cfg *chatbridge.ChatConfig, prompt, text string) *chatbridge.ChatCompletion {
	id := s.completionID()
	msg := chatbridge.AssistantMessage{Role: chatbridge.RoleAssistant, Content: text}
	finish := chatbridge.FinishStop

	switch {
	case cfg.HasTools():
		var content strings.Builder
		for _, b := range toolparse.Parse(text, s.parserOpts...) {
			switch b := b.(type) {
			case toolparse.TextBlock:
				content.WriteString(b.Content)
			case toolparse.ToolUseBlock:
				if b.Partial || b.Name == "" {
					s.logger.Debug("dropping unterminated tool invocation", zap.String("tool", b.Name))
					continue
				}
				s.checkArguments(cfg, b)
				msg.ToolCalls = append(msg.ToolCalls, chatbridge.ToolCall{
					ID:       s.toolCallID(),
					Type:     "function",
					Function: chatbridge.FunctionCall{Name: b.Name, Arguments: b.Arguments()},
				})
			}
		}
		msg.Content = content.String()
		if len(msg.ToolCalls) > 0 {
			finish = chatbridge.FinishToolCalls
		}
	case cfg.WantsJSON():
		if doc, ok := ExtractJSON(text); ok {
			msg.Content = doc
			s.checkFormat(cfg, doc)
		} else {
			s.logger.Debug("structured output is not valid JSON, returning text", zap.String("model", cfg.ModelName))
		}
	}

	usage := chatbridge.CountUsage(s.counter, prompt, text)
	return &chatbridge.ChatCompletion{
		ID:      id,
		Object:  chatbridge.ObjectCompletion,
		Created: s.now().Unix(),
		Model:   cfg.ModelName,
		Choices: []chatbridge.Choice{{Index: 0, Message: msg, FinishReason: finish}},
		Usage:   usage,
	}
}

// ExtractJSON returns the compact form of the first ```json fenced block of text, or of the
// whole text when no fence is present. ok is false when neither is valid JSON.
func ExtractJSON(text string) (string, bool) {
	candidate := strings.TrimSpace(text)
	if m := fencedJSON.FindStringSubmatch(text); len(m) == 2 {
		candidate = m[1]
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(candidate)); err != nil {
		return "", false
	}
	return buf.String(), true
}

func (s *Shaper) checkFormat(cfg *chatbridge.ChatConfig, doc string) {
	f := cfg.ResponseFormat.JSONSchema
	if s.validator == nil || f == nil || len(bytes.TrimSpace(f.Schema)) == 0 {
		return
	}
	if err := s.validator.Validate(f.Schema, doc); err != nil {
		s.logger.Warn("structured output does not match schema", zap.String("schema", f.Name), zap.Error(err))
	}
}

func (s *Shaper) checkArguments(cfg *chatbridge.ChatConfig, b toolparse.ToolUseBlock) {
	if s.validator == nil {
		return
	}
	for _, t := range cfg.Tools {
		if t.Function.Name != b.Name || len(t.Function.Parameters) == 0 {
			continue
		}
		if err := s.validator.Validate(t.Function.Parameters, b.Arguments()); err != nil {
			s.logger.Warn("tool arguments do not match parameters", zap.String("tool", b.Name), zap.Error(err))
		}
		return
	}
	s.logger.Debug("model called an undeclared tool", zap.String("tool", b.Name))
}

func (s *Shaper) completionID() string { return "chatcmpl-" + s.newID() }
func (s *Shaper) toolCallID() string   { return "call_" + s.newID() }
