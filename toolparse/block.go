package toolparse

// ParamName names an inner parameter tag of a tool-use block.
type ParamName string

// Parameter names taught by the tool-use instruction document.
const (
	ParamToolName  ParamName = "tool_name"
	ParamArguments ParamName = "arguments"
)

// DefaultToolTag is the outer tag of a tool invocation.
const DefaultToolTag = "use_function_tool"

// Block is a sealed interface for parsed content blocks. Only package types implement it via isBlock().
type Block interface {
	isBlock()
	// IsPartial reports that the block's terminating delimiter has not been seen yet.
	IsPartial() bool
}

// TextBlock holds plain text that appeared outside any tool invocation.
type TextBlock struct {
	Content string
	Partial bool
}

func (TextBlock) isBlock() {}

// IsPartial implements Block.
func (b TextBlock) IsPartial() bool { return b.Partial }

// ToolUseBlock is one tool invocation. Params hold raw values while their tag is open and
// whitespace-trimmed values once closed. Name is set when the tool_name tag closes.
type ToolUseBlock struct {
	Tag     string
	Name    string
	Params  map[ParamName]string
	Partial bool
}

func (ToolUseBlock) isBlock() {}

// IsPartial implements Block.
func (b ToolUseBlock) IsPartial() bool { return b.Partial }

// Arguments returns the arguments parameter.
func (b ToolUseBlock) Arguments() string { return b.Params[ParamArguments] }
