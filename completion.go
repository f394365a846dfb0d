package chatbridge

// Finish reasons.
const (
	FinishStop      = "stop"
	FinishToolCalls = "tool_calls"
)

// Object names of completion payloads.
const (
	ObjectCompletion = "chat.completion"
	ObjectChunk      = "chat.completion.chunk"
)

// Citation is a web search result surfaced alongside a completion.
type Citation struct {
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
	Snippet  string `json:"snippet,omitempty"`
	Hostname string `json:"hostname,omitempty"`
	HostLogo string `json:"hostlogo,omitempty"`
	Date     string `json:"date,omitempty"`
}

// AssistantMessage is the message of a single-shot choice.
type AssistantMessage struct {
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// Choice is one choice of a single-shot completion.
type Choice struct {
	Index        int              `json:"index"`
	Message      AssistantMessage `json:"message"`
	FinishReason string           `json:"finish_reason"`
}

// ChatCompletion is the single-shot response object.
type ChatCompletion struct {
	ID        string     `json:"id"`
	Object    string     `json:"object"`
	Created   int64      `json:"created"`
	Model     string     `json:"model"`
	Choices   []Choice   `json:"choices"`
	Usage     Usage      `json:"usage"`
	Citations []Citation `json:"citations,omitempty"`
}

// Delta is the incremental message of a streamed choice.
type Delta struct {
	Role      Role       `json:"role,omitempty"`
	Content   string     `json:"content,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ChunkChoice is one choice of a streamed chunk.
type ChunkChoice struct {
	Index        int     `json:"index"`
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

// ChunkError reports a failure that happened after streaming began.
type ChunkError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// ChatCompletionChunk is one streamed delta chunk.
type ChatCompletionChunk struct {
	ID        string        `json:"id"`
	Object    string        `json:"object"`
	Created   int64         `json:"created"`
	Model     string        `json:"model"`
	Choices   []ChunkChoice `json:"choices"`
	Usage     *Usage        `json:"usage,omitempty"`
	Citations []Citation    `json:"citations,omitempty"`
	Error     *ChunkError   `json:"error,omitempty"`
}

// ModelInfo describes one entry of the model list.
type ModelInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Object  string `json:"object,omitempty"`
	OwnedBy string `json:"owned_by,omitempty"`
}
