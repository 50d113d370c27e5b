package domain

import "github.com/sashabaranov/go-openai/jsonschema"

// Turn roles accepted by the chat-completions API.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// FinishReasonToolCalls is the completion signal for a tool request.
const FinishReasonToolCalls = "tool_calls"

// Turn is the provider-agnostic chat message shape used by the handlers, the
// conversation engine and the LLM integration. Assistant turns may carry
// ToolCalls instead of Content; tool turns carry the ToolCallID they answer.
type Turn struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall mirrors the OpenAI tool-call wire shape so that callers can replay
// transcripts captured from the API verbatim.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type,omitempty"`
	Function FunctionCall `json:"function"`
}

type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDescriptor is what the LLM is told about a callable tool.
type ToolDescriptor struct {
	Name        string
	Description string
	Parameters  jsonschema.Definition
}

// Completion is one LLM round trip: the finish reason and the assistant turn.
type Completion struct {
	FinishReason string
	Turn         Turn
}

// ValidRole reports whether role is one of the four chat roles.
func ValidRole(role string) bool {
	switch role {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}
