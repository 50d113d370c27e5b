package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"profile-assistant/internal/domain"
)

const (
	defaultModel         = "gpt-4o-mini"
	defaultMaxToolRounds = 8
	defaultMaxMessageLen = 4000

	// FallbackReply is returned when the model keeps requesting tools past the
	// round limit.
	FallbackReply = "Sorry, I couldn't finish answering that. Please try rephrasing your question."
)

type LLMClient interface {
	Chat(ctx context.Context, model string, turns []domain.Turn, tools []domain.ToolDescriptor) (domain.Completion, error)
}

type ToolInvoker interface {
	Descriptors() []domain.ToolDescriptor
	Invoke(ctx context.Context, name, arguments string) any
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// Config tunes a ChatService. Zero values fall back to defaults.
type Config struct {
	Name          string
	Model         string
	MaxToolRounds int
	MaxMessageLen int
}

// ChatService is the conversation engine. It holds no per-conversation state:
// the profile, tool set and prompt are fixed at construction, so one instance
// serves concurrent chats without locking.
type ChatService struct {
	llm           LLMClient
	tools         ToolInvoker
	descriptors   []domain.ToolDescriptor
	systemPrompt  string
	model         string
	maxToolRounds int
	maxMessageLen int
	logger        *slog.Logger
}

type ChatInput struct {
	Message string
	History []domain.Turn
}

type ChatOutput struct {
	Reply string
	// ToolCalls counts dispatched tool invocations.
	ToolCalls int
}

func NewChatService(llm LLMClient, tools ToolInvoker, profile domain.ProfileContext, cfg Config, logger *slog.Logger) (*ChatService, error) {
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	if tools == nil {
		return nil, errors.New("usecase: tool invoker must not be nil")
	}
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		return nil, errors.New("usecase: assistant name must not be empty")
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = defaultMaxToolRounds
	}
	if cfg.MaxMessageLen <= 0 {
		cfg.MaxMessageLen = defaultMaxMessageLen
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatService{
		llm:           llm,
		tools:         tools,
		descriptors:   tools.Descriptors(),
		systemPrompt:  buildSystemPrompt(name, profile),
		model:         cfg.Model,
		maxToolRounds: cfg.MaxToolRounds,
		maxMessageLen: cfg.MaxMessageLen,
		logger:        logger,
	}, nil
}

// Chat answers message in the context of history. The LLM is called until it
// stops requesting tools; each requested tool is run in order and its result
// fed back. After maxToolRounds tool-requesting rounds the FallbackReply is
// returned instead of calling the model again.
func (s *ChatService) Chat(ctx context.Context, in ChatInput) (ChatOutput, error) {
	if strings.TrimSpace(in.Message) == "" {
		return ChatOutput{}, newError(ErrorInvalidInput, "empty_message", nil)
	}
	if len(in.Message) > s.maxMessageLen {
		return ChatOutput{}, newError(ErrorInvalidInput, "message_too_long", nil)
	}
	for _, t := range in.History {
		if !domain.ValidRole(t.Role) {
			return ChatOutput{}, newError(ErrorInvalidInput, "invalid_history_role", nil)
		}
	}

	turns := buildTurns(s.systemPrompt, in.History, in.Message)
	dispatched := 0

	for round := 1; ; round++ {
		completion, err := s.llm.Chat(ctx, s.model, turns, s.descriptors)
		if err != nil {
			if status, ok := upstreamStatusCode(err); ok && status == 429 {
				return ChatOutput{}, newError(ErrorRateLimited, "openai_rate_limited", err)
			}
			return ChatOutput{}, newError(ErrorUpstream, "openai_error", err)
		}

		calls := completion.Turn.ToolCalls
		if completion.FinishReason != domain.FinishReasonToolCalls || len(calls) == 0 {
			s.logger.Debug("chat answered", "round", round, "finish_reason", completion.FinishReason, "tool_calls", dispatched)
			return ChatOutput{
				Reply:     completion.Turn.Content,
				ToolCalls: dispatched,
			}, nil
		}

		if round > s.maxToolRounds {
			s.logger.Warn("tool round limit reached", "rounds", s.maxToolRounds, "tool_calls", dispatched)
			return ChatOutput{
				Reply:     FallbackReply,
				ToolCalls: dispatched,
			}, nil
		}

		s.logger.Debug("dispatching tools", "round", round, "count", len(calls))
		results := make([]domain.Turn, 0, len(calls)+1)
		results = append(results, assistantToolTurn(completion.Turn))
		for _, call := range calls {
			results = append(results, s.dispatch(ctx, call))
			dispatched++
		}
		turns = extendTurns(turns, results...)
	}
}

func (s *ChatService) dispatch(ctx context.Context, call domain.ToolCall) domain.Turn {
	result := s.tools.Invoke(ctx, call.Function.Name, call.Function.Arguments)
	content, err := json.Marshal(result)
	if err != nil {
		s.logger.Warn("tool result is not serializable", "tool", call.Function.Name, "err", err)
		content = []byte(`{}`)
	}
	if errResult, ok := result.(map[string]string); ok && errResult["error"] != "" {
		s.logger.Warn("tool call rejected", "tool", call.Function.Name, "call_id", call.ID, "reason", errResult["error"])
	}
	return domain.Turn{
		Role:       domain.RoleTool,
		Content:    string(content),
		ToolCallID: call.ID,
	}
}

// assistantToolTurn copies the tool-request turn so later rounds do not share
// the completion's slices.
func assistantToolTurn(t domain.Turn) domain.Turn {
	out := domain.Turn{Role: domain.RoleAssistant, Content: t.Content}
	out.ToolCalls = append([]domain.ToolCall(nil), t.ToolCalls...)
	return out
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}
