package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"profile-assistant/internal/domain"
	"profile-assistant/internal/integrations/openai"
	"profile-assistant/internal/tools"
)

type mockLLM struct {
	responses []domain.Completion
	err       error
	calls     [][]domain.Turn
	tools     [][]domain.ToolDescriptor
	models    []string
}

func (m *mockLLM) Chat(_ context.Context, model string, turns []domain.Turn, descs []domain.ToolDescriptor) (domain.Completion, error) {
	m.calls = append(m.calls, append([]domain.Turn(nil), turns...))
	m.tools = append(m.tools, descs)
	m.models = append(m.models, model)
	if m.err != nil {
		return domain.Completion{}, m.err
	}
	if len(m.responses) == 0 {
		return domain.Completion{}, errors.New("no llm response configured")
	}
	idx := len(m.calls) - 1
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	return m.responses[idx], nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (f *fakeNotifier) Notify(_ context.Context, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, text)
}

type countingInvoker struct {
	ToolInvoker
	invoked []string
}

func (c *countingInvoker) Invoke(ctx context.Context, name, arguments string) any {
	c.invoked = append(c.invoked, name)
	return c.ToolInvoker.Invoke(ctx, name, arguments)
}

func answer(text string) domain.Completion {
	return domain.Completion{FinishReason: "stop", Turn: domain.Turn{Role: domain.RoleAssistant, Content: text}}
}

func toolRequest(calls ...domain.ToolCall) domain.Completion {
	return domain.Completion{
		FinishReason: domain.FinishReasonToolCalls,
		Turn:         domain.Turn{Role: domain.RoleAssistant, ToolCalls: calls},
	}
}

func call(id, name, args string) domain.ToolCall {
	return domain.ToolCall{ID: id, Type: "function", Function: domain.FunctionCall{Name: name, Arguments: args}}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRegistry(t *testing.T, n tools.Notifier) *countingInvoker {
	t.Helper()
	recording, err := tools.NewRecording(n, nil, tools.RecordFactory{}, discardLogger())
	require.NoError(t, err)
	reg, err := tools.NewRegistry(recording.Tools()...)
	require.NoError(t, err)
	return &countingInvoker{ToolInvoker: reg}
}

func testProfile() domain.ProfileContext {
	return domain.ProfileContext{
		Summary:  "SUMMARY-TEXT",
		Resume:   "RESUME-TEXT",
		LinkedIn: "LINKEDIN-TEXT",
	}
}

func newTestService(t *testing.T, llm LLMClient, inv ToolInvoker, cfg Config) *ChatService {
	t.Helper()
	if cfg.Name == "" {
		cfg.Name = "Jane Doe"
	}
	svc, err := NewChatService(llm, inv, testProfile(), cfg, discardLogger())
	require.NoError(t, err)
	return svc
}

func expectChatError(t *testing.T, err error, code ErrorCode, reason string) {
	t.Helper()
	var usecaseErr *Error
	require.ErrorAs(t, err, &usecaseErr)
	require.Equal(t, code, usecaseErr.Code)
	require.Equal(t, reason, usecaseErr.Reason)
}

func TestNewChatService_ValidatesDependencies(t *testing.T) {
	inv := newRegistry(t, &fakeNotifier{})

	_, err := NewChatService(nil, inv, testProfile(), Config{Name: "x"}, nil)
	require.Error(t, err)

	_, err = NewChatService(&mockLLM{}, nil, testProfile(), Config{Name: "x"}, nil)
	require.Error(t, err)

	_, err = NewChatService(&mockLLM{}, inv, testProfile(), Config{Name: "  "}, nil)
	require.Error(t, err)

	svc, err := NewChatService(&mockLLM{}, inv, testProfile(), Config{Name: "x"}, nil)
	require.NoError(t, err)
	require.Equal(t, defaultModel, svc.model)
	require.Equal(t, defaultMaxToolRounds, svc.maxToolRounds)
	require.Equal(t, defaultMaxMessageLen, svc.maxMessageLen)
}

func TestChat_DirectAnswer(t *testing.T) {
	llm := &mockLLM{responses: []domain.Completion{answer("Hello! How can I help?")}}
	inv := newRegistry(t, &fakeNotifier{})
	svc := newTestService(t, llm, inv, Config{Model: "gpt-test"})

	out, err := svc.Chat(context.Background(), ChatInput{Message: "hi"})
	require.NoError(t, err)
	require.Equal(t, "Hello! How can I help?", out.Reply)
	require.Zero(t, out.ToolCalls)
	require.Empty(t, inv.invoked)
	require.Len(t, llm.calls, 1)
	require.Equal(t, "gpt-test", llm.models[0])
	require.Len(t, llm.tools[0], 2)
}

func TestChat_ToolRoundTrip(t *testing.T) {
	llm := &mockLLM{responses: []domain.Completion{
		toolRequest(call("call_1", tools.RecordUnknownQuestion, `{"question":"x"}`)),
		answer("I've noted that question."),
	}}
	n := &fakeNotifier{}
	svc := newTestService(t, llm, newRegistry(t, n), Config{})

	out, err := svc.Chat(context.Background(), ChatInput{Message: "What is your favorite color?"})
	require.NoError(t, err)
	require.Equal(t, "I've noted that question.", out.Reply)
	require.Equal(t, 1, out.ToolCalls)

	require.Len(t, n.messages, 1)
	require.Contains(t, n.messages[0], "x")

	require.Len(t, llm.calls, 2)
	second := llm.calls[1]
	require.Len(t, second, 4)
	require.Equal(t, domain.RoleAssistant, second[2].Role)
	require.Equal(t, "call_1", second[2].ToolCalls[0].ID)
	require.Equal(t, domain.Turn{Role: domain.RoleTool, Content: `{"recorded":"ok"}`, ToolCallID: "call_1"}, second[3])

	// the first round's sequence is not mutated by later rounds
	require.Len(t, llm.calls[0], 2)
}

func TestChat_MultipleToolCallsDispatchedInOrder(t *testing.T) {
	llm := &mockLLM{responses: []domain.Completion{
		toolRequest(
			call("c1", tools.RecordUserDetails, `{"email":"a@b.co","name":"Ada"}`),
			call("c2", "does_not_exist", `{}`),
			call("c3", tools.RecordUnknownQuestion, `{}`),
		),
		answer("done"),
	}}
	n := &fakeNotifier{}
	inv := newRegistry(t, n)
	svc := newTestService(t, llm, inv, Config{})

	out, err := svc.Chat(context.Background(), ChatInput{Message: "my email is a@b.co"})
	require.NoError(t, err)
	require.Equal(t, "done", out.Reply)
	require.Equal(t, 3, out.ToolCalls)
	require.Equal(t, []string{tools.RecordUserDetails, "does_not_exist", tools.RecordUnknownQuestion}, inv.invoked)
	require.Equal(t, []string{"Recording Ada with email a@b.co and notes not provided"}, n.messages)

	second := llm.calls[1]
	require.Len(t, second, 6)
	require.Equal(t, "c1", second[3].ToolCallID)
	require.Equal(t, `{"recorded":"ok"}`, second[3].Content)
	require.Equal(t, "c2", second[4].ToolCallID)
	require.Equal(t, `{}`, second[4].Content)
	require.Equal(t, "c3", second[5].ToolCallID)
	require.Contains(t, second[5].Content, `"error"`)
}

func TestChat_HistoryPassThrough(t *testing.T) {
	for n := 0; n <= 5; n++ {
		t.Run(fmt.Sprintf("history_%d", n), func(t *testing.T) {
			history := make([]domain.Turn, 0, n)
			for i := 0; i < n; i++ {
				role := domain.RoleUser
				if i%2 == 1 {
					role = domain.RoleAssistant
				}
				history = append(history, domain.Turn{Role: role, Content: fmt.Sprintf("turn-%d", i)})
			}
			llm := &mockLLM{responses: []domain.Completion{answer("ok")}}
			svc := newTestService(t, llm, newRegistry(t, &fakeNotifier{}), Config{})

			_, err := svc.Chat(context.Background(), ChatInput{Message: "latest", History: history})
			require.NoError(t, err)

			sent := llm.calls[0]
			require.Len(t, sent, n+2)
			require.Equal(t, domain.RoleSystem, sent[0].Role)
			for i := 1; i < len(sent); i++ {
				require.NotEqual(t, domain.RoleSystem, sent[i].Role)
			}
			require.Equal(t, history, sent[1:n+1])
			require.Equal(t, domain.Turn{Role: domain.RoleUser, Content: "latest"}, sent[n+1])
		})
	}
}

func TestChat_SystemPromptOrder(t *testing.T) {
	llm := &mockLLM{responses: []domain.Completion{answer("ok")}}
	svc := newTestService(t, llm, newRegistry(t, &fakeNotifier{}), Config{Name: "Jane Doe"})

	_, err := svc.Chat(context.Background(), ChatInput{Message: "hi"})
	require.NoError(t, err)

	prompt := llm.calls[0][0].Content
	require.Contains(t, prompt, "You are acting as Jane Doe.")
	summary := strings.Index(prompt, "SUMMARY-TEXT")
	linkedin := strings.Index(prompt, "LINKEDIN-TEXT")
	resume := strings.Index(prompt, "RESUME-TEXT")
	require.True(t, summary >= 0 && summary < linkedin && linkedin < resume, prompt)
}

func TestBuildSystemPrompt_EmptyProfile(t *testing.T) {
	prompt := buildSystemPrompt("Jane Doe", domain.ProfileContext{})
	require.Contains(t, prompt, "Summary:\n\n\nLinkedIn:\n\n\nResume:\n\n")
}

func TestChat_ToolRoundLimitReturnsFallback(t *testing.T) {
	llm := &mockLLM{responses: []domain.Completion{
		toolRequest(call("loop", tools.RecordUnknownQuestion, `{"question":"again"}`)),
	}}
	n := &fakeNotifier{}
	svc := newTestService(t, llm, newRegistry(t, n), Config{MaxToolRounds: 3})

	out, err := svc.Chat(context.Background(), ChatInput{Message: "hi"})
	require.NoError(t, err)
	require.Equal(t, FallbackReply, out.Reply)
	require.Equal(t, 3, out.ToolCalls)
	require.Len(t, llm.calls, 4)
	require.Len(t, n.messages, 3)
}

func TestChat_EdgeFinishReasons(t *testing.T) {
	cases := []struct {
		name       string
		completion domain.Completion
		want       string
	}{
		{name: "length", completion: domain.Completion{FinishReason: "length", Turn: domain.Turn{Content: "partial"}}, want: "partial"},
		{name: "content filter without text", completion: domain.Completion{FinishReason: "content_filter"}, want: ""},
		{name: "tool_calls without calls", completion: domain.Completion{FinishReason: domain.FinishReasonToolCalls, Turn: domain.Turn{Content: "odd"}}, want: "odd"},
		{name: "calls with stop reason", completion: domain.Completion{FinishReason: "stop", Turn: domain.Turn{Content: "text", ToolCalls: []domain.ToolCall{call("c", tools.RecordUnknownQuestion, `{"question":"q"}`)}}}, want: "text"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			inv := newRegistry(t, &fakeNotifier{})
			svc := newTestService(t, &mockLLM{responses: []domain.Completion{tc.completion}}, inv, Config{})
			out, err := svc.Chat(context.Background(), ChatInput{Message: "hi"})
			require.NoError(t, err)
			require.Equal(t, tc.want, out.Reply)
			require.Empty(t, inv.invoked)
		})
	}
}

func TestChat_ValidationErrors(t *testing.T) {
	llm := &mockLLM{responses: []domain.Completion{answer("ok")}}
	svc := newTestService(t, llm, newRegistry(t, &fakeNotifier{}), Config{MaxMessageLen: 10})

	_, err := svc.Chat(context.Background(), ChatInput{Message: "  "})
	expectChatError(t, err, ErrorInvalidInput, "empty_message")

	_, err = svc.Chat(context.Background(), ChatInput{Message: strings.Repeat("a", 11)})
	expectChatError(t, err, ErrorInvalidInput, "message_too_long")

	_, err = svc.Chat(context.Background(), ChatInput{Message: "hi", History: []domain.Turn{{Role: "narrator", Content: "x"}}})
	expectChatError(t, err, ErrorInvalidInput, "invalid_history_role")

	require.Empty(t, llm.calls)
}

func TestChat_LLMErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		code   ErrorCode
		reason string
	}{
		{name: "rate limited", err: &openai.HTTPStatusError{StatusCode: http.StatusTooManyRequests}, code: ErrorRateLimited, reason: "openai_rate_limited"},
		{name: "server error", err: &openai.HTTPStatusError{StatusCode: http.StatusInternalServerError}, code: ErrorUpstream, reason: "openai_error"},
		{name: "transport", err: errors.New("connection reset"), code: ErrorUpstream, reason: "openai_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := newTestService(t, &mockLLM{err: tc.err}, newRegistry(t, &fakeNotifier{}), Config{})
			_, err := svc.Chat(context.Background(), ChatInput{Message: "hi"})
			expectChatError(t, err, tc.code, tc.reason)
		})
	}
}

func TestChat_LLMErrorAfterToolRound(t *testing.T) {
	llm := &failingAfter{first: toolRequest(call("c1", tools.RecordUnknownQuestion, `{"question":"q"}`))}
	n := &fakeNotifier{}
	svc := newTestService(t, llm, newRegistry(t, n), Config{})

	_, err := svc.Chat(context.Background(), ChatInput{Message: "hi"})
	expectChatError(t, err, ErrorUpstream, "openai_error")
	require.Len(t, n.messages, 1)
}

type failingAfter struct {
	first domain.Completion
	calls int
}

func (f *failingAfter) Chat(context.Context, string, []domain.Turn, []domain.ToolDescriptor) (domain.Completion, error) {
	f.calls++
	if f.calls == 1 {
		return f.first, nil
	}
	return domain.Completion{}, errors.New("upstream went away")
}

func TestChat_ConcurrentCallsDoNotInterfere(t *testing.T) {
	n := &fakeNotifier{}
	svc := newTestService(t, echoLLM{}, newRegistry(t, n), Config{})

	var wg sync.WaitGroup
	replies := make([]string, 20)
	for i := range replies {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := svc.Chat(context.Background(), ChatInput{Message: fmt.Sprintf("msg-%d", i)})
			if err == nil {
				replies[i] = out.Reply
			}
		}(i)
	}
	wg.Wait()
	for i, r := range replies {
		require.Equal(t, fmt.Sprintf("echo: msg-%d", i), r)
	}
}

// echoLLM answers with the last user message; it is stateless and safe for
// concurrent use.
type echoLLM struct{}

func (echoLLM) Chat(_ context.Context, _ string, turns []domain.Turn, _ []domain.ToolDescriptor) (domain.Completion, error) {
	return answer("echo: " + turns[len(turns)-1].Content), nil
}
