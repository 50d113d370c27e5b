package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"profile-assistant/internal/domain"
	"profile-assistant/internal/integrations/paramstore"
)

const defaultBaseURL = "https://api.openai.com/v1"

type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("openai: unexpected status %d: %s", e.StatusCode, e.Message)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

func (e *HTTPStatusError) Unwrap() error {
	return e.Err
}

// Client is a chat-completions client with tool calling, backed by go-openai.
type Client struct {
	baseURL    string
	httpClient *http.Client
	apiKey     string
	getter     Getter
	tokenParam string

	mu  sync.Mutex
	api *goopenai.Client
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithAPIKey sets the key directly. It takes precedence over WithParamStore.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = strings.TrimSpace(key)
	}
}

// WithParamStore reads the key from the named parameter, stored as
// {"token": "..."}, on first use.
func WithParamStore(getter Getter, name string) Option {
	return func(c *Client) {
		c.getter = getter
		c.tokenParam = strings.TrimSpace(name)
	}
}

// NewClient creates a Client. Either an API key or a parameter store getter
// must be supplied. A key held in the parameter store is fetched on first use
// and reused for the lifetime of the process; a failed fetch is retried on the
// next call.
func NewClient(opts ...Option) (*Client, error) {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.apiKey == "" && c.getter == nil {
		return nil, errors.New("openai: api key or paramstore getter is required")
	}
	return c, nil
}

// apiBaseURL normalizes a configured base URL to the versioned API root that
// go-openai appends endpoint paths to.
func apiBaseURL(baseURL string) string {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return defaultBaseURL
	}
	if strings.HasSuffix(base, "/v1") {
		return base
	}
	return base + "/v1"
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: 60 * time.Second}
}

func (c *Client) client(ctx context.Context) (*goopenai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.api != nil {
		return c.api, nil
	}

	key := c.apiKey
	if key == "" {
		var err error
		key, err = fetchAPIKeyFromParamStore(ctx, c.getter, c.tokenParam)
		if err != nil {
			return nil, err
		}
	}
	cfg := goopenai.DefaultConfig(key)
	cfg.BaseURL = apiBaseURL(c.baseURL)
	cfg.HTTPClient = c.resolvedHTTPClient()
	c.api = goopenai.NewClientWithConfig(cfg)
	return c.api, nil
}

// Ready resolves the API key now so a missing or unreadable key is reported
// at startup rather than on the first chat.
func (c *Client) Ready(ctx context.Context) error {
	_, err := c.client(ctx)
	return err
}

// Chat sends one chat-completion request advertising tools and returns the
// first choice.
func (c *Client) Chat(ctx context.Context, model string, turns []domain.Turn, tools []domain.ToolDescriptor) (domain.Completion, error) {
	if model == "" {
		return domain.Completion{}, errors.New("openai: model must not be empty")
	}
	api, err := c.client(ctx)
	if err != nil {
		return domain.Completion{}, err
	}

	req := goopenai.ChatCompletionRequest{
		Model:    model,
		Messages: toOpenAIMessages(turns),
	}
	if len(tools) > 0 {
		req.Tools = toOpenAITools(tools)
	}

	resp, err := api.CreateChatCompletion(ctx, req)
	if err != nil {
		return domain.Completion{}, fmt.Errorf("openai: request failed: %w", statusError(err))
	}
	if len(resp.Choices) == 0 {
		return domain.Completion{}, errors.New("openai: no choices in response")
	}
	choice := resp.Choices[0]
	return domain.Completion{
		FinishReason: string(choice.FinishReason),
		Turn:         fromOpenAIMessage(choice.Message),
	}, nil
}

// statusError converts go-openai HTTP failures into HTTPStatusError so callers
// can branch on the status code without importing the SDK.
func statusError(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &HTTPStatusError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message, Err: err}
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &HTTPStatusError{StatusCode: reqErr.HTTPStatusCode, Message: reqErr.HTTPStatus, Err: err}
	}
	return err
}

func toOpenAITools(tools []domain.ToolDescriptor) []goopenai.Tool {
	out := make([]goopenai.Tool, len(tools))
	for i, t := range tools {
		out[i] = goopenai.Tool{
			Type: goopenai.ToolTypeFunction,
			Function: &goopenai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		}
	}
	return out
}

func toOpenAIMessages(turns []domain.Turn) []goopenai.ChatCompletionMessage {
	out := make([]goopenai.ChatCompletionMessage, len(turns))
	for i, t := range turns {
		msg := goopenai.ChatCompletionMessage{
			Role:       t.Role,
			Content:    t.Content,
			ToolCallID: t.ToolCallID,
		}
		if len(t.ToolCalls) > 0 {
			msg.ToolCalls = make([]goopenai.ToolCall, len(t.ToolCalls))
			for j, tc := range t.ToolCalls {
				msg.ToolCalls[j] = goopenai.ToolCall{
					ID:   tc.ID,
					Type: goopenai.ToolTypeFunction,
					Function: goopenai.FunctionCall{
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					},
				}
			}
		}
		out[i] = msg
	}
	return out
}

func fromOpenAIMessage(m goopenai.ChatCompletionMessage) domain.Turn {
	turn := domain.Turn{
		Role:    domain.RoleAssistant,
		Content: m.Content,
	}
	if len(m.ToolCalls) > 0 {
		turn.ToolCalls = make([]domain.ToolCall, len(m.ToolCalls))
		for i, tc := range m.ToolCalls {
			turn.ToolCalls[i] = domain.ToolCall{
				ID:   tc.ID,
				Type: string(goopenai.ToolTypeFunction),
				Function: domain.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			}
		}
	}
	return turn
}

func fetchAPIKeyFromParamStore(ctx context.Context, getter Getter, name string) (string, error) {
	if getter == nil {
		return "", errors.New("openai: paramstore getter is nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("openai: token parameter name is empty")
	}
	key, err := paramstore.GetToken(ctx, getter, name)
	if err != nil {
		return "", fmt.Errorf("openai: fetch token from paramstore: %w", err)
	}
	return key, nil
}
