package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
)

// LambdaHandler serves the chat contract behind API Gateway. CORS is answered
// here because API Gateway proxy integrations pass preflights through.
type LambdaHandler struct {
	uc     ChatUseCase
	logger *slog.Logger
}

type LambdaOption func(*LambdaHandler)

func WithLogger(logger *slog.Logger) LambdaOption {
	return func(h *LambdaHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func NewHandler(uc ChatUseCase, opts ...LambdaOption) (*LambdaHandler, error) {
	if uc == nil {
		return nil, errors.New("handler: use case must not be nil")
	}
	h := &LambdaHandler{uc: uc, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

func (h *LambdaHandler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	corrID := correlationID(event.Headers)

	if event.HTTPMethod == http.MethodOptions {
		return respond(http.StatusNoContent, corrID, "", ""), nil
	}

	switch route(event.Path) {
	case "chat":
		if event.HTTPMethod != http.MethodPost {
			return jsonResponse(http.StatusMethodNotAllowed, corrID, errorResponse{Error: "METHOD_NOT_ALLOWED", Message: event.HTTPMethod}), nil
		}
		return h.chat(ctx, corrID, event.Body), nil
	case "ui":
		if event.HTTPMethod != http.MethodGet {
			return jsonResponse(http.StatusMethodNotAllowed, corrID, errorResponse{Error: "METHOD_NOT_ALLOWED", Message: event.HTTPMethod}), nil
		}
		return respond(http.StatusOK, corrID, "text/html; charset=utf-8", string(uiPage)), nil
	case "healthz":
		return jsonResponse(http.StatusOK, corrID, healthResponse{Status: "ok"}), nil
	default:
		return jsonResponse(http.StatusNotFound, corrID, errorResponse{Error: "NOT_FOUND", Message: event.Path}), nil
	}
}

func (h *LambdaHandler) chat(ctx context.Context, corrID, body string) events.APIGatewayProxyResponse {
	var req chatRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		h.logger.Warn("invalid chat request body", "correlation_id", corrID, "err", err)
		return jsonResponse(http.StatusBadRequest, corrID, invalidBody())
	}

	out, err := h.uc.Chat(ctx, req.input())
	if err != nil {
		status, resp := errorStatus(err)
		h.logger.Error("chat failed", "correlation_id", corrID, "status", status, "err", err)
		return jsonResponse(status, corrID, resp)
	}
	return jsonResponse(http.StatusOK, corrID, chatResponse{Reply: out.Reply})
}

// route reduces a request path to its last segment so stage prefixes such as
// /prod/chat resolve the same as /chat.
func route(path string) string {
	path = strings.TrimRight(path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		path = path[i+1:]
	}
	return path
}

func jsonResponse(status int, corrID string, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		return respond(http.StatusInternalServerError, corrID, "application/json", `{"error":"INTERNAL_ERROR","message":"internal error"}`)
	}
	return respond(status, corrID, "application/json", string(body))
}

func respond(status int, corrID, contentType, body string) events.APIGatewayProxyResponse {
	headers := map[string]string{
		correlationHeader:              corrID,
		"Access-Control-Allow-Origin":  "*",
		"Access-Control-Allow-Methods": strings.Join(corsMethods, ", "),
		"Access-Control-Allow-Headers": "*",
	}
	if contentType != "" {
		headers["Content-Type"] = contentType
	}
	return events.APIGatewayProxyResponse{StatusCode: status, Headers: headers, Body: body}
}
