// Package handler exposes the conversation engine over HTTP: a gin router for
// long-running servers and an API Gateway handler for AWS Lambda. Both speak
// the same JSON contract.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"profile-assistant/internal/domain"
	"profile-assistant/internal/usecase"
)

const correlationHeader = "X-Correlation-Id"

// corsMethods is every method a browser may preflight; CORS is fully open.
var corsMethods = []string{
	http.MethodGet,
	http.MethodHead,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
	http.MethodOptions,
}

type ChatUseCase interface {
	Chat(ctx context.Context, in usecase.ChatInput) (usecase.ChatOutput, error)
}

type chatRequest struct {
	Message string        `json:"message"`
	History []domain.Turn `json:"history"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type healthResponse struct {
	Status string `json:"status"`
}

func (r chatRequest) input() usecase.ChatInput {
	return usecase.ChatInput{Message: r.Message, History: r.History}
}

// errorStatus maps an engine error to its HTTP status and response body.
// Anything that is not a usecase.Error is reported as INTERNAL_ERROR without
// leaking its text.
func errorStatus(err error) (int, errorResponse) {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		return http.StatusInternalServerError, errorResponse{Error: string(usecase.ErrorInternal), Message: "internal error"}
	}

	body := errorResponse{Error: string(ucErr.Code), Message: ucErr.Reason}
	switch ucErr.Code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest, body
	case usecase.ErrorRateLimited:
		return http.StatusTooManyRequests, body
	case usecase.ErrorUpstream:
		return http.StatusBadGateway, body
	default:
		body.Error = string(usecase.ErrorInternal)
		return http.StatusInternalServerError, body
	}
}

func invalidBody() errorResponse {
	return errorResponse{Error: string(usecase.ErrorInvalidInput), Message: "invalid request body"}
}

// correlationID returns the caller's id if one was sent, matching the header
// name case-insensitively, or a fresh one.
func correlationID(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, correlationHeader) && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return uuid.NewString()
}
