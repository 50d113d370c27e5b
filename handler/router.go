package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter builds the HTTP surface: POST /chat, GET /ui, GET /healthz, with
// every origin allowed.
func NewRouter(uc ChatUseCase, logger *slog.Logger) (*gin.Engine, error) {
	if uc == nil {
		return nil, errors.New("handler: use case must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    corsMethods,
		AllowHeaders:    []string{"*"},
		ExposeHeaders:   []string{correlationHeader},
		MaxAge:          12 * time.Hour,
	}))
	r.Use(withCorrelationID())

	r.POST("/chat", chatHandler(uc, logger))
	r.GET("/ui", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", uiPage)
	})
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, healthResponse{Status: "ok"})
	})
	return r, nil
}

func withCorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := correlationID(map[string]string{correlationHeader: c.GetHeader(correlationHeader)})
		c.Set(correlationHeader, id)
		c.Header(correlationHeader, id)
		c.Next()
	}
}

func chatHandler(uc ChatUseCase, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		corrID := c.GetString(correlationHeader)

		var req chatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			logger.Warn("invalid chat request body", "correlation_id", corrID, "err", err)
			c.JSON(http.StatusBadRequest, invalidBody())
			return
		}

		out, err := uc.Chat(c.Request.Context(), req.input())
		if err != nil {
			status, resp := errorStatus(err)
			logger.Error("chat failed", "correlation_id", corrID, "status", status, "err", err)
			c.JSON(status, resp)
			return
		}
		c.JSON(http.StatusOK, chatResponse{Reply: out.Reply})
	}
}
