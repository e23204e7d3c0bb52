package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/shopping-request-api/internal/middleware"
	"github.com/noah-isme/shopping-request-api/internal/realtime"
	appErrors "github.com/noah-isme/shopping-request-api/pkg/errors"
	"github.com/noah-isme/shopping-request-api/pkg/response"
)

type realtimeHub interface {
	Serve(w http.ResponseWriter, r *http.Request, viewer realtime.Viewer) error
}

// RealtimeHandler upgrades authenticated clients to the status feed.
type RealtimeHandler struct {
	hub    realtimeHub
	tokens middleware.TokenValidator
	logger *zap.Logger
}

// NewRealtimeHandler constructs a realtime handler.
func NewRealtimeHandler(hub realtimeHub, tokens middleware.TokenValidator, logger *zap.Logger) *RealtimeHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RealtimeHandler{hub: hub, tokens: tokens, logger: logger}
}

// Connect godoc
// @Summary Request status feed
// @Description Websocket stream of request lifecycle events visible to the caller. Browsers pass the access token as a query parameter.
// @Tags Realtime
// @Param token query string true "Access token"
// @Success 101
// @Failure 401 {object} response.Envelope
// @Router /ws [get]
func (h *RealtimeHandler) Connect(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "token query parameter required"))
		return
	}
	claims, err := h.tokens.ValidateToken(token)
	if err != nil {
		response.Error(c, err)
		return
	}

	viewer := realtime.Viewer{ID: claims.UserID, Role: claims.Role}
	if err := h.hub.Serve(c.Writer, c.Request, viewer); err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("user_id", claims.UserID), zap.Error(err))
	}
}
