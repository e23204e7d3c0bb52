package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/shopping-request-api/internal/middleware"
	"github.com/noah-isme/shopping-request-api/internal/models"
	"github.com/noah-isme/shopping-request-api/internal/workflow"
	appErrors "github.com/noah-isme/shopping-request-api/pkg/errors"
	"github.com/noah-isme/shopping-request-api/pkg/response"
)

type dashboardService interface {
	Summary(ctx context.Context, actor workflow.Actor, year int) (*models.DashboardSummary, bool, error)
}

// DashboardHandler exposes the request overview.
type DashboardHandler struct {
	service dashboardService
}

// NewDashboardHandler constructs a dashboard handler.
func NewDashboardHandler(svc dashboardService) *DashboardHandler {
	return &DashboardHandler{service: svc}
}

// Summary godoc
// @Summary Dashboard summary
// @Description Request counts and amounts by status within the caller's scope
// @Tags Dashboard
// @Produce json
// @Security BearerAuth
// @Param year query int false "Numbering year, defaults to the current year"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /dashboard/summary [get]
func (h *DashboardHandler) Summary(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	year := 0
	if raw := c.Query("year"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "year must be a number"))
			return
		}
		year = parsed
	}

	summary, hit, err := h.service.Summary(c.Request.Context(), actor, year)
	if err != nil {
		response.Error(c, err)
		return
	}

	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, summary, nil)
}
