package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/shopping-request-api/internal/dto"
	"github.com/noah-isme/shopping-request-api/internal/models"
	"github.com/noah-isme/shopping-request-api/internal/workflow"
	appErrors "github.com/noah-isme/shopping-request-api/pkg/errors"
	"github.com/noah-isme/shopping-request-api/pkg/response"
)

const maxDecisionNote = 4000

type requestService interface {
	Create(ctx context.Context, input dto.RequestInput, actor workflow.Actor) (*models.ShoppingRequest, error)
	Update(ctx context.Context, id string, input dto.RequestInput, actor workflow.Actor) (*models.ShoppingRequest, error)
	Submit(ctx context.Context, id string, actor workflow.Actor) (*models.ShoppingRequest, error)
	Approve(ctx context.Context, id string, actor workflow.Actor, comment *string) (*models.ShoppingRequest, error)
	Reject(ctx context.Context, id string, actor workflow.Actor, reason *string) (*models.ShoppingRequest, error)
	Complete(ctx context.Context, id string, actor workflow.Actor, notes *string) (*models.ShoppingRequest, error)
	Cancel(ctx context.Context, id string, actor workflow.Actor, note *string) (*models.ShoppingRequest, error)
	Delete(ctx context.Context, id string, actor workflow.Actor) error
	Get(ctx context.Context, id string, actor workflow.Actor) (*models.ShoppingRequest, error)
	GetByNumber(ctx context.Context, number string, actor workflow.Actor) (*models.ShoppingRequest, error)
	List(ctx context.Context, query dto.RequestQuery, actor workflow.Actor) ([]models.ShoppingRequest, *models.Pagination, error)
	History(ctx context.Context, id string, actor workflow.Actor) ([]models.AuditLog, error)
}

type decisionFunc func(ctx context.Context, id string, actor workflow.Actor, note *string) (*models.ShoppingRequest, error)

// RequestHandler exposes the shopping request lifecycle.
type RequestHandler struct {
	service requestService
}

// NewRequestHandler constructs a request handler.
func NewRequestHandler(svc requestService) *RequestHandler {
	return &RequestHandler{service: svc}
}

// List godoc
// @Summary List shopping requests
// @Description Requests visible to the caller, filtered and paginated
// @Tags Requests
// @Produce json
// @Security BearerAuth
// @Param status query []string false "Status filter" collectionFormat(multi)
// @Param requester_id query string false "Requester ID"
// @Param approver_id query string false "Approver ID"
// @Param request_type query string false "Request type"
// @Param year query int false "Numbering year"
// @Param search query string false "Search number, client or justification"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /requests [get]
func (h *RequestHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var query dto.RequestQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}

	requests, pagination, err := h.service.List(c.Request.Context(), query, actor)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, requests, pagination)
}

// Create godoc
// @Summary Create shopping request
// @Description Store a draft and issue its request number
// @Tags Requests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.RequestInput true "Request payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /requests [post]
func (h *RequestHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var input dto.RequestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	req, err := h.service.Create(c.Request.Context(), input, actor)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, req)
}

// Get godoc
// @Summary Get shopping request
// @Tags Requests
// @Produce json
// @Security BearerAuth
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /requests/{id} [get]
func (h *RequestHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	req, err := h.service.Get(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, req, nil)
}

// GetByNumber godoc
// @Summary Get shopping request by number
// @Tags Requests
// @Produce json
// @Security BearerAuth
// @Param number path string true "Request number, e.g. SC20250001"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /requests/number/{number} [get]
func (h *RequestHandler) GetByNumber(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	req, err := h.service.GetByNumber(c.Request.Context(), c.Param("number"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, req, nil)
}

// Update godoc
// @Summary Update shopping request
// @Description Replace content and items of a draft or cancelled request
// @Tags Requests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Request ID"
// @Param payload body dto.RequestInput true "Request payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /requests/{id} [put]
func (h *RequestHandler) Update(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var input dto.RequestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	req, err := h.service.Update(c.Request.Context(), c.Param("id"), input, actor)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, req, nil)
}

// Delete godoc
// @Summary Delete draft request
// @Tags Requests
// @Security BearerAuth
// @Param id path string true "Request ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /requests/{id} [delete]
func (h *RequestHandler) Delete(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Delete(c.Request.Context(), c.Param("id"), actor); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// Submit godoc
// @Summary Submit request for approval
// @Tags Requests
// @Produce json
// @Security BearerAuth
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /requests/{id}/submit [post]
func (h *RequestHandler) Submit(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	req, err := h.service.Submit(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, req, nil)
}

// Approve godoc
// @Summary Approve request
// @Tags Requests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Request ID"
// @Param payload body dto.DecisionRequest false "Optional comment"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /requests/{id}/approve [post]
func (h *RequestHandler) Approve(c *gin.Context) {
	h.decide(c, h.service.Approve)
}

// Reject godoc
// @Summary Reject request
// @Tags Requests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Request ID"
// @Param payload body dto.DecisionRequest false "Optional reason"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /requests/{id}/reject [post]
func (h *RequestHandler) Reject(c *gin.Context) {
	h.decide(c, h.service.Reject)
}

// Complete godoc
// @Summary Complete request
// @Tags Requests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Request ID"
// @Param payload body dto.DecisionRequest false "Optional procurement notes"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /requests/{id}/complete [post]
func (h *RequestHandler) Complete(c *gin.Context) {
	h.decide(c, h.service.Complete)
}

// Cancel godoc
// @Summary Cancel request
// @Description Return a pending or approved request to the requester
// @Tags Requests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Request ID"
// @Param payload body dto.DecisionRequest false "Optional note"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /requests/{id}/cancel [post]
func (h *RequestHandler) Cancel(c *gin.Context) {
	h.decide(c, h.service.Cancel)
}

// History godoc
// @Summary Request audit trail
// @Tags Requests
// @Produce json
// @Security BearerAuth
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/history [get]
func (h *RequestHandler) History(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	logs, err := h.service.History(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, logs, nil)
}

func (h *RequestHandler) decide(c *gin.Context, apply decisionFunc) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var body dto.DecisionRequest
	if c.Request.ContentLength != 0 && c.Request.Body != nil {
		if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}
	if body.Note != nil && utf8.RuneCountInString(*body.Note) > maxDecisionNote {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "note is too long"))
		return
	}

	req, err := apply(c.Request.Context(), c.Param("id"), actor, body.Note)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, req, nil)
}
