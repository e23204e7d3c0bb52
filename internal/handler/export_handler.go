package handler

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/shopping-request-api/internal/dto"
	"github.com/noah-isme/shopping-request-api/internal/service"
	"github.com/noah-isme/shopping-request-api/internal/workflow"
	appErrors "github.com/noah-isme/shopping-request-api/pkg/errors"
	"github.com/noah-isme/shopping-request-api/pkg/response"
	"github.com/noah-isme/shopping-request-api/pkg/storage"
)

type exportService interface {
	RequestPDF(ctx context.Context, id string, actor workflow.Actor) (*service.ExportResult, error)
	RequestsCSV(ctx context.Context, query dto.RequestQuery, actor workflow.Actor) ([]byte, error)
	Open(token string) (*os.File, storage.Claims, error)
}

// ExportHandler serves rendered documents.
type ExportHandler struct {
	service exportService
	now     func() time.Time
}

// NewExportHandler constructs an export handler.
func NewExportHandler(svc exportService) *ExportHandler {
	return &ExportHandler{service: svc, now: time.Now}
}

// RequestPDF godoc
// @Summary Export request as PDF
// @Description Render an approved or completed request and return a signed download link
// @Tags Exports
// @Produce json
// @Security BearerAuth
// @Param id path string true "Request ID"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /requests/{id}/export [post]
func (h *ExportHandler) RequestPDF(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	result, err := h.service.RequestPDF(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.ExportLinkResponse{
		Number:    result.Number,
		Format:    result.Format,
		URL:       result.URL,
		ExpiresAt: result.ExpiresAt,
	})
}

// Download godoc
// @Summary Download exported document
// @Description Stream a stored export using its signed token
// @Tags Exports
// @Produce application/pdf
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /exports/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	file, claims, err := h.service.Open(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat export"))
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", path.Base(claims.Path)))
	c.Header("Cache-Control", "private, no-store")
	http.ServeContent(c.Writer, c.Request, path.Base(claims.Path), info.ModTime(), file)
}

// RequestsCSV godoc
// @Summary Export request list as CSV
// @Tags Exports
// @Produce text/csv
// @Security BearerAuth
// @Param status query []string false "Status filter" collectionFormat(multi)
// @Param year query int false "Numbering year"
// @Success 200 {file} file
// @Router /requests/export.csv [get]
func (h *ExportHandler) RequestsCSV(c *gin.Context) {
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

	payload, err := h.service.RequestsCSV(c.Request.Context(), query, actor)
	if err != nil {
		response.Error(c, err)
		return
	}

	filename := fmt.Sprintf("requests_%s.csv", h.now().UTC().Format("20060102_150405"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", payload)
}
