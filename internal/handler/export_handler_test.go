package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/shopping-request-api/internal/dto"
	"github.com/noah-isme/shopping-request-api/internal/models"
	"github.com/noah-isme/shopping-request-api/internal/service"
	"github.com/noah-isme/shopping-request-api/internal/workflow"
	appErrors "github.com/noah-isme/shopping-request-api/pkg/errors"
	"github.com/noah-isme/shopping-request-api/pkg/storage"
)

type fakeExportService struct {
	result    *service.ExportResult
	csv       []byte
	file      string
	err       error
	lastQuery dto.RequestQuery
}

func (f *fakeExportService) RequestPDF(_ context.Context, _ string, _ workflow.Actor) (*service.ExportResult, error) {
	return f.result, f.err
}

func (f *fakeExportService) RequestsCSV(_ context.Context, query dto.RequestQuery, _ workflow.Actor) ([]byte, error) {
	f.lastQuery = query
	return f.csv, f.err
}

func (f *fakeExportService) Open(string) (*os.File, storage.Claims, error) {
	if f.err != nil {
		return nil, storage.Claims{}, f.err
	}
	file, err := os.Open(f.file)
	if err != nil {
		return nil, storage.Claims{}, err
	}
	return file, storage.Claims{Subject: "user-1", Path: "requests/" + filepath.Base(f.file)}, nil
}

func TestExportHandlerRequestPDF(t *testing.T) {
	expires := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	handler := NewExportHandler(&fakeExportService{result: &service.ExportResult{
		Number:    "SC20250042",
		Format:    "pdf",
		URL:       "/api/v1/exports/token",
		ExpiresAt: expires,
	}})

	c, rec := newTestContext(http.MethodPost, "/requests/r-1/export", nil, managerClaims())
	c.Params = gin.Params{{Key: "id", Value: "r-1"}}
	handler.RequestPDF(c)

	require.Equal(t, http.StatusCreated, rec.Code)
	var link dto.ExportLinkResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &link))
	assert.Equal(t, "/api/v1/exports/token", link.URL)
	assert.True(t, link.ExpiresAt.Equal(expires))
}

func TestExportHandlerRequestPDFNotExportable(t *testing.T) {
	handler := NewExportHandler(&fakeExportService{err: appErrors.ErrExportNotAvailable})

	c, rec := newTestContext(http.MethodPost, "/requests/r-1/export", nil, managerClaims())
	c.Params = gin.Params{{Key: "id", Value: "r-1"}}
	handler.RequestPDF(c)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestExportHandlerDownload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "SC20250042.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.3 test"), 0o644))
	handler := NewExportHandler(&fakeExportService{file: path})

	c, rec := newTestContext(http.MethodGet, "/exports/token", nil, nil)
	c.Params = gin.Params{{Key: "token", Value: "token"}}
	handler.Download(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "%PDF-1.3 test", rec.Body.String())
	assert.Equal(t, `attachment; filename="SC20250042.pdf"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
}

func TestExportHandlerDownloadRejectsBadLinks(t *testing.T) {
	handler := NewExportHandler(&fakeExportService{err: appErrors.Clone(appErrors.ErrForbidden, "download link expired")})

	c, rec := newTestContext(http.MethodGet, "/exports/stale", nil, nil)
	c.Params = gin.Params{{Key: "token", Value: "stale"}}
	handler.Download(c)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestExportHandlerRequestsCSV(t *testing.T) {
	svc := &fakeExportService{csv: []byte("Number\nSC20250001\n")}
	handler := NewExportHandler(svc)
	handler.now = func() time.Time { return time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC) }

	c, rec := newTestContext(http.MethodGet, "/requests/export.csv?status=approved", nil, &models.JWTClaims{UserID: "buyer", Role: models.RoleProcurement})
	handler.RequestsCSV(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="requests_20250601_093000.csv"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, []models.RequestStatus{models.StatusApproved}, svc.lastQuery.Status)
	assert.Contains(t, rec.Body.String(), "SC20250001")
}
