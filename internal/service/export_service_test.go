package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/shopping-request-api/internal/dto"
	"github.com/noah-isme/shopping-request-api/internal/models"
	"github.com/noah-isme/shopping-request-api/internal/workflow"
	appErrors "github.com/noah-isme/shopping-request-api/pkg/errors"
	"github.com/noah-isme/shopping-request-api/pkg/export"
	"github.com/noah-isme/shopping-request-api/pkg/storage"
)

type exportRequestsStub struct {
	byID      map[string]*models.ShoppingRequest
	list      []models.ShoppingRequest
	listCalls int
}

func (s *exportRequestsStub) Get(_ context.Context, id string, actor workflow.Actor) (*models.ShoppingRequest, error) {
	req, ok := s.byID[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
	}
	if actor.Role == models.RoleUser && req.RequesterID != actor.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "request is not visible to you")
	}
	return req, nil
}

func (s *exportRequestsStub) List(_ context.Context, query dto.RequestQuery, _ workflow.Actor) ([]models.ShoppingRequest, *models.Pagination, error) {
	s.listCalls++
	start := (query.Page - 1) * query.PageSize
	if start > len(s.list) {
		start = len(s.list)
	}
	end := start + query.PageSize
	if end > len(s.list) {
		end = len(s.list)
	}
	return s.list[start:end], &models.Pagination{Page: query.Page, PageSize: query.PageSize, TotalCount: len(s.list)}, nil
}

type capturingPDF struct {
	doc export.Document
}

func (c *capturingPDF) Render(doc export.Document) ([]byte, error) {
	c.doc = doc
	return []byte("%PDF-1.3 stub"), nil
}

func exportableRequest(status models.RequestStatus) *models.ShoppingRequest {
	approver := managerID
	approvedBy := procurementID
	approvedAt := fixedNow
	return &models.ShoppingRequest{
		ID:           "r-" + string(status),
		Number:       "SC20250042",
		RequesterID:  requesterID,
		RequestType:  "it",
		Status:       status,
		ApproverID:   &approver,
		ApprovedByID: &approvedBy,
		ApprovedAt:   &approvedAt,
		TotalAmount:  decimal.RequireFromString("12500.5"),
		CreatedAt:    fixedNow,
		Items: []models.LineItem{
			{Position: 1, ItemCode: "LAP-1", Description: "Laptop", Quantity: decimal.NewFromInt(5), Unit: models.UnitPiece,
				UnitPrice: decimal.NewNullDecimal(decimal.RequireFromString("2500.10")), TotalPrice: decimal.NewNullDecimal(decimal.RequireFromString("12500.5"))},
			{Position: 2, ItemCode: "SVC-1", Description: "Setup", Quantity: decimal.NewFromInt(2), Unit: models.UnitHour},
		},
	}
}

func newExportFixture(t *testing.T, pdf pdfRenderer) (*ExportService, *exportRequestsStub, *auditStub, *storage.LocalStorage) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	requests := &exportRequestsStub{byID: map[string]*models.ShoppingRequest{}}
	for _, status := range models.RequestStatuses {
		req := exportableRequest(status)
		requests.byID[req.ID] = req
	}
	audit := &auditStub{}
	svc := NewExportService(ExportServiceParams{
		Requests: requests,
		Profiles: mailDirectory(),
		Storage:  store,
		Signer:   storage.NewSignedURLSigner("secret", time.Hour),
		Audit:    audit,
		Config:   ExportConfig{APIPrefix: "/api/v1/"},
		PDF:      pdf,
	})
	svc.now = func() time.Time { return fixedNow }
	return svc, requests, audit, store
}

func TestRequestPDFOnlyForApprovedOrCompleted(t *testing.T) {
	svc, _, _, _ := newExportFixture(t, &capturingPDF{})
	actor := workflow.Actor{ID: requesterID, Role: models.RoleUser}

	for _, status := range models.RequestStatuses {
		_, err := svc.RequestPDF(context.Background(), "r-"+string(status), actor)
		if status == models.StatusApproved || status == models.StatusCompleted {
			require.NoError(t, err, status)
			continue
		}
		require.ErrorIs(t, err, appErrors.ErrExportNotAvailable, status)
	}

	_, err := svc.RequestPDF(context.Background(), "r-approved", workflow.Actor{ID: outsiderID, Role: models.RoleUser})
	require.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestRequestPDFStoresDocumentAndSignsLink(t *testing.T) {
	pdf := &capturingPDF{}
	svc, _, audit, _ := newExportFixture(t, pdf)
	actor := workflow.Actor{ID: requesterID, Role: models.RoleUser}

	result, err := svc.RequestPDF(context.Background(), "r-approved", actor)
	require.NoError(t, err)
	assert.Equal(t, "requests/SC20250042.pdf", result.RelativePath)
	assert.Equal(t, "/api/v1/exports/"+result.Token, result.URL)
	assert.True(t, result.ExpiresAt.After(time.Now()))

	assert.Equal(t, "Shopping Request SC20250042", pdf.doc.Title)
	assert.Contains(t, pdf.doc.Fields, export.Field{Label: "Requester", Value: "Rita"})
	assert.Contains(t, pdf.doc.Fields, export.Field{Label: "Approver", Value: "Max"})
	assert.Contains(t, pdf.doc.Fields, export.Field{Label: "Approved by", Value: "pia@example.com"})
	assert.Equal(t, []string{"1", "LAP-1", "Laptop", "5", "pcs", "2,500.10", "12,500.50"}, pdf.doc.Table.Rows[0])
	assert.Equal(t, "-", pdf.doc.Table.Rows[1][5])
	assert.Equal(t, export.Field{Label: "Total amount", Value: "12,500.50"}, pdf.doc.Totals[0])

	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionRequestExport, audit.logs[0].Action)

	file, claims, err := svc.Open(result.Token)
	require.NoError(t, err)
	defer file.Close()
	body, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.3 stub", string(body))
	assert.Equal(t, requesterID, claims.Subject)
}

func TestRequestPDFRendersRealDocument(t *testing.T) {
	svc, _, _, _ := newExportFixture(t, nil)
	result, err := svc.RequestPDF(context.Background(), "r-completed", workflow.Actor{ID: procurementID, Role: models.RoleProcurement})
	require.NoError(t, err)

	file, _, err := svc.Open(result.Token)
	require.NoError(t, err)
	defer file.Close()
	head := make([]byte, 4)
	_, err = io.ReadFull(file, head)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(head))
}

func TestOpenRejectsBadTokensAndMissingFiles(t *testing.T) {
	svc, _, _, store := newExportFixture(t, &capturingPDF{})

	_, _, err := svc.Open("not-a-token")
	require.ErrorIs(t, err, appErrors.ErrForbidden)

	result, err := svc.RequestPDF(context.Background(), "r-approved", workflow.Actor{ID: procurementID, Role: models.RoleProcurement})
	require.NoError(t, err)
	require.NoError(t, store.Delete(result.RelativePath))
	_, _, err = svc.Open(result.Token)
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestRequestsCSVPagesThroughList(t *testing.T) {
	svc, requests, _, _ := newExportFixture(t, nil)
	for i := 1; i <= 230; i++ {
		requests.list = append(requests.list, models.ShoppingRequest{
			Number:      fmt.Sprintf("SC2025%04d", i),
			RequesterID: requesterID,
			RequestType: "office",
			Status:      models.StatusDraft,
			TotalAmount: decimal.NewFromFloat(1.5),
			CreatedAt:   fixedNow,
		})
	}

	payload, err := svc.RequestsCSV(context.Background(), dto.RequestQuery{}, workflow.Actor{ID: procurementID, Role: models.RoleProcurement})
	require.NoError(t, err)
	records, err := csv.NewReader(bytes.NewReader(payload)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 231)
	assert.Equal(t, "Number", records[0][0])
	assert.Equal(t, []string{"SC20250230", "draft", "office", requesterID, "", "", "1.50", "2025-06-01T09:30:00Z"}, records[230])
	assert.Equal(t, 3, requests.listCalls)
}

func TestCleanupRemovesStaleFiles(t *testing.T) {
	svc, _, _, store := newExportFixture(t, &capturingPDF{})
	result, err := svc.RequestPDF(context.Background(), "r-approved", workflow.Actor{ID: procurementID, Role: models.RoleProcurement})
	require.NoError(t, err)

	file, err := store.Open(result.RelativePath)
	require.NoError(t, err)
	path := file.Name()
	require.NoError(t, file.Close())
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))

	deleted, err := svc.Cleanup(0)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.ToSlash(result.RelativePath)}, deleted)
}
