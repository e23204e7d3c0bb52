package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/shopping-request-api/internal/dto"
	"github.com/noah-isme/shopping-request-api/internal/models"
	"github.com/noah-isme/shopping-request-api/internal/workflow"
	appErrors "github.com/noah-isme/shopping-request-api/pkg/errors"
	"github.com/noah-isme/shopping-request-api/pkg/export"
	"github.com/noah-isme/shopping-request-api/pkg/storage"
)

const (
	exportFormatPDF = "pdf"
	exportFormatCSV = "csv"

	csvPageSize = 100
)

type exportRequestReader interface {
	Get(ctx context.Context, id string, actor workflow.Actor) (*models.ShoppingRequest, error)
	List(ctx context.Context, query dto.RequestQuery, actor workflow.Actor) ([]models.ShoppingRequest, *models.Pagination, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Table) ([]byte, error)
}

type pdfRenderer interface {
	Render(doc export.Document) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	// ResultTTL is how long rendered files stay on disk.
	ResultTTL time.Duration
	// CSVLimit caps the rows of a list export.
	CSVLimit int
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	Number       string
	RelativePath string
	Token        string
	URL          string
	Format       string
	ExpiresAt    time.Time
}

// ExportService renders request documents and serves them through signed links.
type ExportService struct {
	requests exportRequestReader
	profiles profileLookup
	storage  fileStorage
	csv      csvRenderer
	pdf      pdfRenderer
	signer   *storage.SignedURLSigner
	audit    auditLogger
	metrics  *MetricsService
	logger   *zap.Logger
	cfg      ExportConfig
	now      func() time.Time
}

// ExportServiceParams groups constructor dependencies.
type ExportServiceParams struct {
	Requests exportRequestReader
	Profiles profileLookup
	Storage  fileStorage
	Signer   *storage.SignedURLSigner
	Audit    auditLogger
	Metrics  *MetricsService
	Logger   *zap.Logger
	Config   ExportConfig
	CSV      csvRenderer
	PDF      pdfRenderer
}

// NewExportService constructs an ExportService.
func NewExportService(params ExportServiceParams) *ExportService {
	cfg := params.Config
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.CSVLimit <= 0 {
		cfg.CSVLimit = 5000
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	csv := params.CSV
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	pdf := params.PDF
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		requests: params.Requests,
		profiles: params.Profiles,
		storage:  params.Storage,
		csv:      csv,
		pdf:      pdf,
		signer:   params.Signer,
		audit:    params.Audit,
		metrics:  params.Metrics,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// RequestPDF renders an approved or completed request and returns a signed download link.
func (s *ExportService) RequestPDF(ctx context.Context, id string, actor workflow.Actor) (*ExportResult, error) {
	req, err := s.requests.Get(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if req.Status != models.StatusApproved && req.Status != models.StatusCompleted {
		return nil, appErrors.Clone(appErrors.ErrExportNotAvailable,
			fmt.Sprintf("request %s is %s; only approved or completed requests can be exported", req.Number, req.Status))
	}

	payload, err := s.pdf.Render(s.document(ctx, req))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render request document")
	}
	relPath, err := s.storage.Save(fmt.Sprintf("requests/%s.pdf", req.Number), payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store request document")
	}
	token, expiresAt, err := s.signer.Generate(actor.ID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
	}

	s.metrics.RecordExport(exportFormatPDF)
	s.recordExport(ctx, actor.ID, req.ID, exportFormatPDF)

	return &ExportResult{
		Number:       req.Number,
		RelativePath: relPath,
		Token:        token,
		URL:          s.downloadURL(token),
		Format:       exportFormatPDF,
		ExpiresAt:    expiresAt,
	}, nil
}

// RequestsCSV renders every request the actor can see that matches the query.
func (s *ExportService) RequestsCSV(ctx context.Context, query dto.RequestQuery, actor workflow.Actor) ([]byte, error) {
	table := export.Table{
		Headers: []string{"Number", "Status", "Type", "Requester", "Approver", "Approved By", "Total", "Created At"},
		Rows:    make([][]string, 0),
	}
	query.Page = 1
	query.PageSize = csvPageSize
	for len(table.Rows) < s.cfg.CSVLimit {
		requests, pagination, err := s.requests.List(ctx, query, actor)
		if err != nil {
			return nil, err
		}
		for _, req := range requests {
			if len(table.Rows) == s.cfg.CSVLimit {
				break
			}
			table.Rows = append(table.Rows, []string{
				req.Number,
				string(req.Status),
				req.RequestType,
				req.RequesterID,
				deref(req.ApproverID),
				deref(req.ApprovedByID),
				req.TotalAmount.StringFixed(2),
				req.CreatedAt.UTC().Format(time.RFC3339),
			})
		}
		if len(requests) < csvPageSize || pagination == nil || query.Page*csvPageSize >= pagination.TotalCount {
			break
		}
		query.Page++
	}

	payload, err := s.csv.Render(table)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
	}
	s.metrics.RecordExport(exportFormatCSV)
	return payload, nil
}

// Open validates a download token and returns the stored file.
func (s *ExportService) Open(token string) (*os.File, storage.Claims, error) {
	claims, err := s.signer.Parse(token, false)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, storage.Claims{}, appErrors.Clone(appErrors.ErrForbidden, "download link expired")
		}
		return nil, storage.Claims{}, appErrors.Clone(appErrors.ErrForbidden, "invalid download link")
	}
	file, err := s.storage.Open(claims.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, storage.Claims{}, appErrors.Clone(appErrors.ErrNotFound, "export no longer available")
		}
		return nil, storage.Claims{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export")
	}
	return file, claims, nil
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

// RunCleanup sweeps expired files every interval until ctx is cancelled.
func (s *ExportService) RunCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := s.Cleanup(0)
			if err != nil {
				s.logger.Warn("export cleanup failed", zap.Error(err))
				continue
			}
			if len(deleted) > 0 {
				s.logger.Info("export cleanup", zap.Int("deleted", len(deleted)))
			}
		}
	}
}

func (s *ExportService) document(ctx context.Context, req *models.ShoppingRequest) export.Document {
	fields := []export.Field{
		{Label: "Request number", Value: req.Number},
		{Label: "Status", Value: humanStatus(req.Status)},
		{Label: "Type", Value: req.RequestType},
		{Label: "Requester", Value: s.personName(ctx, req.RequesterID)},
		{Label: "Created", Value: req.CreatedAt.UTC().Format("2006-01-02")},
	}
	if req.ApproverID != nil {
		fields = append(fields, export.Field{Label: "Approver", Value: s.personName(ctx, *req.ApproverID)})
	}
	if req.ApprovedByID != nil {
		fields = append(fields, export.Field{Label: "Approved by", Value: s.personName(ctx, *req.ApprovedByID)})
	}
	if req.ApprovedAt != nil {
		fields = append(fields, export.Field{Label: "Approved at", Value: req.ApprovedAt.UTC().Format("2006-01-02 15:04")})
	}
	if req.ClientName != nil {
		fields = append(fields, export.Field{Label: "Client", Value: *req.ClientName})
	}
	if req.PreferredSupplier != nil {
		fields = append(fields, export.Field{Label: "Preferred supplier", Value: *req.PreferredSupplier})
	}
	if req.DesiredDeliveryDate != nil {
		fields = append(fields, export.Field{Label: "Deliver by", Value: req.DesiredDeliveryDate.Format("2006-01-02")})
	}

	rows := make([][]string, 0, len(req.Items))
	for _, item := range req.Items {
		price, total := "-", "-"
		if item.UnitPrice.Valid {
			price = export.Amount(item.UnitPrice.Decimal)
		}
		if item.TotalPrice.Valid {
			total = export.Amount(item.TotalPrice.Decimal)
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", item.Position),
			item.ItemCode,
			item.Description,
			export.Quantity(item.Quantity),
			string(item.Unit),
			price,
			total,
		})
	}

	totals := []export.Field{{Label: "Total amount", Value: export.Amount(req.TotalAmount)}}
	if req.ApprovalComment != nil {
		totals = append(totals, export.Field{Label: "Approval comment", Value: *req.ApprovalComment})
	}
	if req.ProcurementNotes != nil {
		totals = append(totals, export.Field{Label: "Procurement notes", Value: *req.ProcurementNotes})
	}

	return export.Document{
		Title:  fmt.Sprintf("Shopping Request %s", req.Number),
		Fields: fields,
		Table: export.Table{
			Headers: []string{"#", "Code", "Description", "Qty", "Unit", "Unit price", "Line total"},
			Rows:    rows,
		},
		Widths: []float64{1, 2, 6, 1.5, 1.5, 2.5, 2.5},
		Totals: totals,
		Footer: fmt.Sprintf("Generated %s", s.now().UTC().Format(time.RFC1123)),
	}
}

func (s *ExportService) personName(ctx context.Context, id string) string {
	if s.profiles == nil {
		return id
	}
	profile, err := s.profiles.FindByID(ctx, id)
	if err != nil {
		return id
	}
	return displayName(*profile)
}

func (s *ExportService) downloadURL(token string) string {
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	return fmt.Sprintf("%s/exports/%s", prefix, token)
}

func (s *ExportService) recordExport(ctx context.Context, actorID, requestID, format string) {
	if s.audit == nil {
		return
	}
	entry := &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionRequestExport,
		Resource:   auditResourceRequest,
		ResourceID: &requestID,
		NewValues:  []byte(fmt.Sprintf(`{"format":%q}`, format)),
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record export audit log", zap.Error(err))
	}
}
