package service

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/civic-report-api/internal/models"
	"github.com/noah-isme/civic-report-api/pkg/export"
	"github.com/noah-isme/civic-report-api/pkg/storage"
)

type reportLister interface {
	List(ctx context.Context, filter models.ReportFilter) ([]models.Report, int, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type tableRenderer interface {
	Render(table export.Table) ([]byte, error)
}

const exportPageSize = 100

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
	MaxRows   int
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ExportFormat
	Rows         int
	ExpiresAt    time.Time
}

// ExportService renders filtered report listings to files and signs their download URLs.
type ExportService struct {
	reports reportLister
	storage fileStorage
	csv     tableRenderer
	pdf     tableRenderer
	signer  *storage.SignedURLSigner
	logger  *zap.Logger
	cfg     ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(reports reportLister, store fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv, pdf tableRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = 5000
	}
	if csv == nil {
		csv = export.NewCSVRenderer()
	}
	if pdf == nil {
		pdf = export.NewPDFRenderer()
	}
	return &ExportService{
		reports: reports,
		storage: store,
		csv:     csv,
		pdf:     pdf,
		signer:  signer,
		logger:  logger,
		cfg:     cfg,
	}
}

// Generate collects the job's reports, renders them and stores the file.
func (s *ExportService) Generate(ctx context.Context, job *models.ExportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("export job is nil")
	}
	renderer, err := s.renderer(job.Params.Format)
	if err != nil {
		return nil, err
	}
	reports, err := s.collect(ctx, job)
	if err != nil {
		return nil, err
	}
	payload, err := renderer.Render(reportTable(job, reports))
	if err != nil {
		return nil, err
	}

	relPath, err := s.storage.Save(s.buildFilename(job), payload)
	if err != nil {
		return nil, err
	}
	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	s.logger.Debug("export rendered", zap.String("job_id", job.ID), zap.Int("rows", len(reports)), zap.String("path", relPath))
	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/export/%s", prefix, token),
		Format:       job.Params.Format,
		Rows:         len(reports),
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (the configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) renderer(format models.ExportFormat) (tableRenderer, error) {
	switch format {
	case models.ExportFormatCSV:
		return s.csv, nil
	case models.ExportFormatPDF:
		return s.pdf, nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

// collect pages through the listing until every match or MaxRows reports are loaded.
func (s *ExportService) collect(ctx context.Context, job *models.ExportJob) ([]models.Report, error) {
	filter := models.ReportFilter{
		Category:  job.Params.Category,
		Status:    job.Params.Status,
		Severity:  job.Params.Severity,
		SortBy:    "created_at",
		SortOrder: "desc",
		Limit:     exportPageSize,
	}
	if job.MunicipalityID != nil {
		filter.MunicipalityID = *job.MunicipalityID
	}

	var out []models.Report
	for page := 1; ; page++ {
		filter.Page = page
		batch, total, err := s.reports.List(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("list reports for export: %w", err)
		}
		out = append(out, batch...)
		if len(out) >= s.cfg.MaxRows {
			s.logger.Warn("export truncated", zap.String("job_id", job.ID), zap.Int("total", total), zap.Int("max_rows", s.cfg.MaxRows))
			return out[:s.cfg.MaxRows], nil
		}
		if len(batch) < filter.Limit || len(out) >= total {
			return out, nil
		}
	}
}

func (s *ExportService) buildFilename(job *models.ExportJob) string {
	scope := "all"
	if job.MunicipalityID != nil && *job.MunicipalityID != "" {
		scope = *job.MunicipalityID
	}
	timestamp := time.Now().UTC().Format("20060102_150405")
	return fmt.Sprintf("reports_%s_%s.%s", sanitizeFilename(scope), timestamp, job.Params.Format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

var reportExportColumns = []export.Column{
	{Key: "id", Title: "ID", Width: 3},
	{Key: "title", Title: "Title", Width: 4},
	{Key: "category", Title: "Category", Width: 2},
	{Key: "severity", Title: "Severity", Width: 1.5},
	{Key: "priority", Title: "Priority", Width: 1.5},
	{Key: "status", Title: "Status", Width: 1.5},
	{Key: "ward", Title: "Ward", Width: 1},
	{Key: "address", Title: "Address", Width: 3},
	{Key: "lat", Title: "Lat", Width: 1.5},
	{Key: "lng", Title: "Lng", Width: 1.5},
	{Key: "assignedStaffId", Title: "Assigned To", Width: 3},
	{Key: "dueDate", Title: "Due", Width: 2},
	{Key: "createdAt", Title: "Created", Width: 2},
	{Key: "resolvedAt", Title: "Resolved", Width: 2},
	{Key: "pointsAwarded", Title: "Points", Width: 1},
}

func reportTable(job *models.ExportJob, reports []models.Report) export.Table {
	title := "Report listing"
	if job.Params.Status != "" {
		title += " - " + string(job.Params.Status)
	}
	if job.Params.Category != "" {
		title += " - " + string(job.Params.Category)
	}
	rows := make([]map[string]string, 0, len(reports))
	for _, report := range reports {
		rows = append(rows, map[string]string{
			"id":              report.ID,
			"title":           report.Title,
			"category":        string(report.Category),
			"severity":        string(report.Severity),
			"priority":        string(report.Priority),
			"status":          string(report.Status),
			"ward":            report.Ward,
			"address":         report.Address,
			"lat":             strconv.FormatFloat(report.Latitude, 'f', 5, 64),
			"lng":             strconv.FormatFloat(report.Longitude, 'f', 5, 64),
			"assignedStaffId": deref(report.AssignedStaffID),
			"dueDate":         formatExportTime(report.DueDate),
			"createdAt":       report.CreatedAt.UTC().Format(time.RFC3339),
			"resolvedAt":      formatExportTime(report.ResolvedAt),
			"pointsAwarded":   strconv.Itoa(report.PointsAwarded),
		})
	}
	return export.Table{Title: title, Columns: reportExportColumns, Rows: rows}
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func formatExportTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
