package dto

import "github.com/noah-isme/civic-report-api/internal/models"

// ExportRequest captures POST /reports/exports payload.
type ExportRequest struct {
	Format   models.ExportFormat   `json:"format" validate:"required,oneof=csv pdf"`
	Category models.ReportCategory `json:"category" validate:"omitempty,oneof=road electricity water sanitation safety emergency illegal_activity environment other"`
	Status   models.ReportStatus   `json:"status" validate:"omitempty,oneof=pending assigned in_progress resolved"`
	Severity models.ReportSeverity `json:"severity" validate:"omitempty,oneof=low medium high emergency"`
}

// ExportJobResponse is returned after enqueueing an export.
type ExportJobResponse struct {
	ID       string              `json:"id"`
	Status   models.ExportStatus `json:"status"`
	Progress int                 `json:"progress"`
}

// ExportStatusResponse exposes job progress metadata.
type ExportStatusResponse struct {
	ID        string              `json:"id"`
	Status    models.ExportStatus `json:"status"`
	Progress  int                 `json:"progress"`
	ResultURL *string             `json:"resultUrl,omitempty"`
	Error     *string             `json:"error,omitempty"`
}
