package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ExportFormat enumerates supported export formats.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportStatus captures background job lifecycle states.
type ExportStatus string

const (
	ExportStatusQueued     ExportStatus = "QUEUED"
	ExportStatusProcessing ExportStatus = "PROCESSING"
	ExportStatusFinished   ExportStatus = "FINISHED"
	ExportStatusFailed     ExportStatus = "FAILED"
)

// ExportJob is the persisted metadata of a report listing export.
type ExportJob struct {
	ID             string          `db:"id" json:"id"`
	Params         ExportJobParams `db:"params" json:"params"`
	Status         ExportStatus    `db:"status" json:"status"`
	Progress       int             `db:"progress" json:"progress"`
	ResultURL      *string         `db:"result_url" json:"resultUrl,omitempty"`
	MunicipalityID *string         `db:"municipality_id" json:"municipalityId,omitempty"`
	CreatedBy      string          `db:"created_by" json:"createdBy"`
	CreatedAt      time.Time       `db:"created_at" json:"createdAt"`
	FinishedAt     *time.Time      `db:"finished_at" json:"finishedAt,omitempty"`
	ErrorMessage   *string         `db:"error_message" json:"errorMessage,omitempty"`
}

// ExportJobParams stores the listing filters persisted as JSONB.
type ExportJobParams struct {
	Format   ExportFormat   `json:"format"`
	Category ReportCategory `json:"category,omitempty"`
	Status   ReportStatus   `json:"status,omitempty"`
	Severity ReportSeverity `json:"severity,omitempty"`
}

// Value marshals params to JSON for persistence.
func (p ExportJobParams) Value() (driver.Value, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal export job params: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the params struct.
func (p *ExportJobParams) Scan(value interface{}) error {
	if value == nil {
		*p = ExportJobParams{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for ExportJobParams", value)
	}
	if len(data) == 0 {
		*p = ExportJobParams{}
		return nil
	}
	if err := json.Unmarshal(data, p); err != nil {
		return fmt.Errorf("unmarshal export job params: %w", err)
	}
	return nil
}
