package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// ReportCategory classifies the reported issue.
type ReportCategory string

const (
	CategoryRoad            ReportCategory = "road"
	CategoryElectricity     ReportCategory = "electricity"
	CategoryWater           ReportCategory = "water"
	CategorySanitation      ReportCategory = "sanitation"
	CategorySafety          ReportCategory = "safety"
	CategoryEmergency       ReportCategory = "emergency"
	CategoryIllegalActivity ReportCategory = "illegal_activity"
	CategoryEnvironment     ReportCategory = "environment"
	CategoryOther           ReportCategory = "other"
)

// ReportSeverity is the impact classification driving evidence requirements.
type ReportSeverity string

const (
	SeverityLow       ReportSeverity = "low"
	SeverityMedium    ReportSeverity = "medium"
	SeverityHigh      ReportSeverity = "high"
	SeverityEmergency ReportSeverity = "emergency"
)

// ReportPriority is the operational urgency used for triage ordering.
type ReportPriority string

const (
	PriorityLow    ReportPriority = "low"
	PriorityMedium ReportPriority = "medium"
	PriorityHigh   ReportPriority = "high"
	PriorityUrgent ReportPriority = "urgent"
)

// ReportStatus is the lifecycle stage of a report.
type ReportStatus string

const (
	StatusPending    ReportStatus = "pending"
	StatusAssigned   ReportStatus = "assigned"
	StatusInProgress ReportStatus = "in_progress"
	StatusResolved   ReportStatus = "resolved"
)

// ActiveStatuses are the statuses that count towards duplicate detection.
var ActiveStatuses = []ReportStatus{StatusPending, StatusAssigned, StatusInProgress}

// ReportLocation holds the coordinates and textual address of a report.
type ReportLocation struct {
	Latitude  float64 `db:"latitude" json:"lat"`
	Longitude float64 `db:"longitude" json:"lng"`
	Address   string  `db:"address" json:"address,omitempty"`
	Ward      string  `db:"ward" json:"ward,omitempty"`
}

// Report is a citizen-submitted municipal issue.
type Report struct {
	ID              string         `db:"id" json:"id"`
	Title           string         `db:"title" json:"title"`
	Description     string         `db:"description" json:"description"`
	Category        ReportCategory `db:"category" json:"category"`
	Severity        ReportSeverity `db:"severity" json:"severity"`
	Priority        ReportPriority `db:"priority" json:"priority"`
	Status          ReportStatus   `db:"status" json:"status"`
	ReportLocation  `json:"location"`
	PhotoURLs       pq.StringArray `db:"photo_urls" json:"photos"`
	VideoURLs       pq.StringArray `db:"video_urls" json:"videos"`
	PointsAwarded   int            `db:"points_awarded" json:"pointsAwarded"`
	DueDate         *time.Time     `db:"due_date" json:"dueDate,omitempty"`
	AssignmentNotes *string        `db:"assignment_notes" json:"assignmentNotes,omitempty"`
	CitizenID       string         `db:"citizen_id" json:"citizenId"`
	MunicipalityID  string         `db:"municipality_id" json:"municipalityId"`
	AssignedStaffID *string        `db:"assigned_staff_id" json:"assignedStaffId,omitempty"`
	AssignedAt      *time.Time     `db:"assigned_at" json:"assignedAt,omitempty"`
	InProgressAt    *time.Time     `db:"in_progress_at" json:"inProgressAt,omitempty"`
	ResolvedAt      *time.Time     `db:"resolved_at" json:"resolvedAt,omitempty"`
	ValidationInfo  ValidationInfo `db:"validation_info" json:"validationInfo"`
	CreatedAt       time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updatedAt"`
}

// IsActive reports whether the report still counts as open work.
func (r *Report) IsActive() bool {
	for _, status := range ActiveStatuses {
		if r.Status == status {
			return true
		}
	}
	return false
}

// ValidationInfo records which checks a report passed at creation, persisted as JSONB.
type ValidationInfo struct {
	LocationValidated bool       `json:"locationValidated"`
	FilesValidated    bool       `json:"filesValidated"`
	TotalFiles        int        `json:"totalFiles"`
	ValidatedAt       *time.Time `json:"validatedAt,omitempty"`
}

// Value marshals the marker to JSON for persistence.
func (v ValidationInfo) Value() (driver.Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal validation info: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the marker.
func (v *ValidationInfo) Scan(value interface{}) error {
	if value == nil {
		*v = ValidationInfo{}
		return nil
	}
	var data []byte
	switch raw := value.(type) {
	case []byte:
		data = raw
	case string:
		data = []byte(raw)
	default:
		return fmt.Errorf("unsupported type %T for ValidationInfo", value)
	}
	if len(data) == 0 {
		*v = ValidationInfo{}
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal validation info: %w", err)
	}
	return nil
}

// ReportFilter narrows listing queries. CitizenID / AssignedStaffID / MunicipalityID are scope filters.
type ReportFilter struct {
	CitizenID       string
	AssignedStaffID string
	MunicipalityID  string
	Category        ReportCategory
	Status          ReportStatus
	Severity        ReportSeverity
	Page            int
	Limit           int
	SortBy          string
	SortOrder       string
}

// Offset returns the row offset for the filter page.
func (f ReportFilter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

// ReportStatusCount is one bucket of the grouped status query.
type ReportStatusCount struct {
	Status ReportStatus `db:"status"`
	Count  int          `db:"count"`
}

// ReportStatusCounts is the dashboard summary with zero-filled buckets.
type ReportStatusCounts struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Assigned   int `json:"assigned"`
	InProgress int `json:"in_progress"`
	Resolved   int `json:"resolved"`
}
