package dto

import (
	"sort"
	"time"

	"github.com/noah-isme/civic-report-api/internal/models"
)

// CreateReportRequest captures the non-file fields of POST /reports.
type CreateReportRequest struct {
	Title          string                `form:"title" json:"title" validate:"required,max=200"`
	Description    string                `form:"description" json:"description" validate:"max=5000"`
	Category       models.ReportCategory `form:"category" json:"category" validate:"required,oneof=road electricity water sanitation safety emergency illegal_activity environment other"`
	Severity       models.ReportSeverity `form:"severity" json:"severity" validate:"omitempty,oneof=low medium high emergency"`
	Priority       models.ReportPriority `form:"priority" json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	MunicipalityID string                `form:"municipalityId" json:"municipalityId" validate:"required"`
	Latitude       *float64              `form:"lat" json:"lat"`
	Longitude      *float64              `form:"lng" json:"lng"`
	Address        string                `form:"address" json:"address" validate:"max=500"`
	Ward           string                `form:"ward" json:"ward" validate:"max=120"`
}

// UpdateReportRequest captures the citizen-editable fields of PUT /reports/:id.
// SubmittedFields lists every key present in the request body and is used to reject server-controlled fields.
type UpdateReportRequest struct {
	Title           *string                `form:"title" json:"title" validate:"omitempty,min=1,max=200"`
	Description     *string                `form:"description" json:"description" validate:"omitempty,max=5000"`
	Category        *models.ReportCategory `form:"category" json:"category" validate:"omitempty,oneof=road electricity water sanitation safety emergency illegal_activity environment other"`
	Severity        *models.ReportSeverity `form:"severity" json:"severity" validate:"omitempty,oneof=low medium high emergency"`
	Priority        *models.ReportPriority `form:"priority" json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	Latitude        *float64               `form:"lat" json:"lat"`
	Longitude       *float64               `form:"lng" json:"lng"`
	Address         *string                `form:"address" json:"address" validate:"omitempty,max=500"`
	Ward            *string                `form:"ward" json:"ward" validate:"omitempty,max=120"`
	SubmittedFields []string               `form:"-" json:"-"`
}

var serverControlledFields = map[string]struct{}{
	"status":          {},
	"assignedStaffId": {},
	"assignedAt":      {},
	"inProgressAt":    {},
	"resolvedAt":      {},
	"dueDate":         {},
	"assignmentNotes": {},
	"pointsAwarded":   {},
	"citizenId":       {},
	"municipalityId":  {},
	"validationInfo":  {},
	"createdAt":       {},
	"updatedAt":       {},
	"id":              {},
}

// ForbiddenFields returns the submitted keys a citizen may not modify, sorted.
func (r UpdateReportRequest) ForbiddenFields() []string {
	var forbidden []string
	seen := make(map[string]struct{})
	for _, field := range r.SubmittedFields {
		if _, ok := serverControlledFields[field]; !ok {
			continue
		}
		if _, dup := seen[field]; dup {
			continue
		}
		seen[field] = struct{}{}
		forbidden = append(forbidden, field)
	}
	sort.Strings(forbidden)
	return forbidden
}

// UpdateStatusRequest is the payload of PUT /reports/:id/status.
type UpdateStatusRequest struct {
	Status models.ReportStatus `json:"status" validate:"required,oneof=pending assigned in_progress resolved"`
	Notes  *string             `json:"notes" validate:"omitempty,max=1000"`
}

// AssignReportRequest is the payload of PUT /reports/:id/assign.
type AssignReportRequest struct {
	AssignedStaffID string                 `json:"assignedStaffId" validate:"required"`
	Priority        *models.ReportPriority `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	DueDate         *time.Time             `json:"dueDate"`
	Notes           *string                `json:"notes" validate:"omitempty,max=1000"`
}

// ReportQuery captures listing query parameters.
type ReportQuery struct {
	Page      int                   `form:"page" validate:"omitempty,min=1"`
	Limit     int                   `form:"limit" validate:"omitempty,min=1"`
	Category  models.ReportCategory `form:"category" validate:"omitempty,oneof=road electricity water sanitation safety emergency illegal_activity environment other"`
	Status    models.ReportStatus   `form:"status" validate:"omitempty,oneof=pending assigned in_progress resolved"`
	Severity  models.ReportSeverity `form:"severity" validate:"omitempty,oneof=low medium high emergency"`
	SortBy    string                `form:"sortBy" validate:"omitempty,oneof=created_at updated_at priority severity due_date"`
	SortOrder string                `form:"sortOrder" validate:"omitempty,oneof=asc desc"`
}

// ReportScope selects which mandatory filter a listing applies.
type ReportScope string

const (
	ScopeAll      ReportScope = "all"
	ScopeMine     ReportScope = "mine"
	ScopeAssigned ReportScope = "assigned"
)

// ReportDetail is a report with populated citizen, municipality and staff summaries.
type ReportDetail struct {
	models.Report
	Citizen       *models.UserSummary         `json:"citizen,omitempty"`
	Municipality  *models.MunicipalitySummary `json:"municipality,omitempty"`
	AssignedStaff *models.UserSummary         `json:"assignedStaff,omitempty"`
}

// ActivityQuery limits the timeline returned by GET /reports/:id/activity.
type ActivityQuery struct {
	Limit int `form:"limit" validate:"omitempty,min=1,max=200"`
}
