package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/civic-report-api/internal/dto"
	"github.com/noah-isme/civic-report-api/internal/middleware"
	"github.com/noah-isme/civic-report-api/internal/models"
	"github.com/noah-isme/civic-report-api/internal/service"
	appErrors "github.com/noah-isme/civic-report-api/pkg/errors"
	"github.com/noah-isme/civic-report-api/pkg/response"
)

type reportService interface {
	Create(ctx context.Context, req dto.CreateReportRequest, media service.ReportMedia, actor service.Actor) (*models.Report, error)
	Update(ctx context.Context, id string, req dto.UpdateReportRequest, media service.ReportMedia, actor service.Actor) (*models.Report, error)
	Delete(ctx context.Context, id string, actor service.Actor) error
	Get(ctx context.Context, id string, actor service.Actor) (*dto.ReportDetail, error)
	UpdateStatus(ctx context.Context, id string, req dto.UpdateStatusRequest, actor service.Actor) (*models.Report, error)
	Assign(ctx context.Context, id string, req dto.AssignReportRequest, actor service.Actor) (*models.Report, error)
	List(ctx context.Context, query dto.ReportQuery, scope dto.ReportScope, actor service.Actor) ([]models.Report, *models.Pagination, error)
	Counts(ctx context.Context, actor service.Actor) (*models.ReportStatusCounts, bool, error)
	Activity(ctx context.Context, id string, query dto.ActivityQuery, actor service.Actor) ([]models.ReportActivity, error)
}

// ReportHandler exposes the citizen report lifecycle endpoints.
type ReportHandler struct {
	reports reportService
}

// NewReportHandler constructs handler.
func NewReportHandler(reports reportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// Create godoc
// @Summary Submit a report
// @Tags Reports
// @Accept multipart/form-data
// @Produce json
// @Param title formData string true "Title"
// @Param description formData string false "Description"
// @Param category formData string true "Category"
// @Param severity formData string false "Severity"
// @Param priority formData string false "Priority"
// @Param municipalityId formData string true "Municipality ID"
// @Param lat formData number true "Latitude"
// @Param lng formData number true "Longitude"
// @Param address formData string false "Address"
// @Param ward formData string false "Ward"
// @Param photos formData file false "Photos"
// @Param videos formData file false "Videos"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /reports [post]
func (h *ReportHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.CreateReportRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid report payload"))
		return
	}
	form, err := readMediaForm(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer form.Close()

	report, err := h.reports.Create(c.Request.Context(), req, form.media, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusCreated, "Report submitted successfully", report, nil)
}

// Update godoc
// @Summary Edit a pending report
// @Description Citizens may edit content fields and add media while the report is pending.
// @Tags Reports
// @Accept json,mpfd
// @Produce json
// @Param id path string true "Report ID"
// @Param payload body dto.UpdateReportRequest false "Fields to change"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /reports/{id} [put]
func (h *ReportHandler) Update(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	req, err := bindUpdateRequest(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	form, err := readMediaForm(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer form.Close()

	report, err := h.reports.Update(c.Request.Context(), c.Param("id"), req, form.media, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "Report updated successfully", report, nil)
}

func bindUpdateRequest(c *gin.Context) (dto.UpdateReportRequest, error) {
	var req dto.UpdateReportRequest
	var raw []byte
	if isMultipart(c) {
		if err := c.ShouldBind(&req); err != nil {
			return req, appErrors.Clone(appErrors.ErrValidation, "invalid update payload")
		}
	} else {
		body, err := c.GetRawData()
		if err != nil {
			return req, appErrors.Clone(appErrors.ErrValidation, "invalid update payload")
		}
		if len(body) > 0 {
			if err := json.Unmarshal(body, &req); err != nil {
				return req, appErrors.Clone(appErrors.ErrValidation, "invalid update payload")
			}
		}
		raw = body
	}
	fields, err := submittedFields(c, raw)
	if err != nil {
		return req, err
	}
	req.SubmittedFields = fields
	return req, nil
}

// Delete godoc
// @Summary Delete a pending report
// @Tags Reports
// @Produce json
// @Param id path string true "Report ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /reports/{id} [delete]
func (h *ReportHandler) Delete(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	if err := h.reports.Delete(c.Request.Context(), c.Param("id"), actor); err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "Report deleted successfully", nil, nil)
}

// Get godoc
// @Summary Get a report
// @Tags Reports
// @Produce json
// @Param id path string true "Report ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /reports/{id} [get]
func (h *ReportHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	detail, err := h.reports.Get(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// UpdateStatus godoc
// @Summary Move a report through the workflow
// @Tags Reports
// @Accept json
// @Produce json
// @Param id path string true "Report ID"
// @Param payload body dto.UpdateStatusRequest true "Target status"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /reports/{id}/status [put]
func (h *ReportHandler) UpdateStatus(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid status payload"))
		return
	}
	report, err := h.reports.UpdateStatus(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "Report status updated successfully", report, nil)
}

// Assign godoc
// @Summary Assign a report to municipal staff
// @Tags Reports
// @Accept json
// @Produce json
// @Param id path string true "Report ID"
// @Param payload body dto.AssignReportRequest true "Assignment"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /reports/{id}/assign [put]
func (h *ReportHandler) Assign(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.AssignReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid assignment payload"))
		return
	}
	report, err := h.reports.Assign(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "Report assigned successfully", report, nil)
}

// List godoc
// @Summary List reports of the caller's municipality
// @Tags Reports
// @Produce json
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Param category query string false "Category"
// @Param status query string false "Status"
// @Param severity query string false "Severity"
// @Param sortBy query string false "Sort column"
// @Param sortOrder query string false "asc or desc"
// @Success 200 {object} response.Envelope
// @Router /reports [get]
func (h *ReportHandler) List(c *gin.Context) {
	h.list(c, dto.ScopeAll)
}

// Mine godoc
// @Summary List the caller's own reports
// @Tags Reports
// @Produce json
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Param status query string false "Status"
// @Success 200 {object} response.Envelope
// @Router /reports/mine [get]
func (h *ReportHandler) Mine(c *gin.Context) {
	h.list(c, dto.ScopeMine)
}

// Assigned godoc
// @Summary List reports assigned to the caller
// @Tags Reports
// @Produce json
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Param status query string false "Status"
// @Success 200 {object} response.Envelope
// @Router /reports/assigned [get]
func (h *ReportHandler) Assigned(c *gin.Context) {
	h.list(c, dto.ScopeAssigned)
}

func (h *ReportHandler) list(c *gin.Context, scope dto.ReportScope) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var query dto.ReportQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid query parameters"))
		return
	}
	reports, pagination, err := h.reports.List(c.Request.Context(), query, scope, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reports, pagination)
}

// Counts godoc
// @Summary Report totals per status
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /reports/dashboard/counts [get]
func (h *ReportHandler) Counts(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	counts, cacheHit, err := h.reports.Counts(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, counts, nil, middleware.ResponseMeta(c))
}

// Activity godoc
// @Summary Report activity timeline
// @Tags Reports
// @Produce json
// @Param id path string true "Report ID"
// @Param limit query int false "Maximum events"
// @Success 200 {object} response.Envelope
// @Router /reports/{id}/activity [get]
func (h *ReportHandler) Activity(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var query dto.ActivityQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid query parameters"))
		return
	}
	events, err := h.reports.Activity(c.Request.Context(), c.Param("id"), query, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, nil)
}
