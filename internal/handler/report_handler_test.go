package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/civic-report-api/internal/dto"
	"github.com/noah-isme/civic-report-api/internal/middleware"
	"github.com/noah-isme/civic-report-api/internal/models"
	"github.com/noah-isme/civic-report-api/internal/service"
	appErrors "github.com/noah-isme/civic-report-api/pkg/errors"
	"github.com/noah-isme/civic-report-api/pkg/response"
	"github.com/noah-isme/civic-report-api/pkg/storage"
)

type receivedMedia struct {
	Filename    string
	ContentType string
	Body        string
}

type reportServiceMock struct {
	createReq   dto.CreateReportRequest
	updateReq   dto.UpdateReportRequest
	statusReq   dto.UpdateStatusRequest
	media       []receivedMedia
	actor       service.Actor
	scope       dto.ReportScope
	query       dto.ReportQuery
	report      *models.Report
	detail      *dto.ReportDetail
	reports     []models.Report
	pagination  *models.Pagination
	counts      *models.ReportStatusCounts
	countsHit   bool
	events      []models.ReportActivity
	err         error
	deletedID   string
	assignedID  string
	activityFor string
}

func (m *reportServiceMock) capture(media service.ReportMedia) {
	files := append(append([]storage.MediaFile{}, media.Photos...), media.Videos...)
	for _, file := range files {
		body, _ := io.ReadAll(file.Content)
		m.media = append(m.media, receivedMedia{Filename: file.Filename, ContentType: file.ContentType, Body: string(body)})
	}
}

func (m *reportServiceMock) Create(ctx context.Context, req dto.CreateReportRequest, media service.ReportMedia, actor service.Actor) (*models.Report, error) {
	m.createReq = req
	m.actor = actor
	m.capture(media)
	return m.report, m.err
}

func (m *reportServiceMock) Update(ctx context.Context, id string, req dto.UpdateReportRequest, media service.ReportMedia, actor service.Actor) (*models.Report, error) {
	m.updateReq = req
	m.actor = actor
	m.capture(media)
	return m.report, m.err
}

func (m *reportServiceMock) Delete(ctx context.Context, id string, actor service.Actor) error {
	m.deletedID = id
	m.actor = actor
	return m.err
}

func (m *reportServiceMock) Get(ctx context.Context, id string, actor service.Actor) (*dto.ReportDetail, error) {
	m.actor = actor
	return m.detail, m.err
}

func (m *reportServiceMock) UpdateStatus(ctx context.Context, id string, req dto.UpdateStatusRequest, actor service.Actor) (*models.Report, error) {
	m.statusReq = req
	m.actor = actor
	return m.report, m.err
}

func (m *reportServiceMock) Assign(ctx context.Context, id string, req dto.AssignReportRequest, actor service.Actor) (*models.Report, error) {
	m.assignedID = req.AssignedStaffID
	m.actor = actor
	return m.report, m.err
}

func (m *reportServiceMock) List(ctx context.Context, query dto.ReportQuery, scope dto.ReportScope, actor service.Actor) ([]models.Report, *models.Pagination, error) {
	m.query = query
	m.scope = scope
	m.actor = actor
	return m.reports, m.pagination, m.err
}

func (m *reportServiceMock) Counts(ctx context.Context, actor service.Actor) (*models.ReportStatusCounts, bool, error) {
	m.actor = actor
	return m.counts, m.countsHit, m.err
}

func (m *reportServiceMock) Activity(ctx context.Context, id string, query dto.ActivityQuery, actor service.Actor) ([]models.ReportActivity, error) {
	m.activityFor = id
	m.actor = actor
	return m.events, m.err
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

type formFile struct {
	field       string
	filename    string
	contentType string
	body        []byte
}

func newMultipartContext(t *testing.T, method, path string, fields map[string]string, files []formFile) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	for _, file := range files {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="`+file.field+`"; filename="`+file.filename+`"`)
		if file.contentType != "" {
			header.Set("Content-Type", file.contentType)
		}
		part, err := writer.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write(file.body)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.Request = req
	return c, w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) response.Envelope {
	t.Helper()
	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	return envelope
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func citizenClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "citizen-1", Role: models.RoleCitizen}
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "admin-1", Role: models.RoleMunicipalityAdmin, MunicipalityID: "muni-1"}
}

func TestReportHandlerCreateMultipart(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &reportServiceMock{report: &models.Report{ID: "report-1", Status: models.StatusPending}}
	handler := NewReportHandler(mockSvc)

	c, w := newMultipartContext(t, http.MethodPost, "/reports", map[string]string{
		"title":          "Pothole on Main St",
		"category":       "road",
		"municipalityId": "muni-1",
		"lat":            "6.2",
		"lng":            "-10.3",
	}, []formFile{
		{field: "photos", filename: "hole.png", body: pngHeader},
		{field: "photos", filename: "hole.jpg", contentType: "image/jpeg", body: []byte("jpeg-bytes")},
		{field: "videos", filename: "clip.mp4", contentType: "video/mp4", body: []byte("mp4-bytes")},
	})
	c.Set(middleware.ContextUserKey, citizenClaims())

	handler.Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	envelope := decodeEnvelope(t, w)
	assert.Equal(t, "Report submitted successfully", envelope.Message)

	assert.Equal(t, "Pothole on Main St", mockSvc.createReq.Title)
	assert.Equal(t, models.CategoryRoad, mockSvc.createReq.Category)
	require.NotNil(t, mockSvc.createReq.Latitude)
	assert.InDelta(t, 6.2, *mockSvc.createReq.Latitude, 1e-9)
	require.NotNil(t, mockSvc.createReq.Longitude)
	assert.InDelta(t, -10.3, *mockSvc.createReq.Longitude, 1e-9)
	assert.Equal(t, service.Actor{UserID: "citizen-1", Role: models.RoleCitizen}, mockSvc.actor)

	require.Len(t, mockSvc.media, 3)
	assert.Equal(t, receivedMedia{Filename: "hole.png", ContentType: "image/png", Body: string(pngHeader)}, mockSvc.media[0])
	assert.Equal(t, receivedMedia{Filename: "hole.jpg", ContentType: "image/jpeg", Body: "jpeg-bytes"}, mockSvc.media[1])
	assert.Equal(t, receivedMedia{Filename: "clip.mp4", ContentType: "video/mp4", Body: "mp4-bytes"}, mockSvc.media[2])
}

func TestReportHandlerCreateJSONWithoutMedia(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &reportServiceMock{report: &models.Report{ID: "report-1"}}
	handler := NewReportHandler(mockSvc)

	payload := []byte(`{"title":"Broken light","category":"electricity","municipalityId":"muni-1","lat":6.3,"lng":-10.8}`)
	c, w := newGinContext(http.MethodPost, "/reports", payload)
	c.Set(middleware.ContextUserKey, citizenClaims())

	handler.Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, models.CategoryElectricity, mockSvc.createReq.Category)
	assert.Empty(t, mockSvc.media)
}

func TestReportHandlerCreateRequiresClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewReportHandler(&reportServiceMock{})

	c, w := newGinContext(http.MethodPost, "/reports", []byte(`{}`))
	handler.Create(c)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestReportHandlerCreateSurfacesStructuredError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &reportServiceMock{
		err: appErrors.Clone(appErrors.ErrValidation, "You already have an active report in this category").
			WithDetails(map[string]interface{}{"existingReportId": "report-9"}),
	}
	handler := NewReportHandler(mockSvc)

	payload := []byte(`{"title":"Again","category":"road","municipalityId":"muni-1","lat":6.3,"lng":-10.8}`)
	c, w := newGinContext(http.MethodPost, "/reports", payload)
	c.Set(middleware.ContextUserKey, citizenClaims())

	handler.Create(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	envelope := decodeEnvelope(t, w)
	assert.Equal(t, "VALIDATION_ERROR", envelope.Code)
	assert.Equal(t, "report-9", envelope.Options["existingReportId"])
	assert.Nil(t, envelope.Data)
}

func TestReportHandlerUpdateCollectsSubmittedFields(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &reportServiceMock{report: &models.Report{ID: "report-1"}}
	handler := NewReportHandler(mockSvc)

	c, w := newGinContext(http.MethodPut, "/reports/report-1", []byte(`{"title":"New title","status":"resolved","pointsAwarded":50}`))
	c.Params = gin.Params{{Key: "id", Value: "report-1"}}
	c.Set(middleware.ContextUserKey, citizenClaims())

	handler.Update(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, mockSvc.updateReq.Title)
	assert.Equal(t, "New title", *mockSvc.updateReq.Title)
	assert.Equal(t, []string{"pointsAwarded", "status", "title"}, mockSvc.updateReq.SubmittedFields)
	assert.Equal(t, []string{"pointsAwarded", "status"}, mockSvc.updateReq.ForbiddenFields())
}

func TestReportHandlerUpdateMultipart(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &reportServiceMock{report: &models.Report{ID: "report-1"}}
	handler := NewReportHandler(mockSvc)

	c, w := newMultipartContext(t, http.MethodPut, "/reports/report-1", map[string]string{
		"description": "Bigger now",
	}, []formFile{{field: "photos", filename: "more.png", contentType: "image/png", body: pngHeader}})
	c.Params = gin.Params{{Key: "id", Value: "report-1"}}
	c.Set(middleware.ContextUserKey, citizenClaims())

	handler.Update(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, mockSvc.updateReq.Description)
	assert.Equal(t, "Bigger now", *mockSvc.updateReq.Description)
	assert.Equal(t, []string{"description"}, mockSvc.updateReq.SubmittedFields)
	require.Len(t, mockSvc.media, 1)
	assert.Equal(t, "image/png", mockSvc.media[0].ContentType)
}

func TestReportHandlerUpdateRejectsMalformedJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewReportHandler(&reportServiceMock{})

	c, w := newGinContext(http.MethodPut, "/reports/report-1", []byte(`{"title":`))
	c.Set(middleware.ContextUserKey, citizenClaims())

	handler.Update(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReportHandlerDelete(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &reportServiceMock{}
	handler := NewReportHandler(mockSvc)

	c, w := newGinContext(http.MethodDelete, "/reports/report-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "report-1"}}
	c.Set(middleware.ContextUserKey, citizenClaims())

	handler.Delete(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "report-1", mockSvc.deletedID)
}

func TestReportHandlerGetNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewReportHandler(&reportServiceMock{err: appErrors.Clone(appErrors.ErrNotFound, "Report not found")})

	c, w := newGinContext(http.MethodGet, "/reports/missing", nil)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}
	c.Set(middleware.ContextUserKey, citizenClaims())

	handler.Get(c)

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Report not found", decodeEnvelope(t, w).Message)
}

func TestReportHandlerUpdateStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &reportServiceMock{report: &models.Report{ID: "report-1", Status: models.StatusInProgress}}
	handler := NewReportHandler(mockSvc)

	c, w := newGinContext(http.MethodPut, "/reports/report-1/status", []byte(`{"status":"in_progress","notes":"crew on site"}`))
	c.Params = gin.Params{{Key: "id", Value: "report-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "staff-1", Role: models.RoleFieldStaff, MunicipalityID: "muni-1"})

	handler.UpdateStatus(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.StatusInProgress, mockSvc.statusReq.Status)
	require.NotNil(t, mockSvc.statusReq.Notes)
	assert.Equal(t, "muni-1", mockSvc.actor.MunicipalityID)
}

func TestReportHandlerUpdateStatusTransitionError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &reportServiceMock{
		err: appErrors.Clone(appErrors.ErrValidation, "Cannot change status from resolved to pending").
			WithDetails(map[string]interface{}{"allowedTransitions": []string{}}),
	}
	handler := NewReportHandler(mockSvc)

	c, w := newGinContext(http.MethodPut, "/reports/report-1/status", []byte(`{"status":"pending"}`))
	c.Set(middleware.ContextUserKey, adminClaims())

	handler.UpdateStatus(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	envelope := decodeEnvelope(t, w)
	assert.Equal(t, "Cannot change status from resolved to pending", envelope.Message)
	assert.Contains(t, envelope.Options, "allowedTransitions")
}

func TestReportHandlerAssign(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &reportServiceMock{report: &models.Report{ID: "report-1", Status: models.StatusAssigned}}
	handler := NewReportHandler(mockSvc)

	c, w := newGinContext(http.MethodPut, "/reports/report-1/assign", []byte(`{"assignedStaffId":"staff-1","priority":"high","dueDate":"2026-11-01T00:00:00Z"}`))
	c.Params = gin.Params{{Key: "id", Value: "report-1"}}
	c.Set(middleware.ContextUserKey, adminClaims())

	handler.Assign(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "staff-1", mockSvc.assignedID)
}

func TestReportHandlerAssignRejectsBadDate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewReportHandler(&reportServiceMock{})

	c, w := newGinContext(http.MethodPut, "/reports/report-1/assign", []byte(`{"assignedStaffId":"staff-1","dueDate":"tomorrow"}`))
	c.Set(middleware.ContextUserKey, adminClaims())

	handler.Assign(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReportHandlerListScopes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		name   string
		call   func(h *ReportHandler, c *gin.Context)
		claims *models.JWTClaims
		scope  dto.ReportScope
	}{
		{name: "all", call: (*ReportHandler).List, claims: adminClaims(), scope: dto.ScopeAll},
		{name: "mine", call: (*ReportHandler).Mine, claims: citizenClaims(), scope: dto.ScopeMine},
		{name: "assigned", call: (*ReportHandler).Assigned, claims: &models.JWTClaims{UserID: "staff-1", Role: models.RoleFieldStaff, MunicipalityID: "muni-1"}, scope: dto.ScopeAssigned},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mockSvc := &reportServiceMock{
				reports:    []models.Report{{ID: "report-1"}},
				pagination: models.NewPagination(2, 5, 11),
			}
			handler := NewReportHandler(mockSvc)

			c, w := newGinContext(http.MethodGet, "/reports?page=2&limit=5&status=pending&sortBy=priority&sortOrder=asc", nil)
			c.Set(middleware.ContextUserKey, tc.claims)

			tc.call(handler, c)

			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tc.scope, mockSvc.scope)
			assert.Equal(t, dto.ReportQuery{Page: 2, Limit: 5, Status: models.StatusPending, SortBy: "priority", SortOrder: "asc"}, mockSvc.query)
			envelope := decodeEnvelope(t, w)
			require.NotNil(t, envelope.Pagination)
			assert.Equal(t, 3, envelope.Pagination.Pages)
			assert.Equal(t, 11, envelope.Pagination.Total)
		})
	}
}

func TestReportHandlerCountsReportsCacheHit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &reportServiceMock{counts: &models.ReportStatusCounts{Total: 3, Pending: 3}, countsHit: true}
	handler := NewReportHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/reports/dashboard/counts", nil)
	c.Set(middleware.ContextUserKey, adminClaims())

	handler.Counts(c)

	require.Equal(t, http.StatusOK, w.Code)
	envelope := decodeEnvelope(t, w)
	assert.Equal(t, true, envelope.Meta["cache_hit"])
	assert.Contains(t, envelope.Meta, "processing_time_ms")
}

func TestReportHandlerActivity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &reportServiceMock{events: []models.ReportActivity{{ReportID: "report-1", Action: models.ActivityCreated}}}
	handler := NewReportHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/reports/report-1/activity?limit=10", nil)
	c.Params = gin.Params{{Key: "id", Value: "report-1"}}
	c.Set(middleware.ContextUserKey, adminClaims())

	handler.Activity(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "report-1", mockSvc.activityFor)
}
