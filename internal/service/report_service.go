package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/civic-report-api/internal/dto"
	"github.com/noah-isme/civic-report-api/internal/models"
	"github.com/noah-isme/civic-report-api/internal/repository"
	appErrors "github.com/noah-isme/civic-report-api/pkg/errors"
	"github.com/noah-isme/civic-report-api/pkg/logger"
	"github.com/noah-isme/civic-report-api/pkg/storage"
)

type reportStore interface {
	Create(ctx context.Context, report *models.Report, since time.Time) error
	GetByID(ctx context.Context, id string) (*models.Report, error)
	FindActiveDuplicate(ctx context.Context, citizenID string, category models.ReportCategory, since time.Time) (*models.Report, error)
	List(ctx context.Context, filter models.ReportFilter) ([]models.Report, int, error)
	UpdateContent(ctx context.Context, report *models.Report) error
	UpdateStatus(ctx context.Context, report *models.Report, expected models.ReportStatus) error
	Assign(ctx context.Context, report *models.Report, expected models.ReportStatus) error
	DeletePending(ctx context.Context, id, citizenID string) error
	CountByStatus(ctx context.Context, municipalityID string) ([]models.ReportStatusCount, error)
}

type municipalityReader interface {
	FindByID(ctx context.Context, id string) (*models.Municipality, error)
}

type reportUserStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByIDs(ctx context.Context, ids []string) (map[string]*models.User, error)
	AddPoints(ctx context.Context, id string, points int) error
}

type activityStore interface {
	Append(ctx context.Context, activity *models.ReportActivity) error
	ListByReport(ctx context.Context, reportID string, limit int) ([]models.ReportActivity, error)
}

type reportCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, pattern string) error
}

// MediaUploader stores one media file and returns its durable URL.
type MediaUploader interface {
	Upload(ctx context.Context, file storage.MediaFile, folder string) (string, error)
}

const (
	photoFolder = "reports/photos"
	videoFolder = "reports/videos"
)

// ReportServiceConfig carries the tunables of the report lifecycle.
type ReportServiceConfig struct {
	CountsTTL time.Duration
}

// ReportService implements the citizen report lifecycle: submission, edits, workflow and listings.
type ReportService struct {
	repo           reportStore
	municipalities municipalityReader
	users          reportUserStore
	uploader       MediaUploader
	activity       activityStore
	cache          reportCache
	metrics        *MetricsService
	policy         ReportPolicy
	rules          *ReportRules
	machine        *StatusMachine
	validator      *validator.Validate
	logger         *zap.Logger
	cfg            ReportServiceConfig
	now            func() time.Time
}

// NewReportService wires the report lifecycle service.
func NewReportService(
	repo reportStore,
	municipalities municipalityReader,
	users reportUserStore,
	uploader MediaUploader,
	activity activityStore,
	cache reportCache,
	metrics *MetricsService,
	policy ReportPolicy,
	rules *ReportRules,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg ReportServiceConfig,
) *ReportService {
	if rules == nil {
		rules = DefaultReportRules()
	}
	if policy == nil {
		policy = NewRolePolicy()
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CountsTTL <= 0 {
		cfg.CountsTTL = time.Minute
	}
	return &ReportService{
		repo:           repo,
		municipalities: municipalities,
		users:          users,
		uploader:       uploader,
		activity:       activity,
		cache:          cache,
		metrics:        metrics,
		policy:         policy,
		rules:          rules,
		machine:        NewStatusMachine(rules),
		validator:      validate,
		logger:         logger,
		cfg:            cfg,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// Create validates a citizen submission, uploads its media and persists the report.
func (s *ReportService) Create(ctx context.Context, req dto.CreateReportRequest, media ReportMedia, actor Actor) (*models.Report, error) {
	if err := s.policy.CanCreate(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, s.rejected("create", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid report payload"))
	}

	municipality, err := s.loadMunicipality(ctx, req.MunicipalityID)
	if err != nil {
		return nil, err
	}
	if err := checkCategory(municipality, req.Category); err != nil {
		return nil, s.rejected("create", err)
	}
	if err := s.checkLocation(municipality, req.Latitude, req.Longitude); err != nil {
		return nil, s.rejected("create", err)
	}

	now := s.now()
	since := now.Add(-s.rules.DuplicateWindow)
	existing, err := s.repo.FindActiveDuplicate(ctx, actor.UserID, req.Category, since)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to check duplicate reports")
	}
	if existing != nil {
		return nil, s.rejected("create", duplicateReportError(existing))
	}

	if err := checkMediaBatch(s.rules.Photos, media.Photos, 0); err != nil {
		return nil, s.rejected("create", err)
	}
	if err := checkMediaBatch(s.rules.Videos, media.Videos, 0); err != nil {
		return nil, s.rejected("create", err)
	}
	severity := req.Severity
	if severity == "" {
		severity = models.SeverityMedium
	}
	if err := checkEmergencyEvidence(severity, media.Count()); err != nil {
		return nil, s.rejected("create", err)
	}

	priority := req.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}
	report := &models.Report{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Severity:    severity,
		Priority:    priority,
		Status:      models.StatusPending,
		ReportLocation: models.ReportLocation{
			Latitude:  *req.Latitude,
			Longitude: *req.Longitude,
			Address:   req.Address,
			Ward:      req.Ward,
		},
		CitizenID:      actor.UserID,
		MunicipalityID: municipality.ID,
		CreatedAt:      now,
	}

	photos, videos, err := s.uploadMedia(ctx, media)
	if err != nil {
		return nil, err
	}
	report.PhotoURLs = photos
	report.VideoURLs = videos
	report.ValidationInfo = models.ValidationInfo{
		LocationValidated: true,
		FilesValidated:    true,
		TotalFiles:        media.Count(),
		ValidatedAt:       &now,
	}

	if err := s.repo.Create(ctx, report, since); err != nil {
		s.logOrphanedMedia(ctx, "create", report.ID, append(append([]string{}, photos...), videos...), err)
		var dup *repository.DuplicateReportError
		if errors.As(err, &dup) {
			return nil, s.rejected("create", duplicateReportError(dup.Existing))
		}
		return nil, appErrors.Internal(err, "failed to create report")
	}

	s.metrics.ReportCreated(report.Category)
	s.recordActivity(ctx, report, actor, models.ActivityCreated, "", report.Status, map[string]interface{}{
		"totalFiles": report.ValidationInfo.TotalFiles,
	})
	s.invalidateCounts(ctx, report.MunicipalityID)
	return report, nil
}

// Update applies citizen edits and appends new media while the report is pending.
func (s *ReportService) Update(ctx context.Context, id string, req dto.UpdateReportRequest, media ReportMedia, actor Actor) (*models.Report, error) {
	report, err := s.getReport(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.CanEdit(actor, report); err != nil {
		return nil, err
	}
	if report.Status != models.StatusPending {
		return nil, s.rejected("update", appErrors.Clone(appErrors.ErrValidation, "Only pending reports can be updated").
			WithDetails(map[string]interface{}{"status": report.Status}))
	}

	if forbidden := req.ForbiddenFields(); len(forbidden) > 0 {
		return nil, s.rejected("update", appErrors.Clone(appErrors.ErrValidation, "These fields cannot be modified").
			WithDetails(map[string]interface{}{"forbiddenFields": forbidden}))
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, s.rejected("update", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid report payload"))
	}

	if err := checkMediaBatch(s.rules.Photos, media.Photos, len(report.PhotoURLs)); err != nil {
		return nil, s.rejected("update", err)
	}
	if err := checkMediaBatch(s.rules.Videos, media.Videos, len(report.VideoURLs)); err != nil {
		return nil, s.rejected("update", err)
	}

	previousCategory := report.Category
	changes := applyContentChanges(report, req)
	if req.Category != nil || req.Latitude != nil || req.Longitude != nil {
		municipality, err := s.loadMunicipality(ctx, report.MunicipalityID)
		if err != nil {
			return nil, err
		}
		if req.Category != nil {
			if err := checkCategory(municipality, report.Category); err != nil {
				return nil, s.rejected("update", err)
			}
		}
		if report.Category != previousCategory {
			if err := s.checkDuplicate(ctx, report); err != nil {
				return nil, err
			}
		}
		if req.Latitude != nil || req.Longitude != nil {
			if err := s.checkLocation(municipality, &report.Latitude, &report.Longitude); err != nil {
				return nil, s.rejected("update", err)
			}
		}
	}
	if err := checkEmergencyEvidence(report.Severity, len(report.PhotoURLs)+len(report.VideoURLs)+media.Count()); err != nil {
		return nil, s.rejected("update", err)
	}

	photos, videos, err := s.uploadMedia(ctx, media)
	if err != nil {
		return nil, err
	}
	report.PhotoURLs = append(report.PhotoURLs, photos...)
	report.VideoURLs = append(report.VideoURLs, videos...)
	if media.Count() > 0 {
		changes = append(changes, "media")
	}

	if err := s.repo.UpdateContent(ctx, report); err != nil {
		s.logOrphanedMedia(ctx, "update", report.ID, append(append([]string{}, photos...), videos...), err)
		if errors.Is(err, repository.ErrStatusConflict) {
			return nil, s.rejected("update", appErrors.Clone(appErrors.ErrValidation, "Only pending reports can be updated"))
		}
		return nil, appErrors.Internal(err, "failed to update report")
	}

	s.recordActivity(ctx, report, actor, models.ActivityUpdated, "", "", map[string]interface{}{
		"fields":    changes,
		"newPhotos": len(photos),
		"newVideos": len(videos),
	})
	s.invalidateCounts(ctx, report.MunicipalityID)
	return report, nil
}

// checkDuplicate rejects a category change that lands on another active
// report of the same citizen inside the duplicate window.
func (s *ReportService) checkDuplicate(ctx context.Context, report *models.Report) error {
	since := s.now().Add(-s.rules.DuplicateWindow)
	existing, err := s.repo.FindActiveDuplicate(ctx, report.CitizenID, report.Category, since)
	if err != nil {
		return appErrors.Internal(err, "failed to check duplicate reports")
	}
	if existing == nil || existing.ID == report.ID || !existing.IsActive() {
		return nil
	}
	return s.rejected("update", duplicateReportError(existing))
}

// Delete removes the citizen's own report while it is still pending.
func (s *ReportService) Delete(ctx context.Context, id string, actor Actor) error {
	report, err := s.getReport(ctx, id)
	if err != nil {
		return err
	}
	if err := s.policy.CanEdit(actor, report); err != nil {
		return err
	}
	if report.Status != models.StatusPending {
		return s.rejected("delete", appErrors.Clone(appErrors.ErrValidation, "Only pending reports can be deleted").
			WithDetails(map[string]interface{}{"status": report.Status}))
	}
	if err := s.repo.DeletePending(ctx, report.ID, actor.UserID); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return s.rejected("delete", appErrors.Clone(appErrors.ErrValidation, "Only pending reports can be deleted"))
		}
		return appErrors.Internal(err, "failed to delete report")
	}
	s.recordActivity(ctx, report, actor, models.ActivityDeleted, report.Status, "", nil)
	s.invalidateCounts(ctx, report.MunicipalityID)
	return nil
}

// Get returns a report with its citizen, municipality and assigned staff summaries populated.
func (s *ReportService) Get(ctx context.Context, id string, actor Actor) (*dto.ReportDetail, error) {
	report, err := s.getReport(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.CanView(actor, report); err != nil {
		return nil, err
	}

	detail := &dto.ReportDetail{Report: *report}
	ids := []string{report.CitizenID}
	if report.AssignedStaffID != nil {
		ids = append(ids, *report.AssignedStaffID)
	}
	users, err := s.users.FindByIDs(ctx, ids)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load report users")
	}
	detail.Citizen = users[report.CitizenID].Summary()
	if report.AssignedStaffID != nil {
		detail.AssignedStaff = users[*report.AssignedStaffID].Summary()
	}
	municipality, err := s.municipalities.FindByID(ctx, report.MunicipalityID)
	if err != nil {
		s.log(ctx).Warn("report municipality missing", zap.String("report_id", report.ID), zap.String("municipality_id", report.MunicipalityID), zap.Error(err))
	} else {
		detail.Municipality = municipality.Summary()
	}
	return detail, nil
}

// Activity returns the newest timeline events of a report visible to actor.
func (s *ReportService) Activity(ctx context.Context, id string, query dto.ActivityQuery, actor Actor) ([]models.ReportActivity, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid activity query")
	}
	report, err := s.getReport(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.CanView(actor, report); err != nil {
		return nil, err
	}
	if s.activity == nil {
		return []models.ReportActivity{}, nil
	}
	items, err := s.activity.ListByReport(ctx, report.ID, query.Limit)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load report activity")
	}
	return items, nil
}

func (s *ReportService) getReport(ctx context.Context, id string) (*models.Report, error) {
	report, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, translateStoreError(err, "failed to load report")
	}
	return report, nil
}

func applyContentChanges(report *models.Report, req dto.UpdateReportRequest) []string {
	var changed []string
	if req.Title != nil {
		report.Title = *req.Title
		changed = append(changed, "title")
	}
	if req.Description != nil {
		report.Description = *req.Description
		changed = append(changed, "description")
	}
	if req.Category != nil {
		report.Category = *req.Category
		changed = append(changed, "category")
	}
	if req.Severity != nil {
		report.Severity = *req.Severity
		changed = append(changed, "severity")
	}
	if req.Priority != nil {
		report.Priority = *req.Priority
		changed = append(changed, "priority")
	}
	if req.Latitude != nil {
		report.Latitude = *req.Latitude
		changed = append(changed, "lat")
	}
	if req.Longitude != nil {
		report.Longitude = *req.Longitude
		changed = append(changed, "lng")
	}
	if req.Address != nil {
		report.Address = *req.Address
		changed = append(changed, "address")
	}
	if req.Ward != nil {
		report.Ward = *req.Ward
		changed = append(changed, "ward")
	}
	return changed
}

// uploadMedia hands files to the uploader one at a time, photos first.
// A failure aborts the batch; files already stored are reported in the log, not retracted.
func (s *ReportService) uploadMedia(ctx context.Context, media ReportMedia) ([]string, []string, error) {
	if media.Count() == 0 {
		return []string{}, []string{}, nil
	}
	if s.uploader == nil {
		return nil, nil, appErrors.Clone(appErrors.ErrInternal, "media uploads are not configured")
	}
	photos := make([]string, 0, len(media.Photos))
	videos := make([]string, 0, len(media.Videos))
	batches := []struct {
		rule   MediaRule
		files  []storage.MediaFile
		folder string
		urls   *[]string
	}{
		{rule: s.rules.Photos, files: media.Photos, folder: photoFolder, urls: &photos},
		{rule: s.rules.Videos, files: media.Videos, folder: videoFolder, urls: &videos},
	}
	for _, batch := range batches {
		for _, file := range batch.files {
			url, err := s.uploader.Upload(ctx, file, batch.folder)
			s.metrics.MediaUpload(batch.rule.Kind, err == nil)
			if err != nil {
				s.logOrphanedMedia(ctx, "upload", "", append(append([]string{}, photos...), videos...), err)
				return nil, nil, appErrors.Internal(err, "failed to upload "+file.Filename)
			}
			*batch.urls = append(*batch.urls, url)
		}
	}
	return photos, videos, nil
}

func (s *ReportService) logOrphanedMedia(ctx context.Context, stage, reportID string, urls []string, cause error) {
	if len(urls) == 0 {
		return
	}
	s.log(ctx).Warn("uploaded media left without a report",
		zap.String("stage", stage),
		zap.String("report_id", reportID),
		zap.Strings("urls", urls),
		zap.Error(cause),
	)
}

func (s *ReportService) recordActivity(ctx context.Context, report *models.Report, actor Actor, action models.ActivityAction, from, to models.ReportStatus, details map[string]interface{}) {
	if s.activity == nil {
		return
	}
	event := &models.ReportActivity{
		ReportID:   report.ID,
		Action:     action,
		ActorID:    actor.UserID,
		ActorRole:  actor.Role,
		FromStatus: from,
		ToStatus:   to,
		Details:    details,
		CreatedAt:  s.now(),
	}
	if err := s.activity.Append(ctx, event); err != nil {
		s.log(ctx).Warn("failed to record report activity", zap.String("report_id", report.ID), zap.String("action", string(action)), zap.Error(err))
	}
}

func (s *ReportService) invalidateCounts(ctx context.Context, municipalityID string) {
	if s.cache == nil {
		return
	}
	for _, key := range []string{countsCacheKey(municipalityID), countsCacheKey("")} {
		if err := s.cache.Invalidate(ctx, key); err != nil {
			s.log(ctx).Warn("failed to invalidate report counts", zap.String("key", key), zap.Error(err))
		}
	}
}

func (s *ReportService) log(ctx context.Context) *zap.Logger {
	return logger.WithContext(ctx, s.logger)
}

// rejected counts business-rule rejections before returning err unchanged.
func (s *ReportService) rejected(operation string, err error) error {
	if errors.Is(err, appErrors.ErrValidation) {
		s.metrics.ValidationFailed(operation)
	}
	return err
}
