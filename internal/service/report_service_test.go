package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/civic-report-api/internal/dto"
	"github.com/noah-isme/civic-report-api/internal/models"
	"github.com/noah-isme/civic-report-api/internal/repository"
	appErrors "github.com/noah-isme/civic-report-api/pkg/errors"
	"github.com/noah-isme/civic-report-api/pkg/storage"
)

var testNow = time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

type reportStoreStub struct {
	reports     map[string]*models.Report
	duplicate   *models.Report
	createErr   error
	conflict    bool
	lastFilter  models.ReportFilter
	listTotal   int
	counts      []models.ReportStatusCount
	countCalls  int
	createCalls int
}

func newReportStoreStub() *reportStoreStub {
	return &reportStoreStub{reports: map[string]*models.Report{}}
}

func cloneReport(r *models.Report) *models.Report {
	out := *r
	out.PhotoURLs = append([]string{}, r.PhotoURLs...)
	out.VideoURLs = append([]string{}, r.VideoURLs...)
	return &out
}

func (s *reportStoreStub) put(r *models.Report) {
	s.reports[r.ID] = cloneReport(r)
}

func (s *reportStoreStub) Create(ctx context.Context, report *models.Report, since time.Time) error {
	s.createCalls++
	if s.createErr != nil {
		return s.createErr
	}
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	s.put(report)
	return nil
}

func (s *reportStoreStub) GetByID(ctx context.Context, id string) (*models.Report, error) {
	report, ok := s.reports[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return cloneReport(report), nil
}

func (s *reportStoreStub) FindActiveDuplicate(ctx context.Context, citizenID string, category models.ReportCategory, since time.Time) (*models.Report, error) {
	return s.duplicate, nil
}

func (s *reportStoreStub) List(ctx context.Context, filter models.ReportFilter) ([]models.Report, int, error) {
	s.lastFilter = filter
	var out []models.Report
	for _, report := range s.reports {
		if len(out) == filter.Limit {
			break
		}
		out = append(out, *report)
	}
	return out, s.listTotal, nil
}

func (s *reportStoreStub) write(report *models.Report, expected models.ReportStatus) error {
	stored, ok := s.reports[report.ID]
	if !ok || s.conflict || stored.Status != expected {
		return repository.ErrStatusConflict
	}
	s.put(report)
	return nil
}

func (s *reportStoreStub) UpdateContent(ctx context.Context, report *models.Report) error {
	return s.write(report, models.StatusPending)
}

func (s *reportStoreStub) UpdateStatus(ctx context.Context, report *models.Report, expected models.ReportStatus) error {
	return s.write(report, expected)
}

func (s *reportStoreStub) Assign(ctx context.Context, report *models.Report, expected models.ReportStatus) error {
	return s.write(report, expected)
}

func (s *reportStoreStub) DeletePending(ctx context.Context, id, citizenID string) error {
	stored, ok := s.reports[id]
	if !ok || stored.Status != models.StatusPending || stored.CitizenID != citizenID {
		return repository.ErrStatusConflict
	}
	delete(s.reports, id)
	return nil
}

func (s *reportStoreStub) CountByStatus(ctx context.Context, municipalityID string) ([]models.ReportStatusCount, error) {
	s.countCalls++
	return s.counts, nil
}

type municipalityStub map[string]*models.Municipality

func (m municipalityStub) FindByID(ctx context.Context, id string) (*models.Municipality, error) {
	if muni, ok := m[id]; ok {
		return muni, nil
	}
	return nil, sql.ErrNoRows
}

type userStoreStub struct {
	users  map[string]*models.User
	points map[string]int
}

func (u *userStoreStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := u.users[id]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (u *userStoreStub) FindByIDs(ctx context.Context, ids []string) (map[string]*models.User, error) {
	out := make(map[string]*models.User)
	for _, id := range ids {
		if user, ok := u.users[id]; ok {
			out[id] = user
		}
	}
	return out, nil
}

func (u *userStoreStub) AddPoints(ctx context.Context, id string, points int) error {
	u.points[id] += points
	return nil
}

type uploaderStub struct {
	uploaded []string
	failOn   string
}

func (u *uploaderStub) Upload(ctx context.Context, file storage.MediaFile, folder string) (string, error) {
	if file.Filename == u.failOn {
		return "", errors.New("upload unavailable")
	}
	url := fmt.Sprintf("https://media.test/%s/%s", folder, file.Filename)
	u.uploaded = append(u.uploaded, url)
	return url, nil
}

type activityStub struct {
	events []*models.ReportActivity
}

func (a *activityStub) Append(ctx context.Context, activity *models.ReportActivity) error {
	a.events = append(a.events, activity)
	return nil
}

func (a *activityStub) ListByReport(ctx context.Context, reportID string, limit int) ([]models.ReportActivity, error) {
	var out []models.ReportActivity
	for _, event := range a.events {
		if event.ReportID == reportID {
			out = append(out, *event)
		}
	}
	return out, nil
}

type cacheStub struct {
	values      map[string]models.ReportStatusCounts
	invalidated []string
}

func (c *cacheStub) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	value, ok := c.values[key]
	if !ok {
		return false, nil
	}
	*dest.(*models.ReportStatusCounts) = value
	return true, nil
}

func (c *cacheStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.values[key] = *value.(*models.ReportStatusCounts)
	return nil
}

func (c *cacheStub) Invalidate(ctx context.Context, pattern string) error {
	c.invalidated = append(c.invalidated, pattern)
	delete(c.values, pattern)
	return nil
}

type reportFixture struct {
	svc      *ReportService
	repo     *reportStoreStub
	users    *userStoreStub
	uploader *uploaderStub
	activity *activityStub
	cache    *cacheStub
}

var (
	citizenActor  = Actor{UserID: "citizen-1", Role: models.RoleCitizen}
	adminActor    = Actor{UserID: "admin-1", Role: models.RoleMunicipalityAdmin, MunicipalityID: "muni-1"}
	staffActor    = Actor{UserID: "staff-1", Role: models.RoleFieldStaff, MunicipalityID: "muni-1"}
	outsiderActor = Actor{UserID: "admin-2", Role: models.RoleMunicipalityAdmin, MunicipalityID: "muni-2"}
)

func strPtr(v string) *string { return &v }

func floatPtr(v float64) *float64 { return &v }

func newReportFixture(t *testing.T) *reportFixture {
	t.Helper()
	muni1 := "muni-1"
	muni2 := "muni-2"
	f := &reportFixture{
		repo: newReportStoreStub(),
		users: &userStoreStub{
			users: map[string]*models.User{
				"citizen-1": {ID: "citizen-1", FullName: "Sita", Role: models.RoleCitizen},
				"admin-1":   {ID: "admin-1", FullName: "Admin", Role: models.RoleMunicipalityAdmin, MunicipalityID: &muni1},
				"staff-1":   {ID: "staff-1", FullName: "Ram", Role: models.RoleFieldStaff, MunicipalityID: &muni1},
				"staff-2":   {ID: "staff-2", FullName: "Hari", Role: models.RoleFieldStaff, MunicipalityID: &muni2},
				"sponsor-1": {ID: "sponsor-1", FullName: "Sponsor", Role: models.RoleSponsor, MunicipalityID: &muni1},
			},
			points: map[string]int{},
		},
		uploader: &uploaderStub{},
		activity: &activityStub{},
		cache:    &cacheStub{values: map[string]models.ReportStatusCounts{}},
	}
	municipalities := municipalityStub{
		"muni-1": {ID: "muni-1", Name: "Kathmandu", Active: true},
		"muni-2": {ID: "muni-2", Name: "Lalitpur", AcceptedCategories: []string{"road", "water"}, Active: true},
	}
	f.svc = NewReportService(f.repo, municipalities, f.users, f.uploader, f.activity, f.cache, nil, nil, nil, nil, zap.NewNop(), ReportServiceConfig{})
	f.svc.now = func() time.Time { return testNow }
	return f
}

func validCreateRequest() dto.CreateReportRequest {
	return dto.CreateReportRequest{
		Title:          "Pothole on ring road",
		Description:    "Deep pothole near the junction",
		Category:       models.CategoryRoad,
		Severity:       models.SeverityMedium,
		MunicipalityID: "muni-1",
		Latitude:       floatPtr(27.7),
		Longitude:      floatPtr(85.3),
		Address:        "Ring Road",
		Ward:           "10",
	}
}

func photo(name string) storage.MediaFile {
	return storage.MediaFile{Filename: name, ContentType: "image/jpeg", Size: 1024, Content: bytes.NewReader([]byte("jpeg"))}
}

func video(name string) storage.MediaFile {
	return storage.MediaFile{Filename: name, ContentType: "video/mp4", Size: 4096, Content: bytes.NewReader([]byte("mp4"))}
}

func seedReport(f *reportFixture, id string, status models.ReportStatus, mutate func(*models.Report)) *models.Report {
	report := &models.Report{
		ID:             id,
		Title:          "Broken streetlight",
		Category:       models.CategoryRoad,
		Severity:       models.SeverityMedium,
		Priority:       models.PriorityMedium,
		Status:         status,
		ReportLocation: models.ReportLocation{Latitude: 27.7, Longitude: 85.3},
		CitizenID:      "citizen-1",
		MunicipalityID: "muni-1",
		CreatedAt:      testNow.Add(-time.Hour),
	}
	if mutate != nil {
		mutate(report)
	}
	f.repo.put(report)
	return report
}

func requireAppError(t *testing.T, err error, kind *appErrors.Error) *appErrors.Error {
	t.Helper()
	require.Error(t, err)
	require.True(t, errors.Is(err, kind), "expected %s, got %v", kind.Code, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	return appErr
}

func TestReportServiceCreate(t *testing.T) {
	f := newReportFixture(t)

	report, err := f.svc.Create(context.Background(), validCreateRequest(), ReportMedia{
		Photos: []storage.MediaFile{photo("front.jpg"), photo("side.jpg")},
		Videos: []storage.MediaFile{video("clip.mp4")},
	}, citizenActor)
	require.NoError(t, err)

	assert.NotEmpty(t, report.ID)
	assert.Equal(t, models.StatusPending, report.Status)
	assert.Equal(t, "citizen-1", report.CitizenID)
	assert.Equal(t, []string{"https://media.test/reports/photos/front.jpg", "https://media.test/reports/photos/side.jpg"}, []string(report.PhotoURLs))
	assert.Equal(t, []string{"https://media.test/reports/videos/clip.mp4"}, []string(report.VideoURLs))
	assert.True(t, report.ValidationInfo.LocationValidated)
	assert.True(t, report.ValidationInfo.FilesValidated)
	assert.Equal(t, 3, report.ValidationInfo.TotalFiles)
	assert.Contains(t, f.repo.reports, report.ID)

	require.Len(t, f.activity.events, 1)
	assert.Equal(t, models.ActivityCreated, f.activity.events[0].Action)
	assert.Contains(t, f.cache.invalidated, CacheKey("reports", "counts", "muni-1"))
}

func TestReportServiceCreateRejectsUnacceptedCategory(t *testing.T) {
	f := newReportFixture(t)
	req := validCreateRequest()
	req.MunicipalityID = "muni-2"
	req.Category = models.CategoryElectricity

	_, err := f.svc.Create(context.Background(), req, ReportMedia{}, citizenActor)
	appErr := requireAppError(t, err, appErrors.ErrValidation)
	assert.Equal(t, []string{"road", "water"}, appErr.Details["acceptedCategories"])
	assert.Empty(t, f.repo.reports)
}

func TestReportServiceCreateUnknownMunicipality(t *testing.T) {
	f := newReportFixture(t)
	req := validCreateRequest()
	req.MunicipalityID = "missing"

	_, err := f.svc.Create(context.Background(), req, ReportMedia{}, citizenActor)
	requireAppError(t, err, appErrors.ErrNotFound)
}

func TestReportServiceCreateGeofence(t *testing.T) {
	cases := map[string]struct {
		lat *float64
		lng *float64
		ok  bool
	}{
		"inside":          {lat: floatPtr(27.7), lng: floatPtr(85.3), ok: true},
		"south edge":      {lat: floatPtr(26.0), lng: floatPtr(80.0), ok: true},
		"north edge":      {lat: floatPtr(31.0), lng: floatPtr(89.0), ok: true},
		"too far south":   {lat: floatPtr(25.99), lng: floatPtr(85.0)},
		"too far north":   {lat: floatPtr(31.01), lng: floatPtr(85.0)},
		"too far west":    {lat: floatPtr(28.0), lng: floatPtr(79.9)},
		"too far east":    {lat: floatPtr(28.0), lng: floatPtr(89.1)},
		"missing lat":     {lng: floatPtr(85.0)},
		"missing both":    {},
		"missing lng":     {lat: floatPtr(28.0)},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := newReportFixture(t)
			req := validCreateRequest()
			req.Latitude = tc.lat
			req.Longitude = tc.lng

			_, err := f.svc.Create(context.Background(), req, ReportMedia{}, citizenActor)
			if tc.ok {
				require.NoError(t, err)
				return
			}
			requireAppError(t, err, appErrors.ErrValidation)
			assert.Empty(t, f.repo.reports)
		})
	}
}

func TestReportServiceCreateMunicipalityBoundary(t *testing.T) {
	f := newReportFixture(t)
	municipalities := f.svc.municipalities.(municipalityStub)
	municipalities["muni-1"].BoundaryMinLat = floatPtr(27.6)
	municipalities["muni-1"].BoundaryMaxLat = floatPtr(27.8)
	municipalities["muni-1"].BoundaryMinLng = floatPtr(85.2)
	municipalities["muni-1"].BoundaryMaxLng = floatPtr(85.4)

	req := validCreateRequest()
	req.Latitude = floatPtr(28.5)
	_, err := f.svc.Create(context.Background(), req, ReportMedia{}, citizenActor)
	requireAppError(t, err, appErrors.ErrValidation)

	_, err = f.svc.Create(context.Background(), validCreateRequest(), ReportMedia{}, citizenActor)
	require.NoError(t, err)
}

func TestReportServiceCreateRejectsDuplicate(t *testing.T) {
	f := newReportFixture(t)
	f.repo.duplicate = &models.Report{ID: "existing-1", Status: models.StatusAssigned}

	_, err := f.svc.Create(context.Background(), validCreateRequest(), ReportMedia{Photos: []storage.MediaFile{photo("a.jpg")}}, citizenActor)
	appErr := requireAppError(t, err, appErrors.ErrValidation)
	assert.Equal(t, "existing-1", appErr.Details["existingReportId"])
	assert.Equal(t, models.StatusAssigned, appErr.Details["existingStatus"])
	assert.Empty(t, f.uploader.uploaded)
}

func TestReportServiceCreateGuardedInsertDuplicate(t *testing.T) {
	f := newReportFixture(t)
	f.repo.createErr = &repository.DuplicateReportError{Existing: &models.Report{ID: "raced-1", Status: models.StatusPending}}

	_, err := f.svc.Create(context.Background(), validCreateRequest(), ReportMedia{}, citizenActor)
	appErr := requireAppError(t, err, appErrors.ErrValidation)
	assert.Equal(t, "raced-1", appErr.Details["existingReportId"])
}

func TestReportServiceCreateMediaRules(t *testing.T) {
	tooMany := make([]storage.MediaFile, 6)
	for i := range tooMany {
		tooMany[i] = photo(fmt.Sprintf("p%d.jpg", i))
	}
	gif := storage.MediaFile{Filename: "anim.gif", ContentType: "image/gif", Size: 10}
	huge := photo("huge.jpg")
	huge.Size = 6 * 1024 * 1024
	longVideo := video("long.mp4")
	longVideo.Size = 51 * 1024 * 1024

	cases := map[string]struct {
		media   ReportMedia
		message string
	}{
		"too many photos":  {media: ReportMedia{Photos: tooMany}, message: "Maximum 5 photos allowed"},
		"wrong photo type": {media: ReportMedia{Photos: []storage.MediaFile{photo("ok.jpg"), gif}}, message: "anim.gif"},
		"photo too large":  {media: ReportMedia{Photos: []storage.MediaFile{huge}}, message: "huge.jpg"},
		"too many videos":  {media: ReportMedia{Videos: []storage.MediaFile{video("1.mp4"), video("2.mp4"), video("3.mp4")}}, message: "Maximum 2 videos allowed"},
		"video too large":  {media: ReportMedia{Videos: []storage.MediaFile{longVideo}}, message: "long.mp4"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := newReportFixture(t)
			_, err := f.svc.Create(context.Background(), validCreateRequest(), tc.media, citizenActor)
			appErr := requireAppError(t, err, appErrors.ErrValidation)
			assert.Contains(t, appErr.Message, tc.message)
			assert.Empty(t, f.uploader.uploaded)
		})
	}
}

func TestReportServiceCreateEmergencyNeedsEvidence(t *testing.T) {
	f := newReportFixture(t)
	req := validCreateRequest()
	req.Category = models.CategoryEmergency
	req.Severity = models.SeverityEmergency

	_, err := f.svc.Create(context.Background(), req, ReportMedia{}, citizenActor)
	requireAppError(t, err, appErrors.ErrValidation)

	report, err := f.svc.Create(context.Background(), req, ReportMedia{Videos: []storage.MediaFile{video("fire.mp4")}}, citizenActor)
	require.NoError(t, err)
	assert.Equal(t, models.SeverityEmergency, report.Severity)
}

func TestReportServiceCreateUploadFailureAborts(t *testing.T) {
	f := newReportFixture(t)
	f.uploader.failOn = "second.jpg"

	_, err := f.svc.Create(context.Background(), validCreateRequest(), ReportMedia{
		Photos: []storage.MediaFile{photo("first.jpg"), photo("second.jpg")},
	}, citizenActor)
	requireAppError(t, err, appErrors.ErrInternal)
	assert.Len(t, f.uploader.uploaded, 1)
	assert.Zero(t, f.repo.createCalls)
}

func TestReportServiceCreateRequiresCitizen(t *testing.T) {
	f := newReportFixture(t)
	_, err := f.svc.Create(context.Background(), validCreateRequest(), ReportMedia{}, staffActor)
	requireAppError(t, err, appErrors.ErrForbidden)
}

func TestReportServiceUpdatePhotoCap(t *testing.T) {
	f := newReportFixture(t)
	seedReport(f, "r-1", models.StatusPending, func(r *models.Report) {
		r.PhotoURLs = []string{"1", "2", "3", "4", "5"}
	})

	_, err := f.svc.Update(context.Background(), "r-1", dto.UpdateReportRequest{}, ReportMedia{Photos: []storage.MediaFile{photo("6.jpg")}}, citizenActor)
	appErr := requireAppError(t, err, appErrors.ErrValidation)
	assert.Equal(t, "Maximum 5 photos allowed. You already have 5 photos", appErr.Message)
}

func TestReportServiceUpdateVideoCap(t *testing.T) {
	f := newReportFixture(t)
	seedReport(f, "r-1", models.StatusPending, func(r *models.Report) {
		r.VideoURLs = []string{"1"}
	})

	_, err := f.svc.Update(context.Background(), "r-1", dto.UpdateReportRequest{}, ReportMedia{Videos: []storage.MediaFile{video("a.mp4"), video("b.mp4")}}, citizenActor)
	appErr := requireAppError(t, err, appErrors.ErrValidation)
	assert.Equal(t, "Maximum 2 videos allowed. You already have 1 videos", appErr.Message)
}

func TestReportServiceUpdateAppliesEdits(t *testing.T) {
	f := newReportFixture(t)
	seedReport(f, "r-1", models.StatusPending, func(r *models.Report) {
		r.PhotoURLs = []string{"old.jpg"}
	})

	report, err := f.svc.Update(context.Background(), "r-1", dto.UpdateReportRequest{
		Title:     strPtr("Pothole (bigger now)"),
		Latitude:  floatPtr(27.71),
		Longitude: floatPtr(85.31),
	}, ReportMedia{Photos: []storage.MediaFile{photo("new.jpg")}}, citizenActor)
	require.NoError(t, err)

	assert.Equal(t, "Pothole (bigger now)", report.Title)
	assert.Equal(t, 27.71, report.Latitude)
	assert.Equal(t, []string{"old.jpg", "https://media.test/reports/photos/new.jpg"}, []string(report.PhotoURLs))
	assert.Equal(t, "Pothole (bigger now)", f.repo.reports["r-1"].Title)
}

func TestReportServiceUpdateRejections(t *testing.T) {
	t.Run("server controlled fields", func(t *testing.T) {
		f := newReportFixture(t)
		seedReport(f, "r-1", models.StatusPending, nil)
		_, err := f.svc.Update(context.Background(), "r-1", dto.UpdateReportRequest{
			SubmittedFields: []string{"title", "status", "pointsAwarded"},
		}, ReportMedia{}, citizenActor)
		appErr := requireAppError(t, err, appErrors.ErrValidation)
		assert.Equal(t, []string{"pointsAwarded", "status"}, appErr.Details["forbiddenFields"])
	})
	t.Run("not pending", func(t *testing.T) {
		f := newReportFixture(t)
		seedReport(f, "r-1", models.StatusAssigned, nil)
		_, err := f.svc.Update(context.Background(), "r-1", dto.UpdateReportRequest{Title: strPtr("x")}, ReportMedia{}, citizenActor)
		requireAppError(t, err, appErrors.ErrValidation)
	})
	t.Run("other citizen", func(t *testing.T) {
		f := newReportFixture(t)
		seedReport(f, "r-1", models.StatusPending, nil)
		_, err := f.svc.Update(context.Background(), "r-1", dto.UpdateReportRequest{Title: strPtr("x")}, ReportMedia{}, Actor{UserID: "citizen-2", Role: models.RoleCitizen})
		requireAppError(t, err, appErrors.ErrNotFound)
	})
	t.Run("coordinates leave the box", func(t *testing.T) {
		f := newReportFixture(t)
		seedReport(f, "r-1", models.StatusPending, nil)
		_, err := f.svc.Update(context.Background(), "r-1", dto.UpdateReportRequest{Latitude: floatPtr(40)}, ReportMedia{}, citizenActor)
		requireAppError(t, err, appErrors.ErrValidation)
		assert.Equal(t, 27.7, f.repo.reports["r-1"].Latitude)
	})
	t.Run("unknown report with server controlled fields", func(t *testing.T) {
		f := newReportFixture(t)
		_, err := f.svc.Update(context.Background(), "missing", dto.UpdateReportRequest{
			SubmittedFields: []string{"status"},
		}, ReportMedia{}, citizenActor)
		requireAppError(t, err, appErrors.ErrNotFound)
	})
	t.Run("category moves onto an active report", func(t *testing.T) {
		f := newReportFixture(t)
		water := seedReport(f, "r-water", models.StatusPending, func(r *models.Report) {
			r.Category = models.CategoryWater
		})
		seedReport(f, "r-road", models.StatusPending, nil)
		f.repo.duplicate = water

		water2 := models.CategoryWater
		_, err := f.svc.Update(context.Background(), "r-road", dto.UpdateReportRequest{Category: &water2}, ReportMedia{}, citizenActor)
		appErr := requireAppError(t, err, appErrors.ErrValidation)
		assert.Equal(t, "r-water", appErr.Details["existingReportId"])
		assert.Equal(t, models.CategoryRoad, f.repo.reports["r-road"].Category)
	})
}

func TestReportServiceUpdateCategoryIgnoresSelfAndInactiveMatches(t *testing.T) {
	water := models.CategoryWater
	t.Run("same report", func(t *testing.T) {
		f := newReportFixture(t)
		self := seedReport(f, "r-1", models.StatusPending, nil)
		f.repo.duplicate = self

		report, err := f.svc.Update(context.Background(), "r-1", dto.UpdateReportRequest{Category: &water}, ReportMedia{}, citizenActor)
		require.NoError(t, err)
		assert.Equal(t, models.CategoryWater, report.Category)
	})
	t.Run("resolved match", func(t *testing.T) {
		f := newReportFixture(t)
		seedReport(f, "r-1", models.StatusPending, nil)
		f.repo.duplicate = &models.Report{ID: "r-old", Category: models.CategoryWater, Status: models.StatusResolved}

		report, err := f.svc.Update(context.Background(), "r-1", dto.UpdateReportRequest{Category: &water}, ReportMedia{}, citizenActor)
		require.NoError(t, err)
		assert.Equal(t, models.CategoryWater, report.Category)
	})
}

func TestReportServiceDelete(t *testing.T) {
	f := newReportFixture(t)
	seedReport(f, "r-1", models.StatusPending, nil)
	seedReport(f, "r-2", models.StatusAssigned, nil)

	require.NoError(t, f.svc.Delete(context.Background(), "r-1", citizenActor))
	assert.NotContains(t, f.repo.reports, "r-1")

	err := f.svc.Delete(context.Background(), "r-2", citizenActor)
	requireAppError(t, err, appErrors.ErrValidation)

	err = f.svc.Delete(context.Background(), "missing", citizenActor)
	requireAppError(t, err, appErrors.ErrNotFound)
}

func TestReportServiceGetPopulatesSummaries(t *testing.T) {
	f := newReportFixture(t)
	seedReport(f, "r-1", models.StatusAssigned, func(r *models.Report) {
		r.AssignedStaffID = strPtr("staff-1")
	})

	detail, err := f.svc.Get(context.Background(), "r-1", citizenActor)
	require.NoError(t, err)
	require.NotNil(t, detail.Citizen)
	assert.Equal(t, "Sita", detail.Citizen.FullName)
	require.NotNil(t, detail.AssignedStaff)
	assert.Equal(t, "Ram", detail.AssignedStaff.FullName)
	require.NotNil(t, detail.Municipality)
	assert.Equal(t, "Kathmandu", detail.Municipality.Name)

	_, err = f.svc.Get(context.Background(), "r-1", Actor{UserID: "citizen-2", Role: models.RoleCitizen})
	requireAppError(t, err, appErrors.ErrNotFound)

	_, err = f.svc.Get(context.Background(), "r-1", outsiderActor)
	requireAppError(t, err, appErrors.ErrForbidden)
}

func TestReportServiceTransitionTable(t *testing.T) {
	all := []models.ReportStatus{models.StatusPending, models.StatusAssigned, models.StatusInProgress, models.StatusResolved}
	allowed := map[models.ReportStatus]map[models.ReportStatus]bool{
		models.StatusPending:    {models.StatusAssigned: true, models.StatusResolved: true},
		models.StatusAssigned:   {models.StatusInProgress: true, models.StatusResolved: true},
		models.StatusInProgress: {models.StatusResolved: true},
		models.StatusResolved:   {},
	}
	for _, from := range all {
		for _, to := range all {
			t.Run(fmt.Sprintf("%s to %s", from, to), func(t *testing.T) {
				f := newReportFixture(t)
				seedReport(f, "r-1", from, nil)

				report, err := f.svc.UpdateStatus(context.Background(), "r-1", dto.UpdateStatusRequest{Status: to}, staffActor)
				if allowed[from][to] {
					require.NoError(t, err)
					assert.Equal(t, to, report.Status)
					assert.Equal(t, to, f.repo.reports["r-1"].Status)
					return
				}
				requireAppError(t, err, appErrors.ErrValidation)
				assert.Equal(t, from, f.repo.reports["r-1"].Status)
			})
		}
	}
}

func TestReportServiceResolvedIsTerminal(t *testing.T) {
	f := newReportFixture(t)
	resolvedAt := testNow.Add(-time.Hour)
	seedReport(f, "r-1", models.StatusResolved, func(r *models.Report) {
		r.ResolvedAt = &resolvedAt
	})

	_, err := f.svc.UpdateStatus(context.Background(), "r-1", dto.UpdateStatusRequest{Status: models.StatusAssigned}, staffActor)
	appErr := requireAppError(t, err, appErrors.ErrValidation)
	transitions, ok := appErr.Details["allowedTransitions"].([]models.ReportStatus)
	require.True(t, ok)
	assert.Empty(t, transitions)
	assert.NotNil(t, transitions)
}

func TestReportServiceResolveAwardsPoints(t *testing.T) {
	f := newReportFixture(t)
	seedReport(f, "r-1", models.StatusInProgress, nil)

	report, err := f.svc.UpdateStatus(context.Background(), "r-1", dto.UpdateStatusRequest{Status: models.StatusResolved}, staffActor)
	require.NoError(t, err)
	assert.Equal(t, 10, report.PointsAwarded)
	require.NotNil(t, report.ResolvedAt)
	assert.Equal(t, testNow, *report.ResolvedAt)
	assert.Equal(t, 10, f.users.points["citizen-1"])

	_, err = f.svc.UpdateStatus(context.Background(), "r-1", dto.UpdateStatusRequest{Status: models.StatusResolved}, staffActor)
	requireAppError(t, err, appErrors.ErrValidation)
	assert.Equal(t, 10, f.users.points["citizen-1"])
}

func TestReportServiceTransitionStampsFirstEntryOnly(t *testing.T) {
	f := newReportFixture(t)
	earlier := testNow.Add(-48 * time.Hour)
	seedReport(f, "r-1", models.StatusPending, func(r *models.Report) {
		r.AssignedAt = &earlier
	})

	report, err := f.svc.UpdateStatus(context.Background(), "r-1", dto.UpdateStatusRequest{Status: models.StatusAssigned}, staffActor)
	require.NoError(t, err)
	assert.Equal(t, earlier, *report.AssignedAt)

	report, err = f.svc.UpdateStatus(context.Background(), "r-1", dto.UpdateStatusRequest{Status: models.StatusInProgress}, staffActor)
	require.NoError(t, err)
	assert.Equal(t, testNow, *report.InProgressAt)
}

func TestReportServiceTransitionScopedToMunicipality(t *testing.T) {
	f := newReportFixture(t)
	seedReport(f, "r-1", models.StatusPending, nil)

	_, err := f.svc.UpdateStatus(context.Background(), "r-1", dto.UpdateStatusRequest{Status: models.StatusAssigned}, outsiderActor)
	appErr := requireAppError(t, err, appErrors.ErrForbidden)
	assert.Equal(t, "You can only update reports from your municipality", appErr.Message)

	_, err = f.svc.UpdateStatus(context.Background(), "r-1", dto.UpdateStatusRequest{Status: models.StatusAssigned}, citizenActor)
	requireAppError(t, err, appErrors.ErrForbidden)
}

func TestReportServiceTransitionConflict(t *testing.T) {
	f := newReportFixture(t)
	seedReport(f, "r-1", models.StatusAssigned, nil)
	f.repo.conflict = true

	_, err := f.svc.UpdateStatus(context.Background(), "r-1", dto.UpdateStatusRequest{Status: models.StatusInProgress}, staffActor)
	appErr := requireAppError(t, err, appErrors.ErrValidation)
	assert.Equal(t, "report status changed concurrently", appErr.Message)
	assert.Equal(t, models.StatusAssigned, appErr.Details["currentStatus"])
}

func TestReportServiceAssign(t *testing.T) {
	f := newReportFixture(t)
	seedReport(f, "r-1", models.StatusPending, nil)
	high := models.PriorityHigh
	due := testNow.Add(10 * 24 * time.Hour)
	req := dto.AssignReportRequest{AssignedStaffID: "staff-1", Priority: &high, DueDate: &due, Notes: strPtr("bring cones")}

	report, err := f.svc.Assign(context.Background(), "r-1", req, adminActor)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAssigned, report.Status)
	assert.Equal(t, "staff-1", *report.AssignedStaffID)
	assert.Equal(t, models.PriorityHigh, report.Priority)
	assert.Equal(t, due, *report.DueDate)
	assert.Equal(t, "bring cones", *report.AssignmentNotes)
	assert.Equal(t, testNow, *report.AssignedAt)

	again, err := f.svc.Assign(context.Background(), "r-1", req, adminActor)
	require.NoError(t, err)
	assert.Equal(t, report.AssignedStaffID, again.AssignedStaffID)
	assert.Equal(t, report.DueDate, again.DueDate)
	assert.Equal(t, models.StatusAssigned, f.repo.reports["r-1"].Status)
}

func TestReportServiceAssignDueDates(t *testing.T) {
	existing := testNow.Add(3 * 24 * time.Hour)
	tooFar := testNow.Add(45 * 24 * time.Hour)

	t.Run("default horizon", func(t *testing.T) {
		f := newReportFixture(t)
		seedReport(f, "r-1", models.StatusPending, nil)
		report, err := f.svc.Assign(context.Background(), "r-1", dto.AssignReportRequest{AssignedStaffID: "staff-1"}, adminActor)
		require.NoError(t, err)
		assert.Equal(t, testNow.Add(7*24*time.Hour), *report.DueDate)
		assert.Equal(t, models.PriorityMedium, report.Priority)
	})
	t.Run("keeps existing", func(t *testing.T) {
		f := newReportFixture(t)
		seedReport(f, "r-1", models.StatusInProgress, func(r *models.Report) { r.DueDate = &existing })
		report, err := f.svc.Assign(context.Background(), "r-1", dto.AssignReportRequest{AssignedStaffID: "admin-1"}, adminActor)
		require.NoError(t, err)
		assert.Equal(t, existing, *report.DueDate)
		assert.Equal(t, models.StatusAssigned, report.Status)
	})
	t.Run("too far out", func(t *testing.T) {
		f := newReportFixture(t)
		seedReport(f, "r-1", models.StatusPending, nil)
		_, err := f.svc.Assign(context.Background(), "r-1", dto.AssignReportRequest{AssignedStaffID: "staff-1", DueDate: &tooFar}, adminActor)
		appErr := requireAppError(t, err, appErrors.ErrValidation)
		assert.Equal(t, "Due date cannot be more than 30 days in the future", appErr.Message)
		assert.Equal(t, models.StatusPending, f.repo.reports["r-1"].Status)
	})
}

func TestReportServiceAssignRejections(t *testing.T) {
	resolvedAt := testNow.Add(-time.Hour)

	t.Run("other municipality", func(t *testing.T) {
		f := newReportFixture(t)
		seedReport(f, "r-1", models.StatusPending, nil)
		_, err := f.svc.Assign(context.Background(), "r-1", dto.AssignReportRequest{AssignedStaffID: "staff-2"}, outsiderActor)
		requireAppError(t, err, appErrors.ErrNotFound)
	})
	t.Run("resolved", func(t *testing.T) {
		f := newReportFixture(t)
		seedReport(f, "r-1", models.StatusResolved, func(r *models.Report) { r.ResolvedAt = &resolvedAt })
		_, err := f.svc.Assign(context.Background(), "r-1", dto.AssignReportRequest{AssignedStaffID: "staff-1"}, adminActor)
		appErr := requireAppError(t, err, appErrors.ErrValidation)
		assert.Equal(t, &resolvedAt, appErr.Details["resolvedAt"])
	})
	for _, staffID := range []string{"staff-2", "sponsor-1", "citizen-1", "ghost"} {
		t.Run("invalid staff "+staffID, func(t *testing.T) {
			f := newReportFixture(t)
			seedReport(f, "r-1", models.StatusPending, nil)
			_, err := f.svc.Assign(context.Background(), "r-1", dto.AssignReportRequest{AssignedStaffID: staffID}, adminActor)
			appErr := requireAppError(t, err, appErrors.ErrValidation)
			assert.Equal(t, []models.UserRole{models.RoleMunicipalityAdmin, models.RoleFieldStaff}, appErr.Details["validRoles"])
		})
	}
	t.Run("field staff cannot assign", func(t *testing.T) {
		f := newReportFixture(t)
		seedReport(f, "r-1", models.StatusPending, nil)
		_, err := f.svc.Assign(context.Background(), "r-1", dto.AssignReportRequest{AssignedStaffID: "staff-1"}, staffActor)
		requireAppError(t, err, appErrors.ErrForbidden)
	})
}

func TestReportServiceListScopes(t *testing.T) {
	f := newReportFixture(t)
	for i := 0; i < 3; i++ {
		seedReport(f, fmt.Sprintf("r-%d", i), models.StatusPending, nil)
	}
	f.repo.listTotal = 25

	reports, pagination, err := f.svc.List(context.Background(), dto.ReportQuery{Category: models.CategoryRoad}, dto.ScopeMine, citizenActor)
	require.NoError(t, err)
	assert.Len(t, reports, 3)
	assert.Equal(t, "citizen-1", f.repo.lastFilter.CitizenID)
	assert.Equal(t, models.CategoryRoad, f.repo.lastFilter.Category)
	assert.Equal(t, &models.Pagination{Page: 1, Limit: 10, Total: 25, Pages: 3}, pagination)

	_, _, err = f.svc.List(context.Background(), dto.ReportQuery{Page: 2, Limit: 500}, dto.ScopeAll, adminActor)
	require.NoError(t, err)
	assert.Equal(t, "muni-1", f.repo.lastFilter.MunicipalityID)
	assert.Equal(t, 100, f.repo.lastFilter.Limit)
	assert.Equal(t, 2, f.repo.lastFilter.Page)

	_, _, err = f.svc.List(context.Background(), dto.ReportQuery{}, dto.ScopeAssigned, staffActor)
	require.NoError(t, err)
	assert.Equal(t, "staff-1", f.repo.lastFilter.AssignedStaffID)
	assert.Equal(t, "muni-1", f.repo.lastFilter.MunicipalityID)

	_, _, err = f.svc.List(context.Background(), dto.ReportQuery{}, dto.ScopeAll, citizenActor)
	requireAppError(t, err, appErrors.ErrForbidden)
}

func TestReportServiceListPaginationNeverExceedsLimit(t *testing.T) {
	f := newReportFixture(t)
	for i := 0; i < 7; i++ {
		seedReport(f, fmt.Sprintf("r-%d", i), models.StatusPending, nil)
	}
	for _, limit := range []int{1, 3, 5, 10} {
		f.repo.listTotal = 7
		reports, pagination, err := f.svc.List(context.Background(), dto.ReportQuery{Limit: limit}, dto.ScopeAll, adminActor)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(reports), limit)
		assert.Equal(t, (7+limit-1)/limit, pagination.Pages)
	}
}

func TestReportServiceCounts(t *testing.T) {
	f := newReportFixture(t)
	f.repo.counts = []models.ReportStatusCount{
		{Status: models.StatusPending, Count: 4},
		{Status: models.StatusResolved, Count: 2},
	}

	counts, hit, err := f.svc.Counts(context.Background(), adminActor)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, &models.ReportStatusCounts{Total: 6, Pending: 4, Resolved: 2}, counts)

	_, hit, err = f.svc.Counts(context.Background(), adminActor)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, f.repo.countCalls)

	seedReport(f, "r-1", models.StatusPending, nil)
	require.NoError(t, f.svc.Delete(context.Background(), "r-1", citizenActor))
	_, hit, err = f.svc.Counts(context.Background(), adminActor)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, f.repo.countCalls)

	_, _, err = f.svc.Counts(context.Background(), citizenActor)
	requireAppError(t, err, appErrors.ErrForbidden)
}

func TestReportServiceActivity(t *testing.T) {
	f := newReportFixture(t)
	report, err := f.svc.Create(context.Background(), validCreateRequest(), ReportMedia{}, citizenActor)
	require.NoError(t, err)
	_, err = f.svc.Assign(context.Background(), report.ID, dto.AssignReportRequest{AssignedStaffID: "staff-1"}, adminActor)
	require.NoError(t, err)

	events, err := f.svc.Activity(context.Background(), report.ID, dto.ActivityQuery{}, adminActor)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, models.ActivityAssigned, events[1].Action)
	assert.Equal(t, models.StatusPending, events[1].FromStatus)
	assert.Equal(t, models.StatusAssigned, events[1].ToStatus)
}
