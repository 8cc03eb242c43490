package service

import (
	"strings"
	"time"

	"github.com/noah-isme/civic-report-api/internal/models"
	"github.com/noah-isme/civic-report-api/pkg/config"
)

// BoundingBox is an inclusive latitude/longitude rectangle.
type BoundingBox struct {
	MinLat float64
	MaxLat float64
	MinLng float64
	MaxLng float64
}

// Contains reports whether the point lies inside the box, edges included.
func (b BoundingBox) Contains(lat, lng float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lng >= b.MinLng && lng <= b.MaxLng
}

// MediaRule bounds one kind of uploaded media.
type MediaRule struct {
	Kind      string
	MaxFiles  int
	MaxBytes  int64
	MIMETypes map[string]struct{}
}

// Allows reports whether the content type is accepted. Parameters such as charset are ignored.
func (r MediaRule) Allows(contentType string) bool {
	mediaType := strings.ToLower(strings.TrimSpace(contentType))
	if idx := strings.Index(mediaType, ";"); idx >= 0 {
		mediaType = strings.TrimSpace(mediaType[:idx])
	}
	_, ok := r.MIMETypes[mediaType]
	return ok
}

// ReportRules is the validation and workflow table shared by the report services.
// It is built once at start-up and never mutated afterwards.
type ReportRules struct {
	Bounds           BoundingBox
	Photos           MediaRule
	Videos           MediaRule
	DuplicateWindow  time.Duration
	DefaultDueIn     time.Duration
	MaxDueIn         time.Duration
	CategoryPoints   map[models.ReportCategory]int
	DefaultPoints    int
	Transitions      map[models.ReportStatus][]models.ReportStatus
	AssignableRoles  []models.UserRole
	DefaultPageLimit int
	MaxPageLimit     int
}

// DefaultReportRules returns the production rule table.
func DefaultReportRules() *ReportRules {
	return &ReportRules{
		Bounds: BoundingBox{MinLat: 26.0, MaxLat: 31.0, MinLng: 80.0, MaxLng: 89.0},
		Photos: MediaRule{
			Kind:      "photos",
			MaxFiles:  5,
			MaxBytes:  5 * 1024 * 1024,
			MIMETypes: mimeSet([]string{"image/jpeg", "image/jpg", "image/png", "image/webp"}),
		},
		Videos: MediaRule{
			Kind:      "videos",
			MaxFiles:  2,
			MaxBytes:  50 * 1024 * 1024,
			MIMETypes: mimeSet([]string{"video/mp4", "video/quicktime", "video/x-msvideo", "video/webm"}),
		},
		DuplicateWindow: 24 * time.Hour,
		DefaultDueIn:    7 * 24 * time.Hour,
		MaxDueIn:        30 * 24 * time.Hour,
		CategoryPoints: map[models.ReportCategory]int{
			models.CategoryEmergency:       20,
			models.CategorySafety:          15,
			models.CategoryIllegalActivity: 12,
			models.CategoryRoad:            10,
			models.CategoryWater:           10,
			models.CategoryElectricity:     10,
			models.CategorySanitation:      8,
		},
		DefaultPoints: 5,
		Transitions: map[models.ReportStatus][]models.ReportStatus{
			models.StatusPending:    {models.StatusAssigned, models.StatusResolved},
			models.StatusAssigned:   {models.StatusInProgress, models.StatusResolved},
			models.StatusInProgress: {models.StatusResolved},
			models.StatusResolved:   {},
		},
		AssignableRoles:  []models.UserRole{models.RoleMunicipalityAdmin, models.RoleFieldStaff},
		DefaultPageLimit: 10,
		MaxPageLimit:     100,
	}
}

// ReportRulesFromConfig overlays configured values on the defaults. Zero values keep the default.
func ReportRulesFromConfig(cfg config.ReportRulesConfig) *ReportRules {
	rules := DefaultReportRules()

	if cfg.MaxPhotos > 0 {
		rules.Photos.MaxFiles = cfg.MaxPhotos
	}
	if cfg.MaxVideos > 0 {
		rules.Videos.MaxFiles = cfg.MaxVideos
	}
	if cfg.MaxPhotoBytes > 0 {
		rules.Photos.MaxBytes = cfg.MaxPhotoBytes
	}
	if cfg.MaxVideoBytes > 0 {
		rules.Videos.MaxBytes = cfg.MaxVideoBytes
	}
	if len(cfg.PhotoMIMETypes) > 0 {
		rules.Photos.MIMETypes = mimeSet(cfg.PhotoMIMETypes)
	}
	if len(cfg.VideoMIMETypes) > 0 {
		rules.Videos.MIMETypes = mimeSet(cfg.VideoMIMETypes)
	}
	if cfg.DuplicateWindow > 0 {
		rules.DuplicateWindow = cfg.DuplicateWindow
	}
	if cfg.DefaultDueIn > 0 {
		rules.DefaultDueIn = cfg.DefaultDueIn
	}
	if cfg.MaxDueIn > 0 {
		rules.MaxDueIn = cfg.MaxDueIn
	}
	if cfg.MaxLatitude > cfg.MinLatitude && cfg.MaxLongitude > cfg.MinLongitude {
		rules.Bounds = BoundingBox{MinLat: cfg.MinLatitude, MaxLat: cfg.MaxLatitude, MinLng: cfg.MinLongitude, MaxLng: cfg.MaxLongitude}
	}
	if len(cfg.CategoryPoints) > 0 {
		points := make(map[models.ReportCategory]int, len(cfg.CategoryPoints))
		for category, value := range cfg.CategoryPoints {
			points[models.ReportCategory(category)] = value
		}
		rules.CategoryPoints = points
	}
	if cfg.DefaultPoints > 0 {
		rules.DefaultPoints = cfg.DefaultPoints
	}
	if len(cfg.AssignableRoles) > 0 {
		roles := make([]models.UserRole, 0, len(cfg.AssignableRoles))
		for _, role := range cfg.AssignableRoles {
			roles = append(roles, models.UserRole(role))
		}
		rules.AssignableRoles = roles
	}
	if cfg.PageLimitDefault > 0 {
		rules.DefaultPageLimit = cfg.PageLimitDefault
	}
	if cfg.PageLimitMaximum > 0 {
		rules.MaxPageLimit = cfg.PageLimitMaximum
	}
	return rules
}

// PointsFor returns the reputation points awarded when a report of category is resolved.
func (r *ReportRules) PointsFor(category models.ReportCategory) int {
	if points, ok := r.CategoryPoints[category]; ok {
		return points
	}
	return r.DefaultPoints
}

// CanAssignRole reports whether staff with role may receive assignments.
func (r *ReportRules) CanAssignRole(role models.UserRole) bool {
	for _, allowed := range r.AssignableRoles {
		if allowed == role {
			return true
		}
	}
	return false
}

func mimeSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, value := range values {
		set[strings.ToLower(strings.TrimSpace(value))] = struct{}{}
	}
	return set
}
