package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/noah-isme/civic-report-api/internal/models"
	"github.com/noah-isme/civic-report-api/internal/repository"
	appErrors "github.com/noah-isme/civic-report-api/pkg/errors"
	"github.com/noah-isme/civic-report-api/pkg/storage"
)

// ReportMedia is the file part of a create or update submission, in submission order.
type ReportMedia struct {
	Photos []storage.MediaFile
	Videos []storage.MediaFile
}

// Count returns the number of submitted files.
func (m ReportMedia) Count() int {
	return len(m.Photos) + len(m.Videos)
}

func (s *ReportService) loadMunicipality(ctx context.Context, id string) (*models.Municipality, error) {
	municipality, err := s.municipalities.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Municipality not found")
		}
		return nil, appErrors.Internal(err, "failed to load municipality")
	}
	return municipality, nil
}

func checkCategory(municipality *models.Municipality, category models.ReportCategory) error {
	if municipality.AcceptsCategory(category) {
		return nil
	}
	accepted := make([]string, len(municipality.AcceptedCategories))
	copy(accepted, municipality.AcceptedCategories)
	return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("Category %q is not accepted by this municipality", category)).
		WithDetails(map[string]interface{}{"acceptedCategories": accepted})
}

// checkLocation applies the national box and, when fully declared, the municipality boundary.
func (s *ReportService) checkLocation(municipality *models.Municipality, lat, lng *float64) error {
	if lat == nil || lng == nil {
		return appErrors.Clone(appErrors.ErrValidation, "Location coordinates are required")
	}
	if !s.rules.Bounds.Contains(*lat, *lng) {
		b := s.rules.Bounds
		return appErrors.Clone(appErrors.ErrValidation, "Location is outside the supported service area").
			WithDetails(map[string]interface{}{
				"lat":    *lat,
				"lng":    *lng,
				"bounds": map[string]float64{"minLat": b.MinLat, "maxLat": b.MaxLat, "minLng": b.MinLng, "maxLng": b.MaxLng},
			})
	}
	if box, ok := municipalityBounds(municipality); ok && !box.Contains(*lat, *lng) {
		return appErrors.Clone(appErrors.ErrValidation, "Location is outside the municipality boundary").
			WithDetails(map[string]interface{}{"lat": *lat, "lng": *lng, "municipalityId": municipality.ID})
	}
	return nil
}

func municipalityBounds(m *models.Municipality) (BoundingBox, bool) {
	if m == nil || m.BoundaryMinLat == nil || m.BoundaryMaxLat == nil || m.BoundaryMinLng == nil || m.BoundaryMaxLng == nil {
		return BoundingBox{}, false
	}
	return BoundingBox{MinLat: *m.BoundaryMinLat, MaxLat: *m.BoundaryMaxLat, MinLng: *m.BoundaryMinLng, MaxLng: *m.BoundaryMaxLng}, true
}

func duplicateReportError(existing *models.Report) error {
	return appErrors.Clone(appErrors.ErrValidation, "You already have an active report in this category from the last 24 hours").
		WithDetails(map[string]interface{}{
			"existingReportId": existing.ID,
			"existingStatus":   existing.Status,
		})
}

// checkMediaBatch validates files against rule. existing is the count already stored on the report.
func checkMediaBatch(rule MediaRule, files []storage.MediaFile, existing int) error {
	if existing+len(files) > rule.MaxFiles {
		message := fmt.Sprintf("Maximum %d %s allowed", rule.MaxFiles, rule.Kind)
		if existing > 0 {
			message = fmt.Sprintf("%s. You already have %d %s", message, existing, rule.Kind)
		}
		return appErrors.Clone(appErrors.ErrValidation, message).
			WithDetails(map[string]interface{}{"maxFiles": rule.MaxFiles, "existing": existing, "submitted": len(files)})
	}
	for _, file := range files {
		if !rule.Allows(file.ContentType) {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("File %s has an unsupported %s type %q", file.Filename, singular(rule.Kind), file.ContentType)).
				WithDetails(map[string]interface{}{"file": file.Filename, "allowedTypes": allowedTypes(rule)})
		}
		if file.Size > rule.MaxBytes {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("File %s exceeds the %dMB limit", file.Filename, rule.MaxBytes/(1024*1024))).
				WithDetails(map[string]interface{}{"file": file.Filename, "maxBytes": rule.MaxBytes})
		}
	}
	return nil
}

func allowedTypes(rule MediaRule) []string {
	out := make([]string, 0, len(rule.MIMETypes))
	for mimeType := range rule.MIMETypes {
		out = append(out, mimeType)
	}
	sort.Strings(out)
	return out
}

func singular(kind string) string {
	return strings.TrimSuffix(kind, "s")
}

func checkEmergencyEvidence(severity models.ReportSeverity, files int) error {
	if severity == models.SeverityEmergency && files == 0 {
		return appErrors.Clone(appErrors.ErrValidation, "Emergency reports require at least one photo or video")
	}
	return nil
}

// translateStoreError maps repository sentinels onto the typed taxonomy.
func translateStoreError(err error, message string) error {
	var dup *repository.DuplicateReportError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &dup):
		return duplicateReportError(dup.Existing)
	case errors.Is(err, sql.ErrNoRows):
		return errReportNotFound
	default:
		return appErrors.Internal(err, message)
	}
}
