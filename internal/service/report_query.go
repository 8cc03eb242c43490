package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/civic-report-api/internal/dto"
	"github.com/noah-isme/civic-report-api/internal/models"
	appErrors "github.com/noah-isme/civic-report-api/pkg/errors"
)

// List returns one page of reports for the given scope, newest first unless the query sorts otherwise.
func (s *ReportService) List(ctx context.Context, query dto.ReportQuery, scope dto.ReportScope, actor Actor) ([]models.Report, *models.Pagination, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid query parameters")
	}
	municipalityID, err := s.policy.ListScope(actor)
	if err != nil {
		return nil, nil, err
	}

	filter := models.ReportFilter{
		MunicipalityID: municipalityID,
		Category:       query.Category,
		Status:         query.Status,
		Severity:       query.Severity,
		SortBy:         query.SortBy,
		SortOrder:      query.SortOrder,
	}
	switch scope {
	case dto.ScopeMine:
		filter.CitizenID = actor.UserID
		filter.MunicipalityID = ""
	case dto.ScopeAssigned:
		filter.AssignedStaffID = actor.UserID
	case dto.ScopeAll, "":
		if actor.Role == models.RoleCitizen {
			return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "citizens can only list their own reports")
		}
	default:
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown listing scope")
	}
	filter.Page, filter.Limit = s.pageBounds(query.Page, query.Limit)

	reports, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list reports")
	}
	return reports, models.NewPagination(filter.Page, filter.Limit, total), nil
}

func (s *ReportService) pageBounds(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = s.rules.DefaultPageLimit
	}
	if limit > s.rules.MaxPageLimit {
		limit = s.rules.MaxPageLimit
	}
	return page, limit
}

// Counts returns per-status totals for the actor's municipality (all municipalities for system admins)
// and whether they were served from cache.
func (s *ReportService) Counts(ctx context.Context, actor Actor) (*models.ReportStatusCounts, bool, error) {
	if actor.Role == models.RoleCitizen {
		return nil, false, appErrors.Clone(appErrors.ErrForbidden, "dashboard counts are restricted to staff")
	}
	municipalityID, err := s.policy.ListScope(actor)
	if err != nil {
		return nil, false, err
	}

	key := countsCacheKey(municipalityID)
	if s.cache != nil {
		var cached models.ReportStatusCounts
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return &cached, true, nil
		}
	}

	rows, err := s.repo.CountByStatus(ctx, municipalityID)
	if err != nil {
		return nil, false, appErrors.Internal(err, "failed to count reports")
	}
	counts := summarizeCounts(rows)
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, counts, s.cfg.CountsTTL); err != nil {
			s.log(ctx).Debug("report counts not cached", zap.String("key", key), zap.Error(err))
		}
	}
	return counts, false, nil
}

func summarizeCounts(rows []models.ReportStatusCount) *models.ReportStatusCounts {
	counts := &models.ReportStatusCounts{}
	for _, row := range rows {
		counts.Total += row.Count
		switch row.Status {
		case models.StatusPending:
			counts.Pending = row.Count
		case models.StatusAssigned:
			counts.Assigned = row.Count
		case models.StatusInProgress:
			counts.InProgress = row.Count
		case models.StatusResolved:
			counts.Resolved = row.Count
		}
	}
	return counts
}

func countsCacheKey(municipalityID string) string {
	if municipalityID == "" {
		municipalityID = "all"
	}
	return CacheKey("reports", "counts", municipalityID)
}
