package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/civic-report-api/internal/dto"
	"github.com/noah-isme/civic-report-api/internal/models"
	"github.com/noah-isme/civic-report-api/internal/repository"
	appErrors "github.com/noah-isme/civic-report-api/pkg/errors"
)

// UpdateStatus moves a report along the transition table on behalf of municipal staff.
func (s *ReportService) UpdateStatus(ctx context.Context, id string, req dto.UpdateStatusRequest, actor Actor) (*models.Report, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, s.rejected("status", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload"))
	}
	report, err := s.getReport(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.CanTransition(actor, report); err != nil {
		return nil, err
	}

	current := report.Status
	if !s.machine.CanTransition(current, req.Status) {
		return nil, s.rejected("status", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("Cannot change status from %s to %s", current, req.Status)).
			WithDetails(map[string]interface{}{
				"currentStatus":      current,
				"allowedTransitions": s.machine.Allowed(current),
			}))
	}

	firstResolution := req.Status == models.StatusResolved && report.ResolvedAt == nil
	s.machine.Apply(report, req.Status, s.now())
	if err := s.repo.UpdateStatus(ctx, report, current); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return nil, s.statusConflict(ctx, report.ID, "status")
		}
		return nil, appErrors.Internal(err, "failed to update report status")
	}

	s.metrics.StatusTransition(current, report.Status)
	if firstResolution && report.PointsAwarded > 0 {
		if err := s.users.AddPoints(ctx, report.CitizenID, report.PointsAwarded); err != nil {
			s.log(ctx).Warn("failed to credit citizen points",
				zap.String("report_id", report.ID),
				zap.String("citizen_id", report.CitizenID),
				zap.Int("points", report.PointsAwarded),
				zap.Error(err),
			)
		}
	}
	details := map[string]interface{}{}
	if req.Notes != nil {
		details["notes"] = *req.Notes
	}
	if firstResolution {
		details["pointsAwarded"] = report.PointsAwarded
	}
	s.recordActivity(ctx, report, actor, models.ActivityStatusChanged, current, report.Status, details)
	s.invalidateCounts(ctx, report.MunicipalityID)
	return report, nil
}

// Assign hands a report to a staff member of its municipality and forces it into assigned.
// Reassigning an assigned or in-progress report is allowed; resolved reports are final.
func (s *ReportService) Assign(ctx context.Context, id string, req dto.AssignReportRequest, actor Actor) (*models.Report, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, s.rejected("assign", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload"))
	}
	report, err := s.getReport(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.CanAssign(actor, report); err != nil {
		return nil, err
	}
	if report.Status == models.StatusResolved {
		return nil, s.rejected("assign", appErrors.Clone(appErrors.ErrValidation, "Cannot assign a resolved report").
			WithDetails(map[string]interface{}{"resolvedAt": report.ResolvedAt}))
	}

	staff, err := s.assignableStaff(ctx, req.AssignedStaffID, report.MunicipalityID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	due, err := s.effectiveDueDate(req.DueDate, report.DueDate, now)
	if err != nil {
		return nil, s.rejected("assign", err)
	}

	previous := report.Status
	report.AssignedStaffID = &staff.ID
	report.Status = models.StatusAssigned
	if req.Priority != nil {
		report.Priority = *req.Priority
	}
	if req.Notes != nil {
		report.AssignmentNotes = req.Notes
	}
	report.DueDate = &due
	report.AssignedAt = &now

	if err := s.repo.Assign(ctx, report, previous); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return nil, s.statusConflict(ctx, report.ID, "assign")
		}
		return nil, appErrors.Internal(err, "failed to assign report")
	}

	if previous != models.StatusAssigned {
		s.metrics.StatusTransition(previous, report.Status)
	}
	s.recordActivity(ctx, report, actor, models.ActivityAssigned, previous, report.Status, map[string]interface{}{
		"assignedStaffId": staff.ID,
		"priority":        report.Priority,
		"dueDate":         due,
	})
	s.invalidateCounts(ctx, report.MunicipalityID)
	return report, nil
}

func (s *ReportService) assignableStaff(ctx context.Context, staffID, municipalityID string) (*models.User, error) {
	invalid := appErrors.Clone(appErrors.ErrValidation, "Invalid staff member. Staff must belong to this municipality and hold an assignable role").
		WithDetails(map[string]interface{}{"validRoles": s.rules.AssignableRoles})

	staff, err := s.users.FindByID(ctx, staffID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.rejected("assign", invalid)
		}
		return nil, appErrors.Internal(err, "failed to load staff member")
	}
	if !staff.BelongsTo(municipalityID) || !s.rules.CanAssignRole(staff.Role) {
		return nil, s.rejected("assign", invalid)
	}
	return staff, nil
}

// effectiveDueDate picks the requested date, then the stored one, then the default horizon.
func (s *ReportService) effectiveDueDate(requested, existing *time.Time, now time.Time) (time.Time, error) {
	due := now.Add(s.rules.DefaultDueIn)
	switch {
	case requested != nil:
		due = requested.UTC()
	case existing != nil:
		due = existing.UTC()
	}
	if due.After(now.Add(s.rules.MaxDueIn)) {
		days := int(s.rules.MaxDueIn / (24 * time.Hour))
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("Due date cannot be more than %d days in the future", days)).
			WithDetails(map[string]interface{}{"dueDate": due, "maxDueDate": now.Add(s.rules.MaxDueIn)})
	}
	return due, nil
}

func (s *ReportService) statusConflict(ctx context.Context, id, operation string) error {
	conflict := appErrors.Clone(appErrors.ErrValidation, repository.ErrStatusConflict.Error())
	if latest, err := s.repo.GetByID(ctx, id); err == nil {
		conflict = conflict.WithDetails(map[string]interface{}{"currentStatus": latest.Status})
	}
	return s.rejected(operation, conflict)
}
