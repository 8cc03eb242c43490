package service

import (
	"github.com/noah-isme/civic-report-api/internal/models"
	appErrors "github.com/noah-isme/civic-report-api/pkg/errors"
)

// Actor is the authenticated caller of a report operation.
type Actor struct {
	UserID         string
	Role           models.UserRole
	MunicipalityID string
}

// ActorFromClaims maps verified token claims to an actor.
func ActorFromClaims(claims *models.JWTClaims) Actor {
	if claims == nil {
		return Actor{}
	}
	return Actor{UserID: claims.UserID, Role: claims.Role, MunicipalityID: claims.MunicipalityID}
}

// ReportPolicy decides whether an actor may perform an action before any business rule runs.
// Implementations return typed errors (Forbidden or NotFound) on denial.
type ReportPolicy interface {
	CanCreate(actor Actor) error
	CanView(actor Actor, report *models.Report) error
	CanEdit(actor Actor, report *models.Report) error
	CanTransition(actor Actor, report *models.Report) error
	CanAssign(actor Actor, report *models.Report) error
	// ListScope returns the municipality a listing must be restricted to ("" for all).
	ListScope(actor Actor) (string, error)
}

// RolePolicy is the default role-based policy.
type RolePolicy struct{}

// NewRolePolicy constructs the default policy.
func NewRolePolicy() *RolePolicy {
	return &RolePolicy{}
}

var errReportNotFound = appErrors.Clone(appErrors.ErrNotFound, "Report not found")

// CanCreate allows citizens only.
func (RolePolicy) CanCreate(actor Actor) error {
	if actor.Role != models.RoleCitizen {
		return appErrors.Clone(appErrors.ErrForbidden, "only citizens can submit reports")
	}
	return nil
}

// CanView lets owners, staff of the owning municipality and system admins read a report.
func (RolePolicy) CanView(actor Actor, report *models.Report) error {
	switch {
	case actor.Role == models.RoleSysAdmin:
		return nil
	case actor.Role == models.RoleCitizen:
		if report.CitizenID != actor.UserID {
			return errReportNotFound
		}
		return nil
	case actor.Role.IsStaff():
		if report.MunicipalityID != actor.MunicipalityID {
			return appErrors.Clone(appErrors.ErrForbidden, "report belongs to another municipality")
		}
		return nil
	default:
		return appErrors.ErrForbidden
	}
}

// CanEdit restricts content edits and deletion to the owning citizen.
func (RolePolicy) CanEdit(actor Actor, report *models.Report) error {
	if actor.Role != models.RoleCitizen || report.CitizenID != actor.UserID {
		return errReportNotFound
	}
	return nil
}

// CanTransition requires staff of the report's municipality, or a system admin.
func (RolePolicy) CanTransition(actor Actor, report *models.Report) error {
	if actor.Role == models.RoleSysAdmin {
		return nil
	}
	if !actor.Role.IsStaff() {
		return appErrors.Clone(appErrors.ErrForbidden, "only municipal staff can change report status")
	}
	if report.MunicipalityID != actor.MunicipalityID {
		return appErrors.Clone(appErrors.ErrForbidden, "You can only update reports from your municipality")
	}
	return nil
}

// CanAssign scopes assignment to admins of the report's municipality. Other municipalities see NotFound.
func (RolePolicy) CanAssign(actor Actor, report *models.Report) error {
	switch actor.Role {
	case models.RoleSysAdmin:
		return nil
	case models.RoleMunicipalityAdmin:
		if report.MunicipalityID != actor.MunicipalityID {
			return errReportNotFound
		}
		return nil
	default:
		return appErrors.Clone(appErrors.ErrForbidden, "only municipality admins can assign reports")
	}
}

// ListScope pins municipal staff to their own municipality.
func (RolePolicy) ListScope(actor Actor) (string, error) {
	switch {
	case actor.Role == models.RoleSysAdmin:
		return "", nil
	case actor.Role.IsStaff():
		if actor.MunicipalityID == "" {
			return "", appErrors.Clone(appErrors.ErrForbidden, "staff account is not linked to a municipality")
		}
		return actor.MunicipalityID, nil
	case actor.Role == models.RoleCitizen:
		return "", nil
	default:
		return "", appErrors.ErrForbidden
	}
}
