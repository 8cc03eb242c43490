package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleCitizen           UserRole = "citizen"
	RoleMunicipalityAdmin UserRole = "municipality_admin"
	RoleFieldStaff        UserRole = "field_staff"
	RoleSponsor           UserRole = "sponsor"
	RoleSysAdmin          UserRole = "sys_admin"
)

// UserStatus captures account state.
type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusInactive  UserStatus = "inactive"
	UserStatusSuspended UserStatus = "suspended"
)

// StaffRoles lists roles that can be assigned to work on a report.
var StaffRoles = []UserRole{RoleMunicipalityAdmin, RoleFieldStaff}

// IsStaff reports whether the role belongs to municipal staff.
func (r UserRole) IsStaff() bool {
	for _, role := range StaffRoles {
		if r == role {
			return true
		}
	}
	return false
}

// User is the subset of the users table read by the report lifecycle.
type User struct {
	ID             string     `db:"id" json:"id"`
	Email          string     `db:"email" json:"email"`
	FullName       string     `db:"full_name" json:"fullName"`
	Role           UserRole   `db:"role" json:"role"`
	MunicipalityID *string    `db:"municipality_id" json:"municipalityId,omitempty"`
	Points         int        `db:"points" json:"points"`
	Status         UserStatus `db:"status" json:"status"`
	CreatedAt      time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updatedAt"`
}

// BelongsTo reports whether the user is a member of the municipality.
func (u *User) BelongsTo(municipalityID string) bool {
	return u != nil && u.MunicipalityID != nil && *u.MunicipalityID == municipalityID
}

// UserSummary is the populated view of a user embedded in report responses.
type UserSummary struct {
	ID       string   `json:"id"`
	FullName string   `json:"fullName"`
	Email    string   `json:"email"`
	Role     UserRole `json:"role"`
}

// Summary projects the user into its public summary.
func (u *User) Summary() *UserSummary {
	if u == nil {
		return nil
	}
	return &UserSummary{ID: u.ID, FullName: u.FullName, Email: u.Email, Role: u.Role}
}
