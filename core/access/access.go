// Package access holds the authorization gates of the portal.
// The gates are pure functions of the user and of their enrollment records.
package access

import (
	"github.com/trezcool/chuo/core"
	"github.com/trezcool/chuo/core/user"
)

// Denial reasons
const (
	ReasonNotEnrolled         = "NOT_ENROLLED"
	ReasonEnrollmentNotActive = "ENROLLMENT_NOT_ACTIVE"
)

type (
	// EnrollmentSet is the set of enrollment records of a user.
	EnrollmentSet interface {
		// Lookup reports whether an enrollment exists for courseID and whether it is active.
		Lookup(courseID string) (exists, active bool)
	}

	Decision struct {
		Granted bool   `json:"granted"`
		Reason  string `json:"reason,omitempty"`
	}
)

// Err returns a *core.PermissionError carrying the denial reason, or nil if access is granted.
func (d Decision) Err() error {
	if d.Granted {
		return nil
	}
	return core.NewPermissionError(d.Reason)
}

// CanAccessCourseContent grants access to the content of courseID iff the user's enrollment in it is active.
func CanAccessCourseContent(enrollments EnrollmentSet, courseID string) Decision {
	exists, active := false, false
	if enrollments != nil {
		exists, active = enrollments.Lookup(courseID)
	}
	switch {
	case !exists:
		return Decision{Reason: ReasonNotEnrolled}
	case !active:
		return Decision{Reason: ReasonEnrollmentNotActive}
	default:
		return Decision{Granted: true}
	}
}

// CanAccessAdminConsole is true for faculty members and admins.
func CanAccessAdminConsole(usr user.User) bool {
	switch usr.Role {
	case user.RoleFaculty, user.RoleAdmin, user.RoleSuperAdmin:
		return usr.IsActive
	}
	return false
}

// CanAccessMaintenance is true for super admins only.
func CanAccessMaintenance(usr user.User) bool {
	return usr.IsActive && usr.IsSuperAdmin()
}
