package enrollment

import (
	"math"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/chuo/core/access"
)

// Status is the state of an enrollment. Any value other than the ones below is terminal.
type Status string

const (
	StatusPendingApproval Status = "pending_approval"
	StatusActive          Status = "active"
)

func (s Status) IsActive() bool  { return s == StatusActive }
func (s Status) IsPending() bool { return s == StatusPendingApproval }

// Enrollment is a learner's relationship to a course.
type Enrollment struct {
	CourseID       string    `json:"course_id"`
	CourseTitle    string    `json:"course_title"` // denormalized at request time
	Status         Status    `json:"status"`
	EnrolledAt     time.Time `json:"enrolled_at"`
	LastAccessedAt null.Time `json:"last_accessed_at"`
}

// List is the enrollment list of a user. It holds at most one Enrollment per course.
type List []Enrollment

var _ access.EnrollmentSet = List(nil)

// Find returns the index of the enrollment in courseID, or -1.
func (l List) Find(courseID string) int {
	for i, e := range l {
		if e.CourseID == courseID {
			return i
		}
	}
	return -1
}

func (l List) Lookup(courseID string) (exists, active bool) {
	if i := l.Find(courseID); i >= 0 {
		return true, l[i].Status.IsActive()
	}
	return false, false
}

// RequestResult is the outcome of an enrollment request.
type RequestResult struct {
	Enrollment Enrollment `json:"enrollment"`
	Created    bool       `json:"created"`
}

// Message informs the learner about the state of their enrollment.
func (r RequestResult) Message() string {
	switch {
	case r.Created:
		return "enrollment requested"
	case r.Enrollment.Status.IsActive():
		return "already enrolled"
	case r.Enrollment.Status.IsPending():
		return "enrollment pending approval"
	default:
		return "enrollment is " + string(r.Enrollment.Status)
	}
}

// Progress is the per (user, course) completion record.
type Progress struct {
	CourseID             string    `json:"course_id"`
	CompletedModules     []string  `json:"completed_modules"` // a set, in completion order, within ModuleIDs
	ModuleIDs            []string  `json:"module_ids"`        // snapshot of the course modules at creation
	TotalModules         int       `json:"total_modules"`     // len(ModuleIDs)
	SubmittedAssignments []string  `json:"submitted_assignments"`
	AssignmentsSubmitted int       `json:"assignments_submitted"`
	LastActivityAt       null.Time `json:"last_activity_at"`
	CreatedAt            time.Time `json:"created_at"`
}

func newProgress(courseID string, moduleIDs []string, now time.Time) Progress {
	if moduleIDs == nil {
		moduleIDs = []string{}
	}
	return Progress{
		CourseID:             courseID,
		CompletedModules:     []string{},
		ModuleIDs:            moduleIDs,
		TotalModules:         len(moduleIDs),
		SubmittedAssignments: []string{},
		CreatedAt:            now,
	}
}

// Exists reports whether p was loaded from the store.
func (p Progress) Exists() bool { return !p.CreatedAt.IsZero() }

// CompletionPercent is in [0, 100]; 0 when the course has no module.
func (p Progress) CompletionPercent() float64 {
	if p.TotalModules <= 0 {
		return 0
	}
	pct := float64(len(p.CompletedModules)) / float64(p.TotalModules) * 100
	return math.Max(0, math.Min(100, pct))
}

func (p Progress) HasCompleted(moduleID string) bool {
	return contains(p.CompletedModules, moduleID)
}

// View returns p along with its derived values.
func (p Progress) View() ProgressView {
	return ProgressView{Progress: p, CompletionPercent: p.CompletionPercent()}
}

// ProgressView is Progress with its derived values.
type ProgressView struct {
	Progress
	CompletionPercent float64 `json:"completion_percent"`
}

// Tracks reports whether moduleID counts towards p. Records written before the module
// snapshot existed track every module.
func (p Progress) Tracks(moduleID string) bool {
	return p.ModuleIDs == nil || contains(p.ModuleIDs, moduleID)
}

// completeModule adds moduleID to the completed set; false if it was already there.
// It returns ErrModuleNotFound when moduleID is not part of the snapshot.
func (p *Progress) completeModule(moduleID string, now time.Time) (bool, error) {
	if !p.Tracks(moduleID) {
		return false, ErrModuleNotFound
	}
	if p.HasCompleted(moduleID) {
		return false, nil
	}
	p.CompletedModules = append(p.CompletedModules, moduleID)
	p.LastActivityAt = null.TimeFrom(now)
	return true, nil
}

func (p *Progress) submitAssignment(assignmentID string, now time.Time) bool {
	if contains(p.SubmittedAssignments, assignmentID) {
		return false
	}
	p.SubmittedAssignments = append(p.SubmittedAssignments, assignmentID)
	p.AssignmentsSubmitted = len(p.SubmittedAssignments)
	p.LastActivityAt = null.TimeFrom(now)
	return true
}

type (
	DashboardCourse struct {
		CourseID          string  `json:"course_id"`
		Title             string  `json:"title"`
		Status            Status  `json:"status"`
		CompletionPercent float64 `json:"completion_percent"`
		AssignmentsDue    int     `json:"assignments_due"`
		UpcomingExams     int     `json:"upcoming_exams"`
	}

	// Dashboard aggregates the active and pending enrollments of a learner.
	Dashboard struct {
		AssignmentsDue int               `json:"assignments_due"`
		UpcomingExams  int               `json:"upcoming_exams"`
		Courses        []DashboardCourse `json:"courses"`
	}

	PendingUser struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}

	// PendingGroup holds the enrollments of a user awaiting approval.
	PendingGroup struct {
		User          PendingUser  `json:"user"`
		Enrollments   []Enrollment `json:"enrollments"`
		OldestRequest time.Time    `json:"oldest_request"`
	}
)

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
