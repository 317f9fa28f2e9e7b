package enrollment

import (
	"context"
	"net/mail"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/chuo/core"
	"github.com/trezcool/chuo/core/access"
	"github.com/trezcool/chuo/core/course"
	"github.com/trezcool/chuo/core/user"
)

var (
	// errors
	ErrNotFound           = core.NewNotFoundError("enrollment")
	ErrPendingNotFound    = core.NewNotFoundError("pending enrollment")
	ErrProgressNotFound   = core.NewNotFoundError("progress")
	ErrModuleNotFound     = core.NewNotFoundError("module")
	ErrAssignmentNotFound = core.NewNotFoundError("assignment")
)

type (
	Repository interface {
		// ListEnrollments returns the enrollment list of a user, empty when there is none.
		ListEnrollments(ctx context.Context, userID string) (List, error)
		// UpdateEnrollments applies fn on the enrollment list of a user and saves the result.
		// The cycle is retried on concurrent modifications; fn returning core.ErrNoChange skips the write.
		UpdateEnrollments(ctx context.Context, userID string, fn func(l List) (List, error)) (List, error)
		// ScanEnrollments returns the enrollment lists of every user, by user ID.
		ScanEnrollments(ctx context.Context) (map[string]List, error)

		GetProgress(ctx context.Context, userID, courseID string) (Progress, error)
		// UpdateProgress applies fn on the progress of a user in a course, like UpdateEnrollments.
		// fn receives a zero Progress when none is stored yet.
		UpdateProgress(ctx context.Context, userID, courseID string, fn func(p *Progress) error) (Progress, error)
	}

	// CourseGetter is the part of the course service the enrollments depend on.
	CourseGetter interface {
		GetByID(ctx context.Context, id string) (course.Course, error)
	}

	// UserGetter is the part of the user service the enrollments depend on.
	UserGetter interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	Service interface {
		Request(ctx context.Context, userID, courseID string) (RequestResult, error)
		Approve(ctx context.Context, userID, courseID string) (Enrollment, error)
		Enrollments(ctx context.Context, userID string) (List, error)
		Touch(ctx context.Context, userID, courseID string) error
		CheckAccess(ctx context.Context, userID, courseID string) (access.Decision, error)

		Progress(ctx context.Context, userID, courseID string) (Progress, error)
		MarkModuleComplete(ctx context.Context, userID, courseID, moduleID string) (Progress, error)
		SubmitAssignment(ctx context.Context, userID, courseID, assignmentID string) (Progress, error)
		Dashboard(ctx context.Context, userID string, now time.Time) (Dashboard, error)

		PendingByUser(ctx context.Context) ([]PendingGroup, error)
	}

	service struct {
		conf    *core.Config
		repo    Repository
		courses CourseGetter
		users   UserGetter
		events  core.EventPublisher
		mailSvc core.EmailService
		logger  core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(
	conf *core.Config,
	repo Repository,
	courses CourseGetter,
	users UserGetter,
	events core.EventPublisher,
	mailSvc core.EmailService,
	logger core.Logger,
) Service {
	return &service{
		conf:    conf,
		repo:    repo,
		courses: courses,
		users:   users,
		events:  events,
		mailSvc: mailSvc,
		logger:  logger,
	}
}

// Request enrolls a user in a course, pending approval.
// If the user is already enrolled the existing enrollment is returned, and only its missing
// progress record, if any, is written.
func (svc *service) Request(ctx context.Context, userID, courseID string) (RequestResult, error) {
	crs, err := svc.courses.GetByID(ctx, courseID)
	if err != nil {
		return RequestResult{}, errors.Wrap(err, "finding course by ID")
	}
	if _, err = svc.users.GetByID(ctx, userID); err != nil {
		return RequestResult{}, errors.Wrap(err, "finding user by ID")
	}

	var res RequestResult
	_, err = svc.repo.UpdateEnrollments(ctx, userID, func(l List) (List, error) {
		if i := l.Find(courseID); i >= 0 {
			res = RequestResult{Enrollment: l[i]}
			return nil, core.ErrNoChange
		}
		res = RequestResult{
			Enrollment: Enrollment{
				CourseID:    courseID,
				CourseTitle: crs.Title,
				Status:      StatusPendingApproval,
				EnrolledAt:  core.NowFunc(),
			},
			Created: true,
		}
		return append(l, res.Enrollment), nil
	})
	if err != nil {
		return RequestResult{}, errors.Wrap(err, "saving enrollment")
	}

	// progress starts with the course modules at request time. An existing enrollment
	// may lack it when a previous request failed after saving the enrollment.
	_, err = svc.repo.UpdateProgress(ctx, userID, courseID, func(p *Progress) error {
		if p.Exists() {
			return core.ErrNoChange
		}
		*p = newProgress(courseID, crs.ModuleIDs(), core.NowFunc())
		return nil
	})
	if err != nil {
		return RequestResult{}, errors.Wrap(err, "creating progress")
	}
	if !res.Created {
		return res, nil
	}

	core.PublishEvent(ctx, svc.events, svc.logger, core.NewDomainEvent(core.EventEnrollmentRequested, map[string]string{
		"user_id":   userID,
		"course_id": courseID,
	}))
	return res, nil
}

// Approve activates a pending enrollment. It returns ErrPendingNotFound unless the
// enrollment exists and is pending approval.
func (svc *service) Approve(ctx context.Context, userID, courseID string) (Enrollment, error) {
	var approved Enrollment
	_, err := svc.repo.UpdateEnrollments(ctx, userID, func(l List) (List, error) {
		i := l.Find(courseID)
		if i < 0 || !l[i].Status.IsPending() {
			return nil, ErrPendingNotFound
		}
		l[i].Status = StatusActive
		l[i].LastAccessedAt = null.TimeFrom(core.NowFunc())
		approved = l[i]
		return l, nil
	})
	if err != nil {
		return Enrollment{}, err
	}

	core.PublishEvent(ctx, svc.events, svc.logger, core.NewDomainEvent(core.EventEnrollmentApproved, map[string]string{
		"user_id":   userID,
		"course_id": courseID,
	}))
	svc.sendApprovalMail(ctx, userID, approved)
	return approved, nil
}

func (svc *service) sendApprovalMail(ctx context.Context, userID string, e Enrollment) {
	if svc.mailSvc == nil {
		return
	}
	usr, err := svc.users.GetByID(ctx, userID)
	if err != nil {
		svc.logger.Warn("finding user to notify of approval", err)
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Enrollment approved",
		TemplateName: "enrollment_approved",
		TemplateData: map[string]interface{}{
			"Name":        usr.Name,
			"CourseID":    e.CourseID,
			"CourseTitle": e.CourseTitle,
		},
	})
}

func (svc *service) Enrollments(ctx context.Context, userID string) (List, error) {
	l, err := svc.repo.ListEnrollments(ctx, userID)
	if err != nil {
		return nil, err
	}
	if l == nil {
		l = List{}
	}
	return l, nil
}

// Touch records an access to the course content.
func (svc *service) Touch(ctx context.Context, userID, courseID string) error {
	_, err := svc.repo.UpdateEnrollments(ctx, userID, func(l List) (List, error) {
		i := l.Find(courseID)
		if i < 0 {
			return nil, ErrNotFound
		}
		l[i].LastAccessedAt = null.TimeFrom(core.NowFunc())
		return l, nil
	})
	return err
}

// CheckAccess evaluates the content gate of courseID for a user.
func (svc *service) CheckAccess(ctx context.Context, userID, courseID string) (access.Decision, error) {
	l, err := svc.repo.ListEnrollments(ctx, userID)
	if err != nil {
		return access.Decision{}, errors.Wrap(err, "listing enrollments")
	}
	return access.CanAccessCourseContent(l, courseID), nil
}

func (svc *service) gate(ctx context.Context, userID, courseID string) error {
	decision, err := svc.CheckAccess(ctx, userID, courseID)
	if err != nil {
		return err
	}
	return decision.Err()
}

func (svc *service) Progress(ctx context.Context, userID, courseID string) (Progress, error) {
	return svc.repo.GetProgress(ctx, userID, courseID)
}

// MarkModuleComplete adds moduleID to the completed modules of the user. It requires an active
// enrollment and is idempotent.
func (svc *service) MarkModuleComplete(ctx context.Context, userID, courseID, moduleID string) (Progress, error) {
	if err := svc.gate(ctx, userID, courseID); err != nil {
		return Progress{}, err
	}
	crs, err := svc.courses.GetByID(ctx, courseID)
	if err != nil {
		return Progress{}, errors.Wrap(err, "finding course by ID")
	}
	if !crs.HasModule(moduleID) {
		return Progress{}, ErrModuleNotFound
	}

	var changed bool
	p, err := svc.repo.UpdateProgress(ctx, userID, courseID, func(p *Progress) error {
		now := core.NowFunc()
		if !p.Exists() {
			*p = newProgress(courseID, crs.ModuleIDs(), now)
		}
		ok, err := p.completeModule(moduleID, now)
		if err != nil {
			return err
		}
		if changed = ok; !changed {
			return core.ErrNoChange
		}
		return nil
	})
	if err != nil {
		if errors.Cause(err) == ErrModuleNotFound {
			// added to the course after the progress was created
			return Progress{}, ErrModuleNotFound
		}
		return Progress{}, errors.Wrap(err, "saving progress")
	}

	if changed {
		core.PublishEvent(ctx, svc.events, svc.logger, core.NewDomainEvent(core.EventModuleCompleted, map[string]interface{}{
			"user_id":            userID,
			"course_id":          courseID,
			"module_id":          moduleID,
			"completion_percent": p.CompletionPercent(),
		}))
	}
	return p, nil
}

// SubmitAssignment records the submission of an assignment. It requires an active enrollment
// and is idempotent.
func (svc *service) SubmitAssignment(ctx context.Context, userID, courseID, assignmentID string) (Progress, error) {
	if err := svc.gate(ctx, userID, courseID); err != nil {
		return Progress{}, err
	}
	crs, err := svc.courses.GetByID(ctx, courseID)
	if err != nil {
		return Progress{}, errors.Wrap(err, "finding course by ID")
	}
	if _, ok := crs.Assignments[assignmentID]; !ok {
		return Progress{}, ErrAssignmentNotFound
	}

	var changed bool
	p, err := svc.repo.UpdateProgress(ctx, userID, courseID, func(p *Progress) error {
		now := core.NowFunc()
		if !p.Exists() {
			*p = newProgress(courseID, crs.ModuleIDs(), now)
		}
		changed = p.submitAssignment(assignmentID, now)
		if !changed {
			return core.ErrNoChange
		}
		return nil
	})
	if err != nil {
		return Progress{}, errors.Wrap(err, "saving progress")
	}

	if changed {
		core.PublishEvent(ctx, svc.events, svc.logger, core.NewDomainEvent(core.EventAssignmentSubmitted, map[string]string{
			"user_id":       userID,
			"course_id":     courseID,
			"assignment_id": assignmentID,
		}))
	}
	return p, nil
}

// Dashboard counts the assignments due and the exams upcoming after now, across the active and
// pending enrollments of a user. Deleted courses are listed with their enrollment title only.
func (svc *service) Dashboard(ctx context.Context, userID string, now time.Time) (Dashboard, error) {
	l, err := svc.Enrollments(ctx, userID)
	if err != nil {
		return Dashboard{}, errors.Wrap(err, "listing enrollments")
	}

	dash := Dashboard{Courses: make([]DashboardCourse, 0, len(l))}
	for _, e := range l {
		if !(e.Status.IsActive() || e.Status.IsPending()) {
			continue
		}
		dc := DashboardCourse{CourseID: e.CourseID, Title: e.CourseTitle, Status: e.Status}

		crs, err := svc.courses.GetByID(ctx, e.CourseID)
		switch {
		case err == nil:
			dc.Title = crs.Title
			dc.AssignmentsDue = crs.UpcomingAssignments(now)
			dc.UpcomingExams = crs.UpcomingExams(now)
		case !core.IsNotFound(err):
			return Dashboard{}, errors.Wrap(err, "finding course by ID")
		}

		p, err := svc.repo.GetProgress(ctx, userID, e.CourseID)
		switch {
		case err == nil:
			dc.CompletionPercent = p.CompletionPercent()
		case !core.IsNotFound(err):
			return Dashboard{}, errors.Wrap(err, "finding progress")
		}

		dash.AssignmentsDue += dc.AssignmentsDue
		dash.UpcomingExams += dc.UpcomingExams
		dash.Courses = append(dash.Courses, dc)
	}
	return dash, nil
}

// PendingByUser lists the enrollments awaiting approval grouped by user, oldest request first.
func (svc *service) PendingByUser(ctx context.Context) ([]PendingGroup, error) {
	all, err := svc.repo.ScanEnrollments(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "scanning enrollments")
	}

	groups := make([]PendingGroup, 0)
	for userID, l := range all {
		var pending []Enrollment
		for _, e := range l {
			if e.Status.IsPending() {
				pending = append(pending, e)
			}
		}
		if len(pending) == 0 {
			continue
		}
		sort.SliceStable(pending, func(i, j int) bool { return pending[i].EnrolledAt.Before(pending[j].EnrolledAt) })

		grp := PendingGroup{
			User:          PendingUser{ID: userID},
			Enrollments:   pending,
			OldestRequest: pending[0].EnrolledAt,
		}
		usr, err := svc.users.GetByID(ctx, userID)
		switch {
		case err == nil:
			grp.User.Name = usr.Name
			grp.User.Email = usr.Email
		case !core.IsNotFound(err):
			return nil, errors.Wrap(err, "finding user by ID")
		}
		groups = append(groups, grp)
	}

	sort.Slice(groups, func(i, j int) bool {
		if groups[i].OldestRequest.Equal(groups[j].OldestRequest) {
			return groups[i].User.ID < groups[j].User.ID
		}
		return groups[i].OldestRequest.Before(groups[j].OldestRequest)
	})
	return groups, nil
}
