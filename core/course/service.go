package course

import (
	"context"
	"io"
	"path"
	"strings"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/chuo/core"
)

var (
	// errors
	ErrNotFound           = core.NewNotFoundError("course")
	ErrTermNotFound       = core.NewNotFoundError("academic term")
	ErrSectionNotFound    = core.NewNotFoundError("section")
	ErrItemNotFound       = core.NewNotFoundError("content item")
	ErrAssignmentNotFound = core.NewNotFoundError("assignment")
	ErrExamNotFound       = core.NewNotFoundError("exam")

	errTermInUse   = errors.New("this term is referenced by courses")
	errUnknownTerm = errors.New("unknown academic term")
)

type (
	Repository interface {
		CreateCourse(ctx context.Context, c Course) (Course, error)
		QueryCourses(ctx context.Context, filter QueryFilter) ([]Course, error)
		GetCourseByID(ctx context.Context, id string) (Course, error)
		// UpdateCourse applies fn on the stored course and saves it, retrying on concurrent modifications.
		UpdateCourse(ctx context.Context, id string, fn func(c *Course) error) (Course, error)
		DeleteCourse(ctx context.Context, id string) error

		CreateTerm(ctx context.Context, t AcademicTerm) (AcademicTerm, error)
		QueryTerms(ctx context.Context) ([]AcademicTerm, error)
		GetTermByID(ctx context.Context, id string) (AcademicTerm, error)
		DeleteTerm(ctx context.Context, id string) error
	}

	Service interface {
		Create(ctx context.Context, nc NewCourse) (Course, error)
		Query(ctx context.Context, filter QueryFilter) ([]Course, error)
		GetByID(ctx context.Context, id string) (Course, error)
		Update(ctx context.Context, id string, uc UpdateCourse) (Course, error)
		Delete(ctx context.Context, id string) error

		AddSection(ctx context.Context, courseID string, ns NewSection) (Course, error)
		RemoveSection(ctx context.Context, courseID, sectionID string) (Course, error)
		AddItem(ctx context.Context, courseID, sectionID string, ni NewContentItem) (Course, error)
		UploadItem(ctx context.Context, courseID, sectionID string, ni NewContentItem, up Upload) (Course, error)
		RemoveItem(ctx context.Context, courseID, sectionID, itemID string) (Course, error)
		AddAssignment(ctx context.Context, courseID string, na NewAssignment) (Course, error)
		RemoveAssignment(ctx context.Context, courseID, assignmentID string) (Course, error)
		AddExam(ctx context.Context, courseID string, ne NewExam) (Course, error)
		RemoveExam(ctx context.Context, courseID, examID string) (Course, error)

		CreateTerm(ctx context.Context, nt NewTerm) (AcademicTerm, error)
		QueryTerms(ctx context.Context) ([]AcademicTerm, error)
		GetTerm(ctx context.Context, id string) (AcademicTerm, error)
		DeleteTerm(ctx context.Context, id string) error
	}

	// Upload is a content file to store in the blob store.
	Upload struct {
		Filename    string
		ContentType string
		Size        int64
		Content     io.Reader
	}

	service struct {
		repo   Repository
		blobs  core.BlobStore
		events core.EventPublisher
		logger core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, blobs core.BlobStore, events core.EventPublisher, logger core.Logger) Service {
	return &service{repo: repo, blobs: blobs, events: events, logger: logger}
}

func (svc *service) checkTerm(ctx context.Context, termID string) error {
	if termID == "" {
		return nil
	}
	if _, err := svc.repo.GetTermByID(ctx, termID); err != nil {
		if errors.Cause(err) == ErrTermNotFound {
			return core.NewValidationError(errUnknownTerm, core.FieldError{Field: "term_id", Error: errUnknownTerm.Error()})
		}
		return errors.Wrap(err, "finding term by ID")
	}
	return nil
}

// Create saves a new course. nc must have been validated.
func (svc *service) Create(ctx context.Context, nc NewCourse) (Course, error) {
	if err := svc.checkTerm(ctx, nc.TermID); err != nil {
		return Course{}, err
	}

	now := core.NowFunc()
	c := Course{
		Title:       nc.Title,
		Code:        nc.Code,
		Description: nc.Description,
		CreditHours: *nc.CreditHours,
		TermID:      null.NewString(nc.TermID, nc.TermID != ""),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	c.normalize()
	return svc.repo.CreateCourse(ctx, c)
}

func (svc *service) Query(ctx context.Context, filter QueryFilter) ([]Course, error) {
	courses, err := svc.repo.QueryCourses(ctx, filter)
	if err != nil {
		return nil, err
	}
	for i := range courses {
		courses[i].normalize()
	}
	return courses, nil
}

func (svc *service) GetByID(ctx context.Context, id string) (Course, error) {
	if id == "" {
		return Course{}, ErrNotFound
	}
	c, err := svc.repo.GetCourseByID(ctx, id)
	if err != nil {
		return Course{}, err
	}
	c.normalize()
	return c, nil
}

func (svc *service) update(ctx context.Context, id string, fn func(c *Course) error) (Course, error) {
	c, err := svc.repo.UpdateCourse(ctx, id, func(c *Course) error {
		c.normalize()
		if err := fn(c); err != nil {
			return err
		}
		c.UpdatedAt = core.NowFunc()
		return nil
	})
	if err != nil {
		return Course{}, err
	}
	c.normalize()
	return c, nil
}

// Update modifies the course attributes. uc must have been validated.
func (svc *service) Update(ctx context.Context, id string, uc UpdateCourse) (Course, error) {
	if uc.TermID != nil {
		if err := svc.checkTerm(ctx, *uc.TermID); err != nil {
			return Course{}, err
		}
	}
	return svc.update(ctx, id, func(c *Course) error {
		if uc.Title != "" {
			c.Title = uc.Title
		}
		if uc.Code != "" {
			c.Code = uc.Code
		}
		if uc.Description != nil {
			c.Description = *uc.Description
		}
		if uc.CreditHours != nil {
			c.CreditHours = *uc.CreditHours
		}
		if uc.TermID != nil {
			c.TermID = null.NewString(*uc.TermID, *uc.TermID != "")
		}
		return nil
	})
}

// Delete hard deletes the course. Enrollments and progress records referencing it are kept.
func (svc *service) Delete(ctx context.Context, id string) error {
	c, err := svc.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err = svc.repo.DeleteCourse(ctx, id); err != nil {
		return err
	}
	core.PublishEvent(ctx, svc.events, svc.logger, core.NewDomainEvent(core.EventCourseDeleted, map[string]string{
		"course_id": c.ID,
		"title":     c.Title,
	}))
	return nil
}

func (svc *service) AddSection(ctx context.Context, courseID string, ns NewSection) (Course, error) {
	return svc.update(ctx, courseID, func(c *Course) error {
		c.Sections = append(c.Sections, Section{ID: core.NewID(), Title: ns.Title, Items: []ContentItem{}})
		return nil
	})
}

func (svc *service) RemoveSection(ctx context.Context, courseID, sectionID string) (Course, error) {
	return svc.update(ctx, courseID, func(c *Course) error {
		i := c.sectionIndex(sectionID)
		if i < 0 {
			return ErrSectionNotFound
		}
		c.Sections = append(c.Sections[:i], c.Sections[i+1:]...)
		return nil
	})
}

func (svc *service) addItem(ctx context.Context, courseID, sectionID string, item ContentItem) (Course, error) {
	return svc.update(ctx, courseID, func(c *Course) error {
		i := c.sectionIndex(sectionID)
		if i < 0 {
			return ErrSectionNotFound
		}
		c.Sections[i].Items = append(c.Sections[i].Items, item)
		return nil
	})
}

// AddItem adds a content item hosted elsewhere (or an inline module) to a section.
func (svc *service) AddItem(ctx context.Context, courseID, sectionID string, ni NewContentItem) (Course, error) {
	return svc.addItem(ctx, courseID, sectionID, ContentItem{
		ID:    core.NewID(),
		Type:  ni.Type,
		Title: ni.Title,
		URL:   ni.URL,
		Body:  ni.Body,
	})
}

// UploadItem stores the item content in the blob store, then adds the item to a section.
func (svc *service) UploadItem(ctx context.Context, courseID, sectionID string, ni NewContentItem, up Upload) (Course, error) {
	if svc.blobs == nil {
		return Course{}, errors.New("no blob store configured")
	}

	// fail fast before uploading anything
	c, err := svc.GetByID(ctx, courseID)
	if err != nil {
		return Course{}, err
	}
	if c.sectionIndex(sectionID) < 0 {
		return Course{}, ErrSectionNotFound
	}

	itemID := core.NewID()
	key := path.Join("courses", courseID, sectionID, itemID+strings.ToLower(path.Ext(up.Filename)))
	handle, err := svc.blobs.Upload(ctx, key, up.Content, up.Size, up.ContentType)
	if err != nil {
		return Course{}, errors.Wrap(err, "uploading content")
	}

	return svc.addItem(ctx, courseID, sectionID, ContentItem{
		ID:    itemID,
		Type:  ni.Type,
		Title: ni.Title,
		URL:   svc.blobs.PublicURL(handle),
		Body:  ni.Body,
		Blob:  &handle,
	})
}

func (svc *service) RemoveItem(ctx context.Context, courseID, sectionID, itemID string) (Course, error) {
	return svc.update(ctx, courseID, func(c *Course) error {
		i := c.sectionIndex(sectionID)
		if i < 0 {
			return ErrSectionNotFound
		}
		items := c.Sections[i].Items
		for j := range items {
			if items[j].ID == itemID {
				c.Sections[i].Items = append(items[:j], items[j+1:]...)
				return nil
			}
		}
		return ErrItemNotFound
	})
}

func (svc *service) AddAssignment(ctx context.Context, courseID string, na NewAssignment) (Course, error) {
	return svc.update(ctx, courseID, func(c *Course) error {
		c.Assignments[core.NewID()] = Assignment{Title: na.Title, DueDate: na.DueDate.UTC()}
		return nil
	})
}

func (svc *service) RemoveAssignment(ctx context.Context, courseID, assignmentID string) (Course, error) {
	return svc.update(ctx, courseID, func(c *Course) error {
		if _, ok := c.Assignments[assignmentID]; !ok {
			return ErrAssignmentNotFound
		}
		delete(c.Assignments, assignmentID)
		return nil
	})
}

func (svc *service) AddExam(ctx context.Context, courseID string, ne NewExam) (Course, error) {
	return svc.update(ctx, courseID, func(c *Course) error {
		c.Exams[core.NewID()] = Exam{Title: ne.Title, Date: ne.Date.UTC()}
		return nil
	})
}

func (svc *service) RemoveExam(ctx context.Context, courseID, examID string) (Course, error) {
	return svc.update(ctx, courseID, func(c *Course) error {
		if _, ok := c.Exams[examID]; !ok {
			return ErrExamNotFound
		}
		delete(c.Exams, examID)
		return nil
	})
}

// CreateTerm saves a new academic term. nt must have been validated.
func (svc *service) CreateTerm(ctx context.Context, nt NewTerm) (AcademicTerm, error) {
	return svc.repo.CreateTerm(ctx, AcademicTerm{
		Name:      nt.Name,
		Year:      nt.Year,
		Type:      nt.Type,
		StartDate: nt.StartDate.UTC(),
		EndDate:   nt.EndDate.UTC(),
		CreatedAt: core.NowFunc(),
	})
}

func (svc *service) QueryTerms(ctx context.Context) ([]AcademicTerm, error) {
	return svc.repo.QueryTerms(ctx)
}

func (svc *service) GetTerm(ctx context.Context, id string) (AcademicTerm, error) {
	if id == "" {
		return AcademicTerm{}, ErrTermNotFound
	}
	return svc.repo.GetTermByID(ctx, id)
}

// DeleteTerm deletes a term no course refers to.
func (svc *service) DeleteTerm(ctx context.Context, id string) error {
	if _, err := svc.GetTerm(ctx, id); err != nil {
		return err
	}
	courses, err := svc.repo.QueryCourses(ctx, QueryFilter{TermID: id})
	if err != nil {
		return errors.Wrap(err, "querying courses by term")
	}
	if len(courses) > 0 {
		return core.NewValidationError(errTermInUse)
	}
	return svc.repo.DeleteTerm(ctx, id)
}
