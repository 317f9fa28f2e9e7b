package docrepos

import (
	"context"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/chuo/core"
	"github.com/trezcool/chuo/core/course"
)

const (
	coursesPath = "courses"
	termsPath   = "terms"
)

type courseRepository struct {
	store core.DocStore
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(store core.DocStore) course.Repository {
	return &courseRepository{store: store}
}

func coursePath(id string) string { return core.JoinPath(coursesPath, url.PathEscape(id)) }
func termPath(id string) string   { return core.JoinPath(termsPath, url.PathEscape(id)) }

func (repo *courseRepository) CreateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	c.ID = core.NewID()
	if _, err := repo.store.CompareAndSwap(ctx, coursePath(c.ID), 0, c); err != nil {
		return course.Course{}, errors.Wrap(err, "saving course")
	}
	return c, nil
}

// QueryCourses returns the courses ordered by title.
func (repo *courseRepository) QueryCourses(ctx context.Context, filter course.QueryFilter) ([]course.Course, error) {
	docs, err := repo.store.List(ctx, coursesPath, core.Query{OrderBy: "title"})
	if err != nil {
		return nil, errors.Wrap(err, "listing courses")
	}

	search := strings.ToLower(filter.Search)
	courses := make([]course.Course, 0, len(docs))
	for _, doc := range docs {
		var c course.Course
		if err = doc.Decode(&c); err != nil {
			return nil, err
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(c.Title), search) &&
			!strings.Contains(strings.ToLower(c.Code), search) {
			continue
		}
		if filter.TermID != "" && c.TermID.String != filter.TermID {
			continue
		}
		courses = append(courses, c)
	}
	return courses, nil
}

func (repo *courseRepository) GetCourseByID(ctx context.Context, id string) (course.Course, error) {
	var c course.Course
	if err := readDoc(ctx, repo.store, coursePath(id), &c, course.ErrNotFound); err != nil {
		return course.Course{}, err
	}
	return c, nil
}

func (repo *courseRepository) UpdateCourse(ctx context.Context, id string, fn func(c *course.Course) error) (course.Course, error) {
	var c course.Course
	_, err := core.UpdateDoc(ctx, repo.store, coursePath(id), func(cur core.Doc) (interface{}, error) {
		if !cur.Exists() {
			return nil, course.ErrNotFound
		}
		c = course.Course{}
		if err := cur.Decode(&c); err != nil {
			return nil, err
		}
		if err := fn(&c); err != nil {
			return nil, err
		}
		return c, nil
	})
	if err != nil {
		return course.Course{}, err
	}
	return c, nil
}

func (repo *courseRepository) DeleteCourse(ctx context.Context, id string) error {
	return errors.Wrap(repo.store.Write(ctx, coursePath(id), nil), "deleting course")
}

func (repo *courseRepository) CreateTerm(ctx context.Context, t course.AcademicTerm) (course.AcademicTerm, error) {
	t.ID = core.NewID()
	if _, err := repo.store.CompareAndSwap(ctx, termPath(t.ID), 0, t); err != nil {
		return course.AcademicTerm{}, errors.Wrap(err, "saving term")
	}
	return t, nil
}

// QueryTerms returns the terms ordered by start date.
func (repo *courseRepository) QueryTerms(ctx context.Context) ([]course.AcademicTerm, error) {
	docs, err := repo.store.List(ctx, termsPath, core.Query{OrderBy: "start_date"})
	if err != nil {
		return nil, errors.Wrap(err, "listing terms")
	}
	terms := make([]course.AcademicTerm, 0, len(docs))
	for _, doc := range docs {
		var t course.AcademicTerm
		if err = doc.Decode(&t); err != nil {
			return nil, err
		}
		terms = append(terms, t)
	}
	return terms, nil
}

func (repo *courseRepository) GetTermByID(ctx context.Context, id string) (course.AcademicTerm, error) {
	var t course.AcademicTerm
	if err := readDoc(ctx, repo.store, termPath(id), &t, course.ErrTermNotFound); err != nil {
		return course.AcademicTerm{}, err
	}
	return t, nil
}

func (repo *courseRepository) DeleteTerm(ctx context.Context, id string) error {
	return errors.Wrap(repo.store.Write(ctx, termPath(id), nil), "deleting term")
}

// readDoc decodes the document at path into v, returning notFound when it is absent.
func readDoc(ctx context.Context, store core.DocStore, path string, v interface{}, notFound error) error {
	doc, err := store.Read(ctx, path)
	if err != nil {
		if cause := errors.Cause(err); cause == core.ErrDocNotFound || cause == core.ErrInvalidPath {
			return notFound
		}
		return errors.Wrapf(err, "reading %s", path)
	}
	return doc.Decode(v)
}
