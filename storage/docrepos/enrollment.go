package docrepos

import (
	"context"
	"net/url"

	"github.com/pkg/errors"

	"github.com/trezcool/chuo/core"
	"github.com/trezcool/chuo/core/enrollment"
)

const (
	enrollmentsPath = "enrollments"
	progressPath    = "progress"
)

type enrollmentRepository struct {
	store core.DocStore
}

var _ enrollment.Repository = (*enrollmentRepository)(nil) // interface compliance check

func NewEnrollmentRepository(store core.DocStore) enrollment.Repository {
	return &enrollmentRepository{store: store}
}

func userEnrollmentsPath(userID string) string {
	return core.JoinPath(enrollmentsPath, url.PathEscape(userID))
}

func userProgressPath(userID, courseID string) string {
	return core.JoinPath(progressPath, url.PathEscape(userID), url.PathEscape(courseID))
}

func (repo *enrollmentRepository) ListEnrollments(ctx context.Context, userID string) (enrollment.List, error) {
	var l enrollment.List
	if err := readDoc(ctx, repo.store, userEnrollmentsPath(userID), &l, enrollment.ErrNotFound); err != nil {
		if errors.Cause(err) == enrollment.ErrNotFound {
			return enrollment.List{}, nil
		}
		return nil, err
	}
	return l, nil
}

func (repo *enrollmentRepository) UpdateEnrollments(ctx context.Context, userID string, fn func(l enrollment.List) (enrollment.List, error)) (enrollment.List, error) {
	doc, err := core.UpdateDoc(ctx, repo.store, userEnrollmentsPath(userID), func(cur core.Doc) (interface{}, error) {
		l := enrollment.List{}
		if cur.Exists() {
			if err := cur.Decode(&l); err != nil {
				return nil, err
			}
		}
		return fn(l)
	})
	if err != nil {
		return nil, err
	}

	l := enrollment.List{}
	if doc.Exists() {
		if err = doc.Decode(&l); err != nil {
			return nil, err
		}
	}
	return l, nil
}

func (repo *enrollmentRepository) ScanEnrollments(ctx context.Context) (map[string]enrollment.List, error) {
	docs, err := repo.store.List(ctx, enrollmentsPath, core.Query{})
	if err != nil {
		return nil, errors.Wrap(err, "listing enrollments")
	}
	all := make(map[string]enrollment.List, len(docs))
	for _, doc := range docs {
		var l enrollment.List
		if err = doc.Decode(&l); err != nil {
			return nil, err
		}
		userID, err := url.PathUnescape(doc.Key)
		if err != nil {
			return nil, errors.Wrap(err, "decoding user ID")
		}
		all[userID] = l
	}
	return all, nil
}

func (repo *enrollmentRepository) GetProgress(ctx context.Context, userID, courseID string) (enrollment.Progress, error) {
	var p enrollment.Progress
	if err := readDoc(ctx, repo.store, userProgressPath(userID, courseID), &p, enrollment.ErrProgressNotFound); err != nil {
		return enrollment.Progress{}, err
	}
	return p, nil
}

func (repo *enrollmentRepository) UpdateProgress(ctx context.Context, userID, courseID string, fn func(p *enrollment.Progress) error) (enrollment.Progress, error) {
	doc, err := core.UpdateDoc(ctx, repo.store, userProgressPath(userID, courseID), func(cur core.Doc) (interface{}, error) {
		var p enrollment.Progress
		if cur.Exists() {
			if err := cur.Decode(&p); err != nil {
				return nil, err
			}
		}
		if err := fn(&p); err != nil {
			return nil, err
		}
		return p, nil
	})
	if err != nil {
		return enrollment.Progress{}, err
	}

	var p enrollment.Progress
	if doc.Exists() {
		if err = doc.Decode(&p); err != nil {
			return enrollment.Progress{}, err
		}
	}
	return p, nil
}
