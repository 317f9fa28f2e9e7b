// Package docrepos implements the domain repositories on top of a core.DocStore.
//
// Layout:
//
//	users/{id}                 user records
//	user_emails/{email}        {"user_id": id}, email uniqueness index
//	courses/{id}, terms/{id}   catalog
//	enrollments/{userID}       enrollment list of a user
//	progress/{userID}/{cid}    progress of a user in a course
//	feeds/{feed}/{messageID}   feed messages
package docrepos

import (
	"context"
	"net/url"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/chuo/core"
	"github.com/trezcool/chuo/core/user"
)

const (
	usersPath      = "users"
	userEmailsPath = "user_emails"
)

type (
	userRepository struct {
		store core.DocStore
	}

	// userDoc is the stored user: the password hash is never rendered in API responses.
	userDoc struct {
		user.User
		PasswordHash []byte `json:"password_hash"`
	}

	emailDoc struct {
		UserID string `json:"user_id"`
	}
)

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(store core.DocStore) user.Repository {
	return &userRepository{store: store}
}

func userPath(id string) string { return core.JoinPath(usersPath, url.PathEscape(id)) }

func emailPath(email string) string {
	return core.JoinPath(userEmailsPath, url.PathEscape(strings.ToLower(email)))
}

func newUserDoc(usr user.User) userDoc {
	return userDoc{User: usr, PasswordHash: usr.PasswordHash}
}

func (d userDoc) toUser() user.User {
	usr := d.User
	usr.PasswordHash = d.PasswordHash
	return usr
}

// reserveEmail claims email for userID. It returns user.ErrEmailExists if another user owns it.
func (repo *userRepository) reserveEmail(ctx context.Context, email, userID string) error {
	_, err := core.UpdateDoc(ctx, repo.store, emailPath(email), func(cur core.Doc) (interface{}, error) {
		if cur.Exists() {
			var owner emailDoc
			if err := cur.Decode(&owner); err != nil {
				return nil, err
			}
			if owner.UserID != userID {
				return nil, user.ErrEmailExists
			}
			return nil, core.ErrNoChange
		}
		return emailDoc{UserID: userID}, nil
	})
	return err
}

func (repo *userRepository) releaseEmail(ctx context.Context, email, userID string) error {
	_, err := core.UpdateDoc(ctx, repo.store, emailPath(email), func(cur core.Doc) (interface{}, error) {
		var owner emailDoc
		if !cur.Exists() {
			return nil, core.ErrNoChange
		}
		if err := cur.Decode(&owner); err != nil {
			return nil, err
		}
		if owner.UserID != userID {
			return nil, core.ErrNoChange
		}
		return nil, nil // delete
	})
	return err
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	usr.ID = core.NewID()
	if err := repo.reserveEmail(ctx, usr.Email, usr.ID); err != nil {
		return user.User{}, err
	}
	if _, err := repo.store.CompareAndSwap(ctx, userPath(usr.ID), 0, newUserDoc(usr)); err != nil {
		_ = repo.releaseEmail(ctx, usr.Email, usr.ID)
		return user.User{}, errors.Wrap(err, "saving user")
	}
	return usr, nil
}

func (repo *userRepository) all(ctx context.Context) ([]user.User, error) {
	docs, err := repo.store.List(ctx, usersPath, core.Query{})
	if err != nil {
		return nil, errors.Wrap(err, "listing users")
	}
	users := make([]user.User, 0, len(docs))
	for _, doc := range docs {
		var ud userDoc
		if err = doc.Decode(&ud); err != nil {
			return nil, err
		}
		users = append(users, ud.toUser())
	}
	return users, nil
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter user.QueryFilter, ordering ...core.Ordering) ([]user.User, error) {
	users, err := repo.all(ctx)
	if err != nil {
		return nil, err
	}

	filtered := make([]user.User, 0, len(users))
	for _, u := range users {
		if matchUser(u, filter) {
			filtered = append(filtered, u)
		}
	}
	sortUsers(filtered, ordering)
	return filtered, nil
}

func matchUser(u user.User, filter user.QueryFilter) bool {
	// search keyword matching any Name or Email ?
	if filter.Search != "" {
		search := strings.ToLower(filter.Search)
		if !strings.Contains(strings.ToLower(u.Name), search) && !strings.Contains(strings.ToLower(u.Email), search) {
			return false
		}
	}
	// any of the specified roles
	if len(filter.Roles) > 0 {
		found := false
		for _, r := range filter.Roles {
			if u.Role == r {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.IsActive != nil && u.IsActive != *filter.IsActive {
		return false
	}
	if !filter.CreatedFrom.IsZero() && u.CreatedAt.Before(filter.CreatedFrom.UTC()) {
		return false
	}
	if !filter.CreatedTo.IsZero() && u.CreatedAt.After(filter.CreatedTo.UTC()) {
		return false
	}
	return true
}

// compareUsers compares a and b on field; unknown fields compare equal.
func compareUsers(a, b user.User, field string) int {
	cmpStr := func(x, y string) int { return strings.Compare(strings.ToLower(x), strings.ToLower(y)) }
	switch field {
	case "name":
		return cmpStr(a.Name, b.Name)
	case "email":
		return cmpStr(a.Email, b.Email)
	case "role":
		return user.RolePriority(a.Role) - user.RolePriority(b.Role)
	case "created_at":
		switch {
		case a.CreatedAt.Before(b.CreatedAt):
			return -1
		case a.CreatedAt.After(b.CreatedAt):
			return 1
		}
	case "last_login":
		switch {
		case a.LastLogin.Time.Before(b.LastLogin.Time):
			return -1
		case a.LastLogin.Time.After(b.LastLogin.Time):
			return 1
		}
	}
	return 0
}

// sortUsers orders users by the requested orderings, then by creation date.
func sortUsers(users []user.User, ordering []core.Ordering) {
	ordering = append(ordering, core.Ordering{Field: "created_at", Ascending: true})
	sort.SliceStable(users, func(i, j int) bool {
		for _, ord := range ordering {
			c := compareUsers(users[i], users[j], ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return users[i].ID < users[j].ID
	})
}

func (repo *userRepository) GetUserByID(ctx context.Context, id string) (user.User, error) {
	var ud userDoc
	if err := readDoc(ctx, repo.store, userPath(id), &ud, user.ErrNotFound); err != nil {
		return user.User{}, err
	}
	return ud.toUser(), nil
}

func (repo *userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	var owner emailDoc
	if err := readDoc(ctx, repo.store, emailPath(email), &owner, user.ErrNotFound); err != nil {
		return user.User{}, err
	}
	return repo.GetUserByID(ctx, owner.UserID)
}

func (repo *userRepository) UpdateUser(ctx context.Context, id string, fn func(usr *user.User) error) (user.User, error) {
	var orig, usr user.User
	reserved := make(map[string]bool)
	_, err := core.UpdateDoc(ctx, repo.store, userPath(id), func(cur core.Doc) (interface{}, error) {
		if !cur.Exists() {
			return nil, user.ErrNotFound
		}
		var ud userDoc
		if err := cur.Decode(&ud); err != nil {
			return nil, err
		}
		orig = ud.toUser()
		usr = orig
		if err := fn(&usr); err != nil {
			if err == core.ErrNoChange {
				usr = orig
			}
			return nil, err
		}
		usr.ID = id

		if !strings.EqualFold(orig.Email, usr.Email) && !reserved[usr.Email] {
			if err := repo.reserveEmail(ctx, usr.Email, id); err != nil {
				return nil, err
			}
			reserved[usr.Email] = true
		}
		return newUserDoc(usr), nil
	})

	// emails claimed by attempts that did not stick
	for email := range reserved {
		if err != nil || email != usr.Email {
			_ = repo.releaseEmail(ctx, email, id)
		}
	}
	if err != nil {
		return user.User{}, err
	}

	if !strings.EqualFold(orig.Email, usr.Email) {
		if err = repo.releaseEmail(ctx, orig.Email, id); err != nil {
			return user.User{}, errors.Wrap(err, "releasing previous email")
		}
	}
	return usr, nil
}

// DeleteUsersByID deletes the users along with their email index, enrollments and progress.
func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids ...string) error {
	for _, id := range ids {
		usr, err := repo.GetUserByID(ctx, id)
		if err != nil {
			if errors.Cause(err) == user.ErrNotFound {
				continue
			}
			return err
		}
		for _, path := range []string{userPath(id), userEnrollmentsPath(id), core.JoinPath(progressPath, url.PathEscape(id))} {
			if err = repo.store.Write(ctx, path, nil); err != nil {
				return errors.Wrapf(err, "deleting %s", path)
			}
		}
		if err = repo.releaseEmail(ctx, usr.Email, id); err != nil {
			return err
		}
	}
	return nil
}
