// Package feed implements the discussion board and the announcement feeds.
package feed

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/chuo/core"
	"github.com/trezcool/chuo/core/access"
	"github.com/trezcool/chuo/core/user"
)

// Feeds
const (
	Chat          = "chat"
	Announcements = "announcements"
	News          = "news"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200

	ReasonStaffOnly = "STAFF_ONLY"
)

var (
	Feeds = []string{Chat, Announcements, News}

	// errors
	ErrNotFound = core.NewNotFoundError("feed")
)

type (
	Message struct {
		ID         string    `json:"id"`
		Feed       string    `json:"feed"`
		AuthorID   string    `json:"author_id"`
		AuthorName string    `json:"author_name"`
		Text       string    `json:"text"`
		CreatedAt  time.Time `json:"created_at"`
	}

	NewPost struct {
		Text string `json:"text" validate:"required,notblank,max=2000"`
	}

	ChangeType string

	// Change is a change of the watched window of a feed.
	Change struct {
		Type     ChangeType
		Messages []Message
	}

	Repository interface {
		// AppendMessage saves msg under a new time-ordered ID.
		AppendMessage(ctx context.Context, msg Message) (Message, error)
		// RecentMessages returns the last n messages of a feed, oldest first.
		RecentMessages(ctx context.Context, feed string, n int) ([]Message, error)
		// WatchMessages streams the changes of the last n messages of a feed, starting with a snapshot.
		WatchMessages(ctx context.Context, feed string, n int) (<-chan Change, error)
	}

	Service interface {
		Post(ctx context.Context, feed string, author user.User, np NewPost) (Message, error)
		Recent(ctx context.Context, feed string, n int) ([]Message, error)
		Watch(ctx context.Context, feed string, n int) (*Dispatcher, error)
	}

	service struct {
		repo   Repository
		logger core.Logger
	}
)

const (
	ChangeSnapshot ChangeType = "snapshot"
	ChangeAdded    ChangeType = "added"
	ChangeChanged  ChangeType = "changed"
	ChangeRemoved  ChangeType = "removed"
)

func (np *NewPost) Validate(validate *validator.Validate) error {
	np.Text = core.CleanString(np.Text)
	return validate.Struct(np)
}

var _ Service = (*service)(nil)

func NewService(repo Repository, logger core.Logger) Service {
	return &service{repo: repo, logger: logger}
}

func checkFeed(feed string) error {
	for _, f := range Feeds {
		if f == feed {
			return nil
		}
	}
	return ErrNotFound
}

func clampLimit(n int) int {
	if n <= 0 {
		return DefaultLimit
	}
	if n > MaxLimit {
		return MaxLimit
	}
	return n
}

// CanPost reports whether usr may post to feed. Announcements and news are written by the staff.
func CanPost(usr user.User, feed string) bool {
	if feed == Chat {
		return usr.IsActive
	}
	return access.CanAccessAdminConsole(usr)
}

// Post appends a message to a feed. np must have been validated.
func (svc *service) Post(ctx context.Context, feed string, author user.User, np NewPost) (Message, error) {
	if err := checkFeed(feed); err != nil {
		return Message{}, err
	}
	if !CanPost(author, feed) {
		return Message{}, core.NewPermissionError(ReasonStaffOnly)
	}
	msg, err := svc.repo.AppendMessage(ctx, Message{
		Feed:       feed,
		AuthorID:   author.ID,
		AuthorName: author.Name,
		Text:       np.Text,
		CreatedAt:  core.NowFunc(),
	})
	return msg, errors.Wrap(err, "appending message")
}

func (svc *service) Recent(ctx context.Context, feed string, n int) ([]Message, error) {
	if err := checkFeed(feed); err != nil {
		return nil, err
	}
	msgs, err := svc.repo.RecentMessages(ctx, feed, clampLimit(n))
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []Message{}
	}
	return msgs, nil
}

// Watch starts a Dispatcher keeping the last n messages of a feed. It stops once ctx is done.
func (svc *service) Watch(ctx context.Context, feed string, n int) (*Dispatcher, error) {
	if err := checkFeed(feed); err != nil {
		return nil, err
	}
	n = clampLimit(n)
	changes, err := svc.repo.WatchMessages(ctx, feed, n)
	if err != nil {
		return nil, errors.Wrap(err, "watching messages")
	}
	d := newDispatcher(n)
	go d.run(changes)
	return d, nil
}
