package docrepos

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/chuo/core"
	"github.com/trezcool/chuo/core/feed"
)

const feedsPath = "feeds"

type feedRepository struct {
	store  core.DocStore
	logger core.Logger
}

var _ feed.Repository = (*feedRepository)(nil) // interface compliance check

func NewFeedRepository(store core.DocStore, logger core.Logger) feed.Repository {
	return &feedRepository{store: store, logger: logger}
}

func feedPath(name string) string { return core.JoinPath(feedsPath, name) }

func toMessage(doc core.Doc) (feed.Message, error) {
	var msg feed.Message
	if err := doc.Decode(&msg); err != nil {
		return feed.Message{}, err
	}
	msg.ID = doc.Key
	return msg, nil
}

func toMessages(docs []core.Doc) ([]feed.Message, error) {
	msgs := make([]feed.Message, 0, len(docs))
	for _, doc := range docs {
		msg, err := toMessage(doc)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func (repo *feedRepository) AppendMessage(ctx context.Context, msg feed.Message) (feed.Message, error) {
	msg.ID = ""
	key, err := repo.store.Append(ctx, feedPath(msg.Feed), msg)
	if err != nil {
		return feed.Message{}, errors.Wrap(err, "appending message")
	}
	msg.ID = key
	return msg, nil
}

func (repo *feedRepository) RecentMessages(ctx context.Context, name string, n int) ([]feed.Message, error) {
	docs, err := repo.store.List(ctx, feedPath(name), core.Query{LimitLast: n})
	if err != nil {
		return nil, errors.Wrap(err, "listing messages")
	}
	return toMessages(docs)
}

func (repo *feedRepository) WatchMessages(ctx context.Context, name string, n int) (<-chan feed.Change, error) {
	events, err := repo.store.Subscribe(ctx, feedPath(name), core.Query{LimitLast: n})
	if err != nil {
		return nil, errors.Wrap(err, "subscribing to messages")
	}

	changes := make(chan feed.Change)
	go func() {
		defer close(changes)
		for ev := range events {
			msgs, err := toMessages(ev.Docs)
			if err != nil {
				if repo.logger != nil {
					repo.logger.Error("decoding feed messages", err)
				}
				continue
			}
			select {
			case changes <- feed.Change{Type: feed.ChangeType(ev.Type), Messages: msgs}:
			case <-ctx.Done():
				// drain so that the store subscription can stop
				for range events {
				}
				return
			}
		}
	}()
	return changes, nil
}
