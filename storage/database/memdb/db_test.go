package memdb

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/chuo/core"
)

type counter struct {
	N int `json:"n"`
}

func nextEvent(t *testing.T, events <-chan core.Event) core.Event {
	t.Helper()
	select {
	case ev, ok := <-events:
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return core.Event{}
	}
}

func keys(docs []core.Doc) []string {
	res := make([]string, 0, len(docs))
	for _, d := range docs {
		res = append(res, d.Key)
	}
	return res
}

func TestDB_ReadWrite(t *testing.T) {
	ctx := context.Background()
	db := Open(nil)
	defer func() { _ = db.Close() }()

	_, err := db.Read(ctx, "counters/a")
	assert.Equal(t, core.ErrDocNotFound, errors.Cause(err))

	require.NoError(t, db.Write(ctx, "counters/a", counter{N: 1}))
	require.NoError(t, db.Write(ctx, "counters/a", counter{N: 2}))

	doc, err := db.Read(ctx, "counters/a")
	require.NoError(t, err)
	assert.Equal(t, "a", doc.Key)
	assert.Equal(t, int64(2), doc.Version)

	var c counter
	require.NoError(t, doc.Decode(&c))
	assert.Equal(t, 2, c.N)

	// nil deletes the whole subtree
	require.NoError(t, db.Write(ctx, "progress/u1/c1", counter{N: 1}))
	require.NoError(t, db.Write(ctx, "progress/u1/c2", counter{N: 1}))
	require.NoError(t, db.Write(ctx, "progress/u10/c1", counter{N: 1}))
	require.NoError(t, db.Write(ctx, "progress/u1", nil))

	docs, err := db.List(ctx, "progress/u1", core.Query{})
	require.NoError(t, err)
	assert.Empty(t, docs)
	_, err = db.Read(ctx, "progress/u10/c1")
	assert.NoError(t, err)
}

func TestDB_invalidPaths(t *testing.T) {
	ctx := context.Background()
	db := Open(nil)

	for _, path := range []string{"", "/users", "users/", "users//1"} {
		t.Run(path, func(t *testing.T) {
			_, err := db.Read(ctx, path)
			assert.Equal(t, core.ErrInvalidPath, errors.Cause(err))
			assert.Equal(t, core.ErrInvalidPath, errors.Cause(db.Write(ctx, path, counter{})))
		})
	}
}

func TestDB_Merge(t *testing.T) {
	ctx := context.Background()
	db := Open(nil)

	require.NoError(t, db.Merge(ctx, "users/1", map[string]interface{}{"name": "Jane", "n": 1}))
	require.NoError(t, db.Merge(ctx, "users/1", map[string]interface{}{"n": 2}))

	doc, err := db.Read(ctx, "users/1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name": "Jane", "n": 2}`, string(doc.Value))

	require.NoError(t, db.Write(ctx, "lists/1", []string{"a"}))
	err = db.Merge(ctx, "lists/1", map[string]interface{}{"n": 2})
	assert.Equal(t, core.ErrNotAnObject, errors.Cause(err))
}

func TestDB_CompareAndSwap(t *testing.T) {
	ctx := context.Background()
	db := Open(nil)

	doc, err := db.CompareAndSwap(ctx, "counters/a", 0, counter{N: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(1), doc.Version)

	// create-only
	_, err = db.CompareAndSwap(ctx, "counters/a", 0, counter{N: 1})
	assert.Equal(t, core.ErrConflict, errors.Cause(err))

	// stale version
	_, err = db.CompareAndSwap(ctx, "counters/a", 2, counter{N: 3})
	assert.Equal(t, core.ErrConflict, errors.Cause(err))

	doc, err = db.CompareAndSwap(ctx, "counters/a", 1, counter{N: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(2), doc.Version)
}

func TestDB_CompareAndSwap_recreated(t *testing.T) {
	tests := []struct {
		name   string
		delete func(ctx context.Context, db *DB) error
	}{
		{
			name:   "write nil",
			delete: func(ctx context.Context, db *DB) error { return db.Write(ctx, "counters/a", nil) },
		},
		{
			name: "swap nil",
			delete: func(ctx context.Context, db *DB) error {
				_, err := db.CompareAndSwap(ctx, "counters/a", 1, nil)
				return err
			},
		},
		{
			name:   "parent deleted",
			delete: func(ctx context.Context, db *DB) error { return db.Write(ctx, "counters", nil) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			db := Open(nil)

			require.NoError(t, db.Write(ctx, "counters/a", counter{N: 1}))
			stale, err := db.Read(ctx, "counters/a")
			require.NoError(t, err)
			require.Equal(t, int64(1), stale.Version)

			require.NoError(t, tt.delete(ctx, db))
			require.NoError(t, db.Write(ctx, "counters/a", counter{N: 7}))

			doc, err := db.Read(ctx, "counters/a")
			require.NoError(t, err)
			assert.Equal(t, int64(2), doc.Version)

			// a reader holding the pre-delete version must not overwrite the new document
			_, err = db.CompareAndSwap(ctx, "counters/a", stale.Version, counter{N: 2})
			assert.Equal(t, core.ErrConflict, errors.Cause(err))

			doc, err = db.CompareAndSwap(ctx, "counters/a", doc.Version, counter{N: 8})
			require.NoError(t, err)
			assert.Equal(t, int64(3), doc.Version)
		})
	}
}

func TestUpdateDoc_concurrentIncrements(t *testing.T) {
	ctx := context.Background()
	db := Open(nil)

	increment := func(cur core.Doc) (interface{}, error) {
		var c counter
		if cur.Exists() {
			if err := cur.Decode(&c); err != nil {
				return nil, err
			}
		}
		c.N++
		return c, nil
	}

	// a few goroutines so that the bounded retry loop always converges
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := core.UpdateDoc(ctx, db, "counters/a", increment)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	doc, err := db.Read(ctx, "counters/a")
	require.NoError(t, err)
	var c counter
	require.NoError(t, doc.Decode(&c))
	assert.Equal(t, 4, c.N)
}

func TestUpdateDoc_noChange(t *testing.T) {
	ctx := context.Background()
	db := Open(nil)
	require.NoError(t, db.Write(ctx, "counters/a", counter{N: 1}))

	doc, err := core.UpdateDoc(ctx, db, "counters/a", func(cur core.Doc) (interface{}, error) {
		return nil, core.ErrNoChange
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), doc.Version)
}

func TestDB_AppendList(t *testing.T) {
	ctx := context.Background()
	db := Open(nil)

	var appended []string
	for i := 1; i <= 4; i++ {
		key, err := db.Append(ctx, "feeds/chat", counter{N: 5 - i})
		require.NoError(t, err)
		appended = append(appended, key)
	}

	tests := []struct {
		name     string
		query    core.Query
		wantKeys []string
	}{
		{name: "by key", query: core.Query{}, wantKeys: appended},
		{name: "last 2", query: core.Query{LimitLast: 2}, wantKeys: appended[2:]},
		{
			name:     "by field",
			query:    core.Query{OrderBy: "n"},
			wantKeys: []string{appended[3], appended[2], appended[1], appended[0]},
		},
		{
			name:     "by field, last 1",
			query:    core.Query{OrderBy: "n", LimitLast: 1},
			wantKeys: []string{appended[0]},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := db.List(ctx, "feeds/chat", tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.wantKeys, keys(docs))
		})
	}
}

func TestDB_Subscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	db := Open(nil)

	first, err := db.Append(ctx, "feeds/chat", counter{N: 1})
	require.NoError(t, err)

	events, err := db.Subscribe(ctx, "feeds/chat", core.Query{LimitLast: 2})
	require.NoError(t, err)

	ev := nextEvent(t, events)
	assert.Equal(t, core.EventSnapshot, ev.Type)
	assert.Equal(t, []string{first}, keys(ev.Docs))

	second, err := db.Append(ctx, "feeds/chat", counter{N: 2})
	require.NoError(t, err)
	ev = nextEvent(t, events)
	assert.Equal(t, core.EventAdded, ev.Type)
	assert.Equal(t, []string{second}, keys(ev.Docs))

	require.NoError(t, db.Write(ctx, core.JoinPath("feeds/chat", first), counter{N: 10}))
	ev = nextEvent(t, events)
	assert.Equal(t, core.EventChanged, ev.Type)
	assert.Equal(t, []string{first}, keys(ev.Docs))

	// writes elsewhere are not streamed
	require.NoError(t, db.Write(ctx, "feeds/news/1", counter{N: 1}))

	require.NoError(t, db.Write(ctx, core.JoinPath("feeds/chat", second), nil))
	ev = nextEvent(t, events)
	assert.Equal(t, core.EventRemoved, ev.Type)
	assert.Equal(t, []string{second}, keys(ev.Docs))

	cancel()
	select {
	case _, ok := <-events:
		for ok {
			_, ok = <-events
		}
	case <-time.After(time.Second):
		t.Fatal("subscription not closed")
	}
}
