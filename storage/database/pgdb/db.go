// Package pgdb is the PostgreSQL core.DocStore: one row per document in the `documents` table,
// with LISTEN/NOTIFY driving the subscriptions.
package pgdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/chuo/core"
	"github.com/trezcool/chuo/storage/database"
	"github.com/trezcool/chuo/storage/database/notify"
)

const notifyChannel = "documents"

type (
	DB struct {
		db       *sqlx.DB
		listener *pq.Listener
		hub      *notify.Hub
		logger   core.Logger
		done     chan struct{}
	}

	row struct {
		Path    string `db:"path"`
		Key     string `db:"key"`
		Value   []byte `db:"value"`
		Version int64  `db:"version"`
	}
)

var _ core.DocStore = (*DB)(nil) // interface compliance check

// Open connects to the database and starts listening to document changes.
func Open(ctx context.Context, conf *core.Config, logger core.Logger) (*DB, error) {
	db, err := database.Open(ctx, conf)
	if err != nil {
		return nil, err
	}

	store := &DB{db: db, hub: notify.NewHub(logger), logger: logger, done: make(chan struct{})}
	store.listener = pq.NewListener(
		database.DSN(conf.Database.Name, false, conf),
		100*time.Millisecond,
		time.Minute,
		store.onListenerEvent,
	)
	if err = store.listener.Listen(notifyChannel); err != nil {
		_ = store.listener.Close()
		_ = db.Close()
		return nil, errors.Wrap(err, "listening to document changes")
	}
	go store.dispatch()
	return store, nil
}

// DB returns the underlying connection pool, e.g. to run migrations.
func (store *DB) DB() *sqlx.DB { return store.db }

func (store *DB) onListenerEvent(ev pq.ListenerEventType, err error) {
	if err != nil && store.logger != nil {
		store.logger.Warn("document listener", err, map[string]interface{}{"event": ev})
	}
}

func (store *DB) dispatch() {
	for {
		select {
		case <-store.done:
			return
		case n, ok := <-store.listener.Notify:
			if !ok {
				return
			}
			if n == nil {
				// reconnected: notifications may have been missed
				store.hub.Resync()
				continue
			}
			store.hub.Publish(n.Extra)
		}
	}
}

func (store *DB) notify(ctx context.Context, path string) {
	if _, err := store.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", notifyChannel, path); err != nil && store.logger != nil {
		store.logger.Warn("notifying change of "+path, err)
	}
}

func toDoc(r row) core.Doc {
	return core.Doc{Path: r.Path, Key: r.Key, Value: json.RawMessage(r.Value), Version: r.Version}
}

// escapeLike escapes the LIKE wildcards of s.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (store *DB) Read(ctx context.Context, path string) (core.Doc, error) {
	if _, _, err := core.SplitPath(path); err != nil {
		return core.Doc{}, err
	}

	var r row
	err := store.db.GetContext(ctx, &r, "SELECT path, key, value, version FROM documents WHERE path = $1", path)
	if err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return core.Doc{}, errors.Wrap(core.ErrDocNotFound, path)
		}
		return core.Doc{}, core.NewRemoteError("reading "+path, err)
	}
	return toDoc(r), nil
}

const upsertQuery = `
INSERT INTO documents (path, parent, key, value) VALUES ($1, $2, $3, $4)
ON CONFLICT (path) DO UPDATE SET value = EXCLUDED.value, version = nextval('document_versions'), updated_at = now()`

func (store *DB) Write(ctx context.Context, path string, value interface{}) error {
	parent, key, err := core.SplitPath(path)
	if err != nil {
		return err
	}
	val, err := core.EncodeValue(value)
	if err != nil {
		return err
	}

	if val == nil {
		_, err = store.db.ExecContext(ctx,
			`DELETE FROM documents WHERE path = $1 OR path LIKE $2`, path, escapeLike(path)+"/%")
	} else {
		_, err = store.db.ExecContext(ctx, upsertQuery, path, parent, key, string(val))
	}
	if err != nil {
		return core.NewRemoteError("writing "+path, err)
	}
	store.notify(ctx, path)
	return nil
}

const mergeQuery = `
INSERT INTO documents (path, parent, key, value) VALUES ($1, $2, $3, $4)
ON CONFLICT (path) DO UPDATE SET value = documents.value || EXCLUDED.value, version = nextval('document_versions'), updated_at = now()
WHERE jsonb_typeof(documents.value) = 'object'`

func (store *DB) Merge(ctx context.Context, path string, fields map[string]interface{}) error {
	parent, key, err := core.SplitPath(path)
	if err != nil {
		return err
	}
	val, err := json.Marshal(fields)
	if err != nil {
		return errors.Wrap(err, "encoding fields")
	}

	res, err := store.db.ExecContext(ctx, mergeQuery, path, parent, key, string(val))
	if err != nil {
		return core.NewRemoteError("merging "+path, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Wrap(core.ErrNotAnObject, path)
	}
	store.notify(ctx, path)
	return nil
}

func (store *DB) CompareAndSwap(ctx context.Context, path string, version int64, value interface{}) (core.Doc, error) {
	parent, key, err := core.SplitPath(path)
	if err != nil {
		return core.Doc{}, err
	}
	val, err := core.EncodeValue(value)
	if err != nil {
		return core.Doc{}, err
	}

	var r row
	switch {
	case val == nil:
		err = store.casDelete(ctx, path, version)
	case version == 0:
		err = store.db.GetContext(ctx, &r, `
			INSERT INTO documents (path, parent, key, value) VALUES ($1, $2, $3, $4)
			ON CONFLICT (path) DO NOTHING
			RETURNING path, key, value, version`, path, parent, key, string(val))
	default:
		err = store.db.GetContext(ctx, &r, `
			UPDATE documents SET value = $2, version = nextval('document_versions'), updated_at = now()
			WHERE path = $1 AND version = $3
			RETURNING path, key, value, version`, path, string(val), version)
	}
	if err != nil {
		if cause := errors.Cause(err); cause == sql.ErrNoRows || cause == core.ErrConflict {
			return core.Doc{}, errors.Wrap(core.ErrConflict, path)
		}
		return core.Doc{}, core.NewRemoteError("swapping "+path, err)
	}

	store.notify(ctx, path)
	if val == nil {
		return core.Doc{}, nil
	}
	return toDoc(r), nil
}

// casDelete deletes the subtree at path if the document is at version.
func (store *DB) casDelete(ctx context.Context, path string, version int64) error {
	tx, err := store.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var current int64
	err = tx.GetContext(ctx, &current, "SELECT version FROM documents WHERE path = $1 FOR UPDATE", path)
	if err != nil && errors.Cause(err) != sql.ErrNoRows {
		return err
	}
	if current != version {
		return core.ErrConflict
	}
	if _, err = tx.ExecContext(ctx,
		`DELETE FROM documents WHERE path = $1 OR path LIKE $2`, path, escapeLike(path)+"/%"); err != nil {
		return err
	}
	return tx.Commit()
}

func (store *DB) Append(ctx context.Context, path string, value interface{}) (string, error) {
	if _, _, err := core.SplitPath(path); err != nil {
		return "", err
	}
	val, err := core.EncodeValue(value)
	if err != nil {
		return "", err
	}
	if val == nil {
		return "", errors.New("cannot append a null value")
	}
	key, err := core.NewOrderedID()
	if err != nil {
		return "", errors.Wrap(err, "generating key")
	}

	childPath := core.JoinPath(path, key)
	if _, err = store.db.ExecContext(ctx,
		"INSERT INTO documents (path, parent, key, value) VALUES ($1, $2, $3, $4)",
		childPath, path, key, string(val)); err != nil {
		return "", core.NewRemoteError("appending to "+path, err)
	}
	store.notify(ctx, childPath)
	return key, nil
}

func (store *DB) List(ctx context.Context, path string, q core.Query) ([]core.Doc, error) {
	if _, _, err := core.SplitPath(path); err != nil {
		return nil, err
	}

	var (
		rows []row
		err  error
	)
	if q.OrderBy == "" && q.LimitLast > 0 {
		err = store.db.SelectContext(ctx, &rows, `
			SELECT path, key, value, version FROM (
				SELECT path, key, value, version FROM documents WHERE parent = $1 ORDER BY key DESC LIMIT $2
			) last ORDER BY key`, path, q.LimitLast)
	} else {
		err = store.db.SelectContext(ctx, &rows,
			"SELECT path, key, value, version FROM documents WHERE parent = $1 ORDER BY key", path)
	}
	if err != nil {
		return nil, core.NewRemoteError("listing "+path, err)
	}

	docs := make([]core.Doc, 0, len(rows))
	for _, r := range rows {
		docs = append(docs, toDoc(r))
	}
	return database.SortDocs(docs, q), nil
}

func (store *DB) Subscribe(ctx context.Context, path string, q core.Query) (<-chan core.Event, error) {
	if _, _, err := core.SplitPath(path); err != nil {
		return nil, err
	}
	return store.hub.Subscribe(ctx, path, q, store.List)
}

func (store *DB) Ping(ctx context.Context) error {
	return core.NewRemoteError("pinging database", store.db.PingContext(ctx))
}

func (store *DB) Close() error {
	close(store.done)
	store.hub.Close()
	if err := store.listener.Close(); err != nil {
		_ = store.db.Close()
		return errors.Wrap(err, "closing listener")
	}
	return store.db.Close()
}
