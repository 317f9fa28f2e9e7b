// Package memdb is an in-memory core.DocStore used in development and tests.
package memdb

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/chuo/core"
	"github.com/trezcool/chuo/storage/database"
	"github.com/trezcool/chuo/storage/database/notify"
)

type (
	DB struct {
		sync.RWMutex
		table map[string]*entry
		// last version of every deleted path, so a recreated document
		// never reuses a version a stale reader may still hold
		tombstones map[string]int64
		hub        *notify.Hub
	}

	entry struct {
		value   json.RawMessage
		version int64
	}
)

var _ core.DocStore = (*DB)(nil) // interface compliance check

func Open(logger core.Logger) *DB {
	return &DB{
		table:      make(map[string]*entry),
		tombstones: make(map[string]int64),
		hub:        notify.NewHub(logger),
	}
}

func (db *DB) doc(path string, e *entry) core.Doc {
	_, key, _ := core.SplitPath(path)
	val := make(json.RawMessage, len(e.value))
	copy(val, e.value)
	return core.Doc{Path: path, Key: key, Value: val, Version: e.version}
}

func (db *DB) Read(ctx context.Context, path string) (core.Doc, error) {
	if _, _, err := core.SplitPath(path); err != nil {
		return core.Doc{}, err
	}

	db.RLock()
	defer db.RUnlock()
	e, ok := db.table[path]
	if !ok {
		return core.Doc{}, errors.Wrap(core.ErrDocNotFound, path)
	}
	return db.doc(path, e), nil
}

// put saves val at path, deleting the subtree when val is nil. db must be locked.
func (db *DB) put(path string, val json.RawMessage) core.Doc {
	if val == nil {
		for p := range db.table {
			if core.IsDescendant(p, path) {
				db.tombstones[p] = db.table[p].version
				delete(db.table, p)
			}
		}
		return core.Doc{}
	}

	e, ok := db.table[path]
	if !ok {
		e = &entry{version: db.tombstones[path]}
		db.table[path] = e
		delete(db.tombstones, path)
	}
	e.value = val
	e.version++
	return db.doc(path, e)
}

func (db *DB) Write(ctx context.Context, path string, value interface{}) error {
	if _, _, err := core.SplitPath(path); err != nil {
		return err
	}
	val, err := core.EncodeValue(value)
	if err != nil {
		return err
	}

	db.Lock()
	db.put(path, val)
	db.Unlock()

	db.hub.Publish(path)
	return nil
}

func (db *DB) Merge(ctx context.Context, path string, fields map[string]interface{}) error {
	if _, _, err := core.SplitPath(path); err != nil {
		return err
	}

	db.Lock()
	obj := make(map[string]json.RawMessage)
	if e, ok := db.table[path]; ok {
		if err := json.Unmarshal(e.value, &obj); err != nil || obj == nil {
			db.Unlock()
			return errors.Wrap(core.ErrNotAnObject, path)
		}
	}
	for k, v := range fields {
		raw, err := json.Marshal(v)
		if err != nil {
			db.Unlock()
			return errors.Wrapf(err, "encoding field %s", k)
		}
		obj[k] = raw
	}
	val, _ := json.Marshal(obj)
	db.put(path, val)
	db.Unlock()

	db.hub.Publish(path)
	return nil
}

func (db *DB) CompareAndSwap(ctx context.Context, path string, version int64, value interface{}) (core.Doc, error) {
	if _, _, err := core.SplitPath(path); err != nil {
		return core.Doc{}, err
	}
	val, err := core.EncodeValue(value)
	if err != nil {
		return core.Doc{}, err
	}

	db.Lock()
	var current int64
	if e, ok := db.table[path]; ok {
		current = e.version
	}
	if current != version {
		db.Unlock()
		return core.Doc{}, errors.Wrap(core.ErrConflict, path)
	}
	doc := db.put(path, val)
	db.Unlock()

	db.hub.Publish(path)
	return doc, nil
}

func (db *DB) Append(ctx context.Context, path string, value interface{}) (string, error) {
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
	db.Lock()
	db.put(childPath, val)
	db.Unlock()

	db.hub.Publish(childPath)
	return key, nil
}

func (db *DB) List(ctx context.Context, path string, q core.Query) ([]core.Doc, error) {
	if _, _, err := core.SplitPath(path); err != nil {
		return nil, err
	}

	db.RLock()
	docs := make([]core.Doc, 0)
	for p, e := range db.table {
		if parent, _, _ := core.SplitPath(p); parent == path {
			docs = append(docs, db.doc(p, e))
		}
	}
	db.RUnlock()

	return database.SortDocs(docs, q), nil
}

func (db *DB) Subscribe(ctx context.Context, path string, q core.Query) (<-chan core.Event, error) {
	if _, _, err := core.SplitPath(path); err != nil {
		return nil, err
	}
	return db.hub.Subscribe(ctx, path, q, db.List)
}

func (db *DB) Ping(ctx context.Context) error {
	return nil
}

func (db *DB) Close() error {
	db.hub.Close()
	return nil
}
