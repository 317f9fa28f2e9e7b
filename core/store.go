package core

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrDocNotFound = errors.New("document not found")
	ErrConflict    = errors.New("document was modified concurrently")
	ErrNoChange    = errors.New("no change")
	ErrInvalidPath = errors.New("invalid document path")
	ErrNotAnObject = errors.New("document is not an object")

	// MaxUpdateAttempts bounds the optimistic retry loop of UpdateDoc.
	MaxUpdateAttempts = 5
)

type (
	// Doc is a document stored at a hierarchical path, e.g. "users/42".
	Doc struct {
		Path    string          `json:"path"`
		Key     string          `json:"key"`
		Value   json.RawMessage `json:"value"`
		// 0 means absent. Versions of a path only grow, even across a delete and recreate.
		Version int64           `json:"version"`
	}

	// Query orders and limits the children of a path.
	Query struct {
		OrderBy   string // top-level field of the children values; children are ordered by key when empty
		LimitLast int    // keep only the last N children; 0 keeps them all
	}

	EventType string

	// Event is emitted by DocStore.Subscribe. Snapshot events carry the ordered window of
	// children; the other types carry exactly one Doc.
	Event struct {
		Type EventType
		Docs []Doc
	}

	// DocStore is the hierarchical document database backing all persistent state.
	//
	// Writes are atomic per document. Read-modify-write cycles must go through
	// CompareAndSwap (see UpdateDoc): a plain Write is last-writer-wins.
	DocStore interface {
		Read(ctx context.Context, path string) (Doc, error)
		// Write overwrites the document at path; a nil value deletes path and all its descendants.
		Write(ctx context.Context, path string, value interface{}) error
		// Merge shallow-merges fields into the object at path, creating it when absent.
		Merge(ctx context.Context, path string, fields map[string]interface{}) error
		// CompareAndSwap writes value only if the stored version equals version (0: create only).
		// It returns ErrConflict otherwise.
		CompareAndSwap(ctx context.Context, path string, version int64, value interface{}) (Doc, error)
		// Append creates a child of path under a new unique key that sorts after existing ones.
		Append(ctx context.Context, path string, value interface{}) (string, error)
		// List returns the direct children of path.
		List(ctx context.Context, path string, q Query) ([]Doc, error)
		// Subscribe streams changes of the direct children of path, starting with a snapshot.
		// The channel is closed once ctx is done.
		Subscribe(ctx context.Context, path string, q Query) (<-chan Event, error)
		Ping(ctx context.Context) error
		Close() error
	}
)

const (
	EventSnapshot EventType = "snapshot"
	EventAdded    EventType = "added"
	EventChanged  EventType = "changed"
	EventRemoved  EventType = "removed"
)

// Exists reports whether d was found in the store.
func (d Doc) Exists() bool { return d.Version > 0 }

// Decode unmarshals the document value into v.
func (d Doc) Decode(v interface{}) error {
	if len(d.Value) == 0 {
		return ErrDocNotFound
	}
	return errors.Wrapf(json.Unmarshal(d.Value, v), "decoding %s", d.Path)
}

// JoinPath builds a document path from its segments.
func JoinPath(segments ...string) string {
	return strings.Join(segments, "/")
}

// SplitPath validates path and returns its parent path and key.
func SplitPath(path string) (parent, key string, err error) {
	if path == "" || strings.HasPrefix(path, "/") || strings.HasSuffix(path, "/") || strings.Contains(path, "//") {
		return "", "", errors.Wrap(ErrInvalidPath, path)
	}
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return "", path, nil
	}
	return path[:i], path[i+1:], nil
}

// IsDescendant reports whether path is root itself or lives below root.
func IsDescendant(path, root string) bool {
	return path == root || strings.HasPrefix(path, root+"/")
}

// EncodeValue marshals a value given to a DocStore. nil values encode to nil.
func EncodeValue(value interface{}) (json.RawMessage, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if v == nil {
			return nil, nil
		}
		if !json.Valid(v) {
			return nil, errors.New("invalid JSON value")
		}
		return v, nil
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, errors.Wrap(err, "encoding value")
		}
		if string(raw) == "null" {
			return nil, nil
		}
		return raw, nil
	}
}

// UpdateDoc runs an optimistic read-modify-write cycle on path.
//
// fn receives the current document (Version 0 when absent) and returns the new value.
// If fn returns ErrNoChange nothing is written and the current document is returned.
// On a version conflict the cycle restarts, up to MaxUpdateAttempts times.
func UpdateDoc(ctx context.Context, store DocStore, path string, fn func(cur Doc) (interface{}, error)) (Doc, error) {
	for attempt := 0; attempt < MaxUpdateAttempts; attempt++ {
		cur, err := store.Read(ctx, path)
		if err != nil {
			if errors.Cause(err) != ErrDocNotFound {
				return Doc{}, err
			}
			_, key, _ := SplitPath(path)
			cur = Doc{Path: path, Key: key}
		}

		val, err := fn(cur)
		if err != nil {
			if err == ErrNoChange {
				return cur, nil
			}
			return Doc{}, err
		}

		doc, err := store.CompareAndSwap(ctx, path, cur.Version, val)
		if err == nil {
			return doc, nil
		}
		if errors.Cause(err) != ErrConflict {
			return Doc{}, err
		}
	}
	return Doc{}, errors.Wrap(ErrConflict, path)
}

// Ordering is a requested ordering of a listing, e.g. `?ordering=-created_at`.
type Ordering struct {
	Field     string
	Ascending bool
}

func (ord Ordering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}
