package database

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/trezcool/chuo/core"
)

// SortDocs orders docs per q (by key, or by the q.OrderBy field then key) and keeps the last q.LimitLast.
// Field values compare like PostgreSQL jsonb: missing < null < string < number < boolean < array < object.
func SortDocs(docs []core.Doc, q core.Query) []core.Doc {
	if q.OrderBy == "" {
		sort.SliceStable(docs, func(i, j int) bool { return docs[i].Key < docs[j].Key })
	} else {
		fields := make(map[string]json.RawMessage, len(docs))
		for _, d := range docs {
			var obj map[string]json.RawMessage
			if err := json.Unmarshal(d.Value, &obj); err == nil {
				if v, ok := obj[q.OrderBy]; ok {
					fields[d.Key] = v
				}
			}
		}
		sort.SliceStable(docs, func(i, j int) bool {
			if c := compareJSON(fields[docs[i].Key], fields[docs[j].Key]); c != 0 {
				return c < 0
			}
			return docs[i].Key < docs[j].Key
		})
	}

	if q.LimitLast > 0 && len(docs) > q.LimitLast {
		docs = docs[len(docs)-q.LimitLast:]
	}
	return docs
}

func jsonRank(v json.RawMessage) int {
	v = bytes.TrimSpace(v)
	if len(v) == 0 {
		return 0
	}
	switch v[0] {
	case 'n':
		return 1
	case '"':
		return 2
	case 't', 'f':
		return 4
	case '[':
		return 5
	case '{':
		return 6
	default:
		return 3
	}
}

func compareJSON(a, b json.RawMessage) int {
	ra, rb := jsonRank(a), jsonRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}

	switch ra {
	case 2:
		var sa, sb string
		_ = json.Unmarshal(a, &sa)
		_ = json.Unmarshal(b, &sb)
		switch {
		case sa < sb:
			return -1
		case sa > sb:
			return 1
		}
	case 3:
		var fa, fb float64
		_ = json.Unmarshal(a, &fa)
		_ = json.Unmarshal(b, &fb)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
	case 4:
		ba, bb := bytes.TrimSpace(a)[0] == 't', bytes.TrimSpace(b)[0] == 't'
		switch {
		case !ba && bb:
			return -1
		case ba && !bb:
			return 1
		}
	}
	return 0
}
