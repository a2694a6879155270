package mirror

import (
	"encoding/json"
	"strconv"
)

// Query selects the children of a collection, optionally only those whose
// OrderBy field equals EqualTo. Values compare in string form so that 5
// and "5" match alike.
type Query struct {
	Path    string
	OrderBy string
	EqualTo string
	// MemberField, when set, also requires the document's array field of
	// that name to list Member.
	MemberField string
	Member      string
}

// Filtered reports whether q carries an equality filter.
func (q Query) Filtered() bool {
	return q.OrderBy != ""
}

// Scoped reports whether matches depend on membership.
func (q Query) Scoped() bool {
	return q.MemberField != ""
}

// Matches reports whether a document passes the equality filter and, for
// scoped queries, lists Member in MemberField.
func (q Query) Matches(value json.RawMessage) bool {
	if !q.Filtered() && !q.Scoped() {
		return true
	}

	var doc map[string]any
	if err := json.Unmarshal(value, &doc); err != nil {
		return false
	}

	if q.Filtered() {
		field, ok := doc[q.OrderBy]
		if !ok {
			return false
		}
		if s, ok := scalarString(field); !ok || s != q.EqualTo {
			return false
		}
	}

	if q.Scoped() {
		list, _ := doc[q.MemberField].([]any)
		for _, item := range list {
			if s, ok := scalarString(item); ok && s == q.Member {
				return true
			}
		}
		return false
	}

	return true
}

func scalarString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(x), true
	case json.Number:
		return x.String(), true
	default:
		return "", false
	}
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}
