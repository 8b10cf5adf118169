package rangeiter

import (
	"bytes"
	"encoding/json"
	"github.com/ValentinKolb/netlevel/lib/store"
	"github.com/cockroachdb/errors"
)

// ErrInvalidQuery is returned for list options that cannot be parsed
var ErrInvalidQuery = errors.New("invalid list options")

// Query is the options object of a list (or clear) call
type Query struct {
	GT  *string `json:"gt,omitempty"`
	GTE *string `json:"gte,omitempty"`
	LT  *string `json:"lt,omitempty"`
	LTE *string `json:"lte,omitempty"`
	Pre *string `json:"pre,omitempty"`

	Reverse bool  `json:"reverse,omitempty"`
	Limit   int64 `json:"limit,omitempty"`
	Values  *bool `json:"values,omitempty"`
	Del     bool  `json:"del,omitempty"`
	Skip    int64 `json:"skip,omitempty"`
	Ack     int64 `json:"ack,omitempty"`
}

// ParseQuery decodes list options. Absent or null options are the empty
// query, which covers the whole store.
func ParseQuery(raw json.RawMessage) (Query, error) {
	var q Query
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" || string(raw) == "true" {
		return q, nil
	}
	if err := json.Unmarshal(raw, &q); err != nil {
		return Query{}, errors.Wrapf(ErrInvalidQuery, "%v", err)
	}
	return q, nil
}

// WantValues reports whether rows carry values (the default)
func (q Query) WantValues() bool {
	return q.Values == nil || *q.Values
}

// Prefix returns the prefix filter, empty for none
func (q Query) Prefix() string {
	if q.Pre == nil {
		return ""
	}
	return *q.Pre
}

// EffectiveLimit returns the number of rows the query may return given the
// permission cap. The cap wins when the client asks for more or for no
// limit at all.
func (q Query) EffectiveLimit(cap int64) int64 {
	if cap <= 0 {
		return 0
	}
	if q.Limit > 0 && q.Limit < cap {
		return q.Limit
	}
	return cap
}

// KeyRange combines the bounds and the prefix into one range. Where two
// bounds apply to the same side the tighter one is used.
func (q Query) KeyRange() store.KeyRange {
	var r store.KeyRange

	if q.GTE != nil {
		r = tighterLower(r, *q.GTE, false)
	}
	if q.GT != nil {
		r = tighterLower(r, *q.GT, true)
	}
	if q.LTE != nil {
		r = tighterUpper(r, *q.LTE, true)
	}
	if q.LT != nil {
		r = tighterUpper(r, *q.LT, false)
	}

	if pre := q.Prefix(); pre != "" {
		r = tighterLower(r, pre, false)
		if end, ok := prefixEnd(pre); ok {
			r = tighterUpper(r, end, false)
		}
	}
	return r
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func tighterLower(r store.KeyRange, key string, exclusive bool) store.KeyRange {
	if !r.HasLower || key > r.Lower || (key == r.Lower && exclusive) {
		return r.WithLower(key, exclusive)
	}
	return r
}

func tighterUpper(r store.KeyRange, key string, inclusive bool) store.KeyRange {
	if !r.HasUpper || key < r.Upper || (key == r.Upper && !inclusive) {
		return r.WithUpper(key, inclusive)
	}
	return r
}

// prefixEnd returns the smallest key greater than every key with the
// prefix. There is none if the prefix consists of 0xff bytes only.
func prefixEnd(prefix string) (string, bool) {
	end := []byte(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return string(end[:i+1]), true
		}
	}
	return "", false
}

func strPtr(s string) *string {
	return &s
}
