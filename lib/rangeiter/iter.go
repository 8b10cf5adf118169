package rangeiter

import (
	"context"
	"encoding/json"
	"github.com/ValentinKolb/netlevel/lib/store"
	"github.com/cockroachdb/errors"
	"strings"
)

// Row is one streamed key/value pair. Value is omitted for key-only lists.
type Row struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value,omitempty"`
}

// Options are the server side limits of one iteration
type Options struct {
	// Cap is the permission row cap (math.MaxInt64 for unlimited)
	Cap int64
	// Flow applies backpressure, nil disables it
	Flow *FlowControl
}

// Result summarizes a finished iteration
type Result struct {
	Rows    int64  // rows emitted
	Deleted int    // rows deleted (del option)
	LastKey string // key of the last emitted row
}

// Run streams the rows matching q from s to emit, in key order (reverse
// key order if requested). It stops after the effective limit, at the end
// of the range, at the first key not matching the prefix, when emit fails
// or when ctx is done.
//
// With the del option every emitted row is added to a batch that is
// committed when Run returns, also if the iteration failed. Rows emitted
// before a failure are therefore deleted.
func Run(ctx context.Context, s store.IStore, q Query, opts Options, emit func(row Row) error) (res Result, err error) {
	limit := q.EffectiveLimit(opts.Cap)
	if limit <= 0 {
		return res, nil
	}

	it, err := s.NewIterator(q.KeyRange(), q.Reverse)
	if err != nil {
		return res, err
	}
	defer it.Close()

	if q.Del {
		batch := s.NewBatch()
		defer func() {
			if batch.Count() > 0 {
				if cerr := batch.Commit(); cerr != nil {
					err = errors.CombineErrors(err, errors.Wrap(cerr, "failed to delete listed rows"))
					res.Deleted = 0
				}
			}
			_ = batch.Close()
		}()
		emit = deleting(batch, &res, emit)
	}

	pre := q.Prefix()
	values := q.WantValues()
	stride := q.Skip
	if stride < 1 {
		stride = 1
	}

	var seen int64
	for res.Rows < limit && it.Next() {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		key := string(it.Key())
		if pre != "" && !strings.HasPrefix(key, pre) {
			break
		}
		seen++
		if (seen-1)%stride != 0 {
			continue
		}

		row := Row{Key: key}
		if values {
			v, err := it.Value()
			if err != nil {
				return res, err
			}
			row.Value = JSONValue(v)
		}

		if opts.Flow != nil {
			if err := opts.Flow.Acquire(ctx); err != nil {
				return res, err
			}
		}
		if err := emit(row); err != nil {
			return res, err
		}
		res.Rows++
		res.LastKey = key
	}
	return res, it.Error()
}

// deleting wraps emit so every emitted row is also deleted
func deleting(batch store.Batch, res *Result, emit func(row Row) error) func(row Row) error {
	return func(row Row) error {
		if err := emit(row); err != nil {
			return err
		}
		if err := batch.Delete(row.Key); err != nil {
			return err
		}
		res.Deleted++
		return nil
	}
}

// JSONValue returns a stored value as JSON. Values are stored as the JSON
// text clients put, anything else is returned as a JSON string.
func JSONValue(v []byte) json.RawMessage {
	if json.Valid(v) {
		return append(json.RawMessage(nil), v...)
	}
	b, _ := json.Marshal(string(v))
	return b
}
