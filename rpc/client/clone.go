package client

import (
	"context"
	"github.com/ValentinKolb/netlevel/lib/rangeiter"
	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"
	"sync"
	"sync/atomic"
)

// DefaultClonePuts is the number of puts Clone keeps in flight
const DefaultClonePuts = 16

// CloneOptions control how Clone copies rows
type CloneOptions struct {
	// Series continues after the last key of the destination store, so an
	// append-only series can be synchronized repeatedly.
	Series bool
	// Overlap copies the last destination key again in series mode (for a
	// last row that is still updated at the source)
	Overlap bool
	// Puts is the number of puts in flight (DefaultClonePuts if unset)
	Puts int
	// Progress is called after every copied key. Calls are serialized.
	Progress func(key string)
}

// Clone copies the rows of the current store of src that match q into the
// current store of dst. Rows without a value are skipped. Unless q has a
// limit the listing is continued page by page until the range is exhausted.
// It returns the number of copied rows.
func Clone(ctx context.Context, src, dst *Client, q rangeiter.Query, opts CloneOptions) (int64, error) {
	q.Values, q.Del = nil, false

	if opts.Series {
		from, ok, err := lastKey(ctx, dst)
		if err != nil {
			return 0, errors.Wrap(err, "failed to read the last key of the destination")
		}
		if ok {
			Logger.Infof("Continuing series after %s", from)
			if opts.Overlap {
				q.GT, q.GTE = nil, &from
			} else {
				q.GT, q.GTE = &from, nil
			}
		}
	}

	puts := opts.Puts
	if puts <= 0 {
		puts = DefaultClonePuts
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(puts)

	var copied atomic.Int64
	var progress sync.Mutex
	var rows int64
	copyRow := func(row rangeiter.Row) error {
		rows++
		if len(row.Value) == 0 {
			return nil
		}
		if err := gctx.Err(); err != nil {
			return err
		}
		g.Go(func() error {
			if err := dst.Put(gctx, row.Key, row.Value); err != nil {
				return errors.Wrapf(err, "failed to put %s", row.Key)
			}
			copied.Add(1)
			if opts.Progress != nil {
				progress.Lock()
				opts.Progress(row.Key)
				progress.Unlock()
			}
			return nil
		})
		return nil
	}

	cur, err := src.List(gctx, q, copyRow)
	for err == nil && q.Limit <= 0 {
		before := rows
		var more bool
		if more, err = src.More(gctx, cur, copyRow); !more || rows == before {
			break
		}
	}

	// a failed put is the cause of a cancelled listing
	if putErr := g.Wait(); putErr != nil {
		return copied.Load(), putErr
	}
	return copied.Load(), err
}

// lastKey returns the greatest key of the current store of c
func lastKey(ctx context.Context, c *Client) (key string, ok bool, err error) {
	_, err = c.Keys(ctx, rangeiter.Query{Reverse: true, Limit: 1}, func(k string) error {
		key, ok = k, true
		return nil
	})
	return key, ok, err
}
