package client

import (
	"context"
	"encoding/json"
	"github.com/ValentinKolb/netlevel/lib/rangeiter"
	"github.com/ValentinKolb/netlevel/rpc/common"
	"github.com/cockroachdb/errors"
)

// DefaultAck is the acknowledgement batch size used for lists that do not
// set one
const DefaultAck = 100

// --------------------------------------------------------------------------
// Key Commands
// --------------------------------------------------------------------------

// Get returns the value of key in the current store. loaded is false if the
// key does not exist.
func (c *Client) Get(ctx context.Context, key string) (value json.RawMessage, loaded bool, err error) {
	resp, err := c.invokeRPCRequest(ctx, &common.Request{Get: common.Raw(key)})
	if err != nil {
		return nil, false, err
	}
	return resp.Value, len(resp.Value) > 0, nil
}

// Put stores value (any JSON value) under key
func (c *Client) Put(ctx context.Context, key string, value json.RawMessage) error {
	if len(value) == 0 {
		value = json.RawMessage("null")
	}
	_, err := c.invokeRPCRequest(ctx, &common.Request{Put: common.Raw(key), Value: value})
	return err
}

// Delete removes key, deleting a missing key is not an error
func (c *Client) Delete(ctx context.Context, key string) error {
	_, err := c.invokeRPCRequest(ctx, &common.Request{Del: common.Raw(key)})
	return err
}

// Clear deletes the keys of the current store within the bounds of q
// (all keys for the empty query)
func (c *Client) Clear(ctx context.Context, q rangeiter.Query) error {
	_, err := c.invokeRPCRequest(ctx, &common.Request{Clear: json.RawMessage("true"), Opt: common.Raw(q)})
	return err
}

// --------------------------------------------------------------------------
// Range Iteration
// --------------------------------------------------------------------------

// List streams the rows matching q to fn and returns a cursor to continue
// the listing with More. Rows are acknowledged automatically, in batches of
// q.Ack (DefaultAck if unset). If fn fails the remaining rows of the call
// are read and dropped, and the error of fn is returned.
func (c *Client) List(ctx context.Context, q rangeiter.Query, fn func(row rangeiter.Row) error) (*rangeiter.Cursor, error) {
	cur := rangeiter.NewCursor(q)
	return cur, c.stream(ctx, cur, q, fn)
}

// More continues the listing of cur after its last row. It returns false
// without a call if the previous page was empty.
func (c *Client) More(ctx context.Context, cur *rangeiter.Cursor, fn func(row rangeiter.Row) error) (bool, error) {
	q, ok := cur.Next()
	if !ok {
		return false, nil
	}
	return true, c.stream(ctx, cur, q, fn)
}

// Keys lists the keys matching q without their values
func (c *Client) Keys(ctx context.Context, q rangeiter.Query, fn func(key string) error) (*rangeiter.Cursor, error) {
	off := false
	q.Values = &off
	return c.List(ctx, q, func(row rangeiter.Row) error {
		return fn(row.Key)
	})
}

// Cull deletes the keys matching q and reports each deleted key to fn
func (c *Client) Cull(ctx context.Context, q rangeiter.Query, fn func(key string) error) (*rangeiter.Cursor, error) {
	q.Del = true
	return c.Keys(ctx, q, fn)
}

// stream runs one list call for q and feeds the rows to fn and cur
func (c *Client) stream(ctx context.Context, cur *rangeiter.Cursor, q rangeiter.Query, fn func(row rangeiter.Row) error) error {
	if q.Ack <= 0 {
		q.Ack = DefaultAck
	}

	conn, err := c.connection(ctx)
	if err != nil {
		return err
	}

	req := &common.Request{List: json.RawMessage("true"), Opt: common.Raw(q)}
	key, p := c.register(conn, req, int(q.Ack))
	defer c.unregister(key, p)
	if err := c.write(conn, req); err != nil {
		return err
	}

	var fnErr error
	var unacked int64
	for {
		resp, err := c.await(ctx, p)
		if err != nil {
			return err
		}
		if !resp.Continue {
			return fnErr
		}

		if fnErr == nil {
			var row rangeiter.Row
			if err := json.Unmarshal(resp.List, &row); err != nil {
				fnErr = errors.Wrap(err, "failed to decode row")
			} else {
				cur.Observe(row.Key)
				fnErr = fn(row)
			}
		}

		if unacked++; unacked >= q.Ack {
			ack := &common.Request{Call: req.Call, Ack: common.Raw(unacked)}
			if err := c.write(conn, ack); err != nil {
				return err
			}
			unacked = 0
		}
	}
}
