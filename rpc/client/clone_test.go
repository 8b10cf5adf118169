package client

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/ValentinKolb/netlevel/lib/rangeiter"
	"github.com/ValentinKolb/netlevel/rpc/common"
	"github.com/ValentinKolb/netlevel/rpc/serializer"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"testing"
)

// openPeer opens a second client on the server of pt, authenticated as admin
func openPeer(t *testing.T, pt *pipeTransport) *Client {
	t.Helper()
	c, err := Open(common.ClientConfig{Endpoint: "pipe", TimeoutSecond: 5, RetryCount: 3}, pt, serializer.NewJSONSerializer())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.Auth(context.Background(), "admin", "secret"))
	return c
}

func keysOf(t *testing.T, c *Client) map[string]string {
	t.Helper()
	rows := map[string]string{}
	_, err := c.List(context.Background(), rangeiter.Query{}, func(row rangeiter.Row) error {
		rows[row.Key] = string(row.Value)
		return nil
	})
	require.NoError(t, err)
	return rows
}

func TestClone(t *testing.T) {
	src, pt := newTestClient(t)
	ctx := login(t, src)
	for i := 0; i < 30; i++ {
		require.NoError(t, src.Put(ctx, fmt.Sprintf("k%02d", i), json.RawMessage(fmt.Sprint(i))))
	}

	dst := openPeer(t, pt)
	_, err := dst.Use(ctx, "copy", true)
	require.NoError(t, err)

	var progress []string
	n, err := Clone(ctx, src, dst, rangeiter.Query{}, CloneOptions{
		Puts:     4,
		Progress: func(key string) { progress = append(progress, key) },
	})
	require.NoError(t, err)
	require.Equal(t, int64(30), n)
	require.Len(t, progress, 30)
	require.Equal(t, keysOf(t, src), keysOf(t, dst))

	// a query limits what is copied
	other := openPeer(t, pt)
	_, err = other.Use(ctx, "part", true)
	require.NoError(t, err)
	pre := "k1"
	n, err = Clone(ctx, src, other, rangeiter.Query{Pre: &pre}, CloneOptions{})
	require.NoError(t, err)
	require.Equal(t, int64(10), n)
	require.Len(t, keysOf(t, other), 10)
}

func TestCloneSeries(t *testing.T) {
	src, pt := newTestClient(t)
	ctx := login(t, src)
	for i := 0; i < 5; i++ {
		require.NoError(t, src.Put(ctx, fmt.Sprintf("t%d", i), json.RawMessage(fmt.Sprint(i))))
	}

	dst := openPeer(t, pt)
	_, err := dst.Use(ctx, "series", true)
	require.NoError(t, err)

	// an empty destination gets everything
	n, err := Clone(ctx, src, dst, rangeiter.Query{}, CloneOptions{Series: true})
	require.NoError(t, err)
	require.Equal(t, int64(5), n)

	// only the rows after the last destination key are copied
	require.NoError(t, src.Put(ctx, "t5", json.RawMessage("5")))
	require.NoError(t, src.Put(ctx, "t6", json.RawMessage("6")))
	n, err = Clone(ctx, src, dst, rangeiter.Query{}, CloneOptions{Series: true})
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	// with overlap the last row is copied again
	require.NoError(t, src.Put(ctx, "t6", json.RawMessage(`"final"`)))
	n, err = Clone(ctx, src, dst, rangeiter.Query{}, CloneOptions{Series: true, Overlap: true})
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	value, loaded, err := dst.Get(ctx, "t6")
	require.NoError(t, err)
	require.True(t, loaded)
	require.JSONEq(t, `"final"`, string(value))
	require.Equal(t, keysOf(t, src), keysOf(t, dst))
}

func TestCloneFailingDestination(t *testing.T) {
	src, pt := newTestClient(t)
	ctx := login(t, src)
	for i := 0; i < 20; i++ {
		require.NoError(t, src.Put(ctx, fmt.Sprintf("k%02d", i), json.RawMessage("1")))
	}

	// the destination has no base in use
	dst := openPeer(t, pt)
	_, err := Clone(ctx, src, dst, rangeiter.Query{}, CloneOptions{Puts: 2})
	require.True(t, errors.Is(err, common.ErrNoDatabase), "%v", err)

	// the source connection is still usable
	_, loaded, err := src.Get(ctx, "k00")
	require.NoError(t, err)
	require.True(t, loaded)
}
