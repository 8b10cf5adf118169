package client

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/ValentinKolb/netlevel/lib/rangeiter"
	"github.com/ValentinKolb/netlevel/lib/store"
	"github.com/ValentinKolb/netlevel/lib/users"
	"github.com/ValentinKolb/netlevel/rpc/common"
	"github.com/ValentinKolb/netlevel/rpc/serializer"
	"github.com/ValentinKolb/netlevel/rpc/server"
	"github.com/ValentinKolb/netlevel/rpc/transport"
	"github.com/ValentinKolb/netlevel/rpc/transport/base"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"net"
	"sync"
	"testing"
	"time"
)

// pipeTransport dials an in-process server over net.Pipe
type pipeTransport struct {
	srv *server.RPCServer

	mu    sync.Mutex
	conns []net.Conn // server ends
	dials int
	fail  int // number of dials that fail before one succeeds
}

func (p *pipeTransport) Dial(config common.ClientConfig) (transport.ClientConn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dials++
	if p.fail > 0 {
		p.fail--
		return nil, errors.New("connection refused")
	}
	client, srv := net.Pipe()
	p.conns = append(p.conns, srv)
	go p.srv.ServeConn(srv)
	return base.NewClientConn(client, config), nil
}

func (p *pipeTransport) GetName() string {
	return "pipe"
}

// drop closes all server ends, as if the network failed
func (p *pipeTransport) drop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.conns {
		_ = c.Close()
	}
	p.conns = nil
}

func newTestClient(t *testing.T) (*Client, *pipeTransport) {
	t.Helper()
	srv, err := server.NewRPCServer(common.ServerConfig{
		DataDir:  t.TempDir(),
		NoSync:   true,
		HashCost: bcrypt.MinCost,
		SeedUser: "admin",
		SeedPass: "secret",
	}, serializer.NewJSONSerializer())
	require.NoError(t, err)
	t.Cleanup(srv.Halt)

	pt := &pipeTransport{srv: srv}
	c, err := Open(common.ClientConfig{Endpoint: "pipe", TimeoutSecond: 5, RetryCount: 3}, pt, serializer.NewJSONSerializer())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, pt
}

func login(t *testing.T, c *Client) context.Context {
	ctx := context.Background()
	require.NoError(t, c.Auth(ctx, "admin", "secret"))
	path, err := c.Use(ctx, "t", true)
	require.NoError(t, err)
	require.Equal(t, []string{"t"}, path)
	return ctx
}

func TestKeyCommands(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := login(t, c)

	require.NoError(t, c.Put(ctx, "k", json.RawMessage(`{"a":1}`)))
	value, loaded, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, loaded)
	require.JSONEq(t, `{"a":1}`, string(value))

	require.NoError(t, c.Delete(ctx, "k"))
	_, loaded, err = c.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, loaded)
}

func TestServerErrors(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	_, _, err := c.Get(ctx, "k")
	require.True(t, errors.Is(err, store.ErrNotAuthorized), "%v", err)

	err = c.Auth(ctx, "admin", "wrong")
	require.True(t, errors.Is(err, users.ErrAuthFailed), "%v", err)

	require.NoError(t, c.Auth(ctx, "admin", "secret"))
	_, err = c.Use(ctx, "missing", false)
	require.True(t, errors.Is(err, store.ErrMissingCreate), "%v", err)
	require.True(t, errors.Is(c.Drop(ctx, "missing"), store.ErrNoSuchBase))
}

func TestListAndMore(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := login(t, c)
	for i := 0; i < 250; i++ {
		require.NoError(t, c.Put(ctx, fmt.Sprintf("k%03d", i), json.RawMessage(fmt.Sprint(i))))
	}

	// more rows than the ack batch, acknowledged automatically
	var all []string
	cur, err := c.List(ctx, rangeiter.Query{Limit: 120, Ack: 10}, func(row rangeiter.Row) error {
		all = append(all, row.Key)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, all, 120)

	for {
		n := 0
		more, err := c.More(ctx, cur, func(row rangeiter.Row) error {
			all = append(all, row.Key)
			n++
			return nil
		})
		require.NoError(t, err)
		if !more || n == 0 {
			break
		}
	}
	require.Len(t, all, 250)
	require.Equal(t, "k000", all[0])
	require.Equal(t, "k249", all[249])
}

func TestListCallbackError(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := login(t, c)
	for i := 0; i < 50; i++ {
		require.NoError(t, c.Put(ctx, fmt.Sprintf("k%02d", i), json.RawMessage("1")))
	}

	stop := errors.New("stop")
	calls := 0
	_, err := c.List(ctx, rangeiter.Query{Ack: 5}, func(row rangeiter.Row) error {
		calls++
		if calls == 3 {
			return stop
		}
		return nil
	})
	require.ErrorIs(t, err, stop)
	require.Equal(t, 3, calls)

	// the connection is still usable
	_, loaded, err := c.Get(ctx, "k00")
	require.NoError(t, err)
	require.True(t, loaded)
}

func TestKeysAndCull(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := login(t, c)
	for _, k := range []string{"a1", "a2", "b1"} {
		require.NoError(t, c.Put(ctx, k, json.RawMessage(`"v"`)))
	}

	pre := "a"
	var culled []string
	_, err := c.Cull(ctx, rangeiter.Query{Pre: &pre}, func(key string) error {
		culled = append(culled, key)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a1", "a2"}, culled)

	var rest []string
	_, err = c.Keys(ctx, rangeiter.Query{}, func(key string) error {
		rest = append(rest, key)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"b1"}, rest)

	require.NoError(t, c.Clear(ctx, rangeiter.Query{}))
	_, loaded, err := c.Get(ctx, "b1")
	require.NoError(t, err)
	require.False(t, loaded)
}

func TestSubStores(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := login(t, c)

	path, err := c.Sub(ctx, "a", "b")
	require.NoError(t, err)
	require.Equal(t, []string{"t", "a", "b"}, path)
	require.NoError(t, c.Put(ctx, "k", json.RawMessage("1")))

	path, err = c.Sub(ctx, "/")
	require.NoError(t, err)
	require.Equal(t, []string{"t"}, path)
	_, loaded, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, loaded)
}

func TestReconnectRestoresSession(t *testing.T) {
	c, pt := newTestClient(t)
	ctx := login(t, c)
	require.NoError(t, c.Put(ctx, "k", json.RawMessage("1")))

	pt.drop()

	// the first call after the drop may fail, a later one reconnects
	require.Eventually(t, func() bool {
		_, loaded, err := c.Get(ctx, "k")
		return err == nil && loaded
	}, 5*time.Second, 20*time.Millisecond)

	pt.mu.Lock()
	require.GreaterOrEqual(t, pt.dials, 2)
	pt.mu.Unlock()
}

func TestOpenRetries(t *testing.T) {
	srv, err := server.NewRPCServer(common.ServerConfig{DataDir: t.TempDir(), NoSync: true}, serializer.NewJSONSerializer())
	require.NoError(t, err)
	t.Cleanup(srv.Halt)

	pt := &pipeTransport{srv: srv, fail: 2}
	c, err := Open(common.ClientConfig{Endpoint: "pipe", RetryCount: 2}, pt, serializer.NewJSONSerializer())
	require.NoError(t, err)
	require.NoError(t, c.Close())
	require.Equal(t, 3, pt.dials)

	pt = &pipeTransport{srv: srv, fail: 5}
	_, err = Open(common.ClientConfig{Endpoint: "pipe", RetryCount: 1}, pt, serializer.NewJSONSerializer())
	require.Error(t, err)
	require.Equal(t, 2, pt.dials)
}

func TestUserAdministration(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := login(t, c)

	require.NoError(t, c.AddUser(ctx, "bob", "pw", json.RawMessage(`{"put":true}`)))
	names, err := c.Users(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"admin", "bob"}, names)

	desc, err := c.DescribeUser(ctx, "bob")
	require.NoError(t, err)
	require.True(t, desc.Perms.Put)
	require.True(t, desc.Perms.Range.Allowed())

	require.NoError(t, c.SetPermissions(ctx, "bob", json.RawMessage(`{"put":false}`)))
	require.NoError(t, c.SetBasePermissions(ctx, "bob", json.RawMessage(`{"t":{"put":true}}`)))
	desc, err = c.DescribeUser(ctx, "bob")
	require.NoError(t, err)
	require.False(t, desc.Perms.Put)
	require.True(t, desc.Base["t"].Put)

	require.NoError(t, c.SetPassword(ctx, "bob", "new"))
	require.True(t, errors.Is(c.DeleteUser(ctx, "admin"), users.ErrSelfDelete))
	require.NoError(t, c.DeleteUser(ctx, "bob"))

	st, ok, err := c.StatBase(ctx, "t")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"admin"}, st.Users)

	_, ok, err = c.StatBase(ctx, "closed")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Debug(ctx, "t", true))
	raw, err := c.Stat(ctx)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"dbug":{"t":true}`)
}
