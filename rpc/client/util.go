package client

import (
	"context"
	"github.com/ValentinKolb/netlevel/rpc/common"
	"github.com/ValentinKolb/netlevel/rpc/serializer"
	"github.com/ValentinKolb/netlevel/rpc/transport"
	"github.com/cockroachdb/errors"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

var (
	Logger = logger.GetLogger("rpc")
)

// ErrConnectionClosed is returned for calls whose connection was lost
// before the reply arrived
var ErrConnectionClosed = errors.New("connection closed")

const (
	initialBackoff = 50 * time.Millisecond
	maxBackoff     = 2 * time.Second
)

// pendingCall routes the replies of one call id to its caller
type pendingCall struct {
	conn    transport.ClientConn
	replies chan *common.Response
	done    chan struct{}
}

// rpcClientAdapter holds the connection of a client and correlates replies
// with calls. A lost connection is re-established on the next call, the
// last successful auth and use are replayed on the new connection.
type rpcClientAdapter struct {
	config     common.ClientConfig
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer

	mu     sync.Mutex
	conn   transport.ClientConn
	closed bool
	auth   *common.Request // replayed after reconnect
	use    *common.Request // replayed after reconnect

	nextCall atomic.Uint64
	pending  *xsync.MapOf[string, *pendingCall]
}

func newRPCClientAdapter(
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) *rpcClientAdapter {
	return &rpcClientAdapter{
		config:     config,
		transport:  transport,
		serializer: serializer,
		pending:    xsync.NewMapOf[string, *pendingCall](),
	}
}

// --------------------------------------------------------------------------
// Connection Handling
// --------------------------------------------------------------------------

// connection returns the open connection or dials a new one
func (a *rpcClientAdapter) connection(ctx context.Context) (transport.ClientConn, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil, ErrConnectionClosed
	}
	if a.conn != nil {
		return a.conn, nil
	}

	conn, err := a.dial(ctx)
	if err != nil {
		return nil, err
	}
	go a.readLoop(conn)

	// restore the session state of the lost connection
	for _, req := range []*common.Request{a.auth, a.use} {
		if req == nil {
			continue
		}
		if _, err := a.roundTrip(ctx, conn, cloneRequest(req)); err != nil {
			_ = conn.Close()
			return nil, errors.Wrap(err, "failed to restore session")
		}
	}

	a.conn = conn
	return conn, nil
}

// dial connects with exponential backoff, RetryCount retries after the
// first attempt
func (a *rpcClientAdapter) dial(ctx context.Context) (transport.ClientConn, error) {
	backoff := initialBackoff
	var lastErr error
	for attempt := 0; attempt <= a.config.RetryCount; attempt++ {
		if attempt > 0 {
			Logger.Debugf("Retrying connection to %s in %s (%v)", a.config.Endpoint, backoff, lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff = min(2*backoff, maxBackoff)
		}

		conn, err := a.transport.Dial(a.config)
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	return nil, errors.Wrapf(lastErr, "giving up after %d attempts", a.config.RetryCount+1)
}

// readLoop delivers the replies of conn until it fails
func (a *rpcClientAdapter) readLoop(conn transport.ClientConn) {
	err := conn.ReadLines(func(line []byte) error {
		var resp common.Response
		if err := a.serializer.DecodeResponse(line, &resp); err != nil {
			Logger.Warningf("Dropping undecodable reply: %v", err)
			return nil
		}
		p, ok := a.pending.Load(string(resp.Call))
		if !ok || p.conn != conn {
			Logger.Debugf("Dropping reply for unknown call %s", resp.Call)
			return nil
		}
		select {
		case p.replies <- &resp:
		case <-p.done:
		}
		return nil
	})
	if err != nil {
		Logger.Debugf("Connection lost: %v", err)
	}

	_ = conn.Close()

	// fail the calls still waiting on this connection, a reconnect may be
	// waiting for one of them while holding the lock
	a.pending.Range(func(key string, p *pendingCall) bool {
		if p.conn == conn {
			close(p.replies)
		}
		return true
	})

	a.mu.Lock()
	if a.conn == conn {
		a.conn = nil
	}
	a.mu.Unlock()
}

// close closes the connection, later calls fail
func (a *rpcClientAdapter) close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	if a.conn == nil {
		return nil
	}
	return a.conn.Close()
}

// --------------------------------------------------------------------------
// Calls
// --------------------------------------------------------------------------

// register assigns a call id to req and routes its replies
func (a *rpcClientAdapter) register(conn transport.ClientConn, req *common.Request, buffer int) (string, *pendingCall) {
	key := strconv.FormatUint(a.nextCall.Add(1), 10)
	req.Call = []byte(key)
	p := &pendingCall{
		conn:    conn,
		replies: make(chan *common.Response, buffer),
		done:    make(chan struct{}),
	}
	a.pending.Store(key, p)
	return key, p
}

func (a *rpcClientAdapter) unregister(key string, p *pendingCall) {
	close(p.done)
	a.pending.Delete(key)
}

// write encodes and sends one request line
func (a *rpcClientAdapter) write(conn transport.ClientConn, req *common.Request) error {
	line, err := a.serializer.EncodeRequest(req)
	if err != nil {
		return errors.Wrap(err, "failed to encode request")
	}
	return conn.WriteLine(line)
}

// roundTrip sends req on conn and waits for its single reply
func (a *rpcClientAdapter) roundTrip(ctx context.Context, conn transport.ClientConn, req *common.Request) (*common.Response, error) {
	key, p := a.register(conn, req, 1)
	defer a.unregister(key, p)

	if err := a.write(conn, req); err != nil {
		return nil, err
	}
	return a.await(ctx, p)
}

// await waits for the next reply of p
func (a *rpcClientAdapter) await(ctx context.Context, p *pendingCall) (*common.Response, error) {
	select {
	case resp, ok := <-p.replies:
		if !ok {
			return nil, ErrConnectionClosed
		}
		if resp.Error != "" {
			return resp, common.ErrorFromText(resp.Error)
		}
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// invokeRPCRequest is a helper function used for all calls with a single
// reply. It (re)connects if needed and applies the configured timeout.
func (a *rpcClientAdapter) invokeRPCRequest(ctx context.Context, req *common.Request) (*common.Response, error) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	conn, err := a.connection(ctx)
	if err != nil {
		return nil, err
	}
	return a.roundTrip(ctx, conn, req)
}

func (a *rpcClientAdapter) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.config.TimeoutSecond <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, time.Duration(a.config.TimeoutSecond)*time.Second)
}

// remember records a successful auth or use for replay after a reconnect
func (a *rpcClientAdapter) remember(req *common.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch {
	case req.Auth != nil:
		a.auth = cloneRequest(req)
	case req.Use != nil:
		a.use = cloneRequest(req)
		if len(req.Use) > 0 && req.Use[0] == '[' {
			a.use = nil
		}
	}
}

// forgetAuth drops the credentials after a failed authentication
func (a *rpcClientAdapter) forgetAuth() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.auth = nil
}

func cloneRequest(req *common.Request) *common.Request {
	clone := *req
	clone.Call = nil
	return &clone
}
