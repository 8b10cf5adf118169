package base

import (
	"github.com/ValentinKolb/netlevel/rpc/common"
	"github.com/ValentinKolb/netlevel/rpc/transport"
	"github.com/cockroachdb/errors"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

var Logger = logger.GetLogger("transport/rpc")

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IServerConnector defines the interface for transport-specific server operations
type IServerConnector interface {
	// Listen creates a listener and returns it
	Listen(config common.ServerConfig) (net.Listener, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// serverTransport implements the core server transport functionality
type serverTransport struct {
	connector IServerConnector
	handler   transport.ServerHandler
	config    common.ServerConfig

	mu       sync.Mutex
	listener net.Listener
	conns    *xsync.MapOf[net.Conn, struct{}]
	closed   atomic.Bool
}

// streamConn implements transport.Conn on top of a net.Conn
type streamConn struct {
	conn    net.Conn
	mu      sync.Mutex // protects writes to the connection
	timeout time.Duration
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseServerTransport creates a new base server transport for the connector
func NewBaseServerTransport(connector IServerConnector) transport.IRPCServerTransport {
	return &serverTransport{
		connector: connector,
		conns:     xsync.NewMapOf[net.Conn, struct{}](),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *serverTransport) RegisterHandler(handler transport.ServerHandler) {
	t.handler = handler
}

func (t *serverTransport) Listen(config common.ServerConfig) error {
	if t.handler == nil {
		return errors.New("no handler registered")
	}
	t.config = config

	// Create listener using the connector
	listener, err := t.connector.Listen(config)
	if err != nil {
		return errors.Wrap(err, "failed to create listener")
	}

	t.mu.Lock()
	t.listener = listener
	t.mu.Unlock()
	if t.closed.Load() {
		_ = listener.Close()
		return nil
	}

	Logger.Infof("Starting %s server on %s", t.connector.GetName(), listener.Addr())

	// Accept connections
	backoff := 5 * time.Millisecond
	for {
		conn, err := listener.Accept()
		if err != nil {
			if t.closed.Load() || errors.Is(err, net.ErrClosed) {
				Logger.Infof("Stopped %s server on %s", t.connector.GetName(), listener.Addr())
				return nil
			}
			Logger.Errorf("Accept error: %v", err)
			time.Sleep(backoff)
			backoff = min(2*backoff, time.Second)
			continue
		}
		backoff = 5 * time.Millisecond

		// Handle the connection in a goroutine
		go func() {
			t.conns.Store(conn, struct{}{})
			defer t.conns.Delete(conn)
			ServeConn(conn, t.handler, t.config)
		}()
	}
}

func (t *serverTransport) Close() error {
	t.closed.Store(true)

	t.mu.Lock()
	listener := t.listener
	t.mu.Unlock()

	var err error
	if listener != nil {
		err = listener.Close()
	}
	t.conns.Range(func(conn net.Conn, _ struct{}) bool {
		_ = conn.Close()
		return true
	})
	return err
}

// --------------------------------------------------------------------------
// Connection Handling
// --------------------------------------------------------------------------

// ServeConn serves a single connection until the peer disconnects, the
// handler fails or the connection is closed. It blocks and closes conn
// before returning.
func ServeConn(conn net.Conn, handler transport.ServerHandler, config common.ServerConfig) {
	defer conn.Close()

	c := &streamConn{
		conn:    conn,
		timeout: time.Duration(config.TimeoutSecond) * time.Second,
	}
	addr := c.RemoteAddr()
	Logger.Debugf("Connection opened by %s", addr)

	lines := handler(c)
	defer lines.Disconnect()

	lb := NewLineBuffer(config.LineLimit(), lines.HandleLine)
	err := lb.ReadFrom(conn)
	if n := lb.Pending(); n > 0 {
		Logger.Debugf("Dropping %d bytes of an unterminated line from %s", n, addr)
	}
	switch {
	case errors.Is(err, io.EOF):
		Logger.Infof("Connection closed by client %s", addr)
	case errors.Is(err, net.ErrClosed), errors.Is(err, io.ErrClosedPipe):
		Logger.Debugf("Connection to %s closed", addr)
	default:
		Logger.Warningf("Closing connection to %s: %v", addr, err)
	}
}

func (c *streamConn) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil && addr.String() != "" {
		return addr.String()
	}
	return "local"
}

func (c *streamConn) WriteLine(line []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
			return errors.Wrap(err, "failed to set write deadline")
		}
	}
	return writeLine(c.conn, line)
}

func (c *streamConn) Close() error {
	return c.conn.Close()
}

// writeLine writes line and a terminating newline if it lacks one
func writeLine(w io.Writer, line []byte) error {
	if len(line) > 0 && line[len(line)-1] == '\n' {
		_, err := w.Write(line)
		return err
	}
	b := net.Buffers{line, []byte{'\n'}}
	_, err := b.WriteTo(w)
	return err
}
