package base

import (
	"github.com/ValentinKolb/netlevel/rpc/common"
	"github.com/ValentinKolb/netlevel/rpc/transport"
	"github.com/cockroachdb/errors"
	"io"
	"net"
	"sync"
	"time"
)

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IClientConnector defines the interface for transport-specific connection operations
type IClientConnector interface {
	// Connect establishes a single connection to the endpoint
	Connect(endpoint string, timeout time.Duration) (net.Conn, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// clientTransport implements the core client transport functionality
// independent of the specific transport medium (unix, tcp, etc.)
type clientTransport struct {
	connector IClientConnector
}

// clientConn implements transport.ClientConn on top of a net.Conn
type clientConn struct {
	conn    net.Conn
	mu      sync.Mutex // protects writes to the connection
	timeout time.Duration
	maxLine int
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseClientTransport creates a new base client transport with the specified connector
func NewBaseClientTransport(connector IClientConnector) transport.IRPCClientTransport {
	return &clientTransport{connector: connector}
}

// NewClientConn wraps an established connection, used for in-process pipes
func NewClientConn(conn net.Conn, config common.ClientConfig) transport.ClientConn {
	return &clientConn{
		conn:    conn,
		timeout: time.Duration(config.TimeoutSecond) * time.Second,
		maxLine: config.LineLimit(),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *clientTransport) GetName() string {
	return t.connector.GetName()
}

func (t *clientTransport) Dial(config common.ClientConfig) (transport.ClientConn, error) {
	if config.Endpoint == "" {
		return nil, errors.New("no endpoint provided")
	}

	conn, err := t.connector.Connect(config.Endpoint, time.Duration(config.TimeoutSecond)*time.Second)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to %s", config.Endpoint)
	}

	Logger.Debugf("Connected to %s using %s transport", config.Endpoint, t.connector.GetName())
	return NewClientConn(conn, config), nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.ClientConn)
// --------------------------------------------------------------------------

func (c *clientConn) WriteLine(line []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
			return errors.Wrap(err, "failed to set write deadline")
		}
	}
	return writeLine(c.conn, line)
}

func (c *clientConn) ReadLines(fn func(line []byte) error) error {
	err := NewLineBuffer(c.maxLine, fn).ReadFrom(c.conn)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (c *clientConn) Close() error {
	return c.conn.Close()
}
