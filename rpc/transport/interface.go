package transport

import (
	"github.com/ValentinKolb/netlevel/rpc/common"
	"net/http"
)

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// Conn is the server side of one client connection. WriteLine is safe for
// concurrent use, each call writes one complete frame.
type Conn interface {
	// RemoteAddr returns a printable address of the peer
	RemoteAddr() string
	// WriteLine writes one newline terminated line to the peer
	WriteLine(line []byte) error
	// Close closes the connection. The read loop ends and Disconnect is called.
	Close() error
}

// LineHandler consumes the lines of one connection. HandleLine is called
// sequentially in arrival order. A returned error closes the connection.
// Disconnect is called exactly once after the last line.
type LineHandler interface {
	HandleLine(line []byte) error
	Disconnect()
}

// ServerHandler is called by a server transport for every accepted
// connection and returns the handler for its lines.
type ServerHandler func(conn Conn) LineHandler

// IRPCServerTransport is the interface for the server side transport layer
type IRPCServerTransport interface {
	// RegisterHandler registers the connection handler.
	// It must be called before Listen.
	RegisterHandler(handler ServerHandler)
	// Listen starts accepting connections and blocks until Close is called
	// or the listener fails. After Close it returns nil.
	Listen(config common.ServerConfig) error
	// Close stops accepting connections and closes all open ones
	Close() error
}

// IHTTPServerTransport is implemented by server transports that run an HTTP
// server. Handle registers a plain HTTP handler next to the line protocol,
// it must be called before Listen.
type IHTTPServerTransport interface {
	Handle(path string, handler http.Handler)
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// ClientConn is the client side of one connection
type ClientConn interface {
	// WriteLine writes one newline terminated line to the server
	WriteLine(line []byte) error
	// ReadLines calls fn for every line received until the connection is
	// closed or fn returns an error
	ReadLines(fn func(line []byte) error) error
	// Close closes the connection
	Close() error
}

// IRPCClientTransport is the interface for the RPC client transport
type IRPCClientTransport interface {
	// Dial opens a new connection to config.Endpoint
	Dial(config common.ClientConfig) (ClientConn, error)
	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string
}
