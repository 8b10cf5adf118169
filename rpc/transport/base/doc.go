// Package base provides the foundation for the stream transports of the
// netlevel server (TCP and Unix sockets). It implements everything that is
// independent of the concrete network protocol and is extended with
// protocol-specific connectors.
//
// The package focuses on:
//   - Newline delimited framing over byte streams (LineBuffer)
//   - One goroutine per connection reading lines in arrival order
//   - Serialized, deadline bounded writes shared by concurrent writers
//   - Orderly shutdown of the listener and all open connections
//
// Key Components:
//
//   - LineBuffer: Push style reassembly of lines from arbitrarily split
//     chunks. Handles CR/LF line endings and enforces a maximum line size so
//     a peer cannot grow the buffer without bound.
//
//   - IClientConnector/IServerConnector: Interfaces for protocol-specific
//     operations that allow extending the base transport with different
//     network protocols.
//
//   - serverTransport: Accepts connections and hands each one to ServeConn,
//     which feeds the lines into the registered transport.LineHandler.
//
//   - clientTransport: Dials a single connection and exposes it as a
//     transport.ClientConn. Reconnects are handled by the client package.
//
// Thread Safety:
//
//	WriteLine may be called from any goroutine. HandleLine is only ever
//	called from the read goroutine of its connection.
package base
