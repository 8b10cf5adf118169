// Package transport defines the interfaces between the protocol layer and the
// network. A transport moves complete lines, it knows nothing about their
// content.
//
// The package focuses on:
//   - Defining clear interfaces for client and server transport layers
//   - Ordered, sequential delivery of the lines of one connection
//   - Enabling multiple transport implementations (TCP, Unix sockets, WebSocket)
//
// Key Components:
//
//   - IRPCServerTransport: Accepts connections and feeds their lines to the
//     LineHandler returned by the registered ServerHandler.
//
//   - IHTTPServerTransport: Implemented by transports running an HTTP server,
//     used to serve plain handlers such as /metrics.
//
//   - IRPCClientTransport: Dials a ClientConn, which writes request lines and
//     reads reply lines.
package transport
