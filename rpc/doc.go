// Package rpc is the network layer of netlevel. It carries the line-delimited
// JSON protocol between clients and the server.
//
// The package is organized into several subpackages:
//
//   - common: Protocol types (Request, Command, Response), configuration
//     structures, the wire error texts and logging.
//
//   - transport: Connection abstractions with pluggable implementations
//     (TCP, Unix sockets, WebSocket).
//
//   - serializer: Encoding of requests and responses as single JSON lines.
//
//   - client: The client library, one connection with call correlation,
//     reconnects and streaming lists.
//
//   - server: Sessions, command dispatch through adapters, permission checks
//     and the list streaming with acknowledgements.
package rpc
