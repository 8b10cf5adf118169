// Package ws implements the WebSocket bridge of the netlevel server. It
// carries exactly the same newline delimited JSON protocol as the TCP and
// Unix transports, so browser clients can talk to the server directly.
// Text messages are chunks of the line stream: a message may hold several
// lines or part of one, and every line must end with a newline. Replies
// are sent one line per message.
//
// The bridge runs its own HTTP server. Additional routes (the Prometheus
// metrics endpoint) can be served next to the upgrade path.
//
// Connections are kept alive with ping/pong control frames. Messages are
// fed through a base.LineBuffer, so the line size limit applies to the
// bridge as well.
package ws
