// Package unix implements the Unix domain socket transport of the netlevel
// server for clients running on the same machine.
//
// This package extends the base transport layer with Unix socket-specific
// connectors while inheriting framing and connection handling from base.
// An existing socket file at the endpoint is removed before listening.
package unix
