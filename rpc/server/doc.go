// Package server implements the netlevel server: sessions on top of the line
// transports, the command dispatcher and the adapters executing commands
// against the credential store and the base registry.
//
// The package focuses on:
//   - One session per connection, holding identity, grants, the base in use
//     and the sub-store path
//   - Table driven guards checked before any command runs
//   - Adapters grouping the commands by what they work on
//   - Streaming lists with flow control, running next to the request loop
//
// Key Components:
//
//   - IRPCServerAdapter: Interface implemented by the command adapters. The
//     admin adapter handles halt, stat, drop and debug, the account adapter
//     auth, use and user, the base adapter sub, clear, get, put, del, list
//     and ack.
//
//   - NewRPCServer: Factory function creating a configured server with the
//     specified serializer and transports.
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  Transport: "tcp",
//	  Port:      8000,
//	  DataDir:   "./data",
//	  SeedUser:  "admin",
//	  SeedPass:  "secret",
//	  LogLevel:  "info",
//	}
//
//	s, err := server.NewRPCServer(
//	  config,
//	  serializer.NewJSONSerializer(),
//	  tcp.NewTCPServerTransport(),
//	)
//	if err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
//	if err := s.Serve(); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// Request Processing:
//
// Requests of one connection are processed in arrival order. Every request
// is answered with exactly one reply carrying its call id, except list
// (several row replies and a final reply) and ack (no reply). A line that is
// not a JSON object closes the connection.
//
// Before a command runs its guard is checked: first the permission (global
// or per-base grant of the authenticated user), then whether a base is in
// use. Failing checks are answered with "not authorized" and "no database
// in use". While no user exists at all, the user commands are open to
// everyone so the first administrator can be created.
//
// Lists:
//
// A list runs in its own goroutine. Rows of different lists and replies to
// later requests may interleave on the connection. Switching or releasing
// the base, and closing the connection, cancel the running lists before the
// base is released.
//
// Thread Safety:
//
//	Sessions are independent. The session state is owned by the goroutine
//	reading the connection, list goroutines only use the store captured
//	when they started. Halt may be called from any goroutine.
package server
