// Package client implements the netlevel client library.
// A Client holds one connection to a server and exposes every command of
// the line protocol as a method.
//
// The package focuses on:
//   - Correlating replies with calls by call id, so one client can be used
//     from many goroutines
//   - Connection establishment with exponential backoff
//   - Restoring the session (auth and use) after a lost connection
//   - Streaming lists with automatic acknowledgements and continuation
//
// Key Components:
//
//   - Open: Factory function that connects a Client using the given
//     transport and serializer.
//
//   - List, More, Keys, Cull: Range iteration. List returns a cursor, More
//     continues after the last row the cursor saw. Keys omits the values,
//     Cull deletes the listed keys.
//
// Usage Example:
//
//	c, err := client.Open(
//	  common.ClientConfig{Endpoint: "localhost:8000", TimeoutSecond: 5, RetryCount: 3},
//	  tcp.NewTCPClientTransport(),
//	  serializer.NewJSONSerializer(),
//	)
//	if err != nil {
//	  log.Fatal(err)
//	}
//	defer c.Close()
//
//	ctx := context.Background()
//	_ = c.Auth(ctx, "admin", "secret")
//	_, _ = c.Use(ctx, "mybase", true)
//	_ = c.Put(ctx, "mykey", json.RawMessage(`{"a":1}`))
//	value, exists, _ := c.Get(ctx, "mykey")
//
//	pre := "my"
//	cur, _ := c.List(ctx, rangeiter.Query{Pre: &pre, Limit: 100}, func(row rangeiter.Row) error {
//	  fmt.Println(row.Key, string(row.Value))
//	  return nil
//	})
//	_, _ = c.More(ctx, cur, printRow)
//
// Errors:
//
// Error replies are returned as errors. Errors known to the server (e.g.
// "not authorized", "no such database") match their sentinels in the store
// and users packages with errors.Is.
//
// Reconnects:
//
// A lost connection fails the calls waiting on it with ErrConnectionClosed.
// The next call dials again and replays the last successful auth and use.
// The sub-store path and running lists are not restored.
//
// Thread Safety:
//
//	A Client can be used concurrently from multiple goroutines. Commands
//	that change the session (Auth, Use, Sub) affect all of them.
package client
