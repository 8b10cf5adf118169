// Package pebble implements the db.KVDB interface on top of
// github.com/cockroachdb/pebble, an LSM tree storage engine. Every named
// base of the server is one pebble database in its own directory.
//
// The engine is a thin adapter:
//
//   - Writes are synced by default (DBOptions.NoSync disables this for
//     benchmarks and tests).
//   - Get copies the value out of pebble's buffer before releasing it.
//   - Iterators observe a consistent snapshot taken when they are created
//     and walk the range forward or backward depending on IterOptions.
//   - Batches map directly onto pebble batches and are committed atomically.
//   - pebble's own log output is routed into the "store" logger.
//
// After Close every operation returns ErrClosed instead of panicking inside
// pebble. All iterators must be closed before Close is called.
package pebble
