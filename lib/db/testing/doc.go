// Package testing provides standardised tests and benchmarks for
// database implementations that satisfy the db.KVDB interface.
//
// The package contains:
//   - testing: A test suite validating the KVDB contract (ordering, bounds,
//     reverse iteration, snapshots, range deletes and batches)
//   - benchmark: Performance tests for the operations the server issues
//
// Example usage:
//
//	// Creating a factory function for your implementation
//	factory := func(t testing.TB) db.KVDB {
//		return NewMyDatabase(t.TempDir())
//	}
//
//	// Running the standard test suite
//	dbtesting.RunKVDBTests(t, "MyDatabase", factory)
//
//	// Running performance benchmarks
//	dbtesting.RunKVDBBenchmarks(b, "MyDatabase", factory)
package testing
