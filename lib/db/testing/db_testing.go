package testing

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/ValentinKolb/netlevel/lib/db"
)

// DBFactory is a function that creates a new, empty instance of a KVDB implementation
type DBFactory func(t testing.TB) db.KVDB

// RunKVDBTests runs a comprehensive test suite for a KVDB implementation.
func RunKVDBTests(t *testing.T, name string, factory DBFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, factory(t))
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory(t))
		})

		t.Run("IterateForward", func(t *testing.T) {
			testIterateForward(t, factory(t))
		})

		t.Run("IterateReverse", func(t *testing.T) {
			testIterateReverse(t, factory(t))
		})

		t.Run("IterateBounds", func(t *testing.T) {
			testIterateBounds(t, factory(t))
		})

		t.Run("IteratorSnapshot", func(t *testing.T) {
			testIteratorSnapshot(t, factory(t))
		})

		t.Run("DeleteRange", func(t *testing.T) {
			testDeleteRange(t, factory(t))
		})

		t.Run("Batch", func(t *testing.T) {
			testBatch(t, factory(t))
		})

		t.Run("BinaryKeys", func(t *testing.T) {
			testBinaryKeys(t, factory(t))
		})

		t.Run("ConcurrentWrites", func(t *testing.T) {
			testConcurrentWrites(t, factory(t))
		})

		t.Run("Info", func(t *testing.T) {
			testInfo(t, factory(t))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Checks if the database supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, database db.KVDB, feature db.Feature) {
	if !database.SupportsFeature(feature) {
		t.Skip()
	}
}

// mustSet writes a key or fails the test
func mustSet(t testing.TB, database db.KVDB, key, value string) {
	t.Helper()
	if err := database.Set([]byte(key), []byte(value)); err != nil {
		t.Fatalf("Set(%q) failed: %v", key, err)
	}
}

// collectKeys drains an iterator into a list of keys
func collectKeys(t testing.TB, database db.KVDB, opts db.IterOptions) []string {
	t.Helper()
	it, err := database.NewIterator(opts)
	if err != nil {
		t.Fatalf("NewIterator failed: %v", err)
	}
	defer it.Close()

	var keys []string
	for it.Next() {
		keys = append(keys, string(it.Key()))
	}
	if err := it.Error(); err != nil {
		t.Fatalf("iteration failed: %v", err)
	}
	return keys
}

func equalKeys(a, b []string) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet)

	testKey := []byte("test-key")
	testValue1 := []byte("test-value1")
	testValue2 := []byte("test-value2")

	if err := database.Set(testKey, testValue1); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	result, exists, err := database.Get(testKey)
	if err != nil || !exists {
		t.Fatalf("Expected key %s to exist after Set (err: %v)", testKey, err)
	}
	if !bytes.Equal(result, testValue1) {
		t.Errorf("Expected value %s, got %s", testValue1, result)
	}

	if err := database.Set(testKey, testValue2); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	result, _, _ = database.Get(testKey)
	if !bytes.Equal(result, testValue2) {
		t.Errorf("Expected value %s, got %s", testValue2, result)
	}

	_, exists, err = database.Get([]byte("nonexistent-key"))
	if err != nil || exists {
		t.Errorf("Expected nonexistent key to return exists=false, got %v (err: %v)", exists, err)
	}

	retrievedValue, _, _ := database.Get(testKey)
	retrievedValue[0] = 'X'

	originalValue, _, _ := database.Get(testKey)
	if bytes.Equal(retrievedValue, originalValue) {
		t.Errorf("Get should return a copy, not a reference to the stored value")
	}

	// empty values are values
	if err := database.Set([]byte("empty"), nil); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	result, exists, _ = database.Get([]byte("empty"))
	if !exists || len(result) != 0 {
		t.Errorf("Expected empty value to exist, got exists=%v value=%q", exists, result)
	}
}

func testDelete(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureDelete)

	mustSet(t, database, "a", "1")
	if err := database.Delete([]byte("a")); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, exists, _ := database.Get([]byte("a")); exists {
		t.Errorf("Key should not exist after Delete")
	}

	// deleting a missing key is not an error
	if err := database.Delete([]byte("missing")); err != nil {
		t.Errorf("Delete of missing key failed: %v", err)
	}
}

func testIterateForward(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureIterate)

	for _, k := range []string{"b", "a", "c", "ab"} {
		mustSet(t, database, k, "v-"+k)
	}

	keys := collectKeys(t, database, db.IterOptions{})
	if want := []string{"a", "ab", "b", "c"}; !equalKeys(keys, want) {
		t.Errorf("Expected keys %v, got %v", want, keys)
	}

	it, err := database.NewIterator(db.IterOptions{})
	if err != nil {
		t.Fatal(err)
	}
	defer it.Close()
	if !it.Next() {
		t.Fatal("Expected at least one entry")
	}
	v, err := it.Value()
	if err != nil || string(v) != "v-a" {
		t.Errorf("Expected value v-a, got %q (err: %v)", v, err)
	}
}

func testIterateReverse(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureIterate|db.FeatureReverse)

	for _, k := range []string{"1", "2", "3", "4"} {
		mustSet(t, database, k, k)
	}

	keys := collectKeys(t, database, db.IterOptions{Reverse: true})
	if want := []string{"4", "3", "2", "1"}; !equalKeys(keys, want) {
		t.Errorf("Expected keys %v, got %v", want, keys)
	}

	keys = collectKeys(t, database, db.IterOptions{LowerBound: []byte("2"), UpperBound: []byte("4"), Reverse: true})
	if want := []string{"3", "2"}; !equalKeys(keys, want) {
		t.Errorf("Expected bounded reverse keys %v, got %v", want, keys)
	}
}

func testIterateBounds(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureIterate)

	for i := 0; i < 10; i++ {
		mustSet(t, database, fmt.Sprintf("%03d", i), "x")
	}

	tests := []struct {
		name  string
		lower string
		upper string
		want  []string
	}{
		{"lower only", "007", "", []string{"007", "008", "009"}},
		{"upper only", "", "002", []string{"000", "001"}},
		{"both", "003", "006", []string{"003", "004", "005"}},
		{"empty range", "005", "005", nil},
		{"outside", "100", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := db.IterOptions{}
			if tt.lower != "" {
				opts.LowerBound = []byte(tt.lower)
			}
			if tt.upper != "" {
				opts.UpperBound = []byte(tt.upper)
			}
			if keys := collectKeys(t, database, opts); !equalKeys(keys, tt.want) {
				t.Errorf("Expected keys %v, got %v", tt.want, keys)
			}
		})
	}
}

func testIteratorSnapshot(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureIterate)

	mustSet(t, database, "a", "1")
	mustSet(t, database, "b", "2")

	it, err := database.NewIterator(db.IterOptions{})
	if err != nil {
		t.Fatal(err)
	}
	defer it.Close()

	// writes after creating the iterator are not observed
	mustSet(t, database, "c", "3")

	count := 0
	for it.Next() {
		count++
	}
	if count != 2 {
		t.Errorf("Expected iterator to observe 2 entries, got %d", count)
	}
}

func testDeleteRange(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureDeleteRange|db.FeatureIterate)

	for i := 0; i < 10; i++ {
		mustSet(t, database, fmt.Sprintf("%d", i), "x")
	}
	if err := database.DeleteRange([]byte("2"), []byte("8")); err != nil {
		t.Fatalf("DeleteRange failed: %v", err)
	}

	keys := collectKeys(t, database, db.IterOptions{})
	if want := []string{"0", "1", "8", "9"}; !equalKeys(keys, want) {
		t.Errorf("Expected keys %v, got %v", want, keys)
	}
}

func testBatch(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureBatch)

	mustSet(t, database, "keep", "1")
	mustSet(t, database, "drop", "2")

	batch := database.NewBatch()
	defer batch.Close()

	if err := batch.Set([]byte("new"), []byte("3")); err != nil {
		t.Fatal(err)
	}
	if err := batch.Delete([]byte("drop")); err != nil {
		t.Fatal(err)
	}
	if batch.Count() != 2 {
		t.Errorf("Expected batch count 2, got %d", batch.Count())
	}

	// nothing is visible before commit
	if _, exists, _ := database.Get([]byte("new")); exists {
		t.Errorf("Batch write visible before commit")
	}

	if err := batch.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	keys := collectKeys(t, database, db.IterOptions{})
	if want := []string{"keep", "new"}; !equalKeys(keys, want) {
		t.Errorf("Expected keys %v, got %v", want, keys)
	}
}

func testBinaryKeys(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureIterate)

	keys := [][]byte{{0x00, 'a'}, {0x00}, {0x01}, {0x00, 0x01, 0xff}, {0xff, 0xff}}
	for _, k := range keys {
		if err := database.Set(k, k); err != nil {
			t.Fatal(err)
		}
	}

	it, err := database.NewIterator(db.IterOptions{LowerBound: []byte{0x00}, UpperBound: []byte{0x01}})
	if err != nil {
		t.Fatal(err)
	}
	defer it.Close()

	var got [][]byte
	for it.Next() {
		got = append(got, append([]byte(nil), it.Key()...))
	}
	want := [][]byte{{0x00}, {0x00, 0x01, 0xff}, {0x00, 'a'}}
	if len(got) != len(want) {
		t.Fatalf("Expected %d keys, got %d (%x)", len(want), len(got), got)
	}
	for i := range want {
		if !bytes.Equal(got[i], want[i]) {
			t.Errorf("Key %d: expected %x, got %x", i, want[i], got[i])
		}
	}
}

func testConcurrentWrites(t *testing.T, database db.KVDB) {
	defer database.Close()

	const workers, perWorker = 8, 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				key := fmt.Sprintf("w%02d-%03d", w, i)
				if err := database.Set([]byte(key), []byte(key)); err != nil {
					t.Errorf("Set(%s) failed: %v", key, err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	if keys := collectKeys(t, database, db.IterOptions{}); len(keys) != workers*perWorker {
		t.Errorf("Expected %d keys, got %d", workers*perWorker, len(keys))
	}
}

func testInfo(t *testing.T, database db.KVDB) {
	defer database.Close()

	mustSet(t, database, "a", "some value")

	info := database.GetInfo()
	if info.DbType == "" {
		t.Errorf("Expected a db type in the info")
	}
	if len(info.SupportedFeatures) == 0 {
		t.Errorf("Expected supported features in the info")
	}
	for _, f := range info.SupportedFeatures {
		if !database.SupportsFeature(f) {
			t.Errorf("Feature %s listed but not supported", f)
		}
	}
}
