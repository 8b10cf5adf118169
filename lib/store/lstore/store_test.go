package lstore

import (
	"errors"
	"fmt"
	"github.com/ValentinKolb/netlevel/lib/db/engines/pebble"
	"github.com/ValentinKolb/netlevel/lib/store"
	"reflect"
	"testing"
)

func newRoot(t *testing.T) store.IStore {
	t.Helper()
	database, err := pebble.NewPebbleDB(t.TempDir(), &pebble.DBOptions{NoSync: true})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { database.Close() })
	return NewLocalStore(database, "db")
}

func keysOf(t *testing.T, s store.IStore, r store.KeyRange, reverse bool) []string {
	t.Helper()
	it, err := s.NewIterator(r, reverse)
	if err != nil {
		t.Fatal(err)
	}
	defer it.Close()

	var keys []string
	for it.Next() {
		keys = append(keys, string(it.Key()))
	}
	if err := it.Error(); err != nil {
		t.Fatal(err)
	}
	return keys
}

func fill(t *testing.T, s store.IStore, keys ...string) {
	t.Helper()
	for _, k := range keys {
		if err := s.Set(k, []byte(`"`+k+`"`)); err != nil {
			t.Fatal(err)
		}
	}
}

func TestSubStoreIsolation(t *testing.T) {
	root := newRoot(t)
	xyz, err := root.Sub("xyz")
	if err != nil {
		t.Fatal(err)
	}
	nested, err := xyz.Sub("abc")
	if err != nil {
		t.Fatal(err)
	}

	fill(t, root, "a", "b", "foo")
	fill(t, xyz, "a", "x1", "x2")
	fill(t, nested, "n")

	tests := []struct {
		name  string
		store store.IStore
		want  []string
	}{
		{"root", root, []string{"a", "b", "foo"}},
		{"xyz", xyz, []string{"a", "x1", "x2"}},
		{"xyz/abc", nested, []string{"n"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := keysOf(t, tt.store, store.KeyRange{}, false); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("keys = %v, want %v", got, tt.want)
			}
		})
	}

	// same key, different stores
	v, ok, err := xyz.Get("a")
	if err != nil || !ok || string(v) != `"a"` {
		t.Errorf("xyz.Get(a) = %q %v %v", v, ok, err)
	}
	if err := root.Delete("a"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := xyz.Get("a"); !ok {
		t.Errorf("deleting root key removed sub-store key")
	}
}

func TestSubStorePath(t *testing.T) {
	root := newRoot(t)
	a, _ := root.Sub("a")
	b, _ := a.Sub("b")

	if root.Name() != "db" || b.Name() != "db" {
		t.Errorf("unexpected names %q %q", root.Name(), b.Name())
	}
	if len(root.Path()) != 0 {
		t.Errorf("root path = %v", root.Path())
	}
	if want := []string{"a", "b"}; !reflect.DeepEqual(b.Path(), want) {
		t.Errorf("path = %v, want %v", b.Path(), want)
	}

	// a sibling must not share the parent's path slice
	c, _ := a.Sub("c")
	if want := []string{"a", "b"}; !reflect.DeepEqual(b.Path(), want) {
		t.Errorf("path of b changed to %v after creating %v", b.Path(), c.Path())
	}
}

func TestInvalidSubNames(t *testing.T) {
	root := newRoot(t)
	for _, name := range []string{"", "/", "..", "a\x00b", "a\x01"} {
		if _, err := root.Sub(name); !errors.Is(err, store.ErrInvalidName) {
			t.Errorf("Sub(%q): expected ErrInvalidName, got %v", name, err)
		}
	}
}

func TestRanges(t *testing.T) {
	root := newRoot(t)
	sub, _ := root.Sub("s")
	for i := 0; i < 10; i++ {
		fill(t, root, fmt.Sprintf("%03d", i))
	}
	fill(t, sub, "000", "005")

	r := store.KeyRange{}
	tests := []struct {
		name    string
		r       store.KeyRange
		reverse bool
		want    []string
	}{
		{"gte lte", r.WithLower("003", false).WithUpper("006", true), false, []string{"003", "004", "005", "006"}},
		{"gt lt", r.WithLower("003", true).WithUpper("006", false), false, []string{"004", "005"}},
		{"reverse", r.WithLower("007", false), true, []string{"009", "008", "007"}},
		{"upper beyond store", r.WithLower("008", false).WithUpper("\xff", true), false, []string{"008", "009"}},
		{"empty", r.WithLower("005", false).WithUpper("004", true), false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := keysOf(t, root, tt.r, tt.reverse); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("keys = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClear(t *testing.T) {
	root := newRoot(t)
	sub, _ := root.Sub("s")
	fill(t, root, "a", "b", "c", "d")
	fill(t, sub, "a", "b")

	r := store.KeyRange{}
	if err := root.Clear(r.WithLower("b", false).WithUpper("c", true)); err != nil {
		t.Fatal(err)
	}
	if got, want := keysOf(t, root, r, false), []string{"a", "d"}; !reflect.DeepEqual(got, want) {
		t.Errorf("after ranged clear: %v, want %v", got, want)
	}

	if err := sub.Clear(r); err != nil {
		t.Fatal(err)
	}
	if got := keysOf(t, sub, r, false); len(got) != 0 {
		t.Errorf("sub-store not cleared: %v", got)
	}
	if got, want := keysOf(t, root, r, false), []string{"a", "d"}; !reflect.DeepEqual(got, want) {
		t.Errorf("clearing the sub-store touched the root: %v", got)
	}
}

func TestBatch(t *testing.T) {
	root := newRoot(t)
	sub, _ := root.Sub("s")
	fill(t, root, "k")
	fill(t, sub, "k")

	batch := sub.NewBatch()
	defer batch.Close()
	if err := batch.Delete("k"); err != nil {
		t.Fatal(err)
	}
	if err := batch.Commit(); err != nil {
		t.Fatal(err)
	}

	if _, ok, _ := sub.Get("k"); ok {
		t.Errorf("batch delete did not remove sub-store key")
	}
	if _, ok, _ := root.Get("k"); !ok {
		t.Errorf("batch delete removed root key")
	}
}
