package registry

import (
	"bytes"
	"errors"
	"github.com/ValentinKolb/netlevel/lib/db"
	"github.com/ValentinKolb/netlevel/lib/db/engines/pebble"
	"github.com/ValentinKolb/netlevel/lib/store"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
)

// countingFactory opens pebble databases and counts the open handles
type countingFactory struct {
	open atomic.Int64
}

type countedDB struct {
	db.KVDB
	f *countingFactory
}

func (c *countedDB) Close() error {
	c.f.open.Add(-1)
	return c.KVDB.Close()
}

func (f *countingFactory) factory(dir string) (db.KVDB, error) {
	database, err := pebble.NewPebbleDB(dir, &pebble.DBOptions{NoSync: true})
	if err != nil {
		return nil, err
	}
	f.open.Add(1)
	return &countedDB{KVDB: database, f: f}, nil
}

func newTestRegistry(t *testing.T, dir string) (*Registry, *countingFactory) {
	t.Helper()
	f := &countingFactory{}
	r, err := New(dir, f.factory)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = r.CloseAll() })
	return r, f
}

var (
	alice   = Session{ID: "s1", User: "alice"}
	bob     = Session{ID: "s2", User: "bob"}
	creator = AcquireOptions{Create: true, MayCreate: true}
)

func TestCreateGate(t *testing.T) {
	r, _ := newTestRegistry(t, t.TempDir())

	tests := []struct {
		name string
		opts AcquireOptions
		want error
	}{
		{"no permission", AcquireOptions{Create: true}, store.ErrNotAuthorized},
		{"permission without intent", AcquireOptions{MayCreate: true}, store.ErrMissingCreate},
		{"neither", AcquireOptions{}, store.ErrNotAuthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := r.Acquire("fresh", alice, tt.opts); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
	if len(r.Open()) != 0 {
		t.Errorf("failed acquires left open bases: %v", r.Open())
	}

	e, err := r.Acquire("fresh", alice, creator)
	if err != nil {
		t.Fatalf("Acquire with create failed: %v", err)
	}
	if e.Name() != "fresh" {
		t.Errorf("entry name = %q", e.Name())
	}

	// an existing base needs no create permission
	if err := r.Release("fresh", alice.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Acquire("fresh", bob, AcquireOptions{}); err != nil {
		t.Errorf("Acquire of existing base failed: %v", err)
	}
}

func TestInvalidNames(t *testing.T) {
	r, _ := newTestRegistry(t, t.TempDir())
	for _, name := range []string{"", "a.b", "../x", "a/b", `a\b`, ".users"} {
		if _, err := r.Acquire(name, alice, creator); !errors.Is(err, store.ErrInvalidName) {
			t.Errorf("Acquire(%q): expected ErrInvalidName, got %v", name, err)
		}
		if err := r.Drop(name); !errors.Is(err, store.ErrInvalidName) {
			t.Errorf("Drop(%q): expected ErrInvalidName, got %v", name, err)
		}
	}
}

func TestReferenceCounting(t *testing.T) {
	r, f := newTestRegistry(t, t.TempDir())

	e1, err := r.Acquire("shared", alice, creator)
	if err != nil {
		t.Fatal(err)
	}
	e2, err := r.Acquire("shared", bob, AcquireOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if e1 != e2 {
		t.Fatal("sessions got different entries for the same base")
	}
	if sessions := e1.stat().Sessions; f.open.Load() != 1 || len(sessions) != 2 {
		t.Fatalf("open handles = %d, sessions = %v, want 1 and 2", f.open.Load(), sessions)
	}

	if err := r.Release("shared", alice.ID); err != nil {
		t.Fatal(err)
	}
	if f.open.Load() != 1 {
		t.Fatal("handle closed while a session still uses it")
	}
	if err := e2.Root().Set("k", []byte("v")); err != nil {
		t.Errorf("write after the other session left failed: %v", err)
	}

	// releasing twice does not drop the remaining reference
	if err := r.Release("shared", alice.ID); err != nil {
		t.Fatal(err)
	}
	if f.open.Load() != 1 {
		t.Fatal("double release closed the handle")
	}

	if err := r.Release("shared", bob.ID); err != nil {
		t.Fatal(err)
	}
	if f.open.Load() != 0 {
		t.Errorf("handle still open after the last release")
	}
	if len(r.Open()) != 0 {
		t.Errorf("entry left after the last release: %v", r.Open())
	}
}

func TestDrop(t *testing.T) {
	dir := t.TempDir()
	r, _ := newTestRegistry(t, dir)

	if err := r.Drop("missing"); !errors.Is(err, store.ErrNoSuchBase) {
		t.Errorf("expected ErrNoSuchBase, got %v", err)
	}

	if _, err := r.Acquire("doomed", alice, creator); err != nil {
		t.Fatal(err)
	}
	if err := r.Drop("doomed"); !errors.Is(err, store.ErrInUse) {
		t.Errorf("expected ErrInUse, got %v", err)
	}

	if err := r.Release("doomed", alice.ID); err != nil {
		t.Fatal(err)
	}
	if err := r.Drop("doomed"); err != nil {
		t.Fatalf("Drop failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "doomed")); !os.IsNotExist(err) {
		t.Errorf("base directory still exists: %v", err)
	}
	if _, ok := r.Meta("doomed"); ok {
		t.Error("metadata of dropped base still present")
	}
}

func TestListAndOpen(t *testing.T) {
	dir := t.TempDir()
	r, _ := newTestRegistry(t, dir)

	for _, name := range []string{"b", "a"} {
		if _, err := r.Acquire(name, alice, creator); err != nil {
			t.Fatal(err)
		}
	}
	if err := r.Release("b", alice.ID); err != nil {
		t.Fatal(err)
	}
	// hidden files and dotted directories are no bases
	if err := os.Mkdir(filepath.Join(dir, "x.y"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "plainfile"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	list, err := r.List()
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"a", "b"}; !reflect.DeepEqual(list, want) {
		t.Errorf("List() = %v, want %v", list, want)
	}
	if want := []string{"a"}; !reflect.DeepEqual(r.Open(), want) {
		t.Errorf("Open() = %v, want %v", r.Open(), want)
	}
}

func TestStatAndCounters(t *testing.T) {
	dir := t.TempDir()
	r, _ := newTestRegistry(t, dir)

	e, err := r.Acquire("counted", alice, creator)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Acquire("counted", bob, creator); err != nil {
		t.Fatal(err)
	}
	e.CountGet()
	e.CountPut()
	e.CountPut()
	e.CountDel(3)
	e.CountIter()

	st, ok := r.Stat("counted")
	if !ok {
		t.Fatal("Stat of open base failed")
	}
	if !reflect.DeepEqual(st.Users, []string{"alice", "bob"}) || len(st.Sessions) != 2 {
		t.Errorf("stat sessions = %v users = %v", st.Sessions, st.Users)
	}
	if st.Gets != 1 || st.Puts != 2 || st.Dels != 3 || st.Iter != 1 {
		t.Errorf("stat counters = %+v", st)
	}
	if st.Creator != "alice" || st.Created.IsZero() {
		t.Errorf("stat creation = %v by %q", st.Created, st.Creator)
	}
	if st.Options.DbType != db.ImplPebble {
		t.Errorf("stat engine = %q", st.Options.DbType)
	}
	if _, ok := r.Stat("other"); ok {
		t.Error("Stat of a closed base succeeded")
	}

	totals := r.Totals()
	if totals != (Totals{Gets: 1, Puts: 2, Dels: 3, Iter: 1}) {
		t.Errorf("totals = %+v", totals)
	}

	var buf bytes.Buffer
	r.WritePrometheus(&buf)
	if !strings.Contains(buf.String(), "netlevel_puts_total 2") {
		t.Errorf("prometheus output misses the put counter:\n%s", buf.String())
	}

	// counters are flushed into the metadata on the last release and
	// survive a restart
	_ = r.Release("counted", alice.ID)
	_ = r.Release("counted", bob.ID)

	reopened, _ := newTestRegistry(t, dir)
	m, ok := reopened.Meta("counted")
	if !ok {
		t.Fatal("metadata lost on restart")
	}
	if m.Gets != 1 || m.Puts != 2 || m.Dels != 3 || m.Iter != 1 || m.Creator != "alice" {
		t.Errorf("persisted metadata = %+v", m)
	}

	// the stat of the reopened base continues the persisted counters
	e, err = reopened.Acquire("counted", alice, AcquireOptions{})
	if err != nil {
		t.Fatal(err)
	}
	e.CountPut()
	st, ok = reopened.Stat("counted")
	if !ok {
		t.Fatal("Stat of reopened base failed")
	}
	if st.Gets != 1 || st.Puts != 3 || st.Dels != 3 || st.Iter != 1 {
		t.Errorf("stat counters after reopen = %+v", st)
	}
}

func TestCloseAll(t *testing.T) {
	r, f := newTestRegistry(t, t.TempDir())
	for _, name := range []string{"one", "two"} {
		if _, err := r.Acquire(name, alice, creator); err != nil {
			t.Fatal(err)
		}
	}
	if err := r.CloseAll(); err != nil {
		t.Fatalf("CloseAll failed: %v", err)
	}
	if f.open.Load() != 0 || len(r.Open()) != 0 {
		t.Errorf("open handles = %d, open bases = %v", f.open.Load(), r.Open())
	}
	// sessions releasing afterwards are no-ops
	if err := r.Release("one", alice.ID); err != nil {
		t.Errorf("Release after CloseAll failed: %v", err)
	}
}
