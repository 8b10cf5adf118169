package rangeiter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/ValentinKolb/netlevel/lib/db/engines/pebble"
	"github.com/ValentinKolb/netlevel/lib/store"
	"github.com/ValentinKolb/netlevel/lib/store/lstore"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"
)

const unlimited = math.MaxInt64

func newTestStore(t *testing.T, keys ...string) store.IStore {
	t.Helper()
	database, err := pebble.NewPebbleDB(t.TempDir(), &pebble.DBOptions{InMemory: true, NoSync: true})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = database.Close() })

	s := lstore.NewLocalStore(database, "test")
	for _, k := range keys {
		if err := s.Set(k, []byte(`"v-`+k+`"`)); err != nil {
			t.Fatal(err)
		}
	}
	return s
}

func numbered(n int) []string {
	keys := make([]string, n)
	for i := range keys {
		keys[i] = fmt.Sprintf("%03d", i)
	}
	return keys
}

func query(t *testing.T, opt string) Query {
	t.Helper()
	q, err := ParseQuery(json.RawMessage(opt))
	if err != nil {
		t.Fatalf("ParseQuery(%s) failed: %v", opt, err)
	}
	return q
}

func collect(t *testing.T, s store.IStore, q Query, opts Options) ([]Row, Result) {
	t.Helper()
	var rows []Row
	res, err := Run(context.Background(), s, q, opts, func(row Row) error {
		rows = append(rows, row)
		return nil
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return rows, res
}

func keysOf(rows []Row) []string {
	keys := make([]string, 0, len(rows))
	for _, r := range rows {
		keys = append(keys, r.Key)
	}
	return keys
}

// inRange reports whether key lies inside r
func inRange(r store.KeyRange, key string) bool {
	if r.HasLower {
		if c := strings.Compare(key, r.Lower); c < 0 || (c == 0 && r.LowerExclusive) {
			return false
		}
	}
	if r.HasUpper {
		if c := strings.Compare(key, r.Upper); c > 0 || (c == 0 && !r.UpperInclusive) {
			return false
		}
	}
	return true
}

func TestParseQuery(t *testing.T) {
	for _, in := range []string{"", "null", "true", "{}"} {
		q, err := ParseQuery(json.RawMessage(in))
		if err != nil {
			t.Errorf("ParseQuery(%q) failed: %v", in, err)
		}
		if !q.WantValues() || q.Prefix() != "" {
			t.Errorf("ParseQuery(%q) = %+v, want the empty query", in, q)
		}
	}
	if _, err := ParseQuery(json.RawMessage(`{"gt":5}`)); !errors.Is(err, ErrInvalidQuery) {
		t.Errorf("expected ErrInvalidQuery, got %v", err)
	}
}

func TestKeyRange(t *testing.T) {
	tests := []struct {
		name string
		opt  string
		in   []string
		out  []string
	}{
		{"gte lte", `{"gte":"b","lte":"d"}`, []string{"b", "c", "d"}, []string{"a", "e"}},
		{"gt lt", `{"gt":"b","lt":"d"}`, []string{"c"}, []string{"b", "d"}},
		{"tighter lower wins", `{"gte":"a","gt":"c"}`, []string{"d"}, []string{"b", "c"}},
		{"tighter upper wins", `{"lte":"x","lt":"c"}`, []string{"b"}, []string{"c", "d"}},
		{"prefix", `{"pre":"ab"}`, []string{"ab", "abc", "ab\xff"}, []string{"a", "ac", "b"}},
		{"prefix and bound", `{"pre":"ab","gt":"abc"}`, []string{"abd"}, []string{"abc", "ab"}},
		{"non-ascii prefix", `{"pre":"ÿ"}`, []string{"ÿ", "ÿz"}, []string{"a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := query(t, tt.opt).KeyRange()
			for _, k := range tt.in {
				if !inRange(r, k) {
					t.Errorf("range %+v does not contain %q", r, k)
				}
			}
			for _, k := range tt.out {
				if inRange(r, k) {
					t.Errorf("range %+v contains %q", r, k)
				}
			}
		})
	}
}

func TestEffectiveLimit(t *testing.T) {
	tests := []struct {
		limit, cap, want int64
	}{
		{0, unlimited, unlimited},
		{3, unlimited, 3},
		{0, 20, 20},
		{50, 20, 20},
		{5, 20, 5},
		{5, 0, 0},
	}
	for _, tt := range tests {
		q := Query{Limit: tt.limit}
		if got := q.EffectiveLimit(tt.cap); got != tt.want {
			t.Errorf("limit %d cap %d: got %d, want %d", tt.limit, tt.cap, got, tt.want)
		}
	}
}

func TestPagination(t *testing.T) {
	s := newTestStore(t, numbered(10)...)

	first := query(t, `{"limit":3}`)
	cursor := NewCursor(first)
	rows, res := collect(t, s, first, Options{Cap: unlimited})
	if got := keysOf(rows); !reflect.DeepEqual(got, []string{"000", "001", "002"}) {
		t.Fatalf("first page = %v", got)
	}
	if res.LastKey != "002" {
		t.Errorf("last key = %q", res.LastKey)
	}
	cursor.Observe(res.LastKey)

	next, ok := cursor.Next()
	if !ok {
		t.Fatal("cursor has no next page")
	}
	rows, _ = collect(t, s, next, Options{Cap: unlimited})
	if got := keysOf(rows); !reflect.DeepEqual(got, []string{"003", "004", "005"}) {
		t.Errorf("second page = %v", got)
	}
	if _, ok := cursor.Next(); ok {
		t.Error("cursor continued without an observed key")
	}

	rows, _ = collect(t, s, query(t, `{"gte":"003","lte":"006"}`), Options{Cap: unlimited})
	if got := keysOf(rows); !reflect.DeepEqual(got, []string{"003", "004", "005", "006"}) {
		t.Errorf("bounded list = %v", got)
	}
}

func TestReversePagination(t *testing.T) {
	s := newTestStore(t, numbered(10)...)

	first := query(t, `{"reverse":true,"limit":2,"lte":"005"}`)
	cursor := NewCursor(first)
	rows, res := collect(t, s, first, Options{Cap: unlimited})
	if got := keysOf(rows); !reflect.DeepEqual(got, []string{"005", "004"}) {
		t.Fatalf("first page = %v", got)
	}
	cursor.Observe(res.LastKey)
	next, _ := cursor.Next()
	rows, _ = collect(t, s, next, Options{Cap: unlimited})
	if got := keysOf(rows); !reflect.DeepEqual(got, []string{"003", "002"}) {
		t.Errorf("second page = %v", got)
	}
}

func TestPrefix(t *testing.T) {
	s := newTestStore(t, "a", "ab", "ab1", "ab2", "abz", "ac", "b")

	rows, _ := collect(t, s, query(t, `{"pre":"ab"}`), Options{Cap: unlimited})
	if got := keysOf(rows); !reflect.DeepEqual(got, []string{"ab", "ab1", "ab2", "abz"}) {
		t.Errorf("prefix list = %v", got)
	}

	rows, _ = collect(t, s, query(t, `{"pre":"ab","reverse":true}`), Options{Cap: unlimited})
	if got := keysOf(rows); !reflect.DeepEqual(got, []string{"abz", "ab2", "ab1", "ab"}) {
		t.Errorf("reverse prefix list = %v", got)
	}

	// continuing a prefix list keeps the prefix
	cursor := NewCursor(query(t, `{"pre":"ab","limit":2}`))
	cursor.Observe("ab1")
	next, _ := cursor.Next()
	rows, _ = collect(t, s, next, Options{Cap: unlimited})
	if got := keysOf(rows); !reflect.DeepEqual(got, []string{"ab2", "abz"}) {
		t.Errorf("continued prefix list = %v", got)
	}
}

func TestPermissionCap(t *testing.T) {
	s := newTestStore(t, numbered(30)...)

	for _, opt := range []string{`{}`, `{"limit":100}`} {
		rows, _ := collect(t, s, query(t, opt), Options{Cap: 20})
		if len(rows) != 20 {
			t.Errorf("%s with cap 20 returned %d rows", opt, len(rows))
		}
	}
	rows, _ := collect(t, s, query(t, `{"limit":4}`), Options{Cap: 20})
	if len(rows) != 4 {
		t.Errorf("limit 4 with cap 20 returned %d rows", len(rows))
	}
	rows, _ = collect(t, s, query(t, `{}`), Options{Cap: 0})
	if len(rows) != 0 {
		t.Errorf("cap 0 returned %d rows", len(rows))
	}
}

func TestValuesAndSkip(t *testing.T) {
	s := newTestStore(t, numbered(10)...)

	rows, _ := collect(t, s, query(t, `{"limit":1}`), Options{Cap: unlimited})
	if string(rows[0].Value) != `"v-000"` {
		t.Errorf("value = %s", rows[0].Value)
	}

	rows, _ = collect(t, s, query(t, `{"values":false}`), Options{Cap: unlimited})
	out, _ := json.Marshal(rows[0])
	if string(out) != `{"key":"000"}` {
		t.Errorf("key-only row = %s", out)
	}

	rows, _ = collect(t, s, query(t, `{"skip":3}`), Options{Cap: unlimited})
	if got := keysOf(rows); !reflect.DeepEqual(got, []string{"000", "003", "006", "009"}) {
		t.Errorf("skip 3 = %v", got)
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t, numbered(6)...)

	rows, res := collect(t, s, query(t, `{"del":true,"limit":4,"values":false}`), Options{Cap: unlimited})
	if len(rows) != 4 || res.Deleted != 4 {
		t.Fatalf("rows = %d, deleted = %d", len(rows), res.Deleted)
	}
	rows, _ = collect(t, s, Query{}, Options{Cap: unlimited})
	if got := keysOf(rows); !reflect.DeepEqual(got, []string{"004", "005"}) {
		t.Errorf("remaining keys = %v", got)
	}
}

func TestDeleteCommitsOnError(t *testing.T) {
	s := newTestStore(t, numbered(6)...)

	stop := errors.New("connection lost")
	n := 0
	res, err := Run(context.Background(), s, query(t, `{"del":true}`), Options{Cap: unlimited}, func(row Row) error {
		n++
		if n == 3 {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) {
		t.Fatalf("expected the emit error, got %v", err)
	}
	if res.Deleted != 2 {
		t.Errorf("deleted = %d, want 2", res.Deleted)
	}

	rows, _ := collect(t, s, Query{}, Options{Cap: unlimited})
	if got := keysOf(rows); !reflect.DeepEqual(got, []string{"002", "003", "004", "005"}) {
		t.Errorf("remaining keys = %v", got)
	}
}

func TestFlowControl(t *testing.T) {
	s := newTestStore(t, numbered(20)...)
	if none := NewFlowControl(0); none != nil || none.Window() != 0 || none.Outstanding() != 0 {
		t.Fatal("flow control without an ack batch size should be disabled")
	}

	flow := NewFlowControl(2)
	if flow.Window() != 4 {
		t.Fatalf("window = %d, want 4", flow.Window())
	}

	emitted := make(chan string, 20)
	done := make(chan error, 1)
	go func() {
		_, err := Run(context.Background(), s, Query{}, Options{Cap: unlimited, Flow: flow}, func(row Row) error {
			emitted <- row.Key
			return nil
		})
		done <- err
	}()

	waitFor := func(n int) {
		t.Helper()
		deadline := time.After(5 * time.Second)
		for len(emitted) < n {
			select {
			case <-deadline:
				t.Fatalf("only %d rows emitted, want %d", len(emitted), n)
			case <-time.After(time.Millisecond):
			}
		}
	}

	// the producer stops after the window
	waitFor(4)
	time.Sleep(50 * time.Millisecond)
	if len(emitted) != 4 {
		t.Fatalf("producer ran %d rows ahead, window is 4", len(emitted))
	}

	flow.Ack(2)
	waitFor(6)
	time.Sleep(50 * time.Millisecond)
	if len(emitted) != 6 {
		t.Fatalf("producer emitted %d rows after ack, want 6", len(emitted))
	}

	// acknowledging more than outstanding is harmless
	deadline := time.After(5 * time.Second)
	for finished := false; !finished; {
		flow.Ack(100)
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			finished = true
		case <-deadline:
			t.Fatal("producer did not finish")
		case <-time.After(time.Millisecond):
		}
	}
	if flow.Outstanding() > flow.Window() {
		t.Errorf("outstanding = %d exceeds the window", flow.Outstanding())
	}
	if len(emitted) != 20 {
		t.Errorf("emitted %d rows, want 20", len(emitted))
	}
}

func TestCancel(t *testing.T) {
	s := newTestStore(t, numbered(10)...)
	flow := NewFlowControl(1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := Run(ctx, s, Query{}, Options{Cap: unlimited, Flow: flow}, func(Row) error { return nil })
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("blocked producer did not stop on cancel")
	}

	if NewFlowControl(0) != nil {
		t.Error("flow control without ack batch size is not nil")
	}
}

func TestJSONValue(t *testing.T) {
	if got := string(JSONValue([]byte(`{"a":1}`))); got != `{"a":1}` {
		t.Errorf("JSON value changed: %s", got)
	}
	if got := string(JSONValue([]byte("raw bytes"))); got != `"raw bytes"` {
		t.Errorf("non-JSON value = %s", got)
	}
}
