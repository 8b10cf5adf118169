package registry

import (
	"github.com/ValentinKolb/netlevel/lib/db"
	"github.com/ValentinKolb/netlevel/lib/store"
	gometrics "github.com/rcrowley/go-metrics"
	"sort"
	"sync"
	"time"
)

// Entry is an open base. Sessions never close the database themselves,
// they release their reference through the registry.
type Entry struct {
	name   string
	db     db.KVDB
	root   store.IStore
	reg    *Registry
	opened time.Time
	meta   Meta

	mu       sync.Mutex
	sessions map[string]string // session id -> user name

	gets, puts, dels, iter gometrics.Counter
}

func newEntry(name string, database db.KVDB, root store.IStore, meta Meta, reg *Registry) *Entry {
	return &Entry{
		name:     name,
		db:       database,
		root:     root,
		reg:      reg,
		opened:   time.Now(),
		meta:     meta,
		sessions: make(map[string]string),
		gets:     gometrics.NewCounter(),
		puts:     gometrics.NewCounter(),
		dels:     gometrics.NewCounter(),
		iter:     gometrics.NewCounter(),
	}
}

// Name returns the base name
func (e *Entry) Name() string {
	return e.name
}

// Root returns the root store of the base
func (e *Entry) Root() store.IStore {
	return e.root
}

// --------------------------------------------------------------------------
// Counters
// --------------------------------------------------------------------------

// CountGet records one get
func (e *Entry) CountGet() {
	e.gets.Inc(1)
	e.reg.gets.Inc()
}

// CountPut records one put
func (e *Entry) CountPut() {
	e.puts.Inc(1)
	e.reg.puts.Inc()
}

// CountDel records n deleted keys
func (e *Entry) CountDel(n int) {
	if n <= 0 {
		return
	}
	e.dels.Inc(int64(n))
	e.reg.dels.Add(n)
}

// CountIter records one iteration
func (e *Entry) CountIter() {
	e.iter.Inc(1)
	e.reg.iter.Inc()
}

func (e *Entry) counts() (gets, puts, dels, iter int64) {
	return e.gets.Count(), e.puts.Count(), e.dels.Count(), e.iter.Count()
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func (e *Entry) attach(s Session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sessions[s.ID] = s.User
}

// detach removes the session and returns the number of remaining sessions
func (e *Entry) detach(id string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.sessions, id)
	return len(e.sessions)
}

func (e *Entry) stat() Stat {
	e.mu.Lock()
	ids := make([]string, 0, len(e.sessions))
	seen := make(map[string]bool, len(e.sessions))
	var names []string
	for id, user := range e.sessions {
		ids = append(ids, id)
		if !seen[user] {
			seen[user] = true
			names = append(names, user)
		}
	}
	e.mu.Unlock()

	sort.Strings(ids)
	sort.Strings(names)

	// counters of earlier openings plus the running ones
	gets, puts, dels, iter := e.counts()
	info, err := e.root.GetDBInfo()
	if err != nil {
		Logger.Warningf("Failed to read engine info of base %s: %v", e.name, err)
	}

	return Stat{
		Name:     e.name,
		Sessions: ids,
		Users:    names,
		Opened:   e.opened,
		Created:  e.meta.Created,
		Creator:  e.meta.Creator,
		Gets:     e.meta.Gets + gets,
		Puts:     e.meta.Puts + puts,
		Dels:     e.meta.Dels + dels,
		Iter:     e.meta.Iter + iter,
		Options:  info,
	}
}
