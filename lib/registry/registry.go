package registry

import (
	"encoding/json"
	"github.com/ValentinKolb/netlevel/lib/db"
	"github.com/ValentinKolb/netlevel/lib/store"
	"github.com/ValentinKolb/netlevel/lib/store/lstore"
	"github.com/ValentinKolb/netlevel/lib/util"
	"github.com/VictoriaMetrics/metrics"
	"github.com/cockroachdb/errors"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

var Logger = logger.GetLogger("registry")

// MetaFileName is the name of the base metadata file inside the data directory
const MetaFileName = ".bases"

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

// Session identifies the holder of a base reference
type Session struct {
	ID   string
	User string
}

// AcquireOptions controls how a base that is not open yet is opened
type AcquireOptions struct {
	// Create asks for the base to be created if it does not exist
	Create bool
	// MayCreate is the caller's create permission
	MayCreate bool
}

// Meta is the persisted metadata of a base. Counters are cumulative over
// all times the base was open.
type Meta struct {
	Created time.Time `json:"created"`
	Creator string    `json:"creator,omitempty"`
	Gets    int64     `json:"gets"`
	Puts    int64     `json:"puts"`
	Dels    int64     `json:"dels"`
	Iter    int64     `json:"iter"`
}

// Stat is the state of an open base as reported by the stat command
type Stat struct {
	Name     string          `json:"name"`
	Sessions []string        `json:"uids"`
	Users    []string        `json:"users"`
	Opened   time.Time       `json:"opened"`
	Created  time.Time       `json:"created"`
	Creator  string          `json:"creator,omitempty"`
	Gets     int64           `json:"gets"`
	Puts     int64           `json:"puts"`
	Dels     int64           `json:"dels"`
	Iter     int64           `json:"iter"`
	Options  db.DatabaseInfo `json:"options"`
}

// Totals are the process-wide counters since the server started
type Totals struct {
	Gets uint64 `json:"gets"`
	Puts uint64 `json:"puts"`
	Dels uint64 `json:"dels"`
	Iter uint64 `json:"iter"`
}

// --------------------------------------------------------------------------
// Registry
// --------------------------------------------------------------------------

// Registry owns the open bases of one data directory. Every open base has
// exactly one entry, shared by all sessions using it. The database is
// closed when the last session releases the base.
type Registry struct {
	dir     string
	factory store.DBFactory
	entries *xsync.MapOf[string, *Entry]

	metaMu sync.Mutex
	meta   map[string]Meta

	set                    *metrics.Set
	gets, puts, dels, iter *metrics.Counter
}

// New creates the registry for dir and loads the base metadata. The
// factory opens the database of one base directory.
func New(dir string, factory store.DBFactory) (*Registry, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create data directory %s", dir)
	}

	set := metrics.NewSet()
	r := &Registry{
		dir:     dir,
		factory: factory,
		entries: xsync.NewMapOf[string, *Entry](),
		meta:    make(map[string]Meta),
		set:     set,
		gets:    set.NewCounter("netlevel_gets_total"),
		puts:    set.NewCounter("netlevel_puts_total"),
		dels:    set.NewCounter("netlevel_dels_total"),
		iter:    set.NewCounter("netlevel_iterations_total"),
	}
	set.NewGauge("netlevel_open_bases", func() float64 {
		return float64(r.entries.Size())
	})

	if err := r.loadMeta(); err != nil {
		return nil, err
	}
	return r, nil
}

// Acquire attaches the session to the base and returns its entry. A base
// that is not open is opened if its directory exists, or created if the
// caller may create bases and asked for it.
func (r *Registry) Acquire(name string, s Session, opts AcquireOptions) (*Entry, error) {
	if !store.ValidBaseName(name) {
		return nil, errors.Wrapf(store.ErrInvalidName, "base %q", name)
	}

	var openErr error
	entry, ok := r.entries.Compute(name, func(e *Entry, loaded bool) (*Entry, bool) {
		if loaded {
			e.attach(s)
			return e, false
		}

		e, openErr = r.open(name, s, opts)
		if openErr != nil {
			return nil, true
		}
		e.attach(s)
		return e, false
	})
	if openErr != nil {
		return nil, openErr
	}
	if !ok {
		return nil, errors.Wrapf(store.ErrNoSuchBase, "base %q", name)
	}
	return entry, nil
}

// Release detaches the session from the base. The last release closes the
// database and persists the counters. Releasing a base the session does
// not hold is a no-op.
func (r *Registry) Release(name string, sessionID string) error {
	var closeErr error
	r.entries.Compute(name, func(e *Entry, loaded bool) (*Entry, bool) {
		if !loaded {
			return nil, true
		}
		if e.detach(sessionID) > 0 {
			return e, false
		}
		closeErr = r.close(e)
		return nil, true
	})
	return closeErr
}

// Drop deletes a base that no session uses, including its metadata
func (r *Registry) Drop(name string) error {
	if !store.ValidBaseName(name) {
		return errors.Wrapf(store.ErrInvalidName, "base %q", name)
	}

	var dropErr error
	r.entries.Compute(name, func(e *Entry, loaded bool) (*Entry, bool) {
		if loaded {
			dropErr = errors.Wrapf(store.ErrInUse, "base %q", name)
			return e, false
		}

		path := r.path(name)
		if _, err := os.Stat(path); err != nil {
			dropErr = errors.Wrapf(store.ErrNoSuchBase, "base %q", name)
			return nil, true
		}
		if err := os.RemoveAll(path); err != nil {
			dropErr = errors.Wrapf(err, "failed to remove %s", path)
			return nil, true
		}
		dropErr = r.updateMeta(func(meta map[string]Meta) {
			delete(meta, name)
		})
		Logger.Infof("Dropped base %s", name)
		return nil, true
	})
	return dropErr
}

// Stat returns the state of an open base
func (r *Registry) Stat(name string) (Stat, bool) {
	e, ok := r.entries.Load(name)
	if !ok {
		return Stat{}, false
	}
	return e.stat(), true
}

// List returns the names of all bases in the data directory
func (r *Registry) List() ([]string, error) {
	files, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", r.dir)
	}

	names := make([]string, 0, len(files))
	for _, f := range files {
		if f.IsDir() && store.ValidBaseName(f.Name()) {
			names = append(names, f.Name())
		}
	}
	return names, nil
}

// Open returns the names of the open bases
func (r *Registry) Open() []string {
	names := make([]string, 0, r.entries.Size())
	r.entries.Range(func(name string, _ *Entry) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}

// CloseAll closes every open base regardless of its sessions
func (r *Registry) CloseAll() error {
	var errs error
	for _, name := range r.Open() {
		r.entries.Compute(name, func(e *Entry, loaded bool) (*Entry, bool) {
			if loaded {
				errs = errors.CombineErrors(errs, r.close(e))
			}
			return nil, true
		})
	}
	return errs
}

// Totals returns the process-wide counters
func (r *Registry) Totals() Totals {
	return Totals{
		Gets: r.gets.Get(),
		Puts: r.puts.Get(),
		Dels: r.dels.Get(),
		Iter: r.iter.Get(),
	}
}

// Meta returns the persisted metadata of a base
func (r *Registry) Meta(name string) (Meta, bool) {
	r.metaMu.Lock()
	defer r.metaMu.Unlock()
	m, ok := r.meta[name]
	return m, ok
}

// WritePrometheus writes the process-wide counters in the Prometheus text format
func (r *Registry) WritePrometheus(w io.Writer) {
	r.set.WritePrometheus(w)
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func (r *Registry) path(name string) string {
	return filepath.Join(r.dir, name)
}

// open opens (or creates) the database of a base. Called inside Compute.
func (r *Registry) open(name string, s Session, opts AcquireOptions) (*Entry, error) {
	path := r.path(name)
	_, err := os.Stat(path)
	exists := err == nil

	if !exists {
		switch {
		case !opts.MayCreate:
			return nil, errors.Wrapf(store.ErrNotAuthorized, "create base %q", name)
		case !opts.Create:
			return nil, errors.Wrapf(store.ErrMissingCreate, "base %q", name)
		}
	}

	database, err := r.factory(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open base %q", name)
	}

	m, known := r.Meta(name)
	if !exists || !known {
		m = Meta{Created: time.Now(), Creator: s.User}
		if err := r.updateMeta(func(meta map[string]Meta) { meta[name] = m }); err != nil {
			Logger.Warningf("Failed to persist metadata of base %s: %v", name, err)
		}
	}

	if exists {
		Logger.Infof("Opened base %s for %s", name, s.User)
	} else {
		Logger.Infof("Created base %s for %s", name, s.User)
	}
	return newEntry(name, database, lstore.NewLocalStore(database, name), m, r), nil
}

// close closes the database of an entry and persists its counters.
// Called inside Compute.
func (r *Registry) close(e *Entry) error {
	gets, puts, dels, iter := e.counts()
	metaErr := r.updateMeta(func(meta map[string]Meta) {
		m := meta[e.name]
		m.Gets += gets
		m.Puts += puts
		m.Dels += dels
		m.Iter += iter
		meta[e.name] = m
	})

	err := e.db.Close()
	Logger.Infof("Closed base %s", e.name)
	if err != nil {
		err = errors.Wrapf(err, "failed to close base %q", e.name)
	}
	return errors.CombineErrors(err, metaErr)
}

func (r *Registry) loadMeta() error {
	data, err := os.ReadFile(filepath.Join(r.dir, MetaFileName))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to read base metadata")
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, &r.meta); err != nil {
		return errors.Wrap(err, "failed to parse base metadata")
	}
	return nil
}

// updateMeta applies fn to the metadata and rewrites the file
func (r *Registry) updateMeta(fn func(meta map[string]Meta)) error {
	r.metaMu.Lock()
	defer r.metaMu.Unlock()

	fn(r.meta)
	data, err := json.MarshalIndent(r.meta, "", "    ")
	if err != nil {
		return errors.Wrap(err, "failed to encode base metadata")
	}
	return util.WriteFileAtomic(filepath.Join(r.dir, MetaFileName), data, 0o644)
}
