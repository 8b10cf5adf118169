package lstore

import (
	"bytes"
	"github.com/ValentinKolb/netlevel/lib/db"
	"github.com/ValentinKolb/netlevel/lib/store"
	"github.com/cockroachdb/errors"
)

// Namespace encoding. The root store owns the keys 0x00+key, the sub-store
// a/b owns 0x01 'a' 0x01 'b' 0x00+key. Every prefix ends with nsEnd, so the
// range of a store is [prefix, prefix[:len-1]+nsSeg) and never contains the
// keys of a child, whose prefix continues with nsSeg instead.
const (
	nsEnd byte = 0x00
	nsSeg byte = 0x01
)

type storeImpl struct {
	db     db.KVDB
	name   string
	path   []string
	prefix []byte
}

// NewLocalStore returns the root store of the base name backed by database.
func NewLocalStore(database db.KVDB, name string) store.IStore {
	return &storeImpl{
		db:     database,
		name:   name,
		prefix: []byte{nsEnd},
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Name() string {
	return s.name
}

func (s *storeImpl) Path() []string {
	return append([]string(nil), s.path...)
}

func (s *storeImpl) Set(key string, value []byte) error {
	if !s.db.SupportsFeature(db.FeatureSet) {
		return errors.Wrap(store.ErrUnsupportedOperation, "set")
	}
	return s.db.Set(s.key(key), value)
}

func (s *storeImpl) Delete(key string) error {
	if !s.db.SupportsFeature(db.FeatureDelete) {
		return errors.Wrap(store.ErrUnsupportedOperation, "delete")
	}
	return s.db.Delete(s.key(key))
}

func (s *storeImpl) Get(key string) ([]byte, bool, error) {
	if !s.db.SupportsFeature(db.FeatureGet) {
		return nil, false, errors.Wrap(store.ErrUnsupportedOperation, "get")
	}
	return s.db.Get(s.key(key))
}

func (s *storeImpl) Clear(r store.KeyRange) error {
	if !s.db.SupportsFeature(db.FeatureDeleteRange) {
		return errors.Wrap(store.ErrUnsupportedOperation, "clear")
	}
	lo, hi := s.bounds(r)
	if bytes.Compare(lo, hi) >= 0 {
		return nil
	}
	return s.db.DeleteRange(lo, hi)
}

func (s *storeImpl) NewIterator(r store.KeyRange, reverse bool) (db.Iterator, error) {
	if !s.db.SupportsFeature(db.FeatureIterate) {
		return nil, errors.Wrap(store.ErrUnsupportedOperation, "iterate")
	}
	if reverse && !s.db.SupportsFeature(db.FeatureReverse) {
		return nil, errors.Wrap(store.ErrUnsupportedOperation, "reverse iterate")
	}

	lo, hi := s.bounds(r)
	if bytes.Compare(lo, hi) >= 0 {
		return emptyIterator{}, nil
	}

	it, err := s.db.NewIterator(db.IterOptions{LowerBound: lo, UpperBound: hi, Reverse: reverse})
	if err != nil {
		return nil, err
	}
	return &nsIterator{Iterator: it, strip: len(s.prefix)}, nil
}

func (s *storeImpl) NewBatch() store.Batch {
	return &nsBatch{Batch: s.db.NewBatch(), parent: s}
}

func (s *storeImpl) Sub(name string) (store.IStore, error) {
	if !store.ValidSubName(name) {
		return nil, errors.Wrapf(store.ErrInvalidName, "sub-store %q", name)
	}

	prefix := make([]byte, 0, len(s.prefix)+len(name)+1)
	prefix = append(prefix, s.prefix[:len(s.prefix)-1]...)
	prefix = append(prefix, nsSeg)
	prefix = append(prefix, name...)
	prefix = append(prefix, nsEnd)

	path := make([]string, len(s.path), len(s.path)+1)
	copy(path, s.path)

	return &storeImpl{
		db:     s.db,
		name:   s.name,
		path:   append(path, name),
		prefix: prefix,
	}, nil
}

func (s *storeImpl) GetDBInfo() (db.DatabaseInfo, error) {
	return s.db.GetInfo(), nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// key returns the database key of key in this store
func (s *storeImpl) key(key string) []byte {
	b := make([]byte, 0, len(s.prefix)+len(key))
	b = append(b, s.prefix...)
	return append(b, key...)
}

// bounds translates r into database bounds [lo, hi) clamped to the store
func (s *storeImpl) bounds(r store.KeyRange) (lo, hi []byte) {
	lo = s.prefix
	hi = append(append([]byte(nil), s.prefix[:len(s.prefix)-1]...), nsSeg)

	if r.HasLower {
		lo = s.key(r.Lower)
		if r.LowerExclusive {
			// the smallest key greater than Lower
			lo = append(lo, 0x00)
		}
	}
	if r.HasUpper {
		upper := s.key(r.Upper)
		if r.UpperInclusive {
			upper = append(upper, 0x00)
		}
		if bytes.Compare(upper, hi) < 0 {
			hi = upper
		}
	}
	return lo, hi
}

// --------------------------------------------------------------------------
// Iterator and Batch wrappers
// --------------------------------------------------------------------------

// nsIterator strips the namespace prefix from the keys
type nsIterator struct {
	db.Iterator
	strip int
}

func (i *nsIterator) Key() []byte {
	return i.Iterator.Key()[i.strip:]
}

type emptyIterator struct{}

func (emptyIterator) Next() bool             { return false }
func (emptyIterator) Key() []byte            { return nil }
func (emptyIterator) Value() ([]byte, error) { return nil, nil }
func (emptyIterator) Error() error           { return nil }
func (emptyIterator) Close() error           { return nil }

// nsBatch prefixes the keys of all batch operations
type nsBatch struct {
	db.Batch
	parent *storeImpl
}

func (b *nsBatch) Set(key string, value []byte) error {
	return b.Batch.Set(b.parent.key(key), value)
}

func (b *nsBatch) Delete(key string) error {
	return b.Batch.Delete(b.parent.key(key))
}
