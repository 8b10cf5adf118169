package store

import (
	"github.com/ValentinKolb/netlevel/lib/db"
	"strings"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// DBFactory is a function type that opens (or creates) the database of a
// base in the given directory. This is used to abstract the creation of the
// db from the registry.
type DBFactory func(dir string) (db.KVDB, error)

// IStore is a namespaced view of a base: the root store of a base or one of
// its (nested) sub-stores. Keys of different stores never collide and range
// operations never cross into another store, parent or child alike.
type IStore interface {
	// Name returns the name of the base the store belongs to
	Name() string
	// Path returns the sub-store segments below the root (empty for the root)
	Path() []string

	// Set inserts or updates a key–value pair.
	Set(key string, value []byte) (err error)
	// Delete deletes a key–value pair. Deleting a missing key is not an error.
	Delete(key string) (err error)
	// Get return the value for a key. The boolean return value indicates whether a value for the key was found.
	Get(key string) (value []byte, loaded bool, err error)

	// Clear deletes every key of this store inside r. Sub-stores are not affected.
	Clear(r KeyRange) (err error)
	// NewIterator iterates the keys of this store inside r. Keys returned by
	// the iterator are relative to the store.
	NewIterator(r KeyRange, reverse bool) (it db.Iterator, err error)
	// NewBatch creates a batch of writes to this store
	NewBatch() Batch

	// Sub returns the child store with the given name. Sub-stores exist
	// implicitly, there is nothing to create.
	Sub(name string) (child IStore, err error)

	// GetDBInfo returns metadata about the database underlying the store.
	GetDBInfo() (info db.DatabaseInfo, err error)
}

// Batch collects writes to one store that are applied atomically on Commit
type Batch interface {
	Set(key string, value []byte) error
	Delete(key string) error
	Count() int
	Commit() error
	Close() error
}

// --------------------------------------------------------------------------
// Key Ranges
// --------------------------------------------------------------------------

// KeyRange bounds a range of keys of one store. A range without bounds
// covers the whole store.
type KeyRange struct {
	Lower          string
	HasLower       bool
	LowerExclusive bool

	Upper          string
	HasUpper       bool
	UpperInclusive bool
}

// WithLower returns a copy of r with the given lower bound
func (r KeyRange) WithLower(key string, exclusive bool) KeyRange {
	r.Lower, r.HasLower, r.LowerExclusive = key, true, exclusive
	return r
}

// WithUpper returns a copy of r with the given upper bound
func (r KeyRange) WithUpper(key string, inclusive bool) KeyRange {
	r.Upper, r.HasUpper, r.UpperInclusive = key, true, inclusive
	return r
}

// --------------------------------------------------------------------------
// Names
// --------------------------------------------------------------------------

// ValidBaseName reports whether name can be used as a base name. Base names
// are directory names, so they must not contain dots or path separators.
func ValidBaseName(name string) bool {
	return name != "" && !strings.ContainsAny(name, "./\\\x00")
}

// ValidSubName reports whether name can be used as a sub-store segment.
// "/" and ".." are navigation commands, control bytes 0x00 and 0x01 are
// reserved for the key encoding.
func ValidSubName(name string) bool {
	return name != "" && name != "/" && name != ".." && !strings.ContainsAny(name, "\x00\x01")
}
