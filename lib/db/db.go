package db

import "github.com/cockroachdb/errors"

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplPebble Implementation = "pebble"
)

// Feature represents database features as bit flags
type Feature uint64

const (
	FeatureSet         Feature = 1 << iota // Support for Set operations
	FeatureGet                             // Support for Get operations
	FeatureDelete                          // Support for Delete operations
	FeatureDeleteRange                     // Support for DeleteRange operations
	FeatureIterate                         // Support for ordered iteration
	FeatureReverse                         // Support for reverse iteration
	FeatureBatch                           // Support for atomic write batches
)

func (f Feature) String() string {
	switch f {
	case FeatureSet:
		return "Set"
	case FeatureGet:
		return "Get"
	case FeatureDelete:
		return "Delete"
	case FeatureDeleteRange:
		return "DeleteRange"
	case FeatureIterate:
		return "Iterate"
	case FeatureReverse:
		return "Reverse"
	case FeatureBatch:
		return "Batch"
	default:
		return "Unknown"
	}
}

// AllFeatures lists every known feature
var AllFeatures = []Feature{
	FeatureSet,
	FeatureGet,
	FeatureDelete,
	FeatureDeleteRange,
	FeatureIterate,
	FeatureReverse,
	FeatureBatch,
}

// MarshalText reports features by name in stat replies
func (f Feature) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText maps a feature name back to its flag
func (f *Feature) UnmarshalText(text []byte) error {
	for _, feature := range AllFeatures {
		if feature.String() == string(text) {
			*f = feature
			return nil
		}
	}
	return errors.Newf("unknown database feature %q", text)
}

type DatabaseInfo struct {
	SizeBytes         int            `json:"size_bytes"`
	DbType            Implementation `json:"db_type"`
	SupportedFeatures []Feature      `json:"supported_features"`
	Metadata          interface{}    `json:"metadata"`
}

// IterOptions bounds an iteration. LowerBound is inclusive, UpperBound is
// exclusive, a nil bound is open.
type IterOptions struct {
	LowerBound []byte
	UpperBound []byte
	Reverse    bool
}

// --------------------------------------------------------------------------
// Database Interface
// --------------------------------------------------------------------------

// KVDB defines an interface for ordered key-value database implementations.
// Keys are compared bytewise. Implementations can vary in their feature
// support, which can be queried with SupportsFeature.
type KVDB interface {

	// --------------------------------------------------------------------------
	// Write Operations
	// --------------------------------------------------------------------------

	// Set inserts or updates an entry. The write is durable when Set returns.
	Set(key, value []byte) (err error)

	// Delete removes an entry. Deleting a missing key is not an error.
	Delete(key []byte) (err error)

	// DeleteRange removes all entries in [start, end).
	DeleteRange(start, end []byte) (err error)

	// NewBatch creates a write batch. Nothing is written before Commit.
	NewBatch() Batch

	// --------------------------------------------------------------------------
	// Query Operations
	// --------------------------------------------------------------------------

	// Get retrieves the value for an exact key.
	// The boolean return value indicates whether a value for the key was found.
	// The returned slice is a copy owned by the caller.
	Get(key []byte) (value []byte, loaded bool, err error)

	// NewIterator creates an iterator over the bounded key range. The
	// iterator observes a consistent snapshot and must be closed.
	NewIterator(opts IterOptions) (it Iterator, err error)

	// --------------------------------------------------------------------------
	// Feature Support
	// --------------------------------------------------------------------------

	// SupportsFeature checks if the database implementation supports the specified feature.
	// Multiple features can be checked at once using bitwise OR (|) operator.
	SupportsFeature(feature Feature) (ok bool)

	// GetInfo returns information about the database.
	GetInfo() (info DatabaseInfo)

	// Close closes the database. All iterators must be closed before.
	Close() (err error)
}

// Iterator walks a key range in order (or reverse order)
type Iterator interface {
	// Next advances to the next entry, the first call positions on the
	// first entry. It returns false when the range is exhausted.
	Next() bool
	// Key returns the current key. Only valid until the next call to Next.
	Key() []byte
	// Value returns the current value. Only valid until the next call to Next.
	Value() ([]byte, error)
	// Error returns the error that stopped the iteration, if any
	Error() error
	// Close releases the iterator
	Close() error
}

// Batch collects writes that are applied atomically on Commit
type Batch interface {
	Set(key, value []byte) error
	Delete(key []byte) error
	// Count returns the number of operations in the batch
	Count() int
	// Commit applies the batch durably
	Commit() error
	// Close releases the batch, committed or not
	Close() error
}
