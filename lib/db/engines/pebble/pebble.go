package pebble

import (
	"github.com/ValentinKolb/netlevel/lib/db"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/lni/dragonboat/v4/logger"
	"sync/atomic"
)

var log = logger.GetLogger("store")

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	defaultCacheSize = 8 << 20 // 8 MB block cache per base
	infoSampleSize   = 100     // entries sampled for the value size estimate
)

// ErrClosed is returned by operations on a closed database
var ErrClosed = errors.New("database closed")

// --------------------------------------------------------------------------
// Core database structure
// --------------------------------------------------------------------------

// pebbleImpl implements db.KVDB on top of a pebble LSM tree
type pebbleImpl struct {
	db     *pebble.DB
	dir    string
	opts   DBOptions
	wo     *pebble.WriteOptions
	closed atomic.Bool
}

// DBOptions configures the pebble engine during initialization
type DBOptions struct {
	InMemory       bool  // keep all files in memory (tests)
	NoSync         bool  // do not fsync on every write
	CacheSizeBytes int64 // block cache size (0 = default)
	ReadOnly       bool
}

// DefaultOptions returns the default pebble engine options
func DefaultOptions() *DBOptions {
	return &DBOptions{
		CacheSizeBytes: defaultCacheSize,
	}
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewPebbleDB opens (or creates) the database in dir with the specified
// options (optional)
func NewPebbleDB(dir string, opts *DBOptions) (db.KVDB, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	cacheSize := opts.CacheSizeBytes
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}

	cache := pebble.NewCache(cacheSize)
	defer cache.Unref()

	pebbleOpts := &pebble.Options{
		Cache:    cache,
		ReadOnly: opts.ReadOnly,
		Logger:   pebbleLogger{},
	}
	if opts.InMemory {
		pebbleOpts.FS = vfs.NewMem()
	}

	pdb, err := pebble.Open(dir, pebbleOpts)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database in %s", dir)
	}

	wo := pebble.Sync
	if opts.NoSync {
		wo = pebble.NoSync
	}

	return &pebbleImpl{
		db:   pdb,
		dir:  dir,
		opts: *opts,
		wo:   wo,
	}, nil
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Write Operations
// --------------------------------------------------------------------------

func (p *pebbleImpl) Set(key, value []byte) error {
	if p.closed.Load() {
		return ErrClosed
	}
	return p.db.Set(key, value, p.wo)
}

func (p *pebbleImpl) Delete(key []byte) error {
	if p.closed.Load() {
		return ErrClosed
	}
	return p.db.Delete(key, p.wo)
}

func (p *pebbleImpl) DeleteRange(start, end []byte) error {
	if p.closed.Load() {
		return ErrClosed
	}
	return p.db.DeleteRange(start, end, p.wo)
}

func (p *pebbleImpl) NewBatch() db.Batch {
	return &pebbleBatch{parent: p, batch: p.db.NewBatch()}
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Query Operations
// --------------------------------------------------------------------------

func (p *pebbleImpl) Get(key []byte) ([]byte, bool, error) {
	if p.closed.Load() {
		return nil, false, ErrClosed
	}

	value, closer, err := p.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()

	// the slice is only valid until closer is closed
	out := make([]byte, len(value))
	copy(out, value)
	return out, true, nil
}

func (p *pebbleImpl) NewIterator(opts db.IterOptions) (db.Iterator, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}

	it, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: opts.LowerBound,
		UpperBound: opts.UpperBound,
	})
	if err != nil {
		return nil, err
	}
	return &pebbleIterator{it: it, reverse: opts.Reverse}, nil
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Features and Metadata
// --------------------------------------------------------------------------

// GetInfo returns statistics about the database
func (p *pebbleImpl) GetInfo() db.DatabaseInfo {
	meta := &struct {
		Dir            string `json:"dir"`
		InMemory       bool   `json:"in_memory"`
		Sync           bool   `json:"sync"`
		CacheSizeBytes int64  `json:"cache_size_bytes"`
		MemTableBytes  uint64 `json:"memtable_bytes"`
		Compactions    int64  `json:"compactions"`
		AvgValueBytes  int    `json:"avg_value_bytes"`
		Info           string `json:"info"`
	}{
		Dir:            p.dir,
		InMemory:       p.opts.InMemory,
		Sync:           !p.opts.NoSync,
		CacheSizeBytes: p.opts.CacheSizeBytes,
		Info:           "Value sizes are estimated from a sample of the first entries.",
	}

	sizeBytes := 0
	if !p.closed.Load() {
		m := p.db.Metrics()
		sizeBytes = int(m.DiskSpaceUsage())
		meta.MemTableBytes = m.MemTable.Size
		meta.Compactions = m.Compact.Count
		meta.AvgValueBytes = p.sampleValueSize()
	}

	return db.DatabaseInfo{
		SizeBytes:         sizeBytes,
		DbType:            db.ImplPebble,
		SupportedFeatures: supportedFeatures,
		Metadata:          meta,
	}
}

var supportedFeatures = []db.Feature{
	db.FeatureSet, db.FeatureGet, db.FeatureDelete, db.FeatureDeleteRange,
	db.FeatureIterate, db.FeatureReverse, db.FeatureBatch,
}

// SupportsFeature checks if this implementation supports a specific KVDB feature
func (p *pebbleImpl) SupportsFeature(feature db.Feature) bool {
	var supported db.Feature
	for _, f := range supportedFeatures {
		supported |= f
	}
	return supported&feature == feature
}

// Close flushes and closes the database. Closing twice is a no-op.
func (p *pebbleImpl) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return p.db.Close()
}

// sampleValueSize returns the average size of the first values
func (p *pebbleImpl) sampleValueSize() int {
	it, err := p.db.NewIter(nil)
	if err != nil {
		return 0
	}
	defer it.Close()

	total, count := 0, 0
	for valid := it.First(); valid && count < infoSampleSize; valid = it.Next() {
		v, err := it.ValueAndErr()
		if err != nil {
			break
		}
		total += len(v)
		count++
	}
	if count == 0 {
		return 0
	}
	return total / count
}

// --------------------------------------------------------------------------
// Iterator
// --------------------------------------------------------------------------

type pebbleIterator struct {
	it      *pebble.Iterator
	reverse bool
	started bool
}

func (i *pebbleIterator) Next() bool {
	if !i.started {
		i.started = true
		if i.reverse {
			return i.it.Last()
		}
		return i.it.First()
	}
	if i.reverse {
		return i.it.Prev()
	}
	return i.it.Next()
}

func (i *pebbleIterator) Key() []byte {
	return i.it.Key()
}

func (i *pebbleIterator) Value() ([]byte, error) {
	return i.it.ValueAndErr()
}

func (i *pebbleIterator) Error() error {
	return i.it.Error()
}

func (i *pebbleIterator) Close() error {
	return i.it.Close()
}

// --------------------------------------------------------------------------
// Batch
// --------------------------------------------------------------------------

type pebbleBatch struct {
	parent *pebbleImpl
	batch  *pebble.Batch
}

func (b *pebbleBatch) Set(key, value []byte) error {
	return b.batch.Set(key, value, nil)
}

func (b *pebbleBatch) Delete(key []byte) error {
	return b.batch.Delete(key, nil)
}

func (b *pebbleBatch) Count() int {
	return int(b.batch.Count())
}

func (b *pebbleBatch) Commit() error {
	if b.parent.closed.Load() {
		return ErrClosed
	}
	return b.batch.Commit(b.parent.wo)
}

func (b *pebbleBatch) Close() error {
	return b.batch.Close()
}

// --------------------------------------------------------------------------
// Logging
// --------------------------------------------------------------------------

// pebbleLogger routes pebble's internal log output into the store logger
type pebbleLogger struct{}

func (pebbleLogger) Infof(format string, args ...interface{}) {
	log.Debugf(format, args...)
}

func (pebbleLogger) Errorf(format string, args ...interface{}) {
	log.Errorf(format, args...)
}

func (pebbleLogger) Fatalf(format string, args ...interface{}) {
	log.Panicf(format, args...)
}
