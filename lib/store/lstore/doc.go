// Package lstore implements store.IStore on top of a single local db.KVDB.
// One database backs one base, the root store and all sub-stores of the
// base are views into it that differ only in their key prefix.
//
// Key Encoding:
//
//	root            0x00 key
//	sub a           0x01 'a' 0x00 key
//	sub a/b         0x01 'a' 0x01 'b' 0x00 key
//
// The prefix of every store ends with 0x00 and the prefix of a child
// continues with 0x01 where the parent's prefix ends. The key range of a
// store is therefore [prefix, prefix with the last byte replaced by 0x01),
// which contains all keys of the store and nothing of its children or
// parents. Sub-store names may not contain the two reserved bytes.
//
// Range bounds given as store.KeyRange are translated into database bounds
// and clamped to the store's range, so iteration and Clear can use the
// engine's bounded iterators and range deletes directly.
//
// Thread Safety:
//
//	Stores are immutable values and can be shared between goroutines. The
//	underlying db.KVDB provides the thread safety of the actual operations.
package lstore
