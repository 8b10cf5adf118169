// Package store defines the namespaced key-value view the server works on.
//
// A base is one database. Inside a base the root store and any number of
// nested sub-stores share the same key space without colliding: each store
// owns a disjoint, contiguous key range of the database. Point operations,
// range iteration and range deletes of a store never see keys of its parent
// or of its children.
//
// The lstore package implements IStore on top of any db.KVDB. Range bounds
// are expressed with KeyRange in the keys of the store itself, the encoding
// into database keys is an implementation detail of lstore.
//
// Name rules:
//
//   - Base names (ValidBaseName) must not contain '.', '/' or '\' since they
//     are used as directory names.
//   - Sub-store names (ValidSubName) must not be "/" or ".." and must not
//     contain the bytes 0x00 or 0x01.
package store
