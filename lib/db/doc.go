// Package db defines the storage engine interface of the netlevel server.
//
// KVDB is an ordered key-value database: keys are compared bytewise,
// iteration yields keys in ascending (or descending) order and can be
// bounded by an inclusive lower and an exclusive upper bound. Bases,
// sub-stores and range queries are all built on these primitives by the
// store package, engines never see the namespace layout.
//
// The only engine is engines/pebble. Conformance tests shared by all
// engines live in the testing package.
package db
