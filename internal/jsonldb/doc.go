// Package jsonldb provides concurrent-safe, JSONL-backed storage.
//
// # Overview
//
// Two containers are offered:
//
//   - [Table] stores typed rows identified by a [ksid.ID]. Line 1 of the file
//     is a schema header generated from the row type, subsequent lines are
//     rows. Rows are fully cached in memory.
//   - [Collection] stores free-form documents addressed by a string key, one
//     document per line. Fields are kept as raw JSON so values of unexpected
//     type survive a load/save cycle untouched.
//
// # Concurrency
//
// Each container holds a read-write lock. Single operations are atomic but
// there is no transaction spanning several calls: a caller that reads a
// document and writes it back races with other writers, last write wins.
//
// # Secondary Indexes
//
// [UniqueIndex] and [Index] provide O(1) lookups by arbitrary keys, staying
// synchronized with table mutations via [TableObserver].
package jsonldb
