// Copyright 2024 The go-ethereum Authors
// This file is part of go-ethereum.
//
// go-ethereum is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-ethereum is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with go-ethereum. If not, see <http://www.gnu.org/licenses/>.

// Package kvstore defines the ordered key-value store contract the KV view
// is built on, and provides two selectable backends (leveldb, pebble).
package kvstore

import "errors"

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("kvstore: key not found")

// Reader supports point and range reads over the store.
type Reader interface {
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	// NewIterator returns an iterator over keys with the given prefix,
	// starting at start (start is appended after prefix, as in the
	// teacher's ethdb.Iteratee convention). A nil start begins at prefix.
	NewIterator(prefix, start []byte) Iterator
}

// Iterator walks a key range in ascending order.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Error() error
	Release()
}

// Batch accumulates puts and deletes for atomic application.
type Batch interface {
	Put(key, value []byte) error
	Delete(key []byte) error
	// Write applies the batch atomically. A failed Write leaves the
	// underlying store untouched.
	Write() error
	Reset()
	Len() int
}

// Store is the full contract consumed by kv.View: ordered reads, atomic
// batched writes, and an explicit durability barrier. Matches spec §6's
// "KV store (consumed)" interface (get, range_scan, atomic write_batch,
// flush(sync_wal, sync_data)).
type Store interface {
	Reader
	NewBatch() Batch
	// Flush forces pending writes to be durable. sync controls whether the
	// call blocks until fsynced (sync=true) or merely hands off to the OS.
	Flush(sync bool) error
	Close() error
}
