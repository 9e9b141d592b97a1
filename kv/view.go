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

// Package kv implements the KV View (C1): a buffered mutation overlay on
// top of an ordered kvstore.Store, committed atomically on demand. Its
// discipline — accumulate in memory, then flush in one batched write — is
// grounded on cmd/ubtconv/consumer.go's uncommittedBlocks/commit pattern,
// generalized from "blocks applied since last commit" to arbitrary
// buffered key mutations.
package kv

import (
	"bytes"
	"sort"

	"github.com/chainfill/shfill/kvstore"
)

// View is a buffered overlay on a kvstore.Store (C1's contract, spec §4.1).
// A View is not safe for concurrent use; the session drives it from its
// single event loop (spec §5).
type View struct {
	store kvstore.Store

	// pending holds queued mutations. A present entry with del=true is a
	// queued erase; del=false is a queued put. Keys are stored as strings
	// (Go map keys must be comparable) but always handled as bytes at the
	// API boundary.
	pending map[string]pendingEntry
}

type pendingEntry struct {
	value []byte
	del   bool
}

// New returns a View buffering mutations over store.
func New(store kvstore.Store) *View {
	return &View{store: store, pending: make(map[string]pendingEntry)}
}

// Get returns the value visible to a committed read of the effective
// snapshot: pending writes override store reads (read-your-writes).
func (v *View) Get(key []byte) ([]byte, bool, error) {
	if e, ok := v.pending[string(key)]; ok {
		if e.del {
			return nil, false, nil
		}
		return e.value, true, nil
	}
	val, err := v.store.Get(key)
	if err == kvstore.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

// Put enqueues an upsert. No store I/O happens here.
func (v *View) Put(key, value []byte) {
	cp := append([]byte{}, value...)
	v.pending[string(key)] = pendingEntry{value: cp}
}

// Erase enqueues a delete. No store I/O happens here.
func (v *View) Erase(key []byte) {
	v.pending[string(key)] = pendingEntry{del: true}
}

// Pending reports how many mutations are currently buffered.
func (v *View) Pending() int {
	return len(v.pending)
}

// Entry is one live row visible to a Scan. Keys with a pending delete are
// left out of a Scan's result rather than returned as entries.
type Entry struct {
	Key   []byte
	Value []byte
}

// Scan returns, in ascending key order, every live row under the given
// prefix, merging pending mutations with store state into a single
// consistent view for the duration of the call (spec §4.1's scan
// contract). It reads eagerly rather than lazily: a View is not meant to
// back unbounded range scans across commits.
func (v *View) Scan(prefix []byte) ([]Entry, error) {
	it := v.store.NewIterator(prefix, nil)
	defer it.Release()

	merged := make(map[string][]byte)
	for it.Next() {
		merged[string(it.Key())] = append([]byte{}, it.Value()...)
	}
	if err := it.Error(); err != nil {
		return nil, err
	}

	for k, e := range v.pending {
		if !bytes.HasPrefix([]byte(k), prefix) {
			continue
		}
		if e.del {
			delete(merged, k)
			continue
		}
		merged[k] = e.value
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Entry, len(keys))
	for i, k := range keys {
		out[i] = Entry{Key: []byte(k), Value: merged[k]}
	}
	return out, nil
}

// Commit atomically applies all pending mutations to the store, then
// clears buffers. A failed commit leaves pending mutations intact and the
// store unchanged (spec §4.1's all-or-nothing guarantee).
func (v *View) Commit() error {
	if len(v.pending) == 0 {
		return nil
	}
	batch := v.store.NewBatch()
	for k, e := range v.pending {
		var err error
		if e.del {
			err = batch.Delete([]byte(k))
		} else {
			err = batch.Put([]byte(k), e.value)
		}
		if err != nil {
			return err
		}
	}
	if err := batch.Write(); err != nil {
		return err
	}
	v.pending = make(map[string]pendingEntry)
	return nil
}

// Flush forwards to the store; sync=true blocks until durable.
func (v *View) Flush(sync bool) error {
	return v.store.Flush(sync)
}
