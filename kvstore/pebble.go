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

package kvstore

import (
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

// pebbleStore backs Store with github.com/cockroachdb/pebble, the modern
// alternative KV engine carried in the teacher's own go.mod.
type pebbleStore struct {
	db *pebble.DB
}

// OpenPebble opens (creating if absent) a pebble database at path.
func OpenPebble(path string, cacheSizeBytes int64) (Store, error) {
	opts := &pebble.Options{
		Cache: pebble.NewCache(cacheSizeBytes),
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, err
	}
	return &pebbleStore{db: db}, nil
}

// OpenPebbleInMemory opens an in-memory pebble instance, for tests.
func OpenPebbleInMemory() (Store, error) {
	opts := &pebble.Options{FS: vfs.NewMem()}
	db, err := pebble.Open("", opts)
	if err != nil {
		return nil, err
	}
	return &pebbleStore{db: db}, nil
}

func (s *pebbleStore) Get(key []byte) ([]byte, error) {
	v, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	out := append([]byte{}, v...)
	closer.Close()
	return out, nil
}

func (s *pebbleStore) Has(key []byte) (bool, error) {
	_, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	closer.Close()
	return true, nil
}

func (s *pebbleStore) NewIterator(prefix, start []byte) Iterator {
	lower := append([]byte{}, prefix...)
	if start != nil {
		lower = append(lower, start...)
	}
	upper := upperBound(prefix)
	it, _ := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	return &pebbleIterator{it: it, started: false}
}

// upperBound returns the smallest key that sorts after every key with the
// given prefix, i.e. prefix incremented in its last non-0xff byte.
func upperBound(prefix []byte) []byte {
	out := append([]byte{}, prefix...)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] < 0xff {
			out[i]++
			return out[:i+1]
		}
	}
	return nil // prefix is all 0xff: unbounded above
}

func (s *pebbleStore) NewBatch() Batch {
	return &pebbleBatch{batch: s.db.NewBatch()}
}

func (s *pebbleStore) Flush(sync bool) error {
	if !sync {
		return nil
	}
	return s.db.Flush()
}

func (s *pebbleStore) Close() error {
	return s.db.Close()
}

type pebbleIterator struct {
	it      *pebble.Iterator
	started bool
}

func (i *pebbleIterator) Next() bool {
	if !i.started {
		i.started = true
		return i.it.First()
	}
	return i.it.Next()
}

func (i *pebbleIterator) Key() []byte   { return i.it.Key() }
func (i *pebbleIterator) Value() []byte { return i.it.Value() }
func (i *pebbleIterator) Error() error  { return i.it.Error() }
func (i *pebbleIterator) Release()      { i.it.Close() }

type pebbleBatch struct {
	batch *pebble.Batch
}

func (b *pebbleBatch) Put(key, value []byte) error {
	return b.batch.Set(key, value, nil)
}

func (b *pebbleBatch) Delete(key []byte) error {
	return b.batch.Delete(key, nil)
}

func (b *pebbleBatch) Write() error {
	return b.batch.Commit(pebble.Sync)
}

func (b *pebbleBatch) Reset() {
	b.batch.Reset()
}

func (b *pebbleBatch) Len() int {
	return b.batch.Count()
}
