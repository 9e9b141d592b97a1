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
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// levelStore backs Store with github.com/syndtr/goleveldb, the same engine
// the teacher uses for its consumer checkpoint database.
type levelStore struct {
	db *leveldb.DB
}

// OpenLevelDB opens (creating if absent) a leveldb database at path with the
// given cache/handle sizing, mirroring the teacher's
// leveldb.New(dbPath, cache, handles, namespace, readonly) call shape.
func OpenLevelDB(path string, cache, handles int) (Store, error) {
	opts := &opt.Options{
		OpenFilesCacheCapacity: handles,
		BlockCacheCapacity:     cache / 2 * opt.MiB,
		WriteBuffer:            cache / 4 * opt.MiB,
	}
	db, err := leveldb.OpenFile(path, opts)
	if err != nil {
		return nil, err
	}
	return &levelStore{db: db}, nil
}

// OpenLevelDBInMemory opens an in-memory leveldb instance, for tests.
func OpenLevelDBInMemory() (Store, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &levelStore{db: db}, nil
}

func (s *levelStore) Get(key []byte) ([]byte, error) {
	v, err := s.db.Get(key, nil)
	if err == errors.ErrNotFound {
		return nil, ErrNotFound
	}
	return v, err
}

func (s *levelStore) Has(key []byte) (bool, error) {
	return s.db.Has(key, nil)
}

func (s *levelStore) NewIterator(prefix, start []byte) Iterator {
	rng := util.BytesPrefix(prefix)
	if start != nil {
		rng.Start = append(append([]byte{}, prefix...), start...)
	}
	return &levelIterator{it: s.db.NewIterator(rng, nil)}
}

func (s *levelStore) NewBatch() Batch {
	return &levelBatch{db: s.db, batch: new(leveldb.Batch)}
}

func (s *levelStore) Flush(sync bool) error {
	// goleveldb commits WAL writes synchronously per-batch when requested
	// (see levelBatch.Write); there is no separate deferred-WAL mode to
	// force here, so Flush is a no-op sync barrier already honored at
	// write time.
	return nil
}

func (s *levelStore) Close() error {
	return s.db.Close()
}

type levelIterator struct {
	it iterator.Iterator
}

func (i *levelIterator) Next() bool       { return i.it.Next() }
func (i *levelIterator) Key() []byte      { return i.it.Key() }
func (i *levelIterator) Value() []byte    { return i.it.Value() }
func (i *levelIterator) Error() error     { return i.it.Error() }
func (i *levelIterator) Release()         { i.it.Release() }

type levelBatch struct {
	db    *leveldb.DB
	batch *leveldb.Batch
}

func (b *levelBatch) Put(key, value []byte) error {
	b.batch.Put(key, value)
	return nil
}

func (b *levelBatch) Delete(key []byte) error {
	b.batch.Delete(key)
	return nil
}

func (b *levelBatch) Write() error {
	return b.db.Write(b.batch, &opt.WriteOptions{Sync: true})
}

func (b *levelBatch) Reset() {
	b.batch.Reset()
}

func (b *levelBatch) Len() int {
	return b.batch.Len()
}
