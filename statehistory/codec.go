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

package statehistory

import (
	"fmt"
	"sync"
)

// Row is the decoded form of a table delta's payload: the KV pair a codec
// produces plus an optional structured form kept only for logging.
type Row struct {
	Key   []byte
	Value []byte
	Log   fmt.Stringer // nil if the codec doesn't bother
}

// Codec decodes a row payload delivered for one table into a KV pair.
// Row keys must encode the row's identity so that repeated upserts to the
// same logical row collide on the same KV key (last write wins, §4.3 R4).
type Codec interface {
	DecodeRow(payload []byte) (Row, error)

	// TablePrefix is prepended to every key this codec produces so that
	// rows from distinct tables never collide in the shared KV keyspace
	// (spec §6, "Persisted layout").
	TablePrefix() []byte
}

// Registry resolves table names to codecs. It is populated once per
// connection from the upstream's self-describing schema announcement
// (spec §4.2) and is read-only for the remainder of the session.
type Registry struct {
	mu     sync.RWMutex
	codecs map[string]Codec
}

// NewRegistry returns an empty registry. Register must be called for each
// table named in the schema announcement before streaming begins.
func NewRegistry() *Registry {
	return &Registry{codecs: make(map[string]Codec)}
}

// Register associates a table name with its codec. Re-registering a name
// replaces the previous codec; this is used when a fresh schema
// announcement arrives on reconnect.
func (r *Registry) Register(name string, codec Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codecs[name] = codec
}

// Reset discards all registered codecs, e.g. before applying a new schema
// announcement on reconnect.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codecs = make(map[string]Codec)
}

// ErrUnknownTable is returned by CodecFor when a delta names a table the
// registry has no codec for. Per spec §4.2 this is a hard (fatal) error.
type ErrUnknownTable struct {
	Table string
}

func (e *ErrUnknownTable) Error() string {
	return fmt.Sprintf("unknown table %q: no codec registered", e.Table)
}

// CodecFor resolves a table name to its codec.
func (r *Registry) CodecFor(name string) (Codec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.codecs[name]
	if !ok {
		return nil, &ErrUnknownTable{Table: name}
	}
	return c, nil
}
