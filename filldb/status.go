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

// Package filldb persists the fill-status singleton (C4) and defines the
// table-row key scheme table codecs write under. Unlike the teacher's
// core/rawdb/accessors_ubt_outbox.go, every function here returns an error
// instead of calling log.Crit: a store failure is for the caller (the
// session) to classify as fatal, not for this package to panic over.
package filldb

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/chainfill/shfill/kvstore"
)

// statusKey is the fixed singleton key fill status is stored under (spec
// §6 "Persisted layout": "Fill status under a fixed singleton key").
var statusKey = []byte("shfill/status")

// TablePrefix returns the key prefix rows of the named table are stored
// under, matching spec §6: "<table-prefix> || <row-key-bytes>".
func TablePrefix(table string) []byte {
	return append([]byte("shfill/t/"), table...)
}

// Status is the durable progress record read on startup and rewritten on
// every commit (C4).
type Status struct {
	Head            uint32
	HeadID          common.Hash
	Irreversible    uint32
	IrreversibleID  common.Hash
	First           uint32
}

// rlpStatus mirrors Status for wire purposes, the same one-struct-per-type
// mirroring core/ubtemit/encoder.go uses for its envelope types.
type rlpStatus struct {
	Head           uint32
	HeadID         common.Hash
	Irreversible   uint32
	IrreversibleID common.Hash
	First          uint32
}

// ErrNotFound is returned by Read when no status has ever been committed,
// meaning the store is a fresh one (spec §4.5: "absence means fresh store").
var ErrNotFound = errors.New("filldb: no fill status committed")

// Read loads the current fill status from r. The caller should treat
// ErrNotFound as the fresh-store default of all-zero fields.
func Read(r kvstore.Reader) (Status, error) {
	raw, err := r.Get(statusKey)
	if errors.Is(err, kvstore.ErrNotFound) {
		return Status{}, ErrNotFound
	}
	if err != nil {
		return Status{}, err
	}
	var s rlpStatus
	if err := rlp.DecodeBytes(raw, &s); err != nil {
		return Status{}, fmt.Errorf("filldb: decoding status: %w", err)
	}
	return Status(s), nil
}

// Putter is the buffered write surface a KV view exposes: enqueueing a
// mutation performs no store I/O (C1's put contract), which is exactly
// what lets Write ride along in the same commit as the block mutations it
// describes (spec §4.4: "Persisted through C1 so it commits atomically").
type Putter interface {
	Put(key, value []byte)
}

// Write encodes status and enqueues it into view under the singleton key.
// Clamping irreversible <= head (F2) is the caller's responsibility; Write
// persists whatever is given to it — call s.Clamped() first.
func Write(view Putter, s Status) error {
	enc, err := rlp.EncodeToBytes(rlpStatus(s))
	if err != nil {
		return fmt.Errorf("filldb: encoding status: %w", err)
	}
	view.Put(statusKey, enc)
	return nil
}

// Clamped applies F2 (persisted irreversible <= persisted head) and returns
// the status that should actually be written.
func (s Status) Clamped() Status {
	if s.Irreversible > s.Head {
		s.Irreversible = s.Head
		s.IrreversibleID = s.HeadID
	}
	return s
}
