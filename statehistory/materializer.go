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
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// View is the subset of the KV view that the materializer mutates. It is
// defined here, rather than imported from kv, so this package stays free of
// a dependency on the store layer; kv.View satisfies it structurally.
type View interface {
	Put(key, value []byte)
	Erase(key []byte)
}

// rowProgressThreshold and rowProgressInterval implement the bulk progress
// hook: a table delta carrying more than 10,000 rows reports progress every
// 10,000 rows applied.
const (
	rowProgressThreshold = 10000
	rowProgressInterval  = 10000
)

// ProgressFunc is invoked periodically while materializing a table delta
// that exceeds the bulk threshold. rowsApplied is the running count within
// the current table delta.
type ProgressFunc func(table string, rowsApplied int)

// DecodeError reports a malformed or unresolvable delta batch. It is always
// fatal to the block carrying it (spec §4.3 "Failure").
type DecodeError struct {
	Table string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("delta materializer: table %q: %v", e.Table, e.Err)
	}
	return fmt.Sprintf("delta materializer: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Materialize decodes a delta batch and applies its row mutations to view.
// It implements the C3 algorithm exactly: read the table-delta count, then
// for each table resolve its codec, read the row count, and apply present
// rows as puts and absent rows as erases in source order (last write wins
// within a block, since later rows for the same key simply overwrite
// earlier puts/erases in the view's pending buffer).
//
// No mutation is applied to view until its governing table delta has been
// fully decoded without error; a decode failure partway through a table
// delta aborts before any of that table's rows are applied, and the caller
// must not commit the view for this block (spec §4.3, §7).
func Materialize(reg *Registry, deltas []byte, view View, onProgress ProgressFunc) error {
	r := bytes.NewReader(deltas)

	n, err := binary.ReadUvarint(r)
	if err != nil {
		return &DecodeError{Err: fmt.Errorf("reading table-delta count: %w", err)}
	}

	for i := uint64(0); i < n; i++ {
		if err := materializeTableDelta(reg, r, view, onProgress); err != nil {
			return err
		}
	}
	if r.Len() != 0 {
		return &DecodeError{Err: fmt.Errorf("%d trailing bytes after %d table deltas", r.Len(), n)}
	}
	return nil
}

func materializeTableDelta(reg *Registry, r *bytes.Reader, view View, onProgress ProgressFunc) error {
	name, err := readString(r)
	if err != nil {
		return &DecodeError{Err: fmt.Errorf("reading table name: %w", err)}
	}

	codec, err := reg.CodecFor(name)
	if err != nil {
		return &DecodeError{Table: name, Err: err}
	}

	m, err := binary.ReadUvarint(r)
	if err != nil {
		return &DecodeError{Table: name, Err: fmt.Errorf("reading row count: %w", err)}
	}

	// Decode all rows for this table before mutating view, so a late
	// decode error never leaves a partially-applied table delta behind.
	type mutation struct {
		present bool
		key     []byte
		value   []byte
	}
	rows := make([]mutation, 0, m)

	for i := uint64(0); i < m; i++ {
		present, err := r.ReadByte()
		if err != nil {
			return &DecodeError{Table: name, Err: fmt.Errorf("reading present flag for row %d: %w", i, err)}
		}
		payload, err := readBytes(r)
		if err != nil {
			return &DecodeError{Table: name, Err: fmt.Errorf("reading payload for row %d: %w", i, err)}
		}
		row, err := codec.DecodeRow(payload)
		if err != nil {
			return &DecodeError{Table: name, Err: fmt.Errorf("decoding row %d: %w", i, err)}
		}
		key := append(append([]byte{}, codec.TablePrefix()...), row.Key...)
		rows = append(rows, mutation{present: present != 0, key: key, value: row.Value})
	}

	for i, row := range rows {
		if row.present {
			view.Put(row.key, row.value)
		} else {
			view.Erase(row.key)
		}
		applied := i + 1
		if onProgress != nil && m > rowProgressThreshold && applied%rowProgressInterval == 0 {
			onProgress(name, applied)
		}
	}
	return nil
}

func readString(r *bytes.Reader) (string, error) {
	b, err := readBytes(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		if err == io.EOF {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
