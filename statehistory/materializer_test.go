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
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeView is a minimal View that just records puts/erases in order, for
// asserting on materialization order and last-write-wins behavior.
type fakeView struct {
	puts   map[string][]byte
	erased map[string]bool
	order  []string
}

func newFakeView() *fakeView {
	return &fakeView{puts: map[string][]byte{}, erased: map[string]bool{}}
}

func (v *fakeView) Put(key, value []byte) {
	delete(v.erased, string(key))
	v.puts[string(key)] = append([]byte{}, value...)
	v.order = append(v.order, "put:"+string(key))
}

func (v *fakeView) Erase(key []byte) {
	delete(v.puts, string(key))
	v.erased[string(key)] = true
	v.order = append(v.order, "erase:"+string(key))
}

// rawRow builds a RawCodec-compatible payload: varint key length, key, value.
func rawRow(key, value []byte) []byte {
	var buf bytes.Buffer
	var lenbuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenbuf[:], uint64(len(key)))
	buf.Write(lenbuf[:n])
	buf.Write(key)
	buf.Write(value)
	return buf.Bytes()
}

// encodeDeltas builds a wire-format delta batch: varint table count, then
// per table a name, row count, and (present, payload) pairs — exactly the
// shape Materialize decodes.
func encodeDeltas(t *testing.T, tables map[string][]struct {
	present bool
	key     []byte
	value   []byte
}, order []string) []byte {
	t.Helper()
	var buf bytes.Buffer
	writeUvarintTest(&buf, uint64(len(order)))
	for _, name := range order {
		rows := tables[name]
		writeBytesTest(&buf, []byte(name))
		writeUvarintTest(&buf, uint64(len(rows)))
		for _, row := range rows {
			if row.present {
				buf.WriteByte(1)
			} else {
				buf.WriteByte(0)
			}
			writeBytesTest(&buf, rawRow(row.key, row.value))
		}
	}
	return buf.Bytes()
}

func writeUvarintTest(buf *bytes.Buffer, v uint64) {
	var b [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(b[:], v)
	buf.Write(b[:n])
}

func writeBytesTest(buf *bytes.Buffer, b []byte) {
	writeUvarintTest(buf, uint64(len(b)))
	buf.Write(b)
}

func TestMaterializePutAndErase(t *testing.T) {
	reg := NewRegistry()
	reg.Register("accounts", RawCodec{Prefix: []byte("a/")})

	deltas := encodeDeltas(t, map[string][]struct {
		present bool
		key     []byte
		value   []byte
	}{
		"accounts": {
			{present: true, key: []byte("k1"), value: []byte("v1")},
			{present: true, key: []byte("k2"), value: []byte("v2")},
			{present: false, key: []byte("k1"), value: nil},
		},
	}, []string{"accounts"})

	view := newFakeView()
	err := Materialize(reg, deltas, view, nil)
	require.NoError(t, err)

	require.Equal(t, map[string][]byte{"a/k2": []byte("v2")}, view.puts)
	require.True(t, view.erased["a/k1"])
	// Last write for k1 (put then erase) must win in source order.
	require.Equal(t, []string{"put:a/k1", "put:a/k2", "erase:a/k1"}, view.order)
}

func TestMaterializeUnknownTableIsFatal(t *testing.T) {
	reg := NewRegistry()
	deltas := encodeDeltas(t, map[string][]struct {
		present bool
		key     []byte
		value   []byte
	}{
		"mystery": {{present: true, key: []byte("k"), value: []byte("v")}},
	}, []string{"mystery"})

	view := newFakeView()
	err := Materialize(reg, deltas, view, nil)
	require.Error(t, err)
	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	var unknown *ErrUnknownTable
	require.ErrorAs(t, err, &unknown)
	require.Equal(t, "mystery", unknown.Table)
}

func TestMaterializeBulkProgressHook(t *testing.T) {
	reg := NewRegistry()
	reg.Register("big", RawCodec{Prefix: []byte("b/")})

	rows := make([]struct {
		present bool
		key     []byte
		value   []byte
	}, 10001)
	for i := range rows {
		key := []byte{byte(i >> 8), byte(i)}
		rows[i] = struct {
			present bool
			key     []byte
			value   []byte
		}{present: true, key: key, value: []byte("v")}
	}
	deltas := encodeDeltas(t, map[string][]struct {
		present bool
		key     []byte
		value   []byte
	}{"big": rows}, []string{"big"})

	view := newFakeView()
	var progressCalls []int
	err := Materialize(reg, deltas, view, func(table string, rowsApplied int) {
		require.Equal(t, "big", table)
		progressCalls = append(progressCalls, rowsApplied)
	})
	require.NoError(t, err)
	require.Equal(t, []int{10000}, progressCalls)
}

func TestMaterializeTrailingBytesIsError(t *testing.T) {
	reg := NewRegistry()
	deltas := append(encodeDeltas(t, nil, nil), 0xFF)
	view := newFakeView()
	err := Materialize(reg, deltas, view, nil)
	require.Error(t, err)
}
