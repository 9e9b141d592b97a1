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

package transport

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chainfill/shfill/statehistory"
)

func encodeBlockResultForTest(t *testing.T, res statehistory.BlockResult) []byte {
	t.Helper()
	var buf bytes.Buffer

	writeOptPosition := func(p *statehistory.BlockPosition) {
		if p == nil {
			buf.WriteByte(0)
			return
		}
		buf.WriteByte(1)
		writeUint32(&buf, p.Num)
		buf.Write(p.ID[:])
	}
	writeOptPosition(res.ThisBlock)
	writeOptPosition(res.PrevBlock)
	writeUint32(&buf, res.LastIrreversible.Num)
	buf.Write(res.LastIrreversible.ID[:])
	if res.Deltas == nil {
		buf.WriteByte(0)
	} else {
		buf.WriteByte(1)
		writeUvarint(&buf, uint64(len(res.Deltas)))
		buf.Write(res.Deltas)
	}
	return buf.Bytes()
}

func TestDecodeBlockResultRoundTrip(t *testing.T) {
	want := statehistory.BlockResult{
		ThisBlock:        &statehistory.BlockPosition{Num: 100},
		PrevBlock:        &statehistory.BlockPosition{Num: 99},
		LastIrreversible: statehistory.BlockPosition{Num: 90},
		Deltas:           []byte{0x01, 0x02, 0x03},
	}
	want.ThisBlock.ID[0] = 0xAB
	want.PrevBlock.ID[0] = 0xCD

	encoded := encodeBlockResultForTest(t, want)
	got, err := decodeBlockResult(bytes.NewReader(encoded))
	require.NoError(t, err)
	require.Equal(t, want.ThisBlock.Num, got.ThisBlock.Num)
	require.Equal(t, want.ThisBlock.ID, got.ThisBlock.ID)
	require.Equal(t, want.PrevBlock.Num, got.PrevBlock.Num)
	require.Equal(t, want.LastIrreversible.Num, got.LastIrreversible.Num)
	require.Equal(t, want.Deltas, got.Deltas)
}

func TestDecodeBlockResultHeartbeat(t *testing.T) {
	want := statehistory.BlockResult{LastIrreversible: statehistory.BlockPosition{Num: 5}}
	encoded := encodeBlockResultForTest(t, want)
	got, err := decodeBlockResult(bytes.NewReader(encoded))
	require.NoError(t, err)
	require.Nil(t, got.ThisBlock)
	require.Nil(t, got.PrevBlock)
	require.Equal(t, uint32(5), got.LastIrreversible.Num)
}

func TestSchemaFrameDispatch(t *testing.T) {
	var buf bytes.Buffer
	writeUvarint(&buf, 2)
	tbl := func(s string) {
		writeUvarint(&buf, uint64(len(s)))
		buf.WriteString(s)
	}
	tbl("accounts")
	tbl("storage")

	c := &wsConnection{schemaCh: make(chan SchemaAnnouncement, 1)}
	require.NoError(t, c.dispatch(kindSchema, buf.Bytes()))

	ann := <-c.schemaCh
	require.Equal(t, []string{"accounts", "storage"}, ann.Tables)
}

func TestDispatchUnknownKind(t *testing.T) {
	c := &wsConnection{}
	err := c.dispatch(99, nil)
	require.Error(t, err)
}
