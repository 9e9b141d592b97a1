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

// RawCodec is the default codec for tables an operator hasn't configured a
// dedicated schema for: it treats a row payload as a varint-length-prefixed
// key followed by an opaque value, the minimal split any upstream table
// needs to make rows addressable in an ordered store. Production
// deployments with typed tables (account, storage, code, ...) register a
// purpose-built Codec instead; RawCodec exists so a fresh checkout can
// stream an arbitrary upstream end to end without writing one first.
type RawCodec struct {
	Prefix []byte
}

func (c RawCodec) TablePrefix() []byte { return c.Prefix }

func (c RawCodec) DecodeRow(payload []byte) (Row, error) {
	r := bytes.NewReader(payload)
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return Row{}, fmt.Errorf("rawcodec: reading key length: %w", err)
	}
	key := make([]byte, n)
	if _, err := io.ReadFull(r, key); err != nil {
		return Row{}, fmt.Errorf("rawcodec: reading key: %w", err)
	}
	value := make([]byte, r.Len())
	if _, err := io.ReadFull(r, value); err != nil {
		return Row{}, fmt.Errorf("rawcodec: reading value: %w", err)
	}
	return Row{Key: key, Value: value}, nil
}
