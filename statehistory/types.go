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

// Package statehistory holds the wire types exchanged with the upstream
// state-history node and the machinery to resolve and apply per-block
// table deltas against a codec registry.
package statehistory

import "github.com/ethereum/go-ethereum/common"

// BlockPosition identifies a block in the chain by number and id. Two
// positions are the same block only if both fields match.
type BlockPosition struct {
	Num uint32
	ID  common.Hash
}

// IsZero reports whether p is the zero position (used before any block has
// ever been applied).
func (p BlockPosition) IsZero() bool {
	return p.Num == 0 && p.ID == (common.Hash{})
}

// BlockResult is a single per-block message delivered by the upstream
// during streaming. ThisBlock absent (zero Num with a present=false flag,
// modeled here as a pointer) means the message is a heartbeat only.
type BlockResult struct {
	ThisBlock         *BlockPosition
	PrevBlock         *BlockPosition
	LastIrreversible  BlockPosition
	Deltas            []byte // opaque encoded delta batch, nil if absent
}

// TableDelta is the decoded form of one table's row mutations within a
// single block's delta batch.
type TableDelta struct {
	Name string
	Rows []DeltaRow
}

// DeltaRow is one row mutation: Present true means upsert, false means
// delete. Payload is the codec-specific encoding of the row, including its
// key, exactly as delivered by the upstream.
type DeltaRow struct {
	Present bool
	Payload []byte
}
