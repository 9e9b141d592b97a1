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

// Package transport defines the narrow interface the session (C5) drives
// the upstream state-history protocol through, plus one concrete
// websocket-backed implementation. The upstream wire protocol itself is
// out of core scope (spec §1); this package exists so the repository is
// runnable end-to-end.
package transport

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainfill/shfill/statehistory"
)

// GetBlocksRequest begins the block stream (spec §6).
type GetBlocksRequest struct {
	StartBlockNum       uint32
	EndBlockNum         uint32 // 0 means unbounded (∞)
	MaxMessagesInFlight uint32
	HavePositions       []statehistory.BlockPosition
}

// StatusResult is the reply to GetStatus: chain tip info sufficient to
// initiate streaming.
type StatusResult struct {
	HeadBlockNum         uint32
	HeadBlockID          common.Hash
	LastIrreversibleNum  uint32
	LastIrreversibleID   common.Hash
	ChainID              common.Hash
}

// SchemaAnnouncement is the one self-describing message the upstream sends
// before any request/reply traffic, naming every table the connection will
// ever reference (spec §4.2).
type SchemaAnnouncement struct {
	Tables []string
}

// Connection is the narrow command/event surface the session drives.
// A Connection is single-shot and never reconnects by itself: once it
// closes, a new Connection must be dialed through a Dialer.
type Connection interface {
	// Schema blocks until the upstream's schema announcement has arrived,
	// or ctx is done, or the connection closes.
	Schema(ctx context.Context) (SchemaAnnouncement, error)

	// GetStatus sends the status request and returns its reply.
	GetStatus(ctx context.Context) (StatusResult, error)

	// GetBlocks begins the block stream. Results are delivered through
	// Blocks(); GetBlocks itself only confirms the request was sent.
	GetBlocks(ctx context.Context, req GetBlocksRequest) error

	// Blocks returns the channel block-result messages arrive on. The
	// channel is closed when the connection closes, for any reason.
	Blocks() <-chan statehistory.BlockResult

	// Err returns the reason the Blocks channel closed, once it has. It
	// returns nil while the connection is still open.
	Err() error

	// Close tears down the connection without attempting to reconnect.
	Close() error
}

// Dialer opens a new Connection. The retry supervisor (C6) calls Dial
// again after a closed connection's retry delay; the session (C5) only
// ever sees one Connection at a time.
type Dialer interface {
	Dial(ctx context.Context) (Connection, error)
}
