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

package session

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/chainfill/shfill/filldb"
	"github.com/chainfill/shfill/kv"
	"github.com/chainfill/shfill/kvstore"
	"github.com/chainfill/shfill/statehistory"
	"github.com/chainfill/shfill/transport"
)

// fakeConn is a scripted transport.Connection: the test feeds schema,
// status and block results directly instead of speaking any wire format.
type fakeConn struct {
	schema transport.SchemaAnnouncement
	status transport.StatusResult
	blocks chan statehistory.BlockResult
	err    error
}

func newFakeConn() *fakeConn {
	return &fakeConn{blocks: make(chan statehistory.BlockResult, 16)}
}

func (c *fakeConn) Schema(ctx context.Context) (transport.SchemaAnnouncement, error) {
	return c.schema, nil
}
func (c *fakeConn) GetStatus(ctx context.Context) (transport.StatusResult, error) {
	return c.status, nil
}
func (c *fakeConn) GetBlocks(ctx context.Context, req transport.GetBlocksRequest) error {
	return nil
}
func (c *fakeConn) Blocks() <-chan statehistory.BlockResult { return c.blocks }
func (c *fakeConn) Err() error                              { return c.err }
func (c *fakeConn) Close() error                             { return nil }

func newTestView(t *testing.T) *kv.View {
	t.Helper()
	store, err := kvstore.OpenLevelDBInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return kv.New(store)
}

func resolveRaw(table string) (statehistory.Codec, error) {
	return statehistory.RawCodec{Prefix: []byte("t/" + table + "/")}, nil
}

func hash(b byte) common.Hash {
	var h common.Hash
	h[31] = b
	return h
}

func TestSessionStopBeforeClosesClean(t *testing.T) {
	conn := newFakeConn()
	conn.blocks <- statehistory.BlockResult{
		ThisBlock:        &statehistory.BlockPosition{Num: 5, ID: hash(5)},
		LastIrreversible: statehistory.BlockPosition{Num: 1},
	}

	sess := New(Config{StopBefore: 5}, conn, newTestView(t), resolveRaw)
	reason, err := sess.Run(context.Background())
	require.NoError(t, err)
	require.False(t, reason.Retry)
	require.Equal(t, Closed, sess.State())
}

func TestSessionForkRewindIsFatal(t *testing.T) {
	conn := newFakeConn()
	conn.blocks <- statehistory.BlockResult{
		ThisBlock:        &statehistory.BlockPosition{Num: 1, ID: hash(1)},
		LastIrreversible: statehistory.BlockPosition{Num: 1},
	}
	conn.blocks <- statehistory.BlockResult{
		ThisBlock:        &statehistory.BlockPosition{Num: 1, ID: hash(1)}, // not > head
		PrevBlock:        &statehistory.BlockPosition{Num: 0, ID: hash(0)},
		LastIrreversible: statehistory.BlockPosition{Num: 1},
	}

	sess := New(Config{}, conn, newTestView(t), resolveRaw)
	reason, err := sess.Run(context.Background())
	require.Error(t, err)
	require.False(t, reason.Retry)
	var fe *FatalError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, ReasonForkRewind, fe.Reason)
}

func TestSessionDiscontinuityIsFatal(t *testing.T) {
	conn := newFakeConn()
	conn.blocks <- statehistory.BlockResult{
		ThisBlock:        &statehistory.BlockPosition{Num: 1, ID: hash(1)},
		LastIrreversible: statehistory.BlockPosition{Num: 1},
	}
	conn.blocks <- statehistory.BlockResult{
		ThisBlock:        &statehistory.BlockPosition{Num: 2, ID: hash(2)},
		PrevBlock:        &statehistory.BlockPosition{Num: 1, ID: hash(99)}, // wrong prev id
		LastIrreversible: statehistory.BlockPosition{Num: 1},
	}

	sess := New(Config{}, conn, newTestView(t), resolveRaw)
	_, err := sess.Run(context.Background())
	require.Error(t, err)
	var fe *FatalError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, ReasonDiscontinuity, fe.Reason)
}

func TestSessionCommitsNearHeadEveryBlock(t *testing.T) {
	conn := newFakeConn()
	// head+4 >= irreversible triggers a commit on every block from the start.
	conn.blocks <- statehistory.BlockResult{
		ThisBlock:        &statehistory.BlockPosition{Num: 1, ID: hash(1)},
		LastIrreversible: statehistory.BlockPosition{Num: 1},
	}
	conn.blocks <- statehistory.BlockResult{
		ThisBlock:        &statehistory.BlockPosition{Num: 2, ID: hash(2)},
		PrevBlock:        &statehistory.BlockPosition{Num: 1, ID: hash(1)},
		LastIrreversible: statehistory.BlockPosition{Num: 2},
	}
	conn.blocks <- statehistory.BlockResult{
		ThisBlock:        &statehistory.BlockPosition{Num: 3, ID: hash(3)},
		PrevBlock:        &statehistory.BlockPosition{Num: 2, ID: hash(2)},
		LastIrreversible: statehistory.BlockPosition{Num: 3},
	}

	view := newTestView(t)
	sess := New(Config{StopBefore: 3}, conn, view, resolveRaw)

	done := make(chan struct{})
	go func() {
		sess.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not finish in time")
	}

	st, err := filldb.Read(storeReader{view})
	require.NoError(t, err)
	require.Equal(t, uint32(2), st.Head)
}
