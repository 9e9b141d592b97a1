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

// Package session implements the Session State Machine (C5): the per-block
// algorithm, commit cadence and fatal/transient error classification that
// drive one connection's worth of streaming. Its shape is grounded on
// cmd/ubtconv/consumer.go's executeDiffTransition/commit/shouldCommit
// trio, generalized from UBT-specific account/storage diffs to opaque
// table deltas, and on the commit-cadence and fork-check logic in
// original_source/src/fill_rocksdb_plugin.cpp's flm_session, the direct
// ancestor of this whole design.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"

	"github.com/chainfill/shfill/filldb"
	"github.com/chainfill/shfill/kv"
	"github.com/chainfill/shfill/kvstore"
	"github.com/chainfill/shfill/statehistory"
	"github.com/chainfill/shfill/transport"
)

// commitInterval and nearHeadWindow implement the §4.5 commit cadence:
// commit every 200 blocks, or every block once within nearHeadWindow of
// the last irreversible block.
const (
	commitInterval = 200
	nearHeadWindow = 4
)

var (
	metricBlocksApplied  = metrics.NewRegisteredCounter("shfill/session/blocks/applied", nil)
	metricCommits        = metrics.NewRegisteredCounter("shfill/session/commits", nil)
	metricCommitRows     = metrics.NewRegisteredCounter("shfill/session/commits/rows", nil)
	metricHeadGauge      = metrics.NewRegisteredGauge("shfill/session/head", nil)
	metricLagGauge       = metrics.NewRegisteredGauge("shfill/session/lag", nil)
)

// CodecResolver resolves a table name announced in the schema message to
// the Codec that decodes its rows. Returning an error for an unrecognized
// table is how an operator opts out of supporting it; Session treats that
// the same as any other unknown-table condition (fatal, spec §4.2).
type CodecResolver func(table string) (statehistory.Codec, error)

// Config bounds the block range a Session streams (spec §6 "Operator
// configuration"). Transport-level and storage-level configuration lives
// in their own packages' Config types.
type Config struct {
	SkipTo     uint32 // start no earlier than this block; 0 = no minimum
	StopBefore uint32 // 0 disables; exit cleanly at this block
}

// CloseReason reports why a Session stopped, for the supervisor (C6) to
// act on.
type CloseReason struct {
	Retry bool
	Err   error // nil on clean shutdown or stop_before reached
}

// Session drives one Connection through the C5 state machine. A Session
// is single-use: once Run returns, a new Session must be constructed for
// the next Connection, mirroring the teacher's one-Consumer-per-process
// (but here, one-Session-per-connection) lifetime.
type Session struct {
	cfg   Config
	conn  transport.Connection
	view  *kv.View
	resolve CodecResolver

	registry *statehistory.Registry
	state    State

	head           uint32
	headID         common.Hash
	irreversible   uint32
	irreversibleID common.Hash
	first          uint32
}

// New constructs a Session bound to conn and view. view's store must
// already be open; Session never opens or closes it.
func New(cfg Config, conn transport.Connection, view *kv.View, resolve CodecResolver) *Session {
	return &Session{
		cfg:      cfg,
		conn:     conn,
		view:     view,
		resolve:  resolve,
		registry: statehistory.NewRegistry(),
		state:    Connecting,
	}
}

// State returns the session's current state.
func (s *Session) State() State { return s.state }

// Run drives the session to completion: AwaitingSchema, AwaitingStatus,
// then Streaming until a stop condition, transport close, or fatal error.
// The returned error is non-nil only for a fatal close, and then equals
// the reason's Err. A clean stop is reported as CloseReason{Retry:false,
// Err:nil} and a transient close as CloseReason{Retry:true, Err:cause},
// both with err itself nil.
func (s *Session) Run(ctx context.Context) (CloseReason, error) {
	s.transition(AwaitingSchema)
	schema, err := s.conn.Schema(ctx)
	if err != nil {
		return s.closeTransient(err)
	}
	if err := s.applySchema(schema); err != nil {
		return s.closeFatal(err)
	}

	if err := s.loadStatus(); err != nil {
		return s.closeFatal(err)
	}
	// "Cleanup" commit: normalize any crash-surviving but uncommitted
	// state from a prior run (spec §4.5 step 2). A single commit, not the
	// double end_write() the original performs around dead truncate code.
	if err := s.commit(); err != nil {
		return s.closeFatal(fatalf(ReasonStore, "cleanup commit: %w", err))
	}
	if err := s.view.Flush(true); err != nil {
		return s.closeFatal(fatalf(ReasonStore, "cleanup flush: %w", err))
	}

	s.transition(AwaitingStatus)
	if _, err := s.conn.GetStatus(ctx); err != nil {
		return s.closeTransient(err)
	}

	start := s.head + 1
	if s.cfg.SkipTo > start {
		start = s.cfg.SkipTo
	}
	if err := s.conn.GetBlocks(ctx, transport.GetBlocksRequest{
		StartBlockNum:       start,
		MaxMessagesInFlight: 100,
		HavePositions:       s.knownPositions(),
	}); err != nil {
		return s.closeTransient(err)
	}
	s.transition(Streaming)

	for {
		select {
		case <-ctx.Done():
			return s.closeClean()
		case result, ok := <-s.conn.Blocks():
			if !ok {
				return s.closeTransient(s.conn.Err())
			}
			done, err := s.applyBlock(result)
			if err != nil {
				var fe *FatalError
				if errors.As(err, &fe) {
					return s.closeFatal(fe)
				}
				return s.closeTransient(err)
			}
			if done {
				return s.closeClean()
			}
		}
	}
}

func (s *Session) applySchema(ann transport.SchemaAnnouncement) error {
	s.registry.Reset()
	for _, table := range ann.Tables {
		codec, err := s.resolve(table)
		if err != nil {
			return fatalf(ReasonProtocol, "resolving codec for table %q: %w", table, err)
		}
		s.registry.Register(table, codec)
	}
	return nil
}

func (s *Session) loadStatus() error {
	st, err := filldb.Read(storeReader{s.view})
	if err == filldb.ErrNotFound {
		return nil // fresh store: all fields stay zero
	}
	if err != nil {
		return fatalf(ReasonStore, "loading fill status: %w", err)
	}
	s.head = st.Head
	s.headID = st.HeadID
	s.irreversible = st.Irreversible
	s.irreversibleID = st.IrreversibleID
	s.first = st.First
	return nil
}

// knownPositions reports the block positions the upstream can use to
// fork-align (spec §4.5 step: "carrying the list of known block positions
// in the unconfirmed range [irreversible, head]"). This implementation
// starts with an empty list, per spec's explicit allowance ("Implementations
// may start with an empty position list").
func (s *Session) knownPositions() []statehistory.BlockPosition {
	return nil
}

// applyBlock runs the per-block algorithm (spec §4.5) against one
// BlockResult. The bool return reports whether stop_before was reached.
func (s *Session) applyBlock(r statehistory.BlockResult) (bool, error) {
	if r.ThisBlock == nil {
		return false, nil // heartbeat
	}

	if s.cfg.StopBefore != 0 && r.ThisBlock.Num >= s.cfg.StopBefore {
		if err := s.commit(); err != nil {
			return false, fatalf(ReasonStore, "stop_before commit: %w", err)
		}
		if err := s.view.Flush(true); err != nil {
			return false, fatalf(ReasonStore, "stop_before flush: %w", err)
		}
		return true, nil
	}

	if r.ThisBlock.Num <= s.head {
		return false, fatalf(ReasonForkRewind,
			"truncate not implemented: block %d <= head %d", r.ThisBlock.Num, s.head)
	}
	zero := common.Hash{}
	if s.headID != zero {
		if r.PrevBlock == nil || r.PrevBlock.ID != s.headID {
			return false, fatalf(ReasonDiscontinuity,
				"block %d's prev_block does not match head_id %s", r.ThisBlock.Num, s.headID)
		}
	}

	if r.Deltas != nil {
		onProgress := func(table string, rows int) {
			log.Debug("state-history materialization progress", "table", table, "rows", rows)
		}
		if err := statehistory.Materialize(s.registry, r.Deltas, s.view, onProgress); err != nil {
			return false, fatalf(ReasonProtocol, "materializing block %d: %w", r.ThisBlock.Num, err)
		}
	}

	s.head = r.ThisBlock.Num
	s.headID = r.ThisBlock.ID
	s.irreversible = r.LastIrreversible.Num
	s.irreversibleID = r.LastIrreversible.ID
	if s.first == 0 {
		s.first = s.head
	}
	metricBlocksApplied.Inc(1)
	metricHeadGauge.Update(int64(s.head))
	if s.head >= s.irreversible {
		metricLagGauge.Update(0)
	} else {
		metricLagGauge.Update(int64(s.irreversible - s.head))
	}

	near := s.head+nearHeadWindow >= s.irreversible
	if s.head%commitInterval == 0 || near {
		if err := s.commit(); err != nil {
			return false, fatalf(ReasonStore, "commit at block %d: %w", s.head, err)
		}
		if near {
			if err := s.view.Flush(false); err != nil {
				return false, fatalf(ReasonStore, "near-head flush at block %d: %w", s.head, err)
			}
		}
		log.Info("state-history block applied", "head", s.head, "irreversible", s.irreversible)
	}
	return false, nil
}

// commit writes fill status (with F2 clamping) into the view and commits
// it atomically with whatever block mutations are already buffered (spec
// §4.5 step 7, §4.4).
func (s *Session) commit() error {
	status := filldb.Status{
		Head: s.head, HeadID: s.headID,
		Irreversible: s.irreversible, IrreversibleID: s.irreversibleID,
		First: s.first,
	}.Clamped()
	if err := filldb.Write(s.view, status); err != nil {
		return err
	}
	rows := s.view.Pending()
	if err := s.view.Commit(); err != nil {
		return err
	}
	metricCommits.Inc(1)
	metricCommitRows.Inc(int64(rows))
	return nil
}

func (s *Session) transition(to State) {
	log.Info("state-history session transition", "from", s.state, "to", to)
	s.state = to
}

func (s *Session) closeClean() (CloseReason, error) {
	s.transition(Closed)
	return CloseReason{Retry: false}, nil
}

func (s *Session) closeTransient(err error) (CloseReason, error) {
	s.transition(Closed)
	if err == nil {
		err = fmt.Errorf("transport closed")
	}
	return CloseReason{Retry: true, Err: err}, nil
}

func (s *Session) closeFatal(err error) (CloseReason, error) {
	s.transition(Closed)
	return CloseReason{Retry: false, Err: err}, err
}

// storeReader adapts *kv.View to filldb.Read's kvstore.Reader-shaped
// dependency without giving filldb visibility into pending-mutation
// internals: it only ever sees the committed value plus whatever this
// session itself has already buffered, via View.Get's read-your-writes
// guarantee.
type storeReader struct{ v *kv.View }

func (r storeReader) Get(key []byte) ([]byte, error) {
	val, ok, err := r.v.Get(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, kvstore.ErrNotFound
	}
	return val, nil
}

func (r storeReader) Has(key []byte) (bool, error) {
	_, ok, err := r.v.Get(key)
	return ok, err
}

// NewIterator is unused by filldb.Read, which only ever performs a point
// lookup on the fill-status singleton key; it exists solely to satisfy
// kvstore.Reader.
func (r storeReader) NewIterator(prefix, start []byte) kvstore.Iterator {
	panic("session: storeReader does not support iteration")
}
