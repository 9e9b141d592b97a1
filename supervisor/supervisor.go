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

// Package supervisor implements the Retry Supervisor (C6): it owns at most
// one live session and reconnects it after a fixed delay on retryable
// closure. Its loop/stopCh shape is grounded on cmd/ubtconv/runner.go's
// Runner, simplified from that file's exponential backoff down to the
// fixed 1-second delay original_source/src/fill_rocksdb_plugin.cpp's
// schedule_retry() uses — the spec calls for the simpler original
// behavior, not the teacher's hardened backoff.
package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/chainfill/shfill/kv"
	"github.com/chainfill/shfill/session"
	"github.com/chainfill/shfill/transport"
)

// RetryDelay is the fixed reconnect delay on a retryable session closure
// (spec §4.6).
const RetryDelay = 1 * time.Second

// Supervisor owns the reconnect loop around a single session at a time.
// Per spec §4.6's contract with C5, Supervisor never retains a pointer
// into a closed session once Run's iteration moves past it — there is no
// long-lived back-pointer for a session to dereference after detach,
// because a Session never holds a reference to its Supervisor at all; it
// only returns a CloseReason the loop inspects after Run returns. This
// sidesteps the raw-back-pointer-cleared-in-a-destructor pattern the
// REDESIGN FLAGS call out by construction rather than by explicit
// detach() bookkeeping.
type Supervisor struct {
	dialer  transport.Dialer
	view    *kv.View
	cfg     session.Config
	resolve session.CodecResolver

	mu       sync.Mutex
	current  *session.Session
	currConn transport.Connection
	stopped  bool
	stopCh   chan struct{}
}

// New returns a Supervisor that dials through dialer and drives sessions
// against view, using resolve to build each session's schema registry.
func New(dialer transport.Dialer, view *kv.View, cfg session.Config, resolve session.CodecResolver) *Supervisor {
	return &Supervisor{dialer: dialer, view: view, cfg: cfg, resolve: resolve, stopCh: make(chan struct{})}
}

// Run blocks until ctx is done, a session closes with retry=false, or a
// fatal error stops the process. It returns the error that stopped it, or
// nil for a clean shutdown or stop_before completion.
func (sup *Supervisor) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		conn, err := sup.dialer.Dial(ctx)
		if err != nil {
			if !sup.wait(ctx, RetryDelay) {
				return nil
			}
			continue
		}

		sess := session.New(sup.cfg, conn, sup.view, sup.resolve)
		sup.setCurrent(sess, conn)

		reason, err := sess.Run(ctx)
		sup.setCurrent(nil, nil)
		conn.Close()

		if err != nil && !reason.Retry {
			log.Error("state-history session stopped with a fatal error", "err", err)
			return err
		}
		if !reason.Retry {
			log.Info("state-history session stopped cleanly")
			return nil
		}

		log.Warn("state-history session closed, reconnecting", "delay", RetryDelay, "err", reason.Err)
		if !sup.wait(ctx, RetryDelay) {
			return nil
		}
	}
}

// Current returns the live session, or nil between connections.
func (sup *Supervisor) Current() *session.Session {
	sup.mu.Lock()
	defer sup.mu.Unlock()
	return sup.current
}

// Shutdown stops the supervisor: any live session's underlying connection
// is closed (causing a clean, non-retried exit from Run), any pending retry
// timer wait unblocks immediately, and no further reconnect is scheduled
// (spec §4.6: "Shutdown cancels the timer and closes any live session
// without retry").
func (sup *Supervisor) Shutdown() {
	sup.mu.Lock()
	defer sup.mu.Unlock()
	if sup.stopped {
		return
	}
	sup.stopped = true
	close(sup.stopCh)
	if sup.currConn != nil {
		sup.currConn.Close()
	}
}

func (sup *Supervisor) setCurrent(s *session.Session, conn transport.Connection) {
	sup.mu.Lock()
	defer sup.mu.Unlock()
	sup.current = s
	sup.currConn = conn
}

// wait blocks for d or until ctx is done or Shutdown was called, returning
// false if the caller should stop retrying.
func (sup *Supervisor) wait(ctx context.Context, d time.Duration) bool {
	sup.mu.Lock()
	stopped := sup.stopped
	sup.mu.Unlock()
	if stopped {
		return false
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-sup.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}
