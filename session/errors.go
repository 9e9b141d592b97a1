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
	"errors"
	"fmt"
)

// FatalReason tags why a FatalError is non-retryable, so the supervisor
// can log an operator-actionable message without string-matching errors.
type FatalReason string

const (
	ReasonForkRewind     FatalReason = "fork-rewind-unsupported"
	ReasonDiscontinuity  FatalReason = "chain-discontinuity"
	ReasonProtocol       FatalReason = "protocol-violation"
	ReasonStore          FatalReason = "store-error"
	ReasonConfig         FatalReason = "configuration-error"
)

// FatalError marks an error the supervisor must never retry (spec §7:
// "Chain-consistency violation... fatal; require operator intervention").
// This replaces the teacher's exception-driven control flow
// (errValidationHalt etc.) with a typed, non-panicking sentinel error that
// the caller dispatches on with errors.As, never by string comparison —
// the same shape cmd/ubtconv/runner.go uses to classify consumer errors.
type FatalError struct {
	Reason FatalReason
	Err    error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal (%s): %v", e.Reason, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

func fatalf(reason FatalReason, format string, args ...any) *FatalError {
	return &FatalError{Reason: reason, Err: fmt.Errorf(format, args...)}
}

// IsFatal reports whether err (or anything it wraps) is a FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
