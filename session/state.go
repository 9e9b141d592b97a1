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

// State is one of the session's five states (spec §4.5), modeled as a
// string type the way cmd/ubtconv/phase.go's DaemonPhase is, so logged
// transitions are self-describing.
type State string

const (
	Connecting     State = "connecting"
	AwaitingSchema State = "awaiting-schema"
	AwaitingStatus State = "awaiting-status"
	Streaming      State = "streaming"
	Closed         State = "closed"
)
