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

package main

import (
	"fmt"
	"time"
)

// Config holds the shfill daemon configuration (spec §6 "Operator
// configuration"), plus the ambient concerns (storage engine, websocket
// handshake timeout) spec.md leaves to an implementation's discretion.
type Config struct {
	UpstreamEndpoint string // host:port, required
	DataDir          string // required

	SkipTo     uint32 // default 0; start no earlier than this block
	StopBefore uint32 // default 0 = disabled; exit cleanly at this block

	DBEngine         string // "leveldb" or "pebble"
	DBCache          int    // MB, leveldb only
	DBHandles        int    // leveldb only
	DBCacheBytes     int64  // pebble only
	HandshakeTimeout time.Duration
}

// Validate checks the configuration for obvious operator mistakes before
// anything is dialed or opened (spec §7: "Configuration error... fatal at
// startup").
func (c *Config) Validate() error {
	if c.UpstreamEndpoint == "" {
		return fmt.Errorf("upstream-endpoint is required")
	}
	if c.DataDir == "" {
		return fmt.Errorf("datadir is required")
	}
	if c.DBEngine != "leveldb" && c.DBEngine != "pebble" {
		return fmt.Errorf("db-engine must be 'leveldb' or 'pebble', got %q", c.DBEngine)
	}
	if c.StopBefore != 0 && c.SkipTo != 0 && c.StopBefore <= c.SkipTo {
		return fmt.Errorf("stop-before (%d) must be greater than skip-to (%d)", c.StopBefore, c.SkipTo)
	}
	return nil
}
