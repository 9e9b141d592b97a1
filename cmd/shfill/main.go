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

// shfill is the state-history filler daemon: it streams block-level table
// deltas from an upstream state-history node and materializes them into an
// embedded ordered KV store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/chainfill/shfill/filldb"
	"github.com/chainfill/shfill/kv"
	"github.com/chainfill/shfill/kvstore"
	"github.com/chainfill/shfill/session"
	"github.com/chainfill/shfill/statehistory"
	"github.com/chainfill/shfill/supervisor"
	"github.com/chainfill/shfill/transport"
)

var (
	app = &cli.App{
		Name:  "shfill",
		Usage: "state-history filler daemon",
	}

	upstreamEndpointFlag = &cli.StringFlag{
		Name:     "upstream-endpoint",
		Usage:    "Upstream state-history websocket endpoint (ws://host:port)",
		Required: true,
	}
	dataDirFlag = &cli.StringFlag{
		Name:  "datadir",
		Usage: "Data directory for the materialized KV store",
		Value: "./shfill-data",
	}
	skipToFlag = &cli.Uint64Flag{
		Name:  "skip-to",
		Usage: "Start no earlier than this block",
		Value: 0,
	}
	stopBeforeFlag = &cli.Uint64Flag{
		Name:  "stop-before",
		Usage: "Exit cleanly on reaching this block (0 = disabled)",
		Value: 0,
	}
	dbEngineFlag = &cli.StringFlag{
		Name:  "db.engine",
		Usage: "KV store backend: leveldb or pebble",
		Value: "pebble",
	}
	dbCacheFlag = &cli.IntFlag{
		Name:  "db.cache",
		Usage: "Database cache size in MB (leveldb and pebble)",
		Value: 512,
	}
	dbHandlesFlag = &cli.IntFlag{
		Name:  "db.handles",
		Usage: "Number of open file handles (leveldb)",
		Value: 256,
	}
	handshakeTimeoutFlag = &cli.DurationFlag{
		Name:  "handshake-timeout",
		Usage: "Websocket handshake timeout",
		Value: 10 * time.Second,
	}
)

func init() {
	app.Action = runDaemon
	app.Flags = []cli.Flag{
		upstreamEndpointFlag,
		dataDirFlag,
		skipToFlag,
		stopBeforeFlag,
		dbEngineFlag,
		dbCacheFlag,
		dbHandlesFlag,
		handshakeTimeoutFlag,
	}
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runDaemon(cliCtx *cli.Context) error {
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, log.LevelInfo, true)))

	cfg := buildConfigFromCLI(cliCtx)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	view := kv.New(store)
	dialer := transport.NewWebsocketDialer(cfg.UpstreamEndpoint, cfg.HandshakeTimeout)
	sup := supervisor.New(dialer, view, session.Config{
		SkipTo:     uint32(cfg.SkipTo),
		StopBefore: uint32(cfg.StopBefore),
	}, defaultCodecResolver)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("received signal, shutting down", "signal", sig)
		sup.Shutdown()
		cancel()
	}()

	log.Info("state-history filler starting", "endpoint", cfg.UpstreamEndpoint, "datadir", cfg.DataDir)
	return sup.Run(ctx)
}

// defaultCodecResolver resolves any table name to statehistory.RawCodec.
// Deployments with typed schemas provide their own CodecResolver by
// constructing a Supervisor directly instead of going through this binary.
func defaultCodecResolver(table string) (statehistory.Codec, error) {
	return statehistory.RawCodec{Prefix: filldb.TablePrefix(table)}, nil
}

func openStore(cfg *Config) (kvstore.Store, error) {
	switch cfg.DBEngine {
	case "leveldb":
		return kvstore.OpenLevelDB(cfg.DataDir, cfg.DBCache, cfg.DBHandles)
	case "pebble":
		return kvstore.OpenPebble(cfg.DataDir, cfg.DBCacheBytes)
	default:
		return nil, fmt.Errorf("unknown db engine %q", cfg.DBEngine)
	}
}

func buildConfigFromCLI(ctx *cli.Context) *Config {
	cacheMB := ctx.Int(dbCacheFlag.Name)
	return &Config{
		UpstreamEndpoint: ctx.String(upstreamEndpointFlag.Name),
		DataDir:          ctx.String(dataDirFlag.Name),
		SkipTo:           uint32(ctx.Uint64(skipToFlag.Name)),
		StopBefore:       uint32(ctx.Uint64(stopBeforeFlag.Name)),
		DBEngine:         ctx.String(dbEngineFlag.Name),
		DBCache:          cacheMB,
		DBHandles:        ctx.Int(dbHandlesFlag.Name),
		DBCacheBytes:     int64(cacheMB) * 1024 * 1024,
		HandshakeTimeout: ctx.Duration(handshakeTimeoutFlag.Name),
	}
}
