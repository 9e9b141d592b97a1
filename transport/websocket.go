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

package transport

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ethereum/go-ethereum/log"

	"github.com/chainfill/shfill/statehistory"
)

// Frame kinds, one byte each, written ahead of every websocket binary
// message (spec §6: "a framed binary stream").
const (
	kindSchema       = 0
	kindGetStatus    = 1
	kindGetBlocks    = 2
	kindStatusResult = 3
	kindBlocksResult = 4
)

// wsDialer dials an antelope-family state-history endpoint over a
// websocket, grounded on cmd/ubtconv/outbox_reader.go's reconnect/backoff
// shape (generalized here from JSON-RPC dialing to a raw framed socket).
type wsDialer struct {
	endpoint         string
	handshakeTimeout time.Duration
}

// NewWebsocketDialer returns a Dialer that connects to a ws:// or wss://
// endpoint speaking the framed binary protocol described in spec §6.
func NewWebsocketDialer(endpoint string, handshakeTimeout time.Duration) Dialer {
	if handshakeTimeout <= 0 {
		handshakeTimeout = 10 * time.Second
	}
	return &wsDialer{endpoint: endpoint, handshakeTimeout: handshakeTimeout}
}

func (d *wsDialer) Dial(ctx context.Context) (Connection, error) {
	dialer := &websocket.Dialer{HandshakeTimeout: d.handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, d.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", d.endpoint, err)
	}
	c := &wsConnection{
		conn:      conn,
		blocks:    make(chan statehistory.BlockResult, 64),
		schemaCh:  make(chan SchemaAnnouncement, 1),
		statusCh:  make(chan StatusResult, 1),
	}
	go c.readLoop()
	return c, nil
}

type wsConnection struct {
	conn *websocket.Conn

	blocks   chan statehistory.BlockResult
	schemaCh chan SchemaAnnouncement
	statusCh chan StatusResult

	mu     sync.Mutex
	closed bool
	err    error
}

func (c *wsConnection) Schema(ctx context.Context) (SchemaAnnouncement, error) {
	for {
		select {
		case s := <-c.schemaCh:
			return s, nil
		case _, ok := <-c.blocks:
			if !ok {
				return SchemaAnnouncement{}, c.Err()
			}
			// A block result ahead of the schema is out of protocol order
			// and is dropped.
		case <-ctx.Done():
			return SchemaAnnouncement{}, ctx.Err()
		}
	}
}

func (c *wsConnection) GetStatus(ctx context.Context) (StatusResult, error) {
	if err := c.writeFrame(kindGetStatus, nil); err != nil {
		return StatusResult{}, err
	}
	select {
	case s := <-c.statusCh:
		return s, nil
	case <-ctx.Done():
		return StatusResult{}, ctx.Err()
	}
}

func (c *wsConnection) GetBlocks(ctx context.Context, req GetBlocksRequest) error {
	var buf bytes.Buffer
	writeUint32(&buf, req.StartBlockNum)
	writeUint32(&buf, req.EndBlockNum)
	writeUint32(&buf, req.MaxMessagesInFlight)
	writeUvarint(&buf, uint64(len(req.HavePositions)))
	for _, p := range req.HavePositions {
		writeUint32(&buf, p.Num)
		buf.Write(p.ID[:])
	}
	return c.writeFrame(kindGetBlocks, buf.Bytes())
}

func (c *wsConnection) Blocks() <-chan statehistory.BlockResult {
	return c.blocks
}

func (c *wsConnection) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *wsConnection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.conn.Close()
}

func (c *wsConnection) writeFrame(kind byte, payload []byte) error {
	var buf bytes.Buffer
	buf.WriteByte(kind)
	buf.Write(payload)
	return c.conn.WriteMessage(websocket.BinaryMessage, buf.Bytes())
}

// readLoop is the connection's single reader; it demultiplexes incoming
// frames by kind and closes blocks (with err set) on any read failure,
// which is how the session learns to ask for a retryable close (spec §7's
// "transient transport" taxonomy entry).
func (c *wsConnection) readLoop() {
	defer close(c.blocks)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			c.err = fmt.Errorf("transport: read: %w", err)
			c.mu.Unlock()
			return
		}
		if len(data) == 0 {
			continue
		}
		if err := c.dispatch(data[0], data[1:]); err != nil {
			log.Warn("state-history transport: dropping malformed frame", "err", err)
		}
	}
}

func (c *wsConnection) dispatch(kind byte, body []byte) error {
	r := bytes.NewReader(body)
	switch kind {
	case kindSchema:
		n, err := binary.ReadUvarint(r)
		if err != nil {
			return err
		}
		tables := make([]string, 0, n)
		for i := uint64(0); i < n; i++ {
			s, err := readString(r)
			if err != nil {
				return err
			}
			tables = append(tables, s)
		}
		c.schemaCh <- SchemaAnnouncement{Tables: tables}
		return nil
	case kindStatusResult:
		var s StatusResult
		if err := binary.Read(r, binary.LittleEndian, &s.HeadBlockNum); err != nil {
			return err
		}
		if _, err := io.ReadFull(r, s.HeadBlockID[:]); err != nil {
			return err
		}
		if err := binary.Read(r, binary.LittleEndian, &s.LastIrreversibleNum); err != nil {
			return err
		}
		if _, err := io.ReadFull(r, s.LastIrreversibleID[:]); err != nil {
			return err
		}
		if _, err := io.ReadFull(r, s.ChainID[:]); err != nil {
			return err
		}
		c.statusCh <- s
		return nil
	case kindBlocksResult:
		res, err := decodeBlockResult(r)
		if err != nil {
			return err
		}
		c.blocks <- res
		return nil
	default:
		return fmt.Errorf("unknown frame kind %d", kind)
	}
}

func decodeBlockResult(r *bytes.Reader) (statehistory.BlockResult, error) {
	var res statehistory.BlockResult

	hasThis, err := r.ReadByte()
	if err != nil {
		return res, err
	}
	if hasThis != 0 {
		var p statehistory.BlockPosition
		if err := binary.Read(r, binary.LittleEndian, &p.Num); err != nil {
			return res, err
		}
		if _, err := io.ReadFull(r, p.ID[:]); err != nil {
			return res, err
		}
		res.ThisBlock = &p
	}

	hasPrev, err := r.ReadByte()
	if err != nil {
		return res, err
	}
	if hasPrev != 0 {
		var p statehistory.BlockPosition
		if err := binary.Read(r, binary.LittleEndian, &p.Num); err != nil {
			return res, err
		}
		if _, err := io.ReadFull(r, p.ID[:]); err != nil {
			return res, err
		}
		res.PrevBlock = &p
	}

	if err := binary.Read(r, binary.LittleEndian, &res.LastIrreversible.Num); err != nil {
		return res, err
	}
	if _, err := io.ReadFull(r, res.LastIrreversible.ID[:]); err != nil {
		return res, err
	}

	hasDeltas, err := r.ReadByte()
	if err != nil {
		return res, err
	}
	if hasDeltas != 0 {
		n, err := binary.ReadUvarint(r)
		if err != nil {
			return res, err
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return res, err
		}
		res.Deltas = buf
	}
	return res, nil
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeUvarint(buf *bytes.Buffer, v uint64) {
	var b [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(b[:], v)
	buf.Write(b[:n])
}

func readString(r *bytes.Reader) (string, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

var _ Dialer = (*wsDialer)(nil)
var _ Connection = (*wsConnection)(nil)
