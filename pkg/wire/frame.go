// Package wire implements the native frame codec shared by the async
// RPC client and the query operation handler:
// opcode:u16 | flags:u16 | varuint payload_len | payload. The codec is
// stateless per frame; it only knows how to read/write one frame at a
// time on a stream.
package wire

import (
	"bufio"
	"io"

	"github.com/nainya/evqlite/internal/varint"
	"github.com/nainya/evqlite/pkg/evqerr"
)

// Opcode identifies the kind of frame.
type Opcode uint16

// Opcodes used by the query path.
const (
	OpHello Opcode = iota + 1
	OpHelloAck
	OpQuery
	OpQueryProgress
	OpQueryResult
	OpQueryContinue
	OpQueryNext
	OpQueryDiscard
	OpHeartbeat
	OpError
)

// QueryFlags are the bit flags carried on an OpQuery frame.
type QueryFlags uint16

const (
	FlagSwitchDB  QueryFlags = 0x01
	FlagProgress  QueryFlags = 0x02
	FlagMultiStmt QueryFlags = 0x04
)

// Frame is one decoded wire frame.
type Frame struct {
	Opcode  Opcode
	Flags   uint16
	Payload []byte
}

// WriteFrame synchronously writes one frame to w: it blocks until the
// bytes are handed to w.
func WriteFrame(w io.Writer, opcode Opcode, flags uint16, payload []byte) error {
	buf := make([]byte, 0, 4+varint.MaxVarUintLen+len(payload))
	buf = append(buf, byte(opcode), byte(opcode>>8))
	buf = append(buf, byte(flags), byte(flags>>8))
	buf = varint.PutUvarint(buf, uint64(len(payload)))
	buf = append(buf, payload...)

	n, err := w.Write(buf)
	if err != nil {
		return evqerr.Wrap(evqerr.KindIOError, "write frame", err)
	}
	if n != len(buf) {
		return evqerr.New(evqerr.KindIOError, "short write of frame")
	}
	return nil
}

// ReadFrame synchronously reads one frame from r.
func ReadFrame(r *bufio.Reader) (Frame, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Frame{}, evqerr.Wrap(evqerr.KindIOError, "read frame header", err)
	}
	opcode := Opcode(uint16(hdr[0]) | uint16(hdr[1])<<8)
	flags := uint16(hdr[2]) | uint16(hdr[3])<<8

	length, err := varint.ReadUvarint(r)
	if err != nil {
		return Frame{}, evqerr.Wrap(evqerr.KindIOError, "read frame length", err)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Frame{}, evqerr.Wrap(evqerr.KindIOError, "read frame payload", err)
	}

	return Frame{Opcode: opcode, Flags: flags, Payload: payload}, nil
}

// Outbox is a per-connection queue of frames pending an asynchronous
// flush by the event loop.
type Outbox struct {
	pending [][]byte
}

// WriteFrameAsync encodes a frame and enqueues it onto the outbox
// instead of writing it synchronously.
func (o *Outbox) WriteFrameAsync(opcode Opcode, flags uint16, payload []byte) {
	buf := make([]byte, 0, 4+varint.MaxVarUintLen+len(payload))
	buf = append(buf, byte(opcode), byte(opcode>>8))
	buf = append(buf, byte(flags), byte(flags>>8))
	buf = varint.PutUvarint(buf, uint64(len(payload)))
	buf = append(buf, payload...)
	o.pending = append(o.pending, buf)
}

// Empty reports whether the outbox has nothing pending.
func (o *Outbox) Empty() bool { return len(o.pending) == 0 }

// Flush writes the pending buffers to w in order, dropping each one
// from the queue once it is fully written. It stops at the first write
// error or short write and returns it; the buffer being written stays
// queued whole, along with everything after it. On a plain io.Writer
// this simply writes everything and drains the queue.
func (o *Outbox) Flush(w io.Writer) error {
	for len(o.pending) > 0 {
		buf := o.pending[0]
		n, err := w.Write(buf)
		if err != nil {
			return evqerr.Wrap(evqerr.KindIOError, "flush outbox", err)
		}
		if n != len(buf) {
			return evqerr.New(evqerr.KindIOError, "short write flushing outbox")
		}
		o.pending = o.pending[1:]
	}
	return nil
}

// PutLenencString appends a length-prefixed string to buf, used when
// building frame payloads (HELLO auth pairs, QUERY's query_text, etc).
func PutLenencString(buf []byte, s string) []byte {
	return varint.PutLenencString(buf, s)
}

// PutUvarint appends a LEB128-encoded uint64 to buf.
func PutUvarint(buf []byte, v uint64) []byte {
	return varint.PutUvarint(buf, v)
}
