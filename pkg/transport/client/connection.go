package client

import (
	"bufio"
	"net"
	"time"

	"github.com/nainya/evqlite/pkg/wire"
)

// connState mirrors the CONNECTING -> HANDSHAKE -> READY <-> QUERY ->
// CLOSE state machine.
type connState int

const (
	stateConnecting connState = iota
	stateHandshake
	stateReady
	stateQuery
	stateClose
)

func (s connState) String() string {
	switch s {
	case stateConnecting:
		return "CONNECTING"
	case stateHandshake:
		return "HANDSHAKE"
	case stateReady:
		return "READY"
	case stateQuery:
		return "QUERY"
	case stateClose:
		return "CLOSE"
	default:
		return "UNKNOWN"
	}
}

// connEvent is what a connection's worker goroutine reports back to
// the owning loop goroutine over a shared fan-in channel. The loop
// goroutine is the only thing that ever mutates connection or task
// state; workers only move bytes and report what they saw.
type connEvent struct {
	conn  *connection
	frame wire.Frame
	err   error
}

// connection is one pooled or in-flight socket, owned exclusively by
// the client's loop goroutine. Its worker goroutine performs blocking
// I/O bounded by waitReadable and reports frames over the client's
// shared events channel.
type connection struct {
	addr    string
	conn    net.Conn
	state   connState
	reader  *bufio.Reader
	created time.Time

	task *Task // task currently assigned to this connection, nil if idle

	closeCh chan struct{}
}

func newConnection(addr string, conn net.Conn) *connection {
	return &connection{
		addr:    addr,
		conn:    conn,
		state:   stateConnecting,
		reader:  bufio.NewReader(conn),
		created: time.Now(),
		closeCh: make(chan struct{}),
	}
}

// startWorker launches the per-connection read loop. It blocks on
// wire.ReadFrame (bounded, where possible, by an underlying
// waitReadable poll) and forwards every frame or terminal error to the
// owning loop goroutine via events, then exits.
func (c *connection) startWorker(events chan<- connEvent, ioTimeout time.Duration) {
	go func() {
		for {
			frame, err := c.readFrame(ioTimeout)
			select {
			case events <- connEvent{conn: c, frame: frame, err: err}:
			case <-c.closeCh:
				return
			}
			if err != nil {
				return
			}
		}
	}()
}

func (c *connection) readFrame(ioTimeout time.Duration) (wire.Frame, error) {
	if ioTimeout > 0 {
		if fd, err := connFD(c.conn); err == nil {
			ready, perr := waitReadable(fd, int(ioTimeout/time.Millisecond))
			if perr != nil {
				return wire.Frame{}, perr
			}
			if !ready {
				return wire.Frame{}, errTimeout("waiting for frame from " + c.addr)
			}
		}
		// connFD failing just means conn has no raw fd (e.g. a test
		// double); fall through to a plain blocking read.
	}
	return wire.ReadFrame(c.reader)
}

func (c *connection) sendHello(payload []byte) error {
	return wire.WriteFrame(c.conn, wire.OpHello, 0, payload)
}

func (c *connection) sendQuery(flags uint16, payload []byte) error {
	return wire.WriteFrame(c.conn, wire.OpQuery, flags, payload)
}

func (c *connection) close() error {
	select {
	case <-c.closeCh:
	default:
		close(c.closeCh)
	}
	c.state = stateClose
	return c.conn.Close()
}
