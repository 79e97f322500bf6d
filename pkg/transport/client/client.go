// Package client implements the asynchronous, fan-out capable RPC
// client: callers enqueue Tasks against a list of candidate hosts and
// a single event-loop goroutine drives dialing, handshaking, dispatch,
// per-host concurrency limits, and failover to completion.
package client

import (
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/nainya/evqlite/internal/logger"
	"github.com/nainya/evqlite/internal/metrics"
	"github.com/nainya/evqlite/pkg/evqerr"
	"github.com/nainya/evqlite/pkg/wire"
)

// Dialer opens a new connection to addr. Production callers pass
// net.Dial; tests substitute an in-process pipe.
type Dialer func(addr string) (net.Conn, error)

// Config bounds the client's behavior.
type Config struct {
	MaxConnsPerHost  int
	IOTimeout        time.Duration
	TolerateFailures bool
}

// Client owns a single event loop (see Execute) that is the sole
// mutator of every Task and connection it manages.
type Client struct {
	cfg       Config
	dial      Dialer
	callbacks Callbacks
	log       *logger.Logger
	metrics   *metrics.Metrics

	incoming chan *Task
	events   chan connEvent
	stopCh   chan struct{}
	stopped  chan struct{}

	// Loop-goroutine-owned state: touched only from within Execute.
	connsByHost map[string][]*connection
	waiting     map[string][]*Task
	fatalErr    error // set once, by abort; Execute returns it
}

// New constructs a Client. Execute must be run (typically in its own
// goroutine) before AddRPC'd tasks make progress.
func New(cfg Config, dial Dialer, log *logger.Logger, m *metrics.Metrics, cb Callbacks) *Client {
	if cfg.MaxConnsPerHost <= 0 {
		cfg.MaxConnsPerHost = 4
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Client{
		cfg:         cfg,
		dial:        dial,
		callbacks:   cb,
		log:         log,
		metrics:     m,
		incoming:    make(chan *Task, 64),
		events:      make(chan connEvent, 64),
		stopCh:      make(chan struct{}),
		stopped:     make(chan struct{}),
		connsByHost: make(map[string][]*connection),
		waiting:     make(map[string][]*Task),
	}
}

// AddRPC enqueues t for dispatch by the loop goroutine. Safe to call
// concurrently with Execute and with other AddRPC calls.
func (c *Client) AddRPC(t *Task) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	c.incoming <- t
}

// Shutdown stops Execute's loop and closes every connection it owns.
// It blocks until the loop has exited.
func (c *Client) Shutdown() {
	close(c.stopCh)
	<-c.stopped
}

// Execute runs the client's single-threaded event loop until Shutdown
// is called or a task exhausts its candidate hosts while
// TolerateFailures is false. All Task/Connection mutation and all
// callback invocation happens here and only here.
//
// On the TolerateFailures=false abort path, Execute cancels every
// other outstanding task (not yet dispatched, queued and in-flight,
// each completing with the same error via OnCompleted) and returns that
// first error. A stop caused by Shutdown makes Execute return nil: it
// is a deliberate stop, not a failure.
func (c *Client) Execute() error {
	defer close(c.stopped)
	defer c.closeAllConnections()

	for {
		select {
		case <-c.stopCh:
			return nil
		case t := <-c.incoming:
			c.dispatch(t)
		case ev := <-c.events:
			c.handleEvent(ev)
		}
		if c.fatalErr != nil {
			return c.fatalErr
		}
	}
}

func (c *Client) dispatch(t *Task) {
	host, ok := t.nextHost()
	if !ok {
		c.failTask(t, evqerr.New(evqerr.KindInvalidArgument, "task has no candidate hosts"))
		return
	}
	if c.metrics != nil {
		c.metrics.TasksStartedTotal.Inc()
	}
	c.startOnHost(t, host)
}

func (c *Client) startOnHost(t *Task, host string) {
	t.host = host

	if conn := c.takeIdleConn(host); conn != nil {
		c.sendTask(conn, t)
		return
	}
	if len(c.connsByHost[host]) >= c.cfg.MaxConnsPerHost {
		c.waiting[host] = append(c.waiting[host], t)
		return
	}

	conn, err := c.dialAndHandshake(host)
	if err != nil {
		c.retryOrFail(t, err)
		return
	}
	conn.task = t
	c.connsByHost[host] = append(c.connsByHost[host], conn)
	c.markStarted(t)
	// conn is in HANDSHAKE, awaiting HELLO_ACK; handleHandshakeAck
	// sends the query once it arrives.
}

func (c *Client) dialAndHandshake(host string) (*connection, error) {
	rawConn, err := c.dial(host)
	if err != nil {
		return nil, evqerr.Wrap(evqerr.KindIOError, fmt.Sprintf("dial %s", host), err)
	}

	conn := newConnection(host, rawConn)
	conn.state = stateHandshake
	if err := conn.sendHello(nil); err != nil {
		conn.close()
		return nil, err
	}
	conn.startWorker(c.events, c.cfg.IOTimeout)
	return conn, nil
}

func (c *Client) takeIdleConn(host string) *connection {
	for _, conn := range c.connsByHost[host] {
		if conn.state == stateReady && conn.task == nil {
			return conn
		}
	}
	return nil
}

func (c *Client) sendTask(conn *connection, t *Task) {
	conn.task = t
	conn.state = stateQuery
	c.markStarted(t)

	if err := conn.sendQuery(t.Flags, t.Payload); err != nil {
		c.dropConnection(conn)
		c.retryOrFail(t, err)
	}
}

func (c *Client) markStarted(t *Task) {
	if t.Started {
		return
	}
	t.Started = true
	if c.callbacks.OnStarted != nil {
		c.callbacks.OnStarted(t)
	}
}

func (c *Client) handleEvent(ev connEvent) {
	conn := ev.conn
	if ev.err != nil {
		c.handleConnError(conn, ev.err)
		return
	}

	switch conn.state {
	case stateHandshake:
		c.handleHandshakeAck(conn, ev.frame)
	case stateQuery:
		c.handleQueryFrame(conn, ev.frame)
	default:
		c.log.Warn("unexpected frame on connection").Str("state", conn.state.String()).Msg("dropping")
	}
}

func (c *Client) handleHandshakeAck(conn *connection, f wire.Frame) {
	if f.Opcode != wire.OpHelloAck {
		t := conn.task
		c.dropConnection(conn)
		if t != nil {
			c.retryOrFail(t, evqerr.New(evqerr.KindAuthRejected, "handshake rejected by "+conn.addr))
		}
		return
	}
	conn.state = stateReady
	if conn.task != nil {
		t := conn.task
		conn.task = nil
		c.sendTask(conn, t)
	}
}

func (c *Client) handleQueryFrame(conn *connection, f wire.Frame) {
	t := conn.task
	if t == nil {
		return
	}

	switch f.Opcode {
	case wire.OpQueryResult:
		conn.state = stateReady
		conn.task = nil
		c.completeTask(t, f.Payload, nil)
		c.serveNextWaiting(conn)
	case wire.OpError:
		conn.state = stateReady
		conn.task = nil
		c.retryOrFail(t, evqerr.New(evqerr.KindProtocol, string(f.Payload)))
		c.serveNextWaiting(conn)
	case wire.OpQueryProgress:
		// Progress frames don't complete the task; stay in QUERY.
	default:
		c.log.Warn("unexpected opcode during query").Uint16("opcode", uint16(f.Opcode)).Msg("ignoring")
	}
}

func (c *Client) serveNextWaiting(conn *connection) {
	queue := c.waiting[conn.addr]
	if len(queue) == 0 {
		return
	}
	next := queue[0]
	c.waiting[conn.addr] = queue[1:]
	c.sendTask(conn, next)
}

func (c *Client) handleConnError(conn *connection, err error) {
	t := conn.task
	c.dropConnection(conn)
	if t != nil {
		c.retryOrFail(t, err)
	}
}

func (c *Client) dropConnection(conn *connection) {
	conn.close()
	list := c.connsByHost[conn.addr]
	for i, cc := range list {
		if cc == conn {
			c.connsByHost[conn.addr] = append(list[:i], list[i+1:]...)
			break
		}
	}
}

// retryOrFail always fails t over to its next candidate host first,
// regardless of TolerateFailures: host order is a property of the
// Task, not of the client's failure policy. TolerateFailures is only
// consulted once t's candidate list is exhausted — it decides whether
// the exhausted task merely completes with success=false (run
// continues) or the whole Execute loop aborts.
func (c *Client) retryOrFail(t *Task, err error) {
	if host, ok := t.nextHost(); ok {
		if c.metrics != nil {
			c.metrics.TasksFailedOverTotal.Inc()
		}
		c.startOnHost(t, host)
		return
	}

	c.failTask(t, err)
	if !c.cfg.TolerateFailures {
		c.abort(err)
	}
}

// abort records err as the loop's fatal error and cancels every other
// outstanding task (queued or bound to a connection) with the same
// error; Execute notices fatalErr on its next iteration and returns
// it. Idempotent: only the first abort wins.
func (c *Client) abort(err error) {
	if c.fatalErr != nil {
		return
	}
	c.fatalErr = err

	for drained := false; !drained; {
		select {
		case qt := <-c.incoming:
			c.completeTask(qt, nil, err)
		default:
			drained = true
		}
	}
	for host, queue := range c.waiting {
		for _, qt := range queue {
			c.completeTask(qt, nil, err)
		}
		delete(c.waiting, host)
	}
	for _, list := range c.connsByHost {
		for _, conn := range list {
			if conn.task != nil {
				qt := conn.task
				conn.task = nil
				c.completeTask(qt, nil, err)
			}
		}
	}
}

func (c *Client) completeTask(t *Task, result []byte, err error) {
	t.result = result
	t.err = err
	t.done = true

	if err == nil && c.callbacks.OnResult != nil {
		c.callbacks.OnResult(t, result)
	}
	if c.callbacks.OnCompleted != nil {
		c.callbacks.OnCompleted(t, err)
	}
	if c.metrics != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		c.metrics.TasksCompletedTotal.WithLabelValues(outcome).Inc()
	}
}

func (c *Client) failTask(t *Task, err error) {
	c.completeTask(t, nil, err)
}

func (c *Client) closeAllConnections() {
	for _, list := range c.connsByHost {
		for _, conn := range list {
			conn.close()
		}
	}
}
