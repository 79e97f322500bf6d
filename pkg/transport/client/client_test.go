package client

import (
	"bufio"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nainya/evqlite/pkg/wire"
)

// fakeServer speaks just enough of the protocol to drive the client
// through HANDSHAKE -> READY -> QUERY -> READY for one or more tasks
// on a single net.Pipe connection.
func fakeServer(t *testing.T, serverConn net.Conn, respond func(q wire.Frame) (opcode wire.Opcode, payload []byte)) {
	t.Helper()
	go func() {
		r := bufio.NewReader(serverConn)

		hello, err := wire.ReadFrame(r)
		if err != nil || hello.Opcode != wire.OpHello {
			return
		}
		if err := wire.WriteFrame(serverConn, wire.OpHelloAck, 0, nil); err != nil {
			return
		}

		for {
			q, err := wire.ReadFrame(r)
			if err != nil {
				return
			}
			opcode, payload := respond(q)
			if err := wire.WriteFrame(serverConn, opcode, 0, payload); err != nil {
				return
			}
		}
	}()
}

func pipeDialer(t *testing.T, respond func(q wire.Frame) (wire.Opcode, []byte)) Dialer {
	return func(addr string) (net.Conn, error) {
		clientConn, serverConn := net.Pipe()
		fakeServer(t, serverConn, respond)
		return clientConn, nil
	}
}

func TestClientSingleTaskRoundtrip(t *testing.T) {
	dial := pipeDialer(t, func(q wire.Frame) (wire.Opcode, []byte) {
		return wire.OpQueryResult, []byte("result-for-" + string(q.Payload))
	})

	var mu sync.Mutex
	var completedErr error
	var result []byte
	doneCh := make(chan struct{})

	c := New(Config{MaxConnsPerHost: 2}, dial, nil, nil, Callbacks{
		OnResult: func(task *Task, r []byte) {
			mu.Lock()
			result = r
			mu.Unlock()
		},
		OnCompleted: func(task *Task, err error) {
			mu.Lock()
			completedErr = err
			mu.Unlock()
			close(doneCh)
		},
	})
	go c.Execute()
	defer c.Shutdown()

	c.AddRPC(&Task{
		Opcode:         wire.OpQuery,
		Payload:        []byte("abc"),
		CandidateHosts: []string{"host-a:1"},
	})

	select {
	case <-doneCh:
	case <-time.After(2 * time.Second):
		t.Fatal("task never completed")
	}

	mu.Lock()
	defer mu.Unlock()
	require.NoError(t, completedErr)
	require.Equal(t, []byte("result-for-abc"), result)
}

// TestClientFailsOverToNextCandidate exercises failover with
// TolerateFailures false, proving that failover tries every candidate
// host regardless of the tolerance flag — only a candidate list that
// ends up fully exhausted is a TolerateFailures decision.
func TestClientFailsOverToNextCandidate(t *testing.T) {
	badDial := func(addr string) (net.Conn, error) {
		if addr == "bad-host:1" {
			return nil, errTimeout("connection refused")
		}
		clientConn, serverConn := net.Pipe()
		fakeServer(t, serverConn, func(q wire.Frame) (wire.Opcode, []byte) {
			return wire.OpQueryResult, []byte("ok")
		})
		return clientConn, nil
	}

	doneCh := make(chan error, 1)
	c := New(Config{MaxConnsPerHost: 2, TolerateFailures: false}, badDial, nil, nil, Callbacks{
		OnCompleted: func(task *Task, err error) { doneCh <- err },
	})
	execErr := make(chan error, 1)
	go func() { execErr <- c.Execute() }()
	defer c.Shutdown()

	c.AddRPC(&Task{
		Opcode:         wire.OpQuery,
		Payload:        []byte("x"),
		CandidateHosts: []string{"bad-host:1", "good-host:1"},
	})

	select {
	case err := <-doneCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("task never completed")
	}

	select {
	case err := <-execErr:
		t.Fatalf("Execute aborted unexpectedly: %v", err)
	case <-time.After(50 * time.Millisecond):
		// Execute is still running: no abort, as expected when the
		// task eventually succeeded via failover.
	}
}

// TestClientNoToleranceAbortsAndCancelsOutstanding covers testable
// property 7: once a task's candidate list is exhausted with
// TolerateFailures false, Execute returns that first error and every
// other outstanding task — one still bound to a live connection, one
// sitting in the per-host wait queue — completes with the same error
// via OnCompleted instead of being left to run to its own conclusion.
func TestClientNoToleranceAbortsAndCancelsOutstanding(t *testing.T) {
	unresponsive := make(chan struct{}) // never closed: fakeServer reads the query and hangs

	dial := func(addr string) (net.Conn, error) {
		switch addr {
		case "busy-host:1":
			clientConn, serverConn := net.Pipe()
			go func() {
				r := bufio.NewReader(serverConn)
				hello, err := wire.ReadFrame(r)
				if err != nil || hello.Opcode != wire.OpHello {
					return
				}
				if err := wire.WriteFrame(serverConn, wire.OpHelloAck, 0, nil); err != nil {
					return
				}
				if _, err := wire.ReadFrame(r); err != nil {
					return
				}
				<-unresponsive // never respond to the query frame
			}()
			return clientConn, nil
		case "bad-host:1":
			return nil, errTimeout("connection refused")
		default:
			t.Fatalf("unexpected dial target %q", addr)
			return nil, nil
		}
	}

	var mu sync.Mutex
	completed := map[string]error{}
	doneAll := make(chan struct{})
	notify := func(task *Task, err error) {
		mu.Lock()
		defer mu.Unlock()
		completed[task.ID] = err
		if len(completed) == 3 {
			close(doneAll)
		}
	}

	c := New(Config{MaxConnsPerHost: 1, TolerateFailures: false}, dial, nil, nil, Callbacks{
		OnCompleted: notify,
	})
	execErr := make(chan error, 1)
	go func() { execErr <- c.Execute() }()
	defer c.Shutdown()

	// occupies busy-host:1's one connection slot and never completes
	// on its own.
	c.AddRPC(&Task{ID: "inflight", Opcode: wire.OpQuery, Payload: []byte("a"), CandidateHosts: []string{"busy-host:1"}})
	// targets the same host and the cap is already saturated by
	// "inflight", so this one sits in Client.waiting until cancelled.
	c.AddRPC(&Task{ID: "queued", Opcode: wire.OpQuery, Payload: []byte("b"), CandidateHosts: []string{"busy-host:1"}})
	// exhausts immediately and triggers the abort.
	c.AddRPC(&Task{ID: "failing", Opcode: wire.OpQuery, Payload: []byte("c"), CandidateHosts: []string{"bad-host:1"}})

	select {
	case <-doneAll:
	case <-time.After(2 * time.Second):
		t.Fatal("tasks never completed")
	}

	mu.Lock()
	require.Error(t, completed["inflight"])
	require.Error(t, completed["queued"])
	require.Error(t, completed["failing"])
	mu.Unlock()

	select {
	case err := <-execErr:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Execute never returned")
	}
}

func TestClientReusesConnectionForSecondTask(t *testing.T) {
	var calls, dials int
	var mu sync.Mutex
	pipeDial := pipeDialer(t, func(q wire.Frame) (wire.Opcode, []byte) {
		mu.Lock()
		calls++
		mu.Unlock()
		return wire.OpQueryResult, []byte("ok")
	})
	dial := func(addr string) (net.Conn, error) {
		mu.Lock()
		dials++
		mu.Unlock()
		return pipeDial(addr)
	}

	completed := make(chan struct{}, 2)
	c := New(Config{MaxConnsPerHost: 2}, dial, nil, nil, Callbacks{
		OnCompleted: func(task *Task, err error) { completed <- struct{}{} },
	})
	go c.Execute()
	defer c.Shutdown()

	c.AddRPC(&Task{Opcode: wire.OpQuery, Payload: []byte("1"), CandidateHosts: []string{"host-a:1"}})
	<-completed

	c.AddRPC(&Task{Opcode: wire.OpQuery, Payload: []byte("2"), CandidateHosts: []string{"host-a:1"}})
	<-completed

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 2, calls)
	require.Equal(t, 1, dials)
}
