package client

import (
	"github.com/nainya/evqlite/pkg/wire"
)

// Task is one unit of RPC work handed to the client. CandidateHosts is
// tried in order: a Task fails over to the next candidate whenever its
// current connection dies or rejects it, regardless of the owning
// Client's TolerateFailures setting. Only once every candidate has
// been exhausted does TolerateFailures matter: it decides whether the
// task simply completes with success=false or the whole Execute loop
// aborts.
type Task struct {
	ID             string
	Opcode         wire.Opcode
	Flags          uint16
	Payload        []byte
	CandidateHosts []string
	Privdata       any

	// Started reports whether the first attempt has been dispatched.
	// Read-only to callers; only the loop goroutine sets it.
	Started bool

	attempt int
	host    string
	result  []byte
	err     error
	done    bool
}

// Callbacks are invoked by the client's loop goroutine only — never
// concurrently with each other or with any other client state mutation.
type Callbacks struct {
	// OnStarted fires once a task's first attempt is dispatched.
	OnStarted func(*Task)
	// OnResult fires when a task's RPC completes successfully.
	OnResult func(*Task, []byte)
	// OnCompleted fires exactly once per task, success or failure, after
	// OnResult (if any).
	OnCompleted func(*Task, error)
}

func (t *Task) nextHost() (string, bool) {
	if t.attempt >= len(t.CandidateHosts) {
		return "", false
	}
	host := t.CandidateHosts[t.attempt]
	t.attempt++
	return host, true
}
