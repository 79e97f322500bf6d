// Package pool implements a bounded connection pool keyed by host
// address. It never dials: callers hand it an already-connected
// net.Conn on release and get one back on acquire.
package pool

import (
	"net"
	"sync"
	"time"

	"github.com/nainya/evqlite/pkg/evqerr"
)

// Config bounds the pool's behavior.
type Config struct {
	MaxConns        int           // total connections across all hosts, 0 = unbounded
	MaxConnsPerHost int           // 0 = unbounded
	MaxConnAge      time.Duration // 0 = never expire
	IOTimeout       time.Duration // applied by callers to the conn, not enforced here
}

type entry struct {
	conn    net.Conn
	created time.Time
}

// Pool is a single-mutex, host-keyed cache of idle connections.
type Pool struct {
	cfg Config

	mu      sync.Mutex
	idle    map[string][]entry
	total   int
	perHost map[string]int
}

// New creates an empty pool with the given bounds.
func New(cfg Config) *Pool {
	return &Pool{
		cfg:     cfg,
		idle:    make(map[string][]entry),
		perHost: make(map[string]int),
	}
}

// Acquire removes and returns an idle connection for addr if one
// exists and hasn't exceeded MaxConnAge. ok is false if the pool has
// nothing usable for addr; the caller must dial itself in that case.
func (p *Pool) Acquire(addr string) (conn net.Conn, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	bucket := p.idle[addr]
	for len(bucket) > 0 {
		e := bucket[len(bucket)-1]
		bucket = bucket[:len(bucket)-1]
		p.idle[addr] = bucket

		if p.cfg.MaxConnAge > 0 && time.Since(e.created) > p.cfg.MaxConnAge {
			e.conn.Close()
			p.total--
			p.perHost[addr]--
			continue
		}
		return e.conn, true
	}
	return nil, false
}

// Release returns conn to the pool for reuse keyed by addr. If the
// pool is at MaxConns or MaxConnsPerHost for addr, conn is closed
// instead of retained.
func (p *Pool) Release(addr string, conn net.Conn) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cfg.MaxConns > 0 && p.total >= p.cfg.MaxConns {
		return closeRejected(conn, "pool at MaxConns")
	}
	if p.cfg.MaxConnsPerHost > 0 && p.perHost[addr] >= p.cfg.MaxConnsPerHost {
		return closeRejected(conn, "pool at MaxConnsPerHost")
	}

	p.idle[addr] = append(p.idle[addr], entry{conn: conn, created: time.Now()})
	p.total++
	p.perHost[addr]++
	return nil
}

// Evict removes one idle connection for addr from the pool's
// bookkeeping without closing it — used when a caller takes ownership
// of a connection the pool had tracked (e.g. it died mid-use and is
// being replaced).
func (p *Pool) Evict(addr string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.total > 0 {
		p.total--
	}
	if p.perHost[addr] > 0 {
		p.perHost[addr]--
	}
}

// Stats reports current pool occupancy, used by the admin Stats RPC.
func (p *Pool) Stats() (total int, perHost map[string]int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	snapshot := make(map[string]int, len(p.perHost))
	for h, n := range p.perHost {
		snapshot[h] = n
	}
	return p.total, snapshot
}

// CloseAll closes every idle connection the pool holds.
func (p *Pool) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for addr, bucket := range p.idle {
		for _, e := range bucket {
			if err := e.conn.Close(); err != nil && firstErr == nil {
				firstErr = evqerr.Wrap(evqerr.KindIOError, "closing pooled connection", err)
			}
		}
		delete(p.idle, addr)
	}
	p.total = 0
	p.perHost = make(map[string]int)
	return firstErr
}

func closeRejected(conn net.Conn, reason string) error {
	if err := conn.Close(); err != nil {
		return evqerr.Wrap(evqerr.KindIOError, "closing connection rejected by pool: "+reason, err)
	}
	return nil
}
