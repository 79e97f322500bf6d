package pool

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func pipeConn() net.Conn {
	c1, _ := net.Pipe()
	return c1
}

func TestAcquireEmptyPoolReturnsNotOK(t *testing.T) {
	p := New(Config{})
	_, ok := p.Acquire("host-a:1234")
	require.False(t, ok)
}

func TestReleaseThenAcquireRoundtrips(t *testing.T) {
	p := New(Config{})
	conn := pipeConn()

	require.NoError(t, p.Release("host-a:1234", conn))

	got, ok := p.Acquire("host-a:1234")
	require.True(t, ok)
	require.Equal(t, conn, got)

	_, ok = p.Acquire("host-a:1234")
	require.False(t, ok)
}

func TestMaxConnsPerHostRejectsExcess(t *testing.T) {
	p := New(Config{MaxConnsPerHost: 1})

	require.NoError(t, p.Release("host-a:1234", pipeConn()))
	require.NoError(t, p.Release("host-a:1234", pipeConn()))

	total, perHost := p.Stats()
	require.Equal(t, 1, total)
	require.Equal(t, 1, perHost["host-a:1234"])
}

func TestMaxConnsCapsAcrossHosts(t *testing.T) {
	p := New(Config{MaxConns: 1})

	require.NoError(t, p.Release("host-a:1", pipeConn()))
	require.NoError(t, p.Release("host-b:1", pipeConn()))

	total, _ := p.Stats()
	require.Equal(t, 1, total)
}

func TestAcquireExpiresConnectionsOlderThanMaxConnAge(t *testing.T) {
	p := New(Config{MaxConnAge: time.Nanosecond})
	require.NoError(t, p.Release("host-a:1234", pipeConn()))

	time.Sleep(time.Millisecond)

	_, ok := p.Acquire("host-a:1234")
	require.False(t, ok)

	total, _ := p.Stats()
	require.Equal(t, 0, total)
}

func TestEvictDecrementsBookkeepingWithoutClosing(t *testing.T) {
	p := New(Config{})
	require.NoError(t, p.Release("host-a:1234", pipeConn()))
	_, _ = p.Acquire("host-a:1234") // take it out of idle, bookkeeping still counts it

	p.Evict("host-a:1234")
	total, perHost := p.Stats()
	require.Equal(t, 0, total)
	require.Equal(t, 0, perHost["host-a:1234"])
}

func TestCloseAllClearsPool(t *testing.T) {
	p := New(Config{})
	require.NoError(t, p.Release("host-a:1234", pipeConn()))
	require.NoError(t, p.Release("host-b:1234", pipeConn()))

	require.NoError(t, p.CloseAll())

	total, perHost := p.Stats()
	require.Equal(t, 0, total)
	require.Empty(t, perHost)

	_, ok := p.Acquire("host-a:1234")
	require.False(t, ok)
}
