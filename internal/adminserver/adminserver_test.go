package adminserver

import (
	"context"
	"testing"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/stretchr/testify/require"

	"github.com/nainya/evqlite/pkg/transport/pool"
)

type fakeStats struct{}

func (fakeStats) ArenaSnapshot() (uint64, uint64) { return 7, 250 }
func (fakeStats) ClientQueueDepth() int            { return 3 }

func TestStatsIncludesPoolAndArenaFields(t *testing.T) {
	p := pool.New(pool.Config{})
	s := New(p, fakeStats{})

	resp, err := s.Stats(context.Background(), &emptypb.Empty{})
	require.NoError(t, err)

	fields := resp.AsMap()
	require.Equal(t, float64(7), fields["arena_transaction_id"])
	require.Equal(t, float64(250), fields["arena_num_rows"])
	require.Equal(t, float64(3), fields["client_queue_depth"])
	require.Equal(t, float64(0), fields["pool_total_conns"])
}

func TestStatsWithNilSourcesOmitsFields(t *testing.T) {
	s := New(nil, nil)
	resp, err := s.Stats(context.Background(), &emptypb.Empty{})
	require.NoError(t, err)
	require.Empty(t, resp.AsMap())
}

func TestHealthDefaultsToServing(t *testing.T) {
	s := New(nil, nil)
	resp, err := s.health.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}
