// Package adminserver exposes a small gRPC control-plane surface
// (health checks and point-in-time stats) alongside the native binary
// frame protocol. It intentionally carries no query semantics of its
// own — SQL execution stays on the bespoke wire codec in pkg/wire.
package adminserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nainya/evqlite/pkg/transport/pool"
)

// StatsSource is queried on every Stats RPC; callers wire in whatever
// arena/client/pool instances they're running.
type StatsSource interface {
	ArenaSnapshot() (transactionID, numRows uint64)
	ClientQueueDepth() int
}

// Server is the admin gRPC surface: standard grpc.health.v1.Health plus
// a single Stats unary RPC returning a structpb.Struct snapshot.
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	pool       *pool.Pool
	stats      StatsSource
}

// New constructs an admin server. p and stats may be nil if that
// subsystem isn't wired yet; the corresponding fields are simply
// omitted from the Stats response.
func New(p *pool.Pool, stats StatsSource) *Server {
	s := &Server{
		grpcServer: grpc.NewServer(),
		health:     health.NewServer(),
		pool:       p,
		stats:      stats,
	}

	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	s.grpcServer.RegisterService(&statsServiceDesc, s)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	return s
}

// GRPCServer returns the underlying *grpc.Server so callers can Serve
// it on a net.Listener.
func (s *Server) GRPCServer() *grpc.Server { return s.grpcServer }

// SetServingStatus updates the health status reported for service
// (empty string is the overall server status).
func (s *Server) SetServingStatus(service string, status healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus(service, status)
}

// Stats implements the handwritten Stats RPC: no .proto-generated
// request/response types are needed since emptypb and structpb already
// satisfy proto.Message.
func (s *Server) Stats(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	fields := map[string]any{}

	if s.pool != nil {
		total, perHost := s.pool.Stats()
		fields["pool_total_conns"] = float64(total)
		perHostFields := make(map[string]any, len(perHost))
		for host, n := range perHost {
			perHostFields[host] = float64(n)
		}
		fields["pool_conns_per_host"] = perHostFields
	}

	if s.stats != nil {
		txID, numRows := s.stats.ArenaSnapshot()
		fields["arena_transaction_id"] = float64(txID)
		fields["arena_num_rows"] = float64(numRows)
		fields["client_queue_depth"] = float64(s.stats.ClientQueueDepth())
	}

	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// statsServiceDesc registers Server.Stats as a unary RPC without any
// protoc-generated stub: the method name and wire types are all that's
// needed for grpc.Server to dispatch it.
var statsServiceDesc = grpc.ServiceDesc{
	ServiceName: "evqlite.admin.v1.Stats",
	HandlerType: (*statsServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Get",
			Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
				in := new(emptypb.Empty)
				if err := dec(in); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(statsServer).Stats(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/evqlite.admin.v1.Stats/Get"}
				handler := func(ctx context.Context, req any) (any, error) {
					return srv.(statsServer).Stats(ctx, req.(*emptypb.Empty))
				}
				return interceptor(ctx, in, info, handler)
			},
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "evqlite/admin.proto",
}

type statsServer interface {
	Stats(ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error)
}
