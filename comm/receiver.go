package comm

import (
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
	"golang.org/x/net/context"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Fully qualified names of the gossip service and its methods.
const (
	serviceName     = "handoff.Gossip"
	methodExchange  = "/handoff.Gossip/Exchange"
	methodFetch     = "/handoff.Gossip/Fetch"
	methodIncrement = "/handoff.Gossip/Increment"
)

// Variables

// ErrInvalidSnapshot marks snapshots a replica
// refuses to merge. Replicas wrap it with details.
var ErrInvalidSnapshot = errors.New("invalid snapshot")

// Structs

// Replica is the local end of the gossip service.
// Implementations serialize access to their state.
type Replica interface {

	// Exchange merges remote into the local replica
	// and returns a snapshot of the merged state.
	Exchange(ctx context.Context, remote *Snapshot) (*Snapshot, error)

	// Fetch describes the local replica.
	Fetch(ctx context.Context) (*FetchReply, error)

	// Increment increments the local counter times
	// times and returns the value reported afterwards.
	Increment(ctx context.Context, times uint32) (int64, error)
}

// gossipHandler is implemented by receiver and lets
// gRPC check registrations against the descriptor.
type gossipHandler interface {
	exchange(ctx context.Context, req *ExchangeRequest) (*ExchangeReply, error)
	fetch(ctx context.Context, req *FetchRequest) (*FetchReply, error)
	increment(ctx context.Context, req *IncrementRequest) (*IncrementReply, error)
}

// receiver adapts a Replica to the gossip service.
type receiver struct {
	replica Replica
}

// gossipServiceDesc describes the gossip service to gRPC.
var gossipServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*gossipHandler)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Exchange",
			Handler:    exchangeHandler,
		},
		{
			MethodName: "Fetch",
			Handler:    fetchHandler,
		},
		{
			MethodName: "Increment",
			Handler:    incrementHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "handoff/gossip",
}

// Functions

// NewServer returns a gRPC server that offers the
// gossip service for replica. Every call is logged.
func NewServer(replica Replica, logger log.Logger, opts ...grpc.ServerOption) *grpc.Server {

	opts = append(opts, grpc.ChainUnaryInterceptor(loggingInterceptor(logger)))

	server := grpc.NewServer(opts...)
	server.RegisterService(&gossipServiceDesc, &receiver{replica: replica})

	return server
}

// loggingInterceptor logs method, duration and
// outcome of every incoming gossip call.
func loggingInterceptor(logger log.Logger) grpc.UnaryServerInterceptor {

	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {

		start := time.Now()
		resp, err := handler(ctx, req)

		l := log.With(logger,
			"method", info.FullMethod,
			"took", time.Since(start),
		)

		if err != nil {
			level.Warn(l).Log("msg", "gossip call failed", "err", err)
		} else {
			level.Debug(l).Log()
		}

		return resp, err
	}
}

// toStatus maps errors of a Replica to gRPC status errors.
func toStatus(err error) error {

	if err == nil {
		return nil
	}

	if _, ok := status.FromError(err); ok {
		return err
	}

	switch errors.Cause(err) {
	case ErrInvalidSnapshot:
		return status.Error(codes.InvalidArgument, err.Error())
	case context.Canceled:
		return status.Error(codes.Canceled, err.Error())
	case context.DeadlineExceeded:
		return status.Error(codes.DeadlineExceeded, err.Error())
	}

	return status.Error(codes.Internal, err.Error())
}

func (r *receiver) exchange(ctx context.Context, req *ExchangeRequest) (*ExchangeReply, error) {

	if req.Snapshot == nil {
		return nil, status.Error(codes.InvalidArgument, "exchange request carries no snapshot")
	}

	snap, err := r.replica.Exchange(ctx, req.Snapshot)
	if err != nil {
		return nil, toStatus(err)
	}

	return &ExchangeReply{Snapshot: snap}, nil
}

func (r *receiver) fetch(ctx context.Context, _ *FetchRequest) (*FetchReply, error) {

	reply, err := r.replica.Fetch(ctx)
	if err != nil {
		return nil, toStatus(err)
	}

	return reply, nil
}

func (r *receiver) increment(ctx context.Context, req *IncrementRequest) (*IncrementReply, error) {

	if req.Times == 0 {
		return nil, status.Error(codes.InvalidArgument, "increment request needs times > 0")
	}

	value, err := r.replica.Increment(ctx, req.Times)
	if err != nil {
		return nil, toStatus(err)
	}

	return &IncrementReply{Value: value}, nil
}

func exchangeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {

	in := new(ExchangeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}

	if interceptor == nil {
		return srv.(gossipHandler).exchange(ctx, in)
	}

	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: methodExchange,
	}

	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(gossipHandler).exchange(ctx, req.(*ExchangeRequest))
	}

	return interceptor(ctx, in, info, handler)
}

func fetchHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {

	in := new(FetchRequest)
	if err := dec(in); err != nil {
		return nil, err
	}

	if interceptor == nil {
		return srv.(gossipHandler).fetch(ctx, in)
	}

	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: methodFetch,
	}

	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(gossipHandler).fetch(ctx, req.(*FetchRequest))
	}

	return interceptor(ctx, in, info, handler)
}

func incrementHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {

	in := new(IncrementRequest)
	if err := dec(in); err != nil {
		return nil, err
	}

	if interceptor == nil {
		return srv.(gossipHandler).increment(ctx, in)
	}

	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: methodIncrement,
	}

	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(gossipHandler).increment(ctx, req.(*IncrementRequest))
	}

	return interceptor(ctx, in, info, handler)
}
