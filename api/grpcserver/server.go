package grpcserver

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"ladder/api/rpc"
	"ladder/domain/matching"
	"ladder/domain/orderbook"
	"ladder/domain/ticks"
	"ladder/service"
)

// Server adapts OrderService to gRPC.
type Server struct {
	svc         *service.OrderService
	conv        ticks.Converter
	depthLevels int
	log         *slog.Logger
}

func NewServer(svc *service.OrderService, conv ticks.Converter, depthLevels int, log *slog.Logger) *Server {
	return &Server{svc: svc, conv: conv, depthLevels: depthLevels, log: log.With("component", "grpc")}
}

// Register builds a grpc.Server with the logging interceptor and this
// service registered on it.
func (s *Server) Register(opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(s.logCalls)}, opts...)
	gs := grpc.NewServer(opts...)
	rpc.RegisterOrderServiceServer(gs, s)
	return gs
}

// -------------------- Commands --------------------

func (s *Server) PlaceOrder(ctx context.Context, req *rpc.PlaceOrderRequest) (*rpc.PlaceOrderResponse, error) {
	in, err := req.ToSubmit(s.conv)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	res, err := s.svc.PlaceOrder(ctx, in)
	if err != nil {
		return nil, toStatus(err)
	}
	return rpc.NewPlaceOrderResponse(res, s.conv), nil
}

func (s *Server) CancelOrder(ctx context.Context, req *rpc.CancelOrderRequest) (*rpc.CancelOrderResponse, error) {
	res, err := s.svc.CancelOrder(ctx, orderbook.OrderID(req.OrderID))
	if err != nil {
		return nil, toStatus(err)
	}
	return &rpc.CancelOrderResponse{OrderID: uint64(res.OrderID), Remaining: res.Remaining}, nil
}

// -------------------- Queries --------------------

func (s *Server) GetDepth(_ context.Context, req *rpc.GetDepthRequest) (*rpc.GetDepthResponse, error) {
	n := req.Levels
	if n <= 0 {
		n = s.depthLevels
	}
	return rpc.NewDepthResponse(s.svc.Symbol(), s.svc.Depth(n), s.conv), nil
}

// -------------------- Errors --------------------

func toStatus(err error) error {
	switch {
	case matching.IsValidation(err):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, matching.ErrOrderNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

func (s *Server) logCalls(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	code := status.Code(err)

	level := slog.LevelDebug
	if code == codes.Internal || code == codes.Unknown {
		level = slog.LevelError
	}
	s.log.Log(ctx, level, "call", "method", info.FullMethod, "code", code.String(), "took", time.Since(start))
	return resp, err
}
