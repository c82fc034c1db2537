// internal/rpc/server.go
package rpc

import (
	"context"
	"encoding/hex"
	"log/slog"

	"distributed-nlm/internal/domain"
	"distributed-nlm/internal/usecase"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Server implements LockServiceServer on top of the lock service.
type Server struct {
	service *usecase.LockService
	logger  *slog.Logger
}

var _ LockServiceServer = (*Server)(nil)

// NewServer creates a new gRPC server for the lock service.
func NewServer(service *usecase.LockService, logger *slog.Logger) *Server {
	return &Server{
		service: service,
		logger:  logger.With("component", "grpc-server"),
	}
}

// NewGRPCServer builds a grpc.Server instrumented with OpenTelemetry,
// speaking the nlm.v1 wire codec, and registers srv on it.
func NewGRPCServer(srv LockServiceServer, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.StatsHandler(otelgrpc.NewServerHandler()), serverCodec()}, opts...)
	s := grpc.NewServer(opts...)
	RegisterLockServiceServer(s, srv)
	return s
}

// toStatus maps a lock service error to a gRPC status.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	var code codes.Code
	switch domain.KindOf(err) {
	case domain.KindDenied:
		code = codes.Aborted
	case domain.KindRangeUnavailable:
		code = codes.NotFound
	case domain.KindInvalid:
		code = codes.InvalidArgument
	default:
		code = codes.Unavailable
	}
	return status.Error(code, err.Error())
}

func (s *Server) call(ctx context.Context, op string, req *LockRequest, fn func(context.Context, []byte, domain.LockRecord) error) (*LockReply, error) {
	s.logger.Debug("received lock request", "op", op, "file_id", hex.EncodeToString(req.FileID),
		"holder", hex.EncodeToString(req.Holder), "offset", req.Offset, "length", req.Length)

	if err := fn(ctx, req.FileID, domain.NewLockRecord(req.Holder, req.Offset, req.Length)); err != nil {
		return nil, toStatus(err)
	}
	return &LockReply{Result: usecase.ResultGranted}, nil
}

// Lock is the RPC method behind nlmctl lock and remote NLM front-ends.
func (s *Server) Lock(ctx context.Context, req *LockRequest) (*LockReply, error) {
	return s.call(ctx, "lock", req, s.service.Lock)
}

func (s *Server) Unlock(ctx context.Context, req *LockRequest) (*LockReply, error) {
	return s.call(ctx, "unlock", req, s.service.Unlock)
}

func (s *Server) Test(ctx context.Context, req *LockRequest) (*LockReply, error) {
	return s.call(ctx, "test", req, s.service.Test)
}

func (s *Server) List(ctx context.Context, req *ListRequest) (*ListReply, error) {
	held, err := s.service.List(ctx, req.FileID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &ListReply{Locks: held}, nil
}
