package grpc

import (
	"context"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ToStatus converts a service error into a gRPC status. Only the
// caller-safe message is carried.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var code codes.Code
	switch common.KindOf(err) {
	case common.KindUnauthorized:
		code = codes.Unauthenticated
	case common.KindForbidden:
		code = codes.PermissionDenied
	case common.KindConflict:
		code = codes.AlreadyExists
	case common.KindInvalidInput:
		code = codes.InvalidArgument
	case common.KindNotFound:
		code = codes.NotFound
	default:
		code = codes.Internal
	}
	return status.Error(code, common.MessageOf(err))
}

func (s *GRPCServer) errorInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	resp, err := handler(ctx, req)
	if err != nil {
		st := ToStatus(err)
		if status.Code(st) == codes.Internal {
			s.logger.Error(ctx, "rpc failed", "method", info.FullMethod, "error", err)
		}
		return resp, st
	}
	return resp, nil
}
