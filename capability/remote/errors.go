package remote

import (
	"context"
	"errors"
	"fmt"

	"connectrpc.com/connect"
	"github.com/chazu/corvid/capability"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// The two transports share one status mapping. Connect codes are numerically
// identical to gRPC codes.

func codeOf(err error) connect.Code {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return connect.CodeDeadlineExceeded
	case errors.Is(err, context.Canceled):
		return connect.CodeCanceled
	case errors.Is(err, capability.ErrUnknownCapability):
		return connect.CodeNotFound
	case errors.Is(err, capability.ErrDenied):
		return connect.CodePermissionDenied
	case errors.Is(err, capability.ErrSchema):
		return connect.CodeInvalidArgument
	}
	return connect.CodeUnknown
}

// fromCode turns a transport status back into an error the machine can
// classify. Sentinels are wrapped so errors.Is keeps working across the
// wire.
func fromCode(code connect.Code, msg string) error {
	switch code {
	case connect.CodeDeadlineExceeded:
		return fmt.Errorf("%w: %s", context.DeadlineExceeded, msg)
	case connect.CodeCanceled:
		return fmt.Errorf("%w: %s", context.Canceled, msg)
	case connect.CodeNotFound:
		return fmt.Errorf("%w: %s", capability.ErrUnknownCapability, msg)
	case connect.CodePermissionDenied:
		return fmt.Errorf("%w: %s", capability.ErrDenied, msg)
	case connect.CodeInvalidArgument:
		return fmt.Errorf("%w: %s", capability.ErrSchema, msg)
	}
	return fmt.Errorf("remote: %s: %s", code, msg)
}

func toConnectError(err error) error {
	return connect.NewError(codeOf(err), err)
}

func fromConnectError(err error) error {
	var ce *connect.Error
	if errors.As(err, &ce) {
		return fromCode(ce.Code(), ce.Message())
	}
	return err
}

func toGRPCError(err error) error {
	return status.Error(codes.Code(codeOf(err)), err.Error())
}

func fromGRPCError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	return fromCode(connect.Code(st.Code()), st.Message())
}
