package remote

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"github.com/chazu/corvid/capability"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// NewConnectHandler exposes d as a Connect service. Mount the handler on
// the returned path.
func NewConnectHandler(d capability.Dispatcher, opts ...connect.HandlerOption) (string, http.Handler) {
	h := connect.NewUnaryHandler(
		DispatchProcedure,
		func(ctx context.Context, req *connect.Request[wrapperspb.BytesValue]) (*connect.Response[wrapperspb.BytesValue], error) {
			out, err := serve(ctx, d, req.Msg.GetValue())
			if err != nil {
				return nil, toConnectError(err)
			}
			return connect.NewResponse(wrapperspb.Bytes(out)), nil
		},
		opts...,
	)
	mux := http.NewServeMux()
	mux.Handle(DispatchProcedure, h)
	return ServicePath, mux
}

// ConnectDispatcher dispatches requests to a Connect service.
type ConnectDispatcher struct {
	client *connect.Client[wrapperspb.BytesValue, wrapperspb.BytesValue]
}

// NewConnectDispatcher creates a dispatcher for the service at baseURL.
func NewConnectDispatcher(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *ConnectDispatcher {
	return &ConnectDispatcher{
		client: connect.NewClient[wrapperspb.BytesValue, wrapperspb.BytesValue](
			httpClient,
			strings.TrimRight(baseURL, "/")+DispatchProcedure,
			opts...,
		),
	}
}

func (c *ConnectDispatcher) Dispatch(ctx context.Context, req *capability.Request) (*capability.Response, error) {
	data, err := capability.MarshalRequest(req)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.CallUnary(ctx, connect.NewRequest(wrapperspb.Bytes(data)))
	if err != nil {
		return nil, fromConnectError(err)
	}
	return capability.UnmarshalResponse(resp.Msg.GetValue())
}
