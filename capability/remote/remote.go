// Package remote exposes capability dispatchers over the network and
// dispatches requests to remote tool hosts. Both transports carry the
// canonical CBOR envelope of the capability package inside a
// google.protobuf.BytesValue, so no generated stubs are needed.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/chazu/corvid/capability"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("corvid.capability.remote")

const (
	// ServiceName is the fully qualified service name on both transports.
	ServiceName = "corvid.capability.v1.CapabilityService"
	// ServicePath is the HTTP path prefix of the Connect service.
	ServicePath = "/" + ServiceName + "/"
	// DispatchProcedure is the full method name of Dispatch.
	DispatchProcedure = ServicePath + "Dispatch"
)

// Transport names accepted by New.
const (
	TransportConnect = "connect"
	TransportGRPC    = "grpc"
)

var ErrUnknownTransport = errors.New("unknown transport")

// serve decodes one request envelope, dispatches it and encodes the
// response.
func serve(ctx context.Context, d capability.Dispatcher, data []byte) ([]byte, error) {
	req, err := capability.UnmarshalRequest(data)
	if err != nil {
		return nil, err
	}
	log.Debugf("serving %s", req)
	resp, err := d.Dispatch(ctx, req)
	if err != nil {
		return nil, err
	}
	return capability.MarshalResponse(resp)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New returns a dispatcher that reaches endpoint over transport, and a
// closer releasing its connection.
func New(transport, endpoint string) (capability.Dispatcher, io.Closer, error) {
	switch transport {
	case TransportConnect, "":
		return NewConnectDispatcher(http.DefaultClient, endpoint), nopCloser{}, nil
	case TransportGRPC:
		conn, err := Dial(endpoint)
		if err != nil {
			return nil, nil, err
		}
		return NewGRPCDispatcher(conn), conn, nil
	}
	return nil, nil, fmt.Errorf("%w %q", ErrUnknownTransport, transport)
}
