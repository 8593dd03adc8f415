package remote

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chazu/corvid/capability"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/test/bufconn"
)

func testRegistry(t *testing.T) *capability.Registry {
	t.Helper()
	r := capability.NewRegistry()
	r.Register("echo", "1", func(ctx context.Context, p any) (any, error) {
		return map[string]any{"echo": p}, nil
	})
	r.Register("slow", "", func(ctx context.Context, p any) (any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
			return nil, nil
		}
	})
	return r
}

func startConnect(t *testing.T, d capability.Dispatcher) *ConnectDispatcher {
	t.Helper()
	mux := http.NewServeMux()
	mux.Handle(NewConnectHandler(d))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewConnectDispatcher(srv.Client(), srv.URL)
}

func startGRPC(t *testing.T, d capability.Dispatcher) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer()
	RegisterGRPC(s, d)
	reflection.Register(s)
	go s.Serve(lis)
	t.Cleanup(s.Stop)

	conn, err := Dial("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// transports returns a dispatcher per transport, all backed by d.
func transports(t *testing.T, d capability.Dispatcher) map[string]capability.Dispatcher {
	return map[string]capability.Dispatcher{
		"connect": startConnect(t, d),
		"grpc":    NewGRPCDispatcher(startGRPC(t, d)),
	}
}

func TestDispatchRoundTrip(t *testing.T) {
	for name, d := range transports(t, testRegistry(t)) {
		t.Run(name, func(t *testing.T) {
			resp, err := d.Dispatch(context.Background(), &capability.Request{
				Seq: 1, Alias: "e", Capability: "echo", Version: "1", Payload: "hello",
			})
			if err != nil {
				t.Fatalf("Dispatch: %v", err)
			}
			m, ok := resp.Payload.(map[string]any)
			if !ok || m["echo"] != "hello" {
				t.Errorf("payload = %#v", resp.Payload)
			}
		})
	}
}

func TestDispatchErrorsKeepTheirMeaning(t *testing.T) {
	gated := capability.Gate(capability.NewRestrictedPolicy([]string{"echo", "slow"}), testRegistry(t))
	for name, d := range transports(t, gated) {
		t.Run(name, func(t *testing.T) {
			_, err := d.Dispatch(context.Background(), &capability.Request{Capability: "echo", Version: "9"})
			if !errors.Is(err, capability.ErrUnknownCapability) {
				t.Errorf("unknown version: err = %v", err)
			}
			_, err = d.Dispatch(context.Background(), &capability.Request{Capability: "fs.write"})
			if !errors.Is(err, capability.ErrDenied) {
				t.Errorf("denied: err = %v", err)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
			defer cancel()
			_, err = d.Dispatch(ctx, &capability.Request{Capability: "slow"})
			if !errors.Is(err, context.DeadlineExceeded) {
				t.Errorf("timeout: err = %v", err)
			}
		})
	}
}

func TestServesReportsService(t *testing.T) {
	conn := startGRPC(t, testRegistry(t))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ok, err := Serves(ctx, conn)
	if err != nil {
		t.Fatalf("Serves: %v", err)
	}
	if !ok {
		services, _ := ListServices(ctx, conn)
		t.Errorf("service not listed in %v", services)
	}
}

func TestNewUnknownTransport(t *testing.T) {
	if _, _, err := New("pigeon", "x"); !errors.Is(err, ErrUnknownTransport) {
		t.Errorf("err = %v", err)
	}
}
