package plugin

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/getpactd/pactd/pkg/contract"
	"github.com/getpactd/pactd/pkg/verifier"
)

const ordersProto = `syntax = "proto3";

package orders;

message OrderRequest {
  int64 id = 1;
}

message OrderReply {
  int64 id = 1;
  string status = 2;
}

service OrderService {
  rpc GetOrder(OrderRequest) returns (OrderReply);
}
`

// writePluginDir lays out <dir>/orders/{plugin.json,orders.proto} pointing
// at a plugin already listening on address.
func writePluginDir(t *testing.T, address string) string {
	t.Helper()
	dir := t.TempDir()
	pluginDir := filepath.Join(dir, "orders")
	require.NoError(t, os.MkdirAll(pluginDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(pluginDir, "orders.proto"),
		[]byte(ordersProto), 0o644))
	manifest := fmt.Sprintf(
		`{"name":"orders","version":"1.0.0","address":"%s","protoFile":"orders.proto"}`,
		address)
	require.NoError(t, os.WriteFile(filepath.Join(pluginDir, "plugin.json"),
		[]byte(manifest), 0o644))
	return dir
}

// startOrderPlugin serves orders.OrderService/GetOrder dynamically: echoes
// the id back with status "shipped".
func startOrderPlugin(t *testing.T) string {
	t.Helper()

	sch, err := compileSchema(context.Background(), writeProtoFile(t))
	require.NoError(t, err)
	method, err := sch.lookup("/orders.OrderService/GetOrder")
	require.NoError(t, err)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server := grpc.NewServer()
	server.RegisterService(&grpc.ServiceDesc{
		ServiceName: "orders.OrderService",
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{{
			MethodName: "GetOrder",
			Handler: func(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
				in := dynamicpb.NewMessage(method.Input())
				if err := dec(in); err != nil {
					return nil, err
				}
				out := dynamicpb.NewMessage(method.Output())
				out.Set(method.Output().Fields().ByName("id"),
					in.Get(method.Input().Fields().ByName("id")))
				out.Set(method.Output().Fields().ByName("status"),
					protoreflect.ValueOfString("shipped"))
				return out, nil
			},
		}},
	}, struct{}{})

	go func() { _ = server.Serve(listener) }()
	t.Cleanup(server.Stop)
	return listener.Addr().String()
}

func writeProtoFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "orders.proto")
	require.NoError(t, os.WriteFile(path, []byte(ordersProto), 0o644))
	return path
}

func TestCompileSchemaAndLookup(t *testing.T) {
	sch, err := compileSchema(context.Background(), writeProtoFile(t))
	require.NoError(t, err)

	method, err := sch.lookup("/orders.OrderService/GetOrder")
	require.NoError(t, err)
	assert.Equal(t, "orders.OrderRequest", string(method.Input().FullName()))

	// Leading slash is optional.
	_, err = sch.lookup("orders.OrderService/GetOrder")
	assert.NoError(t, err)

	_, err = sch.lookup("/orders.OrderService/NoSuchMethod")
	assert.Error(t, err)
}

func TestLoadManifest(t *testing.T) {
	dir := writePluginDir(t, "127.0.0.1:9999")

	m, err := LoadManifest(dir, "orders")
	require.NoError(t, err)
	assert.Equal(t, "orders", m.Name)
	assert.Equal(t, "127.0.0.1:9999", m.Address)
	assert.FileExists(t, m.ProtoPath())

	_, err = LoadManifest(dir, "no-such-plugin")
	assert.Error(t, err)
}

func TestVerifyAgainstLivePlugin(t *testing.T) {
	address := startOrderPlugin(t)
	dir := writePluginDir(t, address)

	driver := NewDriver(dir)
	defer driver.Close()

	reqBody, err := contract.NewJSONBody(map[string]any{"id": 42})
	require.NoError(t, err)
	respBody, err := contract.NewJSONBody(map[string]any{"id": "42", "status": "shipped"})
	require.NoError(t, err)

	interaction := &contract.Interaction{
		Description: "fetch an order over grpc",
		Transport:   "orders",
		Request: contract.Request{
			Method: "POST",
			Path:   "/orders.OrderService/GetOrder",
			Body:   reqBody,
		},
		Response: contract.Response{Status: 200, Body: respBody},
	}

	mismatches, err := driver.Verify(context.Background(), verifier.Transport{}, interaction)
	require.NoError(t, err)
	assert.Empty(t, mismatches)
}

func TestVerifyDetectsMismatch(t *testing.T) {
	address := startOrderPlugin(t)
	dir := writePluginDir(t, address)

	driver := NewDriver(dir)
	defer driver.Close()

	reqBody, err := contract.NewJSONBody(map[string]any{"id": 42})
	require.NoError(t, err)
	respBody, err := contract.NewJSONBody(map[string]any{"id": "42", "status": "pending"})
	require.NoError(t, err)

	interaction := &contract.Interaction{
		Description: "fetch an order over grpc",
		Transport:   "orders",
		Request: contract.Request{
			Path: "/orders.OrderService/GetOrder",
			Body: reqBody,
		},
		Response: contract.Response{Status: 200, Body: respBody},
	}

	mismatches, err := driver.Verify(context.Background(), verifier.Transport{}, interaction)
	require.NoError(t, err)
	require.Len(t, mismatches, 1)
	assert.Equal(t, "$.status", mismatches[0].Path)
}

// writeLaunchedPluginDir lays out a plugin with no address: its entry
// script announces a port and then parks until killed.
func writeLaunchedPluginDir(t *testing.T, name string, port int) string {
	t.Helper()
	dir := t.TempDir()
	pluginDir := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(pluginDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(pluginDir, "orders.proto"),
		[]byte(ordersProto), 0o644))
	script := fmt.Sprintf("#!/bin/sh\necho '{\"port\": %d}'\nsleep 60\n", port)
	require.NoError(t, os.WriteFile(filepath.Join(pluginDir, "entry.sh"),
		[]byte(script), 0o755))
	manifest := fmt.Sprintf(
		`{"name":%q,"version":"1.0.0","entryPoint":"./entry.sh","protoFile":"orders.proto"}`,
		name)
	require.NoError(t, os.WriteFile(filepath.Join(pluginDir, "plugin.json"),
		[]byte(manifest), 0o644))
	return dir
}

func TestCloseStopsLaunchedPlugin(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("entry point is a shell script")
	}
	dir := writeLaunchedPluginDir(t, "orders", 39999)

	d := NewDriver(dir)
	p, err := d.acquire(context.Background(), "orders")
	require.NoError(t, err)
	require.NotNil(t, p.cmd)
	pid := p.cmd.Process.Pid

	require.NoError(t, d.Close())

	// Signal 0 probes for existence without delivering anything; after
	// Close the process must be gone.
	proc, err := os.FindProcess(pid)
	require.NoError(t, err)
	assert.Error(t, proc.Signal(syscall.Signal(0)))
}

func TestConcurrentAcquireLaunchesOnce(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("entry point is a shell script")
	}
	dir := writeLaunchedPluginDir(t, "orders", 39998)

	d := NewDriver(dir)
	defer d.Close()

	var wg sync.WaitGroup
	got := make([]*livePlugin, 2)
	errs := make([]error, 2)
	for i := range got {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got[i], errs[i] = d.acquire(context.Background(), "orders")
		}()
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Same(t, got[0], got[1])
}

func TestVerifyUnknownPlugin(t *testing.T) {
	driver := NewDriver(t.TempDir())
	_, err := driver.Verify(context.Background(), verifier.Transport{}, &contract.Interaction{
		Transport: "missing",
		Request:   contract.Request{Path: "/x.Y/Z"},
	})
	assert.Error(t, err)
}
