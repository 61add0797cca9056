package server

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/flintkv/flintkv/internal/engine"
	"github.com/flintkv/flintkv/internal/protocol"
	"github.com/flintkv/flintkv/internal/threadpool"
)

func startTestServer(t *testing.T) string {
	t.Helper()

	eng, err := engine.Open(t.TempDir(), 0, 0, nil, zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })

	pool := threadpool.NewSharedQueuePool(4, zap.NewNop().Sugar())
	t.Cleanup(pool.Close)

	srv := New(eng, listener, pool, nil, zap.NewNop().Sugar())
	go srv.Serve()

	return listener.Addr().String()
}

func doRequest(t *testing.T, addr string, req protocol.Request) protocol.Response {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, protocol.WriteRequest(conn, req))
	require.NoError(t, conn.(*net.TCPConn).CloseWrite())

	resp, err := protocol.ReadResponse(conn)
	require.NoError(t, err)
	return resp
}

func TestServerGetSetRemoveOverTCP(t *testing.T) {
	addr := startTestServer(t)

	resp := doRequest(t, addr, protocol.Request{Kind: protocol.RequestGet, Key: "missing"})
	require.Equal(t, protocol.ResponseNotFound, resp.Kind)

	resp = doRequest(t, addr, protocol.Request{Kind: protocol.RequestSet, Key: "k", Value: "v"})
	require.Equal(t, protocol.ResponseSuccess, resp.Kind)

	resp = doRequest(t, addr, protocol.Request{Kind: protocol.RequestGet, Key: "k"})
	require.Equal(t, protocol.ResponseValue, resp.Kind)
	require.Equal(t, "v", resp.Value)

	resp = doRequest(t, addr, protocol.Request{Kind: protocol.RequestRemove, Key: "k"})
	require.Equal(t, protocol.ResponseSuccess, resp.Kind)

	resp = doRequest(t, addr, protocol.Request{Kind: protocol.RequestRemove, Key: "k"})
	require.Equal(t, protocol.ResponseNotFound, resp.Kind)
}

func TestCheckAndWriteMarkerRoundTrip(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, CheckAndWriteMarker(dir, EngineLog))
	require.NoError(t, CheckAndWriteMarker(dir, EngineLog))

	err := CheckAndWriteMarker(dir, EngineBolt)
	require.ErrorIs(t, err, ErrEngineMismatch)
}
