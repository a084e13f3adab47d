package tcpserver

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/chirdeeptomar/carbon-cache/internal/cachecore"
	"github.com/chirdeeptomar/carbon-cache/internal/codec"
	"github.com/chirdeeptomar/carbon-cache/internal/registry"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T) (addr string, reg *registry.Registry) {
	t.Helper()
	reg = registry.New()
	require.NoError(t, reg.Create(registry.Spec{Name: "ns", Policy: cachecore.PolicyLRU, MemBudgetBytes: 1 << 20}))

	srv := New(reg, zerolog.Nop(), time.Second)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr = ln.Addr().String()
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan struct{})
	go func() {
		close(ready)
		_ = srv.Serve(ctx, addr)
	}()
	<-ready
	time.Sleep(20 * time.Millisecond) // let the listener bind

	t.Cleanup(func() {
		cancel()
		_ = srv.Close()
		srv.Wait()
	})
	return addr, reg
}

func roundTrip(t *testing.T, conn net.Conn, req codec.Request) codec.Response {
	t.Helper()
	payload, err := codec.EncodeRequest(req)
	require.NoError(t, err)
	require.NoError(t, codec.WriteFrame(conn, payload))

	frame, err := codec.ReadFrame(conn)
	require.NoError(t, err)
	resp, err := codec.DecodeResponse(frame)
	require.NoError(t, err)
	return resp
}

func TestTCPServer_PingPong(t *testing.T) {
	t.Parallel()

	addr, _ := startTestServer(t)
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	resp := roundTrip(t, conn, codec.Request{Command: codec.CmdPing})
	require.Equal(t, codec.KindPong, resp.Kind)
}

func TestTCPServer_PutGetDelete(t *testing.T) {
	t.Parallel()

	addr, _ := startTestServer(t)
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	putResp := roundTrip(t, conn, codec.Request{
		Command: codec.CmdPut, CacheName: []byte("ns"), Key: []byte("k1"), Value: []byte("v1"),
	})
	require.Equal(t, codec.KindOk, putResp.Kind)

	getResp := roundTrip(t, conn, codec.Request{
		Command: codec.CmdGet, CacheName: []byte("ns"), Key: []byte("k1"),
	})
	require.Equal(t, codec.KindValue, getResp.Kind)
	require.Equal(t, "v1", string(getResp.Value))

	delResp := roundTrip(t, conn, codec.Request{
		Command: codec.CmdDelete, CacheName: []byte("ns"), Key: []byte("k1"),
	})
	require.Equal(t, codec.KindOk, delResp.Kind)

	getResp = roundTrip(t, conn, codec.Request{
		Command: codec.CmdGet, CacheName: []byte("ns"), Key: []byte("k1"),
	})
	require.Equal(t, codec.KindNotFound, getResp.Kind)
}

func TestTCPServer_UnknownCacheReturnsError(t *testing.T) {
	t.Parallel()

	addr, _ := startTestServer(t)
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	resp := roundTrip(t, conn, codec.Request{
		Command: codec.CmdGet, CacheName: []byte("missing-ns"), Key: []byte("k"),
	})
	require.Equal(t, codec.KindError, resp.Kind)
}

// A malformed frame produces an Error response but leaves the connection
// open for the next, well-formed request.
func TestTCPServer_MalformedFrameKeepsConnectionOpen(t *testing.T) {
	t.Parallel()

	addr, _ := startTestServer(t)
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, codec.WriteFrame(conn, []byte{0xFF}))
	frame, err := codec.ReadFrame(conn)
	require.NoError(t, err)
	resp, err := codec.DecodeResponse(frame)
	require.NoError(t, err)
	require.Equal(t, codec.KindError, resp.Kind)

	pong := roundTrip(t, conn, codec.Request{Command: codec.CmdPing})
	require.Equal(t, codec.KindPong, pong.Kind)
}
