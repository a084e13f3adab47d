// Package tcpserver is Carbon's binary TCP front end (§4.7, §6): it accepts
// long-lived connections, decodes length-delimited frames with
// internal/codec, dispatches into the Registry, and writes back responses
// strictly in request order per connection (§5 "Scheduling model").
package tcpserver

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/chirdeeptomar/carbon-cache/internal/carbonerr"
	"github.com/chirdeeptomar/carbon-cache/internal/codec"
	"github.com/chirdeeptomar/carbon-cache/internal/registry"
	"github.com/rs/zerolog"
)

// Server accepts TCP connections and serves the binary protocol against
// reg. No authentication is required on this front end (§6, §9 Open
// Questions: the spec defers gating it to network isolation by the
// operator).
type Server struct {
	reg             *registry.Registry
	log             zerolog.Logger
	requestDeadline time.Duration

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

// New constructs a Server bound to reg. Call Serve to accept connections.
func New(reg *registry.Registry, log zerolog.Logger, requestDeadline time.Duration) *Server {
	if requestDeadline <= 0 {
		requestDeadline = 30 * time.Second
	}
	return &Server{reg: reg, log: log, requestDeadline: requestDeadline}
}

// Serve listens on addr and blocks, accepting connections until ctx is
// cancelled or Close is called. Each connection is handled by its own
// goroutine (§5 "Each TCP connection is one long-lived task").
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return carbonerr.Wrap(carbonerr.KindInternal, "tcpserver: listen", err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return nil
			}
			return carbonerr.Wrap(carbonerr.KindInternal, "tcpserver: accept", err)
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

// Close stops accepting new connections. It does not close open
// connections: each handler finishes the frame it is serving (the cache
// call bounded by the request deadline), then keeps reading until its
// client disconnects or, once the ctx passed to Serve is cancelled, until
// its next read returns.
func (s *Server) Close() error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return nil
	}
	return ln.Close()
}

// Wait blocks until every in-flight connection handler has returned.
func (s *Server) Wait() { s.wg.Wait() }

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	remote := conn.RemoteAddr().String()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		frame, err := codec.ReadFrame(conn)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			s.log.Debug().Err(err).Str("remote", remote).Msg("tcpserver: connection closed")
			return
		}

		resp := s.dispatch(ctx, frame)
		payload := codec.EncodeResponse(resp)
		if err := codec.WriteFrame(conn, payload); err != nil {
			s.log.Debug().Err(err).Str("remote", remote).Msg("tcpserver: write failed")
			return
		}
	}
}

// dispatch decodes and executes one frame, returning the response to send.
// A decode failure yields an Error response but keeps the connection open
// (§4.7 "connection may continue" — §7 ProtocolError).
func (s *Server) dispatch(ctx context.Context, frame []byte) codec.Response {
	req, err := codec.DecodeRequest(frame)
	if err != nil {
		return errorResponse(err)
	}

	switch req.Command {
	case codec.CmdPing:
		return codec.Response{Kind: codec.KindPong}

	case codec.CmdPut:
		return s.dispatchPut(ctx, req)

	case codec.CmdGet:
		return s.dispatchGet(ctx, req)

	case codec.CmdDelete:
		return s.dispatchDelete(ctx, req)

	default:
		return errorResponse(carbonerr.New(carbonerr.KindProtocolError, "unhandled command"))
	}
}

func (s *Server) dispatchPut(ctx context.Context, req codec.Request) codec.Response {
	reqCtx, cancel := context.WithTimeout(ctx, s.requestDeadline)
	defer cancel()

	ch, err := s.reg.Get(string(req.CacheName))
	if err != nil {
		return errorResponse(err)
	}
	if err := ch.Put(reqCtx, string(req.Key), cloneBytes(req.Value), 0); err != nil {
		return errorResponse(err)
	}
	return codec.Response{Kind: codec.KindOk}
}

func (s *Server) dispatchGet(ctx context.Context, req codec.Request) codec.Response {
	reqCtx, cancel := context.WithTimeout(ctx, s.requestDeadline)
	defer cancel()

	ch, err := s.reg.Get(string(req.CacheName))
	if err != nil {
		return errorResponse(err)
	}
	buf, err := ch.Get(reqCtx, string(req.Key))
	if err != nil {
		if carbonerr.Is(err, carbonerr.KindNotFound) {
			return codec.Response{Kind: codec.KindNotFound}
		}
		return errorResponse(err)
	}
	defer buf.Release()
	return codec.Response{Kind: codec.KindValue, Value: append([]byte(nil), buf.Bytes()...)}
}

func (s *Server) dispatchDelete(ctx context.Context, req codec.Request) codec.Response {
	reqCtx, cancel := context.WithTimeout(ctx, s.requestDeadline)
	defer cancel()

	ch, err := s.reg.Get(string(req.CacheName))
	if err != nil {
		return errorResponse(err)
	}
	if err := ch.Delete(reqCtx, string(req.Key)); err != nil {
		if carbonerr.Is(err, carbonerr.KindNotFound) {
			return codec.Response{Kind: codec.KindNotFound}
		}
		return errorResponse(err)
	}
	return codec.Response{Kind: codec.KindOk}
}

func errorResponse(err error) codec.Response {
	return codec.Response{Kind: codec.KindError, Msg: []byte(err.Error())}
}

// cloneBytes copies a request's zero-copy slice before it is handed to the
// cache, which retains the value past the lifetime of the frame buffer.
func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
