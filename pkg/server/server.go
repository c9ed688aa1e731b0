// Package server exposes the dispatcher on a Unix domain socket. Clients
// write line-delimited JSON requests and read one JSON response per request.
// Every connection is served by its own goroutine, so concurrent clients
// become concurrent dispatcher callers.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"msgbridge/pkg/action"
	"msgbridge/pkg/protocol"
)

// maxRequestBytes bounds one request line.
const maxRequestBytes = 1 << 20

// Dispatcher is the subset of *dispatcher.Dispatcher the server drives.
type Dispatcher interface {
	Dispatch(ctx context.Context, kind action.Kind, args []string) (action.Outcome, error)
	IsConfigured(ctx context.Context) bool
	Status() protocol.Status
}

// EventRecorder receives lifecycle events. The journal implements it.
type EventRecorder interface {
	RecordEvent(ctx context.Context, typ, detail string) error
}

// Server accepts control connections on a Unix socket.
type Server struct {
	socketPath string
	dispatcher Dispatcher
	recorder   EventRecorder
	logger     *slog.Logger

	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
	ready  chan struct{}
	wg     sync.WaitGroup
}

// New creates a Server. recorder may be nil.
func New(socketPath string, d Dispatcher, recorder EventRecorder, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Server{
		socketPath: socketPath,
		dispatcher: d,
		recorder:   recorder,
		logger:     logger.With("component", "server"),
		conns:      make(map[net.Conn]struct{}),
		ready:      make(chan struct{}),
	}
}

// Ready is closed once the socket is listening.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Run listens on the socket and serves connections until ctx is cancelled.
// On return the socket file is removed and every connection handler has
// finished.
func (s *Server) Run(ctx context.Context) error {
	if err := s.reclaimSocket(ctx); err != nil {
		return err
	}

	ln, err := net.Listen("unix", s.socketPath) //nolint:noctx // UDS bind is instant
	if err != nil {
		return fmt.Errorf("listen unix %s: %w", s.socketPath, err)
	}
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		_ = ln.Close()
		return fmt.Errorf("chmod socket %s: %w", s.socketPath, err)
	}

	close(s.ready)
	s.logger.Info("control socket listening", "path", s.socketPath)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop(ctx, ln)
	}()

	<-ctx.Done()

	_ = ln.Close()
	s.mu.Lock()
	s.closed = true
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	_ = os.Remove(s.socketPath)
	s.logger.Info("control socket closed")
	return nil
}

// reclaimSocket clears the way for Run's listener. A leftover socket file
// from a crashed server is removed; one that still answers means another
// msgbridge owns the path and Run must not start.
func (s *Server) reclaimSocket(ctx context.Context) error {
	info, err := os.Lstat(s.socketPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat socket %s: %w", s.socketPath, err)
	}

	probeCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	var d net.Dialer
	if conn, err := d.DialContext(probeCtx, "unix", s.socketPath); err == nil {
		_ = conn.Close()
		return fmt.Errorf("control socket %s is owned by a running msgbridge server", s.socketPath)
	}

	if err := os.Remove(s.socketPath); err != nil {
		return fmt.Errorf("remove stale socket %s: %w", s.socketPath, err)
	}
	s.logger.Warn("removed stale control socket", "path", s.socketPath, "mode", info.Mode().String())
	return nil
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("accept failed", "error", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}
		if !s.track(conn) {
			_ = conn.Close()
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

// track registers conn for shutdown. It reports false once Run is closing.
func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

// handleConn serves requests from one client, in order, until it hangs up.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	clientID := uuid.NewString()
	logger := s.logger.With("client", clientID)
	logger.Debug("client connected")

	defer func() {
		_ = conn.Close()
		s.untrack(conn)
		if ctx.Err() != nil {
			return
		}
		logger.Info("client disconnected")
		if s.recorder != nil {
			if err := s.recorder.RecordEvent(context.WithoutCancel(ctx), protocol.EventClientDisconnected, clientID); err != nil {
				logger.Warn("record disconnect failed", "error", err)
			}
		}
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRequestBytes)
	enc := json.NewEncoder(conn)

	for scanner.Scan() {
		var req protocol.Request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			logger.Warn("malformed request", "error", err)
			_ = enc.Encode(protocol.Response{
				Type:      protocol.MsgResult,
				Error:     fmt.Sprintf("decode request: %v", err),
				ErrorKind: protocol.ErrKindInternal,
			})
			continue
		}

		resp := s.handle(ctx, req)
		if err := enc.Encode(resp); err != nil {
			logger.Warn("write response failed", "id", req.ID, "error", err)
			return
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		logger.Warn("read request failed", "error", err)
	}
}

// handle answers one request.
func (s *Server) handle(ctx context.Context, req protocol.Request) protocol.Response {
	switch req.Type {
	case protocol.MsgAction:
		return s.handleAction(ctx, req)
	case protocol.MsgStatus:
		st := s.dispatcher.Status()
		return protocol.Response{Type: protocol.MsgSnapshot, ID: req.ID, Status: &st}
	case protocol.MsgCheck:
		st := s.dispatcher.Status()
		ok := s.dispatcher.IsConfigured(ctx)
		st.Configured = &ok
		return protocol.Response{Type: protocol.MsgSnapshot, ID: req.ID, Status: &st}
	default:
		return protocol.Response{
			Type:      protocol.MsgResult,
			ID:        req.ID,
			Error:     fmt.Sprintf("unknown request type %q", req.Type),
			ErrorKind: protocol.ErrKindInternal,
		}
	}
}

func (s *Server) handleAction(ctx context.Context, req protocol.Request) protocol.Response {
	resp := protocol.Response{Type: protocol.MsgResult, ID: req.ID}

	kind, err := action.ParseKind(req.Action)
	if err != nil {
		resp.Error = err.Error()
		resp.ErrorKind = protocol.ErrorKind(err)
		return resp
	}

	outcome, err := s.dispatcher.Dispatch(ctx, kind, req.Args)
	if err != nil {
		resp.Error = err.Error()
		resp.ErrorKind = protocol.ErrorKind(err)
		return resp
	}
	return EncodeOutcome(resp, outcome)
}

// EncodeOutcome fills resp's shape, codes and names from o.
func EncodeOutcome(resp protocol.Response, o action.Outcome) protocol.Response {
	resp.Shape = o.Shape().String()
	for _, c := range o.Codes() {
		resp.Codes = append(resp.Codes, c.Int())
		resp.Names = append(resp.Names, c.String())
	}
	return resp
}
