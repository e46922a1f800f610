package rpc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// maxLineBytes bounds a single request line. Attachments travel as
// base64 inside results, not requests, so inbound lines stay small.
const maxLineBytes = 4 * 1024 * 1024

// Server accepts JSON-RPC connections and dispatches method calls.
type Server struct {
	ops    Operations
	events EventSource
	creds  CredentialManager
	ctrl   Controller
	log    zerolog.Logger

	mu        sync.Mutex
	listeners []net.Listener
	conns     map[net.Conn]struct{}
	closed    bool

	wg sync.WaitGroup
}

// NewServer wires the RPC surface to its collaborators.
func NewServer(ops Operations, events EventSource, creds CredentialManager, ctrl Controller, log zerolog.Logger) *Server {
	return &Server{
		ops:    ops,
		events: events,
		creds:  creds,
		ctrl:   ctrl,
		log:    log,
		conns:  make(map[net.Conn]struct{}),
	}
}

// ListenUnix binds the primary Unix socket, replacing any stale socket
// file from a previous run. The socket is the authorization boundary,
// so it is restricted to the owning user.
func (s *Server) ListenUnix(path string) error {
	_ = os.Remove(path)

	l, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("listening on socket %s: %w", path, err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		l.Close()
		return fmt.Errorf("restricting socket %s: %w", path, err)
	}

	s.addListener(l)
	return nil
}

// ListenTCP binds the alternate loopback TCP transport.
func (s *Server) ListenTCP(port int) error {
	l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return fmt.Errorf("listening on tcp port %d: %w", port, err)
	}
	s.addListener(l)
	return nil
}

func (s *Server) addListener(l net.Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Start runs one accept loop per bound listener and returns. Handlers
// derive their lifetime from ctx and from Close.
func (s *Server) Start(ctx context.Context) {
	s.mu.Lock()
	listeners := append([]net.Listener(nil), s.listeners...)
	s.mu.Unlock()

	for _, l := range listeners {
		s.wg.Add(1)
		go s.acceptLoop(ctx, l)
	}
}

func (s *Server) acceptLoop(ctx context.Context, l net.Listener) {
	defer s.wg.Done()
	s.log.Info().Str("addr", l.Addr().String()).Msg("rpc listener ready")

	for {
		conn, err := l.Accept()
		if err != nil {
			if !s.isClosed() {
				s.log.Error().Err(err).Msg("accept failed")
			}
			return
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close stops accepting first, then tears down live connections and
// waits for their handlers to finish. Safe to call more than once.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.wg.Wait()
		return
	}
	s.closed = true
	listeners := s.listeners
	conns := make([]net.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		_ = l.Close()
	}
	for _, c := range conns {
		_ = c.Close()
	}
	s.wg.Wait()
}

func (s *Server) dropConn(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// connWriter serializes writes: responses and event notifications
// share one connection.
type connWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func (w *connWriter) send(v interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(v)
}

// connState carries per-connection handler state. Only the handler
// goroutine touches it; the subscription goroutine sees the writer alone.
type connState struct {
	writer     *connWriter
	subscribed bool
	subCancel  context.CancelFunc
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer s.dropConn(conn)
	defer conn.Close()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	state := &connState{writer: &connWriter{enc: json.NewEncoder(conn)}}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		s.handleLine(connCtx, state, line)
	}
	if err := scanner.Err(); err != nil && connCtx.Err() == nil && !s.isClosed() {
		s.log.Debug().Err(err).Msg("connection read ended")
	}
}

func (s *Server) handleLine(ctx context.Context, state *connState, line []byte) {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		_ = state.writer.send(Response{
			JSONRPC: jsonrpcVersion,
			Error:   &Error{Code: CodeParse, Message: "malformed request: " + err.Error()},
		})
		return
	}
	if req.Method == "" {
		_ = state.writer.send(Response{
			JSONRPC: jsonrpcVersion,
			ID:      req.ID,
			Error:   &Error{Code: CodeInvalidRequest, Message: "request has no method"},
		})
		return
	}

	result, err := s.call(ctx, state, req)

	// A request without an id is a notification; it gets no reply.
	if len(req.ID) == 0 {
		return
	}

	resp := Response{JSONRPC: jsonrpcVersion, ID: req.ID}
	if err != nil {
		resp.Error = classifyError(err)
		s.log.Debug().Str("method", req.Method).Str("error", resp.Error.Message).Msg("rpc call failed")
	} else {
		resp.Result = result
	}
	if err := state.writer.send(resp); err != nil {
		s.log.Debug().Err(err).Str("method", req.Method).Msg("writing response")
	}
}
