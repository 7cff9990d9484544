// Package socketrpc serves the engine over a Unix domain socket using
// JSON-RPC 2.0. The terminal client uses it to tail and control a running
// service.
package socketrpc

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tinytelemetry/logdeck/internal/engine"
	"github.com/tinytelemetry/logdeck/internal/filter"
	"github.com/tinytelemetry/logdeck/internal/logging"
	"github.com/tinytelemetry/logdeck/internal/model"
)

const (
	// scannerInitBufSize is the initial buffer size for the per-connection scanner (64 KB).
	scannerInitBufSize = 64 * 1024
	// scannerMaxTokenSize is the maximum token size the scanner will accept (10 MB).
	scannerMaxTokenSize = 10 * 1024 * 1024
)

// Backend is the engine surface the server exposes. *engine.Engine satisfies it.
type Backend interface {
	Tail(f *filter.Filter, limit int) []model.Entry
	Metadata() model.Metadata
	Filter() *filter.Filter
	SetFilter(f *filter.Filter)
	Clear()
	Stats() engine.Stats
}

// Server exposes a Backend over a Unix domain socket using JSON-RPC 2.0.
type Server struct {
	socketPath string
	backend    Backend
	listener   net.Listener
	wg         sync.WaitGroup
	quit       chan struct{}
	stopOnce   sync.Once
	log        zerolog.Logger

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// NewServer creates a new socket RPC server.
func NewServer(socketPath string, backend Backend) *Server {
	return &Server{
		socketPath: socketPath,
		backend:    backend,
		quit:       make(chan struct{}),
		log:        logging.With("socketrpc"),
		conns:      make(map[net.Conn]struct{}),
	}
}

// Start begins listening on the Unix socket and accepting connections.
func (s *Server) Start() error {
	// Ensure the parent directory exists.
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0755); err != nil {
		return fmt.Errorf("socketrpc: mkdir: %w", err)
	}

	// Remove stale socket if it exists.
	if _, err := os.Stat(s.socketPath); err == nil {
		conn, dialErr := net.DialTimeout("unix", s.socketPath, 500*time.Millisecond)
		if dialErr != nil {
			// Socket file exists but nobody is listening, so it is stale.
			os.Remove(s.socketPath)
		} else {
			conn.Close()
			return fmt.Errorf("socketrpc: another server is already listening on %s", s.socketPath)
		}
	}

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("socketrpc: listen: %w", err)
	}
	s.listener = ln

	s.wg.Add(1)
	go s.acceptLoop()

	s.log.Info().Str("path", s.socketPath).Msg("listening")
	return nil
}

// Stop closes the listener and open connections, waits for them to drain,
// and removes the socket file.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.quit)
		if s.listener != nil {
			s.listener.Close()
		}
		s.mu.Lock()
		for conn := range s.conns {
			conn.Close()
		}
		s.mu.Unlock()
		s.wg.Wait()
		os.Remove(s.socketPath)
	})
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
				s.log.Warn().Err(err).Msg("accept error")
				// Continue on transient errors (e.g., fd limit) instead of
				// killing the entire accept loop.
				continue
			}
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, scannerInitBufSize), scannerMaxTokenSize)
	encoder := json.NewEncoder(conn)

	for scanner.Scan() {
		select {
		case <-s.quit:
			return
		default:
		}

		var req Request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			resp := Response{JSONRPC: "2.0", ID: 0, Error: &RPCError{Code: CodeParseError, Message: "parse error"}}
			if err := encoder.Encode(resp); err != nil {
				return
			}
			continue
		}

		resp := s.dispatch(req)
		if err := encoder.Encode(resp); err != nil {
			return
		}
	}
}

func hasParams(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

func (s *Server) dispatch(req Request) Response {
	resp := Response{JSONRPC: "2.0", ID: req.ID}

	marshalResult := func(v any) Response {
		data, err := json.Marshal(v)
		if err != nil {
			resp.Error = &RPCError{Code: CodeInternalError, Message: err.Error()}
			return resp
		}
		resp.Result = data
		return resp
	}

	invalidParams := func(err error) Response {
		resp.Error = &RPCError{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
		return resp
	}

	switch req.Method {
	case "Snapshot":
		var p struct {
			Limit  int
			Filter *filter.Spec
		}
		// Allow empty/null params for defaults; only reject genuinely malformed JSON.
		if hasParams(req.Params) {
			if err := json.Unmarshal(req.Params, &p); err != nil {
				return invalidParams(err)
			}
		}
		f := s.backend.Filter()
		if p.Filter != nil {
			f = p.Filter.Compile()
		}
		return marshalResult(s.backend.Tail(f, p.Limit))

	case "Metadata":
		return marshalResult(s.backend.Metadata())

	case "GetFilter":
		return marshalResult(s.backend.Filter().Spec())

	case "SetFilter":
		var p struct{ Filter filter.Spec }
		if !hasParams(req.Params) {
			return invalidParams(fmt.Errorf("missing Filter"))
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return invalidParams(err)
		}
		f := p.Filter.Compile()
		s.backend.SetFilter(f)
		return marshalResult(f.Spec())

	case "Clear":
		s.backend.Clear()
		return marshalResult(true)

	case "Stats":
		return marshalResult(s.backend.Stats())

	default:
		resp.Error = &RPCError{Code: CodeMethodNotFound, Message: fmt.Sprintf("method not found: %s", req.Method)}
		return resp
	}
}
