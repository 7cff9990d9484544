// Package tcpserver accepts line-delimited envelope messages from
// instrumented applications and forwards decoded entries to a Sink.
package tcpserver

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tinytelemetry/logdeck/internal/ingest"
	"github.com/tinytelemetry/logdeck/internal/logging"
	"github.com/tinytelemetry/logdeck/internal/metrics"
	"github.com/tinytelemetry/logdeck/internal/model"
)

const (
	// DefaultAddr is used when NewServer is given an empty address.
	DefaultAddr = "127.0.0.1:4000"

	// DefaultMaxLineSize is the default maximum size (in bytes) of a single envelope line.
	DefaultMaxLineSize = 4 * 1024 * 1024 // 4MB
)

// Sink receives what the listener decodes. *engine.Engine satisfies it.
type Sink interface {
	Ingest(batch []model.Entry)
	Announce(sources, categories []string) bool
}

// ServerConfig holds tunable parameters for the TCP server.
type ServerConfig struct {
	MaxLineSize int
	// OnConnectionCount is called with the live connection count after
	// every open and close.
	OnConnectionCount func(n int)
}

// Server listens for newline-delimited envelopes over TCP.
type Server struct {
	listener    net.Listener
	addr        string
	sink        Sink
	decoder     ingest.Decoder
	maxLineSize int
	onCount     func(int)
	log         zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	conns map[string]net.Conn
}

// NewServer creates a new TCP server. Default addr is "127.0.0.1:4000".
func NewServer(addr string, sink Sink, conf ...ServerConfig) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	maxLineSize := DefaultMaxLineSize
	var onCount func(int)
	if len(conf) > 0 {
		if conf[0].MaxLineSize > 0 {
			maxLineSize = conf[0].MaxLineSize
		}
		onCount = conf[0].OnConnectionCount
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:        addr,
		sink:        sink,
		maxLineSize: maxLineSize,
		onCount:     onCount,
		log:         logging.With("tcpserver"),
		ctx:         ctx,
		cancel:      cancel,
		conns:       make(map[string]net.Conn),
	}
}

// Start binds the endpoint and begins accepting connections.
// It returns a *BindError when the endpoint cannot be acquired.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return &BindError{Addr: s.addr, Err: err}
	}
	s.listener = listener
	s.log.Info().Str("addr", listener.Addr().String()).Msg("listening")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				continue
			}
			s.wg.Add(1)
			go s.handleConnection(conn)
		}
	}()

	return nil
}

func (s *Server) track(conn net.Conn) (string, bool) {
	id := uuid.NewString()
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return "", false
	}
	s.conns[id] = conn
	n := len(s.conns)
	s.mu.Unlock()
	s.reportCount(n)
	return id, true
}

func (s *Server) untrack(id string) {
	s.mu.Lock()
	_, ok := s.conns[id]
	delete(s.conns, id)
	n := len(s.conns)
	s.mu.Unlock()
	if ok {
		s.reportCount(n)
	}
}

func (s *Server) reportCount(n int) {
	metrics.TCPConnections.Set(float64(n))
	if s.onCount != nil {
		s.onCount(n)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	id, ok := s.track(conn)
	if !ok {
		return
	}
	defer s.untrack(id)

	log := s.log.With().Str("conn", id).Str("remote", conn.RemoteAddr().String()).Logger()
	log.Debug().Msg("connection opened")

	scanner := bufio.NewScanner(conn)
	buf := make([]byte, 0, min(64*1024, s.maxLineSize))
	scanner.Buffer(buf, s.maxLineSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := s.HandleMessage(line); err != nil {
			metrics.ProtocolErrors.Inc()
			log.Debug().Err(err).Msg("ignoring message")
		}
	}
	if err := scanner.Err(); err != nil && s.ctx.Err() == nil {
		if errors.Is(err, bufio.ErrTooLong) {
			log.Warn().Int("max_bytes", s.maxLineSize).Msg("dropped connection, line exceeded max size")
			return
		}
		if !errors.Is(err, net.ErrClosed) {
			log.Warn().Err(err).Msg("read error")
		}
	}
	log.Debug().Msg("connection closed")
}

// HandleMessage processes one envelope line. Entry documents that fail to
// decode are skipped; the rest of the message is still ingested. A
// *ProtocolError is returned for envelopes that were ignored.
func (s *Server) HandleMessage(line []byte) error {
	env, err := DecodeEnvelope(line)
	if err != nil {
		return err
	}

	switch env.Type {
	case TypeAppInit:
		var announce AppInit
		if err := decodePayload(env, &announce); err != nil {
			return err
		}
		s.sink.Announce(announce.Sources, announce.Categories)
		return nil

	case TypeLogs:
		var logs Logs
		if err := decodePayload(env, &logs); err != nil {
			return err
		}
		entries := make([]model.Entry, 0, len(logs.Entries))
		for _, raw := range logs.Entries {
			entry, err := s.decoder.DecodeStructured(raw)
			if err != nil {
				metrics.DecodeFailures.WithLabelValues("tcp").Inc()
				s.log.Debug().Err(err).Msg("skipping entry document")
				continue
			}
			entries = append(entries, entry)
		}
		if len(entries) > 0 {
			s.sink.Ingest(entries)
			metrics.EntriesIngested.WithLabelValues("tcp").Add(float64(len(entries)))
		}
		return nil

	default:
		return &ProtocolError{Type: env.Type, Reason: "unknown type"}
	}
}

// Connections returns the number of open connections.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Stop closes the listener and every open connection, then waits for
// connection handlers to finish.
func (s *Server) Stop() error {
	s.cancel()
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}

	s.mu.Lock()
	for _, conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	return err
}

// Addr returns the active listen address.
// Before Start, it returns the configured address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}
