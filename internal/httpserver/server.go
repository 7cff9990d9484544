// Package httpserver exposes the engine over HTTP: a JSON API for reads and
// control, a websocket stream of live events, and Prometheus metrics.
package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tinytelemetry/logdeck/internal/engine"
	"github.com/tinytelemetry/logdeck/internal/filter"
	"github.com/tinytelemetry/logdeck/internal/logging"
	"github.com/tinytelemetry/logdeck/internal/model"
)

// DefaultAddr is used when NewServer is given an empty address.
const DefaultAddr = "127.0.0.1:3000"

// Backend is the engine surface the API needs. *engine.Engine satisfies it.
type Backend interface {
	Tail(f *filter.Filter, limit int) []model.Entry
	Metadata() model.Metadata
	Filter() *filter.Filter
	SetFilter(f *filter.Filter)
	Clear()
	Stats() engine.Stats
	SubscribeWithMetadata(o engine.Observer) *engine.Subscription
	Unsubscribe(s *engine.Subscription)
}

// Server provides the HTTP API.
type Server struct {
	addr      string
	backend   Backend
	server    *http.Server
	listener  net.Listener
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
	log       zerolog.Logger

	mu      sync.Mutex
	streams map[*streamClient]struct{}
}

// NewServer creates a new HTTP API server.
func NewServer(addr string, backend Backend) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:      addr,
		backend:   backend,
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
		log:       logging.With("httpserver"),
		streams:   make(map[*streamClient]struct{}),
	}
}

func (s *Server) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api")
	api.GET("/health", s.handleHealth)
	api.GET("/stats", s.handleStats)
	api.GET("/entries", s.handleEntries)
	api.POST("/entries/query", s.handleQuery)
	api.GET("/metadata", s.handleMetadata)
	api.GET("/filter", s.handleGetFilter)
	api.PUT("/filter", s.handleSetFilter)
	api.POST("/clear", s.handleClear)
	api.GET("/stream", s.handleStream)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)

	s.server = &http.Server{
		Handler:           s.router(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener
	s.startTime = time.Now()
	s.log.Info().Str("addr", listener.Addr().String()).Msg("listening")

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("serve failed")
		}
	}()
	return nil
}

// Addr returns the active listen address.
// Before Start, it returns the configured address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Stop closes every open stream and gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()

	s.mu.Lock()
	for c := range s.streams {
		c.close()
	}
	s.mu.Unlock()

	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	stats := s.backend.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"uptime":  time.Since(s.startTime).String(),
		"session": stats.Session,
		"entries": stats.Entries,
	})
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.backend.Stats())
}

// handleEntries returns the newest entries under the active filter.
// ?limit=N bounds the result; limit=0 returns every match.
func (s *Server) handleEntries(c *gin.Context) {
	limit := model.DefaultTailLines
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	c.JSON(http.StatusOK, gin.H{"entries": s.backend.Tail(s.backend.Filter(), limit)})
}

// handleQuery evaluates an ad-hoc filter without touching the active one.
func (s *Server) handleQuery(c *gin.Context) {
	var req struct {
		Limit  int         `json:"limit"`
		Filter filter.Spec `json:"filter"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": s.backend.Tail(req.Filter.Compile(), req.Limit)})
}

func (s *Server) handleMetadata(c *gin.Context) {
	c.JSON(http.StatusOK, s.backend.Metadata())
}

func (s *Server) handleGetFilter(c *gin.Context) {
	c.JSON(http.StatusOK, s.backend.Filter().Spec())
}

func (s *Server) handleSetFilter(c *gin.Context) {
	var spec filter.Spec
	if err := c.ShouldBindJSON(&spec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	f := spec.Compile()
	s.backend.SetFilter(f)
	s.log.Debug().Bool("identity", f.IsIdentity()).Msg("filter replaced")
	c.JSON(http.StatusOK, f.Spec())
}

func (s *Server) handleClear(c *gin.Context) {
	s.backend.Clear()
	c.JSON(http.StatusOK, gin.H{"cleared": true})
}
