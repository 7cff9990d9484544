package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/logdeck/internal/engine"
	"github.com/tinytelemetry/logdeck/internal/filter"
	"github.com/tinytelemetry/logdeck/internal/httpserver"
	"github.com/tinytelemetry/logdeck/internal/ingest"
	"github.com/tinytelemetry/logdeck/internal/logging"
	"github.com/tinytelemetry/logdeck/internal/socketrpc"
	"github.com/tinytelemetry/logdeck/internal/tcpserver"
)

// surfaceState is what the banner reports for one listener.
type surfaceState struct {
	enabled bool
	addr    string
	err     error
}

// runServer starts the engine, its listeners and the text-stream pipeline,
// and blocks until a signal arrives.
func runServer(cfg appConfig) error {
	cleanupLogger := configureRuntimeLogger(cfg)
	defer cleanupLogger()
	log := logging.With("server")

	eng := engine.New(engine.Config{
		RetentionBound:  cfg.Retention,
		SubscriberQueue: cfg.SubscriberQueue,
	})
	defer eng.Close()

	if cfg.FilterFile != "" {
		spec, err := filter.LoadPreset(cfg.FilterFile)
		if err != nil {
			return fmt.Errorf("failed to load filter-file: %w", err)
		}
		eng.SetFilter(spec.Compile())
		log.Info().Str("path", cfg.FilterFile).Msg("filter preset applied")
	}

	// Set up context and signal handling before errgroup
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Build the text-stream pipeline: sources -> mux -> processor -> batcher -> engine.
	plugins := buildInputPlugins(InputPluginConfig{
		Files:       cfg.Inputs,
		MaxLineSize: cfg.MaxLineSize,
	})
	sources := buildSources(ctx, plugins, func(name string, err error) {
		log.Error().Err(err).Str("plugin", name).Msg("input plugin failed")
	})
	mux := NewSourceMultiplexer(ctx, sources, cfg.MuxBufferSize)

	batcher := ingest.NewBatcher(eng, ingest.BatcherConfig{
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
	})
	defer batcher.Stop()

	processor, err := ingest.NewEnvelopeProcessor(cfg.Processor, batcher, mux.PrimarySourceName())
	if err != nil {
		return err
	}

	tcp := surfaceState{enabled: cfg.TCPEnabled, addr: cfg.TCPAddr}
	if cfg.TCPEnabled {
		tcpServer := tcpserver.NewServer(cfg.TCPAddr, eng)
		if err := tcpServer.Start(); err != nil {
			var bindErr *tcpserver.BindError
			if !errors.As(err, &bindErr) {
				return fmt.Errorf("failed to start TCP listener: %w", err)
			}
			// Degraded: the text stream and the read surfaces keep running.
			tcp.err = err
			log.Warn().Err(err).Msg("tcp listener unavailable, continuing without it")
		} else {
			tcp.addr = tcpServer.Addr()
			defer tcpServer.Stop()
		}
	}

	api := surfaceState{enabled: cfg.APIEnabled, addr: cfg.APIAddr}
	if cfg.APIEnabled {
		apiServer := httpserver.NewServer(cfg.APIAddr, eng)
		if err := apiServer.Start(); err != nil {
			return fmt.Errorf("failed to start API server: %w", err)
		}
		api.addr = apiServer.Addr()
		defer apiServer.Stop()
	}

	// Start socket RPC server for TUI IPC
	sock := surfaceState{enabled: true, addr: cfg.SocketPath}
	sockServer := socketrpc.NewServer(cfg.SocketPath, eng)
	if err := sockServer.Start(); err != nil {
		sock.err = err
		log.Warn().Err(err).Msg("failed to start socket server")
	} else {
		defer sockServer.Stop()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nShutting down gracefully... (press Ctrl+C again to force)")
		cancel()

		// Shutdown deadline starts now, not at boot.
		deadline := time.NewTimer(10 * time.Second)
		defer deadline.Stop()

		select {
		case <-sigCh:
			fmt.Println("\nForce shutdown.")
		case <-deadline.C:
			fmt.Println("Shutdown timed out, forcing exit.")
		}
		cleanupSocket(cfg.SocketPath)
		os.Exit(1)
	}()

	mux.Start()
	printStartupBanner(cfg, bannerInfo{
		tcp:       tcp,
		api:       api,
		socket:    sock,
		inputs:    mux.SourceNames(),
		processor: processor.Name(),
		filter:    eng.Filter(),
	})
	log.Info().
		Str("session", eng.Session()).
		Int("retention", cfg.Retention).
		Strs("inputs", mux.SourceNames()).
		Msg("engine started")

	// Use errgroup for concurrent goroutine lifecycle management.
	g, gctx := errgroup.WithContext(ctx)

	// Ingestion loop; returns when every source is drained or Stop closes the mux.
	if mux.HasSources() {
		g.Go(func() error {
			for env := range mux.Lines() {
				processor.ProcessEnvelope(env)
			}
			return nil
		})
	}

	// Wait for context cancellation (from signal handler) in the errgroup
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("errgroup exited with error")
	}

	cancel()
	mux.Stop()
	batcher.Stop()

	// If we reach here, graceful shutdown succeeded within the deadline.
	// The signal goroutine (if active) dies with the process.
	signal.Stop(sigCh)

	stats := eng.Stats()
	log.Info().
		Uint64("ingested", stats.Ingested).
		Uint64("evicted", stats.Evicted).
		Uint64("dropped", stats.Dropped).
		Msg("engine stopped")
	return nil
}

func cleanupSocket(path string) {
	if path != "" {
		os.Remove(path)
	}
}

// configureRuntimeLogger points the process logger at cfg.LogFile, or at
// stderr when the file is "-" or cannot be opened.
func configureRuntimeLogger(cfg appConfig) func() {
	stderr := func() func() {
		logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: os.Stderr})
		return func() {}
	}

	if cfg.LogFile == "" || cfg.LogFile == "-" {
		return stderr()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0755); err != nil {
		return stderr()
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return stderr()
	}

	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: f})
	return func() {
		_ = f.Close()
	}
}

type bannerInfo struct {
	tcp       surfaceState
	api       surfaceState
	socket    surfaceState
	inputs    []string
	processor string
	filter    *filter.Filter
}

func printStartupBanner(cfg appConfig, info bannerInfo) {
	fmt.Println(renderStartupBanner(cfg, info))
}

func renderStartupBanner(cfg appConfig, info bannerInfo) string {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	dot := dim.Render("●")
	warn := yellow.Render("●")

	logo := cyan.Bold(true).Render(`
    ╦  ╔═╗╔═╗╔╦╗╔═╗╔═╗╦╔═
    ║  ║ ║║ ╦ ║║║╣ ║  ╠╩╗
    ╩═╝╚═╝╚═╝═╩╝╚═╝╚═╝╩ ╩`)

	surface := func(label string, s surfaceState, addr string) string {
		switch {
		case !s.enabled:
			return fmt.Sprintf("    %s  %-14s %s", dot, label, dim.Render("disabled"))
		case s.err != nil:
			return fmt.Sprintf("    %s  %-14s %s", warn, label, yellow.Render("unavailable ("+addr+")"))
		default:
			return fmt.Sprintf("    %s  %-14s %s", check, label, cyan.Render(addr))
		}
	}

	var lines []string
	lines = append(lines, "")
	lines = append(lines, logo)
	lines = append(lines, "    "+dim.Render("v"+version))
	lines = append(lines, "")

	separator := dim.Render("    ─────────────────────────────────")
	lines = append(lines, separator)
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Gateway"))
	lines = append(lines, "")
	lines = append(lines, surface("HTTP API", info.api, info.api.addr))
	lines = append(lines, surface("TCP Ingest", info.tcp, info.tcp.addr))
	lines = append(lines, surface("Unix Socket", info.socket, shortenPath(info.socket.addr)))
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Engine"))
	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("    %s  %-14s %s", check, "Retention", dim.Render(fmt.Sprintf("%d entries", cfg.Retention))))
	lines = append(lines, fmt.Sprintf("    %s  %-14s %s", check, "Processor", dim.Render(info.processor)))
	if info.filter != nil && !info.filter.IsIdentity() {
		lines = append(lines, fmt.Sprintf("    %s  %-14s %s", check, "Filter", dim.Render(shortenPath(cfg.FilterFile))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  %-14s %s", dot, "Filter", dim.Render("none")))
	}
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Inputs"))
	lines = append(lines, "")
	if len(info.inputs) == 0 {
		lines = append(lines, fmt.Sprintf("    %s  %s", dot, dim.Render("no text streams")))
	}
	for _, name := range info.inputs {
		lines = append(lines, fmt.Sprintf("    %s  %s", check, dim.Render(name)))
	}
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Config"))
	lines = append(lines, "")
	if cfg.ConfigPath != "" {
		lines = append(lines, fmt.Sprintf("    %s  %-14s %s", check, "Config File", dim.Render(shortenPath(cfg.ConfigPath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  %-14s %s", dot, "Config File", dim.Render("default (no file)")))
	}

	lines = append(lines, "")
	lines = append(lines, separator)
	lines = append(lines, "")
	lines = append(lines, "    "+dim.Render("Press ")+yellow.Render("Ctrl+C")+dim.Render(" to stop"))
	lines = append(lines, "")

	return strings.Join(lines, "\n")
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
