package main

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/tinytelemetry/logdeck/internal/socketrpc"
)

// Build variables - set by ldflags during build.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

func main() {
	var configPath string
	var showVersion bool

	flag.StringVar(&configPath, "config", "", "config file (default is $HOME/.config/logdeck/config.yml)")
	flag.BoolVar(&showVersion, "version", false, "print version information")
	flag.Parse()

	if showVersion {
		fmt.Printf("logdeck - Log Ingestion Engine\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Built:      %s\n", buildTime)
		fmt.Printf("  Go version: %s\n", goVersion)
		return
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := runServer(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(configPath string) (appConfig, error) {
	var cfg appConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("LOGDECK")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("host", defaultBindHost)
	v.SetDefault("tcp-enabled", true)
	v.SetDefault("tcp-port", defaultTCPPort)
	v.SetDefault("api-enabled", true)
	v.SetDefault("api-port", defaultAPIPort)
	v.SetDefault("socket-path", socketrpc.DefaultSocketPath())
	v.SetDefault("retention", defaultRetention)
	v.SetDefault("subscriber-queue", defaultSubscriberQueue)
	v.SetDefault("mux-buffer-size", defaultMuxBufferSize)
	v.SetDefault("batch-size", defaultBatchSize)
	v.SetDefault("flush-interval", defaultFlushInterval)
	v.SetDefault("inputs", []string{})
	v.SetDefault("max-line-size", defaultMaxLineSize)
	v.SetDefault("processor", defaultProcessor)
	v.SetDefault("log-level", defaultLogLevel)
	v.SetDefault("log-format", defaultLogFormat)
	v.SetDefault("log-file", filepath.Join(home, ".local", "state", "logdeck", "logdeck.log"))

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		defaultConfigPath := filepath.Join(home, ".config", "logdeck", "config.yml")
		v.SetConfigFile(defaultConfigPath)
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	cfg.ConfigPath = v.ConfigFileUsed()
	if _, err := os.Stat(cfg.ConfigPath); err != nil {
		cfg.ConfigPath = ""
	}

	if cfg.TCPPort <= 0 || cfg.TCPPort > 65535 {
		return cfg, fmt.Errorf("invalid tcp-port: %d", cfg.TCPPort)
	}
	if cfg.APIPort <= 0 || cfg.APIPort > 65535 {
		return cfg, fmt.Errorf("invalid api-port: %d", cfg.APIPort)
	}
	if cfg.Retention <= 0 {
		return cfg, fmt.Errorf("invalid retention: %d", cfg.Retention)
	}
	if cfg.SubscriberQueue <= 0 {
		return cfg, fmt.Errorf("invalid subscriber-queue: %d", cfg.SubscriberQueue)
	}
	if cfg.BatchSize <= 0 {
		return cfg, fmt.Errorf("invalid batch-size: %d", cfg.BatchSize)
	}
	if cfg.MaxLineSize <= 0 {
		return cfg, fmt.Errorf("invalid max-line-size: %d", cfg.MaxLineSize)
	}
	if cfg.FlushInterval <= 0 {
		return cfg, fmt.Errorf("invalid flush-interval: %s", cfg.FlushInterval)
	}

	for i, in := range cfg.Inputs {
		cfg.Inputs[i] = expandHome(home, in)
	}
	cfg.FilterFile = expandHome(home, cfg.FilterFile)
	cfg.LogFile = expandHome(home, cfg.LogFile)
	cfg.SocketPath = expandHome(home, cfg.SocketPath)

	if cfg.Host == "" {
		cfg.Host = defaultBindHost
	}
	if cfg.TCPAddr == "" {
		cfg.TCPAddr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.TCPPort))
	}
	if cfg.APIAddr == "" {
		cfg.APIAddr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.APIPort))
	}

	return cfg, nil
}

// expandHome expands a leading ~/ in path.
func expandHome(home, path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
