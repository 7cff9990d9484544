package main

import (
	"time"

	"github.com/tinytelemetry/logdeck/internal/ingest"
	"github.com/tinytelemetry/logdeck/internal/logsource"
	"github.com/tinytelemetry/logdeck/internal/model"
)

const (
	defaultBindHost        = "127.0.0.1"
	defaultTCPPort         = 4000
	defaultAPIPort         = 3000
	defaultRetention       = model.DefaultRetentionBound
	defaultSubscriberQueue = model.DefaultSubscriberQueue
	defaultMuxBufferSize   = DefaultMuxBuffer
	defaultBatchSize       = ingest.DefaultBatchSize
	defaultFlushInterval   = ingest.DefaultFlushInterval
	defaultMaxLineSize     = logsource.DefaultMaxLineSize
	defaultProcessor       = ingest.ProcessorModeParse
	defaultLogLevel        = "info"
	defaultLogFormat       = "json"
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	Host            string        `mapstructure:"host"`
	TCPEnabled      bool          `mapstructure:"tcp-enabled"`
	TCPPort         int           `mapstructure:"tcp-port"`
	TCPAddr         string        `mapstructure:"tcp-addr"`
	APIEnabled      bool          `mapstructure:"api-enabled"`
	APIPort         int           `mapstructure:"api-port"`
	APIAddr         string        `mapstructure:"api-addr"`
	SocketPath      string        `mapstructure:"socket-path"`
	Retention       int           `mapstructure:"retention"`
	SubscriberQueue int           `mapstructure:"subscriber-queue"`
	MuxBufferSize   int           `mapstructure:"mux-buffer-size"`
	BatchSize       int           `mapstructure:"batch-size"`
	FlushInterval   time.Duration `mapstructure:"flush-interval"`
	Inputs          []string      `mapstructure:"inputs"`
	MaxLineSize     int           `mapstructure:"max-line-size"`
	FilterFile      string        `mapstructure:"filter-file"`
	Processor       string        `mapstructure:"processor"`
	LogLevel        string        `mapstructure:"log-level"`
	LogFormat       string        `mapstructure:"log-format"`
	LogFile         string        `mapstructure:"log-file"`
	ConfigPath      string        `mapstructure:"-"` // not from config file
}
