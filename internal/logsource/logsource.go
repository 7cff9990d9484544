// Package logsource provides the text-stream inputs: stdin and files.
package logsource

import "github.com/tinytelemetry/logdeck/internal/model"

// LogSource is a unified interface for all text-stream inputs.
type LogSource interface {
	Lines() <-chan model.IngestEnvelope // read-only channel of log lines
	Stop()                              // graceful shutdown
	Name() string                       // "stdin" or the input file name
}
