package model

import "time"

// Shared defaults used by both the service and TUI binaries.
const (
	DefaultUpdateInterval  = 2 * time.Second
	DefaultRetentionBound  = 50_000
	DefaultSubscriberQueue = 1024
	DefaultTailLines       = 1000

	// DefaultSource is used when a document carries no source.
	DefaultSource = "unknown"
)
