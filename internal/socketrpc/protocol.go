package socketrpc

import (
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
)

// JSON-RPC 2.0 Method Reference
//
// The socket RPC server exposes the engine read and control API over a
// Unix domain socket, one request or response per line.
//
//   Method      Params                               Result
//   ─────────   ──────────────────────────────────   ──────────────
//   Snapshot    {Limit: int, Filter: *filter.Spec}   []model.Entry
//   Metadata    (none)                               model.Metadata
//   GetFilter   (none)                               filter.Spec
//   SetFilter   {Filter: filter.Spec}                filter.Spec
//   Clear       (none)                               bool
//   Stats       (none)                               engine.Stats
//
// Snapshot with a null Filter uses the active filter; Limit <= 0 returns
// every match. SetFilter returns the normalized filter now active.
//
// Error codes follow JSON-RPC 2.0:
//   -32700  Parse error (malformed JSON)
//   -32601  Method not found
//   -32602  Invalid params
//   -32603  Internal error (marshal failure)

const (
	CodeParseError     = -32700
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string { return e.Message }

// DefaultSocketPath returns the default Unix socket path.
// It prefers $XDG_RUNTIME_DIR/logdeck/logdeck.sock, falling back to
// ~/.local/state/logdeck/logdeck.sock.
func DefaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "logdeck", "logdeck.sock")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/logdeck.sock"
	}
	return filepath.Join(home, ".local", "state", "logdeck", "logdeck.sock")
}
