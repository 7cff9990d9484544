package tcpserver

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
)

// Envelope types understood by the listener.
const (
	TypeAppInit = "app_init"
	TypeLogs    = "logs"
)

// Envelope is one line-delimited message: {"type": ..., "data": ...}.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// AppInit is the payload of an app_init envelope.
type AppInit struct {
	Sources    []string `json:"sources"`
	Categories []string `json:"categories"`
}

// Logs is the payload of a logs envelope. Entries are decoded one by one
// so a single bad document does not reject the message.
type Logs struct {
	Entries []json.RawMessage `json:"entries"`
}

// ProtocolError reports an envelope that was ignored.
type ProtocolError struct {
	Type   string
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	msg := "tcpserver: protocol: " + e.Reason
	if e.Type != "" {
		msg += fmt.Sprintf(" (type %q)", e.Type)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// BindError reports that the listening endpoint could not be acquired.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("tcpserver: listen on %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// DecodeEnvelope parses one envelope line.
func DecodeEnvelope(line []byte) (Envelope, error) {
	var env Envelope
	line = bytes.TrimSpace(line)
	if len(line) == 0 || line[0] != '{' {
		return env, &ProtocolError{Reason: "envelope is not an object"}
	}
	if err := json.Unmarshal(line, &env); err != nil {
		return env, &ProtocolError{Reason: "malformed envelope", Err: err}
	}
	if env.Type == "" {
		return env, &ProtocolError{Reason: "missing type"}
	}
	return env, nil
}

func decodePayload(env Envelope, v any) error {
	if len(env.Data) == 0 || bytes.Equal(env.Data, []byte("null")) {
		return &ProtocolError{Type: env.Type, Reason: "missing data"}
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return &ProtocolError{Type: env.Type, Reason: "malformed data", Err: err}
	}
	return nil
}

// EncodeLogs builds a logs envelope line from pre-encoded entry documents.
func EncodeLogs(docs ...[]byte) ([]byte, error) {
	entries := make([]json.RawMessage, len(docs))
	for i, d := range docs {
		entries[i] = d
	}
	return encode(TypeLogs, Logs{Entries: entries})
}

// EncodeAppInit builds an app_init envelope line.
func EncodeAppInit(sources, categories []string) ([]byte, error) {
	return encode(TypeAppInit, AppInit{Sources: sources, Categories: categories})
}

func encode(typ string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	line, err := json.Marshal(Envelope{Type: typ, Data: data})
	if err != nil {
		return nil, err
	}
	return append(line, '\n'), nil
}
