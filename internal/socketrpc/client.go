package socketrpc

import (
	"bufio"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tinytelemetry/logdeck/internal/engine"
	"github.com/tinytelemetry/logdeck/internal/filter"
	"github.com/tinytelemetry/logdeck/internal/model"
)

// Client calls a socket RPC server over a Unix domain socket.
type Client struct {
	conn    net.Conn
	mu      sync.Mutex
	nextID  int
	scanner *bufio.Scanner
	encoder *json.Encoder
}

// Dial connects to the socket RPC server at the given path.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("socketrpc: dial: %w", err)
	}
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, scannerInitBufSize), scannerMaxTokenSize)
	return &Client{
		conn:    conn,
		scanner: scanner,
		encoder: json.NewEncoder(conn),
	}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// call performs a JSON-RPC call and unmarshals the result into dest.
func (c *Client) call(method string, params any, dest any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID

	var paramsData json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("socketrpc: marshal params: %w", err)
		}
		paramsData = data
	}

	req := Request{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  paramsData,
	}

	c.conn.SetDeadline(time.Now().Add(30 * time.Second))
	defer c.conn.SetDeadline(time.Time{})

	if err := c.encoder.Encode(req); err != nil {
		return fmt.Errorf("socketrpc: send: %w", err)
	}

	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return fmt.Errorf("socketrpc: read: %w", err)
		}
		return fmt.Errorf("socketrpc: connection closed")
	}

	var resp Response
	if err := json.Unmarshal(c.scanner.Bytes(), &resp); err != nil {
		return fmt.Errorf("socketrpc: unmarshal response: %w", err)
	}
	if resp.ID != id && resp.Error == nil {
		return fmt.Errorf("socketrpc: response id %d, want %d", resp.ID, id)
	}

	if resp.Error != nil {
		return resp.Error
	}

	if dest != nil {
		if err := json.Unmarshal(resp.Result, dest); err != nil {
			return fmt.Errorf("socketrpc: unmarshal result: %w", err)
		}
	}
	return nil
}

// Snapshot returns the newest limit entries matching spec, oldest first.
// A nil spec uses the server's active filter.
func (c *Client) Snapshot(limit int, spec *filter.Spec) ([]model.Entry, error) {
	var result []model.Entry
	err := c.call("Snapshot", map[string]any{"Limit": limit, "Filter": spec}, &result)
	return result, err
}

func (c *Client) Metadata() (model.Metadata, error) {
	var result model.Metadata
	err := c.call("Metadata", nil, &result)
	return result, err
}

func (c *Client) GetFilter() (filter.Spec, error) {
	var result filter.Spec
	err := c.call("GetFilter", nil, &result)
	return result, err
}

// SetFilter installs spec as the active filter and returns its normalized form.
func (c *Client) SetFilter(spec filter.Spec) (filter.Spec, error) {
	var result filter.Spec
	err := c.call("SetFilter", map[string]any{"Filter": spec}, &result)
	return result, err
}

func (c *Client) Clear() error {
	return c.call("Clear", nil, nil)
}

func (c *Client) Stats() (engine.Stats, error) {
	var result engine.Stats
	err := c.call("Stats", nil, &result)
	return result, err
}
