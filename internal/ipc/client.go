package ipc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"
)

// Client is a synchronous connection to the daemon socket. Push messages
// are skipped; use a separate connection to subscribe.
type Client struct {
	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
}

// Dial connects to the daemon socket
func Dial(socketPath string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", socketPath, err)
	}
	return &Client{conn: conn, reader: bufio.NewReader(conn)}, nil
}

// Call sends a command and waits for its response. A response with
// Success false is returned as an error.
func (c *Client) Call(cmd CommandType, gesture string, data interface{}) (*Response, error) {
	req, err := NewRequest(cmd, gesture, data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s data: %w", cmd, err)
	}
	line, err := EncodeRequest(req)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.conn.Write(append(line, '\n')); err != nil {
		return nil, fmt.Errorf("failed to send %s: %w", cmd, err)
	}

	for {
		raw, err := c.reader.ReadBytes('\n')
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		if isPush(raw) {
			continue
		}
		resp, err := DecodeResponse(raw)
		if err != nil {
			return nil, err
		}
		if !resp.Success {
			return resp, fmt.Errorf("%s: %s", cmd, resp.Error)
		}
		return resp, nil
	}
}

// Subscribe asks for status pushes and calls fn for each one until the
// connection fails. The client cannot be used for calls afterwards.
func (c *Client) Subscribe(fn func(PushMessage)) error {
	if _, err := c.Call(CmdSubscribe, "", nil); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		raw, err := c.reader.ReadBytes('\n')
		if err != nil {
			return fmt.Errorf("failed to read push: %w", err)
		}
		var msg PushMessage
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Type == "" {
			continue
		}
		fn(msg)
	}
}

// isPush reports whether a line is a push message rather than a response
func isPush(raw []byte) bool {
	var probe struct {
		Type string `json:"type"`
	}
	return json.Unmarshal(raw, &probe) == nil && probe.Type != ""
}

// Close closes the connection
func (c *Client) Close() error {
	return c.conn.Close()
}
