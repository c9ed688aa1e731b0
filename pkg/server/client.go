package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"msgbridge/pkg/protocol"
)

// Client talks to a running server over its control socket. Requests on
// one Client are serialized.
type Client struct {
	mu      sync.Mutex
	conn    net.Conn
	scanner *bufio.Scanner
	enc     *json.Encoder
}

// Dial connects to the server socket at path.
func Dial(ctx context.Context, path string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", path, err)
	}
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRequestBytes)
	return &Client{conn: conn, scanner: scanner, enc: json.NewEncoder(conn)}, nil
}

// Close hangs up.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Action dispatches one action and waits for its outcome. A dispatch
// failure is returned in the response's Error and ErrorKind, not as err.
func (c *Client) Action(ctx context.Context, name string, args []string) (protocol.Response, error) {
	return c.roundTrip(ctx, protocol.Request{Type: protocol.MsgAction, Action: name, Args: args})
}

// Status returns the server's queue snapshot.
func (c *Client) Status(ctx context.Context) (protocol.Status, error) {
	resp, err := c.roundTrip(ctx, protocol.Request{Type: protocol.MsgStatus})
	if err != nil {
		return protocol.Status{}, err
	}
	if resp.Status == nil {
		return protocol.Status{}, errors.New("status response carried no snapshot")
	}
	return *resp.Status, nil
}

// Check runs the setup probe on the server and returns the snapshot with
// Configured filled in.
func (c *Client) Check(ctx context.Context) (protocol.Status, error) {
	resp, err := c.roundTrip(ctx, protocol.Request{Type: protocol.MsgCheck})
	if err != nil {
		return protocol.Status{}, err
	}
	if resp.Status == nil || resp.Status.Configured == nil {
		return protocol.Status{}, errors.New("check response carried no result")
	}
	return *resp.Status, nil
}

func (c *Client) roundTrip(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	req.ID = uuid.NewString()
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetDeadline(deadline)
		defer func() { _ = c.conn.SetDeadline(time.Time{}) }()
	}

	if err := c.enc.Encode(req); err != nil {
		return protocol.Response{}, fmt.Errorf("send %s request: %w", req.Type, err)
	}
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return protocol.Response{}, fmt.Errorf("read %s response: %w", req.Type, err)
		}
		return protocol.Response{}, fmt.Errorf("read %s response: server closed the connection", req.Type)
	}

	var resp protocol.Response
	if err := json.Unmarshal(c.scanner.Bytes(), &resp); err != nil {
		return protocol.Response{}, fmt.Errorf("decode %s response: %w", req.Type, err)
	}
	if resp.ID != req.ID {
		return protocol.Response{}, fmt.Errorf("response id %q does not match request %q", resp.ID, req.ID)
	}
	return resp, nil
}
