package socketrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/chime-experiment/alpenhorn-chime/internal/model"
)

const dialTimeout = 2 * time.Second

// Client holds one connection to a daemon. Calls are serialised.
type Client struct {
	mu   sync.Mutex
	conn net.Conn
	dec  *json.Decoder
	enc  *json.Encoder
	seq  uint64
}

// Dial connects to the control socket at path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn, dec: json.NewDecoder(conn), enc: json.NewEncoder(conn)}, nil
}

// Close hangs up.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Call sends one request and decodes its result into out, which may be nil.
// Cancelling ctx abandons the call and leaves the client unusable.
func (c *Client) Call(ctx context.Context, method string, params, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	req := request{Version: jsonrpcVersion, Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("%s: encode params: %w", method, err)
		}
		req.Params = raw
	}
	c.seq++
	req.ID = json.RawMessage(strconv.FormatUint(c.seq, 10))

	if dl, ok := ctx.Deadline(); ok {
		c.conn.SetDeadline(dl)
		defer c.conn.SetDeadline(time.Time{})
	}
	abort := context.AfterFunc(ctx, func() { c.conn.SetDeadline(time.Unix(1, 0)) })
	defer abort()

	if err := c.enc.Encode(req); err != nil {
		return fmt.Errorf("%s: send: %w", method, err)
	}
	var resp response
	if err := c.dec.Decode(&resp); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s: receive: %w", method, err)
	}
	switch {
	case resp.Error != nil:
		return resp.Error
	case !bytes.Equal(resp.ID, req.ID):
		return fmt.Errorf("%s: reply for call %s, sent %s", method, resp.ID, req.ID)
	case out == nil:
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("%s: decode result: %w", method, err)
	}
	return nil
}

// Import asks the daemon to import one file on one of its nodes.
func (c *Client) Import(ctx context.Context, node, path string) (string, error) {
	var outcome string
	err := c.Call(ctx, MethodImport, ImportParams{Node: node, Path: path}, &outcome)
	return outcome, err
}

// Scan asks the daemon to import every new file on one of its nodes.
func (c *Client) Scan(ctx context.Context, node string) (int, error) {
	var n int
	err := c.Call(ctx, MethodScan, ScanParams{Node: node}, &n)
	return n, err
}

// Status fetches the daemon's view of its nodes and the catalog.
func (c *Client) Status(ctx context.Context) (model.DaemonStatus, error) {
	var st model.DaemonStatus
	err := c.Call(ctx, MethodStatus, nil, &st)
	return st, err
}

// Query runs read-only SQL on the daemon's catalog.
func (c *Client) Query(ctx context.Context, sql string) ([]map[string]any, error) {
	var rows []map[string]any
	err := c.Call(ctx, MethodQuery, QueryParams{SQL: sql}, &rows)
	return rows, err
}
