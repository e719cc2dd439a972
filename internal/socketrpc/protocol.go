// Package socketrpc carries control calls from the CLI to a running daemon
// as newline-delimited JSON-RPC 2.0 over a Unix socket. The daemon holds the
// only handle on the catalog, so commands run while it is up go through here.
//
//	method  params                  result
//	import  {"node":..,"path":..}   outcome name, e.g. "imported"
//	scan    {"node":..}             number of files imported
//	status  none                    model.DaemonStatus
//	query   {"sql":..}              rows as JSON objects
package socketrpc

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const jsonrpcVersion = "2.0"

// Method names.
const (
	MethodImport = "import"
	MethodScan   = "scan"
	MethodStatus = "status"
	MethodQuery  = "query"
)

// Error codes. The first four are fixed by JSON-RPC 2.0.
const (
	CodeParse       = -32700
	CodeNoMethod    = -32601
	CodeBadParams   = -32602
	CodeInternal    = -32603
	CodeApplication = -32000
)

// ImportParams names one file, relative to or under a node root.
type ImportParams struct {
	Node string `json:"node"`
	Path string `json:"path"`
}

// ScanParams names a node whose whole root is walked.
type ScanParams struct {
	Node string `json:"node"`
}

// QueryParams carries one read-only SQL statement.
type QueryParams struct {
	SQL string `json:"sql"`
}

// Request ids may be any JSON value; the reply echoes them unchanged.
type request struct {
	Version string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type response struct {
	Version string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC error returned by the daemon.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("daemon: %s (code %d)", e.Message, e.Code)
}

// DefaultSocketPath picks the control socket location for this user:
// under $XDG_RUNTIME_DIR when set, else ~/.local/state, else a per-user
// directory in the temp dir. Start makes the directory 0700 and the
// socket 0600.
func DefaultSocketPath() string {
	const app, sock = "alpenhorn-chime", "control.sock"
	if rt := os.Getenv("XDG_RUNTIME_DIR"); rt != "" {
		return filepath.Join(rt, app, sock)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "state", app, sock)
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("%s-%d", app, os.Getuid()), sock)
}
