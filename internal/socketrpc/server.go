package socketrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/chime-experiment/alpenhorn-chime/internal/log"
	"github.com/chime-experiment/alpenhorn-chime/internal/model"
)

// Controller is what the daemon exposes over the control socket.
type Controller interface {
	Import(ctx context.Context, node, path string) (string, error)
	Scan(ctx context.Context, node string) (int, error)
	Status(ctx context.Context) (model.DaemonStatus, error)
	Query(ctx context.Context, sql string) ([]map[string]any, error)
}

var nullID = json.RawMessage("null")

type handler func(ctx context.Context, params json.RawMessage) (any, error)

// Server answers control calls on a Unix socket.
type Server struct {
	path     string
	handlers map[string]handler
	logger   zerolog.Logger

	ln     net.Listener
	cancel context.CancelFunc
	conns  sync.WaitGroup
}

// NewServer binds the control methods to ctl. Nothing listens until Start.
func NewServer(path string, ctl Controller) *Server {
	s := &Server{
		path:   path,
		logger: log.WithComponent("control"),
	}
	s.handlers = map[string]handler{
		MethodImport: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var p ImportParams
			if err := decodeParams(raw, &p); err != nil {
				return nil, err
			}
			if p.Node == "" || p.Path == "" {
				return nil, &Error{Code: CodeBadParams, Message: "node and path are required"}
			}
			return ctl.Import(ctx, p.Node, p.Path)
		},
		MethodScan: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var p ScanParams
			if err := decodeParams(raw, &p); err != nil {
				return nil, err
			}
			if p.Node == "" {
				return nil, &Error{Code: CodeBadParams, Message: "node is required"}
			}
			return ctl.Scan(ctx, p.Node)
		},
		MethodStatus: func(ctx context.Context, _ json.RawMessage) (any, error) {
			return ctl.Status(ctx)
		},
		MethodQuery: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var p QueryParams
			if err := decodeParams(raw, &p); err != nil {
				return nil, err
			}
			return ctl.Query(ctx, p.SQL)
		},
	}
	return s
}

func decodeParams(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return &Error{Code: CodeBadParams, Message: "missing params"}
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return &Error{Code: CodeBadParams, Message: err.Error()}
	}
	return nil
}

// Start claims the socket path and begins serving in the background.
func (s *Server) Start() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("control socket dir: %w", err)
	}
	if err := claimSocket(s.path); err != nil {
		return err
	}
	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("control socket: %w", err)
	}
	// Only the daemon's user may drive it.
	if err := os.Chmod(s.path, 0600); err != nil {
		ln.Close()
		return fmt.Errorf("control socket permissions: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.ln, s.cancel = ln, cancel
	s.conns.Add(1)
	go func() {
		defer s.conns.Done()
		s.accept(ctx)
	}()
	s.logger.Info().Str(log.FieldPath, s.path).Msg("control socket listening")
	return nil
}

// claimSocket removes a leftover socket file, unless something still
// answers on it.
func claimSocket(path string) error {
	if _, err := os.Lstat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if c, err := net.DialTimeout("unix", path, 500*time.Millisecond); err == nil {
		c.Close()
		return fmt.Errorf("control socket %s is in use by another daemon", path)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove stale control socket: %w", err)
	}
	return nil
}

// Stop closes the socket, aborts open connections and removes the file.
func (s *Server) Stop() {
	if s.ln == nil {
		return
	}
	s.cancel()
	s.ln.Close()
	s.conns.Wait()
	os.Remove(s.path)
}

func (s *Server) accept(ctx context.Context) {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn().Err(err).Msg("accept failed")
			continue
		}
		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			s.serveConn(ctx, conn)
		}()
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	unblock := context.AfterFunc(ctx, func() { conn.Close() })
	defer unblock()

	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)
	for {
		var req request
		if err := dec.Decode(&req); err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				// The stream cannot be resynchronised after bad JSON.
				enc.Encode(response{Version: jsonrpcVersion, ID: nullID, Error: &Error{Code: CodeParse, Message: err.Error()}})
			}
			return
		}
		if err := enc.Encode(s.call(ctx, req)); err != nil {
			return
		}
	}
}

// call runs one request and never fails; errors travel in the response.
func (s *Server) call(ctx context.Context, req request) response {
	resp := response{Version: jsonrpcVersion, ID: req.ID}
	if len(resp.ID) == 0 {
		resp.ID = nullID
	}

	h, ok := s.handlers[req.Method]
	if !ok {
		resp.Error = &Error{Code: CodeNoMethod, Message: "unknown method " + req.Method}
		return resp
	}
	result, err := h(ctx, req.Params)
	if err != nil {
		var rpcErr *Error
		if !errors.As(err, &rpcErr) {
			rpcErr = &Error{Code: CodeApplication, Message: err.Error()}
		}
		resp.Error = rpcErr
		return resp
	}
	if resp.Result, err = json.Marshal(result); err != nil {
		resp.Error = &Error{Code: CodeInternal, Message: err.Error()}
	}
	return resp
}
