package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/chime-experiment/alpenhorn-chime/internal/duckdb"
	"github.com/chime-experiment/alpenhorn-chime/internal/log"
	"github.com/chime-experiment/alpenhorn-chime/internal/model"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// Catalog is the store contract required by the HTTP API.
type Catalog interface {
	model.CatalogReader
	RunQuery(ctx context.Context, query string) ([]string, []map[string]any, error)
}

// Server provides a read-only HTTP API over the archive catalog.
type Server struct {
	addr      string
	store     Catalog
	server    *http.Server
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
	logger    zerolog.Logger
}

// NewServer creates a new HTTP API server.
func NewServer(addr string, store Catalog) *Server {
	if addr == "" {
		addr = "127.0.0.1:8080"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:      addr,
		store:     store,
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
		logger:    log.WithComponent("httpserver"),
	}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api")
	api.GET("/health", s.handleHealth)
	api.GET("/acqs", s.handleListAcqs)
	api.GET("/acqs/:name", s.handleAcq)
	api.GET("/acqs/:name/files", s.handleAcqFiles)
	api.GET("/nodes", s.handleNodes)
	api.GET("/types", s.handleTypes)
	api.POST("/query", s.handleQuery)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)
	s.server = &http.Server{
		Handler:           s.Handler(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.startTime = time.Now()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("api server stopped")
		}
	}()
	s.logger.Info().Str("addr", listener.Addr().String()).Msg("api listening")
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) fail(c *gin.Context, err error, msg string) {
	if errors.Is(err, duckdb.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": msg + ": not found"})
		return
	}
	s.logger.Error().Err(err).Str(log.FieldPath, c.Request.URL.Path).Msg(msg)
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}

func (s *Server) handleHealth(c *gin.Context) {
	counts, err := s.store.TableRowCounts(c.Request.Context())
	if err != nil {
		s.fail(c, err, "failed to read health metrics")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"uptime":     time.Since(s.startTime).String(),
		"row_counts": counts,
	})
}

func acqJSON(a model.AcqSummary) gin.H {
	return gin.H{
		"id":         a.ID,
		"name":       a.Name,
		"type":       a.TypeName,
		"inst":       a.InstName,
		"comment":    a.Comment,
		"file_count": a.FileCount,
	}
}

func queryInt(c *gin.Context, key string, def int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + key})
		return 0, false
	}
	return n, true
}

func (s *Server) handleListAcqs(c *gin.Context) {
	limit, ok := queryInt(c, "limit", defaultListLimit)
	if !ok {
		return
	}
	offset, ok := queryInt(c, "offset", 0)
	if !ok {
		return
	}
	if limit == 0 || limit > maxListLimit {
		limit = maxListLimit
	}

	acqs, err := s.store.ListAcqs(c.Request.Context(), model.ListOpts{
		Type:   c.Query("type"),
		Inst:   c.Query("inst"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		s.fail(c, err, "failed to list acquisitions")
		return
	}

	out := make([]gin.H, 0, len(acqs))
	for _, a := range acqs {
		out = append(out, acqJSON(a))
	}
	c.JSON(http.StatusOK, gin.H{"acqs": out, "count": len(out)})
}

func (s *Server) handleAcq(c *gin.Context) {
	acq, err := s.store.DescribeAcq(c.Request.Context(), c.Param("name"))
	if err != nil {
		s.fail(c, err, "failed to read acquisition")
		return
	}
	c.JSON(http.StatusOK, acqJSON(acq))
}

func (s *Server) handleAcqFiles(c *gin.Context) {
	ctx := c.Request.Context()
	acq, err := s.store.DescribeAcq(ctx, c.Param("name"))
	if err != nil {
		s.fail(c, err, "failed to read acquisition")
		return
	}
	files, err := s.store.FilesInAcq(ctx, acq.ID)
	if err != nil {
		s.fail(c, err, "failed to list files")
		return
	}

	out := make([]gin.H, 0, len(files))
	for _, f := range files {
		out = append(out, gin.H{
			"id":         f.ID,
			"name":       f.Name,
			"size_b":     f.SizeB,
			"md5sum":     f.MD5Sum,
			"type_id":    f.TypeID,
			"registered": f.Registered,
		})
	}
	c.JSON(http.StatusOK, gin.H{"acq": acq.Name, "files": out, "count": len(out)})
}

func (s *Server) handleNodes(c *gin.Context) {
	nodes, err := s.store.ListNodes(c.Request.Context())
	if err != nil {
		s.fail(c, err, "failed to list nodes")
		return
	}

	out := make([]gin.H, 0, len(nodes))
	for _, n := range nodes {
		ioClass := n.IOClass
		if ioClass == "" {
			ioClass = "Default"
		}
		out = append(out, gin.H{
			"name":         n.Name,
			"group_id":     n.GroupID,
			"host":         n.Host,
			"root":         n.Root,
			"active":       n.Active,
			"auto_import":  n.AutoImport,
			"io_class":     ioClass,
			"storage_type": n.StorageType,
			"avail_gb":     n.AvailGB,
		})
	}
	c.JSON(http.StatusOK, gin.H{"nodes": out})
}

func (s *Server) handleTypes(c *gin.Context) {
	ctx := c.Request.Context()
	acqTypes, err := s.store.ListAcqTypes(ctx)
	if err != nil {
		s.fail(c, err, "failed to list acq types")
		return
	}
	fileTypes, err := s.store.ListFileTypes(ctx)
	if err != nil {
		s.fail(c, err, "failed to list file types")
		return
	}

	acqs := make([]gin.H, 0, len(acqTypes))
	for _, t := range acqTypes {
		acqs = append(acqs, gin.H{"id": t.ID, "name": t.Name, "info_class": t.InfoClass, "notes": t.Notes})
	}
	files := make([]gin.H, 0, len(fileTypes))
	for _, t := range fileTypes {
		files = append(files, gin.H{"id": t.ID, "name": t.Name, "info_class": t.InfoClass, "pattern": t.Pattern, "notes": t.Notes})
	}
	c.JSON(http.StatusOK, gin.H{"acq_types": acqs, "file_types": files})
}

func (s *Server) handleQuery(c *gin.Context) {
	var req struct {
		SQL string `json:"sql" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body or missing sql field"})
		return
	}

	columns, results, err := s.store.RunQuery(c.Request.Context(), req.SQL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"columns":   columns,
		"rows":      results,
		"row_count": len(results),
	})
}
