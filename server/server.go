// Package server provides the dashboard HTTP server of a counting run.  It
// streams the annotated frames as MJPEG, serves the live statistics and
// Prometheus metrics and accepts the run commands.
package server

import (
	"context"
	"errors"
	"fmt"
	"github.com/gin-gonic/gin"
	"github.com/swdee/go-planktrack/counter"
	"github.com/swdee/go-planktrack/logger"
	"github.com/swdee/go-planktrack/metrics"
	"github.com/swdee/go-planktrack/pipeline"
	"github.com/swdee/go-planktrack/store"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"
)

// Controller is the running pipeline the server reports on
type Controller interface {
	Send(cmd pipeline.Command) error
	Statistics() counter.RunStatistics
	Subscribe() (int, <-chan []byte)
	Unsubscribe(id int)
}

// Server is the dashboard HTTP server
type Server struct {
	ctrl    Controller
	metrics *metrics.Metrics
	store   *store.Store
	log     *logger.Logger

	router     *gin.Engine
	httpServer *http.Server
	listener   net.Listener
}

// New returns a Server for the controller.  Metrics and the session store
// are optional, their routes respond 404 when nil.
func New(ctrl Controller, m *metrics.Metrics, st *store.Store, log *logger.Logger) *Server {

	if log == nil {
		log = logger.NewNopLogger()
	}

	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(ginLogger(log))
	router.Use(gin.Recovery())

	s := &Server{
		ctrl:    ctrl,
		metrics: m,
		store:   st,
		log:     log,
		router:  router,
	}

	s.setupRoutes()

	return s
}

// Handler returns the HTTP handler of the server
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {

	s.router.GET("/", s.handleIndex)
	s.router.GET("/stream", s.handleMJPEGStream)
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	api := s.router.Group("/api")
	{
		api.GET("/stats", s.handleStats)
		api.POST("/reset", s.handleCommand(pipeline.ResetCounts))
		api.POST("/snapshot", s.handleCommand(pipeline.SaveSnapshot))
		api.POST("/quit", s.handleCommand(pipeline.Quit))

		if s.store != nil {
			api.GET("/sessions", s.handleListSessions)
			api.GET("/sessions/:id", s.handleGetSession)
		}
	}
}

// Start listens on addr and serves requests in the background until Stop
func (s *Server) Start(addr string) error {

	ln, err := net.Listen("tcp", addr)

	if err != nil {
		return fmt.Errorf("error listening on %s: %w", addr, err)
	}

	s.listener = ln

	// no write timeout as streams stay open
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("dashboard server error", err, "address", ln.Addr().String())
		}
	}()

	s.log.Info("dashboard server started", "address", ln.Addr().String())

	return nil
}

// Addr returns the address being listened on, empty before Start
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down, open streams end when the pipeline closes
// its subscribers or ctx expires
func (s *Server) Stop(ctx context.Context) error {

	if s.httpServer == nil {
		return nil
	}

	s.log.Info("stopping dashboard server")

	return s.httpServer.Shutdown(ctx)
}

// statsResponse is the body of /api/stats
type statsResponse struct {
	counter.RunStatistics
	Classes   []counter.ClassCount `json:"classes"`
	Diversity counter.Diversity    `json:"diversity"`
}

func (s *Server) handleStats(c *gin.Context) {

	stats := s.ctrl.Statistics()

	c.JSON(http.StatusOK, statsResponse{
		RunStatistics: stats,
		Classes:       stats.Classes(),
		Diversity:     stats.Diversity(),
	})
}

// handleCommand queues cmd on the pipeline
func (s *Server) handleCommand(cmd pipeline.Command) gin.HandlerFunc {
	return func(c *gin.Context) {

		if err := s.ctrl.Send(cmd); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}

		s.log.Info("command received", "command", cmd.String(), "client_ip", c.ClientIP())

		c.JSON(http.StatusAccepted, gin.H{"command": cmd.String()})
	}
}

func (s *Server) handleListSessions(c *gin.Context) {

	limit := 20

	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)

		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}

		limit = n
	}

	sessions, err := s.store.ListSessions(c.Request.Context(), c.Query("location"), limit)

	if err != nil {
		s.log.Error("error listing sessions", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sessions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (s *Server) handleGetSession(c *gin.Context) {

	sess, err := s.store.Session(c.Request.Context(), c.Param("id"))

	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	if err != nil {
		s.log.Error("error reading session", err, "id", c.Param("id"))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read session"})
		return
	}

	c.JSON(http.StatusOK, sess)
}

// handleMJPEGStream sends annotated frames until the client disconnects or
// the run ends
func (s *Server) handleMJPEGStream(c *gin.Context) {

	id, frames := s.ctrl.Subscribe()
	defer s.ctrl.Unsubscribe(id)

	c.Header("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("Pragma", "no-cache")

	c.Stream(func(w io.Writer) bool {
		select {
		case frame, ok := <-frames:
			if !ok {
				return false
			}

			fmt.Fprintf(w, "--frame\r\n")
			fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
			fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(frame))

			if _, err := w.Write(frame); err != nil {
				return false
			}

			fmt.Fprintf(w, "\r\n")

			return true

		case <-c.Request.Context().Done():
			return false
		}
	})
}

const indexPage = `<!DOCTYPE html>
<html>
<head><title>Plankton Flow Tracker</title></head>
<body style="background:#111;color:#eee;font-family:sans-serif">
<h2>Plankton Flow Tracker</h2>
<img src="/stream" style="max-width:100%">
<p>
<button onclick="fetch('/api/reset',{method:'POST'})">Reset counts</button>
<button onclick="fetch('/api/snapshot',{method:'POST'})">Save snapshot</button>
<button onclick="fetch('/api/quit',{method:'POST'})">Quit</button>
</p>
<pre id="stats"></pre>
<script>
setInterval(async () => {
  const r = await fetch('/api/stats');
  document.getElementById('stats').textContent = JSON.stringify(await r.json(), null, 2);
}, 1000);
</script>
</body>
</html>`

func (s *Server) handleIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(indexPage))
}

// ginLogger logs each request at debug level
func ginLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		log.Debug("http request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
		)
	}
}
