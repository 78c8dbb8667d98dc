package status

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/telepoll/telepoll/agent/internal/config"
)

// MetricsWriter renders the agent's self-metrics in the Prometheus text format.
// *selfmetrics.Registry implements it.
type MetricsWriter interface {
	WriteText(w io.Writer) error
}

// SourceResponse is one source entry in GET /api/v1/sources or
// GET /api/v1/sources/:id.
type SourceResponse struct {
	SourceID        string  `json:"source_id"`
	SourceType      string  `json:"source_type,omitempty"`
	State           string  `json:"state"` // "ok" | "failing"
	Session         string  `json:"session,omitempty"`
	Authentications int     `json:"authentications,omitempty"`
	Collected       int     `json:"collected"`
	Forwarded       int     `json:"forwarded"`
	DurationMs      float64 `json:"duration_ms"`
	UptimePct       float64 `json:"uptime_pct"`
	CollectError    string  `json:"collect_error,omitempty"`
	ForwardError    string  `json:"forward_error,omitempty"`
	LastSeen        string  `json:"last_seen"` // RFC3339
}

// Server exposes the agent's status over HTTP.
type Server struct {
	addr        string
	store       *Store
	metrics     MetricsWriter
	contentType string
	auth        config.StatusAuthConfig
	startTime   time.Time
}

// NewServer creates a status server listening on addr. contentType is the
// media type of the metrics exposition.
func NewServer(addr string, st *Store, metrics MetricsWriter, contentType string, auth config.StatusAuthConfig) *Server {
	return &Server{
		addr:        addr,
		store:       st,
		metrics:     metrics,
		contentType: contentType,
		auth:        auth,
		startTime:   time.Now(),
	}
}

// Handler builds the gin engine with all routes registered.
// /healthz is never authenticated.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.handleHealth)

	guarded := r.Group("/", APIKeyMiddleware(s.auth.Mode, s.auth.EffectiveHeader(), s.auth.Key()))
	guarded.GET("/metrics", s.handleMetrics)
	guarded.GET("/api/v1/sources", s.handleListSources)
	guarded.GET("/api/v1/sources/:id", s.handleGetSource)
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	slog.Info("status: listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"uptime":  time.Since(s.startTime).Round(time.Second).String(),
		"sources": s.store.Count(),
	})
}

func (s *Server) handleMetrics(c *gin.Context) {
	c.Header("Content-Type", s.contentType)
	c.Status(http.StatusOK)
	if err := s.metrics.WriteText(c.Writer); err != nil {
		slog.Error("status: write metrics failed", "err", err)
	}
}

func (s *Server) handleListSources(c *gin.Context) {
	entries := s.store.List()
	out := make([]SourceResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toSourceResponse(e))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleGetSource(c *gin.Context) {
	e, ok := s.store.Get(c.Param("id"))
	// Stale entries are treated as not found.
	if !ok || s.store.Stale(e) {
		c.JSON(http.StatusNotFound, gin.H{"error": "source not found"})
		return
	}
	c.JSON(http.StatusOK, toSourceResponse(e))
}

func toSourceResponse(e Entry) SourceResponse {
	state := "ok"
	if !e.OK() {
		state = "failing"
	}
	return SourceResponse{
		SourceID:        e.Source,
		SourceType:      e.Type,
		State:           state,
		Session:         e.Session,
		Authentications: e.Authentications,
		Collected:       e.Collected,
		Forwarded:       e.Forwarded,
		DurationMs:      float64(e.LastDuration) / float64(time.Millisecond),
		UptimePct:       e.UptimePct,
		CollectError:    e.CollectError,
		ForwardError:    e.ForwardError,
		LastSeen:        e.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
