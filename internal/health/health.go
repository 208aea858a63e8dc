// Package health exposes the worker's read-only operator HTTP surface
// (spec.md §4.G): liveness, a peek at the queue, and aggregate counters.
// It is gated behind WORKER_DEV_HTTP and never mutates gateway state.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/arcanous/video-qa-worker/internal/storage"
)

// Server wraps a gin engine exposing /healthz, /jobs/peek and /stats over
// a storage.Gateway, following byron's cmd/main.go route-group and
// corsMiddleware/health-check-handler shape, generalized down to this
// worker's three read-only endpoints.
type Server struct {
	engine *gin.Engine
	http   *http.Server
}

// New builds a Server bound to addr ("" picks any free port is not
// supported; callers must supply host:port). cache may be nil, in which
// case /stats always reads through to the gateway.
func New(gw storage.Gateway, cache *StatsCache, log *logrus.Logger, addr string) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	h := &handlers{gw: gw, cache: cache, log: log}
	engine.GET("/healthz", h.healthz)
	engine.GET("/jobs/peek", h.peekJobs)
	engine.GET("/stats", h.stats)

	return &Server{
		engine: engine,
		http:   &http.Server{Addr: addr, Handler: engine},
	}
}

// ListenAndServe blocks serving HTTP until the server is shut down. It
// returns nil on a clean Shutdown, matching http.Server's contract.
func (s *Server) ListenAndServe() error {
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server, honoring ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

type handlers struct {
	gw    storage.Gateway
	cache *StatsCache
	log   *logrus.Logger
}

func (h *handlers) healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	dbHealth := "ok"
	if err := h.gw.Ping(ctx); err != nil {
		dbHealth = "error: " + err.Error()
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "degraded",
			"database": dbHealth,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"database": dbHealth,
	})
}

func (h *handlers) peekJobs(c *gin.Context) {
	limit := 20
	if q := c.Query("limit"); q != "" {
		if n, err := parsePositiveInt(q); err == nil {
			limit = n
		}
	}

	jobs, err := h.gw.PeekQueue(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to peek queue", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

func (h *handlers) stats(c *gin.Context) {
	ctx := c.Request.Context()

	if h.cache != nil {
		if stats, ok := h.cache.Get(ctx); ok {
			c.JSON(http.StatusOK, gin.H{"stats": stats, "cached": true})
			return
		}
	}

	stats, err := h.gw.Stats(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read stats", "details": err.Error()})
		return
	}

	if h.cache != nil {
		h.cache.Set(ctx, stats)
	}

	c.JSON(http.StatusOK, gin.H{"stats": stats, "cached": false})
}

func parsePositiveInt(s string) (int, error) {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, errNotANumber
		}
		n = n*10 + int(r-'0')
	}
	if n <= 0 {
		return 0, errNotANumber
	}
	return n, nil
}

var errNotANumber = errInvalid("not a positive integer")

type errInvalid string

func (e errInvalid) Error() string { return string(e) }

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
