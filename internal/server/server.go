// Package server exposes the marketplace over HTTP: service registration
// and search, orchestration submission, a websocket event feed, and
// Prometheus metrics.
package server

import (
	"log"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sidecarlabs/agora/internal/metrics"
	"github.com/sidecarlabs/agora/internal/orchestrator"
	"github.com/sidecarlabs/agora/internal/registry"
)

// Server wraps the HTTP router and its collaborators.
type Server struct {
	router  *gin.Engine
	store   registry.Store
	pool    *orchestrator.Pool
	hub     *Hub
	metrics *metrics.Metrics
}

// New creates a Server over the given store and run pool. The metrics
// argument may be nil when the process does not export metrics.
func New(store registry.Store, pool *orchestrator.Pool, m *metrics.Metrics) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.Default())

	s := &Server{
		router:  router,
		store:   store,
		pool:    pool,
		hub:     NewHub(pool.Events(), m),
		metrics: m,
	}

	router.GET("/health", s.health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		api.POST("/services", s.registerService)
		api.GET("/services", s.searchServices)
		api.GET("/services/:id", s.getService)
		api.POST("/services/:id/rate", s.rateService)
		api.DELETE("/services/:id", s.retireService)

		api.POST("/orchestrations", s.createOrchestration)
		api.GET("/orchestrations/:id", s.getOrchestration)
	}

	router.GET("/ws/orchestrations/:id/events", s.streamEvents)
	router.GET("/ws/events", s.streamEvents)

	go s.hub.Run()

	return s
}

// Handler returns the underlying router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until the listener fails.
func (s *Server) Run(addr string) error {
	log.Printf("[server] listening on %s", addr)
	return s.router.Run(addr)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "active_runs": s.pool.Count()})
}
