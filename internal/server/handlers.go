package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sidecarlabs/agora/internal/orchestrator"
	"github.com/sidecarlabs/agora/internal/registry"
	"github.com/sidecarlabs/agora/pkg/models"
)

// registerRequest is the body for POST /api/services. Price arrives as a
// decimal string to avoid float drift.
type registerRequest struct {
	ID           string   `json:"id" binding:"required"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Capabilities []string `json:"capabilities" binding:"required"`
	Price        string   `json:"price" binding:"required"`
	Currency     string   `json:"currency"`
	Endpoint     string   `json:"endpoint" binding:"required"`
}

func (s *Server) registerService(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	currency := req.Currency
	if currency == "" {
		currency = "USDC"
	}
	price, err := models.ParseMoney(req.Price, currency)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	desc := &models.ServiceDescriptor{
		ID:           req.ID,
		Name:         req.Name,
		Description:  req.Description,
		Capabilities: req.Capabilities,
		Price:        price,
		Endpoint:     req.Endpoint,
	}
	if err := s.store.Register(c.Request.Context(), desc); err != nil {
		switch {
		case errors.Is(err, registry.ErrDuplicateID):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, registry.ErrInvalidDescriptor):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	if s.metrics != nil {
		s.metrics.ServicesRegistered.Inc()
	}
	c.JSON(http.StatusCreated, desc)
}

func (s *Server) searchServices(c *gin.Context) {
	q := models.SearchQuery{
		Text:         c.Query("text"),
		Capabilities: c.QueryArray("capability"),
	}
	if v := c.Query("min_rating"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid min_rating"})
			return
		}
		q.MinRating = r
	}
	if v := c.Query("max_price"); v != "" {
		currency := c.DefaultQuery("currency", "USDC")
		p, err := models.ParseMoney(v, currency)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid max_price"})
			return
		}
		q.MaxPrice = &p
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		q.Limit = n
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offset"})
			return
		}
		q.Offset = n
	}

	results, err := s.store.Search(c.Request.Context(), q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"services": results, "count": len(results)})
}

func (s *Server) getService(c *gin.Context) {
	desc, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, desc)
}

type rateRequest struct {
	Score  float64 `json:"score" binding:"required"`
	Review string  `json:"review"`
}

func (s *Server) rateService(c *gin.Context) {
	var req rateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := s.store.Rate(c.Request.Context(), c.Param("id"), req.Score, req.Review)
	if err != nil {
		switch {
		case errors.Is(err, registry.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, registry.ErrInvalidScore):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	if s.metrics != nil {
		s.metrics.RatingsRecorded.Inc()
	}
	desc, _ := s.store.Get(c.Request.Context(), c.Param("id"))
	c.JSON(http.StatusOK, desc)
}

func (s *Server) retireService(c *gin.Context) {
	if err := s.store.Retire(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// orchestrateRequest is the body for POST /api/orchestrations.
type orchestrateRequest struct {
	Goal          string `json:"goal" binding:"required"`
	Budget        string `json:"budget" binding:"required"`
	Currency      string `json:"currency"`
	MaxConcurrent int    `json:"max_concurrent"`
	TimeoutSecs   int    `json:"timeout_seconds"`
}

func (s *Server) createOrchestration(c *gin.Context) {
	var req orchestrateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	currency := req.Currency
	if currency == "" {
		currency = "USDC"
	}
	ceiling, err := models.ParseMoney(req.Budget, currency)
	if err != nil || ceiling.Negative() || ceiling.IsZero() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "budget must be a positive amount"})
		return
	}

	runID := s.pool.Submit(orchestrator.RunRequest{
		Goal:          req.Goal,
		BudgetCeiling: ceiling,
		MaxConcurrent: req.MaxConcurrent,
		Timeout:       time.Duration(req.TimeoutSecs) * time.Second,
	})
	c.JSON(http.StatusAccepted, gin.H{"run_id": runID})
}

func (s *Server) getOrchestration(c *gin.Context) {
	runID := c.Param("id")
	result, active := s.pool.Result(runID)
	if result != nil {
		c.JSON(http.StatusOK, result)
		return
	}
	if active {
		c.JSON(http.StatusAccepted, gin.H{"run_id": runID, "status": "running"})
		return
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "unknown run id"})
}
