package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"sales-reconciler/internal/models"
	"sales-reconciler/internal/platform"
	"sales-reconciler/internal/service"
	"sales-reconciler/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger is a dependency checked by the readiness check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services groups what the handlers call into.
type Services struct {
	Mappings  *service.MappingService
	Recorder  *service.Recorder
	Imports   *service.ImportOrchestrator
	Sync      *service.SyncService
	Reports   *service.ReportService
	Attendees *service.AttendeeService
	Events    *service.EventCache
	Registry  *platform.Registry
	// Ready lists the backends /ready pings.
	Ready []Pinger
}

// Handler contains HTTP handlers
type Handler struct {
	svc    Services
	logger *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(svc Services) *Handler {
	return &Handler{
		svc:    svc,
		logger: util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/sync", h.triggerSync)
		v1.POST("/imports/step", h.importStep)

		v1.GET("/sales/daily", h.dailySales)
		v1.GET("/sales/summary", h.salesSummary)
		v1.GET("/sales/products", h.productSummary)
		v1.GET("/sales/compare", h.compareSales)
		v1.DELETE("/sales/today", h.resetToday)

		v1.GET("/attendees", h.attendees)

		v1.GET("/mappings", h.listMappings)
		v1.GET("/mappings/:product_id", h.getMapping)
		v1.PUT("/mappings/:product_id", h.saveBaseMapping)
		v1.PUT("/mappings/:product_id/overrides", h.saveDateOverrides)

		v1.GET("/events", h.listEvents)

		v1.POST("/platforms/:platform/test", h.testPlatform)
		v1.GET("/platforms/:platform/entities/*id", h.getEntity)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every backend
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	for _, p := range h.svc.Ready {
		if err := p.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unavailable",
				"details": err.Error(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// SyncRequest triggers a live sync. Without a product the whole local day
// is synced.
type SyncRequest struct {
	ProductID int64  `json:"product_id"`
	Date      string `json:"date"`
	Force     bool   `json:"force"`
}

func (h *Handler) triggerSync(c *gin.Context) {
	var req SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	var (
		result *service.SyncResult
		err    error
	)
	if req.ProductID > 0 {
		date, perr := time.Parse(models.DateLayout, req.Date)
		if perr != nil {
			badRequest(c, "Invalid date", perr)
			return
		}
		result, err = h.svc.Sync.SyncProductDate(c.Request.Context(), req.ProductID, date, req.Force)
	} else {
		result, err = h.svc.Sync.SyncToday(c.Request.Context(), req.Force)
	}
	if err != nil {
		h.fail(c, "Sync failed", err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ImportStepRequest either resumes a run with State or starts a new one.
type ImportStepRequest struct {
	State     *models.ImportState `json:"state"`
	StartDate string              `json:"start_date"`
	EndDate   string              `json:"end_date"`
	Sources   []string            `json:"sources"`
}

func (h *Handler) importStep(c *gin.Context) {
	var req ImportStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	state := req.State
	if state == nil {
		var err error
		state, err = h.svc.Imports.Start(req.StartDate, req.EndDate, req.Sources)
		if err != nil {
			h.fail(c, "Invalid import request", err)
			return
		}
	}

	res, err := h.svc.Imports.Step(c.Request.Context(), state)
	if err != nil {
		body := gin.H{
			"error":   "Import step failed",
			"details": err.Error(),
			"state":   state,
		}
		if res != nil {
			body["log"] = res.Log
		}
		h.logError("Import step failed", err)
		c.JSON(errorStatus(err), body)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (h *Handler) testPlatform(c *gin.Context) {
	adapter, err := h.svc.Registry.Get(c.Param("platform"))
	if err != nil {
		h.fail(c, "Platform unavailable", err)
		return
	}

	if err := adapter.TestConnection(c.Request.Context()); err != nil {
		h.fail(c, "Connection test failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"platform": adapter.Platform(),
		"status":   "ok",
	})
}

func (h *Handler) getEntity(c *gin.Context) {
	adapter, err := h.svc.Registry.Get(c.Param("platform"))
	if err != nil {
		h.fail(c, "Platform unavailable", err)
		return
	}

	id := strings.TrimPrefix(c.Param("id"), "/")
	entity, err := adapter.GetEntity(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Entity lookup failed", err)
		return
	}

	c.JSON(http.StatusOK, entity)
}

// errorStatus maps the error taxonomy onto HTTP status codes
func errorStatus(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrConfigIncomplete), errors.Is(err, service.ErrSyncInProgress):
		return http.StatusConflict
	case models.IsUpstream(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(c *gin.Context, msg string, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.logError(msg, err)
	}
	c.JSON(status, gin.H{
		"error":   msg,
		"details": err.Error(),
	})
}

func (h *Handler) logError(msg string, err error) {
	h.logger.Error(msg, zap.Error(err))
}

func badRequest(c *gin.Context, msg string, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   msg,
		"details": err.Error(),
	})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
