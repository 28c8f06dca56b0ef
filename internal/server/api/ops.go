package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/parrotgw/parrot/internal/cache"
	"github.com/parrotgw/parrot/internal/log"
	"github.com/parrotgw/parrot/internal/resilience"
)

// OpsHandlers serves the operational endpoints: cache stats, cache clear,
// golden promotion and health.
type OpsHandlers struct {
	Engine *cache.Engine
}

// NewOpsHandlers builds the operational handlers.
func NewOpsHandlers(engine *cache.Engine) *OpsHandlers {
	return &OpsHandlers{Engine: engine}
}

func (handlers *OpsHandlers) tenant(c *gin.Context) string {
	if tenant := c.Query("tenant"); tenant != "" {
		return tenant
	}

	return handlers.Engine.Config().DefaultTenant
}

// CacheStats reports indexed tier statistics.
func (handlers *OpsHandlers) CacheStats(c *gin.Context) {
	stats, err := handlers.Engine.Stats(c.Request.Context(), handlers.tenant(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// CacheClear removes every cached entry of the tenant.
func (handlers *OpsHandlers) CacheClear(c *gin.Context) {
	tenant := handlers.tenant(c)

	if err := handlers.Engine.Clear(c.Request.Context(), tenant); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	log.Info(c.Request.Context(), "cache cleared", log.String("tenant", tenant))
	c.JSON(http.StatusOK, gin.H{"cleared": true, "tenant": tenant})
}

type goldenRequest struct {
	EntryID string `json:"entry_id" binding:"required"`
}

// CacheGolden pins an entry as golden, exempting it from TTL eviction.
func (handlers *OpsHandlers) CacheGolden(c *gin.Context) {
	var req goldenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "entry_id is required"})
		return
	}

	if err := handlers.Engine.Promote(c.Request.Context(), req.EntryID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"promoted": true, "entry_id": req.EntryID})
}

// Health reports per-dependency breaker states and the active degradation
// mode.
func (handlers *OpsHandlers) Health(c *gin.Context) {
	report := handlers.Engine.Health().Report()

	status := http.StatusOK
	if report.Mode == resilience.ModePassthrough {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, report)
}
