package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Siencmd/darkbroad/internal/coordinator"
)

// StatusSource reports the current sync status.
type StatusSource interface {
	Snapshot() coordinator.Status
}

type HealthHandler struct {
	status StatusSource
}

func NewHealthHandler(status StatusSource) *HealthHandler { return &HealthHandler{status: status} }

// HealthCheck answers "ok" while the process serves; the sync mode rides along
// as a header so probes stay cheap.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	if h.status != nil {
		c.Header("X-Sync-Mode", string(h.status.Snapshot().Mode))
	}
	c.String(http.StatusOK, "ok")
}
