package http

import (
	"net/http"
	"slices"

	"github.com/GriffinCanCode/spectra/internal/capture"
	"github.com/GriffinCanCode/spectra/internal/display"
	"github.com/GriffinCanCode/spectra/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/spectra/internal/pipeline"
	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Version is reported by the root endpoint.
var Version = "dev"

// HealthReporter is the pipeline view the health endpoint needs.
type HealthReporter interface {
	Health() pipeline.Health
}

// FrameSource publishes the latest spectrum.
type FrameSource interface {
	Latest() (display.Frame, bool)
	Subscribe() (<-chan struct{}, func())
}

// Handlers contains all HTTP handlers
type Handlers struct {
	health   HealthReporter
	frames   FrameSource
	metrics  *monitoring.Metrics
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandlers creates a new handler set. origins limits which browser
// origins may open a stream; "*" allows all.
func NewHandlers(health HealthReporter, frames FrameSource, metrics *monitoring.Metrics, logger *zap.Logger, origins []string) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		health:  health,
		frames:  frames,
		metrics: metrics,
		logger:  logger.Named("http"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     checkOrigin(origins),
		},
	}
}

func checkOrigin(origins []string) func(*http.Request) bool {
	if len(origins) == 0 || slices.Contains(origins, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(origins, origin)
	}
}

// Root handles the service banner
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "spectra",
		"version": Version,
	})
}

// Health reports stage states and queue occupancy
func (h *Handlers) Health(c *gin.Context) {
	health := h.health.Health()
	status := http.StatusOK
	if !health.Healthy() {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, health)
}

// Spectrum returns the most recent frame
func (h *Handlers) Spectrum(c *gin.Context) {
	frame, ok := h.frames.Latest()
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}

	data, err := sonic.Marshal(frame)
	if err != nil {
		h.logger.Error("frame encoding failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "encoding failed"})
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}

// Sources lists the capture sources the run command accepts
func (h *Handlers) Sources(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"sources": capture.Sources(),
	})
}

// MetricsJSON returns the metrics summary
func (h *Handlers) MetricsJSON(c *gin.Context) {
	c.JSON(http.StatusOK, h.metrics.Snapshot())
}
