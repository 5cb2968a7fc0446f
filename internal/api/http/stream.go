package http

import (
	"time"

	"github.com/GriffinCanCode/spectra/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/spectra/internal/shared/id"
	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = time.Second
	pongWait   = 30 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Stream upgrades to a WebSocket and pushes one frame per display update.
// A client that cannot keep up skips frames rather than queueing them.
func (h *Handlers) Stream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	clientID := id.NewClientID()
	logger := h.logger.With(append(tracing.Fields(c.Request.Context()), zap.String("client_id", clientID.String()))...)

	updates, cancel := h.frames.Subscribe()
	defer cancel()

	h.metrics.IncStreamClients()
	defer h.metrics.DecStreamClients()
	logger.Info("stream client connected", zap.String("remote", c.ClientIP()))

	gone := make(chan struct{})
	go readPump(conn, gone)

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	var last uint64
	for {
		select {
		case <-gone:
			logger.Info("stream client disconnected")
			return

		case _, ok := <-updates:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "pipeline stopped"),
					time.Now().Add(writeWait))
				logger.Info("stream closed, pipeline stopped")
				return
			}
			frame, ok := h.frames.Latest()
			if !ok || frame.Seq == last {
				continue
			}
			last = frame.Seq

			data, err := sonic.Marshal(frame)
			if err != nil {
				logger.Error("frame encoding failed", zap.Error(err))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Info("stream write failed", zap.Error(err))
				return
			}
			h.metrics.IncStreamFrames()

		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				logger.Info("stream ping failed", zap.Error(err))
				return
			}
		}
	}
}

// readPump discards client messages so control frames are processed, and
// closes gone when the connection ends.
func readPump(conn *websocket.Conn, gone chan<- struct{}) {
	defer close(gone)

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
