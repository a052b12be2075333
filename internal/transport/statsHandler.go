package transport

import (
	"context"
	"net/http"

	"github.com/ds124wfegd/WB_L3/parking/internal/broadcaster"
	"github.com/ds124wfegd/WB_L3/parking/internal/service"
	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Streamer is the part of the broadcaster the handlers need.
type Streamer interface {
	Serve(ctx context.Context, sink broadcaster.Sink) error
	Connections() []broadcaster.ConnectionInfo
}

type StatsHandler struct {
	stats    service.StatsService
	streamer Streamer
}

func NewStatsHandler(stats service.StatsService, streamer Streamer) *StatsHandler {
	return &StatsHandler{stats: stats, streamer: streamer}
}

// Snapshot returns the dashboard counters as a bare JSON object.
func (h *StatsHandler) Snapshot(c *gin.Context) {
	stats, err := h.stats.Calculate(c.Request.Context())
	if err != nil {
		respondError(c, err, 0)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Stream keeps the request open and writes one SSE frame per snapshot,
// heartbeat or error until the client disconnects.
func (h *StatsHandler) Stream(c *gin.Context) {
	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	err := h.streamer.Serve(c.Request.Context(), &sseSink{w: c.Writer})
	if err != nil {
		logrus.WithField("client_ip", c.ClientIP()).WithError(err).Debug("Stats stream closed by write error")
	}
}

func (h *StatsHandler) Connections(c *gin.Context) {
	conns := h.streamer.Connections()
	c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Data:    conns,
		Meta:    map[string]interface{}{"total": len(conns)},
	})
}

type sseSink struct {
	w gin.ResponseWriter
}

func (s *sseSink) Send(f broadcaster.Frame) error {
	if err := sse.Encode(s.w, sse.Event{Event: f.Kind(), Data: f.Data()}); err != nil {
		return err
	}
	s.w.Flush()
	return nil
}
