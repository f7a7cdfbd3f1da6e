package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/proktor-backend/internal/config"
	"github.com/stemsi/proktor-backend/internal/realtime"
	"github.com/stemsi/proktor-backend/internal/response"
)

const keepAliveInterval = 30 * time.Second

// MonitorHandler exposes the proctoring dashboards: the global alert feed
// over SSE and the live room directory.
type MonitorHandler struct {
	rdb *redis.Client
	hub *realtime.Hub
	log zerolog.Logger
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(rdb *redis.Client, hub *realtime.Hub, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		rdb: rdb,
		hub: hub,
		log: log.With().Str("component", "monitor_handler").Logger(),
	}
}

// AlertFeedSSE godoc
// GET /api/v1/admin/monitor/alerts
// Streams every security log event in the system over SSE. Events arrive
// via Redis Pub/Sub, so the feed covers all server instances.
func (h *MonitorHandler) AlertFeedSSE(c *gin.Context) {
	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	pubsub := h.rdb.Subscribe(reqCtx, config.CacheKey.SecurityAlertsChannel())
	defer pubsub.Close()

	ch := pubsub.Channel()

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	h.log.Info().Msg("Admin attached to security alert SSE")

	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Msg("Admin disconnected from security alert SSE")
			return

		case msg := <-ch:
			// Forward raw JSON directly, no deserialization needed.
			c.Writer.Write([]byte("data: "))
			c.Writer.Write([]byte(msg.Payload))
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()

		case <-keepAliveTicker.C:
			c.Writer.Write([]byte("data: "))
			c.Writer.Write(pingPayload)
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()
		}
	}
}

// GetRooms godoc
// GET /api/v1/admin/monitor/rooms
// Returns the live room directory of this server instance.
func (h *MonitorHandler) GetRooms(c *gin.Context) {
	rooms := h.hub.Snapshot(c.Request.Context())

	liveStudents := 0
	for _, r := range rooms {
		liveStudents += r.Students
	}

	response.Success(c, http.StatusOK, gin.H{
		"rooms":         rooms,
		"live_students": liveStudents,
	})
}
