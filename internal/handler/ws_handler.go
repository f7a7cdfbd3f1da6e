package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/proktor-backend/internal/middleware"
	"github.com/stemsi/proktor-backend/internal/realtime"
	"github.com/stemsi/proktor-backend/internal/repository"
	"github.com/stemsi/proktor-backend/internal/service"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler upgrades authenticated connections into hub clients.
type WSHandler struct {
	hub         *realtime.Hub
	studentRepo *repository.StudentRepository
	log         zerolog.Logger
	upgrader    websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(hub *realtime.Hub, studentRepo *repository.StudentRepository, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		hub:         hub,
		studentRepo: studentRepo,
		log:         log.With().Str("component", "ws_handler").Logger(),
		upgrader:    buildUpgrader(allowedOrigins),
	}
}

// Connect godoc
// WS /ws/v1/connect?token=...
// Upgrades to WebSocket and attaches the connection to the realtime hub.
// Students join their own session room; admins watch and signal.
func (h *WSHandler) Connect(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	// Resolve the display name before upgrading; a failed lookup is not
	// fatal, the room meta patch can fill it in later.
	name := ""
	if claims.TokenType == service.TokenTypeStudent {
		if student, err := h.studentRepo.GetByID(c.Request.Context(), claims.UserID); err == nil {
			name = student.Name
		}
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := realtime.NewClient(uuid.NewString(), claims.UserID, claims.TokenType, name, h.hub, conn)
	h.hub.Register(client)

	h.log.Info().
		Str("connection_id", client.ID).
		Int("user_id", claims.UserID).
		Str("role", string(claims.TokenType)).
		Msg("Client connected")

	go client.WritePump()
	go client.ReadPump()
}
