package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/proktor-backend/internal/middleware"
	"github.com/stemsi/proktor-backend/internal/model"
	"github.com/stemsi/proktor-backend/internal/response"
	"github.com/stemsi/proktor-backend/internal/service"
	"github.com/stemsi/proktor-backend/internal/validator"
)

// SecurityHandler handles the security log endpoints.
type SecurityHandler struct {
	securityService *service.SecurityService
	sessionService  *service.SessionService
}

// NewSecurityHandler creates a new SecurityHandler.
func NewSecurityHandler(securityService *service.SecurityService, sessionService *service.SessionService) *SecurityHandler {
	return &SecurityHandler{
		securityService: securityService,
		sessionService:  sessionService,
	}
}

// LogEvent godoc
// POST /api/v1/student/sessions/:id/security-events
// Records an integrity event against the caller's own session. Unlike the
// internal reporting path, a malformed severity is rejected here.
func (h *SecurityHandler) LogEvent(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.LogSecurityEventRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	// The session must belong to the caller; anything else is not found.
	if _, err := h.sessionService.Get(c.Request.Context(), sessionID, requesterFrom(claims)); err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		failServer(c, err)
		return
	}

	entry, err := h.securityService.Log(c.Request.Context(), sessionID, req.EventType, req.EventData, string(req.Severity))
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		failServer(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"log": entry})
}

// ListSessionLogs godoc
// GET /api/v1/admin/sessions/:id/security-logs
// Lists every security log entry of a session, newest first.
func (h *SecurityHandler) ListSessionLogs(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	logs, err := h.securityService.ListBySession(c.Request.Context(), sessionID)
	if err != nil {
		failServer(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"logs": logs})
}

// ResolveLog godoc
// POST /api/v1/admin/security-logs/:id/resolve
// Marks an entry as handled. Resolving twice reports not found.
func (h *SecurityHandler) ResolveLog(c *gin.Context) {
	logID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.securityService.Resolve(c.Request.Context(), logID); err != nil {
		if errors.Is(err, service.ErrLogEntryNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		failServer(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}
