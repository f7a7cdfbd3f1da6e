package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/proktor-backend/internal/middleware"
	"github.com/stemsi/proktor-backend/internal/model"
	"github.com/stemsi/proktor-backend/internal/repository"
	"github.com/stemsi/proktor-backend/internal/response"
	"github.com/stemsi/proktor-backend/internal/service"
	"github.com/stemsi/proktor-backend/internal/validator"
)

// SessionHandler handles the exam session lifecycle endpoints.
type SessionHandler struct {
	sessionService  *service.SessionService
	securityService *service.SecurityService
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessionService *service.SessionService, securityService *service.SecurityService) *SessionHandler {
	return &SessionHandler{
		sessionService:  sessionService,
		securityService: securityService,
	}
}

func requesterFrom(claims *service.Claims) service.Requester {
	return service.Requester{
		UserID:      claims.UserID,
		Role:        claims.TokenType,
		Permissions: claims.Permissions,
	}
}

// StartSession godoc
// POST /api/v1/student/exams/:exam_id/sessions
// Opens (or resumes) the student's session for an exam. Calling it again
// always returns the same session.
func (h *SessionHandler) StartSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	session, err := h.sessionService.Start(c.Request.Context(), examID, claims.UserID, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		if errors.Is(err, service.ErrExamNotAvailable) {
			response.Fail(c, http.StatusConflict, response.ErrExamNotAvailable)
			return
		}
		failServer(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": session})
}

// GetSession godoc
// GET /api/v1/student/sessions/:id
// GET /api/v1/admin/sessions/:id
// Returns the session with its exam context. A session outside the caller's
// reach is reported as not found.
func (h *SessionHandler) GetSession(c *gin.Context) {
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

	session, err := h.sessionService.Get(c.Request.Context(), sessionID, requesterFrom(claims))
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		failServer(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": session})
}

// SubmitAnswer godoc
// PUT /api/v1/student/sessions/:id/answers
// Saves or overwrites one answer while the session is in progress.
func (h *SessionHandler) SubmitAnswer(c *gin.Context) {
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

	var req model.SubmitAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	answer, err := h.sessionService.SubmitAnswer(c.Request.Context(), sessionID, &req, claims.UserID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSessionNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		case errors.Is(err, service.ErrAccessDenied):
			response.Fail(c, http.StatusForbidden, response.ErrForbidden)
		case errors.Is(err, service.ErrSessionNotActive):
			response.Fail(c, http.StatusConflict, response.ErrSessionNotActive)
		case errors.Is(err, repository.ErrQuestionNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		case errors.Is(err, service.ErrOptionRequired):
			response.Fail(c, http.StatusBadRequest, response.ErrOptionRequired)
		case errors.Is(err, service.ErrOptionInvalid):
			response.Fail(c, http.StatusBadRequest, response.ErrOptionInvalid)
		default:
			failServer(c, err)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"answer": answer})
}

// SubmitSession godoc
// POST /api/v1/student/sessions/:id/submit
// Finalizes the session. Also drops a low-severity audit entry so proctors
// see the submission in the live feed.
func (h *SessionHandler) SubmitSession(c *gin.Context) {
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

	session, err := h.sessionService.SubmitExam(c.Request.Context(), sessionID, claims.UserID)
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		failServer(c, err)
		return
	}

	h.securityService.Report(c.Request.Context(), sessionID, "exam_submitted", nil, string(model.SeverityLow))

	response.Success(c, http.StatusOK, gin.H{"session": session})
}

// ListMySessions godoc
// GET /api/v1/student/sessions
// Lists the authenticated student's sessions, newest first.
func (h *SessionHandler) ListMySessions(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessions, err := h.sessionService.ListByStudent(c.Request.Context(), claims.UserID)
	if err != nil {
		failServer(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"sessions": sessions})
}

// ListExamSessions godoc
// GET /api/v1/admin/exams/:exam_id/sessions
// Lists every session of an exam for proctoring dashboards.
func (h *SessionHandler) ListExamSessions(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	sessions, err := h.sessionService.ListByExam(c.Request.Context(), examID)
	if err != nil {
		failServer(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"sessions": sessions})
}

// MarkGraded godoc
// POST /api/v1/admin/sessions/:id/grade
// Locks a submitted session as graded, making it immutable.
func (h *SessionHandler) MarkGraded(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.sessionService.MarkGraded(c.Request.Context(), sessionID); err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		failServer(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}
