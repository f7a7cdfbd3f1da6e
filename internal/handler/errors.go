package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/proktor-backend/internal/response"
	"github.com/stemsi/proktor-backend/internal/service"
)

// failServer answers an unclassified service error. Datastore availability
// problems surface as SERVICE_DEGRADED so clients know a retry can succeed;
// everything else is an internal error.
func failServer(c *gin.Context, err error) {
	if service.Transient(err) {
		response.Fail(c, http.StatusServiceUnavailable, response.ErrServiceDegraded)
		return
	}
	response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
}
