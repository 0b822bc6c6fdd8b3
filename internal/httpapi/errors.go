package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"rollcall/internal/apiclient"
	"rollcall/internal/attendance"
	"rollcall/internal/roster"
	"rollcall/internal/workspace"
)

// errorStatus maps domain errors onto HTTP status codes and a short machine
// code for clients.
func errorStatus(err error) (int, string) {
	var se *apiclient.StatusError
	switch {
	case errors.Is(err, attendance.ErrInvalidDate):
		return http.StatusUnprocessableEntity, "invalid_date"
	case errors.Is(err, attendance.ErrInvalidStatus):
		return http.StatusUnprocessableEntity, "invalid_status"
	case errors.Is(err, attendance.ErrRemarksRequired):
		return http.StatusUnprocessableEntity, "remarks_required"
	case errors.Is(err, roster.ErrInvalidSort):
		return http.StatusUnprocessableEntity, "invalid_sort"
	case errors.Is(err, attendance.ErrNotEditable):
		return http.StatusConflict, "not_editable"
	case errors.Is(err, attendance.ErrCommitInProgress):
		return http.StatusConflict, "commit_in_progress"
	case errors.Is(err, attendance.ErrEmptyCommit):
		return http.StatusBadRequest, "empty_commit"
	case errors.Is(err, attendance.ErrNoPendingSelection):
		return http.StatusBadRequest, "no_pending_selection"
	case errors.Is(err, attendance.ErrUnknownRegistration):
		return http.StatusNotFound, "unknown_registration"
	case errors.Is(err, workspace.ErrNotOpen):
		return http.StatusNotFound, "workspace_not_open"
	case errors.As(err, &se) && (se.Code == http.StatusUnauthorized || se.Code == http.StatusForbidden || se.Code == http.StatusNotFound):
		return se.Code, "upstream_rejected"
	case attendance.IsTransport(err), errors.As(err, &se):
		return http.StatusBadGateway, "transport"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (h *handler) fail(c *gin.Context, err error) {
	status, code := errorStatus(err)
	body := gin.H{"error": err.Error(), "code": code}
	if status == http.StatusBadGateway {
		body["retryable"] = true
	}
	if status >= 500 {
		h.log.WithError(err).WithField("path", c.FullPath()).Warn("request failed")
	}
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg, "code": "bad_request"})
}
