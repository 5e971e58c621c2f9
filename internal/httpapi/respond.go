package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"campusevents/internal/accounts"
	"campusevents/internal/attendance"
	"campusevents/internal/credential"
	"campusevents/internal/export"
	"campusevents/pkg/validator"
)

const warningHeader = "X-Export-Warning"

func ok(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"status": "ok", "data": data})
}

func fail(c *gin.Context, status int, code, desc string) {
	c.AbortWithStatusJSON(status, gin.H{
		"status": "error",
		"error":  gin.H{"code": code, "desc": desc},
	})
}

// respondError maps service errors onto HTTP statuses.
func (h *handler) respondError(c *gin.Context, err error) {
	status, code := classify(err)
	desc := err.Error()
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		h.log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
		desc = http.StatusText(status)
	}
	fail(c, status, code, desc)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, validator.ErrValidation), errors.Is(err, attendance.ErrInvalidEvent),
		errors.Is(err, accounts.ErrInvalidSignup):
		return http.StatusBadRequest, "VALIDATION"
	case errors.Is(err, credential.ErrInvalidCredentialFormat):
		return http.StatusBadRequest, "INVALID_CREDENTIAL"
	case errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusBadRequest, "UNSUPPORTED_FORMAT"
	case errors.Is(err, accounts.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_LOGIN"
	case errors.Is(err, attendance.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, attendance.ErrEventNotFound):
		return http.StatusNotFound, "EVENT_NOT_FOUND"
	case errors.Is(err, attendance.ErrStudentNotFound):
		return http.StatusNotFound, "STUDENT_NOT_FOUND"
	case errors.Is(err, attendance.ErrNotRegistered):
		return http.StatusNotFound, "NOT_REGISTERED"
	case errors.Is(err, attendance.ErrAlreadyRegistered):
		return http.StatusConflict, "ALREADY_REGISTERED"
	case errors.Is(err, attendance.ErrEventFull):
		return http.StatusConflict, "EVENT_FULL"
	case errors.Is(err, attendance.ErrAlreadyCheckedIn):
		return http.StatusConflict, "ALREADY_CHECKED_IN"
	case errors.Is(err, attendance.ErrCapacityTooLow):
		return http.StatusConflict, "CAPACITY_TOO_LOW"
	case errors.Is(err, accounts.ErrAccountExists):
		return http.StatusConflict, "ACCOUNT_EXISTS"
	case errors.Is(err, attendance.ErrStorageUnavailable), errors.Is(err, accounts.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE"
	case errors.Is(err, attendance.ErrEncodingFailure):
		return http.StatusInternalServerError, "ENCODING_FAILURE"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

// bindJSON decodes and validates the request body into dst.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		fail(c, http.StatusBadRequest, "BAD_REQUEST", "malformed JSON body")
		return false
	}
	if err := validator.Validate(c.Request.Context(), dst); err != nil {
		fail(c, http.StatusBadRequest, "VALIDATION", err.Error())
		return false
	}
	return true
}

func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		fail(c, http.StatusBadRequest, "INVALID_ID", name+" must be a positive integer")
		return 0, false
	}
	return id, true
}
