package http

import (
	"errors"
	"net/http"

	"shortlink/internal/auth"
	"shortlink/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// Response helpers for consistent API responses

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// SuccessResponse represents a successful response
type SuccessResponse struct {
	Data    interface{} `json:"data"`
	Message string      `json:"message,omitempty"`
}

// respondError aborts the chain with an error body
func respondError(c *gin.Context, statusCode int, code, message string) {
	c.AbortWithStatusJSON(statusCode, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// respondSuccess sends a success response
func respondSuccess(c *gin.Context, statusCode int, data interface{}, message string) {
	c.JSON(statusCode, SuccessResponse{
		Data:    data,
		Message: message,
	})
}

// errorMapping ties a domain error to its HTTP status and error code.
// Order matters: the first errors.Is match wins.
type errorMapping struct {
	err    error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{domain.ErrLinkNotFound, http.StatusNotFound, "LINK_NOT_FOUND"},
	{domain.ErrLinkExpired, http.StatusGone, "LINK_EXPIRED"},
	{domain.ErrPasswordRequired, http.StatusUnauthorized, "PASSWORD_REQUIRED"},
	{domain.ErrBadPassword, http.StatusForbidden, "BAD_PASSWORD"},
	{domain.ErrTooManyAttempts, http.StatusTooManyRequests, "TOO_MANY_ATTEMPTS"},
	{domain.ErrStorageUnavailable, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE"},
	{domain.ErrCodeConflict, http.StatusConflict, "CODE_CONFLICT"},
	{domain.ErrInvalidCode, http.StatusBadRequest, "INVALID_CODE"},
	{domain.ErrInvalidURL, http.StatusBadRequest, "INVALID_URL"},
	{domain.ErrInvalidExpiry, http.StatusBadRequest, "INVALID_EXPIRY"},
	{domain.ErrInvalidDateRange, http.StatusBadRequest, "INVALID_DATE_RANGE"},
	{auth.ErrPasswordTooLong, http.StatusBadRequest, "PASSWORD_TOO_LONG"},
	{domain.ErrNotOwner, http.StatusForbidden, "NOT_OWNER"},
	{domain.ErrUnauthenticated, http.StatusUnauthorized, "UNAUTHENTICATED"},
	{domain.ErrCodeSpaceExhausted, http.StatusServiceUnavailable, "CODE_SPACE_EXHAUSTED"},
}

// statusFor maps err to a status and error code; unknown errors are 500s
func statusFor(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}

// respondServiceError translates a service error. Server-side failures are
// logged and their message is hidden from the client.
func (h *Handler) respondServiceError(c *gin.Context, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log(c).Error("request failed", "code", code, "error", err)
		if status == http.StatusInternalServerError {
			respondError(c, status, code, "Internal server error")
			return
		}
	}

	message := err.Error()
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			message = m.err.Error()
			break
		}
	}
	respondError(c, status, code, message)
}

// respondBindError reports a malformed or invalid request body
func respondBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	details := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		details[fe.Field()] = fe.Tag()
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
		Error:   "Request validation failed",
		Code:    "VALIDATION_FAILED",
		Details: details,
	})
}
