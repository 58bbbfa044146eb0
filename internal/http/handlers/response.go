// Package handlers provides HTTP handler implementations for the public API.
//
// This file defines the standard response utilities used across all
// endpoints. Every response carries the same envelope so clients can branch
// on a single boolean:
//
//	HTTP/1.1 200 OK
//	{ "ok": true, "data": { ... } }
//
//	HTTP/1.1 404 Not Found
//	{ "ok": false, "error": "request not found", "code": "not_found",
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000" }
//
// fail() centralizes error logging and formatting so 5xx responses are
// logged with request context.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/1lyagent/agent-backend/internal/http/middleware"
)

// Envelope is the uniform success wrapper.
type Envelope struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	OK bool `json:"ok"`
	// Human-readable message (safe to show to users)
	Error string `json:"error"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code"`
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
}

// fail aborts the request with a structured error and logs server-side
// errors with the request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	reqID := c.Writer.Header().Get("X-Request-ID")
	resp := ErrorResponse{
		OK:        false,
		Error:     msg,
		Code:      code,
		RequestID: reqID,
	}

	if status >= http.StatusInternalServerError {
		lg := middleware.LoggerFrom(c)
		lg.Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail() for router-level handlers
// (NoRoute, NoMethod, recovery).
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// ok writes a success response in the standard envelope.
func ok(c *gin.Context, status int, data any) {
	c.JSON(status, Envelope{OK: true, Data: data})
}
