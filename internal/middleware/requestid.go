// Package middleware provides HTTP middleware for the auth service.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/arvense/authtrail/internal/models"
)

// Context keys shared between middleware and handlers.
const (
	ContextRequestID = "request_id"
	ContextUserID    = "user_id"
	ContextUserEmail = "user_email"
	ContextUserRole  = "user_role"
)

const requestIDHeader = "X-Request-ID"

// RequestID attaches a correlation id to every request, honoring one
// supplied by the client and echoing it back in the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ContextRequestID, id)
		c.Writer.Header().Set(requestIDHeader, id)
		c.Next()
	}
}

// Meta builds the audit request metadata for the current request. The
// status code is read from the writer, so call it after the response
// is written (or pass through handlers that already know the status).
func Meta(c *gin.Context) models.RequestMeta {
	return models.RequestMeta{
		IPAddress:  c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
		Route:      c.Request.URL.Path,
		Method:     c.Request.Method,
		StatusCode: c.Writer.Status(),
		RequestID:  c.GetString(ContextRequestID),
	}
}

// MetaWithStatus is Meta for handlers that record audit metadata
// before writing their response; the writer still reports the default
// status at that point, so the caller supplies the one it is about to
// send.
func MetaWithStatus(c *gin.Context, status int) models.RequestMeta {
	meta := Meta(c)
	meta.StatusCode = status
	return meta
}
