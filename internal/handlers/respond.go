// Package handlers contains HTTP request handlers for the auth service.
package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arvense/authtrail/internal/apperr"
	"github.com/arvense/authtrail/internal/middleware"
)

// includeDetail controls whether internal error causes are echoed in
// responses. Set once at boot; true outside production.
var includeDetail bool

// SetErrorDetail toggles internal error detail in responses.
func SetErrorDetail(enabled bool) {
	includeDetail = enabled
}

type errorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
	Detail  string            `json:"detail,omitempty"`
}

// RespondError translates any error into the taxonomy response shape:
// stable code, human message, correlation id. Unknown errors become
// 500s and are logged with full context; clients only see the generic
// form.
func RespondError(c *gin.Context, err error) {
	appErr, ok := apperr.As(err)
	if !ok {
		appErr = apperr.Internal("an unexpected error occurred").WithCause(err)
	}

	if appErr.Status >= http.StatusInternalServerError {
		log.Printf("request %s failed: %v", c.GetString(middleware.ContextRequestID), err)
	}

	body := errorBody{
		Code:    appErr.Code,
		Message: appErr.Message,
		Fields:  appErr.Fields,
	}
	if includeDetail {
		if cause := errors.Unwrap(appErr); cause != nil {
			body.Detail = cause.Error()
		}
	}

	c.JSON(appErr.Status, gin.H{
		"error":      body,
		"request_id": c.GetString(middleware.ContextRequestID),
	})
}

// RespondBindingError wraps gin binding failures as validation errors.
func RespondBindingError(c *gin.Context, err error) {
	RespondError(c, apperr.Validation(err.Error(), nil))
}
