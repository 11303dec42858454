package httputil

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/appointment-engine/pkg/errors"
)

// ContextRequestID is the gin context key holding the request id.
const ContextRequestID = "request_id"

// Response wraps all API responses
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error represents API error
type Error struct {
	Code    errors.ErrorCode `json:"code"`
	Message string           `json:"message"`
	Details interface{}      `json:"details,omitempty"`
	TraceID string           `json:"trace_id,omitempty"`
}

// RespondWithSuccess sends a success response
func RespondWithSuccess(c *gin.Context, data interface{}) {
	RespondWithStatus(c, http.StatusOK, data)
}

// RespondWithStatus sends a success response with a custom status
func RespondWithStatus(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{
		Success: true,
		Data:    data,
	})
}

// RespondWithError maps err onto its status. Errors outside the AppError
// family are reported as internal without leaking their text.
func RespondWithError(c *gin.Context, err error) {
	RespondWithDetails(c, err, nil)
}

// RespondWithDetails is RespondWithError with extra structured details.
func RespondWithDetails(c *gin.Context, err error, details interface{}) {
	status := http.StatusInternalServerError
	body := &Error{
		Code:    errors.ErrInternal,
		Message: "internal server error",
		Details: details,
		TraceID: c.GetString(ContextRequestID),
	}

	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		status = appErr.HTTPStatus()
		body.Code = appErr.Code
		body.Message = appErr.Message
	}

	c.AbortWithStatusJSON(status, Response{
		Success: false,
		Error:   body,
	})
}
