package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bookwise-inc/bookwise/internal/shared/errors"
)

// APIResponse represents a standard API response structure
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

type ErrorInfo struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func SuccessResponse(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, APIResponse{
		Success: true,
		Data:    data,
		Message: message,
	})
}

// ErrorResponse sends an error response with custom status code and message
func ErrorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, APIResponse{
		Success: false,
		Error: &ErrorInfo{
			Type:    "error",
			Message: message,
		},
	})
}

// ErrorResponseWithError maps AppError to its status code. Anything else is a
// 500 without details.
func ErrorResponseWithError(c *gin.Context, err error) {
	var statusCode int
	var errorInfo ErrorInfo

	if appErr := errors.GetAppError(err); appErr != nil {
		statusCode = appErr.Code
		errorInfo = ErrorInfo{
			Type:    string(appErr.Type),
			Message: appErr.Message,
			Details: appErr.Details,
		}
	} else {
		statusCode = http.StatusInternalServerError
		errorInfo = ErrorInfo{
			Type:    string(errors.ErrorTypeInternal),
			Message: "Internal server error occurred",
		}
	}

	c.JSON(statusCode, APIResponse{
		Success: false,
		Error:   &errorInfo,
	})
}
