package response

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// APIResponse is the standard success response shape.
type APIResponse struct {
	Data    any    `json:"data"`
	Status  int    `json:"status"`
	Message string `json:"message,omitempty"`
	Path    string `json:"path"`
}

// APIError is the standard error response shape. Fields carries field-level
// validation detail when present.
type APIError struct {
	Message string   `json:"message"`
	Error   string   `json:"error"`
	Fields  []string `json:"fields,omitempty"`
	Path    string   `json:"path"`
	Status  int      `json:"status"`
}

// pathFromContext returns the request path from Echo context.
func pathFromContext(c echo.Context) string {
	if c == nil || c.Request() == nil {
		return ""
	}
	return c.Request().URL.Path
}

// OK sends a 200 response with data.
func OK(c echo.Context, data any, message string) error {
	return c.JSON(http.StatusOK, APIResponse{
		Data:    data,
		Status:  http.StatusOK,
		Message: message,
		Path:    pathFromContext(c),
	})
}

// Error sends a JSON error response using APIError.
func Error(c echo.Context, status int, message, errDetail string) error {
	return c.JSON(status, APIError{
		Message: message,
		Error:   errDetail,
		Path:    pathFromContext(c),
		Status:  status,
	})
}

// ValidationFailed sends 400 with per-field detail.
func ValidationFailed(c echo.Context, message string, fields []string) error {
	return c.JSON(http.StatusBadRequest, APIError{
		Message: message,
		Error:   "validation failed",
		Fields:  fields,
		Path:    pathFromContext(c),
		Status:  http.StatusBadRequest,
	})
}

// BadRequest sends 400 with message and error detail.
func BadRequest(c echo.Context, message, errDetail string) error {
	return Error(c, http.StatusBadRequest, message, errDetail)
}

// Unauthorized sends 401 with message and error detail.
func Unauthorized(c echo.Context, message, errDetail string) error {
	return Error(c, http.StatusUnauthorized, message, errDetail)
}

// Forbidden sends 403 with message and error detail.
func Forbidden(c echo.Context, message, errDetail string) error {
	return Error(c, http.StatusForbidden, message, errDetail)
}

// TooManyRequests sends 429 with message and error detail.
func TooManyRequests(c echo.Context, message, errDetail string) error {
	return Error(c, http.StatusTooManyRequests, message, errDetail)
}

// InternalError sends 500 with message and error detail.
func InternalError(c echo.Context, message, errDetail string) error {
	return Error(c, http.StatusInternalServerError, message, errDetail)
}
