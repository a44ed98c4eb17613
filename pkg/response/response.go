package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error codes shared with the UI bridge.
const (
	CodeInvalidArgument       = "INVALID_ARGUMENT"
	CodeUnauthorized          = "UNAUTHORIZED"
	CodeForbidden             = "FORBIDDEN"
	CodeNotFound              = "NOT_FOUND"
	CodeAdLoadError           = "AD_LOAD_ERROR"
	CodeAdLoadTimeout         = "AD_LOAD_TIMEOUT"
	CodeAdNotReady            = "AD_NOT_READY"
	CodeLoadInProgress        = "LOAD_ALREADY_IN_PROGRESS"
	CodePresentationActive    = "PRESENTATION_IN_PROGRESS"
	CodeNoPresentationSurface = "NO_PRESENTATION_SURFACE"
	CodeUnavailable           = "UNAVAILABLE"
	CodeInternal              = "INTERNAL"
)

// Body is the standard API response envelope.
type Body struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// OK sends a 200 JSON response with data.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Body{Success: true, Data: data})
}

// Fail sends an error envelope with the given status and code.
func Fail(c *gin.Context, status int, code, err string, details interface{}) {
	c.JSON(status, Body{Success: false, Error: err, Code: code, Details: details})
}

// BadRequest sends 400 with error message.
func BadRequest(c *gin.Context, err string) {
	Fail(c, http.StatusBadRequest, CodeInvalidArgument, err, nil)
}

// Unauthorized sends 401.
func Unauthorized(c *gin.Context, err string) {
	Fail(c, http.StatusUnauthorized, CodeUnauthorized, err, nil)
}

// Forbidden sends 403.
func Forbidden(c *gin.Context, err string) {
	Fail(c, http.StatusForbidden, CodeForbidden, err, nil)
}

// NotFound sends 404.
func NotFound(c *gin.Context, err string) {
	Fail(c, http.StatusNotFound, CodeNotFound, err, nil)
}

// Conflict sends 409 with a specific code.
func Conflict(c *gin.Context, code, err string) {
	Fail(c, http.StatusConflict, code, err, nil)
}

// ServiceUnavailable sends 503 with a specific code.
func ServiceUnavailable(c *gin.Context, code, err string) {
	Fail(c, http.StatusServiceUnavailable, code, err, nil)
}

// Internal sends 500.
func Internal(c *gin.Context, err string) {
	Fail(c, http.StatusInternalServerError, CodeInternal, err, nil)
}
