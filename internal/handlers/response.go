package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shpitdev/cable-intel/internal/apierr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// RespondClassified maps a classified error to its HTTP status and uses the
// error kind as the code.
func RespondClassified(c *gin.Context, err error) {
	kind := apierr.KindOf(err)
	code := string(kind)
	if code == "" {
		code = "internal_error"
	}
	RespondError(c, apierr.StatusOf(err), code, err)
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
