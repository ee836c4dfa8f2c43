package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/licentia/pkg/apperr"
)

// envelope is the uniform response shape of every endpoint. Status is true
// on success; Message carries the user-visible text; Data the payload.
type envelope struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func respondOK(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, envelope{Status: true, Message: message, Data: data})
}

// ErrorHandlingMiddleware converts any error pushed onto the gin context
// into the envelope, with the HTTP status derived from the error kind. Raw
// driver errors never reach the client; their message is replaced by a
// generic one.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}
		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		c.AbortWithStatusJSON(statusFor(lastErr.Err), envelope{
			Status:  false,
			Message: apperr.MessageOf(lastErr.Err),
			Data:    nil,
		})
	}
}

func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindLock:
		return http.StatusLocked
	default:
		return http.StatusInternalServerError
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}
