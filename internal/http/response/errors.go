package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type APIError struct {
	Message     string `json:"message"`
	Code        string `json:"code,omitempty"`
	Stage       string `json:"stage,omitempty"`
	IdentityKey string `json:"identity_key,omitempty"`
	Upserted    int    `json:"upserted,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// ContextKeyError holds the APIError written for the request, for the request logger.
const ContextKeyError = "api_error"

// ErrorFromContext returns the APIError written for c, if any.
func ErrorFromContext(c *gin.Context) (APIError, bool) {
	v, ok := c.Get(ContextKeyError)
	if !ok {
		return APIError{}, false
	}
	e, ok := v.(APIError)
	return e, ok
}

func abort(c *gin.Context, status int, e APIError, err error) {
	c.Set(ContextKeyError, e)
	if err != nil {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{Error: e})
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	abort(c, status, APIError{Message: msg, Code: code}, err)
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
