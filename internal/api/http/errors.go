package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/fault"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/types"
)

// StatusFor maps an error kind to an HTTP status
func StatusFor(kind fault.Kind) int {
	switch kind {
	case fault.MalformedInput:
		return http.StatusBadRequest
	case fault.Auth:
		return http.StatusUnauthorized
	case fault.NoMatchFound:
		return http.StatusNotFound
	case fault.Communication:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the error body and attaches err to the context for
// request logging and tracing.
func respondError(c *gin.Context, err error) {
	kind := fault.KindOf(err)
	_ = c.Error(err)

	msg := fault.Message(err)
	if kind == fault.Internal || kind == fault.Configuration {
		msg = "internal error"
	}
	c.AbortWithStatusJSON(StatusFor(kind), types.ErrorResponse{
		Error: msg,
		Kind:  kind.String(),
	})
}

func badRequest(op string, err error) error {
	return fault.Wrap(fault.MalformedInput, op, err, "invalid request body")
}
