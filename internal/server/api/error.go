package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/parrotgw/parrot/internal/llm"
	"github.com/parrotgw/parrot/internal/pkg/httpclient"
	"github.com/parrotgw/parrot/internal/pkg/xerrors"
	"github.com/parrotgw/parrot/internal/resilience"
)

// writeError maps processor errors onto the wire. Upstream provider errors
// pass through verbatim, including status; everything else is rendered in
// the OpenAI error shape.
func writeError(c *gin.Context, err error) {
	if httpErr, ok := xerrors.As[*httpclient.Error](err); ok {
		contentType := "application/json"
		c.Data(httpErr.StatusCode, contentType, httpErr.Body)

		return
	}

	if respErr, ok := xerrors.As[*llm.ResponseError](err); ok {
		status := respErr.StatusCode
		if status == 0 {
			status = http.StatusInternalServerError
		}

		c.JSON(status, respErr)

		return
	}

	if errors.Is(err, resilience.ErrOpen) {
		c.JSON(http.StatusServiceUnavailable, errorBody("upstream provider is unavailable", "service_unavailable"))
		return
	}

	c.JSON(http.StatusBadGateway, errorBody(err.Error(), "upstream_error"))
}

func errorBody(message, errType string) json.RawMessage {
	body, _ := json.Marshal(&llm.ResponseError{
		Detail: llm.ErrorDetail{Message: message, Type: errType},
	})

	return body
}
