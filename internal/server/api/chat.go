package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/parrotgw/parrot/internal/log"
	"github.com/parrotgw/parrot/internal/pkg/httpclient"
	"github.com/parrotgw/parrot/internal/pkg/streams"
	"github.com/parrotgw/parrot/internal/resilience"
	"github.com/parrotgw/parrot/internal/server/chat"
)

// ChatCompletionHandlers serves POST /v1/chat/completions.
type ChatCompletionHandlers struct {
	Processor *chat.Processor
}

// NewChatCompletionHandlers builds the chat handlers.
func NewChatCompletionHandlers(processor *chat.Processor) *ChatCompletionHandlers {
	return &ChatCompletionHandlers{Processor: processor}
}

// ChatCompletion handles one chat completion request.
func (handlers *ChatCompletionHandlers) ChatCompletion(c *gin.Context) {
	ctx := c.Request.Context()

	genericReq, err := httpclient.ReadHTTPRequest(c.Request)
	if err != nil {
		writeError(c, err)
		return
	}

	result, err := handlers.Processor.Process(ctx, genericReq)
	if err != nil {
		log.Error(ctx, "error processing chat completion", log.Cause(err))
		writeError(c, err)

		return
	}

	writeCacheHeaders(c, result)

	if result.Response != nil {
		contentType := "application/json"
		if ct := result.Response.Headers.Get("Content-Type"); ct != "" {
			contentType = ct
		}

		c.Data(result.Response.StatusCode, contentType, result.Response.Body)

		return
	}

	if result.Stream != nil {
		defer func() {
			if err := result.Stream.Close(); err != nil {
				log.Warn(ctx, "error closing stream", log.Cause(err))
			}
		}()

		WriteSSEStream(c, result.Stream)
	}
}

func writeCacheHeaders(c *gin.Context, result *chat.Result) {
	if prov := result.Provenance; prov != nil && prov.Hit {
		c.Header(chat.HeaderCacheHit, "true")
		c.Header(chat.HeaderCacheMatch, string(prov.Match))
		c.Header(chat.HeaderCacheScore, fmt.Sprintf("%.3f", prov.Score))
		c.Header(chat.HeaderCacheProvenance, prov.EntryID)
		c.Header(chat.HeaderCacheSourceModel, prov.SourceModel)
		c.Header(chat.HeaderCacheAge, strconv.FormatInt(prov.AgeSeconds, 10))
	} else {
		c.Header(chat.HeaderCacheHit, "false")
		c.Header(chat.HeaderCacheMatch, "none")
	}

	if result.Degraded != "" && result.Degraded != resilience.ModeFull {
		c.Header(chat.HeaderCacheDegraded, "true")
		c.Header(chat.HeaderCacheDegradedReason, string(result.Degraded))
	}
}

// WriteSSEStream writes stream events as Server-Sent Events.
func WriteSSEStream(c *gin.Context, stream streams.Stream[*httpclient.StreamEvent]) {
	ctx := c.Request.Context()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)

	clientGone := c.Writer.CloseNotify()

	for {
		select {
		case <-clientGone:
			log.Warn(ctx, "client disconnected, stopping stream")
			return

		case <-ctx.Done():
			log.Warn(ctx, "context done, stopping stream")
			return
		default:
			if !stream.Next() {
				if err := stream.Err(); err != nil {
					log.Error(ctx, "error in stream", log.Cause(err))
				}

				return
			}

			cur := stream.Current()
			c.SSEvent(cur.Type, string(cur.Data))
			c.Writer.Flush()
		}
	}
}
