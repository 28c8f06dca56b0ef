package httpclient

import (
	"fmt"
	"net/http"
)

// Error is a non-2xx HTTP response surfaced as an error, carrying the
// upstream body verbatim so it can be passed through to the client.
type Error struct {
	Method     string `json:"method"`
	URL        string `json:"url"`
	StatusCode int    `json:"status_code"`
	Status     string `json:"status"`
	Body       []byte `json:"body"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s - %s with status %s", e.Method, e.URL, e.Status)
}

// IsHTTPStatusCodeRetryable checks if an HTTP status code is retryable.
// 4xx status codes are not retryable except 429; 5xx are.
func IsHTTPStatusCodeRetryable(statusCode int) bool {
	if statusCode == http.StatusTooManyRequests {
		return true
	}

	if statusCode >= 400 && statusCode < 500 {
		return false
	}

	return statusCode >= 500
}
