package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/parrotgw/parrot/internal/log"
	"github.com/parrotgw/parrot/internal/pkg/streams"
)

// HttpClient executes generic requests against provider endpoints.
type HttpClient struct {
	client *http.Client
}

// NewHttpClient creates a new HTTP client with pooled connections.
func NewHttpClient() *HttpClient {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &HttpClient{
		client: &http.Client{
			Transport: transport,
		},
	}
}

// NewHttpClientWithClient creates a new HTTP client with a custom http.Client.
func NewHttpClientWithClient(client *http.Client) *HttpClient {
	return &HttpClient{
		client: client,
	}
}

// Do executes the HTTP request.
func (hc *HttpClient) Do(ctx context.Context, request *Request) (*Response, error) {
	rawReq, err := hc.buildHttpRequest(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP request: %w", err)
	}

	rawReq.Header.Set("Accept", "application/json")

	rawResp, err := hc.client.Do(rawReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}

	defer func() {
		err := rawResp.Body.Close()
		if err != nil {
			log.Warn(ctx, "failed to close HTTP response body", log.Cause(err))
		}
	}()

	body, err := io.ReadAll(rawResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if rawResp.StatusCode >= 400 {
		if log.DebugEnabled(ctx) {
			log.Debug(ctx, "HTTP request failed",
				log.String("method", rawReq.Method),
				log.String("url", rawReq.URL.String()),
				log.Any("status_code", rawResp.StatusCode),
				log.String("body", string(body)))
		}

		return nil, &Error{
			Method:     rawReq.Method,
			URL:        rawReq.URL.String(),
			StatusCode: rawResp.StatusCode,
			Status:     rawResp.Status,
			Body:       body,
		}
	}

	return &Response{
		StatusCode:  rawResp.StatusCode,
		Headers:     rawResp.Header,
		Body:        body,
		Request:     request,
		RawResponse: rawResp,
	}, nil
}

// DoStream executes a streaming HTTP request using Server-Sent Events.
func (hc *HttpClient) DoStream(ctx context.Context, request *Request) (streams.Stream[*StreamEvent], error) {
	rawReq, err := hc.buildHttpRequest(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP request: %w", err)
	}

	rawReq.Header.Set("Accept", "text/event-stream")
	rawReq.Header.Set("Cache-Control", "no-cache")

	rawResp, err := hc.client.Do(rawReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP stream request failed: %w", err)
	}

	if rawResp.StatusCode >= 400 {
		defer func() {
			err := rawResp.Body.Close()
			if err != nil {
				log.Warn(ctx, "failed to close HTTP response body", log.Cause(err))
			}
		}()

		body, err := io.ReadAll(rawResp.Body)
		if err != nil {
			return nil, err
		}

		return nil, &Error{
			Method:     rawReq.Method,
			URL:        rawReq.URL.String(),
			StatusCode: rawResp.StatusCode,
			Status:     rawResp.Status,
			Body:       body,
		}
	}

	return NewSSEDecoder(ctx, rawResp.Body), nil
}

// buildHttpRequest builds an HTTP request from a generic Request.
func (hc *HttpClient) buildHttpRequest(ctx context.Context, request *Request) (*http.Request, error) {
	var body io.Reader
	if len(request.Body) > 0 {
		body = bytes.NewReader(request.Body)
	}

	rawReq, err := http.NewRequestWithContext(ctx, request.Method, request.URL, body)
	if err != nil {
		return nil, err
	}

	for key, values := range request.Headers {
		for _, value := range values {
			rawReq.Header.Add(key, value)
		}
	}

	if request.ContentType != "" {
		rawReq.Header.Set("Content-Type", request.ContentType)
	} else if rawReq.Header.Get("Content-Type") == "" {
		rawReq.Header.Set("Content-Type", "application/json")
	}

	if request.Auth != nil {
		switch request.Auth.Type {
		case AuthTypeBearer:
			rawReq.Header.Set("Authorization", "Bearer "+request.Auth.APIKey)
		case AuthTypeAPIKey:
			headerKey := request.Auth.HeaderKey
			if headerKey == "" {
				headerKey = "X-Api-Key"
			}

			rawReq.Header.Set(headerKey, request.Auth.APIKey)
		}
	}

	return rawReq, nil
}
