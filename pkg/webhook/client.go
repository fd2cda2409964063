// Package webhook implements the outbound HTTP client used by send_webhook actions.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukex/trellis/pkg/protocol"
)

const (
	defaultTimeout  = 30 * time.Second
	maxResponseBody = 1 << 20
	userAgent       = "trellis-webhook/1.0"
)

// HTTPError represents a non-2xx answer from the remote endpoint.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Client sends webhook requests over net/http.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a webhook client. The timeout bounds the whole request;
// callers can shorten it further through the context.
func NewClient(logger *slog.Logger, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With("module", "webhook"),
	}
}

// Send issues the request. Strings are sent verbatim, any other body is
// JSON encoded.
func (c *Client) Send(ctx context.Context, request protocol.WebhookRequest) (*protocol.WebhookResponse, error) {
	method := strings.ToUpper(request.Method)
	if method == "" {
		method = http.MethodPost
	}

	reqBody, contentType, err := encodeBody(request.Body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, request.URL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	for key, value := range request.Headers {
		req.Header.Set(key, value)
	}

	c.logger.DebugContext(ctx, "sending webhook", "method", method, "url", request.URL)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.WarnContext(ctx, "failed to close webhook response body", "error", err)
		}
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	response := &protocol.WebhookResponse{
		StatusCode: resp.StatusCode,
		Body:       decodeBody(respBody),
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return response, &HTTPError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(respBody)),
		}
	}

	return response, nil
}

func encodeBody(body any) (io.Reader, string, error) {
	switch typed := body.(type) {
	case nil:
		return nil, "", nil
	case string:
		if typed == "" {
			return nil, "", nil
		}

		if json.Valid([]byte(typed)) {
			return strings.NewReader(typed), "application/json", nil
		}

		return strings.NewReader(typed), "text/plain; charset=utf-8", nil
	default:
		data, err := json.Marshal(typed)
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode webhook body: %w", err)
		}

		return bytes.NewReader(data), "application/json", nil
	}
}

func decodeBody(data []byte) any {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	var parsed any
	if err := json.Unmarshal(data, &parsed); err == nil {
		return parsed
	}

	return string(data)
}
