package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// Transport delivers requests. Implementations do not retry.
type Transport interface {
	Send(ctx context.Context, req *Request) error
}

// StatusError is returned for responses other than 200 OK.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed with status code %d", e.StatusCode)
}

// HTTPTransport sends requests with net/http.
type HTTPTransport struct {
	client *http.Client
	logger *slog.Logger
}

// NewHTTPTransport creates a transport. A nil client uses a default one;
// per request timeouts come from Request.Timeout.
func NewHTTPTransport(client *http.Client, logger *slog.Logger) *HTTPTransport {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPTransport{client: client, logger: logger}
}

func (t *HTTPTransport) Send(ctx context.Context, req *Request) error {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, strings.NewReader(req.Body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		t.logger.Error("Failed to send request", slog.Int64("sequence_id", req.SequenceID), slog.Any("error", err))
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.logger.Error("Request failed", slog.Int64("sequence_id", req.SequenceID), slog.Int("status", resp.StatusCode))
		return &StatusError{StatusCode: resp.StatusCode}
	}
	return nil
}
