package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"scriptoria/internal/domain"
)

// maxErrorBody caps how much of a failed response is kept for the error.
const maxErrorBody = 4096

// doStreamRequest performs a JSON POST request for SSE streaming.
// It returns the open *http.Response (caller must close Body).
// Any failure, including a non-2xx status, is an ErrTransport.
func doStreamRequest(ctx context.Context, client *http.Client, endpoint string, body []byte, headers map[string]string) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", domain.ErrTransport, err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: http request: %w", domain.ErrTransport, redactURL(err))
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		defer httpResp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(httpResp.Body, maxErrorBody))
		return nil, mapHTTPError(httpResp.StatusCode, respBody)
	}

	return httpResp, nil
}

// mapHTTPError turns a non-2xx status and body into an ErrTransport with a
// short classification.
func mapHTTPError(statusCode int, body []byte) error {
	detail := fmt.Sprintf("API error %d: %s", statusCode, truncate(string(bytes.TrimSpace(body)), 512))

	switch {
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: rate limited: %s", domain.ErrTransport, detail)
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return fmt.Errorf("%w: api key rejected: %s", domain.ErrTransport, detail)
	case statusCode == http.StatusBadRequest:
		return fmt.Errorf("%w: bad request: %s", domain.ErrTransport, detail)
	case statusCode >= 500:
		return fmt.Errorf("%w: server error: %s", domain.ErrTransport, detail)
	default:
		return fmt.Errorf("%w: %s", domain.ErrTransport, detail)
	}
}

// redactURL drops the query string, which carries the API key, from
// *url.Error values before they are formatted.
func redactURL(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		if i := strings.IndexByte(uerr.URL, '?'); i >= 0 {
			uerr.URL = uerr.URL[:i]
		}
	}
	return err
}

// truncate shortens a string to maxLen bytes on a clean UTF-8 boundary,
// appending "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	end := 0
	for i := range s {
		if i > maxLen {
			break
		}
		end = i
	}
	return s[:end] + "..."
}
