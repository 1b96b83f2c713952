// Package runtime follows a real execution on the durable-workflow runtime
// and mirrors its progress onto node statuses.
package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rendis/canvasflow/pkg/schema"
)

// StatusSource is the runtime status feed.
type StatusSource interface {
	Poll(ctx context.Context, executionID string) (schema.RuntimeStatus, error)
}

const (
	defaultHTTPTimeout   = 10 * time.Second
	defaultMaxStatusBody = 1 << 20
)

// HTTPSource polls GET {BaseURL}/executions/{id}/status.
type HTTPSource struct {
	BaseURL string
	Client  *http.Client
	Headers map[string]string
}

// NewHTTPSource creates an HTTPSource with a bounded client timeout.
func NewHTTPSource(baseURL string) *HTTPSource {
	return &HTTPSource{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// Poll fetches the current status of one execution.
func (s *HTTPSource) Poll(ctx context.Context, executionID string) (schema.RuntimeStatus, error) {
	var status schema.RuntimeStatus

	rawURL := fmt.Sprintf("%s/executions/%s/status", s.BaseURL, url.PathEscape(executionID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return status, fmt.Errorf("build status request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range s.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return status, fmt.Errorf("poll execution %s: %w", executionID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, defaultMaxStatusBody))
	if err != nil {
		return status, fmt.Errorf("read status response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return status, schema.NewErrorf(schema.ErrCodeNotFound, "execution %s not found", executionID)
	case resp.StatusCode >= 300:
		return status, fmt.Errorf("poll execution %s: unexpected status %d: %s",
			executionID, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.Unmarshal(body, &status); err != nil {
		return status, fmt.Errorf("decode status response: %w", err)
	}
	if status.RuntimeStatus == "" {
		return status, fmt.Errorf("poll execution %s: response has no runtimeStatus", executionID)
	}
	return status, nil
}
