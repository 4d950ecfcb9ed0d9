package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"linkoraadmin/internal/logging"
	"linkoraadmin/internal/metrics"
	"linkoraadmin/internal/models"
)

const maxResponseBytes = 4 << 20

// StatusError is returned for non-2xx answers.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend returned status %d", e.StatusCode)
}

type HTTPClient struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewHTTPClient(baseURL string, timeout time.Duration, logger *zap.Logger, m *metrics.Metrics) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logging.OrNop(logger).Named("backend"),
		metrics: m,
	}
}

func (c *HTTPClient) ListRaw(ctx context.Context, kind models.Kind, q ListQuery) ([]byte, error) {
	u := c.baseURL + "/api/" + url.PathEscape(string(kind))
	if enc := q.Values().Encode(); enc != "" {
		u += "?" + enc
	}
	body, err := c.do(ctx, "list_"+string(kind), http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (c *HTTPClient) SetStatus(ctx context.Context, kind models.Kind, id string, status models.Status, action models.Action) error {
	u := fmt.Sprintf("%s/api/%s/%s/status", c.baseURL, url.PathEscape(string(kind)), url.PathEscape(id))
	payload, err := json.Marshal(map[string]string{"status": string(status), "action": string(action)})
	if err != nil {
		return err
	}
	body, err := c.do(ctx, "status_"+string(kind), http.MethodPatch, u, payload)
	return mutationResult(body, err)
}

func (c *HTTPClient) Delete(ctx context.Context, kind models.Kind, id string) error {
	u := fmt.Sprintf("%s/api/%s/%s", c.baseURL, url.PathEscape(string(kind)), url.PathEscape(id))
	body, err := c.do(ctx, "delete_"+string(kind), http.MethodDelete, u, nil)
	return mutationResult(body, err)
}

func (c *HTTPClient) Stats(ctx context.Context) (models.DashboardStats, error) {
	body, err := c.do(ctx, "stats", http.MethodGet, c.baseURL+"/api/stats", nil)
	if err != nil {
		return models.DashboardStats{}, err
	}
	// The stats endpoint answers either the bare object or {success, data}.
	var wrapped struct {
		Success *bool                  `json:"success"`
		Data    *models.DashboardStats `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Success != nil {
		if !*wrapped.Success || wrapped.Data == nil {
			return models.DashboardStats{}, fmt.Errorf("%w: stats success=false", ErrUnavailable)
		}
		return *wrapped.Data, nil
	}
	var stats models.DashboardStats
	if err := json.Unmarshal(body, &stats); err != nil {
		return models.DashboardStats{}, fmt.Errorf("decode stats: %w", err)
	}
	return stats, nil
}

// Ping checks reachability with a stats request.
func (c *HTTPClient) Ping(ctx context.Context) error {
	_, err := c.Stats(ctx)
	return err
}

func (c *HTTPClient) do(ctx context.Context, op, method, u string, payload []byte) ([]byte, error) {
	start := time.Now()
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "linkora-console/1")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.ObserveBackend(op, "error", time.Since(start))
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Warn("backend request failed", zap.String("op", op), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.metrics.ObserveBackend(op, "error", time.Since(start))
		return nil, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.metrics.ObserveBackend(op, "status_"+fmt.Sprint(resp.StatusCode/100)+"xx", time.Since(start))
		serr := StatusError{StatusCode: resp.StatusCode, Message: envelopeMessage(body)}
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, serr)
		}
		return body, serr
	}
	c.metrics.ObserveBackend(op, "ok", time.Since(start))
	return body, nil
}

func mutationResult(body []byte, err error) error {
	var serr StatusError
	if errors.As(err, &serr) && serr.StatusCode < 500 {
		return fmt.Errorf("%w: %w", ErrMutationRejected, serr)
	}
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	var env mutationEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("decode mutation response: %w", err)
	}
	if !env.Success {
		msg := env.Message
		if msg == "" {
			msg = env.Error
		}
		if msg == "" {
			msg = "success=false"
		}
		return fmt.Errorf("%w: %s", ErrMutationRejected, msg)
	}
	return nil
}

func envelopeMessage(body []byte) string {
	var env mutationEnvelope
	if json.Unmarshal(body, &env) != nil {
		return ""
	}
	if env.Message != "" {
		return env.Message
	}
	return env.Error
}
