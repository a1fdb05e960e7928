package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	errs "captioner/pkg/errors"
	"captioner/pkg/logger"
	"captioner/pkg/ratelimit"
	"captioner/pkg/retry"
)

// maxResponseBytes bounds how much of a response body is read
const maxResponseBytes = 4 << 20

// httpClient is the JSON transport shared by the network backends. It
// throttles, retries temporary failures and classifies every error.
type httpClient struct {
	name    string
	http    *http.Client
	baseURL string
	headers map[string]string
	limiter ratelimit.Limiter
	retry   *retry.Config
	logger  logger.Logger
}

// SetHeader sets a header sent with every request
func (c *httpClient) SetHeader(key, value string) {
	c.headers[key] = value
}

// postJSON sends body to path and decodes a 2xx response into out
func (c *httpClient) postJSON(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errs.Processing(c.name, fmt.Errorf("encode request: %w", err))
	}

	return retry.Do(ctx, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return errs.Capability(c.name, err)
		}
		data, err := c.do(ctx, path, payload)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(data, out); err != nil {
			return errs.Processing(c.name, fmt.Errorf("decode response: %w", err))
		}
		return nil
	}, c.retry)
}

// do performs one POST and returns the body of a 2xx response
func (c *httpClient) do(ctx context.Context, path string, payload []byte) ([]byte, error) {
	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, errs.Processing(c.name, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	c.logger.DebugWithFields("sending HTTP request", map[string]interface{}{
		"url":   url,
		"bytes": len(payload),
	})

	resp, err := c.http.Do(req)
	duration := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errs.Capability(c.name, ctx.Err())
		}
		c.logger.WarnWithFields("HTTP request failed", map[string]interface{}{
			"url":      url,
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, &errs.Error{Kind: errs.KindCapability, Op: c.name, Temporary: true, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &errs.Error{Kind: errs.KindCapability, Op: c.name, Temporary: true, Err: fmt.Errorf("read response: %w", err)}
	}

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"url":      url,
		"status":   resp.StatusCode,
		"duration": duration,
	})

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		e := errs.FromStatusCode(c.name, resp.StatusCode, strings.TrimSpace(string(data)))
		e.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		return nil, e
	}
	return data, nil
}

// parseRetryAfter reads a Retry-After header given in seconds or as an HTTP date
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
