package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dunamismax/docflow/internal/auth"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/propagation"
)

const maxResponseBody = 64 << 20

// endpoint joins escaped path segments onto the base URL.
func (c *Client) endpoint(query url.Values, segments ...string) (string, error) {
	if c.baseURL == "" {
		return "", ErrNoBaseURL
	}
	escaped := make([]string, 0, len(segments))
	for _, s := range segments {
		escaped = append(escaped, url.PathEscape(s))
	}
	u := c.baseURL + "/" + strings.Join(escaped, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u, nil
}

// newGatewayRequest builds a request to the gateway carrying the bearer token
// when one is available.
func (c *Client) newGatewayRequest(ctx context.Context, method, target string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := c.newRequest(ctx, method, target, body, contentType)
	if err != nil {
		return nil, err
	}
	token, err := auth.BearerToken(ctx, c.sessions, c.now())
	if err != nil {
		c.logger.Printf("auth unavailable, sending unauthenticated method=%s url=%s err=%v", method, target, err)
		return req, nil
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req, nil
}

// newRequest builds an unauthenticated request, used directly for presigned
// storage URLs.
func (c *Client) newRequest(ctx context.Context, method, target string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json, */*")
	c.propagator.Inject(ctx, propagation.HeaderCarrier(req.Header))
	return req, nil
}

// send executes req and returns the body of a 2xx response.
func (c *Client) send(req *http.Request) ([]byte, http.Header, error) {
	reqID := uuid.NewString()
	req.Header.Set("X-Request-ID", reqID)
	start := time.Now()

	c.logger.Printf("request req_id=%s method=%s url=%s", reqID, req.Method, redactURL(req.URL))

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Printf("send error req_id=%s elapsed_ms=%d err=%v", reqID, time.Since(start).Milliseconds(), err)
		return nil, nil, fmt.Errorf("%s %s: %w", req.Method, redactURL(req.URL), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, nil, fmt.Errorf("read response body: %w", err)
	}

	c.logger.Printf(
		"response req_id=%s status=%d bytes=%d elapsed_ms=%d",
		reqID,
		resp.StatusCode,
		len(raw),
		time.Since(start).Milliseconds(),
	)

	if resp.StatusCode/100 != 2 {
		return nil, nil, newStatusError(req.Method, redactURL(req.URL), resp.StatusCode, raw)
	}
	return raw, resp.Header, nil
}

func (c *Client) getJSON(ctx context.Context, target string) ([]byte, error) {
	req, err := c.newGatewayRequest(ctx, http.MethodGet, target, nil, "")
	if err != nil {
		return nil, err
	}
	raw, _, err := c.send(req)
	return raw, err
}

func (c *Client) postJSON(ctx context.Context, target string, body any) ([]byte, error) {
	bs, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	req, err := c.newGatewayRequest(ctx, http.MethodPost, target, bytes.NewReader(bs), "application/json")
	if err != nil {
		return nil, err
	}
	raw, _, err := c.send(req)
	return raw, err
}

// redactURL drops query strings so presigned signatures stay out of logs.
func redactURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	clean := *u
	clean.RawQuery = ""
	clean.User = nil
	return clean.String()
}
