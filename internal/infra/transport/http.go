package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/vietddude/callguard/internal/resilience/classify"
)

// maxBodySize bounds how much of a response is kept for classification.
const maxBodySize = 1 << 20

// HTTPConfig describes an HTTP endpoint.
type HTTPConfig struct {
	Name       string
	BaseURL    string
	HealthPath string
	Timeout    time.Duration
	// RateLimit is the client-side request pace in requests per second.
	// Zero disables pacing.
	RateLimit float64
	Burst     int
	Headers   map[string]string
}

// HTTPEndpoint issues requests to one HTTP service and reports failures as
// *classify.HTTPError so the classifier can inspect them.
type HTTPEndpoint struct {
	name       string
	baseURL    string
	healthPath string
	headers    map[string]string
	httpClient *http.Client
	limiter    *rate.Limiter
}

var _ Endpoint = (*HTTPEndpoint)(nil)

// NewHTTPEndpoint creates an HTTP endpoint.
func NewHTTPEndpoint(cfg HTTPConfig) *HTTPEndpoint {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	healthPath := cfg.HealthPath
	if healthPath == "" {
		healthPath = "/health"
	}

	e := &HTTPEndpoint{
		name:       cfg.Name,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		healthPath: healthPath,
		headers:    cfg.Headers,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return e
}

// Name returns the endpoint name.
func (e *HTTPEndpoint) Name() string {
	return e.name
}

// Do sends a request and returns the response body for 2xx responses.
func (e *HTTPEndpoint) Do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	url := e.baseURL + path
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	for k, v := range e.headers {
		req.Header.Set(k, v)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		// The caller gave up; report it as-is rather than as a connectivity failure.
		if errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("%s %s: %w", method, url, err)
		}
		return nil, &classify.HTTPError{Method: method, URL: url, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &classify.HTTPError{Method: method, URL: url, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &classify.HTTPError{
			Method: method,
			URL:    url,
			Response: &classify.Response{
				StatusCode: resp.StatusCode,
				Header:     resp.Header,
				Body:       data,
			},
		}
	}
	return data, nil
}

// Get is Do with GET and no body.
func (e *HTTPEndpoint) Get(ctx context.Context, path string) ([]byte, error) {
	return e.Do(ctx, http.MethodGet, path, nil)
}

// Check performs a GET on the health path.
func (e *HTTPEndpoint) Check(ctx context.Context) error {
	_, err := e.Get(ctx, e.healthPath)
	return err
}

// Close releases idle connections.
func (e *HTTPEndpoint) Close() error {
	e.httpClient.CloseIdleConnections()
	return nil
}
