package platform

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

	"sales-reconciler/internal/models"
	"sales-reconciler/internal/util"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// maxResponseSize caps how much of a platform response is read (10MB).
const maxResponseSize = 10 * 1024 * 1024

// TransportConfig configures a Transport.
type TransportConfig struct {
	Platform   models.Platform
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	// RetryDelay is the base backoff delay.
	RetryDelay time.Duration
	// HTTPClient is the underlying doer; it may already add credentials
	// (e.g. an oauth2 client).
	HTTPClient HTTPDoer
	// Authorize adds credentials to every outgoing request.
	Authorize func(*http.Request)
	Headers   map[string]string
}

// Transport performs JSON calls against one platform with bounded retries
// and a circuit breaker, and maps failures onto the models error taxonomy.
type Transport struct {
	platform  models.Platform
	baseURL   string
	client    HTTPDoer
	breaker   *gobreaker.CircuitBreaker
	authorize func(*http.Request)
	headers   map[string]string
	logger    *zap.Logger
}

// NewTransport builds a transport from cfg.
func NewTransport(cfg TransportConfig) *Transport {
	base := cfg.HTTPClient
	if base == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		base = &http.Client{Timeout: timeout}
	}

	logger := util.GetLogger()
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        string(cfg.Platform),
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("platform", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &Transport{
		platform:  cfg.Platform,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		client:    NewRetryClient(base, cfg.Platform, cfg.MaxRetries, cfg.RetryDelay),
		breaker:   breaker,
		authorize: cfg.Authorize,
		headers:   cfg.Headers,
		logger:    logger,
	}
}

// Do sends a request and decodes a JSON response into out (if non-nil). It
// returns the response headers for callers that paginate on them.
func (t *Transport) Do(ctx context.Context, op, method, path string, query url.Values, body, out interface{}) (http.Header, error) {
	ctx, span := util.StartSpan(ctx, "platform."+string(t.platform)+"."+op)
	defer span.End()

	start := time.Now()
	var header http.Header
	var callErr error

	_, err := t.breaker.Execute(func() (interface{}, error) {
		header, callErr = t.do(ctx, op, method, path, query, body, out)
		if callErr != nil && breakerFailure(callErr) {
			return nil, callErr
		}
		return nil, nil
	})
	util.AdapterRequestLatency.WithLabelValues(string(t.platform)).Observe(time.Since(start).Seconds())

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		callErr = &models.UpstreamError{Platform: t.platform, Op: op, Err: err}
	}

	outcome := "ok"
	if callErr != nil {
		outcome = "error"
		if errors.Is(callErr, models.ErrNotFound) {
			outcome = "not_found"
		}
		util.RecordError(span, callErr)
	}
	util.AdapterRequestsTotal.WithLabelValues(string(t.platform), outcome).Inc()

	return header, callErr
}

func (t *Transport) do(ctx context.Context, op, method, path string, query url.Values, body, out interface{}) (http.Header, error) {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	reqURL := t.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", models.ErrValidation, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	if t.authorize != nil {
		t.authorize(req)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &models.UpstreamError{Platform: t.platform, Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return resp.Header, &models.UpstreamError{Platform: t.platform, Op: op, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode == http.StatusNotFound {
		return resp.Header, fmt.Errorf("%s %s: %w", t.platform, op, models.ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.Header, &models.UpstreamError{
			Platform:   t.platform,
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        errors.New(excerpt(raw)),
		}
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.Header, &models.UpstreamError{
				Platform:   t.platform,
				Op:         op,
				StatusCode: resp.StatusCode,
				Err:        fmt.Errorf("malformed payload: %w", err),
			}
		}
	}
	return resp.Header, nil
}

// breakerFailure reports whether err should count against the breaker:
// network failures and 5xx/429, not client errors.
func breakerFailure(err error) bool {
	var ue *models.UpstreamError
	if !errors.As(err, &ue) {
		return false
	}
	return ue.StatusCode == 0 || ue.StatusCode >= 500 || ue.StatusCode == http.StatusTooManyRequests
}

func excerpt(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > 300 {
		s = s[:300] + "..."
	}
	if s == "" {
		s = "empty response"
	}
	return s
}
