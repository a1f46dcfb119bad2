package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sdrshn-nmbr/tierledger/internal/ledger"
	"github.com/sdrshn-nmbr/tierledger/internal/loyalty"
)

type HTTPOptions struct {
	BaseURL          string
	HTTPClient       *http.Client
	RetryPolicy      RetryPolicy
	UserAgent        string
	MaxResponseBytes uint64
}

// HTTPClient talks to a tierledger server. Retries follow RetryPolicy;
// settlements and exports are never replayed after a transport error.
type HTTPClient struct {
	baseURL          *url.URL
	httpClient       *http.Client
	retryPolicy      RetryPolicy
	userAgent        string
	maxResponseBytes uint64
	rngMu            sync.Mutex
	rng              *rand.Rand
}

type requestSpec struct {
	method  string
	url     string
	body    []byte
	headers map[string]string
	// unsafe marks requests that must not be replayed once they may have
	// reached the handler.
	unsafe bool
}

func NewHTTPClient(opts HTTPOptions) (*HTTPClient, error) {
	if opts.BaseURL == "" {
		return nil, ErrInvalidArgument
	}
	if opts.HTTPClient == nil {
		return nil, ErrInvalidArgument
	}
	if opts.MaxResponseBytes == 0 {
		return nil, ErrInvalidArgument
	}
	if err := opts.RetryPolicy.Validate(); err != nil {
		return nil, err
	}

	parsed, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, err
	}

	return &HTTPClient{
		baseURL:          parsed,
		httpClient:       opts.HTTPClient,
		retryPolicy:      opts.RetryPolicy,
		userAgent:        opts.UserAgent,
		maxResponseBytes: opts.MaxResponseBytes,
		rng:              rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

func (c *HTTPClient) Settle(ctx context.Context, req loyalty.SettleRequest) (loyalty.SettlementResult, error) {
	var result loyalty.SettlementResult
	err := c.sendJSON(ctx, http.MethodPost, "/settlements", req, true, &result)
	return result, err
}

func (c *HTTPClient) Preview(ctx context.Context, req loyalty.SettleRequest) (ledger.Preview, error) {
	var preview ledger.Preview
	err := c.sendJSON(ctx, http.MethodPost, "/bills/preview", req, false, &preview)
	return preview, err
}

func (c *HTTPClient) VerifyPin(ctx context.Context, mobile string, pin string) (ledger.Verification, error) {
	var verification ledger.Verification
	if mobile == "" {
		return verification, ErrInvalidArgument
	}
	path := "/customers/" + mobile + "/verify"
	err := c.sendJSON(ctx, http.MethodPost, path, map[string]string{"pin": pin}, false, &verification)
	return verification, err
}

func (c *HTTPClient) Lookup(ctx context.Context, mobile string) (ledger.CustomerStatus, error) {
	var status ledger.CustomerStatus
	if mobile == "" {
		return status, ErrInvalidArgument
	}
	err := c.getJSON(ctx, "/customers/"+mobile, nil, &status)
	return status, err
}

func (c *HTTPClient) ListCustomers(ctx context.Context) ([]ledger.CustomerStatus, error) {
	var payload struct {
		Customers []ledger.CustomerStatus `json:"customers"`
	}
	if err := c.getJSON(ctx, "/customers", nil, &payload); err != nil {
		return nil, err
	}
	return payload.Customers, nil
}

func (c *HTTPClient) Overview(ctx context.Context) (loyalty.Overview, error) {
	var overview loyalty.Overview
	err := c.getJSON(ctx, "/stats/overview", nil, &overview)
	return overview, err
}

func (c *HTTPClient) Analytics(ctx context.Context) (loyalty.Analytics, error) {
	var analytics loyalty.Analytics
	err := c.getJSON(ctx, "/stats/analytics", nil, &analytics)
	return analytics, err
}

// ExportCSV streams the export to w. It is never retried since w may
// already hold part of the body.
func (c *HTTPClient) ExportCSV(ctx context.Context, w io.Writer) error {
	if w == nil {
		return ErrInvalidArgument
	}
	return c.doRequest(ctx, requestSpec{
		method: http.MethodGet,
		url:    c.buildURL("/export/customers.csv", nil),
		unsafe: true,
	}, func(resp *http.Response) error {
		_, err := io.Copy(w, resp.Body)
		return err
	})
}

func (c *HTTPClient) Config(ctx context.Context) (loyalty.TierConfig, error) {
	var cfg loyalty.TierConfig
	err := c.getJSON(ctx, "/settings", nil, &cfg)
	return cfg, err
}

func (c *HTTPClient) SaveConfig(ctx context.Context, cfg loyalty.TierConfig) (loyalty.TierConfig, error) {
	var saved loyalty.TierConfig
	err := c.sendJSON(ctx, http.MethodPut, "/settings", cfg, false, &saved)
	return saved, err
}

func (c *HTTPClient) Notifications(ctx context.Context, limit int) ([]loyalty.Notification, error) {
	if limit < 0 {
		return nil, ErrInvalidArgument
	}
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	var payload struct {
		Notifications []loyalty.Notification `json:"notifications"`
	}
	if err := c.getJSON(ctx, "/notifications", query, &payload); err != nil {
		return nil, err
	}
	return payload.Notifications, nil
}

func (c *HTTPClient) Import(ctx context.Context, customers []loyalty.Customer) (int, error) {
	var count struct {
		Count int `json:"count"`
	}
	body := map[string][]loyalty.Customer{"customers": customers}
	err := c.sendJSON(ctx, http.MethodPost, "/customers/import", body, false, &count)
	return count.Count, err
}

func (c *HTTPClient) Seed(ctx context.Context) (int, error) {
	var count struct {
		Count int `json:"count"`
	}
	err := c.sendJSON(ctx, http.MethodPost, "/admin/seed", nil, false, &count)
	return count.Count, err
}

func (c *HTTPClient) Reset(ctx context.Context) error {
	return c.sendJSON(ctx, http.MethodPost, "/admin/reset", nil, false, nil)
}

func (c *HTTPClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *HTTPClient) getJSON(ctx context.Context, path string, query url.Values, dest any) error {
	return c.doRequest(ctx, requestSpec{
		method: http.MethodGet,
		url:    c.buildURL(path, query),
	}, c.decodeInto(dest))
}

func (c *HTTPClient) sendJSON(
	ctx context.Context,
	method string,
	path string,
	payload any,
	unsafe bool,
	dest any,
) error {
	var body []byte
	headers := map[string]string{}
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = encoded
		headers["Content-Type"] = "application/json"
	}
	return c.doRequest(ctx, requestSpec{
		method:  method,
		url:     c.buildURL(path, nil),
		body:    body,
		headers: headers,
		unsafe:  unsafe,
	}, c.decodeInto(dest))
}

func (c *HTTPClient) decodeInto(dest any) func(*http.Response) error {
	return func(resp *http.Response) error {
		if dest == nil {
			return drainResponse(resp)
		}
		body, err := c.readResponseBody(resp)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, dest); err != nil {
			return errors.Join(ErrRequestFailed, err)
		}
		return nil
	}
}

func (c *HTTPClient) doRequest(
	ctx context.Context,
	spec requestSpec,
	onSuccess func(*http.Response) error,
) error {
	if ctx == nil {
		return ErrInvalidArgument
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	attempt := uint32(0)
	var lastErr error

	for {
		attempt++
		req, err := c.buildRequest(ctx, spec)
		if err != nil {
			return err
		}

		resp, err := c.httpClient.Do(req)
		if err == nil {
			err = c.handleResponse(resp, onSuccess)
		}

		if err == nil {
			return nil
		}
		lastErr = err
		if !c.shouldRetry(err, spec) {
			return err
		}
		if attempt >= c.retryPolicy.MaxAttempts {
			return errors.Join(ErrRetryExhausted, lastErr)
		}

		delay := c.nextDelay(attempt)
		if err := sleepWithContext(ctx, delay); err != nil {
			return err
		}
	}
}

func (c *HTTPClient) buildRequest(
	ctx context.Context,
	spec requestSpec,
) (*http.Request, error) {
	var body io.Reader
	if spec.body != nil {
		body = bytes.NewReader(spec.body)
	}

	req, err := http.NewRequestWithContext(ctx, spec.method, spec.url, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")
	for key, value := range spec.headers {
		req.Header.Set(key, value)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	return req, nil
}

func (c *HTTPClient) handleResponse(
	resp *http.Response,
	onSuccess func(*http.Response) error,
) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.readHTTPError(resp)
	}
	return onSuccess(resp)
}

func (c *HTTPClient) readHTTPError(resp *http.Response) error {
	body, err := c.readResponseBody(resp)
	if err != nil {
		return err
	}

	var payload struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return &APIError{StatusCode: resp.StatusCode, Code: payload.Code, Message: payload.Error}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
}

func (c *HTTPClient) readResponseBody(resp *http.Response) ([]byte, error) {
	reader := io.LimitReader(resp.Body, int64(c.maxResponseBytes))
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if uint64(len(body)) >= c.maxResponseBytes {
		return nil, ErrResponseTooLarge
	}
	return body, nil
}

func (c *HTTPClient) shouldRetry(err error, spec requestSpec) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrInvalidArgument) {
		return false
	}
	if errors.Is(err, ErrRequestFailed) {
		return false
	}
	if errors.Is(err, ErrResponseTooLarge) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return c.retryPolicy.retries(apiErr.StatusCode, spec.unsafe)
	}

	// Transport failure: the request may or may not have been applied.
	return !spec.unsafe
}

func (c *HTTPClient) nextDelay(attempt uint32) time.Duration {
	delay := c.retryPolicy.BaseDelay * (1 << (attempt - 1))
	if delay > c.retryPolicy.MaxDelay {
		delay = c.retryPolicy.MaxDelay
	}
	if c.retryPolicy.Jitter > 0 {
		jitter := c.randomJitter(c.retryPolicy.Jitter)
		delay += jitter
		if delay < 0 {
			delay = 0
		}
	}
	return delay
}

func (c *HTTPClient) randomJitter(maxJitter time.Duration) time.Duration {
	c.rngMu.Lock()
	defer c.rngMu.Unlock()

	if maxJitter == 0 {
		return 0
	}

	jitter := time.Duration(c.rng.Int63n(int64(maxJitter)))
	return jitter - maxJitter/2
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func drainResponse(resp *http.Response) error {
	_, err := io.Copy(io.Discard, resp.Body)
	return err
}

func (c *HTTPClient) buildURL(pathSuffix string, query url.Values) string {
	base := *c.baseURL
	base.Path = joinURLPath(base.Path, pathSuffix)
	base.RawPath = ""
	if query != nil {
		base.RawQuery = query.Encode()
	}
	return base.String()
}

func joinURLPath(basePath string, suffix string) string {
	basePath = strings.TrimSuffix(basePath, "/")
	suffix = strings.TrimPrefix(suffix, "/")

	if basePath == "" {
		return "/" + suffix
	}
	if suffix == "" {
		return basePath
	}
	return basePath + "/" + suffix
}
