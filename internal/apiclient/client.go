package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"payment-console/internal/domain"
	"payment-console/internal/observability"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultLoginPath = "/auth/login"

	networkErrorMessage    = "Network error. Please check your connection."
	unexpectedErrorMessage = "An unexpected error occurred."

	maxBodyBytes = 10 << 20
)

// Refresher performs the inline token refresh after a 401.
type Refresher interface {
	RefreshAccessToken(ctx context.Context) bool
}

// Config configures a Client.
type Config struct {
	BaseURL           string
	LoginPath         string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	HTTPClient        *http.Client
}

// Client issues requests against the payment backend and normalizes every
// outcome into a *domain.Envelope. It never returns a Go error.
type Client struct {
	baseURL   string
	loginPath string
	http      *http.Client
	tokens    domain.TokenStore
	limiter   *rate.Limiter

	mu            sync.RWMutex
	refresher     Refresher
	onAuthFailure func(loginPath string)
}

// New builds a Client reading bearer credentials from tokens.
func New(cfg Config, tokens domain.TokenStore) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	loginPath := cfg.LoginPath
	if loginPath == "" {
		loginPath = DefaultLoginPath
	}

	return &Client{
		baseURL:   strings.TrimRight(base.String(), "/"),
		loginPath: loginPath,
		http:      httpClient,
		tokens:    tokens,
		limiter:   rate.NewLimiter(limit, burst),
	}, nil
}

// SetRefresher installs the component that performs inline refreshes. When
// none is set the client refreshes directly against the token store.
func (c *Client) SetRefresher(r Refresher) {
	c.mu.Lock()
	c.refresher = r
	c.mu.Unlock()
}

// OnAuthFailure registers the hook fired when an inline refresh fails. It
// receives the login entry point the caller should be sent to.
func (c *Client) OnAuthFailure(fn func(loginPath string)) {
	c.mu.Lock()
	c.onAuthFailure = fn
	c.mu.Unlock()
}

func (c *Client) Get(ctx context.Context, path string, opts ...RequestOption) *domain.Envelope {
	return c.Do(ctx, http.MethodGet, path, nil, opts...)
}

func (c *Client) Post(ctx context.Context, path string, body any, opts ...RequestOption) *domain.Envelope {
	return c.Do(ctx, http.MethodPost, path, body, opts...)
}

func (c *Client) Put(ctx context.Context, path string, body any, opts ...RequestOption) *domain.Envelope {
	return c.Do(ctx, http.MethodPut, path, body, opts...)
}

func (c *Client) Patch(ctx context.Context, path string, body any, opts ...RequestOption) *domain.Envelope {
	return c.Do(ctx, http.MethodPatch, path, body, opts...)
}

func (c *Client) Delete(ctx context.Context, path string, opts ...RequestOption) *domain.Envelope {
	return c.Do(ctx, http.MethodDelete, path, nil, opts...)
}

// Do sends one logical request. A 401 may cause one inline refresh and one
// retry, governed by the request's RetryToken.
func (c *Client) Do(ctx context.Context, method, path string, body any, opts ...RequestOption) *domain.Envelope {
	start := time.Now()

	req := &request{method: method, path: path, retry: NewRetryToken()}
	for _, opt := range opts {
		opt(req)
	}
	if req.bearer != "" {
		// An explicit credential is not the access token; refreshing cannot fix it.
		req.retry.Take()
	}

	env := c.execute(ctx, req, body)

	outcome := "success"
	switch {
	case env.Code() == domain.CodeNetworkError:
		outcome = "network_error"
	case !env.Success:
		outcome = "failure"
	}
	observability.APIRequestDuration.WithLabelValues(method, path, outcome).Observe(time.Since(start).Seconds())

	return env
}

func (c *Client) execute(ctx context.Context, req *request, body any) *domain.Envelope {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return failure(req.path, domain.CodeUnexpectedError, unexpectedErrorMessage, err)
		}
	}

	for {
		env, status := c.send(ctx, req, payload)
		if status != http.StatusUnauthorized || !req.retry.Take() {
			return env
		}

		if !c.refreshInline(ctx) {
			c.authFailed(ctx)
			return env
		}
		observability.FromContext(ctx).Debug("retrying request after token refresh",
			slog.String("method", req.method),
			slog.String("path", req.path),
		)
	}
}

// send performs a single HTTP exchange and returns the envelope plus the
// response status (0 when no response was received).
func (c *Client) send(ctx context.Context, req *request, payload []byte) (*domain.Envelope, int) {
	if err := c.limiter.Wait(ctx); err != nil {
		return failure(req.path, domain.CodeUnexpectedError, unexpectedErrorMessage, err), 0
	}

	httpReq, err := c.newHTTPRequest(ctx, req, payload)
	if err != nil {
		return failure(req.path, domain.CodeUnexpectedError, unexpectedErrorMessage, err), 0
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		observability.FromContext(ctx).Warn("backend request failed",
			slog.String("method", req.method),
			slog.String("path", req.path),
			slog.String("error", err.Error()),
		)
		return failure(req.path, domain.CodeNetworkError, networkErrorMessage, nil), 0
	}
	defer resp.Body.Close()

	return normalize(req.path, resp), resp.StatusCode
}

func (c *Client) newHTTPRequest(ctx context.Context, req *request, payload []byte) (*http.Request, error) {
	target := c.baseURL + "/" + strings.TrimLeft(req.path, "/")
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	correlationID, ok := observability.CorrelationID(ctx)
	if !ok {
		correlationID = uuid.NewString()
	}
	httpReq.Header.Set("X-Correlation-ID", correlationID)

	bearer := req.bearer
	if bearer == "" {
		if bearer, err = c.tokens.AccessToken(ctx); err != nil {
			return nil, fmt.Errorf("failed to read access token: %w", err)
		}
	}
	if bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+bearer)
	}

	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}
	return httpReq, nil
}

func (c *Client) refreshInline(ctx context.Context) bool {
	c.mu.RLock()
	refresher := c.refresher
	c.mu.RUnlock()

	var ok bool
	if refresher != nil {
		ok = refresher.RefreshAccessToken(ctx)
	} else {
		ok = c.refreshFromStore(ctx)
	}

	result := "success"
	if !ok {
		result = "failure"
	}
	observability.APIInlineRefreshes.WithLabelValues(result).Inc()
	return ok
}

// refreshFromStore rotates the stored pair without a session manager.
func (c *Client) refreshFromStore(ctx context.Context) bool {
	refreshToken, err := c.tokens.RefreshToken(ctx)
	if err != nil || refreshToken == "" {
		return false
	}

	env := c.Refresh(ctx, refreshToken)
	var auth domain.AuthResponse
	if !env.Success || env.Decode(&auth) != nil || auth.AccessToken == "" {
		return false
	}

	pair := auth.Tokens()
	if pair.RefreshToken == "" {
		pair.RefreshToken = refreshToken
	}
	if err := c.tokens.Save(ctx, pair); err != nil {
		observability.FromContext(ctx).Error("failed to store refreshed tokens", slog.String("error", err.Error()))
		return false
	}
	return true
}

func (c *Client) authFailed(ctx context.Context) {
	if err := c.tokens.Clear(ctx); err != nil {
		observability.FromContext(ctx).Error("failed to purge tokens", slog.String("error", err.Error()))
	}

	c.mu.RLock()
	hook := c.onAuthFailure
	c.mu.RUnlock()

	observability.FromContext(ctx).Warn("inline token refresh failed, redirecting to login",
		slog.String("login_path", c.loginPath),
	)
	if hook != nil {
		hook(c.loginPath)
	}
}

// normalize turns an HTTP response into an envelope. Envelope bodies pass
// through; anything else is wrapped according to the status code.
func normalize(path string, resp *http.Response) *domain.Envelope {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return failure(path, domain.CodeNetworkError, networkErrorMessage, nil)
	}

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300

	if env, isEnvelope := decodeEnvelope(raw); isEnvelope {
		env.StatusCode = resp.StatusCode
		return env
	}

	if ok {
		env := &domain.Envelope{Success: true, StatusCode: resp.StatusCode}
		if json.Valid(raw) {
			env.Data = json.RawMessage(raw)
		}
		return env
	}

	message := http.StatusText(resp.StatusCode)
	if message == "" {
		message = "HTTP " + strconv.Itoa(resp.StatusCode)
	}
	env := failure(path, "HTTP_"+strconv.Itoa(resp.StatusCode), message, nil)
	env.StatusCode = resp.StatusCode
	return env
}

func decodeEnvelope(raw []byte) (*domain.Envelope, bool) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, false
	}
	if _, ok := top["success"]; !ok {
		return nil, false
	}

	var env domain.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, false
	}
	return &env, true
}

func failure(path, code, message string, cause error) *domain.Envelope {
	detail := message
	if cause != nil && code == domain.CodeUnexpectedError {
		detail = cause.Error()
	}
	return &domain.Envelope{
		Success: false,
		Message: message,
		Error: &domain.ErrorDetail{
			ErrorID:   uuid.NewString(),
			Code:      code,
			Message:   detail,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Path:      path,
		},
	}
}

// DecodeData unmarshals a successful envelope's payload into v.
func DecodeData(env *domain.Envelope, v any) error {
	if env == nil {
		return domain.ErrNoData
	}
	if !env.Success {
		return errors.New(env.FailureMessage("request failed"))
	}
	return env.Decode(v)
}
