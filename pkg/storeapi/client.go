package storeapi

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
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nmoraleda/storefront/pkg/config"
	pkgerrors "github.com/nmoraleda/storefront/pkg/errors"
	"github.com/nmoraleda/storefront/pkg/logger"
	"github.com/nmoraleda/storefront/pkg/metrics"
)

const (
	errorBodyReadLimit int64 = 1024
	tokenExpirySlack         = 30 * time.Second
)

var (
	errBaseURLRequired     = errors.New("storefront api base url is required")
	errCredentialsRequired = errors.New("storefront api client credentials are required")
	errLoggerRequired      = errors.New("storefront api logger is required")
)

// Client talks to the e-commerce backend. Every response uses the uniform
// envelope {success, error, data}; success != 1 is a failure regardless of
// HTTP status. The bearer token is obtained once via a client-credentials
// exchange and refreshed when it nears expiry.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	clientKey    string
	clientSecret string
	logger       *logger.Logger
	metrics      *metrics.StoreMetrics

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the configured backend base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// NewClient builds the backend client and validates the credentials.
func NewClient(cfg config.APIConfig, logg *logger.Logger, met *metrics.StoreMetrics, opts ...Option) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, errBaseURLRequired
	}
	clientKey := strings.TrimSpace(cfg.ClientKey)
	clientSecret := strings.TrimSpace(cfg.ClientSecret)
	if clientKey == "" || clientSecret == "" {
		return nil, errCredentialsRequired
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		httpClient:   &http.Client{Timeout: timeout},
		baseURL:      baseURL,
		clientKey:    clientKey,
		clientSecret: clientSecret,
		logger:       logg,
		metrics:      met,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

type envelope struct {
	Success int             `json:"success"`
	Error   []string        `json:"error"`
	Data    json.RawMessage `json:"data"`
}

// ensureToken performs the one-time client-credentials exchange, refreshing
// when the cached token is close to expiry.
func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Add(tokenExpirySlack).Before(c.tokenExpiry) {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.buildURL("oauth/token"), strings.NewReader(form.Encode()))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.clientKey, c.clientSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeNetwork, err, "execute token request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
		return "", pkgerrors.FromHTTPStatus(resp.StatusCode).WithDetails(strings.TrimSpace(string(msg)))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeNetwork, err, "decode token response")
	}
	if payload.AccessToken == "" {
		return "", pkgerrors.New(pkgerrors.CodeBackend, "token response missing access_token")
	}

	c.token = payload.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	c.log(ctx, "response", "oauth_token", map[string]any{"expires_in": payload.ExpiresIn})
	return c.token, nil
}

// do executes one backend call and unmarshals the envelope data into out.
// body may be url.Values (form-encoded), nil, or any JSON-encodable value.
func (c *Client) do(ctx context.Context, method, endpoint, path string, body any, out any) error {
	start := time.Now()
	err := c.doOnce(ctx, method, endpoint, path, body, out)
	c.metrics.ObserveRequest(endpoint, time.Since(start))
	if err != nil {
		c.metrics.IncRequestFailure(endpoint, string(pkgerrors.CodeOf(err)))
		c.log(ctx, "error", endpoint, map[string]any{"error": err.Error()})
	}
	return err
}

func (c *Client) doOnce(ctx context.Context, method, endpoint, path string, body any, out any) error {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	contentType := ""
	switch typed := body.(type) {
	case nil:
	case url.Values:
		reader = strings.NewReader(typed.Encode())
		contentType = "application/x-www-form-urlencoded"
	default:
		payload, err := json.Marshal(typed)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal "+endpoint+" request")
		}
		reader = bytes.NewReader(payload)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, c.buildURL(path), reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build "+endpoint+" request")
	}
	requestID := uuid.NewString()
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Request-ID", requestID)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	ctx = c.logger.WithRequestID(ctx, requestID)
	c.log(ctx, "request", endpoint, map[string]any{"method": method, "path": path})

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeNetwork, err, "execute "+endpoint+" request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
		return pkgerrors.FromHTTPStatus(resp.StatusCode).WithDetails(strings.TrimSpace(string(msg)))
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeNetwork, err, "decode "+endpoint+" response")
	}
	if env.Success != 1 {
		return pkgerrors.FromBackend(env.Error)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode "+endpoint+" data")
		}
	}
	return nil
}

func (c *Client) buildURL(path string) string {
	return fmt.Sprintf("%s/%s", strings.TrimRight(c.baseURL, "/"), strings.TrimLeft(path, "/"))
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = redact(k, v)
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Warn(ctx, fmt.Sprintf("backend %s failed", op))
	default:
		c.logger.Debug(ctx, fmt.Sprintf("backend %s", phase))
	}
}

func redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, sensitive := range []string{"password", "token", "secret", "email", "card"} {
		if strings.Contains(lower, sensitive) {
			return "[REDACTED]"
		}
	}
	return value
}
