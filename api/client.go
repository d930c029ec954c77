// Package api wraps the platform REST API.
package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"callkit/core"
	"callkit/observability"

	"github.com/bytedance/sonic"
)

// DefaultBaseURL is used when no base URL is configured.
const DefaultBaseURL = "https://api.callkit.io/v1"

var jsonAPI = sonic.ConfigStd

// Client talks to the REST API. The zero value is not usable; use New.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *core.Logger

	Connection     *ConnectionService
	Agents         *AgentsService
	Analytics      *AnalyticsService
	KnowledgeBases *KnowledgeBasesService
	PhoneNumbers   *PhoneNumbersService
	TTS            *TTSService
}

// Option configures a Client.
type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithLogger(logger *core.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a client. apiKey may be empty when only end-of-call notifications
// or caller-supplied credentials are used.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		httpClient: newDefaultHTTPClient(),
		logger:     core.GetLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Component("api")

	c.Connection = &ConnectionService{client: c}
	c.Agents = &AgentsService{client: c}
	c.Analytics = &AnalyticsService{client: c}
	c.KnowledgeBases = &KnowledgeBasesService{client: c}
	c.PhoneNumbers = &PhoneNumbersService{client: c}
	c.TTS = &TTSService{client: c}
	return c
}

// APIKey returns the configured key.
func (c *Client) APIKey() string {
	return c.apiKey
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// newDefaultHTTPClient sets transport-level timeouts and leaves the request
// lifetime to the caller's context.
func newDefaultHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ForceAttemptHTTP2:     true,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
	}
	return &http.Client{Transport: transport}
}

// request describes one API call.
type request struct {
	method string
	path   string
	query  url.Values
	body   any
	// token overrides the client API key as bearer credential.
	token string
	// metricPath is the templated path used as metric label.
	metricPath string
}

// do sends r and decodes a JSON response into out (when non-nil).
func (c *Client) do(ctx context.Context, r request, out any) error {
	data, _, err := c.doRaw(ctx, r)
	if err != nil {
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := jsonAPI.Unmarshal(data, out); err != nil {
		return &core.Error{Type: core.ErrTypeRequestFailed, Message: fmt.Sprintf("decode %s %s response", r.method, r.path), Err: err}
	}
	return nil
}

// doRaw sends r and returns the raw 2xx body.
func (c *Client) doRaw(ctx context.Context, r request) ([]byte, http.Header, error) {
	var body io.Reader
	if r.body != nil {
		payload, err := jsonAPI.Marshal(r.body)
		if err != nil {
			return nil, nil, fmt.Errorf("api: marshal %s body: %w", r.path, err)
		}
		body = bytes.NewReader(payload)
	}

	endpoint := c.baseURL + r.path
	if len(r.query) > 0 {
		endpoint += "?" + r.query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, r.method, endpoint, body)
	if err != nil {
		return nil, nil, fmt.Errorf("api: create request: %w", err)
	}
	token := r.token
	if token == "" {
		token = c.apiKey
	}
	c.setHeaders(req, token, r.body != nil)

	label := r.metricPath
	if label == "" {
		label = r.path
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		observability.RecordAPIRequest(r.method, label, "network_error", time.Since(start))
		return nil, nil, &core.Error{
			Type:    core.ErrTypeRequestFailed,
			Message: fmt.Sprintf("%s %s failed", r.method, r.path),
			Err:     err,
		}
	}
	defer resp.Body.Close()
	observability.RecordAPIRequest(r.method, label, strconv.Itoa(resp.StatusCode), time.Since(start))

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, &core.Error{Type: core.ErrTypeRequestFailed, Message: "read response body", StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := classifyError(resp.StatusCode, data)
		c.logger.Debug("api request failed",
			"method", r.method,
			"path", label,
			"status", resp.StatusCode,
			"error", apiErr,
		)
		return nil, nil, apiErr
	}
	return data, resp.Header, nil
}

func (c *Client) setHeaders(req *http.Request, token string, hasBody bool) {
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// errorEnvelope is the uniform error body of the API.
type errorEnvelope struct {
	Error   string            `json:"error"`
	Detail  any               `json:"detail"`
	Message string            `json:"message"`
	Code    string            `json:"code"`
	Reason  string            `json:"reason"`
	Errors  []core.FieldError `json:"errors"`
}

func (e errorEnvelope) text() string {
	switch {
	case e.Error != "":
		return e.Error
	case e.Message != "":
		return e.Message
	}
	if s, ok := e.Detail.(string); ok {
		return s
	}
	return ""
}

// classifyError maps a non-2xx response to an SDK error.
func classifyError(status int, body []byte) error {
	var env errorEnvelope
	_ = jsonAPI.Unmarshal(body, &env)
	text := env.text()

	switch {
	case status == http.StatusForbidden && env.Code == "CALL_VALIDATION_FAILED":
		reason := env.Reason
		if reason == "" {
			reason = text
		}
		return core.NewValidationFailedError(reason, text)

	case status == http.StatusUnauthorized:
		msg := "Authentication failed"
		if text != "" {
			msg += ": " + text
		} else {
			msg += ": invalid or missing API key"
		}
		e := core.NewAuthenticationError(msg)
		e.Code = env.Code
		return e

	default:
		e := core.NewRequestFailedError(status, text)
		e.Code = env.Code
		e.Fields = env.Errors
		if len(env.Errors) > 0 && text == "" {
			parts := make([]string, 0, len(env.Errors))
			for _, f := range env.Errors {
				parts = append(parts, f.String())
			}
			e.Message = "Validation failed: " + strings.Join(parts, "; ")
		}
		return e
	}
}
