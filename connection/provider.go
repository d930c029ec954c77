// Package connection resolves the credentials needed to join a media session.
package connection

import (
	"context"
	"fmt"
	"sync"

	"callkit/api"
	"callkit/auth"
	"callkit/core"
	"callkit/observability"

	"github.com/bytedance/sonic"
)

// Details are the credentials of one media session. Values are never mutated
// after resolution; a refresh replaces them.
type Details struct {
	ServerURL        string
	ParticipantToken string
	CallID           string
	EndToken         string
}

// Options select how Details are obtained.
type Options struct {
	// ServerURL and ParticipantToken together bypass negotiation.
	ServerURL        string
	ParticipantToken string
	CallID           string

	AgentID string
	// APIKey overrides the provider key for this call.
	APIKey string
	// Metadata is sent verbatim. When empty, Config is JSON-serialized instead.
	Metadata string
	Config   any
	// Environment is sent verbatim when it is a string, JSON-serialized otherwise.
	Environment any
	// Test negotiates against the preview endpoint.
	Test bool
}

// Negotiator is the backend exchange used to mint new Details.
type Negotiator interface {
	CreateConnectionDetails(ctx context.Context, apiKey string, req api.ConnectionDetailsRequest, test bool) (*api.ConnectionDetailsResponse, error)
}

// keyHolder is a Negotiator that carries its own API key.
type keyHolder interface {
	APIKey() string
}

// Provider resolves Details and caches the last good set.
type Provider struct {
	negotiator Negotiator
	apiKey     string
	logger     *core.Logger

	mu     sync.Mutex
	cached *Details
}

// NewProvider creates a provider. apiKey may be empty when every call supplies
// an override or its own key.
func NewProvider(negotiator Negotiator, apiKey string, logger *core.Logger) *Provider {
	if logger == nil {
		logger = core.GetLogger()
	}
	return &Provider{
		negotiator: negotiator,
		apiKey:     apiKey,
		logger:     logger.Component("connection"),
	}
}

// Resolve returns session credentials: the caller override, a cached set whose
// token is still valid, or a freshly negotiated one.
func (p *Provider) Resolve(ctx context.Context, opts Options) (Details, error) {
	if opts.ServerURL != "" && opts.ParticipantToken != "" {
		d := Details{
			ServerURL:        opts.ServerURL,
			ParticipantToken: opts.ParticipantToken,
			CallID:           opts.CallID,
		}
		p.store(d)
		observability.RecordNegotiation("override")
		return d, nil
	}

	if d, ok := p.Cached(); ok && !auth.IsExpired(d.ParticipantToken) {
		p.logger.Debug("reusing cached connection details", "call_id", d.CallID)
		observability.RecordNegotiation("cache")
		return d, nil
	}

	apiKey, err := p.negotiationKey(opts)
	if err != nil {
		return Details{}, err
	}

	req, err := buildRequest(opts)
	if err != nil {
		return Details{}, err
	}

	resp, err := p.negotiator.CreateConnectionDetails(ctx, apiKey, req, opts.Test)
	observability.RecordNegotiation("api")
	if err != nil {
		p.logger.Warn("connection details negotiation failed", "error", err, "test", opts.Test)
		return Details{}, err
	}

	d := Details{
		ServerURL:        resp.ServerURL,
		ParticipantToken: resp.ParticipantToken,
		CallID:           resp.CallID,
		EndToken:         resp.EndToken,
	}
	p.store(d)
	p.logger.Info("negotiated connection details", "call_id", d.CallID, "server_url", d.ServerURL)
	return d, nil
}

// Check reports the configuration error Resolve would fail with before any
// network exchange, or nil when opts can be resolved.
func (p *Provider) Check(opts Options) error {
	if opts.ServerURL != "" && opts.ParticipantToken != "" {
		return nil
	}
	if d, ok := p.Cached(); ok && !auth.IsExpired(d.ParticipantToken) {
		return nil
	}
	_, err := p.negotiationKey(opts)
	return err
}

// negotiationKey picks the call key, then the provider key, then the key the
// negotiator was built with.
func (p *Provider) negotiationKey(opts Options) (string, error) {
	if p.negotiator == nil {
		return "", core.NewConfigurationError(
			"no negotiation endpoint configured: supply serverUrl and participantToken in the connect options")
	}
	apiKey := opts.APIKey
	if apiKey == "" {
		apiKey = p.apiKey
	}
	if kh, ok := p.negotiator.(keyHolder); ok && apiKey == "" {
		apiKey = kh.APIKey()
	}
	if apiKey == "" {
		return "", core.NewConfigurationError(
			"no API key configured: pass an API key when creating the client, or supply serverUrl and participantToken in the connect options")
	}
	return apiKey, nil
}

// Cached returns the last resolved details.
func (p *Provider) Cached() (Details, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cached == nil {
		return Details{}, false
	}
	return *p.cached, true
}

// Reset drops the cache.
func (p *Provider) Reset() {
	p.mu.Lock()
	p.cached = nil
	p.mu.Unlock()
}

func (p *Provider) store(d Details) {
	p.mu.Lock()
	p.cached = &d
	p.mu.Unlock()
}

func buildRequest(opts Options) (api.ConnectionDetailsRequest, error) {
	req := api.ConnectionDetailsRequest{AgentID: opts.AgentID}

	switch {
	case opts.Metadata != "":
		req.Metadata = opts.Metadata
	case opts.Config != nil:
		s, err := stringify(opts.Config)
		if err != nil {
			return req, fmt.Errorf("connection: encode config: %w", err)
		}
		req.Metadata = s
	}

	if opts.Environment != nil {
		s, err := stringify(opts.Environment)
		if err != nil {
			return req, fmt.Errorf("connection: encode environment: %w", err)
		}
		req.Environment = s
	}
	return req, nil
}

func stringify(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	return sonic.ConfigStd.MarshalToString(v)
}
