package api

import (
	"context"
	"net/http"
	"net/url"

	"callkit/core"
)

// ConnectionDetailsRequest is the body for POST /connection/connection-details.
type ConnectionDetailsRequest struct {
	AgentID     string `json:"agent_id,omitempty"`
	Metadata    string `json:"metadata,omitempty"`
	Environment string `json:"environment,omitempty"`
}

// ConnectionDetailsResponse is the negotiation result.
type ConnectionDetailsResponse struct {
	ServerURL        string `json:"server_url"`
	ParticipantToken string `json:"participant_token"`
	CallID           string `json:"call_id"`
	EndToken         string `json:"end_token,omitempty"`
}

// ConnectionService negotiates and terminates media sessions.
type ConnectionService struct {
	client *Client
}

// APIKey is the key negotiation falls back to.
func (s *ConnectionService) APIKey() string {
	return s.client.apiKey
}

// CreateConnectionDetails negotiates session credentials. apiKey overrides the
// client key when set. test selects the preview endpoint, which accepts agents
// that are not deployed yet.
func (s *ConnectionService) CreateConnectionDetails(ctx context.Context, apiKey string, req ConnectionDetailsRequest, test bool) (*ConnectionDetailsResponse, error) {
	path := "/connection/connection-details"
	if test {
		path = "/connection/test-connection-details"
	}
	if apiKey == "" {
		apiKey = s.client.apiKey
	}
	if apiKey == "" {
		return nil, core.NewAuthenticationError("Authentication failed: no API key configured")
	}

	var resp ConnectionDetailsResponse
	err := s.client.do(ctx, request{
		method: http.MethodPost,
		path:   path,
		body:   req,
		token:  apiKey,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// EndCall notifies the backend that a call is over. endToken is the per-call
// termination credential returned by negotiation.
func (s *ConnectionService) EndCall(ctx context.Context, callID, endToken string) error {
	if callID == "" || endToken == "" {
		return core.NewConfigurationError("end call requires a call id and an end token")
	}
	return s.client.do(ctx, request{
		method:     http.MethodPost,
		path:       "/calls/" + url.PathEscape(callID) + "/end",
		token:      endToken,
		metricPath: "/calls/{id}/end",
	}, nil)
}
