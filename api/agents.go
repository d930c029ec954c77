package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// Agent is a voice agent definition.
type Agent struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Description  string         `json:"description,omitempty"`
	SystemPrompt string         `json:"system_prompt,omitempty"`
	FirstMessage string         `json:"first_message,omitempty"`
	VoiceID      string         `json:"voice_id,omitempty"`
	Language     string         `json:"language,omitempty"`
	Model        string         `json:"model,omitempty"`
	Status       string         `json:"status,omitempty"`
	Deployed     bool           `json:"deployed"`
	Config       map[string]any `json:"config,omitempty"`
	CreatedAt    string         `json:"created_at,omitempty"`
	UpdatedAt    string         `json:"updated_at,omitempty"`
}

// AgentInput is the body for creating an agent. Nil pointers are omitted so the
// same shape serves partial updates.
type AgentInput struct {
	Name         *string        `json:"name,omitempty"`
	Description  *string        `json:"description,omitempty"`
	SystemPrompt *string        `json:"system_prompt,omitempty"`
	FirstMessage *string        `json:"first_message,omitempty"`
	VoiceID      *string        `json:"voice_id,omitempty"`
	Language     *string        `json:"language,omitempty"`
	Model        *string        `json:"model,omitempty"`
	Config       map[string]any `json:"config,omitempty"`
}

// ListParams pages through collections.
type ListParams struct {
	Limit  int
	Cursor string
}

func (p ListParams) values() url.Values {
	q := url.Values{}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Cursor != "" {
		q.Set("cursor", p.Cursor)
	}
	return q
}

// AgentList is one page of agents.
type AgentList struct {
	Data       []Agent `json:"data"`
	NextCursor string  `json:"next_cursor,omitempty"`
}

// Deployment is returned by POST /agents/{id}/deploy.
type Deployment struct {
	AgentID    string `json:"agent_id"`
	Version    int    `json:"version"`
	Status     string `json:"status"`
	DeployedAt string `json:"deployed_at,omitempty"`
}

// AgentsService manages agents.
type AgentsService struct {
	client *Client
}

func (s *AgentsService) List(ctx context.Context, params ListParams) (*AgentList, error) {
	var out AgentList
	if err := s.client.do(ctx, request{method: http.MethodGet, path: "/agents", query: params.values()}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *AgentsService) Get(ctx context.Context, id string) (*Agent, error) {
	var out Agent
	if err := s.client.do(ctx, request{method: http.MethodGet, path: "/agents/" + url.PathEscape(id), metricPath: "/agents/{id}"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *AgentsService) Create(ctx context.Context, in AgentInput) (*Agent, error) {
	var out Agent
	if err := s.client.do(ctx, request{method: http.MethodPost, path: "/agents", body: in}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Update patches the fields set in in.
func (s *AgentsService) Update(ctx context.Context, id string, in AgentInput) (*Agent, error) {
	var out Agent
	if err := s.client.do(ctx, request{method: http.MethodPatch, path: "/agents/" + url.PathEscape(id), body: in, metricPath: "/agents/{id}"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *AgentsService) Delete(ctx context.Context, id string) error {
	return s.client.do(ctx, request{method: http.MethodDelete, path: "/agents/" + url.PathEscape(id), metricPath: "/agents/{id}"}, nil)
}

// Deploy publishes the current agent definition so live calls can reach it.
func (s *AgentsService) Deploy(ctx context.Context, id string) (*Deployment, error) {
	var out Deployment
	if err := s.client.do(ctx, request{method: http.MethodPost, path: "/agents/" + url.PathEscape(id) + "/deploy", metricPath: "/agents/{id}/deploy"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
