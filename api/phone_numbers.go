package api

import (
	"context"
	"net/http"
	"net/url"
)

type PhoneNumber struct {
	ID        string `json:"id"`
	Number    string `json:"number"`
	Country   string `json:"country,omitempty"`
	AgentID   string `json:"agent_id,omitempty"`
	Status    string `json:"status,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

type PhoneNumberList struct {
	Data []PhoneNumber `json:"data"`
}

// PurchaseRequest buys a number. AreaCode is a hint; the backend picks any
// available number in Country when it cannot be honoured.
type PurchaseRequest struct {
	Country  string `json:"country"`
	AreaCode string `json:"area_code,omitempty"`
	AgentID  string `json:"agent_id,omitempty"`
}

// OutboundCallRequest dials To from the number, handled by its assigned agent.
type OutboundCallRequest struct {
	To       string         `json:"to"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type OutboundCall struct {
	CallID string `json:"call_id"`
	Status string `json:"status"`
}

// PhoneNumbersService manages telephony numbers.
type PhoneNumbersService struct {
	client *Client
}

func (s *PhoneNumbersService) List(ctx context.Context) (*PhoneNumberList, error) {
	var out PhoneNumberList
	if err := s.client.do(ctx, request{method: http.MethodGet, path: "/phone-numbers"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *PhoneNumbersService) Purchase(ctx context.Context, in PurchaseRequest) (*PhoneNumber, error) {
	var out PhoneNumber
	if err := s.client.do(ctx, request{method: http.MethodPost, path: "/phone-numbers", body: in}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AssignAgent routes inbound calls on the number to agentID. An empty agentID unassigns.
func (s *PhoneNumbersService) AssignAgent(ctx context.Context, id, agentID string) (*PhoneNumber, error) {
	body := struct {
		AgentID *string `json:"agent_id"`
	}{}
	if agentID != "" {
		body.AgentID = &agentID
	}
	var out PhoneNumber
	err := s.client.do(ctx, request{
		method:     http.MethodPatch,
		path:       "/phone-numbers/" + url.PathEscape(id),
		body:       body,
		metricPath: "/phone-numbers/{id}",
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *PhoneNumbersService) Release(ctx context.Context, id string) error {
	return s.client.do(ctx, request{method: http.MethodDelete, path: "/phone-numbers/" + url.PathEscape(id), metricPath: "/phone-numbers/{id}"}, nil)
}

func (s *PhoneNumbersService) StartOutboundCall(ctx context.Context, id string, in OutboundCallRequest) (*OutboundCall, error) {
	var out OutboundCall
	err := s.client.do(ctx, request{
		method:     http.MethodPost,
		path:       "/phone-numbers/" + url.PathEscape(id) + "/outbound-call",
		body:       in,
		metricPath: "/phone-numbers/{id}/outbound-call",
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
