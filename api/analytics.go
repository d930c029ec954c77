package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// CallSummary is one row of the call analytics listing.
type CallSummary struct {
	ID              string  `json:"id"`
	AgentID         string  `json:"agent_id"`
	Status          string  `json:"status"`
	Direction       string  `json:"direction,omitempty"`
	StartedAt       string  `json:"started_at"`
	EndedAt         string  `json:"ended_at,omitempty"`
	DurationSeconds float64 `json:"duration_seconds"`
	Cost            float64 `json:"cost,omitempty"`
	EndReason       string  `json:"end_reason,omitempty"`
}

// CallList is one page of calls.
type CallList struct {
	Data       []CallSummary `json:"data"`
	Total      int           `json:"total"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

// CallDetail is a single call with its recording and metadata.
type CallDetail struct {
	CallSummary
	RecordingURL string         `json:"recording_url,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// TranscriptEntry is one turn of a stored transcript.
type TranscriptEntry struct {
	Role      string  `json:"role"`
	Text      string  `json:"text"`
	Timestamp string  `json:"timestamp"`
	Offset    float64 `json:"offset_seconds,omitempty"`
}

// Transcript is the full conversation of a call.
type Transcript struct {
	CallID  string            `json:"call_id"`
	Entries []TranscriptEntry `json:"entries"`
}

// CallQuery filters GET /analytics/calls. Zero fields are not sent.
type CallQuery struct {
	AgentID string
	From    time.Time
	To      time.Time
	Limit   int
	Cursor  string
}

func (q CallQuery) values() url.Values {
	v := url.Values{}
	if q.AgentID != "" {
		v.Set("agent_id", q.AgentID)
	}
	if !q.From.IsZero() {
		v.Set("from", q.From.UTC().Format(time.RFC3339))
	}
	if !q.To.IsZero() {
		v.Set("to", q.To.UTC().Format(time.RFC3339))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Cursor != "" {
		v.Set("cursor", q.Cursor)
	}
	return v
}

// AnalyticsService reads call history.
type AnalyticsService struct {
	client *Client
}

func (s *AnalyticsService) ListCalls(ctx context.Context, q CallQuery) (*CallList, error) {
	var out CallList
	if err := s.client.do(ctx, request{method: http.MethodGet, path: "/analytics/calls", query: q.values()}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *AnalyticsService) GetCall(ctx context.Context, callID string) (*CallDetail, error) {
	var out CallDetail
	if err := s.client.do(ctx, request{method: http.MethodGet, path: "/calls/" + url.PathEscape(callID), metricPath: "/calls/{id}"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *AnalyticsService) GetTranscript(ctx context.Context, callID string) (*Transcript, error) {
	var out Transcript
	if err := s.client.do(ctx, request{method: http.MethodGet, path: "/calls/" + url.PathEscape(callID) + "/transcript", metricPath: "/calls/{id}/transcript"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
