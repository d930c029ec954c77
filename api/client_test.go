package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"callkit/audio"
	"callkit/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New("sk_test", WithBaseURL(srv.URL+"/"), WithLogger(core.NewNopLogger()))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestCreateConnectionDetails(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		writeJSON(w, http.StatusOK, map[string]any{
			"server_url":        "wss://test.com",
			"participant_token": "token123",
			"call_id":           "call123",
			"end_token":         "end456",
		})
	})

	resp, err := c.Connection.CreateConnectionDetails(context.Background(), "", ConnectionDetailsRequest{AgentID: "agent-123", Metadata: `{"a":1}`}, false)
	require.NoError(t, err)

	assert.Equal(t, "/connection/connection-details", gotPath)
	assert.Equal(t, "Bearer sk_test", gotAuth)
	assert.Equal(t, map[string]any{"agent_id": "agent-123", "metadata": `{"a":1}`}, gotBody)
	assert.Equal(t, &ConnectionDetailsResponse{ServerURL: "wss://test.com", ParticipantToken: "token123", CallID: "call123", EndToken: "end456"}, resp)
}

func TestCreateConnectionDetailsTestModeAndKeyOverride(t *testing.T) {
	var gotPath, gotAuth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		writeJSON(w, http.StatusOK, map[string]any{"server_url": "wss://x", "participant_token": "t", "call_id": "c"})
	})

	_, err := c.Connection.CreateConnectionDetails(context.Background(), "sk_other", ConnectionDetailsRequest{}, true)
	require.NoError(t, err)
	assert.Equal(t, "/connection/test-connection-details", gotPath)
	assert.Equal(t, "Bearer sk_other", gotAuth)
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantType    core.ErrorType
		wantContain string
	}{
		{
			name:        "unauthorized",
			status:      401,
			body:        `{"error":"invalid api key"}`,
			wantType:    core.ErrTypeAuthentication,
			wantContain: "Authentication failed: invalid api key",
		},
		{
			name:        "unauthorized without body",
			status:      401,
			body:        ``,
			wantType:    core.ErrTypeAuthentication,
			wantContain: "Authentication failed",
		},
		{
			name:        "validation failed",
			status:      403,
			body:        `{"code":"CALL_VALIDATION_FAILED","reason":"insufficient_credits"}`,
			wantType:    core.ErrTypeValidationFailed,
			wantContain: "insufficient_credits",
		},
		{
			name:        "plain forbidden",
			status:      403,
			body:        `{"error":"forbidden"}`,
			wantType:    core.ErrTypeRequestFailed,
			wantContain: "forbidden",
		},
		{
			name:        "detail string",
			status:      404,
			body:        `{"detail":"agent not found"}`,
			wantType:    core.ErrTypeRequestFailed,
			wantContain: "agent not found",
		},
		{
			name:        "no envelope",
			status:      502,
			body:        `bad gateway`,
			wantType:    core.ErrTypeRequestFailed,
			wantContain: "Request failed with status 502",
		},
		{
			name:        "field errors",
			status:      422,
			body:        `{"errors":[{"path":["agent_id"],"message":"required"}]}`,
			wantType:    core.ErrTypeRequestFailed,
			wantContain: "agent_id: required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})
			_, err := c.Connection.CreateConnectionDetails(context.Background(), "", ConnectionDetailsRequest{}, false)
			require.Error(t, err)
			assert.Equal(t, tt.wantType, core.TypeOf(err))
			assert.Contains(t, err.Error(), tt.wantContain)

			var apiErr *core.Error
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
		})
	}
}

func TestValidationFailedCarriesReason(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusForbidden, map[string]any{
			"code":   "CALL_VALIDATION_FAILED",
			"reason": "agent_not_deployed",
			"error":  "Agent is not deployed",
		})
	})
	_, err := c.Connection.CreateConnectionDetails(context.Background(), "", ConnectionDetailsRequest{}, false)

	var apiErr *core.Error
	require.ErrorAs(t, err, &apiErr)
	assert.ErrorIs(t, err, core.ErrValidationFailed)
	assert.Equal(t, "agent_not_deployed", apiErr.Reason)
	assert.Contains(t, apiErr.Error(), "Agent is not deployed")
}

func TestNetworkFailureIsRequestFailed(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c := New("sk", WithBaseURL(srv.URL), WithLogger(core.NewNopLogger()))

	_, err := c.Agents.Get(context.Background(), "a1")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrRequestFailed)
	assert.NotNil(t, errors.Unwrap(err))
}

func TestEndCall(t *testing.T) {
	var gotPath, gotAuth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.Connection.EndCall(context.Background(), "call123", "end456"))
	assert.Equal(t, "/calls/call123/end", gotPath)
	assert.Equal(t, "Bearer end456", gotAuth)

	err := c.Connection.EndCall(context.Background(), "call123", "")
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestAgentsCRUD(t *testing.T) {
	var calls []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.RequestURI())
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/agents":
			writeJSON(w, 200, map[string]any{"data": []map[string]any{{"id": "a1", "name": "Support"}}, "next_cursor": "n1"})
		case r.Method == http.MethodPatch:
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			assert.Equal(t, map[string]any{"name": "Sales"}, body)
			writeJSON(w, 200, map[string]any{"id": "a1", "name": "Sales"})
		case r.Method == http.MethodPost && r.URL.Path == "/agents/a1/deploy":
			writeJSON(w, 200, map[string]any{"agent_id": "a1", "version": 3, "status": "deployed"})
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()

	list, err := c.Agents.List(ctx, ListParams{Limit: 10})
	require.NoError(t, err)
	require.Len(t, list.Data, 1)
	assert.Equal(t, "n1", list.NextCursor)

	name := "Sales"
	agent, err := c.Agents.Update(ctx, "a1", AgentInput{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Sales", agent.Name)

	dep, err := c.Agents.Deploy(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 3, dep.Version)

	require.NoError(t, c.Agents.Delete(ctx, "a1"))

	assert.Equal(t, []string{
		"GET /agents?limit=10",
		"PATCH /agents/a1",
		"POST /agents/a1/deploy",
		"DELETE /agents/a1",
	}, calls)
}

func TestAnalyticsQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "agent-1", r.URL.Query().Get("agent_id"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		assert.Empty(t, r.URL.Query().Get("from"))
		writeJSON(w, 200, map[string]any{"data": []map[string]any{{"id": "c1", "duration_seconds": 12.5}}, "total": 1})
	})

	list, err := c.Analytics.ListCalls(context.Background(), CallQuery{AgentID: "agent-1", Limit: 5})
	require.NoError(t, err)
	require.Len(t, list.Data, 1)
	assert.InDelta(t, 12.5, list.Data[0].DurationSeconds, 1e-9)
}

func TestPhoneNumberAssignAgentUnassign(t *testing.T) {
	var body map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
		writeJSON(w, 200, map[string]any{"id": "pn1", "number": "+15550100"})
	})

	_, err := c.PhoneNumbers.AssignAgent(context.Background(), "pn1", "")
	require.NoError(t, err)
	v, ok := body["agent_id"]
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestSynthesizeMuLaw(t *testing.T) {
	samples := []int16{0, 1000, -1000, 8000}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "mulaw_8000", body["output_format"])
		w.Header().Set("Content-Type", "audio/basic")
		w.Write(audio.SamplesToMuLaw(samples))
	})

	out, err := c.TTS.Synthesize(context.Background(), SynthesizeRequest{Text: "hi", VoiceID: "v1", OutputFormat: audio.EncodingMuLaw8k})
	require.NoError(t, err)
	assert.Equal(t, "audio/basic", out.ContentType)

	pcm, err := out.PCM16()
	require.NoError(t, err)
	require.Len(t, pcm, len(samples))
	for i := range samples {
		assert.InDelta(t, samples[i], pcm[i], 300)
	}
}

func TestSynthesizeMP3CannotDecode(t *testing.T) {
	a := &Audio{Encoding: audio.EncodingMP3, Data: []byte{1, 2}}
	_, err := a.PCM16()
	assert.Error(t, err)
}
