package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tensorplex-labs/council/internal/config"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	c, err := NewClient(&config.OpenRouterEnvConfig{
		OpenRouterAPIKey: "sk-test",
		OpenRouterAPIURL: ts.URL + "/api/v1/chat/completions",
		ReasoningModels:  []string{"openai/gpt-5.1"},
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return ts, c
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func TestNewClient_NilConfig(t *testing.T) {
	_, err := NewClient(nil)
	if err == nil {
		t.Fatalf("expected error when cfg is nil")
	}
}

func TestQuery_Success(t *testing.T) {
	var got map[string]any
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/chat/completions" || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, `{"id":"gen-1","choices":[{"message":{"role":"assistant","content":"hello","reasoning_details":[{"type":"reasoning.text","text":"hmm"}]}}]}`)
	})

	out, err := c.Query(context.Background(), "x-ai/grok-4", UserMessage("hi"), time.Second, false)
	require.NoError(t, err)
	assert.Equal(t, "hello", out.Content)
	assert.NotNil(t, out.ReasoningDetails)
	assert.Equal(t, "x-ai/grok-4", got["model"])
	assert.NotContains(t, got, "reasoning")
}

func TestQuery_ReasoningOnlyForSupportedModels(t *testing.T) {
	bodies := make(chan map[string]any, 2)
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		bodies <- body
		writeJSON(w, http.StatusOK, `{"choices":[{"message":{"content":"ok"}}]}`)
	})

	_, err := c.Query(context.Background(), "openai/gpt-5.1", UserMessage("hi"), time.Second, true)
	require.NoError(t, err)
	supported := <-bodies
	assert.Equal(t, map[string]any{"effort": "high"}, supported["reasoning"])

	_, err = c.Query(context.Background(), "x-ai/grok-4", UserMessage("hi"), time.Second, true)
	require.NoError(t, err)
	unsupported := <-bodies
	assert.NotContains(t, unsupported, "reasoning")
}

func TestQuery_HTTPError(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusTooManyRequests, `{"error":{"code":429,"message":"rate limited"}}`)
	})
	_, err := c.Query(context.Background(), "x-ai/grok-4", UserMessage("hi"), time.Second, false)
	require.Error(t, err)
}

func TestQuery_ResponseErrorField(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"error":{"code":502,"message":"upstream down"}}`)
	})
	_, err := c.Query(context.Background(), "x-ai/grok-4", UserMessage("hi"), time.Second, false)
	require.Error(t, err)
}

func TestQuery_MissingContent(t *testing.T) {
	cases := map[string]string{
		"no choices":   `{"choices":[]}`,
		"null content": `{"choices":[{"message":{"role":"assistant","content":null}}]}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, payload)
			})
			_, err := c.Query(context.Background(), "x-ai/grok-4", UserMessage("hi"), time.Second, false)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrNoContent))
		})
	}
}

func TestQuery_TimeoutEnforced(t *testing.T) {
	release := make(chan struct{})
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	start := time.Now()
	_, err := c.Query(context.Background(), "x-ai/grok-4", UserMessage("hi"), 50*time.Millisecond, false)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}
