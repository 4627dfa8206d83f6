package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jordanhubbard/gauntlet/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIProvider_CreateChatCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "tiny", req.Model)
		require.Len(t, req.Messages, 1)

		_ = json.NewEncoder(w).Encode(ChatCompletionResponse{
			ID:      "cmpl-1",
			Choices: []Choice{{Message: ChatMessage{Role: "assistant", Content: "echo: " + req.Messages[0].Content}}},
		})
	}))
	defer srv.Close()

	p := NewOpenAIProvider(srv.URL+"/v1/", "sk-test", 0)
	resp, err := p.CreateChatCompletion(context.Background(), &ChatCompletionRequest{
		Model:    "tiny",
		Messages: []ChatMessage{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "echo: hi", resp.Text())
}

func TestOpenAIProvider_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewOpenAIProvider(srv.URL, "", 0)
	_, err := p.CreateChatCompletion(context.Background(), &ChatCompletionRequest{Model: "m"})
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusTooManyRequests, se.StatusCode)
	assert.True(t, se.Retryable())
}

func TestOpenAIProvider_GetModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":[{"id":"a"},{"id":"b"}]}`))
	}))
	defer srv.Close()

	models, err := NewOpenAIProvider(srv.URL, "", 0).GetModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "b", models[1].ID)
}

func TestRegistry_Check(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"id":"small"},{"id":"big"}]}`))
	}))
	defer srv.Close()
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer down.Close()

	r, err := NewRegistryFromConfig([]config.Provider{
		{ID: "agent", Endpoint: srv.URL, Model: "small"},
		{ID: "judge", Endpoint: srv.URL, Model: "huge"},
		{ID: "offline", Endpoint: down.URL, Model: "small"},
	})
	require.NoError(t, err)

	got := r.Check(context.Background())
	require.Len(t, got, 3)

	assert.Equal(t, "agent", got[0].ID)
	assert.True(t, got[0].Available)
	assert.Equal(t, []string{"small", "big"}, got[0].Models)

	assert.Equal(t, "judge", got[1].ID)
	assert.False(t, got[1].Available)
	assert.Contains(t, got[1].Error, "huge")

	assert.Equal(t, "offline", got[2].ID)
	assert.False(t, got[2].Available)
	assert.Contains(t, got[2].Error, "502")
}

func TestChatCompletionResponse_TextEmpty(t *testing.T) {
	var r *ChatCompletionResponse
	assert.Equal(t, "", r.Text())
	assert.Equal(t, "", (&ChatCompletionResponse{}).Text())
}

func TestRegistry(t *testing.T) {
	r, err := NewRegistryFromConfig([]config.Provider{
		{ID: "judge", Endpoint: "http://localhost:1", Model: "big"},
		{ID: "agent", Endpoint: "http://localhost:2", Model: "small"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"agent", "judge"}, r.IDs())

	p, err := r.Get("judge")
	require.NoError(t, err)
	assert.Equal(t, "big", p.Model)

	_, err = r.Get("missing")
	assert.Error(t, err)
	assert.Error(t, r.Register("judge", "x", p.Protocol))
	assert.Error(t, r.Register("", "x", p.Protocol))
}
