package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIProviderGenerate(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"Score: 80%\nExplanation: good"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("test-key", srv.URL+"/v1/", "gpt-test", "", nil)
	text, err := p.Generate(context.Background(), GenerationRequest{System: "sys", Prompt: "prompt", Temperature: 0.2})
	require.NoError(t, err)
	assert.Equal(t, "Score: 80%\nExplanation: good", text)

	assert.Equal(t, "gpt-test", got["model"])
	messages := got["messages"].([]interface{})
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]interface{})["role"])
	assert.NotContains(t, got, "response_format")
}

func TestOpenAIProviderJSONMode(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{}"}}]}`))
	}))
	defer srv.Close()

	_, err := NewOpenAIProvider("", srv.URL, "", "", nil).Generate(context.Background(), GenerationRequest{Prompt: "p", JSON: true})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"type": "json_object"}, got["response_format"])
}

func TestOpenAIProviderNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer srv.Close()

	_, err := NewOpenAIProvider("k", srv.URL, "", "", nil).Generate(context.Background(), GenerationRequest{Prompt: "p"})

	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusTooManyRequests, perr.StatusCode)
	assert.Contains(t, perr.Error(), "rate limited")
}

func TestOpenAIProviderConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewOpenAIProvider("k", url, "", "", nil).Generate(context.Background(), GenerationRequest{Prompt: "p"})
	var perr *ProviderError
	assert.True(t, errors.As(err, &perr))
}

func TestOpenAIProviderEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3]}]}`))
	}))
	defer srv.Close()

	v, err := NewOpenAIProvider("k", srv.URL, "", "", nil).Embed(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, v)
}

func TestOpenAIProviderEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := NewOpenAIProvider("k", srv.URL, "", "", nil).Generate(context.Background(), GenerationRequest{Prompt: "p"})
	var perr *ProviderError
	assert.True(t, errors.As(err, &perr))
}
