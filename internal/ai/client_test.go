package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/bl4ck0w1/secretlynx/pkg/models"
)

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := NewClient(models.AIConfig{APIURL: url + "/", APIKey: "test-key", Model: "test-model", Timeout: 5 * time.Second, Temperature: 0.7}, nil)
	require.NoError(t, err)
	return c
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(models.AIConfig{APIURL: "http://localhost"}, nil)
	assert.True(t, errors.Is(err, ErrMissingAPIKey))
}

type recordedRequest struct {
	Model       string  `json:"model"`
	Stream      bool    `json:"stream"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func TestGenerateStreams(t *testing.T) {
	var got recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"# Audit\\n\"}}]}\n\n")
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, "data: not json\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Rotate keys.\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"ignored\"}}]}\n\n")
	}))
	defer srv.Close()

	findings := []models.Finding{{KeyType: "Stripe Secret Key", Severity: models.SeverityCritical, Location: "HTML", Description: "Stripe secret API key"}}
	out, err := newTestClient(t, srv.URL).Generate(context.Background(), findings, "https://example.com", "summary text")
	require.NoError(t, err)
	assert.Equal(t, "# Audit\nRotate keys.", out)

	assert.True(t, got.Stream)
	assert.Equal(t, "test-model", got.Model)
	assert.InDelta(t, 0.7, got.Temperature, 0.001)
	assert.Zero(t, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Contains(t, got.Messages[1].Content, "- Stripe Secret Key (critical) in HTML: Stripe secret API key")
	assert.Contains(t, got.Messages[1].Content, "summary text")
}

func TestGenerateErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Generate(context.Background(), nil, "https://example.com", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "quota exceeded")

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer empty.Close()
	_, err = newTestClient(t, empty.URL).Generate(context.Background(), nil, "https://example.com", "")
	assert.True(t, errors.Is(err, ErrEmptyResponse))
}

func TestGenerateStreamWithoutDone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n")
		fmt.Fprint(w, "data:{\"choices\":[{\"delta\":{\"content\":\"b\"}}]}\n")
	}))
	defer srv.Close()

	out, err := newTestClient(t, srv.URL).Generate(context.Background(), nil, "https://example.com", "")
	require.NoError(t, err)
	assert.Equal(t, "ab", out)
}

func TestBuildPromptWithoutFindings(t *testing.T) {
	assert.Equal(t,
		"Security scan completed for https://example.com. No API keys found. Provide security recommendations.",
		BuildPrompt(nil, "https://example.com", ""))
	p := BuildPrompt(nil, "https://example.com", "HTML: 10 bytes")
	assert.True(t, strings.HasPrefix(p, "Analyze this website for security vulnerabilities:\n\nHTML: 10 bytes"))
}
