package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"captioner/pkg/config"
	errs "captioner/pkg/errors"
	"captioner/pkg/imageload"
	"captioner/pkg/logger"
)

func testOptions(name, baseURL string) Options {
	return Options{
		Backend: config.BackendConfig{
			Name:    name,
			APIKey:  "test-key",
			BaseURL: baseURL,
			Timeout: 5 * time.Second,
		},
		Retry: config.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   time.Millisecond,
			MaxDelay:    5 * time.Millisecond,
			Multiplier:  2,
		},
		Logger: logger.NewNopLogger(),
	}
}

func testImage() *imageload.Image {
	return &imageload.Image{Data: []byte("jpeg-bytes"), Width: 1, Height: 1, Format: "jpeg"}
}

func mustLoad(t *testing.T, opts Options) Backend {
	t.Helper()
	b, err := Load(opts)
	require.NoError(t, err)
	return b
}

func TestLoad(t *testing.T) {
	t.Run("unknown backend", func(t *testing.T) {
		_, err := Load(Options{Backend: config.BackendConfig{Name: "carrier-pigeon"}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown backend")
	})

	t.Run("network backend without key", func(t *testing.T) {
		for _, name := range []string{"openai", "xai", "anthropic", "gemini"} {
			opts := testOptions(name, "")
			opts.Backend.APIKey = ""
			_, err := Load(opts)
			require.Error(t, err, name)
			assert.Contains(t, err.Error(), config.ProviderEnvVars[name])
		}
	})

	t.Run("local needs no key", func(t *testing.T) {
		opts := testOptions("local", "")
		opts.Backend.APIKey = ""
		b := mustLoad(t, opts)
		assert.Equal(t, "local", b.Name())
		assert.True(t, SingleDevice("local"))
		assert.False(t, SingleDevice("openai"))
	})

	t.Run("xai shares the chat protocol", func(t *testing.T) {
		b := mustLoad(t, testOptions("xai", ""))
		assert.Equal(t, "xai", b.Name())
		assert.IsType(t, &OpenAI{}, b)
	})
}

func TestMock(t *testing.T) {
	b := mustLoad(t, Options{Backend: config.BackendConfig{Name: "mock", Model: DryRunModel}})
	caption, err := b.Caption(context.Background(), testImage())
	require.NoError(t, err)
	assert.Equal(t, "a mock caption for dry-run", caption)

	caption, err = NewMock("", 0).Caption(context.Background(), testImage())
	require.NoError(t, err)
	assert.Equal(t, "a mock caption for mock", caption)

	_, err = NewMock("m", 1).Caption(context.Background(), testImage())
	require.Error(t, err)
	assert.Equal(t, errs.KindCorrupt, errs.KindOf(err))
}

func TestOpenAIRequestAndNormalization(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		assert.Equal(t, 256, req.MaxTokens)
		require.Len(t, req.Messages, 1)
		require.Len(t, req.Messages[0].Content, 2)
		img := req.Messages[0].Content[0]
		assert.Equal(t, "image_url", img.Type)
		assert.Equal(t, "low", img.ImageURL.Detail)
		assert.Equal(t, testImage().DataURL(), img.ImageURL.URL)
		assert.Equal(t, config.DefaultPrompt, req.Messages[0].Content[1].Text)

		// "e" followed by a combining acute accent
		w.Write([]byte(`{"choices":[{"message":{"content":"  A cafe\u0301 terrace.\n"}}]}`))
	}))
	defer server.Close()

	caption, err := mustLoad(t, testOptions("openai", server.URL)).Caption(context.Background(), testImage())
	require.NoError(t, err)
	assert.Equal(t, "A caf\u00e9 terrace.", caption)
}

func TestRetriesRateLimitThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"slow down"}`))
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"a dog"}}]}`))
	}))
	defer server.Close()

	caption, err := mustLoad(t, testOptions("openai", server.URL)).Caption(context.Background(), testImage())
	require.NoError(t, err)
	assert.Equal(t, "a dog", caption)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFailureClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantKind  errs.Kind
		wantCalls int32
	}{
		{"auth failure is not retried", http.StatusUnauthorized, `{"error":"bad key"}`, errs.KindCapability, 1},
		{"server errors exhaust the retries", http.StatusBadGateway, `upstream down`, errs.KindCapability, 3},
		{"undecodable success body", http.StatusOK, `<html>`, errs.KindProcessing, 1},
		{"no choices", http.StatusOK, `{"choices":[]}`, errs.KindProcessing, 1},
		{"blank caption", http.StatusOK, `{"choices":[{"message":{"content":"   "}}]}`, errs.KindProcessing, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := mustLoad(t, testOptions("openai", server.URL)).Caption(context.Background(), testImage())
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, errs.KindOf(err))
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}

func TestAnthropicRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))

		var req messagesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 1)
		src := req.Messages[0].Content[0].Source
		require.NotNil(t, src)
		assert.Equal(t, "base64", src.Type)
		assert.Equal(t, "image/jpeg", src.MediaType)
		assert.Equal(t, testImage().Base64(), src.Data)

		w.Write([]byte(`{"content":[{"type":"text","text":" Two cats on a sofa. "}]}`))
	}))
	defer server.Close()

	caption, err := mustLoad(t, testOptions("anthropic", server.URL)).Caption(context.Background(), testImage())
	require.NoError(t, err)
	assert.Equal(t, "Two cats on a sofa.", caption)
}

func TestGeminiRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-1.5-flash:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))

		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Contents, 1)
		parts := req.Contents[0].Parts
		require.Len(t, parts, 2)
		require.NotNil(t, parts[1].InlineData)
		assert.Equal(t, testImage().Base64(), parts[1].InlineData.Data)

		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"A beach "},{"text":"at dusk."}]}}]}`))
	}))
	defer server.Close()

	caption, err := mustLoad(t, testOptions("gemini", server.URL)).Caption(context.Background(), testImage())
	require.NoError(t, err)
	assert.Equal(t, "A beach at dusk.", caption)
}

func TestGeminiBlockedPromptIsProcessing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"promptFeedback":{"blockReason":"SAFETY"}}`))
	}))
	defer server.Close()

	_, err := mustLoad(t, testOptions("gemini", server.URL)).Caption(context.Background(), testImage())
	require.Error(t, err)
	assert.Equal(t, errs.KindProcessing, errs.KindOf(err))
}

func TestLocal(t *testing.T) {
	t.Run("caption", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/generate", r.URL.Path)
			var req ollamaRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.False(t, req.Stream)
			assert.Equal(t, []string{testImage().Base64()}, req.Images)
			w.Write([]byte(`{"response":"A red bicycle.","done":true}`))
		}))
		defer server.Close()

		caption, err := mustLoad(t, testOptions("local", server.URL)).Caption(context.Background(), testImage())
		require.NoError(t, err)
		assert.Equal(t, "A red bicycle.", caption)
	})

	t.Run("unreachable model is a processing failure", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		url := server.URL
		server.Close()

		_, err := mustLoad(t, testOptions("local", url)).Caption(context.Background(), testImage())
		require.Error(t, err)
		assert.Equal(t, errs.KindProcessing, errs.KindOf(err))
	})
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Duration(0), parseRetryAfter("", now))
	assert.Equal(t, 7*time.Second, parseRetryAfter("7", now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("-3", now))
	assert.Equal(t, 30*time.Second, parseRetryAfter(now.Add(30*time.Second).Format(http.TimeFormat), now))
	assert.Equal(t, time.Duration(0), parseRetryAfter(now.Add(-time.Minute).Format(http.TimeFormat), now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("soon", now))
}
