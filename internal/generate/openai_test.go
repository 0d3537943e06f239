package generate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completionBody(content string) string {
	b, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 0,
		"model":   "test-model",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
		"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	})
	return string(b)
}

func TestOpenAIGenerator_RetriesRateLimitThroughBatch(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	var gotModel atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotModel.Store(body["model"])

		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit_error"}}`))
			return
		}
		_, _ = w.Write([]byte(completionBody("DOCUMENTATION:\nAdd two numbers.\n\nREASONING:\nNew.\n\nCONFIDENCE:\n0.9")))
	}))
	t.Cleanup(srv.Close)

	gen := NewOpenAIGenerator(OpenAIConfig{APIKey: "test", BaseURL: srv.URL + "/v1/", Model: "test-model"})
	out := Batch(context.Background(), gen, []Request{request("fp", "add")}, testConfig(nil, (&recordSleep{}).sleep))

	require.NoError(t, out[0].Err)
	assert.Equal(t, 2, out[0].Attempts)
	assert.Equal(t, "Add two numbers.", out[0].Result.Text)
	assert.Equal(t, "New.", out[0].Result.Reasoning)
	assert.InDelta(t, 0.9, out[0].Result.Confidence, 1e-9)
	assert.Equal(t, "test-model", out[0].Result.Model)
	assert.Equal(t, "test-model", gotModel.Load())
}

func TestOpenAIGenerator_UnauthorizedIsPermanent(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	t.Cleanup(srv.Close)

	gen := NewOpenAIGenerator(OpenAIConfig{APIKey: "nope", BaseURL: srv.URL + "/v1/"})
	out := Batch(context.Background(), gen, []Request{request("fp", "add")}, testConfig(nil, (&recordSleep{}).sleep))

	require.Error(t, out[0].Err)
	assert.False(t, IsTransient(out[0].Err))
	assert.Equal(t, int32(1), calls.Load())
}
