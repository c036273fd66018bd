package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completion(content string) string {
	body, _ := json.Marshal(map[string]interface{}{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "test-model",
		"choices": []map[string]interface{}{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]interface{}{"role": "assistant", "content": content},
		}},
	})
	return string(body)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{
		BaseURL:        srv.URL,
		APIKey:         "sk-test",
		Model:          "test-model",
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}, nil)
	require.NoError(t, err)
	return c
}

func TestCompleteJSON_DecodesAnswer(t *testing.T) {
	var seenModel string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&req)
		seenModel, _ = req["model"].(string)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, completion("```json\n{\"chapters\":[{\"title\":\"Intro\",\"page\":1}]}\n```"))
	})

	var out struct {
		Chapters []struct {
			Title string `json:"title"`
			Page  int    `json:"page"`
		} `json:"chapters"`
	}
	require.NoError(t, c.CompleteJSON(context.Background(), "system", "user", &out))
	assert.Equal(t, "test-model", seenModel)
	require.Len(t, out.Chapters, 1)
	assert.Equal(t, "Intro", out.Chapters[0].Title)
}

func TestCompleteJSON_RetriesServerErrors(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `{"error":{"message":"busy"}}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, completion(`{"ok":true}`))
	})

	var out map[string]bool
	require.NoError(t, c.CompleteJSON(context.Background(), "s", "u", &out))
	assert.True(t, out["ok"])
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestCompleteJSON_NoRetryOnClientError(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"bad request"}}`)
	})

	var out map[string]interface{}
	assert.Error(t, c.CompleteJSON(context.Background(), "s", "u", &out))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCompleteJSON_BadJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, completion("not json"))
	})
	var out map[string]interface{}
	err := c.CompleteJSON(context.Background(), "s", "u", &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode model json")
}

func TestNewClient_RequiresKey(t *testing.T) {
	_, err := NewClient(Config{}, nil)
	assert.Error(t, err)
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence(` {"a":1} `))
}
