package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestChatSendsModelAndJSONMode(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s, want /chat/completions", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key-123" {
			t.Errorf("Authorization = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decoding request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"ok\":true}"}}]}`))
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("key-123", srv.URL)
	out, err := c.Chat(context.Background(), "llama-3.3-70b", []Message{{Role: "user", Content: "hi"}}, true)
	if err != nil {
		t.Fatalf("Chat = %v", err)
	}
	if out != `{"ok":true}` {
		t.Fatalf("content = %q", out)
	}
	if gotBody["model"] != "llama-3.3-70b" {
		t.Fatalf("model = %v", gotBody["model"])
	}
	rf, ok := gotBody["response_format"].(map[string]any)
	if !ok || rf["type"] != "json_object" {
		t.Fatalf("response_format = %v, want json_object", gotBody["response_format"])
	}
}

func TestChatRetriesOnRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hello"}}]}`))
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("k", srv.URL)
	out, err := c.Chat(context.Background(), "m", []Message{{Role: "user", Content: "hi"}}, false)
	if err != nil {
		t.Fatalf("Chat = %v", err)
	}
	if out != "hello" {
		t.Fatalf("content = %q", out)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2", calls.Load())
	}
}

func TestChatFailsFastOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("k", srv.URL)
	if _, err := c.Chat(context.Background(), "m", nil, false); err == nil {
		t.Fatal("Chat succeeded, want error")
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1 (no retry on 500)", calls.Load())
	}
}

func TestEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("path = %s, want /embeddings", r.URL.Path)
		}
		w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3]}]}`))
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("k", srv.URL)
	vec, err := c.Embed(context.Background(), "embed-model", "leave policy")
	if err != nil {
		t.Fatalf("Embed = %v", err)
	}
	if len(vec) != 3 || vec[1] != 0.2 {
		t.Fatalf("vec = %v", vec)
	}
}
