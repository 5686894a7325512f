package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mirageapi/mirage"
)

func TestCompleteSendsMessagesRequest(t *testing.T) {
	var gotPath, gotKey, gotVersion string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{{"type": "text", "text": "the plan"}},
		})
	}))
	defer srv.Close()

	p := New("sk-test", WithBaseURL(srv.URL), WithModel("claude-test"))
	got, err := p.Complete(context.Background(), "plan this")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got != "the plan" {
		t.Fatalf("got %q", got)
	}
	if gotPath != "/v1/messages" {
		t.Errorf("path = %q", gotPath)
	}
	if gotKey != "sk-test" || gotVersion != "2023-06-01" {
		t.Errorf("headers: key=%q version=%q", gotKey, gotVersion)
	}
	if gotBody["model"] != "claude-test" || gotBody["max_tokens"] != float64(2048) {
		t.Errorf("body = %v", gotBody)
	}
	msgs := gotBody["messages"].([]any)
	if len(msgs) != 1 || msgs[0].(map[string]any)["content"] != "plan this" {
		t.Errorf("messages = %v", msgs)
	}
}

func TestCompleteSkipsNonTextBlocks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{
				{"type": "thinking", "text": "hmm"},
				{"type": "text", "text": "answer"},
			},
		})
	}))
	defer srv.Close()

	got, err := New("k", WithBaseURL(srv.URL)).Complete(context.Background(), "p")
	if err != nil || got != "answer" {
		t.Fatalf("got %q, err %v", got, err)
	}
}

func TestCompleteHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("rate limited"))
	}))
	defer srv.Close()

	_, err := New("k", WithBaseURL(srv.URL)).Complete(context.Background(), "p")
	var he *mirage.ErrHTTP
	if !errors.As(err, &he) {
		t.Fatalf("err = %v", err)
	}
	if he.Status != 429 || he.RetryAfter.Seconds() != 7 {
		t.Fatalf("err = %+v", he)
	}
}

func TestCompleteEmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"content": []any{}})
	}))
	defer srv.Close()

	_, err := New("k", WithBaseURL(srv.URL)).Complete(context.Background(), "p")
	var le *mirage.ErrLLM
	if !errors.As(err, &le) {
		t.Fatalf("err = %v", err)
	}
}
