package openai

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vango-go/cortes-live/pkg/core/types"
)

func TestComplete_SendsTranscriptAndCap(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id":"chatcmpl_1",
			"model":"gpt-5.2-chat-latest",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"  In my work, names matter.  "}}],
			"usage":{"prompt_tokens":10,"completion_tokens":6,"total_tokens":16}
		}`)
	}))
	defer server.Close()

	p := New("test-key", WithBaseURL(server.URL))
	got, err := p.Complete(t.Context(), []types.Message{
		types.SystemMessage("persona"),
		types.UserMessage("What inspired your work?"),
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != "In my work, names matter." {
		t.Fatalf("reply=%q", got)
	}
	if gotPath != "/chat/completions" {
		t.Fatalf("path=%q", gotPath)
	}
	if gotAuth != "Bearer test-key" {
		t.Fatalf("Authorization=%q", gotAuth)
	}
	if gotBody["model"] != DefaultModel {
		t.Fatalf("model=%v", gotBody["model"])
	}
	if gotBody["max_completion_tokens"] != float64(DefaultMaxCompletionTokens) {
		t.Fatalf("max_completion_tokens=%v", gotBody["max_completion_tokens"])
	}
	if _, ok := gotBody["max_tokens"]; ok {
		t.Fatalf("max_tokens should be omitted")
	}
	msgs, _ := gotBody["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages=%v", gotBody["messages"])
	}
	first, _ := msgs[0].(map[string]any)
	if first["role"] != "system" || first["content"] != "persona" {
		t.Fatalf("first message=%v", first)
	}
}

func TestComplete_EmptyChoicesIsEmptyReply(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"x","choices":[]}`)
	}))
	defer server.Close()

	got, err := New("k", WithBaseURL(server.URL)).Complete(t.Context(), []types.Message{types.UserMessage("hi")})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != "" {
		t.Fatalf("reply=%q, want empty", got)
	}
}

func TestComplete_HTTPErrorMapsType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"slow down","type":"requests","code":"rate_limit_exceeded"}}`)
	}))
	defer server.Close()

	_, err := New("k", WithBaseURL(server.URL)).Complete(t.Context(), []types.Message{types.UserMessage("hi")})
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("err=%T %v, want *Error", err, err)
	}
	if perr.Type != ErrRateLimit || perr.Message != "slow down" {
		t.Fatalf("error=%+v", perr)
	}
	if perr.RetryAfter == nil || *perr.RetryAfter != 3 {
		t.Fatalf("RetryAfter=%v", perr.RetryAfter)
	}
	if !perr.IsRetryable() {
		t.Fatalf("rate limit should be retryable")
	}
}

func TestComplete_ErrorInSuccessBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":{"message":"model not found","type":"invalid_request_error"}}`)
	}))
	defer server.Close()

	_, err := New("k", WithBaseURL(server.URL)).Complete(t.Context(), []types.Message{types.UserMessage("hi")})
	var perr *Error
	if !errors.As(err, &perr) || perr.Type != ErrInvalidRequest {
		t.Fatalf("err=%v, want invalid_request_error", err)
	}
	if perr.Error() != "openai: invalid_request_error: model not found" {
		t.Fatalf("Error()=%q", perr.Error())
	}
}

func TestBuildRequest_MaxTokensField(t *testing.T) {
	p := New("k", WithMaxTokens(42), WithMaxTokensField(MaxTokensFieldMaxTokens), WithModel("gpt-4o-mini"))
	req := p.buildRequest([]types.Message{types.UserMessage("x")})
	if req.MaxTokens != 42 || req.MaxCompletionTokens != 0 {
		t.Fatalf("req=%+v", req)
	}
	if req.Model != "gpt-4o-mini" {
		t.Fatalf("model=%q", req.Model)
	}
}
