package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var testRequest = Request{Phase: "extraction", System: "system", User: "user"}

func writeCompletion(t *testing.T, w http.ResponseWriter, choice map[string]any) {
	t.Helper()
	payload := map[string]any{"choices": []any{choice}}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func TestClientHealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test" {
			t.Errorf("unexpected auth header %q", got)
		}
		writeCompletion(t, w, map[string]any{"message": map[string]any{"content": `{"ok":true}`}})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}

func TestClientHealthCheckFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "bad", BaseURL: server.URL, Model: "demo"})
	if err := client.HealthCheck(context.Background()); err == nil {
		t.Fatal("expected health check to fail")
	}
}

func TestCompleteReadsAlternatePayloadShapes(t *testing.T) {
	cases := map[string]map[string]any{
		"code fence": {"message": map[string]any{"content": "```json\n{\"facts\":[]}\n```"}},
		"legacy":     {"text": `{"facts":[]}`},
	}
	for name, choice := range cases {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeCompletion(t, w, choice)
			}))
			defer server.Close()

			client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo"})
			content, err := client.Complete(context.Background(), testRequest)
			if err != nil {
				t.Fatalf("Complete returned error: %v", err)
			}
			var parsed struct {
				Facts []any `json:"facts"`
			}
			if err := DecodeLLMJSON(content, &parsed); err != nil {
				t.Fatalf("DecodeLLMJSON(%q): %v", content, err)
			}
		})
	}
}

func TestClientEmptyContentHasSnippet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeCompletion(t, w, map[string]any{"finish_reason": "stop", "message": map[string]any{"content": ""}})
	}))
	defer server.Close()

	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		WithRetryBackoff(0, 0),
		WithSleeper(func(time.Duration) {}),
		WithRetryMaxAttempts(2),
	)
	_, err := client.Complete(context.Background(), testRequest)
	if err == nil {
		t.Fatal("expected completion to fail")
	}
	if !strings.Contains(err.Error(), "empty content") || !strings.Contains(err.Error(), "response_snippet=") {
		t.Fatalf("expected empty-content error to include snippet, got %v", err)
	}
	if !strings.Contains(err.Error(), "failed after 2 attempts") {
		t.Fatalf("expected attempt count in error, got %v", err)
	}
}

func TestClientExhaustedRetriesReportAttempts(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("upstream overloaded"))
	}))
	defer server.Close()

	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo"},
		WithRetryBackoff(0, 0),
		WithSleeper(func(time.Duration) {}),
		WithRetryMaxAttempts(3),
	)
	_, err := client.Complete(context.Background(), testRequest)
	if err == nil {
		t.Fatal("expected completion to fail")
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 calls, got %d", calls.Load())
	}
	if !strings.Contains(err.Error(), "llm extraction: failed after 3 attempts") {
		t.Fatalf("expected phase and attempt count in error, got %v", err)
	}
	var status *statusError
	if !errors.As(err, &status) || status.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected wrapped 503, got %v", err)
	}
}

func TestClientErrorsNamePhase(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo"})
	_, err := client.Complete(context.Background(), Request{Phase: "relations", System: "system", User: "user"})
	if err == nil || !strings.HasPrefix(err.Error(), "llm relations: http 400") {
		t.Fatalf("expected phase-labelled error, got %v", err)
	}
}

func TestClientRetriesOnHTTP429(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "rate limited"})
			return
		}
		writeCompletion(t, w, map[string]any{"message": map[string]any{"content": `{"ok":true}`}})
	}))
	defer server.Close()

	var slept []time.Duration
	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		WithSleeper(func(d time.Duration) { slept = append(slept, d) }),
		WithRetryBackoff(0, 10*time.Second),
		WithRetryMaxAttempts(5),
	)
	if _, err := client.Complete(context.Background(), testRequest); err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
	if len(slept) != 1 || slept[0] != time.Second {
		t.Fatalf("expected single sleep of 1s, got %v", slept)
	}
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		WithSleeper(func(time.Duration) {}),
	)
	if _, err := client.Complete(context.Background(), testRequest); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", calls.Load())
	}
}

func TestBackoffDelayDoublesAndCaps(t *testing.T) {
	client := NewClient(Config{}, WithRetryBackoff(time.Second, 5*time.Second))
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second}
	for i, expected := range want {
		if got := client.backoff.delay(i+1, errors.New("timeout")); got != expected {
			t.Fatalf("attempt %d: got %s want %s", i+1, got, expected)
		}
	}
}

func TestRetryAfterIsCapped(t *testing.T) {
	client := NewClient(Config{}, WithRetryBackoff(time.Second, 5*time.Second))
	err := &statusError{Code: http.StatusTooManyRequests, RetryAfter: 30 * time.Second}
	if got := client.backoff.delay(1, err); got != 5*time.Second {
		t.Fatalf("got %s want 5s", got)
	}
	if got := parseRetryAfter("soon"); got != 0 {
		t.Fatalf("unparseable Retry-After should be ignored, got %s", got)
	}
}

func TestConcurrencyCapLimitsOutstandingRequests(t *testing.T) {
	var current, peak atomic.Int32
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := current.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		<-release
		current.Add(-1)
		writeCompletion(t, w, map[string]any{"message": map[string]any{"content": `{"ok":true}`}})
	}))
	defer server.Close()

	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo"},
		WithConcurrencyLimit(2),
	)
	var wg sync.WaitGroup
	for range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := client.Complete(context.Background(), testRequest); err != nil {
				t.Errorf("Complete: %v", err)
			}
		}()
	}

	deadline := time.Now().Add(2 * time.Second)
	for current.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	if got := client.InFlight(); got != 2 {
		t.Fatalf("expected 2 requests in flight, got %d", got)
	}
	close(release)
	wg.Wait()

	if peak.Load() != 2 {
		t.Fatalf("expected peak concurrency 2, got %d", peak.Load())
	}
}

func TestAdmissionRespectsContextCancellation(t *testing.T) {
	block := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
		writeCompletion(t, w, map[string]any{"message": map[string]any{"content": `{"ok":true}`}})
	}))
	defer server.Close()
	defer close(block)

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo"}, WithConcurrencyLimit(1))
	go func() {
		_, _ = client.Complete(context.Background(), testRequest)
	}()
	deadline := time.Now().Add(2 * time.Second)
	for client.InFlight() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := client.Complete(ctx, testRequest)
	if err == nil || !strings.Contains(err.Error(), "wait for slot") {
		t.Fatalf("expected admission wait to abort, got %v", err)
	}
}

func TestDecodeLLMJSONRepair(t *testing.T) {
	var target struct {
		Relevant bool `json:"relevant"`
	}
	if err := DecodeLLMJSON("Sure! Here you go: {\"relevant\": true} hope this helps", &target); err != nil {
		t.Fatalf("expected repair to succeed: %v", err)
	}
	if !target.Relevant {
		t.Fatal("expected relevant=true")
	}
	if err := DecodeLLMJSON("{\"relevant\": tru", &target); err == nil {
		t.Fatal("expected unrecoverable payload to fail")
	}
	if err := DecodeLLMJSON("   ", &target); err == nil {
		t.Fatal("expected empty payload to fail")
	}
}

func TestFlexValues(t *testing.T) {
	var payload struct {
		ID       FlexString `json:"id"`
		Num      FlexString `json:"num"`
		Score    FlexFloat  `json:"score"`
		Quoted   FlexFloat  `json:"quoted"`
		Missing  FlexFloat  `json:"missing"`
		Nonsense FlexFloat  `json:"nonsense"`
	}
	if err := DecodeLLMJSON(`{"id":" h1 ","num":7,"score":0.5,"quoted":"8","missing":null,"nonsense":"high"}`, &payload); err != nil {
		t.Fatalf("DecodeLLMJSON: %v", err)
	}
	if payload.ID != "h1" || payload.Num != "7" {
		t.Fatalf("unexpected strings: %q %q", payload.ID, payload.Num)
	}
	if !payload.Score.Set || payload.Score.Value != 0.5 || !payload.Quoted.Set || payload.Quoted.Value != 8 {
		t.Fatalf("unexpected floats: %+v %+v", payload.Score, payload.Quoted)
	}
	if payload.Missing.Set || payload.Nonsense.Set {
		t.Fatalf("expected unset floats: %+v %+v", payload.Missing, payload.Nonsense)
	}
}
