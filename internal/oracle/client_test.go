package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

const testPlanContent = `{"action":"extract","records":[{"name":"A"}]}`

// Mock completions server for client tests.
func setupMockOracleServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func completionsBody(content string) string {
	return `{"choices":[{"finish_reason":"stop","index":0,"message":{"role":"assistant","content":` +
		mustJSONString(content) + `}}]}`
}

func mustJSONString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func testConfig(endpoint string) *Config {
	return &Config{
		Endpoint:       endpoint,
		APIKey:         "test-key",
		Model:          "test-model",
		Timeout:        2 * time.Second,
		MaxRetries:     2,
		RetryBaseDelay: 5 * time.Millisecond,
	}
}

func TestProposeReturnsContent(t *testing.T) {
	var gotAuth, gotContentType string
	var gotReq chatRequest

	server := setupMockOracleServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("invalid JSON in request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(completionsBody(testPlanContent)))
	})

	client, err := NewClient(testConfig(server.URL))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	got, err := client.Propose(context.Background(), "<html><body>page</body></html>", "https://example.com/en")
	if err != nil {
		t.Fatalf("Propose failed: %v", err)
	}
	if got != testPlanContent {
		t.Errorf("Propose = %q, want %q", got, testPlanContent)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q", gotContentType)
	}
	if gotReq.Model != "test-model" {
		t.Errorf("request model = %q", gotReq.Model)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" || gotReq.Messages[1].Role != "user" {
		t.Errorf("unexpected messages: %+v", gotReq.Messages)
	}
	if !strings.Contains(gotReq.Messages[1].Content, "https://example.com/en") {
		t.Errorf("user message missing page URL: %q", gotReq.Messages[1].Content)
	}
}

func TestCompleteRetriesOnServerError(t *testing.T) {
	var calls atomic.Int32
	server := setupMockOracleServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, `{"error":"overloaded"}`, http.StatusInternalServerError)
			return
		}
		w.Write([]byte(completionsBody(testPlanContent)))
	})

	client, err := NewClient(testConfig(server.URL))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	got, err := client.Propose(context.Background(), "<html></html>", "https://example.com")
	if err != nil {
		t.Fatalf("Propose failed after retry: %v", err)
	}
	if got != testPlanContent {
		t.Errorf("Propose = %q, want %q", got, testPlanContent)
	}
	if calls.Load() != 2 {
		t.Errorf("server calls = %d, want 2", calls.Load())
	}
}

func TestCompleteGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	server := setupMockOracleServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":"nope"}`, http.StatusBadGateway)
	})

	client, err := NewClient(testConfig(server.URL))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	_, err = client.Propose(context.Background(), "<html></html>", "https://example.com")
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls.Load() != 3 { // initial attempt + 2 retries
		t.Errorf("server calls = %d, want 3", calls.Load())
	}
}

func TestCompleteEmptyChoices(t *testing.T) {
	server := setupMockOracleServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	})

	client, err := NewClient(testConfig(server.URL))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	if _, err := client.ExtractRecord(context.Background(), "<html></html>", "https://example.com"); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestCompleteHonorsContextCancellation(t *testing.T) {
	server := setupMockOracleServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
		w.Write([]byte(completionsBody(testPlanContent)))
	})

	client, err := NewClient(testConfig(server.URL))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	if _, err := client.Propose(ctx, "<html></html>", "https://example.com"); err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("cancellation took %v, want prompt return", elapsed)
	}
}

func TestNewClientValidation(t *testing.T) {
	testCases := []struct {
		name        string
		config      *Config
		expectError bool
	}{
		{name: "nil config", config: nil, expectError: true},
		{name: "missing endpoint", config: &Config{Model: "m"}, expectError: true},
		{name: "missing model", config: &Config{Endpoint: "http://localhost"}, expectError: true},
		{name: "valid", config: &Config{Endpoint: "http://localhost", Model: "m"}, expectError: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewClient(tc.config)
			if tc.expectError && err == nil {
				t.Errorf("expected error but got none")
			} else if !tc.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestRateLimiterRefills(t *testing.T) {
	limiter := NewRateLimiter(1, 20*time.Millisecond)

	if !limiter.GetToken() {
		t.Fatal("first token should be available")
	}
	if limiter.GetToken() {
		t.Fatal("bucket should be empty")
	}
	time.Sleep(30 * time.Millisecond)
	if !limiter.GetToken() {
		t.Fatal("token should have refilled")
	}
}
