package gemini_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/edgard/chatdigest/internal/config"
	"github.com/edgard/chatdigest/internal/gemini"
	"github.com/edgard/chatdigest/internal/resilience"
)

const okBody = `{"candidates":[{"content":{"role":"model","parts":[{"text":"  📊 Статистика  "}]},"finishReason":"STOP"}]}`

func apiError(code int, status string) string {
	return fmt.Sprintf(`{"error":{"code":%d,"message":"try later","status":%q}}`, code, status)
}

// fakeAPI answers with the scripted responses in order, repeating the last one.
func fakeAPI(t *testing.T, script ...func(w http.ResponseWriter)) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		n := int(calls.Add(1)) - 1
		if n >= len(script) {
			n = len(script) - 1
		}
		w.Header().Set("Content-Type", "application/json")
		script[n](w)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func respond(code int, body string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.WriteHeader(code)
		_, _ = io.WriteString(w, body)
	}
}

func newClient(t *testing.T, baseURL string, retries int) *gemini.Client {
	t.Helper()
	c, err := gemini.NewClient(context.Background(), config.GeminiConfig{
		APIKey:     "test-key",
		ModelName:  "gemini-1.5-flash",
		BaseURL:    baseURL,
		MaxRetries: retries,
	}, nil)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := gemini.NewClient(context.Background(), config.GeminiConfig{ModelName: "m"}, nil); err == nil {
		t.Error("NewClient() without API key succeeded")
	}
}

func TestGenerate(t *testing.T) {
	t.Parallel()
	srv, calls := fakeAPI(t, respond(http.StatusOK, okBody))

	got, err := newClient(t, srv.URL, 0).Generate(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != "📊 Статистика" {
		t.Errorf("Generate() = %q", got)
	}
	if calls.Load() != 1 {
		t.Errorf("API called %d times, want 1", calls.Load())
	}
}

func TestGenerate_RetriesServerErrors(t *testing.T) {
	t.Parallel()
	srv, calls := fakeAPI(t,
		respond(http.StatusServiceUnavailable, apiError(503, "UNAVAILABLE")),
		respond(http.StatusInternalServerError, apiError(500, "INTERNAL")),
		respond(http.StatusOK, okBody),
	)

	if _, err := newClient(t, srv.URL, 3).Generate(context.Background(), "prompt"); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("API called %d times, want 3", calls.Load())
	}
}

func TestGenerate_GivesUpAfterMaxRetries(t *testing.T) {
	t.Parallel()
	srv, calls := fakeAPI(t, respond(http.StatusServiceUnavailable, apiError(503, "UNAVAILABLE")))

	if _, err := newClient(t, srv.URL, 2).Generate(context.Background(), "prompt"); err == nil {
		t.Fatal("Generate() succeeded against a failing API")
	}
	if calls.Load() != 3 {
		t.Errorf("API called %d times, want 3", calls.Load())
	}
}

func TestGenerate_ClientErrorNotRetried(t *testing.T) {
	t.Parallel()
	srv, calls := fakeAPI(t, respond(http.StatusBadRequest, apiError(400, "INVALID_ARGUMENT")))

	if _, err := newClient(t, srv.URL, 3).Generate(context.Background(), "prompt"); err == nil {
		t.Fatal("Generate() succeeded on a bad request")
	}
	if calls.Load() != 1 {
		t.Errorf("API called %d times, want 1", calls.Load())
	}
}

func TestGenerate_EmptyResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"no candidates", `{"candidates":[]}`},
		{"blank text", `{"candidates":[{"content":{"role":"model","parts":[{"text":"   "}]},"finishReason":"STOP"}]}`},
		{"blocked", `{"promptFeedback":{"blockReason":"SAFETY"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv, _ := fakeAPI(t, respond(http.StatusOK, tt.body))
			if got, err := newClient(t, srv.URL, 0).Generate(context.Background(), "prompt"); err == nil {
				t.Errorf("Generate() = %q, want an error", got)
			}
		})
	}
}

func TestGenerate_CircuitOpensAfterRepeatedFailures(t *testing.T) {
	t.Parallel()
	srv, calls := fakeAPI(t, respond(http.StatusServiceUnavailable, apiError(503, "UNAVAILABLE")))

	c, err := gemini.NewClient(context.Background(), config.GeminiConfig{
		APIKey:          "test-key",
		ModelName:       "gemini-1.5-flash",
		BaseURL:         srv.URL,
		BreakerFailures: 2,
		BreakerCooldown: time.Hour,
	}, nil)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := c.Generate(context.Background(), "prompt"); err == nil {
			t.Fatalf("call %d succeeded against a failing API", i)
		}
	}
	_, err = c.Generate(context.Background(), "prompt")
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Errorf("Generate() error = %v, want ErrCircuitOpen", err)
	}
	if calls.Load() != 2 {
		t.Errorf("API called %d times, want 2", calls.Load())
	}
}
