package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/morezero/marketplace-gateway/pkg/apperrors"
	"github.com/morezero/marketplace-gateway/pkg/dispatcher"
	"github.com/morezero/marketplace-gateway/pkg/metrics"
)

const httpTestPrefix = "server:http_test"

func testDispatcher(t *testing.T) *dispatcher.Dispatcher {
	t.Helper()
	reg, err := dispatcher.NewRegistry(
		dispatcher.Entry{Name: "echo", Command: dispatcher.CommandFunc(func(_ context.Context, in json.RawMessage) (string, error) {
			return string(in), nil
		})},
		dispatcher.Entry{Name: "login", Command: dispatcher.CommandFunc(func(_ context.Context, in json.RawMessage) (string, error) {
			var fields map[string]any
			_ = json.Unmarshal(in, &fields)
			if fields["email"] == nil || fields["password"] == nil {
				return "", apperrors.Validation("Missing email or password")
			}
			return "Login successful", nil
		})},
		dispatcher.Entry{Name: "explode", Command: dispatcher.CommandFunc(func(context.Context, json.RawMessage) (string, error) {
			panic("boom")
		})},
		dispatcher.Entry{Name: "wait", Command: dispatcher.CommandFunc(func(ctx context.Context, _ json.RawMessage) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		})},
	)
	if err != nil {
		t.Fatalf("%s - NewRegistry: %v", httpTestPrefix, err)
	}
	return dispatcher.NewDispatcher(reg)
}

type stubHealth struct {
	report *HealthReport
	panics bool
}

func (s *stubHealth) Health(context.Context) *HealthReport {
	if s.panics {
		panic("health probe exploded")
	}
	return s.report
}

func post(t *testing.T, h http.Handler, body string) (*httptest.ResponseRecorder, dispatcher.Envelope) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/invoke", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var env dispatcher.Envelope
	if err := json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(&env); err != nil {
		t.Fatalf("%s - decode envelope (%d %q): %v", httpTestPrefix, rec.Code, rec.Body.String(), err)
	}
	return rec, env
}

func TestInvoke_Envelopes(t *testing.T) {
	h := NewHTTPAdapter(testDispatcher(t), nil, HTTPOptions{}).Handler()

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantResult string
		wantError  string
	}{
		{"success", `{"function_name":"login","input":{"email":"a@b.c","password":"pw"}}`, 200, "Login successful", ""},
		{"validation failure keeps 200", `{"function_name":"login","input":{}}`, 200, "", "Missing email or password"},
		{"unknown function", `{"function_name":"totally_unknown","input":{}}`, 200, "", "Function 'totally_unknown' not found"},
		{"missing function name", `{"input":{}}`, 200, "", "Function 'unknown' not found"},
		{"absent input defaults to object", `{"function_name":"echo"}`, 200, "{}", ""},
		{"null input defaults to object", `{"function_name":"echo","input":null}`, 200, "{}", ""},
		{"panic is contained", `{"function_name":"explode","input":{}}`, 200, "", "Internal error in function 'explode'"},
		{"malformed body", `{"function_name":`, 400, "", "Invalid invocation payload"},
		{"empty body", ``, 400, "", "Invalid invocation payload"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := post(t, h, tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("%s - status = %d, want %d", httpTestPrefix, rec.Code, tt.wantStatus)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("%s - Content-Type = %q", httpTestPrefix, ct)
			}
			if tt.wantError != "" {
				if env.Result != nil || env.Error == nil || *env.Error != tt.wantError {
					t.Errorf("%s - envelope = %+v, want error %q", httpTestPrefix, env, tt.wantError)
				}
				return
			}
			if env.Error != nil || env.Result == nil || *env.Result != tt.wantResult {
				t.Errorf("%s - envelope = %+v, want result %q", httpTestPrefix, env, tt.wantResult)
			}
		})
	}
}

func TestInvoke_EnvelopeShapeHasBothKeys(t *testing.T) {
	h := NewHTTPAdapter(testDispatcher(t), nil, HTTPOptions{}).Handler()
	req := httptest.NewRequest(http.MethodPost, "/invoke", strings.NewReader(`{"function_name":"nope"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &raw); err != nil {
		t.Fatalf("%s - decode: %v", httpTestPrefix, err)
	}
	if string(raw["result"]) != "null" {
		t.Errorf("%s - result = %s, want null", httpTestPrefix, raw["result"])
	}
	if _, ok := raw["error"]; !ok {
		t.Errorf("%s - error key missing", httpTestPrefix)
	}
}

func TestInvoke_BodyTooLarge(t *testing.T) {
	h := NewHTTPAdapter(testDispatcher(t), nil, HTTPOptions{MaxBodyBytes: 32}).Handler()
	body := `{"function_name":"echo","input":{"pad":"` + strings.Repeat("x", 64) + `"}}`
	rec, env := post(t, h, body)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("%s - status = %d, want 413", httpTestPrefix, rec.Code)
	}
	if env.Error == nil || *env.Error != "Request body too large" {
		t.Errorf("%s - envelope = %+v", httpTestPrefix, env)
	}
}

func TestInvoke_MethodNotAllowed(t *testing.T) {
	h := NewHTTPAdapter(testDispatcher(t), nil, HTTPOptions{}).Handler()
	req := httptest.NewRequest(http.MethodGet, "/invoke", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("%s - status = %d, want 405", httpTestPrefix, rec.Code)
	}
	if rec.Header().Get("Allow") != http.MethodPost {
		t.Errorf("%s - Allow = %q", httpTestPrefix, rec.Header().Get("Allow"))
	}
}

func TestInvoke_RateLimited(t *testing.T) {
	h := NewHTTPAdapter(testDispatcher(t), nil, HTTPOptions{RateLimit: 0.001, RateBurst: 1}).Handler()
	body := `{"function_name":"echo","input":{}}`

	if rec, _ := post(t, h, body); rec.Code != http.StatusOK {
		t.Fatalf("%s - first request status = %d, want 200", httpTestPrefix, rec.Code)
	}
	rec, env := post(t, h, body)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("%s - second request status = %d, want 429", httpTestPrefix, rec.Code)
	}
	if env.Error == nil || *env.Error != "Rate limit exceeded" {
		t.Errorf("%s - envelope = %+v", httpTestPrefix, env)
	}
}

func TestInvoke_RateLimitDisabledByDefault(t *testing.T) {
	h := NewHTTPAdapter(testDispatcher(t), nil, HTTPOptions{}).Handler()
	for i := 0; i < 50; i++ {
		if rec, _ := post(t, h, `{"function_name":"echo"}`); rec.Code != http.StatusOK {
			t.Fatalf("%s - request %d status = %d", httpTestPrefix, i, rec.Code)
		}
	}
}

func TestInvoke_RequestIDEchoed(t *testing.T) {
	h := NewHTTPAdapter(testDispatcher(t), nil, HTTPOptions{}).Handler()
	req := httptest.NewRequest(http.MethodPost, "/invoke", strings.NewReader(`{"function_name":"echo"}`))
	req.Header.Set(requestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get(requestIDHeader) != "req-42" {
		t.Errorf("%s - X-Request-ID = %q", httpTestPrefix, rec.Header().Get(requestIDHeader))
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/invoke", strings.NewReader(`{}`)))
	if rec.Header().Get(requestIDHeader) == "" {
		t.Errorf("%s - expected generated X-Request-ID", httpTestPrefix)
	}
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name   string
		report *HealthReport
		want   int
	}{
		{"healthy", &HealthReport{Status: StatusHealthy, Checks: map[string]bool{"database": true}}, http.StatusOK},
		{"unhealthy", &HealthReport{Status: StatusUnhealthy, Checks: map[string]bool{"database": false}}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHTTPAdapter(testDispatcher(t), nil, HTTPOptions{Health: &stubHealth{report: tt.report}}).Handler()
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			if rec.Code != tt.want {
				t.Errorf("%s - status = %d, want %d", httpTestPrefix, rec.Code, tt.want)
			}
			var out HealthReport
			if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
				t.Fatalf("%s - decode health: %v", httpTestPrefix, err)
			}
			if out.Status != tt.report.Status {
				t.Errorf("%s - Status = %q, want %q", httpTestPrefix, out.Status, tt.report.Status)
			}
		})
	}
}

func TestHealthHandler_NoCheckerIsHealthy(t *testing.T) {
	h := NewHTTPAdapter(testDispatcher(t), nil, HTTPOptions{}).Handler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("%s - status = %d, want 200", httpTestPrefix, rec.Code)
	}
}

func TestRecoverPanic_Returns500(t *testing.T) {
	h := NewHTTPAdapter(testDispatcher(t), nil, HTTPOptions{Health: &stubHealth{panics: true}}).Handler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("%s - status = %d, want 500", httpTestPrefix, rec.Code)
	}
}

func TestReadyHandler(t *testing.T) {
	h := NewHTTPAdapter(testDispatcher(t), nil, HTTPOptions{}).Handler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("%s - ready got status %d, want 200", httpTestPrefix, rec.Code)
	}
	var out map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("%s - decode ready: %v", httpTestPrefix, err)
	}
	if out["status"] != "ready" {
		t.Errorf("%s - status = %q, want ready", httpTestPrefix, out["status"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	h := NewHTTPAdapter(testDispatcher(t), m, HTTPOptions{}).Handler()
	post(t, h, `{"function_name":"echo"}`)
	post(t, h, `{"function_name":"missing"}`)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("%s - /metrics status = %d", httpTestPrefix, rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"marketplace_gateway_dispatch_invocations_total",
		`function="echo"`,
		`function="_unregistered"`,
		"marketplace_gateway_http_requests_total",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("%s - /metrics missing %s", httpTestPrefix, want)
		}
	}
}

func TestMetricsEndpoint_AbsentWithoutMetrics(t *testing.T) {
	h := NewHTTPAdapter(testDispatcher(t), nil, HTTPOptions{}).Handler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("%s - /metrics status = %d, want 404", httpTestPrefix, rec.Code)
	}
}

func TestConcurrentInvocations(t *testing.T) {
	h := NewHTTPAdapter(testDispatcher(t), metrics.New(), HTTPOptions{}).Handler()
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		go func() {
			req := httptest.NewRequest(http.MethodPost, "/invoke", strings.NewReader(`{"function_name":"echo","input":{"n":1}}`))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != http.StatusOK {
				errs <- errors.New(rec.Body.String())
				return
			}
			errs <- nil
		}()
	}
	deadline := time.After(5 * time.Second)
	for i := 0; i < 20; i++ {
		select {
		case err := <-errs:
			if err != nil {
				t.Errorf("%s - concurrent request failed: %v", httpTestPrefix, err)
			}
		case <-deadline:
			t.Fatalf("%s - concurrent requests timed out", httpTestPrefix)
		}
	}
}
