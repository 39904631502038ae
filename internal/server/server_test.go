package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/morezero/marketplace-gateway/internal/config"
	"github.com/morezero/marketplace-gateway/pkg/events"
	"github.com/morezero/marketplace-gateway/pkg/webhook"
)

const serverTestPrefix = "server:server_test"

func testConfig() *config.Config {
	return &config.Config{
		COMMSName:           "marketplace-gateway-test",
		InvokeSubject:       "marketplace.invoke",
		PaymentEventSubject: "marketplace.payments",
		RequestTimeout:      5 * time.Second,
		HTTPAddr:            "127.0.0.1:0",
		HTTPMaxBodyBytes:    1 << 20,
		HTTPRateBurst:       20,
		HealthCheckTimeout:  time.Second,
		AdminServiceToken:   "admin-secret",
		StripeWebhookSecret: "whsec_test",
		WebhookTolerance:    5 * time.Minute,
		OAuthTimeout:        time.Second,
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLogLevel(in); got != want {
			t.Errorf("%s - ParseLogLevel(%q) = %v, want %v", serverTestPrefix, in, got, want)
		}
	}
}

func TestNew_WithoutDependencies(t *testing.T) {
	s, err := New(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("%s - New: %v", serverTestPrefix, err)
	}
	defer s.Close()

	if s.events != nil {
		t.Errorf("%s - event adapter built without COMMS", serverTestPrefix)
	}
	if n := s.Dispatcher().Registry().Len(); n == 0 {
		t.Fatalf("%s - empty command registry", serverTestPrefix)
	}

	h := s.Handler()
	req := httptest.NewRequest(http.MethodPost, "/invoke", strings.NewReader(`{"function_name":"admin_stats","input":{"access_token":"admin-secret"}}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"result":"Stats"`) {
		t.Errorf("%s - admin_stats = %d %s", serverTestPrefix, rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("%s - /health without dependencies = %d", serverTestPrefix, rec.Code)
	}
}

func TestNew_COMMSConnectFailure(t *testing.T) {
	cfg := testConfig()
	cfg.COMMSEnabled = true
	cfg.COMMSURL = "nats://127.0.0.1:1"
	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatalf("%s - expected COMMS connect error", serverTestPrefix)
	}
}

func TestNew_OptionalCOMMS(t *testing.T) {
	cfg := testConfig()
	cfg.COMMSEnabled = true
	cfg.COMMSURL = "nats://127.0.0.1:1"

	s, err := New(context.Background(), cfg, WithOptionalComms())
	if err != nil {
		t.Fatalf("%s - New with optional COMMS: %v", serverTestPrefix, err)
	}
	defer s.Close()

	if s.events != nil {
		t.Errorf("%s - event adapter built without a COMMS connection", serverTestPrefix)
	}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/invoke", strings.NewReader(`{"function_name":"login","input":{"email":"a@b.c","password":"pw"}}`))
	s.Handler().ServeHTTP(rec, req)
	if !strings.Contains(rec.Body.String(), `"result":"Login successful"`) {
		t.Errorf("%s - login = %d %s", serverTestPrefix, rec.Code, rec.Body.String())
	}
}

// stripeInvocation builds a signed stripe_webhook invocation body.
func stripeInvocation(t *testing.T, secret, payload string) string {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"function_name": "stripe_webhook",
		"input": map[string]string{
			"payload":          payload,
			"signature_header": webhook.SignatureHeader(secret, time.Now(), []byte(payload)),
		},
	})
	if err != nil {
		t.Fatalf("%s - marshal invocation: %v", serverTestPrefix, err)
	}
	return string(body)
}

func TestServer_WebhookOverHTTPPublishesToCOMMS(t *testing.T) {
	ns := startEmbeddedServer(t, 14254)
	client := connect(t, ns)

	cfg := testConfig()
	cfg.COMMSEnabled = true
	cfg.COMMSURL = ns.ClientURL()

	s, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("%s - New: %v", serverTestPrefix, err)
	}
	defer s.Close()

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	paymentSub, err := client.SubscribeSync(cfg.PaymentEventSubject + ".>")
	if err != nil {
		t.Fatalf("%s - subscribe payments: %v", serverTestPrefix, err)
	}
	if err := client.Flush(); err != nil {
		t.Fatalf("%s - flush: %v", serverTestPrefix, err)
	}

	tests := []struct {
		name        string
		payload     string
		wantResult  string
		wantSubject string
	}{
		{
			name:        "payment succeeded",
			payload:     `{"id":"evt_http_1","type":"invoice.payment_succeeded","created":1700000000,"data":{"object":{"id":"in_1","customer":"cus_1","subscription":"sub_1"}}}`,
			wantResult:  "Payment succeeded",
			wantSubject: "marketplace.payments.invoice.payment_succeeded",
		},
		{
			name:        "subscription deleted",
			payload:     `{"id":"evt_http_2","type":"customer.subscription.deleted","created":1700000000,"data":{"object":{"id":"sub_1","customer":"cus_1"}}}`,
			wantResult:  "Subscription deleted",
			wantSubject: "marketplace.payments.customer.subscription.deleted",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+"/invoke", "application/json", strings.NewReader(stripeInvocation(t, cfg.StripeWebhookSecret, tt.payload)))
			if err != nil {
				t.Fatalf("%s - POST /invoke: %v", serverTestPrefix, err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				t.Fatalf("%s - status = %d, want 200", serverTestPrefix, resp.StatusCode)
			}
			var env struct {
				Result *string `json:"result"`
				Error  *string `json:"error"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
				t.Fatalf("%s - decode envelope: %v", serverTestPrefix, err)
			}
			if env.Error != nil {
				t.Fatalf("%s - error = %q, want none", serverTestPrefix, *env.Error)
			}
			if env.Result == nil || *env.Result != tt.wantResult {
				t.Errorf("%s - result = %v, want %q", serverTestPrefix, env.Result, tt.wantResult)
			}

			msg, err := paymentSub.NextMsg(5 * time.Second)
			if err != nil {
				t.Fatalf("%s - no payment event published: %v", serverTestPrefix, err)
			}
			if msg.Subject != tt.wantSubject {
				t.Errorf("%s - subject = %q, want %q", serverTestPrefix, msg.Subject, tt.wantSubject)
			}
		})
	}
}

func TestServer_EndToEndOverCOMMS(t *testing.T) {
	ns := startEmbeddedServer(t, 14253)
	client := connect(t, ns)

	cfg := testConfig()
	cfg.COMMSEnabled = true
	cfg.COMMSURL = ns.ClientURL()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("%s - New: %v", serverTestPrefix, err)
	}
	if err := s.Start(ctx); err != nil {
		s.Close()
		t.Fatalf("%s - Start: %v", serverTestPrefix, err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		s.Shutdown(shutdownCtx)
	}()

	env := request(t, client, cfg.InvokeSubject, `{"function_name":"register_user","input":{"user_id":1,"email":"a@b.c"}}`)
	if env.Result == nil || *env.Result != "User registered" {
		t.Errorf("%s - register_user envelope = %+v", serverTestPrefix, env)
	}

	env = request(t, client, cfg.InvokeSubject, `{"function_name":"totally_unknown","input":{}}`)
	if env.Error == nil || *env.Error != "Function 'totally_unknown' not found" {
		t.Errorf("%s - unknown envelope = %+v", serverTestPrefix, env)
	}

	// A verified payment is announced on the payment subject.
	paymentSub, err := client.SubscribeSync(cfg.PaymentEventSubject + ".>")
	if err != nil {
		t.Fatalf("%s - subscribe payments: %v", serverTestPrefix, err)
	}
	if err := client.Flush(); err != nil {
		t.Fatalf("%s - flush: %v", serverTestPrefix, err)
	}

	payload := `{"id":"evt_1","type":"invoice.payment_succeeded","created":1700000000,"data":{"object":{"id":"in_1","customer":"cus_1","subscription":"sub_1"}}}`
	env = request(t, client, cfg.InvokeSubject, stripeInvocation(t, cfg.StripeWebhookSecret, payload))
	if env.Result == nil || *env.Result != "Payment succeeded" {
		t.Fatalf("%s - stripe_webhook envelope = %+v", serverTestPrefix, env)
	}

	msg, err := paymentSub.NextMsg(5 * time.Second)
	if err != nil {
		t.Fatalf("%s - no payment event published: %v", serverTestPrefix, err)
	}
	if msg.Subject != "marketplace.payments.invoice.payment_succeeded" {
		t.Errorf("%s - payment subject = %q", serverTestPrefix, msg.Subject)
	}
	var pe events.PaymentEvent
	if err := json.Unmarshal(msg.Data, &pe); err != nil {
		t.Fatalf("%s - decode payment event: %v", serverTestPrefix, err)
	}
	if pe.ID != "evt_1" || pe.Subscription == nil || pe.Subscription.ExternalID != "sub_1" {
		t.Errorf("%s - payment event = %+v", serverTestPrefix, pe)
	}
}
