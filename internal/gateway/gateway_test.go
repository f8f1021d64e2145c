package gateway

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/wafgate/wafgate/internal/config"
	"github.com/wafgate/wafgate/internal/engine"
	"github.com/wafgate/wafgate/internal/engine/enginetest"
	"github.com/wafgate/wafgate/internal/logging"
	"github.com/wafgate/wafgate/internal/rulestore"
)

func newGateway(t *testing.T, fake *enginetest.Fake, next http.Handler) *Gateway {
	t.Helper()
	store := rulestore.New(fake, zerolog.Nop())
	gw, err := New(fake, store, next, zerolog.Nop())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return gw
}

func TestGatewayPassThrough(t *testing.T) {
	fake := &enginetest.Fake{}
	gw := newGateway(t, fake, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Upstream", "demo")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("hello"))
	}))

	req := httptest.NewRequest(http.MethodPost, "http://example.com/items", strings.NewReader("payload"))
	rec := httptest.NewRecorder()

	gw.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if string(body) != "hello" {
		t.Fatalf("expected body hello, got %q", string(body))
	}
	if rec.Header().Get("X-Upstream") != "demo" {
		t.Fatalf("expected upstream header preserved")
	}
	if len(fake.Transactions) != 1 || !fake.Transactions[0].Closed {
		t.Fatalf("expected one closed transaction")
	}
}

func TestGatewayBlockOnRequestBodySkipsHandler(t *testing.T) {
	handlerCalled := false
	fake := &enginetest.Fake{
		Verdicts: map[int]*engine.Verdict{
			4: {Disruptive: true, Status: http.StatusForbidden},
		},
	}
	gw := newGateway(t, fake, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
	}))

	req := httptest.NewRequest(http.MethodPost, "http://example.com/login", strings.NewReader("user=admin'--"))
	rec := httptest.NewRecorder()

	gw.ServeHTTP(rec, req)

	if handlerCalled {
		t.Fatalf("wrapped handler must not run after a request-side intervention")
	}
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("expected empty block body, got %q", rec.Body.String())
	}
}

func TestGatewayRedirect(t *testing.T) {
	fake := &enginetest.Fake{
		Verdicts: map[int]*engine.Verdict{
			1: {Disruptive: true, URL: "https://blocked.example.com/denied"},
		},
	}
	gw := newGateway(t, fake, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
	rec := httptest.NewRecorder()

	gw.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}
	if got := rec.Header().Get("Location"); got != "https://blocked.example.com/denied" {
		t.Fatalf("expected redirect location, got %q", got)
	}
}

func TestGatewayResponseInterventionDiscardsOutput(t *testing.T) {
	fake := &enginetest.Fake{
		Verdicts: map[int]*engine.Verdict{
			6: {Disruptive: true, Status: http.StatusForbidden},
		},
	}
	gw := newGateway(t, fake, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("secret data"))
	}))

	req := httptest.NewRequest(http.MethodGet, "http://example.com/export", nil)
	rec := httptest.NewRecorder()

	gw.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "secret") {
		t.Fatalf("handler output must not leak past a response intervention")
	}
}

func TestGatewayEngineFailureFailsRequest(t *testing.T) {
	fake := &enginetest.Fake{FailOn: "ProcessURI"}
	gw := newGateway(t, fake, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler must not run after an engine failure")
	}))

	req := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
	rec := httptest.NewRecorder()

	gw.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if len(fake.Transactions) != 1 || !fake.Transactions[0].Closed {
		t.Fatalf("expected the transaction released on failure")
	}
}

func TestGatewayRateLimitBeforeEngine(t *testing.T) {
	fake := &enginetest.Fake{}
	gw := newGateway(t, fake, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	gw.SetRateLimit(config.RateLimitConfig{Enabled: true, Key: "ip", RPS: 0.001, Burst: 1})

	first := httptest.NewRecorder()
	gw.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "http://example.com/", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("expected first request allowed, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	gw.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "http://example.com/", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", second.Code)
	}
	if len(fake.Transactions) != 1 {
		t.Fatalf("rate-limited request must not reach the engine, got %d transactions", len(fake.Transactions))
	}
}

func TestGatewayIndependentTransactions(t *testing.T) {
	fake := &enginetest.Fake{}
	gw := newGateway(t, fake, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		gw.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://example.com/same", nil))
		if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
			t.Fatalf("request %d: expected identical pass-through, got %d %q", i, rec.Code, rec.Body.String())
		}
	}

	if len(fake.Transactions) != 2 {
		t.Fatalf("expected one transaction per request, got %d", len(fake.Transactions))
	}
	for i, tx := range fake.Transactions {
		if !tx.Closed {
			t.Fatalf("transaction %d not closed", i)
		}
		if tx.Checks != 6 {
			t.Fatalf("transaction %d: expected 6 intervention checks, got %d", i, tx.Checks)
		}
	}
}

func TestGatewayWritesDecisions(t *testing.T) {
	fake := &enginetest.Fake{
		Verdicts: map[int]*engine.Verdict{
			2: {Disruptive: true, Status: http.StatusForbidden, Log: "rule 1001 matched"},
		},
	}
	gw := newGateway(t, fake, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	var buf bytes.Buffer
	gw.SetDecisionLogger(logging.NewDecisionLogger(&buf))

	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://example.com/etc/passwd", nil))

	line := buf.String()
	for _, want := range []string{`"action":"block"`, `"phase":"uri"`, `"status_code":403`, "rule 1001 matched"} {
		if !strings.Contains(line, want) {
			t.Fatalf("decision log missing %q in %q", want, line)
		}
	}
}
