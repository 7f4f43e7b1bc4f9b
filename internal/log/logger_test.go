package log

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestLoggerStampsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{
		Component: ComponentLedger,
		Handler:   slog.NewTextHandler(&buf, nil),
	})

	logger.Info("transaction recorded", FieldTransactionID, "abc-123")

	out := buf.String()
	if !strings.Contains(out, "component=ledger") {
		t.Errorf("expected component attribute, got %q", out)
	}
	if !strings.Contains(out, "transaction_id=abc-123") {
		t.Errorf("expected transaction id attribute, got %q", out)
	}
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{
		Component: ComponentApp,
		Handler:   slog.NewTextHandler(&buf, nil),
	})

	derived := logger.WithComponent(ComponentSync)
	if derived.Component() != ComponentSync {
		t.Fatalf("component = %q, want %q", derived.Component(), ComponentSync)
	}

	derived.Info("reconcile scheduled")
	if !strings.Contains(buf.String(), "component="+ComponentSync) {
		t.Errorf("expected derived component attribute, got %q", buf.String())
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{
		Component: ComponentHTTP,
		Handler:   slog.NewTextHandler(&buf, nil),
	})

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).Info("handled")
	})
	chain := Middleware(logger)(RequestIDMiddleware(func(r *http.Request) string {
		return r.Header.Get("X-Request-ID")
	})(handler))

	req := httptest.NewRequest(http.MethodGet, "/api/transactions", nil)
	req.Header.Set("X-Request-ID", "req-42")
	chain.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	if !strings.Contains(out, "request_id=req-42") {
		t.Errorf("expected request id attribute, got %q", out)
	}
	if !strings.Contains(out, "component="+ComponentHTTP) {
		t.Errorf("expected component attribute, got %q", out)
	}
}
