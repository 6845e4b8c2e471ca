package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRecoveryCatchesPanic(t *testing.T) {
	handler := Recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/agent", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}

func TestLoggingPreservesStatus(t *testing.T) {
	handler := Logging(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/agent", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 to pass through, got %d", rec.Code)
	}
}

func TestMaskIP(t *testing.T) {
	tests := []struct {
		name string
		addr string
		want string
	}{
		{"ipv4 with port", "203.0.113.77:52011", "203.0.113.0/24"},
		{"ipv4 bare", "198.51.100.9", "198.51.100.0/24"},
		{"ipv6", "[2001:db8:abcd:12::1]:443", "2001:db8:abcd::/48"},
		{"garbage", "not-an-ip", "[redacted]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := maskIP(tt.addr); got != tt.want {
				t.Errorf("maskIP(%q) = %q, want %q", tt.addr, got, tt.want)
			}
		})
	}
}

func TestResponseWriterHijackUnsupported(t *testing.T) {
	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	if _, _, err := rw.Hijack(); err == nil {
		t.Error("expected error when the underlying writer cannot hijack")
	}
}
