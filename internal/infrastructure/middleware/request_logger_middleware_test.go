package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestLoggingMiddleware_EmitsRequestLog(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.InfoLevel)

	router := gin.New()
	router.Use(RequestLoggingMiddleware(zap.New(core)))
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/ping", nil)
	router.ServeHTTP(w, req)

	if w.Header().Get("X-Request-ID") == "" {
		t.Error("response is missing the X-Request-ID header")
	}

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("log entries = %d, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["path"] != "/ping" {
		t.Errorf("path = %v, want /ping", fields["path"])
	}
	if fields["status_code"] != int64(http.StatusOK) {
		t.Errorf("status_code = %v, want 200", fields["status_code"])
	}
	if _, ok := fields["request_id"]; !ok {
		t.Error("log entry is missing the request_id field")
	}
}

func TestRequestLoggingMiddleware_KeepsCallerRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.InfoLevel)

	router := gin.New()
	router.Use(RequestLoggingMiddleware(zap.New(core)))
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set("X-Request-ID", "upstream-42")
	router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "upstream-42" {
		t.Errorf("X-Request-ID = %q, want upstream-42", got)
	}
	if got := logs.All()[0].ContextMap()["request_id"]; got != "upstream-42" {
		t.Errorf("request_id field = %v, want upstream-42", got)
	}
}
