package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"postflow/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestGinZapLogger_LogsCaller(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	defer logger.Replace(zap.New(core))()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), TraceMiddleware(), GinZapLogger(), JWTMiddleware(nil, true))
	r.GET("/v1/jobs/:id", func(c *gin.Context) {
		c.Status(http.StatusNotFound)
	})

	req, _ := http.NewRequest("GET", "/v1/jobs/job_1", nil)
	req.Header.Set("X-Dev-User", "u1")
	req.Header.Set("X-Trace-ID", "trace-abc")
	r.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.FilterMessage("http_request").All()
	if len(entries) != 1 {
		t.Fatalf("expected one access log entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Level != zapcore.WarnLevel {
		t.Errorf("4xx should log at warn, got %s", e.Level)
	}
	fields := e.ContextMap()
	if fields["user_id"] != "u1" || fields["trace_id"] != "trace-abc" || fields["route"] != "/v1/jobs/:id" {
		t.Errorf("unexpected fields %v", fields)
	}
}

func TestTraceMiddleware_RejectsMalformedIDs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(TraceMiddleware())
	r.GET("/t", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(TraceIDKey)) })

	tests := []struct {
		header string
		keep   bool
	}{
		{"abc-123", true},
		{"", false},
		{"has space", false},
		{"line\r\nbreak", false},
		{string(make([]byte, 65)), false},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/t", nil)
		req.Header["X-Trace-Id"] = []string{tt.header}
		r.ServeHTTP(w, req)

		got := w.Body.String()
		if tt.keep && got != tt.header {
			t.Errorf("header %q should be kept, got %q", tt.header, got)
		}
		if !tt.keep && (got == tt.header || got == "") {
			t.Errorf("header %q should be replaced, got %q", tt.header, got)
		}
		if w.Header().Get("X-Trace-ID") != got {
			t.Errorf("response header does not match trace id %q", got)
		}
	}
}
