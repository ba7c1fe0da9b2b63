package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHttpMiddleware_LabelsByRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(HttpMiddleware())
	r.GET("/v1/jobs/:id", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	before := testutil.CollectAndCount(httpDuration)
	for _, path := range []string{"/v1/jobs/job_1", "/v1/jobs/job_2"} {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", path, nil)
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
	}

	// job ids must not become label values
	if got := testutil.CollectAndCount(httpDuration) - before; got != 1 {
		t.Errorf("expected one new series for the route, got %d", got)
	}
}
