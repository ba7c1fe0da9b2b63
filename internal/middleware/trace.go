package middleware

import (
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Context keys shared with the handlers' error logging.
const (
	RequestIDKey = "request_id"
	TraceIDKey   = "TraceID"
)

// traceIDFormat keeps caller supplied ids short and safe to log.
var traceIDFormat = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// TraceMiddleware propagates X-Trace-ID from the caller, or starts a new one
// when it is missing or malformed.
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader("X-Trace-ID")
		if !traceIDFormat.MatchString(traceID) {
			traceID = uuid.New().String()
		}
		c.Set(TraceIDKey, traceID)
		c.Writer.Header().Set("X-Trace-ID", traceID)
		c.Next()
	}
}
