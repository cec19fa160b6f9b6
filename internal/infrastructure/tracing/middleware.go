package tracing

import (
	"github.com/gin-gonic/gin"
	"github.com/go-resty/resty/v2"
)

const maxTraceIDLen = 128

// HTTPMiddleware traces each request and echoes its trace id.
func HTTPMiddleware(tracer *Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if traceID := c.GetHeader(Header); traceID != "" && len(traceID) <= maxTraceIDLen {
			ctx = WithTraceID(ctx, traceID)
		}

		name := c.FullPath()
		if name == "" {
			name = "unmatched"
		}
		span, ctx := tracer.StartSpan(ctx, c.Request.Method+" "+name)
		c.Request = c.Request.WithContext(ctx)
		c.Header(Header, span.TraceID)
		if sessionID := c.Param("id"); sessionID != "" {
			span.SetTag("session_id", sessionID)
		}

		c.Next()

		span.Finish()
		span.StatusCode = c.Writer.Status()
		if len(c.Errors) > 0 {
			span.Error = c.Errors.Last()
		}
		tracer.Submit(span)
	}
}

// RestyPropagator copies the trace id of each request's context into its
// headers.
func RestyPropagator() resty.RequestMiddleware {
	return func(_ *resty.Client, r *resty.Request) error {
		if traceID := TraceID(r.Context()); traceID != "" {
			r.SetHeader(Header, traceID)
		}
		return nil
	}
}
