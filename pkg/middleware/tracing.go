package middleware

import (
	"net/http"

	"github.com/mainframe-kb/incident-search/pkg/tracing"
)

// Tracing opens a root span for each request, reusing the request ID as the
// trace ID so spans and log lines correlate. The span tree is logged when
// the request completes; handlers add child spans via the request context.
func Tracing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracing.StartSpan(r.Context(), r.Method+" "+r.URL.Path, GetRequestID(r.Context()))
		defer func() {
			span.End()
			span.Log()
		}()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
