package httpmiddleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/trace"
)

// TraceName 把 span 名从 otelhttp 的默认值改成“方法 + 路由模板”，
// 这样 tracing 后端里不会每个短码各占一个名字。
func TraceName(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)
		span := trace.SpanFromContext(r.Context())
		span.SetName(r.Method + " " + chi.RouteContext(r.Context()).RoutePattern())
	})
}
