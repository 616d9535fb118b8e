package accesslog

import (
	"net/http"
	"time"

	"github.com/ashevelev/order-platform-service/pkg/logger"
	"github.com/go-chi/chi/v5/middleware"
)

// Handler returns a middleware that logs one entry per request with
// the method, path, status code, bytes written and elapsed time.
func Handler(logger logger.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		f := func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			defer func() {
				logger.With(r.Context(),
					"method", r.Method,
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start),
				).Infof("%s %s", r.Method, r.URL.Path)
			}()

			next.ServeHTTP(ww, r)
		}
		return http.HandlerFunc(f)
	}
}
