package unzip

import (
	"compress/gzip"
	"net/http"
	"strings"

	"github.com/ashevelev/order-platform-service/pkg/logger"
)

// gzipBody couples the gzip reader with the underlying request body
// so both get closed.
type gzipBody struct {
	body *gzip.Reader
	src  interface{ Close() error }
}

func (b *gzipBody) Read(p []byte) (int, error) {
	return b.body.Read(p)
}

func (b *gzipBody) Close() error {
	if err := b.src.Close(); err != nil {
		return err
	}
	return b.body.Close()
}

// Middleware transparently decompresses request bodies
// sent with Content-Encoding: gzip.
func Middleware(logger logger.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		f := func(w http.ResponseWriter, r *http.Request) {
			if strings.Contains(r.Header.Get("Content-Encoding"), "gzip") {
				zr, err := gzip.NewReader(r.Body)
				if err != nil {
					logger.Errorf("gzip request body: %s", err)
					w.WriteHeader(http.StatusBadRequest)
					return
				}
				wrapped := &gzipBody{body: zr, src: r.Body}
				r.Body = wrapped
				defer wrapped.Close()
			}

			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(f)
	}
}
