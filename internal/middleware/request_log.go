package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/agora/internal/logger"
)

const RequestIDHeader = "X-Request-Id"

// RequestLog присваивает запросу id (или берёт присланный UI) и логирует method, path, код и время.
func RequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		rw := wrap(w)
		r = r.WithContext(context.WithValue(r.Context(), RequestIDKey, id))
		defer func() {
			logger.Infof("http %s %s %d id=%s (%s)", r.Method, r.URL.Path, rw.status, id, time.Since(start).Round(time.Microsecond))
		}()
		next.ServeHTTP(rw, r)
	})
}
