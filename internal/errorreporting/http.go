package errorreporting

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
)

// Middleware reports handler panics and 5xx responses.
type Middleware struct {
	reporter Reporter
}

func NewMiddleware(reporter Reporter) Middleware {
	return Middleware{reporter: reporter}
}

func (m Middleware) Wrap(next http.Handler) http.Handler {
	if m.reporter == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		defer func() {
			attrs := map[string]string{
				"http.method": r.Method,
				"http.path":   r.URL.Path,
			}

			if recovered := recover(); recovered != nil {
				attrs["panic"] = "true"
				m.reporter.CaptureException(r.Context(), fmt.Errorf("panic: %v", recovered), attrs)

				// Don't leak panic details to clients.
				if !sw.wroteHeader {
					http.Error(sw, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				}
				return
			}

			if sw.status >= 500 {
				attrs["http.status"] = strconv.Itoa(sw.status)
				m.reporter.CaptureException(r.Context(), fmt.Errorf("server error %d", sw.status), attrs)
			}
		}()

		next.ServeHTTP(sw, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

func Capture(ctx context.Context, reporter Reporter, err error, attrs map[string]string) {
	if reporter == nil || err == nil {
		return
	}
	reporter.CaptureException(ctx, err, attrs)
}
