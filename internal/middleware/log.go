package middleware

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	maxLoggedBody  = 4 << 10
	maxRequestBody = 1 << 20
)

// secretHeaders never reach the log.
var secretHeaders = []string{"Authorization", "Set-Cookie"}

type responseData struct {
	status int
	size   int
}

type loggingResponseWriter struct {
	http.ResponseWriter
	responseData *responseData
}

func (r *loggingResponseWriter) Write(b []byte) (int, error) {
	size, err := r.ResponseWriter.Write(b)
	r.responseData.size += size
	return size, err
}

func (r *loggingResponseWriter) WriteHeader(statusCode int) {
	r.ResponseWriter.WriteHeader(statusCode)
	r.responseData.status = statusCode
}

// LogMiddleware logs every request with its body and the response headers.
// Bodies of requests whose path ends with one of redactPaths are not logged.
// Request bodies above maxRequestBody, or ones that fail to read, are
// answered with 400 before reaching next.
func LogMiddleware(logger *zap.SugaredLogger, redactPaths ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			var body []byte
			if r.Body != nil {
				var err error
				body, err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
				if err != nil {
					logger.Warnf("uri=%s method=%s read body: %v", r.RequestURI, r.Method, err)
					WriteError(w, http.StatusBadRequest, "bad request body")
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))
			}

			data := &responseData{status: http.StatusOK}
			lw := &loggingResponseWriter{ResponseWriter: w, responseData: data}

			next.ServeHTTP(lw, r)

			logged := string(body)
			if len(logged) > maxLoggedBody {
				logged = logged[:maxLoggedBody] + "..."
			}
			for _, p := range redactPaths {
				if strings.HasSuffix(r.URL.Path, p) {
					logged = "[redacted]"
					break
				}
			}

			logger.Infof("uri=%s method=%s status=%d duration=%s size=%d body=%s outputheaders=%v",
				r.RequestURI, r.Method, data.status, time.Since(start), data.size, logged, loggableHeaders(w.Header()))
		})
	}
}

func loggableHeaders(h http.Header) http.Header {
	out := h.Clone()
	for _, k := range secretHeaders {
		out.Del(k)
	}
	return out
}
