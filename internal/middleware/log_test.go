package middleware

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func bufferLogger(buf *bytes.Buffer) *zap.SugaredLogger {
	encoderCfg := zap.NewDevelopmentEncoderConfig()
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.AddSync(buf),
		zapcore.DebugLevel,
	)
	return zap.New(core).Sugar()
}

func TestLogMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := bufferLogger(&buf)

	body := `{"planId":"Basic"}`
	req := httptest.NewRequest(http.MethodPost, "/api/users/pay", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()

	var seen string
	handler := LogMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		seen = string(data)
		w.Header().Set("X-Test", "1")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("response"))
	}))

	handler.ServeHTTP(rr, req)

	require.Equal(t, body, seen, "handler must still see the request body")

	logOutput := buf.String()
	require.Contains(t, logOutput, "method=POST")
	require.Contains(t, logOutput, "status=201")
	require.Contains(t, logOutput, "size=8")
	require.Contains(t, logOutput, `body={"planId":"Basic"}`)
	require.Contains(t, logOutput, "outputheaders=")
	require.Contains(t, logOutput, "X-Test")
}

func TestLogMiddleware_RedactsCredentials(t *testing.T) {
	var buf bytes.Buffer
	logger := bufferLogger(&buf)

	req := httptest.NewRequest(http.MethodPost, "/api/users/login", strings.NewReader(`{"email":"a@b.c","password":"hunter2"}`))
	rr := httptest.NewRecorder()

	handler := LogMiddleware(logger, "/login", "/register")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.ReadAll(r.Body)
	}))
	handler.ServeHTTP(rr, req)

	logOutput := buf.String()
	require.Contains(t, logOutput, "status=200")
	require.Contains(t, logOutput, "body=[redacted]")
	require.NotContains(t, logOutput, "hunter2")
}

func TestLogMiddleware_OmitsIssuedToken(t *testing.T) {
	var buf bytes.Buffer
	logger := bufferLogger(&buf)

	req := httptest.NewRequest(http.MethodPost, "/api/users/login", strings.NewReader(`{}`))
	rr := httptest.NewRecorder()

	handler := LogMiddleware(logger, "/login")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Authorization", "Bearer issued.jwt.value")
		w.Header().Set("Set-Cookie", "session=abc")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
	}))
	handler.ServeHTTP(rr, req)

	require.Equal(t, "Bearer issued.jwt.value", rr.Header().Get("Authorization"), "client still receives the token")

	logOutput := buf.String()
	require.Contains(t, logOutput, "Content-Type")
	require.NotContains(t, logOutput, "issued.jwt.value")
	require.NotContains(t, logOutput, "session=abc")
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("connection reset")
}

func TestLogMiddleware_RejectsUnreadableBody(t *testing.T) {
	tests := []struct {
		name string
		body io.Reader
	}{
		{name: "read error", body: io.MultiReader(strings.NewReader(`{"type":`), failingReader{})},
		{name: "too large", body: strings.NewReader(strings.Repeat("a", maxRequestBody+1))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			called := false
			handler := LogMiddleware(bufferLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			}))

			req := httptest.NewRequest(http.MethodPost, "/api/users/webhook", tt.body)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			require.False(t, called, "handler must not see a partial body")
			require.Equal(t, http.StatusBadRequest, rr.Code)
			require.Contains(t, rr.Body.String(), `"success":false`)
		})
	}
}
