// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/taibuivan/motorhub/internal/platform/constants"
	"github.com/taibuivan/motorhub/internal/platform/ctxutil"
)

var noContent = http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
	writer.WriteHeader(http.StatusNoContent)
})

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID()(http.HandlerFunc(func(_ http.ResponseWriter, request *http.Request) {
		seen = ctxutil.GetRequestID(request.Context())
	}))

	t.Run("Generated", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, recorder.Header().Get(constants.HeaderXRequestID))
	})

	t.Run("Propagated", func(t *testing.T) {
		request := httptest.NewRequest(http.MethodGet, "/", nil)
		request.Header.Set(constants.HeaderXRequestID, "req-42")
		handler.ServeHTTP(httptest.NewRecorder(), request)

		assert.Equal(t, "req-42", seen)
	})
}

/*
TestRateLimitWith verifies buckets are per IP and per limiter.
*/
func TestRateLimitWith(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	limited := RateLimitWith(ctx, rate.Limit(0), 2)(noContent)
	other := RateLimitWith(ctx, rate.Limit(0), 1)(noContent)

	call := func(handler http.Handler, ip string) *httptest.ResponseRecorder {
		request := httptest.NewRequest(http.MethodGet, "/", nil)
		request.Header.Set(constants.HeaderXRealIP, ip)
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, request)
		return recorder
	}

	assert.Equal(t, http.StatusNoContent, call(limited, "10.0.0.1").Code)
	assert.Equal(t, http.StatusNoContent, call(limited, "10.0.0.1").Code)

	rejected := call(limited, "10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, rejected.Code)
	assert.Equal(t, "1", rejected.Header().Get(constants.HeaderRetryAfter))

	assert.Equal(t, http.StatusNoContent, call(limited, "10.0.0.2").Code)
	assert.Equal(t, http.StatusNoContent, call(other, "10.0.0.1").Code)
}

func TestLimiterStore_Evict(t *testing.T) {
	store := &limiterStore{clients: make(map[string]*rateLimitClient), limit: rate.Limit(1), burst: 1}
	now := time.Now()

	require.True(t, store.allow("10.0.0.1", now.Add(-time.Hour)))
	require.True(t, store.allow("10.0.0.2", now))

	store.evict(now, time.Minute)

	assert.NotContains(t, store.clients, "10.0.0.1")
	assert.Contains(t, store.clients, "10.0.0.2")
}

type consoleConfig struct {
	development bool
}

func (c consoleConfig) IsDevelopment() bool { return c.development }

func (c consoleConfig) AllowedOrigin(origin string) bool {
	return origin == "https://console.motorhub.test"
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name        string
		development bool
		origin      string
		method      string
		wantAllowed bool
		wantStatus  int
	}{
		{"Console Origin", false, "https://console.motorhub.test", http.MethodGet, true, http.StatusNoContent},
		{"Foreign Origin", false, "https://evil.test", http.MethodGet, false, http.StatusNoContent},
		{"Any Origin In Development", true, "http://localhost:3000", http.MethodGet, true, http.StatusNoContent},
		{"Preflight", false, "https://console.motorhub.test", http.MethodOptions, true, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			request := httptest.NewRequest(tt.method, "/", nil)
			request.Header.Set(constants.HeaderOrigin, tt.origin)
			recorder := httptest.NewRecorder()

			CORS(consoleConfig{development: tt.development})(noContent).ServeHTTP(recorder, request)

			assert.Equal(t, tt.wantStatus, recorder.Code)
			if tt.wantAllowed {
				assert.Equal(t, tt.origin, recorder.Header().Get("Access-Control-Allow-Origin"))
			} else {
				assert.Empty(t, recorder.Header().Get("Access-Control-Allow-Origin"))
			}
		})
	}
}

func TestPanicRecovery(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	handler := PanicRecovery(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "INTERNAL_SERVER_ERROR")
}

func TestStructuredLogger_Unwrap(t *testing.T) {
	handler := StructuredLogger(slog.New(slog.DiscardHandler))(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		assert.NoError(t, http.NewResponseController(writer).Flush())
	}))

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.True(t, recorder.Flushed)
}
