package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/morezero/marketplace-gateway/pkg/dispatcher"
)

const middlewareLogPrefix = "server:middleware"

const requestIDHeader = "X-Request-ID"

// Middleware wraps an HTTP handler.
type Middleware func(http.Handler) http.Handler

// Chain applies middleware in declaration order, the first being outermost.
func Chain(handler http.Handler, middleware ...Middleware) http.Handler {
	wrapped := handler
	for i := len(middleware) - 1; i >= 0; i-- {
		if middleware[i] == nil {
			continue
		}
		wrapped = middleware[i](wrapped)
	}
	return wrapped
}

// RecoverPanic answers 500 with a failure envelope when a handler panics.
func RecoverPanic() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if recovered := recover(); recovered != nil {
					slog.Error(fmt.Sprintf("%s - panic recovered method=%s path=%s request_id=%s panic=%v\n%s",
						middlewareLogPrefix, r.Method, r.URL.Path, r.Header.Get(requestIDHeader), recovered, debug.Stack()))
					writeEnvelope(w, http.StatusInternalServerError, dispatcher.Failure("Internal server error"))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// RequestID injects and echoes a request id for correlation.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(requestIDHeader)
			if id == "" {
				id = uuid.NewString()
				r.Header.Set(requestIDHeader, id)
			}
			w.Header().Set(requestIDHeader, id)
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit rejects requests beyond a global token bucket with 429. A nil limiter
// disables the check.
func RateLimit(limiter *rate.Limiter) Middleware {
	if limiter == nil {
		return nil
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				slog.Warn(fmt.Sprintf("%s - rate limit exceeded path=%s remote=%s", middlewareLogPrefix, r.URL.Path, r.RemoteAddr))
				w.Header().Set("Retry-After", "1")
				writeEnvelope(w, http.StatusTooManyRequests, dispatcher.Failure("Rate limit exceeded"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
