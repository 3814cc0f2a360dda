package httputil

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scentflow/scentflow-backend/pkg/actor"
	"github.com/scentflow/scentflow-backend/pkg/errors"
	"github.com/scentflow/scentflow-backend/pkg/logger"
)

type contextKey string

const RequestIDKey contextKey = "request_id"

// RequestID middleware adds a request ID to each request
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Logger middleware logs HTTP requests
func Logger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			reqLog := log.WithRequestID(GetRequestID(r.Context()))
			if a := actor.FromContext(r.Context()); a != nil {
				reqLog = reqLog.WithActor(a.ID, a.LocationID)
			}

			event := reqLog.Info()
			if wrapped.statusCode >= http.StatusInternalServerError {
				event = reqLog.Error()
			}
			event.
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", wrapped.statusCode).
				Dur("duration", time.Since(start)).
				Str("remote_addr", r.RemoteAddr).
				Msg("HTTP request")
		})
	}
}

// Recoverer middleware recovers from panics
func Recoverer(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.Error().
						Interface("panic", err).
						Str("path", r.URL.Path).
						Msg("panic recovered")

					Error(w, errors.Internal("internal server error"))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// TokenVerifier turns a bearer token into an actor.
type TokenVerifier interface {
	Verify(token string) (*actor.Actor, error)
}

// Identity resolves the calling actor and stores it in the request context.
//
// A bearer token is always preferred. When trustGatewayHeaders is set, requests
// without a token may instead carry the identity forwarded by the API gateway:
//   - X-User-ID: actor id
//   - X-Location-ID: the actor's location
//   - X-Global-Admin: "true" for head-office administrators
//
// /health is served without identity.
func Identity(verifier TokenVerifier, trustGatewayHeaders bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}

			var a *actor.Actor
			authHeader := r.Header.Get("Authorization")

			switch {
			case authHeader != "":
				parts := strings.SplitN(authHeader, " ", 2)
				if len(parts) != 2 || parts[0] != "Bearer" {
					Error(w, errors.Unauthorized("invalid authorization header format"))
					return
				}
				verified, err := verifier.Verify(parts[1])
				if err != nil {
					Error(w, err)
					return
				}
				a = verified

			case trustGatewayHeaders && r.Header.Get("X-User-ID") != "":
				admin, _ := strconv.ParseBool(r.Header.Get("X-Global-Admin"))
				a = &actor.Actor{
					ID:            r.Header.Get("X-User-ID"),
					LocationID:    r.Header.Get("X-Location-ID"),
					IsGlobalAdmin: admin,
				}

			default:
				Error(w, errors.Unauthorized("missing authorization header"))
				return
			}

			next.ServeHTTP(w, r.WithContext(actor.WithActor(r.Context(), a)))
		})
	}
}
