package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

type contextKey int

const (
	ctxKeyAuthKey contextKey = iota
	ctxKeyRequestID
	ctxKeyLogger
)

// AuthKey holds the authenticated API key extracted from the bearer token.
type AuthKey struct {
	KeyID       string
	WorkspaceID string
	DeviceID    string
}

// getAuthKey returns the authenticated key from the request context, or nil.
func getAuthKey(ctx context.Context) *AuthKey {
	k, _ := ctx.Value(ctxKeyAuthKey).(*AuthKey)
	return k
}

// getRequestID returns the request ID from the context.
func getRequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

// logFor returns the context-scoped logger, falling back to the default.
func logFor(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKeyLogger).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// chain applies middleware outermost-first.
func chain(h http.Handler, mw ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}

// recoveryMiddleware catches panics and returns a 500 response.
func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logFor(r.Context()).Error("panic recovered", "panic", rec, "path", r.URL.Path)
				writeError(w, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func generateRequestID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "unknown"
	}
	return hex.EncodeToString(b)
}

// requestIDMiddleware tags each request with a unique id for tracing.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := generateRequestID()
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loggerMiddleware stores a per-request logger in the context.
func loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l := slog.Default().With("rid", getRequestID(r.Context()))
		ctx := context.WithValue(r.Context(), ctxKeyLogger, l)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// statusCapture wraps ResponseWriter to capture the status code.
type statusCapture struct {
	http.ResponseWriter
	code int
}

func (sc *statusCapture) WriteHeader(code int) {
	sc.code = code
	sc.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs each request with method, path, status and duration.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sc := &statusCapture{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sc, r)
		logFor(r.Context()).Info("req",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sc.code,
			"dur", time.Since(start).String(),
		)
	})
}

// maxBytesMiddleware caps request body size.
func maxBytesMiddleware(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}

// requireWorkspaceAuth verifies the bearer token and checks that the key
// grants access to the workspace named in the path. The authenticated key
// and a workspace-tagged logger land in the context.
func (s *Server) requireWorkspaceAuth(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "missing authorization header")
			return
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid authorization format")
			return
		}
		token := strings.TrimPrefix(authHeader, "Bearer ")

		ak, err := s.store.VerifyAPIKey(token)
		if err != nil {
			logFor(r.Context()).Error("verify api key", "err", err)
			writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to verify key")
			return
		}
		if ak == nil {
			writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid or revoked api key")
			return
		}

		workspaceID := r.PathValue("ws")
		if workspaceID == "" {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "missing workspace id")
			return
		}
		if ak.WorkspaceID != workspaceID {
			writeError(w, http.StatusForbidden, ErrCodeForbidden, "key does not grant access to this workspace")
			return
		}

		key := &AuthKey{
			KeyID:       ak.ID,
			WorkspaceID: ak.WorkspaceID,
			DeviceID:    r.Header.Get("X-Device-ID"),
		}
		ctx := context.WithValue(r.Context(), ctxKeyAuthKey, key)
		ctx = context.WithValue(ctx, ctxKeyLogger, logFor(ctx).With("ws", workspaceID, "device", key.DeviceID))
		handler(w, r.WithContext(ctx))
	}
}
