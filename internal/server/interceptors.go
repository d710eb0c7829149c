package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// logPanic records a recovered panic with its stack. where names the
// transport ("grpc" or "http").
func logPanic(where string, rec any, attrs ...any) {
	attrs = append(attrs, "panic", fmt.Sprint(rec), "stack", string(debug.Stack()))
	slog.Error("panic recovered in "+where+" handler", attrs...)
}

// LoggingInterceptor logs each unary RPC: failures at error level, the
// rest at debug.
func LoggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	level := slog.LevelDebug
	attrs := []any{"method", info.FullMethod, "duration", time.Since(start)}
	if err != nil {
		level = slog.LevelError
		attrs = append(attrs, "error", err)
	}
	slog.Log(ctx, level, "rpc completed", attrs...)
	return resp, err
}

// RecoveryInterceptor turns a handler panic into codes.Internal.
func RecoveryInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			logPanic("grpc", rec, "method", info.FullMethod)
			err = status.Error(codes.Internal, "internal server error")
		}
	}()
	return handler(ctx, req)
}

// RecoveryMiddleware turns a handler panic into a JSON 500. Aborted
// handlers are re-panicked so net/http can drop the connection.
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			logPanic("http", rec, "method", r.Method, "path", r.URL.Path)
			writeError(w, http.StatusInternalServerError, "internal server error")
		}()
		next.ServeHTTP(w, r)
	})
}

type uidKey struct{}

// UIDFromContext returns the presenter uid set by RequireUser.
func UIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(uidKey{}).(string)
	return uid
}

// RequireUser checks the Authorization header for a Bearer token issued by
// verify and stores its uid in the request context.
func RequireUser(verify func(token string) (string, error), next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			writeError(w, http.StatusUnauthorized, "missing authorization header")
			return
		}
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid authorization scheme")
			return
		}

		uid, err := verify(token)
		if err != nil {
			slog.Debug("rejected token", "path", r.URL.Path, "error", err)
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), uidKey{}, uid)))
	}
}
