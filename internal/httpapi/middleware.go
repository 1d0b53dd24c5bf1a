package httpapi

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"upets/platform-service/internal/auth"
	"upets/platform-service/internal/logger"
	"upets/platform-service/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const requestIDHeader = "X-Request-ID"

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack lets websocket transports take over the connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// requestIDMiddleware keeps a caller supplied id or mints one.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.NewString()
		}
		r.Header.Set(requestIDHeader, requestID)
		w.Header().Set(requestIDHeader, requestID)
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestLog := h.log.With(zap.String("request_id", requestIDFromRequest(r)))
		writer := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		info := &requestInfo{}
		ctx := logger.WithContext(r.Context(), requestLog)
		r = r.WithContext(context.WithValue(ctx, requestInfoKey{}, info))
		next.ServeHTTP(writer, r)

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", writer.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote_ip", clientIP(r)),
		}
		if info.userID != "" {
			fields = append(fields, zap.String("user_id", info.userID))
		}
		if writer.status >= http.StatusInternalServerError {
			requestLog.Warn("request", fields...)
			return
		}
		requestLog.Info("request", fields...)
	})
}

type requestInfoKey struct{}

// requestInfo lets inner middleware report facts to the request log line.
type requestInfo struct {
	userID string
}

// trackUser runs after authentication and scopes the request logger to
// the caller.
func trackUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := auth.UserID(r.Context())
		if info, ok := r.Context().Value(requestInfoKey{}).(*requestInfo); ok {
			info.userID = userID
		}
		ctx := logger.WithContext(r.Context(), loggerFrom(r).With(zap.String("user_id", userID)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		writer := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(writer, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		h.metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(writer.status)).Inc()
		h.metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func (h *Handler) requireStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.store == nil {
			writeError(w, requestIDFromRequest(r), http.StatusServiceUnavailable, "not_configured", "data store not configured")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireLevel gates a route group on the caller's highest live role level.
func (h *Handler) requireLevel(level int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := auth.UserID(r.Context())
			if userID == "" {
				writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing identity")
				return
			}
			if !h.resolver.Snapshot(r.Context(), userID).HasMinimumLevel(level) {
				writeError(w, requestIDFromRequest(r), http.StatusForbidden, "access_denied", "insufficient role level")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requirePermission asks the role directory on every call.
func (h *Handler) requirePermission(resource, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !h.resolver.HasPermission(r.Context(), auth.UserID(r.Context()), resource, action) {
				writeError(w, requestIDFromRequest(r), http.StatusForbidden, "access_denied", "missing permission "+resource+":"+action)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// isAdmin reports whether the caller may act on records they do not own.
func (h *Handler) isAdmin(r *http.Request) bool {
	userID := auth.UserID(r.Context())
	return userID != "" && h.resolver.Snapshot(r.Context(), userID).HasMinimumLevel(store.AdminLevel)
}

func loggerFrom(r *http.Request) *zap.Logger {
	return logger.FromContext(r.Context())
}

func requestIDFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(requestIDHeader))
}
