package httptransport

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stridewear/shoestore/internal/domain/identity"
	"github.com/stridewear/shoestore/internal/pkg/logging"
	"go.uber.org/zap"
)

const (
	headerUserID = "X-User-ID"
	headerRole   = "X-User-Role"
)

// actorFromRequest reads the pre-validated identity injected by the upstream
// auth layer. The core never sees raw credentials.
func actorFromRequest(r *http.Request) identity.Actor {
	role := identity.Role(r.Header.Get(headerRole))
	if role != identity.RoleAdmin {
		role = identity.RoleCustomer
	}
	return identity.Actor{
		UserID: r.Header.Get(headerUserID),
		Role:   role,
	}
}

// requireUser rejects requests without a resolved user identity.
func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(headerUserID) == "" {
			writeError(w, http.StatusUnauthorized, "user identity required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAdmin guards the staff-only subtree.
func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actorFromRequest(r).Role != identity.RoleAdmin {
			writeError(w, http.StatusForbidden, identity.ErrForbidden.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger binds a request-scoped logger into the context.
func requestLogger(base *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := base.With(
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("user_id", r.Header.Get(headerUserID)),
			)
			next.ServeHTTP(w, r.WithContext(logging.ContextWithLogger(r.Context(), logger)))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// httpMetrics records request counts and latency per route pattern.
func httpMetrics(requests *prometheus.CounterVec, durations *prometheus.HistogramVec) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(rec, r)

			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = "unmatched"
			}
			requests.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
			durations.WithLabelValues(route).Observe(time.Since(start).Seconds())
		})
	}
}
