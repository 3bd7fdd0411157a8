package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bdobrica/spaces/common/trace"
	"github.com/bdobrica/spaces/internal/spaces/store"
)

type userKey struct{}

// userFrom returns the authenticated user stashed by requireAuth.
func userFrom(ctx context.Context) *store.User {
	u, _ := ctx.Value(userKey{}).(*store.User)
	return u
}

// withTrace assigns every request a trace ID and logs the round trip.
func withTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Trace-Id")
		if id == "" {
			id = trace.GenerateID()
		}
		ctx := trace.WithTraceID(r.Context(), id)
		w.Header().Set("X-Trace-Id", id)

		start := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))
		slog.Debug("request handled",
			"method", r.Method, "path", r.URL.Path,
			"trace_id", id, "duration", time.Since(start))
	})
}

// requireAuth resolves the bearer token to a user and stashes it in the
// request context. Unknown tokens get 401 without detail.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		user, err := s.store.GetUserByToken(r.Context(), token)
		if err == store.ErrNotFound {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		if err != nil {
			slog.Error("token lookup failed", "err", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, user)))
	})
}

// requireAdmin gates admin routes. Runs after requireAuth.
func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := userFrom(r.Context())
		if user == nil || !user.IsAdmin {
			writeError(w, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}
