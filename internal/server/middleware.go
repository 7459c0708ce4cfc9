package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ziadkadry99/docqa/internal/apperr"
	"github.com/ziadkadry99/docqa/internal/audit"
	"github.com/ziadkadry99/docqa/internal/auth"
	"github.com/ziadkadry99/docqa/internal/logging"
)

// requestLogger puts a request-scoped zap logger in the context and logs
// one line per request when it completes.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log := s.log.With(
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
		)
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(logging.WithContext(r.Context(), log)))

		log.Info("request",
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote", r.RemoteAddr),
		)
	})
}

// authenticate requires a valid bearer token. The token's username becomes
// the tenant and the audit actor of the request.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		scheme, token, ok := strings.Cut(header, " ")
		if header == "" || !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeError(w, r, apperr.ErrUnauthorized)
			return
		}
		claims, err := s.deps.Tokens.Parse(strings.TrimSpace(token))
		if err != nil {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeError(w, r, err)
			return
		}

		ctx := auth.WithClaims(r.Context(), claims)
		ctx = audit.WithActor(ctx, claims.Username())
		ctx = logging.With(ctx, zap.String("tenant_id", claims.Username()))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c := auth.ClaimsFrom(r.Context()); c == nil || !c.IsAdmin() {
			writeError(w, r, apperr.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// tenantOf returns the tenant of an authenticated request.
func tenantOf(r *http.Request) string {
	if c := auth.ClaimsFrom(r.Context()); c != nil {
		return c.Username()
	}
	return ""
}
