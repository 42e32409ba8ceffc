package server

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	liberrors "github.com/hyperjump/libris/internal/errors"
)

type ownerKey struct{}

// ownerFrom returns the owner id set by requireOwner.
func ownerFrom(ctx context.Context) string {
	id, _ := ctx.Value(ownerKey{}).(string)
	return id
}

// requireOwner rejects requests without the configured owner header.
func (s *Server) requireOwner(next http.Handler) http.Handler {
	header := s.config.Auth.OwnerHeader
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := strings.TrimSpace(r.Header.Get(header))
		if owner == "" {
			s.respondError(w, liberrors.Unauthorized("missing "+header+" header"))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ownerKey{}, owner)))
	})
}

// rateLimit applies the per-owner token bucket. It must run after requireOwner.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil {
			owner := ownerFrom(r.Context())
			if !s.limiter.Allow(owner) {
				s.logger.Info("upload rate limited", zap.String("owner", owner))
				w.Header().Set("Retry-After", "1")
				s.respondError(w, liberrors.ErrRateLimited.WithDetails(map[string]string{"owner": owner}))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
