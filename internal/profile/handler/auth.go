package handler

import (
	"net/http"
	"strings"

	"github.com/psyprofile/psyprofile-backend/internal/auth/jwt"
	"github.com/psyprofile/psyprofile-backend/pkg/errors"
	"github.com/psyprofile/psyprofile-backend/pkg/httputil"
	"github.com/psyprofile/psyprofile-backend/pkg/logger"
)

// RefreshHeader carries a fresh token once less than half of the current one is left
const RefreshHeader = "X-Session-Token"

// SessionAuth validates the bearer token and puts its session id in the context
func SessionAuth(tokens *jwt.Manager, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				httputil.ErrorLocalized(w, r, errors.Unauthorized("missing authorization header"))
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				httputil.ErrorLocalized(w, r, errors.Unauthorized("invalid authorization header format"))
				return
			}

			claims, err := tokens.Validate(strings.TrimSpace(parts[1]))
			if err != nil {
				log.Debug().Err(err).Str("request_id", httputil.GetRequestID(r.Context())).Msg("token validation failed")
				httputil.ErrorLocalized(w, r, err)
				return
			}

			if tokens.NeedsRefresh(claims) {
				if fresh, err := tokens.Issue(claims.SessionID); err == nil {
					w.Header().Set(RefreshHeader, fresh.Token)
				}
			}

			ctx := httputil.WithSessionID(r.Context(), claims.SessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
