package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"fitapp.dev/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// verifyAccessToken decodes the bearer token once and attaches the identity to
// the request context. A missing or malformed header is 401; a token that fails
// signature or expiry checks is 403.
func (a *API) verifyAccessToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="fitapp"`)
			writeError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}
		id, err := a.auth.Tokens().VerifyAccess(token)
		if err != nil {
			if errors.Is(err, auth.ErrConfiguration) {
				a.writeServiceError(w, r, "verify access", err)
				return
			}
			var verr *auth.VerificationError
			if errors.As(err, &verr) {
				a.log.Debug("access token rejected", zap.String("reason", string(verr.Reason)))
			}
			writeError(w, r, http.StatusForbidden, "forbidden")
			return
		}
		ctx := auth.ContextWithIdentity(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRoles admits requests whose identity holds any of the allowed roles.
// It must run behind verifyAccessToken; a request without an identity, or with
// no overlapping role, is 401.
func requireRoles(allowed ...auth.Role) func(http.Handler) http.Handler {
	allowedSet := auth.NewRoles(allowed...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := auth.IdentityFromContext(r.Context())
			if !ok || len(id.Roles) == 0 {
				writeError(w, r, http.StatusUnauthorized, "unauthorized")
				return
			}
			if !id.Roles.Intersects(allowedSet) {
				w.Header().Set("WWW-Authenticate", `Bearer error="insufficient_scope"`)
				writeError(w, r, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if len(header) < len(bearer) || !strings.EqualFold(header[:len(bearer)], bearer) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
