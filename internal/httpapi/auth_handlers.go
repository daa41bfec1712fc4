package httpapi

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"fitapp.dev/internal/audit"
)

// refreshCookieName carries the refresh token; the access token is only ever
// returned in response bodies.
const refreshCookieName = "jwt"

// credentialsRequest accepts both the current field names and the legacy
// user/pwd pair.
type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	User     string `json:"user"`
	Pwd      string `json:"pwd"`
}

func (c credentialsRequest) credentials() (string, string) {
	username, password := c.Username, c.Password
	if username == "" {
		username = c.User
	}
	if password == "" {
		password = c.Pwd
	}
	return username, password
}

type userResponse struct {
	Username string `json:"username"`
	Roles    []int  `json:"roles"`
}

type accessTokenResponse struct {
	AccessToken string    `json:"accessToken"`
	Roles       []int     `json:"roles"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	username, password := req.credentials()
	rec, err := a.auth.Register(r.Context(), username, password)
	audit.Result(r.Context(), "auth.register", err, zap.String("username", username))
	if err != nil {
		a.writeServiceError(w, r, "register", err)
		return
	}
	writeJSON(w, http.StatusCreated, userResponse{
		Username: rec.Username,
		Roles:    rec.Roles.Codes(),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	username, password := req.credentials()
	sess, err := a.auth.Login(r.Context(), username, password)
	audit.Result(r.Context(), "auth.login", err, zap.String("username", username))
	if err != nil {
		a.writeServiceError(w, r, "login", err)
		return
	}
	a.setRefreshCookie(w, sess.RefreshToken, sess.RefreshExpiresAt)
	writeJSON(w, http.StatusOK, accessTokenResponse{
		AccessToken: sess.AccessToken,
		Roles:       sess.Identity.Roles.Codes(),
		ExpiresAt:   sess.ExpiresAt,
	})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	token := refreshCookie(r)
	if token == "" {
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	grant, err := a.auth.Refresh(r.Context(), token)
	audit.Result(r.Context(), "auth.refresh", err, zap.String("username", grant.Identity.Username))
	if err != nil {
		a.writeServiceError(w, r, "refresh", err)
		return
	}
	writeJSON(w, http.StatusOK, accessTokenResponse{
		AccessToken: grant.AccessToken,
		Roles:       grant.Identity.Roles.Codes(),
		ExpiresAt:   grant.ExpiresAt,
	})
}

// handleLogout always clears the cookie. It answers 204 unless the store fails.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := refreshCookie(r)
	if token == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	cleared, err := a.auth.Logout(r.Context(), token)
	audit.Result(r.Context(), "auth.logout", err, zap.Bool("cleared", cleared))
	a.clearRefreshCookie(w)
	if err != nil {
		a.writeServiceError(w, r, "logout", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func refreshCookie(r *http.Request) string {
	c, err := r.Cookie(refreshCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// sameSite is None for cross-site clients. Browsers drop SameSite=None cookies
// without Secure, so insecure (local) deployments fall back to Lax.
func (a *API) sameSite() http.SameSite {
	if a.cookieSecure {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

func (a *API) setRefreshCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   int(a.auth.Tokens().RefreshTTL().Seconds()),
		HttpOnly: true,
		Secure:   a.cookieSecure,
		SameSite: a.sameSite(),
	})
}

func (a *API) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.cookieSecure,
		SameSite: a.sameSite(),
	})
}
