package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/netip"
	"time"

	"go.uber.org/zap"

	"fitapp.dev/internal/audit"
	"fitapp.dev/internal/auth"
	"fitapp.dev/internal/obs"
)

const serviceName = "fitapp-api"

type readinessChecker interface {
	Check(ctx context.Context) error
}

// ReadyProbe pings the database when one is configured.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer over the auth session service.
type API struct {
	mux        *http.ServeMux
	readyProbe readinessChecker
	version    string
	auth       *auth.Service
	log        *zap.Logger

	cookieSecure   bool
	allowedOrigins []string
	rateBurst      int
	ratePerSec     float64
	trustedProxies []netip.Prefix
	maxBodyBytes   int64
}

// Option configures API.
type Option func(*API)

// WithCookieSecure toggles the Secure attribute of the refresh cookie.
func WithCookieSecure(secure bool) Option {
	return func(a *API) { a.cookieSecure = secure }
}

// WithAllowedOrigins sets the browser origins allowed to send credentials.
func WithAllowedOrigins(origins []string) Option {
	return func(a *API) { a.allowedOrigins = normalizeOrigins(origins) }
}

// WithRateLimit configures the per-client token bucket on /register and /auth.
func WithRateLimit(burst int, perSecond float64) Option {
	return func(a *API) {
		if burst > 0 {
			a.rateBurst = burst
		}
		if perSecond > 0 {
			a.ratePerSec = perSecond
		}
	}
}

// WithTrustedProxies lists the proxies whose X-Forwarded-For the rate limiter
// honors. Without it the limiter keys on the connection's peer address.
func WithTrustedProxies(prefixes []netip.Prefix) Option {
	return func(a *API) { a.trustedProxies = prefixes }
}

// WithMaxBodyBytes limits request body size.
func WithMaxBodyBytes(n int64) Option {
	return func(a *API) {
		if n > 0 {
			a.maxBodyBytes = n
		}
	}
}

// WithLogger sets the request and error logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *API) {
		if l != nil {
			a.log = l
		}
	}
}

func New(rp readinessChecker, version string, svc *auth.Service, opts ...Option) *API {
	a := &API{
		mux:          http.NewServeMux(),
		readyProbe:   rp,
		version:      version,
		auth:         svc,
		log:          obs.Logger(),
		cookieSecure: true,
		rateBurst:    10,
		ratePerSec:   5,
		maxBodyBytes: 1 << 20,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.readyProbe == nil {
		a.readyProbe = ReadyProbe{}
	}

	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.HandleFunc("GET /v1/info", a.Info)
	a.mux.Handle("GET /metrics", obs.Handler())

	limiter := newRateLimiter(a.rateBurst, a.ratePerSec, a.trustedProxies...)
	a.mux.Handle("POST /register", RateLimit(http.HandlerFunc(a.handleRegister), limiter))
	a.mux.Handle("POST /auth", RateLimit(http.HandlerFunc(a.handleLogin), limiter))
	a.mux.HandleFunc("GET /refresh", a.handleRefresh)
	a.mux.HandleFunc("POST /refresh", a.handleRefresh)
	a.mux.HandleFunc("POST /logout", a.handleLogout)

	a.mux.Handle("GET /v1/me", a.verifyAccessToken(http.HandlerFunc(a.handleMe)))
	adminOnly := func(h http.HandlerFunc) http.Handler {
		return a.verifyAccessToken(requireRoles(auth.RoleAdmin)(h))
	}
	a.mux.Handle("PUT /v1/admin/users/{username}/roles", adminOnly(a.handleSetRoles))
	a.mux.Handle("DELETE /v1/admin/users/{username}/session", adminOnly(a.handleRevokeSession))

	return a
}

// Handler returns the mux wrapped in the full middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = MaxBodyBytes(h, a.maxBodyBytes)
	h = CORS(h, a.allowedOrigins)
	h = Credentials(h, a.allowedOrigins)
	h = SecurityHeaders(h)
	h = Logging(h, a.log)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		a.log.Warn("readiness check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errors.New("request body too large")
		}
		return errors.New("malformed JSON body")
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}

// writeServiceError maps auth errors onto coarse status codes. Internal
// details are logged, never returned.
func (a *API) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, auth.ErrValidation):
		writeError(w, r, http.StatusBadRequest, "invalid request")
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "forbidden")
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusConflict, "username already exists")
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "user not found")
	default:
		a.log.Error("auth operation failed",
			zap.String("op", op),
			zap.String("request_id", audit.RequestIDFromContext(r.Context())),
			zap.Error(err),
		)
		writeError(w, r, http.StatusInternalServerError, "internal server error")
	}
}
