package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultIssuer     = "fitapp"
	defaultAccessTTL  = 30 * time.Second
	defaultRefreshTTL = 24 * time.Hour
)

// UserInfo is the identity payload embedded in access tokens.
type UserInfo struct {
	Username string `json:"username"`
	Roles    []int  `json:"roles"`
}

// AccessClaims are the claims of a short-lived access token.
type AccessClaims struct {
	UserInfo UserInfo `json:"userInfo"`
	jwt.RegisteredClaims
}

// RefreshClaims are the claims of a long-lived refresh token. Roles are
// deliberately absent: they are re-read from the store on every refresh.
type RefreshClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// FailureReason distinguishes verification failures for diagnostics.
type FailureReason string

const (
	ReasonMalformed FailureReason = "malformed"
	ReasonExpired   FailureReason = "expired"
)

// VerificationError is returned by the Verify methods. Callers treat every
// reason the same way; the reason only feeds logs and metrics.
type VerificationError struct {
	Reason FailureReason
	Err    error
}

func (e *VerificationError) Error() string {
	if e.Err == nil {
		return "token " + string(e.Reason)
	}
	return fmt.Sprintf("token %s: %v", e.Reason, e.Err)
}

func (e *VerificationError) Unwrap() error { return e.Err }

func (e *VerificationError) Is(target error) bool {
	switch target {
	case ErrTokenInvalid:
		return true
	case ErrTokenExpired:
		return e.Reason == ReasonExpired
	}
	return false
}

// TokenIssuer signs and verifies access and refresh tokens with two
// independent HS256 secrets.
type TokenIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
	now           func() time.Time
}

// IssuerOption configures TokenIssuer behavior.
type IssuerOption func(*TokenIssuer)

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) IssuerOption {
	return func(i *TokenIssuer) {
		if ttl > 0 {
			i.accessTTL = ttl
		}
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) IssuerOption {
	return func(i *TokenIssuer) {
		if ttl > 0 {
			i.refreshTTL = ttl
		}
	}
}

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) IssuerOption {
	return func(i *TokenIssuer) {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			i.issuer = issuer
		}
	}
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) IssuerOption {
	return func(i *TokenIssuer) {
		if fn != nil {
			i.now = fn
		}
	}
}

// NewTokenIssuer builds an issuer. Empty secrets are accepted here and
// reported as ErrMissingSecret on use.
func NewTokenIssuer(accessSecret, refreshSecret string, opts ...IssuerOption) *TokenIssuer {
	i := &TokenIssuer{
		accessSecret:  []byte(strings.TrimSpace(accessSecret)),
		refreshSecret: []byte(strings.TrimSpace(refreshSecret)),
		accessTTL:     defaultAccessTTL,
		refreshTTL:    defaultRefreshTTL,
		issuer:        defaultIssuer,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *TokenIssuer) AccessTTL() time.Duration  { return i.accessTTL }
func (i *TokenIssuer) RefreshTTL() time.Duration { return i.refreshTTL }

// Configured reports whether both secrets are present.
func (i *TokenIssuer) Configured() bool {
	return len(i.accessSecret) > 0 && len(i.refreshSecret) > 0
}

// SignAccess issues an access token carrying username and a role snapshot.
func (i *TokenIssuer) SignAccess(id Identity) (string, time.Time, error) {
	if len(i.accessSecret) == 0 {
		return "", time.Time{}, ErrMissingSecret
	}
	if strings.TrimSpace(id.Username) == "" {
		return "", time.Time{}, fmt.Errorf("%w: username is required", ErrValidation)
	}
	now := i.now()
	claims := AccessClaims{
		UserInfo:         UserInfo{Username: id.Username, Roles: NewRoles(id.Roles...).Codes()},
		RegisteredClaims: i.registered(id.Username, now, i.accessTTL),
	}
	return i.sign(claims, i.accessSecret, claims.ExpiresAt.Time)
}

// SignRefresh issues a refresh token carrying the username only.
func (i *TokenIssuer) SignRefresh(id Identity) (string, time.Time, error) {
	if len(i.refreshSecret) == 0 {
		return "", time.Time{}, ErrMissingSecret
	}
	if strings.TrimSpace(id.Username) == "" {
		return "", time.Time{}, fmt.Errorf("%w: username is required", ErrValidation)
	}
	now := i.now()
	claims := RefreshClaims{
		Username:         id.Username,
		RegisteredClaims: i.registered(id.Username, now, i.refreshTTL),
	}
	return i.sign(claims, i.refreshSecret, claims.ExpiresAt.Time)
}

// VerifyAccess checks signature and expiry of an access token with the access secret.
func (i *TokenIssuer) VerifyAccess(token string) (Identity, error) {
	if len(i.accessSecret) == 0 {
		return Identity{}, ErrMissingSecret
	}
	claims := &AccessClaims{}
	if err := i.parse(token, claims, i.accessSecret); err != nil {
		return Identity{}, err
	}
	if strings.TrimSpace(claims.UserInfo.Username) == "" {
		return Identity{}, &VerificationError{Reason: ReasonMalformed, Err: errors.New("username missing")}
	}
	roles, err := RolesFromCodes(claims.UserInfo.Roles)
	if err != nil {
		return Identity{}, &VerificationError{Reason: ReasonMalformed, Err: err}
	}
	return Identity{Username: claims.UserInfo.Username, Roles: roles}, nil
}

// VerifyRefresh checks signature and expiry of a refresh token with the refresh
// secret and returns the embedded username.
func (i *TokenIssuer) VerifyRefresh(token string) (string, error) {
	if len(i.refreshSecret) == 0 {
		return "", ErrMissingSecret
	}
	claims := &RefreshClaims{}
	if err := i.parse(token, claims, i.refreshSecret); err != nil {
		return "", err
	}
	if strings.TrimSpace(claims.Username) == "" {
		return "", &VerificationError{Reason: ReasonMalformed, Err: errors.New("username missing")}
	}
	return claims.Username, nil
}

func (i *TokenIssuer) registered(subject string, now time.Time, ttl time.Duration) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    i.issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	}
}

func (i *TokenIssuer) sign(claims jwt.Claims, secret []byte, exp time.Time) (string, time.Time, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

func (i *TokenIssuer) parse(token string, claims jwt.Claims, secret []byte) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return &VerificationError{Reason: ReasonMalformed, Err: errors.New("empty token")}
	}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return &VerificationError{Reason: ReasonExpired, Err: err}
		}
		return &VerificationError{Reason: ReasonMalformed, Err: err}
	}
	return nil
}
