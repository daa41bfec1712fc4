package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"fitapp.dev/internal/obs"
)

// Service orchestrates registration, login, refresh and logout on top of a
// CredentialStore and a TokenIssuer.
//
// Each user has a single refresh slot. Login overwrites it, so concurrent
// logins for the same user race and the last write wins; earlier refresh
// tokens then fail the slot lookup in Refresh.
type Service struct {
	store  CredentialStore
	tokens *TokenIssuer
	log    *zap.Logger
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithLogger sets the logger used for diagnostics.
func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// NewService constructs Service with optional configuration.
func NewService(store CredentialStore, tokens *TokenIssuer, opts ...ServiceOption) *Service {
	s := &Service{
		store:  store,
		tokens: tokens,
		log:    obs.Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tokens exposes the issuer so the authorization gate verifies with the same secrets.
func (s *Service) Tokens() *TokenIssuer { return s.tokens }

// Register creates a user with the default role.
func (s *Service) Register(ctx context.Context, username, password string) (rec UserRecord, err error) {
	defer func() { obs.AuthOperation("register", Outcome(err)) }()
	return s.CreateUser(ctx, username, password, NewRoles(DefaultRole))
}

// CreateUser creates a user holding roles in a single store write.
func (s *Service) CreateUser(ctx context.Context, username, password string, roles Roles) (UserRecord, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return UserRecord{}, fmt.Errorf("%w: username and password are required", ErrValidation)
	}
	if len(roles) == 0 {
		return UserRecord{}, fmt.Errorf("%w: at least one role is required", ErrValidation)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return UserRecord{}, err
	}
	return s.store.Create(ctx, username, hash, NewRoles(roles...))
}

// Login verifies credentials and issues a new session. An unknown username and
// a wrong password both yield ErrUnauthorized.
func (s *Service) Login(ctx context.Context, username, password string) (sess Session, err error) {
	defer func() { obs.AuthOperation("login", Outcome(err)) }()

	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return Session{}, fmt.Errorf("%w: username and password are required", ErrValidation)
	}
	user, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Session{}, ErrUnauthorized
		}
		return Session{}, err
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return Session{}, ErrUnauthorized
	}
	if !s.tokens.Configured() {
		return Session{}, ErrMissingSecret
	}

	id := Identity{Username: user.Username, Roles: user.Roles}
	access, accessExp, err := s.tokens.SignAccess(id)
	if err != nil {
		return Session{}, err
	}
	refresh, refreshExp, err := s.tokens.SignRefresh(id)
	if err != nil {
		return Session{}, err
	}
	if _, err := s.store.SetRefreshToken(ctx, user.Username, &refresh); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return Session{}, ErrUnauthorized
		case errors.Is(err, ErrConflict):
			// refresh tokens are unique per slot; a collision is a store fault
			return Session{}, fmt.Errorf("%w: set refresh token: token already in use", ErrStore)
		}
		return Session{}, err
	}

	return Session{
		AccessGrant: AccessGrant{
			Identity:    id,
			AccessToken: access,
			ExpiresAt:   accessExp,
		},
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// Refresh issues a new access token for a presented refresh token. The token
// must match a stored refresh slot, verify with the refresh secret, and name
// the same user as the slot owner. Roles are re-read from the store. The
// refresh token itself is not rotated.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (grant AccessGrant, err error) {
	defer func() { obs.AuthOperation("refresh", Outcome(err)) }()

	if refreshToken == "" {
		return AccessGrant{}, ErrUnauthorized
	}
	user, err := s.store.FindByRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return AccessGrant{}, ErrForbidden
		}
		return AccessGrant{}, err
	}
	if !s.tokens.Configured() {
		return AccessGrant{}, ErrMissingSecret
	}
	username, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		var verr *VerificationError
		if errors.As(err, &verr) {
			s.log.Debug("refresh token rejected", zap.String("username", user.Username), zap.String("reason", string(verr.Reason)))
			return AccessGrant{}, fmt.Errorf("%w: %w", ErrForbidden, err)
		}
		return AccessGrant{}, err
	}
	if username != user.Username {
		s.log.Warn("refresh token subject does not match slot owner", zap.String("username", user.Username))
		return AccessGrant{}, ErrForbidden
	}

	id := Identity{Username: user.Username, Roles: user.Roles}
	access, exp, err := s.tokens.SignAccess(id)
	if err != nil {
		return AccessGrant{}, err
	}
	return AccessGrant{Identity: id, AccessToken: access, ExpiresAt: exp}, nil
}

// Logout clears the refresh slot holding refreshToken. It reports whether a
// slot was cleared; an unknown, empty or superseded token is not an error.
func (s *Service) Logout(ctx context.Context, refreshToken string) (cleared bool, err error) {
	defer func() {
		outcome := Outcome(err)
		if err == nil && !cleared {
			outcome = "noop"
		}
		obs.AuthOperation("logout", outcome)
	}()

	if refreshToken == "" {
		return false, nil
	}
	if _, err := s.store.ClearRefreshToken(ctx, refreshToken); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// SetRoles replaces a user's roles. Tokens already issued keep their role
// snapshot until the next refresh.
func (s *Service) SetRoles(ctx context.Context, username string, roles Roles) (UserRecord, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return UserRecord{}, fmt.Errorf("%w: username is required", ErrValidation)
	}
	if len(roles) == 0 {
		return UserRecord{}, fmt.Errorf("%w: at least one role is required", ErrValidation)
	}
	return s.store.SetRoles(ctx, username, NewRoles(roles...))
}

// RevokeSession clears a user's refresh slot regardless of which token is held.
func (s *Service) RevokeSession(ctx context.Context, username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("%w: username is required", ErrValidation)
	}
	_, err := s.store.SetRefreshToken(ctx, username, nil)
	return err
}

// Outcome names an operation result for metrics and audit records.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConfiguration):
		return "config_error"
	default:
		return "error"
	}
}
