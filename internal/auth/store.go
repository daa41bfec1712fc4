package auth

import "context"

// CredentialStore persists user credential records.
//
// Every mutation touches exactly one record and is last-write-wins; the store's
// own per-row atomicity linearizes concurrent updates for the same username.
type CredentialStore interface {
	// FindByUsername returns ErrNotFound when no such user exists.
	FindByUsername(ctx context.Context, username string) (UserRecord, error)
	// FindByRefreshToken looks a record up by its current refresh token.
	// An empty token never matches.
	FindByRefreshToken(ctx context.Context, token string) (UserRecord, error)
	// Create fails with ErrConflict if the username is taken.
	Create(ctx context.Context, username, passwordHash string, roles Roles) (UserRecord, error)
	// SetRefreshToken overwrites the refresh slot; nil clears it.
	SetRefreshToken(ctx context.Context, username string, token *string) (UserRecord, error)
	// ClearRefreshToken empties the slot only while it still holds token, so a
	// superseded token cannot clear a newer session. ErrNotFound otherwise.
	ClearRefreshToken(ctx context.Context, token string) (UserRecord, error)
	// SetRoles replaces the role set. Empty sets are rejected.
	SetRoles(ctx context.Context, username string, roles Roles) (UserRecord, error)
}
