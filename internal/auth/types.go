package auth

import "time"

// UserRecord is the persisted credential record of one user.
type UserRecord struct {
	ID           string
	Username     string
	PasswordHash string
	Roles        Roles
	// RefreshToken is the single live refresh token, empty when no session is active.
	RefreshToken string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity is the verified caller attached to a request.
type Identity struct {
	Username string
	Roles    Roles
}

// AccessGrant is a freshly signed access token for an identity.
type AccessGrant struct {
	Identity    Identity
	AccessToken string
	ExpiresAt   time.Time
}

// Session is the result of a successful login: an access grant plus the
// refresh token now held in the user's single refresh slot.
type Session struct {
	AccessGrant
	RefreshToken     string
	RefreshExpiresAt time.Time
}
