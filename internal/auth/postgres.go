package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"fitapp.dev/internal/ids"
)

var _ CredentialStore = (*PGStore)(nil)

const pgUniqueViolation = "23505"

const userColumns = `id, username, password_hash, roles, coalesce(refresh_token, ''), created_at, updated_at`

// PGStore implements CredentialStore using PostgreSQL. The users table carries a
// unique index on refresh_token, so token lookups are indexed and unambiguous.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PGStore) FindByUsername(ctx context.Context, username string) (UserRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where username=$1`, username)
	u, err := scanUser(row)
	if err != nil {
		return UserRecord{}, classify("find by username", err)
	}
	return u, nil
}

func (s *PGStore) FindByRefreshToken(ctx context.Context, token string) (UserRecord, error) {
	if token == "" {
		return UserRecord{}, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where refresh_token=$1`, token)
	u, err := scanUser(row)
	if err != nil {
		return UserRecord{}, classify("find by refresh token", err)
	}
	return u, nil
}

func (s *PGStore) Create(ctx context.Context, username, passwordHash string, roles Roles) (UserRecord, error) {
	if len(roles) == 0 {
		return UserRecord{}, fmt.Errorf("%w: roles are required", ErrValidation)
	}
	rolesJSON, err := json.Marshal(NewRoles(roles...).Codes())
	if err != nil {
		return UserRecord{}, err
	}
	row := s.db.QueryRowContext(ctx,
		`insert into users(id, username, password_hash, roles) values($1,$2,$3,$4)
		 on conflict (username) do nothing
		 returning `+userColumns,
		ids.New(), username, passwordHash, rolesJSON,
	)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return UserRecord{}, ErrConflict
		}
		return UserRecord{}, classify("create", err)
	}
	return u, nil
}

func (s *PGStore) SetRefreshToken(ctx context.Context, username string, token *string) (UserRecord, error) {
	var value sql.NullString
	if token != nil && *token != "" {
		value = sql.NullString{String: *token, Valid: true}
	}
	row := s.db.QueryRowContext(ctx,
		`update users set refresh_token=$2, updated_at=now() where username=$1 returning `+userColumns,
		username, value,
	)
	u, err := scanUser(row)
	if err != nil {
		return UserRecord{}, classify("set refresh token", err)
	}
	return u, nil
}

func (s *PGStore) ClearRefreshToken(ctx context.Context, token string) (UserRecord, error) {
	if token == "" {
		return UserRecord{}, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx,
		`update users set refresh_token=null, updated_at=now() where refresh_token=$1 returning `+userColumns,
		token,
	)
	u, err := scanUser(row)
	if err != nil {
		return UserRecord{}, classify("clear refresh token", err)
	}
	return u, nil
}

func (s *PGStore) SetRoles(ctx context.Context, username string, roles Roles) (UserRecord, error) {
	if len(roles) == 0 {
		return UserRecord{}, fmt.Errorf("%w: roles are required", ErrValidation)
	}
	rolesJSON, err := json.Marshal(NewRoles(roles...).Codes())
	if err != nil {
		return UserRecord{}, err
	}
	row := s.db.QueryRowContext(ctx,
		`update users set roles=$2, updated_at=now() where username=$1 returning `+userColumns,
		username, rolesJSON,
	)
	u, err := scanUser(row)
	if err != nil {
		return UserRecord{}, classify("set roles", err)
	}
	return u, nil
}

func scanUser(row rowScanner) (UserRecord, error) {
	var (
		u        UserRecord
		rolesRaw []byte
	)
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &rolesRaw, &u.RefreshToken, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return UserRecord{}, err
	}
	var codes []int
	if err := json.Unmarshal(rolesRaw, &codes); err != nil {
		return UserRecord{}, fmt.Errorf("decode roles: %w", err)
	}
	roles, err := RolesFromCodes(codes)
	if err != nil {
		return UserRecord{}, fmt.Errorf("decode roles: %w", err)
	}
	u.Roles = roles
	return u, nil
}

func classify(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrConflict
	}
	return storeError(op, err)
}
