package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// CreateUser inserts an active user. A second active user with the same
// email (case-insensitive) fails with ErrEmailTaken.
func (s *PostgresStore) CreateUser(ctx context.Context, user User) (User, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (id, username, email, password_hash, active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, user.ID, user.Username, user.Email, user.PasswordHash, user.Active).Scan(&user.CreatedAt)
	if err != nil {
		if constraint, ok := pgViolation(err, sqlStateUniqueViolation); ok && constraint == constraintActiveEmail {
			return User{}, ErrEmailTaken
		}
		return User{}, storageError("insert user", err)
	}
	return user, nil
}

// ActiveUserByEmail returns nil when no active user has the email.
func (s *PostgresStore) ActiveUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.scanUser(ctx, "get user by email", `
		SELECT id, username, email, password_hash, active, created_at
		FROM users
		WHERE LOWER(email) = LOWER($1) AND active
	`, email)
}

// UserByID returns nil when the user does not exist.
func (s *PostgresStore) UserByID(ctx context.Context, id string) (*User, error) {
	return s.scanUser(ctx, "get user", `
		SELECT id, username, email, password_hash, active, created_at
		FROM users
		WHERE id = $1
	`, id)
}

func (s *PostgresStore) scanUser(ctx context.Context, op, query string, arg any) (*User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.Active, &user.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageError(op, err)
	}
	return &user, nil
}

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET expires_at = EXCLUDED.expires_at
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return storageError("save refresh session", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM refresh_sessions
		WHERE token_hash = $1 AND expires_at > NOW()
	`, tokenHash).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrSessionNotFound
	}
	if err != nil {
		return "", storageError("lookup refresh session", err)
	}
	return userID, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM refresh_sessions WHERE token_hash = $1`, tokenHash); err != nil {
		return storageError("revoke refresh session", err)
	}
	return nil
}

// PurgeExpiredSessions removes refresh sessions past their expiry.
func (s *PostgresStore) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM refresh_sessions WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, storageError("purge refresh sessions", err)
	}
	return result.RowsAffected()
}
