package store

import (
	"context"
	"fmt"
	"time"

	"bookstore/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreateUserWithToken inserts a user and its first verification token atomically
func (s *Store) CreateUserWithToken(ctx context.Context, user *models.User, token *models.VerificationToken) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO users (username, email, password_hash, first_name, last_name, address, role, email_verification)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING user_id, is_blocked, created_at`

		row := tx.QueryRowxContext(ctx, query,
			user.Username, user.Email, user.PasswordHash, user.FirstName, user.LastName,
			user.Address, user.Role, user.EmailVerification)
		if err := row.Scan(&user.UserID, &user.IsBlocked, &user.CreatedAt); err != nil {
			return translate(err, "User")
		}

		token.UserID = user.UserID
		return insertToken(ctx, tx, token)
	})
}

// GetUserByID retrieves a user by ID
func (s *Store) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, "SELECT * FROM users WHERE user_id = $1", id)
	if err != nil {
		return nil, translate(err, "User")
	}
	return &user, nil
}

// GetUserByEmail retrieves a user by email
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, "SELECT * FROM users WHERE email = $1", email)
	if err != nil {
		return nil, translate(err, "User")
	}
	return &user, nil
}

// GetUserByUsername retrieves a user by username
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, "SELECT * FROM users WHERE username = $1", username)
	if err != nil {
		return nil, translate(err, "User")
	}
	return &user, nil
}

// UpdateUserProfile updates the supplied profile fields; nil fields are kept
func (s *Store) UpdateUserProfile(ctx context.Context, userID int64, firstName, lastName, address *string) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, `
		UPDATE users SET
			first_name = COALESCE($2, first_name),
			last_name  = COALESCE($3, last_name),
			address    = COALESCE($4, address)
		WHERE user_id = $1
		RETURNING *`,
		userID, firstName, lastName, address)
	if err != nil {
		return nil, translate(err, "User")
	}
	return &user, nil
}

// ListUsers returns all users, newest first
func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	users := []models.User{}
	err := s.db.SelectContext(ctx, &users, "SELECT * FROM users ORDER BY created_at DESC")
	return users, err
}

// SetUserBlocked blocks or unblocks a user
func (s *Store) SetUserBlocked(ctx context.Context, userID int64, blocked bool) error {
	res, err := s.db.ExecContext(ctx, "UPDATE users SET is_blocked = $1 WHERE user_id = $2", blocked, userID)
	if err != nil {
		return translate(err, "User")
	}
	return requireRows(res, "User")
}

// DeleteUser deletes a user. Users with orders cannot be deleted.
func (s *Store) DeleteUser(ctx context.Context, userID int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE user_id = $1", userID)
	if err != nil {
		return translate(err, "User")
	}
	return requireRows(res, "User")
}

// ReplaceToken deletes the user's tokens of the same type and stores the new one
func (s *Store) ReplaceToken(ctx context.Context, token *models.VerificationToken) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM verification_tokens WHERE user_id = $1 AND type = $2",
			token.UserID, token.Type); err != nil {
			return fmt.Errorf("failed to delete old tokens: %w", err)
		}
		return insertToken(ctx, tx, token)
	})
}

// FindValidToken returns an unexpired token matching user, type and code
func (s *Store) FindValidToken(ctx context.Context, userID int64, tokenType, code string, now time.Time) (*models.VerificationToken, error) {
	var token models.VerificationToken
	err := s.db.GetContext(ctx, &token, `
		SELECT * FROM verification_tokens
		WHERE user_id = $1 AND type = $2 AND token = $3 AND expires_at > $4
		ORDER BY expires_at DESC
		LIMIT 1`,
		userID, tokenType, code, now)
	if err != nil {
		return nil, translate(err, "Verification token")
	}
	return &token, nil
}

// MarkEmailVerified sets the user VERIFIED and consumes the token
func (s *Store) MarkEmailVerified(ctx context.Context, userID, tokenID int64) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE users SET email_verification = $1 WHERE user_id = $2",
			models.EmailVerified, userID)
		if err != nil {
			return translate(err, "User")
		}
		if err := requireRows(res, "User"); err != nil {
			return err
		}
		return deleteToken(ctx, tx, tokenID)
	})
}

// ChangePassword stores the new hash and consumes the reset token
func (s *Store) ChangePassword(ctx context.Context, userID int64, passwordHash string, tokenID int64) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE users SET password_hash = $1 WHERE user_id = $2",
			passwordHash, userID)
		if err != nil {
			return translate(err, "User")
		}
		if err := requireRows(res, "User"); err != nil {
			return err
		}
		return deleteToken(ctx, tx, tokenID)
	})
}

// DeleteStaleUnverifiedUsers removes unverified users whose every
// verification token has expired and who own no orders
func (s *Store) DeleteStaleUnverifiedUsers(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM users u
		WHERE u.email_verification = $1
		  AND EXISTS (SELECT 1 FROM verification_tokens t WHERE t.user_id = u.user_id AND t.expires_at < $2)
		  AND NOT EXISTS (SELECT 1 FROM verification_tokens t WHERE t.user_id = u.user_id AND t.expires_at >= $2)
		  AND NOT EXISTS (SELECT 1 FROM orders o WHERE o.user_id = u.user_id)`,
		models.EmailNotVerified, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete unverified users: %w", err)
	}
	return res.RowsAffected()
}

// DeleteExpiredTokens removes every expired verification token
func (s *Store) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM verification_tokens WHERE expires_at < $1", now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tokens: %w", err)
	}
	return res.RowsAffected()
}

func insertToken(ctx context.Context, tx *sqlx.Tx, token *models.VerificationToken) error {
	err := tx.GetContext(ctx, &token.ID, `
		INSERT INTO verification_tokens (token, user_id, type, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		token.Token, token.UserID, token.Type, token.ExpiresAt)
	return translate(err, "Verification token")
}

func deleteToken(ctx context.Context, tx *sqlx.Tx, tokenID int64) error {
	_, err := tx.ExecContext(ctx, "DELETE FROM verification_tokens WHERE id = $1", tokenID)
	return err
}
