package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/cliniq-dev/cliniq/shared/domain"
	internal_errors "github.com/cliniq-dev/cliniq/shared/errors"
)

const userColumns = `id, email, password_hash, role,
	first_name, last_name, phone, license_number, specialization,
	failed_login_count, lock_until, two_factor_enabled, email_verified, is_active,
	verification_token_hash, verification_expires,
	reset_token_hash, reset_expires,
	last_login, last_password_change, created_by, created_at`

// =========================================================================
// Public Methods (satisfy the service.AuthStorage interface)
// =========================================================================

// SaveUser inserts a new user record. A duplicate of the normalized email
// surfaces as 409.
func (s *Storage) SaveUser(user domain.User) (domain.UserId, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var id domain.UserId
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		id, err = s.saveUser(tx, user)
		return err
	})
	return id, err
}

// UserByEmail is a read-only lookup on the connection pool.
func (s *Storage) UserByEmail(email domain.Email) (domain.User, error) {
	return s.scanUser(s.db.QueryRow(
		"SELECT "+userColumns+" FROM users WHERE email = $1", email))
}

func (s *Storage) UserById(id domain.UserId) (domain.User, error) {
	return s.scanUser(s.db.QueryRow(
		"SELECT "+userColumns+" FROM users WHERE id = $1", id))
}

// UserByVerificationHash looks up the user holding a pending email
// verification. Callers still re-compare the hash in constant time.
func (s *Storage) UserByVerificationHash(tokenHash string) (domain.User, error) {
	return s.scanUser(s.db.QueryRow(
		"SELECT "+userColumns+" FROM users WHERE verification_token_hash = $1", tokenHash))
}

func (s *Storage) UserByResetHash(tokenHash string) (domain.User, error) {
	return s.scanUser(s.db.QueryRow(
		"SELECT "+userColumns+" FROM users WHERE reset_token_hash = $1", tokenHash))
}

// UpdateLoginState persists the lockout counters and last_login in one write.
// Called on every password check, pass or fail.
func (s *Storage) UpdateLoginState(id domain.UserId, failedCount int, lockUntil, lastLogin *time.Time) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.updateLoginState(tx, id, failedCount, lockUntil, lastLogin)
	})
}

// SetVerificationToken overwrites any pending verification token, so only
// the newest emailed link works.
func (s *Storage) SetVerificationToken(id domain.UserId, tokenHash string, expires time.Time) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.setVerificationToken(tx, id, tokenHash, expires)
	})
}

// MarkEmailVerified flips the flag and clears the token so it can't be replayed.
func (s *Storage) MarkEmailVerified(id domain.UserId) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.markEmailVerified(tx, id)
	})
}

func (s *Storage) SetResetToken(id domain.UserId, tokenHash string, expires time.Time) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.setResetToken(tx, id, tokenHash, expires)
	})
}

// UpdatePassword replaces the password hash and clears the reset token in
// the same transaction.
func (s *Storage) UpdatePassword(id domain.UserId, passHash string, changedAt time.Time) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.updatePassword(tx, id, passHash, changedAt)
	})
}

// =========================================================================
// Internal Methods (Core Database Logic)
// These methods accept a Querier and are transaction-agnostic.
// =========================================================================

func (s *Storage) saveUser(q Querier, user domain.User) (domain.UserId, error) {
	var id domain.UserId
	err := q.QueryRow(`
		INSERT INTO users(
			email, password_hash, role,
			first_name, last_name, phone, license_number, specialization,
			two_factor_enabled, email_verified, is_active,
			verification_token_hash, verification_expires, created_by)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id`,
		user.Email, user.PassHash, user.Role,
		user.FirstName, user.LastName, user.Phone, user.LicenseNumber, user.Specialization,
		user.TwoFactorEnabled, user.EmailVerified, user.IsActive,
		nullString(user.VerificationTokenHash), user.VerificationExpires, user.CreatedBy,
	).Scan(&id)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" { // unique_violation
			return -1, internal_errors.Conflict("User with this email already exists")
		}
		return -1, fmt.Errorf("failed to insert user: %w", err)
	}
	return id, nil
}

func (s *Storage) scanUser(row *sql.Row) (domain.User, error) {
	var user domain.User
	var verificationHash, resetHash sql.NullString
	err := row.Scan(
		&user.Id, &user.Email, &user.PassHash, &user.Role,
		&user.FirstName, &user.LastName, &user.Phone, &user.LicenseNumber, &user.Specialization,
		&user.FailedLoginCount, &user.LockUntil, &user.TwoFactorEnabled, &user.EmailVerified, &user.IsActive,
		&verificationHash, &user.VerificationExpires,
		&resetHash, &user.ResetExpires,
		&user.LastLogin, &user.LastPasswordChange, &user.CreatedBy, &user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, internal_errors.NotFound("User not found")
		}
		return domain.User{}, fmt.Errorf("failed to query user: %w", err)
	}
	user.VerificationTokenHash = verificationHash.String
	user.ResetTokenHash = resetHash.String
	return user, nil
}

func (s *Storage) updateLoginState(q Querier, id domain.UserId, failedCount int, lockUntil, lastLogin *time.Time) error {
	result, err := q.Exec(`
		UPDATE users
		SET failed_login_count = $1, lock_until = $2, last_login = COALESCE($3, last_login)
		WHERE id = $4`,
		failedCount, lockUntil, lastLogin, id)
	if err != nil {
		return fmt.Errorf("failed to update login state: %w", err)
	}
	return requireRow(result, "login state update")
}

func (s *Storage) setVerificationToken(q Querier, id domain.UserId, tokenHash string, expires time.Time) error {
	result, err := q.Exec(`
		UPDATE users SET verification_token_hash = $1, verification_expires = $2 WHERE id = $3`,
		tokenHash, expires, id)
	if err != nil {
		return fmt.Errorf("failed to set verification token: %w", err)
	}
	return requireRow(result, "verification token update")
}

func (s *Storage) markEmailVerified(q Querier, id domain.UserId) error {
	result, err := q.Exec(`
		UPDATE users
		SET email_verified = true, verification_token_hash = NULL, verification_expires = NULL
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to mark email verified: %w", err)
	}
	return requireRow(result, "email verification")
}

func (s *Storage) setResetToken(q Querier, id domain.UserId, tokenHash string, expires time.Time) error {
	result, err := q.Exec(`
		UPDATE users SET reset_token_hash = $1, reset_expires = $2 WHERE id = $3`,
		tokenHash, expires, id)
	if err != nil {
		return fmt.Errorf("failed to set reset token: %w", err)
	}
	return requireRow(result, "reset token update")
}

func (s *Storage) updatePassword(q Querier, id domain.UserId, passHash string, changedAt time.Time) error {
	result, err := q.Exec(`
		UPDATE users
		SET password_hash = $1, last_password_change = $2,
		    reset_token_hash = NULL, reset_expires = NULL
		WHERE id = $3`,
		passHash, changedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return requireRow(result, "password update")
}

func requireRow(result sql.Result, op string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows for %s: %w", op, err)
	}
	if rowsAffected == 0 {
		return internal_errors.NotFound("User not found")
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
