package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/keyxmakerx/gatehouse/internal/apperror"
)

// mysqlDuplicateEntry is the MariaDB error number for a unique key violation.
const mysqlDuplicateEntry = 1062

// userColumns is the scan list shared by the single-row user queries.
const userColumns = `id, email, display_name, password_hash, provider, social_id,
                     role, status, confirm_hash, created_at, deleted_at`

// UserRepository defines the data access contract for user records.
// All SQL lives in the concrete implementation -- no SQL leaks out.
//
// Find methods that feed business-rule checks (by email, by social id)
// return soft-deleted rows too, because the service must distinguish
// "unknown account" from "deleted account". FindByID filters to live rows.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindBySocial(ctx context.Context, socialID, provider string) (*User, error)
	Save(ctx context.Context, user *User) error
	UpdatePassword(ctx context.Context, userID, passwordHash string) error

	// ConfirmEmail atomically redeems a pending confirmation hash: clears it
	// and activates the user in one statement, so a hash confirms at most once.
	ConfirmEmail(ctx context.Context, hash string) error

	SoftDelete(ctx context.Context, id string) error
}

// userRepository implements UserRepository with hand-written MariaDB queries.
type userRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new user repository backed by the given DB pool.
func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

// Create inserts a new user row. A unique key violation on email or
// (social_id, provider) is reported as a Conflict, distinct from other
// failures.
func (r *userRepository) Create(ctx context.Context, user *User) error {
	query := `INSERT INTO users (id, email, display_name, password_hash, provider,
	                             social_id, role, status, confirm_hash, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.DisplayName,
		user.PasswordHash,
		user.Provider,
		user.SocialID,
		user.Role,
		user.Status,
		user.ConfirmHash,
		user.CreatedAt,
	)
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
		return apperror.NewConflict("an account with this identity already exists")
	}
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}

	return nil
}

// FindByID retrieves a live user by id.
// Returns apperror.NotFound if no live user exists with this id.
func (r *userRepository) FindByID(ctx context.Context, id string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ? AND deleted_at IS NULL`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id), "querying user by id")
}

// FindByEmail retrieves a user by email, including soft-deleted rows.
// Returns apperror.NotFound if no user exists with this email.
func (r *userRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, email), "querying user by email")
}

// FindBySocial retrieves a user by social identity, including soft-deleted
// rows. Returns apperror.NotFound if no user matches.
func (r *userRepository) FindBySocial(ctx context.Context, socialID, provider string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE social_id = ? AND provider = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, socialID, provider), "querying user by social id")
}

// Save writes the mutable user fields back to the row.
func (r *userRepository) Save(ctx context.Context, user *User) error {
	query := `UPDATE users
	          SET email = ?, display_name = ?, password_hash = ?, social_id = ?,
	              status = ?, confirm_hash = ?
	          WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		user.Email,
		user.DisplayName,
		user.PasswordHash,
		user.SocialID,
		user.Status,
		user.ConfirmHash,
		user.ID,
	)
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
		return apperror.NewConflict("an account with this identity already exists")
	}
	if err != nil {
		return fmt.Errorf("updating user: %w", err)
	}

	n, _ := result.RowsAffected()
	if n == 0 {
		// Zero rows can also mean a no-op write; re-check existence so a
		// genuinely missing user is reported correctly.
		if _, findErr := r.FindByID(ctx, user.ID); findErr != nil {
			return findErr
		}
	}
	return nil
}

// UpdatePassword sets a new password hash for a user.
func (r *userRepository) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	query := `UPDATE users SET password_hash = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, passwordHash, userID)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	return nil
}

// ConfirmEmail redeems a pending confirmation hash in one statement.
// Returns apperror.NotFound when the hash is unknown, already redeemed, or
// belongs to a deleted user -- the caller cannot tell which.
func (r *userRepository) ConfirmEmail(ctx context.Context, hash string) error {
	query := `UPDATE users SET confirm_hash = NULL, status = ?
	          WHERE confirm_hash = ? AND deleted_at IS NULL`

	result, err := r.db.ExecContext(ctx, query, StatusActive, hash)
	if err != nil {
		return fmt.Errorf("confirming email: %w", err)
	}

	n, _ := result.RowsAffected()
	if n == 0 {
		return apperror.NewNotFound("confirmation hash not found")
	}
	return nil
}

// SoftDelete stamps the deleted_at column. Idempotent: deleting an already
// deleted user is a no-op, not an error.
func (r *userRepository) SoftDelete(ctx context.Context, id string) error {
	query := `UPDATE users SET deleted_at = NOW() WHERE id = ? AND deleted_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("soft-deleting user: %w", err)
	}
	return nil
}

// scanOne scans a single user row, mapping sql.ErrNoRows to NotFound.
func (r *userRepository) scanOne(row *sql.Row, op string) (*User, error) {
	user := &User{}
	var createdAt time.Time
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.DisplayName,
		&user.PasswordHash,
		&user.Provider,
		&user.SocialID,
		&user.Role,
		&user.Status,
		&user.ConfirmHash,
		&createdAt,
		&user.DeletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	user.CreatedAt = createdAt
	return user, nil
}
