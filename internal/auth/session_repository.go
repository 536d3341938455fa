package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/keyxmakerx/gatehouse/internal/apperror"
)

// SessionRepository is the durable record of active sessions. All deletes
// are soft (timestamped) and idempotent -- the audit trail is never erased.
// Concurrent creates for the same user are independent and both succeed;
// multiple simultaneous sessions per user are expected.
type SessionRepository interface {
	Create(ctx context.Context, userID string) (*Session, error)

	// FindWithUser returns the live session and its live owning user.
	// Returns apperror.NotFound when either has been soft-deleted or never
	// existed -- a session whose owner is gone is unusable by contract.
	FindWithUser(ctx context.Context, id string) (*Session, *User, error)

	SoftDeleteByID(ctx context.Context, id string) error
	SoftDeleteByUser(ctx context.Context, userID string) error

	// SoftDeleteByUserExcept revokes every session of the user except the
	// given one. Used when rotating credentials without logging out the
	// current device.
	SoftDeleteByUserExcept(ctx context.Context, userID, keepID string) error
}

// sessionRepository implements SessionRepository with hand-written queries.
type sessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a session repository backed by the given pool.
func NewSessionRepository(db *sql.DB) SessionRepository {
	return &sessionRepository{db: db}
}

// Create inserts a new session row for the user.
func (r *sessionRepository) Create(ctx context.Context, userID string) (*Session, error) {
	session := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}

	query := `INSERT INTO sessions (id, user_id, created_at) VALUES (?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, session.ID, session.UserID, session.CreatedAt); err != nil {
		return nil, fmt.Errorf("inserting session: %w", err)
	}

	return session, nil
}

// FindWithUser joins the session with its owner, filtering both to live rows.
func (r *sessionRepository) FindWithUser(ctx context.Context, id string) (*Session, *User, error) {
	query := `SELECT s.id, s.user_id, s.created_at, s.deleted_at,
	                 u.id, u.email, u.display_name, u.password_hash, u.provider,
	                 u.social_id, u.role, u.status, u.confirm_hash, u.created_at, u.deleted_at
	          FROM sessions s
	          JOIN users u ON u.id = s.user_id AND u.deleted_at IS NULL
	          WHERE s.id = ? AND s.deleted_at IS NULL`

	session := &Session{}
	user := &User{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&session.ID,
		&session.UserID,
		&session.CreatedAt,
		&session.DeletedAt,
		&user.ID,
		&user.Email,
		&user.DisplayName,
		&user.PasswordHash,
		&user.Provider,
		&user.SocialID,
		&user.Role,
		&user.Status,
		&user.ConfirmHash,
		&user.CreatedAt,
		&user.DeletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, apperror.NewNotFound("session not found")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("querying session with user: %w", err)
	}

	return session, user, nil
}

// SoftDeleteByID revokes a single session. Idempotent.
func (r *sessionRepository) SoftDeleteByID(ctx context.Context, id string) error {
	query := `UPDATE sessions SET deleted_at = NOW() WHERE id = ? AND deleted_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("soft-deleting session: %w", err)
	}
	return nil
}

// SoftDeleteByUser revokes every live session of the user.
func (r *sessionRepository) SoftDeleteByUser(ctx context.Context, userID string) error {
	query := `UPDATE sessions SET deleted_at = NOW() WHERE user_id = ? AND deleted_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("soft-deleting user sessions: %w", err)
	}
	return nil
}

// SoftDeleteByUserExcept revokes every live session of the user except keepID.
func (r *sessionRepository) SoftDeleteByUserExcept(ctx context.Context, userID, keepID string) error {
	query := `UPDATE sessions SET deleted_at = NOW()
	          WHERE user_id = ? AND id != ? AND deleted_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, userID, keepID); err != nil {
		return fmt.Errorf("soft-deleting other user sessions: %w", err)
	}
	return nil
}
