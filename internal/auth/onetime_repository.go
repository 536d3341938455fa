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

// OneTimeTokenRepository stores single-use hash-addressed tokens for the
// password reset flow. Hash generation is the caller's responsibility -- the
// registry only stores and looks up. The lookup-then-act-then-delete
// redemption sequence is not atomic; double redemption within that window
// under concurrent requests is an accepted, documented risk.
type OneTimeTokenRepository interface {
	Create(ctx context.Context, hash, userID string) error

	// FindByHash returns the live token with its live owning user eagerly
	// loaded. Token.User is nil when the owner has since been deleted.
	// Returns apperror.NotFound for unknown or consumed hashes.
	FindByHash(ctx context.Context, hash string) (*OneTimeToken, error)

	// SoftDelete consumes the token. Idempotent.
	SoftDelete(ctx context.Context, id string) error
}

// oneTimeTokenRepository implements OneTimeTokenRepository.
type oneTimeTokenRepository struct {
	db *sql.DB
}

// NewOneTimeTokenRepository creates a registry backed by the given pool.
func NewOneTimeTokenRepository(db *sql.DB) OneTimeTokenRepository {
	return &oneTimeTokenRepository{db: db}
}

// Create inserts a new token row.
func (r *oneTimeTokenRepository) Create(ctx context.Context, hash, userID string) error {
	query := `INSERT INTO one_time_tokens (id, hash, user_id, created_at) VALUES (?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, uuid.NewString(), hash, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("inserting one-time token: %w", err)
	}
	return nil
}

// FindByHash looks up a live token by its hash. The owner is joined with a
// LEFT JOIN filtered to live users, so a token whose user was deleted still
// resolves -- with User nil -- letting the caller apply its tolerant no-op.
func (r *oneTimeTokenRepository) FindByHash(ctx context.Context, hash string) (*OneTimeToken, error) {
	query := `SELECT t.id, t.hash, t.user_id, t.created_at, t.deleted_at,
	                 u.id, u.email, u.display_name, u.password_hash, u.provider,
	                 u.social_id, u.role, u.status, u.confirm_hash, u.created_at, u.deleted_at
	          FROM one_time_tokens t
	          LEFT JOIN users u ON u.id = t.user_id AND u.deleted_at IS NULL
	          WHERE t.hash = ? AND t.deleted_at IS NULL`

	tok := &OneTimeToken{}
	var (
		userID       sql.NullString
		email        *string
		displayName  sql.NullString
		passwordHash *string
		provider     sql.NullString
		socialID     *string
		role         sql.NullString
		status       sql.NullString
		confirmHash  *string
		createdAt    sql.NullTime
		deletedAt    *time.Time
	)
	err := r.db.QueryRowContext(ctx, query, hash).Scan(
		&tok.ID,
		&tok.Hash,
		&tok.UserID,
		&tok.CreatedAt,
		&tok.DeletedAt,
		&userID,
		&email,
		&displayName,
		&passwordHash,
		&provider,
		&socialID,
		&role,
		&status,
		&confirmHash,
		&createdAt,
		&deletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("token not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying one-time token: %w", err)
	}

	if userID.Valid {
		tok.User = &User{
			ID:           userID.String,
			Email:        email,
			DisplayName:  displayName.String,
			PasswordHash: passwordHash,
			Provider:     provider.String,
			SocialID:     socialID,
			Role:         role.String,
			Status:       status.String,
			ConfirmHash:  confirmHash,
			CreatedAt:    createdAt.Time,
			DeletedAt:    deletedAt,
		}
	}

	return tok, nil
}

// SoftDelete consumes the token.
func (r *oneTimeTokenRepository) SoftDelete(ctx context.Context, id string) error {
	query := `UPDATE one_time_tokens SET deleted_at = NOW() WHERE id = ? AND deleted_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("soft-deleting one-time token: %w", err)
	}
	return nil
}
