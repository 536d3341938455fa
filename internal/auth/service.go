package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/keyxmakerx/gatehouse/internal/apperror"
	"github.com/keyxmakerx/gatehouse/internal/mailer"
	"github.com/keyxmakerx/gatehouse/internal/password"
	"github.com/keyxmakerx/gatehouse/internal/token"
)

// Service defines the business logic contract for authentication. Handlers
// call these methods -- they never touch the repositories directly.
type Service interface {
	// Login authenticates local credentials and opens a new session.
	Login(ctx context.Context, input LoginInput) (*LoginResult, error)

	// SocialLogin resolves or creates a user from a provider-verified
	// identity and opens a new session. Called by provider modules after
	// they have validated the provider assertion.
	SocialLogin(ctx context.Context, provider string, profile SocialProfile) (*LoginResult, error)

	// Register creates an inactive local user and dispatches the
	// confirmation mail. The returned hash is non-empty only in
	// development configuration.
	Register(ctx context.Context, input RegisterInput) (string, error)

	// ConfirmEmail redeems a confirmation hash, activating the user.
	ConfirmEmail(ctx context.Context, hash string) error

	// ForgotPassword creates a one-time reset token and mails it. The
	// returned hash is non-empty only in development configuration.
	ForgotPassword(ctx context.Context, email string) (string, error)

	// ResetPassword redeems a one-time token: revokes every session of the
	// owner, sets the new password, and consumes the token.
	ResetPassword(ctx context.Context, hash, newPassword string) error

	// Refresh mints a fresh token pair bound to an existing session.
	Refresh(ctx context.Context, sessionID string) (*LoginResult, error)

	// Me returns the user behind a validated access token. A missing or
	// deleted user yields nil, not an error -- the caller holds a valid
	// token, so absence indicates a race with deletion.
	Me(ctx context.Context, userID string) (*User, error)

	// Update applies a profile update. Password changes require the old
	// password and revoke every other session of the user.
	Update(ctx context.Context, identity *token.AccessClaims, input UpdateInput) (*User, error)

	// Logout revokes the single session behind the current token.
	Logout(ctx context.Context, sessionID string) error

	// DeleteAccount soft-deletes the user. Sessions are left for the
	// owner-liveness check on refresh to reject lazily.
	DeleteAccount(ctx context.Context, userID string) error
}

// service implements Service.
type service struct {
	users    UserRepository
	sessions SessionRepository
	oneTime  OneTimeTokenRepository
	codec    *token.Codec
	mail     mailer.Mailer

	// devMode echoes confirmation/reset hashes in responses instead of
	// requiring the email round-trip. Must never be set in production.
	devMode bool
}

// NewService creates the auth service with explicit collaborator handles.
func NewService(
	users UserRepository,
	sessions SessionRepository,
	oneTime OneTimeTokenRepository,
	codec *token.Codec,
	mail mailer.Mailer,
	devMode bool,
) Service {
	return &service{
		users:    users,
		sessions: sessions,
		oneTime:  oneTime,
		codec:    codec,
		mail:     mail,
		devMode:  devMode,
	}
}

// Login authenticates an email/password pair against the stored hash and
// opens a new session on success.
func (s *service) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	email := normalizeEmail(input.Email)

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewNotFound("email not found").WithField("email", "notFound")
		}
		return nil, apperror.NewInternal(fmt.Errorf("finding user: %w", err))
	}

	if user.Deleted() {
		return nil, apperror.NewUnprocessable("user has been deleted").WithField("email", "userDeleted")
	}

	if user.Provider != ProviderEmail {
		// Name the actual provider so the client can redirect to it.
		return nil, apperror.NewUnprocessable(
			fmt.Sprintf("account uses %s login", user.Provider),
		).WithField("email", "needLoginViaProvider:"+user.Provider)
	}

	if !user.HasPassword() {
		// Local account without a credential: only the reset flow can set one.
		return nil, apperror.NewUnauthorized("password not set, reset required")
	}

	if !password.Verify(input.Password, *user.PasswordHash) {
		return nil, apperror.NewUnprocessable("incorrect password").WithField("password", "incorrectPassword")
	}

	session, err := s.sessions.Create(ctx, user.ID)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("creating session: %w", err))
	}

	result, err := s.issueTokens(user, session.ID)
	if err != nil {
		return nil, err
	}

	slog.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("session_id", session.ID),
	)

	return result, nil
}

// SocialLogin resolves a provider-verified identity to a user. Lookup order:
// (social id, provider), then email. A profile with an unknown email is
// rejected; a profile with no email at all creates a fresh active account
// (social accounts skip email confirmation).
func (s *service) SocialLogin(ctx context.Context, provider string, profile SocialProfile) (*LoginResult, error) {
	email := normalizeEmail(profile.Email)

	user, err := s.users.FindBySocial(ctx, profile.ID, provider)
	if err != nil && !apperror.IsNotFound(err) {
		return nil, apperror.NewInternal(fmt.Errorf("finding user by social id: %w", err))
	}

	if user == nil && email != "" {
		user, err = s.users.FindByEmail(ctx, email)
		if err != nil {
			if apperror.IsNotFound(err) {
				return nil, apperror.NewUnprocessable("email not found").WithField("email", "notFound")
			}
			return nil, apperror.NewInternal(fmt.Errorf("finding user by email: %w", err))
		}
	}

	if user != nil {
		if user.Deleted() {
			return nil, apperror.NewUnprocessable("user has been deleted").WithField("email", "userDeleted")
		}

		// Backfill the link: an account found by email gains the social id,
		// a social account without a stored email gains one.
		if email != "" && user.Email == nil {
			user.Email = &email
		}
		if user.SocialID == nil {
			socialID := profile.ID
			user.SocialID = &socialID
		}
		if err := s.users.Save(ctx, user); err != nil {
			if appErr, ok := err.(*apperror.AppError); ok {
				return nil, appErr
			}
			return nil, apperror.NewInternal(fmt.Errorf("linking social identity: %w", err))
		}
	} else {
		user = &User{
			ID:          uuid.NewString(),
			DisplayName: strings.TrimSpace(profile.DisplayName),
			Provider:    provider,
			Role:        RoleUser,
			Status:      StatusActive,
			CreatedAt:   time.Now().UTC(),
		}
		socialID := profile.ID
		user.SocialID = &socialID
		if email != "" {
			user.Email = &email
		}
		if err := s.users.Create(ctx, user); err != nil {
			if appErr, ok := err.(*apperror.AppError); ok {
				return nil, appErr
			}
			return nil, apperror.NewInternal(fmt.Errorf("creating social user: %w", err))
		}

		slog.Info("social user registered",
			slog.String("user_id", user.ID),
			slog.String("provider", provider),
		)
	}

	session, err := s.sessions.Create(ctx, user.ID)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("creating session: %w", err))
	}

	return s.issueTokens(user, session.ID)
}

// Register creates an inactive local user with a pending confirmation hash
// and dispatches the confirmation mail. A failed dispatch propagates -- an
// unreachable mail system would otherwise leave the user permanently
// inactive with no way to know.
func (s *service) Register(ctx context.Context, input RegisterInput) (string, error) {
	email := normalizeEmail(input.Email)

	passwordHash, err := password.Hash(input.Password)
	if err != nil {
		return "", apperror.NewInternal(fmt.Errorf("hashing password: %w", err))
	}

	hash, err := newOneTimeHash()
	if err != nil {
		return "", apperror.NewInternal(fmt.Errorf("generating confirmation hash: %w", err))
	}

	user := &User{
		ID:          uuid.NewString(),
		Email:       &email,
		DisplayName: strings.TrimSpace(input.DisplayName),
		Provider:    ProviderEmail,
		Role:        RoleUser,
		Status:      StatusInactive,
		CreatedAt:   time.Now().UTC(),
	}
	user.PasswordHash = &passwordHash
	user.ConfirmHash = &hash

	if err := s.users.Create(ctx, user); err != nil {
		if appErr, ok := err.(*apperror.AppError); ok {
			return "", appErr
		}
		return "", apperror.NewInternal(fmt.Errorf("creating user: %w", err))
	}

	if err := s.mail.SendConfirmation(ctx, email, hash); err != nil {
		return "", apperror.NewInternal(fmt.Errorf("sending confirmation mail: %w", err))
	}

	slog.Info("user registered",
		slog.String("user_id", user.ID),
		slog.String("email", email),
	)

	if s.devMode {
		return hash, nil
	}
	return "", nil
}

// ConfirmEmail redeems a confirmation hash. The single-statement redemption
// in the repository makes the Inactive -> Active transition happen exactly
// once per hash; a second attempt reads as an unknown hash.
func (s *service) ConfirmEmail(ctx context.Context, hash string) error {
	if err := s.users.ConfirmEmail(ctx, hash); err != nil {
		if apperror.IsNotFound(err) {
			// No hint about which hashes are valid.
			return apperror.NewNotFound("confirmation hash not found").WithField("hash", "notFound")
		}
		return apperror.NewInternal(fmt.Errorf("confirming email: %w", err))
	}
	return nil
}

// ForgotPassword creates a one-time reset token for the account and mails
// it. An unknown email is rejected with a field code; clients surface it
// inline on the form.
func (s *service) ForgotPassword(ctx context.Context, email string) (string, error) {
	email = normalizeEmail(email)

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if apperror.IsNotFound(err) {
			return "", apperror.NewUnprocessable("email does not exist").WithField("email", "emailNotExists")
		}
		return "", apperror.NewInternal(fmt.Errorf("finding user: %w", err))
	}
	if user.Deleted() {
		return "", apperror.NewUnprocessable("user has been deleted").WithField("email", "userDeleted")
	}

	hash, err := newOneTimeHash()
	if err != nil {
		return "", apperror.NewInternal(fmt.Errorf("generating reset hash: %w", err))
	}

	if err := s.oneTime.Create(ctx, hash, user.ID); err != nil {
		return "", apperror.NewInternal(fmt.Errorf("storing reset token: %w", err))
	}

	if err := s.mail.SendPasswordReset(ctx, email, hash); err != nil {
		return "", apperror.NewInternal(fmt.Errorf("sending reset mail: %w", err))
	}

	slog.Info("password reset initiated", slog.String("user_id", user.ID))

	if s.devMode {
		return hash, nil
	}
	return "", nil
}

// ResetPassword redeems a one-time token: every session of the owner is
// revoked (forcing re-login everywhere), the password hash is replaced, and
// the token is consumed. The steps are not wrapped in a transaction; a crash
// mid-sequence can leave sessions revoked with the password unchanged, which
// is accepted -- repeating the request with the same hash fails cleanly once
// the token is consumed.
func (s *service) ResetPassword(ctx context.Context, hash, newPassword string) error {
	tok, err := s.oneTime.FindByHash(ctx, hash)
	if err != nil {
		if apperror.IsNotFound(err) {
			// Unknown and already-consumed hashes are indistinguishable.
			return apperror.NewNotFound("reset token not found").WithField("hash", "notFound")
		}
		return apperror.NewInternal(fmt.Errorf("finding reset token: %w", err))
	}

	// The owner vanished between token creation and redemption. There is
	// nothing left to reset; report success rather than leaking the state.
	if tok.User == nil {
		return nil
	}
	user := tok.User

	if err := s.sessions.SoftDeleteByUser(ctx, user.ID); err != nil {
		return apperror.NewInternal(fmt.Errorf("revoking sessions: %w", err))
	}

	passwordHash, err := password.Hash(newPassword)
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("hashing password: %w", err))
	}
	if err := s.users.UpdatePassword(ctx, user.ID, passwordHash); err != nil {
		return apperror.NewInternal(fmt.Errorf("updating password: %w", err))
	}

	if err := s.oneTime.SoftDelete(ctx, tok.ID); err != nil {
		return apperror.NewInternal(fmt.Errorf("consuming reset token: %w", err))
	}

	slog.Info("password reset completed", slog.String("user_id", user.ID))
	return nil
}

// Refresh mints a fresh pair bound to the same session. The session lookup
// is the authoritative validity check: a cryptographically valid refresh
// token whose session (or session owner) is gone gets the session-gone
// sentinel so clients can silently re-trigger login.
func (s *service) Refresh(ctx context.Context, sessionID string) (*LoginResult, error) {
	session, user, err := s.sessions.FindWithUser(ctx, sessionID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewSessionGone()
		}
		return nil, apperror.NewInternal(fmt.Errorf("finding session: %w", err))
	}

	result, err := s.issueTokens(user, session.ID)
	if err != nil {
		return nil, err
	}

	// Refresh responses carry no user object.
	result.User = nil
	return result, nil
}

// Me returns the live user, or nil when absent or deleted.
func (s *service) Me(ctx context.Context, userID string) (*User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, nil
		}
		return nil, apperror.NewInternal(fmt.Errorf("finding user: %w", err))
	}
	return user, nil
}

// Update applies a profile update. Supplying a new password requires the
// old one; on success every other session of the user is revoked BEFORE the
// new password lands, so a stolen session cannot survive the change.
func (s *service) Update(ctx context.Context, identity *token.AccessClaims, input UpdateInput) (*User, error) {
	user, err := s.users.FindByID(ctx, identity.UserID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewUnprocessable("user not found").WithField("user", "userNotFound")
		}
		return nil, apperror.NewInternal(fmt.Errorf("finding user: %w", err))
	}

	if input.Password != "" {
		if input.OldPassword == "" {
			return nil, apperror.NewUnprocessable("old password required").WithField("oldPassword", "missingOldPassword")
		}

		var stored string
		if user.PasswordHash != nil {
			stored = *user.PasswordHash
		}
		if !password.Verify(input.OldPassword, stored) {
			return nil, apperror.NewUnprocessable("incorrect old password").WithField("oldPassword", "incorrectOldPassword")
		}

		if err := s.sessions.SoftDeleteByUserExcept(ctx, user.ID, identity.SessionID); err != nil {
			return nil, apperror.NewInternal(fmt.Errorf("revoking other sessions: %w", err))
		}

		newHash, err := password.Hash(input.Password)
		if err != nil {
			return nil, apperror.NewInternal(fmt.Errorf("hashing password: %w", err))
		}
		user.PasswordHash = &newHash
	}

	if input.DisplayName != nil {
		user.DisplayName = strings.TrimSpace(*input.DisplayName)
	}

	if err := s.users.Save(ctx, user); err != nil {
		if appErr, ok := err.(*apperror.AppError); ok {
			return nil, appErr
		}
		return nil, apperror.NewInternal(fmt.Errorf("updating user: %w", err))
	}

	slog.Info("user updated",
		slog.String("user_id", user.ID),
		slog.Bool("password_changed", input.Password != ""),
	)

	return user, nil
}

// Logout revokes the single session behind the current token. Idempotent.
func (s *service) Logout(ctx context.Context, sessionID string) error {
	if err := s.sessions.SoftDeleteByID(ctx, sessionID); err != nil {
		return apperror.NewInternal(fmt.Errorf("revoking session: %w", err))
	}
	slog.Info("user logged out", slog.String("session_id", sessionID))
	return nil
}

// DeleteAccount soft-deletes the user record. Existing sessions stay on
// disk; the live-owner join on refresh rejects them from now on.
func (s *service) DeleteAccount(ctx context.Context, userID string) error {
	if err := s.users.SoftDelete(ctx, userID); err != nil {
		return apperror.NewInternal(fmt.Errorf("soft-deleting user: %w", err))
	}
	slog.Info("account deleted", slog.String("user_id", userID))
	return nil
}

// issueTokens mints the access/refresh pair for the user and session and
// shapes the login-class response.
func (s *service) issueTokens(user *User, sessionID string) (*LoginResult, error) {
	pair, err := s.codec.MintPair(user.ID, user.Role, sessionID)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("minting tokens: %w", err))
	}

	return &LoginResult{
		AccessToken:          pair.AccessToken,
		RefreshToken:         pair.RefreshToken,
		AccessTokenExpiresAt: pair.AccessExpiresAt.UnixMilli(),
		User:                 user,
	}, nil
}

// normalizeEmail lower-cases and trims an email address so lookups and
// uniqueness are case-insensitive.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// newOneTimeHash returns an unguessable hash for confirmation/reset links:
// 32 random bytes digested with SHA-256, hex-encoded.
func newOneTimeHash() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
