// Package auth is the heart of Gatehouse: the session state machine tying
// together credential verification, token minting, server-tracked sessions,
// and single-use out-of-band tokens. It provides login (local and social),
// registration with email confirmation, password reset, refresh, logout,
// profile update, and account soft-deletion.
package auth

import "time"

// Auth provider constants. ProviderEmail is the local credential provider;
// everything else is a social provider that produced a verified identity.
const (
	ProviderEmail  = "email"
	ProviderGoogle = "google"
)

// Role constants carried through the access token. Gatehouse does not
// evaluate permissions itself -- the role rides along for downstream services.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User status constants. New local registrations start Inactive until the
// email-confirmation hash is redeemed. Social registrations start Active.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// User is the identity root. Email and PasswordHash are pointers because
// social accounts may carry neither until they link an email or set a
// password through the reset flow. Users are never physically removed --
// DeletedAt marks soft deletion.
type User struct {
	ID           string     `json:"id"`
	Email        *string    `json:"email"`
	DisplayName  string     `json:"display_name"`
	PasswordHash *string    `json:"-"` // Never expose in JSON responses.
	Provider     string     `json:"provider"`
	SocialID     *string    `json:"-"` // Never expose.
	Role         string     `json:"role"`
	Status       string     `json:"status"`
	ConfirmHash  *string    `json:"-"` // Pending email-confirmation hash. Never expose.
	CreatedAt    time.Time  `json:"created_at"`
	DeletedAt    *time.Time `json:"-"`
}

// Deleted reports whether the user has been soft-deleted. A deleted user can
// never log in, confirm email, reset a password, or refresh a session.
func (u *User) Deleted() bool {
	return u.DeletedAt != nil
}

// HasPassword reports whether a local credential is set.
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// Session is one authenticated device/client lineage. It is the unit of
// refresh-token validity: the refresh token carries only the session id, so
// soft-deleting the session invalidates refresh without touching the token.
type Session struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"-"`
}

// Deleted reports whether the session has been revoked.
func (s *Session) Deleted() bool {
	return s.DeletedAt != nil
}

// OneTimeToken is a single-use hash-addressed credential for the password
// reset flow. The hash is the lookup key; the plaintext it was derived from
// is never stored. Consumption is a soft delete.
type OneTimeToken struct {
	ID        string
	Hash      string
	UserID    string
	CreatedAt time.Time
	DeletedAt *time.Time

	// User is the live owning user, eagerly loaded on lookup. Nil when the
	// owner has been deleted in the meantime.
	User *User
}

// Deleted reports whether the token has been consumed.
func (t *OneTimeToken) Deleted() bool {
	return t.DeletedAt != nil
}

// --- Request DTOs (bound from HTTP requests) ---

// LoginRequest holds the local login payload.
type LoginRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// RegisterRequest holds the registration payload.
type RegisterRequest struct {
	Email       string `json:"email" form:"email"`
	DisplayName string `json:"display_name" form:"display_name"`
	Password    string `json:"password" form:"password"`
}

// ConfirmEmailRequest holds the emailed confirmation hash.
type ConfirmEmailRequest struct {
	Hash string `json:"hash" form:"hash"`
}

// ForgotPasswordRequest holds the email to send a reset link to.
type ForgotPasswordRequest struct {
	Email string `json:"email" form:"email"`
}

// ResetPasswordRequest holds the emailed reset hash and the new password.
type ResetPasswordRequest struct {
	Hash     string `json:"hash" form:"hash"`
	Password string `json:"password" form:"password"`
}

// UpdateRequest holds the profile update payload. Password changes require
// OldPassword for re-authentication.
type UpdateRequest struct {
	DisplayName *string `json:"display_name"`
	Password    string  `json:"password"`
	OldPassword string  `json:"old_password"`
}

// --- Service Input DTOs (passed from handler to service) ---

// LoginInput is the validated input for local login.
type LoginInput struct {
	Email    string
	Password string
}

// RegisterInput is the validated input for creating a new local user.
type RegisterInput struct {
	Email       string
	DisplayName string
	Password    string
}

// UpdateInput is the validated input for a profile update.
type UpdateInput struct {
	DisplayName *string
	Password    string
	OldPassword string
}

// SocialProfile is the identity produced by an external provider module
// after it has verified the provider's assertion. Email may be empty.
type SocialProfile struct {
	ID          string
	Email       string
	DisplayName string
}

// LoginResult is the response for login-class operations. Refresh responses
// omit User. AccessTokenExpiresAt is epoch milliseconds, advisory for
// clients scheduling their next refresh.
type LoginResult struct {
	AccessToken          string `json:"accessToken"`
	RefreshToken         string `json:"refreshToken"`
	AccessTokenExpiresAt int64  `json:"accessTokenExpiresAt"`
	User                 *User  `json:"user,omitempty"`
}
