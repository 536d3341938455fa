package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/keyxmakerx/gatehouse/internal/apperror"
	"github.com/keyxmakerx/gatehouse/internal/password"
	"github.com/keyxmakerx/gatehouse/internal/token"
)

// --- Mock Repositories ---

// mockUserRepo implements UserRepository for testing.
type mockUserRepo struct {
	createFn         func(ctx context.Context, user *User) error
	findByIDFn       func(ctx context.Context, id string) (*User, error)
	findByEmailFn    func(ctx context.Context, email string) (*User, error)
	findBySocialFn   func(ctx context.Context, socialID, provider string) (*User, error)
	saveFn           func(ctx context.Context, user *User) error
	updatePasswordFn func(ctx context.Context, userID, passwordHash string) error
	confirmEmailFn   func(ctx context.Context, hash string) error
	softDeleteFn     func(ctx context.Context, id string) error
}

func (m *mockUserRepo) Create(ctx context.Context, user *User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, apperror.NewNotFound("user not found")
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, apperror.NewNotFound("user not found")
}

func (m *mockUserRepo) FindBySocial(ctx context.Context, socialID, provider string) (*User, error) {
	if m.findBySocialFn != nil {
		return m.findBySocialFn(ctx, socialID, provider)
	}
	return nil, apperror.NewNotFound("user not found")
}

func (m *mockUserRepo) Save(ctx context.Context, user *User) error {
	if m.saveFn != nil {
		return m.saveFn(ctx, user)
	}
	return nil
}

func (m *mockUserRepo) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	if m.updatePasswordFn != nil {
		return m.updatePasswordFn(ctx, userID, passwordHash)
	}
	return nil
}

func (m *mockUserRepo) ConfirmEmail(ctx context.Context, hash string) error {
	if m.confirmEmailFn != nil {
		return m.confirmEmailFn(ctx, hash)
	}
	return nil
}

func (m *mockUserRepo) SoftDelete(ctx context.Context, id string) error {
	if m.softDeleteFn != nil {
		return m.softDeleteFn(ctx, id)
	}
	return nil
}

// mockSessionRepo implements SessionRepository for testing.
type mockSessionRepo struct {
	createFn                 func(ctx context.Context, userID string) (*Session, error)
	findWithUserFn           func(ctx context.Context, id string) (*Session, *User, error)
	softDeleteByIDFn         func(ctx context.Context, id string) error
	softDeleteByUserFn       func(ctx context.Context, userID string) error
	softDeleteByUserExceptFn func(ctx context.Context, userID, keepID string) error
}

func (m *mockSessionRepo) Create(ctx context.Context, userID string) (*Session, error) {
	if m.createFn != nil {
		return m.createFn(ctx, userID)
	}
	return &Session{ID: "session-1", UserID: userID, CreatedAt: time.Now()}, nil
}

func (m *mockSessionRepo) FindWithUser(ctx context.Context, id string) (*Session, *User, error) {
	if m.findWithUserFn != nil {
		return m.findWithUserFn(ctx, id)
	}
	return nil, nil, apperror.NewNotFound("session not found")
}

func (m *mockSessionRepo) SoftDeleteByID(ctx context.Context, id string) error {
	if m.softDeleteByIDFn != nil {
		return m.softDeleteByIDFn(ctx, id)
	}
	return nil
}

func (m *mockSessionRepo) SoftDeleteByUser(ctx context.Context, userID string) error {
	if m.softDeleteByUserFn != nil {
		return m.softDeleteByUserFn(ctx, userID)
	}
	return nil
}

func (m *mockSessionRepo) SoftDeleteByUserExcept(ctx context.Context, userID, keepID string) error {
	if m.softDeleteByUserExceptFn != nil {
		return m.softDeleteByUserExceptFn(ctx, userID, keepID)
	}
	return nil
}

// mockOneTimeRepo implements OneTimeTokenRepository for testing.
type mockOneTimeRepo struct {
	createFn     func(ctx context.Context, hash, userID string) error
	findByHashFn func(ctx context.Context, hash string) (*OneTimeToken, error)
	softDeleteFn func(ctx context.Context, id string) error
}

func (m *mockOneTimeRepo) Create(ctx context.Context, hash, userID string) error {
	if m.createFn != nil {
		return m.createFn(ctx, hash, userID)
	}
	return nil
}

func (m *mockOneTimeRepo) FindByHash(ctx context.Context, hash string) (*OneTimeToken, error) {
	if m.findByHashFn != nil {
		return m.findByHashFn(ctx, hash)
	}
	return nil, apperror.NewNotFound("token not found")
}

func (m *mockOneTimeRepo) SoftDelete(ctx context.Context, id string) error {
	if m.softDeleteFn != nil {
		return m.softDeleteFn(ctx, id)
	}
	return nil
}

// mockMailer records outbound mail instead of sending it.
type mockMailer struct {
	confirmations []string
	resets        []string
	sendErr       error
}

func (m *mockMailer) SendConfirmation(ctx context.Context, to, hash string) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.confirmations = append(m.confirmations, to)
	return nil
}

func (m *mockMailer) SendPasswordReset(ctx context.Context, to, hash string) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.resets = append(m.resets, to)
	return nil
}

// --- Test Helpers ---

func newTestCodec(t *testing.T) *token.Codec {
	t.Helper()
	return token.NewCodec(
		"test-access-secret-0123456789abcdef",
		"test-refresh-secret-0123456789abcdef",
		15*time.Minute,
		24*time.Hour,
	)
}

func newTestService(t *testing.T, users UserRepository, sessions SessionRepository, oneTime OneTimeTokenRepository, mail *mockMailer) Service {
	t.Helper()
	if mail == nil {
		mail = &mockMailer{}
	}
	return NewService(users, sessions, oneTime, newTestCodec(t), mail, true)
}

// assertAppError checks that err is an *apperror.AppError with the expected code.
func assertAppError(t *testing.T, err error, expectedCode int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %d, got nil", expectedCode)
	}
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *apperror.AppError, got %T: %v", err, err)
	}
	if appErr.Code != expectedCode {
		t.Errorf("expected status %d, got %d (message: %s)", expectedCode, appErr.Code, appErr.Message)
	}
}

// assertFieldCode checks the per-field code attached to an AppError.
func assertFieldCode(t *testing.T, err error, field, code string) {
	t.Helper()
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *apperror.AppError, got %T: %v", err, err)
	}
	if got := appErr.Fields[field]; got != code {
		t.Errorf("field %q: expected code %q, got %q", field, code, got)
	}
}

func localUser(t *testing.T, plaintext string) *User {
	t.Helper()
	hash, err := password.Hash(plaintext)
	if err != nil {
		t.Fatalf("hashing fixture password: %v", err)
	}
	email := "user@example.com"
	return &User{
		ID:           "user-1",
		Email:        &email,
		DisplayName:  "Test User",
		PasswordHash: &hash,
		Provider:     ProviderEmail,
		Role:         RoleUser,
		Status:       StatusActive,
		CreatedAt:    time.Now(),
	}
}

// --- Login ---

func TestLogin_Success(t *testing.T) {
	user := localUser(t, "correct horse battery")
	sessions := &mockSessionRepo{}
	svc := newTestService(t, &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*User, error) {
			return user, nil
		},
	}, sessions, &mockOneTimeRepo{}, nil)

	result, err := svc.Login(context.Background(), LoginInput{
		Email:    "user@example.com",
		Password: "correct horse battery",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.User == nil || result.User.ID != user.ID {
		t.Error("expected user in login result")
	}
	if result.AccessTokenExpiresAt == 0 {
		t.Error("expected access token expiry")
	}

	codec := newTestCodec(t)
	claims, err := codec.VerifyAccess(result.AccessToken)
	if err != nil {
		t.Fatalf("access token does not verify: %v", err)
	}
	if claims.UserID != user.ID || claims.SessionID != "session-1" {
		t.Errorf("unexpected claims: user=%s session=%s", claims.UserID, claims.SessionID)
	}

	refreshClaims, err := codec.VerifyRefresh(result.RefreshToken)
	if err != nil {
		t.Fatalf("refresh token does not verify: %v", err)
	}
	if refreshClaims.SessionID != "session-1" {
		t.Errorf("refresh bound to session %s, want session-1", refreshClaims.SessionID)
	}
}

func TestLogin_UnknownEmail(t *testing.T) {
	svc := newTestService(t, &mockUserRepo{}, &mockSessionRepo{}, &mockOneTimeRepo{}, nil)

	_, err := svc.Login(context.Background(), LoginInput{Email: "nobody@example.com", Password: "pw"})
	assertAppError(t, err, 404)
	assertFieldCode(t, err, "email", "notFound")
}

func TestLogin_DeletedUser(t *testing.T) {
	user := localUser(t, "pw")
	deletedAt := time.Now()
	user.DeletedAt = &deletedAt

	svc := newTestService(t, &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*User, error) {
			return user, nil
		},
	}, &mockSessionRepo{}, &mockOneTimeRepo{}, nil)

	_, err := svc.Login(context.Background(), LoginInput{Email: "user@example.com", Password: "pw"})
	assertAppError(t, err, 422)
	assertFieldCode(t, err, "email", "userDeleted")
}

func TestLogin_WrongProvider(t *testing.T) {
	user := localUser(t, "pw")
	user.Provider = ProviderGoogle
	user.PasswordHash = nil

	svc := newTestService(t, &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*User, error) {
			return user, nil
		},
	}, &mockSessionRepo{}, &mockOneTimeRepo{}, nil)

	_, err := svc.Login(context.Background(), LoginInput{Email: "user@example.com", Password: "pw"})
	assertAppError(t, err, 422)
	assertFieldCode(t, err, "email", "needLoginViaProvider:google")
}

func TestLogin_PasswordNotSet(t *testing.T) {
	user := localUser(t, "pw")
	user.PasswordHash = nil

	svc := newTestService(t, &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*User, error) {
			return user, nil
		},
	}, &mockSessionRepo{}, &mockOneTimeRepo{}, nil)

	_, err := svc.Login(context.Background(), LoginInput{Email: "user@example.com", Password: "pw"})
	assertAppError(t, err, 401)
}

func TestLogin_WrongPassword(t *testing.T) {
	user := localUser(t, "the real password")

	svc := newTestService(t, &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*User, error) {
			return user, nil
		},
	}, &mockSessionRepo{}, &mockOneTimeRepo{}, nil)

	_, err := svc.Login(context.Background(), LoginInput{Email: "user@example.com", Password: "a guess"})
	assertAppError(t, err, 422)
	assertFieldCode(t, err, "password", "incorrectPassword")
}

func TestLogin_EmailNormalization(t *testing.T) {
	var lookedUp string
	svc := newTestService(t, &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*User, error) {
			lookedUp = email
			return nil, apperror.NewNotFound("user not found")
		},
	}, &mockSessionRepo{}, &mockOneTimeRepo{}, nil)

	svc.Login(context.Background(), LoginInput{Email: "  User@Example.COM ", Password: "pw"})

	if lookedUp != "user@example.com" {
		t.Errorf("expected normalized lookup, got %q", lookedUp)
	}
}

// --- Social Login ---

func TestSocialLogin_ExistingSocialAccount(t *testing.T) {
	user := localUser(t, "unused")
	user.Provider = ProviderGoogle
	socialID := "google-123"
	user.SocialID = &socialID

	var created bool
	svc := newTestService(t, &mockUserRepo{
		findBySocialFn: func(ctx context.Context, sid, provider string) (*User, error) {
			if sid == "google-123" && provider == ProviderGoogle {
				return user, nil
			}
			return nil, apperror.NewNotFound("user not found")
		},
		createFn: func(ctx context.Context, u *User) error {
			created = true
			return nil
		},
	}, &mockSessionRepo{}, &mockOneTimeRepo{}, nil)

	result, err := svc.SocialLogin(context.Background(), ProviderGoogle, SocialProfile{
		ID:    "google-123",
		Email: "user@example.com",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created {
		t.Error("existing account must not be re-created")
	}
	if result.User.ID != user.ID {
		t.Errorf("expected user %s, got %s", user.ID, result.User.ID)
	}
}

func TestSocialLogin_LinksByEmail(t *testing.T) {
	user := localUser(t, "unused")

	var saved *User
	svc := newTestService(t, &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*User, error) {
			return user, nil
		},
		saveFn: func(ctx context.Context, u *User) error {
			saved = u
			return nil
		},
	}, &mockSessionRepo{}, &mockOneTimeRepo{}, nil)

	_, err := svc.SocialLogin(context.Background(), ProviderGoogle, SocialProfile{
		ID:    "google-123",
		Email: "user@example.com",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saved == nil {
		t.Fatal("expected the social id to be persisted")
	}
	if saved.SocialID == nil || *saved.SocialID != "google-123" {
		t.Error("expected social id backfilled onto the email account")
	}
}

func TestSocialLogin_UnknownEmail(t *testing.T) {
	svc := newTestService(t, &mockUserRepo{}, &mockSessionRepo{}, &mockOneTimeRepo{}, nil)

	_, err := svc.SocialLogin(context.Background(), ProviderGoogle, SocialProfile{
		ID:    "google-123",
		Email: "nobody@example.com",
	})
	assertAppError(t, err, 422)
	assertFieldCode(t, err, "email", "notFound")
}

func TestSocialLogin_CreatesAccountWithoutEmail(t *testing.T) {
	var created *User
	svc := newTestService(t, &mockUserRepo{
		createFn: func(ctx context.Context, u *User) error {
			created = u
			return nil
		},
	}, &mockSessionRepo{}, &mockOneTimeRepo{}, nil)

	_, err := svc.SocialLogin(context.Background(), ProviderGoogle, SocialProfile{
		ID:          "google-123",
		DisplayName: "New User",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created == nil {
		t.Fatal("expected a new account")
	}
	if created.Status != StatusActive {
		t.Errorf("social accounts skip confirmation, got status %q", created.Status)
	}
	if created.Email != nil {
		t.Error("expected no email on the new account")
	}
	if created.SocialID == nil || *created.SocialID != "google-123" {
		t.Error("expected social id on the new account")
	}
}

func TestSocialLogin_DeletedUser(t *testing.T) {
	user := localUser(t, "unused")
	deletedAt := time.Now()
	user.DeletedAt = &deletedAt
	socialID := "google-123"
	user.SocialID = &socialID

	svc := newTestService(t, &mockUserRepo{
		findBySocialFn: func(ctx context.Context, sid, provider string) (*User, error) {
			return user, nil
		},
	}, &mockSessionRepo{}, &mockOneTimeRepo{}, nil)

	_, err := svc.SocialLogin(context.Background(), ProviderGoogle, SocialProfile{ID: "google-123"})
	assertAppError(t, err, 422)
}

// --- Register ---

func TestRegister_Success(t *testing.T) {
	var created *User
	mail := &mockMailer{}
	svc := newTestService(t, &mockUserRepo{
		createFn: func(ctx context.Context, u *User) error {
			created = u
			return nil
		},
	}, &mockSessionRepo{}, &mockOneTimeRepo{}, mail)

	hash, err := svc.Register(context.Background(), RegisterInput{
		Email:       "New@Example.com",
		DisplayName: "New User",
		Password:    "a strong password",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if created == nil {
		t.Fatal("expected user creation")
	}
	if created.Status != StatusInactive {
		t.Errorf("new local accounts start inactive, got %q", created.Status)
	}
	if created.Email == nil || *created.Email != "new@example.com" {
		t.Error("expected normalized email")
	}
	if created.ConfirmHash == nil || *created.ConfirmHash != hash {
		t.Error("expected confirmation hash on the user row")
	}
	if created.PasswordHash == nil || !password.Verify("a strong password", *created.PasswordHash) {
		t.Error("expected a verifiable password hash")
	}
	if len(mail.confirmations) != 1 || mail.confirmations[0] != "new@example.com" {
		t.Errorf("expected one confirmation mail, got %v", mail.confirmations)
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc := newTestService(t, &mockUserRepo{
		createFn: func(ctx context.Context, u *User) error {
			return apperror.NewConflict("email already registered")
		},
	}, &mockSessionRepo{}, &mockOneTimeRepo{}, nil)

	_, err := svc.Register(context.Background(), RegisterInput{
		Email:    "taken@example.com",
		Password: "a strong password",
	})
	assertAppError(t, err, 409)
}

func TestRegister_MailFailure(t *testing.T) {
	mail := &mockMailer{sendErr: errors.New("smtp down")}
	svc := newTestService(t, &mockUserRepo{}, &mockSessionRepo{}, &mockOneTimeRepo{}, mail)

	_, err := svc.Register(context.Background(), RegisterInput{
		Email:    "new@example.com",
		Password: "a strong password",
	})
	assertAppError(t, err, 500)
}

func TestRegister_ProductionHidesHash(t *testing.T) {
	svc := NewService(&mockUserRepo{}, &mockSessionRepo{}, &mockOneTimeRepo{},
		newTestCodec(t), &mockMailer{}, false)

	hash, err := svc.Register(context.Background(), RegisterInput{
		Email:    "new@example.com",
		Password: "a strong password",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hash != "" {
		t.Error("hash must not be exposed outside development")
	}
}

// --- Confirm Email ---

func TestConfirmEmail_Success(t *testing.T) {
	var redeemed string
	svc := newTestService(t, &mockUserRepo{
		confirmEmailFn: func(ctx context.Context, hash string) error {
			redeemed = hash
			return nil
		},
	}, &mockSessionRepo{}, &mockOneTimeRepo{}, nil)

	if err := svc.ConfirmEmail(context.Background(), "abc123"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if redeemed != "abc123" {
		t.Errorf("expected hash abc123 redeemed, got %q", redeemed)
	}
}

func TestConfirmEmail_UnknownHash(t *testing.T) {
	svc := newTestService(t, &mockUserRepo{
		confirmEmailFn: func(ctx context.Context, hash string) error {
			return apperror.NewNotFound("confirmation hash not found")
		},
	}, &mockSessionRepo{}, &mockOneTimeRepo{}, nil)

	err := svc.ConfirmEmail(context.Background(), "spent-or-bogus")
	assertAppError(t, err, 404)
}

// --- Forgot Password ---

func TestForgotPassword_Success(t *testing.T) {
	user := localUser(t, "old password")
	mail := &mockMailer{}

	var storedHash, storedUserID string
	svc := newTestService(t, &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*User, error) {
			return user, nil
		},
	}, &mockSessionRepo{}, &mockOneTimeRepo{
		createFn: func(ctx context.Context, hash, userID string) error {
			storedHash = hash
			storedUserID = userID
			return nil
		},
	}, mail)

	hash, err := svc.ForgotPassword(context.Background(), "user@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if storedUserID != user.ID {
		t.Errorf("token stored for %q, want %q", storedUserID, user.ID)
	}
	if hash != storedHash {
		t.Error("dev response must echo the stored hash")
	}
	if len(mail.resets) != 1 {
		t.Errorf("expected one reset mail, got %d", len(mail.resets))
	}
}

func TestForgotPassword_UnknownEmail(t *testing.T) {
	svc := newTestService(t, &mockUserRepo{}, &mockSessionRepo{}, &mockOneTimeRepo{}, nil)

	_, err := svc.ForgotPassword(context.Background(), "nobody@example.com")
	assertAppError(t, err, 422)
	assertFieldCode(t, err, "email", "emailNotExists")
}

// --- Reset Password ---

func TestResetPassword_Success(t *testing.T) {
	user := localUser(t, "old password")
	tok := &OneTimeToken{ID: "tok-1", Hash: "reset-hash", UserID: user.ID, User: user}

	var revokedUser, newHash, consumedID string
	svc := newTestService(t, &mockUserRepo{
		updatePasswordFn: func(ctx context.Context, userID, passwordHash string) error {
			newHash = passwordHash
			return nil
		},
	}, &mockSessionRepo{
		softDeleteByUserFn: func(ctx context.Context, userID string) error {
			revokedUser = userID
			return nil
		},
	}, &mockOneTimeRepo{
		findByHashFn: func(ctx context.Context, hash string) (*OneTimeToken, error) {
			return tok, nil
		},
		softDeleteFn: func(ctx context.Context, id string) error {
			consumedID = id
			return nil
		},
	}, nil)

	if err := svc.ResetPassword(context.Background(), "reset-hash", "brand new password"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if revokedUser != user.ID {
		t.Error("expected every session of the user revoked")
	}
	if !password.Verify("brand new password", newHash) {
		t.Error("expected the new password hash stored")
	}
	if consumedID != tok.ID {
		t.Error("expected the token consumed")
	}
}

func TestResetPassword_UnknownHash(t *testing.T) {
	svc := newTestService(t, &mockUserRepo{}, &mockSessionRepo{}, &mockOneTimeRepo{}, nil)

	err := svc.ResetPassword(context.Background(), "bogus", "brand new password")
	assertAppError(t, err, 404)
}

func TestResetPassword_DeletedOwnerIsNoOp(t *testing.T) {
	// Owner deleted after the token was issued: User comes back nil.
	tok := &OneTimeToken{ID: "tok-1", Hash: "reset-hash", UserID: "gone"}

	var touched bool
	svc := newTestService(t, &mockUserRepo{
		updatePasswordFn: func(ctx context.Context, userID, passwordHash string) error {
			touched = true
			return nil
		},
	}, &mockSessionRepo{
		softDeleteByUserFn: func(ctx context.Context, userID string) error {
			touched = true
			return nil
		},
	}, &mockOneTimeRepo{
		findByHashFn: func(ctx context.Context, hash string) (*OneTimeToken, error) {
			return tok, nil
		},
		softDeleteFn: func(ctx context.Context, id string) error {
			touched = true
			return nil
		},
	}, nil)

	if err := svc.ResetPassword(context.Background(), "reset-hash", "brand new password"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if touched {
		t.Error("nothing may change when the token owner is gone")
	}
}

// --- Refresh ---

func TestRefresh_Success(t *testing.T) {
	user := localUser(t, "unused")
	session := &Session{ID: "session-1", UserID: user.ID}

	svc := newTestService(t, &mockUserRepo{}, &mockSessionRepo{
		findWithUserFn: func(ctx context.Context, id string) (*Session, *User, error) {
			return session, user, nil
		},
	}, &mockOneTimeRepo{}, nil)

	result, err := svc.Refresh(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.User != nil {
		t.Error("refresh responses must not carry the user object")
	}

	claims, err := newTestCodec(t).VerifyAccess(result.AccessToken)
	if err != nil {
		t.Fatalf("access token does not verify: %v", err)
	}
	if claims.SessionID != "session-1" {
		t.Errorf("new pair bound to session %s, want session-1", claims.SessionID)
	}
}

func TestRefresh_SessionGone(t *testing.T) {
	svc := newTestService(t, &mockUserRepo{}, &mockSessionRepo{}, &mockOneTimeRepo{}, nil)

	_, err := svc.Refresh(context.Background(), "revoked-session")
	assertAppError(t, err, apperror.StatusSessionGone)
}

// --- Me ---

func TestMe_Success(t *testing.T) {
	user := localUser(t, "unused")
	svc := newTestService(t, &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*User, error) {
			return user, nil
		},
	}, &mockSessionRepo{}, &mockOneTimeRepo{}, nil)

	got, err := svc.Me(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.ID != user.ID {
		t.Error("expected the user back")
	}
}

func TestMe_MissingUserReturnsNil(t *testing.T) {
	svc := newTestService(t, &mockUserRepo{}, &mockSessionRepo{}, &mockOneTimeRepo{}, nil)

	got, err := svc.Me(context.Background(), "vanished")
	if err != nil {
		t.Fatalf("expected nil error for a vanished user, got %v", err)
	}
	if got != nil {
		t.Error("expected nil user")
	}
}

// --- Update ---

func identityFor(user *User, sessionID string) *token.AccessClaims {
	return &token.AccessClaims{UserID: user.ID, Role: user.Role, SessionID: sessionID}
}

func TestUpdate_DisplayName(t *testing.T) {
	user := localUser(t, "pw")

	var saved *User
	svc := newTestService(t, &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*User, error) {
			return user, nil
		},
		saveFn: func(ctx context.Context, u *User) error {
			saved = u
			return nil
		},
	}, &mockSessionRepo{}, &mockOneTimeRepo{}, nil)

	name := "  Renamed  "
	got, err := svc.Update(context.Background(), identityFor(user, "session-1"), UpdateInput{DisplayName: &name})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saved == nil || saved.DisplayName != "Renamed" {
		t.Error("expected trimmed display name persisted")
	}
	if got.DisplayName != "Renamed" {
		t.Errorf("expected updated user back, got name %q", got.DisplayName)
	}
}

func TestUpdate_PasswordRequiresOldPassword(t *testing.T) {
	user := localUser(t, "current password")
	svc := newTestService(t, &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*User, error) {
			return user, nil
		},
	}, &mockSessionRepo{}, &mockOneTimeRepo{}, nil)

	_, err := svc.Update(context.Background(), identityFor(user, "session-1"), UpdateInput{
		Password: "replacement password",
	})
	assertAppError(t, err, 422)
	assertFieldCode(t, err, "oldPassword", "missingOldPassword")
}

func TestUpdate_WrongOldPassword(t *testing.T) {
	user := localUser(t, "current password")
	svc := newTestService(t, &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*User, error) {
			return user, nil
		},
	}, &mockSessionRepo{}, &mockOneTimeRepo{}, nil)

	_, err := svc.Update(context.Background(), identityFor(user, "session-1"), UpdateInput{
		Password:    "replacement password",
		OldPassword: "not the current password",
	})
	assertAppError(t, err, 422)
	assertFieldCode(t, err, "oldPassword", "incorrectOldPassword")
}

func TestUpdate_PasswordRevokesOtherSessions(t *testing.T) {
	user := localUser(t, "current password")

	var revokedUser, keptSession string
	var saved *User
	svc := newTestService(t, &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*User, error) {
			return user, nil
		},
		saveFn: func(ctx context.Context, u *User) error {
			saved = u
			return nil
		},
	}, &mockSessionRepo{
		softDeleteByUserExceptFn: func(ctx context.Context, userID, keepID string) error {
			revokedUser = userID
			keptSession = keepID
			return nil
		},
	}, &mockOneTimeRepo{}, nil)

	_, err := svc.Update(context.Background(), identityFor(user, "session-current"), UpdateInput{
		Password:    "replacement password",
		OldPassword: "current password",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if revokedUser != user.ID || keptSession != "session-current" {
		t.Errorf("expected other sessions of %s revoked keeping session-current, got user=%s keep=%s",
			user.ID, revokedUser, keptSession)
	}
	if saved == nil || saved.PasswordHash == nil || !password.Verify("replacement password", *saved.PasswordHash) {
		t.Error("expected the new password hash persisted")
	}
}

// --- Logout / Delete Account ---

func TestLogout_RevokesSession(t *testing.T) {
	var revoked string
	svc := newTestService(t, &mockUserRepo{}, &mockSessionRepo{
		softDeleteByIDFn: func(ctx context.Context, id string) error {
			revoked = id
			return nil
		},
	}, &mockOneTimeRepo{}, nil)

	if err := svc.Logout(context.Background(), "session-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if revoked != "session-1" {
		t.Errorf("expected session-1 revoked, got %q", revoked)
	}
}

func TestDeleteAccount_SoftDeletesUser(t *testing.T) {
	var deleted string
	svc := newTestService(t, &mockUserRepo{
		softDeleteFn: func(ctx context.Context, id string) error {
			deleted = id
			return nil
		},
	}, &mockSessionRepo{}, &mockOneTimeRepo{}, nil)

	if err := svc.DeleteAccount(context.Background(), "user-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted != "user-1" {
		t.Errorf("expected user-1 deleted, got %q", deleted)
	}
}
